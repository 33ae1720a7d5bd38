package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jobson/jobson-cli/internal/editor"
	"github.com/jobson/jobson-cli/internal/events"
	"github.com/jobson/jobson-cli/internal/filesource"
	"github.com/jobson/jobson-cli/internal/localpath"
	"github.com/jobson/jobson-cli/internal/logging"
	"github.com/jobson/jobson-cli/internal/models"
	"github.com/jobson/jobson-cli/internal/progress"
	"github.com/jobson/jobson-cli/internal/prompt"
	"github.com/jobson/jobson-cli/internal/render"
	"github.com/jobson/jobson-cli/internal/workflow"
)

var (
	errNoSpecs      = errors.New("the server has no job specs")
	errIncomplete   = errors.New("the job request is incomplete")
	errSubmitFailed = errors.New("failed to submit job")
)

// submitOptions holds the flags of the submit command.
type submitOptions struct {
	specID      string
	basedOn     string
	name        string
	inputs      []string
	inputsFile  string
	files       []string
	download    string
	yes         bool
	interactive bool
}

// newSubmitCmd creates the 'submit' command.
func newSubmitCmd() *cobra.Command {
	var opts submitOptions

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Build a job request and submit it",
		Long: `Build a job request against a job spec and submit it.

The request starts from the chosen spec's defaults, or from the inputs of an
existing job with --based-on. Values then come from --inputs-file, --input and
--file, in that order.

On a terminal the request is edited interactively: pick inputs to change,
switch spec, save the request as JSON, or submit. Use --interactive=false to
submit straight from the flags; the command then fails if the request is
incomplete and prints the job id on success.

Input values:
  --input name=value         strings, numbers and select options
  --input tags=a,b,c         string arrays (comma or newline separated)
  --input q='{"table":"t","columns":["a"]}'   sql inputs, as JSON
  --file data=./input.csv    file inputs: local path, s3://bucket/key or
                             https://<account>.blob.core.windows.net/<container>/<blob>
  --file extras=a.txt --file extras=b.txt   file arrays, one flag per file

Examples:
  jobson-cli submit --spec echo --input message=hello --interactive=false
  jobson-cli submit --based-on 2d4f... --name rerun
  jobson-cli submit --inputs-file request.yaml --download request.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("interactive") {
				opts.interactive = prompt.IsInteractive()
			}
			return runSubmitCmd(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.specID, "spec", "s", "", "Job spec to use (default: the first one the server lists)")
	cmd.Flags().StringVar(&opts.basedOn, "based-on", "", "Start from the inputs of an existing job")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "Job name")
	cmd.Flags().StringArrayVarP(&opts.inputs, "input", "i", nil, "Input value as id=value (repeatable)")
	cmd.Flags().StringVarP(&opts.inputsFile, "inputs-file", "f", "", "JSON or YAML job request to start from")
	cmd.Flags().StringArrayVar(&opts.files, "file", nil, "File input as id=location (repeatable)")
	cmd.Flags().StringVarP(&opts.download, "download", "d", "", "Write the request as JSON to this file instead of submitting it")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Submit without asking for confirmation")
	cmd.Flags().BoolVar(&opts.interactive, "interactive", false, "Edit the request interactively (default when running in a terminal)")

	return cmd
}

func runSubmitCmd(cmd *cobra.Command, opts submitOptions) error {
	ctx, cancel := context.WithCancel(GetContext(cmd))
	defer cancel()
	log := GetLogger()

	bus := events.NewEventBus(256)
	defer bus.Close()

	apiClient, cfg, err := getAPIClient(bus)
	if err != nil {
		return err
	}

	var (
		driver     prompt.Driver
		loaderOpts []filesource.Option
	)
	if opts.interactive {
		driver, err = prompt.NewTerminalDriver()
		if err != nil {
			return fmt.Errorf("cannot edit interactively (use --interactive=false): %w", err)
		}
		loaderOpts = append(loaderOpts, filesource.WithProgress(func() progress.Reporter {
			return progress.NewCLIProgress(cmd.ErrOrStderr())
		}))
		go progress.NewSpinner(bus, cmd.ErrOrStderr()).Run(ctx)
	}
	loader := filesource.NewLoader(cfg, log, loaderOpts...)
	logged := logEvents(ctx, bus, log)
	defer func() { <-logged }()
	defer cancel()

	return runSubmit(ctx, apiClient, bus, submitEnv{
		files:  loader,
		driver: driver,
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
		log:    log,
	}, opts)
}

// submitEnv is what a submit session talks to besides the backend. A nil
// driver means scripted mode.
type submitEnv struct {
	files  prompt.FileSource
	driver prompt.Driver
	out    io.Writer
	errOut io.Writer
	log    *logging.Logger
}

type submitSession struct {
	submitEnv
	opts  submitOptions
	ctrl  *workflow.Controller
	asker *prompt.Asker
}

// runSubmit drives a workflow controller from the flags and, with a driver,
// from the user's answers.
func runSubmit(ctx context.Context, backend workflow.Backend, bus *events.EventBus, env submitEnv, opts submitOptions) error {
	if env.log == nil {
		env.log = logging.Nop()
	}

	var preset *models.JobRequest
	if opts.inputsFile != "" {
		req, err := readRequestFile(opts.inputsFile)
		if err != nil {
			return err
		}
		preset = &req
	}

	wopts := workflow.Options{BasedOnJobID: opts.basedOn, SpecID: opts.specID}
	if wopts.SpecID == "" && preset != nil {
		wopts.SpecID = preset.Spec
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctrl := workflow.NewController(backend, wopts, bus, env.log)
	go ctrl.Run(ctx)

	s := &submitSession{submitEnv: env, opts: opts, ctrl: ctrl}
	if env.driver != nil {
		s.asker = &prompt.Asker{Driver: env.driver, Files: env.files, Out: env.errOut}
	}

	ed, err := s.waitEditing(ctx)
	if err != nil {
		return err
	}
	render.Warnings(s.errOut, ed.Form.Warnings())

	if err := s.applyPresets(ctx, ed.Form, preset); err != nil {
		return err
	}

	if s.asker == nil {
		return s.runScripted(ctx)
	}
	return s.runInteractive(ctx)
}

func readRequestFile(path string) (models.JobRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.JobRequest{}, fmt.Errorf("failed to read inputs file: %w", err)
	}
	req, err := models.DecodeJobRequest(data)
	if err != nil {
		return models.JobRequest{}, fmt.Errorf("failed to parse inputs file %s: %w", path, err)
	}
	return req, nil
}

// waitEditing waits for the workflow to reach Editing. Failed loads end
// scripted runs and are offered for retry in interactive ones.
func (s *submitSession) waitEditing(ctx context.Context) (workflow.Editing, error) {
	for {
		st, err := s.ctrl.WaitSettled(ctx)
		if err != nil {
			return workflow.Editing{}, err
		}
		switch st := st.(type) {
		case workflow.Editing:
			return st, nil
		case workflow.NoSpecsAvailable:
			return workflow.Editing{}, errNoSpecs
		}

		loadErr := loadError(st)
		if loadErr == nil {
			return workflow.Editing{}, fmt.Errorf("unexpected workflow state: %s", workflow.Describe(st))
		}
		if s.asker == nil {
			return workflow.Editing{}, loadErr
		}

		fmt.Fprintf(s.errOut, "Error: %s\n", render.Error(loadErr))
		retry, err := s.driver.Confirm(ctx, prompt.ConfirmConfig{Message: "Try again?", Default: true})
		if err != nil {
			return workflow.Editing{}, err
		}
		if !retry {
			return workflow.Editing{}, loadErr
		}
		if err := s.ctrl.Retry(ctx); err != nil {
			return workflow.Editing{}, err
		}
	}
}

// loadError returns the failure of a loading state, wrapped with what was
// being loaded.
func loadError(st workflow.State) error {
	var err error
	switch st := st.(type) {
	case workflow.LoadingSpecs:
		err = st.Err
	case workflow.LoadingExistingJob:
		err = st.Err
	case workflow.LoadingSpec:
		err = st.Err
	}
	if err == nil {
		return nil
	}
	return &stateError{state: st, err: err}
}

type stateError struct {
	state workflow.State
	err   error
}

func (e *stateError) Error() string { return workflow.Describe(e.state) }
func (e *stateError) Unwrap() error { return e.err }

// applyPresets applies the job name and inputs given on the command line.
func (s *submitSession) applyPresets(ctx context.Context, form *editor.Form, preset *models.JobRequest) error {
	name := s.opts.name
	if name == "" && preset != nil {
		name = preset.Name
	}
	if name != "" {
		if err := s.ctrl.SetJobName(ctx, name); err != nil {
			return err
		}
	}

	if preset != nil {
		ids := make([]string, 0, len(preset.Inputs))
		for id := range preset.Inputs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if _, ok := form.Editor(id); !ok {
				fmt.Fprintf(s.errOut, "warning: %s: not an input of job spec '%s', ignored\n", id, form.Spec().ID)
				continue
			}
			if err := s.setInput(ctx, id, preset.Inputs[id]); err != nil {
				return err
			}
		}
	}

	for _, flag := range s.opts.inputs {
		id, text, err := splitAssignment("--input", flag)
		if err != nil {
			return err
		}
		ed, ok := form.Editor(id)
		if !ok {
			return fmt.Errorf("--input %s: job spec '%s' has no input '%s'", flag, form.Spec().ID, id)
		}
		raw, err := parseInputText(ed.Input(), text)
		if err != nil {
			return err
		}
		if err := s.setInput(ctx, id, raw); err != nil {
			return err
		}
	}

	return s.applyFiles(ctx, form)
}

func (s *submitSession) applyFiles(ctx context.Context, form *editor.Form) error {
	var (
		order  []string
		arrays = map[string][]models.FileInput{}
	)
	for _, flag := range s.opts.files {
		id, loc, err := splitAssignment("--file", flag)
		if err != nil {
			return err
		}
		ed, ok := form.Editor(id)
		if !ok {
			return fmt.Errorf("--file %s: job spec '%s' has no input '%s'", flag, form.Spec().ID, id)
		}

		switch ed.Input().Type {
		case models.InputTypeFile:
			file, err := s.files.Load(ctx, loc)
			if err != nil {
				return fmt.Errorf("--file %s: %w", flag, err)
			}
			if err := s.setInput(ctx, id, file); err != nil {
				return err
			}
		case models.InputTypeFileArray:
			file, err := s.files.Load(ctx, loc)
			if err != nil {
				return fmt.Errorf("--file %s: %w", flag, err)
			}
			if _, seen := arrays[id]; !seen {
				order = append(order, id)
			}
			arrays[id] = append(arrays[id], file)
		case models.InputTypeStringArray:
			_, data, err := s.files.Read(ctx, loc)
			if err != nil {
				return fmt.Errorf("--file %s: %w", flag, err)
			}
			text := strings.ReplaceAll(string(data), "\r\n", "\n")
			values := editor.SplitValues(strings.TrimRight(text, "\r\n"))
			if err := s.setInput(ctx, id, values); err != nil {
				return err
			}
		default:
			return fmt.Errorf("--file %s: input '%s' is of type %s and cannot be read from a file", flag, id, ed.Input().Type)
		}
	}

	for _, id := range order {
		if err := s.setInput(ctx, id, arrays[id]); err != nil {
			return err
		}
	}
	return nil
}

func (s *submitSession) setInput(ctx context.Context, id string, raw any) error {
	warning, err := s.ctrl.SetInput(ctx, id, raw)
	if err != nil {
		return fmt.Errorf("failed to set input %s: %w", id, err)
	}
	if warning != "" {
		render.Warnings(s.errOut, map[string]string{id: warning})
	}
	return nil
}

func splitAssignment(flag, value string) (string, string, error) {
	id, rest, ok := strings.Cut(value, "=")
	id = strings.TrimSpace(id)
	if !ok || id == "" {
		return "", "", fmt.Errorf("%s %q: expected id=value", flag, value)
	}
	return id, rest, nil
}

// parseInputText turns the text of an --input flag into a raw editor value.
func parseInputText(in models.ExpectedInput, text string) (any, error) {
	switch in.Type {
	case models.InputTypeStringArray:
		return editor.SplitValues(text), nil
	case models.InputTypeSQL:
		var sel map[string]any
		if err := json.Unmarshal([]byte(text), &sel); err != nil {
			return nil, fmt.Errorf(`--input %s: expected a JSON query such as {"table":"t","columns":["a"]}: %w`, in.ID, err)
		}
		return sel, nil
	case models.InputTypeFile, models.InputTypeFileArray:
		return nil, fmt.Errorf("--input %s: use --file %s=<location> for file inputs", in.ID, in.ID)
	default:
		return text, nil
	}
}

func (s *submitSession) editing() (workflow.Editing, error) {
	ed, ok := s.ctrl.State().(workflow.Editing)
	if !ok {
		return workflow.Editing{}, fmt.Errorf("unexpected workflow state: %s", workflow.Describe(s.ctrl.State()))
	}
	return ed, nil
}

// runScripted checks the request and either saves or submits it.
func (s *submitSession) runScripted(ctx context.Context) error {
	ed, err := s.editing()
	if err != nil {
		return err
	}
	if !isReady(ed.Aggregate) {
		render.Aggregate(s.errOut, ed.Aggregate)
		return errIncomplete
	}

	if s.opts.download != "" {
		return s.save(ctx, s.opts.download)
	}
	_, err = s.submit(ctx)
	return err
}

func isReady(u editor.RequestUpdate) bool {
	_, ok := editor.RequestOf(u)
	return ok
}

// submit sends the request and waits for the outcome.
func (s *submitSession) submit(ctx context.Context) (string, error) {
	if err := s.ctrl.Submit(ctx); err != nil {
		return "", err
	}
	st, err := s.ctrl.Wait(ctx, func(st workflow.State) bool {
		ed, editing := st.(workflow.Editing)
		return st.Kind() == workflow.KindSubmitted || (editing && !ed.Submitting)
	})
	if err != nil {
		return "", err
	}

	switch st := st.(type) {
	case workflow.Submitted:
		s.log.Info().Str("job_id", st.JobID).Str("spec", st.Request.Spec).Msg("Job submitted")
		fmt.Fprintln(s.out, st.JobID)
		return st.JobID, nil
	case workflow.Editing:
		return "", fmt.Errorf("%w: %w", errSubmitFailed, st.SubmitErr)
	default:
		return "", fmt.Errorf("unexpected workflow state: %s", workflow.Describe(st))
	}
}

// save writes the request as JSON to path.
func (s *submitSession) save(ctx context.Context, path string) error {
	path, err := localpath.Expand(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := s.ctrl.Download(ctx, f); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to save request: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to save request: %w", err)
	}
	fmt.Fprintf(s.errOut, "Request saved to %s\n", path)
	return nil
}

// runInteractive shows the request and the editing menu until the user
// submits or quits.
func (s *submitSession) runInteractive(ctx context.Context) error {
	var shownSubmitErr error
	for {
		ed, err := s.editing()
		if err != nil {
			return err
		}

		fmt.Fprintln(s.errOut)
		fmt.Fprintf(s.errOut, "Job spec: %s (%s)\n", render.Text(ed.Form.Spec().Name), ed.Form.Spec().ID)
		fmt.Fprintf(s.errOut, "Job name: %s\n", ed.Form.JobName())
		render.Form(s.errOut, ed.Form)
		ready := render.Aggregate(s.errOut, ed.Aggregate)
		if ed.SubmitErr != nil && ed.SubmitErr != shownSubmitErr {
			fmt.Fprintf(s.errOut, "Submission failed: %s\n", render.Error(ed.SubmitErr))
			shownSubmitErr = ed.SubmitErr
		}

		action, err := s.asker.AskAction(ctx, ready)
		if err != nil {
			return s.quit(err)
		}

		switch action {
		case prompt.ActionEditInput:
			err = s.editInput(ctx, ed.Form)
		case prompt.ActionEditJobName:
			var name string
			if name, err = s.asker.AskJobName(ctx, ed.Form.JobName()); err == nil {
				err = s.ctrl.SetJobName(ctx, name)
			}
		case prompt.ActionChangeSpec:
			err = s.changeSpec(ctx, ed)
		case prompt.ActionSave:
			err = s.askSave(ctx)
		case prompt.ActionSubmit:
			var done bool
			if done, err = s.confirmAndSubmit(ctx, ed); done && err == nil {
				return nil
			}
		case prompt.ActionQuit:
			return s.quit(nil)
		}

		switch {
		case err == nil, errors.Is(err, prompt.ErrKeep):
		case errors.Is(err, prompt.ErrAborted), errors.Is(err, context.Canceled):
			return s.quit(err)
		default:
			fmt.Fprintf(s.errOut, "Error: %s\n", render.Error(err))
		}
	}
}

func (s *submitSession) quit(err error) error {
	if err != nil && !errors.Is(err, prompt.ErrAborted) {
		return err
	}
	fmt.Fprintln(s.errOut, "Nothing was submitted.")
	return nil
}

func (s *submitSession) editInput(ctx context.Context, form *editor.Form) error {
	id, err := s.asker.AskWhichInput(ctx, form)
	if err != nil {
		return err
	}
	ed, _ := form.Editor(id)
	raw, err := s.asker.AskInput(ctx, ed)
	if err != nil {
		return err
	}
	return s.setInput(ctx, id, raw)
}

func (s *submitSession) changeSpec(ctx context.Context, ed workflow.Editing) error {
	current := ed.Form.Spec().ID
	specID, err := s.asker.AskSpec(ctx, ed.Specs, current)
	if err != nil {
		return err
	}
	if specID == current {
		return nil
	}
	if err := s.ctrl.SelectSpec(ctx, specID); err != nil {
		return err
	}
	next, err := s.waitEditing(ctx)
	if err != nil {
		return err
	}
	render.Warnings(s.errOut, next.Form.Warnings())
	return nil
}

func (s *submitSession) askSave(ctx context.Context) error {
	def := s.opts.download
	if def == "" {
		def = "request.json"
	}
	path, err := s.driver.Input(ctx, prompt.InputConfig{Message: "Save request to:", Default: def})
	if err != nil {
		return err
	}
	return s.save(ctx, strings.TrimSpace(path))
}

// confirmAndSubmit reports whether the job was submitted.
func (s *submitSession) confirmAndSubmit(ctx context.Context, ed workflow.Editing) (bool, error) {
	if !s.opts.yes {
		ok, err := s.driver.Confirm(ctx, prompt.ConfirmConfig{
			Message: fmt.Sprintf("Submit %q using job spec %s?", ed.Form.JobName(), ed.Form.Spec().ID),
			Default: true,
		})
		if err != nil || !ok {
			return false, err
		}
	}
	jobID, err := s.submit(ctx)
	if errors.Is(err, errSubmitFailed) {
		// Shown with the form on the next round.
		s.log.Debug().Err(err).Msg("Submission failed")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	fmt.Fprintf(s.errOut, "Submitted job %s. Follow it with: jobson-cli jobs follow %s\n", jobID, jobID)
	return true, nil
}
