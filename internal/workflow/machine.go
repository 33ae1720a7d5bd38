package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jobson/jobson-cli/internal/editor"
	"github.com/jobson/jobson-cli/internal/logging"
	"github.com/jobson/jobson-cli/internal/models"
)

var (
	// ErrInconsistentState is returned when a request is submitted or
	// downloaded while the aggregate holds errors. Callers gate these actions on
	// the aggregate, so reaching it is a bug.
	ErrInconsistentState = errors.New("inconsistent workflow state")
	// ErrNotEditing is returned by editing operations outside the Editing state.
	ErrNotEditing = errors.New("not editing a job request")
	// ErrSubmitInProgress is returned by edits made while a submission is in flight.
	ErrSubmitInProgress = errors.New("a job submission is in progress")
	// ErrNothingToRetry is returned by Retry when the current state has no failure.
	ErrNothingToRetry = errors.New("nothing to retry")
)

// Options configures where the workflow starts.
type Options struct {
	// BasedOnJobID pre-populates the request from an existing job.
	BasedOnJobID string
	// SpecID pre-selects a spec. Ignored when BasedOnJobID is set.
	SpecID string
}

// Machine is the pure workflow state machine. It holds the current state and
// returns the backend calls each transition needs; it never performs them.
// A Machine is not safe for concurrent use.
type Machine struct {
	opts  Options
	state State
	gen   uint64
	log   *logging.Logger
}

// NewMachine creates a machine in LoadingSpecs. Call Start to obtain the first
// effect.
func NewMachine(opts Options, log *logging.Logger) *Machine {
	if log == nil {
		log = logging.Nop()
	}
	return &Machine{opts: opts, state: LoadingSpecs{}, log: log}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Generation returns the generation of the current state. Results from any
// other generation are stale.
func (m *Machine) Generation() uint64 { return m.gen }

// enter replaces the state and starts a new generation.
func (m *Machine) enter(s State) uint64 {
	m.gen++
	m.state = s
	return m.gen
}

// Start enters LoadingSpecs and returns the fetch for the spec summaries.
func (m *Machine) Start() Effect {
	gen := m.enter(LoadingSpecs{})
	return FetchSpecSummaries{Gen: gen}
}

// Handle applies a backend result and returns the next effect, if any.
// Results that belong to an earlier generation are discarded.
func (m *Machine) Handle(r Result) Effect {
	if r.Generation() != m.gen {
		m.log.Debug().
			Uint64("result_gen", r.Generation()).
			Uint64("current_gen", m.gen).
			Str("result", fmt.Sprintf("%T", r)).
			Msg("Discarding stale result")
		return nil
	}

	switch st := m.state.(type) {
	case LoadingSpecs:
		if res, ok := r.(SpecSummariesLoaded); ok {
			return m.onSpecSummaries(st, res)
		}
	case LoadingExistingJob:
		return m.onExistingJobResult(st, r)
	case LoadingSpec:
		if res, ok := r.(SpecLoaded); ok {
			return m.onSpecLoaded(st, res)
		}
	case Editing:
		if res, ok := r.(RequestSubmitted); ok {
			return m.onSubmitted(st, res)
		}
	}

	m.log.Warn().
		Str("state", m.state.Kind().String()).
		Str("result", fmt.Sprintf("%T", r)).
		Msg("Ignoring result that does not belong to the current state")
	return nil
}

func (m *Machine) onSpecSummaries(st LoadingSpecs, res SpecSummariesLoaded) Effect {
	if res.Err != nil {
		st.Err = res.Err
		m.state = st
		return nil
	}

	switch {
	case m.opts.BasedOnJobID != "":
		return m.loadExistingJob(res.Specs)
	case len(res.Specs) == 0:
		m.enter(NoSpecsAvailable{})
		return nil
	default:
		specID := m.opts.SpecID
		if specID == "" {
			specID = res.Specs[0].ID
		}
		return m.loadSpec(specID, res.Specs, models.NewDraftRequest())
	}
}

func (m *Machine) loadExistingJob(specs []models.JobSpecSummary) Effect {
	gen := m.enter(LoadingExistingJob{JobID: m.opts.BasedOnJobID, Specs: specs, Step: StepJobDetails})
	return FetchJobDetails{Gen: gen, JobID: m.opts.BasedOnJobID}
}

func (m *Machine) loadSpec(specID string, specs []models.JobSpecSummary, draft models.JobRequest) Effect {
	gen := m.enter(LoadingSpec{SpecID: specID, Specs: specs, Draft: draft})
	return FetchSpec{Gen: gen, SpecID: specID}
}

// onExistingJobResult advances the strictly sequential existing-job fetches.
func (m *Machine) onExistingJobResult(st LoadingExistingJob, r Result) Effect {
	fail := func(err error) Effect {
		st.Err = err
		m.state = st
		return nil
	}

	switch res := r.(type) {
	case JobDetailsLoaded:
		if st.Step != StepJobDetails {
			break
		}
		if res.Err != nil {
			return fail(res.Err)
		}
		st.details = res.Details
		st.Step = StepJobInputs
		gen := m.enter(st)
		return FetchJobInputs{Gen: gen, JobID: st.JobID}

	case JobInputsLoaded:
		if st.Step != StepJobInputs {
			break
		}
		if res.Err != nil {
			return fail(res.Err)
		}
		st.inputs = res.Inputs
		st.Step = StepOriginalSpec
		gen := m.enter(st)
		return FetchJobSpecForJob{Gen: gen, JobID: st.JobID}

	case JobSpecForJobLoaded:
		if st.Step != StepOriginalSpec {
			break
		}
		if res.Err != nil {
			return fail(res.Err)
		}
		st.original = res.Spec
		st.Step = StepCurrentSpec
		gen := m.enter(st)
		return FetchSpec{Gen: gen, SpecID: st.original.ID}

	case SpecLoaded:
		if st.Step != StepCurrentSpec {
			break
		}
		if res.Err != nil {
			return fail(res.Err)
		}
		draft := models.JobRequest{Spec: st.original.ID, Name: st.details.Name, Inputs: st.inputs}
		m.edit(st.Specs, res.Spec, draft)
		return nil
	}

	m.log.Warn().
		Str("step", st.Step.String()).
		Str("result", fmt.Sprintf("%T", r)).
		Msg("Ignoring out of order existing job result")
	return nil
}

func (m *Machine) onSpecLoaded(st LoadingSpec, res SpecLoaded) Effect {
	if res.Err != nil {
		st.Err = res.Err
		m.state = st
		return nil
	}
	draft := st.Draft.Clone()
	draft.Spec = res.Spec.ID
	draft.Inputs = map[string]any{}
	m.edit(st.Specs, res.Spec, draft)
	return nil
}

// edit enters Editing, coercing draft against spec.
func (m *Machine) edit(specs []models.JobSpecSummary, spec models.JobSpec, draft models.JobRequest) {
	form := editor.NewForm(spec, draft)
	for id, warning := range form.Warnings() {
		m.log.Debug().Str("input", id).Str("warning", warning).Msg("Input coerced")
	}
	m.enter(Editing{Specs: specs, Form: form, Aggregate: form.Aggregate()})
}

func (m *Machine) onSubmitted(st Editing, res RequestSubmitted) Effect {
	if !st.Submitting {
		return nil
	}
	if res.Err != nil {
		st.Submitting = false
		st.SubmitErr = res.Err
		m.state = st
		return nil
	}
	req, _ := editor.RequestOf(st.Aggregate)
	m.enter(Submitted{JobID: res.JobID, Request: req})
	return nil
}

// Retry re-runs the failed fetch of the current state. In Editing it resubmits
// after a failed submission.
func (m *Machine) Retry() (Effect, error) {
	switch st := m.state.(type) {
	case LoadingSpecs:
		if st.Err != nil {
			return m.Start(), nil
		}
	case LoadingExistingJob:
		if st.Err != nil {
			return m.loadExistingJob(st.Specs), nil
		}
	case LoadingSpec:
		if st.Err != nil {
			return m.loadSpec(st.SpecID, st.Specs, st.Draft), nil
		}
	case Editing:
		if st.SubmitErr != nil && !st.Submitting {
			return m.Submit()
		}
	}
	return nil, fmt.Errorf("%w in state %s", ErrNothingToRetry, m.state.Kind())
}

func (m *Machine) editing() (Editing, error) {
	st, ok := m.state.(Editing)
	if !ok {
		return Editing{}, fmt.Errorf("%w: workflow is in state %s", ErrNotEditing, m.state.Kind())
	}
	if st.Submitting {
		return Editing{}, ErrSubmitInProgress
	}
	return st, nil
}

// SetJobName changes the job name and recomputes the aggregate.
func (m *Machine) SetJobName(name string) error {
	st, err := m.editing()
	if err != nil {
		return err
	}
	st.Form = st.Form.WithJobName(name)
	st.Aggregate = st.Form.Aggregate()
	m.state = st
	return nil
}

// SetInput feeds a user edit for one input through coercion and recomputes
// the aggregate. The returned string is the coercion warning, if any.
func (m *Machine) SetInput(id string, raw any) (string, error) {
	st, err := m.editing()
	if err != nil {
		return "", err
	}
	form, err := st.Form.WithInput(id, raw)
	if err != nil {
		return "", err
	}
	st.Form = form
	st.Aggregate = form.Aggregate()
	m.state = st

	e, _ := form.Editor(id)
	return e.Warning(), nil
}

// SelectSpec re-enters LoadingSpec for another spec, carrying the current
// request (or the partial draft, when the aggregate has errors) forward.
func (m *Machine) SelectSpec(specID string) (Effect, error) {
	st, err := m.editing()
	if err != nil {
		return nil, err
	}
	carried := editor.MatchRequest(st.Aggregate,
		func(req models.JobRequest) models.JobRequest { return req },
		func([]string) models.JobRequest { return st.Form.Draft() },
	)
	return m.loadSpec(specID, st.Specs, carried), nil
}

// Submit sends the aggregated request. A second call while a submission is in
// flight is ignored and returns a nil effect.
func (m *Machine) Submit() (Effect, error) {
	st, ok := m.state.(Editing)
	if !ok {
		return nil, fmt.Errorf("%w: workflow is in state %s", ErrNotEditing, m.state.Kind())
	}
	if st.Submitting {
		return nil, nil
	}
	req, ok := editor.RequestOf(st.Aggregate)
	if !ok {
		m.log.Error().
			Strs("errors", editor.ErrorsOf(st.Aggregate)).
			Msg("Incorrect state detected: attempted to submit a request when errors are present")
		return nil, ErrInconsistentState
	}
	st.Submitting = true
	st.SubmitErr = nil
	gen := m.enter(st)
	return SubmitRequest{Gen: gen, Request: req}, nil
}

// Download writes the aggregated request to w as indented JSON.
func (m *Machine) Download(w io.Writer) error {
	st, ok := m.state.(Editing)
	if !ok {
		return fmt.Errorf("%w: workflow is in state %s", ErrNotEditing, m.state.Kind())
	}
	req, ok := editor.RequestOf(st.Aggregate)
	if !ok {
		m.log.Error().
			Strs("errors", editor.ErrorsOf(st.Aggregate)).
			Msg("Incorrect state detected: attempted to download a request when errors are present")
		return ErrInconsistentState
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(req); err != nil {
		return fmt.Errorf("failed to write job request: %w", err)
	}
	return nil
}
