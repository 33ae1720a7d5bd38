package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jobson/jobson-cli/internal/editor"
	"github.com/jobson/jobson-cli/internal/models"
	"github.com/jobson/jobson-cli/internal/render"
)

// FileSource resolves file input locations.
type FileSource interface {
	Load(ctx context.Context, location string) (models.FileInput, error)
	Read(ctx context.Context, location string) (string, []byte, error)
}

// Asker turns editors into questions and answers into raw editor values.
type Asker struct {
	Driver Driver
	Files  FileSource
	Out    io.Writer
}

// ErrKeep is returned by AskInput when the user left an input unchanged.
var ErrKeep = errors.New("input unchanged")

// AskJobName asks for the job name.
func (a *Asker) AskJobName(ctx context.Context, current string) (string, error) {
	return a.Driver.Input(ctx, InputConfig{
		Message: "Job name:",
		Default: current,
		Validator: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("a job name is required")
			}
			return nil
		},
	})
}

// AskSpec asks which spec to use and returns its id.
func (a *Asker) AskSpec(ctx context.Context, specs []models.JobSpecSummary, current string) (string, error) {
	if len(specs) == 0 {
		return "", errors.New("no job specs available")
	}
	options := make([]string, len(specs))
	def := 0
	for i, s := range specs {
		options[i] = fmt.Sprintf("%s - %s", s.ID, render.Text(s.Name))
		if s.ID == current {
			def = i
		}
	}
	i, err := a.Driver.Select(ctx, SelectConfig{Message: "Job spec:", Options: options, DefaultIndex: def, PageSize: 15})
	if err != nil {
		return "", err
	}
	if i < 0 {
		return "", ErrKeep
	}
	return specs[i].ID, nil
}

// AskInput asks for a new value of the input ed edits. The returned value is
// passed to the editor's Set; ErrKeep means the current value stays.
func (a *Asker) AskInput(ctx context.Context, ed editor.Editor) (any, error) {
	in := ed.Input()
	message := render.Text(in.DisplayName()) + ":"
	help := render.Text(in.Description)

	switch in.Type {
	case models.InputTypeString:
		s, _ := ed.Raw().(string)
		return a.Driver.Input(ctx, InputConfig{Message: message, Default: s, Help: help})

	case models.InputTypeInt, models.InputTypeLong, models.InputTypeFloat, models.InputTypeDouble:
		s, _ := ed.Raw().(string)
		return a.Driver.Input(ctx, InputConfig{
			Message:   message,
			Default:   s,
			Help:      help,
			Validator: validatorFor(ed),
		})

	case models.InputTypeSelect:
		return a.askSelect(ctx, ed, message, help)

	case models.InputTypeStringArray:
		return a.askStringArray(ctx, ed, message, help)

	case models.InputTypeFile:
		loc, err := a.Driver.Input(ctx, InputConfig{
			Message: message,
			Help:    "Local path, s3://bucket/key or an Azure blob URL. Leave empty to keep the current file.",
		})
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(loc) == "" {
			return nil, ErrKeep
		}
		return a.Files.Load(ctx, strings.TrimSpace(loc))

	case models.InputTypeFileArray:
		text, err := a.Driver.Input(ctx, InputConfig{
			Message: message,
			Help:    "Comma separated file locations. Leave empty to keep the current files.",
		})
		if err != nil {
			return nil, err
		}
		var files []models.FileInput
		for _, loc := range editor.SplitValues(text) {
			loc = strings.TrimSpace(loc)
			if loc == "" {
				continue
			}
			f, err := a.Files.Load(ctx, loc)
			if err != nil {
				return nil, err
			}
			files = append(files, f)
		}
		if len(files) == 0 {
			return nil, ErrKeep
		}
		return files, nil

	case models.InputTypeSQL:
		return a.askQuery(ctx, ed, message)

	default:
		return nil, fmt.Errorf("cannot edit %s: unsupported input type '%s'", in.ID, in.Type)
	}
}

// validatorFor rejects text the editor would turn into errors.
func validatorFor(ed editor.Editor) func(string) error {
	return func(s string) error {
		return editor.MatchInput(ed.Set(s).Update(),
			func(any) error { return nil },
			func() error { return nil },
			func(errs []string) error { return errors.New(strings.Join(errs, "; ")) },
		)
	}
}

func (a *Asker) askSelect(ctx context.Context, ed editor.Editor, message, help string) (any, error) {
	in := ed.Input()
	current, _ := ed.Raw().(string)
	options := make([]string, len(in.Options))
	def := 0
	for i, o := range in.Options {
		options[i] = render.Text(o.Label())
		if o.ID == current {
			def = i
		}
	}
	i, err := a.Driver.Select(ctx, SelectConfig{Message: message, Options: options, DefaultIndex: def, Help: help})
	if err != nil {
		return nil, err
	}
	if i < 0 {
		return nil, ErrKeep
	}
	return in.Options[i].ID, nil
}

func (a *Asker) askStringArray(ctx context.Context, ed editor.Editor, message, help string) (any, error) {
	values, _ := ed.Raw().([]string)
	if editor.Interactive(values) {
		text, err := a.Driver.TextArea(ctx, TextAreaConfig{
			Message: message,
			Default: editor.JoinValues(values),
			Help:    "One value per line or comma separated.",
		})
		if err != nil {
			return nil, err
		}
		return editor.SplitValues(text), nil
	}

	// Too many values to edit in place; offer to replace them from a file.
	fmt.Fprintf(a.Out, "%s currently holds %s\n", ed.Input().ID, render.Value(values))
	loc, err := a.Driver.Input(ctx, InputConfig{
		Message: message,
		Help:    "Location of a file with one value per line. Leave empty to keep the current values.",
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(loc) == "" {
		return nil, ErrKeep
	}
	_, data, err := a.Files.Read(ctx, strings.TrimSpace(loc))
	if err != nil {
		return nil, err
	}
	return editor.SplitValues(strings.TrimRight(string(data), "\n")), nil
}

func (a *Asker) askQuery(ctx context.Context, ed editor.Editor, message string) (any, error) {
	in := ed.Input()
	if len(in.Tables) == 0 {
		return nil, fmt.Errorf("%s has no tables to query", in.ID)
	}
	current, _ := ed.Raw().(editor.QuerySelection)

	table := in.Tables[0]
	if len(in.Tables) > 1 {
		names := make([]string, len(in.Tables))
		def := 0
		for i, t := range in.Tables {
			names[i] = t.ID
			if t.ID == current.Table {
				def = i
			}
		}
		i, err := a.Driver.Select(ctx, SelectConfig{Message: message + " table", Options: names, DefaultIndex: def})
		if err != nil {
			return nil, err
		}
		if i >= 0 {
			table = in.Tables[i]
		}
	}

	columns := make([]string, len(table.Columns))
	var defaults []int
	for i, c := range table.Columns {
		columns[i] = c.ID
		if current.Table == table.ID && contains(current.Columns, c.ID) {
			defaults = append(defaults, i)
		}
	}
	picked, err := a.Driver.MultiSelect(ctx, SelectConfig{
		Message:  message + " columns",
		Options:  columns,
		Defaults: defaults,
		PageSize: 15,
	})
	if err != nil {
		return nil, err
	}

	sel := editor.QuerySelection{Table: table.ID, Columns: []string{}}
	for _, i := range picked {
		col := table.Columns[i]
		sel.Columns = append(sel.Columns, col.ID)

		f, err := a.askFilter(ctx, col)
		if err != nil {
			return nil, err
		}
		if f != nil {
			sel.Filters = append(sel.Filters, *f)
		}
	}
	return sel, nil
}

func (a *Asker) askFilter(ctx context.Context, col models.ColumnSchema) (*editor.ColumnFilter, error) {
	kinds := editor.FiltersFor(col.Type)
	if len(kinds) < 2 {
		return nil, nil
	}
	labels := make([]string, len(kinds))
	for i, k := range kinds {
		labels[i] = k.Label()
	}
	i, err := a.Driver.Select(ctx, SelectConfig{Message: fmt.Sprintf("Filter on %s:", col.ID), Options: labels})
	if err != nil {
		return nil, err
	}
	if i < 0 || kinds[i] == editor.FilterUnfiltered {
		return nil, nil
	}

	f := &editor.ColumnFilter{Column: col.ID, Kind: kinds[i]}
	switch f.Kind {
	case editor.FilterBetween:
		if f.Min, err = a.Driver.Input(ctx, InputConfig{Message: "From:"}); err != nil {
			return nil, err
		}
		if f.Max, err = a.Driver.Input(ctx, InputConfig{Message: "To:"}); err != nil {
			return nil, err
		}
	case editor.FilterIn:
		text, err := a.Driver.Input(ctx, InputConfig{Message: "Values (comma separated):"})
		if err != nil {
			return nil, err
		}
		for _, v := range editor.SplitValues(text) {
			if v = strings.TrimSpace(v); v != "" {
				f.Values = append(f.Values, v)
			}
		}
	default:
		if f.Value, err = a.Driver.Input(ctx, InputConfig{Message: "Value:"}); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
