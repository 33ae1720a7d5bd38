package editor

import (
	"errors"
	"fmt"

	"github.com/jobson/jobson-cli/internal/models"
)

// ErrUnknownInput is returned when an edit names an input the spec does not declare.
var ErrUnknownInput = errors.New("unknown input")

// Form is the set of editors for one spec plus the job name. It is immutable;
// edits return a new Form.
type Form struct {
	spec    models.JobSpec
	name    string
	editors []Editor
}

// NewForm coerces every input of suggested against spec.
func NewForm(spec models.JobSpec, suggested models.JobRequest) *Form {
	name := suggested.Name
	if name == "" {
		name = models.DefaultJobName
	}
	editors := make([]Editor, 0, len(spec.ExpectedInputs))
	for _, in := range spec.ExpectedInputs {
		v, ok := suggested.Inputs[in.ID]
		editors = append(editors, New(in, v, ok))
	}
	return &Form{spec: spec, name: name, editors: editors}
}

// Spec returns the spec the form edits against.
func (f *Form) Spec() models.JobSpec { return f.spec }

// JobName returns the job name as typed.
func (f *Form) JobName() string { return f.name }

// Editors returns the editors in spec order.
func (f *Form) Editors() []Editor { return append([]Editor(nil), f.editors...) }

// Editor returns the editor for an input id.
func (f *Form) Editor(id string) (Editor, bool) {
	for _, e := range f.editors {
		if e.Input().ID == id {
			return e, true
		}
	}
	return nil, false
}

// WithJobName returns a copy of the form with a new job name.
func (f *Form) WithJobName(name string) *Form {
	next := *f
	next.name = name
	return &next
}

// WithInput returns a copy of the form with one input edited.
func (f *Form) WithInput(id string, raw any) (*Form, error) {
	for i, e := range f.editors {
		if e.Input().ID != id {
			continue
		}
		next := *f
		next.editors = append([]Editor(nil), f.editors...)
		next.editors[i] = e.Set(raw)
		return &next, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownInput, id)
}

// Updates returns the current update of every input keyed by id.
func (f *Form) Updates() map[string]InputUpdate {
	out := make(map[string]InputUpdate, len(f.editors))
	for _, e := range f.editors {
		out[e.Input().ID] = e.Update()
	}
	return out
}

// Warnings returns the coercion warnings keyed by input id.
func (f *Form) Warnings() map[string]string {
	out := make(map[string]string)
	for _, e := range f.editors {
		if w := e.Warning(); w != "" {
			out[e.Input().ID] = w
		}
	}
	return out
}

// Draft returns the partial request the form currently represents: the job
// name and the raw state of every input.
func (f *Form) Draft() models.JobRequest {
	req := models.JobRequest{Spec: f.spec.ID, Name: f.name, Inputs: make(map[string]any, len(f.editors))}
	for _, e := range f.editors {
		if raw := e.Raw(); raw != nil {
			req.Inputs[e.Input().ID] = raw
		}
	}
	return req
}

// Aggregate recomputes the request update from every editor.
func (f *Form) Aggregate() RequestUpdate {
	return Recompute(f.name, f.Updates(), f.spec)
}
