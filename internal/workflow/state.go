// Package workflow drives job submission: discovering specs, optionally loading
// an existing job to resubmit, loading the chosen spec, editing the request and
// submitting it.
package workflow

import (
	"github.com/jobson/jobson-cli/internal/editor"
	"github.com/jobson/jobson-cli/internal/models"
)

// StateKind identifies a workflow state.
type StateKind int

const (
	KindLoadingSpecs StateKind = iota
	KindLoadingExistingJob
	KindLoadingSpec
	KindEditing
	KindNoSpecsAvailable
	KindSubmitted
)

// String returns the string representation of the state kind
func (k StateKind) String() string {
	switch k {
	case KindLoadingSpecs:
		return "LoadingSpecs"
	case KindLoadingExistingJob:
		return "LoadingExistingJob"
	case KindLoadingSpec:
		return "LoadingSpec"
	case KindEditing:
		return "Editing"
	case KindNoSpecsAvailable:
		return "NoSpecsAvailable"
	case KindSubmitted:
		return "Submitted"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether the workflow can leave a state of this kind.
func (k StateKind) IsTerminal() bool {
	return k == KindNoSpecsAvailable || k == KindSubmitted
}

// State is exactly one of LoadingSpecs, LoadingExistingJob, LoadingSpec,
// Editing, NoSpecsAvailable or Submitted.
type State interface {
	Kind() StateKind
	sealedState()
}

// LoadingSpecs fetches the spec summaries.
type LoadingSpecs struct {
	// Err is set when the last fetch failed; Retry fetches again.
	Err error
}

// ExistingJobStep is the fetch LoadingExistingJob is on.
type ExistingJobStep int

const (
	StepJobDetails ExistingJobStep = iota
	StepJobInputs
	StepOriginalSpec
	StepCurrentSpec
)

func (s ExistingJobStep) String() string {
	switch s {
	case StepJobDetails:
		return "job details"
	case StepJobInputs:
		return "job inputs"
	case StepOriginalSpec:
		return "existing spec"
	case StepCurrentSpec:
		return "current spec"
	default:
		return "unknown step"
	}
}

// LoadingExistingJob fetches, in order, a job's details, its inputs, the spec
// it was submitted against and the current version of that spec.
type LoadingExistingJob struct {
	JobID string
	Specs []models.JobSpecSummary
	Step  ExistingJobStep
	// Err is set when the fetch for Step failed. Retry starts over from the
	// job details.
	Err error

	details  models.JobDetails
	inputs   map[string]any
	original models.JobSpec
}

// LoadingSpec fetches the full spec for SpecID.
type LoadingSpec struct {
	SpecID string
	Specs  []models.JobSpecSummary
	// Draft is merged with the spec once loaded: its spec id is replaced and
	// its inputs cleared.
	Draft models.JobRequest
	Err   error
}

// Editing holds the form for one spec and the live aggregate.
type Editing struct {
	Specs     []models.JobSpecSummary
	Form      *editor.Form
	Aggregate editor.RequestUpdate
	// Submitting is set while a submission is in flight.
	Submitting bool
	// SubmitErr is the error of the last failed submission.
	SubmitErr error
}

// NoSpecsAvailable is reached when the server offers no specs.
type NoSpecsAvailable struct{}

// Submitted is reached once the server accepted the request.
type Submitted struct {
	JobID   string
	Request models.JobRequest
}

func (LoadingSpecs) Kind() StateKind       { return KindLoadingSpecs }
func (LoadingExistingJob) Kind() StateKind { return KindLoadingExistingJob }
func (LoadingSpec) Kind() StateKind        { return KindLoadingSpec }
func (Editing) Kind() StateKind            { return KindEditing }
func (NoSpecsAvailable) Kind() StateKind   { return KindNoSpecsAvailable }
func (Submitted) Kind() StateKind          { return KindSubmitted }

func (LoadingSpecs) sealedState()       {}
func (LoadingExistingJob) sealedState() {}
func (LoadingSpec) sealedState()        {}
func (Editing) sealedState()            {}
func (NoSpecsAvailable) sealedState()   {}
func (Submitted) sealedState()          {}

// Settled reports whether s is not waiting on the backend: a loading state that
// failed, an idle editor, or a terminal state.
func Settled(s State) bool {
	switch st := s.(type) {
	case LoadingSpecs:
		return st.Err != nil
	case LoadingExistingJob:
		return st.Err != nil
	case LoadingSpec:
		return st.Err != nil
	case Editing:
		return !st.Submitting
	default:
		return true
	}
}

// Describe returns a one-line description of s for logs and status output.
func Describe(s State) string {
	switch st := s.(type) {
	case LoadingSpecs:
		if st.Err != nil {
			return "error loading job specs: " + st.Err.Error()
		}
		return "loading job specs"
	case LoadingExistingJob:
		if st.Err != nil {
			return "error loading " + st.Step.String() + " of job " + st.JobID + ": " + st.Err.Error()
		}
		return "loading " + st.Step.String() + " of job " + st.JobID
	case LoadingSpec:
		if st.Err != nil {
			return "error loading spec " + st.SpecID + ": " + st.Err.Error()
		}
		return "loading spec " + st.SpecID
	case Editing:
		switch {
		case st.Submitting:
			return "submitting job"
		case st.SubmitErr != nil:
			return "error submitting job: " + st.SubmitErr.Error()
		}
		return "editing request for spec " + st.Form.Spec().ID
	case NoSpecsAvailable:
		return "no job specs available"
	case Submitted:
		return "submitted job " + st.JobID
	default:
		return "unknown state"
	}
}
