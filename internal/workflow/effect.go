package workflow

import "github.com/jobson/jobson-cli/internal/models"

// Effect is a backend call requested by the Machine. Each effect carries the
// generation of the state that asked for it; the matching Result must carry it
// back.
type Effect interface {
	Generation() uint64
	sealedEffect()
}

type FetchSpecSummaries struct{ Gen uint64 }

type FetchSpec struct {
	Gen    uint64
	SpecID string
}

type FetchJobDetails struct {
	Gen   uint64
	JobID string
}

type FetchJobInputs struct {
	Gen   uint64
	JobID string
}

type FetchJobSpecForJob struct {
	Gen   uint64
	JobID string
}

type SubmitRequest struct {
	Gen     uint64
	Request models.JobRequest
}

func (e FetchSpecSummaries) Generation() uint64 { return e.Gen }
func (e FetchSpec) Generation() uint64          { return e.Gen }
func (e FetchJobDetails) Generation() uint64    { return e.Gen }
func (e FetchJobInputs) Generation() uint64     { return e.Gen }
func (e FetchJobSpecForJob) Generation() uint64 { return e.Gen }
func (e SubmitRequest) Generation() uint64      { return e.Gen }
func (FetchSpecSummaries) sealedEffect()        {}
func (FetchSpec) sealedEffect()                 {}
func (FetchJobDetails) sealedEffect()           {}
func (FetchJobInputs) sealedEffect()            {}
func (FetchJobSpecForJob) sealedEffect()        {}
func (SubmitRequest) sealedEffect()             {}

// Result is the outcome of an Effect, fed back through Machine.Handle.
type Result interface {
	Generation() uint64
	sealedResult()
}

type SpecSummariesLoaded struct {
	Gen   uint64
	Specs []models.JobSpecSummary
	Err   error
}

type SpecLoaded struct {
	Gen  uint64
	Spec models.JobSpec
	Err  error
}

type JobDetailsLoaded struct {
	Gen     uint64
	Details models.JobDetails
	Err     error
}

type JobInputsLoaded struct {
	Gen    uint64
	Inputs map[string]any
	Err    error
}

type JobSpecForJobLoaded struct {
	Gen  uint64
	Spec models.JobSpec
	Err  error
}

type RequestSubmitted struct {
	Gen   uint64
	JobID string
	Err   error
}

func (r SpecSummariesLoaded) Generation() uint64 { return r.Gen }
func (r SpecLoaded) Generation() uint64          { return r.Gen }
func (r JobDetailsLoaded) Generation() uint64    { return r.Gen }
func (r JobInputsLoaded) Generation() uint64     { return r.Gen }
func (r JobSpecForJobLoaded) Generation() uint64 { return r.Gen }
func (r RequestSubmitted) Generation() uint64    { return r.Gen }
func (SpecSummariesLoaded) sealedResult()        {}
func (SpecLoaded) sealedResult()                 {}
func (JobDetailsLoaded) sealedResult()           {}
func (JobInputsLoaded) sealedResult()            {}
func (JobSpecForJobLoaded) sealedResult()        {}
func (RequestSubmitted) sealedResult()           {}

// resultErr returns the backend error carried by r, if any.
func resultErr(r Result) error {
	switch r := r.(type) {
	case SpecSummariesLoaded:
		return r.Err
	case SpecLoaded:
		return r.Err
	case JobDetailsLoaded:
		return r.Err
	case JobInputsLoaded:
		return r.Err
	case JobSpecForJobLoaded:
		return r.Err
	case RequestSubmitted:
		return r.Err
	}
	return nil
}
