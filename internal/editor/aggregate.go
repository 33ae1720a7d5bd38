package editor

import (
	"strings"

	"github.com/jobson/jobson-cli/internal/models"
)

// Recompute folds the per-input updates of a spec into a request update.
//
// Inputs are visited in spec order; an input with no entry in updates counts as
// missing. A missing input is acceptable only when the spec declares a default
// for it. Messages for missing inputs precede messages for erroneous ones.
func Recompute(jobName string, updates map[string]InputUpdate, spec models.JobSpec) RequestUpdate {
	if strings.TrimSpace(jobName) == "" {
		jobName = models.DefaultJobName
	}

	values := make(map[string]any, len(spec.ExpectedInputs))
	seen := make(map[string]bool, len(spec.ExpectedInputs))
	var missing, erroneous []string

	for _, in := range spec.ExpectedInputs {
		id := in.ID
		if seen[id] {
			// Each id must land in exactly one category.
			erroneous = append(erroneous, id+": is declared more than once by the job spec")
			continue
		}
		seen[id] = true

		update, ok := updates[id]
		if !ok {
			update = Missing()
		}
		update.Visit(InputFuncs{
			OnValue: func(v any) {
				values[id] = v
			},
			OnMissing: func() {
				if !in.HasDefault() {
					missing = append(missing, id+": is missing")
				}
			},
			OnErrors: func(errs []string) {
				erroneous = append(erroneous, id+": "+strings.Join(errs, ","))
			},
		})
	}

	if len(missing) == 0 && len(erroneous) == 0 {
		return RequestValue(models.JobRequest{Spec: spec.ID, Name: jobName, Inputs: values})
	}
	return RequestErrors(append(missing, erroneous...)...)
}
