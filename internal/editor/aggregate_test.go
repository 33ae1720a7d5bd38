package editor

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jobson/jobson-cli/internal/models"
)

func specWith(inputs ...models.ExpectedInput) models.JobSpec {
	return models.JobSpec{ID: "spec-1", Name: "Spec", ExpectedInputs: inputs}
}

func TestRecompute(t *testing.T) {
	xy := specWith(
		models.ExpectedInput{ID: "x", Type: "string"},
		models.ExpectedInput{ID: "y", Type: "int"},
	)

	tests := []struct {
		name    string
		jobName string
		updates map[string]InputUpdate
		spec    models.JobSpec
		want    RequestUpdate
	}{
		{
			name:    "all values",
			jobName: "run",
			updates: map[string]InputUpdate{"x": Value("a"), "y": Value(int64(1))},
			spec:    xy,
			want: RequestValue(models.JobRequest{Spec: "spec-1", Name: "run", Inputs: map[string]any{
				"x": "a", "y": int64(1),
			}}),
		},
		{
			name:    "absent update counts as missing",
			jobName: "run",
			updates: map[string]InputUpdate{"x": Value("a")},
			spec:    xy,
			want:    RequestErrors("y: is missing"),
		},
		{
			name:    "missing with default is omitted",
			jobName: "run",
			updates: map[string]InputUpdate{"x": Missing()},
			spec: specWith(
				models.ExpectedInput{ID: "x", Type: "int", Default: json.RawMessage(`0`)},
			),
			want: RequestValue(models.JobRequest{Spec: "spec-1", Name: "run", Inputs: map[string]any{}}),
		},
		{
			name:    "missing before erroneous",
			jobName: "run",
			updates: map[string]InputUpdate{"x": Errors("bad", "worse"), "y": Missing()},
			spec:    xy,
			want:    RequestErrors("y: is missing", "x: bad,worse"),
		},
		{
			name:    "blank job name becomes default",
			jobName: "  ",
			updates: map[string]InputUpdate{},
			spec:    specWith(),
			want:    RequestValue(models.JobRequest{Spec: "spec-1", Name: "default", Inputs: map[string]any{}}),
		},
		{
			name:    "duplicate id is erroneous",
			jobName: "run",
			updates: map[string]InputUpdate{"x": Value("a")},
			spec: specWith(
				models.ExpectedInput{ID: "x", Type: "string"},
				models.ExpectedInput{ID: "x", Type: "string"},
			),
			want: RequestErrors("x: is declared more than once by the job spec"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Recompute(tt.jobName, tt.updates, tt.spec)
			if diff := cmp.Diff(requestViewOf(tt.want), requestViewOf(got)); diff != "" {
				t.Errorf("Recompute() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

type requestView struct {
	Request *models.JobRequest
	Errors  []string
}

func requestViewOf(u RequestUpdate) requestView {
	return MatchRequest(u,
		func(r models.JobRequest) requestView { return requestView{Request: &r} },
		func(errs []string) requestView { return requestView{Errors: errs} },
	)
}
