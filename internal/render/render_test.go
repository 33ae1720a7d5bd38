package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jobson/jobson-cli/internal/api"
	"github.com/jobson/jobson-cli/internal/editor"
	"github.com/jobson/jobson-cli/internal/models"
)

func TestText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"plain", "plain"},
		{"<b>bold</b> text", "bold text"},
		{"<script>alert(1)</script>safe", "safe"},
		{"a &amp; b", "a & b"},
		{"  line one\n\tline two  ", "line one line two"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Text(tt.in); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValue(t *testing.T) {
	many := make([]string, editor.InteractiveThreshold)
	for i := range many {
		many[i] = fmt.Sprint(i)
	}

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "-"},
		{"string", "abc", "abc"},
		{"number", json.Number("42"), "42"},
		{"small array", []string{"a", "b"}, "a, b"},
		{"large array", many, "500 values: 0, 1, 2, 3, 4 ... 495, 496, 497, 498, 499"},
		{"decoded array", []any{"x", json.Number("1")}, "x, 1"},
		{"file", models.FileInput{Filename: "in.csv"}, "in.csv"},
		{"files", []models.FileInput{{Filename: "a"}, {Filename: "b"}}, "a, b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Value(tt.in); got != tt.want {
				t.Errorf("Value() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSpecSummaries(t *testing.T) {
	var buf bytes.Buffer
	err := SpecSummaries(&buf, []models.JobSpecSummary{
		{ID: "echo", Name: "<i>Echo</i>", Description: "Echoes input"},
		{ID: "sleep", Name: "Sleep"},
	})
	if err != nil {
		t.Fatalf("SpecSummaries failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	want := []string{
		"ID     NAME   DESCRIPTION",
		"echo   Echo   Echoes input",
		"sleep  Sleep",
	}
	if diff := cmp.Diff(want, trimRight(lines)); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}

	buf.Reset()
	if err := SpecSummaries(&buf, nil); err != nil {
		t.Fatalf("SpecSummaries failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No job specs") {
		t.Errorf("expected empty message, got %q", buf.String())
	}
}

func TestSpec(t *testing.T) {
	spec := models.JobSpec{
		ID:   "demo",
		Name: "Demo",
		ExpectedInputs: []models.ExpectedInput{
			{ID: "count", Type: models.InputTypeInt, Default: json.RawMessage("3")},
			{ID: "mode", Type: models.InputTypeSelect, Options: []models.SelectOption{{ID: "fast", Name: "Fast"}}},
			{ID: "rows", Type: models.InputTypeSQL, Tables: []models.TableSchema{{
				ID:      "people",
				Columns: []models.ColumnSchema{{ID: "name", Type: "string"}, {ID: "age", Type: "int"}},
			}}},
		},
	}

	var buf bytes.Buffer
	if err := Spec(&buf, spec); err != nil {
		t.Fatalf("Spec failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Demo (demo)", "count", "3", "mode options:", "fast", "Fast", "people (name string, age int)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestJobDetails(t *testing.T) {
	job := models.JobDetails{
		ID:    "job-1",
		Name:  "first",
		Owner: "alice",
		Timestamps: []models.JobTimestamp{
			{Status: "submitted", Time: "2024-01-01T00:00:00Z"},
			{Status: "running", Time: "2024-01-01T00:00:01Z"},
		},
	}
	var buf bytes.Buffer
	if err := JobDetails(&buf, job); err != nil {
		t.Fatalf("JobDetails failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"job-1", "alice", "Status:  running", "History:", "submitted"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestForm(t *testing.T) {
	spec := models.JobSpec{
		ID: "demo",
		ExpectedInputs: []models.ExpectedInput{
			{ID: "message", Type: models.InputTypeString},
			{ID: "count", Type: models.InputTypeInt, Default: json.RawMessage("3")},
			{ID: "size", Type: models.InputTypeInt},
			{ID: "data", Type: models.InputTypeFile},
		},
	}
	req := models.JobRequest{Name: "run", Inputs: map[string]any{"message": "hi", "size": "big"}}

	var buf bytes.Buffer
	if err := Form(&buf, editor.NewForm(spec, req)); err != nil {
		t.Fatalf("Form failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Job name:", "run", "message:", "hi", "count:", "3", "size:", "(invalid) big: is not a number", "data:", "(missing)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAggregate(t *testing.T) {
	var buf bytes.Buffer
	ok := Aggregate(&buf, editor.RequestErrors("a: is missing", "b: is not a number"))
	if ok {
		t.Error("expected errors to block submission")
	}
	if !strings.Contains(buf.String(), "  - a: is missing\n  - b: is not a number\n") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}

	buf.Reset()
	ok = Aggregate(&buf, editor.RequestValue(models.JobRequest{Spec: "demo", Name: "run", Inputs: map[string]any{}}))
	if !ok {
		t.Error("expected request to be ready")
	}
	if !strings.Contains(buf.String(), `"run"`) {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestWarnings(t *testing.T) {
	var buf bytes.Buffer
	Warnings(&buf, map[string]string{"b": "reset", "a": "also reset"})
	want := "warning: a: also reset\nwarning: b: reset\n"
	if buf.String() != want {
		t.Errorf("Warnings() = %q, want %q", buf.String(), want)
	}
}

func TestError(t *testing.T) {
	connErr := fmt.Errorf("listing specs: %w", &api.Error{Message: "Connection error", Err: errors.New("dial tcp: refused")})
	if got := Error(connErr); !strings.Contains(got, "check that the server is running") {
		t.Errorf("expected connection hint, got %q", got)
	}

	apiErr := &api.Error{Code: 404, Message: "job not found"}
	if got := Error(apiErr); got != "job not found (HTTP 404)" {
		t.Errorf("Error() = %q", got)
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := JSON(&buf, models.UserID{ID: "alice"}); err != nil {
		t.Fatalf("JSON failed: %v", err)
	}
	if buf.String() != "{\n  \"id\": \"alice\"\n}\n" {
		t.Errorf("JSON() = %q", buf.String())
	}
}

func trimRight(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.TrimRight(l, " ")
	}
	return out
}
