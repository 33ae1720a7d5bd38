package models

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExpectedInput_HasDefault(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    bool
		wantVal any
	}{
		{"absent", "", false, nil},
		{"null", "null", false, nil},
		{"empty string", `""`, false, nil},
		{"string", `"abc"`, true, "abc"},
		{"zero", `0`, true, json.Number("0")},
		{"false", `false`, true, false},
		{"array", `["a","b"]`, true, []any{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := ExpectedInput{ID: "x", Type: InputTypeString}
			if tt.raw != "" {
				in.Default = json.RawMessage(tt.raw)
			}
			if got := in.HasDefault(); got != tt.want {
				t.Errorf("HasDefault() = %v, want %v", got, tt.want)
			}
			got, ok := in.DefaultValue()
			if ok != tt.want {
				t.Fatalf("DefaultValue() ok = %v, want %v", ok, tt.want)
			}
			if diff := cmp.Diff(tt.wantVal, got); diff != "" {
				t.Errorf("DefaultValue() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestJobSpec_DecodesWireFormat(t *testing.T) {
	body := `{
		"id": "spec-1",
		"name": "Spec One",
		"expectedInputs": [
			{"id": "count", "type": "int", "default": 5, "min": 0, "max": 100},
			{"id": "color", "type": "select", "options": [{"id": "red"}, {"id": "blue", "name": "Blue"}]}
		]
	}`

	var spec JobSpec
	if err := json.Unmarshal([]byte(body), &spec); err != nil {
		t.Fatalf("failed to decode spec: %v", err)
	}

	count, ok := spec.Input("count")
	if !ok {
		t.Fatal("expected input 'count' to exist")
	}
	if count.Min == nil || count.Min.String() != "0" {
		t.Errorf("expected min 0, got %v", count.Min)
	}
	if count.Max == nil || count.Max.String() != "100" {
		t.Errorf("expected max 100, got %v", count.Max)
	}

	color, _ := spec.Input("color")
	if color.Options[0].Label() != "red" || color.Options[1].Label() != "Blue" {
		t.Errorf("unexpected option labels: %q, %q", color.Options[0].Label(), color.Options[1].Label())
	}

	if _, ok := spec.Input("missing"); ok {
		t.Error("expected lookup of unknown input to fail")
	}
}

func TestDecodeJobRequest_KeepsLargeIntegers(t *testing.T) {
	req, err := DecodeJobRequest([]byte(`{"spec":"s","name":"n","inputs":{"big":9007199254740993}}`))
	if err != nil {
		t.Fatalf("DecodeJobRequest() error = %v", err)
	}
	if got := req.Inputs["big"]; got != json.Number("9007199254740993") {
		t.Errorf("expected json.Number 9007199254740993, got %#v", got)
	}

	empty, err := DecodeJobRequest([]byte(`{"spec":"s","name":"n"}`))
	if err != nil {
		t.Fatalf("DecodeJobRequest() error = %v", err)
	}
	if empty.Inputs == nil {
		t.Error("expected non-nil inputs map")
	}
}

func TestJobRequest_CloneIsIndependent(t *testing.T) {
	orig := JobRequest{Spec: "s", Name: "n", Inputs: map[string]any{"a": "1"}}
	clone := orig.Clone()
	clone.Inputs["b"] = "2"

	if _, ok := orig.Inputs["b"]; ok {
		t.Error("modifying clone changed the original inputs")
	}
}
