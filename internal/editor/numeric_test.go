package editor

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jobson/jobson-cli/internal/models"
)

func numberPtr(s string) *json.Number {
	n := json.Number(s)
	return &n
}

func TestIntegerCoercion(t *testing.T) {
	tests := []struct {
		name      string
		input     models.ExpectedInput
		suggested any
		want      view
	}{
		{
			name:      "plain int",
			input:     models.ExpectedInput{ID: "n", Type: "int"},
			suggested: "42",
			want:      view{Kind: "value", Value: int64(42)},
		},
		{
			name:      "above declared max",
			input:     models.ExpectedInput{ID: "n", Type: "int", Min: numberPtr("0"), Max: numberPtr("100")},
			suggested: "150",
			want:      view{Kind: "errors", Errors: []string{"150: too big: maximum value allowed for an int input is 100"}},
		},
		{
			name:      "below declared min",
			input:     models.ExpectedInput{ID: "n", Type: "int", Min: numberPtr("0"), Max: numberPtr("100")},
			suggested: "-5",
			want:      view{Kind: "errors", Errors: []string{"-5: too small: minimum value allowed for an int input is 0"}},
		},
		{
			name:      "above native int range",
			input:     models.ExpectedInput{ID: "n", Type: "int"},
			suggested: "2147483648",
			want:      view{Kind: "errors", Errors: []string{"2147483648: too big: maximum value allowed for an int input is 2147483647"}},
		},
		{
			name:      "long max",
			input:     models.ExpectedInput{ID: "n", Type: "long"},
			suggested: "9223372036854775807",
			want:      view{Kind: "value", Value: int64(math.MaxInt64)},
		},
		{
			name:      "beyond long range",
			input:     models.ExpectedInput{ID: "n", Type: "long"},
			suggested: "9223372036854775808",
			want:      view{Kind: "errors", Errors: []string{"9223372036854775808: too big: maximum value allowed for a long input is 9223372036854775807"}},
		},
		{
			name:      "not a number",
			input:     models.ExpectedInput{ID: "n", Type: "int"},
			suggested: "abc",
			want:      view{Kind: "errors", Errors: []string{"abc: is not a number"}},
		},
		{
			name:      "empty text is missing",
			input:     models.ExpectedInput{ID: "n", Type: "int"},
			suggested: "",
			want:      view{Kind: "missing"},
		},
		{
			name:      "non canonical text kept as string",
			input:     models.ExpectedInput{ID: "n", Type: "int"},
			suggested: "007",
			want:      view{Kind: "value", Value: "007"},
		},
		{
			name:      "json number suggestion",
			input:     models.ExpectedInput{ID: "n", Type: "long"},
			suggested: json.Number("12"),
			want:      view{Kind: "value", Value: int64(12)},
		},
		{
			name:      "float suggestion with integral value",
			input:     models.ExpectedInput{ID: "n", Type: "int"},
			suggested: float64(3),
			want:      view{Kind: "value", Value: int64(3)},
		},
		{
			name:      "absent uses default",
			input:     models.ExpectedInput{ID: "n", Type: "int", Default: json.RawMessage(`5`)},
			suggested: nil,
			want:      view{Kind: "value", Value: int64(5)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.input, tt.suggested, tt.suggested != nil)
			if diff := cmp.Diff(tt.want, viewOf(e.Update())); diff != "" {
				t.Errorf("update mismatch (-want +got):\n%s", diff)
			}
			if e.Warning() != "" {
				t.Errorf("Expected no warning, got %q", e.Warning())
			}
		})
	}
}

func TestIntegerCoercion_WrongShapeResets(t *testing.T) {
	e := New(models.ExpectedInput{ID: "n", Type: "int"}, true, true)

	if got := viewOf(e.Update()); got.Kind != "missing" {
		t.Errorf("Expected missing after reset, got %+v", got)
	}
	if e.Warning() != "The supplied value was not a number (was boolean). This field was reset" {
		t.Errorf("unexpected warning: %q", e.Warning())
	}
}

func TestDecimalCoercion(t *testing.T) {
	tests := []struct {
		name      string
		typ       string
		suggested any
		want      view
	}{
		{"double exact text", "double", "0.1", view{Kind: "value", Value: 0.1}},
		{"double non canonical text", "double", "1.0", view{Kind: "value", Value: "1.0"}},
		{"double integral", "double", "3", view{Kind: "value", Value: float64(3)}},
		{"float exact text", "float", "0.1", view{Kind: "value", Value: float32(0.1)}},
		{"float precision loss keeps text", "float", "0.123456789", view{Kind: "value", Value: "0.123456789"}},
		{"float above range", "float", "3.5e38", view{Kind: "errors", Errors: []string{"3.5e38: too big: maximum value allowed for a float input is 3.402823e+38"}}},
		{"double overflow", "double", "1e400", view{Kind: "errors", Errors: []string{"1e400: too big: maximum value allowed for a double input is 1.7976931348623157e+308"}}},
		{"double negative overflow", "double", "-1e400", view{Kind: "errors", Errors: []string{"-1e400: too small: minimum value allowed for a double input is -1.7976931348623157e+308"}}},
		{"nan is not a number", "double", "NaN", view{Kind: "errors", Errors: []string{"NaN: is not a number"}}},
		{"garbage", "double", "1.2.3", view{Kind: "errors", Errors: []string{"1.2.3: is not a number"}}},
		{"json number", "double", json.Number("2.5"), view{Kind: "value", Value: 2.5}},
		{"float64 suggestion", "double", 0.25, view{Kind: "value", Value: 0.25}},
		{"empty", "float", "", view{Kind: "missing"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(models.ExpectedInput{ID: "d", Type: tt.typ}, tt.suggested, true)
			if diff := cmp.Diff(tt.want, viewOf(e.Update())); diff != "" {
				t.Errorf("update mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecimalCoercion_DeclaredBounds(t *testing.T) {
	in := models.ExpectedInput{ID: "d", Type: "double", Min: numberPtr("0.5"), Max: numberPtr("10")}

	got := viewOf(New(in, "0.25", true).Update())
	want := view{Kind: "errors", Errors: []string{"0.25: too small: minimum value allowed for a double input is 0.5"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("update mismatch (-want +got):\n%s", diff)
	}

	if got := viewOf(New(in, "10", true).Update()); got.Kind != "value" {
		t.Errorf("Expected bound value to be accepted, got %+v", got)
	}
}
