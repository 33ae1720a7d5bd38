package editor

import (
	"encoding/json"
	"fmt"

	"github.com/jobson/jobson-cli/internal/models"
)

// Editor holds the coerced state of one expected input.
type Editor interface {
	// Input is the expected input the editor was built for.
	Input() models.ExpectedInput
	// Update is the current result of the editor.
	Update() InputUpdate
	// Warning is a one-shot message describing a discarded suggestion, or "".
	Warning() string
	// Raw is the editor state. Feeding it back through Set yields the same
	// update and no warning.
	Raw() any
	// Set applies a user edit and returns the resulting editor.
	Set(raw any) Editor
}

type field struct {
	input   models.ExpectedInput
	raw     any
	update  InputUpdate
	warning string
}

func (f *field) Input() models.ExpectedInput { return f.input }
func (f *field) Update() InputUpdate         { return f.update }
func (f *field) Warning() string             { return f.warning }
func (f *field) Raw() any                    { return f.raw }

func (f *field) Set(raw any) Editor {
	return New(f.input, raw, true)
}

type coerceFunc func(in models.ExpectedInput, suggested any, present bool) *field

var coercers = map[string]coerceFunc{
	models.InputTypeString:      coerceString,
	models.InputTypeSelect:      coerceSelect,
	models.InputTypeStringArray: coerceStringArray,
	models.InputTypeSQL:         coerceQuery,
	models.InputTypeInt:         coerceInteger(intBounds),
	models.InputTypeLong:        coerceInteger(longBounds),
	models.InputTypeFloat:       coerceDecimal(floatBounds),
	models.InputTypeDouble:      coerceDecimal(doubleBounds),
	models.InputTypeFile:        coerceFile,
	models.InputTypeFileArray:   coerceFileArray,
}

// New builds the editor for an expected input from a previously suggested value.
// present reports whether a suggestion exists at all; a nil suggestion is
// treated as absent.
func New(in models.ExpectedInput, suggested any, present bool) Editor {
	if suggested == nil {
		present = false
	}
	coerce, ok := coercers[in.Type]
	if !ok {
		coerce = coerceUnknown
	}
	return coerce(in, suggested, present)
}

// IsSupportedType reports whether an editor exists for the type tag.
func IsSupportedType(typ string) bool {
	_, ok := coercers[typ]
	return ok
}

// describeType names the JSON shape of a suggested value for warnings.
func describeType(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, float32, int, int32, int64:
		return "number"
	case []any, []string, []models.FileInput:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
