package editor

import (
	"fmt"
	"strings"

	"github.com/jobson/jobson-cli/internal/models"
)

func coerceString(in models.ExpectedInput, suggested any, present bool) *field {
	f := &field{input: in}
	switch {
	case !present:
		value := ""
		if def, ok := in.DefaultValue(); ok {
			if s, ok := def.(string); ok {
				value = s
			}
		}
		f.raw = value
	default:
		s, ok := suggested.(string)
		if !ok {
			f.warning = fmt.Sprintf("The supplied value was not a string (was %s). This field was reset", describeType(suggested))
		}
		f.raw = s
	}
	f.update = Value(f.raw)
	return f
}

func coerceSelect(in models.ExpectedInput, suggested any, present bool) *field {
	f := &field{input: in}
	if len(in.Options) == 0 {
		f.update = Errors("has no options to select from")
		return f
	}

	first := in.Options[0].ID
	switch {
	case !present:
		f.raw = first
		if def, ok := in.DefaultValue(); ok {
			if s, ok := def.(string); ok && hasOption(in.Options, s) {
				f.raw = s
			}
		}
	default:
		s, ok := suggested.(string)
		if ok && hasOption(in.Options, s) {
			f.raw = s
		} else {
			f.raw = first
			f.warning = fmt.Sprintf("This field was reset because the existing value, '%v', is not one of the available options. "+
				"This is probably because '%v' was removed from the job spec.", suggested, suggested)
		}
	}
	f.update = Value(f.raw)
	return f
}

func hasOption(options []models.SelectOption, id string) bool {
	for _, o := range options {
		if o.ID == id {
			return true
		}
	}
	return false
}

func coerceUnknown(in models.ExpectedInput, suggested any, present bool) *field {
	msg := fmt.Sprintf("has an unknown input type '%s' (supported types: %s)",
		in.Type, strings.Join(models.SupportedInputTypes, ", "))
	return &field{input: in, raw: suggested, update: Errors(msg)}
}
