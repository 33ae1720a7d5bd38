package editor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jobson/jobson-cli/internal/models"
)

// InteractiveThreshold is the string array length at which editing switches
// from line-by-line to a read-only summary.
const InteractiveThreshold = 500

const summaryEdge = 5

var valueSeparator = regexp.MustCompile(`[\n,]`)

func coerceStringArray(in models.ExpectedInput, suggested any, present bool) *field {
	f := &field{input: in}
	switch {
	case !present:
		values := []string{}
		if def, ok := in.DefaultValue(); ok {
			if v, ok := toStrings(def); ok {
				values = v
			}
		}
		f.raw = values
	default:
		values, ok := toStrings(suggested)
		if !ok {
			values = []string{}
			f.warning = fmt.Sprintf("This input has been reset because the existing value was not an array of strings (was %s).", describeType(suggested))
		}
		f.raw = values
	}
	f.update = Value(f.raw)
	return f
}

func toStrings(v any) ([]string, bool) {
	switch a := v.(type) {
	case []string:
		return append([]string{}, a...), true
	case []any:
		out := make([]string, 0, len(a))
		for _, e := range a {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// Interactive reports whether values is small enough to edit line by line.
func Interactive(values []string) bool {
	return len(values) < InteractiveThreshold
}

// ArraySummary is the read-only view of a large string array.
type ArraySummary struct {
	Count int
	First []string
	Last  []string
}

// Summarize returns the count plus the first and last five values.
func Summarize(values []string) ArraySummary {
	s := ArraySummary{Count: len(values)}
	s.First = append([]string{}, values[:min(summaryEdge, len(values))]...)
	s.Last = append([]string{}, values[max(0, len(values)-summaryEdge):]...)
	return s
}

// SplitValues splits a text block into string array entries on newlines and commas.
func SplitValues(text string) []string {
	if text == "" {
		return []string{}
	}
	return valueSeparator.Split(text, -1)
}

// JoinValues renders values one per line, the inverse of SplitValues for
// entries without separators.
func JoinValues(values []string) string {
	return strings.Join(values, "\n")
}

func coerceFile(in models.ExpectedInput, suggested any, present bool) *field {
	f := &field{input: in}
	if !present {
		f.update = Missing()
		return f
	}
	file, ok := toFileInput(suggested)
	if !ok {
		f.warning = fmt.Sprintf("This input has been reset because the existing value was not a file (was %s).", describeType(suggested))
		f.update = Missing()
		return f
	}
	f.raw = file
	f.update = Value(file)
	return f
}

func coerceFileArray(in models.ExpectedInput, suggested any, present bool) *field {
	f := &field{input: in}
	if !present {
		f.update = Missing()
		return f
	}

	var files []models.FileInput
	ok := true
	switch a := suggested.(type) {
	case []models.FileInput:
		files = append([]models.FileInput{}, a...)
	case []any:
		files = make([]models.FileInput, 0, len(a))
		for _, e := range a {
			file, fok := toFileInput(e)
			if !fok {
				ok = false
				break
			}
			files = append(files, file)
		}
	default:
		ok = false
	}
	if !ok {
		f.warning = fmt.Sprintf("This input has been reset because the existing value was not an array of files (was %s).", describeType(suggested))
		f.update = Missing()
		return f
	}
	f.raw = files
	f.update = Value(files)
	return f
}

func toFileInput(v any) (models.FileInput, bool) {
	switch file := v.(type) {
	case models.FileInput:
		return file, true
	case *models.FileInput:
		if file == nil {
			return models.FileInput{}, false
		}
		return *file, true
	case map[string]any:
		name, nok := file["filename"].(string)
		data, dok := file["data"].(string)
		if !nok || !dok {
			return models.FileInput{}, false
		}
		return models.FileInput{Filename: name, Data: data}, true
	default:
		return models.FileInput{}, false
	}
}
