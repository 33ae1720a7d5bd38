package editor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jobson/jobson-cli/internal/models"
)

type integerBounds struct {
	typeName string
	min, max int64
}

type decimalBounds struct {
	typeName string
	bits     int
	min, max float64
}

var (
	intBounds  = integerBounds{typeName: models.InputTypeInt, min: -2147483647, max: 2147483647}
	longBounds = integerBounds{typeName: models.InputTypeLong, min: -9223372036854775807, max: 9223372036854775807}

	floatBounds  = decimalBounds{typeName: models.InputTypeFloat, bits: 32, min: -3.402823e38, max: 3.402823e38}
	doubleBounds = decimalBounds{typeName: models.InputTypeDouble, bits: 64, min: -math.MaxFloat64, max: math.MaxFloat64}
)

func article(typeName string) string {
	if strings.IndexByte("aeiou", typeName[0]) >= 0 {
		return "an"
	}
	return "a"
}

// numericText turns a suggestion into the raw text a numeric editor holds.
func numericText(in models.ExpectedInput, suggested any, present bool, bits int) (string, string) {
	if !present {
		def, ok := in.DefaultValue()
		if !ok {
			return "", ""
		}
		text, _ := numberToText(def, bits)
		return text, ""
	}
	text, ok := numberToText(suggested, bits)
	if !ok {
		return "", fmt.Sprintf("The supplied value was not a number (was %s). This field was reset", describeType(suggested))
	}
	return text, ""
}

func numberToText(v any, bits int) (string, bool) {
	switch n := v.(type) {
	case string:
		return n, true
	case json.Number:
		return n.String(), true
	case int:
		return strconv.Itoa(n), true
	case int32:
		return strconv.FormatInt(int64(n), 10), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case float32:
		return formatDecimal(float64(n), 32), true
	case float64:
		return formatDecimal(n, bits), true
	default:
		return "", false
	}
}

// formatDecimal renders f the way it appears in a JSON document.
func formatDecimal(f float64, bits int) string {
	var (
		b   []byte
		err error
	)
	if bits == 32 {
		b, err = json.Marshal(float32(f))
	} else {
		b, err = json.Marshal(f)
	}
	if err != nil {
		return strconv.FormatFloat(f, 'g', -1, bits)
	}
	return string(b)
}

func coerceInteger(bounds integerBounds) coerceFunc {
	return func(in models.ExpectedInput, suggested any, present bool) *field {
		raw, warning := numericText(in, suggested, present, 64)
		return &field{input: in, raw: raw, warning: warning, update: validateInteger(bounds, in, raw)}
	}
}

func (b integerBounds) narrow(in models.ExpectedInput) (int64, int64) {
	lo, hi := b.min, b.max
	if in.Min != nil {
		if v, err := in.Min.Int64(); err == nil && v > lo {
			lo = v
		}
	}
	if in.Max != nil {
		if v, err := in.Max.Int64(); err == nil && v < hi {
			hi = v
		}
	}
	return lo, hi
}

func validateInteger(bounds integerBounds, in models.ExpectedInput, raw string) InputUpdate {
	if raw == "" {
		return Missing()
	}
	lo, hi := bounds.narrow(in)
	tooSmall := fmt.Sprintf("%s: too small: minimum value allowed for %s %s input is %d", raw, article(bounds.typeName), bounds.typeName, lo)
	tooBig := fmt.Sprintf("%s: too big: maximum value allowed for %s %s input is %d", raw, article(bounds.typeName), bounds.typeName, hi)

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			if strings.HasPrefix(raw, "-") {
				return Errors(tooSmall)
			}
			return Errors(tooBig)
		}
		return Errors(raw + ": is not a number")
	}
	switch {
	case n < lo:
		return Errors(tooSmall)
	case n > hi:
		return Errors(tooBig)
	}
	if strconv.FormatInt(n, 10) != raw {
		return Value(raw)
	}
	return Value(n)
}

func coerceDecimal(bounds decimalBounds) coerceFunc {
	return func(in models.ExpectedInput, suggested any, present bool) *field {
		raw, warning := numericText(in, suggested, present, bounds.bits)
		return &field{input: in, raw: raw, warning: warning, update: validateDecimal(bounds, in, raw)}
	}
}

func (b decimalBounds) narrow(in models.ExpectedInput) (float64, float64) {
	lo, hi := b.min, b.max
	if in.Min != nil {
		if v, err := in.Min.Float64(); err == nil && v > lo {
			lo = v
		}
	}
	if in.Max != nil {
		if v, err := in.Max.Float64(); err == nil && v < hi {
			hi = v
		}
	}
	return lo, hi
}

func validateDecimal(bounds decimalBounds, in models.ExpectedInput, raw string) InputUpdate {
	if raw == "" {
		return Missing()
	}
	lo, hi := bounds.narrow(in)
	tooSmall := fmt.Sprintf("%s: too small: minimum value allowed for %s %s input is %s",
		raw, article(bounds.typeName), bounds.typeName, strconv.FormatFloat(lo, 'g', -1, 64))
	tooBig := fmt.Sprintf("%s: too big: maximum value allowed for %s %s input is %s",
		raw, article(bounds.typeName), bounds.typeName, strconv.FormatFloat(hi, 'g', -1, 64))

	f, err := strconv.ParseFloat(raw, bounds.bits)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return Errors(raw + ": is not a number")
	}
	if math.IsNaN(f) || (err == nil && math.IsInf(f, 0)) {
		return Errors(raw + ": is not a number")
	}
	switch {
	case f < lo:
		return Errors(tooSmall)
	case f > hi:
		return Errors(tooBig)
	}
	if formatDecimal(f, bounds.bits) != raw {
		return Value(raw)
	}
	if bounds.bits == 32 {
		return Value(float32(f))
	}
	return Value(f)
}
