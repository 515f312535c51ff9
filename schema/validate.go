package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"mediassist/ml"
)

var (
	// ErrValidation matches every rejection caused by the request body.
	ErrValidation = errors.New("validation failed")
	// ErrUnknownDisease is returned for a disease with no schema.
	ErrUnknownDisease = errors.New("unknown disease")
)

// MissingFieldsError lists required fields absent from the input.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "Missing required features: " + strings.Join(e.Fields, ", ")
}

func (e *MissingFieldsError) Is(target error) bool { return target == ErrValidation }

// InvalidFormatError means a present value could not be coerced to its kind.
type InvalidFormatError struct {
	Field string
	Value any
	Kind  Kind
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("Invalid data format: %s must be %s, got %s", e.Field, e.Kind, describe(e.Value))
}

func (e *InvalidFormatError) Is(target error) bool { return target == ErrValidation }

// OutOfRangeError means a coerced value violates its bound or enumeration.
type OutOfRangeError struct {
	Field   string
	Value   float64
	Message string
}

func (e *OutOfRangeError) Error() string { return e.Message }

func (e *OutOfRangeError) Is(target error) bool { return target == ErrValidation }

// Features is a validated input restricted to the schema's fields.
type Features map[string]float64

// Validate checks raw against the schema of disease. Presence is checked first
// for every field; coercion and range checks then run in declared order and
// stop at the first failure.
func Validate(disease ml.Disease, raw map[string]any) (Features, error) {
	fields, ok := fieldsByDisease[disease]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownDisease, "%q", disease)
	}

	var missing []string
	for _, f := range fields {
		if _, ok := raw[f.Name]; !ok {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingFieldsError{Fields: missing}
	}

	byName := make(map[string]Field, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}
	coerced := make(Features, len(fields))
	coerce := func(f Field) (float64, error) {
		if v, ok := coerced[f.Name]; ok {
			return v, nil
		}
		v, err := f.coerce(raw[f.Name])
		if err != nil {
			return 0, err
		}
		coerced[f.Name] = v
		return v, nil
	}

	out := make(Features, len(fields))
	for _, f := range fields {
		value, err := coerce(f)
		if err != nil {
			return nil, err
		}
		if partner, ok := byName[coercedWith[f.Name]]; ok {
			if _, err := coerce(partner); err != nil {
				return nil, err
			}
		}
		if err := f.check(value); err != nil {
			return nil, err
		}
		out[f.Name] = value
	}
	return out, nil
}

// coercedWith pairs fields that are read as one reading: both values must
// parse before either is range checked.
var coercedWith = map[string]string{
	"SystolicBP": "DiastolicBP",
}

func (f Field) coerce(v any) (float64, error) {
	invalid := &InvalidFormatError{Field: f.Name, Value: v, Kind: f.Kind}

	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int64:
		n = float64(x)
	case int32:
		n = float64(x)
	case bool:
		if x {
			n = 1
		}
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, invalid
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, invalid
		}
		n = parsed
	default:
		return 0, invalid
	}

	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, invalid
	}
	if f.Kind == Int && n != math.Trunc(n) {
		return 0, invalid
	}
	return n, nil
}

func (f Field) check(v float64) error {
	if len(f.Allowed) > 0 {
		for _, allowed := range f.Allowed {
			if v == float64(allowed) {
				return nil
			}
		}
		return f.outOfRange(v, f.allowedMessage())
	}
	if v >= f.Min && v <= f.Max {
		return nil
	}
	return f.outOfRange(v, f.boundMessage())
}

func (f Field) outOfRange(v float64, message string) error {
	return &OutOfRangeError{Field: f.Name, Value: v, Message: message}
}

func (f Field) display() string {
	if f.Label == "" || f.Label == f.Name {
		return f.Name
	}
	return fmt.Sprintf("%s (%s)", f.Label, f.Name)
}

func (f Field) allowedMessage() string {
	if len(f.Allowed) == 2 {
		return fmt.Sprintf("%s must be %d or %d", f.display(), f.Allowed[0], f.Allowed[1])
	}
	values := make([]string, len(f.Allowed))
	for i, a := range f.Allowed {
		values[i] = strconv.Itoa(a)
	}
	return fmt.Sprintf("%s must be one of %s", f.display(), strings.Join(values, ", "))
}

func (f Field) boundMessage() string {
	hasMin, hasMax := !math.IsInf(f.Min, -1), !math.IsInf(f.Max, 1)
	switch {
	case hasMin && hasMax:
		return fmt.Sprintf("%s must be between %g and %g", f.display(), f.Min, f.Max)
	case hasMin && f.Min == 0:
		return fmt.Sprintf("%s cannot be negative", f.display())
	case hasMin:
		return fmt.Sprintf("%s must be at least %g", f.display(), f.Min)
	default:
		return fmt.Sprintf("%s must be at most %g", f.display(), f.Max)
	}
}

func describe(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
