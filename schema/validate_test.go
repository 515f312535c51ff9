package schema

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediassist/ml"
)

func lowest(f Field) float64 {
	switch {
	case len(f.Allowed) > 0:
		return float64(f.Allowed[0])
	case !math.IsInf(f.Min, -1):
		return f.Min
	default:
		return 0
	}
}

func baseline(disease ml.Disease) map[string]any {
	raw := make(map[string]any)
	for _, f := range Fields(disease) {
		raw[f.Name] = lowest(f)
	}
	return raw
}

// bounds returns the admissible extremes of f and the values one unit outside them.
func bounds(f Field) (inside, outside []float64) {
	if len(f.Allowed) > 0 {
		first, last := f.Allowed[0], f.Allowed[len(f.Allowed)-1]
		return []float64{float64(first), float64(last)}, []float64{float64(first - 1), float64(last + 1)}
	}
	if !math.IsInf(f.Min, -1) {
		inside = append(inside, f.Min)
		outside = append(outside, f.Min-1)
	}
	if !math.IsInf(f.Max, 1) {
		inside = append(inside, f.Max)
		outside = append(outside, f.Max+1)
	}
	return inside, outside
}

func TestBoundsForEveryField(t *testing.T) {
	for _, disease := range ml.Diseases() {
		for _, field := range Fields(disease) {
			inside, outside := bounds(field)
			for _, v := range inside {
				raw := baseline(disease)
				raw[field.Name] = v
				_, err := Validate(disease, raw)
				assert.NoError(t, err, "%s.%s=%g", disease, field.Name, v)
			}
			for _, v := range outside {
				raw := baseline(disease)
				raw[field.Name] = v
				_, err := Validate(disease, raw)
				var oor *OutOfRangeError
				if assert.True(t, errors.As(err, &oor), "%s.%s=%g: %v", disease, field.Name, v, err) {
					assert.Equal(t, field.Name, oor.Field)
					assert.Contains(t, oor.Error(), field.Name)
				}
				assert.True(t, errors.Is(err, ErrValidation))
			}
		}
	}
}

func TestMissingSingleField(t *testing.T) {
	for _, disease := range ml.Diseases() {
		for _, field := range Fields(disease) {
			raw := baseline(disease)
			delete(raw, field.Name)
			_, err := Validate(disease, raw)
			var missing *MissingFieldsError
			require.True(t, errors.As(err, &missing), "%s without %s", disease, field.Name)
			assert.Equal(t, []string{field.Name}, missing.Fields)
			assert.True(t, errors.Is(err, ErrValidation))
		}
	}
}

func TestMissingFieldsMessage(t *testing.T) {
	raw := baseline(ml.Diabetes)
	delete(raw, "HbA1c")
	delete(raw, "TG")
	_, err := Validate(ml.Diabetes, raw)
	require.Error(t, err)
	assert.Equal(t, "Missing required features: HbA1c, TG", err.Error())
}

func TestHeartRestingBloodPressureBelowMinimum(t *testing.T) {
	raw := map[string]any{
		"age": 55.0, "sex": 1.0, "cp": 2.0, "trestbps": 79.0, "chol": 250.0, "fbs": 0.0,
		"restecg": 1.0, "thalach": 150.0, "exang": 0.0, "oldpeak": 1.5, "slope": 1.0,
		"ca": 0.0, "thal": 2.0,
	}
	_, err := Validate(ml.HeartDisease, raw)
	var oor *OutOfRangeError
	require.True(t, errors.As(err, &oor))
	assert.Contains(t, err.Error(), "trestbps")
	assert.Contains(t, err.Error(), "blood pressure")
}

func TestParkinsonsMissingUPDRS(t *testing.T) {
	raw := baseline(ml.Parkinsons)
	raw["MoCA"] = 31.0
	delete(raw, "UPDRS")
	_, err := Validate(ml.Parkinsons, raw)
	var missing *MissingFieldsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"UPDRS"}, missing.Fields)
}

func TestParkinsonsMoCAAboveMaximum(t *testing.T) {
	raw := baseline(ml.Parkinsons)
	raw["MoCA"] = 31.0
	_, err := Validate(ml.Parkinsons, raw)
	var oor *OutOfRangeError
	require.True(t, errors.As(err, &oor))
	assert.Equal(t, "MoCA", oor.Field)
}

func TestShortCircuitsOnFirstFailure(t *testing.T) {
	raw := baseline(ml.Diabetes)
	raw["AGE"] = 150.0
	raw["Gender"] = 7.0
	_, err := Validate(ml.Diabetes, raw)
	var oor *OutOfRangeError
	require.True(t, errors.As(err, &oor))
	assert.Equal(t, "AGE", oor.Field)
}

func TestBloodPressureParsedBeforeRangeCheck(t *testing.T) {
	raw := baseline(ml.Parkinsons)
	raw["SystolicBP"] = 79.0
	raw["DiastolicBP"] = "x"
	_, err := Validate(ml.Parkinsons, raw)
	var invalid *InvalidFormatError
	require.True(t, errors.As(err, &invalid), err)
	assert.Equal(t, "DiastolicBP", invalid.Field)

	raw["DiastolicBP"] = 60.0
	_, err = Validate(ml.Parkinsons, raw)
	var oor *OutOfRangeError
	require.True(t, errors.As(err, &oor), err)
	assert.Equal(t, "SystolicBP", oor.Field)
}

func TestCoercion(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    float64
		invalid bool
	}{
		{name: "float", value: 1.0, want: 1},
		{name: "int", value: 1, want: 1},
		{name: "numeric string", value: " 1 ", want: 1},
		{name: "json number", value: json.Number("0"), want: 0},
		{name: "bool", value: true, want: 1},
		{name: "word", value: "male", invalid: true},
		{name: "null", value: nil, invalid: true},
		{name: "fraction for integer field", value: 0.5, invalid: true},
		{name: "nan", value: math.NaN(), invalid: true},
		{name: "list", value: []any{1}, invalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := baseline(ml.Diabetes)
			raw["Gender"] = tt.value
			features, err := Validate(ml.Diabetes, raw)
			if tt.invalid {
				var invalid *InvalidFormatError
				require.True(t, errors.As(err, &invalid), "got %v", err)
				assert.Equal(t, "Gender", invalid.Field)
				assert.Contains(t, err.Error(), "Invalid data format")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, features["Gender"])
		})
	}
}

func TestExtraFieldsDropped(t *testing.T) {
	raw := baseline(ml.HeartDisease)
	raw["patient_name"] = "x"
	features, err := Validate(ml.HeartDisease, raw)
	require.NoError(t, err)
	assert.Len(t, features, len(FeatureOrder(ml.HeartDisease)))
	assert.NotContains(t, features, "patient_name")
}

func TestOldpeakUnrestricted(t *testing.T) {
	raw := baseline(ml.HeartDisease)
	raw["oldpeak"] = -3.2
	features, err := Validate(ml.HeartDisease, raw)
	require.NoError(t, err)
	assert.Equal(t, -3.2, features["oldpeak"])
}

func TestFeatureOrderCoversFields(t *testing.T) {
	for _, disease := range ml.Diseases() {
		var names []string
		for _, f := range Fields(disease) {
			names = append(names, f.Name)
		}
		assert.ElementsMatch(t, names, FeatureOrder(disease), "%s", disease)
	}
	assert.Equal(t, "Gender", FeatureOrder(ml.Diabetes)[0])
	assert.Len(t, FeatureOrder(ml.Parkinsons), 32)
}

func TestUnknownDisease(t *testing.T) {
	_, err := Validate(ml.Disease("flu"), map[string]any{})
	assert.True(t, errors.Is(err, ErrUnknownDisease))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Nil(t, FeatureOrder(ml.Disease("flu")))
}
