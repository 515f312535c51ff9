package report

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediassist/explain"
	"mediassist/ml"
)

func TestTierBoundaries(t *testing.T) {
	tests := []struct {
		p     float64
		level RiskLevel
		color string
	}{
		{1.0, High, "red"},
		{0.70, High, "red"},
		{0.6999, Moderate, "orange"},
		{0.40, Moderate, "orange"},
		{0.3999, Low, "green"},
		{0, Low, "green"},
	}
	for _, tt := range tests {
		level, color := Tier(tt.p)
		assert.Equal(t, tt.level, level, "p=%v", tt.p)
		assert.Equal(t, tt.color, color, "p=%v", tt.p)
	}
}

func TestFormatRounding(t *testing.T) {
	resp := Format(1, [2]float64{0.18, 0.82}, ml.Diabetes)
	assert.True(t, resp.Success)
	assert.Equal(t, ml.Diabetes, resp.Disease)
	assert.Equal(t, 1, resp.Prediction.HasDisease)
	assert.True(t, resp.Prediction.DiseaseDetected)
	assert.Equal(t, 82.0, resp.Prediction.Confidence)
	assert.Equal(t, 0.82, resp.Prediction.Probability)
	assert.Equal(t, High, resp.RiskAssessment.Level)
	assert.Equal(t, "red", resp.RiskAssessment.Color)

	resp = Format(0, [2]float64{0.876543, 0.123457}, ml.HeartDisease)
	assert.Equal(t, 12.35, resp.Prediction.Confidence)
	assert.Equal(t, 0.1235, resp.Prediction.Probability)
	assert.False(t, resp.Prediction.DiseaseDetected)
}

func TestMessages(t *testing.T) {
	assert.Equal(t,
		"High risk of diabetes detected (82.0% probability). Immediate consultation with a healthcare provider is strongly recommended.",
		Message(ml.Diabetes, High, 0.82))
	assert.Equal(t,
		"Moderate risk of heart disease (45.5% probability). Schedule a consultation with a cardiologist for further assessment.",
		Message(ml.HeartDisease, Moderate, 0.455))
	assert.Equal(t,
		"Low risk of Parkinson's disease (10.0% probability). Continue monitoring for any symptom changes.",
		Message(ml.Parkinsons, Low, 0.1))
}

func TestMessageFallback(t *testing.T) {
	assert.Equal(t, fallbackMessage, Message(ml.Disease("flu"), High, 0.9))
	assert.Equal(t, fallbackMessage, Message(ml.Diabetes, RiskLevel("Extreme"), 0.9))
}

func TestResponseJSON(t *testing.T) {
	resp := Format(0, [2]float64{0.7, 0.3}, ml.Parkinsons)
	payload, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "parkinsons", decoded["disease"])
	assert.NotContains(t, decoded, "explanation")
	risk := decoded["risk_assessment"].(map[string]any)
	assert.Equal(t, "Low", risk["level"])
}

func TestWithUnavailableExplanation(t *testing.T) {
	resp := Format(0, [2]float64{0.7, 0.3}, ml.Parkinsons).
		WithExplanation(explain.Explanation{Reason: "model does not support feature attribution"})
	payload, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"explanation":{"available":false,"reason":"model does not support feature attribution","features":[]}`)
}
