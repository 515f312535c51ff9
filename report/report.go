// Package report turns a raw prediction into the response returned to callers.
package report

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"mediassist/explain"
	"mediassist/ml"
)

// Tier cut points, inclusive on the lower bound.
const (
	HighThreshold     = 0.7
	ModerateThreshold = 0.4
)

type RiskLevel string

const (
	High     RiskLevel = "High"
	Moderate RiskLevel = "Moderate"
	Low      RiskLevel = "Low"
)

// Tier maps the has-disease probability to a risk level and display color.
func Tier(p float64) (RiskLevel, string) {
	switch {
	case p >= HighThreshold:
		return High, "red"
	case p >= ModerateThreshold:
		return Moderate, "orange"
	default:
		return Low, "green"
	}
}

type Prediction struct {
	HasDisease      int     `json:"has_disease"`
	DiseaseDetected bool    `json:"disease_detected"`
	Confidence      float64 `json:"confidence"`
	Probability     float64 `json:"probability"`
}

type RiskAssessment struct {
	Level   RiskLevel `json:"level"`
	Color   string    `json:"color"`
	Message string    `json:"message"`
}

// Explanation is the attribution block attached when explanations are enabled.
// Features is empty, never null, when Available is false.
type Explanation struct {
	Available bool                  `json:"available"`
	Reason    string                `json:"reason,omitempty"`
	Features  []explain.Attribution `json:"features"`
}

type Response struct {
	ID             string         `json:"prediction_id,omitempty"`
	Success        bool           `json:"success"`
	Disease        ml.Disease     `json:"disease"`
	Prediction     Prediction     `json:"prediction"`
	RiskAssessment RiskAssessment `json:"risk_assessment"`
	Explanation    *Explanation   `json:"explanation,omitempty"`
}

// Format builds the response for a label and its [P(0), P(1)] pair.
func Format(label int, probs [2]float64, disease ml.Disease) *Response {
	p := probs[1]
	level, color := Tier(p)
	return &Response{
		Success: true,
		Disease: disease,
		Prediction: Prediction{
			HasDisease:      label,
			DiseaseDetected: label != 0,
			Confidence:      round(p*100, 2),
			Probability:     round(p, 4),
		},
		RiskAssessment: RiskAssessment{
			Level:   level,
			Color:   color,
			Message: Message(disease, level, p),
		},
	}
}

// WithExplanation attaches an explanation outcome to the response.
func (r *Response) WithExplanation(e explain.Explanation) *Response {
	features := e.Features
	if features == nil {
		features = []explain.Attribution{}
	}
	r.Explanation = &Explanation{Available: e.Available, Reason: e.Reason, Features: features}
	return r
}

const fallbackMessage = "Assessment complete. Please consult with a healthcare provider."

var messages = map[ml.Disease]map[RiskLevel]string{
	ml.Diabetes: {
		High:     "High risk of diabetes detected (%.1f%% probability). Immediate consultation with a healthcare provider is strongly recommended.",
		Moderate: "Moderate risk of diabetes (%.1f%% probability). Consider lifestyle modifications and regular monitoring.",
		Low:      "Low risk of diabetes (%.1f%% probability). Continue maintaining a healthy lifestyle.",
	},
	ml.HeartDisease: {
		High:     "High risk of heart disease detected (%.1f%% probability). Seek immediate medical attention and cardiac evaluation.",
		Moderate: "Moderate risk of heart disease (%.1f%% probability). Schedule a consultation with a cardiologist for further assessment.",
		Low:      "Low risk of heart disease (%.1f%% probability). Maintain heart-healthy habits and regular check-ups.",
	},
	ml.Parkinsons: {
		High:     "High likelihood of Parkinson's disease (%.1f%% probability). Consult with a neurologist for comprehensive evaluation.",
		Moderate: "Moderate indicators for Parkinson's disease (%.1f%% probability). Neurological assessment recommended.",
		Low:      "Low risk of Parkinson's disease (%.1f%% probability). Continue monitoring for any symptom changes.",
	},
}

var printer = message.NewPrinter(language.English)

// Message returns the disease and tier specific advice, or a generic message
// for an unknown combination.
func Message(disease ml.Disease, level RiskLevel, p float64) string {
	template, ok := messages[disease][level]
	if !ok {
		return fallbackMessage
	}
	return printer.Sprintf(template, p*100)
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
