package ml

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Disease string

const (
	Diabetes     Disease = "diabetes"
	HeartDisease Disease = "heart_disease"
	Parkinsons   Disease = "parkinsons"
)

func Diseases() []Disease {
	return []Disease{Diabetes, HeartDisease, Parkinsons}
}

// ParseDisease accepts both identifiers ("heart_disease") and route slugs ("heart-disease").
func ParseDisease(s string) (Disease, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for _, d := range Diseases() {
		if string(d) == normalized {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown disease %q", s)
}

func (d Disease) Slug() string {
	return strings.ReplaceAll(string(d), "_", "-")
}

func (d Disease) DisplayName() string {
	if d == Parkinsons {
		return "Parkinson's Disease"
	}
	return cases.Title(language.English).String(strings.ReplaceAll(string(d), "_", " "))
}
