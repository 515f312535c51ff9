// Package schema declares the per-disease input contract and turns an untyped
// request body into a validated feature mapping.
package schema

import (
	"math"

	"mediassist/ml"
)

// Kind is the numeric type a field is coerced to.
type Kind int

const (
	Float Kind = iota
	Int
)

func (k Kind) String() string {
	if k == Int {
		return "an integer"
	}
	return "a number"
}

// Field declares one required input. Allowed, when set, takes precedence over
// Min/Max. Unbounded sides use ±Inf.
type Field struct {
	Name    string
	Label   string
	Kind    Kind
	Min     float64
	Max     float64
	Allowed []int
}

var unbounded = math.Inf(1)

func binary(name, label string) Field {
	return Field{Name: name, Label: label, Kind: Int, Allowed: []int{0, 1}}
}

func oneOf(name, label string, n int) Field {
	allowed := make([]int, n)
	for i := range allowed {
		allowed[i] = i
	}
	return Field{Name: name, Label: label, Kind: Int, Allowed: allowed}
}

func between(name, label string, min, max float64) Field {
	return Field{Name: name, Label: label, Kind: Float, Min: min, Max: max}
}

func nonNegative(name, label string) Field {
	return Field{Name: name, Label: label, Kind: Float, Min: 0, Max: unbounded}
}

func anyValue(name, label string) Field {
	return Field{Name: name, Label: label, Kind: Float, Min: -unbounded, Max: unbounded}
}

// Fields are listed in validation order. The first failing field is reported.
var diabetesFields = []Field{
	between("AGE", "Age", 0, 120),
	binary("Gender", "Gender"),
	nonNegative("Urea", "Urea"),
	nonNegative("Cr", "Creatinine"),
	nonNegative("HbA1c", "HbA1c"),
	nonNegative("Chol", "Cholesterol"),
	nonNegative("TG", "Triglycerides"),
	nonNegative("HDL", "HDL"),
	nonNegative("LDL", "LDL"),
	nonNegative("VLDL", "VLDL"),
	between("BMI", "BMI", 0, 100),
}

var heartDiseaseFields = []Field{
	between("age", "Age", 0, 120),
	binary("sex", "Sex"),
	oneOf("cp", "Chest pain type", 4),
	between("trestbps", "Resting blood pressure", 80, 200),
	between("chol", "Cholesterol", 100, 600),
	binary("fbs", "Fasting blood sugar"),
	oneOf("restecg", "Resting ECG", 3),
	between("thalach", "Max heart rate", 60, 220),
	binary("exang", "Exercise angina"),
	anyValue("oldpeak", "ST depression"),
	oneOf("slope", "Slope", 3),
	oneOf("ca", "Number of vessels", 4),
	oneOf("thal", "Thalassemia", 4),
}

var parkinsonsFields = []Field{
	between("Age", "Age", 30, 100),
	binary("Gender", "Gender"),
	oneOf("Ethnicity", "Ethnicity", 4),
	oneOf("EducationLevel", "Education level", 4),
	binary("Smoking", "Smoking"),
	binary("FamilyHistoryParkinsons", "Family history of Parkinson's"),
	binary("TraumaticBrainInjury", "Traumatic brain injury"),
	binary("Hypertension", "Hypertension"),
	binary("Diabetes", "Diabetes"),
	binary("Depression", "Depression"),
	binary("Stroke", "Stroke"),
	binary("Tremor", "Tremor"),
	binary("Rigidity", "Rigidity"),
	binary("Bradykinesia", "Bradykinesia"),
	binary("PosturalInstability", "Postural instability"),
	binary("SpeechProblems", "Speech problems"),
	binary("SleepDisorders", "Sleep disorders"),
	binary("Constipation", "Constipation"),
	between("BMI", "BMI", 10, 50),
	nonNegative("AlcoholConsumption", "Alcohol consumption"),
	nonNegative("PhysicalActivity", "Physical activity"),
	nonNegative("DietQuality", "Diet quality"),
	nonNegative("SleepQuality", "Sleep quality"),
	between("SystolicBP", "Systolic BP", 80, 200),
	between("DiastolicBP", "Diastolic BP", 50, 130),
	nonNegative("CholesterolTotal", "Total cholesterol"),
	nonNegative("CholesterolLDL", "LDL cholesterol"),
	nonNegative("CholesterolHDL", "HDL cholesterol"),
	nonNegative("CholesterolTriglycerides", "Triglycerides"),
	nonNegative("UPDRS", "UPDRS"),
	between("MoCA", "MoCA", 0, 30),
	between("FunctionalAssessment", "Functional assessment", 0, 10),
}

// Column order the models were trained on. It must match the trainer's CSV
// column selection exactly; nothing checks this at load time beyond the
// metadata comparison done at preload.
var featureOrder = map[ml.Disease][]string{
	ml.Diabetes: {
		"Gender", "AGE", "Urea", "Cr", "HbA1c", "Chol", "TG", "HDL", "LDL", "VLDL", "BMI",
	},
	ml.HeartDisease: {
		"age", "sex", "cp", "trestbps", "chol", "fbs", "restecg",
		"thalach", "exang", "oldpeak", "slope", "ca", "thal",
	},
	ml.Parkinsons: {
		"Age", "Gender", "Ethnicity", "EducationLevel", "BMI", "Smoking",
		"AlcoholConsumption", "PhysicalActivity", "DietQuality", "SleepQuality",
		"FamilyHistoryParkinsons", "TraumaticBrainInjury", "Hypertension", "Diabetes",
		"Depression", "Stroke", "SystolicBP", "DiastolicBP",
		"CholesterolTotal", "CholesterolLDL", "CholesterolHDL", "CholesterolTriglycerides",
		"UPDRS", "MoCA", "FunctionalAssessment",
		"Tremor", "Rigidity", "Bradykinesia", "PosturalInstability",
		"SpeechProblems", "SleepDisorders", "Constipation",
	},
}

var fieldsByDisease = map[ml.Disease][]Field{
	ml.Diabetes:     diabetesFields,
	ml.HeartDisease: heartDiseaseFields,
	ml.Parkinsons:   parkinsonsFields,
}

// Fields returns a copy of the fields of disease in validation order.
func Fields(disease ml.Disease) []Field {
	fields := fieldsByDisease[disease]
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// FeatureOrder returns a copy of the model column order for disease, or nil
// for an unknown disease.
func FeatureOrder(disease ml.Disease) []string {
	order, ok := featureOrder[disease]
	if !ok {
		return nil
	}
	out := make([]string, len(order))
	copy(out, order)
	return out
}
