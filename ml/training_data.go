package ml

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"
	"strings"
)

type Dataset struct {
	Features [][]float64
	Labels   []int
}

// ReadCSV loads the named feature columns, in the given order, plus a 0/1
// label column. Rows with an empty label are skipped.
func ReadCSV(r io.Reader, featureNames []string, labelColumn string) (*Dataset, error) {
	if len(featureNames) == 0 {
		return nil, errors.New("feature names are required")
	}
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	columns := make([]int, len(featureNames))
	for i, name := range featureNames {
		col, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("column %q not found", name)
		}
		columns[i] = col
	}
	labelCol, ok := index[labelColumn]
	if !ok {
		return nil, fmt.Errorf("label column %q not found", labelColumn)
	}

	dataset := &Dataset{}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rawLabel := strings.TrimSpace(record[labelCol])
		if rawLabel == "" {
			continue
		}
		label, err := parseLabel(rawLabel)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row := make([]float64, len(columns))
		for i, col := range columns {
			value, err := parseValue(record[col])
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, featureNames[i], err)
			}
			row[i] = value
		}
		dataset.Features = append(dataset.Features, row)
		dataset.Labels = append(dataset.Labels, label)
	}
	if len(dataset.Features) == 0 {
		return nil, errors.New("no rows found")
	}
	return dataset, nil
}

// categories encodes the text columns of the raw datasets the way they were
// label-encoded at training time (alphabetical order).
var categories = map[string]float64{"F": 0, "M": 1}

func parseValue(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if value, ok := categories[strings.ToUpper(raw)]; ok {
		return value, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func parseLabel(raw string) (int, error) {
	// diabetes CLASS: N(o), P(redicted) and Y(es)
	switch strings.ToUpper(raw) {
	case "N":
		return 0, nil
	case "P", "Y":
		return 1, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid label %q", raw)
	}
	// multi-valued targets (e.g. heart disease severity 0-4) collapse to presence
	if value > 0 {
		return 1, nil
	}
	return 0, nil
}

// Split shuffles with the given seed and holds out testRatio of the rows.
func (d *Dataset) Split(testRatio float64, seed int64) (train, test *Dataset) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(len(d.Features))

	train, test = &Dataset{}, &Dataset{}
	split := int(math.Round(float64(len(d.Features)) * (1 - testRatio)))
	for i, idx := range indices {
		if i < split {
			train.Features = append(train.Features, d.Features[idx])
			train.Labels = append(train.Labels, d.Labels[idx])
		} else {
			test.Features = append(test.Features, d.Features[idx])
			test.Labels = append(test.Labels, d.Labels[idx])
		}
	}
	return train, test
}

type Metrics struct {
	Accuracy  float64 `json:"accuracy" yaml:"accuracy"`
	Precision float64 `json:"precision" yaml:"precision"`
	Recall    float64 `json:"recall" yaml:"recall"`
	F1        float64 `json:"f1_score" yaml:"f1_score"`
}

func Evaluate(model Classifier, features [][]float64, labels []int) (Metrics, error) {
	if len(features) == 0 {
		return Metrics{}, errors.New("features is empty")
	}

	var correct, truePositive, predictedPositive, actualPositive int
	for i, row := range features {
		label, err := model.PredictLabel(row)
		if err != nil {
			return Metrics{}, err
		}
		if label == labels[i] {
			correct++
		}
		if label == 1 {
			predictedPositive++
		}
		if labels[i] == 1 {
			actualPositive++
			if label == 1 {
				truePositive++
			}
		}
	}

	m := Metrics{Accuracy: float64(correct) / float64(len(features))}
	if predictedPositive > 0 {
		m.Precision = float64(truePositive) / float64(predictedPositive)
	}
	if actualPositive > 0 {
		m.Recall = float64(truePositive) / float64(actualPositive)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m, nil
}
