// Package explain ranks per-feature contributions for a single prediction.
package explain

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mediassist/ml"
)

const DefaultTopN = 3

const (
	DirectionIncreases = "increases risk"
	DirectionDecreases = "decreases risk"
)

// ErrUnsupportedModel means the classifier cannot attribute its predictions.
var ErrUnsupportedModel = errors.New("model does not support feature attribution")

type Attribution struct {
	Feature   string  `json:"feature"`
	Impact    float64 `json:"impact"`
	RawValue  float64 `json:"raw_value"`
	Direction string  `json:"direction"`
}

// Explanation is either a ranked attribution list or an unavailable marker
// carrying the reason. It never represents an error of the prediction itself.
type Explanation struct {
	Available bool
	Reason    string
	Features  []Attribution
}

func unavailable(err error) Explanation {
	return Explanation{Reason: err.Error(), Features: []Attribution{}}
}

// Explainer wraps a classifier that can attribute its own predictions.
type Explainer struct {
	attributor ml.Attributor
	width      int
}

// New builds an explainer for model, failing with ErrUnsupportedModel when the
// model has no attribution capability.
func New(model ml.Classifier) (*Explainer, error) {
	if model == nil {
		return nil, errors.New("model is nil")
	}
	attributor, ok := model.(ml.Attributor)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedModel, "%T", model)
	}
	return &Explainer{attributor: attributor, width: model.NumFeatures()}, nil
}

// Values returns one attribution value per feature for the positive class.
func (e *Explainer) Values(row []float64) ([]float64, error) {
	if len(row) != e.width {
		return nil, errors.Wrapf(ml.ErrFeatureMismatch, "got %d values, model expects %d", len(row), e.width)
	}
	matrix, err := e.attributor.Contributions(row)
	if err != nil {
		return nil, errors.Wrap(err, "compute contributions")
	}
	if len(matrix) != len(row) {
		return nil, errors.Errorf("got %d contributions for %d features", len(matrix), len(row))
	}
	values := make([]float64, len(matrix))
	for i, columns := range matrix {
		switch {
		case len(columns) > 1:
			values[i] = columns[1]
		case len(columns) == 1:
			values[i] = columns[0]
		default:
			return nil, errors.Errorf("empty contribution for feature %d", i)
		}
	}
	return values, nil
}

// Rank turns attribution values into the top-N list, ordered by absolute impact.
func Rank(names []string, values []float64, topN int) []Attribution {
	if topN <= 0 {
		topN = DefaultTopN
	}
	out := make([]Attribution, 0, len(values))
	for i, value := range values {
		direction := DirectionDecreases
		if value > 0 {
			direction = DirectionIncreases
		}
		out = append(out, Attribution{
			Feature:   names[i],
			Impact:    round4(abs(value)),
			RawValue:  round4(value),
			Direction: direction,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Impact > out[j].Impact
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

// Source hands out the cached explainer for a disease, building it on first use.
type Source interface {
	GetExplainer(disease ml.Disease, model ml.Classifier) (*Explainer, error)
}

// Engine computes explanations, degrading to an unavailable Explanation on any failure.
type Engine struct {
	source Source
	logger *zap.Logger
}

func NewEngine(source Source, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{source: source, logger: logger}
}

func (e *Engine) Explain(disease ml.Disease, model ml.Classifier, row []float64, names []string, topN int) (result Explanation) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("attribution panicked: %v", r)
			e.logger.Error("explanation failed", zap.String("disease", string(disease)), zap.Error(err))
			result = unavailable(err)
		}
	}()

	if len(names) != len(row) {
		return e.fail(disease, errors.Errorf("%d feature names for %d values", len(names), len(row)))
	}
	explainer, err := e.source.GetExplainer(disease, model)
	if err != nil {
		return e.fail(disease, err)
	}
	values, err := explainer.Values(row)
	if err != nil {
		return e.fail(disease, err)
	}

	features := Rank(names, values, topN)
	e.logger.Debug("explanation computed",
		zap.String("disease", string(disease)),
		zap.Int("features", len(values)))
	return Explanation{Available: true, Features: features}
}

func (e *Engine) fail(disease ml.Disease, err error) Explanation {
	e.logger.Warn("explanation unavailable", zap.String("disease", string(disease)), zap.Error(err))
	return unavailable(err)
}

func round4(v float64) float64 {
	return decimal.NewFromFloat(v).Round(4).InexactFloat64()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
