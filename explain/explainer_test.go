package explain

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediassist/ml"
)

// plainModel predicts but cannot attribute.
type plainModel struct{}

func (plainModel) PredictLabel([]float64) (int, error)       { return 1, nil }
func (plainModel) PredictProba([]float64) ([]float64, error) { return []float64{0.2, 0.8}, nil }
func (plainModel) NumFeatures() int                          { return 3 }

// matrixModel returns a fixed contribution matrix.
type matrixModel struct {
	plainModel
	matrix [][]float64
	err    error
}

func (m matrixModel) Contributions([]float64) ([][]float64, error) { return m.matrix, m.err }

// panicModel blows up during attribution.
type panicModel struct{ plainModel }

func (panicModel) Contributions(row []float64) ([][]float64, error) {
	var out [][]float64
	_ = out[len(row)]
	return out, nil
}

type mapSource struct {
	built map[ml.Disease]*Explainer
	calls int
}

func (s *mapSource) GetExplainer(disease ml.Disease, model ml.Classifier) (*Explainer, error) {
	s.calls++
	if e, ok := s.built[disease]; ok {
		return e, nil
	}
	e, err := New(model)
	if err != nil {
		return nil, err
	}
	s.built[disease] = e
	return e, nil
}

func newSource() *mapSource {
	return &mapSource{built: make(map[ml.Disease]*Explainer)}
}

var names = []string{"a", "b", "c"}

func TestRankOrdersByAbsoluteImpact(t *testing.T) {
	ranked := Rank([]string{"a", "b", "c", "d"}, []float64{0.1, -0.9, 0.5, 0.123456}, 3)
	require.Len(t, ranked, 3)
	assert.Equal(t, "b", ranked[0].Feature)
	assert.Equal(t, 0.9, ranked[0].Impact)
	assert.Equal(t, -0.9, ranked[0].RawValue)
	assert.Equal(t, DirectionDecreases, ranked[0].Direction)
	assert.Equal(t, "c", ranked[1].Feature)
	assert.Equal(t, DirectionIncreases, ranked[1].Direction)
	assert.Equal(t, "d", ranked[2].Feature)
	assert.Equal(t, 0.1235, ranked[2].Impact)
}

func TestRankZeroIsDecrease(t *testing.T) {
	ranked := Rank([]string{"a"}, []float64{0}, 0)
	assert.Equal(t, DirectionDecreases, ranked[0].Direction)
}

func TestExplainSelectsPositiveClassColumn(t *testing.T) {
	model := matrixModel{matrix: [][]float64{{0.3, -0.3}, {-0.1, 0.1}, {-0.6, 0.6}}}
	engine := NewEngine(newSource(), nil)

	result := engine.Explain(ml.Diabetes, model, []float64{1, 2, 3}, names, 2)
	require.True(t, result.Available)
	require.Len(t, result.Features, 2)
	assert.Equal(t, "c", result.Features[0].Feature)
	assert.Equal(t, 0.6, result.Features[0].RawValue)
	assert.Equal(t, "a", result.Features[1].Feature)
	assert.Equal(t, -0.3, result.Features[1].RawValue)
}

func TestExplainSingleColumn(t *testing.T) {
	model := matrixModel{matrix: [][]float64{{0.3}, {-0.5}, {0.2}}}
	result := NewEngine(newSource(), nil).Explain(ml.Diabetes, model, []float64{1, 2, 3}, names, 3)
	require.True(t, result.Available)
	assert.Equal(t, "b", result.Features[0].Feature)
}

func TestExplainCachesExplainerPerDisease(t *testing.T) {
	source := newSource()
	engine := NewEngine(source, nil)
	model := matrixModel{matrix: [][]float64{{1}, {2}, {3}}}

	engine.Explain(ml.HeartDisease, model, []float64{0, 0, 0}, names, 3)
	first := source.built[ml.HeartDisease]
	engine.Explain(ml.HeartDisease, model, []float64{0, 0, 0}, names, 3)
	assert.Same(t, first, source.built[ml.HeartDisease])
}

func TestExplainDegradesWithoutCapability(t *testing.T) {
	result := NewEngine(newSource(), nil).Explain(ml.Parkinsons, plainModel{}, []float64{1, 2, 3}, names, 3)
	assert.False(t, result.Available)
	assert.NotNil(t, result.Features)
	assert.Empty(t, result.Features)
	assert.Contains(t, result.Reason, "does not support")
}

func TestExplainDegradesOnComputationError(t *testing.T) {
	model := matrixModel{err: errors.New("boom")}
	result := NewEngine(newSource(), nil).Explain(ml.Diabetes, model, []float64{1, 2, 3}, names, 3)
	assert.False(t, result.Available)
	assert.Empty(t, result.Features)
}

func TestExplainDegradesOnPanic(t *testing.T) {
	result := NewEngine(newSource(), nil).Explain(ml.Diabetes, panicModel{}, []float64{1, 2, 3}, names, 3)
	assert.False(t, result.Available)
	assert.Empty(t, result.Features)
}

func TestExplainDegradesOnNameMismatch(t *testing.T) {
	model := matrixModel{matrix: [][]float64{{1}, {2}, {3}}}
	result := NewEngine(newSource(), nil).Explain(ml.Diabetes, model, []float64{1, 2, 3}, []string{"a"}, 3)
	assert.False(t, result.Available)
}

func TestNewRejectsPlainModel(t *testing.T) {
	_, err := New(plainModel{})
	assert.True(t, errors.Is(err, ErrUnsupportedModel))
}
