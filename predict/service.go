package predict

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"mediassist/artifact"
	"mediassist/explain"
	"mediassist/ml"
	"mediassist/report"
	"mediassist/schema"
)

// Event describes one completed prediction. It is what gets recorded and
// broadcast; it carries no input features.
type Event struct {
	ID          string           `json:"id"`
	Disease     ml.Disease       `json:"disease"`
	Label       int              `json:"label"`
	Probability float64          `json:"probability"`
	RiskLevel   report.RiskLevel `json:"risk_level"`
	Latency     time.Duration    `json:"latency_ns"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Recorder persists prediction events.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// Publisher fans prediction events out to live subscribers.
type Publisher interface {
	Publish(event Event)
}

// Observer receives per-request outcomes, e.g. for metrics.
type Observer interface {
	ObservePrediction(disease ml.Disease, level report.RiskLevel, latency time.Duration)
	ObserveFailure(disease ml.Disease, reason string)
}

// Failure reasons passed to Observer.ObserveFailure.
const (
	ReasonValidation = "validation"
	ReasonArtifact   = "artifact"
	ReasonInference  = "inference"
	ReasonInternal   = "internal"
)

// Reason classifies err into one of the Reason* constants.
func Reason(err error) string {
	switch {
	case errors.Is(err, schema.ErrValidation):
		return ReasonValidation
	case errors.Is(err, artifact.ErrArtifactNotFound):
		return ReasonArtifact
	case errors.Is(err, ErrInferenceFailure):
		return ReasonInference
	default:
		return ReasonInternal
	}
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithExplanations attaches the top-N feature attributions to every response.
func WithExplanations(source explain.Source, topN int) Option {
	return func(s *Service) {
		s.explainSource = source
		s.topN = topN
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// Service validates raw input, scores it and formats the response.
type Service struct {
	engine        *Engine
	logger        *zap.Logger
	explainSource explain.Source
	explainer     *explain.Engine
	topN          int
	recorder      Recorder
	publisher     Publisher
	observer      Observer
	now           func() time.Time
}

func NewService(source ModelSource, opts ...Option) *Service {
	s := &Service{
		engine: NewEngine(source),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.explainSource != nil {
		s.explainer = explain.NewEngine(s.explainSource, s.logger.Named("explain"))
	}
	return s
}

// Predict runs the full pipeline for one request. Validation errors satisfy
// errors.Is(err, schema.ErrValidation); anything else is an internal failure.
func (s *Service) Predict(ctx context.Context, disease ml.Disease, raw map[string]any) (*report.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := s.now()

	features, err := schema.Validate(disease, raw)
	if err != nil {
		s.fail(disease, err)
		return nil, err
	}

	out, err := s.engine.Run(disease, features)
	if err != nil {
		s.fail(disease, err)
		return nil, err
	}

	resp := report.Format(out.Label, out.Probabilities, disease)
	if s.explainer != nil {
		resp.WithExplanation(s.explainer.Explain(disease, out.Model, out.Row, out.Features, s.topN))
	}
	resp.ID = uuid.NewString()

	event := Event{
		ID:          resp.ID,
		Disease:     disease,
		Label:       out.Label,
		Probability: resp.Prediction.Probability,
		RiskLevel:   resp.RiskAssessment.Level,
		CreatedAt:   start.UTC(),
	}
	event.Latency = s.now().Sub(start)

	s.logger.Info("prediction",
		zap.String("id", event.ID),
		zap.String("disease", string(disease)),
		zap.Int("label", event.Label),
		zap.Float64("probability", event.Probability),
		zap.String("risk", string(event.RiskLevel)),
		zap.Bool("scaled", out.Scaled),
		zap.Duration("latency", event.Latency))

	if s.recorder != nil {
		if err := s.recorder.Record(ctx, event); err != nil {
			s.logger.Warn("failed to record prediction", zap.String("id", event.ID), zap.Error(err))
		}
	}
	if s.publisher != nil {
		s.publisher.Publish(event)
	}
	if s.observer != nil {
		s.observer.ObservePrediction(disease, event.RiskLevel, event.Latency)
	}
	return resp, nil
}

func (s *Service) fail(disease ml.Disease, err error) {
	reason := Reason(err)
	if reason == ReasonValidation {
		s.logger.Debug("rejected input", zap.String("disease", string(disease)), zap.Error(err))
	} else {
		s.logger.Error("prediction failed", zap.String("disease", string(disease)), zap.Error(err))
	}
	if s.observer != nil {
		s.observer.ObserveFailure(disease, reason)
	}
}
