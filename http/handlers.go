package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"mediassist/artifact"
	"mediassist/db"
	"mediassist/ml"
	"mediassist/predict"
	"mediassist/report"
	"mediassist/schema"
)

const (
	apiName    = "MediAssist API"
	apiVersion = "1.0.0"
	maxBody    = 1 << 20
)

// Predictor runs one prediction. *predict.Service implements it.
type Predictor interface {
	Predict(ctx context.Context, disease ml.Disease, raw map[string]any) (*report.Response, error)
}

// CacheControl is the subset of *cache.Cache exposed over HTTP.
type CacheControl interface {
	Clear()
	Loaded() []ml.Disease
}

// MetadataSource reads training metadata. *artifact.Store implements it.
type MetadataSource interface {
	LoadMetadata(disease ml.Disease) (*artifact.Metadata, error)
}

// HistorySource lists recorded predictions. *db.DB implements it.
type HistorySource interface {
	Recent(ctx context.Context, disease ml.Disease, limit int) ([]predict.Event, error)
}

// StatsSource summarizes recorded predictions and training runs. *db.DB
// implements it.
type StatsSource interface {
	Counts(ctx context.Context) (map[ml.Disease]int, error)
	LoadTrainingLog(ctx context.Context) ([]db.TrainingLog, error)
}

// Deps are the collaborators of the API. Predictor is required; the rest
// disable their routes when nil. OnCacheClear runs after every explicit clear.
type Deps struct {
	Predictor    Predictor
	Cache        CacheControl
	Metadata     MetadataSource
	History      HistorySource
	Stats        StatsSource
	Stream       http.Handler
	Metrics      http.Handler
	OnCacheClear func()
	Logger       *zap.Logger
}

type API struct {
	deps   Deps
	logger *zap.Logger
}

func NewAPI(deps Deps) *API {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{deps: deps, logger: logger}
}

// RegisterHandlers mounts every route on mux.
func (a *API) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", a.handleIndex)
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.HandleFunc("POST /api/predict/{disease}", a.handlePredict)
	mux.HandleFunc("GET /api/models", a.handleModels)
	mux.HandleFunc("POST /api/cache/clear", a.handleCacheClear)
	mux.HandleFunc("GET /api/predictions/recent", a.handleRecent)
	if a.deps.Stream != nil {
		mux.Handle("GET /api/ws/predictions", a.deps.Stream)
	}
	if a.deps.Metrics != nil {
		mux.Handle("GET /metrics", a.deps.Metrics)
	}
}

func (a *API) handleIndex(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]string{
		"health":      "GET /api/health",
		"models":      "GET /api/models",
		"cache_clear": "POST /api/cache/clear",
		"recent":      "GET /api/predictions/recent",
		"stream":      "GET /api/ws/predictions",
		"metrics":     "GET /metrics",
	}
	for _, d := range ml.Diseases() {
		endpoints["predict_"+string(d)] = "POST /api/predict/" + d.Slug()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message":   apiName,
		"version":   apiVersion,
		"endpoints": endpoints,
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "API is running"})
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	disease, err := ml.ParseDisease(r.PathValue("disease"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var raw map[string]any
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid data format: "+err.Error())
		return
	}
	if raw == nil {
		writeError(w, http.StatusBadRequest, "Invalid data format: body must be a JSON object")
		return
	}

	resp, err := a.deps.Predictor.Predict(r.Context(), disease, raw)
	if err != nil {
		if errors.Is(err, schema.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.logger.Error("prediction failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("disease", string(disease)),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

type modelInfo struct {
	Disease      ml.Disease         `json:"disease"`
	Name         string             `json:"name"`
	Route        string             `json:"route"`
	Loaded       bool               `json:"loaded"`
	FeatureOrder []string           `json:"feature_order"`
	Metadata     *artifact.Metadata `json:"metadata"`
	Predictions  *int               `json:"predictions,omitempty"`
	LastTraining *db.TrainingLog    `json:"last_training,omitempty"`
	Error        string             `json:"error,omitempty"`
}

func (a *API) handleModels(w http.ResponseWriter, r *http.Request) {
	loaded := make(map[ml.Disease]bool)
	if a.deps.Cache != nil {
		for _, d := range a.deps.Cache.Loaded() {
			loaded[d] = true
		}
	}

	var (
		counts   map[ml.Disease]int
		training = make(map[ml.Disease]*db.TrainingLog)
	)
	if a.deps.Stats != nil {
		var err error
		if counts, err = a.deps.Stats.Counts(r.Context()); err != nil {
			a.logger.Warn("prediction counts unavailable", zap.Error(err))
		}
		logs, err := a.deps.Stats.LoadTrainingLog(r.Context())
		if err != nil {
			a.logger.Warn("training log unavailable", zap.Error(err))
		}
		// newest first, so the first row per disease is the latest run
		for i := range logs {
			if _, ok := training[logs[i].Disease]; !ok {
				training[logs[i].Disease] = &logs[i]
			}
		}
	}

	models := make([]modelInfo, 0, len(ml.Diseases()))
	for _, d := range ml.Diseases() {
		info := modelInfo{
			Disease:      d,
			Name:         d.DisplayName(),
			Route:        "/api/predict/" + d.Slug(),
			Loaded:       loaded[d],
			FeatureOrder: schema.FeatureOrder(d),
			LastTraining: training[d],
		}
		if counts != nil {
			n := counts[d]
			info.Predictions = &n
		}
		if a.deps.Metadata != nil {
			metadata, err := a.deps.Metadata.LoadMetadata(d)
			switch {
			case err == nil:
				info.Metadata = metadata
			case !errors.Is(err, artifact.ErrArtifactNotFound):
				info.Error = err.Error()
			}
		}
		models = append(models, info)
	}
	respondJSON(w, http.StatusOK, map[string]any{"models": models})
}

func (a *API) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if a.deps.Cache == nil {
		writeError(w, http.StatusNotFound, "cache control is not enabled")
		return
	}
	a.deps.Cache.Clear()
	if a.deps.OnCacheClear != nil {
		a.deps.OnCacheClear()
	}
	a.logger.Info("cache cleared over http", zap.String("request_id", GetRequestID(r.Context())))
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Cache cleared"})
}

func (a *API) handleRecent(w http.ResponseWriter, r *http.Request) {
	if a.deps.History == nil {
		writeError(w, http.StatusNotFound, "prediction history is not enabled")
		return
	}

	var disease ml.Disease
	if s := r.URL.Query().Get("disease"); s != "" {
		d, err := ml.ParseDisease(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		disease = d
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l <= 0 || l > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = l
	}

	events, err := a.deps.History.Recent(r.Context(), disease, limit)
	if err != nil {
		a.logger.Error("history query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"predictions": events})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError uses the {"detail": ...} body shape for every error response.
func writeError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail})
}
