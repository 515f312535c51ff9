// Package cache holds the per-disease model, scaler and explainer for the
// lifetime of the process.
package cache

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"mediassist/artifact"
	"mediassist/explain"
	"mediassist/ml"
)

// Loader reads artifacts from storage. *artifact.Store implements it.
type Loader interface {
	LoadModel(disease ml.Disease) (ml.Classifier, error)
	LoadScaler(disease ml.Disease) (ml.Transformer, error)
}

// scalerEntry records a loaded scaler, or that none is available.
type scalerEntry struct {
	scaler ml.Transformer
	ok     bool
}

// explainerEntry remembers which model instance an explainer was built for.
type explainerEntry struct {
	model     ml.Classifier
	explainer *explain.Explainer
}

// Cache is safe for concurrent use. Entries are only evicted by Clear: each
// LRU is sized to the full disease set.
//
// Every Clear starts a new generation. A load that began in an earlier
// generation is returned to its caller but never stored.
type Cache struct {
	loader     Loader
	logger     *zap.Logger
	models     *lru.Cache[ml.Disease, ml.Classifier]
	scalers    *lru.Cache[ml.Disease, scalerEntry]
	explainers *lru.Cache[ml.Disease, explainerEntry]
	group      singleflight.Group

	mu         sync.Mutex
	generation uint64
}

// New creates an empty cache backed by loader.
func New(loader Loader, logger *zap.Logger) (*Cache, error) {
	if loader == nil {
		return nil, errors.New("loader is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	size := len(ml.Diseases())
	models, err := lru.New[ml.Disease, ml.Classifier](size)
	if err != nil {
		return nil, errors.Wrap(err, "create model cache")
	}
	scalers, err := lru.New[ml.Disease, scalerEntry](size)
	if err != nil {
		return nil, errors.Wrap(err, "create scaler cache")
	}
	explainers, err := lru.New[ml.Disease, explainerEntry](size)
	if err != nil {
		return nil, errors.Wrap(err, "create explainer cache")
	}
	return &Cache{
		loader:     loader,
		logger:     logger,
		models:     models,
		scalers:    scalers,
		explainers: explainers,
	}, nil
}

// GetModel returns the cached model, loading it on first use. A missing model
// file yields an error wrapping artifact.ErrArtifactNotFound.
func (c *Cache) GetModel(disease ml.Disease) (ml.Classifier, error) {
	if model, ok := c.models.Get(disease); ok {
		return model, nil
	}
	gen := c.currentGeneration()
	v, err, _ := c.group.Do(flightKey("model", disease, gen), func() (interface{}, error) {
		if model, ok := c.models.Get(disease); ok {
			return model, nil
		}
		model, err := c.loader.LoadModel(disease)
		if err != nil {
			return nil, err
		}
		if !c.storeIfCurrent(gen, func() { c.models.Add(disease, model) }) {
			c.logger.Debug("cache cleared during load, model not kept", zap.String("disease", string(disease)))
			return model, nil
		}
		c.logger.Info("model loaded",
			zap.String("disease", string(disease)),
			zap.String("kind", ml.ModelKind(model)),
			zap.Int("features", model.NumFeatures()))
		return model, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(ml.Classifier), nil
}

// GetScaler returns the cached scaler. The boolean is false when no scaler is
// available, in which case features are used unscaled.
func (c *Cache) GetScaler(disease ml.Disease) (ml.Transformer, bool, error) {
	if entry, ok := c.scalers.Get(disease); ok {
		return entry.scaler, entry.ok, nil
	}
	gen := c.currentGeneration()
	v, _, _ := c.group.Do(flightKey("scaler", disease, gen), func() (interface{}, error) {
		if entry, ok := c.scalers.Get(disease); ok {
			return entry, nil
		}
		scaler, err := c.loader.LoadScaler(disease)
		entry := scalerEntry{scaler: scaler, ok: err == nil && scaler != nil}
		switch {
		case errors.Is(err, artifact.ErrArtifactNotFound):
			c.logger.Warn("scaler not found, features will not be scaled", zap.String("disease", string(disease)))
		case err != nil:
			c.logger.Error("scaler failed to load, features will not be scaled",
				zap.String("disease", string(disease)), zap.Error(err))
		default:
			c.logger.Info("scaler loaded", zap.String("disease", string(disease)))
		}
		c.storeIfCurrent(gen, func() { c.scalers.Add(disease, entry) })
		return entry, nil
	})
	entry := v.(scalerEntry)
	return entry.scaler, entry.ok, nil
}

// GetExplainer returns the explainer built for model, constructing it on first
// use. It is only cached while model is the resident model of disease, so an
// explainer never outlives the model it explains. Construction failures are
// not cached.
func (c *Cache) GetExplainer(disease ml.Disease, model ml.Classifier) (*explain.Explainer, error) {
	if entry, ok := c.explainers.Get(disease); ok && entry.model == model {
		return entry.explainer, nil
	}
	gen := c.currentGeneration()
	v, err, _ := c.group.Do(flightKey("explainer", disease, gen), func() (interface{}, error) {
		if entry, ok := c.explainers.Get(disease); ok && entry.model == model {
			return entry.explainer, nil
		}
		c.logger.Info("creating explainer", zap.String("disease", string(disease)))
		e, err := explain.New(model)
		if err != nil {
			return nil, err
		}
		c.storeIfCurrent(gen, func() {
			if resident, ok := c.models.Peek(disease); ok && resident == model {
				c.explainers.Add(disease, explainerEntry{model: model, explainer: e})
			}
		})
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*explain.Explainer), nil
}

// Clear drops every cached artifact. The next Get* call reloads from storage.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.generation++
	c.models.Purge()
	c.scalers.Purge()
	c.explainers.Purge()
	c.mu.Unlock()
	c.logger.Info("cache cleared")
}

func (c *Cache) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// storeIfCurrent runs add unless Clear has been called since gen was read.
func (c *Cache) storeIfCurrent(gen uint64, add func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	add()
	return true
}

// flightKey scopes singleflight calls to one generation so a caller arriving
// after Clear never joins a load that started before it.
func flightKey(kind string, disease ml.Disease, gen uint64) string {
	return fmt.Sprintf("%s:%s:%d", kind, disease, gen)
}

// Loaded lists the diseases whose model is currently cached.
func (c *Cache) Loaded() []ml.Disease {
	return c.models.Keys()
}

// PreloadStatus is the outcome of preloading one disease.
type PreloadStatus struct {
	Model  error
	Scaler bool
}

// Preload loads the model and scaler for each disease. Failures are logged and
// reported per disease, never returned: a disease that fails here fails again on
// its first request.
func (c *Cache) Preload(ctx context.Context, diseases []ml.Disease) map[ml.Disease]PreloadStatus {
	c.logger.Info("preloading models and scalers", zap.Int("diseases", len(diseases)))
	status := make(map[ml.Disease]PreloadStatus, len(diseases))
	for _, disease := range diseases {
		if err := ctx.Err(); err != nil {
			status[disease] = PreloadStatus{Model: err}
			continue
		}
		var s PreloadStatus
		if _, err := c.GetModel(disease); err != nil {
			s.Model = err
			c.logger.Error("failed to preload", zap.String("disease", string(disease)), zap.Error(err))
			status[disease] = s
			continue
		}
		_, s.Scaler, _ = c.GetScaler(disease)
		status[disease] = s
		c.logger.Info("preloaded", zap.String("disease", string(disease)), zap.Bool("scaler", s.Scaler))
	}
	return status
}
