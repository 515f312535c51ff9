package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"
	"go.uber.org/zap"

	"mediassist/artifact"
	"mediassist/cache"
	"mediassist/config"
	"mediassist/db"
	qhttp "mediassist/http"
	"mediassist/logging"
	"mediassist/ml"
	"mediassist/monitoring"
	"mediassist/predict"
	"mediassist/schema"
)

type args struct {
	Config string `arg:"help:Path to config.yaml."`
	Port   int    `arg:"help:Listen port; overrides http.port."`
	Models string `arg:"help:Models directory; overrides models.dir."`
}

func (args) Description() string {
	return "Serve disease risk predictions over HTTP."
}

func main() {
	a := args{Config: "config.yaml"}
	arg.MustParse(&a)

	// 1. Load config
	cfg, err := config.Load(a.Config)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if a.Port != 0 {
		cfg.Http.Port = a.Port
	}
	if a.Models != "" {
		cfg.Models.Dir = a.Models
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Artifacts and the process-wide cache
	store := artifact.NewStore(cfg.Models.Dir)
	models, err := cache.New(store, logger)
	if err != nil {
		logger.Fatal("failed to create cache", zap.Error(err))
	}

	metrics := monitoring.NewMetrics(func() int { return len(models.Loaded()) })
	hub := monitoring.NewHub(logger, cfg.Http.AllowedOrigins)
	hub.OnClientCount(metrics.SetClients)
	go hub.Run(ctx)

	opts := []predict.Option{
		predict.WithLogger(logger),
		predict.WithPublisher(hub),
		predict.WithObserver(metrics),
	}
	if cfg.Models.Explain {
		opts = append(opts, predict.WithExplanations(models, cfg.Models.TopN))
	}

	// 3. Prediction history
	var (
		history qhttp.HistorySource
		stats   qhttp.StatsSource
	)
	if cfg.Database.Path != "" {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			logger.Fatal("failed to open database", zap.Error(err))
		}
		defer database.Close()
		logger.Info("database initialized", zap.String("path", cfg.Database.Path))
		opts = append(opts, predict.WithRecorder(database))
		history, stats = database, database
	}

	if cfg.Models.Preload {
		preload(ctx, models, store, logger)
	}

	if cfg.Models.Watch {
		watcher, err := artifact.NewWatcher(cfg.Models.Dir, logger, func(c artifact.Change) {
			hub.Send(monitoring.ArtifactMessage, string(c.Disease), c)
		})
		if err != nil {
			logger.Warn("artifact watcher disabled", zap.Error(err))
		} else {
			defer watcher.Close()
			go watcher.Run(ctx)
		}
	}

	api := qhttp.NewAPI(qhttp.Deps{
		Predictor: predict.NewService(models, opts...),
		Cache:     models,
		Metadata:  store,
		History:   history,
		Stats:     stats,
		Stream:    hub,
		Metrics:   metrics.Handler(),
		OnCacheClear: func() {
			metrics.CacheCleared()
			hub.Send(monitoring.CacheMessage, "", map[string]string{"status": "cleared"})
		},
		Logger: logger,
	})

	// 4. Start HTTP server
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout,
		AllowedOrigins: cfg.Http.AllowedOrigins,
	}, api, metrics, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// 5. Handle graceful shutdown
	<-ctx.Done()
	logger.Info("shutting down")
	if err := server.Stop(); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
}

// preload warms the cache and warns when stored metadata disagrees with the
// feature order requests are assembled in.
func preload(ctx context.Context, models *cache.Cache, store *artifact.Store, logger *zap.Logger) {
	for disease, status := range models.Preload(ctx, ml.Diseases()) {
		if status.Model != nil {
			continue
		}
		metadata, err := store.LoadMetadata(disease)
		if err != nil {
			logger.Debug("no metadata", zap.String("disease", string(disease)), zap.Error(err))
			continue
		}
		if !sameOrder(metadata.Features, schema.FeatureOrder(disease)) {
			logger.Warn("model was trained on a different feature order",
				zap.String("disease", string(disease)),
				zap.Strings("trained", metadata.Features),
				zap.Strings("expected", schema.FeatureOrder(disease)))
		}
	}
}

func sameOrder(trained, expected []string) bool {
	if len(trained) == 0 {
		return true
	}
	if len(trained) != len(expected) {
		return false
	}
	for i := range trained {
		if trained[i] != expected[i] {
			return false
		}
	}
	return true
}
