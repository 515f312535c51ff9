package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/cheggaaa/pb/v3"

	"mediassist/artifact"
	"mediassist/config"
	"mediassist/db"
	"mediassist/ml"
	"mediassist/schema"
)

type args struct {
	Disease string `arg:"positional,help:diabetes, heart-disease, parkinsons or all."`
	CSV     string `arg:"help:Training CSV (default data_dir/raw/<disease>/<disease>_dataset.csv)."`
	Label   string `arg:"help:Label column (default depends on the disease)."`
	Models  string `arg:"help:Models directory; overrides models.dir."`
	Config  string `arg:"help:Path to config.yaml."`
	DB      string `arg:"help:SQLite database to append the training log to; overrides database.path."`
}

func (args) Description() string {
	return "Train the disease risk models and write their artifacts."
}

func main() {
	a := args{Disease: "all", Config: "config.yaml"}
	arg.MustParse(&a)

	cfg, err := config.Load(a.Config)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if a.Models != "" {
		cfg.Models.Dir = a.Models
	}
	if a.DB != "" {
		cfg.Database.Path = a.DB
	}

	diseases := ml.Diseases()
	if a.Disease != "all" {
		d, err := ml.ParseDisease(a.Disease)
		if err != nil {
			log.Fatal(err)
		}
		diseases = []ml.Disease{d}
	}
	if len(diseases) > 1 && (a.CSV != "" || a.Label != "") {
		log.Fatal("--csv and --label need a single disease")
	}

	var database *db.DB
	if cfg.Database.Path != "" {
		if database, err = db.Open(cfg.Database.Path); err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()
	}

	store := artifact.NewStore(cfg.Models.Dir)
	for _, disease := range diseases {
		path, label := a.CSV, a.Label
		if path == "" {
			path = defaultCSV(cfg.Training.DataDir, disease)
		}
		if label == "" {
			label = labelColumns[disease]
		}
		if err := run(store, database, cfg, disease, path, label); err != nil {
			log.Fatalf("%s: %v", disease, err)
		}
	}
}

func run(store *artifact.Store, database *db.DB, cfg *config.Config, disease ml.Disease, path, label string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	dataset, err := ml.ReadCSV(file, schema.FeatureOrder(disease), label)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	log.Printf("%s: %d rows from %s", disease, len(dataset.Features), path)

	bar := pb.StartNew(cfg.Training.Trees)
	result, err := train(disease, dataset, trainOptions{
		TestRatio:    cfg.Training.TestRatio,
		Seed:         cfg.Training.Seed,
		Trees:        cfg.Training.Trees,
		MaxTreeDepth: cfg.Training.MaxTreeDepth,
		Epochs:       cfg.Training.Epochs,
		LearningRate: cfg.Training.LearningRate,
		OnTree:       func() { bar.Increment() },
	})
	bar.Finish()
	if err != nil {
		return err
	}

	for _, c := range result.Candidates {
		log.Printf("%s: %-20s accuracy=%.4f precision=%.4f recall=%.4f f1=%.4f",
			disease, c.Name, c.Metrics.Accuracy, c.Metrics.Precision, c.Metrics.Recall, c.Metrics.F1)
	}
	if err := save(store, disease, result); err != nil {
		return err
	}
	fmt.Printf("%s: saved %s to %s\n", disease, result.Best.Name, store.Dir())

	if database != nil {
		if err := database.SaveTrainingLog(context.Background(), db.TrainingLog{
			Disease:    disease,
			ModelName:  result.Best.Name,
			Metrics:    result.Best.Metrics,
			TrainedAt:  result.Metadata.TrainingDate,
			DataPoints: len(dataset.Features),
		}); err != nil {
			return fmt.Errorf("save training log: %w", err)
		}
	}
	return nil
}
