package main

import (
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"mediassist/artifact"
	"mediassist/ml"
	"mediassist/schema"
)

// labelColumns are the target columns of the raw datasets.
var labelColumns = map[ml.Disease]string{
	ml.Diabetes:     "CLASS",
	ml.HeartDisease: "target",
	ml.Parkinsons:   "Diagnosis",
}

// defaultCSV returns data/raw/<disease>/<disease>_dataset.csv under dataDir.
func defaultCSV(dataDir string, disease ml.Disease) string {
	return filepath.Join(dataDir, "raw", string(disease), string(disease)+"_dataset.csv")
}

type trainOptions struct {
	TestRatio    float64
	Seed         int64
	Trees        int
	MaxTreeDepth int
	Epochs       int
	LearningRate float64
	// OnTree is called after each random forest tree is fitted.
	OnTree func()
}

type candidate struct {
	Name    string
	Model   ml.Classifier
	Metrics ml.Metrics
}

type trainResult struct {
	Best       candidate
	Candidates []candidate
	Scaler     *ml.StandardScaler
	Metadata   *artifact.Metadata
}

// train fits every model kind on a scaled split of dataset and keeps the one
// with the best held-out accuracy. Ties go to the simpler model.
func train(disease ml.Disease, dataset *ml.Dataset, opts trainOptions) (*trainResult, error) {
	features := schema.FeatureOrder(disease)
	if features == nil {
		return nil, errors.Errorf("unknown disease %q", disease)
	}
	trainSet, testSet := dataset.Split(opts.TestRatio, opts.Seed)
	if len(trainSet.Features) == 0 || len(testSet.Features) == 0 {
		return nil, errors.Errorf("need rows on both sides of the split, got %d/%d",
			len(trainSet.Features), len(testSet.Features))
	}

	scaler, err := ml.FitStandardScaler(trainSet.Features, features)
	if err != nil {
		return nil, errors.Wrap(err, "fit scaler")
	}
	trainX, err := scaler.TransformAll(trainSet.Features)
	if err != nil {
		return nil, errors.Wrap(err, "scale train set")
	}
	testX, err := scaler.TransformAll(testSet.Features)
	if err != nil {
		return nil, errors.Wrap(err, "scale test set")
	}

	lr := &ml.LogisticRegression{}
	if err := lr.Train(trainX, trainSet.Labels, opts.Epochs, opts.LearningRate); err != nil {
		return nil, errors.Wrap(err, "train logistic regression")
	}
	tree := ml.NewDecisionTree()
	if err := tree.Train(trainX, trainSet.Labels, opts.MaxTreeDepth); err != nil {
		return nil, errors.Wrap(err, "train decision tree")
	}
	forest := &ml.RandomForest{}
	if err := forest.Train(trainX, trainSet.Labels, ml.ForestConfig{
		Trees:    opts.Trees,
		MaxDepth: opts.MaxTreeDepth,
		Seed:     opts.Seed,
		OnTree:   opts.OnTree,
	}); err != nil {
		return nil, errors.Wrap(err, "train random forest")
	}

	result := &trainResult{Scaler: scaler}
	for _, model := range []ml.Classifier{lr, tree, forest} {
		metrics, err := ml.Evaluate(model, testX, testSet.Labels)
		if err != nil {
			return nil, errors.Wrapf(err, "evaluate %s", ml.ModelKind(model))
		}
		c := candidate{Name: ml.ModelKind(model), Model: model, Metrics: metrics}
		result.Candidates = append(result.Candidates, c)
		if result.Best.Model == nil || c.Metrics.Accuracy > result.Best.Metrics.Accuracy {
			result.Best = c
		}
	}

	result.Metadata = &artifact.Metadata{
		Disease:      disease,
		ModelName:    result.Best.Name,
		Metrics:      result.Best.Metrics,
		TrainingDate: time.Now().UTC(),
		TrainSamples: len(trainSet.Features),
		TestSamples:  len(testSet.Features),
		Features:     features,
	}
	return result, nil
}

// save writes the winning model, its scaler and the metadata. The previous
// metadata is removed first so a save that fails halfway never leaves metadata
// describing a model that is no longer on disk.
func save(store *artifact.Store, disease ml.Disease, result *trainResult) error {
	if err := store.Remove(disease, artifact.KindMetadata); err != nil {
		return err
	}
	if err := store.SaveModel(disease, result.Best.Model); err != nil {
		return err
	}
	if err := store.SaveScaler(disease, result.Scaler); err != nil {
		return err
	}
	return store.SaveMetadata(disease, result.Metadata)
}
