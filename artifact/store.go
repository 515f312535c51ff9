// Package artifact reads and writes the per-disease model, scaler and metadata
// files kept under a single models directory.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/peterbourgon/diskv"
	"github.com/pkg/errors"

	"mediassist/ml"
)

// ErrArtifactNotFound is returned when the requested artifact file does not exist.
var ErrArtifactNotFound = errors.New("artifact not found")

// Kind names one of the three files stored per disease.
type Kind string

const (
	KindModel    Kind = "model"
	KindScaler   Kind = "scaler"
	KindMetadata Kind = "metadata"
)

// Key returns the file name for a disease artifact, e.g. "diabetes_model".
func Key(disease ml.Disease, kind Kind) string {
	return fmt.Sprintf("%s_%s", disease, kind)
}

// Metadata is written by the trainer next to the model. It is informational only.
type Metadata struct {
	Disease      ml.Disease `json:"disease"`
	ModelName    string     `json:"model_name"`
	Metrics      ml.Metrics `json:"metrics"`
	TrainingDate time.Time  `json:"training_date"`
	TrainSamples int        `json:"train_samples"`
	TestSamples  int        `json:"test_samples"`
	Features     []string   `json:"features"`
}

// Store is a flat key/value view over the models directory.
type Store struct {
	dir string
	dv  *diskv.Diskv
}

// NewStore opens the models directory. The directory is created on first write.
func NewStore(dir string) *Store {
	return &Store{
		dir: dir,
		dv: diskv.New(diskv.Options{
			BasePath:     dir,
			Transform:    func(string) []string { return []string{} },
			CacheSizeMax: 0,
			FilePerm:     0o644,
			PathPerm:     0o755,
		}),
	}
}

// Dir returns the models directory.
func (s *Store) Dir() string {
	return s.dir
}

// Has reports whether the artifact file exists.
func (s *Store) Has(disease ml.Disease, kind Kind) bool {
	return s.dv.Has(Key(disease, kind))
}

func (s *Store) read(disease ml.Disease, kind Kind) ([]byte, error) {
	key := Key(disease, kind)
	payload, err := s.dv.Read(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrArtifactNotFound, "%s in %s", key, s.dir)
		}
		return nil, errors.Wrapf(err, "read %s", key)
	}
	return payload, nil
}

// LoadModel reads and decodes <disease>_model.
func (s *Store) LoadModel(disease ml.Disease) (ml.Classifier, error) {
	payload, err := s.read(disease, KindModel)
	if err != nil {
		return nil, err
	}
	model, err := ml.LoadModel(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", Key(disease, KindModel))
	}
	return model, nil
}

// LoadScaler reads and decodes <disease>_scaler.
func (s *Store) LoadScaler(disease ml.Disease) (ml.Transformer, error) {
	payload, err := s.read(disease, KindScaler)
	if err != nil {
		return nil, err
	}
	var scaler ml.StandardScaler
	if err := json.Unmarshal(payload, &scaler); err != nil {
		return nil, errors.Wrapf(err, "load %s", Key(disease, KindScaler))
	}
	if len(scaler.Mean) == 0 || len(scaler.Mean) != len(scaler.Scale) {
		return nil, errors.Errorf("load %s: scaler has %d means and %d scales",
			Key(disease, KindScaler), len(scaler.Mean), len(scaler.Scale))
	}
	return &scaler, nil
}

// LoadMetadata reads <disease>_metadata.
func (s *Store) LoadMetadata(disease ml.Disease) (*Metadata, error) {
	payload, err := s.read(disease, KindMetadata)
	if err != nil {
		return nil, err
	}
	var metadata Metadata
	if err := json.Unmarshal(payload, &metadata); err != nil {
		return nil, errors.Wrapf(err, "load %s", Key(disease, KindMetadata))
	}
	return &metadata, nil
}

func (s *Store) SaveModel(disease ml.Disease, model ml.Classifier) error {
	payload, err := ml.MarshalModel(model)
	if err != nil {
		return errors.Wrapf(err, "encode %s", Key(disease, KindModel))
	}
	return s.write(disease, KindModel, payload)
}

func (s *Store) SaveScaler(disease ml.Disease, scaler *ml.StandardScaler) error {
	payload, err := json.Marshal(scaler)
	if err != nil {
		return errors.Wrapf(err, "encode %s", Key(disease, KindScaler))
	}
	return s.write(disease, KindScaler, payload)
}

func (s *Store) SaveMetadata(disease ml.Disease, metadata *Metadata) error {
	payload, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode %s", Key(disease, KindMetadata))
	}
	return s.write(disease, KindMetadata, payload)
}

func (s *Store) write(disease ml.Disease, kind Kind, payload []byte) error {
	key := Key(disease, kind)
	if err := s.dv.Write(key, payload); err != nil {
		return errors.Wrapf(err, "write %s", key)
	}
	return nil
}

// Remove deletes an artifact file. Removing a missing artifact is not an error.
func (s *Store) Remove(disease ml.Disease, kind Kind) error {
	if !s.Has(disease, kind) {
		return nil
	}
	return errors.Wrapf(s.dv.Erase(Key(disease, kind)), "remove %s", Key(disease, kind))
}
