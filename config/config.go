// Package config loads config.yaml for the server and the trainer.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Http struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"http"`
	Models struct {
		Dir     string `yaml:"dir"`
		Preload bool   `yaml:"preload"`
		Explain bool   `yaml:"explain"`
		TopN    int    `yaml:"top_n"`
		Watch   bool   `yaml:"watch"`
	} `yaml:"models"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	Training struct {
		DataDir      string  `yaml:"data_dir"`
		TestRatio    float64 `yaml:"test_ratio"`
		Seed         int64   `yaml:"seed"`
		Trees        int     `yaml:"trees"`
		MaxTreeDepth int     `yaml:"max_tree_depth"`
		Epochs       int     `yaml:"epochs"`
		LearningRate float64 `yaml:"learning_rate"`
	} `yaml:"training"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load decodes path on top of the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	c := &Config{}
	file, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, errors.Wrapf(err, "open %s", path)
	default:
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(c); err != nil {
			return nil, errors.Wrapf(err, "decode %s", path)
		}
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid %s", path)
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Http.Port == 0 {
		c.Http.Port = 5000
	}
	if c.Http.Timeout == 0 {
		c.Http.Timeout = 30 * time.Second
	}
	if c.Http.AllowedOrigins == nil {
		c.Http.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:3001"}
	}
	if c.Models.Dir == "" {
		c.Models.Dir = "models"
	}
	if c.Models.TopN <= 0 {
		c.Models.TopN = 3
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 5
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 28
	}
	if c.Training.DataDir == "" {
		c.Training.DataDir = "data"
	}
	if c.Training.TestRatio == 0 {
		c.Training.TestRatio = 0.2
	}
	if c.Training.Seed == 0 {
		c.Training.Seed = 42
	}
	if c.Training.Trees == 0 {
		c.Training.Trees = 100
	}
	if c.Training.MaxTreeDepth == 0 {
		c.Training.MaxTreeDepth = 10
	}
	if c.Training.Epochs == 0 {
		c.Training.Epochs = 1000
	}
	if c.Training.LearningRate == 0 {
		c.Training.LearningRate = 0.1
	}
}

func (c *Config) Validate() error {
	if c.Http.Port < 0 || c.Http.Port > 65535 {
		return errors.Errorf("http.port %d out of range", c.Http.Port)
	}
	if c.Training.TestRatio <= 0 || c.Training.TestRatio >= 1 {
		return errors.Errorf("training.test_ratio %v must be in (0, 1)", c.Training.TestRatio)
	}
	return nil
}
