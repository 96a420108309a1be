package config

import (
	"time"

	"github.com/pkg/errors"
)

// Config is the root configuration shared by the train and serve commands.
type Config struct {
	Console  bool            `yaml:"console" mapstructure:"console"`
	Verbose  bool            `yaml:"verbose" mapstructure:"verbose"`
	Server   *ServerConfig   `yaml:"server" mapstructure:"server"`
	Data     *DataConfig     `yaml:"data" mapstructure:"data"`
	Training *TrainingConfig `yaml:"training" mapstructure:"training"`
	Tracking *TrackingConfig `yaml:"tracking" mapstructure:"tracking"`
}

type ServerConfig struct {
	// Port is the port the HTTP server listens on.
	Port int `yaml:"port" mapstructure:"port"`

	// ModelPath is the checkpoint loaded at startup.
	ModelPath string `yaml:"modelPath" mapstructure:"modelPath"`

	// ShutdownTimeout bounds the drain on SIGINT/SIGTERM.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" mapstructure:"shutdownTimeout"`
}

type DataConfig struct {
	// Root is the dataset directory. Either pre-split (train/ val/ test/)
	// or flat class directories partitioned by Seed.
	Root string `yaml:"root" mapstructure:"root"`

	// Seed drives the deterministic split of a flat root.
	Seed int64 `yaml:"seed" mapstructure:"seed"`

	// TrainRatio and ValRatio cut a flat root; the remainder is the test set.
	TrainRatio float64 `yaml:"trainRatio" mapstructure:"trainRatio"`
	ValRatio   float64 `yaml:"valRatio" mapstructure:"valRatio"`

	// BatchSize groups samples into one tensor stack.
	BatchSize int `yaml:"batchSize" mapstructure:"batchSize"`

	// MaxSamples caps each partition for quick runs. Zero means no cap.
	MaxSamples int `yaml:"maxSamples" mapstructure:"maxSamples"`

	// Validate pre-decodes every image before training and drops unreadable
	// files with a warning instead of failing mid-epoch.
	Validate bool `yaml:"validate" mapstructure:"validate"`
}

type TrainingConfig struct {
	Epochs       int     `yaml:"epochs" mapstructure:"epochs"`
	LearningRate float64 `yaml:"learningRate" mapstructure:"learningRate"`
	WeightDecay  float64 `yaml:"weightDecay" mapstructure:"weightDecay"`
	Dropout      float64 `yaml:"dropout" mapstructure:"dropout"`

	// Seed drives parameter initialization and augmentation.
	Seed int64 `yaml:"seed" mapstructure:"seed"`

	// CheckpointDir receives epoch_NNN.ckpt files and best.ckpt.
	CheckpointDir string `yaml:"checkpointDir" mapstructure:"checkpointDir"`

	// EarlyStopPatience stops after this many epochs without a validation
	// accuracy improvement. Zero disables early stopping.
	EarlyStopPatience int `yaml:"earlyStopPatience" mapstructure:"earlyStopPatience"`
}

type TrackingConfig struct {
	// Addr is the experiment-tracking endpoint. Empty disables tracking.
	Addr string `yaml:"addr" mapstructure:"addr"`

	// Experiment names the run group on the tracking side.
	Experiment string `yaml:"experiment" mapstructure:"experiment"`

	// Timeout bounds each tracking request.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Console: true,
		Server: &ServerConfig{
			Port:            8080,
			ModelPath:       "models/best.ckpt",
			ShutdownTimeout: 10 * time.Second,
		},
		Data: &DataConfig{
			Root:       "data/raw",
			Seed:       42,
			TrainRatio: 0.7,
			ValRatio:   0.15,
			BatchSize:  32,
		},
		Training: &TrainingConfig{
			Epochs:        10,
			LearningRate:  1e-3,
			WeightDecay:   1e-4,
			Dropout:       0.5,
			Seed:          42,
			CheckpointDir: "models",
		},
		Tracking: &TrackingConfig{
			Experiment: "cats-vs-dogs",
			Timeout:    5 * time.Second,
		},
	}
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("invalid server port %d", c.Server.Port)
	}

	if c.Data.BatchSize <= 0 {
		return errors.Errorf("batch size must be positive, got %d", c.Data.BatchSize)
	}

	if c.Data.TrainRatio <= 0 || c.Data.ValRatio <= 0 ||
		c.Data.TrainRatio+c.Data.ValRatio >= 1 {
		return errors.Errorf("split ratios train=%v val=%v must be positive and sum below 1",
			c.Data.TrainRatio, c.Data.ValRatio)
	}

	if c.Training.Epochs <= 0 {
		return errors.Errorf("epochs must be positive, got %d", c.Training.Epochs)
	}

	if c.Training.LearningRate <= 0 {
		return errors.Errorf("learning rate must be positive, got %v", c.Training.LearningRate)
	}

	if c.Training.Dropout < 0 || c.Training.Dropout >= 1 {
		return errors.Errorf("dropout must be in [0, 1), got %v", c.Training.Dropout)
	}

	if c.Training.CheckpointDir == "" {
		return errors.New("checkpoint dir is required")
	}

	return nil
}
