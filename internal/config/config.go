// Package config loads the pipeline configuration. The whole surface is one
// YAML file read once at startup; the resulting struct is treated as
// read-only for the rest of the run.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/medcost/pkg/errors"
)

// Config is the externally supplied configuration surface: data locations,
// split parameters, feature lists and per-algorithm hyperparameters.
type Config struct {
	Data     Data     `yaml:"data"`
	Features Features `yaml:"features"`
	Model    Model    `yaml:"model"`
	Tracking Tracking `yaml:"tracking"`
	Output   Output   `yaml:"output"`
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
}

// Data locates the raw dataset and controls the train/test split.
type Data struct {
	RawPath      string  `yaml:"raw_path"`
	ProcessedDir string  `yaml:"processed_dir"`
	TestSize     float64 `yaml:"test_size"`
	RandomState  int64   `yaml:"random_state"`
}

// Features declares the column roles. Order matters: the feature vector is
// numerical columns first, then categorical, in the listed order.
type Features struct {
	Numerical   []string `yaml:"numerical"`
	Categorical []string `yaml:"categorical"`
	Target      string   `yaml:"target"`
}

// Model lists the candidate algorithms and their fixed hyperparameters.
type Model struct {
	Algorithms       []string         `yaml:"algorithms"`
	RandomForest     RandomForest     `yaml:"random_forest"`
	GradientBoosting GradientBoosting `yaml:"gradient_boosting"`
}

// RandomForest holds the bagged-tree hyperparameters.
type RandomForest struct {
	NEstimators    int `yaml:"n_estimators"`
	MaxDepth       int `yaml:"max_depth"`
	MinSamplesLeaf int `yaml:"min_samples_leaf"`
	MaxFeatures    int `yaml:"max_features"`
}

// GradientBoosting holds the boosted-tree hyperparameters.
type GradientBoosting struct {
	NEstimators  int     `yaml:"n_estimators"`
	LearningRate float64 `yaml:"learning_rate"`
	MaxDepth     int     `yaml:"max_depth"`
	Subsample    float64 `yaml:"subsample"`
}

// Tracking configures the experiment-tracking sink.
type Tracking struct {
	DBPath     string `yaml:"db_path"`
	Experiment string `yaml:"experiment"`
}

// Output locates the persisted artifact and metric files.
type Output struct {
	ArtifactDir string `yaml:"artifact_dir"`
	MetricsDir  string `yaml:"metrics_dir"`
	PlotsDir    string `yaml:"plots_dir"`
}

// Server configures the serving facade.
type Server struct {
	Addr string `yaml:"addr"`
}

// Logging configures structured log output.
type Logging struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Default returns the configuration used when no file is supplied. It mirrors
// the committed config.yaml.
func Default() *Config {
	return &Config{
		Data: Data{
			RawPath:      "data/raw/insurance.csv",
			ProcessedDir: "data/processed",
			TestSize:     0.2,
			RandomState:  42,
		},
		Features: Features{
			Numerical:   []string{"age", "bmi", "children"},
			Categorical: []string{"sex", "smoker", "region"},
			Target:      "charges",
		},
		Model: Model{
			Algorithms: []string{"linear_regression", "random_forest", "gradient_boosting"},
			RandomForest: RandomForest{
				NEstimators:    100,
				MaxDepth:       10,
				MinSamplesLeaf: 2,
				MaxFeatures:    -1,
			},
			GradientBoosting: GradientBoosting{
				NEstimators:  100,
				LearningRate: 0.1,
				MaxDepth:     3,
				Subsample:    1.0,
			},
		},
		Tracking: Tracking{
			DBPath:     "tracking/runs.db",
			Experiment: "insurance-cost",
		},
		Output: Output{
			ArtifactDir: "models",
			MetricsDir:  "metrics",
			PlotsDir:    "metrics/plots",
		},
		Server: Server{
			Addr: ":8000",
		},
		Logging: Logging{
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads a YAML configuration file. Fields absent from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the pipeline relies on.
func (c *Config) Validate() error {
	if c.Data.TestSize <= 0 || c.Data.TestSize >= 1 {
		return errors.Newf("config: data.test_size must be in (0, 1), got %g", c.Data.TestSize)
	}
	if len(c.Features.Numerical) == 0 && len(c.Features.Categorical) == 0 {
		return errors.New("config: no feature columns declared")
	}
	if c.Features.Target == "" {
		return errors.New("config: features.target is required")
	}
	if len(c.Model.Algorithms) == 0 {
		return errors.New("config: model.algorithms is empty")
	}
	return nil
}
