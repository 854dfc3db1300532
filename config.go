package stackgan

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// LowResolution Side of stage-1 images
	LowResolution = 64
	// HighResolution Side of stage-2 images
	HighResolution = 256
	// ImageChannels RGB
	ImageChannels = 3
	// jointResolution Side of the stage-2 encoder output where the condition is fused
	jointResolution = LowResolution / 4
)

// Config Hyperparameters of the models and of the training loop
type Config struct {
	EmbeddingDim           int     `yaml:"embedding_dim"`
	NoiseDim               int     `yaml:"noise_dim"`
	ConditionDim           int     `yaml:"condition_dim"`
	CompressedEmbeddingDim int     `yaml:"compressed_embedding_dim"`
	Stage1Filters          int     `yaml:"stage1_filters"`
	Stage2Filters          int     `yaml:"stage2_filters"`
	DiscriminatorFilters   int     `yaml:"discriminator_filters"`
	ResidualBlocks         int     `yaml:"residual_blocks"`
	LeakySlope             float64 `yaml:"leaky_slope"`
	NormEpsilon            float64 `yaml:"norm_epsilon"`

	BatchSize                 int     `yaml:"batch_size"`
	Epochs                    int     `yaml:"epochs"`
	GeneratorLearningRate     float64 `yaml:"generator_learning_rate"`
	DiscriminatorLearningRate float64 `yaml:"discriminator_learning_rate"`
	KLCoefficient             float64 `yaml:"kl_coefficient"`
	Seed                      int64   `yaml:"seed"`
}

// DefaultConfig Returns configuration of the reference architecture
func DefaultConfig() Config {
	return Config{
		EmbeddingDim:           1024,
		NoiseDim:               100,
		ConditionDim:           128,
		CompressedEmbeddingDim: 128,
		Stage1Filters:          128,
		Stage2Filters:          128,
		DiscriminatorFilters:   64,
		ResidualBlocks:         4,
		LeakySlope:             0.2,
		NormEpsilon:            1e-5,

		BatchSize:                 8,
		Epochs:                    10,
		GeneratorLearningRate:     0.0002,
		DiscriminatorLearningRate: 0.0002,
		KLCoefficient:             2.0,
		Seed:                      1337,
	}
}

// LoadConfig Reads YAML file on top of DefaultConfig, so missing keys keep default values
func LoadConfig(fname string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(fname)
	if err != nil {
		return cfg, errors.Wrap(err, "Can't read config file")
	}
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "Can't parse config file")
	}
	if err = cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "Invalid config")
	}
	return cfg, nil
}

// Validate Checks that every dimension is usable by the architecture
func (cfg Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"embedding_dim", cfg.EmbeddingDim},
		{"noise_dim", cfg.NoiseDim},
		{"condition_dim", cfg.ConditionDim},
		{"compressed_embedding_dim", cfg.CompressedEmbeddingDim},
		{"stage1_filters", cfg.Stage1Filters},
		{"stage2_filters", cfg.Stage2Filters},
		{"discriminator_filters", cfg.DiscriminatorFilters},
		{"residual_blocks", cfg.ResidualBlocks},
		{"batch_size", cfg.BatchSize},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return errors.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}
	// Last upsampling stage of both generators has filters/2 channels
	if cfg.Stage1Filters%2 != 0 {
		return errors.Errorf("stage1_filters must be even, got %d", cfg.Stage1Filters)
	}
	if cfg.Stage2Filters%2 != 0 {
		return errors.Errorf("stage2_filters must be even, got %d", cfg.Stage2Filters)
	}
	if cfg.NormEpsilon <= 0 {
		return errors.Errorf("norm_epsilon must be positive, got %g", cfg.NormEpsilon)
	}
	return nil
}
