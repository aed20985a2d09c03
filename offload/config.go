package offload

import (
	"errors"
	"fmt"
)

// Scorer kinds accepted by Config.Scorer.
const (
	ScorerHeuristic = "heuristic"
	ScorerMLP       = "mlp"
)

// Config controls the decision engine and its learner.
type Config struct {
	// Slots is the number of UAV positions in the feature vector.
	Slots int `yaml:"slots"`
	// EnableLocal allows the policy to choose local execution.
	EnableLocal bool `yaml:"enable_local"`
	// Scorer selects the policy implementation.
	Scorer string `yaml:"scorer"`
	// Hidden is the hidden-layer width of the MLP scorer.
	Hidden int `yaml:"hidden"`

	ExperienceCapacity int     `yaml:"experience_capacity"`
	BatchSize          int     `yaml:"batch_size"`
	Epochs             int     `yaml:"epochs"`
	LearningRate       float64 `yaml:"learning_rate"`
	// RetrainEvery triggers a refit after this many recorded experiences.
	// Zero disables automatic refits.
	RetrainEvery int   `yaml:"retrain_every"`
	Seed         int64 `yaml:"seed"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Slots:              5,
		EnableLocal:        true,
		Scorer:             ScorerMLP,
		Hidden:             64,
		ExperienceCapacity: 1000,
		BatchSize:          32,
		Epochs:             5,
		LearningRate:       0.01,
		RetrainEvery:       200,
		Seed:               1,
	}
}

var errInvalidConfig = errors.New("invalid offload config")

// Validate reports the first out-of-range field.
func (c Config) Validate() error {
	switch {
	case c.Slots <= 0:
		return fmt.Errorf("%w: slots must be positive, got %d", errInvalidConfig, c.Slots)
	case c.Scorer != ScorerHeuristic && c.Scorer != ScorerMLP:
		return fmt.Errorf("%w: unknown scorer %q", errInvalidConfig, c.Scorer)
	case c.Scorer == ScorerMLP && c.Hidden <= 0:
		return fmt.Errorf("%w: hidden must be positive, got %d", errInvalidConfig, c.Hidden)
	case c.ExperienceCapacity <= 0:
		return fmt.Errorf("%w: experience capacity must be positive, got %d", errInvalidConfig, c.ExperienceCapacity)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive, got %d", errInvalidConfig, c.BatchSize)
	case c.Epochs <= 0:
		return fmt.Errorf("%w: epochs must be positive, got %d", errInvalidConfig, c.Epochs)
	case c.LearningRate <= 0:
		return fmt.Errorf("%w: learning rate must be positive, got %v", errInvalidConfig, c.LearningRate)
	case c.RetrainEvery < 0:
		return fmt.Errorf("%w: retrain interval must not be negative, got %d", errInvalidConfig, c.RetrainEvery)
	}
	return nil
}

// Actions is the size of the policy output: one per slot plus LOCAL.
func (c Config) Actions() int { return c.Slots + 1 }

// LocalAction is the output index meaning local execution.
func (c Config) LocalAction() int { return c.Slots }
