package prioritizer

import (
	"errors"
	"fmt"

	"github.com/pario-ai/medcache/pkg/models"
)

// ErrInvalidConfig is returned when a configuration update is rejected.
var ErrInvalidConfig = errors.New("invalid prioritizer config")

// Strategy names a scoring function.
type Strategy string

const (
	StrategyMedicalContent    Strategy = "medical-content"
	StrategyCriticalQueries   Strategy = "critical-queries"
	StrategyResourceIntensive Strategy = "resource-intensive"
	StrategyRecencyBased      Strategy = "recency-based"
	StrategyAccessFrequency   Strategy = "access-frequency"
	StrategyHybrid            Strategy = "hybrid"
)

// Strategies lists every supported strategy.
var Strategies = []Strategy{
	StrategyMedicalContent,
	StrategyCriticalQueries,
	StrategyResourceIntensive,
	StrategyRecencyBased,
	StrategyAccessFrequency,
	StrategyHybrid,
}

// Weights are the relative weights of the hybrid strategy's components.
type Weights struct {
	Content     float64 `json:"content" yaml:"content"`
	Criticality float64 `json:"criticality" yaml:"criticality"`
	Resource    float64 `json:"resource" yaml:"resource"`
	Recency     float64 `json:"recency" yaml:"recency"`
	Frequency   float64 `json:"frequency" yaml:"frequency"`
}

func (w Weights) sum() float64 {
	return w.Content + w.Criticality + w.Resource + w.Recency + w.Frequency
}

// Config is the prioritizer configuration. A Config value is never mutated
// once installed; updates replace it as a whole.
type Config struct {
	Strategy           Strategy          `json:"strategy" yaml:"strategy"`
	Weights            Weights           `json:"weights" yaml:"weights"`
	EvictionFraction   float64           `json:"eviction_fraction" yaml:"eviction_fraction"`
	PriorityCategories []models.Category `json:"priority_categories" yaml:"priority_categories"`
	CollectStats       bool              `json:"collect_stats" yaml:"collect_stats"`
}

// DefaultConfig returns the hybrid strategy with default weights.
func DefaultConfig() Config {
	return Config{
		Strategy: StrategyHybrid,
		Weights: Weights{
			Content:     30,
			Criticality: 20,
			Resource:    20,
			Recency:     15,
			Frequency:   15,
		},
		EvictionFraction: 0.2,
		PriorityCategories: []models.Category{
			models.CategoryEvidenceCheck,
			models.CategoryClinicalAnalysis,
			models.CategoryPatientHistory,
			models.CategoryGeneral,
			models.CategoryDevelopment,
			models.CategoryUrgent,
		},
		CollectStats: true,
	}
}

// Validate reports the first problem with c, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	known := false
	for _, s := range Strategies {
		if c.Strategy == s {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, c.Strategy)
	}

	w := c.Weights
	if w.Content < 0 || w.Criticality < 0 || w.Resource < 0 || w.Recency < 0 || w.Frequency < 0 {
		return fmt.Errorf("%w: weights must not be negative", ErrInvalidConfig)
	}
	if c.Strategy == StrategyHybrid && w.sum() == 0 {
		return fmt.Errorf("%w: hybrid strategy needs at least one positive weight", ErrInvalidConfig)
	}

	if c.EvictionFraction <= 0 || c.EvictionFraction > 0.5 {
		return fmt.Errorf("%w: eviction fraction %v outside (0, 0.5]", ErrInvalidConfig, c.EvictionFraction)
	}

	seen := make(map[models.Category]bool, len(c.PriorityCategories))
	for _, cat := range c.PriorityCategories {
		if !cat.Valid() {
			return fmt.Errorf("%w: unknown priority category %q", ErrInvalidConfig, cat)
		}
		if seen[cat] {
			return fmt.Errorf("%w: duplicate priority category %q", ErrInvalidConfig, cat)
		}
		seen[cat] = true
	}
	return nil
}

func (c Config) clone() *Config {
	out := c
	out.PriorityCategories = append([]models.Category(nil), c.PriorityCategories...)
	return &out
}
