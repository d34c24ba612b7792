package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/pario-ai/medcache/pkg/classifier"
	"github.com/pario-ai/medcache/pkg/models"
	"github.com/pario-ai/medcache/pkg/prioritizer"
	"github.com/pario-ai/medcache/pkg/store"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

// Config holds all medcache configuration.
type Config struct {
	Listen      string             `yaml:"listen"`
	LogLevel    string             `yaml:"log_level"`
	Cache       CacheConfig        `yaml:"cache"`
	Classifier  ClassifierConfig   `yaml:"classifier"`
	Prioritizer prioritizer.Config `yaml:"prioritizer"`
	Sink        SinkConfig         `yaml:"sink"`
}

// CacheConfig controls the in-memory store.
type CacheConfig struct {
	MaxEntries     int           `yaml:"max_entries"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	StatsRetention time.Duration `yaml:"stats_retention"`
}

// ClassifierConfig overrides base TTLs by category name.
type ClassifierConfig struct {
	BaseTTLs map[string]time.Duration `yaml:"base_ttls"`
}

// SinkConfig controls the SQLite history sink.
type SinkConfig struct {
	Enabled          bool          `yaml:"enabled"`
	DBPath           string        `yaml:"db_path"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	RetentionDays    int           `yaml:"retention_days"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	sc := store.DefaultConfig()
	return &Config{
		Listen:   ":8080",
		LogLevel: "info",
		Cache: CacheConfig{
			MaxEntries:     sc.MaxEntries,
			SweepInterval:  sc.SweepInterval,
			StatsRetention: sc.StatsRetention,
		},
		Prioritizer: prioritizer.DefaultConfig(),
		Sink: SinkConfig{
			Enabled:          false,
			DBPath:           "medcache.db",
			SnapshotInterval: 5 * time.Minute,
			RetentionDays:    30,
		},
	}
}

// Load reads a YAML config file, expands environment variables and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("%w: listen must be set", ErrInvalid)
	}
	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %v", ErrInvalid, err)
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("%w: cache.max_entries must be positive", ErrInvalid)
	}
	if c.Cache.SweepInterval < 0 || c.Cache.StatsRetention < 0 {
		return fmt.Errorf("%w: cache durations must not be negative", ErrInvalid)
	}
	for name, ttl := range c.Classifier.BaseTTLs {
		if !models.Category(name).Valid() {
			return fmt.Errorf("%w: classifier.base_ttls: unknown category %q", ErrInvalid, name)
		}
		if ttl < 0 {
			return fmt.Errorf("%w: classifier.base_ttls.%s must not be negative", ErrInvalid, name)
		}
	}
	if err := c.Prioritizer.Validate(); err != nil {
		return fmt.Errorf("%w: prioritizer: %v", ErrInvalid, err)
	}
	if c.Sink.Enabled && c.Sink.DBPath == "" {
		return fmt.Errorf("%w: sink.db_path must be set when the sink is enabled", ErrInvalid)
	}
	if c.Sink.RetentionDays < 0 || c.Sink.SnapshotInterval < 0 {
		return fmt.Errorf("%w: sink retention and interval must not be negative", ErrInvalid)
	}
	return nil
}

// StoreConfig converts the cache section into a store configuration.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		MaxEntries:       c.Cache.MaxEntries,
		SweepInterval:    c.Cache.SweepInterval,
		StatsRetention:   c.Cache.StatsRetention,
		SnapshotInterval: c.Sink.SnapshotInterval,
	}
}

// ClassifierConfig converts the classifier section; unknown categories
// have already been rejected by Validate.
func (c *Config) ClassifierConfig() classifier.Config {
	out := classifier.Config{BaseTTL: make(map[models.Category]time.Duration, len(c.Classifier.BaseTTLs))}
	for name, ttl := range c.Classifier.BaseTTLs {
		out.BaseTTL[models.Category(name)] = ttl
	}
	return out
}

// Logger builds a production zap logger at the configured level.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = level
	return zc.Build()
}
