// Package config loads Recall configuration from recall.yaml with
// environment-variable overrides. Every threshold and interval the
// engine uses comes from here; nothing is hardcoded at call sites.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFile is the configuration file name looked up in the data dir.
const ConfigFile = "recall.yaml"

// Duration wraps time.Duration with YAML string parsing ("30s", "6h").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full engine configuration tree.
type Config struct {
	DataDir   string `yaml:"data_dir"`
	MachineID string `yaml:"machine_id"`

	Store      StoreConfig      `yaml:"store"`
	Daemon     DaemonConfig     `yaml:"daemon"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Vector     VectorConfig     `yaml:"vector"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
}

// StoreConfig tunes the activity store.
type StoreConfig struct {
	MaxSearchResults int      `yaml:"max_search_results"`
	ParentLinkWindow Duration `yaml:"parent_link_window"`
	StaleSessionAge  Duration `yaml:"stale_session_age"`
	StuckBatchAge    Duration `yaml:"stuck_batch_age"`
}

// DaemonConfig tunes the power scheduler and background cycle.
type DaemonConfig struct {
	IdleThreshold      Duration `yaml:"idle_threshold"`
	SleepThreshold     Duration `yaml:"sleep_threshold"`
	DeepSleepThreshold Duration `yaml:"deep_sleep_threshold"`
	ActiveInterval     Duration `yaml:"active_interval"`
	SleepInterval      Duration `yaml:"sleep_interval"`
	BatchLimit         int      `yaml:"batch_limit"`
	SessionLimit       int      `yaml:"session_limit"`
	Workers            int      `yaml:"workers"`
	QueueSize          int      `yaml:"queue_size"`
}

// SummarizerConfig selects and tunes the summarization backend.
type SummarizerConfig struct {
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	ContextWindow int    `yaml:"context_window"`
	MaxTokens     int    `yaml:"max_tokens"`
}

// VectorConfig tunes the vector index.
type VectorConfig struct {
	EFConstruction int `yaml:"ef_construction"`
	MaxNeighbors   int `yaml:"max_neighbors"`
	Dimensions     int `yaml:"dimensions"`
}

// RetrievalConfig tunes the retrieval engine.
type RetrievalConfig struct {
	MaxResults      int      `yaml:"max_results"`
	QueryCacheSize  int      `yaml:"query_cache_size"`
	RecencyHalfLife Duration `yaml:"recency_half_life"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir: filepath.Join(home, ".recall"),
		Store: StoreConfig{
			MaxSearchResults: 50,
			ParentLinkWindow: Duration(6 * time.Hour),
			StaleSessionAge:  Duration(12 * time.Hour),
			StuckBatchAge:    Duration(30 * time.Minute),
		},
		Daemon: DaemonConfig{
			IdleThreshold:      Duration(5 * time.Minute),
			SleepThreshold:     Duration(30 * time.Minute),
			DeepSleepThreshold: Duration(2 * time.Hour),
			ActiveInterval:     Duration(30 * time.Second),
			SleepInterval:      Duration(5 * time.Minute),
			BatchLimit:         10,
			SessionLimit:       20,
			Workers:            2,
			QueueSize:          8,
		},
		Summarizer: SummarizerConfig{
			Model:         "claude-haiku-4-5-20251001",
			ContextWindow: 200_000,
			MaxTokens:     2048,
		},
		Vector: VectorConfig{
			EFConstruction: 200,
			MaxNeighbors:   16,
			Dimensions:     384,
		},
		Retrieval: RetrievalConfig{
			MaxResults:      20,
			QueryCacheSize:  128,
			RecencyHalfLife: Duration(30 * 24 * time.Hour),
		},
	}
}

// Load reads configuration from path. A missing file yields defaults;
// a present file overlays them. Environment overrides apply last.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads from the default data directory.
func LoadDefault() (*Config, error) {
	return Load(filepath.Join(Default().DataDir, ConfigFile))
}

// applyEnv overlays the environment variables. RECALL_* wins over the
// file; ANTHROPIC_API_KEY is honored when no RECALL_API_KEY is set.
func (c *Config) applyEnv() {
	if v := os.Getenv("RECALL_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("RECALL_MACHINE_ID"); v != "" {
		c.MachineID = v
	}
	if v := os.Getenv("RECALL_API_KEY"); v != "" {
		c.Summarizer.APIKey = v
	} else if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && c.Summarizer.APIKey == "" {
		c.Summarizer.APIKey = v
	}
	if v := os.Getenv("RECALL_MODEL"); v != "" {
		c.Summarizer.Model = v
	}
}

func (c *Config) validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	if c.Daemon.IdleThreshold >= c.Daemon.SleepThreshold {
		return fmt.Errorf("config: idle_threshold must be below sleep_threshold")
	}
	if c.Daemon.SleepThreshold >= c.Daemon.DeepSleepThreshold {
		return fmt.Errorf("config: sleep_threshold must be below deep_sleep_threshold")
	}
	if c.Vector.Dimensions <= 0 {
		return fmt.Errorf("config: vector dimensions must be positive")
	}
	return nil
}

// Save writes the configuration to path, creating parent directories.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
