// Package config loads process configuration: tunables from an optional YAML
// file, secrets from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abelbrown/newsdedup/internal/brain"
)

// ErrConfigMissing means a required secret is absent. It is fatal at startup.
var ErrConfigMissing = errors.New("configuration missing")

// Config is the process configuration. Secrets are never read from the file.
type Config struct {
	Addr     string       `yaml:"addr"`
	LogLevel string       `yaml:"log_level"`
	EventLog string       `yaml:"event_log"` // JSONL request events; empty disables the file
	Search   SearchConfig `yaml:"search"`
	Dedup    DedupConfig  `yaml:"dedup"`
	Oracle   OracleConfig `yaml:"oracle"`
}

// SearchConfig selects and tunes the result provider.
type SearchConfig struct {
	Provider string        `yaml:"provider"` // cse | googlenews
	Endpoint string        `yaml:"endpoint"` // override, mostly for tests
	Language string        `yaml:"language"` // hint passed to the provider, e.g. "ja"
	PageSize int           `yaml:"page_size"`
	Pages    int           `yaml:"pages"`
	Style    string        `yaml:"style"` // juxtaposed | boolean
	Timeout  time.Duration `yaml:"timeout"`

	APIKey   string `yaml:"-"` // GOOGLE_API_KEY
	EngineID string `yaml:"-"` // CUSTOM_SEARCH_ENGINE_ID
}

// DedupConfig selects the reduction.
type DedupConfig struct {
	Strategy string `yaml:"strategy"` // none | pairwise-snippet | pairwise-title | batched
	Policy   string `yaml:"policy"`   // first-seen | transitive
	MaxBatch int    `yaml:"max_batch"`
}

// OracleConfig selects the language model backend and its call limits.
type OracleConfig struct {
	Provider      string        `yaml:"provider"` // openai | claude | gemini | ollama
	Model         string        `yaml:"model"`
	Endpoint      string        `yaml:"endpoint"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	MaxRetries    int           `yaml:"max_retries"`
	Backoff       time.Duration `yaml:"backoff"`
	MaxBackoff    time.Duration `yaml:"max_backoff"`

	APIKey string `yaml:"-"` // ORACLE_API_KEY or the provider's own variable
}

// DefaultConfig returns the settings used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Addr:     ":8080",
		LogLevel: "info",
		Search: SearchConfig{
			Provider: "cse",
			Language: "ja",
			PageSize: 10,
			Pages:    2,
			Style:    "juxtaposed",
			Timeout:  30 * time.Second,
		},
		Dedup: DedupConfig{
			Strategy: "batched",
			Policy:   "first-seen",
			MaxBatch: 20,
		},
		Oracle: OracleConfig{
			Provider:      "openai",
			Timeout:       30 * time.Second,
			RatePerSecond: 2,
			Burst:         1,
			MaxRetries:    2,
			Backoff:       500 * time.Millisecond,
			MaxBackoff:    5 * time.Second,
		},
	}
}

// ConfigPath returns the default config file location.
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".newsdedup", "config.yaml")
}

// EventLogPath returns the conventional event log location, used by
// "obs events" when no config names one.
func EventLogPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".newsdedup", "events.jsonl")
}

// OpenEventLog opens the configured event log for appending, creating its
// directory. It returns nil, nil when no event log is configured.
func (c *Config) OpenEventLog() (*os.File, error) {
	if c.EventLog == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(c.EventLog), 0o755); err != nil {
		return nil, fmt.Errorf("event log: %w", err)
	}
	f, err := os.OpenFile(c.EventLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("event log: %w", err)
	}
	return f, nil
}

// Load applies defaults, then the YAML file at path, then the environment.
// An empty path tries ConfigPath and silently skips it when absent; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = ConfigPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.AutoPopulateFromEnv()
	return cfg, nil
}

// oracleKeyVars lists the conventional key variables per oracle provider,
// consulted when ORACLE_API_KEY is unset.
var oracleKeyVars = map[string][]string{
	"openai": {"OPENAI_API_KEY"},
	"claude": {"ANTHROPIC_API_KEY", "CLAUDE_API_KEY"},
	"gemini": {"GEMINI_API_KEY"},
}

// AutoPopulateFromEnv fills secrets and the documented overrides from the
// environment.
func (c *Config) AutoPopulateFromEnv() {
	setFromEnv(&c.Addr, "NEWSDEDUP_ADDR")
	setFromEnv(&c.EventLog, "NEWSDEDUP_EVENT_LOG")
	setFromEnv(&c.LogLevel, "LOG_LEVEL")
	setFromEnv(&c.Search.Provider, "NEWSDEDUP_PROVIDER")
	setFromEnv(&c.Dedup.Strategy, "NEWSDEDUP_STRATEGY")
	setFromEnv(&c.Oracle.Provider, "ORACLE_PROVIDER")
	setFromEnv(&c.Oracle.Model, "ORACLE_MODEL")
	setFromEnv(&c.Oracle.Endpoint, "ORACLE_ENDPOINT")

	setFromEnv(&c.Search.APIKey, "GOOGLE_API_KEY")
	setFromEnv(&c.Search.EngineID, "CUSTOM_SEARCH_ENGINE_ID")

	if !setFromEnv(&c.Oracle.APIKey, "ORACLE_API_KEY") {
		for _, name := range oracleKeyVars[strings.ToLower(c.Oracle.Provider)] {
			if setFromEnv(&c.Oracle.APIKey, name) {
				break
			}
		}
	}
}

func setFromEnv(dst *string, name string) bool {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
		return true
	}
	return false
}

// Validate reports every missing secret at once, wrapped in ErrConfigMissing.
// The googlenews provider needs no search secrets and ollama needs no key.
func (c *Config) Validate() error {
	var missing []string
	if c.Search.Provider == "cse" {
		if c.Search.APIKey == "" {
			missing = append(missing, "GOOGLE_API_KEY")
		}
		if c.Search.EngineID == "" {
			missing = append(missing, "CUSTOM_SEARCH_ENGINE_ID")
		}
	}
	if c.Oracle.Provider != "ollama" && c.Dedup.Strategy != "none" && c.Oracle.APIKey == "" {
		names := append([]string{"ORACLE_API_KEY"}, oracleKeyVars[c.Oracle.Provider]...)
		missing = append(missing, strings.Join(names, " or "))
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigMissing, strings.Join(missing, ", "))
	}

	switch c.Search.Provider {
	case "cse", "googlenews":
	default:
		return fmt.Errorf("unknown search provider %q", c.Search.Provider)
	}
	if c.Dedup.Strategy != "none" && !slices.Contains(brain.ProviderNames(), strings.ToLower(c.Oracle.Provider)) {
		return fmt.Errorf("unknown oracle provider %q (want one of %s)", c.Oracle.Provider, strings.Join(brain.ProviderNames(), ", "))
	}
	if c.Search.PageSize <= 0 || c.Search.Pages <= 0 {
		return fmt.Errorf("search page_size and pages must be positive")
	}
	return nil
}
