// Package config loads and validates wayfarer.yaml.
package config

import (
	"fmt"
	"time"
)

// Mode is the optimization mode requested by the client. It bounds the
// researcher's iteration budget.
type Mode string

const (
	ModeSpeed    Mode = "speed"
	ModeBalanced Mode = "balanced"
	ModeQuality  Mode = "quality"
)

// ParseMode validates a client-supplied mode string, defaulting to balanced.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeSpeed, ModeBalanced, ModeQuality:
		return Mode(s)
	default:
		return ModeBalanced
	}
}

// Config is the umbrella configuration object returned by Initialize.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Session   SessionConfig   `yaml:"session"`
	Modes     ModesConfig     `yaml:"modes"`
	Providers ProvidersConfig `yaml:"providers"`
	Search    SearchConfig    `yaml:"search"`
	Widgets   WidgetsConfig   `yaml:"widgets"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Followup  FollowupConfig  `yaml:"followup"`
	History   HistoryConfig   `yaml:"history"`
}

// HTTPConfig holds server settings.
type HTTPConfig struct {
	Port             string   `yaml:"port"`
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`
}

// SessionConfig bounds session lifetime.
type SessionConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// ModesConfig maps optimization modes to researcher iteration caps.
type ModesConfig struct {
	SpeedIterations    int `yaml:"speed_iterations"`
	BalancedIterations int `yaml:"balanced_iterations"`
	QualityIterations  int `yaml:"quality_iterations"`
}

// MaxIterations returns the iteration budget for a mode.
func (m ModesConfig) MaxIterations(mode Mode) int {
	switch mode {
	case ModeSpeed:
		return m.SpeedIterations
	case ModeQuality:
		return m.QualityIterations
	default:
		return m.BalancedIterations
	}
}

// ProviderConfig describes one OpenAI-compatible LLM provider.
type ProviderConfig struct {
	BaseURL      string  `yaml:"base_url"`
	APIKeyEnv    string  `yaml:"api_key_env"`
	DefaultModel string  `yaml:"default_model"`
	Temperature  float32 `yaml:"temperature"`
}

// ProvidersConfig maps provider ids to their settings.
type ProvidersConfig map[string]ProviderConfig

// SearchConfig points at the web search backend (SearxNG-compatible JSON API).
type SearchConfig struct {
	BaseURL    string        `yaml:"base_url"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
}

// WidgetEndpoint points at one domain widget backend.
type WidgetEndpoint struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// WidgetsConfig maps widget types to their backends. Widgets without an
// endpoint are disabled regardless of classifier flags.
type WidgetsConfig map[string]WidgetEndpoint

// SynthesisConfig tunes the writer's early follow-up kickoff.
type SynthesisConfig struct {
	EarlyFollowupChars  int `yaml:"early_followup_chars"`
	EarlyFollowupChunks int `yaml:"early_followup_chunks"`
}

// FollowupConfig tunes follow-up generation and deduplication.
type FollowupConfig struct {
	MaxSuggestions   int     `yaml:"max_suggestions"`
	JaccardThreshold float64 `yaml:"jaccard_threshold"`
}

// HistoryConfig controls optional persistence of finalized sessions.
type HistoryConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retention_days"`
}

// defaults returns the built-in configuration user config is merged over.
func defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{Port: "8080"},
		Session: SessionConfig{
			TTL:             30 * time.Minute,
			CleanupInterval: 5 * time.Minute,
		},
		Modes: ModesConfig{
			SpeedIterations:    2,
			BalancedIterations: 6,
			QualityIterations:  25,
		},
		Search: SearchConfig{
			MaxResults: 8,
			Timeout:    15 * time.Second,
		},
		Synthesis: SynthesisConfig{
			EarlyFollowupChars:  1000,
			EarlyFollowupChunks: 50,
		},
		Followup: FollowupConfig{
			MaxSuggestions:   3,
			JaccardThreshold: 0.5,
		},
		History: HistoryConfig{RetentionDays: 30},
	}
}

// Validate checks invariants a merged configuration must satisfy.
func (c *Config) Validate() error {
	if c.HTTP.Port == "" {
		return fmt.Errorf("http.port is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.Modes.SpeedIterations <= 0 || c.Modes.BalancedIterations <= 0 || c.Modes.QualityIterations <= 0 {
		return fmt.Errorf("mode iteration caps must be positive")
	}
	if c.Modes.SpeedIterations > c.Modes.BalancedIterations ||
		c.Modes.BalancedIterations > c.Modes.QualityIterations {
		return fmt.Errorf("mode iteration caps must be ordered speed <= balanced <= quality")
	}
	for id, p := range c.Providers {
		if p.BaseURL == "" {
			return fmt.Errorf("provider %s: base_url is required", id)
		}
		if p.APIKeyEnv == "" {
			return fmt.Errorf("provider %s: api_key_env is required", id)
		}
	}
	if c.Followup.MaxSuggestions <= 0 {
		return fmt.Errorf("followup.max_suggestions must be positive")
	}
	if c.Followup.JaccardThreshold <= 0 || c.Followup.JaccardThreshold > 1 {
		return fmt.Errorf("followup.jaccard_threshold must be in (0, 1]")
	}
	return nil
}
