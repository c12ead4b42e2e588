// Package config loads the conductor's process-wide configuration surface.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface for the conductor process.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Session  SessionConfig  `yaml:"session"`
	Limiter  LimiterConfig  `yaml:"rateLimit"`
	Wire     WireConfig     `yaml:"wire"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig configures the listening HTTP/WS surface.
type ServerConfig struct {
	// Port is the inbound connection port. Default 8080.
	Port int `yaml:"port"`
}

// ProviderConfig selects and configures the model-provider variant.
type ProviderConfig struct {
	// Name selects the provider variant: "anthropic", "openai", or "placeholder".
	Name string `yaml:"name"`

	// APIKey authenticates against the selected live provider. Read from an
	// env var at load time, never stored in the config file itself.
	APIKey string `yaml:"-"`

	// Model is the provider-specific model identifier. Passed through unchanged.
	Model string `yaml:"model"`

	// MaxTokens bounds the generated response length. Passed through unchanged.
	MaxTokens int `yaml:"maxTokens"`

	// RequestTimeout bounds a single provider call. Default 30s.
	RequestTimeout time.Duration `yaml:"requestTimeout"`

	// PartialDelay is the cooperative delay between chunk emissions. Passed
	// through unchanged; default 0 (no delay).
	PartialDelay time.Duration `yaml:"partialDelay"`

	// MaxRetries bounds the provider adapter's retry loop. Default 3.
	MaxRetries int `yaml:"maxRetries"`
}

// SessionConfig bounds session store behavior.
type SessionConfig struct {
	// MaxTurns bounds conversation history; history never exceeds 2*MaxTurns. Default 20.
	MaxTurns int `yaml:"maxTurns"`

	// PendingToolCallTTL is the staleness threshold for pending calls, held
	// by the session store; expired calls are not swept. Default 300s.
	PendingToolCallTTL time.Duration `yaml:"pendingToolCallTTL"`
}

// LimiterConfig configures the per-connection sliding-window rate limiter.
type LimiterConfig struct {
	// PerMinute is the admissions ceiling per 60s window. Default 30.
	PerMinute int `yaml:"perMinute"`
}

// WireConfig bounds envelope framing.
type WireConfig struct {
	// MaxEventBytes is the frame size ceiling. Default 65536.
	MaxEventBytes int `yaml:"maxEventBytes"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration with every documented default applied.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: 8080},
		Provider: ProviderConfig{
			Name:           "anthropic",
			MaxTokens:      4096,
			RequestTimeout: 30 * time.Second,
			MaxRetries:     3,
		},
		Session: SessionConfig{
			MaxTurns:           20,
			PendingToolCallTTL: 300 * time.Second,
		},
		Limiter: LimiterConfig{PerMinute: 30},
		Wire:    WireConfig{MaxEventBytes: 65536},
		Log:     LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads a YAML config file, overlaying it onto the documented defaults,
// then applies environment-variable overrides for the keys in §6's
// configuration surface table. path may be empty, in which case only
// environment overrides and defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		expanded := os.ExpandEnv(string(raw))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = "anthropic"
	}
	if cfg.Wire.MaxEventBytes <= 0 {
		cfg.Wire.MaxEventBytes = 65536
	}
	if cfg.Session.MaxTurns <= 0 {
		cfg.Session.MaxTurns = 20
	}
	if cfg.Limiter.PerMinute <= 0 {
		cfg.Limiter.PerMinute = 30
	}
	if cfg.Provider.RequestTimeout <= 0 {
		cfg.Provider.RequestTimeout = 30 * time.Second
	}
	if cfg.Provider.MaxRetries <= 0 {
		cfg.Provider.MaxRetries = 3
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MODEL_PROVIDER"); v != "" {
		cfg.Provider.Name = v
	}
	if v := os.Getenv("MAX_EVENT_BYTES"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Wire.MaxEventBytes = n
		}
	}
	if v := os.Getenv("MAX_TURNS"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Session.MaxTurns = n
		}
	}
	if v := os.Getenv("SESSION_RATE_LIMIT_PER_MIN"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Limiter.PerMinute = n
		}
	}
	if v := os.Getenv("LISTEN_PORT"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Server.Port = n
		}
	}
	switch cfg.Provider.Name {
	case "anthropic":
		cfg.Provider.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		cfg.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if v := os.Getenv("MODEL_ID"); v != "" {
		cfg.Provider.Model = v
	}
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}
