// Package config loads the runtime's YAML configuration file: exec
// defaults, transport/client tuning, sandbox policy defaults, and
// per-provider credential overrides. Adapted from the teacher's
// pkg/config/config.go — same load-defaults/overlay-YAML/overlay-env
// shape, with the proxy/payments/multi-tenant sections (out of scope per
// spec.md §1 Non-goals) replaced by this runtime's own domain: turn
// limits, retry/backoff, and sandbox policy.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"agentcore/pkg/permission"
	"agentcore/pkg/transport"
)

// Config is the top-level configuration document.
type Config struct {
	Exec      ExecConfig                `yaml:"exec"`
	Client    ClientConfig              `yaml:"client"`
	Sandbox   SandboxConfig             `yaml:"sandbox"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Routing   RoutingConfig             `yaml:"routing"`
}

// ExecConfig configures default turn behavior.
type ExecConfig struct {
	Model        string        `yaml:"model"`
	Instructions string        `yaml:"instructions"`
	AppendSystem string        `yaml:"append_system_prompt"`
	MaxTurns     int           `yaml:"max_turns"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ClientConfig tunes the retry/backoff policy shared by every transport
// adapter (agentcore/pkg/transport.RetryConfig).
type ClientConfig struct {
	RetryMax    int           `yaml:"retry_max"`
	RetryBase   time.Duration `yaml:"retry_base_delay"`
	RetryCap    time.Duration `yaml:"retry_max_delay"`
	RetryJitter float64       `yaml:"retry_jitter"`
}

// RetryConfig converts the loaded tuning into transport.RetryConfig.
func (c ClientConfig) RetryConfig() transport.RetryConfig {
	return transport.RetryConfig{
		MaxAttempts: c.RetryMax,
		BaseDelay:   c.RetryBase,
		MaxDelay:    c.RetryCap,
		Jitter:      c.RetryJitter,
	}
}

// SandboxConfig configures the default sandbox policy new sessions start
// with (agentcore/pkg/permission.Policy).
type SandboxConfig struct {
	Mode         string   `yaml:"mode"` // "none", "read-only", "strict"
	AllowedPaths []string `yaml:"allowed_paths"`
	DeniedPaths  []string `yaml:"denied_paths"`
	AllowNetwork bool     `yaml:"allow_network"`
}

// Policy converts the loaded sandbox section into permission.Policy.
func (c SandboxConfig) Policy() permission.Policy {
	mode := permission.ModeNone
	switch strings.ToLower(strings.TrimSpace(c.Mode)) {
	case "read-only", "readonly":
		mode = permission.ModeReadOnly
	case "strict":
		mode = permission.ModeStrict
	}
	return permission.Policy{
		Mode:         mode,
		AllowedPaths: c.AllowedPaths,
		DeniedPaths:  c.DeniedPaths,
		AllowNetwork: c.AllowNetwork,
	}
}

// ProviderConfig overrides credential resolution and endpoint for one
// provider. APIKey is a literal key (discouraged outside local testing);
// APIKeyEnv names an alternate environment variable to read it from.
type ProviderConfig struct {
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`

	// RateLimitRPS and RateLimitBurst configure a per-provider token
	// bucket (agentcore/pkg/provider.RateLimited). RateLimitRPS <= 0
	// leaves the provider unwrapped.
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

// RoutingConfig configures model-to-provider routing overrides, mirrored
// from the teacher's BackendsConfig.RoutingConfig.
type RoutingConfig struct {
	Patterns map[string][]string `yaml:"patterns"`
	Aliases  map[string]string   `yaml:"aliases"`
}

// DefaultConfig returns the built-in defaults, matching SPEC_FULL.md §4.2
// (retry: base 500ms, cap 30s, 5 attempts, ±20% jitter) and §4.3 (sandbox
// defaults to read-only, a cautious out-of-the-box posture).
func DefaultConfig() Config {
	return Config{
		Exec: ExecConfig{
			Model:        "sonnet",
			Instructions: "You are a helpful coding assistant.",
			MaxTurns:     50,
			Timeout:      10 * time.Minute,
		},
		Client: ClientConfig{
			RetryMax:    5,
			RetryBase:   500 * time.Millisecond,
			RetryCap:    30 * time.Second,
			RetryJitter: 0.2,
		},
		Sandbox: SandboxConfig{
			Mode:         "read-only",
			AllowNetwork: false,
		},
		Providers: map[string]ProviderConfig{},
		Routing: RoutingConfig{
			Patterns: map[string][]string{},
			Aliases:  map[string]string{},
		},
	}
}

// DefaultPath returns the config file location: $AGENTCORE_CONFIG if set,
// else ~/.config/agentcore/config.yaml.
func DefaultPath() string {
	if v := strings.TrimSpace(os.Getenv("AGENTCORE_CONFIG")); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "agentcore", "config.yaml")
}

// Load reads the config at DefaultPath, overlaying environment overrides.
func Load() Config {
	return LoadFrom(DefaultPath())
}

// LoadFrom reads the config at path over the built-in defaults, then
// applies environment overrides. A missing or unparsable file is not an
// error: defaults (plus env) are returned, matching the teacher's
// forgiving LoadFrom behavior (config-file schema migration is out of
// scope, but a missing file must never block startup).
func LoadFrom(path string) Config {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) != "" {
		if buf, err := os.ReadFile(path); err == nil {
			_ = yaml.Unmarshal(buf, &cfg)
		}
	}
	ApplyEnv(&cfg)
	return cfg
}

// ApplyEnv overlays AGENTCORE_* environment variables onto cfg, taking
// priority over both defaults and the config file.
func ApplyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("AGENTCORE_EXEC_MODEL")); v != "" {
		cfg.Exec.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("AGENTCORE_EXEC_INSTRUCTIONS")); v != "" {
		cfg.Exec.Instructions = v
	}
	if v := strings.TrimSpace(os.Getenv("AGENTCORE_EXEC_APPEND_SYSTEM_PROMPT")); v != "" {
		cfg.Exec.AppendSystem = v
	}
	if v := strings.TrimSpace(os.Getenv("AGENTCORE_EXEC_MAX_TURNS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Exec.MaxTurns = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("AGENTCORE_EXEC_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Exec.Timeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("AGENTCORE_RETRY_MAX")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Client.RetryMax = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("AGENTCORE_RETRY_BASE_DELAY")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Client.RetryBase = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("AGENTCORE_RETRY_MAX_DELAY")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Client.RetryCap = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("AGENTCORE_SANDBOX_MODE")); v != "" {
		cfg.Sandbox.Mode = v
	}
	if v := strings.TrimSpace(os.Getenv("AGENTCORE_SANDBOX_ALLOW_NETWORK")); v != "" {
		cfg.Sandbox.AllowNetwork = parseBool(v)
	}
}

// ApplyCredentials registers every configured provider override (literal
// key or alternate env var) onto creds, and returns the base-URL
// overrides keyed by provider name for adapters that support one.
func ApplyCredentials(cfg Config, creds *transport.Credentials) map[string]string {
	baseURLs := map[string]string{}
	for name, pc := range cfg.Providers {
		if strings.TrimSpace(pc.APIKey) != "" {
			creds.SetOverride(name, pc.APIKey)
		} else if strings.TrimSpace(pc.APIKeyEnv) != "" {
			if v := strings.TrimSpace(os.Getenv(pc.APIKeyEnv)); v != "" {
				creds.SetOverride(name, v)
			}
		}
		if strings.TrimSpace(pc.BaseURL) != "" {
			baseURLs[name] = pc.BaseURL
		}
	}
	return baseURLs
}

func parseInt(val string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(val))
}

func parseBool(val string) bool {
	val = strings.TrimSpace(strings.ToLower(val))
	return val == "1" || val == "true" || val == "yes"
}
