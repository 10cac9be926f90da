package transport

import (
	"fmt"
	"os"
	"strings"
)

// Credentials resolves the API key for a provider, checked in order:
// an explicit override (e.g. from config.yaml), then the provider's
// conventional environment variable. Generalizes the teacher's
// auth.Store (pkg/auth/auth.go), which only ever resolved ChatGPT OAuth
// tokens from a single auth.json; the providers here are API-key based,
// so the on-disk OAuth refresh dance does not apply.
type Credentials struct {
	overrides map[string]string
	envVar    map[string]string
}

// NewCredentials builds a resolver with the standard env var name for
// each known provider.
func NewCredentials() *Credentials {
	return &Credentials{
		overrides: map[string]string{},
		envVar: map[string]string{
			"anthropic":  "ANTHROPIC_API_KEY",
			"openai":     "OPENAI_API_KEY",
			"gemini":     "GEMINI_API_KEY",
			"volcengine": "VOLCENGINE_API_KEY",
			"zai":        "ZAI_API_KEY",
		},
	}
}

// SetOverride forces the key used for a provider, bypassing its env var.
func (c *Credentials) SetOverride(provider, key string) {
	c.overrides[provider] = key
}

// APIKey resolves the key for provider, or an error naming the env var
// the caller needs to set.
func (c *Credentials) APIKey(provider string) (string, error) {
	if key, ok := c.overrides[provider]; ok && strings.TrimSpace(key) != "" {
		return key, nil
	}
	envVar, known := c.envVar[provider]
	if !known {
		return "", fmt.Errorf("transport: unknown provider %q", provider)
	}
	key := strings.TrimSpace(os.Getenv(envVar))
	if key == "" {
		return "", fmt.Errorf("transport: %s not set (required for provider %q)", envVar, provider)
	}
	return key, nil
}
