package provider

import (
	"strings"
	"sync"
)

// PatternRule binds one provider name to the model-ID prefixes it
// should handle, e.g. {Provider: "anthropic", Patterns: []string{"claude-"}}.
// Routing has no ModelInfo to ask (unlike the teacher's harness.MatchesModel,
// transport.Provider carries no matching method of its own), so rules are
// explicit and checked in registration order.
type PatternRule struct {
	Provider string
	Patterns []string
}

// Config configures user-level routing overrides, checked before the
// built-in rules and alias table.
type Config struct {
	// UserAliases are override aliases that take priority over the
	// built-in alias table (e.g. a user remapping "sonnet" locally).
	UserAliases map[string]string

	// UserPatterns override which provider handles a model prefix,
	// keyed by provider name.
	UserPatterns map[string][]string
}

// Router matches a model string to the provider name responsible for it,
// and expands aliases ("opus" -> "claude-opus-4-...") before matching.
type Router struct {
	mu      sync.RWMutex
	rules   []PatternRule
	aliases map[string]string // alias -> expanded model ID
	config  Config
}

// New builds a Router with no rules or aliases registered yet.
func New(cfg Config) *Router {
	return &Router{
		aliases: make(map[string]string),
		config:  cfg,
	}
}

// AddRule registers providerName as the handler for the given model-ID
// prefixes, in priority order (first match wins).
func (r *Router) AddRule(rule PatternRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule)
}

// SetAlias sets (or overwrites) one entry in the alias table.
func (r *Router) SetAlias(alias, resolved string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[strings.ToLower(alias)] = resolved
}

// Aliases returns a snapshot of the current alias table.
func (r *Router) Aliases() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.aliases))
	for k, v := range r.aliases {
		out[k] = v
	}
	return out
}

// ExpandAlias resolves model through, in order: user aliases, the
// built-in alias table. A model that matches neither is returned
// unchanged (it is assumed to already be a literal model ID).
func (r *Router) ExpandAlias(model string) string {
	lower := strings.ToLower(model)
	if r.config.UserAliases != nil {
		if full, ok := r.config.UserAliases[lower]; ok {
			return full
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if full, ok := r.aliases[lower]; ok {
		return full
	}
	return model
}

// ProviderFor returns the provider name responsible for model, checking
// user pattern overrides first, then registered rules in order, falling
// back to the first registered rule's provider if nothing matches.
// Returns "" if no rule has ever been registered.
func (r *Router) ProviderFor(model string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lower := strings.ToLower(model)

	if r.config.UserPatterns != nil {
		for providerName, patterns := range r.config.UserPatterns {
			for _, pattern := range patterns {
				if matchesPattern(lower, strings.ToLower(pattern)) {
					return providerName
				}
			}
		}
	}

	for _, rule := range r.rules {
		for _, pattern := range rule.Patterns {
			if matchesPattern(lower, strings.ToLower(pattern)) {
				return rule.Provider
			}
		}
	}

	if len(r.rules) > 0 {
		return r.rules[0].Provider
	}
	return ""
}

func matchesPattern(model, pattern string) bool {
	return model == pattern || strings.HasPrefix(model, pattern)
}

// List returns the provider names with at least one registered rule, in
// registration order.
func (r *Router) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.rules))
	for i, rule := range r.rules {
		names[i] = rule.Provider
	}
	return names
}
