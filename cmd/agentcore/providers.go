package main

import (
	"context"
	"strconv"

	"golang.org/x/time/rate"

	"agentcore/pkg/config"
	"agentcore/pkg/corelog"
	"agentcore/pkg/provider"
	"agentcore/pkg/transport"
	"agentcore/pkg/transport/anthropic"
	"agentcore/pkg/transport/compat"
	"agentcore/pkg/transport/gemini"
	"agentcore/pkg/transport/mock"
	"agentcore/pkg/transport/openai"
)

// builtinPatternRules maps the well-known model-ID prefixes to the
// provider that should handle them, checked in this order before a
// user-supplied cfg.Routing.Patterns override.
func builtinPatternRules() []provider.PatternRule {
	return []provider.PatternRule{
		{Provider: "anthropic", Patterns: []string{"claude-"}},
		{Provider: "openai", Patterns: []string{"gpt-", "o1-", "o3-"}},
		{Provider: "gemini", Patterns: []string{"gemini-"}},
		{Provider: "volcengine", Patterns: []string{"doubao-", "deepseek-"}},
		{Provider: "zai", Patterns: []string{"glm-"}},
	}
}

// buildRegistry registers every provider with a resolvable API key,
// wires each through its configured rate limit, and attaches a Router
// built from the built-in patterns/aliases plus cfg.Routing overrides.
// A provider whose credentials cannot be resolved is skipped, not fatal
// — a single missing key shouldn't prevent running against the others.
func buildRegistry(ctx context.Context, cfg config.Config, logger *corelog.Logger) *provider.Registry {
	creds := transport.NewCredentials()
	baseURLs := config.ApplyCredentials(cfg, creds)

	reg := provider.NewRegistry()

	if key, err := creds.APIKey("anthropic"); err == nil {
		reg.Register("anthropic", rateLimitWrap(cfg, "anthropic", anthropic.New(anthropic.Config{APIKey: key})))
	} else {
		logger.Debug("provider unavailable", "provider", "anthropic", "reason", err.Error())
	}

	if key, err := creds.APIKey("openai"); err == nil {
		reg.Register("openai", rateLimitWrap(cfg, "openai", openai.New(openai.Config{APIKey: key, BaseURL: baseURLs["openai"]})))
	} else {
		logger.Debug("provider unavailable", "provider", "openai", "reason", err.Error())
	}

	if key, err := creds.APIKey("gemini"); err == nil {
		reg.Register("gemini", rateLimitWrap(cfg, "gemini", gemini.New(gemini.Config{APIKey: key})))
	} else {
		logger.Debug("provider unavailable", "provider", "gemini", "reason", err.Error())
	}

	if key, err := creds.APIKey("volcengine"); err == nil {
		p := compat.Volcengine(key, "")
		if base := baseURLs["volcengine"]; base != "" {
			p = compat.New(compat.Config{Name: "volcengine", APIKey: key, BaseURL: base})
		}
		reg.Register("volcengine", rateLimitWrap(cfg, "volcengine", p))
	} else {
		logger.Debug("provider unavailable", "provider", "volcengine", "reason", err.Error())
	}

	if key, err := creds.APIKey("zai"); err == nil {
		p := compat.ZAI(key, "")
		if base := baseURLs["zai"]; base != "" {
			p = compat.New(compat.Config{Name: "zai", APIKey: key, BaseURL: base})
		}
		reg.Register("zai", rateLimitWrap(cfg, "zai", p))
	} else {
		logger.Debug("provider unavailable", "provider", "zai", "reason", err.Error())
	}

	rules := builtinPatternRules()
	if len(reg.List()) == 0 {
		logger.Warn("no provider credentials resolved, registering mock provider")
		reg.Register("mock", mock.New(mock.Config{}))
		rules = append(rules, provider.PatternRule{Provider: "mock", Patterns: []string{"mock-"}})
	}

	router := provider.New(provider.Config{
		UserAliases:  cfg.Routing.Aliases,
		UserPatterns: cfg.Routing.Patterns,
	})
	for _, rule := range rules {
		router.AddRule(rule)
	}
	reg.SetRouter(router)

	// DefaultAliasRules resolves against each provider's live ListModels,
	// so a provider that can't be reached (no network, no key) just
	// leaves that alias unresolved rather than failing startup.
	resolutions := provider.ResolveAliases(ctx, reg, router.Aliases(), nil)
	for _, res := range resolutions {
		if res.Err != nil {
			logger.Debug("alias resolution skipped", "alias", res.Alias, "reason", res.Err.Error())
		}
	}
	if n := provider.ApplyAliasResolutions(router, resolutions); n > 0 {
		logger.Info("resolved model aliases", "count", strconv.Itoa(n))
	}

	return reg
}

func rateLimitWrap(cfg config.Config, name string, p transport.Provider) transport.Provider {
	pc, ok := cfg.Providers[name]
	if !ok || pc.RateLimitRPS <= 0 {
		return p
	}
	burst := pc.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	return provider.RateLimited(p, rate.NewLimiter(rate.Limit(pc.RateLimitRPS), burst))
}
