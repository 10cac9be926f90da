package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"agentcore/pkg/transport"
)

// AliasRule defines how an alias maps to a model family: query the named
// provider's ListModels and pick the lexicographically-latest ID with
// the given prefix. Ported from the teacher's pkg/aliases.Rule.
type AliasRule struct {
	Alias    string // e.g. "opus"
	Prefix   string // e.g. "claude-opus-"
	Provider string // provider name to query, e.g. "anthropic"
}

// DefaultAliasRules returns the built-in alias resolution rules named in
// SPEC_FULL.md §2.
func DefaultAliasRules() []AliasRule {
	return []AliasRule{
		{Alias: "opus", Prefix: "claude-opus-", Provider: "anthropic"},
		{Alias: "sonnet", Prefix: "claude-sonnet-", Provider: "anthropic"},
		{Alias: "haiku", Prefix: "claude-haiku-", Provider: "anthropic"},
		{Alias: "gemini", Prefix: "gemini-2.5-pro", Provider: "gemini"},
		{Alias: "flash", Prefix: "gemini-2.5-flash", Provider: "gemini"},
		{Alias: "gpt", Prefix: "gpt-", Provider: "openai"},
	}
}

// AliasResolution is the outcome of resolving one alias against a
// provider's live model listing.
type AliasResolution struct {
	Alias    string
	Previous string
	Resolved string
	Changed  bool
	Err      error
}

// ResolveAliases queries the registry's live model listings and resolves
// every rule's alias to the newest matching model ID. current is the
// existing alias table (may be nil); if rules is nil, DefaultAliasRules
// is used. Results do not mutate the router — call ApplyAliasResolutions
// (or Router.SetAlias) to commit successful ones.
func ResolveAliases(ctx context.Context, reg *Registry, current map[string]string, rules []AliasRule) []AliasResolution {
	if rules == nil {
		rules = DefaultAliasRules()
	}
	if current == nil {
		current = map[string]string{}
	}

	modelCache := map[string][]transport.ModelInfo{}

	results := make([]AliasResolution, 0, len(rules))
	for _, rule := range rules {
		res := AliasResolution{Alias: rule.Alias, Previous: current[rule.Alias]}

		p, ok := reg.Get(rule.Provider)
		if !ok {
			res.Err = fmt.Errorf("provider %q not registered", rule.Provider)
			res.Resolved = res.Previous
			results = append(results, res)
			continue
		}

		models, cached := modelCache[rule.Provider]
		if !cached {
			var err error
			models, err = p.ListModels(ctx)
			if err != nil {
				res.Err = fmt.Errorf("list models: %w", err)
				res.Resolved = res.Previous
				results = append(results, res)
				continue
			}
			modelCache[rule.Provider] = models
		}

		resolved := pickLatest(models, rule.Prefix)
		if resolved == "" {
			res.Err = fmt.Errorf("no model matching prefix %q", rule.Prefix)
			res.Resolved = res.Previous
		} else {
			res.Resolved = resolved
			res.Changed = res.Previous != resolved
		}
		results = append(results, res)
	}
	return results
}

// pickLatest sorts models matching prefix lexicographically ascending
// and returns the last one, on the assumption that higher version
// numbers and later dates sort later (e.g. "claude-opus-4-5" after
// "claude-opus-4-1"). Falls back to an exact match when no model
// carries prefix as a proper prefix.
func pickLatest(models []transport.ModelInfo, prefix string) string {
	var matches []string
	for _, m := range models {
		if strings.HasPrefix(m.ID, prefix) {
			matches = append(matches, m.ID)
		}
	}
	if len(matches) == 0 {
		for _, m := range models {
			if m.ID == prefix {
				return m.ID
			}
		}
		return ""
	}
	sort.Strings(matches)
	return matches[len(matches)-1]
}

// ApplyAliasResolutions commits every successful resolution into router's
// alias table and returns how many entries actually changed.
func ApplyAliasResolutions(router *Router, resolutions []AliasResolution) int {
	changed := 0
	for _, r := range resolutions {
		if r.Err == nil && r.Resolved != "" {
			if router.Aliases()[r.Alias] != r.Resolved {
				router.SetAlias(r.Alias, r.Resolved)
				changed++
			}
		}
	}
	return changed
}
