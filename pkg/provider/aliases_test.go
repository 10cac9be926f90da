package provider

import (
	"context"
	"errors"
	"testing"

	"agentcore/pkg/transport"
	"agentcore/pkg/transport/mock"
)

func TestResolveAliasesPicksLatestMatchingModel(t *testing.T) {
	reg := NewRegistry()
	reg.Register("anthropic", mock.New(mock.Config{Models: []transport.ModelInfo{
		{ID: "claude-opus-4-1"},
		{ID: "claude-opus-4-5"},
		{ID: "claude-sonnet-4-5"},
	}}))

	rules := []AliasRule{
		{Alias: "opus", Prefix: "claude-opus-", Provider: "anthropic"},
		{Alias: "sonnet", Prefix: "claude-sonnet-", Provider: "anthropic"},
	}
	results := ResolveAliases(context.Background(), reg, nil, rules)
	if len(results) != 2 {
		t.Fatalf("results len = %d, want 2", len(results))
	}
	byAlias := map[string]AliasResolution{}
	for _, r := range results {
		byAlias[r.Alias] = r
	}
	if byAlias["opus"].Resolved != "claude-opus-4-5" {
		t.Fatalf("opus resolved = %q, want claude-opus-4-5", byAlias["opus"].Resolved)
	}
	if !byAlias["opus"].Changed {
		t.Fatalf("opus should be marked Changed from empty Previous")
	}
}

func TestResolveAliasesErrorsForUnregisteredProvider(t *testing.T) {
	reg := NewRegistry()
	results := ResolveAliases(context.Background(), reg, nil, []AliasRule{
		{Alias: "opus", Prefix: "claude-opus-", Provider: "anthropic"},
	})
	if len(results) != 1 || results[0].Err == nil {
		t.Fatalf("results = %+v, want an error for the unregistered provider", results)
	}
}

func TestResolveAliasesKeepsPreviousOnNoMatch(t *testing.T) {
	reg := NewRegistry()
	reg.Register("anthropic", mock.New(mock.Config{Models: []transport.ModelInfo{
		{ID: "claude-sonnet-4-5"},
	}}))
	results := ResolveAliases(context.Background(), reg, map[string]string{"opus": "claude-opus-4-1"}, []AliasRule{
		{Alias: "opus", Prefix: "claude-opus-", Provider: "anthropic"},
	})
	if results[0].Resolved != "claude-opus-4-1" {
		t.Fatalf("resolved = %q, want previous value retained on no match", results[0].Resolved)
	}
	if results[0].Err == nil {
		t.Fatalf("expected an error noting no match was found")
	}
}

func TestApplyAliasResolutionsCommitsOnlyChanged(t *testing.T) {
	router := New(Config{})
	router.SetAlias("opus", "claude-opus-4-1")

	resolutions := []AliasResolution{
		{Alias: "opus", Previous: "claude-opus-4-1", Resolved: "claude-opus-4-5", Changed: true},
		{Alias: "sonnet", Resolved: "", Err: errNoMatch},
	}
	changed := ApplyAliasResolutions(router, resolutions)
	if changed != 1 {
		t.Fatalf("changed = %d, want 1", changed)
	}
	if router.Aliases()["opus"] != "claude-opus-4-5" {
		t.Fatalf("opus alias not updated: %v", router.Aliases())
	}
	if _, ok := router.Aliases()["sonnet"]; ok {
		t.Fatalf("sonnet alias should not have been set (Resolved empty)")
	}
}

var errNoMatch = errors.New("no match")
