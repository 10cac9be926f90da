// Package transport defines the provider-agnostic streaming generation
// interface every model backend implements, plus the cross-cutting
// concerns shared by all of them: request/response hooks, retry with
// backoff, and credential lookup. Concrete providers live in the
// anthropic, openai, gemini, compat (volcengine/zai/openai-compatible)
// and mock subpackages.
package transport

import (
	"context"

	"agentcore/pkg/events"
)

// Provider is a streaming model backend. Implementations translate
// GenerateRequest into their own wire format and normalize every event
// they receive back into events.StreamEvent before handing it to onEvent.
type Provider interface {
	// Name identifies the provider, e.g. "anthropic", "openai", "gemini".
	Name() string

	// Generate streams one model turn. onEvent is called for every
	// normalized stream event in order; a ResponseDone or Error event is
	// always the last call on success or failure respectively.
	Generate(ctx context.Context, req GenerateRequest, onEvent func(events.StreamEvent) error) error

	// ListModels returns the models this provider currently exposes.
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// ModelInfo describes one model a provider can route requests to.
// Grounded on the teacher's harness.ModelInfo / backend.ModelInfo, unified
// into one shape shared by every provider adapter.
type ModelInfo struct {
	ID               string
	DisplayName      string
	ContextWindow    int // 0 = unknown, caller falls back to DefaultAutoCompactTokenLimit
	MaxOutputTokens  int
	SupportsThinking bool
}
