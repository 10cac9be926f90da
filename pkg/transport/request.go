package transport

import "agentcore/pkg/session"

// ReasoningConfig requests extended thinking / reasoning effort from a
// provider that supports it. Mirrors the teacher's harness.ReasoningConfig.
type ReasoningConfig struct {
	Effort string // "low", "medium", "high"
	Budget int    // explicit thinking token budget; 0 lets the provider decide
}

// ToolSpec describes one tool the model may call, in provider-neutral
// form. Each provider adapter translates Parameters (a JSON-schema
// object) into its own tool-definition wire shape.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// GenerateRequest is the provider-neutral input to Provider.Generate.
// Named and shaped after hyper-sdk's GenerateRequest
// (cocode-rs/provider-sdks/hyper-sdk/src/hooks/chain.rs references it
// directly; the full type lives in hyper-sdk/src/request.rs) so the hook
// chain below has something concrete and mutable to operate on.
type GenerateRequest struct {
	Model     string
	System    string
	Messages  []session.TrackedMessage
	Tools     []ToolSpec
	Reasoning *ReasoningConfig

	MaxTokens   int
	Temperature *float64
}
