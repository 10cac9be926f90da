// Package gemini adapts Google's Gemini API (google.golang.org/genai) to
// the transport.Provider interface. The teacher never had a Gemini
// backend; this is grounded on the same buildRequest/translate-event
// shape as pkg/transport/anthropic and pkg/transport/openai, generalized
// to genai's content/part model.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"agentcore/pkg/events"
	"agentcore/pkg/session"
	"agentcore/pkg/transport"
)

// Config configures the Gemini provider.
type Config struct {
	APIKey       string
	DefaultModel string
}

// Provider implements transport.Provider for Gemini.
type Provider struct {
	apiKey       string
	defaultModel string
	newClient    func(ctx context.Context) (*genai.Client, error)
}

var _ transport.Provider = (*Provider)(nil)

// New constructs a Gemini provider.
func New(cfg Config) *Provider {
	model := cfg.DefaultModel
	if model == "" {
		model = "gemini-2.5-pro"
	}
	p := &Provider{apiKey: cfg.APIKey, defaultModel: model}
	p.newClient = func(ctx context.Context) (*genai.Client, error) {
		return genai.NewClient(ctx, &genai.ClientConfig{APIKey: p.apiKey, Backend: genai.BackendGeminiAPI})
	}
	return p
}

func (p *Provider) Name() string { return "gemini" }

// Generate streams one GenerateContent call.
func (p *Provider) Generate(ctx context.Context, req transport.GenerateRequest, onEvent func(events.StreamEvent) error) error {
	client, err := p.newClient(ctx)
	if err != nil {
		return fmt.Errorf("gemini: new client: %w", err)
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	contents, err := translateMessages(req.Messages)
	if err != nil {
		return fmt.Errorf("gemini: translate messages: %w", err)
	}

	genConfig := &genai.GenerateContentConfig{}
	if req.System != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		genConfig.Temperature = &t
	}
	if len(req.Tools) > 0 {
		genConfig.Tools = []*genai.Tool{translateTools(req.Tools)}
	}

	stream := client.Models.GenerateContentStream(ctx, model, contents, genConfig)
	state := &streamState{}
	var streamErr error
	stream(func(resp *genai.GenerateContentResponse, err error) bool {
		if err != nil {
			streamErr = err
			return false
		}
		if translateErr := translateResponse(resp, state, onEvent); translateErr != nil {
			streamErr = translateErr
			return false
		}
		return true
	})
	if streamErr != nil {
		return onEvent(events.ErrorEvent(streamErr, false))
	}
	return onEvent(events.ResponseDoneEvent(state.finishReason, state.usage))
}

// ListModels returns the Gemini models visible to the account.
func (p *Provider) ListModels(ctx context.Context) ([]transport.ModelInfo, error) {
	client, err := p.newClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	var out []transport.ModelInfo
	pager := client.Models.List(ctx, &genai.ListModelsConfig{})
	for {
		page, err := pager.Next(ctx)
		if err != nil {
			break
		}
		for _, m := range page {
			out = append(out, transport.ModelInfo{ID: m.Name, DisplayName: m.DisplayName})
		}
	}
	return out, nil
}

func translateMessages(msgs []session.TrackedMessage) ([]*genai.Content, error) {
	var out []*genai.Content
	for _, m := range msgs {
		switch m.Source.Kind {
		case session.SourceUser, session.SourceCompactionSummary:
			var parts []*genai.Part
			for _, b := range m.Blocks {
				if b.Kind == session.ContentText {
					parts = append(parts, genai.NewPartFromText(b.Text))
				}
			}
			if len(parts) > 0 {
				out = append(out, &genai.Content{Role: genai.RoleUser, Parts: parts})
			}
		case session.SourceAssistant, session.SourceSubagent:
			var parts []*genai.Part
			for _, b := range m.Blocks {
				switch b.Kind {
				case session.ContentText:
					parts = append(parts, genai.NewPartFromText(b.Text))
				case session.ContentToolUse:
					var args map[string]any
					_ = unmarshalArgs(b.ToolUse.Input, &args)
					parts = append(parts, genai.NewPartFromFunctionCall(b.ToolUse.Name, args))
				}
			}
			if len(parts) > 0 {
				out = append(out, &genai.Content{Role: genai.RoleModel, Parts: parts})
			}
		case session.SourceTool:
			var parts []*genai.Part
			for _, b := range m.Blocks {
				if b.Kind == session.ContentToolResult {
					parts = append(parts, genai.NewPartFromFunctionResponse(b.Result.CallID, map[string]any{"output": b.Result.Text}))
				}
			}
			if len(parts) > 0 {
				out = append(out, &genai.Content{Role: genai.RoleUser, Parts: parts})
			}
		}
	}
	return out, nil
}

func translateTools(tools []transport.ToolSpec) *genai.Tool {
	var decls []*genai.FunctionDeclaration
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  translateSchema(t.Parameters),
		})
	}
	return &genai.Tool{FunctionDeclarations: decls}
}

func translateSchema(params map[string]any) *genai.Schema {
	if params == nil {
		return nil
	}
	schema := &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
	if props, ok := params["properties"].(map[string]any); ok {
		for name := range props {
			schema.Properties[name] = &genai.Schema{Type: genai.TypeString}
		}
	}
	if req, ok := params["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

type streamState struct {
	finishReason string
	usage        events.Usage
	toolCallSeq  int
}

func translateResponse(resp *genai.GenerateContentResponse, state *streamState, emit func(events.StreamEvent) error) error {
	if resp.UsageMetadata != nil {
		state.usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		state.usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	for _, cand := range resp.Candidates {
		if cand.FinishReason != "" {
			state.finishReason = string(cand.FinishReason)
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				if err := emit(events.TextDeltaEvent(part.Text)); err != nil {
					return err
				}
			}
			if part.FunctionCall != nil {
				state.toolCallSeq++
				id := fmt.Sprintf("call_%d", state.toolCallSeq)
				args, _ := marshalArgs(part.FunctionCall.Args)
				if err := emit(events.ToolCallStartEvent(id, part.FunctionCall.Name)); err != nil {
					return err
				}
				if err := emit(events.ToolCallDoneEvent(id, args)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
