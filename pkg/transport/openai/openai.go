// Package openai adapts the OpenAI Chat Completions streaming API to the
// transport.Provider interface, using the openai-go SDK directly instead
// of the teacher's hand-rolled Responses-format translation layer
// (pkg/harness/openai + pkg/backend/openapi), which existed only because
// the teacher's Codex backend spoke a Responses-shaped wire format the
// SDK didn't cover at the time.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"agentcore/pkg/events"
	"agentcore/pkg/session"
	"agentcore/pkg/transport"
)

// Config configures the OpenAI provider.
type Config struct {
	APIKey       string
	BaseURL      string // override for OpenAI-API-compatible endpoints
	DefaultModel string
}

// Provider implements transport.Provider for OpenAI Chat Completions.
type Provider struct {
	defaultModel string
	newClient    func() openai.Client
}

var _ transport.Provider = (*Provider)(nil)

// New constructs an OpenAI provider.
func New(cfg Config) *Provider {
	model := cfg.DefaultModel
	if model == "" {
		model = "gpt-5"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Provider{
		defaultModel: model,
		newClient:    func() openai.Client { return openai.NewClient(opts...) },
	}
}

func (p *Provider) Name() string { return "openai" }

// Generate streams one Chat Completions call.
func (p *Provider) Generate(ctx context.Context, req transport.GenerateRequest, onEvent func(events.StreamEvent) error) error {
	params, err := p.buildRequest(req)
	if err != nil {
		return fmt.Errorf("openai: build request: %w", err)
	}

	client := p.newClient()
	stream := client.Chat.Completions.NewStreaming(ctx, params)
	state := &streamState{toolArgs: map[int64]*toolCallAccum{}}

	for stream.Next() {
		if err := translateChunk(stream.Current(), state, onEvent); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return onEvent(events.ErrorEvent(err, isRetryableErr(err)))
	}
	if err := state.flushPendingToolCalls(onEvent); err != nil {
		return err
	}
	return onEvent(events.ResponseDoneEvent(state.finishReason, events.Usage{
		InputTokens:  state.inputTokens,
		OutputTokens: state.outputTokens,
	}))
}

// ListModels returns the models the account can see.
func (p *Provider) ListModels(ctx context.Context) ([]transport.ModelInfo, error) {
	client := p.newClient()
	page, err := client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("openai: list models: %w", err)
	}
	var out []transport.ModelInfo
	for _, m := range page.Data {
		out = append(out, transport.ModelInfo{ID: m.ID})
	}
	return out, nil
}

func (p *Provider) buildRequest(req transport.GenerateRequest) (openai.ChatCompletionNewParams, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		msgs, err := translateMessage(m)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msgs...)
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		for _, t := range req.Tools {
			params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters:  t.Parameters,
				},
			})
		}
	}
	return params, nil
}

func translateMessage(m session.TrackedMessage) ([]openai.ChatCompletionMessageParamUnion, error) {
	var out []openai.ChatCompletionMessageParamUnion
	switch m.Source.Kind {
	case session.SourceUser, session.SourceCompactionSummary:
		for _, b := range m.Blocks {
			if b.Kind == session.ContentText {
				out = append(out, openai.UserMessage(b.Text))
			}
		}
	case session.SourceAssistant, session.SourceSubagent:
		var text string
		var calls []openai.ChatCompletionMessageToolCallParam
		for _, b := range m.Blocks {
			switch b.Kind {
			case session.ContentText:
				text += b.Text
			case session.ContentToolUse:
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID:   b.ToolUse.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      b.ToolUse.Name,
						Arguments: string(b.ToolUse.Input),
					},
				})
			}
		}
		msg := openai.ChatCompletionAssistantMessageParam{
			Content:   openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(text)},
			ToolCalls: calls,
		}
		out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &msg})
	case session.SourceTool:
		for _, b := range m.Blocks {
			if b.Kind == session.ContentToolResult {
				out = append(out, openai.ToolMessage(b.Result.Text, b.Result.CallID))
			}
		}
	}
	return out, nil
}

type toolCallAccum struct {
	id   string
	name string
	args string
}

type streamState struct {
	toolArgs     map[int64]*toolCallAccum
	started      map[int64]bool
	inputTokens  int
	outputTokens int
	finishReason string
}

func translateChunk(chunk openai.ChatCompletionChunk, state *streamState, emit func(events.StreamEvent) error) error {
	if state.started == nil {
		state.started = map[int64]bool{}
	}
	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			if err := emit(events.TextDeltaEvent(choice.Delta.Content)); err != nil {
				return err
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := tc.Index
			acc, ok := state.toolArgs[idx]
			if !ok {
				acc = &toolCallAccum{id: tc.ID, name: tc.Function.Name}
				state.toolArgs[idx] = acc
			}
			if !state.started[idx] && (acc.id != "" || acc.name != "") {
				state.started[idx] = true
				if err := emit(events.ToolCallStartEvent(acc.id, acc.name)); err != nil {
					return err
				}
			}
			if tc.Function.Arguments != "" {
				acc.args += tc.Function.Arguments
				if err := emit(events.ToolCallDeltaEvent(acc.id, tc.Function.Arguments)); err != nil {
					return err
				}
			}
		}
		if choice.FinishReason != "" {
			state.finishReason = choice.FinishReason
		}
	}
	if chunk.Usage.PromptTokens > 0 {
		state.inputTokens = int(chunk.Usage.PromptTokens)
	}
	if chunk.Usage.CompletionTokens > 0 {
		state.outputTokens = int(chunk.Usage.CompletionTokens)
	}
	return nil
}

// flushPendingToolCalls emits ToolCallDone for every tool call accumulated
// across the stream, once it has fully ended.
func (s *streamState) flushPendingToolCalls(emit func(events.StreamEvent) error) error {
	for _, acc := range s.toolArgs {
		if err := emit(events.ToolCallDoneEvent(acc.id, []byte(acc.args))); err != nil {
			return err
		}
	}
	return nil
}

func isRetryableErr(err error) bool {
	apiErr, ok := err.(*openai.Error)
	if !ok {
		return false
	}
	return transport.IsRetryableStatus(apiErr.StatusCode)
}
