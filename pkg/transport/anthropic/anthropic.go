// Package anthropic adapts the Anthropic Messages API to the
// transport.Provider interface. Adapted from the teacher's
// pkg/harness/claude package: buildRequest/translateEvent/streamState keep
// their shape, generalized from harness.Turn/harness.Event to
// transport.GenerateRequest/events.StreamEvent.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"agentcore/pkg/events"
	"agentcore/pkg/session"
	"agentcore/pkg/transport"
)

// Config configures the Anthropic provider.
type Config struct {
	APIKey           string
	DefaultModel     string
	DefaultMaxTokens int
	ThinkingBudget   int
}

// Provider implements transport.Provider for the Anthropic Messages API.
type Provider struct {
	apiKey       string
	defaultModel string
	maxTokens    int
	thinkBudget  int

	// newClient is overridden in tests to avoid a live network dependency.
	newClient func() *anthropic.Client
}

var _ transport.Provider = (*Provider)(nil)

// New constructs an Anthropic provider.
func New(cfg Config) *Provider {
	model := cfg.DefaultModel
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	maxTokens := cfg.DefaultMaxTokens
	if maxTokens <= 0 {
		maxTokens = 16384
	}
	p := &Provider{apiKey: cfg.APIKey, defaultModel: model, maxTokens: maxTokens, thinkBudget: cfg.ThinkingBudget}
	p.newClient = func() *anthropic.Client {
		c := anthropic.NewClient(option.WithAPIKey(p.apiKey))
		return &c
	}
	return p
}

func (p *Provider) Name() string { return "anthropic" }

// Generate streams one Messages API call and normalizes every event into
// events.StreamEvent.
func (p *Provider) Generate(ctx context.Context, req transport.GenerateRequest, onEvent func(events.StreamEvent) error) error {
	params, err := p.buildRequest(req)
	if err != nil {
		return fmt.Errorf("anthropic: build request: %w", err)
	}

	client := p.newClient()
	state := &streamState{}

	stream := client.Messages.NewStreaming(ctx, params)
	for stream.Next() {
		if err := translateEvent(stream.Current(), state, onEvent); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return onEvent(events.ErrorEvent(err, isRetryableErr(err)))
	}
	return onEvent(events.ResponseDoneEvent(state.finishReason, events.Usage{
		InputTokens:         state.inputTokens,
		OutputTokens:        state.outputTokens,
		CacheReadTokens:     state.cacheReadTokens,
		CacheCreationTokens: state.cacheCreationTokens,
	}))
}

// ListModels returns available Claude models.
func (p *Provider) ListModels(ctx context.Context) ([]transport.ModelInfo, error) {
	client := p.newClient()
	page, err := client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, fmt.Errorf("anthropic: list models: %w", err)
	}
	var out []transport.ModelInfo
	for _, m := range page.Data {
		out = append(out, transport.ModelInfo{ID: m.ID, DisplayName: m.DisplayName})
	}
	return out, nil
}

// buildRequest translates a transport.GenerateRequest to
// anthropic.MessageNewParams.
func (p *Provider) buildRequest(req transport.GenerateRequest) (anthropic.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	messages, err := translateMessages(req.Messages)
	if err != nil {
		return params, err
	}
	params.Messages = messages

	if len(req.Tools) > 0 {
		var tools []anthropic.ToolUnionParam
		for _, t := range req.Tools {
			schema := anthropic.ToolInputSchemaParam{}
			if t.Parameters != nil {
				if props, ok := t.Parameters["properties"].(map[string]any); ok {
					schema.Properties = props
				}
				if reqd, ok := t.Parameters["required"].([]any); ok {
					for _, r := range reqd {
						if s, ok := r.(string); ok {
							schema.Required = append(schema.Required, s)
						}
					}
				}
			}
			tools = append(tools, anthropic.ToolUnionParam{
				OfTool: &anthropic.ToolParam{
					Name:        t.Name,
					Description: anthropic.String(t.Description),
					InputSchema: schema,
				},
			})
		}
		params.Tools = tools
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}

	thinkBudget := p.thinkBudget
	if req.Reasoning != nil {
		switch req.Reasoning.Effort {
		case "high":
			if thinkBudget == 0 {
				thinkBudget = 10000
			}
		case "low":
			thinkBudget = 0
		default:
			if req.Reasoning.Budget > 0 {
				thinkBudget = req.Reasoning.Budget
			}
		}
	}
	if thinkBudget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(thinkBudget))
		if params.MaxTokens < int64(thinkBudget)+4096 {
			params.MaxTokens = int64(thinkBudget) + 4096
		}
	}

	return params, nil
}

// translateMessages converts tracked session history to Anthropic message
// params, dispatching on session.ContentBlock.Kind rather than the
// teacher's flat Role/ToolID/Content shape.
func translateMessages(msgs []session.TrackedMessage) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, m := range msgs {
		switch m.Source.Kind {
		case session.SourceUser, session.SourceCompactionSummary:
			var blocks []anthropic.ContentBlockParamUnion
			for _, b := range m.Blocks {
				if b.Kind == session.ContentText {
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				}
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewUserMessage(blocks...))
			}
		case session.SourceAssistant, session.SourceSubagent:
			var blocks []anthropic.ContentBlockParamUnion
			for _, b := range m.Blocks {
				switch b.Kind {
				case session.ContentText:
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				case session.ContentToolUse:
					var input map[string]any
					if len(b.ToolUse.Input) > 0 {
						_ = json.Unmarshal(b.ToolUse.Input, &input)
					}
					blocks = append(blocks, anthropic.NewToolUseBlock(b.ToolUse.ID, input, b.ToolUse.Name))
				}
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case session.SourceTool:
			var blocks []anthropic.ContentBlockParamUnion
			for _, b := range m.Blocks {
				if b.Kind == session.ContentToolResult {
					blocks = append(blocks, anthropic.NewToolResultBlock(b.Result.CallID, b.Result.Text, b.Result.IsError))
				}
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewUserMessage(blocks...))
			}
		}
	}
	return out, nil
}

// streamState tracks state while translating a stream of Anthropic events,
// adapted from the teacher's claude.streamState.
type streamState struct {
	currentBlockType    string
	currentToolID       string
	currentToolName     string
	toolArgsJSON        string
	inputTokens         int
	outputTokens        int
	cacheReadTokens     int
	cacheCreationTokens int
	finishReason        string
}

func translateEvent(event anthropic.MessageStreamEventUnion, state *streamState, emit func(events.StreamEvent) error) error {
	switch e := event.AsAny().(type) {
	case anthropic.ContentBlockStartEvent:
		block := e.ContentBlock
		switch block.Type {
		case "text":
			state.currentBlockType = "text"
		case "thinking":
			state.currentBlockType = "thinking"
		case "tool_use":
			state.currentBlockType = "tool_use"
			toolBlock := block.AsToolUse()
			state.currentToolID = toolBlock.ID
			state.currentToolName = toolBlock.Name
			state.toolArgsJSON = ""
			return emit(events.ToolCallStartEvent(state.currentToolID, state.currentToolName))
		}

	case anthropic.ContentBlockDeltaEvent:
		delta := e.Delta
		switch delta.Type {
		case "text_delta":
			return emit(events.TextDeltaEvent(delta.AsTextDelta().Text))
		case "thinking_delta":
			return emit(events.ThinkingDeltaEvent(delta.AsThinkingDelta().Thinking))
		case "input_json_delta":
			jsonDelta := delta.AsInputJSONDelta()
			state.toolArgsJSON += jsonDelta.PartialJSON
			return emit(events.ToolCallDeltaEvent(state.currentToolID, jsonDelta.PartialJSON))
		}

	case anthropic.ContentBlockStopEvent:
		blockType := state.currentBlockType
		state.currentBlockType = ""
		if blockType == "tool_use" {
			return emit(events.ToolCallDoneEvent(state.currentToolID, []byte(state.toolArgsJSON)))
		}

	case anthropic.MessageStartEvent:
		if e.Message.Usage.InputTokens > 0 {
			state.inputTokens = int(e.Message.Usage.InputTokens)
		}
		state.cacheReadTokens = int(e.Message.Usage.CacheReadInputTokens)
		state.cacheCreationTokens = int(e.Message.Usage.CacheCreationInputTokens)
		return emit(events.StreamEvent{Kind: events.ResponseCreated, ResponseID: e.Message.ID})

	case anthropic.MessageDeltaEvent:
		if e.Usage.OutputTokens > 0 {
			state.outputTokens = int(e.Usage.OutputTokens)
		}
		if e.Delta.StopReason != "" {
			state.finishReason = string(e.Delta.StopReason)
		}
	}
	return nil
}

// isRetryableErr reports whether an Anthropic SDK error represents a
// condition worth retrying. The SDK surfaces HTTP status via its own
// error type; transport.IsRetryableStatus stays the single source of
// truth for which codes qualify.
func isRetryableErr(err error) bool {
	var apiErr *anthropic.Error
	if ok := asAnthropicError(err, &apiErr); ok {
		return transport.IsRetryableStatus(apiErr.StatusCode)
	}
	return false
}

func asAnthropicError(err error, target **anthropic.Error) bool {
	ae, ok := err.(*anthropic.Error)
	if !ok {
		return false
	}
	*target = ae
	return true
}
