// Package compat implements transport.Provider for any OpenAI Chat
// Completions-compatible HTTP endpoint, using plain net/http and a small
// SSE scanner rather than a vendor SDK — no such SDK exists anywhere in
// the example pack for Volcengine or Z.AI. Grounded on
// cocode-rs/provider-sdks/hyper-sdk/src/providers/openai_compat.rs's
// Config{name, api_key, base_url}/builder pattern and its named presets
// (groq/together/fireworks/azure/local), translated to Go constructors
// (Volcengine/ZAI/New), and on the teacher's pkg/sse SSE line scanner for
// the streaming parse loop.
package compat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"agentcore/pkg/events"
	"agentcore/pkg/session"
	"agentcore/pkg/transport"
)

// Config describes one OpenAI Chat Completions-compatible endpoint.
type Config struct {
	Name         string
	APIKey       string
	BaseURL      string // e.g. "https://ark.cn-beijing.volces.com/api/v3"
	DefaultModel string
	Timeout      time.Duration
}

// Provider implements transport.Provider over a raw HTTP+SSE Chat
// Completions endpoint.
type Provider struct {
	cfg        Config
	httpClient *http.Client
}

var _ transport.Provider = (*Provider)(nil)

// New constructs a generic OpenAI-compatible provider.
func New(cfg Config) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &Provider{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

// Volcengine builds a provider for Volcengine's Ark Chat Completions API.
func Volcengine(apiKey, defaultModel string) *Provider {
	return New(Config{Name: "volcengine", APIKey: apiKey, BaseURL: "https://ark.cn-beijing.volces.com/api/v3", DefaultModel: defaultModel})
}

// ZAI builds a provider for Z.AI's Chat Completions API.
func ZAI(apiKey, defaultModel string) *Provider {
	return New(Config{Name: "zai", APIKey: apiKey, BaseURL: "https://api.z.ai/api/paas/v4", DefaultModel: defaultModel})
}

func (p *Provider) Name() string { return p.cfg.Name }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Tools       []chatTool    `json:"tools,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function chatToolCallFunc `json:"function"`
}

type chatToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate posts a streaming Chat Completions request and emits
// normalized events as SSE chunks arrive.
func (p *Provider) Generate(ctx context.Context, req transport.GenerateRequest, onEvent func(events.StreamEvent) error) error {
	body, err := p.buildRequest(req)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", p.cfg.Name, err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", p.cfg.Name, err)
	}
	// stream_options.include_usage isn't part of the base Chat Completions
	// schema every fork here supports, so it's patched on after marshaling
	// rather than added as a chatRequest field every caller would carry.
	if patched, err := sjson.SetBytes(payload, "stream_options.include_usage", true); err == nil {
		payload = patched
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build http request: %w", p.cfg.Name, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return onEvent(events.ErrorEvent(fmt.Errorf("%s: request failed: %w", p.cfg.Name, err), true))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		err := fmt.Errorf("%s: request failed with status %d: %s", p.cfg.Name, resp.StatusCode, extractErrorMessage(errBody))
		return onEvent(events.ErrorEvent(err, transport.IsRetryableStatus(resp.StatusCode)))
	}

	state := &streamState{toolNames: map[int]string{}, toolArgs: map[int]*strings.Builder{}, toolIDs: map[int]string{}}
	if err := parseSSE(resp.Body, func(chunk chatChunk) error {
		return translateChunk(chunk, state, onEvent)
	}); err != nil {
		return onEvent(events.ErrorEvent(err, false))
	}
	if err := state.flush(onEvent); err != nil {
		return err
	}
	return onEvent(events.ResponseDoneEvent(state.finishReason, events.Usage{
		InputTokens:  state.inputTokens,
		OutputTokens: state.outputTokens,
	}))
}

// ListModels is unsupported for generic compatible endpoints; callers are
// expected to configure a known model id directly.
func (p *Provider) ListModels(ctx context.Context) ([]transport.ModelInfo, error) {
	return nil, fmt.Errorf("%s: model discovery not supported", p.cfg.Name)
}

func (p *Provider) buildRequest(req transport.GenerateRequest) (chatRequest, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}

	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		msgs, err := translateMessage(m)
		if err != nil {
			return chatRequest{}, err
		}
		messages = append(messages, msgs...)
	}

	out := chatRequest{Model: model, Messages: messages, Stream: true, MaxTokens: req.MaxTokens, Temperature: req.Temperature}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, chatTool{Type: "function", Function: chatFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters}})
	}
	return out, nil
}

func translateMessage(m session.TrackedMessage) ([]chatMessage, error) {
	var out []chatMessage
	switch m.Source.Kind {
	case session.SourceUser, session.SourceCompactionSummary:
		for _, b := range m.Blocks {
			if b.Kind == session.ContentText {
				out = append(out, chatMessage{Role: "user", Content: b.Text})
			}
		}
	case session.SourceAssistant, session.SourceSubagent:
		var text string
		var calls []chatToolCall
		for _, b := range m.Blocks {
			switch b.Kind {
			case session.ContentText:
				text += b.Text
			case session.ContentToolUse:
				calls = append(calls, chatToolCall{ID: b.ToolUse.ID, Type: "function", Function: chatToolCallFunc{Name: b.ToolUse.Name, Arguments: string(b.ToolUse.Input)}})
			}
		}
		out = append(out, chatMessage{Role: "assistant", Content: text, ToolCalls: calls})
	case session.SourceTool:
		for _, b := range m.Blocks {
			if b.Kind == session.ContentToolResult {
				out = append(out, chatMessage{Role: "tool", Content: b.Result.Text, ToolCallID: b.Result.CallID})
			}
		}
	}
	return out, nil
}

type streamState struct {
	toolNames    map[int]string
	toolIDs      map[int]string
	toolArgs     map[int]*strings.Builder
	started      map[int]bool
	inputTokens  int
	outputTokens int
	finishReason string
}

func translateChunk(chunk chatChunk, state *streamState, emit func(events.StreamEvent) error) error {
	if state.started == nil {
		state.started = map[int]bool{}
	}
	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			if err := emit(events.TextDeltaEvent(choice.Delta.Content)); err != nil {
				return err
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			if tc.ID != "" {
				state.toolIDs[tc.Index] = tc.ID
			}
			if tc.Function.Name != "" {
				state.toolNames[tc.Index] = tc.Function.Name
			}
			if !state.started[tc.Index] && (state.toolIDs[tc.Index] != "" || state.toolNames[tc.Index] != "") {
				state.started[tc.Index] = true
				if err := emit(events.ToolCallStartEvent(state.toolIDs[tc.Index], state.toolNames[tc.Index])); err != nil {
					return err
				}
			}
			if tc.Function.Arguments != "" {
				b, ok := state.toolArgs[tc.Index]
				if !ok {
					b = &strings.Builder{}
					state.toolArgs[tc.Index] = b
				}
				b.WriteString(tc.Function.Arguments)
				if err := emit(events.ToolCallDeltaEvent(state.toolIDs[tc.Index], tc.Function.Arguments)); err != nil {
					return err
				}
			}
		}
		if choice.FinishReason != "" {
			state.finishReason = choice.FinishReason
		}
	}
	if chunk.Usage != nil {
		state.inputTokens = chunk.Usage.PromptTokens
		state.outputTokens = chunk.Usage.CompletionTokens
	}
	return nil
}

func (s *streamState) flush(emit func(events.StreamEvent) error) error {
	for idx, b := range s.toolArgs {
		if err := emit(events.ToolCallDoneEvent(s.toolIDs[idx], []byte(b.String()))); err != nil {
			return err
		}
	}
	return nil
}

// extractErrorMessage pulls the conventional error.message field out of an
// OpenAI-compatible error body (every fork seen here — Volcengine, Z.AI —
// nests the message under error.message or error.msg). Falls back to the
// raw trimmed body when the response isn't shaped that way.
func extractErrorMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
		return msg.String()
	}
	if msg := gjson.GetBytes(body, "error.msg"); msg.Exists() {
		return msg.String()
	}
	return strings.TrimSpace(string(body))
}

// parseSSE scans an OpenAI-style "data: {json}\n\n" stream, adapted from
// the teacher's pkg/sse.ParseStream line-accumulation loop but decoding
// directly into chatChunk instead of the Codex Responses envelope.
func parseSSE(r io.Reader, onChunk func(chatChunk) error) error {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var dataLines []string
	flush := func() error {
		if len(dataLines) == 0 {
			return nil
		}
		joined := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]
		trimmed := strings.TrimSpace(joined)
		if trimmed == "" || trimmed == "[DONE]" {
			return nil
		}
		var chunk chatChunk
		if err := json.Unmarshal([]byte(trimmed), &chunk); err != nil {
			return nil
		}
		return onChunk(chunk)
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}
