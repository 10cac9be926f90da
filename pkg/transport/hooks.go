package transport

import (
	"context"
	"sort"
	"sync"

	"agentcore/pkg/events"
)

// HookContext carries mutable, cross-hook state for one request/response
// cycle: the originating session and working directory, plus a free-form
// bag hooks can use to pass data between each other.
type HookContext struct {
	SessionID  string
	WorkingDir string

	values map[string]any
}

// NewHookContext constructs a context for one request.
func NewHookContext(sessionID, workingDir string) *HookContext {
	return &HookContext{SessionID: sessionID, WorkingDir: workingDir, values: map[string]any{}}
}

// Set stores a value under key, visible to every later hook in the chain.
func (c *HookContext) Set(key string, v any) { c.values[key] = v }

// Get retrieves a value previously stored with Set.
func (c *HookContext) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// RequestHook observes or mutates a request before it is sent.
type RequestHook interface {
	OnRequest(ctx context.Context, req *GenerateRequest, hc *HookContext) error
	Priority() int // lower runs first
	Name() string
}

// ResponseHook observes or mutates a fully-collected response.
type ResponseHook interface {
	OnResponse(ctx context.Context, resp *CollectedResponse, hc *HookContext) error
	Priority() int
	Name() string
}

// StreamHook observes (never mutates) individual stream events as they
// arrive, per hyper-sdk's hook chain design.
type StreamHook interface {
	OnEvent(ctx context.Context, ev events.StreamEvent, hc *HookContext) error
	Priority() int
	Name() string
}

// CollectedResponse is the fully-assembled result of a Generate call,
// built by the turn runner from the stream events it received.
type CollectedResponse struct {
	Text      string
	ToolCalls []events.StreamEvent // ToolCallDone events
	Usage     events.Usage
	FinishReason string
}

// HookChain runs request, response, and stream hooks in priority order.
// Grounded directly on cocode-rs's hyper-sdk HookChain
// (provider-sdks/hyper-sdk/src/hooks/chain.rs): hooks are appended then
// immediately re-sorted by priority so insertion order never matters.
type HookChain struct {
	mu            sync.Mutex
	requestHooks  []RequestHook
	responseHooks []ResponseHook
	streamHooks   []StreamHook
}

// NewHookChain constructs an empty chain.
func NewHookChain() *HookChain { return &HookChain{} }

// AddRequestHook appends and re-sorts the request hook list.
func (c *HookChain) AddRequestHook(h RequestHook) *HookChain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestHooks = append(c.requestHooks, h)
	sort.SliceStable(c.requestHooks, func(i, j int) bool {
		return c.requestHooks[i].Priority() < c.requestHooks[j].Priority()
	})
	return c
}

// AddResponseHook appends and re-sorts the response hook list.
func (c *HookChain) AddResponseHook(h ResponseHook) *HookChain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseHooks = append(c.responseHooks, h)
	sort.SliceStable(c.responseHooks, func(i, j int) bool {
		return c.responseHooks[i].Priority() < c.responseHooks[j].Priority()
	})
	return c
}

// AddStreamHook appends and re-sorts the stream hook list.
func (c *HookChain) AddStreamHook(h StreamHook) *HookChain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamHooks = append(c.streamHooks, h)
	sort.SliceStable(c.streamHooks, func(i, j int) bool {
		return c.streamHooks[i].Priority() < c.streamHooks[j].Priority()
	})
	return c
}

// RunRequestHooks executes every request hook in priority order, stopping
// at the first error.
func (c *HookChain) RunRequestHooks(ctx context.Context, req *GenerateRequest, hc *HookContext) error {
	c.mu.Lock()
	hooks := append([]RequestHook(nil), c.requestHooks...)
	c.mu.Unlock()
	for _, h := range hooks {
		if err := h.OnRequest(ctx, req, hc); err != nil {
			return err
		}
	}
	return nil
}

// RunResponseHooks executes every response hook in priority order.
func (c *HookChain) RunResponseHooks(ctx context.Context, resp *CollectedResponse, hc *HookContext) error {
	c.mu.Lock()
	hooks := append([]ResponseHook(nil), c.responseHooks...)
	c.mu.Unlock()
	for _, h := range hooks {
		if err := h.OnResponse(ctx, resp, hc); err != nil {
			return err
		}
	}
	return nil
}

// RunStreamHooks executes every stream hook for one event. Stream hooks
// observe only; a returned error aborts the stream.
func (c *HookChain) RunStreamHooks(ctx context.Context, ev events.StreamEvent, hc *HookContext) error {
	c.mu.Lock()
	hooks := append([]StreamHook(nil), c.streamHooks...)
	c.mu.Unlock()
	for _, h := range hooks {
		if err := h.OnEvent(ctx, ev, hc); err != nil {
			return err
		}
	}
	return nil
}
