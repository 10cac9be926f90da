// Package approvalbridge exposes the turn runner's approval protocol and
// live event stream to an out-of-process UI over local HTTP+SSE. Grounded
// on the teacher's pkg/proxy/server.go (HTTP server wiring, writeJSON/
// writeError/writeSSE helpers) and pkg/admin/server.go (a narrow,
// single-purpose control-plane HTTP server alongside the main one) — this
// is the one piece of "UI" surface area the core owns: a thin protocol
// bridge, not a rendered interface.
package approvalbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"agentcore/pkg/corelog"
	"agentcore/pkg/events"
	"agentcore/pkg/permission"
	"agentcore/pkg/turn"
)

var errNoFlusher = errors.New("response writer does not support flushing")

// Config controls the bridge's HTTP listener and approval timeout.
type Config struct {
	Listen          string        // default "127.0.0.1:39601"
	ApprovalTimeout time.Duration // default 5 minutes; 0 disables the timeout
	LogRequests     bool
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = "127.0.0.1:39601"
	}
	if c.ApprovalTimeout == 0 {
		c.ApprovalTimeout = 5 * time.Minute
	}
	return c
}

// pendingApproval is one in-flight RequestApproval call awaiting a
// POST /approvals/{id} resolution.
type pendingApproval struct {
	resultCh chan turn.ApprovalResponse
}

// Bridge implements turn.ApprovalSink by round-tripping approval requests
// through HTTP: RequestApproval publishes an ApprovalRequested event (via
// the session's Bus, consumed over GET /events) and blocks until a
// matching POST /approvals/{id} arrives or the approval timeout elapses.
type Bridge struct {
	cfg    Config
	bus    *events.Bus
	logger *corelog.Logger

	mu      sync.Mutex
	pending map[string]*pendingApproval
}

// New builds a Bridge publishing events onto bus and logging through
// logger (nil is fine — corelog.Logger is nil-receiver safe).
func New(cfg Config, bus *events.Bus, logger *corelog.Logger) *Bridge {
	return &Bridge{
		cfg:     cfg.withDefaults(),
		bus:     bus,
		logger:  logger,
		pending: make(map[string]*pendingApproval),
	}
}

// RequestApproval implements turn.ApprovalSink. It registers a pending
// slot for req.ID, publishes an ApprovalRequested event so any GET
// /events subscriber observes it, then waits for a matching
// POST /approvals/{id}, the context being cancelled, or the configured
// approval timeout — whichever happens first.
func (b *Bridge) RequestApproval(ctx context.Context, req permission.ApprovalRequest) (turn.ApprovalResponse, error) {
	pending := &pendingApproval{resultCh: make(chan turn.ApprovalResponse, 1)}

	b.mu.Lock()
	b.pending[req.ID] = pending
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, req.ID)
		b.mu.Unlock()
	}()

	if b.bus != nil {
		b.bus.Publish("", events.ApprovalRequestedEvent(req.ID, req.ToolName, req.Description, req.AllowRemember))
	}

	var timeout <-chan time.Time
	if b.cfg.ApprovalTimeout > 0 {
		timer := time.NewTimer(b.cfg.ApprovalTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case resp := <-pending.resultCh:
		return resp, nil
	case <-timeout:
		return turn.ApprovalResponse{Kind: turn.ApprovalTimeout}, nil
	case <-ctx.Done():
		return turn.ApprovalResponse{}, ctx.Err()
	}
}

// resolve delivers a decision to the pending RequestApproval call waiting
// on id, returning false if no such pending request exists (already
// resolved, timed out, or never registered).
func (b *Bridge) resolve(id string, resp turn.ApprovalResponse) bool {
	b.mu.Lock()
	pending, ok := b.pending[id]
	b.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case pending.resultCh <- resp:
		return true
	default:
		return false
	}
}

// Serve starts the bridge's HTTP server and blocks until ctx is
// cancelled, mirroring the teacher's Server.ServeWithContext shutdown
// pattern.
func (b *Bridge) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", b.handleEvents)
	mux.HandleFunc("/approvals/", b.handleApproval)
	mux.HandleFunc("/health", b.handleHealth)

	server := &http.Server{
		Addr:              b.cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// wireEvent is the JSON-serializable projection of a SessionEvent sent
// over /events — events.StreamEvent carries an error value and untagged
// fields not meant for direct json.Marshal.
type wireEvent struct {
	SessionID     string `json:"session_id,omitempty"`
	Kind          string `json:"kind"`
	Text          string `json:"text,omitempty"`
	ToolCallID    string `json:"tool_call_id,omitempty"`
	ToolCallName  string `json:"tool_call_name,omitempty"`
	FinishReason  string `json:"finish_reason,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
	AllowRemember bool   `json:"allow_remember,omitempty"`
	ContextWindow int    `json:"context_window,omitempty"`
	Error         string `json:"error,omitempty"`
}

func toWireEvent(se events.SessionEvent) wireEvent {
	w := wireEvent{
		SessionID:     se.SessionID,
		Kind:          se.Event.Kind.String(),
		Text:          se.Event.Text,
		ToolCallID:    se.Event.ToolCallID,
		ToolCallName:  se.Event.ToolCallName,
		FinishReason:  se.Event.FinishReason,
		RequestID:     se.Event.RequestID,
		AllowRemember: se.Event.AllowRemember,
		ContextWindow: se.Event.ContextWindow,
	}
	if se.Event.Err != nil {
		w.Error = se.Event.Err.Error()
	}
	return w
}

// handleEvents streams every subsequent bus event as SSE. The bridge
// subscribes as a Critical consumer (SPEC_FULL.md's event bus section):
// a connected UI must never observe a gap, including ApprovalRequested,
// so it publishes the Bus blocks this subscriber rather than drop.
func (b *Bridge) handleEvents(w http.ResponseWriter, r *http.Request) {
	if b.bus == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no event bus configured"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errNoFlusher)
		return
	}

	sub := b.bus.Subscribe(events.Critical, 0)
	defer sub.Close()

	ctx := r.Context()
	for {
		select {
		case se, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeSSE(w, flusher, toWireEvent(se)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// approvalDecisionRequest is the body of POST /approvals/{id}.
type approvalDecisionRequest struct {
	Decision string `json:"decision"` // "approve" or "deny"
	Remember bool   `json:"remember"`
}

func (b *Bridge) handleApproval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/approvals/")
	if id == "" {
		writeError(w, http.StatusNotFound, errors.New("approval id required"))
		return
	}

	var body approvalDecisionRequest
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var resp turn.ApprovalResponse
	switch strings.ToLower(strings.TrimSpace(body.Decision)) {
	case "approve":
		resp = turn.ApprovalResponse{Kind: turn.ApprovalApprove, Remember: body.Remember}
	case "deny":
		resp = turn.ApprovalResponse{Kind: turn.ApprovalDeny}
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("decision must be \"approve\" or \"deny\", got %q", body.Decision))
		return
	}

	if !b.resolve(id, resp) {
		writeError(w, http.StatusNotFound, fmt.Errorf("no pending approval %q", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "resolved"})
	b.logger.Info("approval resolved", "id", id, "decision", body.Decision)
}

func (b *Bridge) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readJSON(r *http.Request, out any) error {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, 1024*1024))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("empty body")
	}
	return json.Unmarshal(body, out)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"message": err.Error(), "type": "approvalbridge_error"},
	})
}

func writeSSE(w io.Writer, flusher http.Flusher, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
