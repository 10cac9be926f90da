package approvalbridge

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agentcore/pkg/events"
	"agentcore/pkg/permission"
	"agentcore/pkg/turn"
)

func TestRequestApprovalResolvesOnApprove(t *testing.T) {
	bus := events.NewBus()
	b := New(Config{ApprovalTimeout: time.Second}, bus, nil)

	req := permission.ApprovalRequest{ID: "req-1", ToolName: "shell", Description: "rm -rf /tmp/x", AllowRemember: true}

	done := make(chan turn.ApprovalResponse, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := b.RequestApproval(context.Background(), req)
		errCh <- err
		done <- resp
	}()

	// give RequestApproval time to register the pending slot
	time.Sleep(10 * time.Millisecond)
	if !b.resolve("req-1", turn.ApprovalResponse{Kind: turn.ApprovalApprove, Remember: true}) {
		t.Fatal("resolve returned false for a registered pending approval")
	}

	if err := <-errCh; err != nil {
		t.Fatalf("RequestApproval returned error: %v", err)
	}
	resp := <-done
	if resp.Kind != turn.ApprovalApprove || !resp.Remember {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestRequestApprovalTimesOut(t *testing.T) {
	bus := events.NewBus()
	b := New(Config{ApprovalTimeout: 20 * time.Millisecond}, bus, nil)

	resp, err := b.RequestApproval(context.Background(), permission.ApprovalRequest{ID: "req-2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Kind != turn.ApprovalTimeout {
		t.Fatalf("expected ApprovalTimeout, got %v", resp.Kind)
	}
}

func TestRequestApprovalContextCancelled(t *testing.T) {
	bus := events.NewBus()
	b := New(Config{ApprovalTimeout: time.Minute}, bus, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := b.RequestApproval(ctx, permission.ApprovalRequest{ID: "req-3"})
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	if err := <-errCh; err == nil {
		t.Fatal("expected context cancellation error")
	}
}

func TestResolveUnknownIDReturnsFalse(t *testing.T) {
	b := New(Config{}, events.NewBus(), nil)
	if b.resolve("never-registered", turn.ApprovalResponse{Kind: turn.ApprovalApprove}) {
		t.Fatal("expected resolve of an unregistered id to return false")
	}
}

func TestHandleApprovalHTTP(t *testing.T) {
	bus := events.NewBus()
	b := New(Config{ApprovalTimeout: time.Second}, bus, nil)

	done := make(chan turn.ApprovalResponse, 1)
	go func() {
		resp, _ := b.RequestApproval(context.Background(), permission.ApprovalRequest{ID: "req-4"})
		done <- resp
	}()
	time.Sleep(10 * time.Millisecond)

	srv := httptest.NewServer(http.HandlerFunc(b.handleApproval))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/approvals/req-4", "application/json", strings.NewReader(`{"decision":"deny"}`))
	if err != nil {
		t.Fatalf("POST /approvals: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	got := <-done
	if got.Kind != turn.ApprovalDeny {
		t.Fatalf("expected ApprovalDeny, got %v", got.Kind)
	}
}

func TestHandleApprovalUnknownIDReturns404(t *testing.T) {
	b := New(Config{}, events.NewBus(), nil)
	srv := httptest.NewServer(http.HandlerFunc(b.handleApproval))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/approvals/nope", "application/json", strings.NewReader(`{"decision":"approve"}`))
	if err != nil {
		t.Fatalf("POST /approvals: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHandleApprovalInvalidDecision(t *testing.T) {
	bus := events.NewBus()
	b := New(Config{ApprovalTimeout: time.Second}, bus, nil)
	go b.RequestApproval(context.Background(), permission.ApprovalRequest{ID: "req-5"})
	time.Sleep(10 * time.Millisecond)

	srv := httptest.NewServer(http.HandlerFunc(b.handleApproval))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/approvals/req-5", "application/json", strings.NewReader(`{"decision":"maybe"}`))
	if err != nil {
		t.Fatalf("POST /approvals: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHandleEventsStreamsApprovalRequested(t *testing.T) {
	bus := events.NewBus()
	b := New(Config{}, bus, nil)

	srv := httptest.NewServer(http.HandlerFunc(b.handleEvents))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req = req.WithContext(ctx)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer resp.Body.Close()

	// give the handler a moment to subscribe before publishing
	time.Sleep(20 * time.Millisecond)
	bus.Publish("sess-1", events.ApprovalRequestedEvent("req-9", "shell", "rm -rf /tmp", true))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("reading SSE line: %v", err)
	}
	if !strings.HasPrefix(line, "data: ") {
		t.Fatalf("expected an SSE data line, got %q", line)
	}
	if !strings.Contains(line, "approval_requested") || !strings.Contains(line, "req-9") {
		t.Fatalf("unexpected SSE payload: %q", line)
	}
}
