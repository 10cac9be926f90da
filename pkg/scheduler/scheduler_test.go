package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"agentcore/pkg/tool"
)

func registerEcho(t *testing.T, r *tool.Registry, name string, safety tool.SafetyClass, delay time.Duration, track *int32) {
	t.Helper()
	err := r.Register(tool.Descriptor{
		Name:   name,
		Safety: safety,
		Handler: tool.HandlerFunc(func(ctx context.Context, call tool.Call) (tool.Result, error) {
			if track != nil {
				atomic.AddInt32(track, 1)
			}
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return tool.Result{CallID: call.ID, IsError: true}, ctx.Err()
				}
			}
			return tool.Result{CallID: call.ID, Text: "ok:" + call.Name}, nil
		}),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRunPreservesCallOrderInOutcomes(t *testing.T) {
	r := tool.NewRegistry()
	registerEcho(t, r, "a", tool.Safe, 0, nil)
	registerEcho(t, r, "b", tool.Safe, 0, nil)
	s := New(r)

	calls := []tool.Call{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}}
	out, err := s.Run(context.Background(), calls, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Call.ID != "1" || out[1].Call.ID != "2" {
		t.Fatalf("expected outcomes in call order, got %+v", out)
	}
}

func TestSafeToolsRunConcurrently(t *testing.T) {
	r := tool.NewRegistry()
	var concurrent int32
	var maxConcurrent int32
	registerConcurrencyTracker := func(name string) {
		err := r.Register(tool.Descriptor{
			Name:   name,
			Safety: tool.Safe,
			Handler: tool.HandlerFunc(func(ctx context.Context, call tool.Call) (tool.Result, error) {
				n := atomic.AddInt32(&concurrent, 1)
				for {
					old := atomic.LoadInt32(&maxConcurrent)
					if n <= old || atomic.CompareAndSwapInt32(&maxConcurrent, old, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&concurrent, -1)
				return tool.Result{CallID: call.ID}, nil
			}),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	registerConcurrencyTracker("a")
	registerConcurrencyTracker("b")
	s := New(r)

	calls := []tool.Call{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}}
	if _, err := s.Run(context.Background(), calls, nil); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&maxConcurrent) < 2 {
		t.Fatalf("expected both safe tools to overlap, max concurrent was %d", maxConcurrent)
	}
}

func TestUnsafeToolSerializesAroundWholeBatch(t *testing.T) {
	r := tool.NewRegistry()
	var active int32
	var sawOverlap int32
	track := func(name string, safety tool.SafetyClass) {
		err := r.Register(tool.Descriptor{
			Name:   name,
			Safety: safety,
			Handler: tool.HandlerFunc(func(ctx context.Context, call tool.Call) (tool.Result, error) {
				n := atomic.AddInt32(&active, 1)
				if n > 1 {
					atomic.StoreInt32(&sawOverlap, 1)
				}
				time.Sleep(15 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return tool.Result{CallID: call.ID}, nil
			}),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	track("safe1", tool.Safe)
	track("unsafe", tool.Unsafe)
	track("safe2", tool.Safe)
	s := New(r)

	calls := []tool.Call{
		{ID: "1", Name: "safe1"},
		{ID: "2", Name: "unsafe"},
		{ID: "3", Name: "safe2"},
	}
	if _, err := s.Run(context.Background(), calls, nil); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&sawOverlap) != 0 {
		t.Fatal("expected the unsafe tool to never overlap with any other call in its batch")
	}
}

func TestUnknownToolYieldsErrorOutcomeWithoutAbortingOthers(t *testing.T) {
	r := tool.NewRegistry()
	registerEcho(t, r, "known", tool.Safe, 0, nil)
	s := New(r)

	calls := []tool.Call{{ID: "1", Name: "missing"}, {ID: "2", Name: "known"}}
	out, err := s.Run(context.Background(), calls, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Err == nil {
		t.Fatal("expected an error outcome for the unknown tool")
	}
	if out[1].Err != nil || out[1].Result.Text != "ok:known" {
		t.Fatalf("expected the known tool to still run, got %+v", out[1])
	}
}

func TestRunForwardsProgressByCallID(t *testing.T) {
	r := tool.NewRegistry()
	err := r.Register(tool.Descriptor{
		Name:   "progressor",
		Safety: tool.Safe,
		Handler: tool.HandlerFunc(func(ctx context.Context, call tool.Call) (tool.Result, error) {
			if call.EmitProgress != nil {
				call.EmitProgress("working")
			}
			return tool.Result{CallID: call.ID}, nil
		}),
	})
	if err != nil {
		t.Fatal(err)
	}
	s := New(r)

	var mu sync.Mutex
	seen := map[string]string{}
	calls := []tool.Call{{ID: "1", Name: "progressor"}}
	if _, err := s.Run(context.Background(), calls, func(callID, text string) {
		mu.Lock()
		seen[callID] = text
		mu.Unlock()
	}); err != nil {
		t.Fatal(err)
	}
	if seen["1"] != "working" {
		t.Fatalf("expected progress forwarded for call 1, got %+v", seen)
	}
}

func TestRunRespectsCancellation(t *testing.T) {
	r := tool.NewRegistry()
	registerEcho(t, r, "slow", tool.Safe, 200*time.Millisecond, nil)
	s := New(r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := []tool.Call{{ID: "1", Name: "slow"}}
	out, err := s.Run(ctx, calls, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !out[0].Result.IsError {
		t.Fatalf("expected a cancelled call to yield an error result, got %+v", out[0])
	}
}
