// Package mock implements transport.Provider with scripted responses, for
// exercising the scheduler and turn runner without a live provider.
// Grounded on the teacher's pkg/harness.Mock.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agentcore/pkg/events"
	"agentcore/pkg/transport"
)

// Config configures a scripted Provider.
type Config struct {
	// ProviderName is returned by Name(). Defaults to "mock".
	ProviderName string

	// Responses holds one scripted event sequence per Generate call,
	// consumed in order. Each inner slice should end with a ResponseDone
	// or Error event, matching the transport.Provider.Generate contract.
	Responses [][]events.StreamEvent

	// EventDelay simulates per-event latency.
	EventDelay time.Duration

	// FailAfterN makes Generate return FailErr after emitting N events
	// from the current script. 0 disables failure injection.
	FailAfterN int
	FailErr    error

	// Record keeps every GenerateRequest for later assertion.
	Record bool

	Models []transport.ModelInfo
}

// Provider implements transport.Provider with scripted responses.
type Provider struct {
	mu        sync.Mutex
	cfg       Config
	callIndex int
	recorded  []transport.GenerateRequest
}

var _ transport.Provider = (*Provider)(nil)

// New constructs a scripted mock provider.
func New(cfg Config) *Provider {
	if cfg.ProviderName == "" {
		cfg.ProviderName = "mock"
	}
	return &Provider{cfg: cfg}
}

func (p *Provider) Name() string { return p.cfg.ProviderName }

// Generate emits the next scripted event sequence.
func (p *Provider) Generate(ctx context.Context, req transport.GenerateRequest, onEvent func(events.StreamEvent) error) error {
	p.mu.Lock()
	if p.cfg.Record {
		p.recorded = append(p.recorded, req)
	}
	idx := p.callIndex
	p.callIndex++
	p.mu.Unlock()

	if idx >= len(p.cfg.Responses) {
		return fmt.Errorf("mock: no more scripted responses (call %d, have %d)", idx, len(p.cfg.Responses))
	}

	script := p.cfg.Responses[idx]
	for i, ev := range script {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if p.cfg.FailAfterN > 0 && i >= p.cfg.FailAfterN {
			if p.cfg.FailErr != nil {
				return p.cfg.FailErr
			}
			return fmt.Errorf("mock: injected failure after %d events", p.cfg.FailAfterN)
		}

		if p.cfg.EventDelay > 0 {
			time.Sleep(p.cfg.EventDelay)
		}

		if err := onEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) ListModels(_ context.Context) ([]transport.ModelInfo, error) {
	return p.cfg.Models, nil
}

// Recorded returns every GenerateRequest seen so far when Record is true.
func (p *Provider) Recorded() []transport.GenerateRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]transport.GenerateRequest, len(p.recorded))
	copy(out, p.recorded)
	return out
}

// CallCount returns how many times Generate has been called.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callIndex
}
