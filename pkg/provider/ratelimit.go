package provider

import (
	"context"

	"golang.org/x/time/rate"

	"agentcore/pkg/events"
	"agentcore/pkg/transport"
)

// RateLimited wraps p so every Generate call first waits for a token
// bucket slot, giving each configured backend its own request-rate
// ceiling independent of the provider's own server-side throttling.
// Grounded on the teacher's per-backend concurrency guards
// (pkg/proxy/ratelimit.go), generalized from the teacher's tenant-token
// bucket to one bucket per provider registration.
func RateLimited(p transport.Provider, limiter *rate.Limiter) transport.Provider {
	if limiter == nil {
		return p
	}
	return &rateLimitedProvider{Provider: p, limiter: limiter}
}

type rateLimitedProvider struct {
	transport.Provider
	limiter *rate.Limiter
}

func (p *rateLimitedProvider) Generate(ctx context.Context, req transport.GenerateRequest, onEvent func(events.StreamEvent) error) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	return p.Provider.Generate(ctx, req, onEvent)
}
