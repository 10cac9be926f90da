// Package metrics collects per-provider request metrics: latency
// percentiles, error rates, and token totals. Adapted from the
// teacher's pkg/metrics/collector.go (per-backend collector) renamed to
// this runtime's provider/model vocabulary, with FromUsage/FromError
// added to build a RequestMetric from a turn's measured latency and the
// transport-neutral agentcore/pkg/events.Usage the provider adapters
// already report on ResponseDone.
package metrics

import (
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"agentcore/pkg/events"
)

// RequestMetric records one completed provider call.
type RequestMetric struct {
	Timestamp time.Time     `json:"ts"`
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	Latency   time.Duration `json:"latency_ms"`
	Status    string        `json:"status"` // "ok", "error"
	Error     string        `json:"error,omitempty"`
	TokensIn  int           `json:"tokens_in,omitempty"`
	TokensOut int           `json:"tokens_out,omitempty"`
}

// MarshalJSON renders Latency as whole milliseconds.
func (m RequestMetric) MarshalJSON() ([]byte, error) {
	type Alias RequestMetric
	return json.Marshal(&struct {
		Alias
		LatencyMs int64 `json:"latency_ms"`
	}{
		Alias:     Alias(m),
		LatencyMs: m.Latency.Milliseconds(),
	})
}

// FromUsage builds a successful RequestMetric from a measured call
// duration and the Usage a provider adapter reported on its
// ResponseDone event.
func FromUsage(provider, model string, latency time.Duration, usage events.Usage) RequestMetric {
	return RequestMetric{
		Timestamp: time.Now(),
		Provider:  provider,
		Model:     model,
		Latency:   latency,
		Status:    "ok",
		TokensIn:  usage.InputTokens,
		TokensOut: usage.OutputTokens,
	}
}

// FromError builds a failed RequestMetric.
func FromError(provider, model string, latency time.Duration, err error) RequestMetric {
	return RequestMetric{
		Timestamp: time.Now(),
		Provider:  provider,
		Model:     model,
		Latency:   latency,
		Status:    "error",
		Error:     err.Error(),
	}
}

// ProviderStats holds aggregated stats for one provider.
type ProviderStats struct {
	Provider    string  `json:"provider"`
	Requests    int64   `json:"requests"`
	Errors      int64   `json:"errors"`
	LatencyP50  int64   `json:"latency_p50_ms"`
	LatencyP95  int64   `json:"latency_p95_ms"`
	LatencyP99  int64   `json:"latency_p99_ms"`
	TotalTokens int64   `json:"total_tokens"`
	ErrorRate   float64 `json:"error_rate"`
}

// maxLatencySamples caps the per-provider latency sample window used for
// percentile estimation, matching the teacher's fixed window.
const maxLatencySamples = 1000

// Collector collects and aggregates metrics across providers.
type Collector struct {
	mu          sync.RWMutex
	enabled     bool
	logRequests bool
	file        *os.File

	latencies   map[string][]int64 // per-provider latency samples, capped
	requests    map[string]int64
	errors      map[string]int64
	totalTokens map[string]int64
}

// Config configures the metrics collector.
type Config struct {
	Enabled     bool
	Path        string // persist every request as JSONL when LogRequests is set
	LogRequests bool
}

// NewCollector builds a Collector. When cfg.Path and cfg.Enabled are
// both set, it opens (creating if needed) an append-only JSONL file for
// per-request logging.
func NewCollector(cfg Config) (*Collector, error) {
	c := &Collector{
		enabled:     cfg.Enabled,
		logRequests: cfg.LogRequests,
		latencies:   make(map[string][]int64),
		requests:    make(map[string]int64),
		errors:      make(map[string]int64),
		totalTokens: make(map[string]int64),
	}

	if cfg.Path != "" && cfg.Enabled {
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		c.file = f
	}

	return c, nil
}

// Record folds one request's metric into the running aggregates, and
// appends it to the JSONL log if configured. A no-op when the collector
// is disabled.
func (c *Collector) Record(m RequestMetric) {
	if !c.enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests[m.Provider]++
	if m.Status == "error" {
		c.errors[m.Provider]++
	}
	c.totalTokens[m.Provider] += int64(m.TokensIn + m.TokensOut)

	latencyMs := m.Latency.Milliseconds()
	samples := c.latencies[m.Provider]
	if len(samples) >= maxLatencySamples {
		samples = samples[1:]
	}
	c.latencies[m.Provider] = append(samples, latencyMs)

	if c.file != nil && c.logRequests {
		data, err := json.Marshal(m)
		if err == nil {
			c.file.Write(append(data, '\n'))
		}
	}
}

// Stats returns aggregated stats for every provider seen so far.
func (c *Collector) Stats() map[string]*ProviderStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]*ProviderStats, len(c.requests))
	for provider := range c.requests {
		stats := &ProviderStats{
			Provider:    provider,
			Requests:    c.requests[provider],
			Errors:      c.errors[provider],
			TotalTokens: c.totalTokens[provider],
		}
		if stats.Requests > 0 {
			stats.ErrorRate = float64(stats.Errors) / float64(stats.Requests)
		}
		if samples := c.latencies[provider]; len(samples) > 0 {
			sorted := make([]int64, len(samples))
			copy(sorted, samples)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
			stats.LatencyP50 = percentile(sorted, 50)
			stats.LatencyP95 = percentile(sorted, 95)
			stats.LatencyP99 = percentile(sorted, 99)
		}
		result[provider] = stats
	}
	return result
}

// StatsForProvider returns stats for one provider, or a zero-valued
// ProviderStats if it has never recorded a request.
func (c *Collector) StatsForProvider(provider string) *ProviderStats {
	if s, ok := c.Stats()[provider]; ok {
		return s
	}
	return &ProviderStats{Provider: provider}
}

// Reset clears all collected metrics (not the log file's prior contents).
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latencies = make(map[string][]int64)
	c.requests = make(map[string]int64)
	c.errors = make(map[string]int64)
	c.totalTokens = make(map[string]int64)
}

// Close closes the metrics log file, if one is open.
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}

func percentile(sorted []int64, p int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (len(sorted) * p) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
