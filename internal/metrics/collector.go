// Package metrics collects per-method RPC call statistics for the terminal
// summary and the archived report.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/dmagro/sherpax-supply/internal/rpc"
	"github.com/dmagro/sherpax-supply/internal/stats"
)

// MethodMetrics holds calculated metrics for one RPC method.
type MethodMetrics struct {
	Method      string
	TotalCalls  int
	Failures    int
	SuccessRate float64

	LatencyAvg time.Duration
	LatencyP50 time.Duration
	LatencyP95 time.Duration
	LatencyMax time.Duration

	// Error breakdown
	Timeouts    int
	Connection  int
	RPCErrors   int
	ParseErrors int
}

// Collector aggregates call results per method. It implements rpc.Recorder.
type Collector struct {
	mu      sync.Mutex
	results map[string][]rpc.CallResult // method -> results
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		results: make(map[string][]rpc.CallResult),
	}
}

// Record stores a call result. Responses are dropped to keep memory flat
// over a full-state scan.
func (c *Collector) Record(result rpc.CallResult) {
	result.Response = nil

	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[result.Method] = append(c.results[result.Method], result)
}

// Calculate computes metrics for every method seen, sorted by method name.
func (c *Collector) Calculate() []*MethodMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*MethodMetrics, 0, len(c.results))
	for method, samples := range c.results {
		out = append(out, calculateMethodMetrics(method, samples))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out
}

func calculateMethodMetrics(method string, samples []rpc.CallResult) *MethodMetrics {
	m := &MethodMetrics{Method: method, TotalCalls: len(samples)}

	for _, s := range samples {
		if s.Success {
			continue
		}
		m.Failures++
		switch s.ErrorType {
		case rpc.ErrorTypeTimeout:
			m.Timeouts++
		case rpc.ErrorTypeRPC:
			m.RPCErrors++
		case rpc.ErrorTypeParseError:
			m.ParseErrors++
		default:
			m.Connection++
		}
	}

	if m.TotalCalls > 0 {
		m.SuccessRate = float64(m.TotalCalls-m.Failures) / float64(m.TotalCalls) * 100
	}

	lat := stats.Summarize(samples)
	m.LatencyAvg = lat.Avg
	m.LatencyP50 = lat.P50
	m.LatencyP95 = lat.P95
	m.LatencyMax = lat.Max
	return m
}
