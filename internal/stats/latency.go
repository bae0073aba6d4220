// Package stats summarises the latency of RPC calls made during a scan.
//
// A full-state scan issues one state_getKeysPaged and one
// state_queryStorageAt call per page, so run time is dominated by those two
// methods. The summary is computed per method from the recorded results.
package stats

import (
	"slices"
	"time"

	"github.com/dmagro/sherpax-supply/internal/rpc"
)

// Latency summarises the successful calls of one method.
type Latency struct {
	Samples int
	Avg     time.Duration
	P50     time.Duration
	P95     time.Duration
	Max     time.Duration
}

// Summarize computes the latency of the successful calls in results.
// Failed calls are skipped: a timeout's latency is the deadline, not the
// node's response time. results is not modified.
func Summarize(results []rpc.CallResult) Latency {
	durations := make([]time.Duration, 0, len(results))
	var total time.Duration
	for _, r := range results {
		if !r.Success {
			continue
		}
		durations = append(durations, r.Latency)
		total += r.Latency
	}
	if len(durations) == 0 {
		return Latency{}
	}

	slices.Sort(durations)
	return Latency{
		Samples: len(durations),
		Avg:     total / time.Duration(len(durations)),
		P50:     NearestRank(durations, 50),
		P95:     NearestRank(durations, 95),
		Max:     durations[len(durations)-1],
	}
}

// NearestRank returns the smallest sample that at least pct percent of the
// samples do not exceed.
//
// Parameters:
//   - sorted: ascending samples
//   - pct: percentile in 0..100
//
// Returns zero for an empty slice. With fewer than 20 samples P95 is the
// maximum.
//
// Examples:
//   - [10ms 20ms 30ms 40ms], 50 -> 20ms
//   - [10ms 20ms 30ms 40ms], 95 -> 40ms
func NearestRank(sorted []time.Duration, pct int) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := (n*pct + 99) / 100
	switch {
	case rank < 1:
		rank = 1
	case rank > n:
		rank = n
	}
	return sorted[rank-1]
}
