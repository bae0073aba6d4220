package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmagro/sherpax-supply/internal/rpc"
)

func TestCollectorCalculate(t *testing.T) {
	c := NewCollector()

	for i := 1; i <= 4; i++ {
		c.Record(rpc.CallResult{
			Method:   "state_getKeysPaged",
			Latency:  time.Duration(i) * 10 * time.Millisecond,
			Success:  true,
			Response: &rpc.Response{ID: uint64(i)},
		})
	}
	c.Record(rpc.CallResult{Method: "state_getKeysPaged", Success: false, ErrorType: rpc.ErrorTypeTimeout})
	c.Record(rpc.CallResult{Method: "chain_getHeader", Success: false, ErrorType: rpc.ErrorTypeRPC})
	c.Record(rpc.CallResult{Method: "chain_getHeader", Success: false, ErrorType: rpc.ErrorTypeConnection})

	got := c.Calculate()
	require.Len(t, got, 2)

	header, paged := got[0], got[1]
	assert.Equal(t, "chain_getHeader", header.Method)
	assert.Equal(t, 2, header.Failures)
	assert.Equal(t, 1, header.RPCErrors)
	assert.Equal(t, 1, header.Connection)
	assert.Equal(t, float64(0), header.SuccessRate)
	assert.Zero(t, header.LatencyAvg)

	assert.Equal(t, "state_getKeysPaged", paged.Method)
	assert.Equal(t, 5, paged.TotalCalls)
	assert.Equal(t, 1, paged.Failures)
	assert.Equal(t, 1, paged.Timeouts)
	assert.InDelta(t, 80.0, paged.SuccessRate, 0.001)
	assert.Equal(t, 25*time.Millisecond, paged.LatencyAvg)
	assert.Equal(t, 20*time.Millisecond, paged.LatencyP50)
	assert.Equal(t, 40*time.Millisecond, paged.LatencyP95)
	assert.Equal(t, 40*time.Millisecond, paged.LatencyMax)
}

func TestCollectorDropsResponses(t *testing.T) {
	c := NewCollector()
	c.Record(rpc.CallResult{Method: "m", Success: true, Response: &rpc.Response{ID: 1}})

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Nil(t, c.results["m"][0].Response)
}

func TestClassifiedErrorsCount(t *testing.T) {
	c := NewCollector()
	errs := []error{
		fmt.Errorf("%w: %w", rpc.ErrTransport, context.DeadlineExceeded),
		&rpc.RPCError{Code: -32601, Message: "Method not found"},
		&rpc.ParseError{Method: "m", Err: errors.New("bad")},
		rpc.ErrClosed,
	}
	for _, err := range errs {
		c.Record(rpc.CallResult{Method: "m", Error: err, ErrorType: rpc.Classify(err)})
	}

	m := c.Calculate()[0]
	assert.Equal(t, 1, m.Timeouts)
	assert.Equal(t, 1, m.RPCErrors)
	assert.Equal(t, 1, m.ParseErrors)
	assert.Equal(t, 1, m.Connection)
}
