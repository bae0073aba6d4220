package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/inconshreveable/log15"
	"go.uber.org/atomic"
)

// ErrTransport marks failures of the underlying connection: dial errors,
// broken sockets, and calls that did not complete before their deadline.
var ErrTransport = errors.New("rpc transport failure")

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("rpc client closed")

// ClientConfig configures Dial.
type ClientConfig struct {
	URL      string        // ws:// or wss:// endpoint
	Timeout  time.Duration // handshake timeout and per-call deadline (0 = none)
	Recorder Recorder      // optional, receives one CallResult per call
	Logger   log15.Logger  // optional
}

// Client is a JSON-RPC client multiplexed over one WebSocket connection.
// It is safe for concurrent use; responses are routed by request id.
type Client struct {
	url      string
	timeout  time.Duration
	recorder Recorder
	log      log15.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]chan *Response
	readErr error

	nextID atomic.Uint64
	closed atomic.Bool
	done   chan struct{}
}

// Dial opens the WebSocket connection and starts the read loop.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log15.New("module", "rpc")
		logger.SetHandler(log15.DiscardHandler())
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.Timeout}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, cfg.URL, err)
	}

	c := &Client{
		url:      cfg.URL,
		timeout:  cfg.Timeout,
		recorder: cfg.Recorder,
		log:      logger,
		conn:     conn,
		pending:  make(map[uint64]chan *Response),
		done:     make(chan struct{}),
	}
	go c.readLoop()

	logger.Debug("connected", "url", cfg.URL)
	return c, nil
}

// URL returns the endpoint the client is connected to.
func (c *Client) URL() string { return c.url }

// Close shuts the connection down. Pending calls fail with ErrClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done
	return err
}

// Call executes a JSON-RPC method and returns the raw response.
// A response carrying an error object is returned together with that error.
func (c *Client) Call(ctx context.Context, method string, params ...interface{}) (*Response, error) {
	start := time.Now()
	resp, err := c.roundTrip(ctx, method, params)
	c.record(method, start, resp, err)
	return resp, err
}

// CallFor executes method and decodes its result into out. A null result
// leaves pointer targets nil, which is how callers detect absent blocks and
// empty storage slots.
func (c *Client) CallFor(ctx context.Context, out interface{}, method string, params ...interface{}) error {
	start := time.Now()
	resp, err := c.roundTrip(ctx, method, params)
	if err == nil && out != nil && len(resp.Result) > 0 {
		if uerr := json.Unmarshal(resp.Result, out); uerr != nil {
			err = &ParseError{Method: method, Err: uerr}
		}
	}
	c.record(method, start, resp, err)
	return err
}

func (c *Client) roundTrip(ctx context.Context, method string, params []interface{}) (*Response, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if params == nil {
		params = []interface{}{}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	id := c.nextID.Inc()
	body, err := json.Marshal(Request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}

	ch := make(chan *Response, 1)
	c.mu.Lock()
	if c.readErr != nil {
		err := c.readErr
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, method, err)
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	} else {
		_ = c.conn.SetWriteDeadline(time.Time{})
	}
	err = c.conn.WriteMessage(websocket.TextMessage, body)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: write %s: %w", ErrTransport, method, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp, resp.Error
		}
		return resp, nil
	case <-c.done:
		if c.closed.Load() {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, method, c.err())
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, method, ctx.Err())
	}
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			if !c.closed.Load() {
				c.log.Warn("connection lost", "url", c.url, "err", err)
			}
			return
		}

		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			c.log.Warn("discarding malformed message", "err", err)
			continue
		}
		// Subscription notifications carry no id.
		if resp.ID == 0 {
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		c.mu.Unlock()
		if ok {
			ch <- &resp
		}
	}
}

func (c *Client) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr == nil {
		return errors.New("connection closed")
	}
	return c.readErr
}

func (c *Client) record(method string, start time.Time, resp *Response, err error) {
	if c.recorder == nil {
		return
	}
	c.recorder.Record(CallResult{
		Method:    method,
		Latency:   time.Since(start),
		Success:   err == nil,
		Error:     err,
		ErrorType: Classify(err),
		Response:  resp,
	})
}

// ParseError reports a result that did not match the expected shape.
type ParseError struct {
	Method string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s result: %v", e.Method, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Classify maps an error returned by Call or CallFor to an ErrorType.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeNone
	}
	var rpcErr *RPCError
	var parseErr *ParseError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.As(err, &rpcErr):
		return ErrorTypeRPC
	case errors.As(err, &parseErr):
		return ErrorTypeParseError
	default:
		return ErrorTypeConnection
	}
}
