// Package rpc implements a JSON-RPC 2.0 client for Substrate nodes over a
// persistent WebSocket connection.
//
// Substrate exposes its RPC surface (chain_*, state_*, system_*) on the same
// socket the node uses for subscriptions. Requests are multiplexed over that
// single connection and matched to responses by their numeric id. Every call
// produces a CallResult so the caller can keep per-method latency statistics.
package rpc

import (
	"encoding/json"
	"fmt"
	"time"
)

// Request represents a JSON-RPC 2.0 request sent to a Substrate node.
//
//	{"jsonrpc":"2.0","id":7,"method":"chain_getBlockHash","params":[1024]}
type Request struct {
	JSONRPC string        `json:"jsonrpc"` // Always "2.0"
	ID      uint64        `json:"id"`      // Unique per connection, used to route the response
	Method  string        `json:"method"`  // e.g. "state_getKeysPaged"
	Params  []interface{} `json:"params"`  // Positional arguments
}

// Response represents a JSON-RPC 2.0 response.
//
// Result stays raw because its shape depends on the method: a hex string for
// chain_getBlockHash, an object for chain_getHeader, an array of change sets
// for state_queryStorageAt. A JSON null result is meaningful for Substrate
// (unknown block, empty storage slot) and callers check for it with IsNull.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

// IsNull reports whether the result is absent or the JSON literal null.
func (r *Response) IsNull() bool {
	return len(r.Result) == 0 || string(r.Result) == "null"
}

// RPCError is the error object returned by the node.
//
// Substrate uses the standard codes (-32700 .. -32603) plus its own range for
// runtime and state errors (e.g. 4003 "Client error: UnknownBlock").
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("RPC error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// ErrorType categorizes a failed call for statistics.
type ErrorType string

const (
	ErrorTypeNone       ErrorType = ""
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeConnection ErrorType = "connection"
	ErrorTypeRPC        ErrorType = "rpc_error"
	ErrorTypeParseError ErrorType = "parse_error"
)

// CallResult describes the outcome of a single RPC call.
type CallResult struct {
	Method    string
	Latency   time.Duration
	Success   bool
	Error     error
	ErrorType ErrorType
	Response  *Response
}

// Recorder receives a CallResult after every call. Implementations must be
// safe for concurrent use.
type Recorder interface {
	Record(result CallResult)
}

// Header is the subset of a Substrate block header this tool reads.
type Header struct {
	ParentHash     string `json:"parentHash"`
	Number         string `json:"number"` // hex-encoded block number
	StateRoot      string `json:"stateRoot"`
	ExtrinsicsRoot string `json:"extrinsicsRoot"`
}

// StorageChangeSet is one element of the state_queryStorageAt result.
// Changes holds [key, value] pairs where value may be null.
type StorageChangeSet struct {
	Block   string       `json:"block"`
	Changes [][2]*string `json:"changes"`
}

// ChainProperties is the decoded system_properties result. Chains report
// scalar or array values for symbol and decimals; both forms are accepted.
type ChainProperties struct {
	SS58Format    *uint16
	TokenSymbol   string
	TokenDecimals *uint8
}
