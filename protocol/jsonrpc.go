// Package protocol defines the MCP wire shapes the orchestration core owns:
// the JSON-RPC 2.0 envelope used for sampling and elicitation round-trips,
// the tagged content-block union, and the sampling/elicitation payloads.
//
// These types exist so that loosely-typed JSON from external servers is
// parsed once, at the boundary, into closed Go types. Unknown content-block
// variants are dropped explicitly rather than propagated inward as raw maps.
package protocol

import "encoding/json"

// Version is the JSON-RPC protocol version MCP requires.
const Version = "2.0"

// Request is an inbound JSON-RPC request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is an outbound JSON-RPC response envelope. Exactly one of Result
// or Error is set.
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// NewResponse builds a success response for id.
func NewResponse(id, result any) Response {
	return Response{JSONRPC: Version, ID: id, Result: result}
}

// NewErrorResponse builds an error response for id.
func NewErrorResponse(id any, code int, message string) Response {
	return Response{
		JSONRPC: Version,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}
