package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const jsonRPCVersion = "2.0"

var (
	// ErrConnectionClosed is delivered to every call pending on a socket that went away.
	ErrConnectionClosed = errors.New("rpc: connection closed")
	// ErrIDMismatch means the node answered a different request than the one sent.
	ErrIDMismatch = errors.New("rpc: response id does not match request id")
)

// Request is a JSON-RPC 2.0 request frame.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
}

// Response is a JSON-RPC 2.0 response frame. Exactly one of Result or Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Data) > 0 && string(e.Data) != "null" && string(e.Data) != `""` {
		return fmt.Sprintf("rpc error %d: %s - %s", e.Code, e.Message, strings.Trim(string(e.Data), `"`))
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a node-side "not found" answer, which callers treat as absence.
func IsNotFound(err error) bool {
	var rpcErr *Error
	if !errors.As(err, &rpcErr) {
		return false
	}
	msg := strings.ToLower(rpcErr.Message + " " + string(rpcErr.Data))
	return strings.Contains(msg, "not found")
}

// Caller performs one JSON-RPC call and decodes the raw result into out.
// A nil out discards the result.
type Caller interface {
	Call(ctx context.Context, method string, params []any, out any) error
	Close() error
}

func newRequest(id uint64, method string, params []any) Request {
	if params == nil {
		params = []any{}
	}
	return Request{JSONRPC: jsonRPCVersion, Method: method, Params: params, ID: id}
}

// decodeResult applies the {result|error} discrimination shared by both transports.
func decodeResult(resp *Response, wantID uint64, out any) error {
	if resp.Error != nil {
		return resp.Error
	}
	if resp.ID != wantID {
		return fmt.Errorf("%w: sent %d, got %d", ErrIDMismatch, wantID, resp.ID)
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
