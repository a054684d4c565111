package rpc_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/canopy-network/nimiqx/pkg/rpc"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestRPCClient(handler http.Handler) *rpc.HTTPClient {
	return newTestRPCClientWithOpts(handler, rpc.Opts{})
}

func newTestRPCClientWithOpts(handler http.Handler, opts rpc.Opts) *rpc.HTTPClient {
	httpClient := &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			resp := rec.Result()
			if resp.Body == nil {
				resp.Body = http.NoBody
			}
			return resp, nil
		}),
		Timeout: 5 * time.Second,
	}

	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if len(opts.Endpoints) == 0 {
		opts.Endpoints = []string{"http://mock"}
	}
	opts.HTTPClient = httpClient

	return rpc.NewHTTPWithOpts(opts)
}

type wireRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      uint64            `json:"id"`
}

// rpcMethod answers one method; a non-nil *rpc.Error becomes the error envelope.
type rpcMethod func(params []json.RawMessage) (any, *rpc.Error)

// jsonRPCServer dispatches JSON-RPC requests by method and records what it saw.
type jsonRPCServer struct {
	mu       sync.Mutex
	methods  map[string]rpcMethod
	calls    []wireRequest
	lastAuth string
}

func newJSONRPCServer(methods map[string]rpcMethod) *jsonRPCServer {
	return &jsonRPCServer{methods: methods}
}

func (s *jsonRPCServer) answer(req wireRequest) map[string]any {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	fn := s.methods[req.Method]
	s.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if fn == nil {
		resp["error"] = map[string]any{"code": -32601, "message": "Method not found"}
		return resp
	}
	result, rpcErr := fn(req.Params)
	if rpcErr != nil {
		resp["error"] = rpcErr
		return resp
	}
	resp["result"] = result
	return resp
}

func (s *jsonRPCServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req wireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.lastAuth = r.Header.Get("Authorization")
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.answer(req))
}

func (s *jsonRPCServer) methodsCalled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.Method)
	}
	return out
}

// albatrossData wraps v the way proof-of-stake nodes do.
func albatrossData(v any) any {
	return map[string]any{"data": v, "metadata": nil}
}

func param[T any](params []json.RawMessage, i int) T {
	var v T
	if i < len(params) {
		_ = json.Unmarshal(params[i], &v)
	}
	return v
}
