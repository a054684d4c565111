package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/canopy-network/nimiqx/pkg/utils"
)

var errNoEndpoints = errors.New("no endpoints configured")

// HTTPClient is a JSON-RPC caller over HTTP POST. Requests share one rate limiter and
// fail over between endpoints; an endpoint that keeps failing is skipped for a cooldown.
type HTTPClient struct {
	endpoints []*endpoint
	client    *http.Client
	limiter   *rate.Limiter
	username  string
	password  string
	nextID    atomic.Uint64
}

// Opts is the set of options for a new HTTPClient.
type Opts struct {
	Endpoints []string
	Username  string
	Password  string
	Timeout   time.Duration
	// RPS <= 0 disables rate limiting.
	RPS             int
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
}

func NewHTTPWithOpts(o Opts) *HTTPClient {
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.BreakerFailures <= 0 {
		o.BreakerFailures = 3
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 5 * time.Second
	}

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	} else if client.Timeout == 0 {
		client.Timeout = o.Timeout
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if o.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(o.RPS), max(o.Burst, 1))
	}

	c := &HTTPClient{client: client, limiter: limiter, username: o.Username, password: o.Password}
	for _, url := range utils.Dedup(o.Endpoints) {
		c.endpoints = append(c.endpoints, &endpoint{url: url, threshold: o.BreakerFailures, cooldown: o.BreakerCooldown})
	}
	return c
}

// Call implements Caller.
func (c *HTTPClient) Call(ctx context.Context, method string, params []any, out any) error {
	id := c.nextID.Add(1)
	var resp Response
	if err := c.post(ctx, newRequest(id, method, params), &resp); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if err := decodeResult(&resp, id, out); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// post sends payload to the first available endpoint and decodes the reply into out.
// Transport errors and 5xx answers count against the endpoint and fail over to the next.
func (c *HTTPClient) post(ctx context.Context, payload any, out any) error {
	if len(c.endpoints) == 0 {
		return errNoEndpoints
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	lastErr := errors.New("all endpoints unavailable")
	for _, ep := range c.endpoints {
		if !ep.available() {
			continue
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		retryable, err := c.send(ctx, ep.url, body, out)
		if err == nil {
			ep.succeeded()
			return nil
		}
		lastErr = err
		if retryable {
			ep.failed()
		}
	}
	return lastErr
}

// send does one round trip. retryable reports failures that should trip the breaker.
func (c *HTTPClient) send(ctx context.Context, url string, body []byte, out any) (retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return true, err
	}
	defer func() { _ = utils.DrainAndClose(resp.Body) }()

	switch {
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("server %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		return false, fmt.Errorf("http %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return false, nil
}

// endpoint carries the breaker state of one URL.
type endpoint struct {
	url       string
	threshold int
	cooldown  time.Duration

	mu        sync.Mutex
	failures  int
	openUntil time.Time
}

func (e *endpoint) available() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.openUntil.IsZero() {
		return true
	}
	if time.Now().Before(e.openUntil) {
		return false
	}
	e.openUntil = time.Time{}
	e.failures = 0
	return true
}

func (e *endpoint) failed() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures++
	if e.failures >= e.threshold {
		e.openUntil = time.Now().Add(e.cooldown)
	}
}

func (e *endpoint) succeeded() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = 0
}
