package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

type callResult struct {
	resp *Response
	err  error
}

// WSClient multiplexes JSON-RPC calls over one persistent websocket, correlating
// answers by request id. A lost connection fails every pending call and the next
// call dials again.
type WSClient struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	logger *zap.Logger

	nextID  atomic.Uint64
	pending *xsync.Map[uint64, chan callResult]

	mu      sync.Mutex // guards conn
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  bool
}

// WSOpts configures a WSClient.
type WSOpts struct {
	URL              string
	Username         string
	Password         string
	HandshakeTimeout time.Duration
}

func NewWSClient(o WSOpts, logger *zap.Logger) *WSClient {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	header := http.Header{}
	if o.Username != "" || o.Password != "" {
		token := base64.StdEncoding.EncodeToString([]byte(o.Username + ":" + o.Password))
		header.Set("Authorization", "Basic "+token)
	}
	return &WSClient{
		url:     o.URL,
		header:  header,
		dialer:  &websocket.Dialer{HandshakeTimeout: o.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		logger:  logger.With(zap.String("component", "rpc_ws")),
		pending: xsync.NewMap[uint64, chan callResult](),
	}
}

// Call implements Caller.
func (c *WSClient) Call(ctx context.Context, method string, params []any, out any) error {
	conn, err := c.connection(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	id := c.nextID.Add(1)
	ch := make(chan callResult, 1)
	c.pending.Store(id, ch)
	defer c.pending.Delete(id)

	c.writeMu.Lock()
	err = conn.WriteJSON(newRequest(id, method, params))
	c.writeMu.Unlock()
	if err != nil {
		c.fail(conn, err)
		return fmt.Errorf("%s: write: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("%s: %w", method, res.err)
		}
		if err := decodeResult(res.resp, id, out); err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}
		return nil
	}
}

// Close tears down the socket; pending calls fail with ErrConnectionClosed.
func (c *WSClient) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		c.fail(conn, ErrConnectionClosed)
	}
	return nil
}

func (c *WSClient) connection(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrConnectionClosed
	}
	if c.conn != nil {
		return c.conn, nil
	}

	c.logger.Info("Opening websocket connection", zap.String("url", c.url))
	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}
	c.conn = conn
	go c.readLoop(conn)
	return conn, nil
}

func (c *WSClient) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.fail(conn, err)
			return
		}

		var resp Response
		if err := json.Unmarshal(msg, &resp); err != nil {
			c.logger.Error("Invalid websocket response", zap.ByteString("msg", msg), zap.Error(err))
			continue
		}
		ch, ok := c.pending.LoadAndDelete(resp.ID)
		if !ok {
			c.logger.Warn("No pending call for websocket response", zap.Uint64("id", resp.ID))
			continue
		}
		ch <- callResult{resp: &resp}
	}
}

// fail drops conn if it is still current and fails all pending calls.
func (c *WSClient) fail(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	c.mu.Unlock()
	if !current {
		return
	}

	_ = conn.Close()
	c.logger.Warn("Websocket connection closed", zap.Error(cause))
	c.pending.Range(func(id uint64, ch chan callResult) bool {
		if _, ok := c.pending.LoadAndDelete(id); ok {
			ch <- callResult{err: fmt.Errorf("%w: %v", ErrConnectionClosed, cause)}
		}
		return true
	})
}
