package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/canopy-network/nimiqx/pkg/retry"
)

var ErrNotConnected = errors.New("notify: websocket not connected")

const writeTimeout = 5 * time.Second

// heightMessage is what the subscriber expects on connect and after every tip advance.
type heightMessage struct {
	Password string `json:"password"`
	Height   uint64 `json:"height"`
}

// WebSocketNotifier keeps one outbound connection open. Run dials and re-dials; each new
// connection is greeted with the last known height.
type WebSocketNotifier struct {
	url      string
	password string
	dialer   *websocket.Dialer
	retry    retry.Config
	logger   *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	height uint64
	closed bool
}

func NewWebSocketNotifier(url, password string, logger *zap.Logger) *WebSocketNotifier {
	return &WebSocketNotifier{
		url:      url,
		password: password,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		retry:    retry.ReconnectConfig(),
		logger:   logger.With(zap.String("component", "notify_ws")),
	}
}

func (w *WebSocketNotifier) Name() string { return "websocket" }

// SetHeight records the height sent on the next (re)connect without sending anything. The
// app seeds it with the stored tip so the first greeting is not zero.
func (w *WebSocketNotifier) SetHeight(height uint64) {
	w.mu.Lock()
	w.height = height
	w.mu.Unlock()
}

// Connected reports whether a connection is currently open.
func (w *WebSocketNotifier) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn != nil
}

// Run keeps the connection alive until ctx ends or Close is called.
func (w *WebSocketNotifier) Run(ctx context.Context) error {
	for {
		var conn *websocket.Conn
		err := retry.WithBackoff(ctx, w.retry, w.logger, "websocket dial", func() error {
			c, resp, err := w.dialer.DialContext(ctx, w.url, nil)
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
			if err != nil {
				return err
			}
			conn = c
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if !w.attach(conn) {
			_ = conn.Close()
			return nil
		}
		w.logger.Info("Websocket opened", zap.String("url", w.url))

		w.waitClosed(ctx, conn)
		w.detach(conn)
		w.logger.Info("Websocket closed", zap.String("url", w.url))

		if ctx.Err() != nil || w.isClosed() {
			return nil
		}
	}
}

func (w *WebSocketNotifier) attach(conn *websocket.Conn) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.conn = conn
	if err := w.writeLocked(w.height); err != nil {
		w.logger.Warn("Failed to greet websocket subscriber", zap.Error(err))
	}
	return true
}

func (w *WebSocketNotifier) detach(conn *websocket.Conn) {
	w.mu.Lock()
	if w.conn == conn {
		w.conn = nil
	}
	w.mu.Unlock()
	_ = conn.Close()
}

func (w *WebSocketNotifier) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// waitClosed drains inbound frames until the peer goes away or ctx ends.
func (w *WebSocketNotifier) waitClosed(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	select {
	case <-done:
	case <-ctx.Done():
		_ = conn.Close()
		<-done
	}
}

func (w *WebSocketNotifier) NotifyHeight(_ context.Context, height uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.height = height
	if w.conn == nil {
		return ErrNotConnected
	}
	return w.writeLocked(height)
}

func (w *WebSocketNotifier) writeLocked(height uint64) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := w.conn.WriteJSON(heightMessage{Password: w.password, Height: height}); err != nil {
		return fmt.Errorf("write height: %w", err)
	}
	return nil
}

func (w *WebSocketNotifier) Close() error {
	w.mu.Lock()
	w.closed = true
	conn := w.conn
	w.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}
