// Package signal is the WebSocket client to the call signaling server.
package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrNotConnected = errors.New("signal not connected")
	ErrConnClosed   = errors.New("connection closed")
)

type Options struct {
	URL            string
	Token          string
	PingPeriod     time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
	SendBuffer     int
	ReconnectDelay time.Duration
}

func (o *Options) withDefaults() {
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = time.Second
	}
}

// WsSignalConn is one live socket with its outbound queue.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, buffer), done: make(chan struct{})}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// Client keeps one socket to the signaling server open, redialing after
// drops. Its connection id is generated once and sent as the sid query
// parameter, so it stays stable across reconnects.
type Client struct {
	opts Options
	sid  string

	mu      sync.RWMutex
	conn    *WsSignalConn
	onFrame func(core.Frame)
	cancel  context.CancelFunc
}

func NewClient(opts Options) *Client {
	opts.withDefaults()
	return &Client{opts: opts, sid: uuid.NewString()}
}

func (c *Client) LocalAddress() string { return c.sid }

func (c *Client) OnFrame(fn func(core.Frame)) {
	c.mu.Lock()
	c.onFrame = fn
	c.mu.Unlock()
}

func (c *Client) TrySend(f core.Frame) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.TrySend(f)
}

// Connect dials once and then keeps the connection alive until ctx ends or
// Close is called.
func (c *Client) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	conn, err := c.dial(ctx)
	if err != nil {
		cancel()
		return err
	}
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	c.start(ctx, conn)
	go c.supervise(ctx, conn)
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	cancel, conn := c.cancel, c.conn
	c.conn = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
}

func (c *Client) dial(ctx context.Context) (*WsSignalConn, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("signal url: %w", err)
	}
	q := u.Query()
	q.Set("sid", c.sid)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("signal dial: %w", err)
	}
	ws.SetReadLimit(c.opts.ReadLimit)
	log.Info().Str("module", "adapters.signal").Str("sid", c.sid).Str("url", u.Host).Msg("signal connected")
	return newConn(ws, c.opts.SendBuffer), nil
}

func (c *Client) start(ctx context.Context, conn *WsSignalConn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	go c.writePump(ctx, conn)
	go c.readPump(ctx, conn)
}

// supervise redials whenever the current connection drops.
func (c *Client) supervise(ctx context.Context, conn *WsSignalConn) {
	delay := c.opts.ReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.done:
		}
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			next, err := c.dial(ctx)
			if err != nil {
				log.Warn().Str("module", "adapters.signal").Err(err).Dur("retry_in", delay).Msg("signal redial failed")
				delay = min(delay*2, 30*time.Second)
				continue
			}
			delay = c.opts.ReconnectDelay
			conn = next
			c.start(ctx, conn)
			break
		}
	}
}
