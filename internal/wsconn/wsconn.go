// Package wsconn provides a WebSocket client with automatic
// reconnection and exponential backoff.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Config holds WebSocket client configuration.
type Config struct {
	URL            string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxReconnects  int // 0 = infinite
	PingInterval   time.Duration
	PongTimeout    time.Duration

	// OnConnect runs after every successful (re)connect, before reads
	// resume. Subscription replay goes here.
	OnConnect func(ctx context.Context) error
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		MaxReconnects:  0, // infinite
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
	}
}

// Client is a WebSocket client that keeps itself connected. Incoming
// messages are delivered on Messages; the reader blocks when the
// channel fills, so consumers must keep draining.
type Client struct {
	config Config

	state   State
	stateMu sync.RWMutex

	conn   *websocket.Conn
	connMu sync.RWMutex

	messages  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a new WebSocket client.
func New(config Config) *Client {
	return &Client{
		config:   config,
		state:    StateDisconnected,
		messages: make(chan []byte, 100),
		done:     make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read and
// ping loops. It returns an error only for the initial dial; later
// drops are handled by the reconnect loop.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	if err := c.dial(ctx); err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("wsconn: dial %s: %w", c.config.URL, err)
	}
	c.setState(StateConnected)

	go c.readLoop(ctx)
	go c.pingLoop(ctx)
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.config.URL, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(1 << 20)

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	if c.config.OnConnect != nil {
		if err := c.config.OnConnect(ctx); err != nil {
			conn.Close(websocket.StatusInternalError, "on-connect hook failed")
			return err
		}
	}
	return nil
}

// Send sends a text message through the WebSocket.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return errors.New("wsconn: not connected")
	}
	return conn.Write(ctx, websocket.MessageText, msg)
}

// Messages returns the channel for receiving messages. It is closed
// when the client shuts down for good.
func (c *Client) Messages() <-chan []byte {
	return c.messages
}

// State returns the current connection state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Close gracefully closes the WebSocket connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	c.setState(StateDisconnected)
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "shutdown")
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	defer close(c.messages)

	for {
		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()
		if conn == nil {
			return
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			if c.stopping(ctx) {
				return
			}
			if !c.reconnect(ctx) {
				c.setState(StateDisconnected)
				return
			}
			continue
		}

		select {
		case c.messages <- data:
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// reconnect dials with exponential backoff until it succeeds or the
// reconnect budget runs out. Returns false when the client should stop.
func (c *Client) reconnect(ctx context.Context) bool {
	c.setState(StateReconnecting)

	backoff := c.config.InitialBackoff
	for attempt := 1; c.config.MaxReconnects == 0 || attempt <= c.config.MaxReconnects; attempt++ {
		select {
		case <-time.After(backoff):
		case <-c.done:
			return false
		case <-ctx.Done():
			return false
		}

		if err := c.dial(ctx); err == nil {
			c.setState(StateConnected)
			return true
		}

		backoff *= 2
		if backoff > c.config.MaxBackoff {
			backoff = c.config.MaxBackoff
		}
	}
	return false
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()
			if conn == nil {
				return
			}

			pingCtx, cancel := context.WithTimeout(ctx, c.config.PongTimeout)
			// Read loop notices a dead connection on its next Read;
			// the ping just keeps intermediaries from idling us out.
			_ = conn.Ping(pingCtx)
			cancel()
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) stopping(ctx context.Context) bool {
	select {
	case <-c.done:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (c *Client) setState(state State) {
	c.stateMu.Lock()
	c.state = state
	c.stateMu.Unlock()
}
