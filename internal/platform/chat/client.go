package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrNotConnected = errors.New("chat: not connected")

// Frame types on the bridge connection.
const (
	TypeMessage = "message"
	TypeSay     = "say"
)

// Frame is one JSON text frame exchanged with the chat bridge. Inbound
// messages use Source, Nick, Channel and Text; outbound ones Target and Text.
type Frame struct {
	Type    string `json:"type"`
	Source  string `json:"source,omitempty"`
	Nick    string `json:"nick,omitempty"`
	Channel string `json:"channel,omitempty"`
	Target  string `json:"target,omitempty"`
	Text    string `json:"text"`
}

// Message is an inbound chat line.
type Message struct {
	Source  string
	Nick    string
	Channel string
	Text    string
}

// Handler is called for every inbound message, on the read goroutine.
type Handler func(ctx context.Context, m Message)

type Config struct {
	URL   string
	Token string
	// Nick is the bot's own nick; its messages are not handed to the Handler.
	Nick           string
	ReconnectDelay time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
}

// Client keeps a websocket connection to the chat bridge open and reconnects
// after failures.
type Client struct {
	cfg     Config
	handler Handler
	logger  *slog.Logger

	mu   sync.RWMutex
	conn *websocket.Conn

	writeMu sync.Mutex
}

func NewClient(cfg Config, handler Handler, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &Client{cfg: cfg, handler: handler, logger: logger}
}

// Run connects and serves until ctx is done. Lost connections are redialed
// after ReconnectDelay.
func (c *Client) Run(ctx context.Context) error {
	for {
		conn, err := c.dial(ctx)
		if err == nil {
			c.logger.Info("chat connected", "url", c.cfg.URL)
			err = c.serve(ctx, conn)
		}
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("chat connection lost", "err", err, "retry_in", c.cfg.ReconnectDelay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	return conn, nil
}

// serve owns conn until it fails or ctx is done.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	done := make(chan struct{})
	defer func() {
		close(done)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
	}()

	readWait := 2 * c.cfg.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	go func() {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				c.writeMu.Lock()
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				c.writeMu.Unlock()
				_ = conn.Close()
				return
			case <-ticker.C:
				c.writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
				c.writeMu.Unlock()
				if err != nil {
					c.logger.Debug("chat ping failed", "err", err)
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("chat: undecodable frame", "err", err)
			continue
		}
		if f.Type != TypeMessage || f.Text == "" {
			continue
		}
		if c.cfg.Nick != "" && f.Nick == c.cfg.Nick {
			continue
		}
		c.handle(ctx, Message{Source: f.Source, Nick: f.Nick, Channel: f.Channel, Text: f.Text})
	}
}

// handle runs the handler for one message. A panic is logged and the read
// loop goes on with the next frame.
func (c *Client) handle(ctx context.Context, m Message) {
	if c.handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("chat handler panicked", "source", m.Source, "nick", m.Nick, "panic", fmt.Sprint(r))
		}
	}()
	c.handler(ctx, m)
}

// Connected reports whether a bridge connection is currently open.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Send says text to target. It fails with ErrNotConnected between
// reconnects.
func (c *Client) Send(ctx context.Context, target, text string) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(Frame{Type: TypeSay, Target: target, Text: text}); err != nil {
		return fmt.Errorf("chat send: %w", err)
	}
	return nil
}
