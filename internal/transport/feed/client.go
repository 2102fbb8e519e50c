package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"voxelmap.ai/internal/protocol"
)

// Handler receives each decoded feed message on the client's read
// goroutine. It must not block for long.
type Handler func(msg any)

// Client is one minimap's connection to a feed.
type Client struct {
	conn    *websocket.Conn
	opts    options
	welcome protocol.WelcomeMsg
}

// Dial connects to a feed and performs the HELLO/WELCOME exchange.
func Dial(ctx context.Context, url string, hello protocol.HelloMsg, opts ...Option) (*Client, error) {
	o := buildOptions(opts)
	d := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   64 * 1024,
		WriteBufferSize:  64 * 1024,
	}
	conn, resp, err := d.DialContext(ctx, url, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	hello.Type = protocol.TypeHello
	if hello.ProtocolVersion == "" {
		hello.ProtocolVersion = protocol.Version
	}
	if hello.ClientName == "" {
		hello.ClientName = "minimap"
	}
	if err := writeJSON(conn, hello); err != nil {
		conn.Close()
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if o.tap != nil {
		o.tap(msg)
	}
	v, err := protocol.Decode(msg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	switch m := v.(type) {
	case *protocol.WelcomeMsg:
		o.log.Info("feed connected", "url", url, "session", m.SessionID, "world", m.WorldID)
		return &Client{conn: conn, opts: o, welcome: *m}, nil
	case *protocol.ErrorMsg:
		conn.Close()
		return nil, fmt.Errorf("feed refused: %s: %s", m.Code, m.Message)
	default:
		conn.Close()
		return nil, fmt.Errorf("expected WELCOME, got %T", v)
	}
}

func (c *Client) Welcome() protocol.WelcomeMsg { return c.welcome }

// Run reads messages until ctx ends or the connection fails. Messages that
// fail validation are dropped and counted. A cancelled ctx is a clean stop.
func (c *Client) Run(ctx context.Context, h Handler) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
			_ = c.conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if c.opts.tap != nil {
			c.opts.tap(msg)
		}
		if err := protocol.Validate(msg); err != nil {
			c.opts.metrics.ObserveFeedRejected()
			c.opts.log.Warn("dropping invalid feed message", "error", err)
			continue
		}
		v, err := protocol.Decode(msg)
		if err != nil {
			c.opts.metrics.ObserveFeedRejected()
			c.opts.log.Warn("dropping undecodable feed message", "error", err)
			continue
		}
		var base protocol.BaseMessage
		_ = json.Unmarshal(msg, &base)
		c.opts.metrics.ObserveFeedMessage(base.Type)
		h(v)
	}
}

func (c *Client) Close() error {
	err := c.conn.Close()
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}
