// Package transport is the client side of the relay WebSocket: it carries
// protocol envelopes and dispatches inbound events to per-type subscribers.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-rebel/internal/log"
	"github.com/teslashibe/go-rebel/pkg/protocol"
)

// ErrClosed is returned by Emit once the connection is gone.
var ErrClosed = errors.New("transport: connection closed")

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	pingInterval     = 30 * time.Second
	readTimeout      = 2 * pingInterval
)

// Handler receives inbound messages of one type.
type Handler func(*protocol.Message)

type subscription struct {
	id int
	fn Handler
}

// Client is one WebSocket connection to the relay.
type Client struct {
	ws     *websocket.Conn
	wsMu   sync.Mutex
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[protocol.MessageType][]subscription
	nextID int

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// Dial connects to url, a ws:// or wss:// relay endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}

	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}

	c := &Client{
		ws:     ws,
		logger: log.With("component", "transport", "url", url),
		subs:   make(map[protocol.MessageType][]subscription),
		done:   make(chan struct{}),
	}

	ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go c.readLoop()
	go c.keepAlive()
	return c, nil
}

// Emit writes msg to the relay.
func (c *Client) Emit(msg *protocol.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.shutdown(err)
		return fmt.Errorf("emit %s: %w", msg.Type, err)
	}
	return nil
}

// Subscribe registers h for messages of type t. Handlers run on the read
// goroutine in delivery order and must not block. The returned function
// removes the subscription.
func (c *Client) Subscribe(t protocol.MessageType, h func(*protocol.Message)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subs[t] = append(c.subs[t], subscription{id: id, fn: h})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := c.subs[t]
		for i, s := range subs {
			if s.id == id {
				c.subs[t] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(c.subs[t]) == 0 {
			delete(c.subs, t)
		}
	}
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, or nil after a clean Close.
func (c *Client) Err() error {
	<-c.done
	return c.err
}

// Close sends a close frame and tears the connection down.
func (c *Client) Close() error {
	c.wsMu.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.wsMu.Unlock()

	c.shutdown(nil)
	return nil
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.done)
		c.ws.Close()
	})
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Warn("read failed", "error", err)
				}
				c.shutdown(err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(readTimeout))

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			c.logger.Debug("dropping malformed message", "error", err)
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg *protocol.Message) {
	c.mu.RLock()
	subs := append([]subscription(nil), c.subs[msg.Type]...)
	c.mu.RUnlock()

	for _, s := range subs {
		s.fn(msg)
	}
}

func (c *Client) keepAlive() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.wsMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.wsMu.Unlock()
			if err != nil {
				c.shutdown(err)
				return
			}
		}
	}
}
