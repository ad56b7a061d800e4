package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"

	"github.com/bnema/imsim/internal/domain"
	"github.com/bnema/imsim/internal/ports"
)

const (
	defaultHandshakeTimeout = 5 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultReadLimit        = 4 << 20
)

// Transport dials gateways over WebSocket. Each protocol frame travels as one
// binary message.
type Transport struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
}

func (t Transport) Dial(ctx context.Context, url string) (ports.Conn, error) {
	dialer := gws.Dialer{HandshakeTimeout: durationOr(t.HandshakeTimeout, defaultHandshakeTimeout)}

	ws, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w: %w", url, domain.ErrTransport, err)
	}

	readLimit := t.ReadLimit
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}
	ws.SetReadLimit(readLimit)

	return &Conn{ws: ws, writeTimeout: durationOr(t.WriteTimeout, defaultWriteTimeout)}, nil
}

type Conn struct {
	ws           *gws.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read frame: %w: %w", domain.ErrTransport, err)
	}
	return data, nil
}

func (c *Conn) WriteMessage(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("write frame: %w: %w", domain.ErrTransport, err)
	}
	if err := c.ws.WriteMessage(gws.BinaryMessage, frame); err != nil {
		return fmt.Errorf("write frame: %w: %w", domain.ErrTransport, err)
	}
	return nil
}

// Close sends a close control message and releases the socket. Safe to call
// more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		msg := gws.FormatCloseMessage(gws.CloseNormalClosure, "")
		_ = c.ws.WriteControl(gws.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
