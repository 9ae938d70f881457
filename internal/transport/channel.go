// Package transport carries captured audio to the transcription server over
// a websocket and delivers its transcript frames back.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ent0n29/stemvoice/internal/reliability"
)

// Path is appended to the configured API base.
const Path = "/ws/transcribe"

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

// Handler receives channel events. A channel reports at most one of OnError
// or OnClose, and never after the local side called Close.
type Handler interface {
	OnMessage(payload []byte)
	OnError(err *Error)
	OnClose()
}

// Channel is an open transcription stream.
type Channel interface {
	Send(chunk []byte) error
	Close() error
}

// Dialer opens channels. The successful return of Dial is the open event.
type Dialer interface {
	Dial(ctx context.Context, endpoint string, h Handler) (Channel, error)
}

// BuildURL upgrades an http(s) API base to ws(s) and appends Path.
func BuildURL(base string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", fmt.Errorf("transcription base url is empty")
	}
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + Path)
	if err != nil {
		return "", fmt.Errorf("invalid transcription base url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid transcription base url scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// WSDialer dials gorilla websocket channels.
type WSDialer struct {
	dialer *websocket.Dialer
	logger zerolog.Logger
}

func NewWSDialer(handshakeTimeout time.Duration, logger zerolog.Logger) *WSDialer {
	d := *websocket.DefaultDialer
	if handshakeTimeout > 0 {
		d.HandshakeTimeout = handshakeTimeout
	}
	return &WSDialer{dialer: &d, logger: logger}
}

func (d *WSDialer) Dial(ctx context.Context, endpoint string, h Handler) (Channel, error) {
	conn, resp, err := d.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		unreachable := reliability.IsNetworkError(err)
		if resp != nil {
			unreachable = unreachable || reliability.IsUnavailableHTTPStatus(resp.StatusCode)
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, &Error{Class: ClassInitialConnect, Unreachable: unreachable, Err: err}
	}

	ch := &wsChannel{
		conn:    conn,
		handler: h,
		logger:  d.logger,
		out:     make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
	}
	go ch.readLoop()
	go ch.writeLoop()
	return ch, nil
}

type wsChannel struct {
	conn    *websocket.Conn
	handler Handler
	logger  zerolog.Logger

	out  chan []byte
	done chan struct{}

	mu         sync.Mutex
	closed     bool
	localClose bool
	reportOnce sync.Once
}

func (c *wsChannel) Send(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	copied := append([]byte(nil), chunk...)
	select {
	case c.out <- copied:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Close is idempotent and suppresses any further handler events.
func (c *wsChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.localClose = true
	close(c.done)
	c.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"), deadline)
	return c.conn.Close()
}

func (c *wsChannel) readLoop() {
	for {
		mt, payload, err := c.conn.ReadMessage()
		if err != nil {
			if reliability.IsNormalClose(err) {
				c.finish(nil)
			} else {
				c.finish(err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		if c.isLocallyClosed() {
			return
		}
		c.handler.OnMessage(payload)
	}
}

func (c *wsChannel) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case chunk := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				c.finish(fmt.Errorf("send audio: %w", err))
				return
			}
		}
	}
}

func (c *wsChannel) isLocallyClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localClose
}

// finish marks the channel closed by the remote side or a failure and
// reports it once.
func (c *wsChannel) finish(err error) {
	c.mu.Lock()
	local := c.localClose
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	c.mu.Unlock()
	_ = c.conn.Close()
	if local {
		return
	}

	c.reportOnce.Do(func() {
		if err != nil {
			c.logger.Warn().Err(err).Msg("transcription channel failed")
			c.handler.OnError(&Error{Class: ClassMidSession, Err: err})
			return
		}
		c.logger.Info().Msg("transcription channel closed by server")
		c.handler.OnClose()
	})
}
