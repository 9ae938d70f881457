package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	messages chan string
	errors   chan *Error
	closes   chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		messages: make(chan string, 16),
		errors:   make(chan *Error, 4),
		closes:   make(chan struct{}, 4),
	}
}

func (h *recordingHandler) OnMessage(payload []byte) { h.messages <- string(payload) }
func (h *recordingHandler) OnError(err *Error)       { h.errors <- err }
func (h *recordingHandler) OnClose()                 { h.closes <- struct{}{} }

func wsServer(t *testing.T, serve func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != Path {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serve(conn)
	}))
	t.Cleanup(srv.Close)
	endpoint, err := BuildURL(srv.URL)
	require.NoError(t, err)
	return endpoint
}

func TestBuildURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8000":      "ws://localhost:8000/ws/transcribe",
		"https://api.example.com/":   "wss://api.example.com/ws/transcribe",
		"https://api.example.com/v1": "wss://api.example.com/v1/ws/transcribe",
		" ws://already.example.com ": "ws://already.example.com/ws/transcribe",
	}
	for in, want := range cases {
		got, err := BuildURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := BuildURL("")
	assert.Error(t, err)
	_, err = BuildURL("ftp://example.com")
	assert.Error(t, err)
}

func TestChannelSendsBinaryChunksAndDeliversMessages(t *testing.T) {
	received := make(chan []byte, 1)
	endpoint := wsServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		mt, chunk, err := conn.ReadMessage()
		if err != nil || mt != websocket.BinaryMessage {
			return
		}
		received <- chunk
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"transcript":"go home","isFinal":true}`))
		_, _, _ = conn.ReadMessage()
	})

	h := newRecordingHandler()
	ch, err := NewWSDialer(time.Second, zerolog.Nop()).Dial(context.Background(), endpoint, h)
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.Send([]byte{1, 2, 3}))
	select {
	case chunk := <-received:
		assert.Equal(t, []byte{1, 2, 3}, chunk)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "server never received the chunk")
	}
	select {
	case msg := <-h.messages:
		assert.Contains(t, msg, "go home")
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no message delivered")
	}
}

func TestChannelReportsNormalServerClose(t *testing.T) {
	endpoint := wsServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		_, _, _ = conn.ReadMessage()
	})

	h := newRecordingHandler()
	_, err := NewWSDialer(time.Second, zerolog.Nop()).Dial(context.Background(), endpoint, h)
	require.NoError(t, err)

	select {
	case <-h.closes:
	case err := <-h.errors:
		require.FailNowf(t, "unexpected error", "%v", err)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "close not reported")
	}
}

func TestChannelReportsAbruptDropAsMidSessionFailure(t *testing.T) {
	endpoint := wsServer(t, func(conn *websocket.Conn) {
		_ = conn.UnderlyingConn().Close()
	})

	h := newRecordingHandler()
	_, err := NewWSDialer(time.Second, zerolog.Nop()).Dial(context.Background(), endpoint, h)
	require.NoError(t, err)

	select {
	case e := <-h.errors:
		assert.Equal(t, ClassMidSession, e.Class)
		assert.Equal(t, "mid_session_failure", e.Label())
	case <-h.closes:
		require.FailNow(t, "abrupt drop reported as clean close")
	case <-time.After(2 * time.Second):
		require.FailNow(t, "error not reported")
	}
}

func TestLocalCloseIsSilentAndIdempotent(t *testing.T) {
	endpoint := wsServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	h := newRecordingHandler()
	ch, err := NewWSDialer(time.Second, zerolog.Nop()).Dial(context.Background(), endpoint, h)
	require.NoError(t, err)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	assert.ErrorIs(t, ch.Send([]byte{1}), ErrClosed)

	select {
	case <-h.closes:
		require.FailNow(t, "close reported after local close")
	case e := <-h.errors:
		require.FailNowf(t, "error reported after local close", "%v", e)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDialUnreachableServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = NewWSDialer(time.Second, zerolog.Nop()).Dial(context.Background(), "ws://"+addr+Path, newRecordingHandler())
	var terr *Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, ClassInitialConnect, terr.Class)
	assert.True(t, terr.Unreachable)
	assert.Equal(t, "server_unreachable", terr.Label())
}

func TestDialHandshakeRejection(t *testing.T) {
	status := http.StatusForbidden
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()
	endpoint := "ws://" + strings.TrimPrefix(srv.URL, "http://") + Path

	_, err := NewWSDialer(time.Second, zerolog.Nop()).Dial(context.Background(), endpoint, newRecordingHandler())
	var terr *Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, ClassInitialConnect, terr.Class)
	assert.False(t, terr.Unreachable)
	assert.Contains(t, terr.Error(), "handshake")

	status = http.StatusServiceUnavailable
	_, err = NewWSDialer(time.Second, zerolog.Nop()).Dial(context.Background(), endpoint, newRecordingHandler())
	require.True(t, errors.As(err, &terr))
	assert.True(t, terr.Unreachable)
}
