// Package host bridges the session controller to browser UIs attached over
// a websocket. It implements session.Host and speaks feedback through the
// attached UI.
package host

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ent0n29/stemvoice/internal/library"
	"github.com/ent0n29/stemvoice/internal/observability"
	"github.com/ent0n29/stemvoice/internal/protocol"
	"github.com/ent0n29/stemvoice/internal/session"
	"github.com/ent0n29/stemvoice/internal/signals"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	readTimeout  = 120 * time.Second
	pingInterval = 30 * time.Second

	speechFloor   = 2 * time.Second
	speechPerChar = 80 * time.Millisecond
	speechCeiling = 30 * time.Second
)

// Effect actions sent to the UI.
const (
	ActionNavigate           = "navigate"
	ActionLogout             = "logout"
	ActionReload             = "reload"
	ActionPlayAll            = "play_all"
	ActionStopAllPlayback    = "stop_all_playback"
	ActionClearLibrary       = "clear_library"
	ActionClearFileSelection = "clear_file_selection"
	ActionPlayToggle         = "play_toggle"
)

type Hub struct {
	bus     *signals.Bus
	metrics *observability.Metrics
	logger  zerolog.Logger

	unsubscribe func()

	mu       sync.Mutex
	clients  map[*client]struct{}
	touch    bool
	pickers  map[string]chan protocol.PickerResult
	speeches map[string]chan protocol.SpeechEnded
}

type client struct {
	conn *websocket.Conn
	send chan any
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

func NewHub(bus *signals.Bus, metrics *observability.Metrics, logger zerolog.Logger) *Hub {
	h := &Hub{
		bus:      bus,
		metrics:  metrics,
		logger:   logger,
		clients:  make(map[*client]struct{}),
		pickers:  make(map[string]chan protocol.PickerResult),
		speeches: make(map[string]chan protocol.SpeechEnded),
	}
	h.unsubscribe = bus.Subscribe(h.forwardSignal, signals.TriggerSplit, signals.ViewTos, signals.SelectStem)
	return h
}

// Close detaches every client.
func (h *Hub) Close() {
	h.unsubscribe()
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Serve runs one attached UI until its connection ends. initial, if not nil,
// is sent before anything else.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, initial any) {
	c := &client{conn: conn, send: make(chan any, sendBuffer), done: make(chan struct{})}
	if initial != nil {
		c.send <- initial
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.setClientGauge(n)
	h.logger.Info().Int("clients", n).Msg("host attached")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, c)
	}()

	h.readLoop(c)

	c.close()
	<-writerDone
	_ = conn.Close()

	h.mu.Lock()
	delete(h.clients, c)
	n = len(h.clients)
	h.mu.Unlock()
	h.setClientGauge(n)
	h.logger.Info().Int("clients", n).Msg("host detached")
}

func (h *Hub) writeLoop(ctx context.Context, c *client) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = c.conn.Close()
			return
		case <-c.done:
			return
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				_ = c.conn.Close()
				return
			}
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				h.logger.Debug().Err(err).Msg("host write failed")
				_ = c.conn.Close()
				return
			}
			if t, ok := protocol.TypeOf(msg); ok {
				h.countMessage("outbound", string(t))
			}
		}
	}
}

func (h *Hub) readLoop(c *client) {
	c.conn.SetReadLimit(1 << 16)
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		if mt != websocket.TextMessage {
			continue
		}
		msg, err := protocol.ParseHostMessage(data)
		if err != nil {
			h.logger.Warn().Err(err).Msg("dropping invalid host message")
			h.countMessage("inbound", "invalid")
			continue
		}
		if t, ok := protocol.TypeOf(msg); ok {
			h.countMessage("inbound", string(t))
		}
		h.handle(msg)
	}
}

func (h *Hub) handle(msg any) {
	switch m := msg.(type) {
	case protocol.Hello:
		h.mu.Lock()
		h.touch = m.Touch
		h.mu.Unlock()
	case protocol.SignalEvent:
		name := signals.Name(m.Name)
		switch name {
		case signals.FileSelected, signals.TosAgreed, signals.SplitSuccess:
			h.bus.Publish(signals.Signal{Name: name, StemID: m.StemID, SongID: m.SongID})
		default:
			h.logger.Warn().Str("signal", m.Name).Msg("host raised an unsupported signal")
		}
	case protocol.PickerResult:
		h.mu.Lock()
		ch, ok := h.pickers[m.ID]
		delete(h.pickers, m.ID)
		h.mu.Unlock()
		if ok {
			ch <- m
		}
	case protocol.SpeechEnded:
		h.mu.Lock()
		ch, ok := h.speeches[m.ID]
		delete(h.speeches, m.ID)
		h.mu.Unlock()
		if ok {
			ch <- m
		}
	}
}

// broadcast queues msg for every client, dropping it for clients whose
// queue is full.
func (h *Hub) broadcast(msg any) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for c := range h.clients {
		select {
		case c.send <- msg:
			delivered++
		default:
			h.countMessage("outbound", "dropped")
		}
	}
	return delivered
}

func (h *Hub) forwardSignal(sig signals.Signal) {
	h.broadcast(protocol.SignalEvent{
		Type:   protocol.TypeSignal,
		Name:   string(sig.Name),
		StemID: sig.StemID,
		SongID: sig.SongID,
	})
}

func (h *Hub) effect(ev protocol.EffectEvent) {
	ev.Type = protocol.TypeEffect
	h.broadcast(ev)
}

func (h *Hub) Navigate(to string) { h.effect(protocol.EffectEvent{Action: ActionNavigate, Path: to}) }
func (h *Hub) Logout()            { h.effect(protocol.EffectEvent{Action: ActionLogout}) }
func (h *Hub) Reload()            { h.effect(protocol.EffectEvent{Action: ActionReload}) }
func (h *Hub) StopAllPlayback()   { h.effect(protocol.EffectEvent{Action: ActionStopAllPlayback}) }
func (h *Hub) ClearLibrary()      { h.effect(protocol.EffectEvent{Action: ActionClearLibrary}) }

func (h *Hub) ClearFileSelection() {
	h.effect(protocol.EffectEvent{Action: ActionClearFileSelection})
}

func (h *Hub) PlayAll(song library.Song) {
	h.effect(protocol.EffectEvent{Action: ActionPlayAll, SongID: song.ID})
}

func (h *Hub) PlayToggle(trackKey, file string, song library.Song) {
	h.effect(protocol.EffectEvent{Action: ActionPlayToggle, SongID: song.ID, TrackKey: trackKey, File: file})
}

func (h *Hub) IsTouchDevice() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.touch
}

func (h *Hub) Notify(level, message string) {
	h.broadcast(protocol.NotifyEvent{Type: protocol.TypeNotify, Level: level, Message: message})
}

func (h *Hub) ShowTranscript(text string, final bool) {
	h.broadcast(protocol.TranscriptEvent{Type: protocol.TypeTranscript, Text: text, IsFinal: final})
}

func (h *Hub) StateChanged(st session.Status) {
	h.broadcast(StateEvent(st))
}

// StateEvent renders a controller snapshot for the UI.
func StateEvent(st session.Status) protocol.StateEvent {
	ev := protocol.StateEvent{
		Type:      protocol.TypeState,
		State:     string(st.State),
		SessionID: st.SessionID,
		Flow:      string(st.Flow),
	}
	if st.Pending != nil {
		ev.PendingKind = string(st.Pending.Kind)
		ev.PendingLabel = st.Pending.Label
	}
	if !st.StartedAt.IsZero() {
		ev.StartedAtMS = st.StartedAt.UnixMilli()
	}
	if !st.LastActivityAt.IsZero() {
		ev.LastActivityMS = st.LastActivityAt.UnixMilli()
	}
	return ev
}

// OpenFilePicker asks attached UIs to open their file picker and waits for
// the first answer.
func (h *Hub) OpenFilePicker(ctx context.Context) error {
	id := uuid.NewString()
	result := make(chan protocol.PickerResult, 1)
	h.mu.Lock()
	h.pickers[id] = result
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.pickers, id)
		h.mu.Unlock()
	}()

	if h.broadcast(protocol.PickerRequest{Type: protocol.TypePickerRequest, ID: id}) == 0 {
		return fmt.Errorf("%w: no host attached", session.ErrPickerBlocked)
	}
	select {
	case res := <-result:
		if !res.Opened {
			return fmt.Errorf("%w: %s", session.ErrPickerBlocked, res.Error)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", session.ErrPickerBlocked, ctx.Err())
	}
}

// Speak has the attached UI read text aloud and blocks until it reports the
// utterance ended. A UI that never answers is given a length-based budget.
func (h *Hub) Speak(ctx context.Context, text string) error {
	id := uuid.NewString()
	ended := make(chan protocol.SpeechEnded, 1)
	h.mu.Lock()
	h.speeches[id] = ended
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.speeches, id)
		h.mu.Unlock()
	}()

	if h.broadcast(protocol.SpeakEvent{Type: protocol.TypeSpeak, ID: id, Text: text}) == 0 {
		return nil
	}

	budget := time.NewTimer(SpeechBudget(text))
	defer budget.Stop()
	select {
	case res := <-ended:
		if res.Error != "" {
			return fmt.Errorf("host speech failed: %s", res.Error)
		}
		return nil
	case <-budget.C:
		h.logger.Debug().Str("speech_id", id).Msg("host never reported speech end")
		return nil
	case <-ctx.Done():
		h.broadcast(protocol.SpeakCancelEvent{Type: protocol.TypeSpeakCancel, ID: id})
		return ctx.Err()
	}
}

// SpeechBudget bounds how long an utterance of text may take.
func SpeechBudget(text string) time.Duration {
	d := speechFloor + time.Duration(len(text))*speechPerChar
	if d > speechCeiling {
		return speechCeiling
	}
	return d
}

func (h *Hub) countMessage(direction, typ string) {
	if h.metrics != nil {
		h.metrics.HostMessages.WithLabelValues(direction, typ).Inc()
	}
}

func (h *Hub) setClientGauge(n int) {
	if h.metrics != nil {
		h.metrics.HostClients.Set(float64(n))
	}
}
