package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/stemvoice/internal/audio"
	"github.com/ent0n29/stemvoice/internal/library"
	"github.com/ent0n29/stemvoice/internal/observability"
	"github.com/ent0n29/stemvoice/internal/signals"
	"github.com/ent0n29/stemvoice/internal/transport"
)

type fakeSource struct {
	mu     sync.Mutex
	emit   func([]byte)
	onExit func(error)
	stops  int
}

func (s *fakeSource) Start(emit func([]byte), onExit func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit = emit
	s.onExit = onExit
}

func (s *fakeSource) exit(err error) {
	s.mu.Lock()
	onExit := s.onExit
	s.mu.Unlock()
	if onExit != nil {
		onExit(err)
	}
}

func (s *fakeSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *fakeSource) push(chunk []byte) {
	s.mu.Lock()
	emit := s.emit
	s.mu.Unlock()
	if emit != nil {
		emit(chunk)
	}
}

func (s *fakeSource) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

type fakeCapture struct {
	mu      sync.Mutex
	err     error
	opens   int
	sources []*fakeSource
}

func (c *fakeCapture) Open(context.Context) (audio.Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opens++
	if c.err != nil {
		return nil, c.err
	}
	src := &fakeSource{}
	c.sources = append(c.sources, src)
	return src, nil
}

func (c *fakeCapture) last() *fakeSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sources[len(c.sources)-1]
}

type fakeChannel struct {
	mu     sync.Mutex
	sent   [][]byte
	closes int
}

func (ch *fakeChannel) Send(chunk []byte) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closes > 0 {
		return transport.ErrClosed
	}
	ch.sent = append(ch.sent, append([]byte(nil), chunk...))
	return nil
}

func (ch *fakeChannel) Close() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.closes++
	return nil
}

func (ch *fakeChannel) closeCount() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closes
}

func (ch *fakeChannel) sentCount() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.sent)
}

type fakeDialer struct {
	mu       sync.Mutex
	err      error
	channels []*fakeChannel
	handlers []transport.Handler
}

func (d *fakeDialer) Dial(_ context.Context, _ string, h transport.Handler) (transport.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	ch := &fakeChannel{}
	d.channels = append(d.channels, ch)
	d.handlers = append(d.handlers, h)
	return ch, nil
}

func (d *fakeDialer) handler() transport.Handler {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handlers[len(d.handlers)-1]
}

func (d *fakeDialer) channel() *fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channels[len(d.channels)-1]
}

type shown struct {
	text  string
	final bool
}

type hostLog struct {
	pickerCalls int
	navigations []string
	notices     []string
	transcripts []shown
	states      []Status
	toggles     []string
	playAll     []string
	cleared     int
	reloads     int
}

type fakeHost struct {
	mu        sync.Mutex
	touch     bool
	pickerErr error
	hostLog
}

func (h *fakeHost) Navigate(to string)  { h.record(func() { h.navigations = append(h.navigations, to) }) }
func (h *fakeHost) Logout()             {}
func (h *fakeHost) Reload()             { h.record(func() { h.reloads++ }) }
func (h *fakeHost) StopAllPlayback()    {}
func (h *fakeHost) ClearLibrary()       { h.record(func() { h.cleared++ }) }
func (h *fakeHost) ClearFileSelection() {}

func (h *fakeHost) PlayAll(song library.Song) {
	h.record(func() { h.playAll = append(h.playAll, song.ID) })
}

func (h *fakeHost) PlayToggle(trackKey, file string, _ library.Song) {
	h.record(func() { h.toggles = append(h.toggles, trackKey+"="+file) })
}

func (h *fakeHost) OpenFilePicker(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pickerCalls++
	return h.pickerErr
}

func (h *fakeHost) IsTouchDevice() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.touch
}

func (h *fakeHost) Notify(level, message string) {
	h.record(func() { h.notices = append(h.notices, level+": "+message) })
}

func (h *fakeHost) ShowTranscript(text string, final bool) {
	h.record(func() { h.transcripts = append(h.transcripts, shown{text, final}) })
}

func (h *fakeHost) StateChanged(status Status) {
	h.record(func() { h.states = append(h.states, status) })
}

func (h *fakeHost) record(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn()
}

func (h *fakeHost) snapshot() hostLog {
	h.mu.Lock()
	defer h.mu.Unlock()
	return hostLog{
		pickerCalls: h.pickerCalls,
		navigations: append([]string(nil), h.navigations...),
		notices:     append([]string(nil), h.notices...),
		transcripts: append([]shown(nil), h.transcripts...),
		states:      append([]Status(nil), h.states...),
		toggles:     append([]string(nil), h.toggles...),
		playAll:     append([]string(nil), h.playAll...),
		cleared:     h.cleared,
		reloads:     h.reloads,
	}
}

func (h *fakeHost) setPicker(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pickerErr = err
}

type fakeSpeaker struct {
	mu       sync.Mutex
	said     []string
	speaking bool
	cancels  int
}

func (s *fakeSpeaker) Speak(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.said = append(s.said, text)
}

func (s *fakeSpeaker) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
	s.speaking = false
}

func (s *fakeSpeaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

func (s *fakeSpeaker) setSpeaking(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaking = v
}

func (s *fakeSpeaker) utterances() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.said...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	c       *Controller
	capture *fakeCapture
	dialer  *fakeDialer
	host    *fakeHost
	speaker *fakeSpeaker
	clock   *fakeClock
	bus     *signals.Bus
	store   *library.InMemoryStore
	metrics *observability.Metrics
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		capture: &fakeCapture{},
		dialer:  &fakeDialer{},
		host:    &fakeHost{},
		speaker: &fakeSpeaker{},
		clock:   &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		bus:     signals.NewBus(),
		store:   library.NewInMemoryStore(),
		metrics: observability.NewMetricsWith(prometheus.NewRegistry(), "test_session"),
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "ws://transcribe.test/ws/transcribe"
	}
	h.c = NewController(cfg, Deps{
		Capture: h.capture,
		Dialer:  h.dialer,
		Host:    h.host,
		Speech:  h.speaker,
		Library: h.store,
		Bus:     h.bus,
		Metrics: h.metrics,
		Logger:  zerolog.Nop(),
		Now:     h.clock.Now,
	})
	t.Cleanup(h.c.Close)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.c.Start(context.Background()))
	require.Equal(t, StateOnline, h.c.Status().State)
}

func (h *harness) say(text string, final bool) {
	payload, _ := json.Marshal(map[string]any{"transcript": text, "isFinal": final})
	h.dialer.handler().OnMessage(payload)
}

func (h *harness) addSong(t *testing.T, id, title string, layers ...string) {
	t.Helper()
	song := library.Song{ID: id, Title: title}
	for _, l := range layers {
		song.Layers = append(song.Layers, library.Layer{ID: l})
		song.DeliveredFiles = append(song.DeliveredFiles, fmt.Sprintf("stems/%s/%s.mp3", id, l))
	}
	_, err := h.store.Upsert(context.Background(), song)
	require.NoError(t, err)
}

func (h *harness) indicator(name string) int {
	for _, ind := range h.metrics.SnapshotStages().Indicators {
		if ind.Name == name {
			return ind.Count
		}
	}
	return 0
}
