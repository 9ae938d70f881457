// Package session owns the voice session: microphone capture, the
// transcription channel, the conversational flow and the idle watchdog.
// All state lives behind one mutex; side effects run after it is released.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ent0n29/stemvoice/internal/audio"
	"github.com/ent0n29/stemvoice/internal/flow"
	"github.com/ent0n29/stemvoice/internal/library"
	"github.com/ent0n29/stemvoice/internal/observability"
	"github.com/ent0n29/stemvoice/internal/signals"
	"github.com/ent0n29/stemvoice/internal/transport"
	"github.com/ent0n29/stemvoice/internal/watchdog"
)

const (
	DefaultIdleTimeout       = 30 * time.Second
	DefaultTranscriptDisplay = 3500 * time.Millisecond
	defaultConnectTimeout    = 10 * time.Second
	pickerTimeout            = 15 * time.Second
	libraryTimeout           = 2 * time.Second
)

// Config tunes controller timing.
type Config struct {
	Endpoint          string
	IdleTimeout       time.Duration
	TranscriptDisplay time.Duration
	SpeechCooldown    time.Duration
	ConnectTimeout    time.Duration
}

// Deps are the collaborators the controller drives.
type Deps struct {
	Capture audio.Capturer
	Dialer  transport.Dialer
	Host    Host
	Speech  Speaker
	Library library.Store
	Bus     *signals.Bus
	Metrics *observability.Metrics
	Logger  zerolog.Logger
	Now     func() time.Time
}

type Controller struct {
	cfg     Config
	capture audio.Capturer
	dialer  transport.Dialer
	host    Host
	speech  Speaker
	library library.Store
	bus     *signals.Bus
	metrics *observability.Metrics
	logger  zerolog.Logger
	now     func() time.Time

	unsubscribe func()

	mu        sync.Mutex
	gen       uint64
	acquiring bool
	state     ConnectionState
	sessionID string
	startedAt time.Time
	lastSeen  time.Time
	flow      flow.State
	pending   *flow.PendingAction
	source    audio.Source
	channel   transport.Channel
	watchdog  *watchdog.Watchdog

	live         *LiveTranscript
	displayGen   uint64
	displayTimer *time.Timer
}

func NewController(cfg Config, deps Deps) *Controller {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.TranscriptDisplay <= 0 {
		cfg.TranscriptDisplay = DefaultTranscriptDisplay
	}
	if cfg.SpeechCooldown <= 0 {
		cfg.SpeechCooldown = flow.DefaultCooldown
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Library == nil {
		deps.Library = library.NewInMemoryStore()
	}
	if deps.Bus == nil {
		deps.Bus = signals.NewBus()
	}

	c := &Controller{
		cfg:     cfg,
		capture: deps.Capture,
		dialer:  deps.Dialer,
		host:    deps.Host,
		speech:  deps.Speech,
		library: deps.Library,
		bus:     deps.Bus,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		now:     deps.Now,
		state:   StateOffline,
		flow:    flow.Idle(),
	}
	c.unsubscribe = c.bus.Subscribe(c.onSignal, signals.FileSelected, signals.TosAgreed, signals.SplitSuccess)
	return c
}

// Close stops the session and detaches from the signal bus.
func (c *Controller) Close() {
	c.unsubscribe()
	c.Stop()
}

// Start acquires the microphone and opens the transcription channel. It is
// a no-op while a session is already starting or running.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateOffline || c.acquiring {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	c.acquiring = true
	c.mu.Unlock()

	requested := c.now()
	c.event("start")

	src, err := c.capture.Open(ctx)
	if err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.acquiring = false
		}
		c.mu.Unlock()
		if errors.Is(err, audio.ErrCaptureDenied) {
			c.logger.Warn().Err(err).Msg("microphone capture denied")
			c.event("capture_denied")
			c.host.Notify("error", "Microphone access was denied")
			return fmt.Errorf("%w: %w", ErrCaptureDenied, err)
		}
		return fmt.Errorf("open capture: %w", err)
	}

	c.mu.Lock()
	if c.gen != gen {
		// Stopped while the microphone was being acquired.
		c.mu.Unlock()
		_ = src.Stop()
		return nil
	}
	c.acquiring = false
	c.state = StateConnecting
	c.source = src
	c.sessionID = uuid.NewString()
	c.startedAt = requested
	c.lastSeen = requested
	status := c.statusLocked()
	c.mu.Unlock()

	c.logger.Info().Str("session_id", status.SessionID).Str("endpoint", c.cfg.Endpoint).Msg("connecting voice session")
	c.host.StateChanged(status)

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	ch, err := c.dialer.Dial(dialCtx, c.cfg.Endpoint, &channelEvents{c: c, gen: gen})
	if err != nil {
		c.connectFailed(gen, err)
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = ch.Close()
		return nil
	}
	c.channel = ch
	c.state = StateOnline
	c.clearLiveLocked()
	c.watchdog = watchdog.New(c.cfg.IdleTimeout, func(deadline uint64) { c.onIdle(gen, deadline) })
	c.watchdog.Reset()
	status = c.statusLocked()
	c.mu.Unlock()

	src.Start(
		func(chunk []byte) { c.onChunk(gen, chunk) },
		func(err error) { c.onCaptureLost(gen, err) },
	)

	latency := c.now().Sub(requested)
	c.metrics.ObserveConnectLatency(latency)
	if c.metrics != nil {
		c.metrics.SessionOnline.Set(1)
	}
	c.event("online")
	c.logger.Info().Str("session_id", status.SessionID).Dur("connect_latency", latency).Msg("voice session online")
	c.host.ShowTranscript("", false)
	c.host.StateChanged(status)
	return nil
}

// Stop tears the session down. Safe to call at any time, any number of
// times.
func (c *Controller) Stop() {
	c.stop(0, "requested", false)
}

// Toggle stops a starting or running session, otherwise starts one.
func (c *Controller) Toggle(ctx context.Context) error {
	c.mu.Lock()
	active := c.state != StateOffline || c.acquiring
	c.mu.Unlock()
	if active {
		c.Stop()
		return nil
	}
	return c.Start(ctx)
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() Status {
	st := Status{
		State:         c.state,
		Flow:          c.flow.Mode,
		FlowSongID:    c.flow.SongID,
		IdleTimeoutMS: c.cfg.IdleTimeout.Milliseconds(),
	}
	if c.state != StateOffline {
		st.SessionID = c.sessionID
		st.StartedAt = c.startedAt
		st.LastActivityAt = c.lastSeen
	}
	if c.pending != nil {
		p := *c.pending
		st.Pending = &p
	}
	if c.live != nil {
		lt := *c.live
		st.Transcript = &lt
	}
	if c.speech != nil {
		st.Speaking = c.speech.Speaking()
	}
	return st
}

// stop performs the single teardown. gen 0 stops unconditionally; otherwise
// the call is dropped unless gen is still current. keepTranscript leaves a
// final transcript on screen until its display window elapses.
func (c *Controller) stop(gen uint64, reason string, keepTranscript bool) {
	c.stopIf(gen, reason, keepTranscript, nil)
}

// stopIf is stop with an extra condition checked under the lock.
func (c *Controller) stopIf(gen uint64, reason string, keepTranscript bool, cond func() bool) {
	c.mu.Lock()
	if gen != 0 && gen != c.gen {
		c.mu.Unlock()
		return
	}
	if cond != nil && !cond() {
		c.mu.Unlock()
		return
	}
	if c.state == StateOffline && !c.acquiring && c.source == nil && c.channel == nil {
		c.mu.Unlock()
		return
	}

	c.gen++
	c.acquiring = false
	src, ch, wd := c.source, c.channel, c.watchdog
	c.source, c.channel, c.watchdog = nil, nil, nil
	sessionID := c.sessionID
	prev := c.flow.Mode
	c.state = StateOffline
	c.flow = flow.Idle()
	c.pending = nil
	clearDisplay := !keepTranscript || c.live == nil || !c.live.IsFinal
	if clearDisplay {
		c.clearLiveLocked()
	}
	status := c.statusLocked()
	c.mu.Unlock()

	if wd != nil {
		wd.Stop()
	}
	if ch != nil {
		_ = ch.Close()
	}
	if src != nil {
		if err := src.Stop(); err != nil {
			c.logger.Warn().Err(err).Msg("capture did not stop cleanly")
		}
	}
	if c.speech != nil {
		c.speech.Cancel()
	}

	c.recordTransition(prev, flow.ModeIdle)
	if c.metrics != nil {
		c.metrics.SessionOnline.Set(0)
	}
	c.event("stop_" + reason)
	c.logger.Info().Str("session_id", sessionID).Str("reason", reason).Msg("voice session stopped")

	if clearDisplay {
		c.host.ShowTranscript("", false)
	}
	c.host.StateChanged(status)
}

func (c *Controller) connectFailed(gen uint64, err error) {
	c.mu.Lock()
	current := c.gen == gen
	was := c.state
	c.mu.Unlock()
	if !current {
		return
	}

	msg := "Could not start voice control"
	label := "initial_connect_failure"
	var terr *transport.Error
	if errors.As(err, &terr) {
		label = terr.Label()
		if terr.Unreachable {
			msg = "Cannot reach the transcription server"
		}
	}
	if c.metrics != nil {
		c.metrics.TransportErrors.WithLabelValues(label).Inc()
	}
	c.logger.Error().Err(err).Str("class", label).Msg("transcription channel failed to open")
	if was == StateConnecting || was == StateOnline {
		c.host.Notify("error", msg)
	}
	c.stop(gen, "connect_failed", false)
}

// onCaptureLost ends the session when the microphone goes away on its own.
func (c *Controller) onCaptureLost(gen uint64, err error) {
	c.mu.Lock()
	current := c.gen == gen && c.state != StateOffline
	c.mu.Unlock()
	if !current {
		return
	}
	c.logger.Error().Err(err).Msg("microphone capture ended unexpectedly")
	c.event("capture_lost")
	c.metrics.ObserveIndicator(observability.IndicatorCaptureLost)
	c.host.Notify("error", "Microphone stopped recording")
	c.stop(gen, "capture_lost", false)
}

// onIdle stops the session unless a transcript re-armed the watchdog after
// deadline elapsed. Transcripts reset it under c.mu, so the check and the
// teardown see the same activity.
func (c *Controller) onIdle(gen, deadline uint64) {
	c.stopIf(gen, "idle_timeout", false, func() bool {
		return c.state == StateOnline && c.watchdog != nil && c.watchdog.Expired(deadline)
	})
}

// clearLiveLocked drops the displayed transcript and its pending expiry.
func (c *Controller) clearLiveLocked() {
	c.live = nil
	c.cancelClearLocked()
}

func (c *Controller) event(name string) {
	if c.metrics != nil {
		c.metrics.SessionEvents.WithLabelValues(name).Inc()
	}
}

func (c *Controller) recordTransition(from, to flow.Mode) {
	if from == to {
		return
	}
	if c.metrics != nil {
		c.metrics.FlowTransitions.WithLabelValues(string(from), string(to)).Inc()
	}
	c.logger.Debug().Str("from", string(from)).Str("to", string(to)).Msg("flow transition")
}
