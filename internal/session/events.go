package session

import (
	"context"
	"errors"
	"time"

	"github.com/ent0n29/stemvoice/internal/flow"
	"github.com/ent0n29/stemvoice/internal/library"
	"github.com/ent0n29/stemvoice/internal/observability"
	"github.com/ent0n29/stemvoice/internal/protocol"
	"github.com/ent0n29/stemvoice/internal/signals"
	"github.com/ent0n29/stemvoice/internal/transport"
)

// channelEvents binds transport callbacks to the session generation that
// opened the channel.
type channelEvents struct {
	c   *Controller
	gen uint64
}

func (h *channelEvents) OnMessage(payload []byte)     { h.c.onMessage(h.gen, payload) }
func (h *channelEvents) OnError(err *transport.Error) { h.c.onChannelError(h.gen, err) }
func (h *channelEvents) OnClose()                     { h.c.onChannelClose(h.gen) }

func (c *Controller) onChunk(gen uint64, chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	c.mu.Lock()
	ch := c.channel
	open := c.gen == gen && c.state == StateOnline && ch != nil
	c.mu.Unlock()
	if !open {
		c.countChunk("dropped_closed")
		return
	}

	if err := ch.Send(chunk); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			c.countChunk("dropped_closed")
			return
		}
		c.countChunk("send_error")
		c.logger.Debug().Err(err).Msg("audio chunk send failed")
		return
	}
	c.countChunk("sent")
}

func (c *Controller) countChunk(outcome string) {
	if c.metrics != nil {
		c.metrics.AudioChunks.WithLabelValues(outcome).Inc()
	}
}

func (c *Controller) onMessage(gen uint64, payload []byte) {
	frame, err := protocol.ParseTranscript(payload)
	if err != nil {
		c.logger.Warn().Err(err).Int("bytes", len(payload)).Msg("dropping malformed transcript frame")
		c.countTranscript("malformed")
		return
	}
	received := c.now()

	c.mu.Lock()
	if c.gen != gen || c.state != StateOnline {
		c.mu.Unlock()
		return
	}
	c.lastSeen = received
	if c.watchdog != nil {
		c.watchdog.Reset()
	}
	c.live = &LiveTranscript{Text: frame.Transcript, IsFinal: frame.IsFinal, ReceivedAt: received}
	if frame.IsFinal {
		c.scheduleClearLocked()
	} else {
		c.cancelClearLocked()
	}
	c.mu.Unlock()

	c.host.ShowTranscript(frame.Transcript, frame.IsFinal)
	if !frame.IsFinal {
		c.countTranscript("partial")
		return
	}
	c.countTranscript("final")

	songs := c.songs()
	env := c.env(received, songs)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	prev := c.flow.Mode
	res := flow.Step(c.flow, flow.Transcript{Text: frame.Transcript, IsFinal: true, ReceivedAt: received}, env)
	c.flow = res.Next
	c.mu.Unlock()

	if res.Suppressed {
		c.metrics.ObserveIndicator(observability.IndicatorSelfTriggerSuppressed)
		c.logger.Debug().Str("text", frame.Transcript).Msg("transcript suppressed during announcement")
	}
	if res.Command != nil {
		if c.metrics != nil {
			c.metrics.Commands.WithLabelValues(string(res.Command.Kind)).Inc()
		}
		if res.Command.Matched() {
			c.logger.Debug().Str("text", frame.Transcript).Str("command", string(res.Command.Kind)).Msg("interpreted")
		} else {
			c.logger.Debug().Str("text", frame.Transcript).Msg("no command matched")
		}
	}
	c.recordTransition(prev, res.Next.Mode)
	c.apply(gen, res.Effects)
	c.metrics.ObserveStage(observability.StageTranscriptToReply, c.now().Sub(received))
}

func (c *Controller) countTranscript(kind string) {
	if c.metrics != nil {
		c.metrics.Transcripts.WithLabelValues(kind).Inc()
	}
}

// scheduleClearLocked hides the final transcript after the display window.
func (c *Controller) scheduleClearLocked() {
	c.displayGen++
	dg := c.displayGen
	if c.displayTimer != nil {
		c.displayTimer.Stop()
	}
	c.displayTimer = time.AfterFunc(c.cfg.TranscriptDisplay, func() { c.expireTranscript(dg) })
}

func (c *Controller) cancelClearLocked() {
	c.displayGen++
	if c.displayTimer != nil {
		c.displayTimer.Stop()
		c.displayTimer = nil
	}
}

func (c *Controller) expireTranscript(dg uint64) {
	c.mu.Lock()
	if c.displayGen != dg {
		c.mu.Unlock()
		return
	}
	c.live = nil
	c.displayTimer = nil
	status := c.statusLocked()
	c.mu.Unlock()

	c.host.ShowTranscript("", false)
	c.host.StateChanged(status)
}

func (c *Controller) onChannelError(gen uint64, err *transport.Error) {
	c.mu.Lock()
	current := c.gen == gen
	was := c.state
	c.mu.Unlock()
	if !current {
		return
	}

	if c.metrics != nil {
		c.metrics.TransportErrors.WithLabelValues(err.Label()).Inc()
	}
	c.logger.Error().Err(err).Str("class", err.Label()).Msg("transcription channel error")
	if was == StateConnecting || was == StateOnline {
		c.host.Notify("error", "Voice connection lost")
	}
	c.stop(gen, "connection_lost", false)
}

// onChannelClose ends the session. A final transcript still on screen is
// left visible until its window elapses.
func (c *Controller) onChannelClose(gen uint64) {
	c.mu.Lock()
	current := c.gen == gen
	c.mu.Unlock()
	if !current {
		return
	}
	c.stop(gen, "server_closed", true)
}

func (c *Controller) onSignal(sig signals.Signal) {
	c.mu.Lock()
	gen := c.gen
	online := c.state == StateOnline
	c.mu.Unlock()
	if !online {
		return
	}

	env := c.env(c.now(), c.songs())

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	prev := c.flow.Mode
	res := flow.OnSignal(c.flow, sig, env)
	c.flow = res.Next
	c.mu.Unlock()

	c.logger.Debug().Str("signal", string(sig.Name)).Str("flow", string(res.Next.Mode)).Msg("host signal")
	c.recordTransition(prev, res.Next.Mode)
	c.apply(gen, res.Effects)
}

func (c *Controller) env(now time.Time, songs []library.Song) flow.Env {
	env := flow.Env{
		Now:         now,
		TouchDevice: c.host.IsTouchDevice(),
		Songs:       songs,
		Cooldown:    c.cfg.SpeechCooldown,
	}
	if c.speech != nil {
		env.Speaking = c.speech.Speaking()
	}
	return env
}

// songs returns the catalog newest first; lookup failures degrade to an
// empty catalog.
func (c *Controller) songs() []library.Song {
	ctx, cancel := context.WithTimeout(context.Background(), libraryTimeout)
	defer cancel()
	songs, err := c.library.List(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("song catalog unavailable")
		return nil
	}
	return songs
}
