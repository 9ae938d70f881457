// Package feedback speaks short status lines back to the user. At most one
// utterance is in flight: a new Speak cancels the current one.
package feedback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/stemvoice/internal/observability"
)

// Synthesizer renders text as audible speech. Speak blocks until the
// utterance has finished playing, failed, or ctx was cancelled.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// Emitter owns the speaking flag. The flag is true from the moment Speak is
// called until the utterance it started ends, errors, or is cancelled.
type Emitter struct {
	synth   Synthesizer
	logger  zerolog.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	gen      uint64
	cancel   context.CancelFunc
	speaking bool
}

func NewEmitter(synth Synthesizer, logger zerolog.Logger, metrics *observability.Metrics) *Emitter {
	if synth == nil {
		synth = NopSynthesizer{}
	}
	return &Emitter{
		synth:   synth,
		logger:  logger,
		metrics: metrics,
	}
}

// Speak cancels any in-flight utterance and starts text.
func (e *Emitter) Speak(text string) {
	if text == "" {
		return
	}

	e.mu.Lock()
	e.cancelLocked()
	e.gen++
	gen := e.gen
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.speaking = true
	e.mu.Unlock()

	go e.run(ctx, gen, text)
}

func (e *Emitter) run(ctx context.Context, gen uint64, text string) {
	started := time.Now()
	err := e.synth.Speak(ctx, text)

	outcome := "ended"
	switch {
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		outcome = "cancelled"
	case err != nil:
		outcome = "error"
		e.logger.Warn().Err(err).Int("text_len", len(text)).Msg("speech synthesis failed")
	}
	if e.metrics != nil {
		e.metrics.SpeechUtterances.WithLabelValues(outcome).Inc()
		if outcome == "ended" {
			e.metrics.ObserveStage(observability.StageUtterance, time.Since(started))
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		// Superseded; the newer utterance owns the flag.
		return
	}
	e.settleLocked()
}

// Cancel stops the in-flight utterance, if any, and clears the flag.
func (e *Emitter) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked()
	e.gen++
	e.settleLocked()
}

func (e *Emitter) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speaking
}

func (e *Emitter) cancelLocked() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

func (e *Emitter) settleLocked() {
	e.speaking = false
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}
