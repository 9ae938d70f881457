// Package watchdog ends idle sessions. Every Reset pushes the deadline out;
// firing is suppressed for timers that were reset or stopped in the meantime.
package watchdog

import (
	"sync"
	"time"
)

type Watchdog struct {
	timeout time.Duration
	onFire  func(deadline uint64)

	mu    sync.Mutex
	gen   uint64
	timer *time.Timer
}

// New returns a stopped watchdog. onFire runs on its own goroutine and
// receives the deadline that elapsed. A Reset can still land between the
// deadline passing and onFire running, so callers that act on it should
// confirm with Expired under their own lock.
func New(timeout time.Duration, onFire func(deadline uint64)) *Watchdog {
	return &Watchdog{timeout: timeout, onFire: onFire}
}

// Reset (re)arms the timer for a full timeout from now.
func (w *Watchdog) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
	w.gen++
	gen := w.gen
	w.timer = time.AfterFunc(w.timeout, func() { w.fire(gen) })
}

// Stop disarms the timer. It is safe to call repeatedly.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
	w.gen++
}

// Expired reports whether deadline elapsed and nothing reset or stopped the
// watchdog since.
func (w *Watchdog) Expired(deadline uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return deadline == w.gen && w.timer == nil
}

func (w *Watchdog) stopLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watchdog) fire(gen uint64) {
	w.mu.Lock()
	if gen != w.gen {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	w.mu.Unlock()

	if w.onFire != nil {
		w.onFire(gen)
	}
}
