// Package signals is the typed publish/subscribe channel the controller and
// host collaborators use to notify each other.
package signals

import (
	"sync"
)

// Name enumerates the fixed set of cross-component signals.
type Name string

const (
	// Raised by the voice controller.
	TriggerSplit Name = "voice-trigger-split"
	ViewTos      Name = "voice-view-tos"
	SelectStem   Name = "voice-select-stem"

	// Raised by the host.
	FileSelected Name = "file-selected"
	TosAgreed    Name = "tos-agreed"
	SplitSuccess Name = "voice-split-success"
)

// Known reports whether n is one of the enumerated signals.
func Known(n Name) bool {
	switch n {
	case TriggerSplit, ViewTos, SelectStem, FileSelected, TosAgreed, SplitSuccess:
		return true
	default:
		return false
	}
}

// Signal is one fire-and-forget notification. StemID is set for
// SelectStem; SongID optionally for SplitSuccess.
type Signal struct {
	Name   Name
	StemID string
	SongID string
}

// Handler receives published signals.
type Handler func(Signal)

// Bus delivers signals synchronously to subscribers in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Name][]subscription
}

type subscription struct {
	id int
	fn Handler
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Name][]subscription)}
}

// Subscribe registers fn for the given names and returns an unsubscribe func.
func (b *Bus) Subscribe(fn Handler, names ...Name) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	for _, n := range names {
		b.subs[n] = append(b.subs[n], subscription{id: id, fn: fn})
	}
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, n := range names {
			subs := b.subs[n]
			for i, s := range subs {
				if s.id == id {
					b.subs[n] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		}
	}
}

// Publish delivers sig to current subscribers. Handlers run on the caller's
// goroutine, outside the bus lock.
func (b *Bus) Publish(sig Signal) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[sig.Name]...)
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(sig)
	}
}
