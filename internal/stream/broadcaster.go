// Package stream hands simulation frames from the tick loop to any number of
// readers without ever blocking the publisher.
package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/satindergrewal/soundscape/internal/analyzer"
	"github.com/satindergrewal/soundscape/internal/life"
	"github.com/satindergrewal/soundscape/internal/rules"
)

// Frame is one published simulation state. It is never modified after
// Publish; readers share it.
type Frame struct {
	Snapshot *life.Snapshot
	Bands    analyzer.BandEnergies
	PeakHz   float64
	Rules    rules.EffectiveRules
	Position time.Duration
	Duration time.Duration
	Dropped  uint64 // ticks skipped by catch-up limiting
	Finished bool   // audio reached end of file
	Frozen   bool   // ticking stopped at end of file; reset and clear are ignored
}

// Broadcaster keeps the latest frame behind an atomic pointer and notifies
// listeners. Readers that only poll use Latest; readers that want to wake up
// on new frames Subscribe.
type Broadcaster struct {
	latest    atomic.Pointer[Frame]
	published atomic.Uint64

	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	closed    bool
}

// Listener is woken with the newest frame. Its channel holds one frame; a
// slow listener only ever sees the most recent one.
type Listener struct {
	C    chan *Frame
	done chan struct{}
}

// Done is closed when the listener is unsubscribed or the broadcaster closes.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		listeners: make(map[*Listener]struct{}),
	}
}

// Subscribe registers a new listener. Subscribing to a closed broadcaster
// returns a listener that is already done.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan *Frame, 1),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(l.done)
		return l
	}
	b.listeners[l] = struct{}{}
	return l
}

// Unsubscribe removes a listener and signals it to stop.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.listeners[l]; !ok {
		return
	}
	delete(b.listeners, l)
	close(l.done)
}

// Publish makes f the latest frame and wakes listeners. It never blocks:
// a listener that has not taken its previous frame gets it replaced.
func (b *Broadcaster) Publish(f *Frame) {
	b.latest.Store(f)
	b.published.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for l := range b.listeners {
		select {
		case l.C <- f:
			continue
		default:
		}
		// Listener too slow: swap its stale frame for this one.
		select {
		case <-l.C:
		default:
		}
		select {
		case l.C <- f:
		default:
		}
	}
}

// Latest returns the most recently published frame, or nil before the first.
func (b *Broadcaster) Latest() *Frame {
	return b.latest.Load()
}

// Published returns how many frames have been published.
func (b *Broadcaster) Published() uint64 {
	return b.published.Load()
}

// Close signals every listener to stop. Latest keeps returning the last frame.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for l := range b.listeners {
		delete(b.listeners, l)
		close(l.done)
	}
}
