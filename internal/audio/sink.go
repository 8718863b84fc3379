package audio

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoDevice is returned when no audio output device can be opened.
var ErrNoDevice = errors.New("no audio output device")

// Sink consumes decoded audio at playback rate. Play blocks while the sink
// has no room, which makes the sink the pipeline's audio clock.
type Sink interface {
	Play(ctx context.Context, f Frame) error
	Close() error
}

// ClockSink discards audio but paces Play in real time, for muted or
// headless runs. It keeps one frame of lead, like a device buffer.
type ClockSink struct {
	next time.Time
}

// NewClockSink creates a silent real-time sink.
func NewClockSink() *ClockSink {
	return &ClockSink{}
}

// Play returns once the previously accepted frame has finished "playing".
func (s *ClockSink) Play(ctx context.Context, f Frame) error {
	now := time.Now()
	if s.next.IsZero() || now.After(s.next) {
		s.next = now
	}
	if wait := s.next.Sub(now); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	s.next = s.next.Add(f.Duration())
	return nil
}

func (s *ClockSink) Close() error { return nil }

// byteQueue sits between Play and a pull-model device callback. Reads never
// block: an underrun is padded with silence. Writes block while more than
// limit bytes are pending.
type byteQueue struct {
	mu      sync.Mutex
	pending []byte
	limit   int
	space   chan struct{}
}

func newByteQueue(limit int) *byteQueue {
	return &byteQueue{
		limit: limit,
		space: make(chan struct{}, 1),
	}
}

// Read implements io.Reader for the device player.
func (q *byteQueue) Read(p []byte) (int, error) {
	q.mu.Lock()
	// Whole float32 samples only, so padding never shifts sample alignment.
	n := copy(p[:len(p)&^3], q.pending)
	q.pending = q.pending[n:]
	q.mu.Unlock()

	clear(p[n:])
	if n > 0 {
		select {
		case q.space <- struct{}{}:
		default:
		}
	}
	return len(p), nil
}

func (q *byteQueue) write(ctx context.Context, b []byte) error {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 || len(q.pending)+len(b) <= q.limit {
			q.pending = append(q.pending, b...)
			q.mu.Unlock()
			return nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.space:
		}
	}
}

// buffered returns the number of bytes waiting for the device.
func (q *byteQueue) buffered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
