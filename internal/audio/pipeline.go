package audio

import (
	"context"
	"io"
	"log"
	"sync"
	"time"
)

// Reader produces decoded audio. *Stream implements it.
type Reader interface {
	Read(n int) (Frame, error)
}

// Pipeline pulls fixed-size chunks from a Reader and hands them to the
// consumer through a bounded queue. A full queue blocks the decoder instead
// of dropping audio.
type Pipeline struct {
	reader    Reader
	chunkSize int
	frameCh   chan Frame
	duration  time.Duration

	mu       sync.RWMutex
	position time.Duration
	chunks   int
}

// NewPipeline creates a pipeline reading chunkSize frames at a time with up
// to queueDepth chunks decoded ahead. duration is the file length, or 0 if
// unknown, and is only reported through Status.
func NewPipeline(r Reader, chunkSize, queueDepth int, duration time.Duration) *Pipeline {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &Pipeline{
		reader:    r,
		chunkSize: chunkSize,
		frameCh:   make(chan Frame, queueDepth),
		duration:  duration,
	}
}

// Frames returns the channel of decoded chunks. It is closed when Run returns.
func (p *Pipeline) Frames() <-chan Frame {
	return p.frameCh
}

// Status returns how much audio has been queued and the total length.
func (p *Pipeline) Status() (position, duration time.Duration) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.position, p.duration
}

// Run decodes until end of file or until ctx is cancelled. The first chunk
// is faded in and the last one faded out so playback starts and stops
// without a click. Decode failures are returned; cancellation is not an
// error.
func (p *Pipeline) Run(ctx context.Context) error {
	defer close(p.frameCh)

	cur, err := p.reader.Read(p.chunkSize)
	if err == io.EOF {
		log.Println("Audio stream is empty")
		return nil
	}
	if err != nil {
		return err
	}
	fadeLen := int(int64(cur.SampleRate) * int64(FadeDuration) / int64(time.Second))
	Fade(cur.Samples, cur.Channels, fadeLen, 0, 1)

	// One chunk of lookahead so the final chunk can be faded out.
	for {
		next, err := p.reader.Read(p.chunkSize)
		last := err == io.EOF
		if err != nil && !last {
			return err
		}
		if last {
			FadeOutTail(cur.Samples, cur.Channels, fadeLen)
		}

		if !p.sendFrame(ctx, cur) {
			return nil
		}
		if last {
			pos, _ := p.Status()
			log.Printf("Decoded %d chunks (%s)", p.chunks, pos.Round(time.Millisecond))
			return nil
		}
		cur = next
	}
}

// sendFrame blocks until the consumer takes the frame. Returns false on cancel.
func (p *Pipeline) sendFrame(ctx context.Context, f Frame) bool {
	select {
	case p.frameCh <- f:
	case <-ctx.Done():
		return false
	}
	p.mu.Lock()
	p.position += f.Duration()
	p.chunks++
	p.mu.Unlock()
	return true
}
