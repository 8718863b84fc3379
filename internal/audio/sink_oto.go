//go:build !headless

package audio

import (
	"context"
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"
)

const deviceLatency = 100 * time.Millisecond

// DeviceSink plays audio on the default output device through oto.
type DeviceSink struct {
	ctx    *oto.Context
	player *oto.Player
	queue  *byteQueue
}

// NewDeviceSink opens the default output device. Only one device sink may
// exist per process.
func NewDeviceSink(sampleRate, channels int) (Sink, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   deviceLatency / 2,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	<-ready

	bytesPerSecond := sampleRate * channels * 4
	queue := newByteQueue(int(int64(bytesPerSecond) * int64(deviceLatency) / int64(time.Second)))
	player := ctx.NewPlayer(queue)
	player.Play()

	return &DeviceSink{ctx: ctx, player: player, queue: queue}, nil
}

// Play queues the frame for the device, blocking while the device is behind.
func (s *DeviceSink) Play(ctx context.Context, f Frame) error {
	return s.queue.write(ctx, Float32ToBytes(f.Samples))
}

// Close stops playback. Audio still queued is discarded.
func (s *DeviceSink) Close() error {
	return s.player.Close()
}
