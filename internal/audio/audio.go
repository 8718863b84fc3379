package audio

import "time"

const (
	DefaultSampleRate = 44100
	DefaultChannels   = 2
	DefaultChunkSize  = 1024 // frames per channel per chunk
	DefaultQueueDepth = 8    // chunks buffered between decoder and playback
	FadeDuration      = 10 * time.Millisecond
)

// Frame is a block of interleaved PCM samples in [-1, 1]. It is not modified
// after it has been sent on a pipeline channel.
type Frame struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Len returns the number of frames per channel.
func (f Frame) Len() int {
	if f.Channels <= 0 {
		return 0
	}
	return len(f.Samples) / f.Channels
}

// Duration returns the playback time covered by the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Len()) * time.Second / time.Duration(f.SampleRate)
}

// Mono folds the channels into a single channel by averaging.
func (f Frame) Mono() []float32 {
	if f.Channels <= 1 {
		out := make([]float32, len(f.Samples))
		copy(out, f.Samples)
		return out
	}
	n := f.Len()
	out := make([]float32, n)
	scale := 1 / float32(f.Channels)
	for i := range n {
		var sum float32
		for c := range f.Channels {
			sum += f.Samples[i*f.Channels+c]
		}
		out[i] = sum * scale
	}
	return out
}
