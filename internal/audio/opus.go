package audio

import (
	"bytes"
	"errors"
	"io"

	"github.com/gopxl/beep/v2"
	"gopkg.in/hraban/opus.v2"
)

// Ogg Opus always decodes at 48 kHz.
const opusSampleRate = 48000

// opusStreamer adapts an Ogg Opus stream to beep.Streamer.
type opusStreamer struct {
	stream   *opus.Stream
	channels int
	pcm      []float32
	err      error
}

func decodeOpus(r io.Reader, head []byte) (*opusStreamer, beep.Format, error) {
	channels := opusChannels(head)
	if channels == 0 {
		return nil, beep.Format{}, errors.New("missing OpusHead channel count")
	}
	s, err := opus.NewStream(r)
	if err != nil {
		return nil, beep.Format{}, err
	}
	format := beep.Format{
		SampleRate:  opusSampleRate,
		NumChannels: min(channels, 2),
		Precision:   4,
	}
	return &opusStreamer{stream: s, channels: channels}, format, nil
}

// opusChannels reads the channel count from the OpusHead identification
// header: magic(8) version(1) channels(1).
func opusChannels(head []byte) int {
	i := bytes.Index(head, []byte("OpusHead"))
	if i < 0 || i+9 >= len(head) {
		return 0
	}
	return int(head[i+9])
}

func (o *opusStreamer) Stream(samples [][2]float64) (int, bool) {
	if o.err != nil {
		return 0, false
	}
	filled := 0
	for filled < len(samples) {
		want := (len(samples) - filled) * o.channels
		if cap(o.pcm) < want {
			o.pcm = make([]float32, want)
		}
		n, err := o.stream.ReadFloat32(o.pcm[:want])
		if err == io.EOF {
			break
		}
		if err != nil {
			o.err = err
			break
		}
		if n == 0 {
			break
		}
		for i := range n {
			l := float64(o.pcm[i*o.channels])
			r := l
			if o.channels > 1 {
				r = float64(o.pcm[i*o.channels+1])
			}
			samples[filled+i] = [2]float64{l, r}
		}
		filled += n
	}
	return filled, filled > 0
}

func (o *opusStreamer) Err() error {
	return o.err
}

func (o *opusStreamer) Close() error {
	return o.stream.Close()
}
