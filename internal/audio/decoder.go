package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
)

// ErrUnsupportedFormat is returned by Open for files that are neither WAV
// nor Ogg Opus.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

const (
	resampleQuality = 4
	sniffSize       = 512
)

// DecodeOptions selects the PCM layout the decoder produces regardless of
// the file's own rate and channel count.
type DecodeOptions struct {
	SampleRate int
	Channels   int
}

// Stream is an opened, decodable audio file producing Frames at the
// requested rate and channel count.
type Stream struct {
	path       string
	streamer   beep.Streamer
	closers    []io.Closer
	sampleRate int
	channels   int
	length     int // frames at the output rate, -1 when unknown
	buf        [][2]float64
}

// Open sniffs and opens an audio file. Unsupported or corrupt files fail here
// so the pipeline never starts on them.
func Open(path string, opts DecodeOptions) (*Stream, error) {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.Channels != 1 {
		opts.Channels = DefaultChannels
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	br := bufio.NewReaderSize(f, 4096)
	head, _ := br.Peek(sniffSize)

	var (
		streamer beep.Streamer
		format   beep.Format
		length   = -1
		closers  []io.Closer
	)
	switch {
	case isWAV(head):
		s, fm, err := wav.Decode(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("decode wav %s: %w", path, err)
		}
		streamer, format, length = s, fm, s.Len()
	case isOggOpus(head):
		s, fm, err := decodeOpus(br, head)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("decode opus %s: %w", path, err)
		}
		streamer, format = s, fm
		closers = append(closers, s)
	default:
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	closers = append(closers, f)

	target := beep.SampleRate(opts.SampleRate)
	if format.SampleRate != target {
		streamer = beep.Resample(resampleQuality, format.SampleRate, target, streamer)
		if length >= 0 {
			length = int(int64(length) * int64(target) / int64(format.SampleRate))
		}
	}

	return &Stream{
		path:       path,
		streamer:   streamer,
		closers:    closers,
		sampleRate: opts.SampleRate,
		channels:   opts.Channels,
		length:     length,
	}, nil
}

// Read decodes up to n frames. It returns io.EOF once the file is drained.
func (s *Stream) Read(n int) (Frame, error) {
	if cap(s.buf) < n {
		s.buf = make([][2]float64, n)
	}
	buf := s.buf[:n]

	filled := 0
	for filled < n {
		k, ok := s.streamer.Stream(buf[filled:])
		filled += k
		if !ok || k == 0 {
			break
		}
	}
	if filled == 0 {
		if err := s.streamer.Err(); err != nil {
			return Frame{}, fmt.Errorf("decode %s: %w", s.path, err)
		}
		return Frame{}, io.EOF
	}

	out := make([]float32, filled*s.channels)
	for i, sample := range buf[:filled] {
		if s.channels == 1 {
			out[i] = float32((sample[0] + sample[1]) / 2)
			continue
		}
		out[i*2] = float32(sample[0])
		out[i*2+1] = float32(sample[1])
	}
	return Frame{Samples: out, SampleRate: s.sampleRate, Channels: s.channels}, nil
}

// Duration returns the total length of the file, or 0 when the container
// does not say.
func (s *Stream) Duration() time.Duration {
	if s.length < 0 {
		return 0
	}
	return time.Duration(s.length) * time.Second / time.Duration(s.sampleRate)
}

func (s *Stream) SampleRate() int { return s.sampleRate }
func (s *Stream) Channels() int   { return s.channels }

// Close releases the decoder and the underlying file.
func (s *Stream) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func isWAV(head []byte) bool {
	return len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE"))
}

func isOggOpus(head []byte) bool {
	return len(head) >= 4 && bytes.Equal(head[0:4], []byte("OggS")) && bytes.Contains(head, []byte("OpusHead"))
}

// Float32ToBytes converts samples to little-endian float32 bytes.
func Float32ToBytes(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}
