// Package analyzer turns windows of mono PCM into normalized bass, mid and
// treble band energies.
package analyzer

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// ErrWindowSize is returned by New when the analysis window is not a power
// of two.
var ErrWindowSize = errors.New("analysis window size must be a power of two")

// Band is a frequency range in Hz, low inclusive.
type Band [2]float64

// Config controls Analyzer behavior.
type Config struct {
	WindowSize int
	Bass       Band
	Mid        Band
	Treble     Band
	PeakDecay  float64 // running peak multiplier per window, in (0,1]
}

// DefaultConfig returns a 2048-sample window with the standard band split.
func DefaultConfig() Config {
	return Config{
		WindowSize: 2048,
		Bass:       Band{20, 250},
		Mid:        Band{250, 2000},
		Treble:     Band{2000, 20000},
		PeakDecay:  0.98,
	}
}

// BandEnergies holds per-band energy normalized against the running peak.
type BandEnergies struct {
	Bass   float64
	Mid    float64
	Treble float64
}

// Overall returns the mean of the three bands.
func (b BandEnergies) Overall() float64 {
	return (b.Bass + b.Mid + b.Treble) / 3
}

// Analyzer performs FFT band analysis. It keeps a single running peak shared
// by all bands, so the relative loudness of the bands is preserved. Not safe
// for concurrent use.
type Analyzer struct {
	cfg    Config
	window []float64
	buf    []float64

	peak     float64
	peakFreq float64
}

// New validates cfg and precomputes the Hann window.
func New(cfg Config) (*Analyzer, error) {
	if cfg.WindowSize < 2 || cfg.WindowSize&(cfg.WindowSize-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrWindowSize, cfg.WindowSize)
	}
	for name, b := range map[string]Band{"bass": cfg.Bass, "mid": cfg.Mid, "treble": cfg.Treble} {
		if b[0] < 0 || b[1] <= b[0] {
			return nil, fmt.Errorf("invalid %s band %v", name, b)
		}
	}
	if cfg.PeakDecay <= 0 || cfg.PeakDecay > 1 {
		return nil, fmt.Errorf("peak decay %v outside (0,1]", cfg.PeakDecay)
	}

	size := cfg.WindowSize
	a := &Analyzer{
		cfg:    cfg,
		window: make([]float64, size),
		buf:    make([]float64, size),
	}
	for i := range a.window {
		a.window[i] = hann(float64(i), float64(size))
	}
	return a, nil
}

// WindowSize returns the number of samples consumed per analysis.
func (a *Analyzer) WindowSize() int {
	return a.cfg.WindowSize
}

// Analyze returns band energies for one window of mono samples. Windows
// shorter than WindowSize are zero padded; longer ones are truncated. Silence
// and empty input yield zero energy.
func (a *Analyzer) Analyze(samples []float32, sampleRate int) BandEnergies {
	if len(samples) == 0 || sampleRate <= 0 {
		return BandEnergies{}
	}

	size := a.cfg.WindowSize
	for i := range a.buf {
		if i < len(samples) {
			a.buf[i] = float64(samples[i]) * a.window[i]
			continue
		}
		a.buf[i] = 0
	}

	spectrum := fft.FFTReal(a.buf)
	half := size / 2
	// Bin 0 is DC and never belongs to a band.
	mags := make([]float64, half+1)
	var best int
	for k := 1; k <= half; k++ {
		mags[k] = cmplx.Abs(spectrum[k]) / float64(half)
		if mags[k] > mags[best] {
			best = k
		}
	}
	a.peakFreq = float64(best) * float64(sampleRate) / float64(size)

	bass := bandRMS(mags, a.cfg.Bass, size, sampleRate)
	mid := bandRMS(mags, a.cfg.Mid, size, sampleRate)
	treble := bandRMS(mags, a.cfg.Treble, size, sampleRate)

	a.peak *= a.cfg.PeakDecay
	if loudest := max(bass, mid, treble); loudest > a.peak {
		a.peak = loudest
	}
	if a.peak <= 0 || math.IsNaN(a.peak) {
		return BandEnergies{}
	}

	return BandEnergies{
		Bass:   clamp01(bass / a.peak),
		Mid:    clamp01(mid / a.peak),
		Treble: clamp01(treble / a.peak),
	}
}

// PeakFrequency reports the dominant frequency of the last analyzed window.
func (a *Analyzer) PeakFrequency() float64 {
	return a.peakFreq
}

// Reset forgets the running peak.
func (a *Analyzer) Reset() {
	a.peak = 0
	a.peakFreq = 0
}

// bandRMS maps band edges to bins with bin = f * N / sampleRate and returns
// the RMS magnitude of bins [lo, hi).
func bandRMS(mags []float64, b Band, size, sampleRate int) float64 {
	lo := int(b[0] * float64(size) / float64(sampleRate))
	hi := int(b[1] * float64(size) / float64(sampleRate))
	lo = max(lo, 1)
	hi = min(hi, len(mags))
	if lo >= hi {
		return 0
	}
	sum := 0.0
	for _, m := range mags[lo:hi] {
		sum += m * m
	}
	return math.Sqrt(sum / float64(hi-lo))
}

func hann(i, size float64) float64 {
	return 0.5 * (1.0 - math.Cos(2.0*math.Pi*i/size))
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
