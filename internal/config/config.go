package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Config holds all runtime configuration. It is built once at startup and
// passed by value into each component.
type Config struct {
	Window        WindowConfig        `toml:"window"`
	Audio         AudioConfig         `toml:"audio"`
	Simulation    SimulationConfig    `toml:"simulation"`
	Visualization VisualizationConfig `toml:"visualization"`
}

type WindowConfig struct {
	Title      string `toml:"title"`
	Width      int    `toml:"width"`
	Height     int    `toml:"height"`
	Fullscreen bool   `toml:"fullscreen"`
}

// AudioConfig covers decoding, playback chunking and spectral analysis.
type AudioConfig struct {
	SampleRate  int         `toml:"sample_rate"`
	Channels    int         `toml:"channels"`
	FFTSize     int         `toml:"fft_size"`
	Hop         int         `toml:"hop"`         // samples between analysis windows; 0 means fft_size/2
	ChunkSize   int         `toml:"chunk_size"`  // frames per decoded chunk
	QueueDepth  int         `toml:"queue_depth"` // decoded chunks buffered ahead of playback
	BassRange   [2]float64  `toml:"bass_range"`
	MidRange    [2]float64  `toml:"mid_range"`
	TrebleRange [2]float64  `toml:"treble_range"`
	PeakDecay   float64     `toml:"peak_decay"`
	Sensitivity Sensitivity `toml:"sensitivity"`
}

// Sensitivity scales each band before it is mapped onto a rule parameter.
type Sensitivity struct {
	Bass   float64 `toml:"bass"`
	Mid    float64 `toml:"mid"`
	Treble float64 `toml:"treble"`
}

type SimulationConfig struct {
	Width          int     `toml:"width"`
	Height         int     `toml:"height"`
	UpdateRate     float64 `toml:"update_rate"`  // ticks per second
	InitialDensity float64 `toml:"initial_seed"` // random fill density, 0 starts clear
	EdgeBehavior   string  `toml:"edge_behavior"`
	MaxCatchUp     int     `toml:"max_catch_up"` // ticks allowed in one wall-clock update
	Seed           uint64  `toml:"seed"`         // 0 picks a random seed
	EndOfStream    string  `toml:"end_of_stream"`
}

type VisualizationConfig struct {
	CellSize    int     `toml:"cell_size"`
	ColorScheme string  `toml:"color_scheme"`
	FadeRate    float64 `toml:"fade_rate"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Window: WindowConfig{
			Title:  "Soundscape Evolution",
			Width:  800,
			Height: 600,
		},
		Audio: AudioConfig{
			SampleRate:  44100,
			Channels:    2,
			FFTSize:     2048,
			ChunkSize:   1024,
			QueueDepth:  8,
			BassRange:   [2]float64{20, 250},
			MidRange:    [2]float64{250, 2000},
			TrebleRange: [2]float64{2000, 20000},
			PeakDecay:   0.98,
			Sensitivity: Sensitivity{Bass: 1, Mid: 1, Treble: 0.05},
		},
		Simulation: SimulationConfig{
			Width:          200,
			Height:         150,
			UpdateRate:     30,
			InitialDensity: 0.3,
			EdgeBehavior:   "wrap",
			MaxCatchUp:     3,
			EndOfStream:    "freeze",
		},
		Visualization: VisualizationConfig{
			CellSize:    4,
			ColorScheme: "pulse",
			FadeRate:    0.1,
		},
	}
}

// Load builds the configuration from defaults, an optional TOML file and
// environment overrides, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Config{}, fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalid, path, strings.Join(keys, ", "))
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Audio.SampleRate = envInt("SOUNDSCAPE_SAMPLE_RATE", c.Audio.SampleRate)
	c.Audio.FFTSize = envInt("SOUNDSCAPE_FFT_SIZE", c.Audio.FFTSize)
	c.Simulation.Width = envInt("SOUNDSCAPE_GRID_WIDTH", c.Simulation.Width)
	c.Simulation.Height = envInt("SOUNDSCAPE_GRID_HEIGHT", c.Simulation.Height)
	c.Simulation.UpdateRate = envFloat("SOUNDSCAPE_TICK_RATE", c.Simulation.UpdateRate)
	c.Simulation.InitialDensity = envFloat("SOUNDSCAPE_DENSITY", c.Simulation.InitialDensity)
	c.Simulation.EdgeBehavior = envStr("SOUNDSCAPE_EDGE", c.Simulation.EdgeBehavior)
	c.Simulation.EndOfStream = envStr("SOUNDSCAPE_END_OF_STREAM", c.Simulation.EndOfStream)
	c.Visualization.ColorScheme = envStr("SOUNDSCAPE_SCHEME", c.Visualization.ColorScheme)
	c.Visualization.CellSize = envInt("SOUNDSCAPE_CELL_SIZE", c.Visualization.CellSize)
	c.Window.Fullscreen = envBool("SOUNDSCAPE_FULLSCREEN", c.Window.Fullscreen)
}

// Validate rejects out-of-range values. It runs once at startup so nothing
// is discovered mid-run.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.Window.Width > 0 && c.Window.Height > 0, "window size %dx%d", c.Window.Width, c.Window.Height)

	a := c.Audio
	check(a.SampleRate > 0, "audio.sample_rate %d", a.SampleRate)
	check(a.Channels == 1 || a.Channels == 2, "audio.channels %d (want 1 or 2)", a.Channels)
	check(isPowerOfTwo(a.FFTSize), "audio.fft_size %d is not a power of two", a.FFTSize)
	check(a.Hop >= 0 && a.Hop <= a.FFTSize, "audio.hop %d outside [0, fft_size]", a.Hop)
	check(a.ChunkSize > 0, "audio.chunk_size %d", a.ChunkSize)
	check(a.QueueDepth > 0, "audio.queue_depth %d", a.QueueDepth)
	for name, r := range map[string][2]float64{"bass_range": a.BassRange, "mid_range": a.MidRange, "treble_range": a.TrebleRange} {
		check(r[0] >= 0 && r[1] > r[0], "audio.%s %v", name, r)
	}
	check(a.PeakDecay > 0 && a.PeakDecay <= 1, "audio.peak_decay %v", a.PeakDecay)
	check(a.Sensitivity.Bass >= 0 && a.Sensitivity.Mid >= 0 && a.Sensitivity.Treble >= 0, "audio.sensitivity %+v", a.Sensitivity)

	s := c.Simulation
	check(s.Width > 0 && s.Height > 0, "simulation grid %dx%d", s.Width, s.Height)
	check(s.UpdateRate > 0, "simulation.update_rate %v", s.UpdateRate)
	check(s.InitialDensity >= 0 && s.InitialDensity <= 1, "simulation.initial_seed %v", s.InitialDensity)
	check(oneOf(s.EdgeBehavior, "wrap", "dead", "alive"), "simulation.edge_behavior %q", s.EdgeBehavior)
	check(s.MaxCatchUp > 0, "simulation.max_catch_up %d", s.MaxCatchUp)
	check(oneOf(s.EndOfStream, "freeze", "idle"), "simulation.end_of_stream %q", s.EndOfStream)

	v := c.Visualization
	check(v.CellSize > 0, "visualization.cell_size %d", v.CellSize)
	check(oneOf(v.ColorScheme, "classic", "heat", "rainbow", "pulse"), "visualization.color_scheme %q", v.ColorScheme)
	check(v.FadeRate >= 0 && v.FadeRate <= 1, "visualization.fade_rate %v", v.FadeRate)

	return errors.Join(errs...)
}

// AnalysisHop returns the effective hop between analysis windows.
func (a AudioConfig) AnalysisHop() int {
	if a.Hop == 0 {
		return a.FFTSize / 2
	}
	return a.Hop
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if strings.EqualFold(v, o) {
			return true
		}
	}
	return false
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
