// Package coordinator runs the audio, analysis and simulation clocks and
// publishes grid frames for rendering.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/satindergrewal/soundscape/internal/analyzer"
	"github.com/satindergrewal/soundscape/internal/audio"
	"github.com/satindergrewal/soundscape/internal/life"
	"github.com/satindergrewal/soundscape/internal/rules"
	"github.com/satindergrewal/soundscape/internal/stream"
)

const (
	DefaultTickRate   = 30.0
	DefaultMaxCatchUp = 3
)

// EndPolicy decides what the simulation does once the audio file ends.
type EndPolicy uint8

const (
	// Freeze stops ticking and leaves the last grid on screen.
	Freeze EndPolicy = iota
	// Idle keeps ticking under neutral rules with zero band energy.
	Idle
)

func (p EndPolicy) String() string {
	if p == Idle {
		return "idle"
	}
	return "freeze"
}

// ParseEndPolicy accepts "freeze" or "idle".
func ParseEndPolicy(s string) (EndPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "freeze":
		return Freeze, nil
	case "idle":
		return Idle, nil
	}
	return Freeze, fmt.Errorf("unknown end-of-stream policy %q", s)
}

// Config holds coordinator parameters.
type Config struct {
	TickRate    float64 // simulation ticks per second
	MaxCatchUp  int     // ticks allowed in one update after a stall
	Hop         int     // samples between analysis windows; 0 means half a window
	Sensitivity rules.Sensitivity
	EndPolicy   EndPolicy
	Duration    time.Duration // file length for status, 0 if unknown
}

// Source produces decoded audio chunks. Frames is closed when Run returns.
// *audio.Pipeline implements it.
type Source interface {
	Run(ctx context.Context) error
	Frames() <-chan audio.Frame
}

// Status is a point-in-time view for UIs.
type Status struct {
	Position time.Duration
	Duration time.Duration
	Bands    analyzer.BandEnergies
	PeakHz   float64
	Rules    rules.EffectiveRules
	Ticks    uint64
	Dropped  uint64
	Finished bool
	Frozen   bool
}

// Coordinator owns the decode stream, plays it through a sink, analyzes what
// was played and steps the engine at its own rate.
type Coordinator struct {
	cfg      Config
	src      Source
	sink     audio.Sink
	an       *analyzer.Analyzer
	eng      *life.Engine
	out      *stream.Broadcaster
	sched    *Scheduler
	windower *analyzer.Windower

	mu       sync.RWMutex
	bands    analyzer.BandEnergies
	peakHz   float64
	rules    rules.EffectiveRules
	position time.Duration
	err      error

	ticks    atomic.Uint64
	dropped  atomic.Uint64
	finished atomic.Bool
	frozen   atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// New wires a coordinator. The engine must not be stepped by anyone else.
func New(cfg Config, src Source, sink audio.Sink, an *analyzer.Analyzer, eng *life.Engine, out *stream.Broadcaster) *Coordinator {
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultTickRate
	}
	if cfg.MaxCatchUp <= 0 {
		cfg.MaxCatchUp = DefaultMaxCatchUp
	}
	size := an.WindowSize()
	hop := cfg.Hop
	if hop <= 0 {
		hop = size / 2
	}
	return &Coordinator{
		cfg:      cfg,
		src:      src,
		sink:     sink,
		an:       an,
		eng:      eng,
		out:      out,
		sched:    NewScheduler(cfg.TickRate, cfg.MaxCatchUp),
		windower: analyzer.NewWindower(size, hop),
		rules:    rules.Neutral(),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run blocks until the pipeline ends: end of file under Freeze, Stop, ctx
// cancellation, or a decode or playback error, which is returned.
// Shutdown is ordered: decoding stops, then playback and analysis, then the
// tick loop. The caller closes the sink and window afterwards.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	c.publish(c.eng.Snapshot(), rules.Neutral(), analyzer.BandEnergies{}, 0)

	g, gctx := errgroup.WithContext(ctx)
	srcErr := make(chan error, 1)
	audioDone := make(chan struct{})

	g.Go(func() error {
		err := c.src.Run(gctx)
		srcErr <- err
		if err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer close(audioDone)
		return c.audioLoop(gctx, srcErr)
	})
	g.Go(func() error {
		return c.tickLoop(gctx, audioDone)
	})

	err := g.Wait()
	if err != nil {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		log.Printf("Pipeline stopped: %v", err)
	}
	return err
}

// audioLoop plays each chunk, then analyzes it, so band energies follow what
// is audible rather than what was decoded.
func (c *Coordinator) audioLoop(ctx context.Context, srcErr <-chan error) error {
	frames := c.src.Frames()
	for {
		var (
			f  audio.Frame
			ok bool
		)
		select {
		case <-ctx.Done():
			return nil
		case f, ok = <-frames:
		}
		if !ok {
			if err := <-srcErr; err != nil {
				return nil // reported by the decode goroutine
			}
			if ctx.Err() != nil {
				return nil
			}
			c.finished.Store(true)
			if c.cfg.EndPolicy == Idle {
				// Idle ticks see silence from here on.
				c.an.Reset()
				c.windower.Reset()
				c.mu.Lock()
				c.bands, c.peakHz = analyzer.BandEnergies{}, 0
				c.mu.Unlock()
			}
			log.Println("Playback finished")
			return nil
		}

		if err := c.sink.Play(ctx, f); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("playback: %w", err)
		}

		var (
			bands    analyzer.BandEnergies
			analyzed bool
		)
		c.windower.Push(f.Mono(), func(win []float32) {
			bands = c.an.Analyze(win, f.SampleRate)
			analyzed = true
		})

		c.mu.Lock()
		c.position += f.Duration()
		if analyzed {
			c.bands = bands
			c.peakHz = c.an.PeakFrequency()
		}
		c.mu.Unlock()
	}
}

func (c *Coordinator) tickLoop(ctx context.Context, audioDone <-chan struct{}) error {
	ticker := time.NewTicker(c.sched.Step())
	defer ticker.Stop()
	c.sched.Advance(time.Now())

	audioEnded := audioDone
	for {
		select {
		case <-ctx.Done():
			// Ticking stops only after playback has.
			<-audioDone
			return nil
		case <-audioEnded:
			audioEnded = nil
			if !c.finished.Load() {
				continue
			}
			if c.cfg.EndPolicy == Freeze {
				c.frozen.Store(true)
				c.mu.RLock()
				bands, peakHz := c.bands, c.peakHz
				c.mu.RUnlock()
				c.publish(c.eng.Snapshot(), c.lastRules(), bands, peakHz)
				log.Printf("Simulation frozen at generation %d", c.eng.Generation())
				return nil
			}
			log.Println("Audio ended, simulation idling")
		case now := <-ticker.C:
			c.Update(now)
		}
	}
}

// Update runs the ticks due at now, at most MaxCatchUp, and publishes one
// frame if any ran. Every tick in the batch uses the same rules, derived from
// the latest completed band energies. Only the tick goroutine may call it.
func (c *Coordinator) Update(now time.Time) int {
	n := c.sched.Advance(now)
	if dropped := c.sched.Dropped(); dropped != c.dropped.Load() {
		log.Printf("Simulation stalled, skipped %d ticks", dropped-c.dropped.Load())
		c.dropped.Store(dropped)
	}
	if n == 0 {
		return 0
	}

	c.mu.RLock()
	bands, peakHz := c.bands, c.peakHz
	c.mu.RUnlock()

	r := rules.Modulate(bands, c.cfg.Sensitivity)
	if c.finished.Load() && c.cfg.EndPolicy == Idle {
		r = rules.Neutral()
		bands, peakHz = analyzer.BandEnergies{}, 0
	}
	for range n {
		c.eng.Step(r)
	}
	c.ticks.Add(uint64(n))
	c.publish(c.eng.Snapshot(), r, bands, peakHz)
	return n
}

func (c *Coordinator) publish(snap *life.Snapshot, r rules.EffectiveRules, bands analyzer.BandEnergies, peakHz float64) {
	c.mu.Lock()
	c.rules = r
	pos := c.position
	c.mu.Unlock()

	c.out.Publish(&stream.Frame{
		Snapshot: snap,
		Bands:    bands,
		PeakHz:   peakHz,
		Rules:    r,
		Position: pos,
		Duration: c.cfg.Duration,
		Dropped:  c.dropped.Load(),
		Finished: c.finished.Load(),
		Frozen:   c.frozen.Load(),
	})
}

func (c *Coordinator) lastRules() rules.EffectiveRules {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rules
}

// Reset reseeds the grid at the next tick boundary. It is ignored once the
// simulation has frozen at end of file.
func (c *Coordinator) Reset() {
	if c.frozen.Load() {
		log.Println("Simulation frozen, reset ignored")
		return
	}
	c.eng.RequestReset()
}

// Clear empties the grid at the next tick boundary. It is ignored once the
// simulation has frozen at end of file.
func (c *Coordinator) Clear() {
	if c.frozen.Load() {
		log.Println("Simulation frozen, clear ignored")
		return
	}
	c.eng.RequestClear()
}

// Stop ends Run. Safe to call more than once and from any goroutine.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Done is closed when Run returns.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns the terminal error Run returned, if any.
func (c *Coordinator) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Status returns the current pipeline state.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		Position: c.position,
		Duration: c.cfg.Duration,
		Bands:    c.bands,
		PeakHz:   c.peakHz,
		Rules:    c.rules,
		Ticks:    c.ticks.Load(),
		Dropped:  c.dropped.Load(),
		Finished: c.finished.Load(),
		Frozen:   c.frozen.Load(),
	}
}

// IsStopped reports whether err only means the pipeline was asked to stop.
func IsStopped(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}
