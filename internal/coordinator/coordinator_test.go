package coordinator

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/satindergrewal/soundscape/internal/analyzer"
	"github.com/satindergrewal/soundscape/internal/audio"
	"github.com/satindergrewal/soundscape/internal/life"
	"github.com/satindergrewal/soundscape/internal/rules"
	"github.com/satindergrewal/soundscape/internal/stream"
)

// --- fakes ---

type fakeSource struct {
	frames []audio.Frame
	err    error
	block  bool // wait for cancel after the last frame instead of ending
	ch     chan audio.Frame
}

func newFakeSource(frames []audio.Frame) *fakeSource {
	return &fakeSource{frames: frames, ch: make(chan audio.Frame, 2)}
}

func (s *fakeSource) Frames() <-chan audio.Frame { return s.ch }

func (s *fakeSource) Run(ctx context.Context) error {
	defer close(s.ch)
	for _, f := range s.frames {
		select {
		case s.ch <- f:
		case <-ctx.Done():
			return nil
		}
	}
	if s.block {
		<-ctx.Done()
		return nil
	}
	return s.err
}

type fakeSink struct {
	mu     sync.Mutex
	played int
	err    error
	delay  time.Duration
}

func (s *fakeSink) Play(ctx context.Context, f audio.Frame) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.played++
	return nil
}

func (s *fakeSink) Close() error { return nil }

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.played
}

func sineFrames(freq float64, chunks, chunkSize, rate int) []audio.Frame {
	var out []audio.Frame
	for c := range chunks {
		samples := make([]float32, chunkSize)
		for i := range samples {
			n := c*chunkSize + i
			samples[i] = float32(0.8 * math.Sin(2*math.Pi*freq*float64(n)/float64(rate)))
		}
		out = append(out, audio.Frame{Samples: samples, SampleRate: rate, Channels: 1})
	}
	return out
}

type harness struct {
	c   *Coordinator
	eng *life.Engine
	out *stream.Broadcaster
}

func newHarness(t *testing.T, cfg Config, src Source, sink audio.Sink, grid life.Config) harness {
	t.Helper()
	an, err := analyzer.New(analyzer.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	eng, err := life.New(grid, rand.New(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatal(err)
	}
	out := stream.NewBroadcaster()
	return harness{c: New(cfg, src, sink, an, eng, out), eng: eng, out: out}
}

func runAsync(c *Coordinator, ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	return errCh
}

func waitRun(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

// --- Scheduler ---

func TestSchedulerSteadyRate(t *testing.T) {
	s := NewScheduler(30, 3)
	t0 := time.Unix(1000, 0)
	if n := s.Advance(t0); n != 0 {
		t.Fatalf("first Advance = %d, want 0", n)
	}
	total := 0
	for i := 1; i <= 30; i++ {
		total += s.Advance(t0.Add(time.Duration(i) * time.Second / 30))
	}
	if total != 30 {
		t.Errorf("ticks over one second = %d, want 30", total)
	}
	if s.Dropped() != 0 {
		t.Errorf("Dropped = %d, want 0", s.Dropped())
	}
}

func TestSchedulerCarriesFraction(t *testing.T) {
	s := NewScheduler(10, 3) // 100ms per tick
	t0 := time.Unix(0, 0).Add(time.Hour)
	s.Advance(t0)
	got := []int{
		s.Advance(t0.Add(60 * time.Millisecond)),
		s.Advance(t0.Add(120 * time.Millisecond)),
		s.Advance(t0.Add(180 * time.Millisecond)),
		s.Advance(t0.Add(240 * time.Millisecond)),
	}
	want := []int{0, 1, 0, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Advance #%d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSchedulerBoundsCatchUp(t *testing.T) {
	s := NewScheduler(30, 3)
	t0 := time.Unix(5000, 0)
	s.Advance(t0)

	// 10 seconds stalled: 300 ticks due, only 3 may run.
	if n := s.Advance(t0.Add(10 * time.Second)); n != 3 {
		t.Errorf("Advance after stall = %d, want 3", n)
	}
	if s.Dropped() != 297 {
		t.Errorf("Dropped = %d, want 297", s.Dropped())
	}
	// No backlog remains: the next frame runs a normal single tick.
	if n := s.Advance(t0.Add(10*time.Second + time.Second/30)); n != 1 {
		t.Errorf("Advance after recovery = %d, want 1", n)
	}
}

func TestSchedulerIgnoresBackwardsTime(t *testing.T) {
	s := NewScheduler(30, 3)
	t0 := time.Unix(100, 0)
	s.Advance(t0)
	if n := s.Advance(t0.Add(-time.Second)); n != 0 {
		t.Errorf("Advance backwards = %d, want 0", n)
	}
}

func TestParseEndPolicy(t *testing.T) {
	if p, err := ParseEndPolicy("IDLE"); err != nil || p != Idle {
		t.Errorf("ParseEndPolicy(IDLE) = %v, %v", p, err)
	}
	if p, err := ParseEndPolicy("freeze"); err != nil || p != Freeze {
		t.Errorf("ParseEndPolicy(freeze) = %v, %v", p, err)
	}
	if _, err := ParseEndPolicy("loop"); err == nil {
		t.Error("ParseEndPolicy(loop) should fail")
	}
}

// --- Update ---

func TestUpdateBoundsCatchUpAfterStall(t *testing.T) {
	h := newHarness(t, Config{TickRate: 30, MaxCatchUp: 3}, newFakeSource(nil), &fakeSink{}, life.Config{Width: 16, Height: 16, Density: 0.3})

	t0 := time.Unix(2000, 0)
	h.c.Update(t0)
	// Decode stalled for 50 tick intervals.
	if n := h.c.Update(t0.Add(50 * time.Second / 30)); n != 3 {
		t.Errorf("Update after stall = %d ticks, want 3", n)
	}
	if g := h.eng.Generation(); g != 3 {
		t.Errorf("Generation = %d, want 3", g)
	}
	if h.out.Published() != 1 {
		t.Errorf("Published = %d, want one frame per update", h.out.Published())
	}
	st := h.c.Status()
	if st.Ticks != 3 || st.Dropped != 47 {
		t.Errorf("Status ticks/dropped = %d/%d, want 3/47", st.Ticks, st.Dropped)
	}
	if f := h.out.Latest(); f.Dropped != 47 {
		t.Errorf("Frame.Dropped = %d, want 47", f.Dropped)
	}
}

func TestUpdateUsesLatestBands(t *testing.T) {
	h := newHarness(t, Config{Sensitivity: rules.Sensitivity{Bass: 1, Mid: 1, Treble: 0}}, newFakeSource(nil), &fakeSink{}, life.Config{Width: 8, Height: 8})
	h.c.mu.Lock()
	h.c.bands = analyzer.BandEnergies{Bass: 0.5, Mid: 0.9}
	h.c.mu.Unlock()

	t0 := time.Unix(3000, 0)
	h.c.Update(t0)
	h.c.Update(t0.Add(time.Second / 30))

	f := h.out.Latest()
	if f.Rules.BirthBias != 0.5 || f.Rules.Survival != rules.Relaxed {
		t.Errorf("published rules = %+v, want birth 0.5 relaxed", f.Rules)
	}
	if f.Bands.Bass != 0.5 {
		t.Errorf("published bands = %+v", f.Bands)
	}
}

func TestClearNeverMixesSnapshots(t *testing.T) {
	h := newHarness(t, Config{TickRate: 30}, newFakeSource(nil), &fakeSink{}, life.Config{Width: 16, Height: 16})
	// A block is stable under every survival variant the zero bands select.
	for _, p := range [][2]int{{7, 7}, {8, 7}, {7, 8}, {8, 8}} {
		h.eng.Set(p[0], p[1], true)
	}

	t0 := time.Unix(4000, 0)
	h.c.Update(t0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(time.Millisecond)
		h.c.Clear()
	}()

	cleared := false
	for i := 1; i <= 200; i++ {
		h.c.Update(t0.Add(time.Duration(i) * time.Second / 30))
		snap := h.out.Latest().Snapshot
		pop := snap.Population()
		switch {
		case pop == 0:
			cleared = true
		case pop == 4 && !cleared:
		default:
			t.Fatalf("update %d: population %d (cleared=%v), want a whole block or nothing", i, pop, cleared)
		}
		if i == 100 {
			wg.Wait()
		}
	}
	if !cleared {
		t.Error("clear never took effect")
	}
}

func TestResetAppliesAtTickBoundary(t *testing.T) {
	h := newHarness(t, Config{TickRate: 30}, newFakeSource(nil), &fakeSink{}, life.Config{Width: 32, Height: 32})
	t0 := time.Unix(6000, 0)
	h.c.Update(t0)
	h.c.Update(t0.Add(time.Second / 30))
	before := h.out.Latest().Snapshot

	h.c.Reset()
	if h.eng.Population() != 0 {
		t.Fatal("Reset applied before the tick boundary")
	}
	h.c.Update(t0.Add(2 * time.Second / 30))
	after := h.out.Latest().Snapshot
	if after.Generation != 0 || after.Population() == 0 {
		t.Errorf("after reset: generation %d population %d, want reseeded generation 0", after.Generation, after.Population())
	}
	if before.Population() != 0 {
		t.Errorf("earlier snapshot changed: population %d", before.Population())
	}
}

// --- Run ---

func TestRunFreezesAtEndOfStream(t *testing.T) {
	src := newFakeSource(sineFrames(60, 8, 1024, 44100))
	sink := &fakeSink{}
	h := newHarness(t, Config{TickRate: 200, EndPolicy: Freeze, Duration: time.Second}, src, sink, life.Config{Width: 16, Height: 16, Density: 0.3})

	err := waitRun(t, runAsync(h.c, context.Background()))
	if err != nil {
		t.Fatalf("Run = %v, want nil at end of stream", err)
	}
	if !h.c.Status().Finished {
		t.Error("Finished = false after end of stream")
	}
	if sink.count() != 8 {
		t.Errorf("sink played %d chunks, want 8", sink.count())
	}
	select {
	case <-h.c.Done():
	default:
		t.Error("Done not closed after Run returned")
	}

	f := h.out.Latest()
	if !f.Finished {
		t.Error("last frame not marked finished")
	}
	if f.Duration != time.Second {
		t.Errorf("frame Duration = %v, want 1s", f.Duration)
	}
	st := h.c.Status()
	if want := 8 * (1024 * time.Second / 44100); st.Position != want {
		t.Errorf("Position = %v, want %v", st.Position, want)
	}
	// A 60 Hz tone leaves bass as the loudest band, and the frozen frame
	// carries the last levels.
	if b := st.Bands; b.Bass <= b.Mid || b.Bass <= b.Treble {
		t.Errorf("Bands = %+v, want bass dominant", b)
	}
	if !st.Frozen || !f.Frozen || f.Bands != st.Bands {
		t.Errorf("frozen status %v frame %v, frame bands %+v status bands %+v", st.Frozen, f.Frozen, f.Bands, st.Bands)
	}
}

func TestFrozenIgnoresResetAndClear(t *testing.T) {
	src := newFakeSource(sineFrames(60, 2, 1024, 44100))
	h := newHarness(t, Config{TickRate: 200, EndPolicy: Freeze}, src, &fakeSink{}, life.Config{Width: 16, Height: 16, Density: 0.3})
	if err := waitRun(t, runAsync(h.c, context.Background())); err != nil {
		t.Fatalf("Run = %v", err)
	}

	gen := h.eng.Generation()
	h.c.Reset()
	h.c.Clear()
	// A queued command would replace this step and zero the generation.
	h.eng.Step(rules.Neutral())
	if got := h.eng.Generation(); got != gen+1 {
		t.Errorf("generation = %d after a frozen reset/clear, want %d", got, gen+1)
	}
}

func TestRunIdlesAfterEndOfStream(t *testing.T) {
	src := newFakeSource(sineFrames(800, 2, 1024, 44100))
	h := newHarness(t, Config{TickRate: 200, EndPolicy: Idle}, src, &fakeSink{}, life.Config{Width: 16, Height: 16, Density: 0.3})
	errCh := runAsync(h.c, context.Background())

	deadline := time.After(5 * time.Second)
	for !h.c.Status().Finished {
		select {
		case <-deadline:
			t.Fatal("stream never finished")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Still ticking under neutral rules after the audio ended.
	l := h.out.Subscribe()
	var f *stream.Frame
	for range 3 {
		select {
		case f = <-l.C:
		case <-time.After(2 * time.Second):
			t.Fatal("no frames published while idling")
		}
	}
	if !f.Finished || f.Rules != rules.Neutral() || f.Bands != (analyzer.BandEnergies{}) {
		t.Errorf("idle frame = finished %v rules %+v bands %+v", f.Finished, f.Rules, f.Bands)
	}
	select {
	case <-h.c.Done():
		t.Fatal("Run returned while idling")
	default:
	}
	if st := h.c.Status(); st.Bands != (analyzer.BandEnergies{}) || st.PeakHz != 0 {
		t.Errorf("idle status bands %+v peak %v, want silence like the published frames", st.Bands, st.PeakHz)
	}

	h.c.Stop()
	h.c.Stop()
	if err := waitRun(t, errCh); err != nil {
		t.Errorf("Run after Stop = %v, want nil", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	src := newFakeSource(sineFrames(200, 4, 1024, 44100))
	src.block = true
	sink := &fakeSink{delay: 5 * time.Millisecond}
	h := newHarness(t, Config{TickRate: 60}, src, sink, life.Config{Width: 8, Height: 8})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runAsync(h.c, ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()

	if err := waitRun(t, errCh); err != nil {
		t.Errorf("Run after cancel = %v, want nil", err)
	}
	if h.c.Status().Finished {
		t.Error("cancelled run reported as finished")
	}
	if h.c.Err() != nil {
		t.Errorf("Err = %v, want nil", h.c.Err())
	}
}

func TestRunReturnsDecodeError(t *testing.T) {
	boom := errors.New("corrupt page")
	src := newFakeSource(sineFrames(200, 1, 1024, 44100))
	src.err = boom
	h := newHarness(t, Config{TickRate: 60}, src, &fakeSink{}, life.Config{Width: 8, Height: 8})

	err := waitRun(t, runAsync(h.c, context.Background()))
	if !errors.Is(err, boom) {
		t.Fatalf("Run = %v, want decode error", err)
	}
	if !errors.Is(h.c.Err(), boom) {
		t.Errorf("Err = %v, want decode error", h.c.Err())
	}
	if h.c.Status().Finished {
		t.Error("failed decode reported as finished")
	}
	if IsStopped(err) {
		t.Error("IsStopped true for a decode error")
	}
}

func TestRunReturnsPlaybackError(t *testing.T) {
	src := newFakeSource(sineFrames(200, 4, 1024, 44100))
	src.block = true
	h := newHarness(t, Config{TickRate: 60}, src, &fakeSink{err: audio.ErrNoDevice}, life.Config{Width: 8, Height: 8})

	err := waitRun(t, runAsync(h.c, context.Background()))
	if !errors.Is(err, audio.ErrNoDevice) {
		t.Errorf("Run = %v, want playback error", err)
	}
}

func TestRunWithPipelineSource(t *testing.T) {
	r := &chunkReader{frames: sineFrames(60, 6, 512, 44100)}
	p := audio.NewPipeline(r, 512, 2, 0)
	h := newHarness(t, Config{TickRate: 120}, p, audio.NewClockSink(), life.Config{Width: 8, Height: 8, Density: 0.5})

	if err := waitRun(t, runAsync(h.c, context.Background())); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if !h.c.Status().Finished {
		t.Error("pipeline source did not finish")
	}
	if h.out.Published() < 2 {
		t.Errorf("Published = %d, want initial and final frames at least", h.out.Published())
	}
}

type chunkReader struct {
	frames []audio.Frame
	i      int
}

func (r *chunkReader) Read(int) (audio.Frame, error) {
	if r.i >= len(r.frames) {
		return audio.Frame{}, io.EOF
	}
	f := r.frames[r.i]
	r.i++
	return f, nil
}
