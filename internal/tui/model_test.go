package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/satindergrewal/soundscape/internal/analyzer"
	"github.com/satindergrewal/soundscape/internal/life"
	"github.com/satindergrewal/soundscape/internal/rules"
	"github.com/satindergrewal/soundscape/internal/stream"
)

type fakeController struct {
	resets, clears, stops int
}

func (c *fakeController) Reset() { c.resets++ }
func (c *fakeController) Clear() { c.clears++ }
func (c *fakeController) Stop()  { c.stops++ }

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func testFrame() *stream.Frame {
	return &stream.Frame{
		Snapshot: &life.Snapshot{
			Width: 4, Height: 4, Generation: 7,
			Cells: []uint8{
				1, 1, 0, 0,
				1, 0, 0, 0,
				0, 0, 0, 1,
				0, 0, 0, 1,
			},
			Ages: make([]uint8, 16),
		},
		Bands:    analyzer.BandEnergies{Bass: 1, Mid: 0.5, Treble: 0},
		PeakHz:   440,
		Rules:    rules.Neutral(),
		Position: 30 * time.Second,
		Duration: 2 * time.Minute,
	}
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestKeyDispatch(t *testing.T) {
	ctl := &fakeController{}
	var model tea.Model = NewModel("test", stream.NewBroadcaster(), ctl, nil)

	for _, k := range []tea.KeyMsg{runes("r"), {Type: tea.KeySpace}, runes("c"), runes("x")} {
		var cmd tea.Cmd
		model, cmd = model.Update(k)
		if cmd != nil {
			t.Errorf("key %q returned a command", k.String())
		}
	}
	if ctl.resets != 2 || ctl.clears != 1 || ctl.stops != 0 {
		t.Errorf("resets/clears/stops = %d/%d/%d, want 2/1/0", ctl.resets, ctl.clears, ctl.stops)
	}

	for _, k := range []tea.KeyMsg{runes("q"), {Type: tea.KeyCtrlC}} {
		stops := ctl.stops
		_, cmd := model.Update(k)
		if !isQuit(cmd) {
			t.Errorf("key %q did not quit", k.String())
		}
		if ctl.stops != stops+1 {
			t.Errorf("key %q did not stop the pipeline", k.String())
		}
	}
}

func TestQuitWaitsForPipeline(t *testing.T) {
	ctl := &fakeController{}
	done := make(chan struct{})
	out := stream.NewBroadcaster()
	out.Publish(testFrame())
	var model tea.Model = NewModel("test", out, ctl, done)

	model, cmd := model.Update(runes("q"))
	if cmd != nil {
		t.Fatal("quit before the pipeline finished")
	}
	model, cmd = model.Update(StopMsg{})
	if cmd != nil {
		t.Fatal("second stop quit before the pipeline finished")
	}
	if ctl.stops != 1 {
		t.Errorf("stops = %d, want 1", ctl.stops)
	}
	if !strings.Contains(model.View(), "stopping") {
		t.Errorf("view while stopping:\n%s", model.View())
	}

	close(done)
	_, cmd = model.Update(waitDone(done)())
	if !isQuit(cmd) {
		t.Error("dashboard did not quit once the pipeline finished")
	}
}

func TestDoneWithoutQuitKeepsRunning(t *testing.T) {
	out := stream.NewBroadcaster()
	out.Publish(testFrame())
	done := make(chan struct{})
	close(done)

	m := NewModel("test", out, &fakeController{}, done)
	model, cmd := m.Update(waitDone(done)())
	if cmd != nil {
		t.Error("pipeline end quit the dashboard without a key press")
	}
	if !strings.Contains(model.View(), "stopped") {
		t.Errorf("view does not show stopped state:\n%s", model.View())
	}

	// Quitting now is immediate.
	ctl := &fakeController{}
	m = NewModel("test", out, ctl, done)
	model, _ = m.Update(waitDone(done)())
	if _, cmd := model.Update(runes("q")); !isQuit(cmd) {
		t.Error("quit after the pipeline finished did not exit")
	}
}

func TestWakesOnPublishedFrames(t *testing.T) {
	out := stream.NewBroadcaster()
	m := NewModel("test", out, &fakeController{}, nil)
	if m.frame != nil {
		t.Fatal("frame set before anything was published")
	}

	f := testFrame()
	out.Publish(f)
	msg := waitFrame(m.listener)()
	model, cmd := m.Update(msg)
	if model.(Model).frame != f {
		t.Error("published frame not shown")
	}
	if cmd == nil {
		t.Error("listener not re-armed after a frame")
	}

	out.Close()
	if msg := waitFrame(m.listener)(); msg != nil {
		t.Errorf("closed listener yielded %T, want nothing", msg)
	}
}

func TestNewModelShowsLatestFrame(t *testing.T) {
	out := stream.NewBroadcaster()
	f := testFrame()
	out.Publish(f)
	if m := NewModel("test", out, &fakeController{}, nil); m.frame != f {
		t.Error("dashboard started without the current frame")
	}
}

func TestViewShowsFrozen(t *testing.T) {
	m := NewModel("test", stream.NewBroadcaster(), &fakeController{}, nil)
	m.frame = testFrame()
	m.frame.Finished, m.frame.Frozen = true, true
	if v := m.View(); !strings.Contains(v, "frozen") {
		t.Errorf("view does not show the frozen state:\n%s", v)
	}
}

func TestViewWaiting(t *testing.T) {
	m := NewModel("Soundscape", stream.NewBroadcaster(), &fakeController{}, nil)
	v := m.View()
	if !strings.Contains(v, "Soundscape") || !strings.Contains(v, "waiting for audio") {
		t.Errorf("view = %q", v)
	}
}

func TestViewShowsMeters(t *testing.T) {
	m := NewModel("Soundscape", stream.NewBroadcaster(), &fakeController{}, nil)
	m.frame = testFrame()
	v := m.View()
	for _, want := range []string{"bass", "mid", "treble", "1.00", "0.50", "0:30 / 2:00", "generation 7", "population 5", "440 Hz", "survival classic", "q quit"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}
}

func TestWindowSize(t *testing.T) {
	m := NewModel("test", stream.NewBroadcaster(), &fakeController{}, nil)
	model, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	got := model.(Model)
	if got.Width != 120 || got.Height != 40 {
		t.Errorf("size = %dx%d, want 120x40", got.Width, got.Height)
	}
}

func TestRenderGridHalfBlocks(t *testing.T) {
	snap := testFrame().Snapshot
	got := renderGrid(snap, 10, 10)
	want := "█▀  \n   █"
	if got != want {
		t.Errorf("grid =\n%q\nwant\n%q", got, want)
	}
}

func TestRenderGridDownsamples(t *testing.T) {
	snap := &life.Snapshot{Width: 100, Height: 100, Cells: make([]uint8, 10000), Ages: make([]uint8, 10000)}
	lines := strings.Split(renderGrid(snap, 20, 5), "\n")
	if len(lines) != 5 {
		t.Fatalf("rows = %d, want 5", len(lines))
	}
	for _, l := range lines {
		if len([]rune(l)) != 20 {
			t.Errorf("row width = %d, want 20", len([]rune(l)))
		}
	}
	if renderGrid(nil, 10, 10) != "" {
		t.Error("nil snapshot rendered something")
	}
}

func TestMeterClamps(t *testing.T) {
	full := meter("bass", 1.5, bassStyle)
	if strings.Count(full, "█") != meterWidth {
		t.Errorf("over-range meter: %q", full)
	}
	empty := meter("bass", -1, bassStyle)
	if strings.Count(empty, "░") != meterWidth {
		t.Errorf("under-range meter: %q", empty)
	}
}
