// Package render draws published frames to a window and turns key presses
// into pipeline commands.
package render

import (
	"errors"
	"fmt"
	"time"

	"github.com/satindergrewal/soundscape/internal/palette"
	"github.com/satindergrewal/soundscape/internal/stream"
)

// ErrNoDisplay is returned by Run when the binary was built without a window
// backend.
var ErrNoDisplay = errors.New("no display available")

// Controller receives user commands. *coordinator.Coordinator implements it.
type Controller interface {
	Reset()
	Clear()
	Stop()
}

// Options configures the window.
type Options struct {
	Title      string
	Width      int // initial window size
	Height     int
	CellSize   int
	Fullscreen bool
	Scheme     palette.Scheme
	FadeRate   float64
	ShowHUD    bool
}

// Action is a user command decoded from input.
type Action int

const (
	ActionNone Action = iota
	ActionFullscreen
	ActionReset
	ActionClear
	ActionNextScheme
	ActionToggleHUD
	ActionQuit
	ActionClassic
	ActionHeat
	ActionRainbow
	ActionPulse
)

// view is the renderer's own state, changed only by actions.
type view struct {
	scheme     palette.Scheme
	hud        bool
	fullscreen bool
	quit       bool // stop requested; the window stays until the pipeline is done
	wipe       bool // trails are dropped before the next draw
}

// apply updates the view and forwards grid commands to ctl.
func (v *view) apply(a Action, ctl Controller) {
	switch a {
	case ActionFullscreen:
		v.fullscreen = !v.fullscreen
	case ActionReset:
		ctl.Reset()
		v.wipe = true
	case ActionClear:
		ctl.Clear()
		v.wipe = true
	case ActionNextScheme:
		v.scheme = v.scheme.Next()
	case ActionToggleHUD:
		v.hud = !v.hud
	case ActionQuit:
		if !v.quit {
			v.quit = true
			ctl.Stop()
		}
	case ActionClassic:
		v.scheme = palette.Classic
	case ActionHeat:
		v.scheme = palette.Heat
	case ActionRainbow:
		v.scheme = palette.Rainbow
	case ActionPulse:
		v.scheme = palette.Pulse
	}
}

// closed reports whether the window may go away: a stop was requested and
// the pipeline has shut down behind it.
func (v *view) closed(done <-chan struct{}) bool {
	if !v.quit {
		return false
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// hudLines formats the overlay text for f.
func hudLines(f *stream.Frame, scheme palette.Scheme, fps float64) []string {
	if f == nil || f.Snapshot == nil {
		return []string{"waiting for audio..."}
	}
	state := "playing"
	switch {
	case f.Frozen:
		state = "frozen, reset and clear are off"
	case f.Finished:
		state = "finished"
	}
	lines := []string{
		fmt.Sprintf("%s  %s / %s", state, clock(f.Position), clock(f.Duration)),
		fmt.Sprintf("gen %d  pop %d  fps %.0f", f.Snapshot.Generation, f.Snapshot.Population(), fps),
		fmt.Sprintf("bass %.2f  mid %.2f  treble %.2f  peak %.0f Hz", f.Bands.Bass, f.Bands.Mid, f.Bands.Treble, f.PeakHz),
		fmt.Sprintf("%s  scheme %s", f.Rules, scheme),
	}
	if f.Dropped > 0 {
		lines = append(lines, fmt.Sprintf("skipped %d ticks", f.Dropped))
	}
	return lines
}

func clock(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
