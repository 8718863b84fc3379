//go:build !headless

package render

import (
	"context"
	"errors"
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"golang.org/x/image/font/basicfont"

	"github.com/satindergrewal/soundscape/internal/palette"
	"github.com/satindergrewal/soundscape/internal/stream"
)

var keyActions = []struct {
	key    ebiten.Key
	action Action
}{
	{ebiten.KeyEscape, ActionFullscreen},
	{ebiten.KeyF11, ActionFullscreen},
	{ebiten.KeySpace, ActionReset},
	{ebiten.KeyC, ActionClear},
	{ebiten.KeyDigit1, ActionClassic},
	{ebiten.KeyDigit2, ActionHeat},
	{ebiten.KeyDigit3, ActionRainbow},
	{ebiten.KeyDigit4, ActionPulse},
	{ebiten.KeyTab, ActionNextScheme},
	{ebiten.KeyH, ActionToggleHUD},
	{ebiten.KeyQ, ActionQuit},
}

type game struct {
	ctx  context.Context
	out  *stream.Broadcaster
	ctl  Controller
	done <-chan struct{}
	opts Options
	view view

	gridW, gridH int
	raster       *palette.Rasterizer
	grid         *ebiten.Image
	hudBG        *ebiten.Image
}

// Run opens the window and blocks until the user closes it, Q is pressed or
// ctx is cancelled. It must be called from the main goroutine. Each of those
// stops the pipeline through ctl; the window keeps drawing the last frame
// until done is closed, so graphics go away after the pipeline has drained.
func Run(ctx context.Context, out *stream.Broadcaster, ctl Controller, done <-chan struct{}, gridW, gridH int, opts Options) error {
	if opts.CellSize <= 0 {
		opts.CellSize = 1
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = gridW*opts.CellSize, gridH*opts.CellSize
	}

	ebiten.SetWindowSize(opts.Width, opts.Height)
	ebiten.SetWindowTitle(opts.Title)
	ebiten.SetWindowResizable(true)
	ebiten.SetWindowClosingHandled(true)
	ebiten.SetRunnableOnUnfocused(true)
	ebiten.SetVsyncEnabled(true)
	ebiten.SetFullscreen(opts.Fullscreen)

	g := &game{
		ctx:   ctx,
		out:   out,
		ctl:   ctl,
		done:  done,
		opts:  opts,
		view:  view{scheme: opts.Scheme, hud: opts.ShowHUD, fullscreen: opts.Fullscreen},
		gridW: gridW,
		gridH: gridH,
	}
	err := ebiten.RunGame(g)
	if err != nil && !errors.Is(err, ebiten.Termination) {
		return fmt.Errorf("window: %w", err)
	}
	return nil
}

func (g *game) Update() error {
	if g.ctx.Err() != nil || ebiten.IsWindowBeingClosed() {
		g.view.apply(ActionQuit, g.ctl)
	}
	for _, ka := range keyActions {
		if inpututil.IsKeyJustPressed(ka.key) {
			g.view.apply(ka.action, g.ctl)
		}
	}
	if g.view.closed(g.done) {
		return ebiten.Termination
	}
	if g.view.wipe && g.raster != nil {
		g.raster.Reset()
	}
	g.view.wipe = false

	if ebiten.IsFullscreen() != g.view.fullscreen {
		ebiten.SetFullscreen(g.view.fullscreen)
		if !g.view.fullscreen {
			ebiten.SetWindowSize(g.opts.Width, g.opts.Height)
		}
	}
	return nil
}

// Draw renders the latest published frame, or the previous one again when
// nothing new arrived. It never waits on the simulation.
func (g *game) Draw(screen *ebiten.Image) {
	if g.grid == nil {
		g.grid = ebiten.NewImage(g.gridW, g.gridH)
		g.raster = palette.NewRasterizer(g.gridW, g.gridH, g.opts.FadeRate)
	}

	f := g.out.Latest()
	if f != nil {
		g.grid.WritePixels(g.raster.Render(f.Snapshot, f.Bands, g.view.scheme))
	}

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(float64(g.opts.CellSize), float64(g.opts.CellSize))
	screen.DrawImage(g.grid, op)

	if g.view.hud {
		g.drawHUD(screen, hudLines(f, g.view.scheme, ebiten.ActualFPS()))
	}
}

func (g *game) drawHUD(screen *ebiten.Image, lines []string) {
	face := basicfont.Face7x13
	const lineH = 15

	width := 0
	for _, l := range lines {
		width = max(width, text.BoundString(face, l).Dx())
	}
	if g.hudBG == nil {
		g.hudBG = ebiten.NewImage(1, 1)
		g.hudBG.Fill(color.RGBA{A: 160})
	}
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(float64(width+12), float64(len(lines)*lineH+8))
	op.GeoM.Translate(4, 4)
	screen.DrawImage(g.hudBG, op)

	for i, l := range lines {
		text.Draw(screen, l, face, 10, 18+i*lineH, color.RGBA{220, 220, 220, 255})
	}
}

// Layout keeps one logical pixel per screen pixel at the configured cell
// size; ebiten scales it to the window.
func (g *game) Layout(_, _ int) (int, int) {
	return g.gridW * g.opts.CellSize, g.gridH * g.opts.CellSize
}
