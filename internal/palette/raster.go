package palette

import (
	"image/color"

	"github.com/satindergrewal/soundscape/internal/analyzer"
	"github.com/satindergrewal/soundscape/internal/life"
)

// Rasterizer turns snapshots into RGBA pixels, one pixel per cell. Cells
// that die keep glowing in their last colour, fading towards the background
// by fadeRate every rendered frame.
type Rasterizer struct {
	w, h     int
	fadeRate float64
	trail    []float64
	last     []color.RGBA
	pix      []byte
}

// NewRasterizer creates a rasterizer for a w x h grid. A fadeRate of 1 or
// more disables the trail.
func NewRasterizer(w, h int, fadeRate float64) *Rasterizer {
	if fadeRate <= 0 {
		fadeRate = 1
	}
	return &Rasterizer{
		w:        w,
		h:        h,
		fadeRate: fadeRate,
		trail:    make([]float64, w*h),
		last:     make([]color.RGBA, w*h),
		pix:      make([]byte, w*h*4),
	}
}

// Render draws snap and returns the pixel buffer, which is reused by the
// next call. A snapshot of a different size is ignored.
func (r *Rasterizer) Render(snap *life.Snapshot, bands analyzer.BandEnergies, s Scheme) []byte {
	if snap == nil || snap.Width != r.w || snap.Height != r.h {
		return r.pix
	}
	bg := Background(s, bands)
	for i, alive := range snap.Cells {
		c := bg
		switch {
		case alive != 0:
			c = CellColor(s, snap.Ages[i], life.MaxAge, bands)
			r.last[i] = c
			r.trail[i] = 1
		case r.trail[i] > 0:
			r.trail[i] -= r.fadeRate
			if r.trail[i] > 0 {
				c = mix(bg, r.last[i], r.trail[i])
			}
		}
		p := r.pix[i*4 : i*4+4]
		p[0], p[1], p[2], p[3] = c.R, c.G, c.B, 255
	}
	return r.pix
}

// Reset forgets all trails.
func (r *Rasterizer) Reset() {
	clear(r.trail)
}

func mix(a, b color.RGBA, t float64) color.RGBA {
	lerp := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*t)
	}
	return color.RGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: 255}
}
