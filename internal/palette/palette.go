// Package palette maps cell ages and band energies to colours.
package palette

import (
	"fmt"
	"image/color"
	"math"
	"strings"

	"github.com/satindergrewal/soundscape/internal/analyzer"
)

// Scheme selects how cells are coloured.
type Scheme uint8

const (
	Classic Scheme = iota // white on black
	Heat                  // blue when young, red when old
	Rainbow               // hue by age
	Pulse                 // bass, mid, treble drive red, green, blue
	numSchemes
)

var schemeNames = [...]string{"classic", "heat", "rainbow", "pulse"}

func (s Scheme) String() string {
	if s < numSchemes {
		return schemeNames[s]
	}
	return fmt.Sprintf("Scheme(%d)", uint8(s))
}

// ParseScheme accepts a scheme name, case-insensitively.
func ParseScheme(name string) (Scheme, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range schemeNames {
		if n == name {
			return Scheme(i), nil
		}
	}
	return Classic, fmt.Errorf("unknown color scheme %q", name)
}

// Next cycles to the following scheme.
func (s Scheme) Next() Scheme {
	return (s + 1) % numSchemes
}

var (
	black = color.RGBA{A: 255}
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// CellColor returns the colour of a cell. Dead cells (age 0) are black.
func CellColor(s Scheme, age, maxAge uint8, bands analyzer.BandEnergies) color.RGBA {
	if age == 0 {
		return black
	}
	if maxAge == 0 {
		maxAge = 255
	}
	norm := math.Min(float64(age)/float64(maxAge), 1)

	switch s {
	case Heat:
		return color.RGBA{
			R: uint8(norm * 255),
			G: uint8((1 - norm) * norm * 255),
			B: uint8((1 - norm) * 255),
			A: 255,
		}
	case Rainbow:
		return hue(norm)
	case Pulse:
		// Young cells keep a floor so they are visible at all.
		intensity := 0.25 + 0.75*norm
		return color.RGBA{
			R: channel(bands.Bass * intensity),
			G: channel(bands.Mid * intensity),
			B: channel(bands.Treble * intensity),
			A: 255,
		}
	default:
		return white
	}
}

// Background returns the fill colour behind the cells.
func Background(s Scheme, bands analyzer.BandEnergies) color.RGBA {
	switch s {
	case Heat:
		return color.RGBA{B: 20, A: 255}
	case Pulse:
		// Kept dark: at most 30.
		v := uint8(math.Min(math.Max(bands.Overall(), 0), 1) * 30)
		return color.RGBA{R: v, G: v, B: v, A: 255}
	default:
		return black
	}
}

// hue walks the six sectors of the colour wheel for h in [0,1].
func hue(h float64) color.RGBA {
	h *= 6
	sector := math.Floor(h)
	off := h - sector
	up, down := uint8(255*off), uint8(255*(1-off))
	switch int(sector) % 6 {
	case 0:
		return color.RGBA{R: 255, G: up, A: 255}
	case 1:
		return color.RGBA{R: down, G: 255, A: 255}
	case 2:
		return color.RGBA{G: 255, B: up, A: 255}
	case 3:
		return color.RGBA{G: down, B: 255, A: 255}
	case 4:
		return color.RGBA{R: up, B: 255, A: 255}
	default:
		return color.RGBA{R: 255, B: down, A: 255}
	}
}

func channel(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v * 255)
}
