// Package rules maps band energies onto the automaton's per-tick parameters.
package rules

import (
	"fmt"
	"math"

	"github.com/satindergrewal/soundscape/internal/analyzer"
)

// SurvivalVariant selects which neighbour counts keep a live cell alive.
type SurvivalVariant uint8

const (
	Classic SurvivalVariant = iota // 2 or 3
	Relaxed                        // 1 to 4
	Strict                         // exactly 3
)

// Mid-band thresholds for the survival buckets.
const (
	strictMax  = 0.4
	classicMax = 0.7
)

func (v SurvivalVariant) String() string {
	switch v {
	case Classic:
		return "classic"
	case Relaxed:
		return "relaxed"
	case Strict:
		return "strict"
	}
	return fmt.Sprintf("SurvivalVariant(%d)", uint8(v))
}

// Survives reports whether a live cell with n live neighbours stays alive.
func (v SurvivalVariant) Survives(n int) bool {
	switch v {
	case Relaxed:
		return n >= 1 && n <= 4
	case Strict:
		return n == 3
	default:
		return n == 2 || n == 3
	}
}

// EffectiveRules is the parameter set used for one whole tick.
type EffectiveRules struct {
	BirthBias    float64
	Survival     SurvivalVariant
	MutationRate float64
}

func (r EffectiveRules) String() string {
	return fmt.Sprintf("birth %.2f, survival %s, mutation %.3f", r.BirthBias, r.Survival, r.MutationRate)
}

// Sensitivity scales each band before it is mapped.
type Sensitivity struct {
	Bass   float64
	Mid    float64
	Treble float64
}

// DefaultSensitivity keeps treble low so mutation stays a sprinkle.
func DefaultSensitivity() Sensitivity {
	return Sensitivity{Bass: 1, Mid: 1, Treble: 0.05}
}

// Neutral is plain Conway: no birth bias, classic survival, no mutation.
func Neutral() EffectiveRules {
	return EffectiveRules{Survival: Classic}
}

// Modulate derives the rules for a tick. It is pure: identical inputs give
// identical rules, and out-of-range or NaN inputs are clamped.
func Modulate(e analyzer.BandEnergies, s Sensitivity) EffectiveRules {
	mid := clamp(e.Mid * s.Mid)
	survival := Relaxed
	switch {
	case mid <= strictMax:
		survival = Strict
	case mid <= classicMax:
		survival = Classic
	}
	return EffectiveRules{
		BirthBias:    clamp(e.Bass * s.Bass),
		Survival:     survival,
		MutationRate: clamp(e.Treble * s.Treble),
	}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
