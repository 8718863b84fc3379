// Package life implements the audio-modulated Game of Life grid.
package life

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync/atomic"

	"github.com/satindergrewal/soundscape/internal/rules"
)

// MaxAge is the saturation value of the per-cell age used for fading.
const MaxAge = 255

// DefaultDensity is used by reset when the engine was configured to start
// clear.
const DefaultDensity = 0.3

// EdgePolicy decides how neighbours outside the grid are counted.
type EdgePolicy uint8

const (
	Wrap  EdgePolicy = iota // toroidal
	Dead                    // outside cells are dead
	Alive                   // outside cells are alive
)

func (p EdgePolicy) String() string {
	switch p {
	case Wrap:
		return "wrap"
	case Dead:
		return "dead"
	case Alive:
		return "alive"
	}
	return fmt.Sprintf("EdgePolicy(%d)", uint8(p))
}

// ParseEdgePolicy accepts "wrap", "dead" or "alive", case-insensitively.
func ParseEdgePolicy(s string) (EdgePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wrap":
		return Wrap, nil
	case "dead":
		return Dead, nil
	case "alive":
		return Alive, nil
	}
	return Wrap, fmt.Errorf("unknown edge policy %q", s)
}

// Config holds the fixed grid parameters.
type Config struct {
	Width   int
	Height  int
	Density float64 // initial random fill in [0,1]; 0 starts clear
	Edge    EdgePolicy
}

type command uint32

const (
	cmdNone command = iota
	cmdReset
	cmdClear
)

// Snapshot is an owned copy of the grid at a tick boundary.
type Snapshot struct {
	Width      int
	Height     int
	Generation uint64
	Cells      []uint8 // 1 alive, 0 dead, row-major
	Ages       []uint8
}

// Population counts live cells in the snapshot.
func (s *Snapshot) Population() int {
	n := 0
	for _, c := range s.Cells {
		n += int(c)
	}
	return n
}

// Engine owns the grid. Only the goroutine driving Step may call its other
// methods; RequestReset and RequestClear are safe from anywhere.
type Engine struct {
	w, h    int
	edge    EdgePolicy
	density float64
	rng     *rand.Rand

	cur, nxt  []uint8
	age, nage []uint8
	gen       uint64

	pending atomic.Uint32
}

// New creates an engine and seeds it at cfg.Density. A nil rng gets a
// randomly seeded PCG source.
func New(cfg Config, rng *rand.Rand) (*Engine, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid grid size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Density < 0 || cfg.Density > 1 {
		return nil, errors.New("initial density must be within [0,1]")
	}
	if cfg.Edge > Alive {
		return nil, fmt.Errorf("invalid edge policy %d", cfg.Edge)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	size := cfg.Width * cfg.Height
	e := &Engine{
		w:       cfg.Width,
		h:       cfg.Height,
		edge:    cfg.Edge,
		density: cfg.Density,
		rng:     rng,
		cur:     make([]uint8, size),
		nxt:     make([]uint8, size),
		age:     make([]uint8, size),
		nage:    make([]uint8, size),
	}
	if cfg.Density > 0 {
		e.Randomize(cfg.Density)
	}
	return e, nil
}

func (e *Engine) Width() int         { return e.w }
func (e *Engine) Height() int        { return e.h }
func (e *Engine) Edge() EdgePolicy   { return e.edge }
func (e *Engine) Generation() uint64 { return e.gen }

// RequestReset asks the next Step to reseed the grid at random instead of
// advancing it. The latest request before a Step wins.
func (e *Engine) RequestReset() {
	e.pending.Store(uint32(cmdReset))
}

// RequestClear asks the next Step to kill every cell instead of advancing.
func (e *Engine) RequestClear() {
	e.pending.Store(uint32(cmdClear))
}

// Step advances one generation under r. Every cell is computed from the
// previous generation only. A pending reset or clear replaces the step, so
// the tick boundary is the only place the grid changes wholesale.
func (e *Engine) Step(r rules.EffectiveRules) {
	switch command(e.pending.Swap(uint32(cmdNone))) {
	case cmdReset:
		density := e.density
		if density <= 0 {
			density = DefaultDensity
		}
		e.Randomize(density)
		return
	case cmdClear:
		e.Clear()
		return
	}

	w, h := e.w, e.h
	for y := range h {
		for x := range w {
			i := y*w + x
			n := e.neighbours(x, y)
			alive := e.cur[i] != 0

			var next bool
			if alive {
				next = r.Survival.Survives(n)
			} else {
				next = n == 3 || ((n == 2 || n == 4) && r.BirthBias > 0 && e.rng.Float64() < r.BirthBias)
			}
			if r.MutationRate > 0 && e.rng.Float64() < r.MutationRate {
				next = e.rng.IntN(2) == 1
			}

			switch {
			case !next:
				e.nxt[i], e.nage[i] = 0, 0
			case alive:
				e.nxt[i], e.nage[i] = 1, min(e.age[i], MaxAge-1)+1
			default:
				e.nxt[i], e.nage[i] = 1, 1
			}
		}
	}
	e.cur, e.nxt = e.nxt, e.cur
	e.age, e.nage = e.nage, e.age
	e.gen++
}

func (e *Engine) neighbours(x, y int) int {
	n := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx < 0 || nx >= e.w || ny < 0 || ny >= e.h {
				switch e.edge {
				case Dead:
					continue
				case Alive:
					n++
					continue
				}
				nx = (nx + e.w) % e.w
				ny = (ny + e.h) % e.h
			}
			n += int(e.cur[ny*e.w+nx])
		}
	}
	return n
}

// Randomize fills the grid with live cells at the given density and resets
// the generation counter.
func (e *Engine) Randomize(density float64) {
	for i := range e.cur {
		if e.rng.Float64() < density {
			e.cur[i], e.age[i] = 1, 1
		} else {
			e.cur[i], e.age[i] = 0, 0
		}
	}
	e.gen = 0
}

// Clear kills every cell and resets the generation counter.
func (e *Engine) Clear() {
	clear(e.cur)
	clear(e.age)
	e.gen = 0
}

// Set places or removes a cell. Out-of-range coordinates are ignored.
func (e *Engine) Set(x, y int, alive bool) {
	if x < 0 || x >= e.w || y < 0 || y >= e.h {
		return
	}
	i := y*e.w + x
	if alive {
		e.cur[i], e.age[i] = 1, 1
	} else {
		e.cur[i], e.age[i] = 0, 0
	}
}

// Alive reports whether the cell at x, y is alive.
func (e *Engine) Alive(x, y int) bool {
	if x < 0 || x >= e.w || y < 0 || y >= e.h {
		return false
	}
	return e.cur[y*e.w+x] != 0
}

// Age returns the age of the cell at x, y, 0 when dead.
func (e *Engine) Age(x, y int) uint8 {
	if x < 0 || x >= e.w || y < 0 || y >= e.h {
		return 0
	}
	return e.age[y*e.w+x]
}

// Population counts live cells.
func (e *Engine) Population() int {
	n := 0
	for _, c := range e.cur {
		n += int(c)
	}
	return n
}

// Snapshot copies the current generation. The engine never touches the
// returned slices again.
func (e *Engine) Snapshot() *Snapshot {
	return &Snapshot{
		Width:      e.w,
		Height:     e.h,
		Generation: e.gen,
		Cells:      append([]uint8(nil), e.cur...),
		Ages:       append([]uint8(nil), e.age...),
	}
}
