package coordinator

import "time"

// Scheduler converts wall-clock time into a whole number of simulation ticks.
// Fractional ticks carry over between calls; after a stall at most maxCatchUp
// ticks run and the rest are discarded.
type Scheduler struct {
	step       time.Duration
	maxCatchUp int

	last    time.Time
	acc     time.Duration
	dropped uint64
}

// NewScheduler creates a scheduler ticking at rate Hz.
func NewScheduler(rate float64, maxCatchUp int) *Scheduler {
	if rate <= 0 {
		rate = DefaultTickRate
	}
	if maxCatchUp <= 0 {
		maxCatchUp = DefaultMaxCatchUp
	}
	return &Scheduler{
		step:       max(time.Duration(float64(time.Second)/rate), time.Microsecond),
		maxCatchUp: maxCatchUp,
	}
}

// Step returns the tick interval.
func (s *Scheduler) Step() time.Duration {
	return s.step
}

// Advance returns how many ticks are due at now. The first call only sets
// the reference time. Time going backwards counts as no time.
func (s *Scheduler) Advance(now time.Time) int {
	if s.last.IsZero() {
		s.last = now
		return 0
	}
	elapsed := now.Sub(s.last)
	s.last = now
	if elapsed > 0 {
		s.acc += elapsed
	}

	n := int(s.acc / s.step)
	s.acc -= time.Duration(n) * s.step
	if n > s.maxCatchUp {
		s.dropped += uint64(n - s.maxCatchUp)
		n = s.maxCatchUp
	}
	return n
}

// Dropped returns the total number of ticks discarded by catch-up limiting.
func (s *Scheduler) Dropped() uint64 {
	return s.dropped
}
