// Package engine implements campaign execution: target resolution, pacing,
// the dispatch loop and the run manager.
package engine

import (
	"math/rand"
	"sync"
	"time"

	"github.com/amirphl/peyk/models"
)

// Clock abstracts time for the engine so tests can pin it
type Clock interface {
	Now() time.Time
}

type systemClock struct {
	loc *time.Location
}

func (c systemClock) Now() time.Time { return time.Now().In(c.loc) }

// SystemClock returns a Clock in the operator's local timezone. Schedule
// windows key off the local hour.
func SystemClock() Clock { return SystemClockIn(time.Local) }

// SystemClockIn returns a Clock pinned to the given location
func SystemClockIn(loc *time.Location) Clock { return systemClock{loc} }

// PacingPolicy produces inter-send delays and evaluates schedule windows.
// The random source is guarded; one policy is shared by all dispatch loops.
type PacingPolicy struct {
	clock Clock

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPacingPolicy creates a pacing policy with the system clock and a
// time-seeded random source
func NewPacingPolicy() *PacingPolicy {
	return NewPacingPolicyWith(SystemClock(), rand.NewSource(time.Now().UnixNano()))
}

// NewPacingPolicyWith creates a pacing policy with explicit clock and seed
func NewPacingPolicyWith(clock Clock, src rand.Source) *PacingPolicy {
	return &PacingPolicy{
		clock: clock,
		rng:   rand.New(src),
	}
}

// NextDelay draws a delay uniformly from [minSec, maxSec] seconds, with
// millisecond granularity. A degenerate range collapses to minSec.
func (p *PacingPolicy) NextDelay(minSec, maxSec uint) time.Duration {
	if maxSec < minSec {
		maxSec = minSec
	}

	minMs := int64(minSec) * 1000
	spanMs := int64(maxSec-minSec) * 1000
	if spanMs == 0 {
		return time.Duration(minMs) * time.Millisecond
	}

	p.mu.Lock()
	n := p.rng.Int63n(spanMs + 1)
	p.mu.Unlock()

	return time.Duration(minMs+n) * time.Millisecond
}

// Eligible reports whether sending is currently allowed under the schedule
func (p *PacingPolicy) Eligible(sched models.ScheduleSpec) bool {
	now := p.clock.Now()

	switch sched.Mode {
	case models.ScheduleModeAt:
		return sched.At == nil || !now.Before(*sched.At)
	case models.ScheduleModeWindow:
		return sched.Window.Contains(now.Hour())
	default:
		return true
	}
}

// NextEligibleWait returns how long to wait until the schedule next allows
// sending. Zero means sending is allowed right now.
func (p *PacingPolicy) NextEligibleWait(sched models.ScheduleSpec) time.Duration {
	now := p.clock.Now()

	switch sched.Mode {
	case models.ScheduleModeAt:
		if sched.At != nil && now.Before(*sched.At) {
			return sched.At.Sub(now)
		}
		return 0
	case models.ScheduleModeWindow:
		if sched.Window.Contains(now.Hour()) {
			return 0
		}
		// Walk local hour boundaries until one falls inside the window.
		// Every window recurs within 24 hours.
		for h := 1; h <= 24; h++ {
			next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour()+h, 0, 0, 0, now.Location())
			if sched.Window.Contains(next.Hour()) {
				return next.Sub(now)
			}
		}
		return 0
	default:
		return 0
	}
}
