package engine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/amirphl/peyk/models"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func atHour(hour int) fixedClock {
	return fixedClock{now: time.Date(2026, 3, 14, hour, 30, 0, 0, time.UTC)}
}

func TestNextDelayStaysWithinBounds(t *testing.T) {
	p := NewPacingPolicyWith(SystemClock(), rand.NewSource(1))

	for i := 0; i < 200; i++ {
		d := p.NextDelay(3, 9)
		assert.GreaterOrEqual(t, d, 3*time.Second)
		assert.LessOrEqual(t, d, 9*time.Second)
	}
}

func TestNextDelayDegenerateRange(t *testing.T) {
	p := NewPacingPolicyWith(SystemClock(), rand.NewSource(1))

	assert.Equal(t, 5*time.Second, p.NextDelay(5, 5))
	assert.Equal(t, time.Duration(0), p.NextDelay(0, 0))
	// inverted bounds collapse to the lower one
	assert.Equal(t, 7*time.Second, p.NextDelay(7, 2))
}

func TestNextDelayVaries(t *testing.T) {
	p := NewPacingPolicyWith(SystemClock(), rand.NewSource(42))

	seen := make(map[time.Duration]struct{})
	for i := 0; i < 50; i++ {
		seen[p.NextDelay(1, 60)] = struct{}{}
	}
	assert.Greater(t, len(seen), 1, "delays should not be constant over a wide range")
}

func TestEligibleImmediate(t *testing.T) {
	p := NewPacingPolicyWith(atHour(3), rand.NewSource(1))

	assert.True(t, p.Eligible(models.ScheduleSpec{Mode: models.ScheduleModeImmediate}))
	assert.Zero(t, p.NextEligibleWait(models.ScheduleSpec{Mode: models.ScheduleModeImmediate}))
}

func TestEligibleAt(t *testing.T) {
	clock := atHour(10)
	p := NewPacingPolicyWith(clock, rand.NewSource(1))

	past := clock.now.Add(-time.Minute)
	future := clock.now.Add(45 * time.Minute)

	assert.True(t, p.Eligible(models.ScheduleSpec{Mode: models.ScheduleModeAt, At: &past}))
	assert.False(t, p.Eligible(models.ScheduleSpec{Mode: models.ScheduleModeAt, At: &future}))

	assert.Zero(t, p.NextEligibleWait(models.ScheduleSpec{Mode: models.ScheduleModeAt, At: &past}))
	assert.Equal(t, 45*time.Minute,
		p.NextEligibleWait(models.ScheduleSpec{Mode: models.ScheduleModeAt, At: &future}))
}

func TestEligibleWindow(t *testing.T) {
	tests := []struct {
		name   string
		hour   int
		window models.ScheduleWindow
		want   bool
	}{
		{"odd hour in odd window", 13, models.ScheduleWindowOddHours, true},
		{"even hour in odd window", 14, models.ScheduleWindowOddHours, false},
		{"noon in daytime", 12, models.ScheduleWindowDaytime, true},
		{"midnight in daytime", 0, models.ScheduleWindowDaytime, false},
		{"midnight in nighttime", 0, models.ScheduleWindowNighttime, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPacingPolicyWith(atHour(tt.hour), rand.NewSource(1))
			sched := models.ScheduleSpec{Mode: models.ScheduleModeWindow, Window: tt.window}
			assert.Equal(t, tt.want, p.Eligible(sched))
		})
	}
}

func TestEligibleWindowUsesLocalHour(t *testing.T) {
	// 18:30 UTC is 21:30 in UTC+3; windows follow the clock's location
	tehran := time.FixedZone("UTC+3", 3*60*60)
	clock := fixedClock{now: time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC).In(tehran)}
	p := NewPacingPolicyWith(clock, rand.NewSource(1))

	night := models.ScheduleSpec{Mode: models.ScheduleModeWindow, Window: models.ScheduleWindowNighttime}
	day := models.ScheduleSpec{Mode: models.ScheduleModeWindow, Window: models.ScheduleWindowDaytime}

	assert.True(t, p.Eligible(night), "21:30 local is nighttime even though it is 18:30 UTC")
	assert.False(t, p.Eligible(day))

	// next daytime boundary is 08:00 local the next day
	assert.Equal(t, 10*time.Hour+30*time.Minute, p.NextEligibleWait(day))
	assert.Zero(t, p.NextEligibleWait(night))
}

func TestSystemClockInPinsLocation(t *testing.T) {
	tehran := time.FixedZone("UTC+3", 3*60*60)
	now := SystemClockIn(tehran).Now()
	assert.Equal(t, "UTC+3", now.Location().String())
}

func TestNextEligibleWaitWindow(t *testing.T) {
	// 14:30, odd hours: next eligible boundary is 15:00
	p := NewPacingPolicyWith(atHour(14), rand.NewSource(1))
	sched := models.ScheduleSpec{Mode: models.ScheduleModeWindow, Window: models.ScheduleWindowOddHours}
	assert.Equal(t, 30*time.Minute, p.NextEligibleWait(sched))

	// 21:30, daytime: next eligible boundary is 08:00 the next day
	p = NewPacingPolicyWith(atHour(21), rand.NewSource(1))
	sched = models.ScheduleSpec{Mode: models.ScheduleModeWindow, Window: models.ScheduleWindowDaytime}
	assert.Equal(t, 10*time.Hour+30*time.Minute, p.NextEligibleWait(sched))

	// already inside the window
	p = NewPacingPolicyWith(atHour(9), rand.NewSource(1))
	assert.Zero(t, p.NextEligibleWait(sched))
}
