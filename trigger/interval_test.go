package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalTrigger_FiresOnEveryInterval(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	trig := NewIntervalTrigger(time.Minute, WithIntervalStartDate(start), WithIntervalLocation(time.UTC))

	now := start
	first := trig.GetNextFireTime(nil, now)
	require.NotNil(t, first)
	assert.True(t, first.Equal(start))

	second := trig.GetNextFireTime(first, now)
	require.NotNil(t, second)
	assert.True(t, second.Equal(start.Add(time.Minute)))

	third := trig.GetNextFireTime(second, now)
	require.NotNil(t, third)
	assert.True(t, third.Equal(start.Add(2*time.Minute)))
}

func TestIntervalTrigger_SkipsAheadWhenStartIsInThePast(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	trig := NewIntervalTrigger(time.Minute, WithIntervalStartDate(start), WithIntervalLocation(time.UTC))

	now := start.Add(3*time.Minute + 30*time.Second)
	next := trig.GetNextFireTime(nil, now)
	require.NotNil(t, next)
	// Next interval boundary at or after now, not every missed minute replayed.
	assert.True(t, !next.Before(now))
	assert.Equal(t, time.Duration(0), next.Sub(start)%time.Minute)
}

func TestIntervalTrigger_RespectsEndDate(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	trig := NewIntervalTrigger(time.Minute,
		WithIntervalStartDate(start),
		WithIntervalEndDate(end),
		WithIntervalLocation(time.UTC),
	)

	first := trig.GetNextFireTime(nil, start)
	require.NotNil(t, first)

	second := trig.GetNextFireTime(first, start)
	require.NotNil(t, second) // start + 1 minute, before end

	third := trig.GetNextFireTime(second, start)
	assert.Nil(t, third) // start + 2 minutes is after end
}

func TestIntervalTrigger_ZeroIntervalDefaultsToOneSecond(t *testing.T) {
	trig := NewIntervalTrigger(0)
	assert.Equal(t, time.Second, trig.Interval)
}

func TestIntervalTrigger_JitterStaysWithinBound(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	jitter := 5 * time.Second
	trig := NewIntervalTrigger(time.Minute,
		WithIntervalStartDate(start),
		WithIntervalLocation(time.UTC),
		WithIntervalJitter(jitter),
	)

	for i := 0; i < 20; i++ {
		next := trig.GetNextFireTime(nil, start)
		require.NotNil(t, next)
		delta := next.Sub(start)
		assert.True(t, delta >= 0 && delta < jitter)
	}
}

func TestIntervalTrigger_GobRoundTrip(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	trig := NewIntervalTrigger(30*time.Second,
		WithIntervalStartDate(start),
		WithIntervalEndDate(end),
		WithIntervalLocation(time.UTC),
		WithIntervalJitter(time.Second),
		WithIntervalWeekdays(time.Monday, time.Wednesday),
	)

	data, err := trig.GobEncode()
	require.NoError(t, err)

	decoded := &IntervalTrigger{}
	require.NoError(t, decoded.GobDecode(data))

	assert.Equal(t, trig.Interval, decoded.Interval)
	assert.True(t, decoded.StartDate.Equal(trig.StartDate))
	require.NotNil(t, decoded.EndDate)
	assert.True(t, decoded.EndDate.Equal(*trig.EndDate))
	assert.Equal(t, trig.Jitter, decoded.Jitter)
	assert.Equal(t, trig.AllowedWeekdays, decoded.AllowedWeekdays)
}

func TestIntervalTrigger_RestrictsToAllowedWeekdays(t *testing.T) {
	// 2026-01-01 is a Thursday.
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	trig := NewIntervalTrigger(24*time.Hour,
		WithIntervalStartDate(start),
		WithIntervalLocation(time.UTC),
		WithIntervalWeekdays(time.Monday),
	)

	first := trig.GetNextFireTime(nil, start)
	require.NotNil(t, first)
	assert.Equal(t, time.Monday, first.Weekday())
	assert.True(t, !first.Before(start))
}
