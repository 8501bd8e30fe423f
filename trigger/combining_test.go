package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrTrigger_ReturnsEarliestOfItsChildren(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewIntervalTrigger(time.Hour, WithIntervalStartDate(now.Add(10*time.Minute)), WithIntervalLocation(time.UTC))
	b := NewIntervalTrigger(time.Hour, WithIntervalStartDate(now.Add(5*time.Minute)), WithIntervalLocation(time.UTC))

	or := NewOrTrigger([]Trigger{a, b}, 0)
	next := or.GetNextFireTime(nil, now)
	require.NotNil(t, next)
	assert.True(t, next.Equal(now.Add(5*time.Minute)))
}

func TestOrTrigger_FinishedOnlyWhenAllChildrenFinish(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	exhausted := NewDateTrigger(now.Add(-time.Hour), WithDateLocation(time.UTC))
	// One-shot trigger already fired once (previousFireTime set) -> finished.
	prev := exhausted.RunDate
	live := NewIntervalTrigger(time.Minute, WithIntervalStartDate(now.Add(time.Minute)), WithIntervalLocation(time.UTC))

	or := NewOrTrigger([]Trigger{exhausted, live}, 0)
	next := or.GetNextFireTime(&prev, now)
	require.NotNil(t, next)
	// The live interval child advances one period from the shared previous fire time.
	assert.True(t, next.Equal(prev.Add(time.Minute)))
}

func TestAndTrigger_RequiresAllChildrenToAgree(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// Two triggers sharing both period and phase always agree.
	a := NewIntervalTrigger(time.Minute, WithIntervalStartDate(now), WithIntervalLocation(time.UTC))
	b := NewIntervalTrigger(time.Minute, WithIntervalStartDate(now), WithIntervalLocation(time.UTC))

	and := NewAndTrigger([]Trigger{a, b}, 0)
	first := and.GetNextFireTime(nil, now)
	require.NotNil(t, first)
	assert.True(t, first.Equal(now))

	second := and.GetNextFireTime(first, now)
	require.NotNil(t, second)
	assert.True(t, second.Equal(now.Add(time.Minute)))
}

func TestAndTrigger_MismatchedPeriodsAgreeOnceThenStop(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	every30 := NewIntervalTrigger(30*time.Minute, WithIntervalStartDate(now), WithIntervalLocation(time.UTC))
	everyHour := NewIntervalTrigger(time.Hour, WithIntervalStartDate(now), WithIntervalLocation(time.UTC))

	and := NewAndTrigger([]Trigger{every30, everyHour}, 0)
	first := and.GetNextFireTime(nil, now)
	require.NotNil(t, first)
	assert.True(t, first.Equal(now))

	// Once a previous fire time is established, each sub-trigger advances by
	// its own fixed interval from it regardless of differing periods, so two
	// triggers of unequal period never realign again.
	second := and.GetNextFireTime(first, now)
	assert.Nil(t, second)
}

func TestAndTrigger_NilWhenAnyChildFinishes(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	oneShot := NewDateTrigger(now, WithDateLocation(time.UTC))
	recurring := NewIntervalTrigger(time.Minute, WithIntervalStartDate(now), WithIntervalLocation(time.UTC))

	and := NewAndTrigger([]Trigger{oneShot, recurring}, 0)
	first := and.GetNextFireTime(nil, now)
	require.NotNil(t, first)

	second := and.GetNextFireTime(first, now)
	assert.Nil(t, second)
}

func TestAndOrTrigger_GobRoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewIntervalTrigger(time.Minute, WithIntervalStartDate(now), WithIntervalLocation(time.UTC))
	b := NewDateTrigger(now, WithDateLocation(time.UTC))

	or := NewOrTrigger([]Trigger{a, b}, time.Second)
	data, err := or.GobEncode()
	require.NoError(t, err)

	decoded := &OrTrigger{}
	require.NoError(t, decoded.GobDecode(data))
	assert.Len(t, decoded.Triggers, 2)
	assert.Equal(t, or.Jitter, decoded.Jitter)
}
