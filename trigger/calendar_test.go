package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalendarIntervalTrigger_FiresOnStartDateAtConfiguredTime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	trig, err := NewCalendarIntervalTrigger(
		WithCalendarDays(1),
		WithCalendarTime(9, 30, 0),
		WithCalendarStartDate(start),
		WithCalendarLocation(time.UTC),
	)
	require.NoError(t, err)

	next := trig.GetNextFireTime(nil, start)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC), *next)
}

func TestCalendarIntervalTrigger_AdvancesByMonths(t *testing.T) {
	start := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	trig, err := NewCalendarIntervalTrigger(
		WithCalendarMonths(1),
		WithCalendarTime(0, 0, 0),
		WithCalendarStartDate(start),
		WithCalendarLocation(time.UTC),
	)
	require.NoError(t, err)

	first := trig.GetNextFireTime(nil, start)
	require.NotNil(t, first)
	assert.Equal(t, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), *first)

	// February has no 31st; the trigger must skip to a month where the day exists.
	second := trig.GetNextFireTime(first, start)
	require.NotNil(t, second)
	assert.Equal(t, 31, second.Day())
	assert.True(t, second.After(*first))
}

func TestCalendarIntervalTrigger_RejectsZeroInterval(t *testing.T) {
	_, err := NewCalendarIntervalTrigger(WithCalendarTime(9, 0, 0))
	assert.Error(t, err)
}

func TestCalendarIntervalTrigger_RejectsEndDateBeforeStartDate(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := NewCalendarIntervalTrigger(
		WithCalendarDays(1),
		WithCalendarStartDate(start),
		WithCalendarEndDate(end),
	)
	assert.Error(t, err)
}

func TestCalendarIntervalTrigger_StopsAfterEndDate(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	trig, err := NewCalendarIntervalTrigger(
		WithCalendarDays(1),
		WithCalendarTime(0, 0, 0),
		WithCalendarStartDate(start),
		WithCalendarEndDate(end),
		WithCalendarLocation(time.UTC),
	)
	require.NoError(t, err)

	first := trig.GetNextFireTime(nil, start)
	require.NotNil(t, first)
	second := trig.GetNextFireTime(first, start)
	require.NotNil(t, second)
	third := trig.GetNextFireTime(second, start)
	assert.Nil(t, third)
}

func TestCalendarIntervalTrigger_GobRoundTrip(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	trig, err := NewCalendarIntervalTrigger(
		WithCalendarWeeks(2),
		WithCalendarTime(6, 15, 30),
		WithCalendarStartDate(start),
		WithCalendarLocation(time.UTC),
	)
	require.NoError(t, err)

	data, err := trig.GobEncode()
	require.NoError(t, err)

	decoded := &CalendarIntervalTrigger{}
	require.NoError(t, decoded.GobDecode(data))
	assert.Equal(t, trig.Weeks, decoded.Weeks)
	assert.Equal(t, trig.Hour, decoded.Hour)
	assert.Equal(t, trig.Minute, decoded.Minute)
	assert.True(t, decoded.StartDate.Equal(trig.StartDate))
}

func TestCalendarIntervalTrigger_SkipWeekendsShiftsToMonday(t *testing.T) {
	// 2026-01-03 is a Saturday.
	start := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	trig, err := NewCalendarIntervalTrigger(
		WithCalendarDays(1),
		WithCalendarTime(9, 0, 0),
		WithCalendarStartDate(start),
		WithCalendarLocation(time.UTC),
		WithCalendarSkipWeekends(true),
	)
	require.NoError(t, err)

	first := trig.GetNextFireTime(nil, start)
	require.NotNil(t, first)
	assert.Equal(t, time.Monday, first.Weekday())
	assert.Equal(t, 5, first.Day())
}
