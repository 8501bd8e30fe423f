package cron

import (
	"testing"
	"time"

	"github.com/devkral/asyncz/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronTrigger_DailyAtFixedTime(t *testing.T) {
	trig, err := NewCronTrigger(WithHour("9"), WithMinute("0"), WithSecond("0"), WithCronLocation(time.UTC))
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	next := trig.GetNextFireTime(nil, now)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC), *next)

	following := trig.GetNextFireTime(next, now)
	require.NotNil(t, following)
	assert.Equal(t, time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC), *following)
}

func TestCronTrigger_MondayNineAM(t *testing.T) {
	trig, err := FromCrontab("0 9 * * mon", time.UTC)
	require.NoError(t, err)

	// 2026-01-01 is a Thursday.
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next := trig.GetNextFireTime(nil, now)
	require.NotNil(t, next)
	assert.Equal(t, time.Monday, next.Weekday())
	assert.Equal(t, 9, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.True(t, !next.Before(now))
}

func TestFromCrontab_RejectsWrongFieldCount(t *testing.T) {
	_, err := FromCrontab("0 9 * *", time.UTC)
	assert.Error(t, err)
}

func TestCronTrigger_RespectsEndDate(t *testing.T) {
	end := time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)
	trig, err := NewCronTrigger(
		WithHour("9"), WithMinute("0"), WithSecond("0"),
		WithCronLocation(time.UTC),
		WithCronEndDate(end),
	)
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	first := trig.GetNextFireTime(nil, now)
	require.NotNil(t, first)

	second := trig.GetNextFireTime(first, now)
	assert.Nil(t, second)
}

func TestCronTrigger_GobRoundTrip(t *testing.T) {
	trig, err := NewCronTrigger(WithDayOfWeek("mon-fri"), WithHour("9"), WithCronLocation(time.UTC))
	require.NoError(t, err)

	data, err := trig.GobEncode()
	require.NoError(t, err)

	decoded := &CronTrigger{}
	require.NoError(t, decoded.GobDecode(data))
	assert.Equal(t, trig.String(), decoded.String())
}

func TestCronTrigger_ImplementsJitterable(t *testing.T) {
	var _ trigger.Jitterable = (*CronTrigger)(nil)

	trig, err := NewCronTrigger(WithHour("9"), WithMinute("0"), WithCronLocation(time.UTC))
	require.NoError(t, err)

	trig.SetJitter(0)
	assert.Equal(t, time.Duration(0), trig.GetJitter())

	trig.SetJitter(5 * time.Second)
	assert.Equal(t, 5*time.Second, trig.GetJitter())

	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	next := trig.GetNextFireTime(nil, now)
	require.NotNil(t, next)
	assert.False(t, next.Before(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)))
	assert.True(t, next.Before(time.Date(2026, 1, 1, 9, 0, 5, 0, time.UTC)))
}

func TestNewCronTrigger_RejectsOutOfRangeField(t *testing.T) {
	_, err := NewCronTrigger(WithMinute("61"), WithCronLocation(time.UTC))
	assert.Error(t, err)
}
