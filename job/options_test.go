package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithMisfireGraceTime_RejectsNegative(t *testing.T) {
	_, err := New(sampleFunc, &stubTrigger{}, WithMisfireGraceTime(-time.Second))
	assert.Error(t, err)
}

func TestWithNoMisfireGraceTime_ClearsLimit(t *testing.T) {
	j, err := New(sampleFunc, &stubTrigger{}, WithMisfireGraceTime(time.Minute), WithNoMisfireGraceTime())
	require.NoError(t, err)
	assert.Nil(t, j.MisfireGraceTime)
}

func TestWithMaxInstances_RejectsNonPositive(t *testing.T) {
	_, err := New(sampleFunc, &stubTrigger{}, WithMaxInstances(0))
	assert.Error(t, err)
}

func TestWithExecutor_RejectsEmptyAlias(t *testing.T) {
	_, err := New(sampleFunc, &stubTrigger{}, WithExecutor(""))
	assert.Error(t, err)
}

func TestModify_AppliesOptionsToExistingJob(t *testing.T) {
	j, err := New(sampleFunc, &stubTrigger{})
	require.NoError(t, err)

	require.NoError(t, j.Modify(WithName("renamed"), WithMaxInstances(3)))
	assert.Equal(t, "renamed", j.Name)
	assert.Equal(t, 3, j.MaxInstances)
}

func TestModify_KeepsEarlierOptionsWhenLaterOneFails(t *testing.T) {
	j, err := New(sampleFunc, &stubTrigger{}, WithName("original"))
	require.NoError(t, err)

	err = j.Modify(WithName("changed"), WithID(""))
	assert.Error(t, err)
	// The first option in the chain still applied before the second failed.
	assert.Equal(t, "changed", j.Name)
}

func TestUpdateNextRunTime_UsesTrigger(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next := now.Add(time.Hour)
	j, err := New(sampleFunc, &stubTrigger{next: &next})
	require.NoError(t, err)

	j.UpdateNextRunTime(now)
	require.NotNil(t, j.NextRunTime)
	assert.True(t, j.NextRunTime.Equal(next))
}

func TestSetAndGetNextRunTime(t *testing.T) {
	j, err := New(sampleFunc, &stubTrigger{})
	require.NoError(t, err)

	assert.Nil(t, j.GetNextRunTime())

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j.SetNextRunTime(&now)
	got := j.GetNextRunTime()
	require.NotNil(t, got)
	assert.True(t, got.Equal(now))

	// Returned pointer must not alias internal state.
	*got = now.Add(time.Hour)
	assert.True(t, j.NextRunTime.Equal(now))
}
