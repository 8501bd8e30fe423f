package jobstore

import (
	"testing"
	"time"

	"github.com/devkral/asyncz/job"
	"github.com/devkral/asyncz/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob(t *testing.T, id string, runAt time.Time) *job.Job {
	t.Helper()
	trig := trigger.NewDateTrigger(runAt, trigger.WithDateLocation(time.UTC))
	j, err := job.New(func() {}, trig, job.WithID(id), job.WithNextRunTime(runAt))
	require.NoError(t, err)
	return j
}

func TestMemoryJobStore_AddAndLookup(t *testing.T) {
	store := NewMemoryJobStore()
	require.NoError(t, store.Start(nil, "default"))

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j := newTestJob(t, "job-1", now)

	require.NoError(t, store.AddJob(j))

	found, err := store.LookupJob("job-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "job-1", found.ID)

	missing, err := store.LookupJob("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryJobStore_AddJob_RejectsDuplicateID(t *testing.T) {
	store := NewMemoryJobStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j1 := newTestJob(t, "dup", now)
	j2 := newTestJob(t, "dup", now.Add(time.Hour))

	require.NoError(t, store.AddJob(j1))
	err := store.AddJob(j2)
	assert.Error(t, err)
	var conflictErr *ConflictingIDError
	assert.ErrorAs(t, err, &conflictErr)
}

func TestMemoryJobStore_GetDueJobs_OrderedAndBounded(t *testing.T) {
	store := NewMemoryJobStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	late := newTestJob(t, "late", base.Add(2*time.Hour))
	early := newTestJob(t, "early", base.Add(time.Minute))
	mid := newTestJob(t, "mid", base.Add(time.Hour))

	require.NoError(t, store.AddJob(late))
	require.NoError(t, store.AddJob(early))
	require.NoError(t, store.AddJob(mid))

	due, err := store.GetDueJobs(base.Add(90 * time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "early", due[0].ID)
	assert.Equal(t, "mid", due[1].ID)
}

func TestMemoryJobStore_PausedJobsAreNeverDue(t *testing.T) {
	store := NewMemoryJobStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	trig := trigger.NewIntervalTrigger(time.Hour, trigger.WithIntervalStartDate(base), trigger.WithIntervalLocation(time.UTC))
	paused, err := job.New(func() {}, trig, job.WithID("paused"))
	require.NoError(t, err)
	paused.Pause()

	require.NoError(t, store.AddJob(paused))

	due, err := store.GetDueJobs(base.Add(100 * time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestMemoryJobStore_UpdateJobReordersByNewRunTime(t *testing.T) {
	store := NewMemoryJobStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	a := newTestJob(t, "a", base.Add(time.Minute))
	b := newTestJob(t, "b", base.Add(2*time.Minute))
	require.NoError(t, store.AddJob(a))
	require.NoError(t, store.AddJob(b))

	// Push "b" to fire before "a".
	moved := b.Clone()
	earlier := base.Add(10 * time.Second)
	moved.SetNextRunTime(&earlier)
	require.NoError(t, store.UpdateJob(moved))

	due, err := store.GetDueJobs(base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "b", due[0].ID)
	assert.Equal(t, "a", due[1].ID)
}

func TestMemoryJobStore_RemoveJob(t *testing.T) {
	store := NewMemoryJobStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j := newTestJob(t, "job-1", base)
	require.NoError(t, store.AddJob(j))

	require.NoError(t, store.RemoveJob("job-1"))

	found, err := store.LookupJob("job-1")
	require.NoError(t, err)
	assert.Nil(t, found)

	err = store.RemoveJob("job-1")
	assert.Error(t, err)
	var lookupErr *JobLookupError
	assert.ErrorAs(t, err, &lookupErr)
}

func TestMemoryJobStore_RemoveAllJobs(t *testing.T) {
	store := NewMemoryJobStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.AddJob(newTestJob(t, "a", base)))
	require.NoError(t, store.AddJob(newTestJob(t, "b", base)))

	require.NoError(t, store.RemoveAllJobs())

	all, err := store.GetAllJobs()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMemoryJobStore_Shutdown_ClearsJobs(t *testing.T) {
	store := NewMemoryJobStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.AddJob(newTestJob(t, "a", base)))

	require.NoError(t, store.Shutdown())

	all, err := store.GetAllJobs()
	require.NoError(t, err)
	assert.Empty(t, all)
}
