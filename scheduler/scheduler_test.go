package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devkral/asyncz/event"
	"github.com/devkral/asyncz/executor"
	"github.com/devkral/asyncz/job"
	"github.com/devkral/asyncz/trigger"
)

func newTestScheduler(t *testing.T) *BackgroundScheduler {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Timezone = time.UTC
	s := NewBackgroundScheduler(cfg)
	require.NoError(t, s.AddExecutor(executor.NewDebugExecutor(), "default"))
	return s
}

func TestScheduler_IntervalJobFiresRepeatedly(t *testing.T) {
	s := newTestScheduler(t)

	var mu sync.Mutex
	var runs int
	done := make(chan struct{})

	s.AddListener(func(e event.Event) {
		if e.EventCode() != event.JobExecuted {
			return
		}
		mu.Lock()
		runs++
		n := runs
		mu.Unlock()
		if n == 3 {
			close(done)
		}
	}, event.JobExecuted)

	trig := trigger.NewIntervalTrigger(20 * time.Millisecond)
	_, err := s.AddJob(func() {}, trig, job.WithMaxInstances(10))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	defer s.Shutdown(true)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("interval job did not fire three times in time")
	}
}

func TestScheduler_PauseStopsExecutionUntilResumed(t *testing.T) {
	s := newTestScheduler(t)

	var mu sync.Mutex
	var runs int
	s.AddListener(func(e event.Event) {
		if e.EventCode() != event.JobExecuted {
			return
		}
		mu.Lock()
		runs++
		mu.Unlock()
	}, event.JobExecuted)

	trig := trigger.NewIntervalTrigger(15 * time.Millisecond)
	_, err := s.AddJob(func() {}, trig, job.WithMaxInstances(10))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	defer s.Shutdown(true)

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, s.Pause())
	assert.Equal(t, StatePaused, s.State())

	mu.Lock()
	runsAtPause := runs
	mu.Unlock()

	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	runsStillPaused := runs
	mu.Unlock()
	assert.Equal(t, runsAtPause, runsStillPaused, "no job should run while paused")

	require.NoError(t, s.Resume())
	assert.Equal(t, StateRunning, s.State())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs > runsStillPaused
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_MaxInstancesSkipsOverlappingRuns(t *testing.T) {
	// A goroutine pool executor is required here (unlike the debug executor,
	// which runs synchronously) so that overlapping runs are possible.
	s2 := NewBackgroundScheduler(DefaultConfig())
	require.NoError(t, s2.AddExecutor(executor.NewGoroutinePoolExecutor(10), "default"))

	var mu sync.Mutex
	var maxInstanceHits int
	release := make(chan struct{})
	var releaseOnce sync.Once

	s2.AddListener(func(e event.Event) {
		if e.EventCode() == event.JobMaxInstances {
			mu.Lock()
			maxInstanceHits++
			mu.Unlock()
			releaseOnce.Do(func() { close(release) })
		}
	}, event.JobMaxInstances)

	trig := trigger.NewIntervalTrigger(10 * time.Millisecond)
	_, err := s2.AddJob(func() {
		time.Sleep(200 * time.Millisecond)
	}, trig, job.WithMaxInstances(1))
	require.NoError(t, err)

	require.NoError(t, s2.Start(context.Background()))
	defer s2.Shutdown(false)

	select {
	case <-release:
	case <-time.After(2 * time.Second):
		t.Fatal("expected at least one max-instances skip while the first run was sleeping")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, maxInstanceHits, 0)
}

func TestScheduler_DateTriggerFiresOnceThenJobIsRemoved(t *testing.T) {
	s := newTestScheduler(t)

	var mu sync.Mutex
	var runs int
	removed := make(chan struct{})

	s.AddListener(func(e event.Event) {
		switch e.EventCode() {
		case event.JobExecuted:
			mu.Lock()
			runs++
			mu.Unlock()
		case event.JobRemoved:
			close(removed)
		}
	}, 0)

	trig := trigger.NewDateTrigger(time.Now().Add(20 * time.Millisecond))
	_, err := s.AddJob(func() {}, trig)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	defer s.Shutdown(true)

	select {
	case <-removed:
	case <-time.After(2 * time.Second):
		t.Fatal("one-shot job was never removed after firing")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, runs)
}

func TestScheduler_StartTwiceReturnsError(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.Start(context.Background()))
	defer s.Shutdown(true)

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, ErrSchedulerAlreadyRunning)
}

func TestScheduler_PauseWhenNotRunningFails(t *testing.T) {
	s := newTestScheduler(t)
	err := s.Pause()
	assert.ErrorIs(t, err, ErrSchedulerNotRunning)
}
