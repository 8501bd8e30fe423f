package executor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/devkral/asyncz/event"
	"github.com/devkral/asyncz/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventCollector implements EventDispatcher and records dispatched events.
type eventCollector struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *eventCollector) DispatchEvent(e event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *eventCollector) snapshot() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.Event, len(c.events))
	copy(out, c.events)
	return out
}

func newTestJobWithFunc(t *testing.T, fn interface{}, maxInstances int) *job.Job {
	t.Helper()
	j, err := job.New(fn, nil, job.WithMaxInstances(maxInstances))
	require.NoError(t, err)
	return j
}

func TestDebugExecutor_RunsSynchronouslyAndReportsResult(t *testing.T) {
	collector := &eventCollector{}
	exec := NewDebugExecutor()
	require.NoError(t, exec.Start(collector, "default"))

	j := newTestJobWithFunc(t, func() string { return "done" }, 1)

	require.NoError(t, exec.SubmitJob(j, []time.Time{time.Now()}))

	events := collector.snapshot()
	require.Len(t, events, 1)
	execEvent, ok := events[0].(*event.JobExecutionEvent)
	require.True(t, ok)
	assert.Equal(t, event.JobExecuted, execEvent.EventCode())
	assert.Equal(t, "done", execEvent.ReturnValue)
}

func TestDebugExecutor_ReportsFunctionError(t *testing.T) {
	collector := &eventCollector{}
	exec := NewDebugExecutor()
	require.NoError(t, exec.Start(collector, "default"))

	boom := errors.New("boom")
	j := newTestJobWithFunc(t, func() error { return boom }, 1)

	require.NoError(t, exec.SubmitJob(j, []time.Time{time.Now()}))

	events := collector.snapshot()
	require.Len(t, events, 1)
	execEvent := events[0].(*event.JobExecutionEvent)
	assert.Equal(t, event.JobError, execEvent.EventCode())
	assert.Equal(t, boom, execEvent.Exception)
}

func TestDebugExecutor_RecoversFromPanic(t *testing.T) {
	collector := &eventCollector{}
	exec := NewDebugExecutor()
	require.NoError(t, exec.Start(collector, "default"))

	j := newTestJobWithFunc(t, func() { panic("kaboom") }, 1)

	require.NoError(t, exec.SubmitJob(j, []time.Time{time.Now()}))

	events := collector.snapshot()
	require.Len(t, events, 1)
	execEvent := events[0].(*event.JobExecutionEvent)
	assert.Equal(t, event.JobError, execEvent.EventCode())
	assert.Contains(t, execEvent.Exception.Error(), "kaboom")
}

func TestDebugExecutor_SkipsRunPastMisfireGraceTime(t *testing.T) {
	collector := &eventCollector{}
	exec := NewDebugExecutor()
	require.NoError(t, exec.Start(collector, "default"))

	grace := 10 * time.Millisecond
	j, err := job.New(func() {}, nil, job.WithMisfireGraceTime(grace))
	require.NoError(t, err)

	staleRunTime := time.Now().Add(-time.Hour)
	require.NoError(t, exec.SubmitJob(j, []time.Time{staleRunTime}))

	events := collector.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, event.JobMissed, events[0].EventCode())
}

func TestGoroutinePoolExecutor_EnforcesMaxInstances(t *testing.T) {
	collector := &eventCollector{}
	exec := NewGoroutinePoolExecutor(4)
	require.NoError(t, exec.Start(collector, "default"))
	defer exec.Shutdown(true)

	release := make(chan struct{})
	started := make(chan struct{}, 1)

	j := newTestJobWithFunc(t, func() {
		started <- struct{}{}
		<-release
	}, 1)

	assert.Equal(t, 0, exec.Instances(j.ID))

	require.NoError(t, exec.SubmitJob(j, []time.Time{time.Now()}))
	<-started // first run is now occupying the only instance slot
	assert.Equal(t, 1, exec.Instances(j.ID))

	err := exec.SubmitJob(j, []time.Time{time.Now()})
	require.Error(t, err)
	var maxErr *MaxInstancesReachedError
	assert.ErrorAs(t, err, &maxErr)

	close(release)
}

func TestGoroutinePoolExecutor_StartThenShutdownSucceeds(t *testing.T) {
	exec := NewGoroutinePoolExecutor(2)
	require.NoError(t, exec.Start(nil, "default"))
	require.NoError(t, exec.Shutdown(true))
}
