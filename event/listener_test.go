package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenerManager_DispatchSync_RespectsMask(t *testing.T) {
	m := NewListenerManager()

	var jobEvents, allEvents int
	var mu sync.Mutex

	m.AddListener(func(e Event) {
		mu.Lock()
		jobEvents++
		mu.Unlock()
	}, JobAdded)

	m.AddListener(func(e Event) {
		mu.Lock()
		allEvents++
		mu.Unlock()
	}, 0) // 0 means All

	m.DispatchSync(NewJobAddedEvent("job-1", "default"))
	m.DispatchSync(NewSchedulerStartedEvent())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, jobEvents)
	assert.Equal(t, 2, allEvents)
}

func TestListenerManager_RemoveListener_StopsFurtherDispatch(t *testing.T) {
	m := NewListenerManager()

	var calls int
	var mu sync.Mutex
	namedCallback := func(e Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	}

	m.AddListener(namedCallback, 0)
	m.DispatchSync(NewSchedulerStartedEvent())

	m.RemoveListener(namedCallback)
	m.DispatchSync(NewSchedulerStartedEvent())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls, "listener should not receive events dispatched after removal")
}

func TestListenerManager_Dispatch_IsAsynchronous(t *testing.T) {
	m := NewListenerManager()

	done := make(chan struct{})
	m.AddListener(func(e Event) {
		close(done)
	}, 0)

	m.Dispatch(NewSchedulerStartedEvent())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener was not invoked")
	}
}

func TestListenerManager_Dispatch_PreservesOrder(t *testing.T) {
	m := NewListenerManager()

	var mu sync.Mutex
	var seen []Code

	m.AddListener(func(e Event) {
		mu.Lock()
		seen = append(seen, e.EventCode())
		mu.Unlock()
	}, 0)

	m.Dispatch(NewJobSubmittedEvent("job-1", "default", nil))
	done := make(chan struct{})
	m.AddListener(func(e Event) {
		close(done)
	}, JobExecuted)
	m.Dispatch(NewJobExecutedEvent("job-1", "default", time.Now(), nil))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []Code{JobSubmitted, JobExecuted}, seen,
		"JOB_SUBMITTED must be delivered before JOB_EXECUTED for the same job")
}

func TestListenerManager_ClearAndCount(t *testing.T) {
	m := NewListenerManager()
	m.AddListener(func(e Event) {}, 0)
	m.AddListener(func(e Event) {}, 0)
	require.Equal(t, 2, m.Count())

	m.Clear()
	assert.Equal(t, 0, m.Count())
}
