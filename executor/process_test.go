package executor

import (
	"runtime"
	"testing"
	"time"

	"github.com/devkral/asyncz/event"
	"github.com/devkral/asyncz/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requirePosix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test relies on POSIX shell utilities")
	}
}

func newProcessJob(t *testing.T, command string, args ...interface{}) *job.Job {
	t.Helper()
	j, err := job.New(nil, nil, job.WithFuncRef(command), job.WithArgs(args...))
	require.NoError(t, err)
	return j
}

func TestProcessPoolExecutor_CapturesStdout(t *testing.T) {
	requirePosix(t)

	collector := &eventCollector{}
	exec := NewProcessPoolExecutor(2, time.Second)
	require.NoError(t, exec.Start(collector, "default"))
	defer exec.Shutdown(true)

	j := newProcessJob(t, "echo", "hello")
	require.NoError(t, exec.SubmitJob(j, []time.Time{time.Now()}))

	require.Eventually(t, func() bool {
		return len(collector.snapshot()) == 1
	}, time.Second, 10*time.Millisecond)

	execEvent := collector.snapshot()[0].(*event.JobExecutionEvent)
	assert.Equal(t, event.JobExecuted, execEvent.EventCode())
	assert.Contains(t, execEvent.ReturnValue.(string), "hello")
}

func TestProcessPoolExecutor_ReportsNonZeroExit(t *testing.T) {
	requirePosix(t)

	collector := &eventCollector{}
	exec := NewProcessPoolExecutor(2, time.Second)
	require.NoError(t, exec.Start(collector, "default"))
	defer exec.Shutdown(true)

	j := newProcessJob(t, "false")
	require.NoError(t, exec.SubmitJob(j, []time.Time{time.Now()}))

	require.Eventually(t, func() bool {
		return len(collector.snapshot()) == 1
	}, time.Second, 10*time.Millisecond)

	execEvent := collector.snapshot()[0].(*event.JobExecutionEvent)
	assert.Equal(t, event.JobError, execEvent.EventCode())
}

func TestProcessPoolExecutor_MissingCommandIsAnError(t *testing.T) {
	j, err := job.New(nil, nil)
	require.NoError(t, err)

	exec := NewProcessPoolExecutor(1, 0)
	result := exec.runSubprocess(j, time.Now())
	assert.Error(t, result.Error)
}

func TestProcessPoolExecutor_EnforcesMaxInstances(t *testing.T) {
	requirePosix(t)

	collector := &eventCollector{}
	exec := NewProcessPoolExecutor(2, 5*time.Second)
	require.NoError(t, exec.Start(collector, "default"))
	defer exec.Shutdown(true)

	j := newProcessJob(t, "sleep", "1")
	j.MaxInstances = 1

	require.NoError(t, exec.SubmitJob(j, []time.Time{time.Now()}))
	// SubmitJob counts the instance as soon as it accepts the submission.
	require.Eventually(t, func() bool {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return exec.instances[j.ID] == 1
	}, time.Second, 5*time.Millisecond)

	err := exec.SubmitJob(j, []time.Time{time.Now()})
	require.Error(t, err)
	var maxErr *MaxInstancesReachedError
	assert.ErrorAs(t, err, &maxErr)
}
