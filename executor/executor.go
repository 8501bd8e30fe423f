// Package executor provides job execution implementations.
package executor

import (
	"fmt"
	"time"

	"github.com/devkral/asyncz/event"
	"github.com/devkral/asyncz/job"
)

// Executor is the interface for job executors.
type Executor interface {
	// Start initializes the executor.
	Start(scheduler interface{}, alias string) error

	// Shutdown stops the executor.
	// If wait is true, waits for running jobs to complete.
	Shutdown(wait bool) error

	// SubmitJob submits a job for execution.
	SubmitJob(j *job.Job, runTimes []time.Time) error

	// Instances reports how many instances of the given job are currently
	// running on this executor. Used by callers deciding whether a job is
	// safe to remove or reconfigure without orphaning in-flight work.
	Instances(jobID string) int
}

// EventDispatcher is implemented by the scheduler to dispatch events.
type EventDispatcher interface {
	DispatchEvent(e event.Event)
}

// MaxInstancesReachedError is returned when a job has too many concurrent instances.
type MaxInstancesReachedError struct {
	Job *job.Job
}

func (e *MaxInstancesReachedError) Error() string {
	return fmt.Sprintf("job %q has reached maximum instances (%d)", e.Job.ID, e.Job.MaxInstances)
}

// RunResult contains the result of executing a job.
type RunResult struct {
	JobID       string
	RunTime     time.Time
	ReturnValue interface{}
	Error       error
	Traceback   string
}
