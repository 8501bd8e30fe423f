package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/devkral/asyncz/event"
	"github.com/devkral/asyncz/job"
)

// ProcessPoolExecutor runs each job invocation in its own subprocess,
// isolating the job's memory and crashes from the scheduler process. The
// job's FuncRef is used as the executable path (the job's Func is never
// called); Args are marshaled to string CLI arguments via fmt.Sprint.
//
// Use this when a job's workload is unsafe to run in-process (untrusted
// code, a separate toolchain, a binary that expects to own its own
// process lifetime) at the cost of a fork+exec per run.
type ProcessPoolExecutor struct {
	mu         sync.Mutex
	maxWorkers int
	instances  map[string]int

	scheduler     interface{}
	alias         string
	eventDispatch func(event.Event)

	runTimeout time.Duration

	jobQueue     chan *processSubmission
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

type processSubmission struct {
	job           *job.Job
	runTimes      []time.Time
	jobStoreAlias string
}

// NewProcessPoolExecutor creates a process pool with maxWorkers concurrent
// subprocess slots. runTimeout bounds a single subprocess invocation; zero
// means a subprocess may run for as long as it likes.
func NewProcessPoolExecutor(maxWorkers int, runTimeout time.Duration) *ProcessPoolExecutor {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &ProcessPoolExecutor{
		maxWorkers: maxWorkers,
		instances:  make(map[string]int),
		runTimeout: runTimeout,
		jobQueue:   make(chan *processSubmission, maxWorkers*10),
		shutdownCh: make(chan struct{}),
	}
}

// Start initializes and starts the worker pool.
func (e *ProcessPoolExecutor) Start(scheduler interface{}, alias string) error {
	e.scheduler = scheduler
	e.alias = alias

	if dispatcher, ok := scheduler.(EventDispatcher); ok {
		e.eventDispatch = dispatcher.DispatchEvent
	}

	for i := 0; i < e.maxWorkers; i++ {
		e.wg.Add(1)
		go e.worker()
	}

	return nil
}

func (e *ProcessPoolExecutor) worker() {
	defer e.wg.Done()

	for {
		select {
		case <-e.shutdownCh:
			return
		case submission := <-e.jobQueue:
			if submission != nil {
				e.runJob(submission)
			}
		}
	}
}

// SubmitJob submits a job for subprocess execution.
func (e *ProcessPoolExecutor) SubmitJob(j *job.Job, runTimes []time.Time) error {
	e.mu.Lock()

	if e.instances[j.ID] >= j.MaxInstances {
		e.mu.Unlock()
		return &MaxInstancesReachedError{Job: j}
	}

	e.instances[j.ID]++
	e.mu.Unlock()

	submission := &processSubmission{
		job:           j,
		runTimes:      runTimes,
		jobStoreAlias: j.GetJobStoreAlias(),
	}

	select {
	case e.jobQueue <- submission:
		return nil
	case <-e.shutdownCh:
		e.mu.Lock()
		e.instances[j.ID]--
		if e.instances[j.ID] == 0 {
			delete(e.instances, j.ID)
		}
		e.mu.Unlock()
		return fmt.Errorf("executor is shutting down")
	}
}

func (e *ProcessPoolExecutor) runJob(submission *processSubmission) {
	j := submission.job
	jobStoreAlias := submission.jobStoreAlias

	defer func() {
		e.mu.Lock()
		e.instances[j.ID]--
		if e.instances[j.ID] == 0 {
			delete(e.instances, j.ID)
		}
		e.mu.Unlock()
	}()

	for _, runTime := range submission.runTimes {
		if j.MisfireGraceTime != nil {
			elapsed := time.Since(runTime)
			if elapsed > *j.MisfireGraceTime {
				e.dispatchEvent(event.NewJobMissedEvent(j.ID, jobStoreAlias, runTime))
				continue
			}
		}

		result := e.runSubprocess(j, runTime)

		if result.Error != nil {
			e.dispatchEvent(event.NewJobErrorEvent(
				j.ID, jobStoreAlias, runTime, result.Error, result.Traceback,
			))
		} else {
			e.dispatchEvent(event.NewJobExecutedEvent(
				j.ID, jobStoreAlias, runTime, result.ReturnValue,
			))
		}
	}
}

// runSubprocess execs the job's registered command and captures its output.
func (e *ProcessPoolExecutor) runSubprocess(j *job.Job, runTime time.Time) *RunResult {
	result := &RunResult{JobID: j.ID, RunTime: runTime}

	command := j.FuncRef
	if command == "" {
		result.Error = fmt.Errorf("process pool job has no command (FuncRef is empty)")
		return result
	}

	args := make([]string, len(j.Args))
	for i, a := range j.Args {
		args[i] = fmt.Sprint(a)
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	if e.runTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.runTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		result.Error = fmt.Errorf("command %q failed: %w", command, err)
		result.Traceback = stderr.String()
		return result
	}

	result.ReturnValue = stdout.String()
	return result
}

func (e *ProcessPoolExecutor) dispatchEvent(evt event.Event) {
	if e.eventDispatch != nil {
		e.eventDispatch(evt)
	}
}

// Instances reports how many subprocesses for jobID are currently queued or running.
func (e *ProcessPoolExecutor) Instances(jobID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.instances[jobID]
}

// Shutdown stops the executor. Running subprocesses are never killed by
// Shutdown; each runs until it exits or its runTimeout expires.
func (e *ProcessPoolExecutor) Shutdown(wait bool) error {
	e.shutdownOnce.Do(func() {
		close(e.shutdownCh)
	})

	if wait {
		e.wg.Wait()
	}

	return nil
}
