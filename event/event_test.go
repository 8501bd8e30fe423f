package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerEvent_OccurredAtIsSetAtConstruction(t *testing.T) {
	before := time.Now()
	e := NewSchedulerStartedEvent()
	after := time.Now()

	var ts Timestamped = e
	assert.False(t, ts.OccurredAt().Before(before))
	assert.False(t, ts.OccurredAt().After(after))
}

func TestJobExecutionEvent_OccurredAtIsSetAtConstruction(t *testing.T) {
	before := time.Now()
	e := NewJobExecutedEvent("job-1", "default", time.Now(), "result")
	after := time.Now()

	var ts Timestamped = e
	assert.False(t, ts.OccurredAt().Before(before))
	assert.False(t, ts.OccurredAt().After(after))
	assert.Equal(t, JobExecuted, e.EventCode())
}
