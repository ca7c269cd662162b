package metrics

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordJobLifecycle(t *testing.T) {
	m := &Metrics{ErrorCounts: make(map[string]uint64)}

	m.SetJobsPending(5)
	m.RecordJobDispatched()
	m.RecordJobSent()

	m.RecordJobDispatched()
	m.RecordJobFailed(fmt.Errorf("boom"))

	snap := m.snapshot()
	assert.EqualValues(t, 2, snap.JobsDispatched)
	assert.EqualValues(t, 1, snap.JobsSent)
	assert.EqualValues(t, 1, snap.JobsFailed)
	assert.EqualValues(t, 3, snap.JobsPending)
	assert.Equal(t, uint64(1), snap.ErrorCounts["boom"])
}

func TestMetrics_RecordTaskLifecycle(t *testing.T) {
	m := &Metrics{ErrorCounts: make(map[string]uint64)}

	m.RecordTaskStarted()
	m.RecordTaskStarted()
	m.RecordTaskCompleted()
	m.RecordTaskFailed()

	snap := m.snapshot()
	assert.EqualValues(t, 2, snap.TasksStarted)
	assert.EqualValues(t, 1, snap.TasksCompleted)
	assert.EqualValues(t, 1, snap.TasksFailed)
	assert.EqualValues(t, 0, snap.ActiveTasks)
}

func TestMetrics_GetStatsIsValidJSON(t *testing.T) {
	m := &Metrics{ErrorCounts: make(map[string]uint64)}
	m.RecordJobSent()

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(m.GetStats()), &decoded))
	assert.EqualValues(t, 1, decoded["jobs_sent"])
}

func TestMetrics_RateLimitRejections(t *testing.T) {
	m := &Metrics{ErrorCounts: make(map[string]uint64)}
	m.RecordRateLimitRejection()
	m.RecordRateLimitRejection()

	assert.EqualValues(t, 2, m.snapshot().RateLimitRejections)
}
