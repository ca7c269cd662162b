// Package metrics collects scheduler throughput counters and exposes
// them over HTTP, in the teacher's atomic-counter-plus-JSON-endpoint
// style, additionally publishing the same counters via expvar so any
// process-wide expvar scraper picks them up for free.
package metrics

import (
	"encoding/json"
	"expvar"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects scheduler-wide job and task counters.
type Metrics struct {
	mu sync.RWMutex

	JobsDispatched uint64
	JobsSent       uint64
	JobsFailed     uint64
	JobsPending    int64 // gauge: can go down as well as up

	TasksStarted   uint64
	TasksCompleted uint64
	TasksFailed    uint64
	ActiveTasks    int64

	RateLimitRejections uint64

	ErrorCounts map[string]uint64
	LastError   time.Time

	startTime time.Time
}

var registerOnce sync.Once

// NewMetrics creates a metrics collector and publishes its counters
// under the "campaignsched" expvar map. Safe to call more than once
// per process; only the first call's values back the published map.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime:   time.Now(),
		ErrorCounts: make(map[string]uint64),
	}
	registerOnce.Do(func() {
		expvar.Publish("campaignsched", expvar.Func(func() any {
			return m.snapshot()
		}))
	})
	return m
}

// RecordJobDispatched records a job leaving Pending for Processing.
func (m *Metrics) RecordJobDispatched() {
	atomic.AddUint64(&m.JobsDispatched, 1)
	atomic.AddInt64(&m.JobsPending, -1)
}

// RecordJobSent records a successful send.
func (m *Metrics) RecordJobSent() {
	atomic.AddUint64(&m.JobsSent, 1)
}

// RecordJobFailed records a failed send, bucketed by error string.
func (m *Metrics) RecordJobFailed(err error) {
	atomic.AddUint64(&m.JobsFailed, 1)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ErrorCounts[err.Error()]++
	m.LastError = time.Now()
}

// RecordRateLimitRejection records an anti-spam envelope rejection.
func (m *Metrics) RecordRateLimitRejection() {
	atomic.AddUint64(&m.RateLimitRejections, 1)
}

// SetJobsPending sets the current pending-job gauge, e.g. right after
// a task's jobs are materialized.
func (m *Metrics) SetJobsPending(n int) {
	atomic.StoreInt64(&m.JobsPending, int64(n))
}

// RecordTaskStarted records a task entering Running.
func (m *Metrics) RecordTaskStarted() {
	atomic.AddUint64(&m.TasksStarted, 1)
	atomic.AddInt64(&m.ActiveTasks, 1)
}

// RecordTaskCompleted records a task reaching Completed.
func (m *Metrics) RecordTaskCompleted() {
	atomic.AddUint64(&m.TasksCompleted, 1)
	atomic.AddInt64(&m.ActiveTasks, -1)
}

// RecordTaskFailed records a task reaching Failed.
func (m *Metrics) RecordTaskFailed() {
	atomic.AddUint64(&m.TasksFailed, 1)
	atomic.AddInt64(&m.ActiveTasks, -1)
}

type snapshotView struct {
	Uptime              time.Duration     `json:"uptime"`
	JobsDispatched      uint64            `json:"jobs_dispatched"`
	JobsSent            uint64            `json:"jobs_sent"`
	JobsFailed          uint64            `json:"jobs_failed"`
	JobsPending         int64             `json:"jobs_pending"`
	TasksStarted        uint64            `json:"tasks_started"`
	TasksCompleted      uint64            `json:"tasks_completed"`
	TasksFailed         uint64            `json:"tasks_failed"`
	ActiveTasks         int64             `json:"active_tasks"`
	RateLimitRejections uint64            `json:"rate_limit_rejections"`
	ErrorCounts         map[string]uint64 `json:"error_counts"`
	LastError           time.Time         `json:"last_error"`
}

func (m *Metrics) snapshot() snapshotView {
	m.mu.RLock()
	defer m.mu.RUnlock()

	errCounts := make(map[string]uint64, len(m.ErrorCounts))
	for k, v := range m.ErrorCounts {
		errCounts[k] = v
	}

	return snapshotView{
		Uptime:              time.Since(m.startTime),
		JobsDispatched:      atomic.LoadUint64(&m.JobsDispatched),
		JobsSent:            atomic.LoadUint64(&m.JobsSent),
		JobsFailed:          atomic.LoadUint64(&m.JobsFailed),
		JobsPending:         atomic.LoadInt64(&m.JobsPending),
		TasksStarted:        atomic.LoadUint64(&m.TasksStarted),
		TasksCompleted:      atomic.LoadUint64(&m.TasksCompleted),
		TasksFailed:         atomic.LoadUint64(&m.TasksFailed),
		ActiveTasks:         atomic.LoadInt64(&m.ActiveTasks),
		RateLimitRejections: atomic.LoadUint64(&m.RateLimitRejections),
		ErrorCounts:         errCounts,
		LastError:           m.LastError,
	}
}

// GetStats returns the current counters as an indented JSON string.
func (m *Metrics) GetStats() string {
	bytes, _ := json.MarshalIndent(m.snapshot(), "", "  ")
	return string(bytes)
}

// ServeHTTP implements http.Handler for the /metrics endpoint.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, m.GetStats())
}
