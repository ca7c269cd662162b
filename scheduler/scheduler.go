// Package scheduler is the time-driven executor described by
// SPEC_FULL.md §4.2: it materialises a Plan into Jobs, arms timers
// against an injected Clock, dispatches sends through a rate-limited
// backend, and maintains the per-task status matrix and statistics
// under start/pause/resume/stop/reset control.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sendwave/campaignsched/internal/clock"
	"github.com/sendwave/campaignsched/internal/types"
)

// Logger is the minimal logging capability the scheduler depends on,
// matching the shape used throughout this codebase's other packages.
type Logger interface {
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
}

// SendFunc is the send backend's contract as the scheduler sees it.
type SendFunc func(ctx context.Context, senderID, recipientID, subject, body string) (string, error)

// TaskRecorder persists only what SPEC_FULL.md §6 calls "persisted
// state": a task's status, start/end time and duration. Per-job
// runtime is never persisted.
type TaskRecorder interface {
	UpdateTaskStatus(taskID string, status types.TaskStatus, start, end *time.Time, durationDays int) error
}

// NoopRecorder discards every update; useful when the enclosing
// service doesn't need durability (e.g. tests).
type NoopRecorder struct{}

func (NoopRecorder) UpdateTaskStatus(string, types.TaskStatus, *time.Time, *time.Time, int) error {
	return nil
}

// MetricsSink receives scheduler-observed counters. Optional; without
// WithMetrics, New installs a sink that discards them.
type MetricsSink interface {
	SetJobsPending(n int)
	RecordTaskStarted()
	RecordTaskCompleted()
	RecordTaskFailed()
	RecordJobDispatched()
	RecordJobSent()
	RecordJobFailed(err error)
}

type noopMetricsSink struct{}

func (noopMetricsSink) SetJobsPending(int)     {}
func (noopMetricsSink) RecordTaskStarted()     {}
func (noopMetricsSink) RecordTaskCompleted()   {}
func (noopMetricsSink) RecordTaskFailed()      {}
func (noopMetricsSink) RecordJobDispatched()   {}
func (noopMetricsSink) RecordJobSent()         {}
func (noopMetricsSink) RecordJobFailed(error)  {}

const completionCheckInterval = 60 * time.Second

// Scheduler owns every task's runtime. A single mutex protects the
// tasks/jobs/timer-handle maps and statistics, per SPEC_FULL.md §5;
// it is never held across a send-backend call.
type Scheduler struct {
	mu       sync.Mutex
	clock    clock.Clock
	send     SendFunc
	log      Logger
	notifier Notifier
	recorder TaskRecorder

	jobs    *jobStore
	tasks   map[string]*taskState
	metrics MetricsSink
}

type taskState struct {
	taskID      string
	status      types.TaskStatus
	subject     string
	body        string
	recipientIDs []string
	totalEmails int
	startTime   time.Time
	endTime     time.Time
	durationDays int

	timers          map[string]clock.Handle
	completionTimer clock.Handle
}

// New creates a Scheduler. Pass clock.Real{} in production and
// clock.NewFake for deterministic tests.
func New(c clock.Clock, send SendFunc, log Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:    c,
		send:     send,
		log:      log,
		notifier: NoopNotifier{},
		recorder: NoopRecorder{},
		metrics:  noopMetricsSink{},
		jobs:     newJobStore(),
		tasks:    make(map[string]*taskState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option configures optional Scheduler collaborators.
type Option func(*Scheduler)

func WithNotifier(n Notifier) Option     { return func(s *Scheduler) { s.notifier = n } }
func WithRecorder(r TaskRecorder) Option { return func(s *Scheduler) { s.recorder = r } }
func WithMetrics(m MetricsSink) Option   { return func(s *Scheduler) { s.metrics = m } }

// StartTask materialises plan into jobs for taskID, arms timers for
// every job, and transitions the task to Running. recipientIDs maps
// the planner's 0-based recipient indices back to real recipient ids,
// in the same order the planner counted them. Any prior runtime state
// for taskID is cleaned up first, idempotently.
func (s *Scheduler) StartTask(taskID string, plan types.Plan, recipientIDs []string, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupTaskLocked(taskID)

	if err := validatePlan(plan, len(recipientIDs)); err != nil {
		die := &DataIntegrityError{TaskID: taskID, Reason: err.Error()}
		now := s.clock.Now()
		_ = s.recorder.UpdateTaskStatus(taskID, types.TaskFailed, nil, &now, 0)
		s.metrics.RecordTaskFailed()
		s.log.Errorf("start task %s: %v", taskID, die)
		return die
	}

	now := s.clock.Now()
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	st := &taskState{
		taskID:       taskID,
		status:       types.TaskRunning,
		subject:      subject,
		body:         body,
		recipientIDs: recipientIDs,
		totalEmails:  plan.TotalEmails,
		startTime:    now,
		durationDays: plan.CalculatedDays,
		timers:       make(map[string]clock.Handle),
	}
	s.tasks[taskID] = st

	for _, day := range plan.DailySchedule {
		for _, sd := range day.PerSender {
			for i, idx := range sd.RecipientIdx {
				if idx < 0 || idx >= len(recipientIDs) {
					continue
				}
				recipientID := recipientIDs[idx]
				jobID := fmt.Sprintf("%s|%s|%s|%d|%d", taskID, sd.SenderID, recipientID, day.Day, i)
				scheduledAt := jobScheduledAt(startOfToday, day.Day, sd.PlannedTimes, i, s.log, jobID)

				job := &types.Job{
					ID:          jobID,
					TaskID:      taskID,
					SenderID:    sd.SenderID,
					RecipientID: recipientID,
					ScheduledAt: scheduledAt,
					Status:      types.JobPending,
				}
				s.jobs.put(job)
				s.armJobLocked(st, job)
			}
		}
	}

	s.armCompletionCheckLocked(st)
	s.metrics.SetJobsPending(len(s.jobs.forTask(taskID)))
	s.metrics.RecordTaskStarted()
	_ = s.recorder.UpdateTaskStatus(taskID, types.TaskRunning, &st.startTime, nil, st.durationDays)
	return nil
}

// validatePlan re-checks, independently of the planner, that every
// per-sender day satisfies len(recipientIds) == len(plannedTimes). The
// scheduler MUST NOT silently repair a mismatch at start time.
func validatePlan(plan types.Plan, recipientCount int) error {
	for _, day := range plan.DailySchedule {
		for _, sd := range day.PerSender {
			if len(sd.RecipientIdx) != len(sd.PlannedTimes) {
				return fmt.Errorf("day %d sender %s: %d recipients but %d planned times",
					day.Day, sd.SenderID, len(sd.RecipientIdx), len(sd.PlannedTimes))
			}
			for _, idx := range sd.RecipientIdx {
				if idx < 0 || idx >= recipientCount {
					return fmt.Errorf("day %d sender %s: recipient index %d out of range [0,%d)",
						day.Day, sd.SenderID, idx, recipientCount)
				}
			}
		}
	}
	return nil
}

// jobScheduledAt computes the wall-clock instant for slot i on the
// given day. A missing planned time falls back to day 00:00 and is
// logged, per SPEC_FULL.md §4.2.
func jobScheduledAt(startOfToday time.Time, day int, plannedTimes []string, i int, log Logger, jobID string) time.Time {
	dayStart := startOfToday.Add(time.Duration(day-1) * 24 * time.Hour)
	if i >= len(plannedTimes) {
		log.Errorf("job %s: missing planned time for slot %d, falling back to day start", jobID, i)
		return dayStart
	}
	h, m, err := parseHHMM(plannedTimes[i])
	if err != nil {
		log.Errorf("job %s: invalid planned time %q, falling back to day start: %v", jobID, plannedTimes[i], err)
		return dayStart
	}
	return dayStart.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func parseHHMM(s string) (int, int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM")
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return h, m, nil
}

// armJobLocked arms (or immediately dispatches) a single pending job.
// Caller must hold s.mu.
func (s *Scheduler) armJobLocked(st *taskState, job *types.Job) {
	delay := job.ScheduledAt.Sub(s.clock.Now())
	if delay <= 0 {
		go s.dispatch(st.taskID, job.ID)
		return
	}
	jobID := job.ID
	taskID := st.taskID
	st.timers[jobID] = s.clock.AfterFunc(delay, func() {
		s.dispatch(taskID, jobID)
	})
}

// dispatch fires on the timer's own goroutine: it re-checks the task is
// still running, transitions the job to Processing, calls the send
// backend (never under the scheduler's lock), and applies the terminal
// transition.
func (s *Scheduler) dispatch(taskID, jobID string) {
	s.mu.Lock()
	st, ok := s.tasks[taskID]
	if !ok || st.status != types.TaskRunning {
		s.mu.Unlock()
		return
	}
	job, ok := s.jobs.get(jobID)
	if !ok || job.Status != types.JobPending {
		s.mu.Unlock()
		return
	}
	job.Status = types.JobProcessing
	job.Attempts++
	subject, body := st.subject, st.body
	delete(st.timers, jobID)
	s.metrics.RecordJobDispatched()
	s.mu.Unlock()

	msgID, err := s.send(context.Background(), job.SenderID, job.RecipientID, subject, body)

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok = s.tasks[taskID]
	if !ok {
		return // task was stopped/reset while the send was in flight
	}

	now := s.clock.Now()
	if err != nil {
		job.Status = types.JobFailed
		job.Error = err.Error()
		s.metrics.RecordJobFailed(err)
	} else {
		job.Status = types.JobSent
		job.SentAt = &now
		_ = msgID
		s.metrics.RecordJobSent()
	}

	if st.status != types.TaskRunning {
		// Paused/stopped between arm and fire: terminal transition
		// above still applies, but no follow-up scheduling happens.
		return
	}

	s.checkCompletionLocked(st)
}

// checkCompletionLocked transitions a task to Completed once no
// Pending jobs remain. Caller must hold s.mu.
func (s *Scheduler) checkCompletionLocked(st *taskState) {
	jobs := s.jobs.forTask(st.taskID)
	for _, j := range jobs {
		if j.Status == types.JobPending {
			return
		}
	}

	st.status = types.TaskCompleted
	now := s.clock.Now()
	st.endTime = now
	s.cancelCompletionTimerLocked(st)

	_, stats := buildMatrix(jobs)
	s.metrics.RecordTaskCompleted()
	s.metrics.SetJobsPending(0)
	_ = s.recorder.UpdateTaskStatus(st.taskID, types.TaskCompleted, &st.startTime, &now, st.durationDays)

	event := TaskCompletionEvent{
		TaskID:      st.taskID,
		Status:      string(types.TaskCompleted),
		TotalEmails: stats.TotalEmails,
		TotalSent:   stats.TotalSent,
		TotalFailed: stats.TotalFailed,
		StartTime:   st.startTime,
		EndTime:     now,
	}
	notifier := s.notifier
	go notifier.NotifyTaskComplete(event)
}

// armCompletionCheckLocked arms the low-frequency completion-check
// tick described in §4.2. Caller must hold s.mu.
func (s *Scheduler) armCompletionCheckLocked(st *taskState) {
	taskID := st.taskID
	st.completionTimer = s.clock.AfterFunc(completionCheckInterval, func() {
		s.mu.Lock()
		cur, ok := s.tasks[taskID]
		if !ok || cur.status != types.TaskRunning {
			s.mu.Unlock()
			return
		}
		s.checkCompletionLocked(cur)
		if cur.status == types.TaskRunning {
			s.armCompletionCheckLocked(cur)
		}
		s.mu.Unlock()
	})
}

func (s *Scheduler) cancelCompletionTimerLocked(st *taskState) {
	if st.completionTimer != nil {
		st.completionTimer.Cancel()
		st.completionTimer = nil
	}
}

// PauseTask cancels every pending timer for taskID and marks it
// Paused. Jobs already Processing run to their terminal outcome; the
// follow-up completion check is simply not re-armed until resume.
func (s *Scheduler) PauseTask(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	if st.status != types.TaskRunning {
		return nil
	}

	for id, h := range st.timers {
		h.Cancel()
		delete(st.timers, id)
	}
	s.cancelCompletionTimerLocked(st)

	st.status = types.TaskPaused
	_ = s.recorder.UpdateTaskStatus(taskID, types.TaskPaused, &st.startTime, nil, st.durationDays)
	return nil
}

// ResumeTask re-arms timers for every still-Pending job based on its
// ScheduledAt; overdue jobs fire immediately. A resume of an
// uninitialised task is a no-op.
func (s *Scheduler) ResumeTask(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tasks[taskID]
	if !ok {
		return nil
	}
	if st.status != types.TaskPaused {
		return nil
	}

	st.status = types.TaskRunning
	for _, job := range s.jobs.forTask(taskID) {
		if job.Status == types.JobPending {
			s.armJobLocked(st, job)
		}
	}
	s.armCompletionCheckLocked(st)

	_ = s.recorder.UpdateTaskStatus(taskID, types.TaskRunning, &st.startTime, nil, st.durationDays)
	return nil
}

// StopTask cancels every timer, deletes every job, and deletes the
// task's runtime entirely. Stopping an unknown task is a no-op.
func (s *Scheduler) StopTask(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[taskID]; !ok {
		return nil
	}
	s.cleanupTaskLocked(taskID)
	_ = s.recorder.UpdateTaskStatus(taskID, types.TaskInitialized, nil, nil, 0)
	return nil
}

// cleanupTaskLocked cancels every timer and deletes every job for
// taskID, then removes its runtime. Safe to call on a task with no
// prior state. Caller must hold s.mu.
func (s *Scheduler) cleanupTaskLocked(taskID string) {
	st, ok := s.tasks[taskID]
	if !ok {
		return
	}
	for _, h := range st.timers {
		h.Cancel()
	}
	s.cancelCompletionTimerLocked(st)
	s.jobs.deleteTask(taskID)
	delete(s.tasks, taskID)
}

// TaskSnapshot is the read-only view returned by GetTaskStatus.
type TaskSnapshot struct {
	TaskID     string
	Status     types.TaskStatus
	StartTime  time.Time
	EndTime    time.Time
	Statistics types.TaskStatistics
}

// GetTaskStatus returns a point-in-time snapshot of a task's runtime.
func (s *Scheduler) GetTaskStatus(taskID string) (TaskSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tasks[taskID]
	if !ok {
		return TaskSnapshot{}, ErrTaskNotFound
	}

	_, stats := buildMatrix(s.jobs.forTask(taskID))
	return TaskSnapshot{
		TaskID:     taskID,
		Status:     st.status,
		StartTime:  st.startTime,
		EndTime:    st.endTime,
		Statistics: stats,
	}, nil
}

// GetStatusMatrix returns the recipient -> sender -> status view for a
// task.
func (s *Scheduler) GetStatusMatrix(taskID string) (StatusMatrix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[taskID]; !ok {
		return nil, ErrTaskNotFound
	}
	matrix, _ := buildMatrix(s.jobs.forTask(taskID))
	return matrix, nil
}

// Reset clears every task, job and timer process-wide. Administrative
// operation; does not touch the send backend's own rate-envelope state.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for taskID, st := range s.tasks {
		for _, h := range st.timers {
			h.Cancel()
		}
		s.cancelCompletionTimerLocked(st)
		_ = taskID
	}
	s.tasks = make(map[string]*taskState)
	s.jobs.reset()
}
