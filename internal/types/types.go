// Package types holds the domain model shared by the planner, the
// scheduler, the send backend and the persistence layer.
package types

import "time"

// TaskStatus is the single lifecycle variable driven by the scheduler.
type TaskStatus string

const (
	TaskInitialized TaskStatus = "initialized"
	TaskRunning     TaskStatus = "running"
	TaskPaused      TaskStatus = "paused"
	TaskCompleted   TaskStatus = "completed"
	TaskFailed      TaskStatus = "failed"
)

// JobStatus is the state of a single planned send.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobSent       JobStatus = "sent"
	JobFailed     JobStatus = "failed"
)

// Sender is a sending account bound to zero or more tasks. Credentials
// are out of scope here: this is the shape the scheduler reads, not the
// shape the credential store persists.
type Sender struct {
	ID           string
	CompanyName  string
	EmailAccount string
	SMTPEndpoint string
	Port         int
	TLS          bool
	SenderName   string
	Enabled      bool
}

// Recipient is a single addressable target of a campaign.
type Recipient struct {
	ID          string
	Email       string
	Blacklisted bool
	Fields      map[string]string // free-form descriptive fields, used by segment filters
}

// Task is a single campaign run.
type Task struct {
	ID                       string
	Name                     string
	Status                   TaskStatus
	StartTime                *time.Time
	EndTime                  *time.Time
	DurationDays             int
	EmailsPerHour            float64
	EmailsPerRecipientPerDay int
	CreatedBy                string
	SenderIDs                []string
}

// Params are the validated inputs to the planner.
type Params struct {
	SenderIDs                []string
	RecipientCount           int
	EmailsPerHour            float64
	EmailsPerRecipientPerDay int
	WorkingHours             int // default 24 if zero
	StrictGroups             bool
}

// GroupInfo summarizes the grouping decisions the planner made.
type GroupInfo struct {
	TotalGroups          int
	DaysPerGroup         int
	SendersPerGroup      int
	SenderDailyCapacity  int
}

// SenderDay is one sender's assignment for one day of the plan.
type SenderDay struct {
	SenderID      string
	RecipientIdx  []int // 0-based indices into the planner's recipient population
	PlannedTimes  []string
}

// DaySchedule is the full set of senders active on a given day.
type DaySchedule struct {
	Day         int // 1-indexed
	PerSender   []SenderDay
	TotalForDay int
}

// MatrixCell is one (recipient, sender) pairing seeded by the planner.
type MatrixCell struct {
	RecipientIdx int
	SenderID     string
}

// Plan is the immutable output of the planner.
type Plan struct {
	TotalEmails      int
	CalculatedDays   int
	GroupInfo        GroupInfo
	DailySchedule    []DaySchedule
	StatusMatrixSeed []MatrixCell
}

// Job is a single planned send, owned by the scheduler.
type Job struct {
	ID          string
	TaskID      string
	SenderID    string
	RecipientID string
	ScheduledAt time.Time
	Status      JobStatus
	Attempts    int
	Error       string
	SentAt      *time.Time
}

// TaskStatistics are derived invariants over a task's jobs.
type TaskStatistics struct {
	TotalEmails       int
	TotalSent         int
	TotalFailed       int
	TotalPending       int
	TotalProcessing    int
	SuccessRate       float64
	ProgressPercent   float64
}
