// Package api exposes the scheduler core over HTTP, per the control
// surface described for the enclosing service: calculate a plan,
// create a task record, drive start/pause/resume/stop, read status,
// and an administrative reset.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sendwave/campaignsched/internal/types"
	"github.com/sendwave/campaignsched/planner"
	"github.com/sendwave/campaignsched/scheduler"
	"github.com/sendwave/campaignsched/store"
)

// Error codes the core path can emit.
const (
	CodeTaskNotFound         = "TASK_NOT_FOUND"
	CodeCalculationRequired  = "CALCULATION_REQUIRED"
	CodeMissingStatusMatrix  = "MISSING_STATUS_MATRIX"
	CodeSchedulerStartFailed = "SCHEDULER_START_FAILED"
	CodeDataIntegrityError   = "DATA_INTEGRITY_ERROR"
	CodeInvalidAction        = "INVALID_ACTION"
	CodeInvalidSendEmails    = "INVALID_SEND_EMAILS"
	CodeDisabledSendEmails   = "DISABLED_SEND_EMAILS"
	CodeNoReceiveEmails      = "NO_RECEIVE_EMAILS"
	CodeBadRequest           = "BAD_REQUEST"
)

// apiError is the typed error envelope's inner shape.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type errorEnvelope struct {
	Success bool     `json:"success"`
	Error   apiError `json:"error"`
}

type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Success: false,
		Error:   apiError{Code: code, Message: message},
	})
}

func writeOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(successEnvelope{Success: true, Data: data})
}

// taskRecord is the façade's view of a created task, independent of
// the scheduler's runtime state.
type taskRecord struct {
	ID                       string
	Name                     string
	SenderIDs                []string
	RecipientIDs             []string
	EmailsPerHour            float64
	EmailsPerRecipientPerDay int
	WorkingHours             int
	Plan                     *types.Plan
	Status                   types.TaskStatus
	DurationDays             int
}

// Authorizer decides whether an inbound request may proceed.
// Authentication itself is out of scope here; the façade accepts a
// pluggable check so the enclosing service can wire a real one without
// this package needing to know its shape.
type Authorizer interface {
	Allow(r *http.Request) bool
}

// allowAll is the default Authorizer: every request proceeds.
type allowAll struct{}

func (allowAll) Allow(*http.Request) bool { return true }

// Server wires the planner, scheduler and directory store behind the
// HTTP contract. It holds the set of created task records, distinct
// from the scheduler's own per-task runtime.
type Server struct {
	mu        sync.Mutex
	scheduler *scheduler.Scheduler
	directory *store.DirectoryStore
	tasks     map[string]*taskRecord
	authz     Authorizer

	sendSubject, sendBody string // fixed content for every dispatched job in this façade
}

// NewServer creates an HTTP façade over sch and dir, authorizing every
// request by default.
func NewServer(sch *scheduler.Scheduler, dir *store.DirectoryStore) *Server {
	return &Server{
		scheduler:   sch,
		directory:   dir,
		tasks:       make(map[string]*taskRecord),
		authz:       allowAll{},
		sendSubject: "Campaign update",
		sendBody:    "",
	}
}

// WithAuthorizer overrides the default allow-all check.
func (s *Server) WithAuthorizer(a Authorizer) *Server {
	s.authz = a
	return s
}

// Routes registers every endpoint on mux. Routing is deliberately
// plain (prefix matching plus manual method checks) rather than
// relying on net/http's method-pattern syntax, to keep the module
// buildable on older Go toolchains.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/send-tasks/calculate", s.authGuard(s.methodGuard(http.MethodPost, s.handleCalculate)))
	mux.HandleFunc("/send-tasks", s.authGuard(s.handleSendTasks))
	mux.HandleFunc("/send-tasks/", s.authGuard(s.handleSendTaskByID))
}

func (s *Server) authGuard(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authz.Allow(r) {
			writeError(w, http.StatusUnauthorized, CodeBadRequest, "unauthorized")
			return
		}
		h(w, r)
	}
}

func (s *Server) methodGuard(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			writeError(w, http.StatusMethodNotAllowed, CodeInvalidAction, "method not allowed")
			return
		}
		h(w, r)
	}
}

// handleSendTasks dispatches the two verbs sharing the bare
// /send-tasks path: POST creates a task, DELETE resets everything.
func (s *Server) handleSendTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateTask(w, r)
	case http.MethodDelete:
		s.handleReset(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, CodeInvalidAction, "method not allowed")
	}
}

// handleSendTaskByID dispatches /send-tasks/{id}/control (POST) and
// /send-tasks/{id}/status (GET).
func (s *Server) handleSendTaskByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/send-tasks/")
	switch {
	case strings.HasSuffix(rest, "/control") && r.Method == http.MethodPost:
		id := strings.TrimSuffix(rest, "/control")
		s.handleControl(w, r, id)
	case strings.HasSuffix(rest, "/status") && r.Method == http.MethodGet:
		id := strings.TrimSuffix(rest, "/status")
		s.handleStatus(w, r, id)
	default:
		writeError(w, http.StatusNotFound, CodeTaskNotFound, "unknown route")
	}
}

type calculateRequest struct {
	SenderIDs                []string `json:"senderIds"`
	EmailsPerHour            float64  `json:"emailsPerHour"`
	EmailsPerRecipientPerDay int      `json:"emailsPerRecipientPerDay"`
	WorkingHours             int      `json:"workingHours,omitempty"`
	Segment                  string   `json:"segment,omitempty"`
	StrictGroups             bool     `json:"strictGroups,omitempty"`
}

type calculateResponse struct {
	Plan         types.Plan `json:"plan"`
	RecipientIDs []string   `json:"recipientIds"`
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "malformed request body")
		return
	}

	if len(req.SenderIDs) == 0 {
		writeError(w, http.StatusBadRequest, CodeInvalidSendEmails, "senderIds must be non-empty")
		return
	}
	enabled := make(map[string]bool)
	for _, id := range s.directory.EnabledSenderIDs() {
		enabled[id] = true
	}
	for _, id := range req.SenderIDs {
		if !enabled[id] {
			writeError(w, http.StatusBadRequest, CodeDisabledSendEmails, "sender "+id+" is missing or disabled")
			return
		}
	}

	var filter store.SegmentFilter
	if req.Segment != "" {
		f, err := store.ParseSegmentFilter(req.Segment)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
			return
		}
		filter = f
	}
	recipientIDs := s.directory.Segment(filter)
	if len(recipientIDs) == 0 {
		writeError(w, http.StatusBadRequest, CodeNoReceiveEmails, "no recipients matched")
		return
	}

	plan, err := planner.Plan(types.Params{
		SenderIDs:                req.SenderIDs,
		RecipientCount:           len(recipientIDs),
		EmailsPerHour:            req.EmailsPerHour,
		EmailsPerRecipientPerDay: req.EmailsPerRecipientPerDay,
		WorkingHours:             req.WorkingHours,
		StrictGroups:             req.StrictGroups,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	writeOK(w, calculateResponse{Plan: plan, RecipientIDs: recipientIDs})
}

type createTaskRequest struct {
	Name                     string     `json:"name"`
	SenderIDs                []string   `json:"senderIds"`
	RecipientIDs             []string   `json:"recipientIds"`
	EmailsPerHour            float64    `json:"emailsPerHour"`
	EmailsPerRecipientPerDay int        `json:"emailsPerRecipientPerDay"`
	WorkingHours             int        `json:"workingHours,omitempty"`
	Plan                     types.Plan `json:"plan"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "malformed request body")
		return
	}

	id := newTaskID()
	plan := req.Plan
	var planPtr *types.Plan
	if plan.TotalEmails > 0 {
		planPtr = &plan
	}

	s.mu.Lock()
	s.tasks[id] = &taskRecord{
		ID:                       id,
		Name:                     req.Name,
		SenderIDs:                req.SenderIDs,
		RecipientIDs:             req.RecipientIDs,
		EmailsPerHour:            req.EmailsPerHour,
		EmailsPerRecipientPerDay: req.EmailsPerRecipientPerDay,
		WorkingHours:             req.WorkingHours,
		Plan:                     planPtr,
		Status:                   types.TaskInitialized,
		DurationDays:             plan.CalculatedDays,
	}
	s.mu.Unlock()

	writeOK(w, struct {
		ID           string `json:"id"`
		DurationDays int    `json:"durationDays"`
	}{ID: id, DurationDays: plan.CalculatedDays})
}

type controlRequest struct {
	Action           string      `json:"action"`
	CalculationResult *calcResult `json:"calculationResult,omitempty"`
}

type calcResult struct {
	Plan types.Plan `json:"plan"`
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request, id string) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "malformed request body")
		return
	}

	s.mu.Lock()
	rec, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, CodeTaskNotFound, "task not found")
		return
	}

	switch req.Action {
	case "start":
		if req.CalculationResult == nil {
			writeError(w, http.StatusBadRequest, CodeMissingStatusMatrix, "calculationResult with a plan is required to start")
			return
		}
		plan := req.CalculationResult.Plan
		if err := s.scheduler.StartTask(id, plan, rec.RecipientIDs, s.sendSubject, s.sendBody); err != nil {
			s.mu.Lock()
			rec.Status = types.TaskFailed
			s.mu.Unlock()

			var integrityErr *scheduler.DataIntegrityError
			if errors.As(err, &integrityErr) {
				writeError(w, http.StatusUnprocessableEntity, CodeDataIntegrityError, err.Error())
				return
			}
			writeError(w, http.StatusUnprocessableEntity, CodeSchedulerStartFailed, err.Error())
			return
		}
		s.mu.Lock()
		rec.Status = types.TaskRunning
		rec.Plan = &plan
		s.mu.Unlock()

	case "pause":
		if err := s.scheduler.PauseTask(id); err != nil {
			writeError(w, http.StatusNotFound, CodeTaskNotFound, err.Error())
			return
		}
		s.mu.Lock()
		rec.Status = types.TaskPaused
		s.mu.Unlock()

	case "resume":
		if err := s.scheduler.ResumeTask(id); err != nil {
			writeError(w, http.StatusNotFound, CodeTaskNotFound, err.Error())
			return
		}
		s.mu.Lock()
		rec.Status = types.TaskRunning
		s.mu.Unlock()

	case "stop":
		if err := s.scheduler.StopTask(id); err != nil {
			writeError(w, http.StatusNotFound, CodeTaskNotFound, err.Error())
			return
		}
		s.mu.Lock()
		rec.Status = types.TaskInitialized
		s.mu.Unlock()

	default:
		writeError(w, http.StatusBadRequest, CodeInvalidAction, "unknown action "+req.Action)
		return
	}

	writeOK(w, struct {
		ID     string           `json:"id"`
		Status types.TaskStatus `json:"status"`
	}{ID: id, Status: rec.Status})
}

type statusResponse struct {
	Task           *taskRecord                `json:"task"`
	SchedulerStatus *scheduler.TaskSnapshot   `json:"schedulerStatus,omitempty"`
	StatusMatrix    scheduler.StatusMatrix    `json:"statusMatrix,omitempty"`
	RealTimeStats   *types.TaskStatistics     `json:"realTimeStats,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, id string) {
	s.mu.Lock()
	rec, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, CodeTaskNotFound, "task not found")
		return
	}
	if rec.Plan == nil {
		writeError(w, http.StatusBadRequest, CodeCalculationRequired, "task has no calculated plan yet")
		return
	}

	resp := statusResponse{Task: rec}

	snap, err := s.scheduler.GetTaskStatus(id)
	if err == nil {
		resp.SchedulerStatus = &snap
		resp.RealTimeStats = &snap.Statistics
	}
	matrix, err := s.scheduler.GetStatusMatrix(id)
	if err == nil {
		resp.StatusMatrix = matrix
	}

	writeOK(w, resp)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.scheduler.Reset()

	s.mu.Lock()
	s.tasks = make(map[string]*taskRecord)
	s.mu.Unlock()

	writeOK(w, struct{}{})
}

var idSeq struct {
	mu sync.Mutex
	n  int
}

// newTaskID generates a monotonically increasing, process-local task
// ID. The enclosing service's real ID scheme (UUID, DB sequence, etc)
// is out of scope here; this is just unique enough to route requests.
func newTaskID() string {
	idSeq.mu.Lock()
	defer idSeq.mu.Unlock()
	idSeq.n++
	return fmt.Sprintf("task-%d-%d", idSeq.n, time.Now().UnixNano()%1_000_000)
}
