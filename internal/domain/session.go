package domain

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidTransition indicates an attempt to move an agent status
// backwards (e.g. done -> running) within a single run.
var ErrInvalidTransition = errors.New("invalid status transition")

// RunState is the coarse state of the session's current orchestration run.
type RunState string

const (
	RunIdle       RunState = "idle"
	RunProcessing RunState = "processing"
	RunCompleted  RunState = "completed"
	RunError      RunState = "error"
)

// Session holds the state of one workspace: the current case descriptor,
// per-agent statuses and results, and the chat transcript. It is the
// explicit run context passed between the orchestrator and the view
// layer — there is no process-wide state.
//
// The orchestrator is the single writer; HTTP handlers and the websocket
// hub read concurrently through Snapshot.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu          sync.RWMutex
	caseDesc    CaseDescriptor
	runState    RunState
	statuses    map[AgentID]Status
	results     map[AgentID]*ResultEnvelope
	transcript  []TranscriptEntry
	finalAnswer string
	report      *ReportPayload
	updatedAt   time.Time
}

// NewSession creates a session for the given case with every agent idle.
func NewSession(id string, c CaseDescriptor) *Session {
	now := time.Now()
	s := &Session{
		ID:        id,
		CreatedAt: now,
		caseDesc:  c,
		runState:  RunIdle,
		statuses:  make(map[AgentID]Status, len(AllAgents())),
		results:   make(map[AgentID]*ResultEnvelope),
		updatedAt: now,
	}
	for _, agentID := range AllAgents() {
		s.statuses[agentID] = StatusIdle
	}
	return s
}

// Case returns the current case descriptor.
func (s *Session) Case() CaseDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caseDesc
}

// ResetForRun prepares the session for a fresh orchestration run: the
// case is replaced wholesale, every agent status returns to idle, and
// stale results and the final answer are dropped. The transcript is kept;
// it narrates the whole session, not a single run.
func (s *Session) ResetForRun(c CaseDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caseDesc = c
	s.runState = RunProcessing
	for _, agentID := range AllAgents() {
		s.statuses[agentID] = StatusIdle
	}
	s.results = make(map[AgentID]*ResultEnvelope)
	s.finalAnswer = ""
	s.report = nil
	s.updatedAt = time.Now()
}

// SetStatus moves one agent to the given status, enforcing the
// idle -> running -> done|error machine. Terminal states are only left
// through ResetForRun.
func (s *Session) SetStatus(id AgentID, next Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.statuses[id]
	if cur == next {
		return nil
	}
	if !cur.CanTransition(next) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, id, cur, next)
	}
	s.statuses[id] = next
	s.updatedAt = time.Now()
	return nil
}

// Status returns the current status of one agent.
func (s *Session) Status(id AgentID) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statuses[id]
}

// StoreResult retains the envelope for its agent, replacing any previous
// one (last-write-wins; no history is kept).
func (s *Session) StoreResult(env *ResultEnvelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[env.AgentID] = env
	s.updatedAt = time.Now()
}

// Result returns the retained envelope for an agent, or nil.
func (s *Session) Result(id AgentID) *ResultEnvelope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.results[id]
}

// Append adds one entry to the transcript and returns it.
func (s *Session) Append(sender, message string) TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := TranscriptEntry{Sender: sender, Message: message, Timestamp: time.Now()}
	s.transcript = append(s.transcript, entry)
	s.updatedAt = entry.Timestamp
	return entry
}

// SetFinalAnswer records the master agent's aggregate answer.
func (s *Session) SetFinalAnswer(answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalAnswer = answer
	s.updatedAt = time.Now()
}

// SetReport records the report descriptor produced by a run or an
// explicit report request.
func (s *Session) SetReport(r *ReportPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = r
	s.updatedAt = time.Now()
}

// Report returns a copy of the recorded report descriptor, or nil.
func (s *Session) Report() *ReportPayload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.report == nil {
		return nil
	}
	r := *s.report
	return &r
}

// SetRunState updates the coarse run state.
func (s *Session) SetRunState(state RunState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runState = state
	s.updatedAt = time.Now()
}

// RunStateNow returns the coarse run state.
func (s *Session) RunStateNow() RunState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runState
}

// Progress returns the percentage of non-report agents that have reached
// a terminal state in the current run.
func (s *Session) Progress() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total, terminal := 0, 0
	for _, agentID := range AllAgents() {
		if agentID == AgentReport {
			continue
		}
		total++
		if st := s.statuses[agentID]; st == StatusDone || st == StatusError {
			terminal++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(terminal) / float64(total) * 100
}

// Snapshot is an immutable copy of session state for rendering. Building
// a view from a snapshot is a pure function of the snapshot.
type Snapshot struct {
	ID          string                     `json:"session_id"`
	Case        CaseDescriptor             `json:"case"`
	RunState    RunState                   `json:"status"`
	Statuses    map[AgentID]Status         `json:"agent_statuses"`
	Results     map[AgentID]ResultEnvelope `json:"agent_results"`
	Transcript  []TranscriptEntry          `json:"chat_history"`
	FinalAnswer string                     `json:"final_answer,omitempty"`
	Report      *ReportPayload             `json:"report,omitempty"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

// Snapshot returns a deep copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make(map[AgentID]Status, len(s.statuses))
	for id, st := range s.statuses {
		statuses[id] = st
	}
	results := make(map[AgentID]ResultEnvelope, len(s.results))
	for id, env := range s.results {
		results[id] = *env
	}
	transcript := make([]TranscriptEntry, len(s.transcript))
	copy(transcript, s.transcript)

	var report *ReportPayload
	if s.report != nil {
		r := *s.report
		report = &r
	}

	return Snapshot{
		ID:          s.ID,
		Case:        s.caseDesc,
		RunState:    s.runState,
		Statuses:    statuses,
		Results:     results,
		Transcript:  transcript,
		FinalAnswer: s.finalAnswer,
		Report:      report,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.updatedAt,
	}
}
