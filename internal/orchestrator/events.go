package orchestrator

import (
	"encoding/json"

	"github.com/pharmaverse/dashboard/internal/domain"
)

// EventType identifies a progress event pushed to dashboard subscribers.
type EventType string

const (
	// EventRunStarted opens a run.
	EventRunStarted EventType = "run_started"
	// EventAgentStatus reports one agent's status change.
	EventAgentStatus EventType = "agent_status"
	// EventChatMessage mirrors a transcript entry.
	EventChatMessage EventType = "chat_message"
	// EventAgentResult carries one agent's normalized result body.
	EventAgentResult EventType = "agent_result"
	// EventRunComplete closes a run.
	EventRunComplete EventType = "run_complete"
)

// Event is one progress notification. For the sequential fan-out
// strategy events are emitted in narration order: an agent's terminal
// status and transcript entry are published before the next agent is
// dispatched.
type Event struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"session_id"`
	Agent     domain.AgentID  `json:"agent,omitempty"`
	Status    domain.Status   `json:"status,omitempty"`
	Sender    string          `json:"sender,omitempty"`
	Message   string          `json:"message,omitempty"`
	Summary   string          `json:"summary,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Progress  float64         `json:"progress,omitempty"`
}

// Sink receives orchestrator events. Publish must not block for long;
// the websocket hub writes with its own timeouts.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Publish calls f(e).
func (f SinkFunc) Publish(e Event) { f(e) }

// NopSink discards events; useful for tests and one-shot calls.
var NopSink Sink = SinkFunc(func(Event) {})
