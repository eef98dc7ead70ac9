package domain

import "strings"

// AgentID identifies one backend worker agent. The set is closed and known
// at compile time; it keys both the status map and the result map.
type AgentID string

const (
	AgentIQVIA    AgentID = "iqvia"
	AgentEXIM     AgentID = "exim"
	AgentPatents  AgentID = "patents"
	AgentTrials   AgentID = "trials"
	AgentInternal AgentID = "internal"
	AgentWeb      AgentID = "web"
	AgentReport   AgentID = "report"
)

// AllAgents returns every agent identifier, in display order.
func AllAgents() []AgentID {
	return []AgentID{AgentIQVIA, AgentEXIM, AgentPatents, AgentTrials, AgentInternal, AgentWeb, AgentReport}
}

// FanOutAgents returns the agents dispatched automatically by the
// sequential fan-out strategy, in dispatch order. Internal knowledge and
// report generation are only triggered by explicit user action.
func FanOutAgents() []AgentID {
	return []AgentID{AgentIQVIA, AgentEXIM, AgentPatents, AgentTrials, AgentWeb}
}

// DisplayName returns the human-readable agent name used in transcripts.
func (a AgentID) DisplayName() string {
	switch a {
	case AgentIQVIA:
		return "IQVIA Insights Agent"
	case AgentEXIM:
		return "EXIM Trends Agent"
	case AgentPatents:
		return "Patent Landscape Agent"
	case AgentTrials:
		return "Clinical Trials Agent"
	case AgentInternal:
		return "Internal Knowledge Agent"
	case AgentWeb:
		return "Web Intelligence Agent"
	case AgentReport:
		return "Report Generator Agent"
	}
	return string(a)
}

// Status tracks one agent through a run: idle -> running -> done|error.
// Terminal states are only left by a fresh run resetting to idle.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// CanTransition reports whether moving from s to next is a legal step
// within a single run. Resets to idle are handled separately by the
// session and are not a per-agent transition.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusIdle:
		return next == StatusRunning
	case StatusRunning:
		return next == StatusDone || next == StatusError
	default:
		return false
	}
}

// workerNames maps the exact backend agent names to identifiers. Master
// dispatch payloads carry these names verbatim.
var workerNames = map[string]AgentID{
	"iqvia insights agent":     AgentIQVIA,
	"exim trends agent":        AgentEXIM,
	"patent landscape agent":   AgentPatents,
	"clinical trials agent":    AgentTrials,
	"internal knowledge agent": AgentInternal,
	"web intelligence agent":   AgentWeb,
	"report generator agent":   AgentReport,
}

// nameFragments is the fallback classification for backend deployments
// that rename their agents: a case-insensitive substring match against
// known identifier fragments, checked in order.
var nameFragments = []struct {
	fragment string
	id       AgentID
}{
	{"iqvia", AgentIQVIA},
	{"exim", AgentEXIM},
	{"patent", AgentPatents},
	{"clinical", AgentTrials},
	{"trial", AgentTrials},
	{"internal", AgentInternal},
	{"web", AgentWeb},
	{"intelligence", AgentWeb},
	{"report", AgentReport},
}

// ClassifyWorkerName maps a backend agent name to its identifier. The
// exact-name table is consulted first, then the substring fallback. The
// second return is false for unrecognized names; callers log and drop
// those rather than guessing.
func ClassifyWorkerName(name string) (AgentID, bool) {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return "", false
	}
	if id, ok := workerNames[lower]; ok {
		return id, true
	}
	for _, f := range nameFragments {
		if strings.Contains(lower, f.fragment) {
			return f.id, true
		}
	}
	return "", false
}
