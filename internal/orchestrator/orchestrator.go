// Package orchestrator executes analysis runs: it drives the agent
// calls for a case descriptor, keeps the session's statuses and results
// consistent with progress, and narrates the run through transcript
// entries and events.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pharmaverse/dashboard/internal/agentclient"
	"github.com/pharmaverse/dashboard/internal/domain"
)

// ErrReportUnavailable indicates report generation or retrieval failed.
var ErrReportUnavailable = errors.New("report unavailable")

// Strategy selects how a run is dispatched.
type Strategy string

const (
	// StrategyMaster issues one request to the master agent, which fans
	// out server-side. The run succeeds or fails as a whole.
	StrategyMaster Strategy = "master"
	// StrategyFanOut calls each worker agent directly, one at a time,
	// in a fixed order. One agent failing never halts the sequence.
	StrategyFanOut Strategy = "fanout"
)

// ParseStrategy maps the request field to a strategy, defaulting to the
// master dispatch.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", string(StrategyMaster):
		return StrategyMaster, nil
	case string(StrategyFanOut):
		return StrategyFanOut, nil
	default:
		return "", fmt.Errorf("unknown strategy %q", s)
	}
}

// AgentCaller is the outbound surface the orchestrator needs; it is
// implemented by agentclient.Client and faked in tests.
type AgentCaller interface {
	Fetch(ctx context.Context, id domain.AgentID, cs domain.CaseDescriptor) (*domain.ResultEnvelope, error)
	RunMaster(ctx context.Context, userQuery string) (*domain.MasterRunResponse, error)
	GenerateReport(ctx context.Context, topic string) (*domain.ReportPayload, error)
}

var _ AgentCaller = (*agentclient.Client)(nil)

// dispatchMessages narrate the sequential fan-out, one per agent.
var dispatchMessages = map[domain.AgentID]string{
	domain.AgentIQVIA:   "Analyzing market data...",
	domain.AgentEXIM:    "Analyzing trade data...",
	domain.AgentPatents: "Searching IP databases...",
	domain.AgentTrials:  "Querying clinical trial registries...",
	domain.AgentWeb:     "Searching for guidelines and publications...",
}

// chatRoutes is the ordered keyword table for targeted follow-up
// queries. Matching is a case-insensitive substring check, first route
// wins; an unmatched message gets a generic acknowledgement and no
// agent call.
var chatRoutes = []struct {
	agent    domain.AgentID
	keywords []string
	intro    string
}{
	{domain.AgentIQVIA, []string{"market", "sales", "cagr"}, "Let me pull the latest market data for you..."},
	{domain.AgentEXIM, []string{"trade", "export", "import"}, "Analyzing trade data..."},
	{domain.AgentTrials, []string{"trial", "clinical", "phase"}, "Searching clinical trial registries..."},
	{domain.AgentPatents, []string{"patent", "fto", "ip"}, "Checking the patent landscape..."},
	{domain.AgentInternal, []string{"internal", "strategy"}, "Searching the internal knowledge base..."},
	{domain.AgentWeb, []string{"guideline", "news", "web"}, "Searching web intelligence sources..."},
}

// Orchestrator drives runs against an agent backend. It is stateless;
// all run state lives on the session it is handed.
type Orchestrator struct {
	agents AgentCaller
	logger *slog.Logger
}

// New creates an orchestrator.
func New(agents AgentCaller) *Orchestrator {
	return &Orchestrator{agents: agents, logger: slog.Default()}
}

// Run executes one full analysis for the case on the given session.
// The case is validated before anything else; an invalid case is
// rejected without a single network call. The session is reset for the
// run (every status back to idle) before the first dispatch.
func (o *Orchestrator) Run(ctx context.Context, sess *domain.Session, c domain.CaseDescriptor, strategy Strategy, sink Sink) error {
	if err := c.Validate(); err != nil {
		return err
	}

	sess.ResetForRun(c)
	sink.Publish(Event{Type: EventRunStarted, SessionID: sess.ID})
	o.say(sess, sink, domain.SenderMaster,
		fmt.Sprintf("Starting comprehensive analysis: %q. Coordinating worker agents...", c.Query()))

	var err error
	switch strategy {
	case StrategyFanOut:
		err = o.runFanOut(ctx, sess, c, sink)
	default:
		err = o.runMaster(ctx, sess, c, sink)
	}
	if err != nil {
		return err
	}

	sess.SetRunState(domain.RunCompleted)
	sink.Publish(Event{Type: EventRunComplete, SessionID: sess.ID, Progress: sess.Progress()})
	return nil
}

// runMaster is the single-dispatch strategy: one request, one status
// governing every agent. There is no partial failure.
func (o *Orchestrator) runMaster(ctx context.Context, sess *domain.Session, c domain.CaseDescriptor, sink Sink) error {
	for _, id := range domain.AllAgents() {
		o.setStatus(sess, sink, id, domain.StatusRunning)
	}

	resp, err := o.agents.RunMaster(ctx, c.Query())
	if err != nil {
		for _, id := range domain.AllAgents() {
			o.setStatus(sess, sink, id, domain.StatusError)
		}
		sess.SetRunState(domain.RunError)
		o.say(sess, sink, domain.SenderMaster, "Error connecting to the master agent: "+err.Error())
		return fmt.Errorf("master dispatch: %w", err)
	}

	for _, wr := range resp.WorkerResults {
		id, ok := domain.ClassifyWorkerName(wr.Agent)
		if !ok {
			o.logger.Warn("dropping unrecognized worker result", "agent", wr.Agent, "session_id", sess.ID)
			continue
		}
		env := agentclient.EnvelopeFromWorkerResult(id, wr)
		sess.StoreResult(env)
		o.say(sess, sink, string(id), env.Summary)
		sink.Publish(Event{
			Type: EventAgentResult, SessionID: sess.ID,
			Agent: id, Summary: env.Summary, Data: env.Raw,
		})
	}

	for _, id := range domain.AllAgents() {
		o.setStatus(sess, sink, id, domain.StatusDone)
	}

	if resp.FinalAnswer != "" {
		sess.SetFinalAnswer(resp.FinalAnswer)
		o.say(sess, sink, domain.SenderMaster, resp.FinalAnswer)
	}
	if resp.Report != nil {
		sess.SetReport(resp.Report)
		o.say(sess, sink, string(domain.AgentReport), "Report generated. ID: "+resp.Report.ReportID)
	}
	return nil
}

// runFanOut calls each worker in the fixed dispatch order. The loop is
// intentionally sequential: the transcript narrates one agent at a time,
// and an agent's completion entry must appear before the next agent
// starts. A failed agent is marked and the sequence continues.
func (o *Orchestrator) runFanOut(ctx context.Context, sess *domain.Session, c domain.CaseDescriptor, sink Sink) error {
	for _, id := range domain.FanOutAgents() {
		o.setStatus(sess, sink, id, domain.StatusRunning)
		o.say(sess, sink, domain.SenderMaster, dispatchMessages[id])

		env, err := o.agents.Fetch(ctx, id, c)
		if err != nil {
			o.logger.Warn("agent call failed", "agent", id, "session_id", sess.ID, "error", err)
			o.setStatus(sess, sink, id, domain.StatusError)
			o.say(sess, sink, string(id), id.DisplayName()+" is unavailable.")
			continue
		}

		sess.StoreResult(env)
		o.setStatus(sess, sink, id, domain.StatusDone)
		o.say(sess, sink, string(id), env.Summary)
		sink.Publish(Event{
			Type: EventAgentResult, SessionID: sess.ID,
			Agent: id, Summary: env.Summary, Data: env.Raw,
		})
	}

	o.say(sess, sink, domain.SenderMaster,
		"Analysis complete. Explore the tabs for detailed insights, or ask a follow-up question.")
	return nil
}

// Chat handles a follow-up message: it is routed to at most one agent
// by keyword. An agent that already has a result answers from it; an
// idle agent is called on demand; agents in a terminal error state are
// not retried without a fresh run.
func (o *Orchestrator) Chat(ctx context.Context, sess *domain.Session, message string, sink Sink) string {
	o.say(sess, sink, domain.SenderUser, message)

	target, intro := routeMessage(message)
	if target == "" {
		reply := fmt.Sprintf("I understand you're asking about: %q. Explore the Market, Trade, Trials and Patent tabs for the data gathered so far.", message)
		o.say(sess, sink, domain.SenderMaster, reply)
		return reply
	}

	if env := sess.Result(target); env != nil {
		reply := firstSentences(env.Summary, 3)
		o.say(sess, sink, domain.SenderMaster, reply)
		return reply
	}

	switch sess.Status(target) {
	case domain.StatusRunning:
		reply := target.DisplayName() + " is still gathering data."
		o.say(sess, sink, domain.SenderMaster, reply)
		return reply
	case domain.StatusError, domain.StatusDone:
		reply := "That information was not generated in the current analysis. Run a fresh analysis to explore this area."
		o.say(sess, sink, domain.SenderMaster, reply)
		return reply
	}

	o.say(sess, sink, domain.SenderMaster, intro)
	o.setStatus(sess, sink, target, domain.StatusRunning)
	env, err := o.agents.Fetch(ctx, target, sess.Case())
	if err != nil {
		o.logger.Warn("targeted agent call failed", "agent", target, "session_id", sess.ID, "error", err)
		o.setStatus(sess, sink, target, domain.StatusError)
		reply := target.DisplayName() + " is unavailable."
		o.say(sess, sink, string(target), reply)
		return reply
	}

	sess.StoreResult(env)
	o.setStatus(sess, sink, target, domain.StatusDone)
	o.say(sess, sink, string(target), env.Summary)
	sink.Publish(Event{
		Type: EventAgentResult, SessionID: sess.ID,
		Agent: target, Summary: env.Summary, Data: env.Raw,
	})
	return env.Summary
}

// GenerateReport is the explicit report action: it reuses a descriptor
// already delivered by a master run, or asks the report backend for a
// new one. No retry on failure.
func (o *Orchestrator) GenerateReport(ctx context.Context, sess *domain.Session, topic string, sink Sink) (*domain.ReportPayload, error) {
	o.say(sess, sink, domain.SenderMaster, "Generating comprehensive report...")
	o.setStatus(sess, sink, domain.AgentReport, domain.StatusRunning)

	if report := sess.Report(); report != nil {
		o.setStatus(sess, sink, domain.AgentReport, domain.StatusDone)
		o.say(sess, sink, string(domain.AgentReport), "Report ready. ID: "+report.ReportID)
		return report, nil
	}

	if topic == "" {
		topic = sess.Case().ReportTopic()
	}
	report, err := o.agents.GenerateReport(ctx, topic)
	if err != nil {
		o.setStatus(sess, sink, domain.AgentReport, domain.StatusError)
		o.say(sess, sink, domain.SenderMaster, "Report generation failed. Run an analysis first, then try again.")
		return nil, fmt.Errorf("%w: %v", ErrReportUnavailable, err)
	}

	sess.SetReport(report)
	o.setStatus(sess, sink, domain.AgentReport, domain.StatusDone)
	o.say(sess, sink, string(domain.AgentReport), "Report generated. ID: "+report.ReportID)
	return report, nil
}

// say appends a transcript entry and mirrors it as an event.
func (o *Orchestrator) say(sess *domain.Session, sink Sink, sender, message string) {
	sess.Append(sender, message)
	sink.Publish(Event{Type: EventChatMessage, SessionID: sess.ID, Sender: sender, Message: message})
}

// setStatus applies a status transition and broadcasts it. Illegal
// transitions (an agent already terminal) are logged and skipped so the
// monotonic status invariant holds even on repeated explicit actions.
func (o *Orchestrator) setStatus(sess *domain.Session, sink Sink, id domain.AgentID, next domain.Status) {
	if err := sess.SetStatus(id, next); err != nil {
		o.logger.Debug("skipping status transition", "agent", id, "session_id", sess.ID, "error", err)
		return
	}
	sink.Publish(Event{
		Type: EventAgentStatus, SessionID: sess.ID,
		Agent: id, Status: next, Progress: sess.Progress(),
	})
}

func routeMessage(message string) (domain.AgentID, string) {
	lower := strings.ToLower(message)
	for _, route := range chatRoutes {
		for _, kw := range route.keywords {
			if strings.Contains(lower, kw) {
				return route.agent, route.intro
			}
		}
	}
	return "", ""
}

// firstSentences trims a summary to its first n sentences.
func firstSentences(s string, n int) string {
	parts := strings.SplitN(s, ".", n+1)
	if len(parts) <= n {
		return s
	}
	return strings.TrimSpace(strings.Join(parts[:n], ".")) + "."
}
