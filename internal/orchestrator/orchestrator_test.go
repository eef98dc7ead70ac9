package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/pharmaverse/dashboard/internal/domain"
)

// fakeCaller records calls and serves canned responses per agent.
type fakeCaller struct {
	mu          sync.Mutex
	fetched     []domain.AgentID
	masterCalls int
	reportCalls int

	fetchErr  map[domain.AgentID]error
	masterErr error
	reportErr error
	master    *domain.MasterRunResponse
	report    *domain.ReportPayload
}

func (f *fakeCaller) Fetch(_ context.Context, id domain.AgentID, _ domain.CaseDescriptor) (*domain.ResultEnvelope, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, id)
	f.mu.Unlock()
	if err := f.fetchErr[id]; err != nil {
		return nil, err
	}
	return &domain.ResultEnvelope{
		AgentID: id,
		Summary: fmt.Sprintf("%s summary sentence one. Sentence two. Sentence three. Sentence four.", id),
		Raw:     json.RawMessage(`{}`),
	}, nil
}

func (f *fakeCaller) RunMaster(context.Context, string) (*domain.MasterRunResponse, error) {
	f.mu.Lock()
	f.masterCalls++
	f.mu.Unlock()
	if f.masterErr != nil {
		return nil, f.masterErr
	}
	return f.master, nil
}

func (f *fakeCaller) GenerateReport(context.Context, string) (*domain.ReportPayload, error) {
	f.mu.Lock()
	f.reportCalls++
	f.mu.Unlock()
	if f.reportErr != nil {
		return nil, f.reportErr
	}
	return f.report, nil
}

func (f *fakeCaller) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetched) + f.masterCalls + f.reportCalls
}

// recordingSink collects published events in order.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) ofType(t EventType) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func testCase() domain.CaseDescriptor {
	return domain.NewCase("Metformin", "Type 2 Diabetes", "", "", "")
}

func newTestSession() *domain.Session {
	return domain.NewSession("s1", testCase())
}

func TestRun_InvalidCaseMakesNoCalls(t *testing.T) {
	fake := &fakeCaller{}
	o := New(fake)
	sess := newTestSession()

	invalid := domain.NewCase("", "Type 2 Diabetes", "", "", "")
	err := o.Run(context.Background(), sess, invalid, StrategyFanOut, NopSink)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Expected ErrValidation, got %v", err)
	}
	if fake.calls() != 0 {
		t.Errorf("Expected zero agent calls for invalid case, got %d", fake.calls())
	}
}

func TestRunFanOut_FailureIsNotContagious(t *testing.T) {
	fake := &fakeCaller{
		fetchErr: map[domain.AgentID]error{domain.AgentEXIM: errors.New("connection refused")},
	}
	o := New(fake)
	sess := newTestSession()

	if err := o.Run(context.Background(), sess, testCase(), StrategyFanOut, NopSink); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if st := sess.Status(domain.AgentEXIM); st != domain.StatusError {
		t.Errorf("Expected exim error, got %s", st)
	}
	for _, id := range []domain.AgentID{domain.AgentIQVIA, domain.AgentPatents, domain.AgentTrials, domain.AgentWeb} {
		if st := sess.Status(id); st != domain.StatusDone {
			t.Errorf("Expected %s done despite exim failure, got %s", id, st)
		}
		if sess.Result(id) == nil {
			t.Errorf("Expected result stored for %s", id)
		}
	}
	if sess.Result(domain.AgentEXIM) != nil {
		t.Error("Expected no result stored for failed agent")
	}
	if sess.RunStateNow() != domain.RunCompleted {
		t.Errorf("Expected run completed, got %s", sess.RunStateNow())
	}
}

func TestRunFanOut_DispatchOrderAndEventOrdering(t *testing.T) {
	fake := &fakeCaller{}
	o := New(fake)
	sess := newTestSession()
	sink := &recordingSink{}

	if err := o.Run(context.Background(), sess, testCase(), StrategyFanOut, sink); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := domain.FanOutAgents()
	if len(fake.fetched) != len(want) {
		t.Fatalf("Expected %d dispatches, got %d", len(want), len(fake.fetched))
	}
	for i, id := range want {
		if fake.fetched[i] != id {
			t.Errorf("Expected dispatch %d to be %s, got %s", i, id, fake.fetched[i])
		}
	}

	// Each agent's terminal status event must precede the next agent's
	// running event.
	statusEvents := sink.ofType(EventAgentStatus)
	lastTerminal := map[domain.AgentID]int{}
	firstRunning := map[domain.AgentID]int{}
	for i, e := range statusEvents {
		switch e.Status {
		case domain.StatusRunning:
			if _, seen := firstRunning[e.Agent]; !seen {
				firstRunning[e.Agent] = i
			}
		case domain.StatusDone, domain.StatusError:
			lastTerminal[e.Agent] = i
		}
	}
	for i := 1; i < len(want); i++ {
		prev, cur := want[i-1], want[i]
		if lastTerminal[prev] > firstRunning[cur] {
			t.Errorf("Expected %s terminal event before %s starts", prev, cur)
		}
	}

	if events := sink.ofType(EventRunComplete); len(events) != 1 {
		t.Errorf("Expected exactly one run_complete event, got %d", len(events))
	}
}

func TestRunMaster_MapsWorkerResults(t *testing.T) {
	fake := &fakeCaller{
		master: &domain.MasterRunResponse{
			FinalAnswer: "Metformin XR is the opportunity.",
			WorkerResults: []domain.WorkerResult{
				{Agent: "IQVIA Insights Agent", Summary: "Market strong.", Raw: json.RawMessage(`{"markets": []}`)},
				{Agent: "Patent Landscape Agent", Summary: "FTO clear.", Raw: json.RawMessage(`{"fto_flag": "green"}`)},
				{Agent: "Pricing Oracle", Summary: "dropped", Raw: json.RawMessage(`{}`)},
			},
			Report: &domain.ReportPayload{ReportID: "RPT-7"},
		},
	}
	o := New(fake)
	sess := newTestSession()
	sink := &recordingSink{}

	if err := o.Run(context.Background(), sess, testCase(), StrategyMaster, sink); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if fake.masterCalls != 1 {
		t.Errorf("Expected a single master dispatch, got %d", fake.masterCalls)
	}
	if len(fake.fetched) != 0 {
		t.Errorf("Expected no direct worker calls under master strategy, got %v", fake.fetched)
	}

	for _, id := range domain.AllAgents() {
		if st := sess.Status(id); st != domain.StatusDone {
			t.Errorf("Expected %s done after master run, got %s", id, st)
		}
	}
	if env := sess.Result(domain.AgentIQVIA); env == nil || env.Summary != "Market strong." {
		t.Errorf("Expected iqvia result mapped, got %+v", env)
	}
	if env := sess.Result(domain.AgentPatents); env == nil || env.Summary != "FTO clear." {
		t.Errorf("Expected patents result mapped, got %+v", env)
	}

	snap := sess.Snapshot()
	if snap.FinalAnswer != "Metformin XR is the opportunity." {
		t.Errorf("Expected final answer recorded, got %q", snap.FinalAnswer)
	}
	if snap.Report == nil || snap.Report.ReportID != "RPT-7" {
		t.Errorf("Expected report descriptor recorded, got %+v", snap.Report)
	}

	// The unrecognized worker is dropped, not stored under a guessed key.
	if len(snap.Results) != 2 {
		t.Errorf("Expected exactly 2 stored results, got %d", len(snap.Results))
	}
}

func TestRunMaster_FailureIsUniform(t *testing.T) {
	fake := &fakeCaller{masterErr: errors.New("status 500")}
	o := New(fake)
	sess := newTestSession()

	before := len(sess.Snapshot().Transcript)
	err := o.Run(context.Background(), sess, testCase(), StrategyMaster, NopSink)
	if err == nil {
		t.Fatal("Expected master failure to surface")
	}

	for _, id := range domain.AllAgents() {
		if st := sess.Status(id); st != domain.StatusError {
			t.Errorf("Expected %s error after master failure, got %s", id, st)
		}
	}
	if sess.RunStateNow() != domain.RunError {
		t.Errorf("Expected run state error, got %s", sess.RunStateNow())
	}
	snap := sess.Snapshot()
	if len(snap.Results) != 0 {
		t.Errorf("Expected no partial results, got %d", len(snap.Results))
	}

	var errorEntries int
	for _, e := range snap.Transcript[before:] {
		if strings.Contains(e.Message, "Error connecting") {
			errorEntries++
		}
	}
	if errorEntries != 1 {
		t.Errorf("Expected exactly one error transcript entry, got %d", errorEntries)
	}
}

func TestChat_RoutesToSingleAgent(t *testing.T) {
	fake := &fakeCaller{}
	o := New(fake)
	sess := newTestSession()

	reply := o.Chat(context.Background(), sess, "show me the patent status", NopSink)

	if len(fake.fetched) != 1 || fake.fetched[0] != domain.AgentPatents {
		t.Fatalf("Expected a single patents call, got %v", fake.fetched)
	}
	if reply == "" {
		t.Error("Expected a non-empty reply")
	}
	if st := sess.Status(domain.AgentPatents); st != domain.StatusDone {
		t.Errorf("Expected patents done after targeted query, got %s", st)
	}
	for _, id := range domain.AllAgents() {
		if id == domain.AgentPatents {
			continue
		}
		if st := sess.Status(id); st != domain.StatusIdle {
			t.Errorf("Expected %s untouched by targeted query, got %s", id, st)
		}
	}
}

func TestChat_AnswersFromStoredResult(t *testing.T) {
	fake := &fakeCaller{}
	o := New(fake)
	sess := newTestSession()
	sess.StoreResult(&domain.ResultEnvelope{
		AgentID: domain.AgentIQVIA,
		Summary: "One. Two. Three. Four. Five.",
	})

	reply := o.Chat(context.Background(), sess, "what does the market data say?", NopSink)

	if len(fake.fetched) != 0 {
		t.Errorf("Expected no agent call when a result exists, got %v", fake.fetched)
	}
	if reply != "One. Two. Three." {
		t.Errorf("Expected first three sentences, got %q", reply)
	}
}

func TestChat_UnmatchedMessageCallsNoAgent(t *testing.T) {
	fake := &fakeCaller{}
	o := New(fake)
	sess := newTestSession()

	reply := o.Chat(context.Background(), sess, "tell me a joke", NopSink)

	if fake.calls() != 0 {
		t.Errorf("Expected no agent calls for unmatched message, got %d", fake.calls())
	}
	if !strings.Contains(reply, "tell me a joke") {
		t.Errorf("Expected acknowledgement to echo the question, got %q", reply)
	}
}

func TestChat_TerminalErrorAgentNotRetried(t *testing.T) {
	fake := &fakeCaller{}
	o := New(fake)
	sess := newTestSession()
	if err := sess.SetStatus(domain.AgentIQVIA, domain.StatusRunning); err != nil {
		t.Fatal(err)
	}
	if err := sess.SetStatus(domain.AgentIQVIA, domain.StatusError); err != nil {
		t.Fatal(err)
	}

	reply := o.Chat(context.Background(), sess, "show market sales", NopSink)

	if len(fake.fetched) != 0 {
		t.Errorf("Expected failed agent not retried without a fresh run, got %v", fake.fetched)
	}
	if !strings.Contains(reply, "fresh analysis") {
		t.Errorf("Expected redirect to a fresh run, got %q", reply)
	}
}

func TestChat_AppendsBothTranscriptEntries(t *testing.T) {
	o := New(&fakeCaller{})
	sess := newTestSession()

	o.Chat(context.Background(), sess, "tell me a joke", NopSink)

	snap := sess.Snapshot()
	if len(snap.Transcript) != 2 {
		t.Fatalf("Expected user entry plus reply, got %d entries", len(snap.Transcript))
	}
	if snap.Transcript[0].Sender != domain.SenderUser {
		t.Errorf("Expected first entry from user, got %s", snap.Transcript[0].Sender)
	}
	if snap.Transcript[1].Sender != domain.SenderMaster {
		t.Errorf("Expected second entry from master, got %s", snap.Transcript[1].Sender)
	}
}

func TestGenerateReport_ReusesRunDescriptor(t *testing.T) {
	fake := &fakeCaller{report: &domain.ReportPayload{ReportID: "RPT-NEW"}}
	o := New(fake)
	sess := newTestSession()
	sess.SetReport(&domain.ReportPayload{ReportID: "RPT-RUN"})

	report, err := o.GenerateReport(context.Background(), sess, "", NopSink)
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if report.ReportID != "RPT-RUN" {
		t.Errorf("Expected run descriptor reused, got %q", report.ReportID)
	}
	if fake.reportCalls != 0 {
		t.Errorf("Expected no backend call when descriptor exists, got %d", fake.reportCalls)
	}
}

func TestGenerateReport_CallsBackendWhenMissing(t *testing.T) {
	fake := &fakeCaller{report: &domain.ReportPayload{ReportID: "RPT-NEW"}}
	o := New(fake)
	sess := newTestSession()

	report, err := o.GenerateReport(context.Background(), sess, "", NopSink)
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if report.ReportID != "RPT-NEW" {
		t.Errorf("Expected fresh report, got %q", report.ReportID)
	}
	if st := sess.Status(domain.AgentReport); st != domain.StatusDone {
		t.Errorf("Expected report agent done, got %s", st)
	}
}

func TestGenerateReport_Failure(t *testing.T) {
	fake := &fakeCaller{reportErr: errors.New("status 503")}
	o := New(fake)
	sess := newTestSession()

	_, err := o.GenerateReport(context.Background(), sess, "", NopSink)
	if !errors.Is(err, ErrReportUnavailable) {
		t.Fatalf("Expected ErrReportUnavailable, got %v", err)
	}
	if st := sess.Status(domain.AgentReport); st != domain.StatusError {
		t.Errorf("Expected report agent error, got %s", st)
	}
}

func TestParseStrategy(t *testing.T) {
	if s, err := ParseStrategy(""); err != nil || s != StrategyMaster {
		t.Errorf("Expected empty to default to master, got %s %v", s, err)
	}
	if s, err := ParseStrategy("fanout"); err != nil || s != StrategyFanOut {
		t.Errorf("Expected fanout, got %s %v", s, err)
	}
	if _, err := ParseStrategy("parallel"); err == nil {
		t.Error("Expected unknown strategy to be rejected")
	}
}
