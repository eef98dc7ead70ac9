package domain

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
)

func testCase() CaseDescriptor {
	return NewCase("Metformin", "Type 2 Diabetes", "", "", "")
}

func TestNewSession_AllAgentsIdle(t *testing.T) {
	sess := NewSession("s1", testCase())

	for _, id := range AllAgents() {
		if st := sess.Status(id); st != StatusIdle {
			t.Errorf("Expected %s idle, got %s", id, st)
		}
	}
	if sess.RunStateNow() != RunIdle {
		t.Errorf("Expected run state idle, got %s", sess.RunStateNow())
	}
}

func TestSetStatus_IllegalTransitionRejected(t *testing.T) {
	sess := NewSession("s1", testCase())

	if err := sess.SetStatus(AgentIQVIA, StatusDone); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition for idle -> done, got %v", err)
	}
	if st := sess.Status(AgentIQVIA); st != StatusIdle {
		t.Errorf("Expected status unchanged after rejected transition, got %s", st)
	}
}

func TestSetStatus_TerminalIsSticky(t *testing.T) {
	sess := NewSession("s1", testCase())

	mustSet := func(id AgentID, st Status) {
		t.Helper()
		if err := sess.SetStatus(id, st); err != nil {
			t.Fatalf("SetStatus(%s, %s): %v", id, st, err)
		}
	}
	mustSet(AgentIQVIA, StatusRunning)
	mustSet(AgentIQVIA, StatusError)

	if err := sess.SetStatus(AgentIQVIA, StatusRunning); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Expected error -> running to be rejected, got %v", err)
	}
	if err := sess.SetStatus(AgentIQVIA, StatusDone); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Expected error -> done to be rejected, got %v", err)
	}
}

func TestSetStatus_SameStatusIsNoOp(t *testing.T) {
	sess := NewSession("s1", testCase())

	if err := sess.SetStatus(AgentIQVIA, StatusIdle); err != nil {
		t.Fatalf("Expected idle -> idle no-op, got %v", err)
	}
}

// Drive agents through random success/failure interleavings and verify
// the machine never leaves a terminal state without a reset.
func TestSetStatus_MonotonicUnderRandomRuns(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	sess := NewSession("s1", testCase())

	for run := 0; run < 50; run++ {
		sess.ResetForRun(testCase())
		for _, id := range AllAgents() {
			if st := sess.Status(id); st != StatusIdle {
				t.Fatalf("Run %d: expected %s idle after reset, got %s", run, id, st)
			}
		}

		agents := AllAgents()
		rng.Shuffle(len(agents), func(i, j int) { agents[i], agents[j] = agents[j], agents[i] })

		for _, id := range agents {
			if err := sess.SetStatus(id, StatusRunning); err != nil {
				t.Fatalf("Run %d: idle -> running for %s: %v", run, id, err)
			}
			terminal := StatusDone
			if rng.Intn(2) == 0 {
				terminal = StatusError
			}
			if err := sess.SetStatus(id, terminal); err != nil {
				t.Fatalf("Run %d: running -> %s for %s: %v", run, terminal, id, err)
			}

			// Any further transition attempt must be rejected.
			for _, next := range []Status{StatusRunning, StatusDone, StatusError} {
				if next == terminal {
					continue
				}
				if err := sess.SetStatus(id, next); !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("Run %d: expected %s -> %s rejected for %s, got %v", run, terminal, next, id, err)
				}
			}
		}
	}
}

func TestResetForRun_ClearsResultsKeepsTranscript(t *testing.T) {
	sess := NewSession("s1", testCase())
	sess.Append(SenderUser, "hello")
	sess.StoreResult(&ResultEnvelope{AgentID: AgentIQVIA, Summary: "old", Raw: json.RawMessage(`{}`)})
	sess.SetFinalAnswer("old answer")
	sess.SetReport(&ReportPayload{ReportID: "RPT-1"})

	sess.ResetForRun(NewCase("Semaglutide", "Obesity", "", "", ""))

	if sess.Result(AgentIQVIA) != nil {
		t.Error("Expected results cleared by reset")
	}
	snap := sess.Snapshot()
	if snap.FinalAnswer != "" {
		t.Error("Expected final answer cleared by reset")
	}
	if snap.Report != nil {
		t.Error("Expected report cleared by reset")
	}
	if len(snap.Transcript) != 1 {
		t.Errorf("Expected transcript kept across reset, got %d entries", len(snap.Transcript))
	}
	if snap.Case.MoleculeName != "Semaglutide" {
		t.Errorf("Expected case replaced wholesale, got %q", snap.Case.MoleculeName)
	}
	if snap.RunState != RunProcessing {
		t.Errorf("Expected run state processing after reset, got %s", snap.RunState)
	}
}

func TestStoreResult_LastWriteWins(t *testing.T) {
	sess := NewSession("s1", testCase())
	sess.StoreResult(&ResultEnvelope{AgentID: AgentIQVIA, Summary: "first"})
	sess.StoreResult(&ResultEnvelope{AgentID: AgentIQVIA, Summary: "second"})

	if got := sess.Result(AgentIQVIA).Summary; got != "second" {
		t.Errorf("Expected last result retained, got %q", got)
	}
}

func TestSnapshot_IsolatedFromLaterMutation(t *testing.T) {
	sess := NewSession("s1", testCase())
	sess.Append(SenderUser, "first")

	snap := sess.Snapshot()
	sess.Append(SenderUser, "second")
	sess.StoreResult(&ResultEnvelope{AgentID: AgentEXIM, Summary: "trade"})

	if len(snap.Transcript) != 1 {
		t.Errorf("Expected snapshot transcript unchanged, got %d entries", len(snap.Transcript))
	}
	if _, ok := snap.Results[AgentEXIM]; ok {
		t.Error("Expected snapshot results unchanged by later writes")
	}
}

func TestProgress(t *testing.T) {
	sess := NewSession("s1", testCase())
	if got := sess.Progress(); got != 0 {
		t.Fatalf("Expected 0%% progress, got %v", got)
	}

	sess.ResetForRun(testCase())
	for _, id := range []AgentID{AgentIQVIA, AgentEXIM, AgentPatents} {
		if err := sess.SetStatus(id, StatusRunning); err != nil {
			t.Fatal(err)
		}
		if err := sess.SetStatus(id, StatusDone); err != nil {
			t.Fatal(err)
		}
	}

	// Three of six non-report agents are terminal.
	if got := sess.Progress(); got != 50 {
		t.Errorf("Expected 50%% progress, got %v", got)
	}

	// The report agent does not count toward progress.
	if err := sess.SetStatus(AgentReport, StatusRunning); err != nil {
		t.Fatal(err)
	}
	if err := sess.SetStatus(AgentReport, StatusDone); err != nil {
		t.Fatal(err)
	}
	if got := sess.Progress(); got != 50 {
		t.Errorf("Expected report agent excluded from progress, got %v", got)
	}
}
