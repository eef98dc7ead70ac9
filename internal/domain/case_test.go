package domain

import (
	"errors"
	"testing"
)

func TestNewCase_Defaults(t *testing.T) {
	c := NewCase("Metformin", "Type 2 Diabetes", "", "", "")

	if c.Geography != DefaultGeography {
		t.Errorf("Expected geography %q, got %q", DefaultGeography, c.Geography)
	}
	if c.Timeframe != DefaultTimeframe {
		t.Errorf("Expected timeframe %q, got %q", DefaultTimeframe, c.Timeframe)
	}
}

func TestNewCase_ExplicitFieldsKept(t *testing.T) {
	c := NewCase("Metformin", "Type 2 Diabetes", "India", "2025-2030", "")

	if c.Geography != "India" {
		t.Errorf("Expected geography India, got %q", c.Geography)
	}
	if c.Timeframe != "2025-2030" {
		t.Errorf("Expected timeframe 2025-2030, got %q", c.Timeframe)
	}
}

func TestValidate_MissingMolecule(t *testing.T) {
	c := NewCase("", "Type 2 Diabetes", "", "", "")

	err := c.Validate()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Expected ErrValidation, got %v", err)
	}
}

func TestValidate_MissingIndication(t *testing.T) {
	c := NewCase("Metformin", "", "", "", "")

	if err := c.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Expected ErrValidation, got %v", err)
	}
}

func TestValidate_CompleteCase(t *testing.T) {
	c := NewCase("Metformin", "Type 2 Diabetes", "", "", "")

	if err := c.Validate(); err != nil {
		t.Fatalf("Expected valid case, got %v", err)
	}
}

func TestQuery_SynthesizedWhenNoQuestion(t *testing.T) {
	c := NewCase("Metformin", "Type 2 Diabetes", "", "", "")

	want := "Evaluate the innovation opportunity for Metformin in Type 2 Diabetes"
	if got := c.Query(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestQuery_ExplicitQuestionWins(t *testing.T) {
	c := NewCase("Metformin", "Type 2 Diabetes", "", "", "Is there an XR opportunity?")

	if got := c.Query(); got != "Is there an XR opportunity?" {
		t.Errorf("Expected explicit question, got %q", got)
	}
}

func TestReportTopic(t *testing.T) {
	c := NewCase("Metformin", "Type 2 Diabetes", "", "", "")

	want := "Innovation Opportunity Assessment for Metformin (Type 2 Diabetes)"
	if got := c.ReportTopic(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
