// Package domain contains core domain types for the PharmaVerse dashboard.
package domain

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrValidation indicates a case descriptor is missing required fields.
// A run must never start (and no network call may be issued) for an
// invalid case.
var ErrValidation = errors.New("invalid case descriptor")

const (
	// DefaultGeography is used when the case form leaves geography blank.
	DefaultGeography = "Global"
	// DefaultTimeframe is used when the case form leaves timeframe blank.
	DefaultTimeframe = "2024-2026"
)

var validate = validator.New()

// CaseDescriptor is the immutable input describing one analysis request.
// It is created from user input at submission time and replaced wholesale
// on a new run; it is never partially mutated.
type CaseDescriptor struct {
	MoleculeName      string `json:"molecule_name" validate:"required"`
	Indication        string `json:"indication" validate:"required"`
	Geography         string `json:"geography"`
	Timeframe         string `json:"timeframe"`
	StrategicQuestion string `json:"strategic_question,omitempty"`
}

// NewCase builds a case descriptor, applying defaults for optional fields.
func NewCase(molecule, indication, geography, timeframe, strategicQuestion string) CaseDescriptor {
	if geography == "" {
		geography = DefaultGeography
	}
	if timeframe == "" {
		timeframe = DefaultTimeframe
	}
	return CaseDescriptor{
		MoleculeName:      molecule,
		Indication:        indication,
		Geography:         geography,
		Timeframe:         timeframe,
		StrategicQuestion: strategicQuestion,
	}
}

// Validate checks the required fields. It returns an error wrapping
// ErrValidation so callers can map it to a user-facing rejection.
func (c CaseDescriptor) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: field %s is required", ErrValidation, verrs[0].Field())
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// Query returns the natural-language query dispatched to the master agent:
// the explicit strategic question if provided, otherwise a synthesized one.
func (c CaseDescriptor) Query() string {
	if c.StrategicQuestion != "" {
		return c.StrategicQuestion
	}
	return fmt.Sprintf("Evaluate the innovation opportunity for %s in %s", c.MoleculeName, c.Indication)
}

// ReportTopic returns the default topic for an explicit report request.
func (c CaseDescriptor) ReportTopic() string {
	indication := c.Indication
	if indication == "" {
		indication = "General"
	}
	return fmt.Sprintf("Innovation Opportunity Assessment for %s (%s)", c.MoleculeName, indication)
}
