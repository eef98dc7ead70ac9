// Package store persists the report archive. Live sessions are
// in-memory only; generated reports are the one artifact that must
// survive a restart.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates no archive record matches the given ID.
var ErrNotFound = errors.New("report not found")

// ReportRecord is one archived report artifact.
type ReportRecord struct {
	ReportID     string    `json:"report_id"`
	SessionID    string    `json:"session_id"`
	Molecule     string    `json:"molecule"`
	Indication   string    `json:"indication"`
	Geography    string    `json:"geography"`
	Topic        string    `json:"topic"`
	DownloadLink string    `json:"download_link"`
	Tags         []string  `json:"tags"`
	CreatedAt    time.Time `json:"created_at"`
}

// Repository defines the persistence interface for the report archive.
type Repository interface {
	// SaveReport inserts an archive record. Saving an existing report ID
	// refreshes the record.
	SaveReport(ctx context.Context, rec *ReportRecord) error

	// ListReports returns all archive records, newest first.
	ListReports(ctx context.Context) ([]*ReportRecord, error)

	// GetReport retrieves one record by report ID. Returns ErrNotFound
	// when no record matches.
	GetReport(ctx context.Context, reportID string) (*ReportRecord, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
