package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS reports (
		report_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		molecule TEXT NOT NULL,
		indication TEXT NOT NULL,
		geography TEXT NOT NULL,
		topic TEXT NOT NULL,
		download_link TEXT NOT NULL,
		tags_json TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveReport inserts or refreshes one archive record.
func (s *SQLiteStore) SaveReport(ctx context.Context, rec *ReportRecord) error {
	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("encode report tags: %w", err)
	}

	query := `
	INSERT INTO reports (report_id, session_id, molecule, indication, geography, topic, download_link, tags_json, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(report_id) DO UPDATE SET
		session_id = excluded.session_id,
		topic = excluded.topic,
		download_link = excluded.download_link,
		tags_json = excluded.tags_json`

	_, err = s.db.ExecContext(ctx, query,
		rec.ReportID, rec.SessionID, rec.Molecule, rec.Indication,
		rec.Geography, rec.Topic, rec.DownloadLink, string(tags),
		rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// ListReports returns all archive records, newest first.
func (s *SQLiteStore) ListReports(ctx context.Context) ([]*ReportRecord, error) {
	query := `
		SELECT report_id, session_id, molecule, indication, geography,
		       topic, download_link, tags_json, created_at
		FROM reports ORDER BY created_at DESC, report_id DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close report rows", "error", closeErr)
		}
	}()

	var records []*ReportRecord
	for rows.Next() {
		rec, err := scanReport(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}

	return records, nil
}

// GetReport retrieves one record by report ID.
func (s *SQLiteStore) GetReport(ctx context.Context, reportID string) (*ReportRecord, error) {
	query := `
		SELECT report_id, session_id, molecule, indication, geography,
		       topic, download_link, tags_json, created_at
		FROM reports WHERE report_id = ?`

	row := s.db.QueryRowContext(ctx, query, reportID)
	rec, err := scanReport(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, reportID)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func scanReport(scan func(...any) error) (*ReportRecord, error) {
	var rec ReportRecord
	var tagsJSON string
	var createdAt int64

	err := scan(
		&rec.ReportID, &rec.SessionID, &rec.Molecule, &rec.Indication,
		&rec.Geography, &rec.Topic, &rec.DownloadLink, &tagsJSON, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan report row: %w", err)
	}

	if err := json.Unmarshal([]byte(tagsJSON), &rec.Tags); err != nil {
		return nil, fmt.Errorf("decode report tags: %w", err)
	}
	rec.CreatedAt = time.Unix(createdAt, 0)

	return &rec, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
