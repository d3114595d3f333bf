package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"daily-movers/internal/models"
)

// ArchiveStore persists run history in SQLite: one row per run plus one row
// per report row, nested payloads JSON-encoded. This is the queryable record
// across runs; the per-run JSONL archive remains the canonical artifact.
type ArchiveStore struct {
	db *sql.DB
}

// NewArchiveStore opens (or creates) the archive database.
func NewArchiveStore(dbPath string) (*ArchiveStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &ArchiveStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *ArchiveStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		requested_date TEXT NOT NULL,
		mode TEXT NOT NULL,
		region TEXT NOT NULL,
		status TEXT NOT NULL,
		summary TEXT NOT NULL,
		email TEXT NOT NULL,
		timings_ms TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS report_rows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		action TEXT NOT NULL,
		sentiment REAL NOT NULL,
		confidence REAL NOT NULL,
		needs_review INTEGER NOT NULL,
		status TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(run_id)
	);

	CREATE INDEX IF NOT EXISTS idx_report_rows_run ON report_rows(run_id);
	CREATE INDEX IF NOT EXISTS idx_report_rows_ticker ON report_rows(ticker);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun stores the run metadata and every report row in one transaction.
func (s *ArchiveStore) SaveRun(meta *models.RunMeta, rows []models.ReportRow) error {
	summary, err := json.Marshal(meta.Summary)
	if err != nil {
		return err
	}
	email, err := json.Marshal(meta.Email)
	if err != nil {
		return err
	}
	timings, err := json.Marshal(meta.TimingsMS)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO runs
		(run_id, requested_date, mode, region, status, summary, email, timings_ms, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.RunID, meta.RequestedDate, meta.Mode, meta.Region, meta.Status,
		string(summary), string(email), string(timings), meta.StartedAt, meta.EndedAt)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", meta.RunID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO report_rows
		(run_id, ticker, action, sentiment, confidence, needs_review, status, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range rows {
		row := &rows[i]
		payload, err := json.Marshal(row.ToArchiveRecord())
		if err != nil {
			return fmt.Errorf("encoding row %s: %w", row.Ticker.Ticker, err)
		}
		needsReview := 0
		if row.NeedsReview {
			needsReview = 1
		}
		_, err = stmt.Exec(meta.RunID, row.Ticker.Ticker, string(row.Analysis.Action),
			row.Analysis.Sentiment, row.Analysis.Confidence, needsReview, row.Status, string(payload))
		if err != nil {
			return fmt.Errorf("inserting row %s: %w", row.Ticker.Ticker, err)
		}
	}

	return tx.Commit()
}

// RunRecord is a summarized run from the archive.
type RunRecord struct {
	RunID         string
	RequestedDate string
	Mode          string
	Region        string
	Status        string
	StartedAt     string
	EndedAt       string
}

// ListRuns returns the most recent runs, newest first.
func (s *ArchiveStore) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT run_id, requested_date, mode, region, status, started_at, ended_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.RunID, &r.RequestedDate, &r.Mode, &r.Region, &r.Status, &r.StartedAt, &r.EndedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// TickerHistory returns archived report payloads for one ticker, newest first.
func (s *ArchiveStore) TickerHistory(ticker string, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT payload FROM report_rows
		WHERE ticker = ? ORDER BY created_at DESC LIMIT ?`,
		strings.ToUpper(strings.TrimSpace(ticker)), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []map[string]any
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Close closes the underlying database.
func (s *ArchiveStore) Close() error {
	return s.db.Close()
}
