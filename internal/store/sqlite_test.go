package store

import (
	"path/filepath"
	"testing"

	"daily-movers/internal/models"
)

func archiveFixture() (*models.RunMeta, []models.ReportRow) {
	meta := &models.RunMeta{
		RunID:         "abc123def456",
		RequestedDate: "2026-08-27",
		Mode:          "movers",
		Region:        "us",
		Status:        "success",
		StartedAt:     "2026-08-27T06:00:00Z",
		EndedAt:       "2026-08-27T06:01:30Z",
		Summary:       models.RunSummary{Processed: 2},
		Email:         models.EmailOutcome{Status: "eml_only", Backend: "eml"},
		TimingsMS:     map[string]int64{"total": 90000},
	}
	rows := []models.ReportRow{
		{
			Ticker: models.TickerRow{Ticker: "AAPL", Name: "Apple Inc."},
			Analysis: models.Analysis{
				WhyItMoved: "Shares rose on results. Coverage was positive.",
				Action:     models.Buy,
				Sentiment:  0.5,
				Confidence: 0.8,
				ModelUsed:  "heuristics_v1",
			},
			Status: models.StatusOK,
		},
		{
			Ticker: models.TickerRow{Ticker: "TSLA"},
			Analysis: models.Analysis{
				WhyItMoved: "Shares fell on volume. Evidence was thin.",
				Action:     models.Sell,
				Sentiment:  -0.6,
				Confidence: 0.7,
				ModelUsed:  "heuristics_v1",
			},
			NeedsReview:       true,
			NeedsReviewReason: []string{"confidence_below_threshold"},
			Status:            models.StatusPartial,
		},
	}
	return meta, rows
}

func TestArchiveStoreRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	archive, err := NewArchiveStore(dbPath)
	if err != nil {
		t.Fatalf("NewArchiveStore: %v", err)
	}
	defer archive.Close()

	meta, rows := archiveFixture()
	if err := archive.SaveRun(meta, rows); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	runs, err := archive.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	got := runs[0]
	if got.RunID != "abc123def456" || got.Status != "success" || got.Mode != "movers" {
		t.Errorf("run record = %+v", got)
	}

	history, err := archive.TickerHistory("tsla", 10)
	if err != nil {
		t.Fatalf("TickerHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history = %d entries, want 1", len(history))
	}
	if history[0]["needs_review"] != true {
		t.Errorf("payload = %+v", history[0])
	}
	analysis, ok := history[0]["analysis"].(map[string]any)
	if !ok || analysis["action"] != "SELL" {
		t.Errorf("analysis payload = %+v", history[0]["analysis"])
	}
}

func TestArchiveStoreReplacesRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	archive, err := NewArchiveStore(dbPath)
	if err != nil {
		t.Fatalf("NewArchiveStore: %v", err)
	}
	defer archive.Close()

	meta, rows := archiveFixture()
	if err := archive.SaveRun(meta, rows); err != nil {
		t.Fatalf("first SaveRun: %v", err)
	}
	meta.Status = "partial_success"
	if err := archive.SaveRun(meta, rows); err != nil {
		t.Fatalf("second SaveRun: %v", err)
	}

	runs, err := archive.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1 after replace", len(runs))
	}
	if runs[0].Status != "partial_success" {
		t.Errorf("status = %s", runs[0].Status)
	}
}

func TestTickerHistoryUnknownTicker(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	archive, err := NewArchiveStore(dbPath)
	if err != nil {
		t.Fatalf("NewArchiveStore: %v", err)
	}
	defer archive.Close()

	history, err := archive.TickerHistory("NOPE", 5)
	if err != nil {
		t.Fatalf("TickerHistory: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("history = %v", history)
	}
}
