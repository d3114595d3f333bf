package pipeline

import (
	"daily-movers/internal/models"
)

// ApplyReviewRules runs the human-in-the-loop rule set over a finished report
// row, merging triggered reasons with whatever was already recorded. The
// result is sorted and deduplicated, which makes the function idempotent:
// applying it twice yields the same row.
func ApplyReviewRules(report *models.ReportRow) {
	reasons := append([]string(nil), report.NeedsReviewReason...)

	if report.Analysis.Confidence < 0.75 {
		reasons = append(reasons, "confidence_below_threshold")
	}
	if report.Ticker.PctChange != nil && abs(*report.Ticker.PctChange) > 15 {
		reasons = append(reasons, "extreme_percent_change")
	}
	if !report.Enrichment.HasHeadlines() {
		reasons = append(reasons, "missing_headlines")
	}
	if report.Ticker.IngestionFallbackUsed {
		reasons = append(reasons, "ingestion_fallback_used")
	}
	if len(report.AllErrors()) > 0 {
		reasons = append(reasons, "has_explicit_errors")
	}

	unique := sortedUnique(reasons)
	report.NeedsReviewReason = unique
	report.NeedsReview = len(unique) > 0
	if report.Status == models.StatusOK && len(report.AllErrors()) > 0 {
		report.Status = models.StatusPartial
	}
}
