package pipeline

import (
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"daily-movers/internal/models"
)

func cleanReport() models.ReportRow {
	row := testRow("AAPL", 2, 1_000_000)
	enrichment := testEnrichment(1)
	analysis := AnalyzeWithHeuristics(&row, &enrichment)
	analysis.Confidence = 0.85
	return models.NewReportRow(row, enrichment, analysis)
}

func TestReviewRulesCleanRowPasses(t *testing.T) {
	report := cleanReport()

	ApplyReviewRules(&report)

	if report.NeedsReview {
		t.Errorf("clean row flagged: %v", report.NeedsReviewReason)
	}
	if report.Status != models.StatusOK {
		t.Errorf("status = %s", report.Status)
	}
}

func TestReviewRulesFlagLowConfidence(t *testing.T) {
	report := cleanReport()
	report.Analysis.Confidence = 0.5

	ApplyReviewRules(&report)

	if !report.NeedsReview || !contains(report.NeedsReviewReason, "confidence_below_threshold") {
		t.Errorf("reasons = %v", report.NeedsReviewReason)
	}
}

func TestReviewRulesFlagExtremeMove(t *testing.T) {
	report := cleanReport()
	report.Ticker.PctChange = models.Float(-18)

	ApplyReviewRules(&report)

	if !contains(report.NeedsReviewReason, "extreme_percent_change") {
		t.Errorf("reasons = %v", report.NeedsReviewReason)
	}
}

func TestReviewRulesFlagMissingHeadlinesAndFallback(t *testing.T) {
	report := cleanReport()
	report.Enrichment.Headlines = nil
	report.Ticker.IngestionFallbackUsed = true

	ApplyReviewRules(&report)

	for _, want := range []string{"missing_headlines", "ingestion_fallback_used"} {
		if !contains(report.NeedsReviewReason, want) {
			t.Errorf("reasons = %v, want %s", report.NeedsReviewReason, want)
		}
	}
}

func TestReviewRulesErrorsDowngradeStatus(t *testing.T) {
	report := cleanReport()
	report.Enrichment.Errors = append(report.Enrichment.Errors, models.ErrorInfo{
		Stage: "enrichment", ErrorType: "FetchError", ErrorMessage: "boom",
	})

	ApplyReviewRules(&report)

	if !contains(report.NeedsReviewReason, "has_explicit_errors") {
		t.Errorf("reasons = %v", report.NeedsReviewReason)
	}
	if report.Status != models.StatusPartial {
		t.Errorf("status = %s, want partial", report.Status)
	}
}

func TestReviewRulesMergeExistingReasons(t *testing.T) {
	report := cleanReport()
	report.Analysis.Confidence = 0.5
	report.NeedsReviewReason = []string{"sentiment_clipped"}

	ApplyReviewRules(&report)

	for _, want := range []string{"confidence_below_threshold", "sentiment_clipped"} {
		if !contains(report.NeedsReviewReason, want) {
			t.Errorf("reasons = %v, want %s", report.NeedsReviewReason, want)
		}
	}
}

func TestReviewRulesIdempotent(t *testing.T) {
	report := cleanReport()
	report.Analysis.Confidence = 0.4
	report.Enrichment.Headlines = nil

	ApplyReviewRules(&report)
	first := append([]string(nil), report.NeedsReviewReason...)
	ApplyReviewRules(&report)

	if !reflect.DeepEqual(first, report.NeedsReviewReason) {
		t.Errorf("second pass changed reasons: %v vs %v", first, report.NeedsReviewReason)
	}
}

// Property: after the review rules run, the review flag always agrees with
// the reason list and the reasons are sorted with no duplicates.
func TestProperty_ReviewFlagMatchesReasons(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("needs_review agrees with reasons", prop.ForAll(
		func(confidence, pct float64, headlines int, fallback bool) bool {
			row := testRow("TEST", pct, 1_000_000)
			row.IngestionFallbackUsed = fallback
			enrichment := testEnrichment(headlines)
			analysis := AnalyzeWithHeuristics(&row, &enrichment)
			analysis.Confidence = confidence
			report := models.NewReportRow(row, enrichment, analysis)

			ApplyReviewRules(&report)

			if report.NeedsReview != (len(report.NeedsReviewReason) > 0) {
				return false
			}
			if !sort.StringsAreSorted(report.NeedsReviewReason) {
				return false
			}
			seen := map[string]bool{}
			for _, reason := range report.NeedsReviewReason {
				if seen[reason] {
					return false
				}
				seen[reason] = true
			}
			return true
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(-40, 40),
		gen.IntRange(0, 2),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
