package pipeline

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"daily-movers/internal/models"
)

func testRow(ticker string, pct, volume float64) models.TickerRow {
	return models.TickerRow{
		Ticker:          ticker,
		Name:            ticker + " Inc",
		Price:           models.Float(100),
		AbsChange:       models.Float(pct),
		PctChange:       models.Float(pct),
		Volume:          models.Float(volume),
		IngestionSource: "test",
	}
}

func testEnrichment(headlines int) models.Enrichment {
	e := models.Enrichment{}
	for i := 0; i < headlines; i++ {
		e.Headlines = append(e.Headlines, models.Headline{
			Title: "Quarterly results beat expectations",
			URL:   "https://example.com/news",
		})
	}
	return e
}

func TestHeuristicsStrongGainerBuys(t *testing.T) {
	row := testRow("AAPL", 8, 2_000_000)
	enrichment := testEnrichment(1)

	analysis := AnalyzeWithHeuristics(&row, &enrichment)

	if analysis.Action != models.Buy {
		t.Fatalf("action = %s, want BUY", analysis.Action)
	}
	wantSentiment := 8.0 / 12.0
	if math.Abs(analysis.Sentiment-wantSentiment) > 1e-9 {
		t.Errorf("sentiment = %f, want %f", analysis.Sentiment, wantSentiment)
	}
	wantConfidence := 0.58 + 8.0/60.0 + 0.12 + 0.05
	if math.Abs(analysis.Confidence-wantConfidence) > 1e-9 {
		t.Errorf("confidence = %f, want %f", analysis.Confidence, wantConfidence)
	}
	if !contains(analysis.DecisionTrace.RulesTriggered, "positive_price_impulse") {
		t.Errorf("rules = %v, want positive_price_impulse", analysis.DecisionTrace.RulesTriggered)
	}
	if analysis.ModelUsed != HeuristicModel {
		t.Errorf("model_used = %s, want %s", analysis.ModelUsed, HeuristicModel)
	}
}

func TestHeuristicsStrongLoserSells(t *testing.T) {
	row := testRow("TSLA", -10, 6_000_000)
	enrichment := testEnrichment(2)

	analysis := AnalyzeWithHeuristics(&row, &enrichment)

	if analysis.Action != models.Sell {
		t.Fatalf("action = %s, want SELL", analysis.Action)
	}
	for _, rule := range []string{"negative_price_impulse", "elevated_volume"} {
		if !contains(analysis.DecisionTrace.RulesTriggered, rule) {
			t.Errorf("rules = %v, want %s", analysis.DecisionTrace.RulesTriggered, rule)
		}
	}
}

func TestHeuristicsNoHeadlinesWatches(t *testing.T) {
	row := testRow("MSFT", 1, 0)
	enrichment := models.Enrichment{}

	analysis := AnalyzeWithHeuristics(&row, &enrichment)

	if analysis.Action != models.Watch {
		t.Fatalf("action = %s, want WATCH", analysis.Action)
	}
	if !contains(analysis.DecisionTrace.RulesTriggered, "no_headline_evidence") {
		t.Errorf("rules = %v, want no_headline_evidence", analysis.DecisionTrace.RulesTriggered)
	}
	if !strings.Contains(analysis.WhyItMoved, "no fresh headline evidence") {
		t.Errorf("why_it_moved = %q, want headline-light wording", analysis.WhyItMoved)
	}
}

func TestHeuristicsExtremeMoveClampsSentiment(t *testing.T) {
	row := testRow("GME", -22, 100_000)
	enrichment := testEnrichment(1)

	analysis := AnalyzeWithHeuristics(&row, &enrichment)

	if analysis.Sentiment != -1 {
		t.Errorf("sentiment = %f, want -1", analysis.Sentiment)
	}
	if !contains(analysis.DecisionTrace.RulesTriggered, "extreme_percent_change") {
		t.Errorf("rules = %v, want extreme_percent_change", analysis.DecisionTrace.RulesTriggered)
	}
}

func TestHeuristicsProvenanceEndsWithQuotePage(t *testing.T) {
	row := testRow("NVDA", 3, 500_000)
	enrichment := testEnrichment(1)

	analysis := AnalyzeWithHeuristics(&row, &enrichment)

	if len(analysis.ProvenanceURLs) == 0 {
		t.Fatal("no provenance URLs")
	}
	last := analysis.ProvenanceURLs[len(analysis.ProvenanceURLs)-1]
	if last != "https://finance.yahoo.com/quote/NVDA" {
		t.Errorf("last provenance = %s", last)
	}
	if !contains(analysis.ProvenanceURLs, "https://example.com/news") {
		t.Errorf("provenance %v missing evidence URL", analysis.ProvenanceURLs)
	}
}

// Property: for any percent change, volume, and headline count the heuristic
// analysis stays inside the output contract: bounded scores, a valid action,
// and exactly two sentences of explanation.
func TestProperty_HeuristicsOutputAlwaysValid(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("heuristic analysis is always valid", prop.ForAll(
		func(pct, volume float64, headlines int) bool {
			row := testRow("TEST", pct, volume)
			enrichment := testEnrichment(headlines)

			analysis := AnalyzeWithHeuristics(&row, &enrichment)

			if err := analysis.Validate(); err != nil {
				return false
			}
			if analysis.Confidence < 0.05 || analysis.Confidence > 0.95 {
				return false
			}
			if len(SplitSentences(analysis.WhyItMoved)) != 2 {
				return false
			}
			return len(analysis.ProvenanceURLs) > 0
		},
		gen.Float64Range(-80, 80),
		gen.Float64Range(0, 1e9),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}
