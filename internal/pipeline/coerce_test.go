package pipeline

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"daily-movers/internal/models"
)

func TestCoerceFloat(t *testing.T) {
	cases := []struct {
		name  string
		value any
		def   float64
		want  float64
	}{
		{"nil uses default", nil, 0.5, 0.5},
		{"float passes through", 2.25, 0, 2.25},
		{"int converts", 3, 0, 3},
		{"numeric string", " 3.4 ", 0, 3.4},
		{"percent string", "12.5%", 0, 12.5},
		{"bool uses default", true, 0.6, 0.6},
		{"garbage string uses default", "abc", 0.1, 0.1},
		{"nan uses default", math.NaN(), 0.2, 0.2},
		{"inf uses default", math.Inf(1), 0.3, 0.3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CoerceFloat(tc.value, tc.def); got != tc.want {
				t.Errorf("CoerceFloat(%v, %v) = %v, want %v", tc.value, tc.def, got, tc.want)
			}
		})
	}
}

func TestCoerceAction(t *testing.T) {
	cases := []struct {
		value     any
		sentiment float64
		want      models.Action
	}{
		{"buy", 0, models.Buy},
		{" Sell ", 0, models.Sell},
		{"WATCH", 0.9, models.Watch},
		{"hold", 0.3, models.Buy},
		{nil, -0.3, models.Sell},
		{nil, 0.1, models.Watch},
		{42, 0.25, models.Buy},
	}
	for _, tc := range cases {
		if got := CoerceAction(tc.value, tc.sentiment); got != tc.want {
			t.Errorf("CoerceAction(%v, %v) = %s, want %s", tc.value, tc.sentiment, got, tc.want)
		}
	}
}

func TestSplitSentences(t *testing.T) {
	cases := []struct {
		text string
		want []string
	}{
		{"One. Two.", []string{"One.", "Two."}},
		{"First! Second? Third.", []string{"First!", "Second?", "Third."}},
		{"No terminator here", []string{"No terminator here"}},
		{"Trailing period.", []string{"Trailing period."}},
		{"Version 2.5 shipped today. Markets reacted.", []string{"Version 2.5 shipped today.", "Markets reacted."}},
		{"", nil},
	}
	for _, tc := range cases {
		got := SplitSentences(tc.text)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("SplitSentences(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestCoerceWhyItMovedTruncatesToTwoSentences(t *testing.T) {
	row := testRow("AAPL", 4, 1_000_000)
	got := CoerceWhyItMoved("One. Two. Three.", &row, models.Watch, 0.6, true)
	if got != "One. Two." {
		t.Errorf("got %q", got)
	}
}

func TestCoerceWhyItMovedPadsSingleSentence(t *testing.T) {
	row := testRow("AAPL", 4, 1_000_000)
	got := CoerceWhyItMoved("Shares rallied on earnings", &row, models.Buy, 0.8, false)
	want := "Shares rallied on earnings. The suggested action is BUY with 0.80 confidence using price and volume signals only."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCoerceWhyItMovedEmptyBuildsFallback(t *testing.T) {
	row := testRow("AAPL", -2.5, 0)
	got := CoerceWhyItMoved("", &row, models.Watch, 0.5, false)
	if len(SplitSentences(got)) != 2 {
		t.Errorf("fallback is not two sentences: %q", got)
	}
}

func TestCoerceEvidenceAcceptsAliases(t *testing.T) {
	enrichment := testEnrichment(1)
	raw := []any{
		map[string]any{"headline": "Alias title", "link": "https://example.com/a"},
		map[string]any{"title": "No URL is dropped"},
	}
	got := CoerceEvidence(raw, &enrichment)
	if len(got) != 1 || got[0].Title != "Alias title" || got[0].URL != "https://example.com/a" {
		t.Errorf("got %+v", got)
	}
}

func TestCoerceEvidenceFallsBackToEnrichment(t *testing.T) {
	enrichment := testEnrichment(2)
	got := CoerceEvidence([]any{map[string]any{"title": "only title"}}, &enrichment)
	if len(got) != 2 {
		t.Errorf("expected enrichment fallback, got %+v", got)
	}
}

func TestCoerceRules(t *testing.T) {
	raw := []any{
		"first_rule",
		map[string]any{"name": "second_rule"},
		"first_rule",
		map[string]any{"irrelevant": true},
		"  ",
	}
	got := CoerceRules(raw)
	want := []string{"first_rule", "second_rule"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCoerceNumericSignalsMergesOverBase(t *testing.T) {
	row := testRow("AAPL", 4, 1_000_000)
	enrichment := testEnrichment(1)

	got := CoerceNumericSignals(map[string]any{"rsi": 61.2, "volume": 9.0}, &row, &enrichment)
	if got["rsi"] != 61.2 {
		t.Errorf("rsi = %v", got["rsi"])
	}
	if got["volume"] != 9.0 {
		t.Errorf("model-provided volume should win, got %v", got["volume"])
	}
	if got["headline_count"] != 1 {
		t.Errorf("headline_count = %v", got["headline_count"])
	}
}

func TestCoerceNumericSignalsAcceptsNameValueList(t *testing.T) {
	row := testRow("AAPL", 4, 1_000_000)
	enrichment := models.Enrichment{}

	raw := []any{
		map[string]any{"name": "momentum", "value": 0.8},
		map[string]any{"signal": "drawdown", "metric_value": -0.2},
		map[string]any{"value": 1.0},
	}
	got := CoerceNumericSignals(raw, &row, &enrichment)
	if got["momentum"] != 0.8 || got["drawdown"] != -0.2 {
		t.Errorf("got %v", got)
	}
}

func TestCoerceProvenanceURLs(t *testing.T) {
	evidence := []models.Headline{{Title: "t", URL: "https://example.com/a"}}
	got := CoerceProvenanceURLs([]any{"https://example.com/a", "https://example.com/b"}, evidence, "AAPL")
	want := []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://finance.yahoo.com/quote/AAPL",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExtractJSONObject(t *testing.T) {
	obj, err := ExtractJSONObject(`{"action": "BUY"}`)
	if err != nil || obj["action"] != "BUY" {
		t.Fatalf("whole-document parse failed: %v %v", obj, err)
	}

	obj, err = ExtractJSONObject("Here is the analysis:\n```json\n{\"sentiment\": 0.5}\n```\nDone.")
	if err != nil || obj["sentiment"] != 0.5 {
		t.Fatalf("embedded parse failed: %v %v", obj, err)
	}

	if _, err := ExtractJSONObject("no json at all"); err == nil {
		t.Fatal("expected error for non-JSON text")
	}
}

// Property: NormalizeAnalysis produces a valid analysis for arbitrary
// sentiment and confidence inputs, including values outside the legal range.
func TestProperty_NormalizeAnalysisAlwaysValid(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("normalized analysis is always valid", prop.ForAll(
		func(sentiment, confidence float64, action string, headlines int) bool {
			row := testRow("TEST", 4.2, 2_000_000)
			enrichment := testEnrichment(headlines)
			obj := map[string]any{
				"sentiment":  sentiment,
				"confidence": confidence,
				"action":     action,
			}

			analysis := NormalizeAnalysis(obj, &row, &enrichment)
			analysis.ModelUsed = "test"

			if err := analysis.Validate(); err != nil {
				return false
			}
			if len(SplitSentences(analysis.WhyItMoved)) != 2 {
				return false
			}
			return len(analysis.ProvenanceURLs) > 0 && analysis.DecisionTrace.ExplainabilitySummary != ""
		},
		gen.Float64Range(-10, 10),
		gen.Float64Range(-10, 10),
		gen.OneConstOf("BUY", "SELL", "WATCH", "hold", "", "garbage"),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}
