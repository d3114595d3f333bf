package pipeline

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"daily-movers/internal/config"
	"daily-movers/internal/models"
)

func testAgent() *AgentPipeline {
	cfg := &config.Config{
		OpenAI: config.OpenAIConfig{
			Model:   "gpt-4o-mini",
			Timeout: 5 * time.Second,
		},
	}
	return NewAgentPipeline(cfg, nil)
}

func TestAgentWithoutClientUsesHeuristics(t *testing.T) {
	row := testRow("AAPL", 6, 2_000_000)
	enrichment := testEnrichment(1)

	analysis, err := testAgent().Analyze(context.Background(), &row, &enrichment)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.ModelUsed != AgentHeuristicModel {
		t.Errorf("model_used = %s, want %s", analysis.ModelUsed, AgentHeuristicModel)
	}
	if err := analysis.Validate(); err != nil {
		t.Errorf("analysis invalid: %v", err)
	}
	if len(SplitSentences(analysis.WhyItMoved)) != 2 {
		t.Errorf("why_it_moved = %q", analysis.WhyItMoved)
	}
	if len(analysis.ProvenanceURLs) == 0 {
		t.Error("no provenance URLs")
	}
}

func TestAgentMatchesStandaloneHeuristics(t *testing.T) {
	row := testRow("TSLA", -10, 6_000_000)
	enrichment := testEnrichment(2)

	agentAnalysis, err := testAgent().Analyze(context.Background(), &row, &enrichment)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	plain := AnalyzeWithHeuristics(&row, &enrichment)

	if agentAnalysis.Action != plain.Action {
		t.Errorf("action = %s, heuristics give %s", agentAnalysis.Action, plain.Action)
	}
	if agentAnalysis.Sentiment != plain.Sentiment {
		t.Errorf("sentiment = %f, heuristics give %f", agentAnalysis.Sentiment, plain.Sentiment)
	}
	if agentAnalysis.Confidence != plain.Confidence {
		t.Errorf("confidence = %f, heuristics give %f", agentAnalysis.Confidence, plain.Confidence)
	}
}

func TestAgentCapsConfidenceWithoutHeadlines(t *testing.T) {
	row := testRow("NVDA", 9, 8_000_000)
	enrichment := models.Enrichment{}

	analysis, err := testAgent().Analyze(context.Background(), &row, &enrichment)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.Confidence > 0.7 {
		t.Errorf("confidence = %f, want <= 0.7 without headlines", analysis.Confidence)
	}
	if !strings.Contains(analysis.WhyItMoved, "no fresh headline evidence") {
		t.Errorf("why_it_moved = %q", analysis.WhyItMoved)
	}
}

func TestAgentResearcherCollectsSignals(t *testing.T) {
	row := testRow("AAPL", 4, 3_000_000)
	enrichment := testEnrichment(2)
	enrichment.Sector = "Technology"
	enrichment.EarningsDate = "2026-09-10"

	analysis, err := testAgent().Analyze(context.Background(), &row, &enrichment)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	signals := analysis.DecisionTrace.NumericSignalsUsed
	if signals["headline_count"] != 2 {
		t.Errorf("headline_count = %v", signals["headline_count"])
	}
	if signals["sector"] != "Technology" {
		t.Errorf("sector = %v", signals["sector"])
	}
	if len(analysis.DecisionTrace.EvidenceUsed) == 0 {
		t.Error("no evidence captured")
	}
}

func TestAgentCancelledContextFails(t *testing.T) {
	row := testRow("AAPL", 4, 1_000_000)
	enrichment := testEnrichment(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := testAgent().Analyze(ctx, &row, &enrichment); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestCriticNodeRetriesLowConfidenceOnce(t *testing.T) {
	p := testAgent()
	row := testRow("AAPL", 2, 1_000_000)
	enrichment := testEnrichment(1)
	state := &agentState{row: &row, enrichment: &enrichment}
	p.researcherNode(state)

	lowOutput := analystOutput{
		WhyItMoved:            "Shares drifted lower. Nothing conclusive emerged from the session.",
		Sentiment:             0.1,
		Action:                models.Watch,
		Confidence:            0.2,
		RulesTriggered:        []string{"weak_signal"},
		ExplainabilitySummary: "Low conviction assessment.",
		Present:               true,
	}
	state.analystOutput = lowOutput

	p.criticNode(state)
	if state.criticApproved {
		t.Fatal("low confidence output approved on first pass")
	}
	if state.retryCount != 1 {
		t.Fatalf("retry count = %d, want 1", state.retryCount)
	}
	if !contains(state.criticFlags, "low_confidence_retry_requested") {
		t.Errorf("flags = %v", state.criticFlags)
	}
	if state.analysisReady {
		t.Error("analysis assembled before approval")
	}

	// The retry budget is one: a second low-confidence pass must approve.
	state.analystOutput = lowOutput
	p.criticNode(state)
	if !state.criticApproved {
		t.Fatal("second critic pass did not approve")
	}
	if state.retryCount != 1 {
		t.Errorf("retry count = %d after approval, want 1", state.retryCount)
	}
	if !state.analysisReady || state.analysis.Confidence != 0.2 {
		t.Errorf("analysis = ready %v, confidence %v", state.analysisReady, state.analysis.Confidence)
	}
	if contains(state.criticFlags, "low_confidence_retry_requested") {
		t.Errorf("stale retry flag kept: %v", state.criticFlags)
	}
}

func TestDeriveRecommendationTags(t *testing.T) {
	cases := []struct {
		name       string
		pct        float64
		volume     float64
		action     models.Action
		sentiment  float64
		confidence float64
		want       []string
	}{
		{"top pick", 2, 1_000_000, models.Buy, 0.5, 0.8, []string{"top_pick_candidate"}},
		{"most potential", 1, 1_000_000, models.Watch, 0.2, 0.6, []string{"most_potential_candidate"}},
		{"contrarian bounce", -8, 6_000_000, models.Sell, -0.6, 0.8, []string{"contrarian_bounce_candidate"}},
		{"momentum", 4, 3_000_000, models.Watch, 0.1, 0.8, []string{"momentum_signal"}},
		{"momentum and potential", 4, 3_000_000, models.Buy, 0.2, 0.6, []string{"most_potential_candidate", "momentum_signal"}},
		{"nothing notable", 1, 100_000, models.Watch, 0.05, 0.6, []string{"standard"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			row := testRow("TEST", tc.pct, tc.volume)
			analysis := models.Analysis{
				Action:     tc.action,
				Sentiment:  tc.sentiment,
				Confidence: tc.confidence,
			}
			got := DeriveRecommendationTags(&row, &analysis)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("tags = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEnsureTwoSentences(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"truncates", "One. Two. Three.", "One. Two."},
		{"pads single", "Shares jumped", "Shares jumped. The suggested action is WATCH with 0.60 confidence."},
		{"collapses whitespace", "First  sentence.   Second\nsentence.", "First sentence. Second sentence."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ensureTwoSentences(tc.text, "TEST", 2.5, models.Watch, 0.6, true)
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestEnsureTwoSentencesEmptyInput(t *testing.T) {
	got := ensureTwoSentences("", "TEST", -3.1, models.Sell, 0.7, false)
	if len(SplitSentences(got)) != 2 {
		t.Errorf("got %q, want two sentences", got)
	}
	if !strings.Contains(got, "no fresh headline evidence") {
		t.Errorf("got %q", got)
	}
}
