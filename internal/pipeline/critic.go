package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"daily-movers/internal/models"
)

// forbiddenPatterns flag reasoning leaks in the final explanation. This list
// is intentionally separate from the agent critic's: the outer pass is the
// last line of defence and watches a slightly different phrase set.
var forbiddenPatterns = []string{
	"chain of thought",
	"chain-of-thought",
	"step-by-step reasoning",
	"internal reasoning",
	"let me think",
}

// CriticReview is the guardrail pass applied to every analysis regardless of
// which tier produced it. It mutates the analysis toward the output contract
// (two sentences, bounded scores, complete traces and provenance) and returns
// the sorted, deduplicated reason codes for every correction made.
//
// Running it on an already-reviewed analysis makes no further changes.
func CriticReview(row *models.TickerRow, enrichment *models.Enrichment, analysis *models.Analysis) []string {
	var reasons []string

	lower := strings.ToLower(analysis.WhyItMoved)
	for _, pattern := range forbiddenPatterns {
		if strings.Contains(lower, pattern) {
			analysis.WhyItMoved = fmt.Sprintf("%s moved %+.2f%% based on observed market signals and cited evidence only. The explanation was sanitized to remove internal reasoning language.",
				row.Ticker, row.PctChangeValue())
			reasons = append(reasons, "cot_language_removed")
			break
		}
	}

	normalized := forceTwoSentences(analysis.WhyItMoved, row.Ticker, row.PctChangeValue())
	if normalized != analysis.WhyItMoved {
		analysis.WhyItMoved = normalized
		reasons = append(reasons, "why_it_moved_normalized_to_two_sentences")
	}

	if analysis.Sentiment < -1 {
		analysis.Sentiment = -1
		reasons = append(reasons, "sentiment_clipped")
	} else if analysis.Sentiment > 1 {
		analysis.Sentiment = 1
		reasons = append(reasons, "sentiment_clipped")
	}

	if analysis.Confidence < 0 {
		analysis.Confidence = 0
		reasons = append(reasons, "confidence_clipped")
	} else if analysis.Confidence > 1 {
		analysis.Confidence = 1
		reasons = append(reasons, "confidence_clipped")
	}

	for _, h := range analysis.DecisionTrace.EvidenceUsed {
		if h.URL != "" && !contains(analysis.ProvenanceURLs, h.URL) {
			analysis.ProvenanceURLs = append(analysis.ProvenanceURLs, h.URL)
			reasons = append(reasons, "missing_provenance_url_added")
		}
	}

	if len(analysis.DecisionTrace.NumericSignalsUsed) == 0 {
		analysis.DecisionTrace.NumericSignalsUsed = map[string]any{
			"price":      row.Price,
			"abs_change": row.AbsChange,
			"pct_change": row.PctChange,
			"volume":     row.Volume,
		}
		reasons = append(reasons, "numeric_signals_backfilled")
	}

	if len(analysis.DecisionTrace.RulesTriggered) == 0 {
		analysis.DecisionTrace.RulesTriggered = []string{"critic_default_rule"}
		reasons = append(reasons, "rules_triggered_backfilled")
	}

	if analysis.DecisionTrace.ExplainabilitySummary == "" {
		analysis.DecisionTrace.ExplainabilitySummary = fmt.Sprintf(
			"%s assessment was normalized by critic checks for completeness and plausibility.", row.Ticker)
		reasons = append(reasons, "explainability_summary_backfilled")
	}

	if !enrichment.HasHeadlines() && analysis.Confidence > 0.7 {
		analysis.Confidence = 0.7
		reasons = append(reasons, "confidence_reduced_no_headlines")
	}

	return sortedUnique(reasons)
}

func forceTwoSentences(text, ticker string, pctChange float64) string {
	cleaned := strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
	fallback := fmt.Sprintf("%s moved %+.2f%% based on available numerical signals and evidence. Evidence coverage was limited, so the interpretation remains cautious.",
		ticker, pctChange)
	if cleaned == "" {
		return fallback
	}

	sentences := SplitSentences(cleaned)
	switch {
	case len(sentences) >= 2:
		return terminate(sentences[0]) + " " + terminate(sentences[1])
	case len(sentences) == 1:
		return terminate(sentences[0]) + " Evidence was limited, so the confidence is treated cautiously."
	default:
		return fallback
	}
}

func sortedUnique(values []string) []string {
	unique := dedupeKeepOrder(values)
	sort.Strings(unique)
	return unique
}
