// Package pipeline implements the per-ticker analysis tiers: deterministic
// heuristics, the agent state machine, the raw LLM path, the guardrail critic,
// the review rules, and the batch orchestrator that ties them together.
package pipeline

import (
	"fmt"
	"strings"

	"daily-movers/internal/models"
	"daily-movers/pkg/utils"
)

// HeuristicModel is the model label for baseline heuristic analyses.
const HeuristicModel = "heuristics"

// AnalyzeWithHeuristics produces a deterministic, fully offline analysis from
// price, volume, and headline presence. It never fails, which makes it the
// fallback of last resort for every other tier.
func AnalyzeWithHeuristics(row *models.TickerRow, enrichment *models.Enrichment) models.Analysis {
	pct := row.PctChangeValue()
	absChange := row.AbsChangeValue()
	volume := row.VolumeValue()
	price := row.PriceValue()
	hasHeadlines := enrichment.HasHeadlines()

	sentiment := utils.Clamp(pct/12.0, -1.0, 1.0)

	confidence := 0.58
	confidence += min(abs(pct)/60.0, 0.18)
	if hasHeadlines {
		confidence += 0.12
	} else {
		confidence -= 0.10
	}
	if volume >= 1_000_000 {
		confidence += 0.05
	}
	confidence = utils.Clamp(confidence, 0.05, 0.95)

	var rules []string
	if pct >= 5 {
		rules = append(rules, "positive_price_impulse")
	}
	if pct <= -5 {
		rules = append(rules, "negative_price_impulse")
	}
	if abs(pct) > 15 {
		rules = append(rules, "extreme_percent_change")
	}
	if volume >= 5_000_000 {
		rules = append(rules, "elevated_volume")
	}
	if !hasHeadlines {
		rules = append(rules, "no_headline_evidence")
	}

	action := models.Watch
	if sentiment >= 0.4 && confidence >= 0.65 {
		action = models.Buy
	} else if sentiment <= -0.4 && confidence >= 0.65 {
		action = models.Sell
	}

	evidence := firstHeadlines(enrichment.Headlines, 3)
	whyItMoved := buildTwoSentenceExplanation(row.Ticker, pct, action, confidence, evidence, volume)

	trace := models.DecisionTrace{
		EvidenceUsed: evidence,
		NumericSignalsUsed: map[string]any{
			"price":          price,
			"abs_change":     absChange,
			"pct_change":     pct,
			"volume":         volume,
			"headline_count": len(evidence),
		},
		RulesTriggered:        rules,
		ExplainabilitySummary: buildTraceSummary(row.Ticker, action, pct, len(rules), hasHeadlines),
	}

	provenance := make([]string, 0, len(evidence)+1)
	for _, h := range evidence {
		if h.URL != "" {
			provenance = append(provenance, h.URL)
		}
	}
	quoteURL := row.QuoteURL()
	if !contains(provenance, quoteURL) {
		provenance = append(provenance, quoteURL)
	}

	return models.Analysis{
		WhyItMoved:     whyItMoved,
		Sentiment:      sentiment,
		Action:         action,
		Confidence:     confidence,
		DecisionTrace:  trace,
		ProvenanceURLs: provenance,
		ModelUsed:      HeuristicModel,
	}
}

func buildTwoSentenceExplanation(ticker string, pct float64, action models.Action, confidence float64, headlines []models.Headline, volume float64) string {
	if len(headlines) > 0 {
		title := sanitizeTitle(headlines[0].Title)
		sentence1 := fmt.Sprintf("%s moved %+.2f%% while coverage highlighted %s.", ticker, pct, title)
		sentence2 := fmt.Sprintf("Volume near %s supports a %s stance at %.2f confidence.",
			utils.FormatVolume(volume), strings.ToLower(string(action)), confidence)
		return sentence1 + " " + sentence2
	}

	sentence1 := fmt.Sprintf("%s moved %+.2f%% but no fresh headline evidence was available at analysis time.", ticker, pct)
	sentence2 := fmt.Sprintf("The recommendation is %s with %.2f confidence based on price and volume signals only.",
		strings.ToLower(string(action)), confidence)
	return sentence1 + " " + sentence2
}

func buildTraceSummary(ticker string, action models.Action, pct float64, ruleCount int, hasHeadlines bool) string {
	evidenceState := "headline-light"
	if hasHeadlines {
		evidenceState = "headline-supported"
	}
	return fmt.Sprintf("%s is tagged %s from %+.2f%% movement with %d triggered rules under a %s context.",
		ticker, action, pct, ruleCount, evidenceState)
}

// sanitizeTitle strips quotes and periods from a headline so it can be
// embedded mid-sentence, and caps the length.
func sanitizeTitle(title string) string {
	cleaned := strings.NewReplacer("\"", "", "'", "", ".", "").Replace(title)
	return utils.Truncate(cleaned, 120)
}

func firstHeadlines(headlines []models.Headline, n int) []models.Headline {
	if len(headlines) > n {
		headlines = headlines[:n]
	}
	out := make([]models.Headline, len(headlines))
	copy(out, headlines)
	return out
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
