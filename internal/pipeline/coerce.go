package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"daily-movers/internal/models"
	"daily-movers/pkg/utils"
)

// This file centralizes the permissive normalization of model output. LLM
// responses drift: numbers arrive as strings with percent signs, headline
// keys vary, rules come back as strings or objects. Every accepted shape and
// every default lives here so the analyzers stay thin.

// NormalizeAnalysis converts a decoded JSON object from a model response into
// a valid Analysis, coercing every field and backfilling from the row and
// enrichment where the model left gaps.
func NormalizeAnalysis(obj map[string]any, row *models.TickerRow, enrichment *models.Enrichment) models.Analysis {
	sentiment := utils.Clamp(CoerceFloat(obj["sentiment"], 0.0), -1.0, 1.0)
	action := CoerceAction(obj["action"], sentiment)
	confidence := utils.Clamp(CoerceFloat(obj["confidence"], 0.6), 0.0, 1.0)
	whyItMoved := CoerceWhyItMoved(obj["why_it_moved"], row, action, confidence, enrichment.HasHeadlines())

	traceRaw, _ := obj["decision_trace"].(map[string]any)
	evidence := CoerceEvidence(traceRaw["evidence_used"], enrichment)
	signals := CoerceNumericSignals(traceRaw["numeric_signals_used"], row, enrichment)
	rules := CoerceRules(traceRaw["rules_triggered"])

	summary, _ := traceRaw["explainability_summary"].(string)
	summary = strings.TrimSpace(summary)
	if summary == "" {
		summary = fmt.Sprintf("%s is tagged %s from %+.2f%% movement with %d triggered rules.",
			row.Ticker, action, row.PctChangeValue(), len(rules))
	}

	provenance := CoerceProvenanceURLs(obj["provenance_urls"], evidence, row.Ticker)

	return models.Analysis{
		WhyItMoved: whyItMoved,
		Sentiment:  sentiment,
		Action:     action,
		Confidence: confidence,
		DecisionTrace: models.DecisionTrace{
			EvidenceUsed:          evidence,
			NumericSignalsUsed:    signals,
			RulesTriggered:        rules,
			ExplainabilitySummary: summary,
		},
		ProvenanceURLs: provenance,
	}
}

// CoerceFloat accepts numbers and numeric strings (with an optional percent
// suffix). Booleans, NaN, and infinities fall back to the default.
func CoerceFloat(value any, def float64) float64 {
	switch v := value.(type) {
	case bool:
		return def
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return def
		}
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		candidate := strings.ReplaceAll(strings.TrimSpace(v), "%", "")
		parsed, err := strconv.ParseFloat(candidate, 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return def
		}
		return parsed
	default:
		return def
	}
}

// CoerceAction accepts a valid action string in any case; anything else is
// derived from sentiment.
func CoerceAction(value any, sentiment float64) models.Action {
	if s, ok := value.(string); ok {
		upper := strings.ToUpper(strings.TrimSpace(s))
		if models.ValidAction(upper) {
			return models.Action(upper)
		}
	}
	if sentiment >= 0.25 {
		return models.Buy
	}
	if sentiment <= -0.25 {
		return models.Sell
	}
	return models.Watch
}

// CoerceWhyItMoved forces the explanation to exactly two sentences, building
// a deterministic fallback when the model returned nothing usable.
func CoerceWhyItMoved(raw any, row *models.TickerRow, action models.Action, confidence float64, hasHeadlines bool) string {
	text, _ := raw.(string)
	text = strings.TrimSpace(text)
	if text == "" {
		if hasHeadlines {
			text = fmt.Sprintf("%s moved %+.2f%% with headline evidence in the provided input.",
				row.Ticker, row.PctChangeValue())
		} else {
			text = fmt.Sprintf("%s moved %+.2f%% and no fresh headline evidence was available in the provided input.",
				row.Ticker, row.PctChangeValue())
		}
	}

	sentences := SplitSentences(text)
	if len(sentences) >= 2 {
		return sentences[0] + " " + sentences[1]
	}

	var second string
	if hasHeadlines {
		second = fmt.Sprintf("The suggested action is %s with %.2f confidence using price, volume, and evidence signals.",
			action, confidence)
	} else {
		second = fmt.Sprintf("The suggested action is %s with %.2f confidence using price and volume signals only.",
			action, confidence)
	}

	var first string
	if len(sentences) > 0 {
		first = sentences[0]
	} else {
		first = fmt.Sprintf("%s showed %+.2f%% movement in the latest session.", row.Ticker, row.PctChangeValue())
	}
	if !strings.HasSuffix(first, ".") && !strings.HasSuffix(first, "!") && !strings.HasSuffix(first, "?") {
		first += "."
	}
	return first + " " + second
}

// SplitSentences splits text on whitespace that follows sentence-ending
// punctuation, keeping the punctuation attached to each sentence.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			if i+1 < len(runes) && isSpace(runes[i+1]) {
				piece := strings.TrimSpace(string(runes[start : i+1]))
				if piece != "" {
					sentences = append(sentences, piece)
				}
				for i+1 < len(runes) && isSpace(runes[i+1]) {
					i++
				}
				start = i + 1
			}
		}
	}
	if start < len(runes) {
		piece := strings.TrimSpace(string(runes[start:]))
		if piece != "" {
			sentences = append(sentences, piece)
		}
	}
	return sentences
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// CoerceEvidence parses a list of headline-shaped objects; when none are
// usable it falls back to the enrichment's top headlines.
func CoerceEvidence(raw any, enrichment *models.Enrichment) []models.Headline {
	var evidence []models.Headline
	if items, ok := raw.([]any); ok {
		for _, item := range items {
			if h, ok := coerceHeadline(item); ok {
				evidence = append(evidence, h)
			}
		}
	}
	if len(evidence) == 0 {
		evidence = firstHeadlines(enrichment.Headlines, 3)
	}
	return evidence
}

// coerceHeadline accepts the key aliases models actually emit: title may be
// title/headline/text, url may be url/link, timestamp may be
// published_at/published/pubDate. Title and url are required.
func coerceHeadline(raw any) (models.Headline, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return models.Headline{}, false
	}

	title := firstString(obj, "title", "headline", "text")
	url := firstString(obj, "url", "link")
	if title == "" || url == "" {
		return models.Headline{}, false
	}

	published := firstString(obj, "published_at", "published", "pubDate")
	return models.Headline{Title: title, URL: url, PublishedAt: published}, true
}

func firstString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// CoerceNumericSignals merges model-provided signals over the base signals
// derived from the row. Accepts a map or a list of name/value records.
func CoerceNumericSignals(raw any, row *models.TickerRow, enrichment *models.Enrichment) map[string]any {
	base := map[string]any{
		"price":          row.Price,
		"abs_change":     row.AbsChange,
		"pct_change":     row.PctChange,
		"volume":         row.Volume,
		"headline_count": len(enrichment.Headlines),
	}

	switch v := raw.(type) {
	case map[string]any:
		for key, value := range v {
			base[key] = value
		}
	case []any:
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			key := firstString(obj, "name", "key", "signal")
			if key == "" {
				continue
			}
			if value, ok := obj["value"]; ok {
				base[key] = value
			} else if value, ok := obj["metric_value"]; ok {
				base[key] = value
			}
		}
	}
	return base
}

// CoerceRules accepts rule identifiers as plain strings or as objects keyed
// by id/name/rule/description, deduplicated preserving order.
func CoerceRules(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}

	var results []string
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				results = append(results, trimmed)
			}
		case map[string]any:
			if candidate := firstString(v, "id", "name", "rule", "description"); candidate != "" {
				results = append(results, candidate)
			}
		}
	}
	return dedupeKeepOrder(results)
}

// CoerceProvenanceURLs combines raw URLs, evidence URLs, and the canonical
// quote page, deduplicated preserving order.
func CoerceProvenanceURLs(raw any, evidence []models.Headline, ticker string) []string {
	var urls []string
	if items, ok := raw.([]any); ok {
		for _, item := range items {
			if s, ok := item.(string); ok {
				if trimmed := strings.TrimSpace(s); trimmed != "" {
					urls = append(urls, trimmed)
				}
			}
		}
	}
	for _, h := range evidence {
		if h.URL != "" {
			urls = append(urls, h.URL)
		}
	}
	urls = append(urls, "https://finance.yahoo.com/quote/"+ticker)
	return dedupeKeepOrder(urls)
}

func dedupeKeepOrder(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
