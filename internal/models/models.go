// Package models defines the core data types for the daily movers pipeline.
//
// Hierarchy:
//   - TickerRow: raw ingestion result (symbol + price/volume deltas)
//   - Enrichment: per-ticker supporting evidence (headlines, sector, price series)
//   - Analysis: synthesized recommendation (action, sentiment, confidence, explanation)
//   - ReportRow: combines all of the above + review flags
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Action represents a recommendation action.
type Action string

const (
	Buy   Action = "BUY"
	Watch Action = "WATCH"
	Sell  Action = "SELL"
)

// ValidAction reports whether s is one of the allowed action values.
func ValidAction(s string) bool {
	switch Action(s) {
	case Buy, Watch, Sell:
		return true
	}
	return false
}

// ErrorInfo records a failure embedded in a row instead of raised as an error,
// so the pipeline can continue and the row stays renderable.
type ErrorInfo struct {
	Stage        string `json:"stage"`
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
	URL          string `json:"url,omitempty"`
	FallbackUsed bool   `json:"fallback_used"`
}

// Headline is a single news item gathered during enrichment.
type Headline struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at,omitempty"`
}

// TickerRow is the raw ingestion output for one ticker.
// It is created once by the evidence store and read-only downstream.
type TickerRow struct {
	Ticker                string      `json:"ticker"`
	Name                  string      `json:"name,omitempty"`
	Price                 *float64    `json:"price"`
	AbsChange             *float64    `json:"abs_change"`
	PctChange             *float64    `json:"pct_change"`
	Volume                *float64    `json:"volume"`
	Currency              string      `json:"currency,omitempty"`
	Exchange              string      `json:"exchange,omitempty"`
	Market                string      `json:"market,omitempty"`
	IngestionSource       string      `json:"ingestion_source"`
	IngestionFallbackUsed bool        `json:"ingestion_fallback_used"`
	Errors                []ErrorInfo `json:"errors"`
}

// NewTickerRow creates a TickerRow with a normalized symbol.
// Symbols are trimmed and uppercased; an empty symbol is rejected.
func NewTickerRow(symbol, source string) (TickerRow, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return TickerRow{}, fmt.Errorf("ticker cannot be empty")
	}
	return TickerRow{Ticker: normalized, IngestionSource: source}, nil
}

// PctChangeValue returns the percent change, or 0 when not available.
func (r *TickerRow) PctChangeValue() float64 { return deref(r.PctChange) }

// AbsChangeValue returns the absolute change, or 0 when not available.
func (r *TickerRow) AbsChangeValue() float64 { return deref(r.AbsChange) }

// PriceValue returns the price, or 0 when not available.
func (r *TickerRow) PriceValue() float64 { return deref(r.Price) }

// VolumeValue returns the volume, or 0 when not available.
func (r *TickerRow) VolumeValue() float64 { return deref(r.Volume) }

// QuoteURL returns the canonical quote page URL for the ticker.
func (r *TickerRow) QuoteURL() string {
	return "https://finance.yahoo.com/quote/" + r.Ticker
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Float returns a pointer to v, for populating optional numeric fields.
func Float(v float64) *float64 { return &v }

// Enrichment is the best-effort evidence gathered per ticker. All fields are
// optional; fetch failures for required fields are recorded in Errors and
// never block the run. An Enrichment value is always usable, even zero.
type Enrichment struct {
	Sector       string      `json:"sector,omitempty"`
	Industry     string      `json:"industry,omitempty"`
	EarningsDate string      `json:"earnings_date,omitempty"`
	Headlines    []Headline  `json:"headlines"`
	PriceSeries  []float64   `json:"price_series"`
	OpenPrice    *float64    `json:"open_price"`
	ClosePrice   *float64    `json:"close_price"`
	Errors       []ErrorInfo `json:"errors"`
}

// HasHeadlines reports whether any headline evidence is present.
func (e *Enrichment) HasHeadlines() bool { return len(e.Headlines) > 0 }

// DecisionTrace records which evidence and rules produced a recommendation.
type DecisionTrace struct {
	EvidenceUsed          []Headline     `json:"evidence_used"`
	NumericSignalsUsed    map[string]any `json:"numeric_signals_used"`
	RulesTriggered        []string       `json:"rules_triggered"`
	ExplainabilitySummary string         `json:"explainability_summary"`
}

// Analysis is the synthesized recommendation for one ticker.
// Produced by the analysis tiers (agent graph, raw LLM, heuristics) and always
// carries explainability traces and provenance URLs for audit.
type Analysis struct {
	WhyItMoved     string        `json:"why_it_moved"`
	Sentiment      float64       `json:"sentiment"`
	Action         Action        `json:"action"`
	Confidence     float64       `json:"confidence"`
	DecisionTrace  DecisionTrace `json:"decision_trace"`
	ProvenanceURLs []string      `json:"provenance_urls"`
	ModelUsed      string        `json:"model_used"`
	Errors         []ErrorInfo   `json:"errors"`
}

// Validate checks the numeric range invariants of a finished analysis.
func (a *Analysis) Validate() error {
	if a.Sentiment < -1 || a.Sentiment > 1 {
		return fmt.Errorf("sentiment must be in [-1, 1], got %f", a.Sentiment)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("confidence must be in [0, 1], got %f", a.Confidence)
	}
	if !ValidAction(string(a.Action)) {
		return fmt.Errorf("invalid action %q", a.Action)
	}
	return nil
}

// Report statuses.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
)

// ReportRow is the complete output for one ticker: ingestion + enrichment +
// analysis + review flags. This is the structure renderers consume.
type ReportRow struct {
	Ticker             TickerRow  `json:"ticker"`
	Enrichment         Enrichment `json:"enrichment"`
	Analysis           Analysis   `json:"analysis"`
	NeedsReview        bool       `json:"needs_review"`
	NeedsReviewReason  []string   `json:"needs_review_reason"`
	RecommendationTags []string   `json:"recommendation_tags"`
	Status             string     `json:"status"`
	CreatedAt          string     `json:"created_at"`
}

// NewReportRow assembles a report row with defaults filled in.
func NewReportRow(ticker TickerRow, enrichment Enrichment, analysis Analysis) ReportRow {
	return ReportRow{
		Ticker:     ticker,
		Enrichment: enrichment,
		Analysis:   analysis,
		Status:     StatusOK,
		CreatedAt:  UTCNowISO(),
	}
}

// AllErrors aggregates the embedded errors from every part of the row.
func (r *ReportRow) AllErrors() []ErrorInfo {
	all := make([]ErrorInfo, 0, len(r.Ticker.Errors)+len(r.Enrichment.Errors)+len(r.Analysis.Errors))
	all = append(all, r.Ticker.Errors...)
	all = append(all, r.Enrichment.Errors...)
	all = append(all, r.Analysis.Errors...)
	return all
}

// ToArchiveRecord returns the archival representation of the row. Field names
// and nesting are stable; downstream renderers depend on them.
func (r *ReportRow) ToArchiveRecord() map[string]any {
	return map[string]any{
		"ticker":              r.Ticker,
		"enrichment":          r.Enrichment,
		"analysis":            r.Analysis,
		"needs_review":        r.NeedsReview,
		"needs_review_reason": r.NeedsReviewReason,
		"recommendation_tags": r.RecommendationTags,
		"status":              r.Status,
		"created_at":          r.CreatedAt,
	}
}

// FlatRecord is the flattened single-line representation of a ReportRow used
// for the CSV report.
type FlatRecord struct {
	Ticker             string   `csv:"ticker" json:"ticker"`
	Name               string   `csv:"name" json:"name"`
	Price              *float64 `csv:"price" json:"price"`
	AbsChange          *float64 `csv:"abs_change" json:"abs_change"`
	PctChange          *float64 `csv:"pct_change" json:"pct_change"`
	Volume             *float64 `csv:"volume" json:"volume"`
	Currency           string   `csv:"currency" json:"currency"`
	Exchange           string   `csv:"exchange" json:"exchange"`
	Sector             string   `csv:"sector" json:"sector"`
	Industry           string   `csv:"industry" json:"industry"`
	EarningsDate       string   `csv:"earnings_date" json:"earnings_date"`
	Action             string   `csv:"action" json:"action"`
	Confidence         float64  `csv:"confidence" json:"confidence"`
	Sentiment          float64  `csv:"sentiment" json:"sentiment"`
	NeedsReview        bool     `csv:"needs_review" json:"needs_review"`
	NeedsReviewReason  string   `csv:"needs_review_reason" json:"needs_review_reason"`
	WhyItMoved         string   `csv:"why_it_moved" json:"why_it_moved"`
	TopHeadline        string   `csv:"top_headline" json:"top_headline"`
	HeadlineURL        string   `csv:"headline_url" json:"headline_url"`
	DecisionTrace      string   `csv:"decision_trace" json:"decision_trace"`
	RulesTriggered     string   `csv:"rules_triggered" json:"rules_triggered"`
	EvidenceTitles     string   `csv:"evidence_titles" json:"evidence_titles"`
	NumericSignals     string   `csv:"numeric_signals" json:"numeric_signals"`
	ProvenanceURLs     string   `csv:"provenance_urls" json:"provenance_urls"`
	RecommendationTags string   `csv:"recommendation_tags" json:"recommendation_tags"`
	Status             string   `csv:"status" json:"status"`
	Errors             string   `csv:"errors" json:"errors"`
}

// ToFlatRecord flattens the row for spreadsheet rendering.
func (r *ReportRow) ToFlatRecord() FlatRecord {
	var topHeadline, headlineURL string
	if len(r.Enrichment.Headlines) > 0 {
		topHeadline = r.Enrichment.Headlines[0].Title
		headlineURL = r.Enrichment.Headlines[0].URL
	}

	titles := make([]string, 0, len(r.Analysis.DecisionTrace.EvidenceUsed))
	for _, h := range r.Analysis.DecisionTrace.EvidenceUsed {
		if h.Title != "" {
			titles = append(titles, h.Title)
		}
	}

	signals, _ := json.Marshal(r.Analysis.DecisionTrace.NumericSignalsUsed)

	errParts := make([]string, 0)
	for _, e := range r.AllErrors() {
		errParts = append(errParts, fmt.Sprintf("%s:%s:%s", e.Stage, e.ErrorType, e.ErrorMessage))
	}

	return FlatRecord{
		Ticker:             r.Ticker.Ticker,
		Name:               r.Ticker.Name,
		Price:              r.Ticker.Price,
		AbsChange:          r.Ticker.AbsChange,
		PctChange:          r.Ticker.PctChange,
		Volume:             r.Ticker.Volume,
		Currency:           r.Ticker.Currency,
		Exchange:           r.Ticker.Exchange,
		Sector:             r.Enrichment.Sector,
		Industry:           r.Enrichment.Industry,
		EarningsDate:       r.Enrichment.EarningsDate,
		Action:             string(r.Analysis.Action),
		Confidence:         r.Analysis.Confidence,
		Sentiment:          r.Analysis.Sentiment,
		NeedsReview:        r.NeedsReview,
		NeedsReviewReason:  strings.Join(r.NeedsReviewReason, "; "),
		WhyItMoved:         r.Analysis.WhyItMoved,
		TopHeadline:        topHeadline,
		HeadlineURL:        headlineURL,
		DecisionTrace:      r.Analysis.DecisionTrace.ExplainabilitySummary,
		RulesTriggered:     strings.Join(r.Analysis.DecisionTrace.RulesTriggered, "; "),
		EvidenceTitles:     strings.Join(titles, "; "),
		NumericSignals:     string(signals),
		ProvenanceURLs:     strings.Join(r.Analysis.ProvenanceURLs, ", "),
		RecommendationTags: strings.Join(r.RecommendationTags, ", "),
		Status:             r.Status,
		Errors:             strings.Join(errParts, "; "),
	}
}

// RunSummary holds the batch-level counters reported after a run.
type RunSummary struct {
	Processed          int    `json:"processed"`
	ErrorRows          int    `json:"error_rows"`
	NeedsReview        int    `json:"needs_review"`
	FallbackRows       int    `json:"fallback_rows"`
	EmailSent          bool   `json:"email_sent"`
	OpenAIAttempted    bool   `json:"openai_attempted"`
	OpenAIUsed         bool   `json:"openai_used"`
	OpenAIUsedRows     int    `json:"openai_used_rows"`
	OpenAIFallbackRows int    `json:"openai_fallback_rows"`
	AgentRows          int    `json:"agent_rows"`
	TopPick            string `json:"top_pick,omitempty"`
	MostPotential      string `json:"most_potential,omitempty"`
	TopPickCount       int    `json:"top_pick_count"`
	MostPotentialCount int    `json:"most_potential_count"`
}

// EmailOutcome records what happened to the digest email for the run.
type EmailOutcome struct {
	Attempted bool   `json:"attempted"`
	Sent      bool   `json:"sent"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Backend   string `json:"backend"`
}

// RunMeta is the per-run metadata written alongside the artifacts.
type RunMeta struct {
	RunID         string           `json:"run_id"`
	RequestedDate string           `json:"requested_date"`
	Mode          string           `json:"mode"`
	Region        string           `json:"region"`
	Source        string           `json:"source,omitempty"`
	Top           int              `json:"top"`
	OutDir        string           `json:"out_dir"`
	StartedAt     string           `json:"started_at"`
	EndedAt       string           `json:"ended_at"`
	Status        string           `json:"status"`
	Summary       RunSummary       `json:"summary"`
	Email         EmailOutcome     `json:"email"`
	TimingsMS     map[string]int64 `json:"timings_ms"`
}

// RunArtifacts is what a completed run hands back to the CLI.
type RunArtifacts struct {
	Status  string            `json:"status"`
	Summary RunSummary        `json:"summary"`
	Paths   map[string]string `json:"paths"`
}

// UTCNowISO returns the current UTC time in RFC 3339 format.
func UTCNowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
