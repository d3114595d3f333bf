package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"daily-movers/internal/config"
	"daily-movers/internal/logging"
	"daily-movers/internal/models"
	"daily-movers/pkg/utils"
)

// Agent-tier model labels.
const (
	AgentHeuristicModel = "agent:heuristics"
	AgentFallbackModel  = "agent:heuristic_fallback"
)

// agentNode identifies a state in the agent graph.
type agentNode int

const (
	nodeResearcher agentNode = iota
	nodeAnalyst
	nodeCritic
	nodeRecommender
	nodeEnd
)

func (n agentNode) String() string {
	switch n {
	case nodeResearcher:
		return "researcher"
	case nodeAnalyst:
		return "analyst"
	case nodeCritic:
		return "critic"
	case nodeRecommender:
		return "recommender"
	default:
		return "end"
	}
}

// analystOutput is the intermediate recommendation the analyst node hands to
// the critic node.
type analystOutput struct {
	WhyItMoved            string
	Sentiment             float64
	Action                models.Action
	Confidence            float64
	RulesTriggered        []string
	ExplainabilitySummary string
	Present               bool
}

// agentState is the mutable state threaded through the graph nodes.
type agentState struct {
	row        *models.TickerRow
	enrichment *models.Enrichment

	evidenceSummary   string
	evidenceHeadlines []models.Headline
	numericSignals    map[string]any

	analystOutput analystOutput

	criticFlags    []string
	criticApproved bool
	retryCount     int

	analysis           models.Analysis
	analysisReady      bool
	recommendationTags []string
	modelUsed          string
}

// AgentPipeline runs the four-node analysis state machine:
//
//	researcher -> analyst -> critic -> recommender
//
// The critic may send the state back to the analyst once when confidence is
// too low. With no OpenAI key the analyst runs its embedded heuristics, so
// the graph always completes.
type AgentPipeline struct {
	client  *LLMClient
	model   string
	timeout time.Duration
	runlog  *logging.RunLogger
}

// NewAgentPipeline builds an agent pipeline from the configuration.
func NewAgentPipeline(cfg *config.Config, runlog *logging.RunLogger) *AgentPipeline {
	p := &AgentPipeline{
		model:   cfg.OpenAI.Model,
		timeout: cfg.OpenAI.Timeout,
		runlog:  runlog,
	}
	if cfg.OpenAIEnabled() {
		p.client = NewLLMClient(cfg.OpenAI)
	}
	return p
}

// Analyze runs the state machine for one ticker. An LLM failure inside the
// analyst degrades to the embedded heuristics and still completes; an error
// is returned only when the graph itself cannot finish, so the caller can
// move on to the next analysis tier.
func (p *AgentPipeline) Analyze(ctx context.Context, row *models.TickerRow, enrichment *models.Enrichment) (models.Analysis, error) {
	state := &agentState{
		row:        row,
		enrichment: enrichment,
		modelUsed:  AgentHeuristicModel,
	}

	analysis, err := p.runGraph(ctx, state)
	if err != nil {
		return models.Analysis{}, err
	}

	p.runlog.Info("agent_analysis_completed", map[string]any{
		"stage":      "agent",
		"symbol":     row.Ticker,
		"model_used": analysis.ModelUsed,
	})
	return analysis, nil
}

// runGraph drives the node transitions until the end state.
func (p *AgentPipeline) runGraph(ctx context.Context, state *agentState) (models.Analysis, error) {
	node := nodeResearcher
	for steps := 0; node != nodeEnd; steps++ {
		// Transition bound: researcher + two analyst/critic rounds +
		// recommender stays well under this.
		if steps > 10 {
			return models.Analysis{}, fmt.Errorf("agent graph did not converge")
		}
		if err := ctx.Err(); err != nil {
			return models.Analysis{}, err
		}

		switch node {
		case nodeResearcher:
			p.researcherNode(state)
			node = nodeAnalyst
		case nodeAnalyst:
			p.analystNode(ctx, state)
			if state.analystOutput.Present {
				node = nodeCritic
			} else {
				node = nodeEnd
			}
		case nodeCritic:
			p.criticNode(state)
			switch {
			case state.criticApproved:
				node = nodeRecommender
			case state.retryCount <= 1:
				node = nodeAnalyst
			default:
				node = nodeEnd
			}
		case nodeRecommender:
			p.recommenderNode(state)
			node = nodeEnd
		}
	}

	if !state.analysisReady {
		return models.Analysis{}, fmt.Errorf("agent graph produced empty analysis")
	}

	analysis := state.analysis
	analysis.ModelUsed = state.modelUsed
	if err := analysis.Validate(); err != nil {
		return models.Analysis{}, err
	}
	return analysis, nil
}

// researcherNode structures the enrichment payload into the evidence the
// analyst consumes: top headlines, a numeric signal map, and a one-paragraph
// summary.
func (p *AgentPipeline) researcherNode(state *agentState) {
	row := state.row
	enrichment := state.enrichment

	evidence := firstHeadlines(enrichment.Headlines, 5)

	pct := row.PctChangeValue()
	absChange := row.AbsChangeValue()
	volume := row.VolumeValue()

	state.numericSignals = map[string]any{
		"price":              row.PriceValue(),
		"abs_change":         absChange,
		"pct_change":         pct,
		"volume":             volume,
		"headline_count":     len(evidence),
		"sector":             enrichment.Sector,
		"industry":           enrichment.Industry,
		"earnings_date":      enrichment.EarningsDate,
		"price_trend_points": len(enrichment.PriceSeries),
	}

	var summary string
	if len(evidence) > 0 {
		titles := make([]string, 0, 3)
		for _, h := range firstHeadlines(evidence, 3) {
			titles = append(titles, utils.Truncate(h.Title, 80))
		}
		summary = fmt.Sprintf("%s moved %+.2f%% ($%+.2f) on volume %.0f. Key headlines: %s.",
			row.Ticker, pct, absChange, volume, strings.Join(titles, "; "))
	} else {
		summary = fmt.Sprintf("%s moved %+.2f%% ($%+.2f) on volume %.0f. No fresh headline evidence available.",
			row.Ticker, pct, absChange, volume)
	}
	if enrichment.Sector != "" {
		summary += fmt.Sprintf(" Sector: %s.", enrichment.Sector)
	}
	if enrichment.EarningsDate != "" {
		summary += fmt.Sprintf(" Next earnings: %s.", enrichment.EarningsDate)
	}

	state.evidenceSummary = summary
	state.evidenceHeadlines = evidence
}

// analystNode produces the intermediate recommendation, via the LLM when a
// client is configured and via embedded heuristics otherwise. An LLM failure
// here is not fatal: the heuristic analyst takes over within the same run.
func (p *AgentPipeline) analystNode(ctx context.Context, state *agentState) {
	if p.client != nil {
		output, err := p.llmAnalyst(ctx, state)
		if err == nil {
			state.analystOutput = output
			state.modelUsed = "agent:openai:" + p.model
			return
		}
		p.runlog.Warning("agent_llm_analyst_failed", map[string]any{
			"stage":         "agent",
			"symbol":        state.row.Ticker,
			"error_type":    fmt.Sprintf("%T", err),
			"error_message": err.Error(),
		})
		state.analystOutput = p.heuristicAnalyst(state)
		state.modelUsed = AgentFallbackModel
		return
	}

	state.analystOutput = p.heuristicAnalyst(state)
	state.modelUsed = AgentHeuristicModel
}

const agentAnalystSystemPrompt = "You are a financial analyst AI. You produce concise, evidence-based stock analysis. " +
	"Return ONLY valid JSON with these exact keys: " +
	"why_it_moved (exactly 2 sentences), sentiment (float -1 to 1), " +
	"action (BUY/WATCH/SELL), confidence (float 0 to 1), " +
	"rules_triggered (list of rule name strings), " +
	"explainability_summary (1 sentence). " +
	"Never include chain-of-thought. Reference only provided evidence."

func (p *AgentPipeline) llmAnalyst(ctx context.Context, state *agentState) (analystOutput, error) {
	signals, err := json.Marshal(state.numericSignals)
	if err != nil {
		return analystOutput{}, err
	}
	headlines, err := json.Marshal(state.evidenceHeadlines)
	if err != nil {
		return analystOutput{}, err
	}

	userPrompt := fmt.Sprintf("Analyze %s.\n\nEvidence summary: %s\n\nNumeric signals: %s\n\nHeadlines: %s\n\nProduce your JSON analysis now.",
		state.row.Ticker, state.evidenceSummary, signals, headlines)

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	text, err := p.client.CompleteWithSystem(callCtx, agentAnalystSystemPrompt, userPrompt)
	if err != nil {
		return analystOutput{}, err
	}

	parsed, err := ExtractJSONObject(text)
	if err != nil {
		return analystOutput{}, err
	}

	sentiment := utils.Clamp(CoerceFloat(parsed["sentiment"], 0.0), -1.0, 1.0)
	confidence := utils.Clamp(CoerceFloat(parsed["confidence"], 0.6), 0.0, 1.0)
	action := CoerceAction(parsed["action"], sentiment)
	why := ensureTwoSentences(
		stringOrEmpty(parsed["why_it_moved"]),
		state.row.Ticker,
		state.row.PctChangeValue(),
		action,
		confidence,
		len(state.evidenceHeadlines) > 0,
	)
	rules := CoerceRules(parsed["rules_triggered"])

	expl := strings.TrimSpace(stringOrEmpty(parsed["explainability_summary"]))
	if expl == "" {
		expl = fmt.Sprintf("%s analysis produced by LLM agent with %d rules.", state.row.Ticker, len(rules))
	}

	return analystOutput{
		WhyItMoved:            why,
		Sentiment:             sentiment,
		Action:                action,
		Confidence:            confidence,
		RulesTriggered:        rules,
		ExplainabilitySummary: expl,
		Present:               true,
	}, nil
}

// heuristicAnalyst mirrors the standalone heuristic analyzer so the graph is
// self-sufficient without network access. The constants here and in
// AnalyzeWithHeuristics are deliberately identical.
func (p *AgentPipeline) heuristicAnalyst(state *agentState) analystOutput {
	row := state.row
	pct := row.PctChangeValue()
	volume := row.VolumeValue()
	hasHeadlines := len(state.evidenceHeadlines) > 0

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

	var why string
	if hasHeadlines {
		title := utils.Truncate(state.evidenceHeadlines[0].Title, 80)
		why = fmt.Sprintf("%s moved %+.2f%% while coverage highlighted %s. Volume near %s supports a %s stance at %.2f confidence.",
			row.Ticker, pct, title, utils.FormatVolume(volume), strings.ToLower(string(action)), confidence)
	} else {
		why = fmt.Sprintf("%s moved %+.2f%% but no fresh headline evidence was available at analysis time. The recommendation is %s with %.2f confidence based on price and volume signals only.",
			row.Ticker, pct, strings.ToLower(string(action)), confidence)
	}

	expl := fmt.Sprintf("%s is tagged %s from %+.2f%% movement with %d triggered rules.",
		row.Ticker, action, pct, len(rules))

	return analystOutput{
		WhyItMoved:            why,
		Sentiment:             sentiment,
		Action:                action,
		Confidence:            confidence,
		RulesTriggered:        rules,
		ExplainabilitySummary: expl,
		Present:               true,
	}
}

// agentCotPatterns are the reasoning-leak markers the in-graph critic strips.
var agentCotPatterns = []string{
	"chain of thought",
	"chain-of-thought",
	"step-by-step",
	"let me think",
	"internal reasoning",
}

// criticNode validates the analyst output, applies guardrails, and assembles
// the final analysis. It can reject the output once to request a re-analysis
// when confidence is below 0.35.
func (p *AgentPipeline) criticNode(state *agentState) {
	row := state.row
	output := state.analystOutput
	var flags []string

	why := output.WhyItMoved
	lowerWhy := strings.ToLower(why)
	for _, pattern := range agentCotPatterns {
		if strings.Contains(lowerWhy, pattern) {
			why = fmt.Sprintf("%s moved %+.2f%% based on observed market signals and cited evidence only. The explanation was sanitised to remove internal reasoning language.",
				row.Ticker, row.PctChangeValue())
			flags = append(flags, "cot_language_removed")
			break
		}
	}

	sentiment := utils.Clamp(output.Sentiment, -1.0, 1.0)
	confidence := utils.Clamp(output.Confidence, 0.0, 1.0)
	action := CoerceAction(string(output.Action), sentiment)

	hasHeadlines := len(state.evidenceHeadlines) > 0
	if !hasHeadlines && confidence > 0.7 {
		confidence = 0.7
		flags = append(flags, "confidence_reduced_no_headlines")
	}

	if confidence < 0.35 && state.retryCount < 1 {
		flags = append(flags, "low_confidence_retry_requested")
		state.criticFlags = flags
		state.criticApproved = false
		state.retryCount++
		return
	}

	var provenance []string
	for _, h := range state.evidenceHeadlines {
		if h.URL != "" && !contains(provenance, h.URL) {
			provenance = append(provenance, h.URL)
		}
	}
	quoteURL := row.QuoteURL()
	if !contains(provenance, quoteURL) {
		provenance = append(provenance, quoteURL)
	}

	rules := output.RulesTriggered
	if len(rules) == 0 {
		rules = []string{"critic_default_rule"}
		flags = append(flags, "rules_backfilled")
	}

	expl := strings.TrimSpace(output.ExplainabilitySummary)
	if expl == "" {
		expl = fmt.Sprintf("%s assessment normalised by critic for completeness.", row.Ticker)
		flags = append(flags, "explainability_backfilled")
	}

	why = ensureTwoSentences(why, row.Ticker, row.PctChangeValue(), action, confidence, hasHeadlines)

	state.analysis = models.Analysis{
		WhyItMoved: why,
		Sentiment:  sentiment,
		Action:     action,
		Confidence: confidence,
		DecisionTrace: models.DecisionTrace{
			EvidenceUsed:          firstHeadlines(state.evidenceHeadlines, 3),
			NumericSignalsUsed:    state.numericSignals,
			RulesTriggered:        rules,
			ExplainabilitySummary: expl,
		},
		ProvenanceURLs: provenance,
	}
	state.analysisReady = true
	state.criticFlags = flags
	state.criticApproved = true
}

// recommenderNode assigns portfolio-level tags after critic approval.
func (p *AgentPipeline) recommenderNode(state *agentState) {
	state.recommendationTags = DeriveRecommendationTags(state.row, &state.analysis)
}

// DeriveRecommendationTags assigns portfolio-level tags from a finished
// analysis. Deterministic so renderers stay consistent across model variants.
func DeriveRecommendationTags(row *models.TickerRow, analysis *models.Analysis) []string {
	pct := row.PctChangeValue()
	volume := row.VolumeValue()
	confidence := analysis.Confidence
	sentiment := analysis.Sentiment
	action := analysis.Action

	var tags []string
	if action == models.Buy && confidence >= 0.75 && sentiment > 0.3 {
		tags = append(tags, "top_pick_candidate")
	}
	if sentiment > 0.15 && confidence < 0.75 && (action == models.Buy || action == models.Watch) {
		tags = append(tags, "most_potential_candidate")
	}
	if pct < -5 && volume >= 5_000_000 {
		tags = append(tags, "contrarian_bounce_candidate")
	}
	if pct > 3 && volume >= 2_000_000 {
		tags = append(tags, "momentum_signal")
	}
	if len(tags) == 0 {
		tags = append(tags, "standard")
	}
	return tags
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// ensureTwoSentences collapses whitespace and forces the explanation to
// exactly two terminated sentences, padding or truncating as needed.
func ensureTwoSentences(text, ticker string, pct float64, action models.Action, confidence float64, hasHeadlines bool) string {
	cleaned := strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
	if cleaned == "" {
		if hasHeadlines {
			return fmt.Sprintf("%s moved %+.2f%% with headline evidence in the provided input. The suggested action is %s with %.2f confidence.",
				ticker, pct, action, confidence)
		}
		return fmt.Sprintf("%s moved %+.2f%% and no fresh headline evidence was available. The suggested action is %s with %.2f confidence.",
			ticker, pct, action, confidence)
	}

	sentences := SplitSentences(cleaned)
	if len(sentences) >= 2 {
		return terminate(sentences[0]) + " " + terminate(sentences[1])
	}

	first := fmt.Sprintf("%s moved %+.2f%%.", ticker, pct)
	if len(sentences) > 0 {
		first = terminate(sentences[0])
	}
	second := fmt.Sprintf("The suggested action is %s with %.2f confidence.", action, confidence)
	return first + " " + second
}

func terminate(sentence string) string {
	if strings.HasSuffix(sentence, ".") || strings.HasSuffix(sentence, "!") || strings.HasSuffix(sentence, "?") {
		return sentence
	}
	return sentence + "."
}

func stringOrEmpty(v any) string {
	s, _ := v.(string)
	return s
}
