// Package render produces the run artifacts: the HTML digest, the CSV
// report, and the RFC 5322 email message wrapping the digest.
package render

import (
	"fmt"
	"html/template"
	"net/url"
	"sort"
	"strings"

	"daily-movers/internal/models"
	"daily-movers/pkg/utils"
)

// DigestMeta is the run header rendered at the top of the digest.
type DigestMeta struct {
	RunID         string
	RequestedDate string
	Mode          string
	Region        string
	Top           int
}

type marketInfo struct {
	Flag  string
	Label string
}

var marketCatalog = map[string]marketInfo{
	"us":     {"\U0001F1FA\U0001F1F8", "US"},
	"tase":   {"\U0001F1EE\U0001F1F1", "TASE"},
	"uk":     {"\U0001F1EC\U0001F1E7", "UK"},
	"eu":     {"\U0001F1EA\U0001F1FA", "EU"},
	"crypto": {"₿", "Crypto"},
	"other":  {"\U0001F30D", "Other"},
}

// BuildDigestHTML renders the standalone HTML digest for a run. Every
// upstream-provided string is escaped before embedding, and outbound links
// are restricted to http/https.
func BuildDigestHTML(rows []models.ReportRow, meta DigestMeta) (string, error) {
	gainers := topMovers(rows, 3, true)
	losers := topMovers(rows, 3, false)
	topPick, mostPotential := pickHighlights(rows)

	marketCounts := map[string]int{}
	for i := range rows {
		marketCounts[detectMarket(rows[i].Ticker.Ticker, rows[i].Ticker.Market)]++
	}

	var tableRows strings.Builder
	for i := range rows {
		tableRows.WriteString(buildTableRow(&rows[i], i))
	}

	processed := len(rows)
	var needsReview, actionBuy, actionWatch, actionSell, agentRows int
	var confidenceSum float64
	for i := range rows {
		row := &rows[i]
		if row.NeedsReview {
			needsReview++
		}
		switch row.Analysis.Action {
		case models.Buy:
			actionBuy++
		case models.Watch:
			actionWatch++
		case models.Sell:
			actionSell++
		}
		confidenceSum += row.Analysis.Confidence
		if strings.Contains(row.Analysis.ModelUsed, "agent") {
			agentRows++
		}
	}
	avgConfidence := 0.0
	if processed > 0 {
		avgConfidence = confidenceSum / float64(processed)
	}

	var cardsGainers, cardsLosers strings.Builder
	for i := range gainers {
		cardsGainers.WriteString(buildCard(gainers[i], true))
	}
	for i := range losers {
		cardsLosers.WriteString(buildCard(losers[i], false))
	}
	if cardsGainers.Len() == 0 {
		cardsGainers.WriteString(`<div class="empty">No gainers in this slice.</div>`)
	}
	if cardsLosers.Len() == 0 {
		cardsLosers.WriteString(`<div class="empty">No losers in this slice.</div>`)
	}

	view := digestView{
		RunID:          orNA(meta.RunID),
		RequestedDate:  orNA(meta.RequestedDate),
		Mode:           orNA(meta.Mode),
		Region:         orNA(meta.Region),
		Top:            meta.Top,
		Processed:      processed,
		NeedsReview:    needsReview,
		ActionBuy:      actionBuy,
		ActionWatch:    actionWatch,
		ActionSell:     actionSell,
		AvgConfidence:  fmt.Sprintf("%.2f", avgConfidence),
		AgentRows:      agentRows,
		MarketBadges:   template.HTML(buildMarketBadges(marketCounts)),
		HighlightCards: template.HTML(buildHighlightSection(topPick, mostPotential)),
		CardsGainers:   template.HTML(cardsGainers.String()),
		CardsLosers:    template.HTML(cardsLosers.String()),
		TableRows:      template.HTML(tableRows.String()),
	}

	var out strings.Builder
	if err := digestTemplate.Execute(&out, view); err != nil {
		return "", fmt.Errorf("rendering digest: %w", err)
	}
	return out.String(), nil
}

type digestView struct {
	RunID          string
	RequestedDate  string
	Mode           string
	Region         string
	Top            int
	Processed      int
	NeedsReview    int
	ActionBuy      int
	ActionWatch    int
	ActionSell     int
	AvgConfidence  string
	AgentRows      int
	MarketBadges   template.HTML
	HighlightCards template.HTML
	CardsGainers   template.HTML
	CardsLosers    template.HTML
	TableRows      template.HTML
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}

// topMovers returns up to n rows ordered by percent change. Rows without a
// percent change sort to the bottom for gainers and losers alike.
func topMovers(rows []models.ReportRow, n int, gainers bool) []*models.ReportRow {
	sorted := make([]*models.ReportRow, 0, len(rows))
	for i := range rows {
		sorted = append(sorted, &rows[i])
	}
	missing := -9999.0
	if !gainers {
		missing = 9999.0
	}
	key := func(r *models.ReportRow) float64 {
		if r.Ticker.PctChange == nil {
			return missing
		}
		return *r.Ticker.PctChange
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if gainers {
			return key(sorted[i]) > key(sorted[j])
		}
		return key(sorted[i]) < key(sorted[j])
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// pickHighlights selects the most confident top-pick candidate and the
// highest-sentiment most-potential candidate.
func pickHighlights(rows []models.ReportRow) (*models.ReportRow, *models.ReportRow) {
	var topPick, mostPotential *models.ReportRow
	for i := range rows {
		row := &rows[i]
		if hasTag(row.RecommendationTags, "top_pick_candidate") {
			if topPick == nil || row.Analysis.Confidence > topPick.Analysis.Confidence {
				topPick = row
			}
		}
		if hasTag(row.RecommendationTags, "most_potential_candidate") {
			if mostPotential == nil || row.Analysis.Sentiment > mostPotential.Analysis.Sentiment {
				mostPotential = row
			}
		}
	}
	return topPick, mostPotential
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func esc(s string) string { return template.HTMLEscapeString(s) }

func buildCard(row *models.ReportRow, positive bool) string {
	pct := row.Ticker.PctChangeValue()
	cls := "bad"
	if (positive && pct >= 0) || (!positive && pct <= 0) {
		cls = "good"
	}
	reason := "none"
	if len(row.NeedsReviewReason) > 0 {
		reasons := row.NeedsReviewReason
		if len(reasons) > 2 {
			reasons = reasons[:2]
		}
		reason = esc(strings.Join(reasons, ", "))
	}
	return fmt.Sprintf(
		"<div class='mover-card'>"+
			"<div class='mover-line'>"+
			"<span class='ticker'>%s</span>"+
			"<span class='pct %s'>%s</span>"+
			"</div>"+
			"<div class='mover-meta'>Action: %s | Conf: %.2f | Review reason: %s</div>"+
			"</div>",
		esc(row.Ticker.Ticker), cls, utils.FormatPercent(pct),
		esc(string(row.Analysis.Action)), row.Analysis.Confidence, reason)
}

func buildTableRow(row *models.ReportRow, idx int) string {
	ticker := esc(row.Ticker.Ticker)
	tickerURL := "https://finance.yahoo.com/quote/" + url.QueryEscape(row.Ticker.Ticker)
	company := row.Ticker.Name
	if company == "" {
		company = "Unknown"
	}

	pct := row.Ticker.PctChangeValue()
	volume := row.Ticker.VolumeValue()
	priceSort, priceDisplay := sortableValue(row.Ticker.Price)
	openSort, openDisplay := sortableValue(row.Enrichment.OpenPrice)
	closeSort, closeDisplay := sortableValue(row.Enrichment.ClosePrice)

	action := esc(string(row.Analysis.Action))
	confidence := row.Analysis.Confidence
	confidenceCls := "low"
	switch {
	case confidence >= 0.8:
		confidenceCls = "high"
	case confidence >= 0.6:
		confidenceCls = "medium"
	}

	reviewValue, reviewCls := "NO", "review-no"
	if row.NeedsReview {
		reviewValue, reviewCls = "YES", "review-yes"
	}

	marketLabel := detectMarket(row.Ticker.Ticker, row.Ticker.Market)
	info, ok := marketCatalog[marketLabel]
	if !ok {
		info = marketCatalog["other"]
	}
	marketBadge := fmt.Sprintf("<span class='market-badge'><span class='flag'>%s</span>%s</span>", info.Flag, info.Label)

	var tagsHTML string
	if len(row.RecommendationTags) > 0 {
		parts := make([]string, 0, len(row.RecommendationTags))
		for _, t := range row.RecommendationTags {
			parts = append(parts, fmt.Sprintf("<span class='pill action-%s'>%s</span>", tagStyle(t), esc(t)))
		}
		tagsHTML = strings.Join(parts, " ")
	} else {
		tagsHTML = "<span class='muted'>standard</span>"
	}

	var ruleItems strings.Builder
	rules := row.Analysis.DecisionTrace.RulesTriggered
	if len(rules) > 4 {
		rules = rules[:4]
	}
	for _, rule := range rules {
		fmt.Fprintf(&ruleItems, "<li>%s</li>", esc(rule))
	}
	if ruleItems.Len() == 0 {
		ruleItems.WriteString("<li>No explicit rules</li>")
	}

	var headlineItems strings.Builder
	evidence := row.Analysis.DecisionTrace.EvidenceUsed
	if len(evidence) > 3 {
		evidence = evidence[:3]
	}
	for _, h := range evidence {
		if h.Title == "" {
			continue
		}
		headlineItems.WriteString(buildHeadlineItem(h.Title, h.URL))
	}
	if headlineItems.Len() == 0 {
		headlineItems.WriteString("<li>No evidence headlines</li>")
	}

	var errParts []string
	for _, e := range row.AllErrors() {
		errParts = append(errParts, fmt.Sprintf("%s:%s:%s", e.Stage, e.ErrorType, e.ErrorMessage))
	}

	reasons := esc(strings.Join(row.NeedsReviewReason, "; "))
	if reasons == "" {
		reasons = "none"
	}

	return fmt.Sprintf(`
<tr data-action="%s" data-review="%s" data-row="%d">
  <td data-sort="%s">
    <a class="symbol-link mono" href="%s" target="_blank" rel="noopener noreferrer">%s</a>
    <div class="company-name">%s</div>
  </td>
  <td data-sort="%s">%s</td>
  <td data-sort="%.6f" class="mono">%s</td>
  <td data-sort="%.6f" class="mono">%s</td>
  <td data-sort="%.6f" class="mono">%s</td>
  <td data-sort="%.6f" class="mono">%s</td>
  <td data-sort="%.6f" class="mono">%s</td>
  <td data-sort="%s"><span class="pill action-%s">%s</span></td>
  <td data-sort="%.6f" class="confidence %s">%.2f</td>
  <td data-sort="%s">
    <div class="%s">%s</div>
    <div class="muted">%s</div>
  </td>
  <td>%s</td>
  <td>%s</td>
  <td>
    <details>
      <summary>Open Trace</summary>
      <div class="muted" style="margin-top:6px;">%s</div>
      <ul class="trace-list">%s</ul>
      <ul class="trace-list">%s</ul>
      <div class="muted" style="margin-top:6px;">%s</div>
    </details>
  </td>
  <td class="spark">%s</td>
</tr>
`,
		action, reviewValue, idx,
		ticker, tickerURL, ticker, esc(company),
		marketLabel, marketBadge,
		pct, utils.FormatPercent(pct),
		priceSort, priceDisplay,
		openSort, openDisplay,
		closeSort, closeDisplay,
		volume, commaFloat(volume),
		action, action, action,
		confidence, confidenceCls, confidence,
		reviewValue, reviewCls, reviewValue, reasons,
		tagsHTML,
		esc(row.Analysis.WhyItMoved),
		esc(row.Analysis.DecisionTrace.ExplainabilitySummary),
		ruleItems.String(),
		headlineItems.String(),
		esc(strings.Join(errParts, "; ")),
		sparklineSVG(row.Enrichment.PriceSeries))
}

func sortableValue(v *float64) (float64, string) {
	if v == nil {
		return -999999, "--"
	}
	return *v, fmt.Sprintf("%.2f", *v)
}

// commaFloat renders a float as a whole number with thousands separators.
func commaFloat(v float64) string {
	s := fmt.Sprintf("%.0f", v)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var out strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out.WriteByte(',')
		}
		out.WriteRune(r)
	}
	if neg {
		return "-" + out.String()
	}
	return out.String()
}

// sparklineSVG renders the trailing price series as an inline SVG polyline.
func sparklineSVG(points []float64) string {
	if len(points) < 2 {
		return "<span class='mono muted'>n/a</span>"
	}
	trimmed := points
	if len(trimmed) > 15 {
		trimmed = trimmed[len(trimmed)-15:]
	}
	minV, maxV := trimmed[0], trimmed[0]
	for _, v := range trimmed {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	if minV == maxV {
		maxV = minV + 1.0
	}

	const width, height = 132.0, 30.0
	const xPad, yPad = 3.0, 4.0

	coords := make([]string, 0, len(trimmed))
	for i, v := range trimmed {
		x := xPad + (float64(i)/float64(len(trimmed)-1))*(width-2*xPad)
		ratio := (v - minV) / (maxV - minV)
		y := (height - yPad) - ratio*(height-2*yPad)
		coords = append(coords, fmt.Sprintf("%.2f,%.2f", x, y))
	}

	stroke := "#b6263e"
	if trimmed[len(trimmed)-1] >= trimmed[0] {
		stroke = "#0f8a5f"
	}
	return fmt.Sprintf(
		"<svg viewBox='0 0 %.0f %.0f' preserveAspectRatio='none'>"+
			"<rect x='0' y='0' width='%.0f' height='%.0f' fill='#eef3fb' rx='5' />"+
			"<polyline points='%s' fill='none' stroke='%s' stroke-width='2.15' />"+
			"</svg>",
		width, height, width, height, strings.Join(coords, " "), stroke)
}

// detectMarket classifies a ticker into a market bucket from its suffix,
// falling back to the ingestion hint.
func detectMarket(ticker, marketHint string) string {
	t := strings.ToUpper(ticker)
	if strings.HasSuffix(t, ".TA") {
		return "tase"
	}
	if strings.HasSuffix(t, ".L") {
		return "uk"
	}
	for _, suffix := range []string{".PA", ".DE", ".AS", ".MI", ".MC"} {
		if strings.HasSuffix(t, suffix) {
			return "eu"
		}
	}
	if strings.Contains(t, "-USD") {
		return "crypto"
	}
	switch t {
	case "BTC", "ETH", "SOL", "XRP", "DOGE", "BNB":
		return "crypto"
	}
	if marketHint != "" {
		hint := strings.ToLower(marketHint)
		if _, ok := marketCatalog[hint]; ok {
			return hint
		}
		if hint == "il" {
			return "tase"
		}
	}
	return "us"
}

func buildMarketBadges(marketCounts map[string]int) string {
	if len(marketCounts) == 0 {
		return ""
	}
	type entry struct {
		market string
		count  int
	}
	entries := make([]entry, 0, len(marketCounts))
	for m, c := range marketCounts {
		entries = append(entries, entry{m, c})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].market < entries[j].market
	})

	var badges strings.Builder
	for _, e := range entries {
		info, ok := marketCatalog[e.market]
		if !ok {
			info = marketCatalog["other"]
		}
		fmt.Fprintf(&badges, "<span class='market-badge'><span class='flag'>%s</span>%s: %d</span>", info.Flag, info.Label, e.count)
	}
	return fmt.Sprintf("<div class='market-badges'>%s</div>", badges.String())
}

func buildHighlightSection(topPick, mostPotential *models.ReportRow) string {
	if topPick == nil && mostPotential == nil {
		return ""
	}

	var cards strings.Builder
	if topPick != nil {
		fmt.Fprintf(&cards,
			"<div class='highlight-card top-pick'>"+
				"<div class='badge'>\U0001F3C6 Top Recommended Pick</div>"+
				"<div class='hl-ticker'>%s</div>"+
				"<div class='hl-meta'>%s &mdash; %s | Confidence: %.2f | %s</div>"+
				"<div class='hl-reason'>%s</div>"+
				"</div>",
			esc(topPick.Ticker.Ticker), esc(topPick.Ticker.Name),
			utils.FormatPercent(topPick.Ticker.PctChangeValue()), topPick.Analysis.Confidence,
			esc(string(topPick.Analysis.Action)), esc(topPick.Analysis.WhyItMoved))
	} else {
		cards.WriteString(
			"<div class='highlight-card top-pick'>" +
				"<div class='badge'>\U0001F3C6 Top Pick</div>" +
				"<div class='hl-meta'>No strong BUY signal with high confidence found in this run.</div>" +
				"</div>")
	}

	if mostPotential != nil {
		fmt.Fprintf(&cards,
			"<div class='highlight-card most-potential'>"+
				"<div class='badge'>\U0001F4C8 Most Potential</div>"+
				"<div class='hl-ticker'>%s</div>"+
				"<div class='hl-meta'>%s &mdash; %s | Sentiment: %+.2f | %s</div>"+
				"<div class='hl-reason'>%s</div>"+
				"</div>",
			esc(mostPotential.Ticker.Ticker), esc(mostPotential.Ticker.Name),
			utils.FormatPercent(mostPotential.Ticker.PctChangeValue()), mostPotential.Analysis.Sentiment,
			esc(string(mostPotential.Analysis.Action)), esc(mostPotential.Analysis.WhyItMoved))
	} else {
		cards.WriteString(
			"<div class='highlight-card most-potential'>" +
				"<div class='badge'>\U0001F4C8 Most Potential</div>" +
				"<div class='hl-meta'>No moderate-confidence upside candidate identified.</div>" +
				"</div>")
	}

	return fmt.Sprintf("<section class='highlight-section'>%s</section>", cards.String())
}

func safeURL(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}
	if parsed.Scheme == "http" || parsed.Scheme == "https" {
		return trimmed
	}
	return ""
}

func buildHeadlineItem(title, rawURL string) string {
	safe := safeURL(rawURL)
	if safe != "" {
		return fmt.Sprintf("<li><a href='%s' target='_blank' rel='noopener noreferrer'>%s</a></li>", esc(safe), esc(title))
	}
	return fmt.Sprintf("<li>%s</li>", esc(title))
}

// tagStyle maps a recommendation tag onto an action pill color.
func tagStyle(tag string) string {
	switch {
	case strings.Contains(tag, "top_pick"):
		return "BUY"
	case strings.Contains(tag, "most_potential"):
		return "WATCH"
	case strings.Contains(tag, "contrarian"):
		return "SELL"
	case strings.Contains(tag, "momentum"):
		return "BUY"
	}
	return "WATCH"
}
