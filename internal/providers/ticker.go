package providers

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	domerrors "daily-movers/internal/errors"
	"daily-movers/internal/logging"
	"daily-movers/internal/models"
	"daily-movers/internal/store"
)

const (
	quoteHTMLTemplate = "https://finance.yahoo.com/quote/%s"
	rssTemplate       = "https://feeds.finance.yahoo.com/rss/2.0/headline?s=%s&region=US&lang=en-US"
)

// TickerEnricher gathers per-ticker evidence: a recent price series, top
// headlines, and optional profile fields scraped from the quote page.
type TickerEnricher struct {
	client *store.CachedHTTPClient
	runlog *logging.RunLogger
}

// NewTickerEnricher creates an enricher over the cached HTTP client.
func NewTickerEnricher(client *store.CachedHTTPClient, runlog *logging.RunLogger) *TickerEnricher {
	return &TickerEnricher{client: client, runlog: runlog}
}

// Enrich fetches the evidence for one ticker. Price-series and headline
// failures are embedded as row errors; profile scrape failures are logged
// only, since Yahoo routinely blocks quote pages and the fields are optional.
// The returned Enrichment is always usable.
func (e *TickerEnricher) Enrich(ctx context.Context, row *models.TickerRow) models.Enrichment {
	var enrichment models.Enrichment

	series, err := e.fetchPriceSeries(ctx, row.Ticker)
	if err != nil {
		enrichment.Errors = append(enrichment.Errors, enrichmentErrorInfo(err))
	} else {
		enrichment.PriceSeries = series
		if len(series) > 0 {
			enrichment.OpenPrice = models.Float(series[0])
			enrichment.ClosePrice = models.Float(series[len(series)-1])
		}
	}

	headlines, err := e.fetchHeadlines(ctx, row.Ticker, 3)
	if err != nil {
		enrichment.Errors = append(enrichment.Errors, enrichmentErrorInfo(err))
	} else {
		enrichment.Headlines = headlines
	}

	sector, industry, earningsDate, err := e.fetchQuoteProfileFields(ctx, row.Ticker)
	if err != nil {
		e.runlog.Warning("optional_profile_enrichment_failed", map[string]any{
			"stage":         "enrichment",
			"symbol":        row.Ticker,
			"error_type":    fmt.Sprintf("%T", err),
			"error_message": err.Error(),
		})
	} else {
		enrichment.Sector = sector
		enrichment.Industry = industry
		enrichment.EarningsDate = earningsDate
	}

	return enrichment
}

func enrichmentErrorInfo(err error) models.ErrorInfo {
	info := models.ErrorInfo{
		Stage:        "enrichment",
		ErrorType:    fmt.Sprintf("%T", err),
		ErrorMessage: err.Error(),
	}
	var enrichErr *domerrors.EnrichmentError
	if domerrors.As(err, &enrichErr) {
		info.URL = enrichErr.URL
	}
	return info
}

// fetchPriceSeries returns the last 15 daily closes from a one-month chart.
func (e *TickerEnricher) fetchPriceSeries(ctx context.Context, symbol string) ([]float64, error) {
	chartURL := fmt.Sprintf(chartURLTemplate, symbol)
	params := url.Values{"range": {"1mo"}, "interval": {"1d"}}

	var payload chartResponse
	if err := e.client.GetJSON(ctx, chartURL, params, "enrichment", &payload); err != nil {
		return nil, domerrors.NewEnrichmentError(symbol, "price_series", chartURL, "chart fetch failed", err)
	}
	if len(payload.Chart.Result) == 0 {
		return nil, domerrors.NewEnrichmentError(symbol, "price_series", chartURL, "missing chart result for "+symbol, nil)
	}

	var closes []float64
	if quotes := payload.Chart.Result[0].Indicators.Quote; len(quotes) > 0 {
		for _, v := range quotes[0].Close {
			if v != nil {
				closes = append(closes, *v)
			}
		}
	}
	if len(closes) > 15 {
		closes = closes[len(closes)-15:]
	}
	return closes, nil
}

// rssFeed is the subset of the headline RSS feed we read.
type rssFeed struct {
	Channel struct {
		Items []struct {
			Title   string `xml:"title"`
			Link    string `xml:"link"`
			PubDate string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
}

// fetchHeadlines returns the top headlines from the symbol's RSS feed.
// Items without both a title and a link are skipped.
func (e *TickerEnricher) fetchHeadlines(ctx context.Context, symbol string, topN int) ([]models.Headline, error) {
	feedURL := fmt.Sprintf(rssTemplate, url.QueryEscape(symbol))

	body, err := e.client.GetText(ctx, feedURL, nil, "enrichment")
	if err != nil {
		return nil, domerrors.NewEnrichmentError(symbol, "headlines", feedURL, "RSS fetch failed", err)
	}

	var feed rssFeed
	if err := xml.Unmarshal([]byte(body), &feed); err != nil {
		return nil, domerrors.NewEnrichmentError(symbol, "headlines", feedURL, "RSS parse failed", err)
	}

	items := feed.Channel.Items
	if len(items) > topN {
		items = items[:topN]
	}
	headlines := make([]models.Headline, 0, len(items))
	for _, item := range items {
		title := strings.TrimSpace(item.Title)
		link := strings.TrimSpace(item.Link)
		if title == "" || link == "" {
			continue
		}
		headlines = append(headlines, models.Headline{
			Title:       title,
			URL:         link,
			PublishedAt: normalizePubDate(strings.TrimSpace(item.PubDate)),
		})
	}
	return headlines, nil
}

// normalizePubDate converts RFC 1123 feed timestamps to RFC 3339, passing
// unparseable values through untouched.
func normalizePubDate(pub string) string {
	if pub == "" {
		return ""
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822} {
		if t, err := time.Parse(layout, pub); err == nil {
			return t.Format(time.RFC3339)
		}
	}
	return pub
}

var (
	sectorPattern   = regexp.MustCompile(`\\"sector\\":\\"([^\\"]+)\\"`)
	industryPattern = regexp.MustCompile(`\\"industry\\":\\"([^\\"]+)\\"`)
	earningsPattern = regexp.MustCompile(`(?i)Earnings Date \(est\.\)\s*</span>\s*<span[^>]*>([^<]+)</span>`)
)

// fetchQuoteProfileFields scrapes sector, industry, and the estimated
// earnings date out of the quote page's embedded JSON and markup.
func (e *TickerEnricher) fetchQuoteProfileFields(ctx context.Context, symbol string) (string, string, string, error) {
	quoteURL := fmt.Sprintf(quoteHTMLTemplate, symbol)

	html, err := e.client.GetText(ctx, quoteURL, nil, "enrichment")
	if err != nil {
		return "", "", "", domerrors.NewEnrichmentError(symbol, "profile", quoteURL, "quote page fetch failed", err)
	}

	var sector, industry, earningsDate string
	if m := sectorPattern.FindStringSubmatch(html); m != nil {
		sector = strings.TrimSpace(m[1])
	}
	if m := industryPattern.FindStringSubmatch(html); m != nil {
		industry = strings.TrimSpace(m[1])
	}
	if m := earningsPattern.FindStringSubmatch(html); m != nil {
		earningsDate = strings.TrimSpace(m[1])
	}
	return sector, industry, earningsDate, nil
}
