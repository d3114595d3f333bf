// Package providers implements the evidence store: ticker ingestion from the
// Yahoo screener, chart, and RSS endpoints, plus user watchlist files.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"gopkg.in/yaml.v3"

	domerrors "daily-movers/internal/errors"
	"daily-movers/internal/logging"
	"daily-movers/internal/models"
	"daily-movers/internal/store"
)

const (
	usScreenerURL     = "https://query1.finance.yahoo.com/v1/finance/screener/predefined/saved"
	usHTMLFallbackURL = "https://finance.yahoo.com/most-active"
	chartURLTemplate  = "https://query1.finance.yahoo.com/v8/finance/chart/%s"
)

// RegionUniverses are the static symbol lists used for regions without a
// screener endpoint, and for `--source=universe`.
var RegionUniverses = map[string][]string{
	"us":     {"AAPL", "MSFT", "NVDA", "AMZN", "TSLA", "META", "GOOGL", "AMD", "PLTR", "INTC", "SOFI", "NIO"},
	"il":     {"TEVA.TA", "NICE.TA", "ICL.TA", "DSCT.TA", "POLI.TA", "LUMI.TA"},
	"uk":     {"BP.L", "HSBA.L", "VOD.L", "BARC.L", "AZN.L", "SHEL.L"},
	"eu":     {"ASML.AS", "SAN.PA", "BMW.DE", "SIE.DE", "AIR.PA", "OR.PA"},
	"crypto": {"BTC-USD", "ETH-USD", "SOL-USD", "XRP-USD", "DOGE-USD", "BNB-USD"},
}

// MoversProvider ingests ranked ticker lists.
type MoversProvider struct {
	client *store.CachedHTTPClient
	runlog *logging.RunLogger
}

// NewMoversProvider creates a movers provider over the cached HTTP client.
func NewMoversProvider(client *store.CachedHTTPClient, runlog *logging.RunLogger) *MoversProvider {
	return &MoversProvider{client: client, runlog: runlog}
}

// GetMovers returns the ranked ticker list for a region. For the US with
// source auto/most-active it uses the screener (with an HTML fallback); other
// regions rank their static universe by |pct change| then volume.
func (p *MoversProvider) GetMovers(ctx context.Context, region, source string, topN int) ([]models.TickerRow, error) {
	region = strings.ToLower(region)
	source = strings.ToLower(source)
	if source == "" {
		source = "auto"
	}
	switch source {
	case "auto", "most-active", "universe":
	default:
		return nil, domerrors.NewIngestionError(source, "unsupported movers source", domerrors.ErrInvalidSource)
	}

	if region == "us" && (source == "auto" || source == "most-active") {
		return p.getUSMovers(ctx, topN)
	}

	universe, ok := RegionUniverses[region]
	if !ok {
		return nil, domerrors.NewIngestionError(region, "unsupported region for movers mode", domerrors.ErrInvalidRegion)
	}
	if source == "most-active" {
		return nil, domerrors.NewIngestionError(source,
			fmt.Sprintf("most-active source is only supported for region=us (got region=%s)", region), nil)
	}

	rows := p.buildRowsFromSymbols(ctx, universe, fmt.Sprintf("yahoo_chart_%s_universe", region), region)
	sort.SliceStable(rows, func(i, j int) bool {
		ai, aj := rankKey(&rows[i]), rankKey(&rows[j])
		if ai[0] != aj[0] {
			return ai[0] > aj[0]
		}
		return ai[1] > aj[1]
	})
	if len(rows) > topN {
		rows = rows[:topN]
	}
	return rows, nil
}

// rankKey orders universe rows by absolute percent change then volume.
// Missing values sort last.
func rankKey(row *models.TickerRow) [2]float64 {
	pct, volume := -1.0, -1.0
	if row.PctChange != nil {
		pct = abs(*row.PctChange)
	}
	if row.Volume != nil {
		volume = *row.Volume
	}
	return [2]float64{pct, volume}
}

// GetWatchlistRows builds rows for the symbols in a watchlist file.
func (p *MoversProvider) GetWatchlistRows(ctx context.Context, watchlistPath string, topN int) ([]models.TickerRow, error) {
	symbols, err := LoadWatchlistSymbols(watchlistPath)
	if err != nil {
		return nil, err
	}
	rows := p.buildRowsFromSymbols(ctx, symbols, "watchlist_chart", "watchlist")
	if topN > 0 && len(rows) > topN {
		rows = rows[:topN]
	}
	return rows, nil
}

// LoadWatchlistSymbols reads a YAML or JSON watchlist. Accepted shapes: a
// bare list, or an object with a `symbols` key; entries are strings or
// objects with a `symbol` field. Symbols are uppercased and deduplicated.
func LoadWatchlistSymbols(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, domerrors.NewIngestionError(path, "watchlist file does not exist", err)
	}

	var decoded any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &decoded); err != nil {
			return nil, domerrors.NewIngestionError(path, "invalid YAML watchlist", err)
		}
	case ".json":
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, domerrors.NewIngestionError(path, "invalid JSON watchlist", err)
		}
	default:
		return nil, domerrors.NewIngestionError(path, "watchlist must be yaml/yml/json", nil)
	}

	var entries []any
	switch v := decoded.(type) {
	case []any:
		entries = v
	case map[string]any:
		entries, _ = v["symbols"].([]any)
	default:
		return nil, domerrors.NewIngestionError(path, "watchlist content must be list or object with symbols", nil)
	}

	var normalized []string
	seen := make(map[string]struct{})
	for _, entry := range entries {
		var symbol string
		switch e := entry.(type) {
		case string:
			symbol = e
		case map[string]any:
			symbol = fmt.Sprint(e["symbol"])
			if _, ok := e["symbol"]; !ok {
				continue
			}
		default:
			continue
		}
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			continue
		}
		if _, dup := seen[symbol]; dup {
			continue
		}
		seen[symbol] = struct{}{}
		normalized = append(normalized, symbol)
	}

	if len(normalized) == 0 {
		return nil, domerrors.NewIngestionError(path, "watchlist has no valid symbols", domerrors.ErrWatchlistEmpty)
	}
	return normalized, nil
}

// screenerResponse is the subset of the predefined-screener payload we read.
type screenerResponse struct {
	Finance struct {
		Result []struct {
			Quotes []json.RawMessage `json:"quotes"`
		} `json:"result"`
	} `json:"finance"`
}

func (p *MoversProvider) getUSMovers(ctx context.Context, topN int) ([]models.TickerRow, error) {
	params := url.Values{
		"formatted": {"true"},
		"scrIds":    {"most_actives"},
		"count":     {strconv.Itoa(topN)},
		"start":     {"0"},
	}

	var payload screenerResponse
	err := p.client.GetJSON(ctx, usScreenerURL, params, "ingestion", &payload)
	if err == nil {
		var quotes []json.RawMessage
		if len(payload.Finance.Result) > 0 {
			quotes = payload.Finance.Result[0].Quotes
		}
		if len(quotes) > topN {
			quotes = quotes[:topN]
		}
		rows := make([]models.TickerRow, 0, len(quotes))
		for _, quote := range quotes {
			row, parseErr := parseScreenerQuote(quote)
			if parseErr != nil {
				err = parseErr
				break
			}
			rows = append(rows, row)
		}
		if err == nil && len(rows) == 0 {
			err = domerrors.NewIngestionError(usScreenerURL, "screener returned no quotes", nil)
		}
		if err == nil {
			return rows, nil
		}
	}

	p.runlog.Warning("ingestion_primary_failed", map[string]any{
		"stage":         "ingestion",
		"error_type":    fmt.Sprintf("%T", err),
		"error_message": err.Error(),
		"url":           usScreenerURL,
	})
	return p.getUSMoversHTMLFallback(ctx, topN)
}

func parseScreenerQuote(raw json.RawMessage) (models.TickerRow, error) {
	var quote map[string]any
	if err := json.Unmarshal(raw, &quote); err != nil {
		return models.TickerRow{}, err
	}

	symbol := strings.ToUpper(strings.TrimSpace(fmt.Sprint(quote["symbol"])))
	if symbol == "" || quote["symbol"] == nil {
		return models.TickerRow{}, domerrors.NewIngestionError(usScreenerURL, "missing symbol in screener quote", nil)
	}

	name := symbol
	if s, ok := quote["shortName"].(string); ok && s != "" {
		name = s
	} else if s, ok := quote["longName"].(string); ok && s != "" {
		name = s
	}

	row := models.TickerRow{
		Ticker:          symbol,
		Name:            name,
		Price:           asFloat(quote["regularMarketPrice"]),
		AbsChange:       asFloat(quote["regularMarketChange"]),
		PctChange:       asFloat(quote["regularMarketChangePercent"]),
		Volume:          asFloat(quote["regularMarketVolume"]),
		Market:          "us",
		IngestionSource: "yahoo_screener_json",
	}
	if s, ok := quote["currency"].(string); ok {
		row.Currency = s
	}
	if s, ok := quote["exchange"].(string); ok {
		row.Exchange = s
	}
	return row, nil
}

// getUSMoversHTMLFallback scrapes the most-active table when the screener
// API is unavailable. Rows from this path are flagged as fallback-sourced,
// which later forces a human review.
func (p *MoversProvider) getUSMoversHTMLFallback(ctx context.Context, topN int) ([]models.TickerRow, error) {
	html, err := p.client.GetText(ctx, usHTMLFallbackURL, nil, "ingestion")
	if err != nil {
		return nil, domerrors.NewIngestionError(usHTMLFallbackURL, "US fallback ingestion failed", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, domerrors.NewIngestionError(usHTMLFallbackURL, "US fallback ingestion failed", err)
	}

	var rows []models.TickerRow
	doc.Find("table tbody tr").EachWithBreak(func(i int, tr *goquery.Selection) bool {
		if len(rows) >= topN {
			return false
		}
		cols := tr.Find("td")
		if cols.Length() < 7 {
			return true
		}
		text := func(idx int) string {
			return strings.TrimSpace(cols.Eq(idx).Text())
		}

		symbol := strings.ToUpper(text(0))
		if symbol == "" {
			return true
		}
		rows = append(rows, models.TickerRow{
			Ticker:                symbol,
			Name:                  text(1),
			Price:                 ParseHumanNumber(text(2)),
			AbsChange:             ParseHumanNumber(text(3)),
			PctChange:             ParseHumanNumber(strings.ReplaceAll(text(4), "%", "")),
			Volume:                ParseHumanNumber(text(5)),
			Market:                "us",
			IngestionSource:       "yahoo_most_active_html",
			IngestionFallbackUsed: true,
		})
		return true
	})

	if len(rows) == 0 {
		return nil, domerrors.NewIngestionError(usHTMLFallbackURL, "html fallback produced no rows", nil)
	}
	return rows, nil
}

func (p *MoversProvider) buildRowsFromSymbols(ctx context.Context, symbols []string, source, market string) []models.TickerRow {
	rows := make([]models.TickerRow, 0, len(symbols))
	for _, symbol := range symbols {
		rows = append(rows, p.rowFromChart(ctx, symbol, source, market))
	}
	return rows
}

// chartResponse is the subset of the v8 chart payload we read.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
				ChartPreviousClose *float64 `json:"chartPreviousClose"`
				ShortName          string   `json:"shortName"`
				LongName           string   `json:"longName"`
				Currency           string   `json:"currency"`
				ExchangeName       string   `json:"exchangeName"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

// rowFromChart builds one row from the daily chart endpoint. A failed symbol
// yields a row carrying the error instead of failing the whole list.
func (p *MoversProvider) rowFromChart(ctx context.Context, symbol, source, market string) models.TickerRow {
	chartURL := fmt.Sprintf(chartURLTemplate, symbol)
	params := url.Values{"range": {"5d"}, "interval": {"1d"}}

	row, err := p.fetchChartRow(ctx, chartURL, params, symbol, source, market)
	if err != nil {
		return models.TickerRow{
			Ticker:          symbol,
			Name:            symbol,
			Market:          market,
			IngestionSource: source,
			Errors: []models.ErrorInfo{{
				Stage:        "ingestion",
				ErrorType:    fmt.Sprintf("%T", err),
				ErrorMessage: err.Error(),
				URL:          chartURL,
			}},
		}
	}
	return row
}

func (p *MoversProvider) fetchChartRow(ctx context.Context, chartURL string, params url.Values, symbol, source, market string) (models.TickerRow, error) {
	var payload chartResponse
	if err := p.client.GetJSON(ctx, chartURL, params, "ingestion", &payload); err != nil {
		return models.TickerRow{}, err
	}
	if len(payload.Chart.Result) == 0 {
		return models.TickerRow{}, domerrors.NewIngestionError(chartURL, "missing chart result for "+symbol, nil)
	}

	result := payload.Chart.Result[0]
	var closes, volumes []float64
	if len(result.Indicators.Quote) > 0 {
		for _, v := range result.Indicators.Quote[0].Close {
			if v != nil {
				closes = append(closes, *v)
			}
		}
		for _, v := range result.Indicators.Quote[0].Volume {
			if v != nil {
				volumes = append(volumes, *v)
			}
		}
	}

	price := result.Meta.RegularMarketPrice
	if price == nil && len(closes) > 0 {
		price = models.Float(closes[len(closes)-1])
	}
	prev := result.Meta.ChartPreviousClose
	if prev == nil && len(closes) >= 2 {
		prev = models.Float(closes[len(closes)-2])
	}

	var absChange, pctChange *float64
	if price != nil && prev != nil {
		absChange = models.Float(*price - *prev)
		if *prev != 0 {
			pctChange = models.Float(*absChange / *prev * 100.0)
		}
	}
	var volume *float64
	if len(volumes) > 0 {
		volume = models.Float(volumes[len(volumes)-1])
	}

	name := symbol
	if result.Meta.ShortName != "" {
		name = result.Meta.ShortName
	} else if result.Meta.LongName != "" {
		name = result.Meta.LongName
	}

	return models.TickerRow{
		Ticker:          symbol,
		Name:            name,
		Price:           price,
		AbsChange:       absChange,
		PctChange:       pctChange,
		Volume:          volume,
		Currency:        result.Meta.Currency,
		Exchange:        result.Meta.ExchangeName,
		Market:          market,
		IngestionSource: source,
	}, nil
}

var humanNumberPattern = regexp.MustCompile(`(?i)^([+-]?\d+(?:\.\d+)?)([KMBT]?)$`)

// ParseHumanNumber parses display numbers like "1,234.56", "3.2M", or "1.1B".
// Returns nil for empty or dash placeholders.
func ParseHumanNumber(text string) *float64 {
	t := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	if t == "" || t == "-" || t == "--" {
		return nil
	}

	match := humanNumberPattern.FindStringSubmatch(t)
	if match == nil {
		parsed, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil
		}
		return models.Float(parsed)
	}

	number, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return nil
	}
	switch strings.ToUpper(match[2]) {
	case "K":
		number *= 1e3
	case "M":
		number *= 1e6
	case "B":
		number *= 1e9
	case "T":
		number *= 1e12
	}
	return models.Float(number)
}

// asFloat reads Yahoo's formatted number values: plain numbers, strings, or
// {raw: n, fmt: "..."} objects.
func asFloat(value any) *float64 {
	switch v := value.(type) {
	case float64:
		return models.Float(v)
	case map[string]any:
		if raw, ok := v["raw"]; ok {
			return asFloat(raw)
		}
		return nil
	case string:
		return ParseHumanNumber(v)
	default:
		return nil
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
