package render

import (
	"strings"
	"testing"

	"daily-movers/internal/models"
)

func sampleRow(ticker string, pct, volume float64) models.ReportRow {
	return models.ReportRow{
		Ticker: models.TickerRow{
			Ticker:    ticker,
			Name:      ticker + " Inc",
			Price:     models.Float(100),
			PctChange: models.Float(pct),
			Volume:    models.Float(volume),
		},
		Analysis: models.Analysis{
			WhyItMoved: "Shares moved on results. Coverage supports the move.",
			Action:     models.Watch,
			Confidence: 0.6,
			ModelUsed:  "heuristics_v1",
		},
	}
}

func TestBuildDigestHTMLContainsRows(t *testing.T) {
	rows := []models.ReportRow{
		sampleRow("AAPL", 4.2, 2_000_000),
		sampleRow("TSLA", -6.3, 8_000_000),
	}
	meta := DigestMeta{RunID: "abc123def456", RequestedDate: "2026-08-27", Mode: "movers", Region: "us", Top: 20}

	html, err := BuildDigestHTML(rows, meta)
	if err != nil {
		t.Fatalf("BuildDigestHTML: %v", err)
	}
	for _, want := range []string{"AAPL", "TSLA", "abc123def456", "2026-08-27", "Daily Movers Digest"} {
		if !strings.Contains(html, want) {
			t.Errorf("digest missing %q", want)
		}
	}
	if !strings.Contains(html, "+4.20%") || !strings.Contains(html, "-6.30%") {
		t.Error("percent changes not rendered")
	}
}

func TestBuildDigestHTMLEscapesHostileInput(t *testing.T) {
	row := sampleRow("EVIL", 1, 100)
	row.Ticker.Name = `<script>alert("x")</script>`
	row.Analysis.WhyItMoved = `Headline says <b>buy</b>. Second sentence.`

	html, err := BuildDigestHTML([]models.ReportRow{row}, DigestMeta{})
	if err != nil {
		t.Fatalf("BuildDigestHTML: %v", err)
	}
	if strings.Contains(html, `<script>alert`) {
		t.Error("script tag not escaped")
	}
	if !strings.Contains(html, "&lt;script&gt;") {
		t.Error("escaped name missing from output")
	}
}

func TestBuildDigestHTMLEmptyRun(t *testing.T) {
	html, err := BuildDigestHTML(nil, DigestMeta{})
	if err != nil {
		t.Fatalf("BuildDigestHTML: %v", err)
	}
	if !strings.Contains(html, "No gainers in this slice.") {
		t.Error("empty-state card missing")
	}
	if !strings.Contains(html, "n/a") {
		t.Error("missing meta should render as n/a")
	}
}

func TestDetectMarket(t *testing.T) {
	cases := []struct {
		ticker string
		hint   string
		want   string
	}{
		{"TEVA.TA", "", "tase"},
		{"BP.L", "", "uk"},
		{"BMW.DE", "", "eu"},
		{"AIR.PA", "", "eu"},
		{"BTC-USD", "", "crypto"},
		{"ETH", "", "crypto"},
		{"AAPL", "", "us"},
		{"UNKNOWN", "il", "tase"},
		{"UNKNOWN", "crypto", "crypto"},
		{"UNKNOWN", "", "us"},
	}
	for _, tc := range cases {
		if got := detectMarket(tc.ticker, tc.hint); got != tc.want {
			t.Errorf("detectMarket(%q, %q) = %s, want %s", tc.ticker, tc.hint, got, tc.want)
		}
	}
}

func TestSparklineSVG(t *testing.T) {
	if got := sparklineSVG([]float64{100}); !strings.Contains(got, "n/a") {
		t.Errorf("single point should render n/a, got %s", got)
	}
	up := sparklineSVG([]float64{100, 102, 105})
	if !strings.Contains(up, "<svg") || !strings.Contains(up, "#0f8a5f") {
		t.Errorf("rising series = %s", up)
	}
	down := sparklineSVG([]float64{105, 102, 100})
	if !strings.Contains(down, "#b6263e") {
		t.Errorf("falling series = %s", down)
	}
	flat := sparklineSVG([]float64{100, 100})
	if !strings.Contains(flat, "<polyline") {
		t.Errorf("flat series = %s", flat)
	}
}

func TestCommaFloat(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{51_234_567, "51,234,567"},
		{-8_400, "-8,400"},
	}
	for _, tc := range cases {
		if got := commaFloat(tc.in); got != tc.want {
			t.Errorf("commaFloat(%v) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestSafeURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://example.com/a", "https://example.com/a"},
		{"http://example.com", "http://example.com"},
		{"javascript:alert(1)", ""},
		{"ftp://example.com", ""},
		{"  ", ""},
	}
	for _, tc := range cases {
		if got := safeURL(tc.in); got != tc.want {
			t.Errorf("safeURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTagStyle(t *testing.T) {
	cases := map[string]string{
		"top_pick_candidate":          "BUY",
		"most_potential_candidate":    "WATCH",
		"contrarian_bounce_candidate": "SELL",
		"momentum_signal":             "BUY",
		"standard":                    "WATCH",
	}
	for tag, want := range cases {
		if got := tagStyle(tag); got != want {
			t.Errorf("tagStyle(%q) = %s, want %s", tag, got, want)
		}
	}
}
