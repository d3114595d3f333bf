package providers

import (
	"testing"
)

func TestNormalizePubDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Wed, 26 Aug 2026 14:30:00 +0000", "2026-08-26T14:30:00Z"},
		{"Wed, 26 Aug 2026 14:30:00 GMT", "2026-08-26T14:30:00Z"},
		{"26 Aug 26 14:30 +0000", "2026-08-26T14:30:00Z"},
		{"not a date", "not a date"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := normalizePubDate(tc.in); got != tc.want {
			t.Errorf("normalizePubDate(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestProfilePatternsMatchEmbeddedJSON(t *testing.T) {
	page := `<script>{"quoteSummary":{"assetProfile":"{\"sector\":\"Technology\",\"industry\":\"Consumer Electronics\"}"}}</script>` +
		`<span>Earnings Date (est.)</span> <span class="value">Oct 30, 2026</span>`

	if m := sectorPattern.FindStringSubmatch(page); m == nil || m[1] != "Technology" {
		t.Errorf("sector match = %v", m)
	}
	if m := industryPattern.FindStringSubmatch(page); m == nil || m[1] != "Consumer Electronics" {
		t.Errorf("industry match = %v", m)
	}
	if m := earningsPattern.FindStringSubmatch(page); m == nil || m[1] != "Oct 30, 2026" {
		t.Errorf("earnings match = %v", m)
	}
}

func TestProfilePatternsIgnorePlainJSON(t *testing.T) {
	page := `{"sector":"Technology"}`
	if m := sectorPattern.FindStringSubmatch(page); m != nil {
		t.Errorf("unescaped JSON should not match, got %v", m)
	}
}
