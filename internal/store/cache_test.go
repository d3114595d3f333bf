package store

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"daily-movers/internal/config"
)

func testClientConfig(t *testing.T) config.HTTPConfig {
	t.Helper()
	return config.HTTPConfig{
		CacheDir:           t.TempDir(),
		CacheTTL:           time.Hour,
		RequestTimeout:     5 * time.Second,
		MaxRetries:         1,
		MaxRequestsPerHost: 2,
		UserAgent:          "daily-movers-test/1.0",
	}
}

func TestCacheKeyIgnoresParamOrder(t *testing.T) {
	a := cacheKey(http.MethodGet, "https://example.com/api", url.Values{
		"range": {"5d"}, "interval": {"1d"},
	})
	b := cacheKey(http.MethodGet, "https://example.com/api", url.Values{
		"interval": {"1d"}, "range": {"5d"},
	})
	if a != b {
		t.Errorf("keys differ for equivalent params: %s vs %s", a, b)
	}
	c := cacheKey(http.MethodGet, "https://example.com/api", url.Values{
		"range": {"1mo"}, "interval": {"1d"},
	})
	if a == c {
		t.Error("keys collide for different params")
	}
	if len(a) != 64 {
		t.Errorf("key length = %d, want sha256 hex", len(a))
	}
}

func TestGetTextServesFromCache(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	client := NewCachedHTTPClient(testClientConfig(t), nil)
	ctx := context.Background()

	first, err := client.GetText(ctx, server.URL, nil, "test")
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	second, err := client.GetText(ctx, server.URL, nil, "test")
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if first != second {
		t.Error("cached body differs from fetched body")
	}
	if got := atomic.LoadInt64(&hits); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestGetTextRetriesOnServerError(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer server.Close()

	client := NewCachedHTTPClient(testClientConfig(t), nil)
	body, err := client.GetText(context.Background(), server.URL, nil, "test")
	if err != nil {
		t.Fatalf("GetText: %v", err)
	}
	if body != "recovered" {
		t.Errorf("body = %q", body)
	}
	if got := atomic.LoadInt64(&hits); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}
}

func TestGetTextDoesNotRetryClientErrors(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewCachedHTTPClient(testClientConfig(t), nil)
	if _, err := client.GetText(context.Background(), server.URL, nil, "test"); err == nil {
		t.Fatal("expected error for 404")
	}
	if got := atomic.LoadInt64(&hits); got != 1 {
		t.Errorf("server hits = %d, want 1 (no retry on 404)", got)
	}
}

func TestGetJSONDecodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"count": 3}`))
	}))
	defer server.Close()

	client := NewCachedHTTPClient(testClientConfig(t), nil)
	var out struct {
		Count int `json:"count"`
	}
	if err := client.GetJSON(context.Background(), server.URL, nil, "test", &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.Count != 3 {
		t.Errorf("count = %d", out.Count)
	}
}

func TestClientBackoffBounds(t *testing.T) {
	client := NewCachedHTTPClient(testClientConfig(t), nil)
	if client.retry.MaxAttempts != 2 {
		t.Errorf("attempts = %d, want MaxRetries+1", client.retry.MaxAttempts)
	}
	for attempt := 1; attempt <= 6; attempt++ {
		delay := client.retry.Delay(attempt)
		if delay < client.retry.InitialDelay || delay > client.retry.MaxDelay {
			t.Errorf("attempt %d delay %v out of bounds", attempt, delay)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("2"); got != 2*time.Second {
		t.Errorf("parseRetryAfter(2) = %v", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("empty = %v", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Errorf("garbage = %v", got)
	}
}
