// Package store provides the local persistence used by a run: the
// read-through HTTP cache, the run directory with its JSON/JSONL artifacts,
// and the SQLite run archive.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"daily-movers/internal/config"
	domerrors "daily-movers/internal/errors"
	"daily-movers/internal/logging"
	"daily-movers/pkg/utils"
)

// retryableStatuses are HTTP codes worth another attempt.
var retryableStatuses = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// CachedHTTPClient is a best-effort GET client with a file cache, retries,
// and polite per-host concurrency.
//
// Yahoo endpoints are flaky and rate-limited, and several pipeline stages
// request overlapping URLs, so hits skip the network entirely. Cache writes
// are non-fatal: a run still succeeds when the cache directory is broken.
type CachedHTTPClient struct {
	cacheDir   string
	defaultTTL time.Duration
	userAgent  string
	retry      utils.RetryConfig
	perHost    int

	httpClient *http.Client
	runlog     *logging.RunLogger

	mu         sync.Mutex
	semaphores map[string]chan struct{}
}

// NewCachedHTTPClient builds the client from the fetch configuration.
func NewCachedHTTPClient(cfg config.HTTPConfig, runlog *logging.RunLogger) *CachedHTTPClient {
	_ = os.MkdirAll(cfg.CacheDir, 0755)
	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxRetries + 1
	return &CachedHTTPClient{
		cacheDir:   cfg.CacheDir,
		defaultTTL: cfg.CacheTTL,
		userAgent:  cfg.UserAgent,
		retry:      retry,
		perHost:    cfg.MaxRequestsPerHost,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		runlog:     runlog,
		semaphores: make(map[string]chan struct{}),
	}
}

// GetJSON fetches the URL and decodes the body into out.
func (c *CachedHTTPClient) GetJSON(ctx context.Context, rawURL string, params url.Values, stage string, out any) error {
	body, err := c.GetText(ctx, rawURL, params, stage)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return domerrors.NewFetchError(rawURL, 0, "JSON parse failed", err)
	}
	return nil
}

// GetText fetches the URL, serving from cache when a fresh entry exists.
func (c *CachedHTTPClient) GetText(ctx context.Context, rawURL string, params url.Values, stage string) (string, error) {
	fullURL := rawURL
	if len(params) > 0 {
		fullURL = rawURL + "?" + params.Encode()
	}
	key := cacheKey(http.MethodGet, rawURL, params)

	if body, age, ok := c.readCache(key); ok {
		c.runlog.Info("http_cache_hit", map[string]any{
			"stage": stage, "url": fullURL, "status": "ok", "retries": 0,
		})
		return body, nil
	} else if age > 0 {
		c.runlog.Info("http_cache_expired", map[string]any{
			"stage": stage, "url": fullURL, "status": "ok",
			"age_seconds": int(age.Seconds()), "ttl_seconds": int(c.defaultTTL.Seconds()),
		})
	}

	attempts := c.retry.MaxAttempts
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		body, retryAfter, err := c.fetchOnce(ctx, fullURL, stage, attempt)
		if err == nil {
			c.writeCache(key, body)
			return body, nil
		}
		lastErr = err

		event := "http_fetch_retry"
		if attempt == attempts {
			event = "http_fetch_failed"
		}
		c.runlog.Warning(event, map[string]any{
			"stage":         stage,
			"url":           fullURL,
			"error_type":    fmt.Sprintf("%T", err),
			"error_message": err.Error(),
			"retries":       attempt - 1,
		})

		var fetchErr *domerrors.FetchError
		if domerrors.As(err, &fetchErr) && fetchErr.StatusCode > 0 && !retryableStatuses[fetchErr.StatusCode] {
			return "", err
		}
		if attempt == attempts {
			break
		}

		delay := c.retry.Delay(attempt)
		if retryAfter > delay {
			delay = retryAfter
		}
		if err := utils.Sleep(ctx, delay); err != nil {
			return "", err
		}
	}

	var fetchErr *domerrors.FetchError
	if domerrors.As(lastErr, &fetchErr) {
		return "", lastErr
	}
	return "", domerrors.NewFetchError(fullURL, 0, "request failed", lastErr)
}

// fetchOnce performs a single GET under the host semaphore. Returns the body,
// the server-requested retry delay if any, and the error.
func (c *CachedHTTPClient) fetchOnce(ctx context.Context, fullURL, stage string, attempt int) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	release := c.acquireHost(fullURL)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	release()
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		io.Copy(io.Discard, resp.Body)
		return "", retryAfter, domerrors.NewFetchError(fullURL, resp.StatusCode,
			fmt.Sprintf("HTTP %d from %s", resp.StatusCode, fullURL), nil)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}

	c.runlog.Info("http_fetch", map[string]any{
		"stage":      stage,
		"url":        fullURL,
		"latency_ms": time.Since(start).Milliseconds(),
		"retries":    attempt - 1,
	})
	return string(raw), 0, nil
}

func (c *CachedHTTPClient) acquireHost(rawURL string) func() {
	host := "default"
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Host != "" {
		host = parsed.Host
	}

	c.mu.Lock()
	sem, ok := c.semaphores[host]
	if !ok {
		sem = make(chan struct{}, c.perHost)
		c.semaphores[host] = sem
	}
	c.mu.Unlock()

	sem <- struct{}{}
	return func() { <-sem }
}

type cacheEntry struct {
	CreatedAtEpoch float64 `json:"created_at_epoch"`
	Body           string  `json:"body"`
}

// readCache returns the cached body when fresh. The returned age is non-zero
// when an entry existed but was expired.
func (c *CachedHTTPClient) readCache(key string) (string, time.Duration, bool) {
	raw, err := os.ReadFile(c.cachePath(key))
	if err != nil {
		return "", 0, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return "", 0, false
	}
	age := time.Since(time.Unix(0, int64(entry.CreatedAtEpoch*float64(time.Second))))
	if age > c.defaultTTL {
		return "", age, false
	}
	return entry.Body, 0, true
}

// writeCache stores the body via tmp file + rename so readers never see a
// partial entry. Failures are swallowed.
func (c *CachedHTTPClient) writeCache(key, body string) {
	entry := cacheEntry{
		CreatedAtEpoch: float64(time.Now().UnixNano()) / float64(time.Second),
		Body:           body,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	path := c.cachePath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return
	}
	_ = os.Rename(tmp, path)
}

func (c *CachedHTTPClient) cachePath(key string) string {
	return filepath.Join(c.cacheDir, key+".json")
}

// cacheKey hashes method, url, and sorted params so equivalent requests share
// an entry regardless of parameter ordering.
func cacheKey(method, rawURL string, params url.Values) string {
	pairs := make([][2]string, 0, len(params))
	for name, values := range params {
		for _, value := range values {
			pairs = append(pairs, [2]string{name, value})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})

	var sb strings.Builder
	sb.WriteString(method)
	sb.WriteByte('\n')
	sb.WriteString(rawURL)
	for _, pair := range pairs {
		sb.WriteByte('\n')
		sb.WriteString(pair[0])
		sb.WriteByte('=')
		sb.WriteString(pair[1])
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
