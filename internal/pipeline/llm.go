package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"daily-movers/internal/config"
	domerrors "daily-movers/internal/errors"
	"daily-movers/internal/logging"
	"daily-movers/internal/models"
	"daily-movers/pkg/utils"
)

const synthesisSystemPrompt = "You are a financial synthesis model. Use only provided evidence and numeric signals. " +
	"Return strict JSON only. Never include chain-of-thought."

// LLMClient wraps the OpenAI chat completion API.
type LLMClient struct {
	client *openai.Client
	model  string
}

// NewLLMClient creates a client from the OpenAI configuration.
func NewLLMClient(cfg config.OpenAIConfig) *LLMClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &LLMClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
}

// Model returns the configured model name.
func (c *LLMClient) Model() string {
	return c.model
}

// CompleteWithSystem sends a system+user prompt pair and returns the text of
// the first choice.
func (c *LLMClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}
	return resp.Choices[0].Message.Content, nil
}

// OpenAIAnalyzer is the raw LLM analysis tier: one direct synthesis call with
// a single retry, no intermediate state machine. Used when the agent graph
// fails and OpenAI is configured.
type OpenAIAnalyzer struct {
	client  *LLMClient
	model   string
	timeout time.Duration
	enabled bool
	retry   utils.RetryConfig
	runlog  *logging.RunLogger
}

// NewOpenAIAnalyzer creates the raw analyzer. When no API key is configured
// the analyzer stays disabled and Synthesize fails fast.
func NewOpenAIAnalyzer(cfg *config.Config, runlog *logging.RunLogger) *OpenAIAnalyzer {
	a := &OpenAIAnalyzer{
		model:   cfg.OpenAI.Model,
		timeout: cfg.OpenAI.Timeout,
		enabled: cfg.OpenAIEnabled(),
		retry: utils.RetryConfig{
			MaxAttempts:   2,
			InitialDelay:  time.Second,
			MaxDelay:      2 * time.Second,
			BackoffFactor: 2.0,
		},
		runlog: runlog,
	}
	if a.enabled {
		a.client = NewLLMClient(cfg.OpenAI)
	}
	return a
}

// Enabled reports whether the analyzer can make API calls.
func (a *OpenAIAnalyzer) Enabled() bool {
	return a.enabled
}

// Synthesize asks the model for a complete analysis of one ticker. The raw
// response is normalized through the shared coercion layer, so a partially
// well-formed response still yields a valid Analysis.
func (a *OpenAIAnalyzer) Synthesize(ctx context.Context, row *models.TickerRow, enrichment *models.Enrichment) (models.Analysis, error) {
	if !a.enabled {
		return models.Analysis{}, domerrors.NewAnalysisError(row.Ticker, "openai", "OPENAI_API_KEY is not configured", nil)
	}

	userPrompt, err := buildSynthesisPrompt(row, enrichment)
	if err != nil {
		return models.Analysis{}, domerrors.NewAnalysisError(row.Ticker, "openai", "building prompt", err)
	}

	var lastMessage string
	attempt := 0
	analysis, err := utils.RetryWithResult(ctx, a.retry, func() (models.Analysis, error) {
		attempt++
		analysis, err := a.attempt(ctx, row, enrichment, userPrompt)
		if err != nil {
			lastMessage = safeOpenAIError(err)
			event := "openai_synthesis_retry"
			if attempt == a.retry.MaxAttempts {
				event = "openai_synthesis_failed"
			}
			a.runlog.Warning(event, map[string]any{
				"stage":         "analysis",
				"symbol":        row.Ticker,
				"error_type":    fmt.Sprintf("%T", err),
				"error_message": lastMessage,
				"retries":       attempt - 1,
			})
		}
		return analysis, err
	})
	if err == nil {
		a.runlog.Info("openai_synthesis_success", map[string]any{
			"stage":   "analysis",
			"symbol":  row.Ticker,
			"retries": attempt - 1,
		})
		return analysis, nil
	}

	if lastMessage == "" {
		lastMessage = "unknown synthesis failure"
	}
	return models.Analysis{}, domerrors.NewAnalysisError(row.Ticker, "openai", lastMessage, nil)
}

func (a *OpenAIAnalyzer) attempt(ctx context.Context, row *models.TickerRow, enrichment *models.Enrichment, userPrompt string) (models.Analysis, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	text, err := a.client.CompleteWithSystem(callCtx, synthesisSystemPrompt, userPrompt)
	if err != nil {
		return models.Analysis{}, err
	}

	obj, err := ExtractJSONObject(text)
	if err != nil {
		return models.Analysis{}, err
	}

	analysis := NormalizeAnalysis(obj, row, enrichment)
	analysis.ModelUsed = "openai:" + a.model
	if err := analysis.Validate(); err != nil {
		return models.Analysis{}, err
	}
	return analysis, nil
}

func buildSynthesisPrompt(row *models.TickerRow, enrichment *models.Enrichment) (string, error) {
	payload := map[string]any{
		"ticker":     row,
		"enrichment": enrichment,
		"constraints": map[string]any{
			"no_chain_of_thought":              true,
			"why_it_moved_exactly_2_sentences": true,
			"sentiment_range":                  []float64{-1, 1},
			"confidence_range":                 []float64{0, 1},
			"allowed_action":                   []string{"BUY", "WATCH", "SELL"},
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	return "Produce JSON with keys: why_it_moved, sentiment, action, confidence, decision_trace, provenance_urls. " +
		"decision_trace must include evidence_used, numeric_signals_used, rules_triggered, explainability_summary. " +
		"why_it_moved must be exactly two sentences and must mention evidence absence when headlines are missing. " +
		"Input: " + string(encoded), nil
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractJSONObject decodes the response text as a JSON object, falling back
// to the first braced block when the model wrapped the object in prose.
func ExtractJSONObject(text string) (map[string]any, error) {
	stripped := strings.TrimSpace(text)

	var obj map[string]any
	if err := json.Unmarshal([]byte(stripped), &obj); err == nil {
		return obj, nil
	}

	match := jsonObjectPattern.FindString(stripped)
	if match == "" {
		return nil, domerrors.ErrResponseNotJSON
	}
	if err := json.Unmarshal([]byte(match), &obj); err != nil {
		return nil, domerrors.Wrap(err, "parsing JSON block in model output")
	}
	return obj, nil
}

// safeOpenAIError maps API failures to messages that never leak request or
// key material into artifacts.
func safeOpenAIError(err error) string {
	var apiErr *openai.APIError
	if !domerrors.As(err, &apiErr) {
		return err.Error()
	}

	message := strings.ToLower(apiErr.Message)
	code, _ := apiErr.Code.(string)
	switch {
	case strings.Contains(message, "incorrect api key provided") || code == "invalid_api_key":
		return "OpenAI authentication failed (invalid API key)"
	case strings.Contains(message, "rate limit"):
		return "OpenAI request failed due to rate limits"
	case code == "insufficient_quota" || strings.Contains(message, "insufficient_quota"):
		return "OpenAI request failed due to insufficient quota"
	default:
		return fmt.Sprintf("OpenAI API returned HTTP %d", apiErr.HTTPStatusCode)
	}
}
