// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrNoTickers        = errors.New("no tickers to process")
	ErrOpenAIDisabled   = errors.New("OpenAI is not configured")
	ErrTimeout          = errors.New("operation timed out")
	ErrWatchlistEmpty   = errors.New("watchlist contains no valid symbols")
	ErrCacheMiss        = errors.New("cache miss")
	ErrEmailNotReady    = errors.New("SMTP configuration is incomplete")
	ErrUnsupportedMode  = errors.New("unsupported run mode")
	ErrInvalidRegion    = errors.New("unknown region")
	ErrInvalidSource    = errors.New("unknown ingestion source")
	ErrDatabaseError    = errors.New("database error")
	ErrResponseNotJSON  = errors.New("model response did not contain a JSON object")
)

// FetchError represents a failed HTTP fetch.
type FetchError struct {
	URL        string
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error [%d] %s: %s", e.StatusCode, e.URL, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch error %s: %s: %v", e.URL, e.Message, e.Err)
	}
	return fmt.Sprintf("fetch error %s: %s", e.URL, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a new FetchError.
func NewFetchError(url string, statusCode int, message string, err error) *FetchError {
	return &FetchError{
		URL:        url,
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// IngestionError represents a failure while building the ticker list.
type IngestionError struct {
	Source  string
	Message string
	Err     error
}

func (e *IngestionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ingestion error [%s]: %s: %v", e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("ingestion error [%s]: %s", e.Source, e.Message)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

// NewIngestionError creates a new IngestionError.
func NewIngestionError(source, message string, err error) *IngestionError {
	return &IngestionError{
		Source:  source,
		Message: message,
		Err:     err,
	}
}

// EnrichmentError represents a failure while gathering per-ticker evidence.
type EnrichmentError struct {
	Ticker  string
	Field   string
	URL     string
	Message string
	Err     error
}

func (e *EnrichmentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("enrichment error [%s] %s: %s: %v", e.Ticker, e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("enrichment error [%s] %s: %s", e.Ticker, e.Field, e.Message)
}

func (e *EnrichmentError) Unwrap() error {
	return e.Err
}

// NewEnrichmentError creates a new EnrichmentError.
func NewEnrichmentError(ticker, field, url, message string, err error) *EnrichmentError {
	return &EnrichmentError{
		Ticker:  ticker,
		Field:   field,
		URL:     url,
		Message: message,
		Err:     err,
	}
}

// AnalysisError represents a failure inside an analysis tier. The orchestrator
// treats it as a signal to fall back to the heuristic baseline.
type AnalysisError struct {
	Ticker   string
	Analyzer string
	Message  string
	Err      error
}

func (e *AnalysisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analysis error [%s] %s: %s: %v", e.Ticker, e.Analyzer, e.Message, e.Err)
	}
	return fmt.Sprintf("analysis error [%s] %s: %s", e.Ticker, e.Analyzer, e.Message)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// NewAnalysisError creates a new AnalysisError.
func NewAnalysisError(ticker, analyzer, message string, err error) *AnalysisError {
	return &AnalysisError{
		Ticker:   ticker,
		Analyzer: analyzer,
		Message:  message,
		Err:      err,
	}
}

// EmailDeliveryError represents a failed SMTP delivery attempt.
type EmailDeliveryError struct {
	Host    string
	Port    int
	Message string
	Err     error
}

func (e *EmailDeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("email delivery error [%s:%d]: %s: %v", e.Host, e.Port, e.Message, e.Err)
	}
	return fmt.Sprintf("email delivery error [%s:%d]: %s", e.Host, e.Port, e.Message)
}

func (e *EmailDeliveryError) Unwrap() error {
	return e.Err
}

// NewEmailDeliveryError creates a new EmailDeliveryError.
func NewEmailDeliveryError(host string, port int, message string, err error) *EmailDeliveryError {
	return &EmailDeliveryError{
		Host:    host,
		Port:    port,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
