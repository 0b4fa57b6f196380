// Package apperr defines the workflow engine's typed error taxonomy
// (browser, quote provider, config, job failure), each wrapping a cause so
// callers can branch on errors.As. The other packages of this module do not
// return these types; they wrap standard errors with fmt.Errorf.
package apperr

import "fmt"

// BrowserError indicates the chat transport is unavailable or a send failed.
type BrowserError struct {
	Op  string
	Err error
}

func (e *BrowserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("browser: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("browser: %s", e.Op)
}

func (e *BrowserError) Unwrap() error { return e.Err }

func NewBrowserError(op string, err error) *BrowserError {
	return &BrowserError{Op: op, Err: err}
}

// QuoteProviderError indicates a remote or rule-based quote source failed.
type QuoteProviderError struct {
	Provider string
	Err      error
}

func (e *QuoteProviderError) Error() string {
	return fmt.Sprintf("quote provider %q: %v", e.Provider, e.Err)
}

func (e *QuoteProviderError) Unwrap() error { return e.Err }

func NewQuoteProviderError(provider string, err error) *QuoteProviderError {
	return &QuoteProviderError{Provider: provider, Err: err}
}

// ConfigError indicates missing or invalid configuration.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func NewConfigError(field string, err error) *ConfigError {
	return &ConfigError{Field: field, Err: err}
}

// JobFailure wraps a retryable workflow-level failure. Unlike the other
// error types it is always recoverable by the caller via FailJob/backoff.
type JobFailure struct {
	Stage string
	Err   error
}

func (e *JobFailure) Error() string {
	return fmt.Sprintf("job failed at stage %q: %v", e.Stage, e.Err)
}

func (e *JobFailure) Unwrap() error { return e.Err }

func NewJobFailure(stage string, err error) *JobFailure {
	return &JobFailure{Stage: stage, Err: err}
}
