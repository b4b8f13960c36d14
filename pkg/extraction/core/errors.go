package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind classifies extraction failures for retry and fallback
// decisions. Only rate_limited is retried against the same provider; the
// other kinds advance the fallback chain immediately.
type ErrorKind string

const (
	KindRateLimited        ErrorKind = "rate_limited"
	KindTimeout            ErrorKind = "timeout"
	KindInvalidResponse    ErrorKind = "invalid_response"
	KindUnavailable        ErrorKind = "unavailable"
	KindAllProvidersFailed ErrorKind = "all_providers_failed"
)

// ProviderError wraps a single provider failure with its classification.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

// NewProviderError builds a classified provider failure.
func NewProviderError(provider string, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}
	msg := "provider error"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Provider == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, msg)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf extracts the ErrorKind from err, walking wrapped chains. Context
// expiry and net timeouts classify as timeout; anything unclassified counts
// as unavailable. A nil error has no kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Kind != "" {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindUnavailable
}

// AttemptFailure records one failed provider attempt.
type AttemptFailure struct {
	Provider string    `json:"provider"`
	Kind     ErrorKind `json:"kind"`
	Msg      string    `json:"msg"`
}

// AllProvidersFailedError is the terminal failure of a request: no
// extractor produced a usable result. The attempt list names every
// provider tried and why each failed.
type AllProvidersFailedError struct {
	Attempts []AttemptFailure
}

func (e *AllProvidersFailedError) Error() string {
	if e == nil || len(e.Attempts) == 0 {
		return "all providers failed"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		msg := a.Msg
		if msg == "" {
			msg = "no detail"
		}
		parts = append(parts, fmt.Sprintf("%s: %s (%s)", a.Provider, a.Kind, msg))
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}
