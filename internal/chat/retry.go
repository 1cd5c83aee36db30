package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RetryConfig configures retry behavior for completion calls.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryablePatterns groups transient error substrings by category,
// matched case-insensitively against err.Error(). String matching is
// used because the provider SDKs expose no typed errors for transient
// failures.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},
	{"500", "502", "503", "504", "unavailable"},
	{"connection reset", "timeout", "temporary"},
}

// permanentError marks an error that must not be retried even when its
// message looks transient, such as a provider failure after tokens have
// already been forwarded to the client.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// retryableError reports whether err is transient and worth retrying.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, sub := range group {
			if strings.Contains(errStr, sub) {
				return true
			}
		}
	}
	return false
}

// withRetry runs fn with exponential backoff on transient errors. Each
// attempt passes the synthesizer's rate limiter first so retries cannot
// amplify pressure on a struggling upstream.
func (s *Synthesizer) withRetry(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	delay := s.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
		}

		err := fn(ctx)
		if err == nil {
			s.logger.Debug("completion succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return nil
		}
		lastErr = err

		if !retryableError(err) {
			return err
		}
		if attempt == s.retry.MaxRetries {
			break
		}

		s.logger.Debug("retrying completion",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, s.retry.MaxInterval)
		}
	}

	return fmt.Errorf("completion after %d retries (elapsed: %v): %w",
		s.retry.MaxRetries, time.Since(start), lastErr)
}
