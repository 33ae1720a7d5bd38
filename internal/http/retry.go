package http

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// ErrorType classifies a failed transfer for the retry strategy.
type ErrorType int

const (
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeNetwork covers timeouts, resets and refused connections.
	ErrorTypeNetwork
	// ErrorTypeRetryable covers server-side failures and throttling.
	ErrorTypeRetryable
	// ErrorTypeFatal covers everything a retry cannot fix: missing objects,
	// denied access, bad requests.
	ErrorTypeFatal
)

// String returns a human-readable name for the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRetryable:
		return "retryable"
	case ErrorTypeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// RetryConfig holds the parameters of ExecuteWithRetry.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// OnRetry is called before each retry attempt.
	OnRetry func(attempt int, err error, errorType ErrorType)
}

// DefaultRetryConfig returns the retry settings used for file input downloads.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     10 * time.Second,
	}
}

var (
	networkMarkers = []string{
		"tls handshake timeout", "connection reset", "i/o timeout", "eof",
		"connection refused", "broken pipe", "timeout",
	}
	retryableMarkers = []string{
		"requesttimeout", "internalerror", "serviceunavailable", "slowdown",
		"throttl", "429", "500", "502", "503", "504", "serverbusy",
		"server busy", "operationtimeout", "service unavailable",
	}
)

// ClassifyError determines the error type from the error text. S3 and Azure
// report most failures only through their messages.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeSuccess
	}

	errStr := strings.ToLower(err.Error())
	for _, m := range networkMarkers {
		if strings.Contains(errStr, m) {
			return ErrorTypeNetwork
		}
	}
	for _, m := range retryableMarkers {
		if strings.Contains(errStr, m) {
			return ErrorTypeRetryable
		}
	}
	return ErrorTypeFatal
}

// CalculateBackoff returns an exponential backoff with full jitter:
// random(0, min(maxDelay, initialDelay * 2^attempt)).
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt <= 0 || initialDelay <= 0 {
		return 0
	}
	base := maxDelay
	if attempt < 30 {
		if d := time.Duration(1<<uint(attempt)) * initialDelay; d < maxDelay {
			base = d
		}
	}
	if base <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(base)))
}

// ExecuteWithRetry runs operation until it succeeds, fails fatally, ctx ends
// or MaxRetries attempts have been made.
func ExecuteWithRetry(ctx context.Context, cfg RetryConfig, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		errType := ClassifyError(err)
		if errType == ErrorTypeFatal {
			return err
		}
		if attempt == cfg.MaxRetries-1 {
			break
		}

		backoff := CalculateBackoff(attempt+1, cfg.InitialDelay, cfg.MaxDelay)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < backoff {
			return fmt.Errorf("insufficient time left for retry: %w", err)
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, errType)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxRetries, lastErr)
}
