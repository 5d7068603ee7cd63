package providers

import (
	"context"
	"log/slog"
	"time"
)

// Defaults shared by every adapter.
const (
	defaultMaxRetries  = 2
	defaultRetryDelay  = time.Second
	defaultHTTPTimeout = 60 * time.Second
)

// BaseProvider carries the retry policy and logger common to all adapters.
type BaseProvider struct {
	name       string
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewBaseProvider applies retry defaults and scopes the logger.
func NewBaseProvider(name string, maxRetries int, retryDelay time.Duration, logger *slog.Logger) BaseProvider {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return BaseProvider{
		name:       name,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		logger:     logger.With("provider", name),
	}
}

// Logger returns the provider-scoped logger.
func (b *BaseProvider) Logger() *slog.Logger { return b.logger }

// RetryWithBackoff runs fn up to maxRetries+1 times with exponential backoff,
// retrying only errors whose kind is retryable.
func (b *BaseProvider) RetryWithBackoff(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if attempt > 0 {
			delay := b.retryDelay * time.Duration(1<<(attempt-1))
			b.logger.Debug("retrying provider request",
				"attempt", attempt,
				"delay", delay,
				"error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !ClassifyError(lastErr).IsRetryable() {
			return lastErr
		}
	}
	return lastErr
}
