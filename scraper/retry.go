package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/config"
)

// RetryPolicy bounds how often and how patiently a fetch is retried.
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy returns 10 attempts starting at 3s and doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   10,
		InitialDelay:  3 * time.Second,
		BackoffFactor: 2,
	}
}

// PolicyFromConfig copies the retry settings out of cfg.
func PolicyFromConfig(cfg *config.Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   cfg.MaxAttempts,
		InitialDelay:  cfg.RetryDelay,
		BackoffFactor: cfg.BackoffFactor,
	}
}

// Backoff returns the sleep that precedes retry n (1-based):
// InitialDelay * BackoffFactor^(n-1).
func (p RetryPolicy) Backoff(n int) time.Duration {
	delay := p.InitialDelay
	for i := 1; i < n; i++ {
		delay = time.Duration(float64(delay) * p.BackoffFactor)
	}
	return delay
}

// RetryingFetcher decorates a Fetcher with bounded exponential backoff on
// transient errors. Every attempt but the last is guarded; the last one
// runs unconditionally and its outcome is returned.
type RetryingFetcher struct {
	next    Fetcher
	policy  RetryPolicy
	logger  *slog.Logger
	metrics *Metrics
	sleep   func(ctx context.Context, d time.Duration) error

	retries int
}

// NewRetryingFetcher wraps next. A nil logger falls back to slog.Default().
func NewRetryingFetcher(next Fetcher, policy RetryPolicy, logger *slog.Logger, metrics *Metrics) *RetryingFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingFetcher{
		next:    next,
		policy:  policy,
		logger:  logger,
		metrics: metrics,
		sleep:   sleepContext,
	}
}

// Fetch retrieves pageURL, sleeping between transient failures. Failures are
// reported as *FetchError.
func (r *RetryingFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	remaining, delay := r.policy.MaxAttempts, r.policy.InitialDelay
	attempts := 0

	for ; remaining > 1; remaining-- {
		attempts++
		body, err := r.next.Fetch(ctx, pageURL)
		if err == nil {
			return body, nil
		}
		if !IsTransient(err) {
			return nil, &FetchError{URL: pageURL, Attempts: attempts, Err: err}
		}

		r.logger.Warn("retrying fetch",
			slog.Any("error", err),
			slog.String("url", pageURL),
			slog.Int("attempt", attempts),
			slog.Duration("delay", delay),
		)
		r.retries++
		r.metrics.IncRetries()

		if err := r.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("retry %s: %w", pageURL, err)
		}
		delay = time.Duration(float64(delay) * r.policy.BackoffFactor)
	}

	attempts++
	body, err := r.next.Fetch(ctx, pageURL)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Attempts: attempts, Err: err}
	}
	return body, nil
}

// Retries returns the number of retries scheduled so far.
func (r *RetryingFetcher) Retries() int {
	return r.retries
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
