// Package rates resolves national bank exchange rates with a bounded retry
// policy.
package rates

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/singleflight"

	"fxledger/internal/core"
	applog "fxledger/internal/log"
)

var (
	ErrNoRates          = errors.New("response contains no exchange rates")
	ErrCurrencyNotFound = errors.New("rate not found")
	ErrInvalidRate      = errors.New("invalid national bank rate")
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxJitter   = 500 * time.Millisecond
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// RetryPolicy controls how many times a lookup is attempted and how long to
// wait between attempts. Backoff receives the 0-indexed attempt that just
// failed.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Sleep       Sleeper
}

// DefaultRetryPolicy waits 1s, 2s, ... plus up to 500ms of jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     ExponentialBackoff(DefaultBaseDelay, DefaultMaxJitter, rand.Int64N),
		Sleep:       SleepContext,
	}
}

// ExponentialBackoff returns 2^attempt*base plus a jitter in [0, maxJitter).
// randN must return a value in [0, n).
func ExponentialBackoff(base, maxJitter time.Duration, randN func(n int64) int64) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 0 {
			attempt = 0
		}
		d := base << uint(attempt)
		if maxJitter > 0 && randN != nil {
			d += time.Duration(randN(int64(maxJitter)))
		}
		return d
	}
}

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Backoff == nil {
		p.Backoff = def.Backoff
	}
	if p.Sleep == nil {
		p.Sleep = def.Sleep
	}
	return p
}

// Fetcher resolves a single positive rate for a date and currency.
type Fetcher struct {
	source Source
	policy RetryPolicy
	logger *applog.Logger
	group  singleflight.Group
}

// NewFetcher wraps source with policy. A nil logger uses the default one.
func NewFetcher(source Source, policy RetryPolicy, logger *applog.Logger) *Fetcher {
	if logger == nil {
		logger = applog.Default(applog.ComponentRates)
	}
	return &Fetcher{
		source: source,
		policy: policy.withDefaults(),
		logger: logger.WithComponent(applog.ComponentRates),
	}
}

// FetchRate returns the national bank sale rate of currency on date.
// Concurrent calls for the same date and currency share one lookup. The
// shared lookup is detached from any single caller, so a caller that goes
// away only abandons its own wait; the others keep the full retry budget.
func (f *Fetcher) FetchRate(ctx context.Context, date core.Date, currency string) (float64, error) {
	key := date.String() + "/" + currency
	ch := f.group.DoChan(key, func() (any, error) {
		return f.fetchWithRetry(context.WithoutCancel(ctx), date, currency)
	})
	select {
	case <-ctx.Done():
		return 0, &core.RateFetchError{Cause: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(float64), nil
	}
}

// WorstCaseDuration bounds how long one FetchRate may take under the default
// backoff when every attempt runs into attemptTimeout.
func WorstCaseDuration(maxAttempts int, attemptTimeout time.Duration) time.Duration {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	total := time.Duration(maxAttempts) * attemptTimeout
	for i := 0; i < maxAttempts-1; i++ {
		total += DefaultBaseDelay<<uint(i) + DefaultMaxJitter
	}
	return total
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, date core.Date, currency string) (float64, error) {
	var lastErr error
	for attempt := 0; attempt < f.policy.MaxAttempts; attempt++ {
		rate, err := f.attempt(ctx, date, currency)
		if err == nil {
			f.logger.DebugContext(ctx, "Rate resolved",
				applog.FieldDate, date.String(),
				applog.FieldCurrency, currency,
				applog.FieldRate, rate,
				applog.FieldAttempt, attempt+1)
			return rate, nil
		}
		lastErr = err

		if attempt == f.policy.MaxAttempts-1 {
			break
		}

		delay := f.policy.Backoff(attempt)
		f.logger.WarnContext(ctx, "Rate lookup failed, retrying",
			applog.FieldDate, date.String(),
			applog.FieldCurrency, currency,
			applog.FieldAttempt, attempt+1,
			applog.FieldDelay, delay.Milliseconds(),
			applog.FieldError, err)

		if err := f.policy.Sleep(ctx, delay); err != nil {
			return 0, &core.RateFetchError{Attempts: attempt + 1, Cause: err}
		}
	}

	f.logger.ErrorContext(ctx, "Rate lookup failed",
		applog.FieldDate, date.String(),
		applog.FieldCurrency, currency,
		applog.FieldAttempt, f.policy.MaxAttempts,
		applog.FieldError, lastErr)
	return 0, &core.RateFetchError{Attempts: f.policy.MaxAttempts, Cause: lastErr}
}

func (f *Fetcher) attempt(ctx context.Context, date core.Date, currency string) (float64, error) {
	resp, err := f.source.Rates(ctx, date)
	if err != nil {
		return 0, err
	}
	return ExtractRate(resp, currency, date)
}
