package bulk

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/Sternrassler/oc-marketplace-export/pkg/catalog"
	"github.com/Sternrassler/oc-marketplace-export/pkg/client"
	"github.com/Sternrassler/oc-marketplace-export/pkg/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocexport_retries_total",
		Help: "Total number of ListAll retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ocexport_retry_backoff_seconds",
		Help:    "Backoff duration before ListAll retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocexport_retry_exhausted_total",
		Help: "Total number of ListAll calls that exhausted their retries by error class",
	}, []string{"error_class"})
)

// ErrRetryExhausted is returned when all attempts failed.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryConfigForErrorClass scales base for an error class. Throttled calls
// back off longer; the scheduler already waits out the server's window, so
// the backoff only adds spacing on top of it.
func RetryConfigForErrorClass(base RetryConfig, class client.ErrorClass) RetryConfig {
	cfg := base
	switch class {
	case client.ErrorClassRateLimit:
		cfg.InitialBackoff *= 5
		cfg.MaxBackoff *= 2
	case client.ErrorClassNetwork:
		cfg.InitialBackoff *= 2
	}
	return cfg
}

// ResourceLister is anything that lists complete resources.
type ResourceLister interface {
	ListAll(ctx context.Context, res *catalog.Resource, scopeIDs ...string) ([]*record.Record, error)
}

// Retrying repeats whole ListAll calls that fail with a retryable error
// class. Client and auth errors are returned immediately.
type Retrying struct {
	next   ResourceLister
	config RetryConfig
	logger zerolog.Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrying wraps next.
func NewRetrying(next ResourceLister, config RetryConfig, logger zerolog.Logger) *Retrying {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.BackoffMultiplier < 1 {
		config.BackoffMultiplier = 1
	}
	return &Retrying{
		next:   next,
		config: config,
		logger: logger,
		sleep:  sleepContext,
	}
}

// ListAll calls the wrapped lister with jittered exponential backoff.
func (r *Retrying) ListAll(ctx context.Context, res *catalog.Resource, scopeIDs ...string) ([]*record.Record, error) {
	var lastErr error
	var lastClass client.ErrorClass
	var backoff time.Duration
	attempts := r.config.MaxAttempts

	for attempt := 1; attempt <= attempts; attempt++ {
		records, err := r.next.ListAll(ctx, res, scopeIDs...)
		if err == nil {
			if attempt > 1 {
				r.logger.Info().
					Str("resource", res.Name).
					Str("error_class", string(lastClass)).
					Int("attempt", attempt).
					Msg("ListAll succeeded after retry")
			}
			return records, nil
		}

		lastErr = err
		class := client.ClassOf(err)
		if !client.Retryable(class) || ctx.Err() != nil {
			return nil, err
		}

		cfg := RetryConfigForErrorClass(r.config, class)
		if attempt == 1 || class != lastClass {
			backoff = cfg.InitialBackoff
		}
		lastClass = class

		if attempt >= attempts {
			break
		}

		retriesTotal.WithLabelValues(string(class)).Inc()

		// ±20% jitter
		jittered := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(jittered.Seconds())

		r.logger.Warn().
			Err(err).
			Str("resource", res.Name).
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", jittered).
			Msg("Retrying ListAll after backoff")

		if err := r.sleep(ctx, jittered); err != nil {
			return nil, err
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	retryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	r.logger.Warn().
		Str("resource", res.Name).
		Str("error_class", string(lastClass)).
		Int("max_attempts", attempts).
		Msg("Retry attempts exhausted")

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
