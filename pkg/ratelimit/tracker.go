package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for throttle tracking.
var (
	throttleSignalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocexport_throttle_signals_total",
		Help: "Total number of throttle responses received from the platform",
	})

	throttleWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocexport_throttle_waits_total",
		Help: "Total number of admissions delayed by an open throttle window",
	})

	throttleWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ocexport_throttle_wait_seconds",
		Help:    "Time admissions spent waiting for a throttle window to close",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})
)

// Tracker records server throttle signals and holds admissions back while
// a throttle window is open.
type Tracker struct {
	mu     sync.Mutex
	store  StateStore
	logger zerolog.Logger
}

// NewTracker creates a tracker. A nil store falls back to MemoryStore.
func NewTracker(store StateStore, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{
		store:  store,
		logger: logger,
	}
}

// GetState retrieves the current throttle state.
func (t *Tracker) GetState(ctx context.Context) (*ThrottleState, error) {
	state, err := t.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load throttle state: %w", err)
	}
	return state, nil
}

// IsThrottleStatus reports whether a status code carries a throttle signal.
func IsThrottleStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode == http.StatusServiceUnavailable
}

// UpdateFromResponse records a throttle signal. Non-throttle statuses are
// ignored. A window only ever extends; a shorter Retry-After never reopens
// admissions early.
func (t *Tracker) UpdateFromResponse(ctx context.Context, statusCode int, headers http.Header) error {
	if !IsThrottleStatus(statusCode) {
		return nil
	}

	now := time.Now()
	wait, ok := ParseRetryAfter(headers.Get("Retry-After"), now)
	if !ok {
		wait = DefaultRetryAfter
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state, err := t.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load throttle state: %w", err)
	}

	if until := now.Add(wait); until.After(state.BlockedUntil) {
		state.BlockedUntil = until
	}
	state.Throttles++
	state.LastUpdate = now

	if err := t.store.Save(ctx, state); err != nil {
		return fmt.Errorf("save throttle state: %w", err)
	}

	throttleSignalsTotal.Inc()
	t.logger.Warn().
		Int("status", statusCode).
		Dur("retry_after", wait).
		Time("blocked_until", state.BlockedUntil).
		Int("throttles", state.Throttles).
		Msg("Platform throttle signal - new requests will wait")

	return nil
}

// Wait blocks until any open throttle window has passed or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		return err
	}
	if !state.IsBlocked() {
		return nil
	}
	// No single signal blocks longer than MaxRetryAfter, so a window last
	// written before that cannot still be open. Redis may hold one from a
	// process with a skewed clock.
	if state.IsStale(MaxRetryAfter) {
		t.logger.Debug().
			Time("blocked_until", state.BlockedUntil).
			Time("last_update", state.LastUpdate).
			Msg("Ignoring stale throttle window")
		return nil
	}

	wait := state.TimeUntilUnblocked()
	throttleWaitsTotal.Inc()
	t.logger.Warn().
		Dur("wait_duration", wait).
		Msg("Throttle window open - delaying request")

	start := time.Now()
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		throttleWaitSeconds.Observe(time.Since(start).Seconds())
		return nil
	}
}

// ParseRetryAfter parses a Retry-After header given as delay seconds or an
// HTTP date. The result is capped at MaxRetryAfter.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	var wait time.Duration
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		if limit := int(MaxRetryAfter / time.Second); secs > limit {
			secs = limit
		}
		wait = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(value); err == nil {
		wait = at.Sub(now)
		if wait < 0 {
			wait = 0
		}
	} else {
		return 0, false
	}

	if wait > MaxRetryAfter {
		wait = MaxRetryAfter
	}
	return wait, true
}
