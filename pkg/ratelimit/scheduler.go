package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Prometheus metrics for request scheduling.
var (
	schedulerAdmissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocexport_scheduler_admissions_total",
		Help: "Total number of operations admitted by the scheduler",
	})

	schedulerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ocexport_scheduler_queue_depth",
		Help: "Number of operations waiting for admission",
	})

	schedulerInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ocexport_scheduler_in_flight",
		Help: "Number of admitted operations currently running",
	})

	schedulerWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ocexport_scheduler_wait_seconds",
		Help:    "Time operations spent queued before admission",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})
)

// Config holds scheduler limits.
type Config struct {
	// MinTime is the minimum interval between the start of any two
	// operations. Zero disables pacing.
	MinTime time.Duration

	// MaxConcurrent is the maximum number of operations running at once.
	MaxConcurrent int
}

// DefaultConfig returns limits safe for the platform API:
// 10 request starts per second, 8 in flight.
func DefaultConfig() Config {
	return Config{
		MinTime:       100 * time.Millisecond,
		MaxConcurrent: 8,
	}
}

// Stats is a point-in-time snapshot of scheduler counters.
type Stats struct {
	Admitted    int64
	Running     int64
	Queued      int64
	PeakRunning int64
}

// Scheduler is the single choke point for platform requests. One instance
// must be shared by everything that talks to the same platform.
type Scheduler struct {
	config  Config
	gate    *semaphore.Weighted // FIFO admission, held by the head of the queue
	slots   *semaphore.Weighted
	limiter *rate.Limiter
	tracker *Tracker
	logger  zerolog.Logger

	// lastAdmit is only touched by the gate holder.
	lastAdmit time.Time

	admitted atomic.Int64
	running  atomic.Int64
	queued   atomic.Int64
	peak     atomic.Int64
}

// NewScheduler creates a scheduler. tracker may be nil.
func NewScheduler(cfg Config, tracker *Tracker, logger zerolog.Logger) (*Scheduler, error) {
	if cfg.MaxConcurrent <= 0 {
		return nil, fmt.Errorf("max_concurrent must be > 0 (got %d)", cfg.MaxConcurrent)
	}
	if cfg.MinTime < 0 {
		return nil, fmt.Errorf("min_time must be >= 0 (got %s)", cfg.MinTime)
	}

	limit := rate.Inf
	if cfg.MinTime > 0 {
		limit = rate.Every(cfg.MinTime)
	}

	return &Scheduler{
		config:  cfg,
		gate:    semaphore.NewWeighted(1),
		slots:   semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		limiter: rate.NewLimiter(limit, 1),
		tracker: tracker,
		logger:  logger,
	}, nil
}

// Config returns the scheduler limits.
func (s *Scheduler) Config() Config {
	return s.config
}

// Schedule runs op once it is admitted. Admission order is submission
// order. op's error is returned unchanged; admission failures (ctx done,
// throttle store errors) are returned before op runs.
func (s *Scheduler) Schedule(ctx context.Context, op func(ctx context.Context) error) error {
	if err := s.admit(ctx); err != nil {
		return err
	}
	defer s.release()
	return op(ctx)
}

// Do schedules op and returns its result.
func Do[T any](ctx context.Context, s *Scheduler, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := s.Schedule(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}

// admit serializes admission decisions. The gate holder is the head of the
// queue: it alone waits for a free slot, the throttle window and the pacing
// interval, so later submissions cannot overtake it.
func (s *Scheduler) admit(ctx context.Context) error {
	start := time.Now()
	s.queued.Add(1)
	schedulerQueueDepth.Inc()
	defer func() {
		s.queued.Add(-1)
		schedulerQueueDepth.Dec()
	}()

	if err := s.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.gate.Release(1)

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return err
	}

	if s.tracker != nil {
		if err := s.tracker.Wait(ctx); err != nil {
			s.slots.Release(1)
			return fmt.Errorf("throttle wait: %w", err)
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		s.slots.Release(1)
		return err
	}

	// The limiter spaces reservations, not actual starts. A late wake-up
	// would let the next admission follow closer than MinTime.
	if err := s.waitSpacing(ctx); err != nil {
		s.slots.Release(1)
		return err
	}

	running := s.running.Add(1)
	for {
		peak := s.peak.Load()
		if running <= peak || s.peak.CompareAndSwap(peak, running) {
			break
		}
	}
	s.admitted.Add(1)
	schedulerAdmissionsTotal.Inc()
	schedulerInFlight.Inc()
	schedulerWaitSeconds.Observe(time.Since(start).Seconds())

	s.logger.Debug().
		Int64("running", running).
		Dur("waited", time.Since(start)).
		Msg("Operation admitted")

	s.lastAdmit = time.Now()
	return nil
}

// waitSpacing sleeps until MinTime has passed since the previous admission.
func (s *Scheduler) waitSpacing(ctx context.Context) error {
	if s.config.MinTime <= 0 || s.lastAdmit.IsZero() {
		return nil
	}
	for {
		wait := s.config.MinTime - time.Since(s.lastAdmit)
		if wait <= 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Scheduler) release() {
	s.running.Add(-1)
	schedulerInFlight.Dec()
	s.slots.Release(1)
}

// Stats returns current counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Admitted:    s.admitted.Load(),
		Running:     s.running.Load(),
		Queued:      s.queued.Load(),
		PeakRunning: s.peak.Load(),
	}
}
