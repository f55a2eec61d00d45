package bulk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/oc-marketplace-export/pkg/catalog"
	"github.com/Sternrassler/oc-marketplace-export/pkg/client"
	"github.com/Sternrassler/oc-marketplace-export/pkg/ratelimit"
	"github.com/Sternrassler/oc-marketplace-export/pkg/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for bulk listing.
var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocexport_bulk_pages_total",
		Help: "Total pages listed by resource",
	}, []string{"resource"})

	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocexport_bulk_records_total",
		Help: "Total records listed by resource",
	}, []string{"resource"})

	listAllDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ocexport_bulk_list_duration_seconds",
		Help:    "Duration of complete ListAll calls by resource",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"resource"})
)

// Lister fetches a single page. *client.Client implements it.
type Lister interface {
	List(ctx context.Context, res *catalog.Resource, scopeIDs []string, page int) (*client.Page, error)
}

// Config holds fetcher configuration.
type Config struct {
	// Workers > 1 lists pages 2..TotalPages concurrently once the first
	// page reports the total. Results keep page order. Every page still
	// goes through the scheduler.
	Workers int

	// MaxPages guards against endpoints that never stop reporting more
	// pages. Zero means no limit.
	MaxPages int
}

// DefaultConfig lists pages one after another.
func DefaultConfig() Config {
	return Config{
		Workers:  1,
		MaxPages: 10000,
	}
}

// Fetcher lists complete resources.
type Fetcher struct {
	lister    Lister
	scheduler *ratelimit.Scheduler
	config    Config
	logger    zerolog.Logger
}

// NewFetcher creates a fetcher. Workers below 1 are treated as 1.
func NewFetcher(lister Lister, scheduler *ratelimit.Scheduler, config Config, logger zerolog.Logger) *Fetcher {
	if config.Workers < 1 {
		config.Workers = 1
	}
	return &Fetcher{
		lister:    lister,
		scheduler: scheduler,
		config:    config,
		logger:    logger,
	}
}

// ListAll returns every record of res scoped by scopeIDs, in page order.
// The result is non-nil on success, empty when the resource has no records.
func (f *Fetcher) ListAll(ctx context.Context, res *catalog.Resource, scopeIDs ...string) ([]*record.Record, error) {
	if res == nil {
		return nil, fmt.Errorf("bulk: %w: nil resource", catalog.ErrUnknownResource)
	}

	start := time.Now()
	defer func() {
		listAllDuration.WithLabelValues(res.Name).Observe(time.Since(start).Seconds())
	}()

	first, err := f.page(ctx, res, scopeIDs, 1)
	if err != nil {
		return nil, err
	}

	records := make([]*record.Record, 0, len(first.Items))
	records = append(records, first.Items...)

	if first.HasMore {
		var rest []*record.Record
		if f.config.Workers > 1 && first.Meta.TotalPages > 1 {
			rest, err = f.parallel(ctx, res, scopeIDs, first.Meta.TotalPages)
		} else {
			rest, err = f.sequential(ctx, res, scopeIDs)
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rest...)
	}

	recordsTotal.WithLabelValues(res.Name).Add(float64(len(records)))
	f.logger.Debug().
		Str("resource", res.Name).
		Strs("scope", scopeIDs).
		Int("records", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Listed resource")

	return records, nil
}

// sequential follows HasMore from page 2 on.
func (f *Fetcher) sequential(ctx context.Context, res *catalog.Resource, scopeIDs []string) ([]*record.Record, error) {
	var out []*record.Record
	for pageNum := 2; ; pageNum++ {
		if f.config.MaxPages > 0 && pageNum > f.config.MaxPages {
			return nil, fmt.Errorf("list %s: more than %d pages", res.Name, f.config.MaxPages)
		}
		p, err := f.page(ctx, res, scopeIDs, pageNum)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Items...)
		if !p.HasMore {
			return out, nil
		}
	}
}

type pageResult struct {
	number int
	page   *client.Page
	err    error
}

// parallel lists pages 2..totalPages with a worker pool and reassembles
// them in page order. The first failure cancels the remaining work.
func (f *Fetcher) parallel(ctx context.Context, res *catalog.Resource, scopeIDs []string, totalPages int) ([]*record.Record, error) {
	if f.config.MaxPages > 0 && totalPages > f.config.MaxPages {
		return nil, fmt.Errorf("list %s: %d pages exceeds limit of %d", res.Name, totalPages, f.config.MaxPages)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pageQueue := make(chan int)
	results := make(chan pageResult)

	go func() {
		defer close(pageQueue)
		for pageNum := 2; pageNum <= totalPages; pageNum++ {
			select {
			case pageQueue <- pageNum:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < f.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pageNum := range pageQueue {
				p, err := f.page(ctx, res, scopeIDs, pageNum)
				select {
				case results <- pageResult{number: pageNum, page: p, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	pages := make(map[int]*client.Page, totalPages-1)
	var firstErr error
	for r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
				cancel()
			}
			continue
		}
		pages[r.number] = r.page
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if len(pages) != totalPages-1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("list %s: got %d of %d pages", res.Name, len(pages)+1, totalPages)
	}

	var out []*record.Record
	for pageNum := 2; pageNum <= totalPages; pageNum++ {
		p := pages[pageNum]
		out = append(out, p.Items...)
		if len(p.Items) == 0 {
			break
		}
	}
	return out, nil
}

// page lists one page through the scheduler.
func (f *Fetcher) page(ctx context.Context, res *catalog.Resource, scopeIDs []string, pageNum int) (*client.Page, error) {
	p, err := ratelimit.Do(ctx, f.scheduler, func(ctx context.Context) (*client.Page, error) {
		return f.lister.List(ctx, res, scopeIDs, pageNum)
	})
	if err != nil {
		f.logger.Warn().
			Err(err).
			Str("resource", res.Name).
			Strs("scope", scopeIDs).
			Int("page", pageNum).
			Msg("Page fetch failed")
		return nil, fmt.Errorf("list %s page %d: %w", res.Name, pageNum, err)
	}
	pagesTotal.WithLabelValues(res.Name).Inc()
	if p == nil {
		p = &client.Page{}
	}
	return p, nil
}
