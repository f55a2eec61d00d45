// Package export downloads a marketplace into a snapshot.
//
// The Extractor walks the resource graph: every root resource is listed,
// sanitized and added, then each declared child is listed once per parent
// record that passes the child's predicate. Variants expand one level
// further into variant inventory records. Download wires the Extractor to
// authentication, the rate-limited client and progress reporting.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/oc-marketplace-export/pkg/bulk"
	"github.com/Sternrassler/oc-marketplace-export/pkg/catalog"
	"github.com/Sternrassler/oc-marketplace-export/pkg/logging"
	"github.com/Sternrassler/oc-marketplace-export/pkg/record"
	"github.com/Sternrassler/oc-marketplace-export/pkg/sanitize"
	"github.com/Sternrassler/oc-marketplace-export/pkg/snapshot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for extraction.
var (
	exportRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocexport_export_records_total",
		Help: "Total number of records added to snapshots, by resource",
	}, []string{"resource"})

	exportDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ocexport_export_duration_seconds",
		Help:    "Duration of complete marketplace extractions",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})
)

// Extractor is the traversal over one resource graph.
type Extractor struct {
	graph    *catalog.Graph
	lister   bulk.ResourceLister
	reporter logging.Reporter
	version  string
	logger   zerolog.Logger
}

// NewExtractor creates an extractor. A nil reporter discards progress.
func NewExtractor(graph *catalog.Graph, lister bulk.ResourceLister, reporter logging.Reporter, logger zerolog.Logger) *Extractor {
	if reporter == nil {
		reporter = logging.ReporterFunc(func(string, logging.Severity) {})
	}
	return &Extractor{
		graph:    graph,
		lister:   lister,
		reporter: reporter,
		logger:   logger,
	}
}

// WithVersion sets the tool version recorded in snapshot meta.
func (e *Extractor) WithVersion(version string) *Extractor {
	e.version = version
	return e
}

// Extract downloads every resource of marketplaceID. An invalid graph is
// rejected before the first request. Any list failure or unresolvable child
// aborts the extraction; no partial snapshot is returned.
func (e *Extractor) Extract(ctx context.Context, marketplaceID string) (*snapshot.Marketplace, error) {
	if err := e.graph.Validate(); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	start := time.Now()
	out := snapshot.NewMarketplace(marketplaceID, e.version)

	for _, res := range e.graph.Roots() {
		if err := e.extractRoot(ctx, out, res); err != nil {
			return nil, err
		}
	}

	exportDurationSeconds.Observe(time.Since(start).Seconds())
	e.logger.Info().
		Str("marketplace_id", marketplaceID).
		Int("resources", len(out.Resources())).
		Int("records", out.Total()).
		Dur("duration", time.Since(start)).
		Msg("Extraction complete")
	return out, nil
}

func (e *Extractor) extractRoot(ctx context.Context, out *snapshot.Marketplace, res *catalog.Resource) error {
	records, err := e.lister.ListAll(ctx, res)
	if err != nil {
		return fmt.Errorf("export %s: %w", res.Name, err)
	}

	sanitize.Redact(res, records)
	sanitize.PlaceholdMarketplaceID(res, out.Meta.MarketplaceID, records)
	records = sanitize.Transform(res, records)

	e.reporter.Report(fmt.Sprintf("Found %d %s", len(records), res.Name), logging.SeverityInfo)
	e.add(out, res.Name, records)

	for _, name := range res.Children {
		child, ok := e.graph.Find(name)
		if !ok {
			return fmt.Errorf("%w: %q declared as child of %q", catalog.ErrUnknownResource, name, res.Name)
		}
		if err := e.extractChildren(ctx, out, child, records); err != nil {
			return err
		}
	}
	return nil
}

// extractChildren lists child under every qualifying parent and reports
// the totals once all parents are done.
func (e *Extractor) extractChildren(ctx context.Context, out *snapshot.Marketplace, child *catalog.Resource, parents []*record.Record) error {
	var grandchild *catalog.Resource
	if child.Name == catalog.Variants {
		gc, ok := e.graph.Find(catalog.VariantInventoryRecords)
		if !ok {
			return fmt.Errorf("%w: %q required by %q", catalog.ErrUnknownResource, catalog.VariantInventoryRecords, child.Name)
		}
		grandchild = gc
	}

	out.AddRecords(child.Name, nil)
	if grandchild != nil {
		out.AddRecords(grandchild.Name, nil)
	}

	var childCount, grandchildCount int
	for _, parent := range parents {
		if !child.ShouldFetch(parent) {
			continue
		}
		parentID, ok := parent.ID()
		if !ok {
			e.logger.Warn().Str("resource", child.Name).Msg("Parent record has no ID, skipping children")
			continue
		}

		records, err := e.lister.ListAll(ctx, child, parentID)
		if err != nil {
			return fmt.Errorf("export %s of %s: %w", child.Name, parentID, err)
		}
		childCount += len(records)

		sanitize.PlaceholdMarketplaceID(child, out.Meta.MarketplaceID, records)
		records = sanitize.Transform(child, records)
		sanitize.Stamp(records, child.ParentRefField, parentID)
		e.add(out, child.Name, records)

		if grandchild == nil {
			continue
		}
		for _, variant := range records {
			variantID, ok := variant.ID()
			if !ok {
				continue
			}
			n, err := e.extractGrandchildren(ctx, out, grandchild, parentID, variantID)
			if err != nil {
				return err
			}
			grandchildCount += n
		}
	}

	e.reporter.Report(fmt.Sprintf("Found %d %s", childCount, child.Name), logging.SeverityInfo)
	if grandchild != nil {
		e.reporter.Report(fmt.Sprintf("Found %d %s", grandchildCount, grandchild.Name), logging.SeverityInfo)
	}
	return nil
}

func (e *Extractor) extractGrandchildren(ctx context.Context, out *snapshot.Marketplace, res *catalog.Resource, productID, variantID string) (int, error) {
	records, err := e.lister.ListAll(ctx, res, productID, variantID)
	if err != nil {
		return 0, fmt.Errorf("export %s of %s/%s: %w", res.Name, productID, variantID, err)
	}

	sanitize.PlaceholdMarketplaceID(res, out.Meta.MarketplaceID, records)
	sanitize.Stamp(records, catalog.ProductIDField, productID)
	sanitize.Stamp(records, catalog.VariantIDField, variantID)
	e.add(out, res.Name, records)
	return len(records), nil
}

func (e *Extractor) add(out *snapshot.Marketplace, resource string, records []*record.Record) {
	out.AddRecords(resource, records)
	exportRecordsTotal.WithLabelValues(resource).Add(float64(len(records)))
}
