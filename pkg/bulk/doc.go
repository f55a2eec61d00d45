// Package bulk turns a paginated list endpoint into a complete record set.
//
// Every page request is admitted by the shared ratelimit.Scheduler, so a
// resource with many pages cannot starve other resources of request slots.
// A failed page fails the whole ListAll call; no partially listed resource
// is ever returned.
//
// Example usage:
//
//	fetcher := bulk.NewFetcher(apiClient, scheduler, bulk.DefaultConfig(), logger)
//	products, err := fetcher.ListAll(ctx, graph.Find(catalog.Products))
//	variants, err := fetcher.ListAll(ctx, graph.Find(catalog.Variants), productID)
//
// Retries are opt-in: wrap the fetcher with NewRetrying to repeat a whole
// ListAll call on transient failures. Each attempt re-enters the scheduler
// page by page.
package bulk
