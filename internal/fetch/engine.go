// Package fetch implements the bounded-concurrency batch engine around the
// search client. A batch is a synchronous barrier: every request is issued
// concurrently, the call blocks until all of them finish, and results are
// returned in submission order.
package fetch

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mkosyakov/autocom-mirror/internal/catalog"
	"github.com/mkosyakov/autocom-mirror/internal/metrics"
)

// Engine runs batches of remote queries. It implements catalog.BatchFetcher.
type Engine struct {
	client catalog.SearchClient
	logger *zap.Logger
}

// NewEngine builds an Engine on top of a search client.
func NewEngine(client catalog.SearchClient, logger *zap.Logger) *Engine {
	return &Engine{client: client, logger: logger}
}

// Count issues a single count probe.
func (e *Engine) Count(ctx context.Context, filter catalog.Filter) (int, error) {
	count, err := e.client.Count(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count probe: %w", err)
	}
	metrics.RangeProbed()
	return count, nil
}

// CountPair issues the left/right count probes of one partitioner step
// concurrently and waits for both.
func (e *Engine) CountPair(ctx context.Context, left, right catalog.Filter) (int, int, error) {
	var (
		wg     sync.WaitGroup
		counts [2]int
		errs   [2]error
	)
	for i, filter := range []catalog.Filter{left, right} {
		wg.Add(1)
		go func(i int, filter catalog.Filter) {
			defer wg.Done()
			counts[i], errs[i] = e.client.Count(ctx, filter)
		}(i, filter)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return 0, 0, fmt.Errorf("count probe %d: %w", i, err)
		}
	}
	metrics.RangeProbed()
	metrics.RangeProbed()
	return counts[0], counts[1], nil
}

// FetchPages issues all filters concurrently and returns the decoded pages
// in submission order. The caller bounds len(filters) by the configured
// concurrency width.
func (e *Engine) FetchPages(ctx context.Context, filters []catalog.Filter) ([]catalog.Page, error) {
	if len(filters) == 0 {
		return nil, nil
	}

	pages := make([]catalog.Page, len(filters))
	errs := make([]error, len(filters))

	var wg sync.WaitGroup
	for i, filter := range filters {
		wg.Add(1)
		go func(i int, filter catalog.Filter) {
			defer wg.Done()
			pages[i], errs[i] = e.client.Page(ctx, filter)
		}(i, filter)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", filters[i].Page, err)
		}
	}
	for _, page := range pages {
		metrics.PageFetched(page.Empty)
	}
	e.logger.Debug("batch fetched", zap.Int("pages", len(pages)))
	return pages, nil
}
