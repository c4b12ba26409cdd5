// Package syncer coordinates the two mirror workflows: the fresh import
// that rebuilds the catalog from a resolved partition tree, and the
// incremental sync that merges the newest listings into an existing mirror.
package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkosyakov/autocom-mirror/internal/catalog"
	"github.com/mkosyakov/autocom-mirror/internal/ingest"
)

// ErrRangesNotEmpty is returned by FreshImport when partition nodes are
// already stored. A fresh import needs a reset first; it never silently
// reuses or drops a previous tree.
var ErrRangesNotEmpty = errors.New("stored ranges present, reset before fresh import")

// partitioner is the slice of partition.Partitioner the orchestrator uses.
type partitioner interface {
	Resolve(ctx context.Context, domain catalog.RangeKey) error
	Tighten(ctx context.Context) error
}

// ingestor is the slice of ingest.Ingestor the orchestrator uses.
type ingestor interface {
	IngestPages(ctx context.Context, pages []catalog.Page, mode ingest.Mode) (ingest.Stats, error)
}

// Options bounds a run.
type Options struct {
	Domain    catalog.RangeKey
	Threshold int
	PageSize  int
	Threads   int
}

// Orchestrator drives full runs end to end.
type Orchestrator struct {
	ranges  catalog.RangeStore
	cat     catalog.CatalogStore
	fetcher catalog.BatchFetcher
	parts   partitioner
	ing     ingestor
	opts    Options
	logger  *zap.Logger
}

// New builds an Orchestrator.
func New(ranges catalog.RangeStore, cat catalog.CatalogStore, fetcher catalog.BatchFetcher, parts partitioner, ing ingestor, opts Options, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		ranges:  ranges,
		cat:     cat,
		fetcher: fetcher,
		parts:   parts,
		ing:     ing,
		opts:    opts,
		logger:  logger,
	}
}

// FreshImport rebuilds the whole catalog: it resolves the partition tree
// over the configured domain, truncates the listing tables and pages
// through every fetchable leaf. It refuses to run over stored ranges.
func (o *Orchestrator) FreshImport(ctx context.Context) error {
	logger := o.runLogger()

	n, err := o.ranges.CountNodes(ctx)
	if err != nil {
		return fmt.Errorf("count ranges: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %d nodes", ErrRangesNotEmpty, n)
	}

	logger.Info("resolving partition tree", zap.String("domain", o.opts.Domain.String()))
	if err := o.parts.Resolve(ctx, o.opts.Domain); err != nil {
		return fmt.Errorf("resolve ranges: %w", err)
	}
	if err := o.parts.Tighten(ctx); err != nil {
		return fmt.Errorf("tighten ranges: %w", err)
	}

	if err := o.cat.TruncateCatalog(ctx); err != nil {
		return err
	}

	leaves, err := o.ranges.ListFetchable(ctx, o.opts.Threshold)
	if err != nil {
		return fmt.Errorf("list fetchable ranges: %w", err)
	}
	logger.Info("fetching leaves", zap.Int("leaves", len(leaves)))

	var total ingest.Stats
	for _, leaf := range leaves {
		stats, err := o.fetchLeaf(ctx, leaf, logger)
		if err != nil {
			return err
		}
		total.VehiclesCreated += stats.VehiclesCreated
		total.Duplicates += stats.Duplicates
	}

	logger.Info("fresh import finished",
		zap.Int("vehicles_created", total.VehiclesCreated),
		zap.Int("duplicates", total.Duplicates),
	)
	return nil
}

// fetchLeaf pages through one leaf range in batches and ingests every page,
// then marks the leaf completed with what it saw.
func (o *Orchestrator) fetchLeaf(ctx context.Context, leaf catalog.RangeNode, logger *zap.Logger) (ingest.Stats, error) {
	var stats ingest.Stats
	pages := pageCount(leaf.Count, o.opts.PageSize)
	logger.Info("fetching range",
		zap.String("range", leaf.Key.String()),
		zap.Int("count", leaf.Count),
		zap.Int("pages", pages),
	)

	emptyPages := 0
	for start := 1; start <= pages; start += o.opts.Threads {
		end := start + o.opts.Threads - 1
		if end > pages {
			end = pages
		}
		filters := make([]catalog.Filter, 0, end-start+1)
		for page := start; page <= end; page++ {
			filters = append(filters, catalog.RangeFilter(leaf.Key, page, o.opts.PageSize))
		}

		batch, err := o.fetcher.FetchPages(ctx, filters)
		if err != nil {
			return stats, fmt.Errorf("fetch range %s: %w", leaf.Key, err)
		}
		for _, p := range batch {
			if p.Empty {
				emptyPages++
			}
		}

		batchStats, err := o.ing.IngestPages(ctx, batch, ingest.FullImport)
		if err != nil {
			return stats, err
		}
		stats.VehiclesCreated += batchStats.VehiclesCreated
		stats.Duplicates += batchStats.Duplicates
	}

	if err := o.ranges.MarkCompleted(ctx, leaf.ID, pages, emptyPages); err != nil {
		return stats, err
	}
	return stats, nil
}

// IncrementalSync pages the whole domain newest-first, up to one
// threshold's worth of listings, merging each batch into the catalog as it
// lands. It stops early once a batch comes back entirely empty.
func (o *Orchestrator) IncrementalSync(ctx context.Context) error {
	logger := o.runLogger()

	pages := pageCount(o.opts.Threshold, o.opts.PageSize)
	logger.Info("incremental sync",
		zap.String("domain", o.opts.Domain.String()),
		zap.Int("pages", pages),
	)

	var total ingest.Stats
	for start := 1; start <= pages; start += o.opts.Threads {
		end := start + o.opts.Threads - 1
		if end > pages {
			end = pages
		}
		filters := make([]catalog.Filter, 0, end-start+1)
		for page := start; page <= end; page++ {
			f := catalog.RangeFilter(o.opts.Domain, page, o.opts.PageSize)
			f.Sort = catalog.SortNewestFirst
			filters = append(filters, f)
		}

		batch, err := o.fetcher.FetchPages(ctx, filters)
		if err != nil {
			return fmt.Errorf("fetch newest pages: %w", err)
		}

		allEmpty := true
		for _, p := range batch {
			if !p.Empty {
				allEmpty = false
				break
			}
		}
		if allEmpty {
			break
		}

		stats, err := o.ing.IngestPages(ctx, batch, ingest.IncrementalMerge)
		if err != nil {
			return err
		}
		total.VehiclesCreated += stats.VehiclesCreated
		total.VehiclesUpdated += stats.VehiclesUpdated
	}

	logger.Info("incremental sync finished",
		zap.Int("vehicles_created", total.VehiclesCreated),
		zap.Int("vehicles_updated", total.VehiclesUpdated),
	)
	return nil
}

// Reset drops the partition tree and every listing table, clearing the way
// for the next fresh import.
func (o *Orchestrator) Reset(ctx context.Context) error {
	logger := o.runLogger()
	if err := o.ranges.Clear(ctx); err != nil {
		return err
	}
	if err := o.cat.TruncateCatalog(ctx); err != nil {
		return err
	}
	logger.Info("mirror reset")
	return nil
}

func (o *Orchestrator) runLogger() *zap.Logger {
	return o.logger.With(zap.String("run_id", uuid.NewString()))
}

func pageCount(count, pageSize int) int {
	if count <= 0 {
		return 0
	}
	return (count + pageSize - 1) / pageSize
}
