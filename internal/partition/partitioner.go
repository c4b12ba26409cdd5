// Package partition discovers a partition of the year/price listing space
// into slices small enough to page through completely.
//
// The full domain is the root of a binary tree. A node whose observed count
// is at or above the paging threshold is split in half along the year axis;
// once a node's year span has collapsed, splitting switches to the price
// axis. Every probed range is persisted before its children, and re-probing
// an already-stored range answers from the store instead of the network, so
// an interrupted run can resume without duplicate work.
package partition

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mkosyakov/autocom-mirror/internal/catalog"
	"github.com/mkosyakov/autocom-mirror/internal/metrics"
)

// Partitioner subdivides ranges until every leaf is below threshold.
type Partitioner struct {
	store     catalog.RangeStore
	fetcher   catalog.BatchFetcher
	threshold int
	pageSize  int
	logger    *zap.Logger
}

// New builds a Partitioner.
func New(store catalog.RangeStore, fetcher catalog.BatchFetcher, threshold, pageSize int, logger *zap.Logger) *Partitioner {
	return &Partitioner{
		store:     store,
		fetcher:   fetcher,
		threshold: threshold,
		pageSize:  pageSize,
		logger:    logger,
	}
}

// task is one stored node whose range still needs subdividing.
type task struct {
	key catalog.RangeKey
	id  int64
}

// Resolve probes and persists the root domain, then subdivides it until
// every branch falls below the threshold or cannot be split further.
func (p *Partitioner) Resolve(ctx context.Context, domain catalog.RangeKey) error {
	root, found, err := p.store.FindByKey(ctx, domain)
	if err != nil {
		return fmt.Errorf("find root range: %w", err)
	}
	if !found {
		count, err := p.fetcher.Count(ctx, catalog.RangeFilter(domain, 1, p.pageSize))
		if err != nil {
			return fmt.Errorf("probe root range: %w", err)
		}
		root, _, err = p.store.InsertIfAbsent(ctx, domain, nil, count)
		if err != nil {
			return fmt.Errorf("store root range: %w", err)
		}
	}

	p.logger.Info("partitioning domain",
		zap.String("range", domain.String()),
		zap.Int("count", root.Count),
	)

	if root.Count < p.threshold {
		return nil
	}
	return p.expand(ctx, []task{{key: domain, id: root.ID}})
}

// Tighten re-splits stored nodes whose year span has collapsed but whose
// count is still at or above threshold, purely along the price axis.
func (p *Partitioner) Tighten(ctx context.Context) error {
	nodes, err := p.store.ListPriceSplitCandidates(ctx, p.threshold)
	if err != nil {
		return fmt.Errorf("list price split candidates: %w", err)
	}

	var queue []task
	for _, node := range nodes {
		if !node.Key.CanSplitPrice() {
			p.logger.Warn("range exhausted on both axes",
				zap.String("range", node.Key.String()),
				zap.Int("count", node.Count),
			)
			continue
		}
		queue = append(queue, task{key: node.Key, id: node.ID})
	}
	return p.expand(ctx, queue)
}

func (p *Partitioner) expand(ctx context.Context, queue []task) error {
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := queue[0]
		queue = queue[1:]

		var left, right catalog.RangeKey
		var axis string
		switch {
		case t.key.CanSplitYear():
			left, right = t.key.SplitYear()
			axis = "year"
		case t.key.CanSplitPrice():
			left, right = t.key.SplitPrice()
			axis = "price"
		default:
			// Both axes collapsed with the count still at threshold: a
			// pathological slice. It stays stored and is excluded from
			// paging by the orchestrator's fetchable rule.
			p.logger.Warn("range exhausted on both axes",
				zap.String("range", t.key.String()),
			)
			continue
		}
		metrics.RangeSplit(axis)

		children, err := p.resolvePair(ctx, left, right, t.id)
		if err != nil {
			return err
		}
		for _, child := range children {
			if child.Count >= p.threshold {
				queue = append(queue, task{key: child.Key, id: child.ID})
			}
		}
	}
	return nil
}

// resolvePair materializes the two halves of a split. Halves already in the
// store answer from their stored rows; only missing halves are probed.
// Structurally equal halves collapse into a single stored node.
func (p *Partitioner) resolvePair(ctx context.Context, left, right catalog.RangeKey, parentID int64) ([]catalog.RangeNode, error) {
	if left == right {
		node, err := p.resolveOne(ctx, left, parentID)
		if err != nil {
			return nil, err
		}
		return []catalog.RangeNode{node}, nil
	}

	lnode, lfound, err := p.store.FindByKey(ctx, left)
	if err != nil {
		return nil, fmt.Errorf("find range %s: %w", left, err)
	}
	rnode, rfound, err := p.store.FindByKey(ctx, right)
	if err != nil {
		return nil, fmt.Errorf("find range %s: %w", right, err)
	}

	switch {
	case lfound && rfound:
		return []catalog.RangeNode{lnode, rnode}, nil
	case lfound:
		rnode, err = p.resolveOne(ctx, right, parentID)
		if err != nil {
			return nil, err
		}
		return []catalog.RangeNode{lnode, rnode}, nil
	case rfound:
		lnode, err = p.resolveOne(ctx, left, parentID)
		if err != nil {
			return nil, err
		}
		return []catalog.RangeNode{lnode, rnode}, nil
	}

	lcount, rcount, err := p.fetcher.CountPair(ctx,
		catalog.RangeFilter(left, 1, p.pageSize),
		catalog.RangeFilter(right, 1, p.pageSize),
	)
	if err != nil {
		return nil, fmt.Errorf("probe pair %s / %s: %w", left, right, err)
	}

	lnode, _, err = p.store.InsertIfAbsent(ctx, left, &parentID, lcount)
	if err != nil {
		return nil, fmt.Errorf("store range %s: %w", left, err)
	}
	rnode, _, err = p.store.InsertIfAbsent(ctx, right, &parentID, rcount)
	if err != nil {
		return nil, fmt.Errorf("store range %s: %w", right, err)
	}

	p.logger.Debug("pair probed",
		zap.String("left", left.String()),
		zap.Int("left_count", lcount),
		zap.String("right", right.String()),
		zap.Int("right_count", rcount),
	)
	return []catalog.RangeNode{lnode, rnode}, nil
}

func (p *Partitioner) resolveOne(ctx context.Context, key catalog.RangeKey, parentID int64) (catalog.RangeNode, error) {
	node, found, err := p.store.FindByKey(ctx, key)
	if err != nil {
		return catalog.RangeNode{}, fmt.Errorf("find range %s: %w", key, err)
	}
	if found {
		return node, nil
	}
	count, err := p.fetcher.Count(ctx, catalog.RangeFilter(key, 1, p.pageSize))
	if err != nil {
		return catalog.RangeNode{}, fmt.Errorf("probe range %s: %w", key, err)
	}
	node, _, err = p.store.InsertIfAbsent(ctx, key, &parentID, count)
	if err != nil {
		return catalog.RangeNode{}, fmt.Errorf("store range %s: %w", key, err)
	}
	return node, nil
}
