package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mkosyakov/autocom-mirror/internal/catalog"
)

// RangeStore persists partition nodes in the vehicle_ranges table.
// It implements catalog.RangeStore.
type RangeStore struct {
	db DB
}

// NewRangeStore builds a RangeStore on the given pool.
func NewRangeStore(db DB) *RangeStore {
	return &RangeStore{db: db}
}

const insertRangeSQL = `
INSERT INTO vehicle_ranges (parent_id, year_min, year_max, price_min, price_max, count)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (year_min, year_max, price_min, price_max) DO NOTHING
RETURNING id`

// InsertIfAbsent stores a node for key unless one already exists. The
// unique index on the 4-tuple makes concurrent duplicates impossible; on
// conflict the existing row is returned unchanged.
func (s *RangeStore) InsertIfAbsent(ctx context.Context, key catalog.RangeKey, parentID *int64, count int) (catalog.RangeNode, bool, error) {
	var id int64
	err := s.db.QueryRow(ctx, insertRangeSQL,
		parentID, key.YearMin, key.YearMax, key.PriceMin, key.PriceMax, count,
	).Scan(&id)
	switch {
	case err == nil:
		return catalog.RangeNode{ID: id, ParentID: parentID, Key: key, Count: count}, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		node, found, err := s.FindByKey(ctx, key)
		if err != nil {
			return catalog.RangeNode{}, false, err
		}
		if !found {
			return catalog.RangeNode{}, false, fmt.Errorf("range %s vanished after conflict", key)
		}
		return node, false, nil
	default:
		return catalog.RangeNode{}, false, fmt.Errorf("insert range: %w", err)
	}
}

const selectRangeSQL = `
SELECT id, parent_id, year_min, year_max, price_min, price_max, count, is_completed, fetched_pages, empty_entries
FROM vehicle_ranges
WHERE year_min = $1 AND year_max = $2 AND price_min = $3 AND price_max = $4`

// FindByKey returns the node stored for key, if any.
func (s *RangeStore) FindByKey(ctx context.Context, key catalog.RangeKey) (catalog.RangeNode, bool, error) {
	var node catalog.RangeNode
	err := s.db.QueryRow(ctx, selectRangeSQL,
		key.YearMin, key.YearMax, key.PriceMin, key.PriceMax,
	).Scan(
		&node.ID, &node.ParentID,
		&node.Key.YearMin, &node.Key.YearMax, &node.Key.PriceMin, &node.Key.PriceMax,
		&node.Count, &node.IsCompleted, &node.FetchedPages, &node.EmptyEntries,
	)
	switch {
	case err == nil:
		return node, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return catalog.RangeNode{}, false, nil
	default:
		return catalog.RangeNode{}, false, fmt.Errorf("select range: %w", err)
	}
}

// MarkCompleted records that paging of a leaf finished.
func (s *RangeStore) MarkCompleted(ctx context.Context, id int64, fetchedPages, emptyEntries int) error {
	_, err := s.db.Exec(ctx,
		`UPDATE vehicle_ranges SET is_completed = TRUE, fetched_pages = $2, empty_entries = $3 WHERE id = $1`,
		id, fetchedPages, emptyEntries,
	)
	if err != nil {
		return fmt.Errorf("mark range completed: %w", err)
	}
	return nil
}

// CountNodes returns the number of stored partition nodes.
func (s *RangeStore) CountNodes(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM vehicle_ranges`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ranges: %w", err)
	}
	return n, nil
}

const listFetchableSQL = `
SELECT id, parent_id, year_min, year_max, price_min, price_max, count, is_completed, fetched_pages, empty_entries
FROM vehicle_ranges
WHERE count > 0 AND count < $1 AND NOT is_completed
ORDER BY id`

// ListFetchable returns incomplete leaves with 0 < count < threshold.
func (s *RangeStore) ListFetchable(ctx context.Context, threshold int) ([]catalog.RangeNode, error) {
	return s.listNodes(ctx, listFetchableSQL, threshold)
}

const listPriceSplitSQL = `
SELECT id, parent_id, year_min, year_max, price_min, price_max, count, is_completed, fetched_pages, empty_entries
FROM vehicle_ranges
WHERE year_min = year_max AND count >= $1 AND NOT is_completed
ORDER BY id`

// ListPriceSplitCandidates returns nodes whose year span collapsed with the
// count still at or above threshold.
func (s *RangeStore) ListPriceSplitCandidates(ctx context.Context, threshold int) ([]catalog.RangeNode, error) {
	return s.listNodes(ctx, listPriceSplitSQL, threshold)
}

func (s *RangeStore) listNodes(ctx context.Context, query string, threshold int) ([]catalog.RangeNode, error) {
	rows, err := s.db.Query(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("list ranges: %w", err)
	}
	defer rows.Close()

	var nodes []catalog.RangeNode
	for rows.Next() {
		var node catalog.RangeNode
		if err := rows.Scan(
			&node.ID, &node.ParentID,
			&node.Key.YearMin, &node.Key.YearMax, &node.Key.PriceMin, &node.Key.PriceMax,
			&node.Count, &node.IsCompleted, &node.FetchedPages, &node.EmptyEntries,
		); err != nil {
			return nil, fmt.Errorf("scan range: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ranges: %w", err)
	}
	return nodes, nil
}

// Clear drops all partition nodes so a fresh import can rebuild the tree.
func (s *RangeStore) Clear(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `TRUNCATE vehicle_ranges RESTART IDENTITY CASCADE`); err != nil {
		return fmt.Errorf("clear ranges: %w", err)
	}
	return nil
}
