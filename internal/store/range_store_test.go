package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkosyakov/autocom-mirror/internal/catalog"
)

var testKey = catalog.RangeKey{YearMin: 2000, YearMax: 2001, PriceMin: 0, PriceMax: 500000000}

func TestInsertIfAbsentCreates(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO vehicle_ranges`).
		WithArgs((*int64)(nil), testKey.YearMin, testKey.YearMax, testKey.PriceMin, testKey.PriceMax, 4000).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	s := NewRangeStore(mock)
	node, created, err := s.InsertIfAbsent(context.Background(), testKey, nil, 4000)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(7), node.ID)
	assert.Equal(t, testKey, node.Key)
	assert.Equal(t, 4000, node.Count)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIfAbsentReturnsExistingOnConflict(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// ON CONFLICT DO NOTHING yields no row, then the existing row is read.
	mock.ExpectQuery(`INSERT INTO vehicle_ranges`).
		WithArgs((*int64)(nil), testKey.YearMin, testKey.YearMax, testKey.PriceMin, testKey.PriceMax, 9999).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT .+ FROM vehicle_ranges`).
		WithArgs(testKey.YearMin, testKey.YearMax, testKey.PriceMin, testKey.PriceMax).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "parent_id", "year_min", "year_max", "price_min", "price_max",
			"count", "is_completed", "fetched_pages", "empty_entries",
		}).AddRow(int64(3), nil, testKey.YearMin, testKey.YearMax, testKey.PriceMin, testKey.PriceMax, 4000, false, 0, 0))

	s := NewRangeStore(mock)
	node, created, err := s.InsertIfAbsent(context.Background(), testKey, nil, 9999)
	require.NoError(t, err)
	assert.False(t, created, "re-probing a stored 4-tuple must not create a row")
	assert.Equal(t, int64(3), node.ID)
	assert.Equal(t, 4000, node.Count, "the stored count wins over the new probe")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByKeyMiss(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT .+ FROM vehicle_ranges`).
		WithArgs(testKey.YearMin, testKey.YearMax, testKey.PriceMin, testKey.PriceMax).
		WillReturnError(pgx.ErrNoRows)

	s := NewRangeStore(mock)
	_, found, err := s.FindByKey(context.Background(), testKey)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCompleted(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE vehicle_ranges SET is_completed = TRUE`).
		WithArgs(int64(5), 16, 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	s := NewRangeStore(mock)
	require.NoError(t, s.MarkCompleted(context.Background(), 5, 16, 2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListFetchable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	parent := int64(1)
	mock.ExpectQuery(`SELECT .+ FROM vehicle_ranges\s+WHERE count > 0 AND count < \$1`).
		WithArgs(10000).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "parent_id", "year_min", "year_max", "price_min", "price_max",
			"count", "is_completed", "fetched_pages", "empty_entries",
		}).
			AddRow(int64(2), &parent, 2000, 2001, int64(0), int64(500000000), 4000, false, 0, 0).
			AddRow(int64(4), &parent, 2003, 2003, int64(0), int64(500000000), 1000, false, 0, 0))

	s := NewRangeStore(mock)
	nodes, err := s.ListFetchable(context.Background(), 10000)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, 4000, nodes[0].Count)
	assert.Equal(t, 2003, nodes[1].Key.YearMin)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClear(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`TRUNCATE vehicle_ranges`).
		WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))

	s := NewRangeStore(mock)
	require.NoError(t, s.Clear(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
