package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitYearHalvesSpan(t *testing.T) {
	t.Parallel()

	for min := 1900; min < 1910; min++ {
		for max := min + 1; max < 1920; max++ {
			key := RangeKey{YearMin: min, YearMax: max, PriceMin: 0, PriceMax: 1000}
			left, right := key.SplitYear()

			require.LessOrEqual(t, left.YearMin, left.YearMax)
			require.LessOrEqual(t, right.YearMin, right.YearMax)
			assert.Equal(t, min, left.YearMin)
			assert.Equal(t, max, right.YearMax)
			assert.Equal(t, left.YearMax+1, right.YearMin, "halves must be adjacent")

			parentSpan := max - min + 1
			leftSpan := left.YearMax - left.YearMin + 1
			rightSpan := right.YearMax - right.YearMin + 1
			assert.Equal(t, parentSpan, leftSpan+rightSpan)
			assert.GreaterOrEqual(t, leftSpan, 1)
			assert.GreaterOrEqual(t, rightSpan, 1)

			// Price bounds ride along untouched.
			assert.Equal(t, key.PriceMin, left.PriceMin)
			assert.Equal(t, key.PriceMax, right.PriceMax)
		}
	}
}

func TestSplitPriceHalvesSpan(t *testing.T) {
	t.Parallel()

	key := RangeKey{YearMin: 2002, YearMax: 2002, PriceMin: 0, PriceMax: 500000000}
	left, right := key.SplitPrice()

	assert.Equal(t, int64(0), left.PriceMin)
	assert.Equal(t, int64(250000000), left.PriceMax)
	assert.Equal(t, int64(250000001), right.PriceMin)
	assert.Equal(t, int64(500000000), right.PriceMax)
	assert.Equal(t, 2002, left.YearMin)
	assert.Equal(t, 2002, right.YearMax)
}

func TestCanSplit(t *testing.T) {
	t.Parallel()

	key := RangeKey{YearMin: 2002, YearMax: 2002, PriceMin: 5, PriceMax: 5}
	assert.False(t, key.CanSplitYear())
	assert.False(t, key.CanSplitPrice())

	key.YearMax = 2003
	assert.True(t, key.CanSplitYear())
	key.PriceMax = 6
	assert.True(t, key.CanSplitPrice())
}

func TestRangeFilter(t *testing.T) {
	t.Parallel()

	key := RangeKey{YearMin: 2000, YearMax: 2001, PriceMin: 0, PriceMax: 9999}
	f := RangeFilter(key, 3, 250)
	assert.Equal(t, 3, f.Page)
	assert.Equal(t, 250, f.PageSize)
	assert.Equal(t, key.YearMin, f.YearMin)
	assert.Equal(t, key.YearMax, f.YearMax)
	assert.Equal(t, key.PriceMin, f.PriceMin)
	assert.Equal(t, key.PriceMax, f.PriceMax)
	assert.Empty(t, f.Sort)
}
