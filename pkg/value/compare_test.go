package value

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqualNumericCrossKind(t *testing.T) {
	assert.True(t, Equal(int64(2), float64(2)))
	assert.True(t, Equal(float64(2), int64(2)))
	assert.False(t, Equal(int64(2), float64(2.5)))
	assert.False(t, Equal(int64(2), "2"))
}

func TestEqualStructures(t *testing.T) {
	assert.True(t, Equal([]any{int64(1), "a"}, []any{int64(1), "a"}))
	assert.False(t, Equal([]any{int64(1)}, []any{int64(1), int64(2)}))
	assert.True(t, Equal(map[string]any{"k": nil}, map[string]any{"k": nil}))
	assert.False(t, Equal(map[string]any{"k": int64(1)}, map[string]any{"j": int64(1)}))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(nil, int64(0)))
}

func TestCompareWithinKinds(t *testing.T) {
	assert.Negative(t, Compare(false, true))
	assert.Negative(t, Compare(int64(1), int64(2)))
	assert.Negative(t, Compare(int64(1), 1.5))
	assert.Zero(t, Compare(int64(2), float64(2)))
	assert.Negative(t, Compare("apple", "banana"))
	assert.Negative(t, Compare([]any{int64(1)}, []any{int64(1), int64(0)}))
	assert.Positive(t, Compare([]any{int64(2)}, []any{int64(1), int64(9)}))
}

func TestCompareAcrossKindsAndNullLast(t *testing.T) {
	ordered := []any{true, int64(5), "s", Date{Year: 2024, Month: 1, Day: 1}, []any{}, map[string]any{}, nil}
	for i := 0; i < len(ordered)-1; i++ {
		assert.Negative(t, Compare(ordered[i], ordered[i+1]), "index %d", i)
	}
}

func TestCompareNaNSortsAfterNumbers(t *testing.T) {
	assert.Positive(t, Compare(math.NaN(), float64(1e300)))
	assert.Zero(t, Compare(math.NaN(), math.NaN()))
	assert.Negative(t, Compare(math.NaN(), "string"))
}

func TestCompareIsStableSortKey(t *testing.T) {
	vals := []any{nil, "b", int64(3), true, "a", 1.5, nil, int64(2)}
	sort.SliceStable(vals, func(i, j int) bool { return Compare(vals[i], vals[j]) < 0 })
	assert.Equal(t, []any{true, 1.5, int64(2), int64(3), "a", "b", nil, nil}, vals)
}

func TestCompareTemporals(t *testing.T) {
	d1, err := ParseDate("2024-01-01")
	require.NoError(t, err)
	d2, err := ParseDate("2024-02-01")
	require.NoError(t, err)
	assert.Negative(t, Compare(d1, d2))

	short, err := ParseDuration("PT1H")
	require.NoError(t, err)
	long, err := ParseDuration("P1D")
	require.NoError(t, err)
	assert.Negative(t, Compare(short, long))
}
