package discretize

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// #region quantile-tests
func TestQuantiles_LinearInterpolation(t *testing.T) {
	values := []float64{5, 1, 4, 2, 3}

	cuts, err := Quantiles(values, 4)
	require.NoError(t, err)
	// positions 1.0, 2.0, 3.0 on sorted [1 2 3 4 5]
	assert.InDeltaSlice(t, []float64{2, 3, 4}, cuts, 1e-12)

	cuts, err = Quantiles([]float64{0, 10}, 3)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{10.0 / 3, 20.0 / 3}, cuts, 1e-12)

	// input order untouched
	assert.Equal(t, []float64{5, 1, 4, 2, 3}, values)
}

func TestQuantiles_Errors(t *testing.T) {
	_, err := Quantiles([]float64{1, 2}, 1)
	assert.ErrorIs(t, err, ErrBucketCount)

	_, err = Quantiles(nil, 3)
	assert.ErrorIs(t, err, ErrNoData)

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err = Quantiles([]float64{1, 2, bad}, 2)
		assert.ErrorIs(t, err, ErrNonFinite)
	}

	_, err = Discretize([]float64{1, 2, math.Inf(1), math.Inf(1)}, 2)
	assert.ErrorIs(t, err, ErrNonFinite)
}

// #endregion quantile-tests

// #region digitize-tests
func TestDigitize_RightExclusive(t *testing.T) {
	th := []float64{10, 20}

	cases := []struct {
		v    float64
		want int
	}{
		{-5, 0},
		{9.99, 0},
		{10, 1}, // a threshold opens the bucket above it
		{15, 1},
		{20, 2},
		{1e9, 2},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Digitize(c.v, th), "value %v", c.v)
	}
}

// #endregion digitize-tests

// #region discretize-tests
func TestDiscretize_BoundedAndMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	values := make([]float64, 500)
	for i := range values {
		values[i] = rng.NormFloat64()*3 + 20
	}

	for k := 2; k <= 7; k++ {
		res, err := Discretize(values, k)
		require.NoError(t, err)
		require.Len(t, res.Thresholds, k-1)
		require.Len(t, res.Buckets, len(values))

		distinct := map[int]bool{}
		for _, b := range res.Buckets {
			assert.True(t, b >= 0 && b < k, "bucket %d outside 0..%d", b, k-1)
			distinct[b] = true
		}
		assert.LessOrEqual(t, len(distinct), k)

		idx := make([]int, len(values))
		for i := range idx {
			idx[i] = i
		}
		sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })
		for i := 1; i < len(idx); i++ {
			prev, cur := idx[i-1], idx[i]
			if values[prev] < values[cur] {
				assert.LessOrEqual(t, res.Buckets[prev], res.Buckets[cur])
			}
		}
	}
}

func TestDiscretize_Deterministic(t *testing.T) {
	values := []float64{3, 1, 2, 2, 5, 8, 13, 21}
	a, err := Discretize(values, 3)
	require.NoError(t, err)
	b, err := Discretize(values, 3)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDiscretizeColumns(t *testing.T) {
	cols := map[string][]float64{
		"fips":      {1, 2, 3, 4},
		"tmean_w12": {10, 20, 30, 40},
		"ndvi_w20":  {0.1, 0.4, 0.2, 0.3},
	}

	buckets, table, err := DiscretizeColumns(cols, 2, "fips")
	require.NoError(t, err)
	assert.Equal(t, []string{"ndvi_w20", "tmean_w12"}, table.Names())
	assert.NotContains(t, buckets, "fips")
	assert.Equal(t, []int{0, 0, 1, 1}, buckets["tmean_w12"])
	assert.InDeltaSlice(t, []float64{25}, table["tmean_w12"], 1e-12)
	require.NoError(t, table.Validate())
}

func TestDiscretizeColumns_Degenerate(t *testing.T) {
	cols := map[string][]float64{
		"rain_w3": {0, 0, 0, 0, 0, 0, 1},
	}
	_, _, err := DiscretizeColumns(cols, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDegenerateSplit))
	assert.Contains(t, err.Error(), "rain_w3")
}

// #endregion discretize-tests

// #region table-tests
func TestTable_Validate(t *testing.T) {
	assert.NoError(t, Table{"a": {1, 2, 3}}.Validate())
	assert.ErrorIs(t, Table{"a": {}}.Validate(), ErrInvalidThresholds)
	assert.ErrorIs(t, Table{"a": {1, 1}}.Validate(), ErrInvalidThresholds)
	assert.ErrorIs(t, Table{"a": {2, 1}}.Validate(), ErrInvalidThresholds)
	assert.ErrorIs(t, Table{"a": {math.NaN()}}.Validate(), ErrInvalidThresholds)
	assert.ErrorIs(t, Table{"a": {1, math.Inf(1)}}.Validate(), ErrInvalidThresholds)
	assert.ErrorIs(t, Table{"a": {math.Inf(-1), 1}}.Validate(), ErrInvalidThresholds)
}

func TestTable_Buckets(t *testing.T) {
	tbl := Table{"a": {1, 2}}
	assert.Equal(t, 3, tbl.Buckets("a"))
	assert.Equal(t, 0, tbl.Buckets("missing"))
}

func TestTable_ReadWrite(t *testing.T) {
	tbl := Table{"tmean_w12": {10.5, 20.25}, "yield": {1, 2, 3}}

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, tbl))

	got, err := ReadTable(&buf)
	require.NoError(t, err)
	assert.Equal(t, tbl, got)

	_, err = ReadTable(strings.NewReader(`{"x":[3,1]}`))
	assert.ErrorIs(t, err, ErrInvalidThresholds)

	_, err = ReadTable(strings.NewReader(`not json`))
	assert.Error(t, err)
}

// #endregion table-tests

// #region columns-tests
func TestReadColumnsCSV(t *testing.T) {
	in := "fips,tmean_w12,ndvi_w20\n19001,21.5,0.61\n19003,22.0,0.58\n"

	cols, err := ReadColumnsCSV(strings.NewReader(in), "fips")
	require.NoError(t, err)
	assert.NotContains(t, cols, "fips")
	assert.Equal(t, []float64{21.5, 22.0}, cols["tmean_w12"])
	assert.Equal(t, []float64{0.61, 0.58}, cols["ndvi_w20"])
}

func TestReadFrameCSV_KeepsSkipped(t *testing.T) {
	in := "fips,tmean_w12\n019001,21.5\n019003,22.0\n"

	frame, err := ReadFrameCSV(strings.NewReader(in), "fips")
	require.NoError(t, err)
	assert.Equal(t, 2, frame.Rows)
	assert.Equal(t, []string{"019001", "019003"}, frame.Skipped["fips"])
	assert.Equal(t, []float64{21.5, 22.0}, frame.Numeric["tmean_w12"])
}

func TestReadColumnsCSV_BadValue(t *testing.T) {
	in := "tmean_w12\n21.5\nhot\n"
	_, err := ReadColumnsCSV(strings.NewReader(in))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
}

// #endregion columns-tests
