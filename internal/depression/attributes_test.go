package depression

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/demsinks/internal/raster"
	"github.com/banshee-data/demsinks/internal/testutil"
)

// extractAll runs fill, depth, label and extract the way the pipeline does.
func extractAll(t *testing.T, g *raster.Grid, minSize int) (*LabelGrid, []Depression) {
	t.Helper()
	filled, err := Fill(g)
	require.NoError(t, err)
	depth, err := DepthField(g, filled)
	require.NoError(t, err)
	labels, _, err := Label(depth, minSize)
	require.NoError(t, err)
	deps, err := Extract(labels, g, filled, g.Resolution)
	require.NoError(t, err)
	return labels, deps
}

func TestExtract_FlatGrid(t *testing.T) {
	labels, deps := extractAll(t, testutil.MustGrid(t, testutil.Flat(5, 5, 10), 1), 0)
	assert.Zero(t, labels.Count)
	assert.Empty(t, deps)
}

func TestExtract_Bowl(t *testing.T) {
	_, deps := extractAll(t, testutil.MustGrid(t, testutil.Bowl(), 2), 0)
	want := []Depression{{
		ID:         1,
		PixelCount: 1,
		Area:       4,
		Volume:     16,
		MeanDepth:  4,
		MaxDepth:   4,
		MinElev:    1,
		MaxElev:    5,
	}}
	if diff := cmp.Diff(want, deps); diff != "" {
		t.Errorf("depressions mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_TwoPits(t *testing.T) {
	g := testutil.MustGrid(t, testutil.TwoPits(), 1)

	_, deps := extractAll(t, g, 0)
	require.Len(t, deps, 2)
	assert.Equal(t, 1, deps[0].ID)
	assert.Equal(t, 2.0, deps[0].MaxDepth)
	assert.Equal(t, 8.0, deps[0].MinElev)
	assert.Equal(t, 2, deps[1].ID)
	assert.Equal(t, 3.0, deps[1].MaxDepth)
	assert.Equal(t, 10.0, deps[1].MaxElev)

	for _, minSize := range []int{1, 2} {
		labels, deps := extractAll(t, g, minSize)
		assert.Zero(t, labels.Count, "minSize %d", minSize)
		assert.Empty(t, deps)
	}
}

func TestExtract_RawOnlySurface(t *testing.T) {
	g := testutil.MustGrid(t, testutil.Bowl(), 1)
	lg := &LabelGrid{Rows: 5, Cols: 5, Labels: make([]int32, 25), Count: 1}
	lg.Labels[g.Idx(2, 2)] = 1

	deps, err := Extract(lg, g, nil, 1)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Zero(t, deps[0].MaxDepth, "single pixel without a surface has no depth")
	assert.Zero(t, deps[0].Volume)
}

func TestExtract_Consistency(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		g := randomDEM(t, seed, 25, 25)
		labels, deps := extractAll(t, g, 0)
		require.Len(t, deps, labels.Count)

		total := 0
		for i, d := range deps {
			assert.Equal(t, i+1, d.ID)
			assert.InDelta(t, d.MaxElev-d.MinElev, d.MaxDepth, 1e-9)
			assert.GreaterOrEqual(t, d.MaxDepth+1e-9, d.MeanDepth)
			assert.GreaterOrEqual(t, d.MeanDepth, 0.0)
			assert.InDelta(t, d.MeanDepth*d.Area, d.Volume, 1e-9)
			total += d.PixelCount
		}
		labeled := 0
		for _, id := range labels.Labels {
			if id > 0 {
				labeled++
			}
		}
		assert.Equal(t, labeled, total)
	}
}

func TestExtract_Errors(t *testing.T) {
	g := testutil.MustGrid(t, testutil.Bowl(), 1)
	lg := &LabelGrid{Rows: 5, Cols: 5, Labels: make([]int32, 25)}

	_, err := Extract(&LabelGrid{Rows: 4, Cols: 5, Labels: make([]int32, 20)}, g, nil, 1)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Extract(lg, g, raster.New(5, 4, 0, 1, 0), 1)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Extract(lg, g, nil, 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	lg.Count = 1
	_, err = Extract(lg, g, nil, 1)
	assert.ErrorIs(t, err, ErrInconsistent, "label 1 has no pixels")
}

func TestExtract_OrderedByID(t *testing.T) {
	_, deps := extractAll(t, testutil.MustGrid(t, testutil.TwoPits(), 1), 0)
	ids := make([]int, len(deps))
	for i, d := range deps {
		ids[i] = d.ID
	}
	assert.True(t, cmp.Equal([]int{1, 2}, ids, cmpopts.EquateEmpty()))
}
