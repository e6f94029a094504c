package raster

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/demsinks/internal/fsutil"
)

const sampleASC = `ncols 3
NROWS 2
xllcenter 100.5
yllcenter 200.5
cellsize 1
NODATA_value -9999
1 2 3
4 -9999
6
`

func TestReadASCII(t *testing.T) {
	g, err := ReadASCII(strings.NewReader(sampleASC))
	require.NoError(t, err)

	assert.Equal(t, 2, g.Rows)
	assert.Equal(t, 3, g.Cols)
	assert.Equal(t, -9999.0, g.NoData)
	assert.Equal(t, 1.0, g.Resolution)
	assert.Equal(t, 100.0, g.Georef.XLLCorner)
	assert.Equal(t, 200.0, g.Georef.YLLCorner)
	if diff := cmp.Diff([]float64{1, 2, 3, 4, -9999, 6}, g.Data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestReadASCII_Malformed(t *testing.T) {
	cases := map[string]string{
		"too few values":   "ncols 2\nnrows 2\ncellsize 1\nNODATA_value 0\n1 2 3\n",
		"too many values":  "ncols 1\nnrows 1\ncellsize 1\nNODATA_value 0\n1 2\n",
		"bad value":        "ncols 1\nnrows 1\ncellsize 1\nNODATA_value 0\nx\n",
		"no cellsize":      "ncols 1\nnrows 1\nNODATA_value 0\n1\n",
		"bad header":       "ncols two\n",
		"missing nrows":    "ncols 1\ncellsize 1\nNODATA_value 0\n1\n",
		"fractional ncols": "ncols 1.5\nnrows 1\ncellsize 1\nNODATA_value 0\n1\n",
		"negative nrows":   "ncols 1\nnrows -2\ncellsize 1\nNODATA_value 0\n1\n",
		"NaN ncols":        "ncols NaN\nnrows 1\ncellsize 1\nNODATA_value 0\n1\n",
		"huge dimension":   "ncols 1e300\nnrows 1\ncellsize 1\nNODATA_value 0\n1\n",
		"overflowing size": "ncols 3037000500\nnrows 3037000500\ncellsize 1\nNODATA_value -9999\n1 2 3\n",
		"NaN cellsize":     "ncols 1\nnrows 1\ncellsize NaN\nNODATA_value 0\n1\n",
		"too many cells":   "ncols 65536\nnrows 65536\ncellsize 1\nNODATA_value -9999\n1\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadASCII(strings.NewReader(in))
			assert.True(t, errors.Is(err, ErrMalformedASCII), "got %v", err)
		})
	}
}

func TestReadASCII_MissingNoData(t *testing.T) {
	g, err := ReadASCII(strings.NewReader("ncols 1\nnrows 1\ncellsize 1\n5\n"))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(g.NoData))
	assert.ErrorIs(t, g.Validate(), ErrNoDataSentinel)
}

func TestWriteReadASCII_RoundTrip(t *testing.T) {
	g, _ := FromRows([][]float64{{1.25, -9999}, {3, 0.1}}, -9999, 0.5)
	g.Georef = Georef{XLLCorner: 10, YLLCorner: 20, CellSize: 0.5}

	var buf bytes.Buffer
	require.NoError(t, WriteASCII(&buf, g))
	assert.True(t, strings.HasPrefix(buf.String(), "ncols 2\nnrows 2\nxllcorner 10\nyllcorner 20\ncellsize 0.5\nNODATA_value -9999\n"))

	back, err := ReadASCII(&buf)
	require.NoError(t, err)
	assert.Equal(t, g.Data, back.Data)
	assert.Equal(t, g.Georef, back.Georef)
	assert.Equal(t, g.NoData, back.NoData)
}

func TestSaveLoadASCII_WithProjection(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.MkdirAll("out", 0o755))

	g := New(2, 2, -1, 2, 7)
	g.Georef.Projection = `PROJCS["NAD83 / UTM zone 15N"]`
	require.NoError(t, SaveASCII(fsys, "out/dem.asc", g))
	assert.True(t, fsys.Exists("out/dem.prj"))

	back, err := LoadASCII(fsys, "out/dem.asc")
	require.NoError(t, err)
	assert.Equal(t, g.Georef.Projection, back.Georef.Projection)
	assert.Equal(t, g.Data, back.Data)

	_, err = LoadASCII(fsys, "out/missing.asc")
	assert.Error(t, err)
}
