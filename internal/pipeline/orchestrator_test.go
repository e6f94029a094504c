package pipeline

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/demsinks/internal/config"
	"github.com/banshee-data/demsinks/internal/depression"
	"github.com/banshee-data/demsinks/internal/fsutil"
	"github.com/banshee-data/demsinks/internal/monitoring"
	"github.com/banshee-data/demsinks/internal/raster"
	"github.com/banshee-data/demsinks/internal/security"
	"github.com/banshee-data/demsinks/internal/store"
	"github.com/banshee-data/demsinks/internal/testutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

type fakeRecorder struct {
	mu    sync.Mutex
	runs  []*store.Run
	deps  [][]depression.Depression
	nodes []int
}

func (f *fakeRecorder) RecordSinks(_ context.Context, run *store.Run, deps []depression.Depression) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	f.deps = append(f.deps, deps)
	return "sinks-run", nil
}

func (f *fakeRecorder) RecordHierarchy(_ context.Context, run *store.Run, deps []depression.Depression, h *depression.Hierarchy) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	f.deps = append(f.deps, deps)
	f.nodes = append(f.nodes, len(h.Nodes()))
	return "hierarchy-run", nil
}

func testParams(outDir string) Params {
	p := DefaultParams()
	p.MinSize = 0
	p.MinHeight = 1
	p.Interval = 3
	p.OutDir = outDir
	return p
}

func loadGrid(t *testing.T, fs *fsutil.MemoryFileSystem, name string) *raster.Grid {
	t.Helper()
	g, err := raster.LoadASCII(fs, filepath.Join("out", name))
	require.NoError(t, err)
	return g
}

func TestExtractSinks_Bowl(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	rec := &fakeRecorder{}
	o := New(WithFileSystem(fs), WithRecorder(rec))

	g := testutil.MustGrid(t, testutil.Bowl(), 1)
	res, err := o.ExtractSinks(context.Background(), g, testParams("out"))
	require.NoError(t, err)

	require.Len(t, res.Depressions, 1)
	assert.Equal(t, 4.0, res.Depressions[0].MaxDepth)
	assert.Equal(t, "sinks-run", res.RunID)
	require.Len(t, rec.runs, 1)
	assert.Equal(t, store.KindSinks, rec.runs[0].Kind)
	assert.Contains(t, string(rec.runs[0].ParamsJSON), `"min_size":0`)

	assert.Equal(t, []string{
		FileRefined, FileDiff, FileFilled, FileDepth, FileRegion, FileRegionsCSV, FileSink,
	}, fs.Names("out"))

	sink := loadGrid(t, fs, FileSink)
	assert.Equal(t, 1.0, sink.At(2, 2))
	assert.Equal(t, 0.0, sink.At(1, 1))

	refined := loadGrid(t, fs, FileRefined)
	assert.Equal(t, 1.0, refined.At(2, 2), "surviving sinks keep raw elevation")

	filled := loadGrid(t, fs, FileFilled)
	assert.Equal(t, 5.0, filled.At(2, 2))

	csv, err := fs.ReadFile(filepath.Join("out", FileRegionsCSV))
	require.NoError(t, err)
	assert.Equal(t, "region-id,count,area,volume,avg-depth,max-depth,min-elev,max-elev\n"+
		"1,1,1.00,4.00,4.00,4.00,1.00,5.00\n", string(csv))
}

func TestExtractSinks_SmallSinksFilledAway(t *testing.T) {
	o := New(WithFileSystem(fsutil.NewMemoryFileSystem()))
	p := testParams("")
	p.MinSize = 1

	res, err := o.ExtractSinks(context.Background(), testutil.MustGrid(t, testutil.TwoPits(), 1), p)
	require.NoError(t, err)
	assert.Empty(t, res.Depressions)
	assert.Equal(t, 10.0, res.Refined.At(2, 2))
	assert.Equal(t, 10.0, res.Refined.At(4, 4))
	assert.Equal(t, 2.0, res.Diff.At(2, 2), "diff keeps every filled cell")
	assert.Equal(t, 0.0, res.Depth.At(2, 2), "depth only covers surviving regions")
}

func TestDelineateDepressions_Nested(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	rec := &fakeRecorder{}
	o := New(WithFileSystem(fs), WithRecorder(rec))

	res, err := o.DelineateDepressions(context.Background(), testutil.MustGrid(t, testutil.NestedBasin(), 1), testParams("out"))
	require.NoError(t, err)

	require.Len(t, res.Hierarchy.Nodes(), 3)
	assert.Equal(t, "hierarchy-run", res.RunID)
	assert.Equal(t, []int{3}, rec.nodes)
	assert.Equal(t, store.KindDepressions, rec.runs[0].Kind)

	ids := loadGrid(t, fs, FileDepID)
	assert.Equal(t, 2.0, ids.At(2, 2))
	levels := loadGrid(t, fs, FileDepLevel)
	assert.Equal(t, 2.0, levels.At(2, 4))

	csv, err := fs.ReadFile(filepath.Join("out", FileDepCSV))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(csv)), "\n"), 4)
	assert.False(t, fs.Exists(filepath.Join("out", FileFlipped)))
	assert.False(t, fs.Exists(filepath.Join("out", FileMountsCSV)))
}

func TestDelineateMounts_Hill(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	o := New(WithFileSystem(fs))
	p := testParams("out")
	p.MinHeight = 0
	p.Interval = 2

	g := testutil.MustGrid(t, testutil.Hill(), 1)
	res, err := o.DelineateMounts(context.Background(), g, p)
	require.NoError(t, err)

	require.NotNil(t, res.Inversion)
	assert.Equal(t, 109.0, res.Inversion.Offset)
	assert.Equal(t, 100.0, res.Flipped.At(2, 2))

	nodes := res.Hierarchy.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, 4.0, nodes[0].Depression.MaxDepth, "peak rises 4 above the ring")
	assert.Same(t, nodes[0], nodes[1].Parent)

	mounts, err := fs.ReadFile(filepath.Join("out", FileMountsCSV))
	require.NoError(t, err)
	assert.Contains(t, string(mounts), "1,1,0,1,2,1,1.00,4.00,4.00,4.00,9.00,5.00\n")

	flipped := loadGrid(t, fs, FileFlipped)
	back, err := res.Inversion.Apply(flipped)
	require.NoError(t, err)
	assert.Equal(t, g.Data, back.Data)
}

func TestOrchestrator_ConfigErrors(t *testing.T) {
	o := New(WithFileSystem(fsutil.NewMemoryFileSystem()))
	g := testutil.MustGrid(t, testutil.Bowl(), 1)
	ctx := context.Background()

	p := testParams("")
	p.MinSize = -1
	_, err := o.ExtractSinks(ctx, g, p)
	assert.ErrorIs(t, err, depression.ErrInvalidConfig)

	p = testParams("")
	p.Interval = 0
	_, err = o.DelineateDepressions(ctx, g, p)
	assert.ErrorIs(t, err, depression.ErrInvalidConfig)

	p = testParams("")
	p.Delta = math.Inf(1)
	_, err = o.DelineateMounts(ctx, g, p)
	assert.ErrorIs(t, err, depression.ErrInvalidConfig)

	_, err = o.ExtractSinks(ctx, raster.New(2, 2, -1, 1, -1), testParams(""))
	assert.ErrorIs(t, err, raster.ErrAllNoData)
}

func TestOrchestrator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(WithFileSystem(fsutil.NewMemoryFileSystem())).
		DelineateDepressions(ctx, testutil.MustGrid(t, testutil.NestedBasin(), 1), testParams(""))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOrchestrator_Previews(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	p := testParams("out")
	p.Previews = true
	p.Shapefile = true
	p.Writers = 2

	_, err := New(WithFileSystem(fs)).DelineateDepressions(context.Background(), testutil.MustGrid(t, testutil.NestedBasin(), 1), p)
	require.NoError(t, err)

	for _, name := range []string{FileDepthPNG, FileRegionPNG, FileDepIDPNG, FileReportHTML} {
		assert.True(t, fs.Exists(filepath.Join("out", name)), name)
	}
	assert.False(t, fs.Exists(filepath.Join("out", FileRegionsShp)), "memory file systems skip shapefiles")
}

func TestOrchestrator_ShapefileOnDisk(t *testing.T) {
	dir := t.TempDir()
	p := testParams(filepath.Join(dir, "out"))
	p.Shapefile = true

	_, err := New().DelineateDepressions(context.Background(), testutil.MustGrid(t, testutil.NestedBasin(), 1), p)
	require.NoError(t, err)
	for _, name := range []string{FileRegionsShp, FileDepShp, FileDepID} {
		_, err := os.Stat(filepath.Join(dir, "out", name))
		assert.NoError(t, err, name)
	}
}

func TestOrchestrator_RecordsToStore(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.MigrateUp())
	runs := store.NewRunStore(db)

	p := testParams("")
	p.InputPath = "nested.asc"
	res, err := New(WithRecorder(runs)).DelineateDepressions(context.Background(), testutil.MustGrid(t, testutil.NestedBasin(), 1), p)
	require.NoError(t, err)

	run, err := runs.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "nested.asc", run.InputPath)
	assert.Equal(t, 3, run.NodeCount)
	assert.Equal(t, 1, run.RegionCount)

	deps, err := runs.ListDepressions(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.Sinks.Depressions, deps)
}

func TestParamsFromConfig(t *testing.T) {
	cfg := config.EmptyConfig()
	require.NoError(t, cfg.ApplyEnv(func(k string) (string, bool) {
		if k == "DEMSINKS_CONNECTIVITY" {
			return "4", true
		}
		return "", false
	}))
	p := ParamsFromConfig(cfg)
	assert.Equal(t, depression.Conn4, p.Connectivity)
	assert.Equal(t, 1000, p.MinSize)
	assert.Equal(t, 4, p.writers())
}

func TestOrchestrator_ShapefileRefusesSymlink(t *testing.T) {
	for _, name := range []string{"regions.shp", "regions.shx", "regions.dbf", "regions.prj"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			out := filepath.Join(dir, "out")
			require.NoError(t, os.MkdirAll(out, 0o755))
			victim := filepath.Join(dir, "victim.txt")
			require.NoError(t, os.WriteFile(victim, []byte("precious"), 0o644))
			require.NoError(t, os.Symlink(victim, filepath.Join(out, name)))

			p := testParams(out)
			p.Shapefile = true
			_, err := New().ExtractSinks(context.Background(), testutil.MustGrid(t, testutil.Bowl(), 1), p)
			assert.ErrorIs(t, err, security.ErrPathEscape)

			data, err := os.ReadFile(victim)
			require.NoError(t, err)
			assert.Equal(t, "precious", string(data))
		})
	}
}

func TestExtractSinks_MinSizeTwoKeepsNoPits(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	p := testParams("out")
	p.MinSize = 2

	res, err := New(WithFileSystem(fs)).ExtractSinks(context.Background(), testutil.MustGrid(t, testutil.TwoPits(), 1), p)
	require.NoError(t, err)
	assert.Empty(t, res.Depressions)

	csv, err := fs.ReadFile(filepath.Join("out", FileRegionsCSV))
	require.NoError(t, err)
	assert.Equal(t, "region-id,count,area,volume,avg-depth,max-depth,min-elev,max-elev\n", string(csv))

	refined := loadGrid(t, fs, FileRefined)
	assert.Equal(t, 10.0, refined.At(2, 2))
	assert.Equal(t, 10.0, refined.At(4, 4))
}

func TestExtractSinks_UnencodableParamsNotRecorded(t *testing.T) {
	rec := &fakeRecorder{}
	p := testParams("")
	p.Delta = math.NaN()

	_, err := New(WithFileSystem(fsutil.NewMemoryFileSystem()), WithRecorder(rec)).
		ExtractSinks(context.Background(), testutil.MustGrid(t, testutil.Bowl(), 1), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode run params")
	assert.Empty(t, rec.runs)
}
