package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/demsinks/internal/depression"
	"github.com/banshee-data/demsinks/internal/export"
	"github.com/banshee-data/demsinks/internal/monitoring"
	"github.com/banshee-data/demsinks/internal/raster"
	"github.com/banshee-data/demsinks/internal/render"
	"github.com/banshee-data/demsinks/internal/security"
)

// Output file names.
const (
	FileFilled      = "dem_filled.asc"
	FileDiff        = "dem_diff.asc"
	FileDepth       = "depth.asc"
	FileSink        = "sink.asc"
	FileRegion      = "region.asc"
	FileRefined     = "dem.asc"
	FileRegionsCSV  = "regions_info.csv"
	FileRegionsShp  = "regions.shp"
	FileDepID       = "dep_id.asc"
	FileDepLevel    = "dep_level.asc"
	FileDepCSV      = "depressions_info.csv"
	FileDepShp      = "dep_id.shp"
	FileFlipped     = "dem_flip.asc"
	FileMountsCSV   = "mounts_info.csv"
	FileDepthPNG    = "depth.png"
	FileRegionPNG   = "region.png"
	FileDepIDPNG    = "dep_id.png"
	FileReportHTML  = "report.html"
	defaultDirPerms = 0o755
)

// job writes one output file. Jobs never share a file.
type job struct {
	name  string
	write func(o *Orchestrator, path string) error
}

func gridJob(name string, g *raster.Grid) job {
	return job{name: name, write: func(o *Orchestrator, path string) error {
		return raster.SaveASCII(o.fs, path, g)
	}}
}

func streamJob(name string, fn func(w io.Writer) error) job {
	return job{name: name, write: func(o *Orchestrator, path string) error {
		f, err := o.fs.Create(path)
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}}
}

func shapefileJob(name string, labels *depression.LabelGrid, ref raster.Georef) job {
	return job{name: name, write: func(o *Orchestrator, path string) error {
		native, ok := o.fs.NativePath(path)
		if !ok {
			monitoring.Logf("[pipeline] skipping %s: file system has no native paths", name)
			return nil
		}
		// The encoder writes its own sidecars, bypassing o.fs.
		if err := checkShapefileTargets(native); err != nil {
			return err
		}
		features, err := export.Polygonize(labels, ref)
		if err != nil {
			return err
		}
		return export.WriteShapefile(native, features, ref.Projection)
	}}
}

// shapefileSidecars lists every file the encoder and WriteShapefile create.
var shapefileSidecars = []string{".shp", ".shx", ".dbf", ".prj"}

// checkShapefileTargets refuses a shapefile whose files resolve outside the
// directory holding the .shp path.
func checkShapefileTargets(native string) error {
	dir := filepath.Dir(native)
	base := strings.TrimSuffix(native, filepath.Ext(native))
	for _, ext := range shapefileSidecars {
		if err := security.WithinDir(base+ext, dir); err != nil {
			return err
		}
	}
	return nil
}

func sinkJobs(p Params, res *SinkResult) []job {
	jobs := []job{
		gridJob(FileFilled, res.Filled),
		gridJob(FileDiff, res.Diff),
		gridJob(FileDepth, res.Depth),
		gridJob(FileSink, res.Sink),
		gridJob(FileRegion, res.Region),
		gridJob(FileRefined, res.Refined),
		streamJob(FileRegionsCSV, func(w io.Writer) error {
			return export.WriteDepressionsCSV(w, res.Depressions)
		}),
	}
	if p.Shapefile {
		jobs = append(jobs, shapefileJob(FileRegionsShp, res.Labels, res.Raw.Georef))
	}
	if p.Previews {
		jobs = append(jobs,
			streamJob(FileDepthPNG, func(w io.Writer) error {
				return render.WriteHeatmapPNG(w, res.Depth, "Depression depth")
			}),
			streamJob(FileRegionPNG, func(w io.Writer) error {
				return render.WriteHeatmapPNG(w, res.Region, "Regions")
			}),
			streamJob(FileReportHTML, func(w io.Writer) error {
				return render.WriteReportHTML(w, render.Report{
					Title:       "Depressions",
					Depth:       res.Depth,
					Depressions: res.Depressions,
				})
			}),
		)
	}
	return jobs
}

func hierarchyJobs(p Params, res *HierarchyResult) []job {
	h := res.Hierarchy
	jobs := []job{
		gridJob(FileDepID, res.IDs),
		gridJob(FileDepLevel, res.Levels),
		streamJob(FileDepCSV, func(w io.Writer) error {
			return export.WriteHierarchyCSV(w, h)
		}),
	}
	if res.Flipped != nil {
		jobs = append(jobs, gridJob(FileFlipped, res.Flipped))
	}
	if res.Inversion != nil {
		inv := *res.Inversion
		jobs = append(jobs, streamJob(FileMountsCSV, func(w io.Writer) error {
			return export.WriteMountsCSV(w, h, inv)
		}))
	}
	if p.Shapefile {
		jobs = append(jobs, shapefileJob(FileDepShp, idLabels(res.IDs, len(h.Nodes())), res.IDs.Georef))
	}
	if p.Previews {
		jobs = append(jobs, streamJob(FileDepIDPNG, func(w io.Writer) error {
			return render.WriteHeatmapPNG(w, res.IDs, "Depression id")
		}))
	}
	return jobs
}

// idLabels views an id raster as a label grid for polygon export.
func idLabels(ids *raster.Grid, count int) *depression.LabelGrid {
	lg := &depression.LabelGrid{Rows: ids.Rows, Cols: ids.Cols, Labels: make([]int32, ids.Len()), Count: count}
	for i, v := range ids.Data {
		lg.Labels[i] = int32(v)
	}
	return lg
}

// persist runs after all computation has finished. Writers run concurrently,
// bounded by p.Writers; the first failure cancels the rest.
func (o *Orchestrator) persist(ctx context.Context, p Params, jobs []job) error {
	if err := o.fs.MkdirAll(p.OutDir, defaultDirPerms); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	defer monitoring.Timed(fmt.Sprintf("[pipeline] wrote %d outputs to %s", len(jobs), p.OutDir))()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.writers())
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := j.write(o, filepath.Join(p.OutDir, j.name)); err != nil {
				return fmt.Errorf("write %s: %w", j.name, err)
			}
			monitoring.Debugf("[pipeline] wrote %s", j.name)
			return nil
		})
	}
	return g.Wait()
}
