// Package pipeline sequences the extraction engine into complete runs: sink
// extraction, nested depression delineation and mound delineation, followed
// by persistence of every derived grid and table.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/banshee-data/demsinks/internal/depression"
	"github.com/banshee-data/demsinks/internal/fsutil"
	"github.com/banshee-data/demsinks/internal/monitoring"
	"github.com/banshee-data/demsinks/internal/raster"
	"github.com/banshee-data/demsinks/internal/store"
	"github.com/banshee-data/demsinks/internal/version"
)

// Recorder catalogues completed runs. *store.RunStore implements it.
type Recorder interface {
	RecordSinks(ctx context.Context, run *store.Run, deps []depression.Depression) (string, error)
	RecordHierarchy(ctx context.Context, run *store.Run, deps []depression.Depression, h *depression.Hierarchy) (string, error)
}

// SinkResult holds every grid and table of a sink extraction.
type SinkResult struct {
	Raw         *raster.Grid
	Filled      *raster.Grid
	Diff        *raster.Grid // filled - raw
	Depth       *raster.Grid // Diff restricted to surviving regions
	Sink        *raster.Grid // raw elevation inside surviving regions, 0 elsewhere
	Refined     *raster.Grid // filled DEM with surviving regions restored to raw
	Labels      *depression.LabelGrid
	Region      *raster.Grid
	Depressions []depression.Depression
	RunID       string
}

// HierarchyResult extends a sink extraction with the nesting tree.
type HierarchyResult struct {
	Sinks     *SinkResult
	Hierarchy *depression.Hierarchy
	IDs       *raster.Grid // finest node id per pixel
	Levels    *raster.Grid // nesting depth per pixel
	Flipped   *raster.Grid // inverted DEM, mounts only
	Inversion *raster.Inversion
	RunID     string
}

// Orchestrator runs the extraction stages and persists their outputs.
type Orchestrator struct {
	fs  fsutil.FileSystem
	rec Recorder
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFileSystem replaces the OS file system used for outputs.
func WithFileSystem(fs fsutil.FileSystem) Option {
	return func(o *Orchestrator) { o.fs = fs }
}

// WithRecorder catalogues every completed run.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.rec = r }
}

// New returns an Orchestrator writing to the OS file system.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{fs: fsutil.OSFileSystem{}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ExtractSinks fills the DEM, labels depressions larger than MinSize and
// computes their attributes.
func (o *Orchestrator) ExtractSinks(ctx context.Context, g *raster.Grid, p Params) (*SinkResult, error) {
	if err := p.validateSinks(); err != nil {
		return nil, err
	}
	res, err := o.extractSinks(ctx, g, p)
	if err != nil {
		return nil, err
	}
	if p.OutDir != "" {
		if err := o.persist(ctx, p, sinkJobs(p, res)); err != nil {
			return nil, err
		}
	}
	if o.rec != nil {
		run, err := newRun(store.KindSinks, g, p)
		if err != nil {
			return nil, err
		}
		id, err := o.rec.RecordSinks(ctx, run, res.Depressions)
		if err != nil {
			return nil, fmt.Errorf("record run: %w", err)
		}
		res.RunID = id
	}
	return res, nil
}

// DelineateDepressions extracts sinks and builds the nested hierarchy from
// the same filled DEM.
func (o *Orchestrator) DelineateDepressions(ctx context.Context, g *raster.Grid, p Params) (*HierarchyResult, error) {
	if err := p.validateHierarchy(); err != nil {
		return nil, err
	}
	res, err := o.delineate(ctx, g, p)
	if err != nil {
		return nil, err
	}
	return res, o.finish(ctx, store.KindDepressions, g, p, res)
}

// DelineateMounts inverts the DEM so elevated features become depressions
// and delineates them.
func (o *Orchestrator) DelineateMounts(ctx context.Context, g *raster.Grid, p Params) (*HierarchyResult, error) {
	if err := p.validateMounts(); err != nil {
		return nil, err
	}
	flipped, inv, err := raster.Invert(g, p.Delta)
	if err != nil {
		return nil, fmt.Errorf("%w: invert: %w", depression.ErrInvalidConfig, err)
	}
	monitoring.Logf("[pipeline] inverted DEM with offset %.3f", inv.Offset)

	res, err := o.delineate(ctx, flipped, p)
	if err != nil {
		return nil, err
	}
	res.Flipped = flipped
	res.Inversion = &inv
	return res, o.finish(ctx, store.KindMounts, g, p, res)
}

func (o *Orchestrator) delineate(ctx context.Context, g *raster.Grid, p Params) (*HierarchyResult, error) {
	sinks, err := o.extractSinks(ctx, g, p)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := depression.BuildHierarchyFilled(ctx, sinks.Raw, sinks.Filled, p.hierarchy())
	if err != nil {
		return nil, err
	}
	return &HierarchyResult{
		Sinks:     sinks,
		Hierarchy: h,
		IDs:       h.IDGrid(),
		Levels:    h.LevelGrid(),
	}, nil
}

func (o *Orchestrator) finish(ctx context.Context, kind string, input *raster.Grid, p Params, res *HierarchyResult) error {
	if p.OutDir != "" {
		jobs := append(sinkJobs(p, res.Sinks), hierarchyJobs(p, res)...)
		if err := o.persist(ctx, p, jobs); err != nil {
			return err
		}
	}
	if o.rec != nil {
		run, err := newRun(kind, input, p)
		if err != nil {
			return err
		}
		id, err := o.rec.RecordHierarchy(ctx, run, res.Sinks.Depressions, res.Hierarchy)
		if err != nil {
			return fmt.Errorf("record run: %w", err)
		}
		res.RunID = id
		res.Sinks.RunID = id
	}
	return nil
}

func (o *Orchestrator) extractSinks(ctx context.Context, g *raster.Grid, p Params) (*SinkResult, error) {
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("%w: pipeline: %w", depression.ErrInvalidConfig, err)
	}
	defer monitoring.Timed("[pipeline] sink extraction")()
	st := g.Stats()
	monitoring.Logf("[pipeline] min = %.2f, max = %.2f, no_data = %v, cell_size = %v",
		st.Min, st.Max, g.NoData, g.Resolution)

	filled, err := depression.Fill(g, p.fillOptions()...)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	diff, err := depression.DepthField(g, filled)
	if err != nil {
		return nil, err
	}
	labels, count, err := depression.Label(diff, p.MinSize)
	if err != nil {
		return nil, err
	}
	deps, err := depression.Extract(labels, g, filled, g.Resolution)
	if err != nil {
		return nil, err
	}

	res := &SinkResult{
		Raw:         g,
		Filled:      filled,
		Diff:        diff,
		Depth:       diff.Like(0),
		Sink:        g.Like(0),
		Refined:     filled.Clone(),
		Labels:      labels,
		Region:      labels.ToGrid(g),
		Depressions: deps,
	}
	for i, id := range labels.Labels {
		if id == 0 {
			continue
		}
		res.Depth.Data[i] = diff.Data[i]
		res.Sink.Data[i] = g.Data[i]
		res.Refined.Data[i] = g.Data[i]
	}
	monitoring.Logf("[pipeline] %d depressions larger than %d cells", count, p.MinSize)
	return res, nil
}

func newRun(kind string, g *raster.Grid, p Params) (*store.Run, error) {
	params, err := json.Marshal(struct {
		MinSize      int     `json:"min_size"`
		MinHeight    float64 `json:"min_height"`
		Interval     float64 `json:"interval"`
		Delta        float64 `json:"delta"`
		Connectivity int     `json:"connectivity"`
	}{p.MinSize, p.MinHeight, p.Interval, p.Delta, int(p.Connectivity)})
	if err != nil {
		return nil, fmt.Errorf("encode run params: %w", err)
	}
	return &store.Run{
		Kind:        kind,
		InputPath:   p.InputPath,
		ParamsJSON:  params,
		Rows:        g.Rows,
		Cols:        g.Cols,
		Resolution:  g.Resolution,
		ToolVersion: version.Version,
	}, nil
}
