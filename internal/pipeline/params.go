package pipeline

import (
	"fmt"
	"math"

	"github.com/banshee-data/demsinks/internal/config"
	"github.com/banshee-data/demsinks/internal/depression"
)

// Params configures one orchestrated run.
type Params struct {
	MinSize      int
	MinHeight    float64
	Interval     float64
	Delta        float64 // mount inversion offset above the DEM maximum
	Connectivity depression.Connectivity

	OutDir    string // empty skips persistence
	Writers   int    // concurrent output writers
	Shapefile bool
	Previews  bool

	InputPath string // recorded with the run
}

// DefaultParams mirrors config.DefaultConfig without an output directory.
func DefaultParams() Params {
	return ParamsFromConfig(config.EmptyConfig())
}

// ParamsFromConfig converts a loaded configuration.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		MinSize:      cfg.GetMinSize(),
		MinHeight:    cfg.GetMinHeight(),
		Interval:     cfg.GetInterval(),
		Delta:        cfg.GetDelta(),
		Connectivity: depression.Connectivity(cfg.GetConnectivity()),
		Writers:      cfg.GetWriters(),
		Shapefile:    cfg.GetShapefile(),
		Previews:     cfg.GetPreviews(),
	}
}

func (p Params) hierarchy() depression.HierarchyParams {
	return depression.HierarchyParams{MinSize: p.MinSize, MinHeight: p.MinHeight, Interval: p.Interval}
}

func (p Params) fillOptions() []depression.FillOption {
	if p.Connectivity == 0 {
		return nil
	}
	return []depression.FillOption{depression.WithConnectivity(p.Connectivity)}
}

func (p Params) writers() int {
	if p.Writers < 1 {
		return 4
	}
	return p.Writers
}

func (p Params) validateSinks() error {
	if p.MinSize < 0 {
		return fmt.Errorf("%w: pipeline: minSize must be non-negative, got %d", depression.ErrInvalidConfig, p.MinSize)
	}
	return nil
}

func (p Params) validateHierarchy() error {
	if err := p.validateSinks(); err != nil {
		return err
	}
	return p.hierarchy().Validate()
}

func (p Params) validateMounts() error {
	if math.IsNaN(p.Delta) || math.IsInf(p.Delta, 0) {
		return fmt.Errorf("%w: pipeline: delta must be finite, got %v", depression.ErrInvalidConfig, p.Delta)
	}
	return p.validateHierarchy()
}
