package depression

import "math"

// Connectivity selects the neighbourhood used while filling.
type Connectivity int

const (
	// Conn4 links orthogonal neighbours only.
	Conn4 Connectivity = 4
	// Conn8 also links diagonal neighbours.
	Conn8 Connectivity = 8
)

var (
	offsets4 = [][2]int{{-1, 0}, {0, -1}, {0, 1}, {1, 0}}
	offsets8 = [][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}
)

// offsets returns (dRow, dCol) pairs for the neighbourhood.
func (c Connectivity) offsets() [][2]int {
	if c == Conn4 {
		return offsets4
	}
	return offsets8
}

func (c Connectivity) valid() bool { return c == Conn4 || c == Conn8 }

// HierarchyParams configures the slicing sweep.
type HierarchyParams struct {
	MinSize   int     // regions with pixel count <= MinSize are discarded
	MinHeight float64 // regions shallower than MinHeight are not retained
	Interval  float64 // slicing step in elevation units
}

// Validate rejects parameters before the sweep starts.
func (p HierarchyParams) Validate() error {
	if p.MinSize < 0 {
		return configErrorf("hierarchy", "minSize must be non-negative, got %d", p.MinSize)
	}
	if math.IsNaN(p.MinHeight) || p.MinHeight < 0 {
		return configErrorf("hierarchy", "minHeight must be non-negative, got %v", p.MinHeight)
	}
	if math.IsNaN(p.Interval) || math.IsInf(p.Interval, 0) || p.Interval <= 0 {
		return configErrorf("hierarchy", "interval must be positive, got %v", p.Interval)
	}
	return nil
}
