package export

import (
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/geom"

	"github.com/banshee-data/demsinks/internal/depression"
	"github.com/banshee-data/demsinks/internal/raster"
)

// Feature is the polygon covering every cell of one label. Outer rings run
// clockwise and holes counter-clockwise; each outer ring is followed by its
// holes. Rings are closed (first point repeated).
type Feature struct {
	ID      int
	Polygon geom.Polygon
}

// Area returns the polygon area with holes subtracted.
func (f Feature) Area() float64 {
	a := 0.0
	for _, ring := range f.Polygon {
		a -= signedArea(ring)
	}
	return a
}

// signedArea is the shoelace area, positive for counter-clockwise rings.
func signedArea(ring geom.Path) float64 {
	s := 0.0
	for i := 0; i+1 < len(ring); i++ {
		s += ring[i].X*ring[i+1].Y - ring[i+1].X*ring[i].Y
	}
	return s / 2
}

// Edge directions in grid space (row grows downward).
const (
	east = iota
	south
	west
	north
)

var (
	stepCol = [4]int{1, 0, -1, 0}
	stepRow = [4]int{0, 1, 0, -1}
)

type ring struct {
	label   int32
	pts     [][2]int // corner vertices as (col, row), not closed
	area2   int      // twice the shoelace area in grid space; > 0 for outer rings
	sampleX float64  // centre of a labeled cell to the right of the first edge
	sampleY float64
}

// tracer walks cell boundaries of a label grid. Every boundary edge is
// oriented so that its label's cells lie on its right; an edge is identified
// by its start vertex and direction.
type tracer struct {
	lg   *depression.LabelGrid
	used []uint8 // per vertex, bit per direction
}

func (t *tracer) label(r, c int) int32 {
	if r < 0 || c < 0 || r >= t.lg.Rows || c >= t.lg.Cols {
		return 0
	}
	return t.lg.At(r, c)
}

// owner returns the cell to the right of edge (vr, vc, dir) and the cell on
// its left.
func owner(vr, vc, dir int) (r, c, nr, nc int) {
	switch dir {
	case east:
		return vr, vc, vr - 1, vc
	case south:
		return vr, vc - 1, vr, vc
	case west:
		return vr - 1, vc - 1, vr, vc - 1
	default:
		return vr - 1, vc, vr - 1, vc - 1
	}
}

// edge reports whether a boundary edge of label id leaves (vr, vc) in dir.
func (t *tracer) edge(id int32, vr, vc, dir int) bool {
	r, c, nr, nc := owner(vr, vc, dir)
	return t.label(r, c) == id && t.label(nr, nc) != id
}

func (t *tracer) vertex(vr, vc int) int { return vr*(t.lg.Cols+1) + vc }

func (t *tracer) isUsed(vr, vc, dir int) bool { return t.used[t.vertex(vr, vc)]&(1<<dir) != 0 }

func (t *tracer) markUsed(vr, vc, dir int) { t.used[t.vertex(vr, vc)] |= 1 << dir }

// trace follows the ring starting with edge (vr, vc, dir). At a vertex shared
// by two diagonal cells the right turn wins, which keeps diagonal neighbours
// in separate rings.
func (t *tracer) trace(id int32, vr0, vc0, dir0 int) (ring, error) {
	r, c, _, _ := owner(vr0, vc0, dir0)
	rg := ring{label: id, sampleX: float64(c) + 0.5, sampleY: float64(r) + 0.5}

	vr, vc, dir := vr0, vc0, dir0
	var dirs []int
	var verts [][2]int
	for {
		t.markUsed(vr, vc, dir)
		verts = append(verts, [2]int{vc, vr})
		dirs = append(dirs, dir)
		vr, vc = vr+stepRow[dir], vc+stepCol[dir]

		next := -1
		for _, cand := range [3]int{(dir + 1) % 4, dir, (dir + 3) % 4} {
			if t.edge(id, vr, vc, cand) {
				next = cand
				break
			}
		}
		if next < 0 {
			return rg, fmt.Errorf("label %d: open boundary at vertex (%d,%d)", id, vc, vr)
		}
		if vr == vr0 && vc == vc0 && next == dir0 {
			break
		}
		if t.isUsed(vr, vc, next) {
			return rg, fmt.Errorf("label %d: boundary revisits edge at vertex (%d,%d)", id, vc, vr)
		}
		dir = next
	}

	// Keep only vertices where the direction changes.
	n := len(verts)
	for i := 0; i < n; i++ {
		prev := dirs[(i+n-1)%n]
		if dirs[i] != prev {
			rg.pts = append(rg.pts, verts[i])
		}
	}
	for i := range rg.pts {
		a, b := rg.pts[i], rg.pts[(i+1)%len(rg.pts)]
		rg.area2 += a[0]*b[1] - b[0]*a[1]
	}
	return rg, nil
}

// contains reports whether (x, y) in grid space lies inside the ring.
func (rg ring) contains(x, y float64) bool {
	in := false
	n := len(rg.pts)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := float64(rg.pts[i][0]), float64(rg.pts[i][1])
		xj, yj := float64(rg.pts[j][0]), float64(rg.pts[j][1])
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			in = !in
		}
	}
	return in
}

// Polygonize traces the boundary of every non-zero label into a Feature, in
// ascending label order. Coordinates are in the units of ref's georeference.
func Polygonize(lg *depression.LabelGrid, ref raster.Georef) ([]Feature, error) {
	if lg == nil || lg.Rows <= 0 || lg.Cols <= 0 || len(lg.Labels) != lg.Rows*lg.Cols {
		return nil, fmt.Errorf("polygonize: %w", raster.ErrEmptyGrid)
	}
	if math.IsNaN(ref.CellSize) || ref.CellSize <= 0 {
		return nil, fmt.Errorf("polygonize: cell size must be positive, got %v", ref.CellSize)
	}

	t := &tracer{lg: lg, used: make([]uint8, (lg.Rows+1)*(lg.Cols+1))}
	byLabel := make(map[int32][]ring)
	for r := 0; r < lg.Rows; r++ {
		for c := 0; c < lg.Cols; c++ {
			id := lg.At(r, c)
			if id == 0 {
				continue
			}
			// Each cell side as (start vertex row, col, direction).
			sides := [4][3]int{
				{r, c, east},
				{r, c + 1, south},
				{r + 1, c + 1, west},
				{r + 1, c, north},
			}
			for _, s := range sides {
				if !t.edge(id, s[0], s[1], s[2]) || t.isUsed(s[0], s[1], s[2]) {
					continue
				}
				rg, err := t.trace(id, s[0], s[1], s[2])
				if err != nil {
					return nil, fmt.Errorf("polygonize: %w", err)
				}
				byLabel[id] = append(byLabel[id], rg)
			}
		}
	}

	ids := make([]int, 0, len(byLabel))
	for id := range byLabel {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	features := make([]Feature, 0, len(ids))
	for _, id := range ids {
		features = append(features, Feature{ID: id, Polygon: assemble(byLabel[int32(id)], lg.Rows, ref)})
	}
	return features, nil
}

// assemble groups holes under the smallest outer ring containing them and
// converts grid vertices to world coordinates.
func assemble(rings []ring, rows int, ref raster.Georef) geom.Polygon {
	var outers, holes []ring
	for _, rg := range rings {
		if rg.area2 > 0 {
			outers = append(outers, rg)
		} else {
			holes = append(holes, rg)
		}
	}
	owned := make([][]ring, len(outers))
	for _, h := range holes {
		best := -1
		for i, o := range outers {
			if !o.contains(h.sampleX, h.sampleY) {
				continue
			}
			if best < 0 || o.area2 < outers[best].area2 {
				best = i
			}
		}
		if best >= 0 {
			owned[best] = append(owned[best], h)
		}
	}

	world := func(rg ring) geom.Path {
		p := make(geom.Path, 0, len(rg.pts)+1)
		for _, v := range rg.pts {
			p = append(p, geom.Point{
				X: ref.XLLCorner + float64(v[0])*ref.CellSize,
				Y: ref.YLLCorner + float64(rows-v[1])*ref.CellSize,
			})
		}
		return append(p, p[0])
	}
	var poly geom.Polygon
	for i, o := range outers {
		poly = append(poly, world(o))
		for _, h := range owned[i] {
			poly = append(poly, world(h))
		}
	}
	return poly
}
