package depression

import (
	"context"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"

	"github.com/banshee-data/demsinks/internal/monitoring"
	"github.com/banshee-data/demsinks/internal/raster"
)

// Node is a depression found at one slicing level.
type Node struct {
	ID         int
	Level      int     // 0-based slicing level
	LevelValue float64 // depth cut L at which the region was found
	Depression Depression
	Pixels     []int // ascending flat indices
	Parent     *Node
	Children   []*Node

	minRow, minCol, maxRow, maxCol int
}

// IsRoot reports whether n has no parent.
func (n *Node) IsRoot() bool { return n.Parent == nil }

// Root returns the top ancestor of n.
func (n *Node) Root() *Node {
	for n.Parent != nil {
		n = n.Parent
	}
	return n
}

// Depth is 1 for a root and grows by one per ancestor.
func (n *Node) Depth() int {
	d := 1
	for p := n.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

// Contains reports whether every pixel of other is also a pixel of n.
func (n *Node) Contains(other *Node) bool {
	if other.minRow < n.minRow || other.maxRow > n.maxRow || other.minCol < n.minCol || other.maxCol > n.maxCol {
		return false
	}
	return subset(other.Pixels, n.Pixels)
}

// Overlaps reports whether n and other share at least one pixel.
func (n *Node) Overlaps(other *Node) bool {
	a, b := n.Pixels, other.Pixels
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			return true
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return false
}

// footprintBox is the pixel-space bounding rectangle, inset so regions that
// only touch along a cell edge do not intersect.
func (n *Node) footprintBox() geom.Polygon {
	const inset = 0.25
	x0, y0 := float64(n.minCol)+inset, float64(n.minRow)+inset
	x1, y1 := float64(n.maxCol+1)-inset, float64(n.maxRow+1)-inset
	return geom.Polygon{{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0}}}
}

// subset reports whether sorted a is contained in sorted b.
func subset(a, b []int) bool {
	if len(a) > len(b) {
		return false
	}
	j := 0
	for _, v := range a {
		for j < len(b) && b[j] < v {
			j++
		}
		if j == len(b) || b[j] != v {
			return false
		}
		j++
	}
	return true
}

// Hierarchy is the nesting tree produced by BuildHierarchy. It owns all nodes.
type Hierarchy struct {
	Rows, Cols int
	Params     HierarchyParams
	Levels     int     // number of levels that retained at least one region
	MaxDepth   float64 // deepest cell of the depth field
	Anomalies  int     // regions that overlapped earlier nodes without nesting

	ref   *raster.Grid
	roots []*Node
	nodes []*Node
}

// Roots returns the top-level nodes in build order.
func (h *Hierarchy) Roots() []*Node { return h.roots }

// Nodes returns every node in build order (level ascending, label ascending).
func (h *Hierarchy) Nodes() []*Node { return h.nodes }

// Node returns the node with the given id, or nil.
func (h *Hierarchy) Node(id int) *Node {
	if id < 1 || id > len(h.nodes) {
		return nil
	}
	return h.nodes[id-1]
}

// Walk visits nodes depth-first, parents before children. Returning false
// from fn skips the node's subtree.
func (h *Hierarchy) Walk(fn func(n *Node) bool) {
	var visit func(n *Node)
	visit = func(n *Node) {
		if !fn(n) {
			return
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	for _, r := range h.roots {
		visit(r)
	}
}

// IDGrid rasterises the finest node id covering each pixel (0 elsewhere).
func (h *Hierarchy) IDGrid() *raster.Grid {
	g := h.ref.Like(0)
	for _, n := range h.nodes {
		for _, idx := range n.Pixels {
			g.Data[idx] = float64(n.ID)
		}
	}
	return g
}

// LevelGrid rasterises the nesting depth of the finest node covering each
// pixel: 1 for a root, 2 for its children, and so on (0 elsewhere).
func (h *Hierarchy) LevelGrid() *raster.Grid {
	g := h.ref.Like(0)
	for _, n := range h.nodes {
		d := float64(n.Depth())
		for _, idx := range n.Pixels {
			g.Data[idx] = d
		}
	}
	return g
}

// BuildHierarchy fills raw and slices the resulting depth field at multiples
// of p.Interval, nesting each level's regions under the finest earlier region
// that contains them.
func BuildHierarchy(ctx context.Context, raw *raster.Grid, p HierarchyParams, opts ...FillOption) (*Hierarchy, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	filled, err := Fill(raw, opts...)
	if err != nil {
		return nil, err
	}
	return BuildHierarchyFilled(ctx, raw, filled, p)
}

// BuildHierarchyFilled is BuildHierarchy for callers that already hold the
// filled DEM.
func BuildHierarchyFilled(ctx context.Context, raw, filled *raster.Grid, p HierarchyParams) (*Hierarchy, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := raw.Validate(); err != nil {
		return nil, gridError("hierarchy", err)
	}
	depth, err := DepthField(raw, filled)
	if err != nil {
		return nil, err
	}
	defer monitoring.Timed("[hierarchy] slicing sweep")()

	h := &Hierarchy{Rows: raw.Rows, Cols: raw.Cols, Params: p, ref: raw}
	st := depth.Stats()
	if st.ValidCount == 0 {
		monitoring.Logf("[hierarchy] no depressions to slice")
		return h, nil
	}
	h.MaxDepth = st.Max

	b := &builder{h: h, tree: rtree.NewTree(25, 50)}
	sliced := depth.Like(0)
	surface := raw.Like(raw.NoData)
	for k := 0; ; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cut := float64(k) * p.Interval
		if cut > h.MaxDepth {
			break
		}
		for i, d := range depth.Data {
			if d > cut {
				sliced.Data[i] = d - cut
				surface.Data[i] = filled.Data[i] - cut
			} else {
				sliced.Data[i] = 0
				surface.Data[i] = raw.Data[i]
			}
		}

		labels, _, err := Label(sliced, p.MinSize)
		if err != nil {
			return nil, err
		}
		deps, err := Extract(labels, raw, surface, raw.Resolution)
		if err != nil {
			return nil, err
		}
		footprints := labels.Footprints()
		retained := 0
		for i, dep := range deps {
			if dep.MaxDepth < p.MinHeight {
				continue
			}
			b.add(k, cut, dep, footprints[i], raw.Cols)
			retained++
		}
		monitoring.Debugf("[hierarchy] level %d (cut %.3f): %d regions, %d retained", k, cut, len(deps), retained)
		if retained == 0 {
			break
		}
		h.Levels = k + 1
	}
	monitoring.Logf("[hierarchy] %d nodes, %d roots over %d levels (max depth %.3f, %d anomalies)",
		len(h.nodes), len(h.roots), h.Levels, h.MaxDepth, h.Anomalies)
	return h, nil
}

// nodeEntry indexes a node's bounding box in the R-tree.
type nodeEntry struct {
	geom.Polygonal
	node *Node
}

type builder struct {
	h    *Hierarchy
	tree *rtree.Rtree
}

func (b *builder) add(level int, cut float64, dep Depression, pixels []int, cols int) {
	n := &Node{
		ID:         len(b.h.nodes) + 1,
		Level:      level,
		LevelValue: cut,
		Depression: dep,
		Pixels:     pixels,
		minRow:     pixels[0] / cols,
		maxRow:     pixels[len(pixels)-1] / cols,
		minCol:     cols,
		maxCol:     -1,
	}
	for _, idx := range pixels {
		c := idx % cols
		if c < n.minCol {
			n.minCol = c
		}
		if c > n.maxCol {
			n.maxCol = c
		}
	}

	box := n.footprintBox()
	var parent *Node
	overlap := false
	for _, g := range b.tree.SearchIntersect(box.Bounds()) {
		cand := g.(*nodeEntry).node
		if cand.Level >= level {
			continue
		}
		if cand.Contains(n) {
			if parent == nil || finer(cand, parent) {
				parent = cand
			}
			continue
		}
		if cand.Overlaps(n) {
			overlap = true
		}
	}

	switch {
	case parent != nil:
		n.Parent = parent
		parent.Children = append(parent.Children, n)
	case overlap:
		b.h.Anomalies++
		monitoring.Logf("[hierarchy] anomaly: node %d at level %d overlaps earlier nodes without nesting; kept as root", n.ID, level)
		b.h.roots = append(b.h.roots, n)
	default:
		b.h.roots = append(b.h.roots, n)
	}
	b.h.nodes = append(b.h.nodes, n)
	b.tree.Insert(&nodeEntry{Polygonal: box, node: n})
}

// finer orders candidate parents: deeper level first, then smaller footprint,
// then lower id.
func finer(a, b *Node) bool {
	if a.Level != b.Level {
		return a.Level > b.Level
	}
	if len(a.Pixels) != len(b.Pixels) {
		return len(a.Pixels) < len(b.Pixels)
	}
	return a.ID < b.ID
}
