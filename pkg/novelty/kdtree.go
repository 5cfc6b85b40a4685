package novelty

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// featurePoint is a standardized feature vector stored in the k-d tree.
// idx is the row of the point in the training set.
type featurePoint struct {
	idx    int
	coords []float64
}

// Compare implements the kdtree.Comparable interface
func (p featurePoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(featurePoint)
	return p.coords[d] - q.coords[d]
}

// Dims returns the number of dimensions for the KD-tree
func (p featurePoint) Dims() int { return len(p.coords) }

// Distance returns the squared Euclidean distance between two points
func (p featurePoint) Distance(c kdtree.Comparable) float64 {
	q := c.(featurePoint)
	var sum float64
	for i, v := range p.coords {
		d := v - q.coords[i]
		sum += d * d
	}
	return sum
}

// featurePoints is a collection of featurePoint that satisfies kdtree.Interface
type featurePoints []featurePoint

func (p featurePoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p featurePoints) Len() int                              { return len(p) }
func (p featurePoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p featurePoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(pointPlane{featurePoints: p, Dim: d}, kdtree.MedianOfRandoms(pointPlane{featurePoints: p, Dim: d}, 100))
}

// pointPlane implements sort.Interface and kdtree.SortSlicer for featurePoints
type pointPlane struct {
	featurePoints
	kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	return p.featurePoints[i].coords[p.Dim] < p.featurePoints[j].coords[p.Dim]
}

func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	return pointPlane{featurePoints: p.featurePoints[start:end], Dim: p.Dim}
}

func (p pointPlane) Swap(i, j int) {
	p.featurePoints[i], p.featurePoints[j] = p.featurePoints[j], p.featurePoints[i]
}

// neighbor is one result of a k-nearest-neighbour query
type neighbor struct {
	idx  int
	dist float64
}

// index wraps a k-d tree built over the training rows
type index struct {
	tree *kdtree.Tree
}

// newIndex builds a k-d tree over rows. The rows are referenced, not copied.
func newIndex(rows [][]float64) *index {
	pts := make(featurePoints, len(rows))
	for i, r := range rows {
		pts[i] = featurePoint{idx: i, coords: r}
	}
	return &index{tree: kdtree.New(pts, false)}
}

// nearest returns the k nearest training rows to q in ascending distance.
// When exclude is non-negative, the training row with that index is skipped.
func (ix *index) nearest(q []float64, k int, exclude int) []neighbor {
	want := k
	if exclude >= 0 {
		want++
	}
	keeper := kdtree.NewNKeeper(want)
	ix.tree.NearestSet(keeper, featurePoint{idx: -1, coords: q})

	// the keeper is a max-heap that may still hold its nil sentinel
	out := make([]neighbor, 0, want)
	for _, c := range keeper.Heap {
		fp, ok := c.Comparable.(featurePoint)
		if !ok || fp.idx == exclude {
			continue
		}
		out = append(out, neighbor{idx: fp.idx, dist: math.Sqrt(c.Dist)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].dist != out[j].dist {
			return out[i].dist < out[j].dist
		}
		return out[i].idx < out[j].idx
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}
