package features

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// region is the 2D footprint of one label inside one slice. Coordinates are
// (row, col) = (x, y) of the volume, i.e. the first array axis is the row.
type region struct {
	label int

	// bounding box, inclusive
	minR, minC, maxR, maxC int

	// pixel coordinates in slice space
	rows, cols []int

	// lazily computed values shared between descriptors
	mu       *[4][4]float64
	eig      *[2]float64
	convex   float64
	hasHull  bool
	filled   float64
	hasFill  bool
	perim    float64
	hasPerim bool
}

func newRegion(label, r, c int) *region {
	return &region{label: label, minR: r, minC: c, maxR: r, maxC: c}
}

func (rg *region) add(r, c int) {
	rg.rows = append(rg.rows, r)
	rg.cols = append(rg.cols, c)
	if r < rg.minR {
		rg.minR = r
	}
	if r > rg.maxR {
		rg.maxR = r
	}
	if c < rg.minC {
		rg.minC = c
	}
	if c > rg.maxC {
		rg.maxC = c
	}
}

func (rg *region) area() float64 { return float64(len(rg.rows)) }

func (rg *region) bboxRows() int { return rg.maxR - rg.minR + 1 }
func (rg *region) bboxCols() int { return rg.maxC - rg.minC + 1 }

func (rg *region) bboxArea() float64 { return float64(rg.bboxRows() * rg.bboxCols()) }

// mask returns the region image cropped to its bounding box
func (rg *region) mask() []bool {
	nr, nc := rg.bboxRows(), rg.bboxCols()
	m := make([]bool, nr*nc)
	for i := range rg.rows {
		m[(rg.rows[i]-rg.minR)*nc+rg.cols[i]-rg.minC] = true
	}
	return m
}

// centralMoments returns mu[p][q] = sum (r-rc)^p (c-cc)^q for p, q <= 3
func (rg *region) centralMoments() *[4][4]float64 {
	if rg.mu != nil {
		return rg.mu
	}
	var sr, sc float64
	for i := range rg.rows {
		sr += float64(rg.rows[i])
		sc += float64(rg.cols[i])
	}
	n := rg.area()
	rc, cc := sr/n, sc/n

	var mu [4][4]float64
	for i := range rg.rows {
		dr := float64(rg.rows[i]) - rc
		dc := float64(rg.cols[i]) - cc
		pr := 1.0
		for p := 0; p < 4; p++ {
			pc := 1.0
			for q := 0; q < 4; q++ {
				mu[p][q] += pr * pc
				pc *= dc
			}
			pr *= dr
		}
	}
	rg.mu = &mu
	return rg.mu
}

// inertiaTensor returns the 2x2 inertia tensor [[a, b], [b, c]] normalized by area
func (rg *region) inertiaTensor() (a, b, c float64) {
	mu := rg.centralMoments()
	m0 := mu[0][0]
	return mu[0][2] / m0, -mu[1][1] / m0, mu[2][0] / m0
}

// eigvals returns the inertia tensor eigenvalues in descending order, clipped at zero
func (rg *region) eigvals() (l1, l2 float64) {
	if rg.eig != nil {
		return rg.eig[0], rg.eig[1]
	}
	a, b, c := rg.inertiaTensor()

	var es mat.EigenSym
	if es.Factorize(mat.NewSymDense(2, []float64{a, b, b, c}), false) {
		vals := es.Values(nil)
		l1, l2 = vals[1], vals[0]
	} else {
		h := math.Sqrt((a-c)*(a-c)/4 + b*b)
		l1, l2 = (a+c)/2+h, (a+c)/2-h
	}
	l1 = math.Max(l1, 0)
	l2 = math.Max(l2, 0)
	rg.eig = &[2]float64{l1, l2}
	return l1, l2
}

func (rg *region) eccentricity() float64 {
	l1, l2 := rg.eigvals()
	if l1 == 0 {
		return 0
	}
	return math.Sqrt(1 - l2/l1)
}

func (rg *region) orientation() float64 {
	a, b, c := rg.inertiaTensor()
	if a-c == 0 {
		if b < 0 {
			return -math.Pi / 4
		}
		return math.Pi / 4
	}
	return 0.5 * math.Atan2(-2*b, c-a)
}

// huMoments returns the seven Hu invariants of the normalized central moments
func (rg *region) huMoments() [7]float64 {
	mu := rg.centralMoments()
	m0 := mu[0][0]
	var nu [4][4]float64
	for p := 0; p < 4; p++ {
		for q := 0; q < 4; q++ {
			if p+q >= 2 && p+q <= 3 {
				nu[p][q] = mu[p][q] / math.Pow(m0, float64(p+q)/2+1)
			}
		}
	}

	var hu [7]float64
	t0 := nu[3][0] + nu[1][2]
	t1 := nu[2][1] + nu[0][3]
	q0 := t0 * t0
	q1 := t1 * t1
	n4 := 4 * nu[1][1]
	s := nu[2][0] + nu[0][2]
	d := nu[2][0] - nu[0][2]
	hu[0] = s
	hu[1] = d*d + n4*nu[1][1]
	hu[3] = q0 + q1
	hu[5] = d*(q0-q1) + n4*t0*t1
	t0 *= q0 - 3*q1
	t1 *= 3*q0 - q1
	q0 = nu[3][0] - 3*nu[1][2]
	q1 = 3*nu[2][1] - nu[0][3]
	hu[2] = q0*q0 + q1*q1
	hu[4] = q0*t0 + q1*t1
	hu[6] = q1*t0 - q0*t1
	return hu
}

// filledArea counts the region pixels plus the background pixels of the
// bounding box that are not 4-connected to the bounding box border.
func (rg *region) filledArea() float64 {
	if rg.hasFill {
		return rg.filled
	}
	nr, nc := rg.bboxRows(), rg.bboxCols()
	m := rg.mask()
	outside := make([]bool, len(m))
	var stack []int

	push := func(r, c int) {
		i := r*nc + c
		if !m[i] && !outside[i] {
			outside[i] = true
			stack = append(stack, i)
		}
	}
	for r := 0; r < nr; r++ {
		push(r, 0)
		push(r, nc-1)
	}
	for c := 0; c < nc; c++ {
		push(0, c)
		push(nr-1, c)
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		r, c := i/nc, i%nc
		if r > 0 {
			push(r-1, c)
		}
		if r < nr-1 {
			push(r+1, c)
		}
		if c > 0 {
			push(r, c-1)
		}
		if c < nc-1 {
			push(r, c+1)
		}
	}

	holes := 0
	for i := range m {
		if !m[i] && !outside[i] {
			holes++
		}
	}
	rg.filled = rg.area() + float64(holes)
	rg.hasFill = true
	return rg.filled
}

// perimeterWeights maps the border code of a pixel to its perimeter contribution
var perimeterWeights = func() [50]float64 {
	var w [50]float64
	for _, i := range []int{5, 7, 15, 17, 25, 27} {
		w[i] = 1
	}
	w[21], w[33] = math.Sqrt2, math.Sqrt2
	w[13], w[23] = (1+math.Sqrt2)/2, (1+math.Sqrt2)/2
	return w
}()

// perimeter estimates the contour length from the 4-neighbourhood border
// pixels. Each border pixel is coded as 1 + 2*(4-adjacent border pixels) +
// 10*(diagonal border pixels) and weighted by its code. An isolated pixel
// has code 1, which carries no weight, so its perimeter is 0.
func (rg *region) perimeter() float64 {
	if rg.hasPerim {
		return rg.perim
	}
	nr, nc := rg.bboxRows(), rg.bboxCols()
	m := rg.mask()
	at := func(r, c int) bool {
		return r >= 0 && r < nr && c >= 0 && c < nc && m[r*nc+c]
	}

	border := make([]bool, len(m))
	for r := 0; r < nr; r++ {
		for c := 0; c < nc; c++ {
			if !m[r*nc+c] {
				continue
			}
			interior := at(r-1, c) && at(r+1, c) && at(r, c-1) && at(r, c+1)
			border[r*nc+c] = !interior
		}
	}
	isBorder := func(r, c int) bool {
		return r >= 0 && r < nr && c >= 0 && c < nc && border[r*nc+c]
	}

	total := 0.0
	for r := 0; r < nr; r++ {
		for c := 0; c < nc; c++ {
			if !border[r*nc+c] {
				continue
			}
			code := 1
			for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				if isBorder(r+d[0], c+d[1]) {
					code += 2
				}
			}
			for _, d := range [4][2]int{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}} {
				if isBorder(r+d[0], c+d[1]) {
					code += 10
				}
			}
			total += perimeterWeights[code]
		}
	}
	rg.perim = total
	rg.hasPerim = true
	return total
}

// convexArea counts the pixels of the bounding box whose centres fall inside
// or on the convex hull of the region. The hull is taken over the edge
// midpoints of every region pixel, so single pixels and lines still have a
// non-degenerate hull.
func (rg *region) convexArea() float64 {
	if rg.hasHull {
		return rg.convex
	}
	pts := make([]point, 0, 4*len(rg.rows))
	for i := range rg.rows {
		r, c := float64(rg.rows[i]), float64(rg.cols[i])
		pts = append(pts,
			point{r - 0.5, c}, point{r + 0.5, c},
			point{r, c - 0.5}, point{r, c + 0.5},
		)
	}
	hull := convexHull(pts)

	count := 0
	for r := rg.minR; r <= rg.maxR; r++ {
		for c := rg.minC; c <= rg.maxC; c++ {
			if insideHull(hull, point{float64(r), float64(c)}) {
				count++
			}
		}
	}
	rg.convex = float64(count)
	rg.hasHull = true
	return rg.convex
}

type point struct{ r, c float64 }

func cross(o, a, b point) float64 {
	return (a.r-o.r)*(b.c-o.c) - (a.c-o.c)*(b.r-o.r)
}

// convexHull returns the hull vertices in counter-clockwise order using the
// monotone chain algorithm
func convexHull(pts []point) []point {
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].r != pts[j].r {
			return pts[i].r < pts[j].r
		}
		return pts[i].c < pts[j].c
	})
	uniq := pts[:0]
	for i, p := range pts {
		if i == 0 || p != pts[i-1] {
			uniq = append(uniq, p)
		}
	}
	pts = uniq
	if len(pts) < 3 {
		return pts
	}

	hull := make([]point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

const hullTolerance = 1e-10

// insideHull reports whether p lies inside or on a counter-clockwise hull
func insideHull(hull []point, p point) bool {
	if len(hull) < 3 {
		return false
	}
	for i := range hull {
		a, b := hull[i], hull[(i+1)%len(hull)]
		if cross(a, b, p) < -hullTolerance {
			return false
		}
	}
	return true
}
