package geometry

import (
	"image"
	"math"
)

// lineTolerance is the distance below which a point counts as on a line
const lineTolerance = 1e-9

// Point2D is a point in slice coordinates
type Point2D struct {
	X, Y float64
}

// Line2D is a line in slice coordinates. Non-vertical lines are
// y = Slope·x + Intercept; vertical lines are x = X and ignore Slope and
// Intercept.
type Line2D struct {
	Vertical  bool
	X         float64
	Slope     float64
	Intercept float64
}

// normal returns l as a·x + b·y = c with a² + b² = 1. Steep lines with huge
// slopes and intercepts stay finite in this form.
func (l Line2D) normal() (a, b, c float64) {
	if l.Vertical {
		return 1, 0, l.X
	}
	h := math.Hypot(l.Slope, 1)
	return -l.Slope / h, 1 / h, l.Intercept / h
}

// Reflect returns the mirror image of p across l.
//
// A vertical line x = X maps (x, y) to (2X - x, y). Any other line
// y = m·x + b is taken in unit normal form a·x + b·y = c and p moves twice
// its signed distance along the normal:
//
//	p' = p - 2(a·x + b·y - c)·(a, b)
func Reflect(p Point2D, l Line2D) Point2D {
	if l.Vertical {
		return Point2D{X: 2*l.X - p.X, Y: p.Y}
	}
	a, b, c := l.normal()
	s := 2 * (a*p.X + b*p.Y - c)
	return Point2D{X: p.X - s*a, Y: p.Y - s*b}
}

// Contains reports whether p lies on l
func (l Line2D) Contains(p Point2D) bool {
	a, b, c := l.normal()
	return math.Abs(a*p.X+b*p.Y-c) <= lineTolerance
}

// Clip returns the pixels of a width x height slice that the line passes
// through, stepping along the axis the line is closest to so the trace is
// connected
func (l Line2D) Clip(width, height int) []image.Point {
	var pts []image.Point
	in := func(x, y int) bool { return x >= 0 && x < width && y >= 0 && y < height }

	switch {
	case l.Vertical:
		x := int(math.RoundToEven(l.X))
		for y := 0; y < height; y++ {
			if in(x, y) {
				pts = append(pts, image.Pt(x, y))
			}
		}
	case math.Abs(l.Slope) <= 1:
		for x := 0; x < width; x++ {
			y := int(math.RoundToEven(l.Slope*float64(x) + l.Intercept))
			if in(x, y) {
				pts = append(pts, image.Pt(x, y))
			}
		}
	default:
		for y := 0; y < height; y++ {
			x := int(math.RoundToEven((float64(y) - l.Intercept) / l.Slope))
			if in(x, y) {
				pts = append(pts, image.Pt(x, y))
			}
		}
	}
	return pts
}
