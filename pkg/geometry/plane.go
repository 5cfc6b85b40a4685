// Package geometry intersects candidate symmetry planes with axial slices and
// reflects slice coordinates across the resulting lines.
package geometry

import (
	"fmt"
	"math"

	"neurosegment/internal/models"
)

// Vec3 is a point or direction in voxel space
type Vec3 struct {
	X, Y, Z float64
}

// Sub returns v - o
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Dot returns the dot product of v and o
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Cross returns the cross product v x o
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// Plane is an infinite plane in normal and point form
type Plane struct {
	Normal Vec3
	Point  Vec3
}

// PlaneFromPoints returns the plane through three non-collinear points
func PlaneFromPoints(a, b, c Vec3) (Plane, error) {
	if err := checkFinite("plane from points", a, b, c); err != nil {
		return Plane{}, err
	}
	n := b.Sub(a).Cross(c.Sub(a))
	if n == (Vec3{}) {
		return Plane{}, &models.DegenerateGeometryError{
			Op:     "plane from points",
			Reason: fmt.Sprintf("points %v, %v, %v are collinear", a, b, c),
		}
	}
	if err := checkFinite("plane from points", n); err != nil {
		return Plane{}, err
	}
	return Plane{Normal: n, Point: a}, nil
}

// PlaneFromNormal returns the plane with normal n through p
func PlaneFromNormal(n, p Vec3) (Plane, error) {
	if n == (Vec3{}) {
		return Plane{}, &models.DegenerateGeometryError{
			Op:     "plane from normal",
			Reason: "normal is the zero vector",
		}
	}
	if err := checkFinite("plane from normal", n, p); err != nil {
		return Plane{}, err
	}
	return Plane{Normal: n, Point: p}, nil
}

func checkFinite(op string, vs ...Vec3) error {
	for _, v := range vs {
		for _, c := range []float64{v.X, v.Y, v.Z} {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return &models.DegenerateGeometryError{
					Op:     op,
					Reason: fmt.Sprintf("non-finite component in %v", v),
				}
			}
		}
	}
	return nil
}

// Intersect returns the line where plane crosses the axial slice at height z.
//
// With normal (a, b, c) and d = normal·point, the slice line is
// a·x + b·y = d - c·z. When b is zero the line is vertical at
// x = (d - c·z)/a, and so it is when b is so small next to a that the slope
// overflows. A normal with a = b = 0 means the plane is parallel to the
// slices (or contains one) and there is no unique line.
func Intersect(plane Plane, z int) (Line2D, error) {
	n := plane.Normal
	if n.X == 0 && n.Y == 0 {
		return Line2D{}, &models.DegenerateGeometryError{
			Op:     "intersect",
			Reason: fmt.Sprintf("plane with normal %v is parallel to slice %d", n, z),
		}
	}
	rhs := n.Dot(plane.Point) - n.Z*float64(z)
	if math.IsNaN(rhs) || math.IsInf(rhs, 0) {
		return Line2D{}, &models.DegenerateGeometryError{
			Op:     "intersect",
			Reason: fmt.Sprintf("plane offset at slice %d is %v", z, rhs),
		}
	}
	if n.Y != 0 {
		m, b := -n.X/n.Y, rhs/n.Y
		if !math.IsInf(m, 0) && !math.IsInf(b, 0) {
			return Line2D{Slope: m, Intercept: b}, nil
		}
	}
	return Line2D{Vertical: true, X: rhs / n.X}, nil
}
