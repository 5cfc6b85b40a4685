package main

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"neurosegment/pkg/geometry"
)

// parsePlane reads a plane given as three points "x,y,z;x,y,z;x,y,z"
func parsePlane(s string) (geometry.Plane, error) {
	parts := strings.Split(s, ";")
	if len(parts) != 3 {
		return geometry.Plane{}, errors.Errorf("plane %q: want three points separated by ';'", s)
	}
	var pts [3]geometry.Vec3
	for i, p := range parts {
		coords := strings.Split(p, ",")
		if len(coords) != 3 {
			return geometry.Plane{}, errors.Errorf("plane point %q: want x,y,z", p)
		}
		var v [3]float64
		for j, c := range coords {
			f, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
			if err != nil {
				return geometry.Plane{}, errors.Wrapf(err, "plane point %q", p)
			}
			v[j] = f
		}
		pts[i] = geometry.Vec3{X: v[0], Y: v[1], Z: v[2]}
	}
	return geometry.PlaneFromPoints(pts[0], pts[1], pts[2])
}

// parseSlices reads a comma separated list of slice indices
func parseSlices(s string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(s, ",") {
		z, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, errors.Wrapf(err, "slice index %q", f)
		}
		out = append(out, z)
	}
	return out, nil
}
