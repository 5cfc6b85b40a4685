package models

import "fmt"

// DegenerateGeometryError reports an input whose geometry has no unique
// answer: a plane parallel to the slices, collinear plane points, an empty
// aggregation or a zero standard deviation.
type DegenerateGeometryError struct {
	Op     string
	Reason string
}

func (e *DegenerateGeometryError) Error() string {
	return fmt.Sprintf("%s: degenerate geometry: %s", e.Op, e.Reason)
}

// ShapeMismatchError reports inputs whose dimensionality or feature layout
// does not agree with what the operation expects.
type ShapeMismatchError struct {
	What string
	Want string
	Got  string
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch in %s: want %s, got %s", e.What, e.Want, e.Got)
}

// ModelStateError reports a persisted model that cannot be decoded or is
// internally inconsistent.
type ModelStateError struct {
	Reason string
	Err    error
}

func (e *ModelStateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid model state: %s: %v", e.Reason, e.Err)
	}
	return "invalid model state: " + e.Reason
}

func (e *ModelStateError) Unwrap() error { return e.Err }

// InvalidVoxelError reports a voxel that is neither background nor a valid
// foreground value (NaN, infinite or negative).
type InvalidVoxelError struct {
	X, Y, Z int
	Value   float64
}

func (e *InvalidVoxelError) Error() string {
	return fmt.Sprintf("invalid voxel value %v at (%d,%d,%d)", e.Value, e.X, e.Y, e.Z)
}

// Dims formats volume dimensions for error messages
func Dims(w, h, d int) string { return fmt.Sprintf("%dx%dx%d", w, h, d) }
