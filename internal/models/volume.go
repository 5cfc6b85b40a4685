package models

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// VoxelSize is the physical size of a voxel in mm along each axis
type VoxelSize struct {
	X, Y, Z float64
}

// Volume represents a 3D scalar volume such as a lesion mask or an edge map
type Volume struct {
	// Data is the 3D volume data as a 1D array in row-major order
	// (idx = z*Width*Height + y*Width + x)
	Data []float64

	// Width is the width of the volume in voxels (x axis)
	Width int

	// Height is the height of the volume in voxels (y axis)
	Height int

	// Depth is the number of axial slices (z axis)
	Depth int

	// VoxelSize is the physical size of each voxel in mm. It is carried
	// through unchanged for collaborators that compute physical volumes.
	VoxelSize VoxelSize
}

// NewVolume allocates a zero-filled volume of the given dimensions
func NewVolume(width, height, depth int) *Volume {
	return &Volume{
		Data:      make([]float64, width*height*depth),
		Width:     width,
		Height:    height,
		Depth:     depth,
		VoxelSize: VoxelSize{X: 1, Y: 1, Z: 1},
	}
}

// Index returns the flat index of voxel (x, y, z)
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// At returns the value of voxel (x, y, z)
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set stores value at voxel (x, y, z)
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// SliceLen is the number of voxels in one axial slice
func (v *Volume) SliceLen() int {
	return v.Width * v.Height
}

// Slice returns the axial slice z as a sub-slice of Data. The returned slice
// shares storage with the volume.
func (v *Volume) Slice(z int) []float64 {
	n := v.SliceLen()
	return v.Data[z*n : (z+1)*n]
}

// Clone returns a deep copy of the volume
func (v *Volume) Clone() *Volume {
	out := *v
	out.Data = make([]float64, len(v.Data))
	copy(out.Data, v.Data)
	return &out
}

// SameShape reports whether both volumes have identical dimensions
func (v *Volume) SameShape(o *Volume) bool {
	return v.Width == o.Width && v.Height == o.Height && v.Depth == o.Depth
}

// ForegroundCount returns the number of non-zero voxels
func (v *Volume) ForegroundCount() int {
	n := 0
	for _, val := range v.Data {
		if val != 0 {
			n++
		}
	}
	return n
}

// Validate checks that the dimensions are positive and agree with the data length
func (v *Volume) Validate() error {
	if v == nil {
		return errors.New("volume is nil")
	}
	if v.Width <= 0 || v.Height <= 0 || v.Depth <= 0 {
		return &ShapeMismatchError{
			What: "volume dimensions",
			Want: "positive width, height and depth",
			Got:  Dims(v.Width, v.Height, v.Depth),
		}
	}
	if len(v.Data) != v.Width*v.Height*v.Depth {
		return &ShapeMismatchError{
			What: "volume data length",
			Want: fmt.Sprintf("%d values", v.Width*v.Height*v.Depth),
			Got:  fmt.Sprintf("%d values", len(v.Data)),
		}
	}
	return nil
}

// ValidateBinary checks the volume shape and rejects voxels that cannot be
// read as foreground/background: NaN, infinities and negative values.
func (v *Volume) ValidateBinary() error {
	if err := v.Validate(); err != nil {
		return err
	}
	for i, val := range v.Data {
		if math.IsNaN(val) || math.IsInf(val, 0) || val < 0 {
			x, y, z := v.Coords(i)
			return &InvalidVoxelError{X: x, Y: y, Z: z, Value: val}
		}
	}
	return nil
}

// Coords converts a flat index back to (x, y, z)
func (v *Volume) Coords(idx int) (x, y, z int) {
	n := v.SliceLen()
	z = idx / n
	rem := idx % n
	return rem % v.Width, rem / v.Width, z
}
