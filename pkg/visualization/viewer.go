// Package visualization renders volume slices to images, optionally with a
// lesion mask and the trace of a symmetry plane drawn on top.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"

	"neurosegment/internal/models"
	"neurosegment/pkg/geometry"
)

// Viewer extracts and renders slices of a volume. Intensities are mapped
// linearly from the volume's [min, max] range to the full gray range.
type Viewer struct {
	// vol is the volume being viewed
	vol *models.Volume

	// lo and hi are the intensity range used for display
	lo, hi float64
}

// RenderOptions selects the overlays drawn by Render
type RenderOptions struct {
	// Mask voxels that are non-zero are tinted with MaskColor
	Mask      *models.Volume
	MaskColor color.RGBA

	// Plane, when set, has its trace in the slice drawn with TraceColor
	Plane      *geometry.Plane
	TraceColor color.RGBA

	// Scale enlarges saved renders by an integer factor with nearest
	// neighbour sampling so single voxels stay visible
	Scale int
}

// DefaultRenderOptions returns red mask tint and a green trace
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		MaskColor:  color.RGBA{R: 255, A: 160},
		TraceColor: color.RGBA{G: 255, A: 255},
		Scale:      1,
	}
}

// NewViewer creates a viewer for vol
func NewViewer(vol *models.Volume) (*Viewer, error) {
	if err := vol.Validate(); err != nil {
		return nil, errors.Wrap(err, "viewer")
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vol.Data {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	// keep binary masks and [0, 1] data at their natural scale
	lo = math.Min(lo, 0)
	hi = math.Max(hi, 1)
	return &Viewer{vol: vol, lo: lo, hi: hi}, nil
}

// gray maps a voxel value to a 16 bit gray level
func (v *Viewer) gray(value float64) color.Gray16 {
	t := (value - v.lo) / (v.hi - v.lo)
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, t*65535)))}
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, errors.New("position must be non-negative")
	}
	w, h, d := v.vol.Width, v.vol.Height, v.vol.Depth

	var img *image.Gray16
	switch axis {
	case "x", "X":
		// YZ plane
		if position >= w {
			return nil, errors.Errorf("position %d exceeds width %d", position, w)
		}
		img = image.NewGray16(image.Rect(0, 0, d, h))
		for y := 0; y < h; y++ {
			for z := 0; z < d; z++ {
				img.SetGray16(z, y, v.gray(v.vol.At(position, y, z)))
			}
		}

	case "y", "Y":
		// XZ plane
		if position >= h {
			return nil, errors.Errorf("position %d exceeds height %d", position, h)
		}
		img = image.NewGray16(image.Rect(0, 0, w, d))
		for z := 0; z < d; z++ {
			for x := 0; x < w; x++ {
				img.SetGray16(x, z, v.gray(v.vol.At(x, position, z)))
			}
		}

	case "z", "Z":
		// XY plane
		if position >= d {
			return nil, errors.Errorf("position %d exceeds depth %d", position, d)
		}
		img = image.NewGray16(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetGray16(x, y, v.gray(v.vol.At(x, y, position)))
			}
		}

	default:
		return nil, errors.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// ExtractRegion extracts a 3D subregion from the volume
func (v *Viewer) ExtractRegion(startX, startY, startZ, sizeX, sizeY, sizeZ int) (*models.Volume, error) {
	if startX < 0 || startY < 0 || startZ < 0 {
		return nil, errors.New("start coordinates must be non-negative")
	}
	if sizeX <= 0 || sizeY <= 0 || sizeZ <= 0 {
		return nil, errors.New("size dimensions must be positive")
	}
	if startX+sizeX > v.vol.Width || startY+sizeY > v.vol.Height || startZ+sizeZ > v.vol.Depth {
		return nil, errors.New("region extends beyond volume boundaries")
	}

	region := models.NewVolume(sizeX, sizeY, sizeZ)
	region.VoxelSize = v.vol.VoxelSize
	for z := 0; z < sizeZ; z++ {
		for y := 0; y < sizeY; y++ {
			for x := 0; x < sizeX; x++ {
				region.Set(x, y, z, v.vol.At(startX+x, startY+y, startZ+z))
			}
		}
	}
	return region, nil
}

// Render draws axial slice z with the overlays of opts
func (v *Viewer) Render(z int, opts RenderOptions) (*image.RGBA, error) {
	base, err := v.ExtractSlice("z", z)
	if err != nil {
		return nil, err
	}
	w, h := v.vol.Width, v.vol.Height
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Set(x, y, base.At(x, y))
		}
	}

	if opts.Mask != nil {
		if !opts.Mask.SameShape(v.vol) {
			return nil, &models.ShapeMismatchError{
				What: "overlay mask",
				Want: models.Dims(v.vol.Width, v.vol.Height, v.vol.Depth),
				Got:  models.Dims(opts.Mask.Width, opts.Mask.Height, opts.Mask.Depth),
			}
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if opts.Mask.At(x, y, z) != 0 {
					out.SetRGBA(x, y, blend(out.RGBAAt(x, y), opts.MaskColor))
				}
			}
		}
	}

	if opts.Plane != nil {
		line, err := geometry.Intersect(*opts.Plane, z)
		if err != nil {
			return nil, err
		}
		for _, p := range line.Clip(w, h) {
			out.SetRGBA(p.X, p.Y, blend(out.RGBAAt(p.X, p.Y), opts.TraceColor))
		}
	}
	return out, nil
}

// blend composites c over dst using the alpha of c
func blend(dst, c color.RGBA) color.RGBA {
	a := uint32(c.A)
	mix := func(d, s uint8) uint8 {
		return uint8((uint32(s)*a + uint32(d)*(255-a)) / 255)
	}
	return color.RGBA{R: mix(dst.R, c.R), G: mix(dst.G, c.G), B: mix(dst.B, c.B), A: 255}
}

// SaveSlice saves an image as PNG when filename ends in .png and as JPEG
// otherwise
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(filename), ".png") {
		return png.Encode(file, img)
	}
	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves a sequence of slices along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.vol.Width
	case "y", "Y":
		maxPos = v.vol.Height
	case "z", "Z":
		maxPos = v.vol.Depth
	default:
		return errors.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}

// SaveRenderSequence renders every axial slice with opts and writes them as
// PNG files to outputDir
func (v *Viewer) SaveRenderSequence(outputDir string, opts RenderOptions) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}
	for z := 0; z < v.vol.Depth; z++ {
		rendered, err := v.Render(z, opts)
		if err != nil {
			return errors.Wrapf(err, "render slice %d", z)
		}
		var img image.Image = rendered
		if opts.Scale > 1 {
			b := rendered.Bounds()
			img = resize.Resize(uint(b.Dx()*opts.Scale), uint(b.Dy()*opts.Scale), rendered, resize.NearestNeighbor)
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("overlay_z_%03d.png", z))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}
	return nil
}
