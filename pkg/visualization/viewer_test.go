package visualization

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurosegment/internal/models"
	"neurosegment/pkg/geometry"
)

// TestNewViewer verifies the display range of a new viewer
func TestNewViewer(t *testing.T) {
	vol := models.NewVolume(4, 4, 2)
	vol.Data[0] = -2
	vol.Data[1] = 6

	viewer, err := NewViewer(vol)
	require.NoError(t, err)
	assert.Equal(t, -2.0, viewer.lo)
	assert.Equal(t, 6.0, viewer.hi)

	mask := models.NewVolume(4, 4, 2)
	viewer, err = NewViewer(mask)
	require.NoError(t, err)
	assert.Equal(t, 0.0, viewer.lo)
	assert.Equal(t, 1.0, viewer.hi)

	_, err = NewViewer(&models.Volume{Width: 2, Height: 2, Depth: 2})
	assert.Error(t, err)
}

// TestExtractSlice verifies that slices are correctly extracted from the volume
func TestExtractSlice(t *testing.T) {
	width, height, depth := 10, 10, 5
	vol := models.NewVolume(width, height, depth)

	// each slice along Z has a unique value
	for z := 0; z < depth; z++ {
		for i := range vol.Slice(z) {
			vol.Slice(z)[i] = float64(z) / float64(depth)
		}
	}
	viewer, err := NewViewer(vol)
	require.NoError(t, err)

	for z := 0; z < depth; z++ {
		img, err := viewer.ExtractSlice("z", z)
		require.NoError(t, err, "slice %d", z)

		bounds := img.Bounds()
		assert.Equal(t, width, bounds.Dx())
		assert.Equal(t, height, bounds.Dy())

		expected := uint16(math.Max(0, math.Min(65535, float64(z)/float64(depth)*65535)))
		gray16Img, ok := img.(*image.Gray16)
		require.True(t, ok, "expected *image.Gray16, got %T", img)
		assert.InDelta(t, float64(expected), float64(gray16Img.Gray16At(width/2, height/2).Y), 1.0)
	}

	imgX, err := viewer.ExtractSlice("x", width/2)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, depth, height), imgX.Bounds())

	imgY, err := viewer.ExtractSlice("y", height/2)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, width, depth), imgY.Bounds())

	_, err = viewer.ExtractSlice("invalid", 0)
	assert.Error(t, err)
	_, err = viewer.ExtractSlice("z", depth+1)
	assert.Error(t, err)
	_, err = viewer.ExtractSlice("z", -1)
	assert.Error(t, err)
}

// TestExtractRegion verifies that 3D regions are correctly extracted
func TestExtractRegion(t *testing.T) {
	width, height, depth := 10, 10, 5
	vol := models.NewVolume(width, height, depth)
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				vol.Set(x, y, z, float64(x)/float64(width)+float64(y)/float64(height)+float64(z)/float64(depth))
			}
		}
	}
	viewer, err := NewViewer(vol)
	require.NoError(t, err)

	region, err := viewer.ExtractRegion(2, 3, 1, 4, 3, 2)
	require.NoError(t, err)
	assert.Len(t, region.Data, 4*3*2)
	for z := 0; z < 2; z++ {
		for y := 0; y < 3; y++ {
			for x := 0; x < 4; x++ {
				assert.Equal(t, vol.At(2+x, 3+y, 1+z), region.At(x, y, z))
			}
		}
	}

	_, err = viewer.ExtractRegion(-1, 0, 0, 1, 1, 1)
	assert.Error(t, err)
	_, err = viewer.ExtractRegion(0, 0, 0, 0, 1, 1)
	assert.Error(t, err)
	_, err = viewer.ExtractRegion(width-1, 0, 0, 2, 1, 1)
	assert.Error(t, err)
}

func TestRenderOverlays(t *testing.T) {
	vol := models.NewVolume(5, 5, 1)
	mask := models.NewVolume(5, 5, 1)
	mask.Set(1, 1, 0, 1)
	plane, err := geometry.PlaneFromPoints(geometry.Vec3{X: 2}, geometry.Vec3{X: 2, Y: 1}, geometry.Vec3{X: 2, Z: 1})
	require.NoError(t, err)

	viewer, err := NewViewer(vol)
	require.NoError(t, err)

	opts := DefaultRenderOptions()
	opts.Mask = mask
	opts.Plane = &plane
	img, err := viewer.Render(0, opts)
	require.NoError(t, err)

	assert.Equal(t, color.RGBA{R: 160, A: 255}, img.RGBAAt(1, 1))
	for y := 0; y < 5; y++ {
		assert.Equal(t, color.RGBA{G: 255, A: 255}, img.RGBAAt(2, y))
	}
	assert.Equal(t, color.RGBA{A: 255}, img.RGBAAt(4, 4))
}

func TestRenderErrors(t *testing.T) {
	viewer, err := NewViewer(models.NewVolume(5, 5, 2))
	require.NoError(t, err)

	opts := DefaultRenderOptions()
	opts.Mask = models.NewVolume(4, 5, 2)
	_, err = viewer.Render(0, opts)
	var shapeErr *models.ShapeMismatchError
	assert.True(t, errors.As(err, &shapeErr))

	axial, err := geometry.PlaneFromNormal(geometry.Vec3{Z: 1}, geometry.Vec3{})
	require.NoError(t, err)
	opts = DefaultRenderOptions()
	opts.Plane = &axial
	_, err = viewer.Render(1, opts)
	var geomErr *models.DegenerateGeometryError
	assert.True(t, errors.As(err, &geomErr))
}

// TestSaveSliceSequence verifies that a sequence of slices can be saved
func TestSaveSliceSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}
	tempDir := t.TempDir()

	vol := models.NewVolume(5, 5, 3)
	for i := range vol.Data {
		vol.Data[i] = 0.5
	}
	viewer, err := NewViewer(vol)
	require.NoError(t, err)

	outputDir := filepath.Join(tempDir, "slices")
	require.NoError(t, viewer.SaveSliceSequence("z", outputDir))
	for z := 0; z < 3; z++ {
		assert.FileExists(t, filepath.Join(outputDir, fmt.Sprintf("slice_z_%03d.jpg", z)))
	}
	assert.Error(t, viewer.SaveSliceSequence("invalid", outputDir))

	renderDir := filepath.Join(tempDir, "overlay")
	ropts := DefaultRenderOptions()
	ropts.Scale = 4
	require.NoError(t, viewer.SaveRenderSequence(renderDir, ropts))
	entries, err := os.ReadDir(renderDir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	f, err := os.Open(filepath.Join(renderDir, "overlay_z_000.png"))
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Width)
	assert.Equal(t, 20, cfg.Height)
}
