// Package labeling assigns connected-component labels to a binary volume one
// axial slice at a time while keeping labels unique across the whole volume.
package labeling

import (
	"context"
	"fmt"
	"image"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"neurosegment/internal/models"
	"neurosegment/pkg/logging"
)

// Options controls how a volume is labeled
type Options struct {
	// Workers bounds the number of slices labeled concurrently.
	// Zero or negative means runtime.NumCPU().
	Workers int

	// Logger receives progress messages; nil disables logging
	Logger *logging.Logger
}

// neighbors8 are the offsets of the 8-connected neighbourhood
var neighbors8 = [8]image.Point{
	{X: -1, Y: -1}, {X: 0, Y: -1}, {X: 1, Y: -1},
	{X: -1, Y: 0}, {X: 1, Y: 0},
	{X: -1, Y: 1}, {X: 0, Y: 1}, {X: 1, Y: 1},
}

// Label labels every axial slice of vol independently with 8-connectivity.
//
// Slice-local labels start at 1 in raster order. They are made globally
// unique with a sequential prefix pass over the per-slice maxima: every
// non-zero label in slice z is shifted by the total number of labels used in
// slices 0..z-1. Regions touching across slices therefore get distinct
// labels. Background voxels stay 0.
func Label(vol *models.Volume, opts Options) (*models.LabeledVolume, error) {
	if err := vol.ValidateBinary(); err != nil {
		return nil, errors.Wrap(err, "labeling")
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	out := models.NewLabeledVolume(vol.Width, vol.Height, vol.Depth)
	maxima := make([]int, vol.Depth)

	var g errgroup.Group
	g.SetLimit(workers)
	for z := 0; z < vol.Depth; z++ {
		g.Go(func() error {
			maxima[z] = labelSlice(vol.Slice(z), out.SliceLabels(z), vol.Width, vol.Height)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	offsets := PrefixOffsets(maxima)
	for z := 1; z < vol.Depth; z++ {
		off := offsets[z]
		if off == 0 {
			continue
		}
		labels := out.SliceLabels(z)
		for i, l := range labels {
			if l != 0 {
				labels[i] = l + off
			}
		}
	}

	total := 0
	if vol.Depth > 0 {
		total = offsets[vol.Depth-1] + maxima[vol.Depth-1]
	}
	logging.OrNoop(opts.Logger).LogLabel(context.Background(), vol.Depth, total)

	return out, nil
}

// PrefixOffsets returns the exclusive prefix sum of the per-slice label maxima:
// offsets[z] is the number of labels used by slices before z.
func PrefixOffsets(maxima []int) []int {
	offsets := make([]int, len(maxima))
	running := 0
	for z, m := range maxima {
		offsets[z] = running
		running += m
	}
	return offsets
}

// LabelSlice labels a single 2D slice stored row-major with the given width
// and height. Labels start at 1; the second return value is the number of
// regions found.
func LabelSlice(slice []float64, width, height int) ([]int, int, error) {
	if len(slice) != width*height {
		return nil, 0, &models.ShapeMismatchError{
			What: "slice length",
			Want: fmt.Sprintf("%d pixels (%dx%d)", width*height, width, height),
			Got:  fmt.Sprintf("%d pixels", len(slice)),
		}
	}
	labels := make([]int, len(slice))
	n := labelSlice(slice, labels, width, height)
	return labels, n, nil
}

// labelSlice writes slice-local labels into labels and returns the number of
// regions. It uses an explicit stack flood fill seeded in raster order.
func labelSlice(slice []float64, labels []int, width, height int) int {
	next := 0
	var stack []image.Point

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := y*width + x
			if slice[idx] == 0 || labels[idx] != 0 {
				continue
			}

			next++
			labels[idx] = next
			stack = append(stack[:0], image.Point{X: x, Y: y})

			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]

				for _, d := range neighbors8 {
					nx, ny := p.X+d.X, p.Y+d.Y
					if nx < 0 || nx >= width || ny < 0 || ny >= height {
						continue
					}
					nidx := ny*width + nx
					if slice[nidx] == 0 || labels[nidx] != 0 {
						continue
					}
					labels[nidx] = next
					stack = append(stack, image.Point{X: nx, Y: ny})
				}
			}
		}
	}

	return next
}
