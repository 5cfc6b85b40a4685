// Package edges turns an intensity volume into the binary edge volume used
// for symmetry scoring: a Sobel derivative across slices followed by a
// percentile threshold.
package edges

import (
	"math"
	"runtime"
	"slices"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"neurosegment/internal/models"
)

// Options controls parallelism
type Options struct {
	// Workers bounds the number of slices filtered concurrently.
	// Zero or negative means runtime.NumCPU().
	Workers int
}

// reflect maps an out-of-range index back into [0, n) by mirroring about
// the edge, repeating the edge sample (d c b a | a b c d | d c b a)
func reflect(i, n int) int {
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}

// Sobel returns the Sobel derivative of vol along the slice axis: the
// central difference [-1, 0, 1] in z, smoothed with [1, 2, 1] in x and y.
// Samples beyond the volume are mirrored.
func Sobel(vol *models.Volume, opts Options) (*models.Volume, error) {
	if err := vol.Validate(); err != nil {
		return nil, errors.Wrap(err, "sobel")
	}
	w, h, d := vol.Width, vol.Height, vol.Depth
	out := &models.Volume{
		Data:      make([]float64, len(vol.Data)),
		Width:     w,
		Height:    h,
		Depth:     d,
		VoxelSize: vol.VoxelSize,
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for z := 0; z < d; z++ {
		g.Go(func() error {
			below := vol.Slice(reflect(z-1, d))
			above := vol.Slice(reflect(z+1, d))
			diff := make([]float64, w*h)
			for i := range diff {
				diff[i] = above[i] - below[i]
			}

			// smooth along x, then along y
			tmp := make([]float64, w*h)
			for y := 0; y < h; y++ {
				row := y * w
				for x := 0; x < w; x++ {
					tmp[row+x] = diff[row+reflect(x-1, w)] + 2*diff[row+x] + diff[row+reflect(x+1, w)]
				}
			}
			dst := out.Slice(z)
			for y := 0; y < h; y++ {
				up, down := reflect(y-1, h)*w, reflect(y+1, h)*w
				for x := 0; x < w; x++ {
					dst[y*w+x] = tmp[up+x] + 2*tmp[y*w+x] + tmp[down+x]
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Percentile returns the p-th percentile of values, interpolating linearly
// between the two nearest ranks
func Percentile(values []float64, p float64) (float64, error) {
	if len(values) == 0 {
		return 0, errors.New("percentile: no values")
	}
	if p < 0 || p > 100 || math.IsNaN(p) {
		return 0, errors.Errorf("percentile: %v outside [0, 100]", p)
	}
	sorted := slices.Clone(values)
	for _, v := range sorted {
		if math.IsNaN(v) {
			return 0, errors.New("percentile: NaN value")
		}
	}
	slices.Sort(sorted)

	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := min(lo+1, len(sorted)-1)
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo]), nil
}

// BinaryByPercentile marks the voxels at or above the p-th percentile of vol
// as 1 and the rest as 0. With invert the voxels at or below the percentile
// are marked instead. The threshold is returned with the binary volume.
func BinaryByPercentile(vol *models.Volume, p float64, invert bool) (*models.Volume, float64, error) {
	if err := vol.Validate(); err != nil {
		return nil, 0, errors.Wrap(err, "binary by percentile")
	}
	t, err := Percentile(vol.Data, p)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "binary by percentile %v", p)
	}

	out := &models.Volume{
		Data:      make([]float64, len(vol.Data)),
		Width:     vol.Width,
		Height:    vol.Height,
		Depth:     vol.Depth,
		VoxelSize: vol.VoxelSize,
	}
	for i, v := range vol.Data {
		if (invert && v <= t) || (!invert && v >= t) {
			out.Data[i] = 1
		}
	}
	return out, t, nil
}
