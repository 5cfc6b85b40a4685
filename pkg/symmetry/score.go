// Package symmetry scores a candidate midsagittal plane against a binary
// edge volume: the score is the fraction of foreground pixels whose mirror
// image across the plane's trace in their slice is also foreground.
package symmetry

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"neurosegment/internal/models"
	"neurosegment/pkg/geometry"
	"neurosegment/pkg/logging"
)

// Options controls parallelism and logging
type Options struct {
	// Workers bounds the number of slices scored concurrently.
	// Zero or negative means runtime.NumCPU().
	Workers int

	// Logger receives the result; nil disables logging
	Logger *logging.Logger
}

// SliceCount holds the counts of one slice
type SliceCount struct {
	Z      int
	Paired int
	Total  int
}

// Result is a symmetry score with the counts it was computed from
type Result struct {
	Score  float64
	Paired int
	Total  int

	// Slices holds per-slice counts in selection order
	Slices []SliceCount
}

// Score returns the symmetry score of edge about plane. slices selects the
// axial slices to use; nil means every slice.
func Score(edge *models.Volume, plane geometry.Plane, slices []int, opts Options) (float64, error) {
	res, err := ScoreDetailed(edge, plane, slices, opts)
	if err != nil {
		return 0, err
	}
	return res.Score, nil
}

// ScoreDetailed is Score returning the per-slice counts as well.
//
// Every non-zero pixel is reflected across the slice line, rounded half to
// even, and counted as paired when the rounded pixel is inside the slice and
// also non-zero. An empty selection or a selection without foreground has no
// score and yields a *models.DegenerateGeometryError.
func ScoreDetailed(edge *models.Volume, plane geometry.Plane, slices []int, opts Options) (Result, error) {
	ctx := context.Background()
	logger := logging.OrNoop(opts.Logger).WithStage("symmetry")

	res, err := score(edge, plane, slices, opts.Workers)
	logger.LogScore(ctx, len(res.Slices), res.Paired, res.Total, res.Score, err)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func score(edge *models.Volume, plane geometry.Plane, slices []int, workers int) (Result, error) {
	if err := edge.ValidateBinary(); err != nil {
		return Result{}, err
	}
	if slices == nil {
		slices = make([]int, edge.Depth)
		for z := range slices {
			slices[z] = z
		}
	}
	if len(slices) == 0 {
		return Result{}, &models.DegenerateGeometryError{Op: "symmetry score", Reason: "no slices selected"}
	}

	lines := make([]geometry.Line2D, len(slices))
	for i, z := range slices {
		if z < 0 || z >= edge.Depth {
			return Result{}, &models.ShapeMismatchError{
				What: "slice selection",
				Want: fmt.Sprintf("slice index in [0, %d)", edge.Depth),
				Got:  fmt.Sprint(z),
			}
		}
		l, err := geometry.Intersect(plane, z)
		if err != nil {
			return Result{}, err
		}
		lines[i] = l
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	counts := make([]SliceCount, len(slices))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, z := range slices {
		g.Go(func() error {
			paired, total := countSlice(edge.Slice(z), edge.Width, edge.Height, lines[i])
			counts[i] = SliceCount{Z: z, Paired: paired, Total: total}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res := Result{Slices: counts}
	for _, c := range counts {
		res.Paired += c.Paired
		res.Total += c.Total
	}
	if res.Total == 0 {
		return res, &models.DegenerateGeometryError{
			Op:     "symmetry score",
			Reason: fmt.Sprintf("no foreground pixels in %d selected slices", len(slices)),
		}
	}
	res.Score = float64(res.Paired) / float64(res.Total)
	return res, nil
}

// countSlice returns how many foreground pixels of one slice have a
// foreground mirror pixel, and how many foreground pixels there are
func countSlice(slice []float64, width, height int, line geometry.Line2D) (paired, total int) {
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if slice[y*width+x] == 0 {
				continue
			}
			total++
			r := geometry.Reflect(geometry.Point2D{X: float64(x), Y: float64(y)}, line)
			rx, ry := math.RoundToEven(r.X), math.RoundToEven(r.Y)
			if math.IsNaN(rx) || math.IsNaN(ry) || rx < 0 || ry < 0 || rx >= float64(width) || ry >= float64(height) {
				continue
			}
			if slice[int(ry)*width+int(rx)] != 0 {
				paired++
			}
		}
	}
	return paired, total
}
