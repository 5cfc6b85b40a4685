// Package standardize applies per-feature z-score normalization with
// statistics captured at training time.
package standardize

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"neurosegment/internal/models"
)

// Normalization holds per-column statistics aligned positionally with the
// feature vector they were fitted on
type Normalization struct {
	Means   []float64
	StdDevs []float64
}

// Fit computes the column means and unbiased sample standard deviations of rows
func Fit(rows [][]float64) (Normalization, error) {
	if len(rows) == 0 {
		return Normalization{}, errors.New("standardize: no rows to fit")
	}
	width := len(rows[0])
	if width == 0 {
		return Normalization{}, errors.New("standardize: rows have no columns")
	}
	for i, r := range rows {
		if len(r) != width {
			return Normalization{}, &models.ShapeMismatchError{
				What: fmt.Sprintf("row %d width", i),
				Want: fmt.Sprint(width),
				Got:  fmt.Sprint(len(r)),
			}
		}
	}

	n := Normalization{
		Means:   make([]float64, width),
		StdDevs: make([]float64, width),
	}
	col := make([]float64, len(rows))
	for j := 0; j < width; j++ {
		for i, r := range rows {
			col[i] = r[j]
		}
		n.Means[j], n.StdDevs[j] = stat.MeanStdDev(col, nil)
	}
	return n, nil
}

// Width is the number of columns the normalization was fitted on
func (n Normalization) Width() int { return len(n.Means) }

// Validate checks that means and stddevs are aligned and usable as divisors
func (n Normalization) Validate() error {
	if len(n.Means) != len(n.StdDevs) {
		return &models.ShapeMismatchError{
			What: "normalization vectors",
			Want: fmt.Sprintf("%d stddevs", len(n.Means)),
			Got:  fmt.Sprint(len(n.StdDevs)),
		}
	}
	for j, s := range n.StdDevs {
		if s == 0 || math.IsNaN(s) {
			return &models.DegenerateGeometryError{
				Op:     "standardize",
				Reason: fmt.Sprintf("stddev of column %d is %v", j, s),
			}
		}
	}
	return nil
}

// Apply returns (x - mean) / stddev for every column of every row. The input
// rows are not modified.
func (n Normalization) Apply(rows [][]float64) ([][]float64, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	out := make([][]float64, len(rows))
	for i, r := range rows {
		if len(r) != len(n.Means) {
			return nil, &models.ShapeMismatchError{
				What: fmt.Sprintf("feature vector %d", i),
				Want: fmt.Sprintf("%d columns", len(n.Means)),
				Got:  fmt.Sprintf("%d columns", len(r)),
			}
		}
		s := make([]float64, len(r))
		for j, x := range r {
			s[j] = (x - n.Means[j]) / n.StdDevs[j]
		}
		out[i] = s
	}
	return out, nil
}
