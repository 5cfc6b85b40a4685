// Package novelty implements local outlier factor novelty detection: the
// model is fitted on normal examples only and scores unseen points by how
// much sparser their neighbourhood is than that of their training neighbours.
package novelty

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"neurosegment/internal/models"
)

const (
	// DefaultNeighbors is the default neighbourhood size
	DefaultNeighbors = 20

	// DefaultOffset is the default threshold on the negated outlier factor:
	// points whose LOF exceeds 1.5 are outliers
	DefaultOffset = -1.5

	// lrdEpsilon keeps the reachability density finite for duplicate points
	lrdEpsilon = 1e-10
)

// Params configures a LOF model
type Params struct {
	// Neighbors is the requested neighbourhood size. It is capped at
	// n-1 for a training set of n rows.
	Neighbors int

	// Offset is subtracted from ScoreSamples to obtain the decision
	// function; negative decisions are outliers
	Offset float64
}

// Validate checks that the neighbourhood size is positive and the offset finite
func (p Params) Validate() error {
	if p.Neighbors < 1 {
		return errors.Errorf("novelty: neighbors must be positive, got %d", p.Neighbors)
	}
	if math.IsNaN(p.Offset) || math.IsInf(p.Offset, 0) {
		return errors.Errorf("novelty: offset must be finite, got %v", p.Offset)
	}
	return nil
}

// DefaultParams returns the default LOF parameters
func DefaultParams() Params {
	return Params{Neighbors: DefaultNeighbors, Offset: DefaultOffset}
}

// LOF is a fitted local outlier factor model in novelty mode. It is
// read-only after Fit or Restore and safe for concurrent use.
type LOF struct {
	params Params

	// k is the effective neighbourhood size
	k int

	// train holds the fitted rows
	train [][]float64

	// kdist is the distance of every training row to its k-th neighbour
	kdist []float64

	// lrd is the local reachability density of every training row
	lrd []float64

	ix *index
}

// Fit learns the local densities of the normal rows. Rows must all have the
// same width and there must be at least two of them.
func Fit(rows [][]float64, params Params) (*LOF, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, errors.Errorf("novelty: need at least 2 training rows, got %d", len(rows))
	}
	width, err := checkRows(rows, -1)
	if err != nil {
		return nil, err
	}
	if width == 0 {
		return nil, errors.New("novelty: training rows have no features")
	}

	train := make([][]float64, len(rows))
	for i, r := range rows {
		train[i] = append([]float64(nil), r...)
	}

	m := &LOF{
		params: params,
		k:      min(params.Neighbors, len(rows)-1),
		train:  train,
		ix:     newIndex(train),
	}

	nbrs := make([][]neighbor, len(train))
	m.kdist = make([]float64, len(train))
	for i, r := range train {
		nbrs[i] = m.ix.nearest(r, m.k, i)
		m.kdist[i] = nbrs[i][len(nbrs[i])-1].dist
	}
	m.lrd = make([]float64, len(train))
	for i := range train {
		m.lrd[i] = m.reachDensity(nbrs[i])
	}
	return m, nil
}

// Restore rebuilds a fitted model from its persisted state
func Restore(params Params, k int, train [][]float64, kdist, lrd []float64) (*LOF, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	n := len(train)
	switch {
	case n < 2:
		return nil, errors.Errorf("novelty: restored model has %d training rows", n)
	case k < 1 || k > n-1 || k > params.Neighbors:
		return nil, errors.Errorf("novelty: restored neighbourhood size %d invalid for %d rows", k, n)
	case len(kdist) != n || len(lrd) != n:
		return nil, &models.ShapeMismatchError{
			What: "restored LOF state",
			Want: fmt.Sprintf("%d k-distances and densities", n),
			Got:  fmt.Sprintf("%d and %d", len(kdist), len(lrd)),
		}
	}
	if _, err := checkRows(train, -1); err != nil {
		return nil, err
	}
	for i := range train {
		if d := kdist[i]; math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			return nil, errors.Errorf("novelty: k-distance %v of row %d", d, i)
		}
		if d := lrd[i]; math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
			return nil, errors.Errorf("novelty: reachability density %v of row %d", d, i)
		}
	}
	return &LOF{
		params: params,
		k:      k,
		train:  train,
		kdist:  kdist,
		lrd:    lrd,
		ix:     newIndex(train),
	}, nil
}

// Params returns the parameters the model was fitted with
func (m *LOF) Params() Params { return m.params }

// K returns the effective neighbourhood size
func (m *LOF) K() int { return m.k }

// Dims returns the feature width the model expects
func (m *LOF) Dims() int { return len(m.train[0]) }

// TrainingRows returns the fitted rows. The result must not be modified.
func (m *LOF) TrainingRows() [][]float64 { return m.train }

// KDistances returns the k-distance of every training row
func (m *LOF) KDistances() []float64 { return m.kdist }

// Densities returns the local reachability density of every training row
func (m *LOF) Densities() []float64 { return m.lrd }

// ScoreSamples returns the negated local outlier factor of every row,
// computed against the training set only. Values near -1 are inliers.
func (m *LOF) ScoreSamples(rows [][]float64) ([]float64, error) {
	if _, err := checkRows(rows, m.Dims()); err != nil {
		return nil, err
	}
	scores := make([]float64, len(rows))
	for i, r := range rows {
		nbrs := m.ix.nearest(r, m.k, -1)
		lrd := m.reachDensity(nbrs)
		var ratio float64
		for _, nb := range nbrs {
			ratio += m.lrd[nb.idx] / lrd
		}
		scores[i] = -ratio / float64(len(nbrs))
	}
	return scores, nil
}

// DecisionFunction returns ScoreSamples shifted by the offset; negative
// values are outliers
func (m *LOF) DecisionFunction(rows [][]float64) ([]float64, error) {
	scores, err := m.ScoreSamples(rows)
	if err != nil {
		return nil, err
	}
	for i := range scores {
		scores[i] -= m.params.Offset
	}
	return scores, nil
}

// Predict reports for every row whether it is an outlier
func (m *LOF) Predict(rows [][]float64) ([]bool, error) {
	dec, err := m.DecisionFunction(rows)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(dec))
	for i, d := range dec {
		out[i] = d < 0
	}
	return out, nil
}

// reachDensity is the inverse mean reachability distance of a point to its
// neighbours, where the reachability distance to neighbour o is
// max(dist, kdist(o))
func (m *LOF) reachDensity(nbrs []neighbor) float64 {
	var sum float64
	for _, nb := range nbrs {
		sum += math.Max(nb.dist, m.kdist[nb.idx])
	}
	return 1 / (sum/float64(len(nbrs)) + lrdEpsilon)
}

// checkRows verifies that all rows share one width (want, when non-negative)
// and hold finite values
func checkRows(rows [][]float64, want int) (int, error) {
	for i, r := range rows {
		if want < 0 {
			want = len(r)
		}
		if len(r) != want {
			return 0, &models.ShapeMismatchError{
				What: fmt.Sprintf("feature row %d", i),
				Want: fmt.Sprintf("%d columns", want),
				Got:  fmt.Sprintf("%d columns", len(r)),
			}
		}
		for j, v := range r {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, errors.Errorf("novelty: non-finite value %v in row %d column %d", v, i, j)
			}
		}
	}
	if want < 0 {
		want = 0
	}
	return want, nil
}
