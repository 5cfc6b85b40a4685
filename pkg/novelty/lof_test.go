package novelty

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurosegment/internal/models"
)

// gridCluster returns an n x n grid of 2D points with the given spacing
func gridCluster(n int, spacing float64) [][]float64 {
	var rows [][]float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			rows = append(rows, []float64{float64(i) * spacing, float64(j) * spacing})
		}
	}
	return rows
}

func TestFitCapsNeighbors(t *testing.T) {
	m, err := Fit([][]float64{{0}, {1}, {2}}, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 2, m.K())
	assert.Equal(t, 1, m.Dims())
}

func TestPredictFlagsFarPoint(t *testing.T) {
	m, err := Fit(gridCluster(6, 1), Params{Neighbors: 5, Offset: DefaultOffset})
	require.NoError(t, err)

	out, err := m.Predict([][]float64{{2.5, 2.5}, {40, 40}, {0, 0}})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false}, out)
}

func TestScoreSamplesOnUniformGridNearMinusOne(t *testing.T) {
	train := gridCluster(8, 1)
	m, err := Fit(train, Params{Neighbors: 4, Offset: DefaultOffset})
	require.NoError(t, err)

	// an interior grid point has the same neighbourhood structure as its neighbours
	scores, err := m.ScoreSamples([][]float64{{3, 3}})
	require.NoError(t, err)
	assert.InDelta(t, -1, scores[0], 1e-6)

	dec, err := m.DecisionFunction([][]float64{{3, 3}})
	require.NoError(t, err)
	assert.InDelta(t, scores[0]-DefaultOffset, dec[0], 1e-12)
}

func TestKDistancesMatchBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	rows := make([][]float64, 40)
	for i := range rows {
		rows[i] = []float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
	}
	m, err := Fit(rows, Params{Neighbors: 5, Offset: DefaultOffset})
	require.NoError(t, err)

	for i, r := range rows {
		dists := make([]float64, 0, len(rows)-1)
		for j, o := range rows {
			if i == j {
				continue
			}
			var s float64
			for d := range r {
				s += (r[d] - o[d]) * (r[d] - o[d])
			}
			dists = append(dists, math.Sqrt(s))
		}
		assert.InDelta(t, kth(dists, 5), m.KDistances()[i], 1e-12)
	}
}

func TestRestoreGivesSamePredictions(t *testing.T) {
	train := gridCluster(5, 0.5)
	m, err := Fit(train, Params{Neighbors: 3, Offset: -1.2})
	require.NoError(t, err)

	r, err := Restore(m.Params(), m.K(), m.TrainingRows(), m.KDistances(), m.Densities())
	require.NoError(t, err)

	queries := [][]float64{{0.1, 0.2}, {5, 5}, {1, 1}}
	a, err := m.ScoreSamples(queries)
	require.NoError(t, err)
	b, err := r.ScoreSamples(queries)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRestoreRejectsInconsistentState(t *testing.T) {
	_, err := Restore(DefaultParams(), 1, [][]float64{{0}, {1}}, []float64{1}, []float64{1, 1})
	var shapeErr *models.ShapeMismatchError
	assert.True(t, errors.As(err, &shapeErr))

	_, err = Restore(DefaultParams(), 5, [][]float64{{0}, {1}}, []float64{1, 1}, []float64{1, 1})
	assert.Error(t, err)
}

func TestRestoreRejectsNonFiniteState(t *testing.T) {
	m, err := Fit(gridCluster(4, 1), Params{Neighbors: 3, Offset: DefaultOffset})
	require.NoError(t, err)

	restore := func(params Params, kdist, lrd []float64) error {
		_, err := Restore(params, m.K(), m.TrainingRows(), kdist, lrd)
		return err
	}
	with := func(vs []float64, i int, v float64) []float64 {
		out := append([]float64(nil), vs...)
		out[i] = v
		return out
	}
	kdist, lrd := m.KDistances(), m.Densities()
	require.NoError(t, restore(m.Params(), kdist, lrd))

	assert.Error(t, restore(Params{Neighbors: 3, Offset: math.NaN()}, kdist, lrd))
	assert.Error(t, restore(Params{Neighbors: 3, Offset: math.Inf(-1)}, kdist, lrd))
	assert.Error(t, restore(Params{Neighbors: 0, Offset: DefaultOffset}, kdist, lrd))
	assert.Error(t, restore(Params{Neighbors: 2, Offset: DefaultOffset}, kdist, lrd))
	assert.Error(t, restore(m.Params(), with(kdist, 0, math.NaN()), lrd))
	assert.Error(t, restore(m.Params(), with(kdist, 1, -1), lrd))
	assert.Error(t, restore(m.Params(), kdist, with(lrd, 0, math.NaN())))
	assert.Error(t, restore(m.Params(), kdist, with(lrd, 2, math.Inf(1))))
	assert.Error(t, restore(m.Params(), kdist, with(lrd, 3, 0)))

	_, err = Fit(gridCluster(4, 1), Params{Neighbors: 3, Offset: math.NaN()})
	assert.Error(t, err)
}

func TestFitAndScoreErrors(t *testing.T) {
	_, err := Fit([][]float64{{1, 2}}, DefaultParams())
	assert.Error(t, err)

	_, err = Fit([][]float64{{1, 2}, {1}}, DefaultParams())
	assert.Error(t, err)

	_, err = Fit([][]float64{{1}, {math.NaN()}}, DefaultParams())
	assert.Error(t, err)

	m, err := Fit([][]float64{{1, 2}, {2, 3}}, DefaultParams())
	require.NoError(t, err)
	_, err = m.Predict([][]float64{{1, 2, 3}})
	var shapeErr *models.ShapeMismatchError
	assert.True(t, errors.As(err, &shapeErr))
}

func TestDuplicateTrainingRows(t *testing.T) {
	rows := [][]float64{{1, 1}, {1, 1}, {1, 1}, {1, 1}}
	m, err := Fit(rows, Params{Neighbors: 2, Offset: DefaultOffset})
	require.NoError(t, err)

	out, err := m.Predict([][]float64{{1, 1}, {3, 3}})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, out)
}

// kth returns the k-th smallest value (1-based)
func kth(values []float64, k int) float64 {
	v := append([]float64(nil), values...)
	for i := 0; i < k; i++ {
		for j := i + 1; j < len(v); j++ {
			if v[j] < v[i] {
				v[i], v[j] = v[j], v[i]
			}
		}
	}
	return v[k-1]
}

func TestNearestAscending(t *testing.T) {
	rows := [][]float64{{0}, {5}, {1}, {3}, {2}, {4}}
	ix := newIndex(rows)

	got := ix.nearest([]float64{0}, 4, 0)
	require.Len(t, got, 4)
	for i, want := range []int{2, 4, 3, 5} {
		assert.Equal(t, want, got[i].idx)
		assert.InDelta(t, float64(i+1), got[i].dist, 1e-12)
	}

	// asking for more than exist drops the heap sentinel
	assert.Len(t, ix.nearest([]float64{0}, 10, -1), len(rows))
}
