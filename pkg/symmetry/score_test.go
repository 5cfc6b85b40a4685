package symmetry

import (
	"bytes"
	"errors"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurosegment/internal/models"
	"neurosegment/pkg/geometry"
	"neurosegment/pkg/logging"
)

// planeX returns the vertical plane x = c
func planeX(t *testing.T, c float64) geometry.Plane {
	t.Helper()
	p, err := geometry.PlaneFromPoints(geometry.Vec3{X: c}, geometry.Vec3{X: c, Y: 1}, geometry.Vec3{X: c, Z: 1})
	require.NoError(t, err)
	return p
}

func TestSinglePixelScenario(t *testing.T) {
	plane := planeX(t, 2)

	v := models.NewVolume(5, 5, 1)
	v.Set(1, 1, 0, 1)
	s, err := Score(v, plane, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, s)

	v.Set(3, 1, 0, 1)
	s, err = Score(v, plane, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, s)
}

func TestMirrorSymmetricVolumeScoresOne(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	v := models.NewVolume(21, 16, 6)
	for z := 0; z < v.Depth; z++ {
		for y := 0; y < v.Height; y++ {
			for x := 0; x <= 10; x++ {
				if rng.Intn(4) == 0 {
					v.Set(x, y, z, 1)
					v.Set(20-x, y, z, 1)
				}
			}
		}
	}

	res, err := ScoreDetailed(v, planeX(t, 10), nil, Options{Workers: 3})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Score)
	assert.Equal(t, v.ForegroundCount(), res.Total)
	assert.Len(t, res.Slices, 6)
}

func TestScoreInRangeAndOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	v := models.NewVolume(24, 24, 5)
	for i := range v.Data {
		if rng.Intn(3) == 0 {
			v.Data[i] = 1
		}
	}
	// oblique plane through the volume centre
	plane, err := geometry.PlaneFromNormal(geometry.Vec3{X: 1, Y: 0.3, Z: 0.2}, geometry.Vec3{X: 12, Y: 12, Z: 2})
	require.NoError(t, err)

	serial, err := ScoreDetailed(v, plane, nil, Options{Workers: 1})
	require.NoError(t, err)
	parallel, err := ScoreDetailed(v, plane, nil, Options{Workers: 4})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, serial.Score, 0.0)
	assert.LessOrEqual(t, serial.Score, 1.0)
	assert.Equal(t, serial, parallel)

	sum := 0
	for _, c := range serial.Slices {
		sum += c.Paired
	}
	assert.Equal(t, serial.Paired, sum)
}

func TestSliceSelection(t *testing.T) {
	v := models.NewVolume(5, 5, 3)
	v.Set(1, 1, 0, 1)
	v.Set(1, 1, 2, 1)
	v.Set(3, 1, 2, 1)

	res, err := ScoreDetailed(v, planeX(t, 2), []int{2}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Score)
	assert.Equal(t, []SliceCount{{Z: 2, Paired: 2, Total: 2}}, res.Slices)

	res, err = ScoreDetailed(v, planeX(t, 2), nil, Options{})
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3, res.Score, 1e-12)
}

func TestOutOfBoundsReflectionIsUnpaired(t *testing.T) {
	v := models.NewVolume(5, 5, 1)
	v.Set(0, 0, 0, 1)
	s, err := Score(v, planeX(t, 3), nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, s)
}

func TestNearlyVerticalPlane(t *testing.T) {
	plane := geometry.Plane{Normal: geometry.Vec3{X: 1, Y: 1e-300}, Point: geometry.Vec3{X: 2}}

	for _, size := range []int{4, 5} {
		v := models.NewVolume(size, size, 1)
		v.Set(1, 1, 0, 1)
		v.Set(3, 1, 0, 1)
		s, err := Score(v, plane, nil, Options{})
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, 1.0, s, "size %d", size)
	}
}

func TestScoreErrors(t *testing.T) {
	var geomErr *models.DegenerateGeometryError
	var shapeErr *models.ShapeMismatchError

	empty := models.NewVolume(5, 5, 2)
	_, err := Score(empty, planeX(t, 2), nil, Options{})
	assert.True(t, errors.As(err, &geomErr))

	v := models.NewVolume(5, 5, 2)
	v.Set(1, 1, 0, 1)
	_, err = Score(v, planeX(t, 2), []int{}, Options{})
	assert.True(t, errors.As(err, &geomErr))

	_, err = Score(v, planeX(t, 2), []int{0, 2}, Options{})
	assert.True(t, errors.As(err, &shapeErr))

	axial, err := geometry.PlaneFromNormal(geometry.Vec3{Z: 1}, geometry.Vec3{})
	require.NoError(t, err)
	_, err = Score(v, axial, nil, Options{})
	assert.True(t, errors.As(err, &geomErr))
}

func TestScoreLogsResult(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(slog.NewJSONHandler(&buf, nil))

	v := models.NewVolume(5, 5, 1)
	v.Set(1, 1, 0, 1)
	v.Set(3, 1, 0, 1)
	_, err := Score(v, planeX(t, 2), nil, Options{Logger: logger})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"score":1`)
	assert.Contains(t, buf.String(), `"stage":"symmetry"`)
}
