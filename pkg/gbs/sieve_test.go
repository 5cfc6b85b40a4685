package gbs

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinylib/msgp/msgp"

	"neurosegment/internal/container"
	"neurosegment/internal/models"
	"neurosegment/pkg/features"
	"neurosegment/pkg/novelty"
)

var testSet = []features.Descriptor{
	features.Area,
	features.MajorAxisLength,
	features.MinorAxisLength,
	features.Eccentricity,
}

// fillRect sets a w x h block with top-left corner (x0, y0) in slice z
func fillRect(v *models.Volume, x0, y0, z, w, h int) {
	for x := x0; x < x0+w; x++ {
		for y := y0; y < y0+h; y++ {
			v.Set(x, y, z, 1)
		}
	}
}

// trainingMasks holds one compact rectangle per slice, sides 3 to 6
func trainingMasks() []*models.Volume {
	v := models.NewVolume(40, 40, 16)
	z := 0
	for w := 3; w <= 6; w++ {
		for h := 3; h <= 6; h++ {
			fillRect(v, 10, 10, z, w, h)
			z++
		}
	}
	return []*models.Volume{v}
}

func trainModel(t *testing.T) *Model {
	t.Helper()
	m, err := Train(trainingMasks(), testSet, novelty.DefaultParams(), Options{Workers: 2})
	require.NoError(t, err)
	return m
}

// candidateVolume has a compact blob in slice 0, and a blob plus a thin
// 30 voxel streak in slice 1
func candidateVolume() *models.Volume {
	v := models.NewVolume(40, 40, 2)
	fillRect(v, 5, 5, 0, 4, 5)
	fillRect(v, 2, 2, 1, 5, 4)
	fillRect(v, 5, 20, 1, 30, 1)
	return v
}

func TestTrain(t *testing.T) {
	m := trainModel(t)
	assert.Equal(t, SchemaVersion, m.Version)
	assert.Equal(t, testSet, m.Descriptors)
	assert.Equal(t, 4, m.Normalization.Width())
	assert.Equal(t, 15, m.LOF.K())
	require.NoError(t, m.Validate())
}

func TestTrainErrors(t *testing.T) {
	_, err := Train(nil, testSet, novelty.DefaultParams(), Options{})
	assert.Error(t, err)

	single := models.NewVolume(10, 10, 1)
	fillRect(single, 1, 1, 0, 3, 4)
	_, err = Train([]*models.Volume{single}, testSet, novelty.DefaultParams(), Options{})
	assert.Error(t, err)

	_, err = Train(trainingMasks(), nil, novelty.DefaultParams(), Options{})
	assert.Error(t, err)
}

func TestSieveRemovesThinStreak(t *testing.T) {
	m := trainModel(t)
	in := candidateVolume()
	before := in.Clone()

	out, report, err := SieveWithReport(in, m, Options{})
	require.NoError(t, err)

	assert.Equal(t, before.Data, in.Data, "input must not be modified")
	assert.Equal(t, 3, report.Regions)
	require.Len(t, report.Removed, 1)
	assert.Equal(t, 1, report.Removed[0].Slice)
	assert.Equal(t, 30, report.Removed[0].Area)
	assert.Equal(t, 30, report.VoxelsRemoved)

	assert.Equal(t, 20+20, out.ForegroundCount())
	assert.Equal(t, 0.0, out.At(20, 20, 1))
	assert.Equal(t, 1.0, out.At(6, 6, 0))
	assert.Equal(t, 1.0, out.At(3, 3, 1))
	assert.Equal(t, in.VoxelSize, out.VoxelSize)
}

func TestSieveIdempotentAndMonotone(t *testing.T) {
	m := trainModel(t)
	in := candidateVolume()

	once, err := Sieve(in, m, Options{})
	require.NoError(t, err)
	twice, err := Sieve(once, m, Options{})
	require.NoError(t, err)

	assert.Equal(t, once.Data, twice.Data)
	assert.LessOrEqual(t, once.ForegroundCount(), in.ForegroundCount())
}

func TestSieveEmptyVolumeSkipsModel(t *testing.T) {
	in := models.NewVolume(4, 4, 2)
	out, err := Sieve(in, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, in.Data, out.Data)
	assert.NotSame(t, in, out)
}

func TestSieveErrors(t *testing.T) {
	m := trainModel(t)

	bad := models.NewVolume(4, 4, 1)
	bad.Data[3] = -1
	_, err := Sieve(bad, m, Options{})
	var voxErr *models.InvalidVoxelError
	assert.True(t, errors.As(err, &voxErr))

	_, err = Sieve(candidateVolume(), nil, Options{})
	var stateErr *models.ModelStateError
	assert.True(t, errors.As(err, &stateErr))

	mismatched := *m
	mismatched.Descriptors = []features.Descriptor{features.Area}
	_, err = Sieve(candidateVolume(), &mismatched, Options{})
	var shapeErr *models.ShapeMismatchError
	assert.True(t, errors.As(err, &shapeErr))
}

func TestModelRoundTrip(t *testing.T) {
	m := trainModel(t)
	data, err := Marshal(m)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, m.Version, got.Version)
	assert.Equal(t, m.Descriptors, got.Descriptors)
	assert.Equal(t, m.Normalization, got.Normalization)
	assert.Equal(t, m.LOF.Params(), got.LOF.Params())
	assert.Equal(t, m.LOF.TrainingRows(), got.LOF.TrainingRows())

	want, err := Sieve(candidateVolume(), m, Options{})
	require.NoError(t, err)
	have, err := Sieve(candidateVolume(), got, Options{})
	require.NoError(t, err)
	assert.Equal(t, want.Data, have.Data)
}

func TestSaveLoadModel(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping file output test in short mode")
	}
	m := trainModel(t)
	path := filepath.Join(t.TempDir(), "sieve.gbsm")
	require.NoError(t, SaveModel(path, m, nil))

	got, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, m.Normalization, got.Normalization)

	_, err = LoadModel(filepath.Join(t.TempDir(), "missing.gbsm"))
	assert.Error(t, err)
}

func TestUnmarshalRejectsCorruptModels(t *testing.T) {
	m := trainModel(t)
	data, err := Marshal(m)
	require.NoError(t, err)

	truncated := data[:len(data)/2]
	badMagic := append([]byte("XXXX"), data[4:]...)
	noLOF := func() []byte {
		b := msgp.AppendMapHeader(nil, 1)
		b = msgp.AppendString(b, "descriptors")
		b = container.AppendStrings(b, features.Names(testSet))
		out, err := container.Encode(modelMagic, SchemaVersion, b)
		require.NoError(t, err)
		return out
	}()
	futureVersion, err := container.Encode(modelMagic, SchemaVersion+1, nil)
	require.NoError(t, err)

	// a NaN density would make every decision NaN and keep every region
	lrd := m.LOF.Densities()
	saved := lrd[0]
	lrd[0] = math.NaN()
	nanDensity, err := Marshal(m)
	lrd[0] = saved
	require.NoError(t, err)

	for name, blob := range map[string][]byte{
		"truncated":      truncated,
		"bad magic":      badMagic,
		"missing lof":    noLOF,
		"future version": futureVersion,
		"nan density":    nanDensity,
		"empty":          nil,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Unmarshal(blob)
			var stateErr *models.ModelStateError
			assert.True(t, errors.As(err, &stateErr), "got %v", err)
		})
	}
}
