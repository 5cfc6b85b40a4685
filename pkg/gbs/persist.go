package gbs

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/tinylib/msgp/msgp"

	"neurosegment/internal/container"
	"neurosegment/internal/models"
	"neurosegment/pkg/features"
	"neurosegment/pkg/logging"
	"neurosegment/pkg/novelty"
)

// modelMagic identifies a persisted sieve model
const modelMagic = "GBSM"

// Marshal encodes the model as a versioned, compressed MessagePack document:
//
//	{descriptors: [name...], means: [f64...], stddevs: [f64...],
//	 lof: {neighbors, offset, k, train: [[f64...]...], kdist, lrd}}
func Marshal(m *Model) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	lof := m.LOF
	p := lof.Params()

	b := msgp.AppendMapHeader(nil, 4)
	b = msgp.AppendString(b, "descriptors")
	b = container.AppendStrings(b, features.Names(m.Descriptors))
	b = msgp.AppendString(b, "means")
	b = container.AppendFloats(b, m.Normalization.Means)
	b = msgp.AppendString(b, "stddevs")
	b = container.AppendFloats(b, m.Normalization.StdDevs)

	b = msgp.AppendString(b, "lof")
	b = msgp.AppendMapHeader(b, 6)
	b = msgp.AppendString(b, "neighbors")
	b = msgp.AppendInt(b, p.Neighbors)
	b = msgp.AppendString(b, "offset")
	b = msgp.AppendFloat64(b, p.Offset)
	b = msgp.AppendString(b, "k")
	b = msgp.AppendInt(b, lof.K())
	b = msgp.AppendString(b, "train")
	rows := lof.TrainingRows()
	b = msgp.AppendArrayHeader(b, uint32(len(rows)))
	for _, r := range rows {
		b = container.AppendFloats(b, r)
	}
	b = msgp.AppendString(b, "kdist")
	b = container.AppendFloats(b, lof.KDistances())
	b = msgp.AppendString(b, "lrd")
	b = container.AppendFloats(b, lof.Densities())

	return container.Encode(modelMagic, SchemaVersion, b)
}

// Unmarshal decodes a model written by Marshal. Every failure, including a
// well-formed document whose parts disagree, is a *models.ModelStateError.
func Unmarshal(data []byte) (*Model, error) {
	version, payload, err := container.Decode(modelMagic, data)
	if err != nil {
		return nil, &models.ModelStateError{Reason: "read container", Err: err}
	}
	if version != SchemaVersion {
		return nil, &models.ModelStateError{Reason: fmt.Sprintf("unsupported schema version %d", version)}
	}

	m, err := decodeModel(payload)
	if err != nil {
		return nil, &models.ModelStateError{Reason: "decode model", Err: err}
	}
	m.Version = int(version)
	if err := m.Validate(); err != nil {
		return nil, &models.ModelStateError{Reason: "inconsistent model", Err: err}
	}
	return m, nil
}

type lofState struct {
	params novelty.Params
	k      int
	train  [][]float64
	kdist  []float64
	lrd    []float64
}

func decodeModel(b []byte) (*Model, error) {
	sz, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, err
	}

	m := &Model{}
	var names []string
	var state *lofState
	for i := uint32(0); i < sz; i++ {
		var key []byte
		key, b, err = msgp.ReadMapKeyZC(b)
		if err != nil {
			return nil, err
		}
		switch string(key) {
		case "descriptors":
			names, b, err = container.ReadStrings(b)
		case "means":
			m.Normalization.Means, b, err = container.ReadFloats(b)
		case "stddevs":
			m.Normalization.StdDevs, b, err = container.ReadFloats(b)
		case "lof":
			state, b, err = decodeLOF(b)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", key)
		}
	}

	if m.Descriptors, err = features.ParseDescriptors(names); err != nil {
		return nil, err
	}
	if state == nil {
		return nil, errors.New("lof state missing")
	}
	if m.LOF, err = novelty.Restore(state.params, state.k, state.train, state.kdist, state.lrd); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeLOF(b []byte) (*lofState, []byte, error) {
	sz, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, b, err
	}
	s := &lofState{}
	for i := uint32(0); i < sz; i++ {
		var key []byte
		key, b, err = msgp.ReadMapKeyZC(b)
		if err != nil {
			return nil, b, err
		}
		switch string(key) {
		case "neighbors":
			s.params.Neighbors, b, err = msgp.ReadIntBytes(b)
		case "offset":
			s.params.Offset, b, err = msgp.ReadFloat64Bytes(b)
		case "k":
			s.k, b, err = msgp.ReadIntBytes(b)
		case "train":
			s.train, b, err = readRows(b)
		case "kdist":
			s.kdist, b, err = container.ReadFloats(b)
		case "lrd":
			s.lrd, b, err = container.ReadFloats(b)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return nil, b, errors.Wrapf(err, "lof field %q", key)
		}
	}
	return s, b, nil
}

func readRows(b []byte) ([][]float64, []byte, error) {
	n, b, err := container.ReadArrayHeader(b)
	if err != nil {
		return nil, b, err
	}
	rows := make([][]float64, n)
	for i := range rows {
		if rows[i], b, err = container.ReadFloats(b); err != nil {
			return nil, b, errors.Wrapf(err, "row %d", i)
		}
	}
	return rows, b, nil
}

// SaveModel writes the model to filename
func SaveModel(filename string, m *Model, logger *logging.Logger) error {
	data, err := Marshal(m)
	if err == nil {
		err = errors.Wrap(os.WriteFile(filename, data, 0644), "save model")
	}
	logging.OrNoop(logger).LogSave(context.Background(), "model", filename, len(data), err)
	return err
}

// LoadModel reads a model written by SaveModel
func LoadModel(filename string) (*Model, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "load model")
	}
	return Unmarshal(data)
}
