package container

import (
	"github.com/pkg/errors"
	"github.com/tinylib/msgp/msgp"
)

// AppendFloats appends vs as a MessagePack array of float64
func AppendFloats(b []byte, vs []float64) []byte {
	b = msgp.AppendArrayHeader(b, uint32(len(vs)))
	for _, v := range vs {
		b = msgp.AppendFloat64(b, v)
	}
	return b
}

// ReadFloats reads a MessagePack array of float64
func ReadFloats(b []byte) ([]float64, []byte, error) {
	sz, b, err := ReadArrayHeader(b)
	if err != nil {
		return nil, b, err
	}
	out := make([]float64, sz)
	for i := range out {
		out[i], b, err = msgp.ReadFloat64Bytes(b)
		if err != nil {
			return nil, b, errors.Wrapf(err, "element %d", i)
		}
	}
	return out, b, nil
}

// AppendStrings appends ss as a MessagePack array of strings
func AppendStrings(b []byte, ss []string) []byte {
	b = msgp.AppendArrayHeader(b, uint32(len(ss)))
	for _, s := range ss {
		b = msgp.AppendString(b, s)
	}
	return b
}

// ReadStrings reads a MessagePack array of strings
func ReadStrings(b []byte) ([]string, []byte, error) {
	sz, b, err := ReadArrayHeader(b)
	if err != nil {
		return nil, b, err
	}
	out := make([]string, sz)
	for i := range out {
		out[i], b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return nil, b, errors.Wrapf(err, "element %d", i)
		}
	}
	return out, b, nil
}

// ReadArrayHeader reads an array header and rejects sizes that cannot fit
// in the remaining bytes
func ReadArrayHeader(b []byte) (uint32, []byte, error) {
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return 0, b, err
	}
	if int(sz) > len(b) {
		return 0, b, errors.Errorf("array of %d elements exceeds %d remaining bytes", sz, len(b))
	}
	return sz, b, nil
}
