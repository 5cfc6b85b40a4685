// Package container frames persisted artifacts: a four byte magic, a
// little-endian uint16 schema version and a zstd compressed payload.
package container

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

const headerSize = 6

// ZSTD encoder/decoder pools
var (
	encoderPool sync.Pool
	decoderPool sync.Pool
)

func getEncoder() (*zstd.Encoder, error) {
	if v := encoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, errors.Wrap(err, "container: create zstd encoder")
	}
	return enc, nil
}

func getDecoder() (*zstd.Decoder, error) {
	if v := decoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "container: create zstd decoder")
	}
	return dec, nil
}

// Encode returns magic, version and the compressed payload as one blob.
// magic must be four bytes long.
func Encode(magic string, version uint16, payload []byte) ([]byte, error) {
	if len(magic) != 4 {
		return nil, errors.Errorf("container: magic %q must be 4 bytes", magic)
	}
	enc, err := getEncoder()
	if err != nil {
		return nil, err
	}
	defer encoderPool.Put(enc)

	out := make([]byte, headerSize, headerSize+len(payload)/2)
	copy(out, magic)
	binary.LittleEndian.PutUint16(out[4:], version)
	return enc.EncodeAll(payload, out), nil
}

// Decode checks the magic and returns the schema version and the
// decompressed payload
func Decode(magic string, data []byte) (uint16, []byte, error) {
	if len(data) < headerSize {
		return 0, nil, errors.Errorf("container: %d bytes is shorter than the header", len(data))
	}
	if !bytes.Equal(data[:4], []byte(magic)) {
		return 0, nil, errors.Errorf("container: bad magic %q, want %q", data[:4], magic)
	}
	version := binary.LittleEndian.Uint16(data[4:headerSize])

	dec, err := getDecoder()
	if err != nil {
		return 0, nil, err
	}
	defer decoderPool.Put(dec)

	payload, err := dec.DecodeAll(data[headerSize:], nil)
	if err != nil {
		return 0, nil, errors.Wrap(err, "container: decompress")
	}
	return version, payload, nil
}
