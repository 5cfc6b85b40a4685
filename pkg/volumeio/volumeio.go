// Package volumeio reads and writes volumes in the compressed container
// exchanged between the command line stages.
package volumeio

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/tinylib/msgp/msgp"

	"neurosegment/internal/container"
	"neurosegment/internal/models"
	"neurosegment/pkg/logging"
)

const (
	volumeMagic = "NSVL"

	// Version is the volume container schema version
	Version = 1
)

// Marshal encodes vol as {width, height, depth, voxelSize: [x, y, z], data}
func Marshal(vol *models.Volume) ([]byte, error) {
	if err := vol.Validate(); err != nil {
		return nil, err
	}
	b := msgp.AppendMapHeader(nil, 5)
	b = msgp.AppendString(b, "width")
	b = msgp.AppendInt(b, vol.Width)
	b = msgp.AppendString(b, "height")
	b = msgp.AppendInt(b, vol.Height)
	b = msgp.AppendString(b, "depth")
	b = msgp.AppendInt(b, vol.Depth)
	b = msgp.AppendString(b, "voxelSize")
	b = container.AppendFloats(b, []float64{vol.VoxelSize.X, vol.VoxelSize.Y, vol.VoxelSize.Z})
	b = msgp.AppendString(b, "data")
	b = container.AppendFloats(b, vol.Data)
	return container.Encode(volumeMagic, Version, b)
}

// Unmarshal decodes a volume written by Marshal
func Unmarshal(data []byte) (*models.Volume, error) {
	version, b, err := container.Decode(volumeMagic, data)
	if err != nil {
		return nil, errors.Wrap(err, "volume")
	}
	if version != Version {
		return nil, errors.Errorf("volume: unsupported schema version %d", version)
	}

	sz, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, errors.Wrap(err, "volume")
	}
	vol := &models.Volume{}
	var voxel []float64
	for i := uint32(0); i < sz; i++ {
		var key []byte
		key, b, err = msgp.ReadMapKeyZC(b)
		if err != nil {
			return nil, errors.Wrap(err, "volume")
		}
		switch string(key) {
		case "width":
			vol.Width, b, err = msgp.ReadIntBytes(b)
		case "height":
			vol.Height, b, err = msgp.ReadIntBytes(b)
		case "depth":
			vol.Depth, b, err = msgp.ReadIntBytes(b)
		case "voxelSize":
			voxel, b, err = container.ReadFloats(b)
		case "data":
			vol.Data, b, err = container.ReadFloats(b)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "volume field %q", key)
		}
	}

	switch len(voxel) {
	case 0:
		vol.VoxelSize = models.VoxelSize{X: 1, Y: 1, Z: 1}
	case 3:
		vol.VoxelSize = models.VoxelSize{X: voxel[0], Y: voxel[1], Z: voxel[2]}
	default:
		return nil, errors.Errorf("volume: voxel size has %d components", len(voxel))
	}
	if err := vol.Validate(); err != nil {
		return nil, err
	}
	return vol, nil
}

// Save writes vol to filename
func Save(filename string, vol *models.Volume, logger *logging.Logger) error {
	data, err := Marshal(vol)
	if err == nil {
		err = errors.Wrap(os.WriteFile(filename, data, 0644), "save volume")
	}
	logging.OrNoop(logger).LogSave(context.Background(), "volume", filename, len(data), err)
	return err
}

// Load reads a volume written by Save
func Load(filename string) (*models.Volume, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "load volume")
	}
	vol, err := Unmarshal(data)
	if err != nil {
		return nil, errors.Wrapf(err, "load volume %s", filename)
	}
	return vol, nil
}
