// Package features computes 2D geometric descriptors for the labeled regions
// of a volume. Descriptors are a closed enumeration so the column layout used
// at training time cannot silently drift from the one used at inference.
package features

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Descriptor identifies one geometric descriptor of a region
type Descriptor int

const (
	Area Descriptor = iota
	BBoxArea
	ConvexArea
	Eccentricity
	EquivalentDiameter
	Extent
	FilledArea
	InertiaTensor
	InertiaTensorEigvals
	MajorAxisLength
	MinorAxisLength
	MomentsHu
	Orientation
	Perimeter
	Solidity

	numDescriptors
)

var descriptorInfo = [numDescriptors]struct {
	name  string
	width int
}{
	Area:                 {"area", 1},
	BBoxArea:             {"bbox_area", 1},
	ConvexArea:           {"convex_area", 1},
	Eccentricity:         {"eccentricity", 1},
	EquivalentDiameter:   {"equivalent_diameter", 1},
	Extent:               {"extent", 1},
	FilledArea:           {"filled_area", 1},
	InertiaTensor:        {"inertia_tensor", 4},
	InertiaTensorEigvals: {"inertia_tensor_eigvals", 2},
	MajorAxisLength:      {"major_axis_length", 1},
	MinorAxisLength:      {"minor_axis_length", 1},
	MomentsHu:            {"moments_hu", 7},
	Orientation:          {"orientation", 1},
	Perimeter:            {"perimeter", 1},
	Solidity:             {"solidity", 1},
}

// CompactSet is the descriptor set that only uses moment-based and
// area-based descriptors.
var CompactSet = []Descriptor{
	Area, Extent, FilledArea, InertiaTensor, MajorAxisLength, MinorAxisLength,
}

// ExtendedSet is the default descriptor set.
var ExtendedSet = []Descriptor{
	Area, BBoxArea, ConvexArea, Eccentricity, EquivalentDiameter, Extent,
	InertiaTensor, MajorAxisLength, MinorAxisLength,
	MomentsHu, Perimeter, Solidity,
}

// String returns the configuration name of the descriptor
func (d Descriptor) String() string {
	if d < 0 || d >= numDescriptors {
		return fmt.Sprintf("Descriptor(%d)", int(d))
	}
	return descriptorInfo[d].name
}

// Width is the number of scalar columns the descriptor contributes
func (d Descriptor) Width() int {
	if d < 0 || d >= numDescriptors {
		return 0
	}
	return descriptorInfo[d].width
}

// ParseDescriptor maps a configuration name to its Descriptor
func ParseDescriptor(name string) (Descriptor, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for d := Descriptor(0); d < numDescriptors; d++ {
		if descriptorInfo[d].name == n {
			return d, nil
		}
	}
	return 0, errors.Errorf("unknown descriptor %q", name)
}

// ParseDescriptors maps configuration names to a descriptor set, rejecting
// unknown and duplicate names
func ParseDescriptors(names []string) ([]Descriptor, error) {
	if len(names) == 0 {
		return nil, errors.New("empty descriptor set")
	}
	set := make([]Descriptor, 0, len(names))
	seen := make(map[Descriptor]bool, len(names))
	for _, name := range names {
		d, err := ParseDescriptor(name)
		if err != nil {
			return nil, err
		}
		if seen[d] {
			return nil, errors.Errorf("duplicate descriptor %q", name)
		}
		seen[d] = true
		set = append(set, d)
	}
	return set, nil
}

// Names returns the configuration names of a descriptor set
func Names(set []Descriptor) []string {
	names := make([]string, len(set))
	for i, d := range set {
		names[i] = d.String()
	}
	return names
}

// Width returns the total number of columns produced by a descriptor set
func Width(set []Descriptor) int {
	w := 0
	for _, d := range set {
		w += d.Width()
	}
	return w
}

// Columns returns the flattened column names of a descriptor set. Matrix
// valued descriptors are suffixed with their indices, e.g. inertia_tensor-0-1.
func Columns(set []Descriptor) []string {
	cols := make([]string, 0, Width(set))
	for _, d := range set {
		switch d {
		case InertiaTensor:
			for i := 0; i < 2; i++ {
				for j := 0; j < 2; j++ {
					cols = append(cols, fmt.Sprintf("%s-%d-%d", d, i, j))
				}
			}
		default:
			if d.Width() == 1 {
				cols = append(cols, d.String())
				continue
			}
			for i := 0; i < d.Width(); i++ {
				cols = append(cols, fmt.Sprintf("%s-%d", d, i))
			}
		}
	}
	return cols
}

// validateSet checks that every descriptor is known
func validateSet(set []Descriptor) error {
	if len(set) == 0 {
		return errors.New("empty descriptor set")
	}
	for _, d := range set {
		if d < 0 || d >= numDescriptors {
			return errors.Errorf("unknown descriptor %d", int(d))
		}
	}
	return nil
}
