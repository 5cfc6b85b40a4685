package features

import (
	"fmt"
	"math"
	"sort"

	"github.com/pkg/errors"

	"neurosegment/internal/models"
)

// RegionRecord is the descriptor vector of one labeled region in one slice
type RegionRecord struct {
	// Label is the global region label
	Label int

	// Slice is the axial slice the region lies in
	Slice int

	// Area is the pixel count of the region, kept regardless of the set
	Area int

	// Features holds the flattened descriptor values in set order
	Features []float64
}

// Extract computes the descriptors of set for every region of every slice.
// Records are ordered by slice, then by label. Slices without regions
// contribute nothing.
func Extract(lv *models.LabeledVolume, set []Descriptor) ([]RegionRecord, error) {
	if lv == nil {
		return nil, errors.New("extract: labeled volume is nil")
	}
	if err := validateSet(set); err != nil {
		return nil, errors.Wrap(err, "extract")
	}
	if len(lv.Labels) != lv.Width*lv.Height*lv.Depth {
		return nil, &models.ShapeMismatchError{
			What: "labeled volume data length",
			Want: fmt.Sprintf("%d labels (%s)", lv.Width*lv.Height*lv.Depth, models.Dims(lv.Width, lv.Height, lv.Depth)),
			Got:  fmt.Sprintf("%d labels", len(lv.Labels)),
		}
	}

	width := Width(set)
	var records []RegionRecord
	for z := 0; z < lv.Depth; z++ {
		for _, rg := range sliceRegions(lv.SliceLabels(z), lv.Width, lv.Height) {
			records = append(records, RegionRecord{
				Label:    rg.label,
				Slice:    z,
				Area:     len(rg.rows),
				Features: compute(rg, set, make([]float64, 0, width)),
			})
		}
	}
	return records, nil
}

// Matrix returns the feature vectors of records as rows
func Matrix(records []RegionRecord) [][]float64 {
	rows := make([][]float64, len(records))
	for i := range records {
		rows[i] = records[i].Features
	}
	return rows
}

// sliceRegions groups the pixels of one slice by label, sorted by label
func sliceRegions(labels []int, width, height int) []*region {
	byLabel := make(map[int]*region)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			l := labels[y*width+x]
			if l <= 0 {
				continue
			}
			rg, ok := byLabel[l]
			if !ok {
				rg = newRegion(l, x, y)
				byLabel[l] = rg
			}
			rg.add(x, y)
		}
	}

	out := make([]*region, 0, len(byLabel))
	for _, rg := range byLabel {
		out = append(out, rg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].label < out[j].label })
	return out
}

// compute appends the values of every descriptor in set to dst
func compute(rg *region, set []Descriptor, dst []float64) []float64 {
	for _, d := range set {
		switch d {
		case Area:
			dst = append(dst, rg.area())
		case BBoxArea:
			dst = append(dst, rg.bboxArea())
		case ConvexArea:
			dst = append(dst, rg.convexArea())
		case Eccentricity:
			dst = append(dst, rg.eccentricity())
		case EquivalentDiameter:
			dst = append(dst, math.Sqrt(4*rg.area()/math.Pi))
		case Extent:
			dst = append(dst, rg.area()/rg.bboxArea())
		case FilledArea:
			dst = append(dst, rg.filledArea())
		case InertiaTensor:
			a, b, c := rg.inertiaTensor()
			dst = append(dst, a, b, b, c)
		case InertiaTensorEigvals:
			l1, l2 := rg.eigvals()
			dst = append(dst, l1, l2)
		case MajorAxisLength:
			l1, _ := rg.eigvals()
			dst = append(dst, 4*math.Sqrt(l1))
		case MinorAxisLength:
			_, l2 := rg.eigvals()
			dst = append(dst, 4*math.Sqrt(l2))
		case MomentsHu:
			hu := rg.huMoments()
			dst = append(dst, hu[:]...)
		case Orientation:
			dst = append(dst, rg.orientation())
		case Perimeter:
			dst = append(dst, rg.perimeter())
		case Solidity:
			dst = append(dst, rg.area()/rg.convexArea())
		}
	}
	return dst
}
