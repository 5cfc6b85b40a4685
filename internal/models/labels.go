package models

// LabeledVolume holds one integer label per voxel. 0 is background and every
// positive label identifies exactly one 8-connected region inside a single
// axial slice; labels are unique across the whole volume.
type LabeledVolume struct {
	// Labels is stored in the same row-major order as Volume.Data
	Labels []int

	// Width, Height, Depth are the dimensions of the labeled volume
	Width, Height, Depth int
}

// NewLabeledVolume allocates an all-background labeled volume
func NewLabeledVolume(width, height, depth int) *LabeledVolume {
	return &LabeledVolume{
		Labels: make([]int, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
}

// At returns the label of voxel (x, y, z)
func (lv *LabeledVolume) At(x, y, z int) int {
	return lv.Labels[z*lv.Width*lv.Height+y*lv.Width+x]
}

// SliceLabels returns the labels of axial slice z, sharing storage
func (lv *LabeledVolume) SliceLabels(z int) []int {
	n := lv.Width * lv.Height
	return lv.Labels[z*n : (z+1)*n]
}

// MaxLabel returns the largest label in the volume, 0 if it has no regions
func (lv *LabeledVolume) MaxLabel() int {
	m := 0
	for _, l := range lv.Labels {
		if l > m {
			m = l
		}
	}
	return m
}
