// Package gbs implements the geometry-based sieve: lesion candidate regions
// are described per slice by 2D shape descriptors, compared against a
// novelty model trained on known-good lesions, and removed when they fall
// outside the learned normal density.
//
// The pipeline runs in stages:
// 1. Label each axial slice into 8-connected regions with global labels
// 2. Extract the configured descriptor set for every region
// 3. Standardize the descriptors with the training statistics
// 4. Score the standardized vectors with the LOF model
// 5. Zero the voxels of every outlier region in a copy of the input
package gbs

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"neurosegment/internal/models"
	"neurosegment/pkg/features"
	"neurosegment/pkg/labeling"
	"neurosegment/pkg/logging"
	"neurosegment/pkg/novelty"
	"neurosegment/pkg/standardize"
)

// SchemaVersion is the version of the persisted model layout
const SchemaVersion = 1

// Model is the trained sieve state: the descriptor set it was fitted on, the
// normalization statistics and the fitted novelty model. It is read-only
// after training or loading.
type Model struct {
	Version       int
	Descriptors   []features.Descriptor
	Normalization standardize.Normalization
	LOF           *novelty.LOF
}

// Options controls labeling parallelism and logging
type Options struct {
	// Workers bounds the number of slices labeled concurrently
	Workers int

	// Logger receives stage messages; nil disables logging
	Logger *logging.Logger
}

// RemovedRegion describes one region zeroed by the sieve
type RemovedRegion struct {
	Label int
	Slice int
	Area  int
}

// Report summarizes a sieving run
type Report struct {
	// Regions is the number of regions examined
	Regions int

	// Removed lists the outlier regions in slice, then label order
	Removed []RemovedRegion

	// VoxelsRemoved is the total area of the removed regions
	VoxelsRemoved int
}

// Validate checks that the parts of the model agree with each other
func (m *Model) Validate() error {
	if m == nil {
		return &models.ModelStateError{Reason: "model is nil"}
	}
	if m.LOF == nil {
		return &models.ModelStateError{Reason: "novelty model missing"}
	}
	if len(m.Descriptors) == 0 {
		return &models.ModelStateError{Reason: "empty descriptor set"}
	}
	width := features.Width(m.Descriptors)
	if m.Normalization.Width() != width {
		return &models.ShapeMismatchError{
			What: "normalization vectors",
			Want: fmt.Sprintf("%d columns", width),
			Got:  fmt.Sprintf("%d columns", m.Normalization.Width()),
		}
	}
	if err := m.Normalization.Validate(); err != nil {
		return err
	}
	if m.LOF.Dims() != width {
		return &models.ShapeMismatchError{
			What: "novelty model features",
			Want: fmt.Sprintf("%d columns", width),
			Got:  fmt.Sprintf("%d columns", m.LOF.Dims()),
		}
	}
	return nil
}

// Train fits a model on the regions of one or more known-good lesion masks
func Train(masks []*models.Volume, set []features.Descriptor, params novelty.Params, opts Options) (*Model, error) {
	ctx := context.Background()
	logger := logging.OrNoop(opts.Logger).WithStage("train")

	m, regions, err := train(masks, set, params, opts)
	logger.LogTrain(ctx, len(masks), regions, features.Width(set), err)
	return m, err
}

func train(masks []*models.Volume, set []features.Descriptor, params novelty.Params, opts Options) (*Model, int, error) {
	if len(masks) == 0 {
		return nil, 0, errors.New("train: no training masks")
	}

	var rows [][]float64
	for i, mask := range masks {
		records, err := describe(mask, set, opts)
		if err != nil {
			return nil, len(rows), errors.Wrapf(err, "train: mask %d", i)
		}
		rows = append(rows, features.Matrix(records)...)
	}

	norm, err := standardize.Fit(rows)
	if err != nil {
		return nil, len(rows), errors.Wrap(err, "train")
	}
	std, err := norm.Apply(rows)
	if err != nil {
		return nil, len(rows), errors.Wrap(err, "train")
	}
	lof, err := novelty.Fit(std, params)
	if err != nil {
		return nil, len(rows), errors.Wrap(err, "train")
	}

	return &Model{
		Version:       SchemaVersion,
		Descriptors:   append([]features.Descriptor(nil), set...),
		Normalization: norm,
		LOF:           lof,
	}, len(rows), nil
}

// Sieve returns a copy of vol in which every region the model scores as an
// outlier is set to background. All other voxels are passed through
// unchanged. The input volume is never modified.
func Sieve(vol *models.Volume, model *Model, opts Options) (*models.Volume, error) {
	out, _, err := SieveWithReport(vol, model, opts)
	return out, err
}

// SieveWithReport is Sieve that also returns which regions were removed
func SieveWithReport(vol *models.Volume, model *Model, opts Options) (*models.Volume, Report, error) {
	ctx := context.Background()
	logger := logging.OrNoop(opts.Logger).WithStage("sieve")

	out, report, err := sieve(vol, model, opts)
	logger.LogSieve(ctx, report.Regions, len(report.Removed), report.VoxelsRemoved, err)
	if err != nil {
		return nil, Report{}, err
	}
	return out, report, nil
}

func sieve(vol *models.Volume, model *Model, opts Options) (*models.Volume, Report, error) {
	if err := vol.ValidateBinary(); err != nil {
		return nil, Report{}, errors.Wrap(err, "sieve")
	}
	if vol.ForegroundCount() == 0 {
		return vol.Clone(), Report{}, nil
	}
	if err := model.Validate(); err != nil {
		return nil, Report{}, errors.Wrap(err, "sieve")
	}

	lv, err := labeling.Label(vol, labeling.Options{Workers: opts.Workers, Logger: opts.Logger})
	if err != nil {
		return nil, Report{}, errors.Wrap(err, "sieve")
	}
	records, err := features.Extract(lv, model.Descriptors)
	if err != nil {
		return nil, Report{}, errors.Wrap(err, "sieve")
	}
	std, err := model.Normalization.Apply(features.Matrix(records))
	if err != nil {
		return nil, Report{}, errors.Wrap(err, "sieve")
	}
	outliers, err := model.LOF.Predict(std)
	if err != nil {
		return nil, Report{}, errors.Wrap(err, "sieve")
	}

	report := Report{Regions: len(records)}
	drop := make(map[int]bool)
	for i, rec := range records {
		if !outliers[i] {
			continue
		}
		drop[rec.Label] = true
		report.Removed = append(report.Removed, RemovedRegion{Label: rec.Label, Slice: rec.Slice, Area: rec.Area})
		report.VoxelsRemoved += rec.Area
	}

	out := vol.Clone()
	if len(drop) > 0 {
		for i, l := range lv.Labels {
			if drop[l] {
				out.Data[i] = 0
			}
		}
	}
	return out, report, nil
}

// describe labels one mask and extracts the descriptors of its regions
func describe(mask *models.Volume, set []features.Descriptor, opts Options) ([]features.RegionRecord, error) {
	lv, err := labeling.Label(mask, labeling.Options{Workers: opts.Workers, Logger: opts.Logger})
	if err != nil {
		return nil, err
	}
	return features.Extract(lv, set)
}
