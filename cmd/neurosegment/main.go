package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"

	"neurosegment/internal/models"
	"neurosegment/pkg/config"
	"neurosegment/pkg/edges"
	"neurosegment/pkg/features"
	"neurosegment/pkg/gbs"
	"neurosegment/pkg/logging"
	"neurosegment/pkg/novelty"
	"neurosegment/pkg/symmetry"
	"neurosegment/pkg/visualization"
	"neurosegment/pkg/volumeio"
)

// options holds the parsed command line
type options struct {
	mode       string
	configPath string
	input      string
	output     string
	model      string
	mask       string
	plane      string
	slices     string
	scale      int
}

func main() {
	var opts options
	flag.StringVar(&opts.mode, "mode", "", "Operation: train, sieve, edges, score or render")
	flag.StringVar(&opts.configPath, "config", "neurosegment.yaml", "YAML configuration file (defaults are used if missing)")
	flag.StringVar(&opts.input, "input", "", "Input volume; for train a comma separated list of training masks")
	flag.StringVar(&opts.output, "output", "", "Output volume file, or directory for render")
	flag.StringVar(&opts.model, "model", "sieve.gbsm", "Sieve model file written by train and read by sieve")
	flag.StringVar(&opts.mask, "mask", "", "Lesion mask drawn over the input by render")
	flag.StringVar(&opts.plane, "plane", "", `Symmetry plane as three points "x,y,z;x,y,z;x,y,z"`)
	flag.StringVar(&opts.slices, "slices", "", `Axial slices to score, e.g. "0,1,2" (default: config, then all)`)
	flag.IntVar(&opts.scale, "scale", 1, "Integer upscaling factor for rendered slices")
	initConfig := flag.Bool("init-config", false, "Write the default configuration to -config and exit")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(opts.configPath); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", opts.configPath)
		return
	}

	if opts.mode == "" || opts.input == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := &logging.Logger{Logger: logging.New(cfg.Logging).With("mode", opts.mode)}

	startTime := time.Now()
	if err := run(opts, cfg, logger); err != nil {
		log.Fatalf("%s failed: %v", opts.mode, err)
	}
	fmt.Printf("%s completed in %.2f seconds\n", opts.mode, time.Since(startTime).Seconds())
}

func run(opts options, cfg *config.Config, logger *logging.Logger) error {
	switch opts.mode {
	case "train":
		return runTrain(opts, cfg, logger)
	case "sieve":
		return runSieve(opts, cfg, logger)
	case "edges":
		return runEdges(opts, cfg, logger)
	case "score":
		return runScore(opts, cfg, logger)
	case "render":
		return runRender(opts, logger)
	default:
		return errors.Errorf("unknown mode %q", opts.mode)
	}
}

func runTrain(opts options, cfg *config.Config, logger *logging.Logger) error {
	set, err := features.ParseDescriptors(cfg.Sieve.Descriptors)
	if err != nil {
		return err
	}
	var masks []*models.Volume
	for _, path := range strings.Split(opts.input, ",") {
		vol, err := volumeio.Load(strings.TrimSpace(path))
		if err != nil {
			return err
		}
		masks = append(masks, vol)
	}

	params := novelty.Params{Neighbors: cfg.Sieve.Neighbors, Offset: cfg.Sieve.Offset}
	model, err := gbs.Train(masks, set, params, gbs.Options{Workers: cfg.Processing.NumCores, Logger: logger})
	if err != nil {
		return err
	}
	if err := gbs.SaveModel(opts.model, model, logger); err != nil {
		return err
	}
	fmt.Printf("Trained on %d regions with %d features; model saved to %s\n",
		len(model.LOF.TrainingRows()), features.Width(set), opts.model)
	return nil
}

func runSieve(opts options, cfg *config.Config, logger *logging.Logger) error {
	if opts.output == "" {
		return errors.New("sieve needs -output")
	}
	model, err := gbs.LoadModel(opts.model)
	if err != nil {
		return err
	}
	vol, err := volumeio.Load(opts.input)
	if err != nil {
		return err
	}

	out, report, err := gbs.SieveWithReport(vol, model, gbs.Options{Workers: cfg.Processing.NumCores, Logger: logger})
	if err != nil {
		return err
	}
	for _, r := range report.Removed {
		logger.Debug("region removed", "label", r.Label, "slice", r.Slice, "area", r.Area)
	}
	if err := volumeio.Save(opts.output, out, logger); err != nil {
		return err
	}
	fmt.Printf("Removed %d of %d regions (%d voxels)\n", len(report.Removed), report.Regions, report.VoxelsRemoved)
	return nil
}

func runEdges(opts options, cfg *config.Config, logger *logging.Logger) error {
	if opts.output == "" {
		return errors.New("edges needs -output")
	}
	vol, err := volumeio.Load(opts.input)
	if err != nil {
		return err
	}
	sobel, err := edges.Sobel(vol, edges.Options{Workers: cfg.Processing.NumCores})
	if err != nil {
		return err
	}
	edge, thresh, err := edges.BinaryByPercentile(sobel, cfg.Edges.Percentile, cfg.Edges.Invert)
	if err != nil {
		return err
	}
	logger.Info("edge map thresholded", "percentile", cfg.Edges.Percentile, "threshold", thresh, "foreground", edge.ForegroundCount())
	return volumeio.Save(opts.output, edge, logger)
}

func runScore(opts options, cfg *config.Config, logger *logging.Logger) error {
	plane, err := parsePlane(opts.plane)
	if err != nil {
		return err
	}
	var slices []int
	if len(cfg.Symmetry.Slices) > 0 {
		slices = cfg.Symmetry.Slices
	}
	if opts.slices != "" {
		if slices, err = parseSlices(opts.slices); err != nil {
			return err
		}
	}
	edge, err := volumeio.Load(opts.input)
	if err != nil {
		return err
	}

	res, err := symmetry.ScoreDetailed(edge, plane, slices, symmetry.Options{Workers: cfg.Processing.NumCores, Logger: logger})
	if err != nil {
		return err
	}
	fmt.Printf("Symmetry score: %.6f (%d of %d foreground pixels paired over %d slices)\n",
		res.Score, res.Paired, res.Total, len(res.Slices))
	return nil
}

func runRender(opts options, logger *logging.Logger) error {
	if opts.output == "" {
		return errors.New("render needs -output directory")
	}
	vol, err := volumeio.Load(opts.input)
	if err != nil {
		return err
	}
	viewer, err := visualization.NewViewer(vol)
	if err != nil {
		return err
	}

	ropts := visualization.DefaultRenderOptions()
	ropts.Scale = opts.scale
	if opts.mask != "" {
		if ropts.Mask, err = volumeio.Load(opts.mask); err != nil {
			return err
		}
	}
	if opts.plane != "" {
		plane, err := parsePlane(opts.plane)
		if err != nil {
			return err
		}
		ropts.Plane = &plane
	}

	if err := viewer.SaveRenderSequence(opts.output, ropts); err != nil {
		return err
	}
	logger.Info("slices rendered", "directory", opts.output, "slices", vol.Depth)
	return nil
}
