// Command train_model fits the decision-tree pixel classifier from a feature
// GeoTIFF and a single-band label GeoTIFF on the same grid.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"geoclassify/logging"
	"geoclassify/ml"
	"geoclassify/raster"
)

func main() {
	featuresPath := flag.String("features", "", "multi-band GeoTIFF of pixel features")
	labelsPath := flag.String("labels", "", "single-band GeoTIFF of class labels")
	modelPath := flag.String("model_path", "./models/classifier_model.json", "model output path")
	maxDepth := flag.Int("max_depth", 10, "max tree depth")
	minLeaf := flag.Int("min_leaf", 5, "minimum pixels per leaf")
	testRatio := flag.Float64("test_ratio", 0.2, "test ratio")
	maxSamples := flag.Int("max_samples", 200000, "cap on labelled pixels used, 0 for all")
	seed := flag.Int64("seed", 42, "random seed for sampling and the split")
	nodata := flag.Float64("nodata", -1, "label value to skip; defaults to the label raster's nodata")
	maxValues := flag.Int64("max_values", 4*raster.DefaultMaxValues, "cap on width x height x bands read from each raster")
	flag.Parse()

	logger, err := logging.New(logging.Config{Level: "info", Format: "console"})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	if *featuresPath == "" || *labelsPath == "" {
		logger.Fatal("features and labels are required")
	}

	features, _, err := readRaster(*featuresPath, *maxValues)
	if err != nil {
		logger.Fatal("failed to read features", zap.Error(err))
	}
	labels, labelNoData, err := readRaster(*labelsPath, *maxValues)
	if err != nil {
		logger.Fatal("failed to read labels", zap.Error(err))
	}

	opts := ml.TrainingOptions{MaxSamples: *maxSamples, Seed: *seed, NoData: labelNoData}
	if flagSet("nodata") {
		opts.NoData = nodata
	}
	x, y, err := ml.BuildTrainingSet(features, labels, opts)
	if err != nil {
		logger.Fatal("failed to build training data", zap.Error(err))
	}

	trainX, trainY, testX, testY, err := ml.SplitDataset(x, y, *testRatio, *seed)
	if err != nil {
		logger.Fatal("failed to split dataset", zap.Error(err))
	}
	logger.Info("training",
		zap.Int("bands", features.Bands),
		zap.Int("train_pixels", len(trainX)),
		zap.Int("test_pixels", len(testX)),
		zap.Any("classes", classCounts(y)),
	)

	model := ml.NewDecisionTree(*maxDepth)
	model.MinLeaf = *minLeaf
	if err := model.Train(trainX, trainY); err != nil {
		logger.Fatal("failed to train model", zap.Error(err))
	}

	accuracy, err := ml.Accuracy(model, testX, testY)
	if err != nil {
		logger.Fatal("failed to evaluate model", zap.Error(err))
	}
	logger.Info("evaluated", zap.Float64("accuracy", accuracy), zap.Int("depth", model.Depth()))

	if err := os.MkdirAll(filepath.Dir(*modelPath), 0o755); err != nil {
		logger.Fatal("failed to create model dir", zap.Error(err))
	}
	if err := model.Save(*modelPath); err != nil {
		logger.Fatal("failed to save model", zap.Error(err))
	}

	fmt.Printf("model saved to %s\n", *modelPath)
}

func readRaster(path string, maxValues int64) (*raster.Block, *float64, error) {
	ds, err := raster.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	defer ds.Close()
	ds.MaxValues = maxValues
	block, err := ds.Read(raster.Window{Width: ds.Width, Height: ds.Height})
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return block, ds.NoData, nil
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func classCounts(labels []int) map[int]int {
	counts := make(map[int]int)
	for _, l := range labels {
		counts[l]++
	}
	return counts
}
