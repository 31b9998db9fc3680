package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"geoclassify/raster"
)

// TrainingOptions control how labelled pixels are drawn from a raster pair.
type TrainingOptions struct {
	// NoData marks label pixels to skip.
	NoData *float64
	// MaxSamples caps the number of pixels kept; zero keeps all.
	MaxSamples int
	Seed       int64
}

// BuildTrainingSet pairs each pixel of features with the label at the same
// position in labels, which must be a single-band block of the same grid.
func BuildTrainingSet(features, labels *raster.Block, opts TrainingOptions) ([][]float64, []int, error) {
	if labels.Bands != 1 {
		return nil, nil, fmt.Errorf("label raster has %d bands, want 1", labels.Bands)
	}
	if features.Height != labels.Height || features.Width != labels.Width {
		return nil, nil, fmt.Errorf("feature grid %dx%d does not match label grid %dx%d",
			features.Width, features.Height, labels.Width, labels.Height)
	}

	matrix := FeatureMatrix(features)
	x := make([][]float64, 0, len(matrix))
	y := make([]int, 0, len(matrix))
	for i, row := range matrix {
		v := labels.Data[i]
		if opts.NoData != nil && v == *opts.NoData {
			continue
		}
		if math.IsNaN(v) || v < 0 || v > MaxLabel || v != math.Trunc(v) {
			continue
		}
		x = append(x, row)
		y = append(y, int(v))
	}
	if len(x) == 0 {
		return nil, nil, errors.New("no labelled pixels")
	}

	if opts.MaxSamples > 0 && len(x) > opts.MaxSamples {
		rng := rand.New(rand.NewSource(opts.Seed))
		rng.Shuffle(len(x), func(i, j int) {
			x[i], x[j] = x[j], x[i]
			y[i], y[j] = y[j], y[i]
		})
		x, y = x[:opts.MaxSamples], y[:opts.MaxSamples]
	}
	return x, y, nil
}

// SplitDataset shuffles and holds out testRatio of the samples for evaluation.
func SplitDataset(features [][]float64, labels []int, testRatio float64, seed int64) (trainX [][]float64, trainY []int, testX [][]float64, testY []int, err error) {
	if len(features) != len(labels) {
		return nil, nil, nil, nil, errors.New("features and labels size mismatch")
	}
	if testRatio < 0 || testRatio >= 1 {
		return nil, nil, nil, nil, fmt.Errorf("test ratio %v out of range [0, 1)", testRatio)
	}
	idx := rand.New(rand.NewSource(seed)).Perm(len(features))
	testN := int(float64(len(features)) * testRatio)
	for n, i := range idx {
		if n < testN {
			testX = append(testX, features[i])
			testY = append(testY, labels[i])
		} else {
			trainX = append(trainX, features[i])
			trainY = append(trainY, labels[i])
		}
	}
	return trainX, trainY, testX, testY, nil
}

// Accuracy is the share of rows the model labels correctly.
func Accuracy(model PixelClassifier, features [][]float64, labels []int) (float64, error) {
	if len(features) == 0 {
		return 0, nil
	}
	predicted, err := model.PredictBatch(features)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i, label := range predicted {
		if label == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(labels)), nil
}
