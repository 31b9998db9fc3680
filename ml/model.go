// Package ml holds the pixel classifiers, their loaders and the model registry.
package ml

// PixelClassifier labels a batch of pixels. Each row of features is one pixel
// with one column per raster band; the result has one label per row.
type PixelClassifier interface {
	PredictBatch(features [][]float64) ([]int, error)
}

// MLModel is a classifier that can be trained in-process and persisted.
type MLModel interface {
	PixelClassifier
	Train(features [][]float64, labels []int) error
	Predict(features []float64) (int, error)
	Save(path string) error
	Load(path string) error
}

// Closer is implemented by models holding native resources.
type Closer interface {
	Close() error
}
