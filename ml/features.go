package ml

import (
	"fmt"

	"geoclassify/raster"
)

// MaxLabel is the largest class label a classified raster can hold.
const MaxLabel = 255

// FeatureMatrix reshapes a (bands, height, width) block into height*width rows
// of band values, in row-major pixel order.
func FeatureMatrix(b *raster.Block) [][]float64 {
	pixels := b.Height * b.Width
	flat := make([]float64, pixels*b.Bands)
	rows := make([][]float64, pixels)
	for p := 0; p < pixels; p++ {
		row := flat[p*b.Bands : (p+1)*b.Bands : (p+1)*b.Bands]
		for band := 0; band < b.Bands; band++ {
			row[band] = b.Data[band*pixels+p]
		}
		rows[p] = row
	}
	return rows
}

// LabelBlock reshapes one label per pixel back into a single-band block.
func LabelBlock(labels []int, height, width int) (*raster.Block, error) {
	if len(labels) != height*width {
		return nil, fmt.Errorf("model returned %d labels for %d pixels", len(labels), height*width)
	}
	b := raster.NewBlock(1, height, width)
	for i, label := range labels {
		if label < 0 || label > MaxLabel {
			return nil, fmt.Errorf("label %d at pixel %d does not fit in uint8", label, i)
		}
		b.Data[i] = float64(label)
	}
	return b, nil
}

// ClassifyBlock runs the model over every pixel of b.
func ClassifyBlock(model PixelClassifier, b *raster.Block) (*raster.Block, error) {
	labels, err := model.PredictBatch(FeatureMatrix(b))
	if err != nil {
		return nil, err
	}
	return LabelBlock(labels, b.Height, b.Width)
}
