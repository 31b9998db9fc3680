package ml

import (
	"testing"

	"geoclassify/raster"
)

func TestBuildTrainingSetSkipsNoData(t *testing.T) {
	features := raster.NewBlock(2, 2, 2)
	for i := range features.Data {
		features.Data[i] = float64(i)
	}
	labels := raster.NewBlock(1, 2, 2)
	copy(labels.Data, []float64{1, 255, 2, 3.5})

	nodata := 255.0
	x, y, err := BuildTrainingSet(features, labels, TrainingOptions{NoData: &nodata})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(x) != 2 || len(y) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(x))
	}
	if y[0] != 1 || y[1] != 2 {
		t.Fatalf("unexpected labels %v", y)
	}
	if x[1][0] != 2 || x[1][1] != 6 {
		t.Fatalf("unexpected features %v", x[1])
	}
}

func TestBuildTrainingSetRejectsMismatchedGrid(t *testing.T) {
	if _, _, err := BuildTrainingSet(raster.NewBlock(1, 2, 2), raster.NewBlock(1, 3, 2), TrainingOptions{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestSplitDataset(t *testing.T) {
	var x [][]float64
	var y []int
	for i := 0; i < 10; i++ {
		x = append(x, []float64{float64(i)})
		y = append(y, i)
	}
	trainX, trainY, testX, testY, err := SplitDataset(x, y, 0.2, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trainX) != 8 || len(testX) != 2 {
		t.Fatalf("unexpected split %d/%d", len(trainX), len(testX))
	}
	for i, row := range testX {
		if int(row[0]) != testY[i] {
			t.Fatalf("test rows and labels out of step")
		}
	}
	for i, row := range trainX {
		if int(row[0]) != trainY[i] {
			t.Fatalf("train rows and labels out of step")
		}
	}
}
