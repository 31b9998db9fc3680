package ml

import (
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortOnce sync.Once
	ortErr  error
)

// InitONNX loads the onnxruntime shared library once per process. An empty
// path leaves the library's platform default in place.
func InitONNX(libraryPath string) error {
	ortOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			ortErr = fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	})
	return ortErr
}

// ONNXModel runs a classifier exported to ONNX, such as a scikit-learn or
// XGBoost model converted with a float input of shape [N, bands] and an int64
// label output of shape [N].
type ONNXModel struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
}

func NewONNXModel(path, inputName, outputName string) (*ONNXModel, error) {
	if err := InitONNX(""); err != nil {
		return nil, err
	}
	if inputName == "" {
		inputName = "input"
	}
	if outputName == "" {
		outputName = "label"
	}
	session, err := ort.NewDynamicAdvancedSession(path, []string{inputName}, []string{outputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return &ONNXModel{session: session, inputName: inputName, outputName: outputName}, nil
}

func (m *ONNXModel) PredictBatch(features [][]float64) ([]int, error) {
	if m.session == nil {
		return nil, errors.New("onnx session closed")
	}
	if len(features) == 0 {
		return []int{}, nil
	}
	bands := len(features[0])
	data := make([]float32, 0, len(features)*bands)
	for i, row := range features {
		if len(row) != bands {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), bands)
		}
		for _, v := range row {
			data = append(data, float32(v))
		}
	}

	input, err := ort.NewTensor(ort.NewShape(int64(len(features)), int64(bands)), data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[int64](ort.NewShape(int64(len(features))))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := m.session.Run([]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	raw := output.GetData()
	labels := make([]int, len(raw))
	for i, v := range raw {
		labels[i] = int(v)
	}
	return labels, nil
}

func (m *ONNXModel) Close() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}
