package ml

import (
	"fmt"
)

const (
	TypeDecisionTree = "decision_tree"
	TypeONNX         = "onnx"
)

// Artifact describes how to load one model.
type Artifact struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
	// InputName and OutputName select the ONNX graph endpoints.
	InputName  string `yaml:"input_name"`
	OutputName string `yaml:"output_name"`
}

func LoadModel(a Artifact) (PixelClassifier, error) {
	switch a.Type {
	case TypeDecisionTree, "":
		model := &DecisionTree{}
		if err := model.Load(a.Path); err != nil {
			return nil, fmt.Errorf("load decision tree %s: %w", a.Path, err)
		}
		return model, nil
	case TypeONNX:
		return NewONNXModel(a.Path, a.InputName, a.OutputName)
	default:
		return nil, fmt.Errorf("unsupported model type %q", a.Type)
	}
}
