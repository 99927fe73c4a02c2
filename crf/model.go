package crf

import (
	"encoding/json"
	"fmt"
	"os"
)

// SaveModel serializes the model to JSON.
func SaveModel(model *Model, path string) error {
	data, err := MarshalModel(model)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadModel deserializes a model from JSON.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return UnmarshalModel(data)
}

// MarshalModel serializes the model to JSON bytes.
func MarshalModel(model *Model) ([]byte, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(model)
}

// UnmarshalModel deserializes a model from JSON bytes and checks that it
// is usable for inference.
func UnmarshalModel(data []byte) (*Model, error) {
	var model Model
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, err
	}
	if model.Labels == nil || model.Attributes == nil {
		return nil, fmt.Errorf("%w: missing alphabets", ErrInference)
	}
	if err := model.Labels.reindex(); err != nil {
		return nil, fmt.Errorf("labels: %w", err)
	}
	if err := model.Attributes.reindex(); err != nil {
		return nil, fmt.Errorf("attributes: %w", err)
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	return &model, nil
}
