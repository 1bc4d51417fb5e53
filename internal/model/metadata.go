package model

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// LoadMetadata reads the JSON file describing the model's shapes and classes.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}
	return ParseMetadata(raw)
}

// ParseMetadata decodes metadata JSON, fills defaults and validates it.
func ParseMetadata(raw []byte) (Metadata, error) {
	var metadata Metadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if metadata.InputName == "" {
		metadata.InputName = "input"
	}
	if metadata.OutputName == "" {
		metadata.OutputName = "output"
	}
	metadata.Layout = strings.ToLower(metadata.Layout)
	if metadata.Layout == "" {
		metadata.Layout = LayoutNCHW
	}

	if err := metadata.Validate(); err != nil {
		return Metadata{}, err
	}
	return metadata, nil
}

// Validate checks that the metadata is usable for image classification.
func (m Metadata) Validate() error {
	if len(m.Classes) == 0 {
		return fmt.Errorf("metadata: classes must not be empty")
	}
	if m.ImageSize <= 0 {
		return fmt.Errorf("metadata: image_size must be positive, got %d", m.ImageSize)
	}
	if m.Layout != LayoutNCHW && m.Layout != LayoutNHWC {
		return fmt.Errorf("metadata: unknown layout %q", m.Layout)
	}
	if len(m.InputShape) == 0 || len(m.OutputShape) == 0 {
		return fmt.Errorf("metadata: input_shape and output_shape are required")
	}
	if want := 3 * m.ImageSize * m.ImageSize; m.InputSize() != want {
		return fmt.Errorf("metadata: input_shape %v holds %d values, expected %d for a %dx%d RGB image",
			m.InputShape, m.InputSize(), want, m.ImageSize, m.ImageSize)
	}
	return nil
}
