package model

import "errors"

// ErrNotLoaded is returned by a Predictor whose model could not be loaded.
var ErrNotLoaded = errors.New("model not loaded")

// Tensor layouts accepted in Metadata.Layout.
const (
	LayoutNCHW = "nchw"
	LayoutNHWC = "nhwc"
)

type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	InputName   string   `json:"input_name,omitempty"`
	OutputName  string   `json:"output_name,omitempty"`
	Layout      string   `json:"layout,omitempty"`
	Scale       *float32 `json:"scale,omitempty"`
	Softmax     bool     `json:"softmax,omitempty"`
}

// InputSize is the number of float32 values the model expects per image.
func (m Metadata) InputSize() int {
	if len(m.InputShape) == 0 {
		return 0
	}
	size := 1
	for _, dim := range m.InputShape {
		size *= int(dim)
	}
	return size
}

// PixelScale returns the multiplier applied to 8-bit channel values.
func (m Metadata) PixelScale() float32 {
	if m.Scale != nil {
		return *m.Scale
	}
	return 1.0 / 255.0
}

type PredictionRequest struct {
	Image []float32 `json:"image"`
}

type Prediction struct {
	Class       string             `json:"class"`
	Confidence  float32            `json:"confidence"`
	Predictions map[string]float32 `json:"predictions"`
}

// Predictor classifies a preprocessed image tensor.
type Predictor interface {
	Predict(input []float32) (*Prediction, error)
	Metadata() Metadata
	Ready() bool
}
