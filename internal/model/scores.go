package model

import (
	"errors"
	"math"
)

// Top picks the highest scoring class. Scores beyond the class list are ignored.
func Top(scores []float32, classes []string, softmax bool) (*Prediction, error) {
	n := min(len(scores), len(classes))
	if n == 0 {
		return nil, errors.New("no scores to rank")
	}

	scores = scores[:n]
	if softmax {
		scores = Softmax(scores)
	}

	maxIdx := 0
	predictions := make(map[string]float32, n)
	for i, val := range scores {
		predictions[classes[i]] = val
		if val > scores[maxIdx] {
			maxIdx = i
		}
	}

	return &Prediction{
		Class:       classes[maxIdx],
		Confidence:  scores[maxIdx],
		Predictions: predictions,
	}, nil
}

// Softmax returns a normalised copy of logits.
func Softmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}

	peak := logits[0]
	for _, v := range logits[1:] {
		if v > peak {
			peak = v
		}
	}

	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - peak))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}
