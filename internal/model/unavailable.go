package model

// Unavailable stands in for a model that failed to load so the server can
// still start and answer prediction requests with ErrNotLoaded.
type Unavailable struct {
	Reason error
	Meta   Metadata
}

func (u Unavailable) Predict([]float32) (*Prediction, error) { return nil, ErrNotLoaded }

func (u Unavailable) Metadata() Metadata { return u.Meta }

func (u Unavailable) Ready() bool { return false }
