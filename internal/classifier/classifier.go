// Package classifier maps feature vectors to probability distributions
// over a fixed set of soundscape labels.
package classifier

import (
	"github.com/urbansound/soundscape/internal/errors"
)

// Classifier scores a feature vector. The returned distribution is indexed
// by Labels() and sums to 1. The label set never changes after load.
type Classifier interface {
	Labels() *LabelSet
	Classify(vec []float64) (Distribution, error)
}

var (
	// ErrDimensionMismatch is returned when a vector does not match the
	// dimensionality the classifier was built for.
	ErrDimensionMismatch = errors.NewStd("feature dimension mismatch")

	// ErrInvalidVector is returned for vectors containing NaN.
	ErrInvalidVector = errors.NewStd("feature vector contains NaN")

	// ErrEmptyModel is returned when a model has no labels or no prototypes.
	ErrEmptyModel = errors.NewStd("model has no entries")
)
