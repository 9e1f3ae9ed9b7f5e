// Package features turns windows of audio samples into fixed-length
// feature vectors for the classifiers.
package features

import (
	"sync"

	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/logger"
)

// ErrNoFeatures reports that no usable features exist for a window, for
// example because it is silent. Callers skip such windows.
var ErrNoFeatures = errors.NewStd("no features could be extracted")

// Extractor computes a feature vector from mono samples in [-1, 1]. Every
// successful call returns exactly Dimensions() values.
type Extractor interface {
	Extract(samples []float32, sampleRate int) ([]float64, error)
	Dimensions() int
}

// Func adapts a plain function into an Extractor
type Func struct {
	Dims int
	Fn   func(samples []float32, sampleRate int) ([]float64, error)
}

// Extract calls Fn
func (f Func) Extract(samples []float32, sampleRate int) ([]float64, error) {
	return f.Fn(samples, sampleRate)
}

// Dimensions returns Dims
func (f Func) Dimensions() int {
	return f.Dims
}

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the features module logger
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("features")
	})
	return serviceLogger
}
