package analysis

import (
	"bytes"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/urbansound/soundscape/internal/classifier"
	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/features"
	"github.com/urbansound/soundscape/internal/logger"
)

// meanExtractor returns the mean absolute amplitude of a window and treats
// near-silent windows as featureless.
func meanExtractor() features.Extractor {
	return features.Func{
		Dims: 1,
		Fn: func(samples []float32, _ int) ([]float64, error) {
			sum := 0.0
			for _, s := range samples {
				sum += math.Abs(float64(s))
			}
			mean := sum / float64(len(samples))
			if mean < 1e-3 {
				return nil, features.ErrNoFeatures
			}
			return []float64{mean}, nil
		},
	}
}

// levelClassifier maps loud windows to Sirena and quieter ones to Trafico
type levelClassifier struct {
	labels *classifier.LabelSet
	calls  atomic.Int64
	fail   bool
}

func newLevelClassifier(t *testing.T) *levelClassifier {
	t.Helper()
	ls, err := classifier.NewLabelSet([]string{"Trafico", "Sirena", "Perro"})
	require.NoError(t, err)
	return &levelClassifier{labels: ls}
}

func (c *levelClassifier) Labels() *classifier.LabelSet { return c.labels }

func (c *levelClassifier) Classify(vec []float64) (classifier.Distribution, error) {
	c.calls.Add(1)
	if c.fail {
		return classifier.Distribution{}, errors.New(classifier.ErrDimensionMismatch).
			Component("test").
			Category(errors.CategoryClassification).
			Build()
	}
	switch {
	case vec[0] > 0.7:
		return classifier.NewDistribution(c.labels, []float64{0.05, 0.9, 0.05})
	case vec[0] > 0.35:
		return classifier.NewDistribution(c.labels, []float64{0.8, 0.1, 0.1})
	default:
		// low confidence, tie between first two labels
		return classifier.NewDistribution(c.labels, []float64{0.35, 0.35, 0.3})
	}
}

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(&bytes.Buffer{}, logger.LogLevelError, nil)
}

// constant builds a signal of n samples at level v
func constant(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func concat(parts ...[]float32) []float32 {
	var out []float32
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
