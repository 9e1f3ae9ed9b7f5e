package classifier

import (
	"cmp"
	"slices"

	"github.com/urbansound/soundscape/internal/errors"
)

// Prediction is one label with its probability
type Prediction struct {
	Label       string
	Index       int
	Probability float64
}

// Distribution holds one probability per label, in label set order
type Distribution struct {
	labels *LabelSet
	probs  []float64
}

// NewDistribution wraps probs. len(probs) must equal labels.Len(); the
// values are copied and not renormalized.
func NewDistribution(labels *LabelSet, probs []float64) (Distribution, error) {
	if labels == nil || len(probs) != labels.Len() {
		return Distribution{}, errors.New(ErrDimensionMismatch).
			Component("classifier").
			Category(errors.CategoryClassification).
			Context("probabilities", len(probs)).
			Build()
	}
	return Distribution{labels: labels, probs: slices.Clone(probs)}, nil
}

// Len returns the number of entries
func (d Distribution) Len() int {
	return len(d.probs)
}

// Labels returns the label set the distribution is indexed by
func (d Distribution) Labels() *LabelSet {
	return d.labels
}

// Argmax returns the index and probability of the most likely label. Ties
// go to the lowest index. An empty distribution yields (-1, 0).
func (d Distribution) Argmax() (int, float64) {
	best, bestProb := -1, 0.0
	for i, p := range d.probs {
		if best < 0 || p > bestProb {
			best, bestProb = i, p
		}
	}
	return best, bestProb
}

// Best returns the most likely label as a Prediction
func (d Distribution) Best() Prediction {
	i, p := d.Argmax()
	return Prediction{Label: d.labels.Name(i), Index: i, Probability: p}
}

// Prob returns the probability of label, or 0 if it is unknown
func (d Distribution) Prob(label string) float64 {
	if d.labels == nil {
		return 0
	}
	i, ok := d.labels.Index(label)
	if !ok {
		return 0
	}
	return d.probs[i]
}

// At returns the probability at index i
func (d Distribution) At(i int) float64 {
	return d.probs[i]
}

// Probs returns a copy of the probabilities
func (d Distribution) Probs() []float64 {
	return slices.Clone(d.probs)
}

// Top returns the n most likely labels, highest first. Equal probabilities
// keep label order.
func (d Distribution) Top(n int) []Prediction {
	preds := make([]Prediction, len(d.probs))
	for i, p := range d.probs {
		preds[i] = Prediction{Label: d.labels.Name(i), Index: i, Probability: p}
	}
	slices.SortStableFunc(preds, func(a, b Prediction) int {
		return cmp.Compare(b.Probability, a.Probability)
	})
	if n >= 0 && n < len(preds) {
		preds = preds[:n]
	}
	return preds
}
