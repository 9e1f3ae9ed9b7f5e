package tflite

import (
	"fmt"
	"math"

	"github.com/urbansound/soundscape/internal/classifier"
	"github.com/urbansound/soundscape/internal/errors"
)

// probabilityTolerance is how far from 1 an output may sum and still be
// taken as a probability vector.
const probabilityTolerance = 1e-3

// Classifier runs a TFLite model whose single input is a feature vector and
// whose output 0 holds one score per label.
type Classifier struct {
	in     *interpreter
	labels *classifier.LabelSet
	dims   int
}

var _ classifier.Classifier = (*Classifier)(nil)

// NewClassifier loads the model and labels and checks that the output size
// matches the label count.
func NewClassifier(modelPath, labelsPath string, threads int) (*Classifier, error) {
	names, err := LoadLabels(labelsPath)
	if err != nil {
		return nil, err
	}
	labels, err := classifier.NewLabelSet(names)
	if err != nil {
		return nil, err
	}

	in, err := newInterpreter(modelPath, "classifier", threads)
	if err != nil {
		return nil, err
	}

	outputTensor := in.interp.GetOutputTensor(0)
	if outputTensor == nil {
		in.close()
		return nil, errors.New(fmt.Errorf("cannot get output tensor from model")).
			Component("tflite").
			Category(errors.CategoryValidation).
			ModelContext(modelPath, "classifier").
			Build()
	}
	if outSize := outputTensor.Dim(outputTensor.NumDims() - 1); outSize != labels.Len() {
		in.close()
		return nil, errors.Newf("label count mismatch: model expects %d classes but label file has %d labels",
			outSize, labels.Len()).
			Component("tflite").
			Category(errors.CategoryValidation).
			ModelContext(modelPath, "classifier").
			Context("expected_labels", outSize).
			Context("actual_labels", labels.Len()).
			Build()
	}

	return &Classifier{in: in, labels: labels, dims: in.inputSize()}, nil
}

// Labels returns the label set
func (c *Classifier) Labels() *classifier.LabelSet {
	return c.labels
}

// Classify runs the model on vec. Outputs that are not already a
// probability vector are passed through softmax.
func (c *Classifier) Classify(vec []float64) (classifier.Distribution, error) {
	if len(vec) != c.dims {
		return classifier.Distribution{}, errors.New(classifier.ErrDimensionMismatch).
			Component("tflite").
			Category(errors.CategoryClassification).
			Context("expected", c.dims).
			Context("got", len(vec)).
			Build()
	}

	input := make([]float32, len(vec))
	for i, v := range vec {
		input[i] = float32(v)
	}

	out, _, err := c.in.run(input, 0)
	if err != nil {
		return classifier.Distribution{}, err
	}

	probs := make([]float64, c.labels.Len())
	for i := range probs {
		probs[i] = float64(out[i])
	}
	if !isProbabilityVector(probs) {
		softmax(probs)
	}
	return classifier.NewDistribution(c.labels, probs)
}

// Close releases the interpreter
func (c *Classifier) Close() {
	c.in.close()
}

func isProbabilityVector(p []float64) bool {
	sum := 0.0
	for _, v := range p {
		if v < 0 || v > 1 {
			return false
		}
		sum += v
	}
	return math.Abs(sum-1) <= probabilityTolerance
}

// softmax normalizes logits in place
func softmax(logits []float64) {
	if len(logits) == 0 {
		return
	}
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		maxLogit = max(maxLogit, v)
	}
	sum := 0.0
	for i, v := range logits {
		logits[i] = math.Exp(v - maxLogit)
		sum += logits[i]
	}
	for i := range logits {
		logits[i] /= sum
	}
}
