package tflite

import (
	"math"

	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/features"
)

const (
	// EmbeddingSampleRate is the rate embedding models such as YAMNet expect
	EmbeddingSampleRate = 16000

	// embeddingOutputIndex is the YAMNet output tensor holding per-frame
	// embeddings; output 0 holds class scores.
	embeddingOutputIndex = 1
)

// EmbeddingExtractor turns a waveform into the mean of a model's per-frame
// embeddings. The model input is a fixed-length waveform; longer windows
// are cut into consecutive chunks and the tail chunk is zero padded.
type EmbeddingExtractor struct {
	in           *interpreter
	inputLen     int
	dims         int
	silenceFloor float64
}

var _ features.Extractor = (*EmbeddingExtractor)(nil)

// NewEmbeddingExtractor loads an embedding model. The embedding size is
// probed with one silent inference.
func NewEmbeddingExtractor(modelPath string, threads int, silenceFloor float64) (*EmbeddingExtractor, error) {
	in, err := newInterpreter(modelPath, "embedding", threads)
	if err != nil {
		return nil, err
	}

	e := &EmbeddingExtractor{in: in, inputLen: in.inputSize(), silenceFloor: silenceFloor}
	if e.inputLen == 0 {
		in.close()
		return nil, errors.Newf("embedding model has an empty input tensor").
			Component("tflite").
			Category(errors.CategoryModelInit).
			ModelContext(modelPath, "embedding").
			Build()
	}

	_, shape, err := in.run(make([]float32, e.inputLen), embeddingOutputIndex)
	if err != nil {
		in.close()
		return nil, err
	}
	e.dims = shape[len(shape)-1]
	return e, nil
}

// Dimensions returns the embedding size
func (e *EmbeddingExtractor) Dimensions() int {
	return e.dims
}

// Extract returns the averaged embedding. Audio must already be at
// EmbeddingSampleRate.
func (e *EmbeddingExtractor) Extract(samples []float32, sampleRate int) ([]float64, error) {
	if len(samples) == 0 || sampleRate != EmbeddingSampleRate {
		return nil, features.ErrNoFeatures
	}
	if rms(samples) < e.silenceFloor {
		return nil, features.ErrNoFeatures
	}

	sum := make([]float64, e.dims)
	frames := 0
	chunk := make([]float32, e.inputLen)

	for start := 0; start < len(samples); start += e.inputLen {
		clear(chunk)
		copy(chunk, samples[start:min(start+e.inputLen, len(samples))])

		out, _, err := e.in.run(chunk, embeddingOutputIndex)
		if err != nil {
			return nil, err
		}
		for i, v := range out {
			sum[i%e.dims] += float64(v)
		}
		frames += len(out) / e.dims
	}

	if frames == 0 {
		return nil, features.ErrNoFeatures
	}
	for i := range sum {
		sum[i] /= float64(frames)
	}
	return sum, nil
}

// Close releases the interpreter
func (e *EmbeddingExtractor) Close() {
	e.in.close()
}

func rms(x []float32) float64 {
	if len(x) == 0 {
		return 0
	}
	acc := 0.0
	for _, v := range x {
		acc += float64(v) * float64(v)
	}
	return math.Sqrt(acc / float64(len(x)))
}
