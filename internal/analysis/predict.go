package analysis

import (
	"context"
	"fmt"

	"github.com/urbansound/soundscape/internal/classifier"
	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/features"
	"github.com/urbansound/soundscape/internal/myaudio"
)

// DefaultTopN is the number of ranked labels PredictFile reports
const DefaultTopN = 5

// FilePrediction is a single label for a whole recording
type FilePrediction struct {
	File       string
	Label      string
	Confidence float64
	Top        []classifier.Prediction
	Seconds    float64 // audio considered
}

// EmbedFile returns a function that decodes the first maxSeconds of a file
// at sampleRate and extracts one feature vector from it.
func EmbedFile(ext features.Extractor, sampleRate int, maxSeconds float64) classifier.EmbedFunc {
	return func(ctx context.Context, path string) ([]float64, error) {
		clip, err := myaudio.ReadAudioFile(ctx, path, myaudio.ReadOptions{
			TargetRate: sampleRate,
			MaxSeconds: maxSeconds,
		})
		if err != nil {
			return nil, err
		}
		return extractClip(ext, clip)
	}
}

func extractClip(ext features.Extractor, clip *myaudio.Clip) ([]float64, error) {
	vec, err := ext.Extract(clip.Samples, clip.SampleRate)
	if err != nil {
		return nil, errors.New(fmt.Errorf("feature extraction failed: %w", err)).
			Component("analysis").
			Category(errors.CategoryFeatureExtraction).
			Context("file", clip.Source).
			Build()
	}
	return vec, nil
}

// Predictor classifies whole recordings with a single label
type Predictor struct {
	extractor  features.Extractor
	classifier classifier.Classifier
	sampleRate int
	maxSeconds float64
	topN       int
}

// NewPredictor returns a Predictor that looks at the first maxSeconds of
// each file, resampled to sampleRate.
func NewPredictor(ext features.Extractor, cls classifier.Classifier, sampleRate int, maxSeconds float64) *Predictor {
	return &Predictor{
		extractor:  ext,
		classifier: cls,
		sampleRate: sampleRate,
		maxSeconds: maxSeconds,
		topN:       DefaultTopN,
	}
}

// PredictFile decodes path and classifies it
func (p *Predictor) PredictFile(ctx context.Context, path string) (*FilePrediction, error) {
	if p.extractor == nil || p.classifier == nil {
		return nil, errors.New(ErrNotReady).
			Component("analysis").
			Category(errors.CategoryState).
			Build()
	}

	clip, err := myaudio.ReadAudioFile(ctx, path, myaudio.ReadOptions{
		TargetRate: p.sampleRate,
		MaxSeconds: p.maxSeconds,
	})
	if err != nil {
		return nil, err
	}
	return p.PredictClip(clip)
}

// PredictClip classifies already decoded audio
func (p *Predictor) PredictClip(clip *myaudio.Clip) (*FilePrediction, error) {
	if len(clip.Samples) == 0 {
		return nil, invalidInput("empty signal", "file", clip.Source)
	}

	vec, err := extractClip(p.extractor, clip)
	if err != nil {
		return nil, err
	}

	dist, err := p.classifier.Classify(vec)
	if err != nil {
		return nil, errors.New(fmt.Errorf("classification failed: %w", err)).
			Component("analysis").
			Category(errors.CategoryClassification).
			Context("file", clip.Source).
			Build()
	}

	best := dist.Best()
	return &FilePrediction{
		File:       clip.Source,
		Label:      best.Label,
		Confidence: best.Probability,
		Top:        dist.Top(p.topN),
		Seconds:    clip.Seconds(),
	}, nil
}
