package analysis

import (
	"github.com/urbansound/soundscape/internal/classifier"
	"github.com/urbansound/soundscape/internal/classifier/tflite"
	"github.com/urbansound/soundscape/internal/conf"
	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/features"
	"github.com/urbansound/soundscape/internal/logger"
)

// Models bundles the extractor and classifier a pipeline runs with
type Models struct {
	Extractor  features.Extractor
	Classifier classifier.Classifier
	closers    []func()
}

// Close releases interpreter resources held by TFLite backed models
func (m *Models) Close() {
	for i := len(m.closers) - 1; i >= 0; i-- {
		m.closers[i]()
	}
	m.closers = nil
}

// NewExtractor builds the configured feature extractor. The returned
// function releases its resources.
func NewExtractor(fs *conf.FeatureSettings, threads int) (features.Extractor, func(), error) {
	switch fs.Type {
	case "", "band":
		cfg := features.DefaultBandConfig()
		if fs.Bands > 0 {
			cfg.Bands = fs.Bands
		}
		if fs.FrameSize > 0 {
			cfg.FrameSize = fs.FrameSize
		}
		if fs.HopSize > 0 {
			cfg.HopSize = fs.HopSize
		}
		if fs.MinFreq > 0 {
			cfg.MinFreq = fs.MinFreq
		}
		cfg.MaxFreq = fs.MaxFreq
		if fs.SilenceFloor > 0 {
			cfg.SilenceFloor = fs.SilenceFloor
		}
		ext, err := features.NewBandEnergyExtractor(cfg)
		if err != nil {
			return nil, nil, err
		}
		return ext, func() {}, nil
	case "yamnet":
		ext, err := tflite.NewEmbeddingExtractor(fs.ModelPath, threads, fs.SilenceFloor)
		if err != nil {
			return nil, nil, err
		}
		return ext, ext.Close, nil
	default:
		return nil, nil, errors.Newf("unknown feature extractor %q", fs.Type).
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// CheckSampleRate rejects analysis rates the configured extractor cannot
// embed. The yamnet extractor only accepts EmbeddingSampleRate.
func CheckSampleRate(fs *conf.FeatureSettings, sampleRate int) error {
	if fs.Type != "yamnet" || sampleRate == tflite.EmbeddingSampleRate {
		return nil
	}
	return errors.New(ErrNotReady).
		Component("analysis").
		Category(errors.CategoryConfiguration).
		Context("extractor", fs.Type).
		Context("sample_rate", sampleRate).
		Context("required_sample_rate", tflite.EmbeddingSampleRate).
		Build()
}

// NewClassifier builds the configured classifier. Prototype models are
// served from registry so repeated runs share one load.
func NewClassifier(cs *conf.ClassifierSettings, registry *classifier.Registry) (classifier.Classifier, func(), error) {
	switch cs.Type {
	case "", "prototype":
		if registry == nil {
			registry = classifier.NewRegistry(0, classifier.WithK(cs.K))
		}
		cls, err := registry.Get(cs.Prototypes)
		if err != nil {
			return nil, nil, err
		}
		return cls, func() {}, nil
	case "tflite":
		cls, err := tflite.NewClassifier(cs.ModelPath, cs.LabelsPath, cs.Threads)
		if err != nil {
			return nil, nil, err
		}
		return cls, cls.Close, nil
	default:
		return nil, nil, errors.Newf("unknown classifier %q", cs.Type).
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// LoadModels builds extractor and classifier from settings and checks that
// the classifier accepts the extractor's vectors.
func LoadModels(settings *conf.Settings, registry *classifier.Registry) (*Models, error) {
	if err := CheckSampleRate(&settings.Features, settings.Analysis.SampleRate); err != nil {
		return nil, err
	}

	ext, closeExt, err := NewExtractor(&settings.Features, settings.Classifier.Threads)
	if err != nil {
		return nil, err
	}

	cls, closeCls, err := NewClassifier(&settings.Classifier, registry)
	if err != nil {
		closeExt()
		return nil, err
	}

	m := &Models{Extractor: ext, Classifier: cls, closers: []func(){closeExt, closeCls}}

	if sized, ok := cls.(interface{ Dimensions() int }); ok && sized.Dimensions() != ext.Dimensions() {
		m.Close()
		return nil, errors.New(classifier.ErrDimensionMismatch).
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Context("extractor", settings.Features.Type).
			Context("extractor_dimensions", ext.Dimensions()).
			Context("classifier_dimensions", sized.Dimensions()).
			Build()
	}

	GetLogger().Info("models loaded",
		logger.String("extractor", settings.Features.Type),
		logger.String("classifier", settings.Classifier.Type),
		logger.Int("labels", cls.Labels().Len()),
		logger.Int("dimensions", ext.Dimensions()))

	return m, nil
}
