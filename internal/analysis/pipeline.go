package analysis

import (
	"context"
	"path/filepath"
	"time"

	"github.com/urbansound/soundscape/internal/conf"
	"github.com/urbansound/soundscape/internal/detection"
	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/export"
	"github.com/urbansound/soundscape/internal/logger"
	"github.com/urbansound/soundscape/internal/myaudio"
	"github.com/urbansound/soundscape/internal/observability/metrics"
)

// FileResult is everything produced for one recording
type FileResult struct {
	Path     string
	Source   string  // base name of Path
	Duration float64 // seconds of audio analyzed
	Run      *DetectionRun
	Events   []detection.GroupedEvent
	Document *export.Document // nil when no event passed the threshold
	Elapsed  time.Duration

	// Clip is the decoded audio. It is only set while sinks run.
	Clip *myaudio.Clip
}

// Sink receives every FileResult that carries a document
type Sink interface {
	Handle(ctx context.Context, res *FileResult) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, res *FileResult) error

// Handle calls f
func (f SinkFunc) Handle(ctx context.Context, res *FileResult) error {
	return f(ctx, res)
}

// Pipeline decodes audio, detects, groups and exports
type Pipeline struct {
	detector   *WindowedDetector
	grouper    *detection.Grouper
	exporter   *export.Exporter
	params     WindowParams
	threshold  float64
	sampleRate int
	sinks      []Sink
	metrics    *metrics.DetectorMetrics
	log        logger.Logger
}

// PipelineOption configures a Pipeline
type PipelineOption func(*Pipeline)

// WithSink adds a consumer for results with a document
func WithSink(s Sink) PipelineOption {
	return func(p *Pipeline) {
		if s != nil {
			p.sinks = append(p.sinks, s)
		}
	}
}

// WithExporter replaces the default exporter
func WithExporter(e *export.Exporter) PipelineOption {
	return func(p *Pipeline) {
		if e != nil {
			p.exporter = e
		}
	}
}

// WithEventMetrics counts grouped events per label
func WithEventMetrics(m *metrics.DetectorMetrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithPipelineLogger overrides the package logger
func WithPipelineLogger(l logger.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// NewPipeline wires detector into a pipeline using the analysis settings
// for windowing, threshold, gap and sample rate.
func NewPipeline(settings *conf.AnalysisSettings, detector *WindowedDetector, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		detector: detector,
		grouper:  detection.NewGrouper(detection.WithGapThreshold(settings.GapThreshold)),
		exporter: export.NewExporter(),
		params: WindowParams{
			WindowSeconds: settings.WindowSeconds,
			Overlap:       settings.Overlap,
		},
		threshold:  settings.Threshold,
		sampleRate: settings.SampleRate,
		log:        GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AnalyzeFile decodes path and runs it through the pipeline
func (p *Pipeline) AnalyzeFile(ctx context.Context, path string) (*FileResult, error) {
	clip, err := myaudio.ReadAudioFile(ctx, path, myaudio.ReadOptions{TargetRate: p.sampleRate})
	if err != nil {
		return nil, err
	}
	res, err := p.AnalyzeClip(ctx, clip)
	if err != nil {
		return nil, err
	}
	res.Path = path
	return res, nil
}

// AnalyzeClip runs decoded audio through detection, grouping and export,
// then hands the result to every sink. A clip without events is not an
// error: the result simply has no document and sinks are not called.
func (p *Pipeline) AnalyzeClip(ctx context.Context, clip *myaudio.Clip) (*FileResult, error) {
	start := time.Now()

	run, err := p.detector.Detect(ctx, clip.Samples, clip.SampleRate, p.params)
	if err != nil {
		return nil, err
	}

	events := p.grouper.Group(run.Detections, p.threshold)
	if p.metrics != nil {
		for i := range events {
			p.metrics.RecordEvent(events[i].Label)
		}
	}

	res := &FileResult{
		Path:     clip.Source,
		Source:   filepath.Base(clip.Source),
		Duration: clip.Seconds(),
		Run:      run,
		Events:   events,
	}

	doc, err := p.exporter.Export(events, res.Source, res.Duration)
	switch {
	case err == nil:
		res.Document = doc
	case errors.Is(err, export.ErrEmptyExport):
		p.log.Warn("no events above threshold",
			logger.String("file", res.Source),
			logger.Int("detections", len(run.Detections)),
			logger.Float64("threshold", p.threshold))
	default:
		return nil, err
	}

	res.Elapsed = time.Since(start)

	if res.Document != nil {
		res.Clip = clip
		err := p.handle(ctx, res)
		res.Clip = nil
		if err != nil {
			return res, err
		}
	}

	p.log.Info("file analyzed",
		logger.String("file", res.Source),
		logger.Float64("seconds", res.Duration),
		logger.Int("detections", len(run.Detections)),
		logger.Int("skipped", run.Skipped),
		logger.Int("events", len(events)),
		logger.Duration("elapsed", res.Elapsed))

	return res, nil
}

func (p *Pipeline) handle(ctx context.Context, res *FileResult) error {
	for _, s := range p.sinks {
		if err := s.Handle(ctx, res); err != nil {
			return err
		}
	}
	return nil
}

// Threshold returns the confidence threshold used for grouping
func (p *Pipeline) Threshold() float64 {
	return p.threshold
}
