// Package analysis runs the soundscape pipeline: windowed detection over a
// signal, grouping of the detections into events, and file and directory
// level orchestration around them.
package analysis

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/urbansound/soundscape/internal/classifier"
	"github.com/urbansound/soundscape/internal/detection"
	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/features"
	"github.com/urbansound/soundscape/internal/logger"
	"github.com/urbansound/soundscape/internal/observability/metrics"
)

// WindowParams describes the sliding window
type WindowParams struct {
	WindowSeconds float64
	Overlap       float64 // fraction of a window shared with the next, [0,1)
}

// DetectionRun is the result of one Detect call
type DetectionRun struct {
	Detections []detection.RawDetection
	Windows    int // windows that fit in the signal
	Analyzed   int // windows that produced a detection
	Skipped    int // windows whose features could not be extracted
	WindowSize int // samples
	Step       int // samples
	SampleRate int
}

// WindowedDetector slides a window across a signal and classifies each
// window. It holds no per-run state and may be shared between goroutines
// as long as its extractor and classifier may be.
type WindowedDetector struct {
	extractor  features.Extractor
	classifier classifier.Classifier
	workers    int
	metrics    *metrics.DetectorMetrics
	log        logger.Logger
}

// DetectorOption configures a WindowedDetector
type DetectorOption func(*WindowedDetector)

// WithWorkers processes windows on n goroutines. Output order does not
// depend on n.
func WithWorkers(n int) DetectorOption {
	return func(d *WindowedDetector) {
		d.workers = max(n, 1)
	}
}

// WithMetrics records window and run metrics
func WithMetrics(m *metrics.DetectorMetrics) DetectorOption {
	return func(d *WindowedDetector) {
		d.metrics = m
	}
}

// WithLogger overrides the package logger
func WithLogger(l logger.Logger) DetectorOption {
	return func(d *WindowedDetector) {
		if l != nil {
			d.log = l
		}
	}
}

// NewWindowedDetector returns a detector using the given extractor and
// classifier. Either may be nil, in which case Detect fails with
// ErrNotReady.
func NewWindowedDetector(extractor features.Extractor, cls classifier.Classifier, opts ...DetectorOption) *WindowedDetector {
	d := &WindowedDetector{
		extractor:  extractor,
		classifier: cls,
		workers:    1,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = GetLogger()
	}
	return d
}

// Labels returns the classifier label set, nil when no classifier is set
func (d *WindowedDetector) Labels() *classifier.LabelSet {
	if d.classifier == nil {
		return nil
	}
	return d.classifier.Labels()
}

// windowGeometry converts WindowParams into sample counts
func windowGeometry(sampleRate int, p WindowParams) (window, step int, err error) {
	if sampleRate <= 0 {
		return 0, 0, invalidInput("sample rate must be positive", "sample_rate", sampleRate)
	}
	if !(p.WindowSeconds > 0) || math.IsInf(p.WindowSeconds, 0) {
		return 0, 0, invalidInput("window length must be positive", "window_seconds", p.WindowSeconds)
	}
	if !(p.Overlap >= 0 && p.Overlap < 1) {
		return 0, 0, invalidInput("overlap must be in [0,1)", "overlap", p.Overlap)
	}

	window = int(math.Floor(p.WindowSeconds * float64(sampleRate)))
	if window < 1 {
		return 0, 0, invalidInput("window shorter than one sample",
			"window_seconds", p.WindowSeconds, "sample_rate", sampleRate)
	}
	step = max(1, int(math.Floor(float64(window)*(1-p.Overlap))))
	return window, step, nil
}

// windowResult is the outcome of one window, kept in an index-addressed
// slot so parallel runs can be compacted in window order.
type windowResult struct {
	det     detection.RawDetection
	ok      bool
	skipped bool
}

// Detect analyzes every full window of signal. Windows whose features
// cannot be extracted are skipped and counted; a classifier failure aborts
// the run. The trailing partial window is never analyzed, so a signal
// shorter than one window yields an empty run.
func (d *WindowedDetector) Detect(ctx context.Context, signal []float32, sampleRate int, p WindowParams) (*DetectionRun, error) {
	if d.extractor == nil || d.classifier == nil {
		return nil, errors.New(ErrNotReady).
			Component("analysis").
			Category(errors.CategoryState).
			Context("has_extractor", d.extractor != nil).
			Context("has_classifier", d.classifier != nil).
			Build()
	}
	if len(signal) == 0 {
		return nil, invalidInput("empty signal")
	}

	window, step, err := windowGeometry(sampleRate, p)
	if err != nil {
		return nil, err
	}

	count := 0
	if len(signal) >= window {
		count = (len(signal)-window)/step + 1
	}

	run := &DetectionRun{
		Windows:    count,
		WindowSize: window,
		Step:       step,
		SampleRate: sampleRate,
	}

	var finish func(error)
	if d.metrics != nil {
		finish = d.metrics.StartRun()
	}

	start := time.Now()
	results, err := d.scan(ctx, signal, sampleRate, window, step, count)
	if finish != nil {
		finish(err)
	}
	if err != nil {
		return nil, err
	}

	run.Detections = make([]detection.RawDetection, 0, count)
	for i := range results {
		switch {
		case results[i].ok:
			run.Detections = append(run.Detections, results[i].det)
		case results[i].skipped:
			run.Skipped++
		}
	}
	run.Analyzed = len(run.Detections)

	d.log.Info("detection run completed",
		logger.Int("windows", run.Windows),
		logger.Int("analyzed", run.Analyzed),
		logger.Int("skipped", run.Skipped),
		logger.Int("window_size", window),
		logger.Int("step", step),
		logger.Int("workers", d.workers),
		logger.Duration("elapsed", time.Since(start)))

	return run, nil
}

func (d *WindowedDetector) scan(ctx context.Context, signal []float32, sampleRate, window, step, count int) ([]windowResult, error) {
	results := make([]windowResult, count)

	if d.workers <= 1 || count <= 1 {
		for i := range count {
			if err := ctx.Err(); err != nil {
				return nil, cancelled(err, i)
			}
			res, err := d.analyzeWindow(signal, sampleRate, window, step, i)
			if err != nil {
				return nil, err
			}
			results[i] = res
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i := range count {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return cancelled(err, i)
			}
			res, err := d.analyzeWindow(signal, sampleRate, window, step, i)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// Scheduling stops on cancellation without any worker necessarily
	// seeing it, leaving unfilled slots.
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err, count)
	}
	return results, nil
}

// analyzeWindow extracts and classifies window i
func (d *WindowedDetector) analyzeWindow(signal []float32, sampleRate, window, step, i int) (windowResult, error) {
	offset := i * step
	samples := signal[offset : offset+window]
	startSec := float64(offset) / float64(sampleRate)
	endSec := float64(offset+window) / float64(sampleRate)
	began := time.Now()

	vec, err := d.extractor.Extract(samples, sampleRate)
	if err != nil || len(vec) == 0 {
		d.log.Debug("window skipped",
			logger.Int("window", i),
			logger.Float64("start", startSec),
			logger.Error(err))
		if d.metrics != nil {
			d.metrics.RecordWindow(metrics.WindowSkipped, 0)
		}
		return windowResult{skipped: true}, nil
	}

	dist, err := d.classifier.Classify(vec)
	if err != nil {
		return windowResult{}, errors.New(fmt.Errorf("classification failed: %w", err)).
			Component("analysis").
			Category(errors.CategoryClassification).
			Priority(errors.PriorityHigh).
			Context("window", i).
			Context("window_start", startSec).
			Build()
	}

	idx, conf := dist.Argmax()
	if idx < 0 {
		return windowResult{}, errors.Newf("classifier returned an empty distribution").
			Component("analysis").
			Category(errors.CategoryClassification).
			Context("window", i).
			Build()
	}
	label := dist.Labels().Name(idx)

	if d.metrics != nil {
		d.metrics.RecordWindow(metrics.WindowAnalyzed, time.Since(began))
		d.metrics.RecordDetection(label)
	}

	return windowResult{
		ok: true,
		det: detection.RawDetection{
			WindowStart:  startSec,
			WindowEnd:    endSec,
			Label:        label,
			LabelIndex:   idx,
			Confidence:   conf,
			Distribution: dist,
		},
	}, nil
}

func cancelled(err error, window int) error {
	return errors.New(err).
		Component("analysis").
		Category(errors.CategoryCancellation).
		Context("window", window).
		Build()
}
