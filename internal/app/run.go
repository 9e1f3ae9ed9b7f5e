package app

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urbansound/soundscape/internal/analysis"
	"github.com/urbansound/soundscape/internal/classifier"
	"github.com/urbansound/soundscape/internal/datastore"
	"github.com/urbansound/soundscape/internal/detection"
	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/logger"
	"github.com/urbansound/soundscape/internal/myaudio"
)

// ErrHistoryDisabled is returned by History when no database is configured
var ErrHistoryDisabled = errors.NewStd("run history requires output.sqlite or output.mysql to be enabled")

// withPipeline loads models, opens services and runs fn with a pipeline
// that writes output and feeds every enabled service. Run metrics are
// recorded per signal by the detector.
func (c *Context) withPipeline(ctx context.Context, fn func(p *analysis.Pipeline) error) error {
	models, err := c.LoadModels()
	if err != nil {
		return err
	}
	defer models.Close()

	svc, err := c.OpenServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	sinks := []analysis.Sink{OutputSink(&c.Settings.Output, c.Out)}
	if c.Settings.Output.Clips.Enabled {
		sinks = append(sinks, ClipSink(&c.Settings.Output, c.Out))
	}
	sinks = append(sinks, svc.Sinks(c.Settings)...)
	return fn(c.NewPipeline(models, sinks...))
}

// AnalyzeFile runs one recording through the pipeline. A recording without
// events prints the empty timeline.
func (c *Context) AnalyzeFile(ctx context.Context, path string) (*analysis.FileResult, error) {
	var res *analysis.FileResult
	err := c.withPipeline(ctx, func(p *analysis.Pipeline) error {
		var err error
		res, err = p.AnalyzeFile(ctx, path)
		if err != nil {
			return err
		}
		if res.Document == nil {
			return detection.RenderTimeline(c.Out, nil, res.Duration)
		}
		return nil
	})
	return res, err
}

// AnalyzeDirectory runs every supported file in dir through the pipeline
// and prints a summary. Per-file failures are listed, not returned.
func (c *Context) AnalyzeDirectory(ctx context.Context, dir string, recursive bool) (*analysis.DirectorySummary, error) {
	var summary *analysis.DirectorySummary
	err := c.withPipeline(ctx, func(p *analysis.Pipeline) error {
		var err error
		summary, err = p.DirectoryAnalysis(ctx, dir, recursive)
		if summary == nil {
			return err
		}

		withEvents := 0
		for _, res := range summary.Results {
			if res.Document != nil {
				withEvents++
			}
		}
		fmt.Fprintf(c.Out, "\nProcessed %d files: %d with events, %d without, %d failed\n",
			summary.Files(), withEvents, len(summary.Results)-withEvents, len(summary.Failures))
		for _, f := range summary.Failures {
			fmt.Fprintf(c.Out, "  failed: %s: %v\n", f.Path, f.Err)
		}
		return err
	})
	return summary, err
}

// Predict assigns a single label to a whole recording and prints the top
// candidates.
func (c *Context) Predict(ctx context.Context, path string) (*analysis.FilePrediction, error) {
	models, err := c.LoadModels()
	if err != nil {
		return nil, err
	}
	defer models.Close()

	as := c.Settings.Analysis
	pred, err := analysis.NewPredictor(models.Extractor, models.Classifier, as.SampleRate, as.MaxPredictSeconds).
		PredictFile(ctx, path)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(c.Out, "%s: %s (%.1f%%, %.1fs analyzed)\n", pred.File, pred.Label, pred.Confidence*100, pred.Seconds)
	for i, p := range pred.Top {
		fmt.Fprintf(c.Out, "  %d. %-24s %5.1f%%\n", i+1, p.Label, p.Probability*100)
	}
	return pred, nil
}

// Enroll builds a prototype model from a directory with one sub-directory
// per label and saves it to out.
func (c *Context) Enroll(ctx context.Context, dir, out string) (*classifier.PrototypeModel, error) {
	fs := c.Settings.Features
	if err := analysis.CheckSampleRate(&fs, c.Settings.Analysis.SampleRate); err != nil {
		return nil, err
	}
	ext, closeExt, err := analysis.NewExtractor(&fs, c.Settings.Classifier.Threads)
	if err != nil {
		return nil, err
	}
	defer closeExt()

	as := c.Settings.Analysis
	model, err := classifier.BuildPrototypes(ctx, dir,
		analysis.EmbedFile(ext, as.SampleRate, as.MaxPredictSeconds),
		classifier.EnrollOptions{Accept: myaudio.IsSupportedFile, Extractor: fs.Type})
	if err != nil {
		return nil, err
	}

	if err := model.Save(out); err != nil {
		return nil, err
	}
	c.Registry.Flush()

	GetLogger().Info("prototypes saved",
		logger.String("path", out),
		logger.Int("labels", len(model.Labels)),
		logger.Int("prototypes", len(model.Prototypes)))
	fmt.Fprintf(c.Out, "Enrolled %d prototypes for %d labels -> %s\n", len(model.Prototypes), len(model.Labels), out)
	return model, nil
}

// History prints the most recent runs and the per-label totals
func (c *Context) History(ctx context.Context, limit int) ([]datastore.AnalysisRun, error) {
	store := c.newStore(c.Settings)
	if store == nil {
		return nil, errors.New(ErrHistoryDisabled).
			Component("app").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := store.Open(); err != nil {
		return nil, err
	}
	defer func() {
		if err := store.Close(); err != nil {
			GetLogger().Warn("failed to close datastore", logger.Error(err))
		}
	}()

	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	summary, err := store.LabelSummary(ctx)
	if err != nil {
		return nil, err
	}

	tw := tabwriter.NewWriter(c.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ANALYZED\tFILE\tDURATION\tEVENTS\tRUN")
	for i := range runs {
		r := &runs[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			r.AnalyzedAt.Local().Format("2006-01-02 15:04:05"),
			r.SourceFile,
			detection.FormatClock(r.DurationSeconds),
			len(r.Events),
			r.RunID)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "LABEL\tEVENTS\tSECONDS\tMEAN CONFIDENCE")
	for _, s := range summary {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t%.1f%%\n", s.Label, s.Events, s.TotalSeconds, s.MeanConfidence*100)
	}
	if err := tw.Flush(); err != nil {
		return nil, errors.New(err).Component("app").Category(errors.CategoryFileIO).Build()
	}
	return runs, nil
}
