package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/urbansound/soundscape/internal/analysis"
	"github.com/urbansound/soundscape/internal/conf"
	"github.com/urbansound/soundscape/internal/datastore"
	"github.com/urbansound/soundscape/internal/detection"
	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/export"
	"github.com/urbansound/soundscape/internal/mqtt"
)

// OutputSink renders each result in the configured format. json and csv
// write a file into the output directory and print its path to w; table
// prints the event timeline to w.
func OutputSink(out *conf.OutputSettings, w io.Writer) analysis.Sink {
	return analysis.SinkFunc(func(_ context.Context, res *analysis.FileResult) error {
		switch out.Format {
		case "table":
			return detection.RenderTimeline(w, res.Events, res.Duration)
		case "csv":
			path, err := export.WriteCSVFile(out.Path, res.Document)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(w, "%s: %d events -> %s\n", res.Source, len(res.Document.Detecciones), path)
			return err
		case "json", "":
			path, err := export.WriteFile(out.Path, res.Document)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(w, "%s: %d events -> %s\n", res.Source, len(res.Document.Detecciones), path)
			return err
		default:
			return errors.Newf("unknown output format %q", out.Format).
				Component("app").
				Category(errors.CategoryConfiguration).
				Build()
		}
	})
}

// ClipSink writes every grouped event of a result as a WAV file cut from
// the decoded audio
func ClipSink(out *conf.OutputSettings, w io.Writer) analysis.Sink {
	dir := out.Clips.Path
	if dir == "" {
		dir = filepath.Join(out.Path, "clips")
	}
	return analysis.SinkFunc(func(_ context.Context, res *analysis.FileResult) error {
		if res.Clip == nil {
			return nil
		}
		paths, err := export.WriteClips(dir, res.Document, res.Clip.Samples, res.Clip.SampleRate, out.Clips.Labels)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return nil
		}
		_, err = fmt.Fprintf(w, "%s: %d clips -> %s\n", res.Source, len(paths), filepath.Dir(paths[0]))
		return err
	})
}

// HistorySink stores each result in the run history
func HistorySink(store datastore.Interface, as *conf.AnalysisSettings) analysis.Sink {
	return analysis.SinkFunc(func(ctx context.Context, res *analysis.FileResult) error {
		run := datastore.RunFromDocument(res.Document, datastore.RunStats{
			SourcePath:     res.Path,
			WindowSeconds:  as.WindowSeconds,
			Overlap:        as.Overlap,
			Threshold:      as.Threshold,
			GapThreshold:   as.GapThreshold,
			Windows:        res.Run.Windows,
			Analyzed:       res.Run.Analyzed,
			Skipped:        res.Run.Skipped,
			ProcessingTime: res.Elapsed,
		})
		return store.SaveRun(ctx, run)
	})
}

// PublishSink sends each export document over MQTT
func PublishSink(client mqtt.Client) analysis.Sink {
	return analysis.SinkFunc(func(ctx context.Context, res *analysis.FileResult) error {
		return client.PublishDocument(ctx, res.Document)
	})
}
