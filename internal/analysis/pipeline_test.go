package analysis

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbansound/soundscape/internal/conf"
	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/export"
	"github.com/urbansound/soundscape/internal/myaudio"
	"github.com/urbansound/soundscape/internal/observability/metrics"
)

const wavRate = 8000

func testSettings() *conf.AnalysisSettings {
	return &conf.AnalysisSettings{
		WindowSeconds: 1,
		Overlap:       0,
		Threshold:     0.4,
		GapThreshold:  0.5,
		SampleRate:    wavRate,
	}
}

type recordingSink struct {
	mu      sync.Mutex
	results []*FileResult
}

func (s *recordingSink) Handle(_ context.Context, res *FileResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
	return nil
}

func newTestPipeline(t *testing.T, opts ...PipelineOption) *Pipeline {
	t.Helper()
	d, _ := newTestDetector(t)
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	opts = append([]PipelineOption{
		WithPipelineLogger(quietLogger()),
		WithExporter(export.NewExporter(export.WithClock(func() time.Time { return fixed }))),
	}, opts...)
	return NewPipeline(testSettings(), d, opts...)
}

// trafficThenSiren is 4 s of traffic level audio, 2 s of silence and 4 s of
// siren level audio
func trafficThenSiren(rate int) []float32 {
	return concat(constant(4*rate, 0.5), constant(2*rate, 0), constant(4*rate, 0.9))
}

func TestPipeline_AnalyzeClip(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := metrics.NewDetectorMetrics(reg)
	require.NoError(t, err)

	sink := &recordingSink{}
	p := newTestPipeline(t, WithSink(sink), WithEventMetrics(m))

	clip := &myaudio.Clip{Samples: trafficThenSiren(testRate), SampleRate: testRate, Source: "calle.wav"}
	res, err := p.AnalyzeClip(context.Background(), clip)
	require.NoError(t, err)

	require.Len(t, res.Events, 2)
	assert.Equal(t, "Trafico", res.Events[0].Label)
	assert.InDelta(t, 0.0, res.Events[0].Start, 1e-9)
	assert.InDelta(t, 4.0, res.Events[0].End, 1e-9)
	assert.Equal(t, 4, res.Events[0].WindowCount)
	assert.Equal(t, "Sirena", res.Events[1].Label)
	assert.InDelta(t, 6.0, res.Events[1].Start, 1e-9)
	assert.InDelta(t, 10.0, res.Events[1].End, 1e-9)

	require.NotNil(t, res.Document)
	assert.Equal(t, "calle.wav", res.Document.Archivo)
	assert.InDelta(t, 10.0, res.Document.DuracionTotal, 1e-9)
	assert.Equal(t, "2026-05-01T12:00:00Z", res.Document.FechaAnalisis)
	assert.Len(t, res.Document.Detecciones, 2)

	require.Len(t, sink.results, 1)
	assert.Same(t, res, sink.results[0])
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("Sirena")), 0)
}

func TestPipeline_NoEventsSkipsSinks(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p := newTestPipeline(t, WithSink(sink))

	// Only the low confidence tie class, below the 0.4 threshold
	clip := &myaudio.Clip{Samples: constant(5*testRate, 0.2), SampleRate: testRate, Source: "quiet.wav"}
	res, err := p.AnalyzeClip(context.Background(), clip)
	require.NoError(t, err)

	assert.NotEmpty(t, res.Run.Detections)
	assert.Empty(t, res.Events)
	assert.Nil(t, res.Document)
	assert.Empty(t, sink.results)
}

func TestPipeline_SinkErrorSurfaces(t *testing.T) {
	t.Parallel()

	boom := errors.NewStd("sink down")
	p := newTestPipeline(t, WithSink(SinkFunc(func(context.Context, *FileResult) error { return boom })))

	clip := &myaudio.Clip{Samples: constant(3*testRate, 0.9), SampleRate: testRate, Source: "x.wav"}
	res, err := p.AnalyzeClip(context.Background(), clip)
	require.ErrorIs(t, err, boom)
	require.NotNil(t, res)
	assert.NotNil(t, res.Document)
}

func writeWAV(t *testing.T, dir, name string, samples []float32) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, myaudio.WriteWAV(path, samples, wavRate))
	return path
}

func TestPipeline_AnalyzeFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeWAV(t, dir, "plaza.wav", trafficThenSiren(wavRate))

	p := newTestPipeline(t)
	res, err := p.AnalyzeFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, path, res.Path)
	assert.Equal(t, "plaza.wav", res.Source)
	assert.InDelta(t, 10.0, res.Duration, 1e-9)
	require.Len(t, res.Events, 2)
	assert.Equal(t, []string{"Trafico", "Sirena"}, []string{res.Events[0].Label, res.Events[1].Label})

	_, err = p.AnalyzeFile(context.Background(), filepath.Join(dir, "missing.wav"))
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
}

func TestPipeline_DirectoryAnalysis(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))

	writeWAV(t, dir, "a.wav", trafficThenSiren(wavRate))
	writeWAV(t, dir, "b.wav", constant(3*wavRate, 0.9))
	writeWAV(t, sub, "c.wav", constant(3*wavRate, 0.5))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.wav"), []byte("garbage"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	sink := &recordingSink{}
	p := newTestPipeline(t, WithSink(sink))

	flat, err := p.DirectoryAnalysis(context.Background(), dir, false)
	require.NoError(t, err)
	assert.Equal(t, 3, flat.Files())
	require.Len(t, flat.Results, 2)
	assert.Equal(t, "a.wav", flat.Results[0].Source)
	assert.Equal(t, "b.wav", flat.Results[1].Source)
	require.Len(t, flat.Failures, 1)
	assert.Equal(t, "broken.wav", filepath.Base(flat.Failures[0].Path))
	assert.ErrorIs(t, flat.Failures[0].Err, myaudio.ErrInvalidAudio)

	deep, err := p.DirectoryAnalysis(context.Background(), dir, true)
	require.NoError(t, err)
	assert.Len(t, deep.Results, 3)

	_, err = p.DirectoryAnalysis(context.Background(), filepath.Join(dir, "missing"), false)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
}

func TestPipeline_DirectoryAnalysisCancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeWAV(t, dir, "a.wav", constant(2*wavRate, 0.5))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := newTestPipeline(t).DirectoryAnalysis(ctx, dir, false)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Zero(t, summary.Files())
}
