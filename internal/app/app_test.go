package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbansound/soundscape/internal/analysis"
	"github.com/urbansound/soundscape/internal/buildinfo"
	"github.com/urbansound/soundscape/internal/classifier"
	"github.com/urbansound/soundscape/internal/conf"
	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/export"
	"github.com/urbansound/soundscape/internal/features"
	"github.com/urbansound/soundscape/internal/mqtt"
	"github.com/urbansound/soundscape/internal/myaudio"
)

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	s := &conf.Settings{}
	s.Analysis = conf.AnalysisSettings{
		WindowSeconds: 1,
		Overlap:       0,
		Threshold:     0.5,
		GapThreshold:  0.5,
		Workers:       2,
		SampleRate:    8000,
	}
	s.Classifier.K = 5
	s.Output = conf.OutputSettings{Path: filepath.Join(t.TempDir(), "out"), Format: "json"}
	return s
}

// levelModels classifies windows by mean amplitude against two prototypes
func levelModels(t *testing.T) *analysis.Models {
	t.Helper()
	cls, err := classifier.NewPrototypeClassifier(&classifier.PrototypeModel{
		Labels:     []string{"fuerte", "suave"},
		Dimensions: 1,
		Prototypes: []classifier.Prototype{
			{Label: "fuerte", Vector: []float64{0.8}},
			{Label: "suave", Vector: []float64{0.1}},
		},
	})
	require.NoError(t, err)

	ext := features.Func{Dims: 1, Fn: func(samples []float32, _ int) ([]float64, error) {
		sum := 0.0
		for _, s := range samples {
			if s < 0 {
				s = -s
			}
			sum += float64(s)
		}
		return []float64{sum / float64(len(samples))}, nil
	}}
	return &analysis.Models{Extractor: ext, Classifier: cls}
}

func loudClip(seconds, rate int) *myaudio.Clip {
	samples := make([]float32, seconds*rate)
	for i := range samples {
		samples[i] = 0.8
	}
	return &myaudio.Clip{Samples: samples, SampleRate: rate, Source: "/grabaciones/avenida.wav"}
}

func newTestContext(t *testing.T, s *conf.Settings, out *bytes.Buffer) *Context {
	t.Helper()
	c, err := NewContext(s, buildinfo.Current(), out)
	require.NoError(t, err)
	return c
}

type fakePublisher struct {
	mu           sync.Mutex
	connectErr   error
	docs         []*export.Document
	disconnected bool
}

func (f *fakePublisher) Connect(context.Context) error { return f.connectErr }
func (f *fakePublisher) Publish(context.Context, string, []byte) error {
	return nil
}
func (f *fakePublisher) PublishDocument(_ context.Context, doc *export.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, doc)
	return nil
}
func (f *fakePublisher) IsConnected() bool { return f.connectErr == nil }
func (f *fakePublisher) Disconnect()       { f.disconnected = true }

func TestNewContext_RequiresSettings(t *testing.T) {
	t.Parallel()

	_, err := NewContext(nil, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestPipeline_JSONOutput(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	s := testSettings(t)
	c := newTestContext(t, s, &out)

	p := c.NewPipeline(levelModels(t), OutputSink(&s.Output, &out))
	res, err := p.AnalyzeClip(context.Background(), loudClip(4, 8000))
	require.NoError(t, err)

	require.Len(t, res.Events, 1)
	assert.Equal(t, "fuerte", res.Events[0].Label)
	assert.Equal(t, 4, res.Events[0].WindowCount)

	entries, err := export.List(s.Output.Path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, out.String(), entries[0].Path)

	doc, err := export.Load(entries[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "avenida.wav", doc.Archivo)
	assert.InDelta(t, 4.0, doc.DuracionTotal, 1e-9)
}

func TestOutputSink_Formats(t *testing.T) {
	t.Parallel()

	for _, format := range []string{"table", "csv"} {
		t.Run(format, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			s := testSettings(t)
			s.Output.Format = format
			c := newTestContext(t, s, &out)

			p := c.NewPipeline(levelModels(t), OutputSink(&s.Output, &out))
			_, err := p.AnalyzeClip(context.Background(), loudClip(3, 8000))
			require.NoError(t, err)

			switch format {
			case "table":
				assert.Contains(t, out.String(), "EVENT TIMELINE")
				assert.Contains(t, out.String(), "FUERTE")
				_, statErr := os.Stat(s.Output.Path)
				assert.True(t, os.IsNotExist(statErr), "table output writes no files")
			case "csv":
				entries, err := os.ReadDir(s.Output.Path)
				require.NoError(t, err)
				require.Len(t, entries, 1)
				assert.True(t, strings.HasSuffix(entries[0].Name(), ".csv"))
			}
		})
	}
}

func TestClipSink(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	s := testSettings(t)
	s.Output.Clips.Enabled = true
	c := newTestContext(t, s, &out)

	var sawClip bool
	capture := analysis.SinkFunc(func(_ context.Context, res *analysis.FileResult) error {
		sawClip = res.Clip != nil
		return nil
	})
	p := c.NewPipeline(levelModels(t), ClipSink(&s.Output, &out), capture)
	res, err := p.AnalyzeClip(context.Background(), loudClip(4, 8000))
	require.NoError(t, err)
	assert.True(t, sawClip)
	assert.Nil(t, res.Clip, "decoded audio is released after the sinks ran")

	dirs, err := os.ReadDir(filepath.Join(s.Output.Path, "clips"))
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	clips, err := os.ReadDir(filepath.Join(s.Output.Path, "clips", dirs[0].Name()))
	require.NoError(t, err)
	require.Len(t, clips, 1)
	assert.True(t, strings.HasPrefix(clips[0].Name(), "001_fuerte_"))
	assert.Contains(t, out.String(), "1 clips ->")

	info, err := myaudio.GetAudioInfo(filepath.Join(s.Output.Path, "clips", dirs[0].Name(), clips[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, 4*8000, info.TotalSamples)
}

func TestOutputSink_UnknownFormat(t *testing.T) {
	t.Parallel()

	sink := OutputSink(&conf.OutputSettings{Format: "xml"}, &bytes.Buffer{})
	err := sink.Handle(context.Background(), &analysis.FileResult{Document: &export.Document{}})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestOpenServices_HistoryAndPublish(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	s := testSettings(t)
	s.Output.SQLite = conf.SQLiteSettings{Enabled: true, Path: filepath.Join(t.TempDir(), "history.db")}
	s.MQTT = conf.MQTTSettings{Enabled: true, Broker: "tcp://127.0.0.1:1883", Topic: "ciudad/ruido"}
	c := newTestContext(t, s, &out)

	pub := &fakePublisher{}
	var gotTopic string
	c.newPublisher = func(cfg mqtt.Config, _ ...mqtt.Option) (mqtt.Client, error) {
		gotTopic = cfg.Topic
		return pub, nil
	}

	svc, err := c.OpenServices(context.Background())
	require.NoError(t, err)
	require.NotNil(t, svc.Store)
	require.NotNil(t, svc.Publisher)
	assert.Equal(t, "ciudad/ruido", gotTopic)

	p := c.NewPipeline(levelModels(t), svc.Sinks(s)...)
	_, err = p.AnalyzeClip(context.Background(), loudClip(2, 8000))
	require.NoError(t, err)

	runs, err := svc.Store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "avenida.wav", runs[0].SourceFile)
	assert.Equal(t, "/grabaciones/avenida.wav", runs[0].SourcePath)
	assert.Equal(t, 2, runs[0].Windows)
	require.Len(t, runs[0].Events, 1)
	assert.Equal(t, "fuerte", runs[0].Events[0].Label)

	require.Len(t, pub.docs, 1)
	assert.Equal(t, "avenida.wav", pub.docs[0].Archivo)

	svc.Close()
	svc.Close()
	assert.True(t, pub.disconnected)
}

func TestOpenServices_ConnectFailure(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	s.MQTT = conf.MQTTSettings{Enabled: true, Broker: "tcp://127.0.0.1:1883", Topic: "t"}
	c := newTestContext(t, s, &bytes.Buffer{})
	c.newPublisher = func(mqtt.Config, ...mqtt.Option) (mqtt.Client, error) {
		return &fakePublisher{connectErr: errors.NewStd("refused")}, nil
	}

	_, err := c.OpenServices(context.Background())
	require.Error(t, err)
}

func TestOpenServices_NothingEnabled(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	c := newTestContext(t, s, &bytes.Buffer{})

	svc, err := c.OpenServices(context.Background())
	require.NoError(t, err)
	assert.Nil(t, svc.Store)
	assert.Nil(t, svc.Publisher)
	assert.Empty(t, svc.Sinks(s))
	svc.Close()
}

func TestFinish_WritesMetrics(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	c := newTestContext(t, s, &bytes.Buffer{})
	require.NoError(t, c.Finish(), "disabled metrics are a no-op")

	s.Metrics = conf.MetricsSettings{Enabled: true, TextFile: filepath.Join(t.TempDir(), "soundscape.prom")}
	p := c.NewPipeline(levelModels(t))
	_, err := p.AnalyzeClip(context.Background(), loudClip(2, 8000))
	require.NoError(t, err)

	require.NoError(t, c.Finish())
	data, err := os.ReadFile(s.Metrics.TextFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `label="fuerte"`)
}

func TestSetupTelemetry_Disabled(t *testing.T) {
	t.Parallel()

	c := newTestContext(t, testSettings(t), &bytes.Buffer{})
	flush, err := c.SetupTelemetry()
	require.NoError(t, err)
	flush()
}

func TestClose_ReverseOrder(t *testing.T) {
	t.Parallel()

	c := New(nil, &bytes.Buffer{})
	var order []int
	c.OnClose(func() { order = append(order, 1) })
	c.OnClose(func() { order = append(order, 2) })
	c.Close()
	c.Close()
	assert.Equal(t, []int{2, 1}, order)
}
