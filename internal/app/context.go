// Package app wires settings, models and result sinks into the commands.
package app

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/urbansound/soundscape/internal/analysis"
	"github.com/urbansound/soundscape/internal/buildinfo"
	"github.com/urbansound/soundscape/internal/classifier"
	"github.com/urbansound/soundscape/internal/conf"
	"github.com/urbansound/soundscape/internal/datastore"
	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/logger"
	"github.com/urbansound/soundscape/internal/mqtt"
	"github.com/urbansound/soundscape/internal/observability"
	"github.com/urbansound/soundscape/internal/observability/metrics"
)

// Context carries what every command needs
type Context struct {
	Settings *conf.Settings
	Build    *buildinfo.Context
	Metrics  *observability.Metrics
	Registry *classifier.Registry
	Out      io.Writer

	closers []func()

	// replaced in tests
	newStore     func(*conf.Settings) datastore.Interface
	newPublisher func(mqtt.Config, ...mqtt.Option) (mqtt.Client, error)
}

// New returns a context without settings. Commands receive it while the
// command line is parsed and call Init once the configuration is loaded.
// A nil out writes to stdout.
func New(build *buildinfo.Context, out io.Writer) *Context {
	if build == nil {
		build = buildinfo.Current()
	}
	if out == nil {
		out = os.Stdout
	}
	return &Context{
		Build:        build,
		Out:          out,
		newStore:     datastore.New,
		newPublisher: mqtt.NewClient,
	}
}

// Init attaches settings and creates metrics and the prototype registry
func (c *Context) Init(settings *conf.Settings) error {
	if settings == nil {
		return errors.Newf("settings are required").
			Component("app").
			Category(errors.CategoryConfiguration).
			Build()
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	c.Settings = settings
	c.Metrics = m
	c.Registry = classifier.NewRegistry(0, classifier.WithK(settings.Classifier.K))
	return nil
}

// NewContext is New followed by Init
func NewContext(settings *conf.Settings, build *buildinfo.Context, out io.Writer) (*Context, error) {
	c := New(build, out)
	if err := c.Init(settings); err != nil {
		return nil, err
	}
	return c, nil
}

// OnClose registers fn to run on Close, in reverse registration order
func (c *Context) OnClose(fn func()) {
	c.closers = append(c.closers, fn)
}

// Close runs the registered closers
func (c *Context) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// LoadModels builds the configured extractor and classifier
func (c *Context) LoadModels() (*analysis.Models, error) {
	return analysis.LoadModels(c.Settings, c.Registry)
}

// NewPipeline builds a detector and pipeline on models, sending results
// to sinks.
func (c *Context) NewPipeline(models *analysis.Models, sinks ...analysis.Sink) *analysis.Pipeline {
	detector := analysis.NewWindowedDetector(models.Extractor, models.Classifier,
		analysis.WithWorkers(c.Settings.Analysis.Workers),
		analysis.WithMetrics(c.Metrics.Detector))

	opts := []analysis.PipelineOption{analysis.WithEventMetrics(c.Metrics.Detector)}
	for _, s := range sinks {
		opts = append(opts, analysis.WithSink(s))
	}
	return analysis.NewPipeline(&c.Settings.Analysis, detector, opts...)
}

// Services are the optional outputs enabled in settings
type Services struct {
	Store     datastore.Interface
	Publisher mqtt.Client

	closeOnce sync.Once
}

// OpenServices opens the run history database and connects to MQTT when
// enabled. Services that are disabled stay nil.
func (c *Context) OpenServices(ctx context.Context) (*Services, error) {
	svc := &Services{}

	if store := c.newStore(c.Settings); store != nil {
		if err := store.Open(); err != nil {
			return nil, err
		}
		if ds, ok := store.(interface {
			SetMetrics(*metrics.DatastoreMetrics)
		}); ok {
			ds.SetMetrics(c.Metrics.Datastore)
		}
		svc.Store = store
	}

	if c.Settings.MQTT.Enabled {
		client, err := c.newPublisher(mqtt.ConfigFromSettings(&c.Settings.MQTT), mqtt.WithMetrics(c.Metrics.MQTT))
		if err != nil {
			svc.Close()
			return nil, err
		}
		if err := client.Connect(ctx); err != nil {
			svc.Close()
			return nil, err
		}
		svc.Publisher = client
	}

	return svc, nil
}

// Sinks returns the sinks for the enabled services
func (s *Services) Sinks(settings *conf.Settings) []analysis.Sink {
	var sinks []analysis.Sink
	if s.Store != nil {
		sinks = append(sinks, HistorySink(s.Store, &settings.Analysis))
	}
	if s.Publisher != nil {
		sinks = append(sinks, PublishSink(s.Publisher))
	}
	return sinks
}

// Close disconnects MQTT and closes the database
func (s *Services) Close() {
	s.closeOnce.Do(func() {
		if s.Publisher != nil {
			s.Publisher.Disconnect()
		}
		if s.Store != nil {
			if err := s.Store.Close(); err != nil {
				GetLogger().Warn("failed to close datastore", logger.Error(err))
			}
		}
	})
}

// Finish writes the metrics textfile when enabled
func (c *Context) Finish() error {
	if !c.Settings.Metrics.Enabled {
		return nil
	}
	return c.Metrics.WriteTextfile(c.Settings.Metrics.TextFile)
}

var (
	serviceLogger logger.Logger
	loggerOnce    sync.Once
)

// GetLogger returns the app logger
func GetLogger() logger.Logger {
	loggerOnce.Do(func() {
		serviceLogger = logger.Global().Module("app")
	})
	return serviceLogger
}
