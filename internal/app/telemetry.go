package app

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/urbansound/soundscape/internal/conf"
	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/logger"
)

const sentryFlushTimeout = 2 * time.Second

// SetupLogging installs the central logger described by settings. Debug
// lowers the default and console levels. The returned function flushes and
// closes log files.
func SetupLogging(settings *conf.Settings) (func() error, error) {
	cfg := settings.Logging
	if settings.Debug {
		cfg.DefaultLevel = "debug"
		if cfg.Console != nil {
			console := *cfg.Console
			console.Level = "debug"
			cfg.Console = &console
		}
	}

	cl, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Build()
	}
	logger.SetGlobal(cl)
	return cl.Close, nil
}

// SetupTelemetry initializes Sentry and routes enhanced errors to it. It is
// a no-op when telemetry is disabled. The returned function flushes
// pending events.
func (c *Context) SetupTelemetry() (func(), error) {
	ts := c.Settings.Telemetry
	if !ts.Enabled {
		return func() {}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         ts.DSN,
		Environment: ts.Environment,
		Release:     c.Build.Release(),
		ServerName:  c.Build.InstanceID,
	})
	if err != nil {
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Context("setting", "telemetry.dsn").
			Build()
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	GetLogger().Info("error reporting enabled", logger.String("environment", ts.Environment))

	return func() {
		errors.SetTelemetryReporter(nil)
		sentry.Flush(sentryFlushTimeout)
	}, nil
}
