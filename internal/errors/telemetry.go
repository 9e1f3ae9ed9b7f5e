package errors

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter interface allows for pluggable telemetry reporting
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

var (
	telemetryReporter TelemetryReporter
	reporterMu        sync.RWMutex
)

// SetTelemetryReporter sets the global telemetry reporter. Passing nil
// disables reporting.
func SetTelemetryReporter(reporter TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	telemetryReporter = reporter
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

// reportToTelemetry reports an error to the configured telemetry service
func reportToTelemetry(ee *EnhancedError) {
	if ee.IsReported() {
		return
	}

	reporterMu.RLock()
	reporter := telemetryReporter
	reporterMu.RUnlock()

	if reporter == nil || !reporter.IsEnabled() {
		return
	}
	reporter.ReportError(ee)
	ee.MarkReported()
}

// SentryReporter implements TelemetryReporter for Sentry
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter creates a new Sentry telemetry reporter. The sentry
// client must already be initialized with sentry.Init.
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

// IsEnabled returns whether Sentry reporting is enabled
func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError reports an enhanced error to Sentry
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", string(ee.Category))
		scope.SetTag("error_type", fmt.Sprintf("%T", ee.Err))

		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = basicURLScrub(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}

		scope.SetLevel(getErrorLevel(ee))
		scope.SetFingerprint([]string{ee.GetComponent(), string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = generateErrorTitle(ee)
		event.Level = getErrorLevel(ee)
		sentry.CaptureEvent(event)
	})
}

// generateErrorTitle creates a title from component and category. The raw
// message is left out since it may carry file paths.
func generateErrorTitle(ee *EnhancedError) string {
	return fmt.Sprintf("%s: %s error", ee.GetComponent(), ee.Category)
}

// getErrorLevel maps priority and category to a Sentry level
func getErrorLevel(ee *EnhancedError) sentry.Level {
	switch ee.Priority {
	case PriorityCritical:
		return sentry.LevelFatal
	case PriorityHigh:
		return sentry.LevelError
	case PriorityLow:
		return sentry.LevelInfo
	case PriorityMedium:
		return sentry.LevelWarning
	}

	switch ee.Category {
	case CategoryModelLoad, CategoryModelInit, CategoryDatabase:
		return sentry.LevelError
	case CategoryValidation, CategoryCancellation:
		return sentry.LevelInfo
	default:
		return sentry.LevelWarning
	}
}

var urlPattern = regexp.MustCompile(`(?i)([a-z][a-z0-9+.-]*://)([^/\s]+)`)

// basicURLScrub replaces the host part of URLs
func basicURLScrub(s string) string {
	return urlPattern.ReplaceAllString(s, "${1}[host]")
}
