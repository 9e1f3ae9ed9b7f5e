package logger

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// newTextHandler builds the human-readable handler. When tz is nil the
// time attribute is dropped entirely.
func newTextHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	if w == nil {
		w = os.Stdout
	}
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttrFunc(tz),
	})
}

func replaceAttrFunc(tz *time.Location) func(groups []string, a slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}
		switch a.Key {
		case slog.TimeKey:
			if tz == nil {
				return slog.Attr{}
			}
			return slog.String(slog.TimeKey, a.Value.Time().In(tz).Format(time.RFC3339))
		case slog.LevelKey:
			lvl, ok := a.Value.Any().(slog.Level)
			if !ok {
				return a
			}
			return slog.String(slog.LevelKey, levelName(lvl))
		}
		return a
	}
}

// levelName maps the custom trace level to its own name
func levelName(lvl slog.Level) string {
	switch {
	case lvl <= traceLevelValue:
		return "TRACE"
	case lvl <= slog.LevelDebug:
		return "DEBUG"
	case lvl <= slog.LevelInfo:
		return "INFO"
	case lvl <= slog.LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// NewSlogLogger returns a Logger writing text lines to w. A nil writer
// means stderr. Timestamps are rendered in tz, or omitted when tz is nil.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if w == nil {
		w = os.Stderr
	}
	slogLevel := parseSlogLevel(level)
	return &moduleLogger{
		logger:   slog.New(newTextHandler(w, slogLevel, tz)),
		level:    slogLevel,
		timezone: tz,
	}
}

func parseSlogLevel(level LogLevel) slog.Level {
	return parseLogLevel(string(level))
}
