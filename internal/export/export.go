// Package export serializes grouped detection events into the document
// format shared with the import tooling: a JSON object with Spanish field
// names, one record per grouped event.
package export

import (
	"sync"
	"time"

	"github.com/urbansound/soundscape/internal/detection"
	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/logger"
)

// ErrEmptyExport is returned when there are no events to export, which
// almost always means analysis was never run or produced nothing.
var ErrEmptyExport = errors.NewStd("no detections to export")

// Record is one grouped event in an export document
type Record struct {
	Clase        string  `json:"clase"`
	TiempoInicio float64 `json:"tiempo_inicio"`
	TiempoFin    float64 `json:"tiempo_fin"`
	Duracion     float64 `json:"duracion"`
	Confianza    float64 `json:"confianza"`
	NumSegmentos int     `json:"num_segmentos"`
}

// Document is the export of one analyzed recording
type Document struct {
	Archivo       string   `json:"archivo"`
	DuracionTotal float64  `json:"duracion_total"`
	FechaAnalisis string   `json:"fecha_analisis"`
	Detecciones   []Record `json:"detecciones_agrupadas"`
}

// AnalyzedAt parses FechaAnalisis
func (d *Document) AnalyzedAt() (time.Time, error) {
	return time.Parse(time.RFC3339, d.FechaAnalisis)
}

// Events converts the records back into grouped events
func (d *Document) Events() []detection.GroupedEvent {
	events := make([]detection.GroupedEvent, len(d.Detecciones))
	for i, r := range d.Detecciones {
		events[i] = detection.GroupedEvent{
			Label:          r.Clase,
			Start:          r.TiempoInicio,
			End:            r.TiempoFin,
			MeanConfidence: r.Confianza,
			WindowCount:    r.NumSegmentos,
		}
	}
	return events
}

// Exporter builds export documents
type Exporter struct {
	now func() time.Time
}

// Option configures an Exporter
type Option func(*Exporter)

// WithClock replaces time.Now as the source of the analysis timestamp
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExporter returns an Exporter
func NewExporter(opts ...Option) *Exporter {
	e := &Exporter{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export maps events to a document for sourceName. totalDuration is the
// length of the analyzed audio in seconds.
func (e *Exporter) Export(events []detection.GroupedEvent, sourceName string, totalDuration float64) (*Document, error) {
	if len(events) == 0 {
		return nil, errors.New(ErrEmptyExport).
			Component("export").
			Category(errors.CategoryValidation).
			Context("source", sourceName).
			Build()
	}

	records := make([]Record, len(events))
	for i, ev := range events {
		records[i] = Record{
			Clase:        ev.Label,
			TiempoInicio: ev.Start,
			TiempoFin:    ev.End,
			Duracion:     ev.Duration(),
			Confianza:    ev.MeanConfidence,
			NumSegmentos: ev.WindowCount,
		}
	}

	return &Document{
		Archivo:       sourceName,
		DuracionTotal: totalDuration,
		FechaAnalisis: e.now().Format(time.RFC3339),
		Detecciones:   records,
	}, nil
}

var (
	loggerOnce sync.Once
	pkgLogger  logger.Logger
)

// GetLogger returns the export package logger
func GetLogger() logger.Logger {
	loggerOnce.Do(func() {
		pkgLogger = logger.Global().Module("export")
	})
	return pkgLogger
}
