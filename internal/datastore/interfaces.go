// Package datastore keeps a history of analysis runs and their events in
// SQLite or MySQL through GORM.
package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/urbansound/soundscape/internal/conf"
	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/export"
	"github.com/urbansound/soundscape/internal/logger"
	"github.com/urbansound/soundscape/internal/observability/metrics"
)

// slowQueryThreshold marks statements logged as slow
const slowQueryThreshold = 200 * time.Millisecond

// ErrRunNotFound is returned by GetRun for an unknown run ID
var ErrRunNotFound = errors.NewStd("analysis run not found")

// Interface is the run history store
type Interface interface {
	Open() error
	Close() error
	SaveRun(ctx context.Context, run *AnalysisRun) error
	GetRun(ctx context.Context, runID string) (*AnalysisRun, error)
	ListRuns(ctx context.Context, limit int) ([]AnalysisRun, error)
	DeleteRun(ctx context.Context, runID string) error
	LabelSummary(ctx context.Context) ([]LabelCount, error)
}

// DataStore implements Interface on a GORM database
type DataStore struct {
	DB      *gorm.DB
	metrics *metrics.DatastoreMetrics
}

// New returns the store selected by settings, nil when neither database is
// enabled.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{Settings: settings}
	default:
		return nil
	}
}

// SetMetrics enables operation metrics
func (ds *DataStore) SetMetrics(m *metrics.DatastoreMetrics) {
	ds.metrics = m
}

func (ds *DataStore) record(op string, start time.Time, err error) {
	if ds.metrics != nil {
		ds.metrics.RecordOperation(op, time.Since(start), err)
	}
}

func (ds *DataStore) ready() error {
	if ds.DB == nil {
		return errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryState).
			Build()
	}
	return nil
}

func dbError(err error, op string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", op).
		Build()
}

// RunStats carries the detector side of a run that the export document
// does not hold.
type RunStats struct {
	SourcePath     string
	WindowSeconds  float64
	Overlap        float64
	Threshold      float64
	GapThreshold   float64
	Windows        int
	Analyzed       int
	Skipped        int
	ProcessingTime time.Duration
}

// RunFromDocument builds an AnalysisRun with a fresh run ID
func RunFromDocument(doc *export.Document, stats RunStats) *AnalysisRun {
	analyzedAt, err := doc.AnalyzedAt()
	if err != nil {
		analyzedAt = time.Now()
	}

	run := &AnalysisRun{
		RunID:           uuid.NewString(),
		SourceFile:      doc.Archivo,
		SourcePath:      stats.SourcePath,
		DurationSeconds: doc.DuracionTotal,
		AnalyzedAt:      analyzedAt,
		WindowSeconds:   stats.WindowSeconds,
		Overlap:         stats.Overlap,
		Threshold:       stats.Threshold,
		GapThreshold:    stats.GapThreshold,
		Windows:         stats.Windows,
		Analyzed:        stats.Analyzed,
		Skipped:         stats.Skipped,
		ProcessingTime:  stats.ProcessingTime,
		Events:          make([]EventRecord, len(doc.Detecciones)),
	}
	for i, r := range doc.Detecciones {
		run.Events[i] = EventRecord{
			Label:        r.Clase,
			StartSeconds: r.TiempoInicio,
			EndSeconds:   r.TiempoFin,
			Duration:     r.Duracion,
			Confidence:   r.Confianza,
			WindowCount:  r.NumSegmentos,
		}
	}
	return run
}

// SaveRun stores a run and its events in one transaction. An empty RunID
// is filled with a new UUID.
func (ds *DataStore) SaveRun(ctx context.Context, run *AnalysisRun) (err error) {
	if err := ds.ready(); err != nil {
		return err
	}
	start := time.Now()
	defer func() { ds.record("save_run", start, err) }()

	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}

	err = ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(run).Error
	})
	if err != nil {
		return dbError(fmt.Errorf("saving run: %w", err), "save_run")
	}

	GetLogger().Debug("analysis run saved",
		logger.String("run_id", run.RunID),
		logger.String("source", run.SourceFile),
		logger.Int("events", len(run.Events)))
	return nil
}

// GetRun loads a run with its events
func (ds *DataStore) GetRun(ctx context.Context, runID string) (_ *AnalysisRun, err error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { ds.record("get_run", start, err) }()

	var run AnalysisRun
	err = ds.DB.WithContext(ctx).
		Preload("Events", func(db *gorm.DB) *gorm.DB { return db.Order("start_seconds ASC") }).
		Where("run_id = ?", runID).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.New(ErrRunNotFound).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("run_id", runID).
			Build()
	}
	if err != nil {
		return nil, dbError(err, "get_run")
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first, with their events.
// A limit of zero or less returns every run.
func (ds *DataStore) ListRuns(ctx context.Context, limit int) (_ []AnalysisRun, err error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { ds.record("list_runs", start, err) }()

	q := ds.DB.WithContext(ctx).
		Preload("Events", func(db *gorm.DB) *gorm.DB { return db.Order("start_seconds ASC") }).
		Order("analyzed_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var runs []AnalysisRun
	if err = q.Find(&runs).Error; err != nil {
		return nil, dbError(err, "list_runs")
	}
	return runs, nil
}

// DeleteRun removes a run and its events
func (ds *DataStore) DeleteRun(ctx context.Context, runID string) (err error) {
	if err := ds.ready(); err != nil {
		return err
	}
	start := time.Now()
	defer func() { ds.record("delete_run", start, err) }()

	err = ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var run AnalysisRun
		if err := tx.Where("run_id = ?", runID).First(&run).Error; err != nil {
			return err
		}
		if err := tx.Where("analysis_run_id = ?", run.ID).Delete(&EventRecord{}).Error; err != nil {
			return err
		}
		return tx.Delete(&run).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.New(ErrRunNotFound).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("run_id", runID).
			Build()
	}
	if err != nil {
		return dbError(err, "delete_run")
	}
	return nil
}

// LabelSummary counts events per label over all runs, most frequent first
func (ds *DataStore) LabelSummary(ctx context.Context) (_ []LabelCount, err error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { ds.record("label_summary", start, err) }()

	var out []LabelCount
	err = ds.DB.WithContext(ctx).
		Model(&EventRecord{}).
		Select("label, COUNT(*) AS events, SUM(duration) AS total_seconds, AVG(confidence) AS mean_confidence").
		Group("label").
		Order("events DESC").
		Order("label ASC").
		Scan(&out).Error
	if err != nil {
		return nil, dbError(err, "label_summary")
	}
	return out, nil
}

// performAutoMigration creates or updates the run history tables
func performAutoMigration(db *gorm.DB, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&AnalysisRun{}, &EventRecord{}); err != nil {
		return errors.New(fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("db_type", dbType).
			Build()
	}
	GetLogger().Debug("database initialized",
		logger.String("db_type", dbType),
		logger.String("connection", connectionInfo))
	return nil
}

func gormConfig(module string) *gorm.Config {
	return &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(GetLogger().Module(module), slowQueryThreshold),
	}
}

func closeDB(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "close")
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close")
	}
	return nil
}
