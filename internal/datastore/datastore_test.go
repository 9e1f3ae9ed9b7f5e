package datastore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbansound/soundscape/internal/conf"
	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/export"
	"github.com/urbansound/soundscape/internal/observability/metrics"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	settings := &conf.Settings{}
	settings.Output.SQLite = conf.SQLiteSettings{
		Enabled: true,
		Path:    filepath.Join(t.TempDir(), "db", "history.db"),
	}

	store, ok := New(settings).(*SQLiteStore)
	require.True(t, ok, "sqlite settings should select the SQLite store")
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testDocument(source, analyzedAt string, records ...export.Record) *export.Document {
	return &export.Document{
		Archivo:       source,
		DuracionTotal: 60,
		FechaAnalisis: analyzedAt,
		Detecciones:   records,
	}
}

func TestNew_SelectsBackend(t *testing.T) {
	t.Parallel()

	s := &conf.Settings{}
	assert.Nil(t, New(s))

	s.Output.MySQL = conf.MySQLSettings{Enabled: true, Host: "db", Port: "3306", Database: "sound"}
	_, ok := New(s).(*MySQLStore)
	assert.True(t, ok)

	s.Output.SQLite = conf.SQLiteSettings{Enabled: true, Path: "x.db"}
	_, ok = New(s).(*SQLiteStore)
	assert.True(t, ok)
}

func TestMySQLStore_DSN(t *testing.T) {
	t.Parallel()

	s := &conf.Settings{}
	s.Output.MySQL = conf.MySQLSettings{
		Enabled: true, Username: "u", Password: "p", Host: "db", Port: "3306", Database: "sound",
	}
	store := &MySQLStore{Settings: s}
	assert.Equal(t, "u:p@tcp(db:3306)/sound?charset=utf8mb4&parseTime=True&loc=Local", store.dsn())
}

func TestRunFromDocument(t *testing.T) {
	t.Parallel()

	doc := testDocument("calle.wav", "2026-03-01T10:00:00Z",
		export.Record{Clase: "Sirena", TiempoInicio: 1, TiempoFin: 4, Duracion: 3, Confianza: 0.9, NumSegmentos: 5})

	run := RunFromDocument(doc, RunStats{SourcePath: "/in/calle.wav", Threshold: 0.6, Windows: 10, Analyzed: 9, Skipped: 1})

	assert.Len(t, run.RunID, 36)
	assert.Equal(t, "calle.wav", run.SourceFile)
	assert.Equal(t, "/in/calle.wav", run.SourcePath)
	assert.InDelta(t, 60.0, run.DurationSeconds, 1e-9)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), run.AnalyzedAt.UTC())
	assert.Equal(t, 9, run.Analyzed)
	require.Len(t, run.Events, 1)
	assert.Equal(t, "Sirena", run.Events[0].Label)
	assert.Equal(t, 5, run.Events[0].WindowCount)

	other := RunFromDocument(doc, RunStats{})
	assert.NotEqual(t, run.RunID, other.RunID)
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	run := RunFromDocument(testDocument("a.wav", "2026-03-01T10:00:00Z",
		export.Record{Clase: "Trafico", TiempoInicio: 5, TiempoFin: 9, Duracion: 4, Confianza: 0.7, NumSegmentos: 3},
		export.Record{Clase: "Sirena", TiempoInicio: 0, TiempoFin: 2, Duracion: 2, Confianza: 0.9, NumSegmentos: 2},
	), RunStats{Windows: 12})

	require.NoError(t, store.SaveRun(ctx, run))
	assert.NotZero(t, run.ID)

	got, err := store.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "a.wav", got.SourceFile)
	assert.Equal(t, 12, got.Windows)
	require.Len(t, got.Events, 2)
	assert.Equal(t, "Sirena", got.Events[0].Label, "events come back ordered by start")
	assert.Equal(t, "Trafico", got.Events[1].Label)
}

func TestSQLiteStore_GetRunNotFound(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	_, err := store.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestSQLiteStore_ListRunsNewestFirst(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	for _, tc := range []struct{ source, at string }{
		{"old.wav", "2026-01-01T00:00:00Z"},
		{"new.wav", "2026-03-01T00:00:00Z"},
		{"mid.wav", "2026-02-01T00:00:00Z"},
	} {
		require.NoError(t, store.SaveRun(ctx, RunFromDocument(testDocument(tc.source, tc.at,
			export.Record{Clase: "Perro", Duracion: 1, Confianza: 0.8, NumSegmentos: 1}), RunStats{})))
	}

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "new.wav", runs[0].SourceFile)
	assert.Equal(t, "mid.wav", runs[1].SourceFile)
	assert.Equal(t, "old.wav", runs[2].SourceFile)
	assert.Len(t, runs[0].Events, 1)

	limited, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLiteStore_DeleteRun(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	run := RunFromDocument(testDocument("a.wav", "2026-03-01T10:00:00Z",
		export.Record{Clase: "Perro", Duracion: 1, Confianza: 0.8, NumSegmentos: 1}), RunStats{})
	require.NoError(t, store.SaveRun(ctx, run))

	require.NoError(t, store.DeleteRun(ctx, run.RunID))
	_, err := store.GetRun(ctx, run.RunID)
	assert.ErrorIs(t, err, ErrRunNotFound)

	var count int64
	require.NoError(t, store.DB.Model(&EventRecord{}).Count(&count).Error)
	assert.Zero(t, count)

	assert.ErrorIs(t, store.DeleteRun(ctx, run.RunID), ErrRunNotFound)
}

func TestSQLiteStore_LabelSummary(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRun(ctx, RunFromDocument(testDocument("a.wav", "2026-03-01T10:00:00Z",
		export.Record{Clase: "Sirena", Duracion: 2, Confianza: 0.9, NumSegmentos: 2},
		export.Record{Clase: "Perro", Duracion: 1, Confianza: 0.6, NumSegmentos: 1},
	), RunStats{})))
	require.NoError(t, store.SaveRun(ctx, RunFromDocument(testDocument("b.wav", "2026-03-02T10:00:00Z",
		export.Record{Clase: "Sirena", Duracion: 4, Confianza: 0.7, NumSegmentos: 4},
	), RunStats{})))

	summary, err := store.LabelSummary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 2)

	assert.Equal(t, "Sirena", summary[0].Label)
	assert.Equal(t, int64(2), summary[0].Events)
	assert.InDelta(t, 6.0, summary[0].TotalSeconds, 1e-9)
	assert.InDelta(t, 0.8, summary[0].MeanConfidence, 1e-9)
	assert.Equal(t, "Perro", summary[1].Label)
}

func TestDataStore_NotOpened(t *testing.T) {
	t.Parallel()

	store := &SQLiteStore{Settings: &conf.Settings{}}
	err := store.SaveRun(context.Background(), &AnalysisRun{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))

	assert.Error(t, store.Open(), "empty path must be rejected")
	assert.NoError(t, store.Close())
}

func TestDataStore_RecordsMetrics(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	m, err := metrics.NewDatastoreMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	store.SetMetrics(m)

	_, _ = store.GetRun(context.Background(), "missing")
	require.NoError(t, store.SaveRun(context.Background(), &AnalysisRun{SourceFile: "x.wav", AnalyzedAt: time.Now()}))

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("get_run", "error")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("save_run", "success")), 1e-9)
}
