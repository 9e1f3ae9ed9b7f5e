package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbansound/soundscape/internal/detection"
	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/myaudio"
)

var fixedTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func fixedExporter() *Exporter {
	return NewExporter(WithClock(func() time.Time { return fixedTime }))
}

func sampleDoc(t *testing.T) *Document {
	t.Helper()
	doc, err := fixedExporter().Export([]detection.GroupedEvent{
		{Label: "Mucho_Trafico", Start: 0, End: 2, MeanConfidence: 0.92, WindowCount: 1},
		{Label: "Sirena", Start: 4, End: 9.5, MeanConfidence: 0.71, WindowCount: 4},
	}, "ejemplo.wav", 30)
	require.NoError(t, err)
	return doc
}

func TestExport_SingleEvent(t *testing.T) {
	t.Parallel()

	doc, err := fixedExporter().Export([]detection.GroupedEvent{
		{Label: "Mucho_Trafico", Start: 0.0, End: 2.0, MeanConfidence: 0.92, WindowCount: 1},
	}, "ejemplo.wav", 30.0)
	require.NoError(t, err)

	assert.Equal(t, "ejemplo.wav", doc.Archivo)
	assert.InDelta(t, 30.0, doc.DuracionTotal, 0)
	assert.Equal(t, "2026-03-14T09:26:53Z", doc.FechaAnalisis)
	require.Len(t, doc.Detecciones, 1)
	assert.InDelta(t, 2.0, doc.Detecciones[0].Duracion, 1e-12)
	assert.InDelta(t, 0.92, doc.Detecciones[0].Confianza, 1e-12)
	assert.Equal(t, 1, doc.Detecciones[0].NumSegmentos)
	assert.Equal(t, "Mucho_Trafico", doc.Detecciones[0].Clase)
}

func TestExport_Empty(t *testing.T) {
	t.Parallel()

	for _, events := range [][]detection.GroupedEvent{nil, {}} {
		doc, err := NewExporter().Export(events, "x.wav", 1)
		require.Error(t, err)
		assert.Nil(t, doc)
		assert.ErrorIs(t, err, ErrEmptyExport)
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	}
}

func TestDocument_JSONKeys(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(sampleDoc(t))
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.ElementsMatch(t,
		[]string{"archivo", "duracion_total", "fecha_analisis", "detecciones_agrupadas"},
		keys(generic))

	recs, ok := generic["detecciones_agrupadas"].([]any)
	require.True(t, ok)
	rec, ok := recs[0].(map[string]any)
	require.True(t, ok)
	assert.ElementsMatch(t,
		[]string{"clase", "tiempo_inicio", "tiempo_fin", "duracion", "confianza", "num_segmentos"},
		keys(rec))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestFileName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "detecciones_ejemplo_20260314_092653.json", FileName("ejemplo.wav", fixedTime))
	assert.Equal(t, "detecciones_calle.mayor_20260314_092653.json", FileName("/data/calle.mayor.flac", fixedTime))
	assert.Equal(t, "detecciones_audio_20260314_092653.json", FileName("", fixedTime))
}

func TestWriteFileAndLoad(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "out")
	doc := sampleDoc(t)
	doc.Archivo = "plaza_española.wav"

	path, err := WriteFile(dir, doc)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "detecciones_plaza_española_20260314_092653.json"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"archivo\": \"plaza_española.wav\"")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, doc, loaded)

	entries, err := List(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, path, entries[0].Path)
}

func TestWriteFile_SameNameKeepsBoth(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := sampleDoc(t)
	first.Archivo = "calle.wav"
	second := sampleDoc(t)
	second.Archivo = "calle.wav"
	second.Detecciones[0].Clase = "Obras"

	pathA, err := WriteFile(dir, first)
	require.NoError(t, err)
	pathB, err := WriteFile(dir, second)
	require.NoError(t, err)
	pathC, err := WriteFile(dir, second)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "detecciones_calle_20260314_092653.json"), pathA)
	assert.Equal(t, filepath.Join(dir, "detecciones_calle_20260314_092653_1.json"), pathB)
	assert.Equal(t, filepath.Join(dir, "detecciones_calle_20260314_092653_2.json"), pathC)

	loaded, err := Load(pathA)
	require.NoError(t, err)
	assert.Equal(t, "Mucho_Trafico", loaded.Detecciones[0].Clase)
	loaded, err = Load(pathB)
	require.NoError(t, err)
	assert.Equal(t, "Obras", loaded.Detecciones[0].Clase)

	entries, err := List(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	csvA, err := WriteCSVFile(dir, first)
	require.NoError(t, err)
	csvB, err := WriteCSVFile(dir, first)
	require.NoError(t, err)
	assert.NotEqual(t, csvA, csvB)
}

func TestWriteFile_Empty(t *testing.T) {
	t.Parallel()

	_, err := WriteFile(t.TempDir(), &Document{Archivo: "x.wav"})
	assert.ErrorIs(t, err, ErrEmptyExport)
}

func TestLoad_LegacyAndInvalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	legacy := filepath.Join(dir, "legacy.json")
	require.NoError(t, os.WriteFile(legacy, []byte(`{
		"archivo": "viejo.wav",
		"duracion_total": 12.5,
		"fecha_analisis": "2025-01-02T03:04:05",
		"detecciones": [{"clase": "Perro", "tiempo_inicio": 1, "tiempo_fin": 3, "duracion": 2, "confianza": 0.8, "num_segmentos": 2}]
	}`), 0o600))

	doc, err := Load(legacy)
	require.NoError(t, err)
	require.Len(t, doc.Detecciones, 1)
	assert.Equal(t, "Perro", doc.Detecciones[0].Clase)
	events := doc.Events()
	assert.InDelta(t, 2.0, events[0].Duration(), 0)
	assert.Equal(t, 2, events[0].WindowCount)

	other := filepath.Join(dir, "other.json")
	require.NoError(t, os.WriteFile(other, []byte(`{"name": "not an export"}`), 0o600))
	_, err = Load(other)
	assert.ErrorIs(t, err, ErrInvalidDocument)

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{`), 0o600))
	_, err = Load(broken)
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
}

func TestList_OrderAndMissingDir(t *testing.T) {
	t.Parallel()

	entries, err := List(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, entries)

	dir := t.TempDir()
	older := filepath.Join(dir, "detecciones_a_20250101_000000.json")
	newer := filepath.Join(dir, "detecciones_b_20250102_000000.json")
	require.NoError(t, os.WriteFile(older, []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(newer, []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0o600))
	require.NoError(t, os.Chtimes(older, fixedTime, fixedTime))
	require.NoError(t, os.Chtimes(newer, fixedTime.Add(time.Hour), fixedTime.Add(time.Hour)))

	entries, err = List(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, newer, entries[0].Path)
	assert.Equal(t, older, entries[1].Path)
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleDoc(t)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "archivo,clase,tiempo_inicio,tiempo_fin,duracion,confianza,num_segmentos", lines[0])
	assert.Equal(t, "ejemplo.wav,Mucho_Trafico,0.000,2.000,2.000,0.9200,1", lines[1])
	assert.Equal(t, "ejemplo.wav,Sirena,4.000,9.500,5.500,0.7100,4", lines[2])

	assert.ErrorIs(t, WriteCSV(&buf, nil), ErrEmptyExport)
}

func TestWriteCSVFile(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "out")
	path, err := WriteCSVFile(dir, sampleDoc(t))
	require.NoError(t, err)
	assert.Equal(t, ".csv", filepath.Ext(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "detecciones_ejemplo_"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "archivo,clase,"))

	_, err = WriteCSVFile(dir, &Document{})
	assert.ErrorIs(t, err, ErrEmptyExport)
}

func TestWriteClips(t *testing.T) {
	t.Parallel()

	const rate = 100
	samples := make([]float32, 30*rate)
	for i := range samples {
		samples[i] = 0.25
	}
	dir := t.TempDir()
	doc := sampleDoc(t)

	paths, err := WriteClips(dir, doc, samples, rate, nil)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "detecciones_ejemplo_20260314_092653", "001_Mucho_Trafico_92pct.wav"), paths[0])
	assert.Equal(t, "002_Sirena_71pct.wav", filepath.Base(paths[1]))

	info, err := myaudio.GetAudioInfo(paths[0])
	require.NoError(t, err)
	assert.Equal(t, rate, info.SampleRate)
	assert.Equal(t, 200, info.TotalSamples)
	info, err = myaudio.GetAudioInfo(paths[1])
	require.NoError(t, err)
	assert.Equal(t, 550, info.TotalSamples)

	paths, err = WriteClips(dir, doc, samples, rate, []string{"Sirena"})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "detecciones_ejemplo_20260314_092653_1", filepath.Base(filepath.Dir(paths[0])),
		"an existing clip directory is kept")
	assert.Equal(t, "001_Sirena_71pct.wav", filepath.Base(paths[0]))

	paths, err = WriteClips(dir, doc, samples, rate, []string{"Perro"})
	require.NoError(t, err)
	assert.Nil(t, paths)

	_, err = WriteClips(dir, nil, samples, rate, nil)
	assert.ErrorIs(t, err, ErrEmptyExport)
}

func TestWriteClips_ShortAudio(t *testing.T) {
	t.Parallel()

	// the recording ends inside the second event
	paths, err := WriteClips(t.TempDir(), sampleDoc(t), make([]float32, 500), 100, nil)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	info, err := myaudio.GetAudioInfo(paths[1])
	require.NoError(t, err)
	assert.Equal(t, 100, info.TotalSamples)
}
