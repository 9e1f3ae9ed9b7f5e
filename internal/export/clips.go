package export

import (
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/logger"
	"github.com/urbansound/soundscape/internal/myaudio"
)

// WriteClips cuts the span of every record in doc out of samples and stores
// each as a 16-bit WAV file. The files go into a new directory under dir
// named after the export file. When labels is not empty only records with
// one of those labels are written. It returns the paths written, or nil
// when no record qualifies.
func WriteClips(dir string, doc *Document, samples []float32, sampleRate int, labels []string) ([]string, error) {
	if doc == nil || len(doc.Detecciones) == 0 {
		return nil, errors.New(ErrEmptyExport).
			Component("export").
			Category(errors.CategoryValidation).
			Build()
	}
	if sampleRate <= 0 {
		return nil, errors.Newf("invalid sample rate %d", sampleRate).
			Component("export").
			Category(errors.CategoryValidation).
			Build()
	}

	records := make([]Record, 0, len(doc.Detecciones))
	for _, r := range doc.Detecciones {
		if len(labels) == 0 || slices.Contains(labels, r.Clase) {
			records = append(records, r)
		}
	}
	if len(records) == 0 {
		return nil, nil
	}

	at, err := doc.AnalyzedAt()
	if err != nil {
		at = time.Now()
	}
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, exportIOError(err, dir)
	}
	clipDir, err := mkdirUnique(dir, strings.TrimSuffix(FileName(doc.Archivo, at), ".json"))
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(records))
	for i, r := range records {
		from, to := sampleSpan(r.TiempoInicio, r.TiempoFin, sampleRate, len(samples))
		if to <= from {
			continue
		}
		name := fmt.Sprintf("%03d_%s_%dpct.wav", i+1, clipLabel(r.Clase), int(math.Round(r.Confianza*100)))
		path := filepath.Join(clipDir, name)
		if err := myaudio.WriteWAV(path, samples[from:to], sampleRate); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	GetLogger().Info("event clips written",
		logger.String("directory", clipDir),
		logger.Int("clips", len(paths)))
	return paths, nil
}

// sampleSpan maps [start, end) seconds to sample indices within n
func sampleSpan(start, end float64, sampleRate, n int) (from, to int) {
	from = int(math.Round(start * float64(sampleRate)))
	to = int(math.Round(end * float64(sampleRate)))
	return max(0, min(from, n)), max(0, min(to, n))
}

// clipLabel makes a label safe to use in a file name
func clipLabel(label string) string {
	label = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\', ':':
			return '_'
		}
		return r
	}, label)
	if label == "" {
		return "sin_clase"
	}
	return label
}

// mkdirUnique creates name under dir, numbering it when it already exists
func mkdirUnique(dir, name string) (string, error) {
	candidate := name
	for n := 1; n <= maxNameAttempts; n++ {
		path := filepath.Join(dir, candidate)
		err := os.Mkdir(path, dirPermissions)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", exportIOError(err, path)
		}
		candidate = fmt.Sprintf("%s_%d", name, n)
	}
	return "", errors.Newf("no free clip directory name for %s", name).
		Component("export").
		Category(errors.CategoryFileIO).
		Context("directory", dir).
		Build()
}
