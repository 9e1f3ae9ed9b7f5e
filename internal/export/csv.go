package export

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/logger"
)

var csvHeader = []string{"archivo", "clase", "tiempo_inicio", "tiempo_fin", "duracion", "confianza", "num_segmentos"}

// WriteCSV writes one row per record with a header line
func WriteCSV(w io.Writer, doc *Document) error {
	if doc == nil || len(doc.Detecciones) == 0 {
		return errors.New(ErrEmptyExport).
			Component("export").
			Category(errors.CategoryValidation).
			Build()
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return csvError(err)
	}
	for _, r := range doc.Detecciones {
		row := []string{
			doc.Archivo,
			r.Clase,
			formatSeconds(r.TiempoInicio),
			formatSeconds(r.TiempoFin),
			formatSeconds(r.Duracion),
			strconv.FormatFloat(r.Confianza, 'f', 4, 64),
			strconv.Itoa(r.NumSegmentos),
		}
		if err := cw.Write(row); err != nil {
			return csvError(err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return csvError(err)
	}
	return nil
}

// WriteCSVFile writes doc as CSV into dir under the same name WriteFile
// would use, with a .csv extension.
func WriteCSVFile(dir string, doc *Document) (string, error) {
	if doc == nil || len(doc.Detecciones) == 0 {
		return "", errors.New(ErrEmptyExport).
			Component("export").
			Category(errors.CategoryValidation).
			Build()
	}
	if dir == "" {
		dir = DefaultDir
	}

	at, err := doc.AnalyzedAt()
	if err != nil {
		at = time.Now()
	}
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return "", exportIOError(err, dir)
	}

	name := strings.TrimSuffix(FileName(doc.Archivo, at), ".json") + ".csv"
	f, path, err := createUnique(dir, name)
	if err != nil {
		return "", err
	}
	if err := WriteCSV(f, doc); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", exportIOError(err, path)
	}

	GetLogger().Info("detections exported",
		logger.String("path", path),
		logger.String("format", "csv"),
		logger.Int("events", len(doc.Detecciones)))
	return path, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func csvError(err error) error {
	return errors.New(err).Component("export").Category(errors.CategoryExport).Build()
}
