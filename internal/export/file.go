package export

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/logger"
)

// DefaultDir is where documents are written when no directory is configured
const DefaultDir = "datos_exportados"

const (
	filePrefix      = "detecciones_"
	fileTimeLayout  = "20060102_150405"
	dirPermissions  = 0o755
	filePermissions = 0o644
)

// ErrInvalidDocument is returned by Load for JSON that is not an export
var ErrInvalidDocument = errors.NewStd("not a detection export document")

// FileName returns detecciones_<stem>_<YYYYMMDD_HHMMSS>.json for a source
// file name, where stem is the name without its audio extension.
func FileName(sourceName string, at time.Time) string {
	stem := filepath.Base(sourceName)
	stem = strings.TrimSuffix(stem, filepath.Ext(stem))
	if stem == "" || stem == "." {
		stem = "audio"
	}
	return filePrefix + stem + "_" + at.Format(fileTimeLayout) + ".json"
}

// WriteFile writes doc as indented JSON into dir, creating the directory
// when needed, and returns the path of the new file. The file name uses the
// document's analysis timestamp.
func WriteFile(dir string, doc *Document) (string, error) {
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

	f, path, err := createUnique(dir, FileName(doc.Archivo, at))
	if err != nil {
		return "", err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		_ = f.Close()
		return "", errors.New(fmt.Errorf("failed to encode export: %w", err)).
			Component("export").
			Category(errors.CategoryExport).
			FileContext(path, 0).
			Build()
	}
	if err := f.Close(); err != nil {
		return "", exportIOError(err, path)
	}

	GetLogger().Info("detections exported",
		logger.String("path", path),
		logger.Int("events", len(doc.Detecciones)))
	return path, nil
}

// legacyDocument accepts files that store the events under "detecciones"
type legacyDocument struct {
	Document
	Legacy []Record `json:"detecciones"`
}

// Load reads an export document. Older files that used the key
// "detecciones" instead of "detecciones_agrupadas" are accepted too.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user selected export file
	if err != nil {
		return nil, exportIOError(err, path)
	}

	var raw legacyDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.New(fmt.Errorf("%w: %w", ErrInvalidDocument, err)).
			Component("export").
			Category(errors.CategoryValidation).
			FileContext(path, int64(len(data))).
			Build()
	}

	doc := raw.Document
	if doc.Detecciones == nil {
		doc.Detecciones = raw.Legacy
	}
	if doc.Detecciones == nil {
		return nil, errors.New(ErrInvalidDocument).
			Component("export").
			Category(errors.CategoryValidation).
			FileContext(path, int64(len(data))).
			Context("reason", "missing detections").
			Build()
	}
	return &doc, nil
}

// Entry describes an export file found by List
type Entry struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// List returns the export files in dir, newest first. A missing directory
// yields an empty list.
func List(dir string) ([]Entry, error) {
	if dir == "" {
		dir = DefaultDir
	}

	matches, err := filepath.Glob(filepath.Join(dir, filePrefix+"*.json"))
	if err != nil {
		return nil, errors.New(err).Component("export").Category(errors.CategoryFileIO).Build()
	}

	entries := make([]Entry, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		entries = append(entries, Entry{
			Path:    m,
			Name:    info.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	slices.SortFunc(entries, func(a, b Entry) int {
		if c := b.ModTime.Compare(a.ModTime); c != 0 {
			return c
		}
		return strings.Compare(b.Name, a.Name)
	})
	return entries, nil
}

// maxNameAttempts bounds the numbered variants tried by createUnique
const maxNameAttempts = 1000

// createUnique creates name in dir without replacing an existing file. When
// name is taken, _1, _2 and so on are inserted before the extension.
func createUnique(dir, name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := name
	for n := 1; n <= maxNameAttempts; n++ {
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, filePermissions) //nolint:gosec // path built from configured export dir
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", exportIOError(err, path)
		}
		candidate = fmt.Sprintf("%s_%d%s", stem, n, ext)
	}
	return nil, "", errors.Newf("no free export file name for %s", name).
		Component("export").
		Category(errors.CategoryFileIO).
		Context("directory", dir).
		Build()
}

func exportIOError(err error, path string) error {
	return errors.New(err).
		Component("export").
		Category(errors.CategoryFileIO).
		FileContext(path, 0).
		Build()
}
