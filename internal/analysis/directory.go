package analysis

import (
	"context"
	"io/fs"
	"path/filepath"
	"slices"

	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/logger"
	"github.com/urbansound/soundscape/internal/myaudio"
)

// FileFailure records a file that could not be analyzed
type FileFailure struct {
	Path string
	Err  error
}

// DirectorySummary is the outcome of DirectoryAnalysis
type DirectorySummary struct {
	Results  []*FileResult
	Failures []FileFailure
}

// Files returns the number of files attempted
func (s *DirectorySummary) Files() int {
	return len(s.Results) + len(s.Failures)
}

// findAudioFiles lists supported audio files under dir in lexical order
func findAudioFiles(dir string, recursive bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if myaudio.IsSupportedFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.New(err).
			Component("analysis").
			Category(errors.CategoryFileIO).
			Context("directory", dir).
			Build()
	}
	slices.Sort(files)
	return files, nil
}

// DirectoryAnalysis analyzes every supported audio file in dir. A file
// that fails is logged and recorded, and the remaining files still run.
// Only an unreadable directory or cancellation stops the walk.
func (p *Pipeline) DirectoryAnalysis(ctx context.Context, dir string, recursive bool) (*DirectorySummary, error) {
	files, err := findAudioFiles(dir, recursive)
	if err != nil {
		return nil, err
	}

	p.log.Info("directory analysis started",
		logger.String("directory", dir),
		logger.Int("files", len(files)),
		logger.Bool("recursive", recursive))

	summary := &DirectorySummary{}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return summary, errors.New(err).
				Component("analysis").
				Category(errors.CategoryCancellation).
				Build()
		}

		res, err := p.AnalyzeFile(ctx, path)
		if err != nil {
			if errors.IsCategory(err, errors.CategoryCancellation) {
				return summary, err
			}
			p.log.Error("file analysis failed",
				logger.String("file", path),
				logger.Error(err))
			summary.Failures = append(summary.Failures, FileFailure{Path: path, Err: err})
			continue
		}
		summary.Results = append(summary.Results, res)
	}

	p.log.Info("directory analysis completed",
		logger.String("directory", dir),
		logger.Int("analyzed", len(summary.Results)),
		logger.Int("failed", len(summary.Failures)))

	return summary, nil
}
