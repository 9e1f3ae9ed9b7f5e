package classifier

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/logger"
)

// EmbedFunc turns one audio file into a feature vector
type EmbedFunc func(ctx context.Context, path string) ([]float64, error)

// EnrollOptions controls BuildPrototypes
type EnrollOptions struct {
	// Accept filters candidate files, nil accepts everything
	Accept func(path string) bool
	// Extractor is recorded in the resulting model
	Extractor string
}

// BuildPrototypes creates a model from a directory laid out as one
// sub-directory per label, each holding example recordings. Every file that
// embeds successfully becomes one prototype; failing files are logged and
// skipped. Labels that end up without prototypes are left out.
func BuildPrototypes(ctx context.Context, root string, embed EmbedFunc, opts EnrollOptions) (*PrototypeModel, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to read enrollment directory: %w", err)).
			Component("classifier").
			Category(errors.CategoryFileIO).
			Build()
	}

	log := GetLogger().With(logger.String("root", root))
	model := &PrototypeModel{
		Version:   PrototypeFormatVersion,
		Extractor: opts.Extractor,
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		label := entry.Name()
		dir := filepath.Join(root, label)

		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, errors.New(err).
				Component("classifier").
				Category(errors.CategoryFileIO).
				Context("label", label).
				Build()
		}

		count := 0
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, errors.New(err).
					Component("classifier").
					Category(errors.CategoryCancellation).
					Build()
			}
			if f.IsDir() {
				continue
			}
			path := filepath.Join(dir, f.Name())
			if opts.Accept != nil && !opts.Accept(path) {
				continue
			}

			vec, err := embed(ctx, path)
			if err != nil {
				log.Warn("skipping enrollment file",
					logger.String("label", label),
					logger.String("file", f.Name()),
					logger.Error(err))
				continue
			}
			if model.Dimensions == 0 {
				model.Dimensions = len(vec)
			}
			if len(vec) != model.Dimensions {
				return nil, errors.New(ErrDimensionMismatch).
					Component("classifier").
					Category(errors.CategoryFeatureExtraction).
					Context("file", f.Name()).
					Build()
			}

			model.Prototypes = append(model.Prototypes, Prototype{
				Label:  label,
				Source: filepath.ToSlash(filepath.Join(label, f.Name())),
				Vector: vec,
			})
			count++
		}

		if count > 0 {
			model.Labels = append(model.Labels, label)
		}
		log.Info("label enrolled", logger.String("label", label), logger.Int("prototypes", count))
	}

	slices.Sort(model.Labels)

	if err := model.Validate(); err != nil {
		return nil, err
	}
	return model, nil
}
