package analysis

import "github.com/urbansound/soundscape/internal/errors"

var (
	// ErrInvalidInput is returned for an absent signal or parameters that
	// cannot describe a window.
	ErrInvalidInput = errors.NewStd("invalid analysis input")

	// ErrNotReady is returned when the detector has no extractor or
	// classifier to work with.
	ErrNotReady = errors.NewStd("detector not ready")
)

func invalidInput(reason string, kv ...any) error {
	b := errors.New(ErrInvalidInput).
		Component("analysis").
		Category(errors.CategoryValidation).
		Context("reason", reason)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			b = b.Context(key, kv[i+1])
		}
	}
	return b.Build()
}
