package myaudio

import (
	"github.com/urbansound/soundscape/internal/errors"
)

var (
	// ErrUnsupportedFormat is returned for files that are neither WAV nor
	// FLAC, or use an unsupported encoding.
	ErrUnsupportedFormat = errors.NewStd("unsupported audio format")

	// ErrInvalidAudio is returned for files that fail to decode
	ErrInvalidAudio = errors.NewStd("invalid audio data")
)

func unsupported(reason string, ctx ...any) error {
	b := errors.New(ErrUnsupportedFormat).
		Component("myaudio").
		Category(errors.CategoryAudio).
		Context("reason", reason)
	for i := 0; i+1 < len(ctx); i += 2 {
		if key, ok := ctx[i].(string); ok {
			b = b.Context(key, ctx[i+1])
		}
	}
	return b.Build()
}

// getAudioDivisor returns the full-scale value for a signed PCM bit depth
func getAudioDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, unsupported("bit depth", "bit_depth", bitDepth)
	}
}
