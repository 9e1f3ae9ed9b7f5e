package analysis

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/myaudio"
)

func TestPredictor_PredictFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// Siren level for the first 2 s, then traffic level; only the first
	// 2 s are considered.
	path := writeWAV(t, dir, "mix.wav", concat(constant(2*wavRate, 0.9), constant(6*wavRate, 0.5)))

	p := NewPredictor(meanExtractor(), newLevelClassifier(t), wavRate, 2)
	pred, err := p.PredictFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "mix.wav", pred.File)
	assert.Equal(t, "Sirena", pred.Label)
	assert.InDelta(t, 0.9, pred.Confidence, 1e-12)
	assert.InDelta(t, 2.0, pred.Seconds, 1e-9)
	require.Len(t, pred.Top, 3)
	assert.Equal(t, "Sirena", pred.Top[0].Label)
	assert.Equal(t, "Trafico", pred.Top[1].Label)
}

func TestPredictor_Errors(t *testing.T) {
	t.Parallel()

	cls := newLevelClassifier(t)

	_, err := NewPredictor(nil, cls, wavRate, 30).PredictFile(context.Background(), "x.wav")
	assert.ErrorIs(t, err, ErrNotReady)

	p := NewPredictor(meanExtractor(), cls, wavRate, 30)
	_, err = p.PredictClip(&myaudio.Clip{SampleRate: wavRate})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = p.PredictClip(&myaudio.Clip{Samples: constant(wavRate, 0), SampleRate: wavRate})
	assert.True(t, errors.IsCategory(err, errors.CategoryFeatureExtraction))

	_, err = p.PredictFile(context.Background(), filepath.Join(t.TempDir(), "missing.flac"))
	assert.Error(t, err)
}

func TestEmbedFile(t *testing.T) {
	t.Parallel()

	path := writeWAV(t, t.TempDir(), "dog.wav", constant(wavRate, 0.5))
	vec, err := EmbedFile(meanExtractor(), wavRate, 30)(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, vec, 1)
	assert.InDelta(t, 0.5, vec[0], 1e-3)
}
