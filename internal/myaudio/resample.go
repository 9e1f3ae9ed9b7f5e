package myaudio

import (
	"github.com/urbansound/soundscape/internal/errors"
)

// ResampleAudio converts audio between sample rates with cubic
// interpolation. Inputs too short for a four point kernel fall back to
// nearest neighbour.
func ResampleAudio(audio []float32, originalRate, targetRate int) ([]float32, error) {
	if originalRate <= 0 || targetRate <= 0 {
		return nil, errors.Newf("invalid resample rates %d -> %d", originalRate, targetRate).
			Component("myaudio").
			Category(errors.CategoryValidation).
			Context("original_rate", originalRate).
			Context("target_rate", targetRate).
			Build()
	}
	if originalRate == targetRate || len(audio) == 0 {
		return audio, nil
	}

	ratio := float64(targetRate) / float64(originalRate)
	newLength := int(float64(len(audio)) * ratio)
	resampled := make([]float32, newLength)

	audioLength := len(audio)
	if audioLength < 4 {
		for i := range resampled {
			index := min(int(float64(i)/ratio), audioLength-1)
			resampled[i] = audio[index]
		}
		return resampled, nil
	}

	// samples beyond either end repeat the edge sample
	at := func(k int) float32 {
		return audio[max(0, min(k, audioLength-1))]
	}

	for i := range newLength {
		origPos := float64(i) / ratio
		index := int(origPos)
		frac := float32(origPos - float64(index))

		y0, y1, y2, y3 := at(index-1), at(index), at(index+1), at(index+2)
		mu2 := frac * frac
		a0 := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
		a1 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
		a2 := -0.5*y0 + 0.5*y2
		a3 := y1

		resampled[i] = a0*frac*mu2 + a1*mu2 + a2*frac + a3
	}

	return resampled, nil
}
