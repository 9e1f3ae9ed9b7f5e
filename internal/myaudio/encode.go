package myaudio

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/urbansound/soundscape/internal/errors"
)

// WriteWAV stores mono float32 samples as a 16-bit PCM WAV file.
// Samples outside [-1, 1] are clipped.
func WriteWAV(path string, samples []float32, sampleRate int) error {
	file, err := os.Create(path) //nolint:gosec // caller controlled output path
	if err != nil {
		return errors.New(fmt.Errorf("failed to create WAV file: %w", err)).
			Component("myaudio").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}

	enc := wav.NewEncoder(file, sampleRate, 16, 1, 1)

	data := make([]int, len(samples))
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		data[i] = int(math.Round(v * 32767))
	}
	buf := &audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: 1},
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		_ = file.Close()
		return errors.New(fmt.Errorf("failed to encode WAV: %w", err)).
			Component("myaudio").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	if err := enc.Close(); err != nil {
		_ = file.Close()
		return errors.New(err).Component("myaudio").Category(errors.CategoryFileIO).Build()
	}
	return file.Close()
}
