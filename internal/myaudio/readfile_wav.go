package myaudio

import (
	"context"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/urbansound/soundscape/internal/errors"
)

// wavReadFrames is the number of frames decoded per PCMBuffer call
const wavReadFrames = 65536

func readWAVInfo(file *os.File) (AudioInfo, error) {
	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()

	if !decoder.IsValidFile() {
		return AudioInfo{}, errors.New(fmt.Errorf("invalid WAV file format: %w", ErrInvalidAudio)).
			Component("myaudio").
			Category(errors.CategoryAudio).
			Build()
	}
	if _, err := getAudioDivisor(int(decoder.BitDepth)); err != nil {
		return AudioInfo{}, err
	}

	dur, err := decoder.Duration()
	if err != nil {
		return AudioInfo{}, errors.New(err).Component("myaudio").Category(errors.CategoryAudio).Build()
	}

	return AudioInfo{
		SampleRate:   int(decoder.SampleRate),
		TotalSamples: int(dur.Seconds() * float64(decoder.SampleRate)),
		NumChannels:  int(decoder.NumChans),
		BitDepth:     int(decoder.BitDepth),
	}, nil
}

func readWAV(ctx context.Context, file *os.File, maxFrames func(rate int) int) (decodedAudio, error) {
	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return decodedAudio{}, errors.New(fmt.Errorf("input is not a valid WAV audio file: %w", ErrInvalidAudio)).
			Component("myaudio").
			Category(errors.CategoryAudio).
			Build()
	}

	divisor, err := getAudioDivisor(int(decoder.BitDepth))
	if err != nil {
		return decodedAudio{}, err
	}
	channels := int(decoder.NumChans)
	if channels < 1 {
		return decodedAudio{}, unsupported("channel count", "channels", channels)
	}
	rate := int(decoder.SampleRate)
	limit := -1
	if maxFrames != nil {
		limit = maxFrames(rate)
	}

	buf := &audio.IntBuffer{
		Data:   make([]int, wavReadFrames*channels),
		Format: &audio.Format{SampleRate: rate, NumChannels: channels},
	}

	var mono []float32
	for limit < 0 || len(mono) < limit {
		if err := ctx.Err(); err != nil {
			return decodedAudio{}, cancelled(err)
		}

		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return decodedAudio{}, errors.New(fmt.Errorf("%w: %w", ErrInvalidAudio, err)).
				Component("myaudio").
				Category(errors.CategoryAudio).
				Build()
		}
		if n == 0 {
			break
		}

		mono = appendDownmixed(mono, buf.Data[:n], channels, divisor)
	}

	if limit >= 0 && len(mono) > limit {
		mono = mono[:limit]
	}
	return decodedAudio{samples: mono, sampleRate: rate}, nil
}

// appendDownmixed averages interleaved integer frames into mono floats
func appendDownmixed(dst []float32, interleaved []int, channels int, divisor float32) []float32 {
	frames := len(interleaved) / channels
	scale := divisor * float32(channels)
	for f := range frames {
		sum := 0
		for c := range channels {
			sum += interleaved[f*channels+c]
		}
		dst = append(dst, float32(sum)/scale)
	}
	return dst
}
