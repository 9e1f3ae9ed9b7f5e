package myaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/tphakala/flac"

	"github.com/urbansound/soundscape/internal/errors"
)

func readFLACInfo(file *os.File) (AudioInfo, error) {
	decoder, err := flac.NewDecoder(file)
	if err != nil {
		return AudioInfo{}, errors.New(fmt.Errorf("%w: %w", ErrInvalidAudio, err)).
			Component("myaudio").
			Category(errors.CategoryAudio).
			Build()
	}

	return AudioInfo{
		SampleRate:   decoder.SampleRate,
		TotalSamples: int(decoder.TotalSamples),
		NumChannels:  decoder.NChannels,
		BitDepth:     decoder.BitsPerSample,
	}, nil
}

func readFLAC(ctx context.Context, file *os.File, maxFrames func(rate int) int) (decodedAudio, error) {
	decoder, err := flac.NewDecoder(file)
	if err != nil {
		return decodedAudio{}, errors.New(fmt.Errorf("%w: %w", ErrInvalidAudio, err)).
			Component("myaudio").
			Category(errors.CategoryAudio).
			Build()
	}

	divisor, err := getAudioDivisor(decoder.BitsPerSample)
	if err != nil {
		return decodedAudio{}, err
	}
	channels := decoder.NChannels
	if channels < 1 {
		return decodedAudio{}, unsupported("channel count", "channels", channels)
	}
	limit := -1
	if maxFrames != nil {
		limit = maxFrames(decoder.SampleRate)
	}

	bytesPerSample := decoder.BitsPerSample / 8
	frameBytes := bytesPerSample * channels
	ints := make([]int, 0, 4096*channels)

	var mono []float32
	for limit < 0 || len(mono) < limit {
		if err := ctx.Err(); err != nil {
			return decodedAudio{}, cancelled(err)
		}

		frame, err := decoder.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return decodedAudio{}, errors.New(fmt.Errorf("%w: %w", ErrInvalidAudio, err)).
				Component("myaudio").
				Category(errors.CategoryAudio).
				Build()
		}

		ints = ints[:0]
		for i := 0; i+frameBytes <= len(frame); i += bytesPerSample {
			ints = append(ints, decodeSample(frame[i:], decoder.BitsPerSample))
		}
		mono = appendDownmixed(mono, ints, channels, divisor)
	}

	if limit >= 0 && len(mono) > limit {
		mono = mono[:limit]
	}
	return decodedAudio{samples: mono, sampleRate: decoder.SampleRate}, nil
}

// decodeSample reads one little-endian signed sample
func decodeSample(b []byte, bits int) int {
	switch bits {
	case 16:
		return int(int16(binary.LittleEndian.Uint16(b)))
	case 24:
		v := int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16)
		return int(v << 8 >> 8)
	default:
		return int(int32(binary.LittleEndian.Uint32(b)))
	}
}
