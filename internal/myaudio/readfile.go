package myaudio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/logger"
)

// AudioInfo describes an audio file without decoding it
type AudioInfo struct {
	SampleRate   int
	TotalSamples int // per channel
	NumChannels  int
	BitDepth     int
}

// Duration returns the playing time of the file
func (ai AudioInfo) Duration() time.Duration {
	if ai.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(ai.TotalSamples) / float64(ai.SampleRate) * float64(time.Second))
}

// Clip is decoded mono audio
type Clip struct {
	Samples    []float32
	SampleRate int
	Source     string // base name of the file the clip came from
}

// Seconds returns the clip length in seconds
func (c *Clip) Seconds() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// ReadOptions controls ReadAudioFile
type ReadOptions struct {
	// TargetRate resamples the clip when non-zero
	TargetRate int
	// MaxSeconds keeps only the start of the file when positive
	MaxSeconds float64
}

// decodedAudio is what the format readers return: mono samples at the
// file's own rate.
type decodedAudio struct {
	samples    []float32
	sampleRate int
}

var supportedExtensions = []string{".wav", ".flac"}

// SupportedExtensions lists the file extensions ReadAudioFile accepts
func SupportedExtensions() []string {
	return append([]string(nil), supportedExtensions...)
}

// IsSupportedFile reports whether path has a supported extension
func IsSupportedFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range supportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// GetAudioInfo reads the header of a WAV or FLAC file
func GetAudioInfo(path string) (AudioInfo, error) {
	file, err := os.Open(path) //nolint:gosec // analysis input path
	if err != nil {
		return AudioInfo{}, fileError(err, path)
	}
	defer func() { _ = file.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return readWAVInfo(file)
	case ".flac":
		return readFLACInfo(file)
	default:
		return AudioInfo{}, unsupported("extension", "file_extension", filepath.Ext(path))
	}
}

// ReadAudioFile decodes path into a mono clip. Multi-channel audio is
// averaged down to one channel before trimming and resampling.
func ReadAudioFile(ctx context.Context, path string, opts ReadOptions) (*Clip, error) {
	start := time.Now()

	file, err := os.Open(path) //nolint:gosec // analysis input path
	if err != nil {
		return nil, fileError(err, path)
	}
	defer func() { _ = file.Close() }()

	var maxFrames func(rate int) int
	if opts.MaxSeconds > 0 {
		maxFrames = func(rate int) int { return int(opts.MaxSeconds * float64(rate)) }
	}

	var decoded decodedAudio
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		decoded, err = readWAV(ctx, file, maxFrames)
	case ".flac":
		decoded, err = readFLAC(ctx, file, maxFrames)
	default:
		return nil, unsupported("extension", "file_extension", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	samples := decoded.samples
	rate := decoded.sampleRate
	if opts.TargetRate > 0 && opts.TargetRate != rate {
		samples, err = ResampleAudio(samples, rate, opts.TargetRate)
		if err != nil {
			return nil, err
		}
		rate = opts.TargetRate
	}

	clip := &Clip{Samples: samples, SampleRate: rate, Source: filepath.Base(path)}
	GetLogger().Debug("audio file decoded",
		logger.String("file", clip.Source),
		logger.Int("source_rate", decoded.sampleRate),
		logger.Int("sample_rate", rate),
		logger.Float64("seconds", clip.Seconds()),
		logger.Duration("elapsed", time.Since(start)))

	return clip, nil
}

func fileError(err error, path string) error {
	return errors.New(fmt.Errorf("failed to open audio file: %w", err)).
		Component("myaudio").
		Category(errors.CategoryFileIO).
		FileContext(path, 0).
		Build()
}

func cancelled(err error) error {
	return errors.New(err).
		Component("myaudio").
		Category(errors.CategoryCancellation).
		Build()
}
