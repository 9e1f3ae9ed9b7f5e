package features

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/urbansound/soundscape/internal/errors"
)

const (
	DefaultBands        = 32
	DefaultFrameSize    = 1024
	DefaultHopSize      = 512
	DefaultMinFreq      = 50.0
	DefaultSilenceFloor = 1e-4

	// logFloor keeps log energies finite for empty bands
	logFloor = 1e-10

	// rolloffFraction is the spectral energy share below the rolloff bin
	rolloffFraction = 0.85

	// summaryFeatures are appended after the per-band statistics:
	// zero-crossing rate, spectral centroid and spectral rolloff.
	summaryFeatures = 3
)

// BandConfig configures a BandEnergyExtractor
type BandConfig struct {
	Bands        int
	FrameSize    int
	HopSize      int
	MinFreq      float64
	MaxFreq      float64 // 0 means Nyquist
	SilenceFloor float64 // window RMS below this yields ErrNoFeatures
}

// DefaultBandConfig returns the stock configuration
func DefaultBandConfig() BandConfig {
	return BandConfig{
		Bands:        DefaultBands,
		FrameSize:    DefaultFrameSize,
		HopSize:      DefaultHopSize,
		MinFreq:      DefaultMinFreq,
		SilenceFloor: DefaultSilenceFloor,
	}
}

// BandEnergyExtractor summarizes a window by the mean and standard
// deviation of log energy in log-spaced frequency bands across short FFT
// frames, followed by zero-crossing rate, spectral centroid and rolloff.
// The window is peak normalized first, so the vector describes spectral
// shape rather than loudness. It holds no mutable state.
type BandEnergyExtractor struct {
	cfg    BandConfig
	window []float64
}

var _ Extractor = (*BandEnergyExtractor)(nil)

// NewBandEnergyExtractor validates cfg and builds the extractor
func NewBandEnergyExtractor(cfg BandConfig) (*BandEnergyExtractor, error) {
	switch {
	case cfg.Bands < 1:
		return nil, errors.Newf("bands must be at least 1, got %d", cfg.Bands).
			Component("features").Category(errors.CategoryValidation).Build()
	case cfg.FrameSize < 2:
		return nil, errors.Newf("frame size must be at least 2, got %d", cfg.FrameSize).
			Component("features").Category(errors.CategoryValidation).Build()
	case cfg.HopSize < 1:
		return nil, errors.Newf("hop size must be at least 1, got %d", cfg.HopSize).
			Component("features").Category(errors.CategoryValidation).Build()
	case cfg.MinFreq < 0 || (cfg.MaxFreq != 0 && cfg.MaxFreq <= cfg.MinFreq):
		return nil, errors.Newf("invalid band range %g-%g Hz", cfg.MinFreq, cfg.MaxFreq).
			Component("features").Category(errors.CategoryValidation).Build()
	}

	return &BandEnergyExtractor{
		cfg:    cfg,
		window: window.Hann(cfg.FrameSize),
	}, nil
}

// Dimensions returns 2*Bands plus the summary features
func (e *BandEnergyExtractor) Dimensions() int {
	return 2*e.cfg.Bands + summaryFeatures
}

// Extract computes the feature vector for one window
func (e *BandEnergyExtractor) Extract(samples []float32, sampleRate int) ([]float64, error) {
	if len(samples) == 0 || sampleRate <= 0 {
		return nil, ErrNoFeatures
	}

	signal := make([]float64, len(samples))
	for i, s := range samples {
		signal[i] = float64(s)
	}
	if floats.HasNaN(signal) {
		return nil, ErrNoFeatures
	}

	if rms(signal) < e.cfg.SilenceFloor {
		return nil, ErrNoFeatures
	}
	peakNormalize(signal)

	edges := e.bandEdges(sampleRate)
	bandLogs := make([][]float64, e.cfg.Bands)
	var centroids, rolloffs []float64

	frame := make([]float64, e.cfg.FrameSize)
	nyquist := float64(sampleRate) / 2
	binHz := float64(sampleRate) / float64(e.cfg.FrameSize)

	frames := 1
	if len(signal) > e.cfg.FrameSize {
		frames += (len(signal) - e.cfg.FrameSize) / e.cfg.HopSize
	}

	for f := range frames {
		start := f * e.cfg.HopSize
		clear(frame)
		copy(frame, signal[start:min(start+e.cfg.FrameSize, len(signal))])
		floats.Mul(frame, e.window)

		spectrum := fft.FFTReal(frame)
		power := make([]float64, e.cfg.FrameSize/2+1)
		for k := range power {
			a := cmplx.Abs(spectrum[k])
			power[k] = a * a
		}

		for b := range e.cfg.Bands {
			lo := int(math.Ceil(edges[b] / binHz))
			hi := int(math.Ceil(edges[b+1] / binHz))
			energy := 0.0
			for k := max(lo, 0); k < min(hi, len(power)); k++ {
				energy += power[k]
			}
			bandLogs[b] = append(bandLogs[b], math.Log(energy+logFloor))
		}

		total := floats.Sum(power)
		if total > 0 {
			weighted := 0.0
			for k, p := range power {
				weighted += float64(k) * binHz * p
			}
			centroids = append(centroids, weighted/total/nyquist)
			rolloffs = append(rolloffs, rolloffBin(power, total)*binHz/nyquist)
		}
	}

	vec := make([]float64, 0, e.Dimensions())
	for b := range e.cfg.Bands {
		mean, std := stat.MeanStdDev(bandLogs[b], nil)
		if math.IsNaN(std) {
			std = 0
		}
		vec = append(vec, mean, std)
	}
	vec = append(vec,
		zeroCrossingRate(signal),
		meanOrZero(centroids),
		meanOrZero(rolloffs),
	)
	return vec, nil
}

// bandEdges returns Bands+1 log-spaced edges in Hz
func (e *BandEnergyExtractor) bandEdges(sampleRate int) []float64 {
	nyquist := float64(sampleRate) / 2
	hiFreq := e.cfg.MaxFreq
	if hiFreq == 0 || hiFreq > nyquist {
		hiFreq = nyquist
	}
	loFreq := e.cfg.MinFreq
	if loFreq <= 0 || loFreq >= hiFreq {
		loFreq = hiFreq / float64(int(1)<<min(e.cfg.Bands, 10))
	}

	edges := make([]float64, e.cfg.Bands+1)
	floats.LogSpan(edges, loFreq, hiFreq)
	return edges
}

func rms(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Norm(x, 2) / math.Sqrt(float64(len(x)))
}

func peakNormalize(x []float64) {
	peak := math.Max(math.Abs(floats.Max(x)), math.Abs(floats.Min(x)))
	if peak > 0 {
		floats.Scale(1/peak, x)
	}
}

func zeroCrossingRate(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(x); i++ {
		if (x[i-1] >= 0) != (x[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(x)-1)
}

func rolloffBin(power []float64, total float64) float64 {
	target := rolloffFraction * total
	cum := 0.0
	for k, p := range power {
		cum += p
		if cum >= target {
			return float64(k)
		}
	}
	return float64(len(power) - 1)
}

func meanOrZero(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}
