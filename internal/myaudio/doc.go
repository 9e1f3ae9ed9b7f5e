// Package myaudio decodes WAV and FLAC recordings into mono float32
// samples at the analysis sample rate.
package myaudio
