// Package detection turns the per-window output of the windowed detector
// into timed sound events.
//
// A RawDetection is the classifier verdict for exactly one analysis window.
// The Grouper filters raw detections by confidence and merges consecutive
// windows of the same class into GroupedEvents whose confidence is the
// equal-weight mean of the merged windows.
//
// Grouping is driven entirely by slice order. Callers must pass detections
// in chronological order, which is what analysis.WindowedDetector produces;
// the grouper never re-sorts its input.
package detection

import (
	"github.com/urbansound/soundscape/internal/classifier"
)

// RawDetection is the classification result for one analysis window.
// Times are seconds from the start of the signal.
type RawDetection struct {
	WindowStart  float64
	WindowEnd    float64
	Label        string
	LabelIndex   int
	Confidence   float64 // probability of Label, 0.0-1.0
	Distribution classifier.Distribution
}

// GroupedEvent is one or more consecutive same-label detections merged
// into a single timed event.
type GroupedEvent struct {
	Label          string
	Start          float64
	End            float64
	MeanConfidence float64
	WindowCount    int
}

// Duration returns the event length in seconds
func (e GroupedEvent) Duration() float64 {
	return e.End - e.Start
}
