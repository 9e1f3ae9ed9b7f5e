package detection

import (
	"github.com/urbansound/soundscape/internal/logger"
)

// DefaultGapThreshold is the largest gap in seconds between two same-label
// windows that still counts as one continuous event.
const DefaultGapThreshold = 0.5

// Grouper merges raw detections into events
type Grouper struct {
	gap float64
	log logger.Logger
}

// GrouperOption configures a Grouper
type GrouperOption func(*Grouper)

// WithGapThreshold sets the continuity gap in seconds. Negative values are
// treated as zero.
func WithGapThreshold(seconds float64) GrouperOption {
	return func(g *Grouper) {
		g.gap = max(seconds, 0)
	}
}

// WithGrouperLogger overrides the package logger
func WithGrouperLogger(l logger.Logger) GrouperOption {
	return func(g *Grouper) {
		if l != nil {
			g.log = l
		}
	}
}

// NewGrouper returns a Grouper using DefaultGapThreshold unless overridden
func NewGrouper(opts ...GrouperOption) *Grouper {
	g := &Grouper{gap: DefaultGapThreshold}
	for _, opt := range opts {
		opt(g)
	}
	if g.log == nil {
		g.log = GetLogger()
	}
	return g
}

// GapThreshold returns the configured continuity gap
func (g *Grouper) GapThreshold() float64 {
	return g.gap
}

// Filter returns the detections whose confidence is at least threshold,
// preserving order. The input slice is not modified.
func Filter(dets []RawDetection, threshold float64) []RawDetection {
	kept := make([]RawDetection, 0, len(dets))
	for i := range dets {
		if dets[i].Confidence >= threshold {
			kept = append(kept, dets[i])
		}
	}
	return kept
}

// Group filters dets by threshold and merges consecutive same-label
// detections that are closer than the gap threshold. The result is never
// nil; no surviving detections yields an empty slice.
func (g *Grouper) Group(dets []RawDetection, threshold float64) []GroupedEvent {
	kept := Filter(dets, threshold)
	events := make([]GroupedEvent, 0, len(kept))
	if len(kept) == 0 {
		g.log.Debug("no detections above threshold",
			logger.Int("detections", len(dets)),
			logger.Float64("threshold", threshold))
		return events
	}

	open := seed(&kept[0])
	for i := 1; i < len(kept); i++ {
		det := &kept[i]
		if det.Label == open.Label && det.WindowStart-open.End < g.gap {
			open.End = det.WindowEnd
			open.WindowCount++
			open.MeanConfidence += (det.Confidence - open.MeanConfidence) / float64(open.WindowCount)
			continue
		}
		events = append(events, open)
		open = seed(det)
	}
	events = append(events, open)

	g.log.Debug("detections grouped",
		logger.Int("detections", len(dets)),
		logger.Int("kept", len(kept)),
		logger.Int("events", len(events)),
		logger.Float64("threshold", threshold),
		logger.Float64("gap_threshold", g.gap))

	return events
}

// Regroup runs the events back through the grouper. Labels, boundaries,
// confidences and window counts survive the round trip.
func (g *Grouper) Regroup(events []GroupedEvent) []GroupedEvent {
	return g.Group(Expand(events), 0)
}

// Expand flattens events back into detections. An event of n windows
// becomes n evenly spaced detections, each overlapping the next by half its
// length, with the first starting at the event start and the last ending at
// the event end. A zero-length event yields a single detection.
func Expand(events []GroupedEvent) []RawDetection {
	dets := make([]RawDetection, 0, len(events))
	for _, ev := range events {
		n := max(1, ev.WindowCount)
		span := ev.End - ev.Start
		if span <= 0 {
			n = 1
		}
		step := span / float64(n+1)
		for k := range n {
			det := RawDetection{
				WindowStart: ev.Start + float64(k)*step,
				WindowEnd:   ev.Start + float64(k+2)*step,
				Label:       ev.Label,
				LabelIndex:  -1,
				Confidence:  ev.MeanConfidence,
			}
			if k == 0 {
				det.WindowStart = ev.Start
			}
			if k == n-1 {
				det.WindowEnd = ev.End
			}
			dets = append(dets, det)
		}
	}
	return dets
}

func seed(det *RawDetection) GroupedEvent {
	return GroupedEvent{
		Label:          det.Label,
		Start:          det.WindowStart,
		End:            det.WindowEnd,
		MeanConfidence: det.Confidence,
		WindowCount:    1,
	}
}
