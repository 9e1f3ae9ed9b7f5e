package detection

import (
	"fmt"
	"io"
	"strings"
)

const timelineBarCells = 20

// FormatClock renders seconds as MM:SS, truncating fractions
func FormatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// confidenceBar draws a fixed-width bar for a 0-1 confidence
func confidenceBar(confidence float64) string {
	filled := int(confidence * timelineBarCells)
	filled = min(max(filled, 0), timelineBarCells)
	return strings.Repeat("█", filled) + strings.Repeat("░", timelineBarCells-filled)
}

// RenderTimeline writes a human readable event list followed by a footer
// with the event count and the audio length.
func RenderTimeline(w io.Writer, events []GroupedEvent, totalDuration float64) error {
	var b strings.Builder
	rule := strings.Repeat("=", 60)

	b.WriteString("EVENT TIMELINE\n")
	b.WriteString(rule + "\n")

	if len(events) == 0 {
		b.WriteString("No events detected with sufficient confidence\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	for i, ev := range events {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, strings.ToUpper(ev.Label))
		fmt.Fprintf(&b, "   %s → %s (%.1fs)\n", FormatClock(ev.Start), FormatClock(ev.End), ev.Duration())
		fmt.Fprintf(&b, "   confidence: %s %.1f%%\n", confidenceBar(ev.MeanConfidence), ev.MeanConfidence*100)
	}

	fmt.Fprintf(&b, "\n%s\n", rule)
	fmt.Fprintf(&b, "Total events: %d\n", len(events))
	fmt.Fprintf(&b, "Audio duration: %s\n", FormatClock(totalDuration))

	_, err := io.WriteString(w, b.String())
	return err
}
