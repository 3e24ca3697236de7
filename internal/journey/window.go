package journey

import (
	"fmt"

	"github.com/AngelCh415/coursepulse/internal/models"
)

// Window selects the first Depth entries of a newest-first timeline and
// optionally flips them to oldest-first.
type Window struct {
	Depth       int
	OldestFirst bool
}

var (
	// StripWindow is the compact horizontal strip: three most recent, oldest first.
	StripWindow = Window{Depth: 3, OldestFirst: true}
	// DetailWindow is the vertical detail list: up to ten, newest first.
	DetailWindow = Window{Depth: 10}
)

// Apply returns a new slice; the timeline is never aliased. A Depth of zero
// or less keeps every entry.
func (w Window) Apply(timeline []models.ProcessedEvent) []models.ProcessedEvent {
	n := len(timeline)
	if w.Depth > 0 && n > w.Depth {
		n = w.Depth
	}
	out := make([]models.ProcessedEvent, n)
	copy(out, timeline[:n])
	if w.OldestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

func Strip(timeline []models.ProcessedEvent) []models.ProcessedEvent {
	return StripWindow.Apply(timeline)
}

func Detail(timeline []models.ProcessedEvent) []models.ProcessedEvent {
	return DetailWindow.Apply(timeline)
}

// Views is what a list row needs to draw a journey.
type Views struct {
	Strip   []models.ProcessedEvent `json:"strip"`
	Detail  []models.ProcessedEvent `json:"detail"`
	HasMore bool                    `json:"has_more"`
}

func Split(timeline []models.ProcessedEvent) Views {
	return Views{
		Strip:   Strip(timeline),
		Detail:  Detail(timeline),
		HasMore: len(timeline) > StripWindow.Depth,
	}
}

// FormatDuration renders dwell time as 45s, 2m 5s or 1h 5m. Zero and
// negative values render as "".
func FormatDuration(ms int64) string {
	if ms <= 0 {
		return ""
	}
	seconds := ms / 1000
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	minutes := seconds / 60
	secs := seconds % 60
	if minutes < 60 {
		if secs > 0 {
			return fmt.Sprintf("%dm %ds", minutes, secs)
		}
		return fmt.Sprintf("%dm", minutes)
	}
	hours := minutes / 60
	mins := minutes % 60
	if mins > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dh", hours)
}
