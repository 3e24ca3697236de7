// Package journey rebuilds a learner's recent behaviour from raw tracker rows
// into a short, labelled timeline.
package journey

import (
	"github.com/AngelCh415/coursepulse/internal/models"
)

// DefaultMaxEntries caps a reconstructed timeline.
const DefaultMaxEntries = 8

const (
	labelBookCallClick = "Clicked Book Call"
	labelCallBooked    = "Call Booked"
)

// Options tunes ReconstructWith for a call site.
type Options struct {
	// MaxEntries caps the timeline; zero or less means DefaultMaxEntries.
	MaxEntries int
	// SkipOther drops events that are not page views or booking steps.
	SkipOther bool
}

// Reconstruct is ReconstructWith using the default options.
func Reconstruct(events []models.RawEvent) []models.ProcessedEvent {
	return ReconstructWith(events, Options{})
}

// ReconstructWith turns one user's events, sorted newest first, into a
// deduplicated timeline in the same order. Only page views carry a PageURL.
// page_close rows are never emitted;
// they only contribute dwell time to the page_view they close. The input slice
// is not modified.
func ReconstructWith(events []models.RawEvent, opts Options) []models.ProcessedEvent {
	limit := opts.MaxEntries
	if limit <= 0 {
		limit = DefaultMaxEntries
	}

	out := make([]models.ProcessedEvent, 0, limit)
	closes := pageCloses(events)
	seenURL := make(map[string]struct{})
	var clicked, booked bool

	for _, ev := range events {
		if len(out) >= limit {
			break
		}
		switch ev.EventName {
		case models.EventPageClose:
			continue

		case models.EventPageView:
			label := PageLabel(ev.PageURL)
			if isGeneric(label) {
				continue
			}
			if _, ok := seenURL[ev.PageURL]; ok {
				continue
			}
			seenURL[ev.PageURL] = struct{}{}
			out = append(out, models.ProcessedEvent{
				Type:       models.EventPageView,
				Label:      label,
				DurationMs: matchDuration(closes, ev),
				Timestamp:  ev.OccurredAt,
				PageURL:    ev.PageURL,
			})

		case models.EventBookCallClick:
			if clicked {
				continue
			}
			clicked = true
			out = append(out, models.ProcessedEvent{
				Type:        models.EventBookCallClick,
				Label:       labelBookCallClick,
				Timestamp:   ev.OccurredAt,
				CTAPosition: ev.CTAPos,
			})

		case models.EventCallBooked:
			if booked {
				continue
			}
			booked = true
			out = append(out, models.ProcessedEvent{
				Type:      models.EventCallBooked,
				Label:     labelCallBooked,
				Timestamp: ev.OccurredAt,
			})

		default:
			if opts.SkipOther || ev.EventName == "" {
				continue
			}
			label := EventLabel(ev.EventName)
			if hasLabel(out, label) {
				continue
			}
			out = append(out, models.ProcessedEvent{
				Type:      ev.EventName,
				Label:     label,
				Timestamp: ev.OccurredAt,
			})
		}
	}
	return out
}

func pageCloses(events []models.RawEvent) []models.RawEvent {
	var closes []models.RawEvent
	for _, ev := range events {
		if ev.EventName == models.EventPageClose {
			closes = append(closes, ev)
		}
	}
	return closes
}

// matchDuration returns the engaged time of the first close on the same URL
// and session that is not older than the view. A revisit of the same URL in
// one session can pick up the close of a later visit.
func matchDuration(closes []models.RawEvent, view models.RawEvent) int64 {
	for _, c := range closes {
		if c.PageURL != view.PageURL || c.SessionID != view.SessionID {
			continue
		}
		if c.OccurredAt.Before(view.OccurredAt) {
			continue
		}
		if c.EngagedMs < 0 {
			return 0
		}
		return c.EngagedMs
	}
	return 0
}

func hasLabel(timeline []models.ProcessedEvent, label string) bool {
	for _, p := range timeline {
		if p.Label == label {
			return true
		}
	}
	return false
}
