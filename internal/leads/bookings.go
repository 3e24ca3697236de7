// Package leads assembles the bookings, learners and warm-leads views from
// raw analytics rows, using the shared journey reconstructor and scorer.
package leads

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/AngelCh415/coursepulse/internal/ingest"
	"github.com/AngelCh415/coursepulse/internal/intent"
	"github.com/AngelCh415/coursepulse/internal/journey"
	"github.com/AngelCh415/coursepulse/internal/models"
	"github.com/AngelCh415/coursepulse/internal/query"
	"github.com/AngelCh415/coursepulse/internal/telemetry"
)

const (
	SortDate   = "date"
	SortIntent = "intent"

	bookingPageSize = 1000
	fetchWorkers    = 16
)

type Bookings struct {
	src      ingest.EventSource
	log      *slog.Logger
	metrics  *telemetry.Metrics
	lookback int
	now      func() time.Time
}

func NewBookings(src ingest.EventSource, log *slog.Logger, m *telemetry.Metrics, lookback int) *Bookings {
	if lookback <= 0 {
		lookback = 30
	}
	return &Bookings{src: src, log: log.With("component", "bookings"), metrics: m, lookback: lookback, now: time.Now}
}

// Load returns every booking, newest first, each with the journey that led
// to it and its intent score.
func (b *Bookings) Load(ctx context.Context) ([]models.Booking, error) {
	q := query.From(ingest.EventsTable).
		Eq("event_name", models.EventCallBooked).
		OrderDesc("occurred_at")
	booked, err := ingest.FetchAll[models.RawEvent](ctx, b.src.Events, q, bookingPageSize)
	if err != nil {
		b.log.Error("load bookings", slog.String("err", err.Error()))
		return nil, fmt.Errorf("load bookings: %w", err)
	}

	out := make([]models.Booking, len(booked))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchWorkers)
	for i, ev := range booked {
		g.Go(func() error {
			var events []models.RawEvent
			if ev.Email != "" {
				var err error
				events, err = b.src.Events(gctx, query.From(ingest.EventsTable).
					Eq("email", ev.Email).
					Lt("occurred_at", ev.OccurredAt).
					OrderDesc("occurred_at").
					Limit(b.lookback))
				if err != nil {
					return fmt.Errorf("journey for %s: %w", ev.Email, err)
				}
			}
			out[i] = b.toBooking(ev, events, journey.Reconstruct(events))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		b.log.Error("load bookings", slog.String("err", err.Error()))
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	b.log.Debug("bookings loaded", slog.Int("count", len(out)))
	return out, nil
}

func (b *Bookings) toBooking(ev models.RawEvent, recent []models.RawEvent, timeline []models.ProcessedEvent) models.Booking {
	score := intent.Score(timeline, ev.UTMSource != "")
	level := intent.Classify(score).String()
	b.metrics.ObserveJourney(len(timeline), level)
	return models.Booking{
		Email:       ev.Email,
		Name:        NameFromEmail(ev.Email),
		OccurredAt:  ev.OccurredAt,
		UTMSource:   ev.UTMSource,
		Journey:     timeline,
		IntentScore: score,
		IntentLevel: level,
		EventCount:  len(timeline),
		BookedFrom:  BookedFrom(ev, recent),
	}
}

type BookingParams struct {
	PageParams
	Sort   string
	Search string
}

func ParseBookingParams(v url.Values) (BookingParams, error) {
	p := BookingParams{PageParams: ParsePageParams(v), Sort: SortDate, Search: norm(v.Get("q"))}
	switch s := norm(v.Get("sort")); s {
	case "", SortDate:
	case SortIntent:
		p.Sort = SortIntent
	default:
		return p, fmt.Errorf("unknown sort %q", s)
	}
	return p, nil
}

func (b *Bookings) List(ctx context.Context, p BookingParams) (Page[models.Booking], error) {
	all, err := b.Load(ctx)
	if err != nil {
		return Page[models.Booking]{}, err
	}
	rows := SearchBookings(all, p.Search)
	SortBookings(rows, p.Sort)
	return paginate(rows, p.PageParams), nil
}

func (b *Bookings) Summary(ctx context.Context) (models.BookingSummary, error) {
	all, err := b.Load(ctx)
	if err != nil {
		return models.BookingSummary{}, err
	}
	return Summarize(all, b.now()), nil
}

// SortBookings orders newest first, or by score then journey length for
// SortIntent.
func SortBookings(rows []models.Booking, by string) {
	if by == SortIntent {
		slices.SortStableFunc(rows, func(a, b models.Booking) int {
			if c := cmp.Compare(b.IntentScore, a.IntentScore); c != 0 {
				return c
			}
			return cmp.Compare(b.EventCount, a.EventCount)
		})
		return
	}
	slices.SortStableFunc(rows, func(a, b models.Booking) int {
		return b.OccurredAt.Compare(a.OccurredAt)
	})
}

// SearchBookings keeps bookings whose email or derived name contains q.
// The result never aliases rows.
func SearchBookings(rows []models.Booking, q string) []models.Booking {
	q = norm(q)
	if q == "" {
		return slices.Clone(rows)
	}
	out := make([]models.Booking, 0, len(rows))
	for _, b := range rows {
		if strings.Contains(strings.ToLower(b.Email), q) || strings.Contains(strings.ToLower(b.Name), q) {
			out = append(out, b)
		}
	}
	return out
}

// IsHighIntent reports three or more journey entries or a Hot score.
func IsHighIntent(b models.Booking) bool {
	return b.EventCount >= 3 || b.IntentScore >= intent.HotThreshold
}

func Summarize(rows []models.Booking, now time.Time) models.BookingSummary {
	s := models.BookingSummary{Total: len(rows)}
	scores := make([]int, len(rows))
	total := 0
	for i, b := range rows {
		scores[i] = b.IntentScore
		total += b.IntentScore
		if now.Sub(b.OccurredAt) <= 7*24*time.Hour {
			s.Last7Days++
		}
		if IsHighIntent(b) {
			s.HighIntent++
		}
	}
	if len(rows) > 0 {
		s.AvgScore = int(math.Round(float64(total) / float64(len(rows))))
	}
	c := intent.Breakdown(scores)
	s.Hot, s.Warm, s.Cold = c.Hot, c.Warm, c.Cold
	return s
}

// BookedFrom names the path the user booked from: the URL of the most recent
// page view or call click among the events before the booking, else the
// booking's own source.
func BookedFrom(booking models.RawEvent, recent []models.RawEvent) string {
	for _, e := range recent {
		if e.EventName != models.EventPageView && e.EventName != models.EventBookCallClick {
			continue
		}
		if e.PageURL == "" {
			break
		}
		u, err := url.Parse(e.PageURL)
		if err != nil || u.Scheme == "" {
			return "/unknown"
		}
		if u.Path == "" {
			return "/"
		}
		return u.Path
	}
	if booking.PageURL == "hubspot_meetings" {
		return "/hubspot"
	}
	return "/direct"
}

// NameFromEmail turns "jane.doe_x@site.com" into "Jane Doe X".
func NameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	words := strings.FieldsFunc(local, func(r rune) bool { return r == '.' || r == '_' })
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
