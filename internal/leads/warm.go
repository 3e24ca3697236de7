package leads

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AngelCh415/coursepulse/internal/ingest"
	"github.com/AngelCh415/coursepulse/internal/intent"
	"github.com/AngelCh415/coursepulse/internal/journey"
	"github.com/AngelCh415/coursepulse/internal/models"
	"github.com/AngelCh415/coursepulse/internal/query"
	"github.com/AngelCh415/coursepulse/internal/telemetry"
)

const todayEventLimit = 5000

type WarmLeads struct {
	rows       ingest.RowSource
	events     ingest.EventSource
	log        *slog.Logger
	metrics    *telemetry.Metrics
	batchLimit int
	now        func() time.Time
}

func NewWarmLeads(rows ingest.RowSource, events ingest.EventSource, log *slog.Logger, m *telemetry.Metrics, batchLimit int) *WarmLeads {
	if batchLimit <= 0 {
		batchLimit = 500
	}
	return &WarmLeads{
		rows:       rows,
		events:     events,
		log:        log.With("component", "warm_leads"),
		metrics:    m,
		batchLimit: batchLimit,
		now:        time.Now,
	}
}

// warmInputs is everything one report needs from the store.
type warmInputs struct {
	booked       []models.RawEvent
	highActivity []models.HighActivityUser
	abandoned    []models.AbandonedClick
	todayEvents  []models.RawEvent
	entitlements []models.Entitlement
	converted    map[string]struct{}
}

// Load issues the six reads of the page concurrently and builds the report.
// Any failed read fails the whole report.
func (w *WarmLeads) Load(ctx context.Context) (models.WarmLeadsReport, error) {
	now := w.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var in warmInputs
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		in.booked, err = ingest.FetchAll[models.RawEvent](gctx, w.events.Events,
			query.From(ingest.EventsTable).Select("email").Eq("event_name", models.EventCallBooked), 1000)
		return err
	})
	g.Go(func() error {
		return w.rows.Rows(gctx, query.From("warm_leads_high_activity"), &in.highActivity)
	})
	g.Go(func() error {
		return w.rows.Rows(gctx, query.From("warm_leads_abandoned"), &in.abandoned)
	})
	g.Go(func() (err error) {
		in.todayEvents, err = w.events.Events(gctx, query.From(ingest.EventsTable).
			Select("email", "event_name", "page_url", "occurred_at").
			Gte("occurred_at", today).
			NotNull("email").
			OrderDesc("occurred_at").
			Limit(todayEventLimit))
		return err
	})
	g.Go(func() error {
		return w.rows.Rows(gctx, query.From("entitlements").
			Select("email", "course_key", "granted_at").
			Gte("granted_at", today).
			OrderDesc("granted_at"), &in.entitlements)
	})
	g.Go(func() (err error) {
		in.converted, err = convertedEmails(gctx, w.rows)
		return err
	})
	if err := g.Wait(); err != nil {
		w.log.Error("load warm leads", slog.String("err", err.Error()))
		return models.WarmLeadsReport{}, fmt.Errorf("load warm leads: %w", err)
	}

	report := buildWarmReport(in, now)
	if err := w.scoreAbandoned(ctx, report.Abandoned); err != nil {
		w.log.Error("load warm leads", slog.String("err", err.Error()))
		return models.WarmLeadsReport{}, fmt.Errorf("load warm leads: %w", err)
	}
	w.log.Debug("warm leads loaded",
		slog.Int("high_activity", len(report.HighActivity)),
		slog.Int("abandoned", len(report.Abandoned)),
		slog.Int("today_active", len(report.TodayActive)))
	return report, nil
}

// scoreAbandoned gives every abandoned click a journey and an intent score
// from one batch read.
func (w *WarmLeads) scoreAbandoned(ctx context.Context, rows []models.AbandonedClick) error {
	if len(rows) == 0 {
		return nil
	}
	emails := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.Email != "" {
			emails = append(emails, r.Email)
		}
	}
	var byEmail map[string][]models.RawEvent
	if len(emails) > 0 {
		events, err := w.events.Events(ctx, query.From(ingest.EventsTable).
			In("email", emails...).
			OrderDesc("occurred_at").
			Limit(w.batchLimit))
		if err != nil {
			return fmt.Errorf("abandoned journeys: %w", err)
		}
		byEmail = groupByEmail(events)
	}
	for i := range rows {
		tl := journey.Reconstruct(byEmail[rows[i].Email])
		score := intent.Score(tl, false)
		rows[i].Journey = tl
		rows[i].IntentScore = score
		rows[i].IntentLevel = intent.Classify(score).String()
		w.metrics.ObserveJourney(len(tl), rows[i].IntentLevel)
	}
	return nil
}

func buildWarmReport(in warmInputs, now time.Time) models.WarmLeadsReport {
	booked := make(map[string]struct{})
	for _, b := range in.booked {
		if b.Email != "" {
			booked[b.Email] = struct{}{}
		}
	}

	r := models.WarmLeadsReport{
		HighActivity:   highActivity(in.highActivity, in.converted, booked),
		Abandoned:      abandonedClicks(in.abandoned, now),
		TodayActive:    activeToday(in.todayEvents),
		BoughtInactive: boughtInactive(in.entitlements, in.todayEvents, now),
		BookedCount:    len(booked),
	}
	r.ConversionRate = ConversionRate(len(booked), len(r.Abandoned))
	return r
}

// ConversionRate is booked / (abandoned + booked) as a percentage with one
// decimal, or zero when nobody clicked.
func ConversionRate(booked, abandoned int) float64 {
	total := booked + abandoned
	if total == 0 {
		return 0
	}
	return math.Round(float64(booked)/float64(total)*1000) / 10
}

func highActivity(rows []models.HighActivityUser, converted, booked map[string]struct{}) []models.HighActivityUser {
	out := make([]models.HighActivityUser, 0, len(rows))
	for _, u := range rows {
		if _, ok := converted[u.Email]; ok {
			continue
		}
		_, u.HasBooked = booked[u.Email]
		out = append(out, u)
	}
	return out
}

func abandonedClicks(rows []models.AbandonedClick, now time.Time) []models.AbandonedClick {
	out := make([]models.AbandonedClick, 0, len(rows))
	for _, a := range rows {
		last := now
		if a.LastClick != nil {
			last = *a.LastClick
		}
		first := last
		if a.FirstClick != nil {
			first = *a.FirstClick
		}
		a.LastClick, a.FirstClick = &last, &first
		if a.Pages == nil {
			a.Pages = []string{}
		}
		a.DaysSinceLastClick = int(now.Sub(last) / (24 * time.Hour))
		out = append(out, a)
	}
	return out
}

// activeToday groups today's events, newest first, per user.
func activeToday(events []models.RawEvent) []models.ActiveUser {
	byEmail := make(map[string]*models.ActiveUser)
	pages := make(map[string]map[string]struct{})
	var order []string
	for _, ev := range events {
		if ev.Email == "" {
			continue
		}
		u, ok := byEmail[ev.Email]
		if !ok {
			u = &models.ActiveUser{Email: ev.Email, LastActivity: ev.OccurredAt}
			byEmail[ev.Email] = u
			pages[ev.Email] = make(map[string]struct{})
			order = append(order, ev.Email)
		}
		u.EventCount++
		if ev.PageURL != "" {
			pages[ev.Email][ev.PageURL] = struct{}{}
			if u.LastPage == "" {
				u.LastPage = ev.PageURL
			}
		}
	}
	out := make([]models.ActiveUser, 0, len(order))
	for _, email := range order {
		u := byEmail[email]
		u.PageCount = len(pages[email])
		out = append(out, *u)
	}
	slices.SortStableFunc(out, func(a, b models.ActiveUser) int { return cmp.Compare(b.EventCount, a.EventCount) })
	return out
}

// boughtInactive lists users who bought today but have no event today, one
// row per user for their latest purchase.
func boughtInactive(ents []models.Entitlement, todayEvents []models.RawEvent, now time.Time) []models.InactiveBuyer {
	active := make(map[string]struct{})
	for _, ev := range todayEvents {
		if ev.Email != "" {
			active[ev.Email] = struct{}{}
		}
	}
	seen := make(map[string]struct{})
	out := []models.InactiveBuyer{}
	for _, e := range ents {
		if e.Email == "" {
			continue
		}
		if _, ok := active[e.Email]; ok {
			continue
		}
		if _, ok := seen[e.Email]; ok {
			continue
		}
		seen[e.Email] = struct{}{}
		out = append(out, models.InactiveBuyer{
			Email:        e.Email,
			Course:       e.CourseKey,
			PurchaseTime: e.GrantedAt,
			HoursSince:   int(now.Sub(e.GrantedAt) / time.Hour),
		})
	}
	slices.SortStableFunc(out, func(a, b models.InactiveBuyer) int { return b.PurchaseTime.Compare(a.PurchaseTime) })
	return out
}
