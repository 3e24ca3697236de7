package leads

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/AngelCh415/coursepulse/internal/ingest"
	"github.com/AngelCh415/coursepulse/internal/journey"
	"github.com/AngelCh415/coursepulse/internal/models"
	"github.com/AngelCh415/coursepulse/internal/query"
	"github.com/AngelCh415/coursepulse/internal/telemetry"
)

const (
	FilterAll       = "all"
	FilterActive    = "active"
	FilterOffline   = "offline"
	FilterTop       = "top"
	FilterConverted = "converted"

	topLearners = 100
)

var ErrBadFilter = errors.New("unknown learner filter")

type Learners struct {
	rows       ingest.RowSource
	events     ingest.EventSource
	cache      *journey.Cache
	log        *slog.Logger
	metrics    *telemetry.Metrics
	batchLimit int
}

// NewLearners wires the learner list. cache holds the journeys shown in the
// top filter; the list resets it whenever another filter is requested.
func NewLearners(rows ingest.RowSource, events ingest.EventSource, cache *journey.Cache, log *slog.Logger, m *telemetry.Metrics, batchLimit int) *Learners {
	if batchLimit <= 0 {
		batchLimit = 500
	}
	return &Learners{
		rows:       rows,
		events:     events,
		cache:      cache,
		log:        log.With("component", "learners"),
		metrics:    m,
		batchLimit: batchLimit,
	}
}

type LearnerParams struct {
	PageParams
	Filter string
	Search string
	// Refresh drops the cached journeys of the page before reading them.
	Refresh bool
}

func ParseLearnerParams(v url.Values) (LearnerParams, error) {
	p := LearnerParams{
		PageParams: ParsePageParams(v),
		Filter:     norm(v.Get("filter")),
		Search:     norm(v.Get("q")),
		Refresh:    norm(v.Get("refresh")) == "true",
	}
	switch p.Filter {
	case "":
		p.Filter = FilterAll
	case FilterAll, FilterActive, FilterOffline, FilterTop, FilterConverted:
	default:
		return p, fmt.Errorf("%w: %q", ErrBadFilter, p.Filter)
	}
	return p, nil
}

type LearnerPage struct {
	Page[models.Learner]
	Counts models.LearnerCounts `json:"counts"`
}

// Load reads every learner row together with the converted-customer set and
// marks converted learners.
func (l *Learners) Load(ctx context.Context) ([]models.Learner, error) {
	var (
		all       []models.Learner
		converted map[string]struct{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		all, err = ingest.FetchAll(gctx, ingest.RowsOf[models.Learner](l.rows),
			query.From("learners_dashboard").OrderDesc("total_events"), 1000)
		return err
	})
	g.Go(func() error {
		var err error
		converted, err = convertedEmails(gctx, l.rows)
		return err
	})
	if err := g.Wait(); err != nil {
		l.log.Error("load learners", slog.String("err", err.Error()))
		return nil, fmt.Errorf("load learners: %w", err)
	}
	for i := range all {
		_, all[i].Converted = converted[all[i].Email]
	}
	return all, nil
}

func (l *Learners) List(ctx context.Context, p LearnerParams) (LearnerPage, error) {
	all, err := l.Load(ctx)
	if err != nil {
		return LearnerPage{}, err
	}
	rows := FilterLearners(all, p.Filter, p.Search)
	page := paginate(rows, p.PageParams)

	if p.Filter == FilterTop {
		if err := l.attachJourneys(ctx, page.Items, p.Refresh); err != nil {
			return LearnerPage{}, err
		}
	} else {
		l.cache.Reset()
	}
	return LearnerPage{Page: page, Counts: CountLearners(all)}, nil
}

// attachJourneys fills the journey of every learner on the page, fetching
// the ones not cached yet in a single batch. refresh invalidates the page's
// entries first so all of them are refetched.
func (l *Learners) attachJourneys(ctx context.Context, page []models.Learner, refresh bool) error {
	emails := make([]string, len(page))
	for i, ln := range page {
		emails[i] = ln.Email
	}
	if refresh {
		l.cache.Invalidate(emails...)
	}
	if missing := l.cache.Missing(emails); len(missing) > 0 {
		events, err := l.events.Events(ctx, query.From(ingest.EventsTable).
			In("email", missing...).
			OrderDesc("occurred_at").
			Limit(l.batchLimit))
		if err != nil {
			l.log.Error("load learner journeys", slog.String("err", err.Error()))
			return fmt.Errorf("load learner journeys: %w", err)
		}
		byEmail := groupByEmail(events)
		for _, email := range missing {
			tl := journey.ReconstructWith(byEmail[email], journey.Options{SkipOther: true})
			l.metrics.ObserveJourney(len(tl), "")
			l.cache.Set(email, tl)
		}
		l.log.Debug("learner journeys fetched",
			slog.Int("fetched", len(missing)),
			slog.Int("cached", l.cache.Len()))
	}
	for i := range page {
		page[i].Journey, _ = l.cache.Get(page[i].Email)
	}
	return nil
}

// FilterLearners applies a filter and a search over email and course names.
// all is left untouched.
func FilterLearners(all []models.Learner, filter, search string) []models.Learner {
	search = norm(search)
	var out []models.Learner

	if filter == FilterTop {
		for _, ln := range all {
			if ln.TotalEvents > 1 {
				out = append(out, ln)
			}
		}
		slices.SortStableFunc(out, func(a, b models.Learner) int { return cmp.Compare(b.TotalEvents, a.TotalEvents) })
		if len(out) > topLearners {
			out = out[:topLearners]
		}
		return slices.DeleteFunc(out, func(ln models.Learner) bool { return !matchesLearner(ln, search) })
	}

	for _, ln := range all {
		switch filter {
		case FilterConverted:
			if !ln.Converted {
				continue
			}
		case FilterActive, FilterOffline:
			if learnerStatus(ln) != filter {
				continue
			}
		}
		if matchesLearner(ln, search) {
			out = append(out, ln)
		}
	}
	if filter == FilterAll {
		slices.SortStableFunc(out, func(a, b models.Learner) int {
			return cmp.Compare(grantedUnix(b), grantedUnix(a))
		})
	}
	return out
}

func grantedUnix(ln models.Learner) int64 {
	if ln.GrantedAt == nil {
		return 0
	}
	return ln.GrantedAt.Unix()
}

// learnerStatus folds every status other than active into offline.
func learnerStatus(ln models.Learner) string {
	if ln.Status == FilterActive {
		return FilterActive
	}
	return FilterOffline
}

func matchesLearner(ln models.Learner, q string) bool {
	if q == "" || strings.Contains(strings.ToLower(ln.Email), q) {
		return true
	}
	for _, c := range ln.Courses {
		if strings.Contains(strings.ToLower(c), q) {
			return true
		}
	}
	return false
}

func CountLearners(all []models.Learner) models.LearnerCounts {
	c := models.LearnerCounts{All: len(all)}
	for _, ln := range all {
		if learnerStatus(ln) == FilterActive {
			c.Active++
		} else {
			c.Offline++
		}
		if ln.Converted {
			c.Converted++
		}
	}
	return c
}

func groupByEmail(events []models.RawEvent) map[string][]models.RawEvent {
	out := make(map[string][]models.RawEvent)
	for _, ev := range events {
		out[ev.Email] = append(out[ev.Email], ev)
	}
	return out
}

// convertedEmails reads backend_revenue_metrics.top_converted_customers.
func convertedEmails(ctx context.Context, rows ingest.RowSource) (map[string]struct{}, error) {
	var m models.BackendMetrics
	if err := rows.Row(ctx, query.From(backendMetricsTable).Select("top_converted_customers"), &m); err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(m.TopConverted))
	for _, c := range m.TopConverted {
		if c.Email != "" {
			out[c.Email] = struct{}{}
		}
	}
	return out, nil
}
