package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/AngelCh415/coursepulse/internal/models"
	"github.com/AngelCh415/coursepulse/internal/query"
)

// Sink stores mirrored events and reports how many rows were new.
type Sink interface {
	InsertEvents(ctx context.Context, events []models.RawEvent) (int, error)
}

// Seen remembers which records a process has already handled.
type Seen interface {
	MarkSeen(key string) bool
	Forget(keys ...string)
}

// ETL copies analytics_events from the managed store into the local mirror.
type ETL struct {
	src      EventSource
	sink     Sink
	seen     Seen
	log      *slog.Logger
	pageSize int
}

func NewETL(src EventSource, sink Sink, seen Seen, log *slog.Logger) *ETL {
	return &ETL{src: src, sink: sink, seen: seen, log: log.With("component", "etl"), pageSize: 1000}
}

// Result summarises one run.
type Result struct {
	Fetched  int `json:"fetched"`
	Skipped  int `json:"skipped"`
	Inserted int `json:"inserted"`
}

// Run mirrors events that occurred on or after the start of since's day
// (UTC), or everything when since is nil.
func (e *ETL) Run(ctx context.Context, since *time.Time) (Result, error) {
	if e.src == nil || e.sink == nil {
		return Result{}, ErrNotConfigured
	}
	q := query.From(EventsTable).OrderAsc("id")
	if since != nil {
		q = q.Gte("occurred_at", dayUTC(*since))
	}
	rows, err := FetchAll[models.RawEvent](ctx, e.src.Events, q, e.pageSize)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: %w", err)
	}

	res := Result{Fetched: len(rows)}
	fresh := make([]models.RawEvent, 0, len(rows))
	var keys []string
	for _, r := range rows {
		r.Email = strings.ToLower(strings.TrimSpace(r.Email))
		r.EventName = strings.TrimSpace(r.EventName)
		if r.EventName == "" || r.OccurredAt.IsZero() {
			res.Skipped++
			continue
		}
		key := "evt|" + strconv.FormatInt(r.ID, 10)
		if !e.seen.MarkSeen(key) {
			res.Skipped++
			continue
		}
		keys = append(keys, key)
		fresh = append(fresh, r)
	}

	n, err := e.sink.InsertEvents(ctx, fresh)
	if err != nil {
		e.seen.Forget(keys...)
		return res, fmt.Errorf("ingest: %w", err)
	}
	res.Inserted = n
	e.log.Info("ingest complete",
		slog.Int("fetched", res.Fetched),
		slog.Int("skipped", res.Skipped),
		slog.Int("inserted", res.Inserted))
	return res, nil
}

func dayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
