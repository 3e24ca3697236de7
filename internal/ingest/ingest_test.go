package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AngelCh415/coursepulse/internal/models"
	"github.com/AngelCh415/coursepulse/internal/query"
	"github.com/AngelCh415/coursepulse/internal/store"
	"github.com/AngelCh415/coursepulse/internal/telemetry"
	"github.com/AngelCh415/coursepulse/internal/utils"
)

var fastBackoff = utils.NewBackoff(time.Millisecond, 2)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRESTClientSendsQueryAndKeys(t *testing.T) {
	var gotPath, gotQuery, gotKey, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		gotKey, gotAuth = r.Header.Get("apikey"), r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id":7,"email":"ana@x.com","event_name":"page_view","page_url":"https://s.com/pricing","occurred_at":"2024-05-01T10:00:00.5+00:00","session_id":null,"engaged_ms":null}]`)
	}))
	defer srv.Close()

	c := NewRESTClient(srv.Client(), srv.URL+"/", "anon", telemetry.New()).WithBackoff(fastBackoff)
	evs, err := c.Events(context.Background(), query.From(EventsTable).Eq("email", "ana@x.com").Limit(30))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/rest/v1/analytics_events" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotQuery != "email=eq.ana%40x.com&limit=30&select=%2A" {
		t.Fatalf("query = %q", gotQuery)
	}
	if gotKey != "anon" || gotAuth != "Bearer anon" {
		t.Fatalf("headers apikey=%q auth=%q", gotKey, gotAuth)
	}
	if len(evs) != 1 || evs[0].ID != 7 || evs[0].OccurredAt.UTC().Second() != 0 || evs[0].SessionID != "" {
		t.Fatalf("decoded %+v", evs)
	}
}

func TestRESTClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	c := NewRESTClient(srv.Client(), srv.URL, "anon", nil).WithBackoff(fastBackoff)
	if _, err := c.Events(context.Background(), query.From(EventsTable)); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestRESTClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"message":"column does not exist"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewRESTClient(srv.Client(), srv.URL, "anon", nil).WithBackoff(fastBackoff)
	_, err := c.Events(context.Background(), query.From(EventsTable))
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Fatalf("expected status error 400, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one attempt, got %d", calls.Load())
	}
}

func TestRowAsksForSingleObject(t *testing.T) {
	var accept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		io.WriteString(w, `{"top_converted_customers":[{"email":"ana@x.com"}]}`)
	}))
	defer srv.Close()

	var dst struct {
		Top []struct{ Email string } `json:"top_converted_customers"`
	}
	c := NewRESTClient(srv.Client(), srv.URL, "anon", nil)
	if err := c.Row(context.Background(), query.From("backend_revenue_metrics").Select("top_converted_customers"), &dst); err != nil {
		t.Fatal(err)
	}
	if accept != "application/vnd.pgrst.object+json" || len(dst.Top) != 1 {
		t.Fatalf("accept=%q dst=%+v", accept, dst)
	}
}

func TestNotConfigured(t *testing.T) {
	c := NewRESTClient(http.DefaultClient, "", "", nil)
	if _, err := c.Events(context.Background(), query.From(EventsTable)); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestFetchAllPagesUntilShortPage(t *testing.T) {
	var offsets []int
	fetch := func(_ context.Context, q query.Query) ([]int, error) {
		offsets = append(offsets, q.OffsetN)
		remaining := 5 - q.OffsetN
		n := min(q.LimitN, max(remaining, 0))
		out := make([]int, n)
		for i := range out {
			out[i] = q.OffsetN + i
		}
		return out, nil
	}
	got, err := FetchAll[int](context.Background(), fetch, query.From("t"), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 || got[4] != 4 {
		t.Fatalf("got %v", got)
	}
	if len(offsets) != 3 || offsets[2] != 4 {
		t.Fatalf("offsets %v", offsets)
	}
}

func TestFetchAllStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	fetch := func(context.Context, query.Query) ([]int, error) { return nil, boom }
	if _, err := FetchAll[int](context.Background(), fetch, query.From("t"), 10); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestETLMirrorsOnceAndNormalises(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	remote := store.NewMemoryStore()
	var rows []models.RawEvent
	for i := 1; i <= 4; i++ {
		rows = append(rows, models.RawEvent{
			ID: int64(i), Email: " Ana@X.com ", EventName: models.EventPageView,
			PageURL: "https://s.com/" + strconv.Itoa(i), OccurredAt: t0.Add(time.Duration(i) * time.Hour),
		})
	}
	rows = append(rows, models.RawEvent{ID: 9, Email: "x@y.z", OccurredAt: t0})
	if err := remote.Put(EventsTable, rows); err != nil {
		t.Fatal(err)
	}

	mirror := store.NewMemoryStore()
	etl := NewETL(remote, mirror, store.NewMemoryStore(), discard())

	res, err := etl.Run(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Fetched != 5 || res.Skipped != 1 || res.Inserted != 4 {
		t.Fatalf("first run %+v", res)
	}
	got, _ := mirror.Events(ctx, query.From(EventsTable).Eq("email", "ana@x.com"))
	if len(got) != 4 {
		t.Fatalf("expected normalised emails, got %d rows", len(got))
	}

	res, err = etl.Run(ctx, &t0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Inserted != 0 || res.Skipped != 5 {
		t.Fatalf("second run %+v", res)
	}
}

type failingSink struct{}

func (failingSink) InsertEvents(context.Context, []models.RawEvent) (int, error) {
	return 0, errors.New("disk full")
}

func TestETLForgetsKeysWhenSinkFails(t *testing.T) {
	ctx := context.Background()
	remote := store.NewMemoryStore()
	remote.Put(EventsTable, []models.RawEvent{{ID: 1, EventName: models.EventPageView, OccurredAt: time.Now()}})
	seen := store.NewMemoryStore()

	if _, err := NewETL(remote, failingSink{}, seen, discard()).Run(ctx, nil); err == nil {
		t.Fatal("expected sink error")
	}
	if !seen.MarkSeen("evt|1") {
		t.Fatal("failed rows must not stay marked as seen")
	}
}
