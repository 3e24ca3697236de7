package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/AngelCh415/coursepulse/internal/models"
	"github.com/AngelCh415/coursepulse/internal/query"
	"github.com/AngelCh415/coursepulse/internal/telemetry"
	"github.com/AngelCh415/coursepulse/internal/utils"
)

const EventsTable = "analytics_events"

// EventSource answers event queries. Implementations must return rows in the
// order the query asks for.
type EventSource interface {
	Events(ctx context.Context, q query.Query) ([]models.RawEvent, error)
}

// RowSource reads arbitrary views into caller-provided slices or structs.
type RowSource interface {
	Rows(ctx context.Context, q query.Query, dst any) error
	Row(ctx context.Context, q query.Query, dst any) error
}

// RESTClient talks to a PostgREST endpoint ({BaseURL}/rest/v1/{table}).
type RESTClient struct {
	c       HTTPClient
	baseURL string
	apiKey  string
	backoff utils.Backoff
	metrics *telemetry.Metrics
}

func NewRESTClient(c HTTPClient, baseURL, apiKey string, m *telemetry.Metrics) *RESTClient {
	return &RESTClient{
		c:       c,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		backoff: DefaultBackoff,
		metrics: m,
	}
}

// WithBackoff replaces the retry policy.
func (r *RESTClient) WithBackoff(b utils.Backoff) *RESTClient {
	r.backoff = b
	return r
}

func (r *RESTClient) Events(ctx context.Context, q query.Query) ([]models.RawEvent, error) {
	if q.Table == "" {
		q.Table = EventsTable
	}
	var out []models.RawEvent
	if err := r.Rows(ctx, q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RESTClient) Rows(ctx context.Context, q query.Query, dst any) error {
	return r.get(ctx, q, "application/json", dst)
}

// Row expects exactly one row back, the way .single() does.
func (r *RESTClient) Row(ctx context.Context, q query.Query, dst any) error {
	return r.get(ctx, q, "application/vnd.pgrst.object+json", dst)
}

func (r *RESTClient) get(ctx context.Context, q query.Query, accept string, dst any) (err error) {
	if r.baseURL == "" || r.apiKey == "" {
		return ErrNotConfigured
	}
	if q.Table == "" {
		return errors.New("query without table")
	}
	start := time.Now()
	defer func() { r.metrics.ObserveFetch(q.Table, start, err) }()

	u := r.baseURL + "/rest/v1/" + q.Table + "?" + q.Values().Encode()
	h := http.Header{}
	h.Set("apikey", r.apiKey)
	h.Set("Authorization", "Bearer "+r.apiKey)
	h.Set("Accept", accept)
	if err = GetJSONWithRetry(ctx, r.c, r.backoff, u, h, dst); err != nil {
		return fmt.Errorf("fetch %s: %w", q.Table, err)
	}
	return nil
}

// PageFunc reads one page of a query.
type PageFunc[T any] func(ctx context.Context, q query.Query) ([]T, error)

// RowsOf adapts a RowSource to a PageFunc decoding into T.
func RowsOf[T any](src RowSource) PageFunc[T] {
	return func(ctx context.Context, q query.Query) ([]T, error) {
		var out []T
		err := src.Rows(ctx, q, &out)
		return out, err
	}
}

// FetchAll reads q page by page until a page comes back short.
func FetchAll[T any](ctx context.Context, fetch PageFunc[T], q query.Query, pageSize int) ([]T, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}
	var all []T
	for from := 0; ; from += pageSize {
		page, err := fetch(ctx, q.Range(from, from+pageSize-1))
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}
