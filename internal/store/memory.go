package store

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/AngelCh415/coursepulse/internal/models"
	"github.com/AngelCh415/coursepulse/internal/query"
)

const eventsTable = "analytics_events"

type row = map[string]any

// MemoryStore keeps tables as decoded JSON rows and answers queries the way
// the REST API would. It backs tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	tables   map[string][]row
	eventIDs map[int64]struct{}
	seen     map[string]struct{} // idempotency per record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:   make(map[string][]row),
		eventIDs: make(map[int64]struct{}),
		seen:     make(map[string]struct{}),
	}
}

func (s *MemoryStore) MarkSeen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

func (s *MemoryStore) Forget(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.seen, k)
	}
}

// Put appends rows (a slice of structs or maps) to a table.
func (s *MemoryStore) Put(table string, rows any) error {
	decoded, err := toRows(rows)
	if err != nil {
		return fmt.Errorf("put %s: %w", table, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = append(s.tables[table], decoded...)
	return nil
}

// InsertEvents adds events whose id is not stored yet.
func (s *MemoryStore) InsertEvents(_ context.Context, events []models.RawEvent) (int, error) {
	fresh := make([]models.RawEvent, 0, len(events))
	s.mu.Lock()
	for _, e := range events {
		if _, ok := s.eventIDs[e.ID]; ok {
			continue
		}
		s.eventIDs[e.ID] = struct{}{}
		fresh = append(fresh, e)
	}
	s.mu.Unlock()
	if err := s.Put(eventsTable, fresh); err != nil {
		return 0, err
	}
	return len(fresh), nil
}

func (s *MemoryStore) Events(ctx context.Context, q query.Query) ([]models.RawEvent, error) {
	if q.Table == "" {
		q.Table = eventsTable
	}
	var out []models.RawEvent
	if err := s.Rows(ctx, q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MemoryStore) Rows(_ context.Context, q query.Query, dst any) error {
	return decode(s.run(q), dst)
}

func (s *MemoryStore) Row(_ context.Context, q query.Query, dst any) error {
	rows := s.run(q)
	if len(rows) != 1 {
		return fmt.Errorf("%s: expected one row, got %d", q.Table, len(rows))
	}
	return decode(rows[0], dst)
}

func (s *MemoryStore) Count(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

func (s *MemoryStore) run(q query.Query) []row {
	s.mu.RLock()
	var out []row
	for _, r := range s.tables[q.Table] {
		if matchAll(r, q.Where) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	if q.OrderBy != "" {
		slices.SortStableFunc(out, func(a, b row) int {
			c := compare(a[q.OrderBy], b[q.OrderBy])
			if q.Ascending {
				return c
			}
			return -c
		})
	}
	if q.OffsetN > 0 {
		out = out[min(q.OffsetN, len(out)):]
	}
	if q.LimitN > 0 && len(out) > q.LimitN {
		out = out[:q.LimitN]
	}
	return out
}

func matchAll(r row, preds []query.Predicate) bool {
	for _, p := range preds {
		if !match(r[p.Field], p) {
			return false
		}
	}
	return true
}

func match(v any, p query.Predicate) bool {
	if p.Op == query.OpNotNull {
		return !isNull(v)
	}
	if isNull(v) {
		return false
	}
	switch p.Op {
	case query.OpIn:
		vals, _ := p.Value.([]string)
		return slices.Contains(vals, fmt.Sprint(v))
	case query.OpEq:
		return compare(v, p.Value) == 0
	case query.OpNeq:
		return compare(v, p.Value) != 0
	case query.OpLt:
		return compare(v, p.Value) < 0
	case query.OpLte:
		return compare(v, p.Value) <= 0
	case query.OpGt:
		return compare(v, p.Value) > 0
	case query.OpGte:
		return compare(v, p.Value) >= 0
	}
	return false
}

func isNull(v any) bool {
	return v == nil || v == ""
}

// compare orders times as times and numbers as numbers; anything else
// falls back to its text. Nulls sort first.
func compare(a, b any) int {
	switch {
	case isNull(a) && isNull(b):
		return 0
	case isNull(a):
		return -1
	case isNull(b):
		return 1
	}
	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			return ta.Compare(tb)
		}
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return cmp.Compare(fa, fb)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, x)
		return t, err == nil
	}
	return time.Time{}, false
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func toRows(v any) ([]row, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rows []row
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func decode(v any, dst any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
