package query

import (
	"reflect"
	"testing"
	"time"
)

func TestValuesPostgREST(t *testing.T) {
	ts := time.Date(2025, 8, 1, 10, 30, 0, 0, time.UTC)
	q := From("analytics_events").
		Select("email", "event_name").
		Eq("event_name", "call_booked").
		Lt("occurred_at", ts).
		In("email", "a@x.io", "b,c@x.io").
		NotNull("email").
		OrderDesc("occurred_at").
		Range(1000, 1999)

	v := q.Values()
	checks := map[string]string{
		"select":     "email,event_name",
		"event_name": "eq.call_booked",
		"order":      "occurred_at.desc",
		"limit":      "1000",
		"offset":     "1000",
	}
	for k, want := range checks {
		if got := v.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	if got := v.Get("occurred_at"); got != "lt.2025-08-01T10:30:00Z" {
		t.Errorf("occurred_at = %q", got)
	}
	emails := v["email"]
	want := []string{`in.("a@x.io","b,c@x.io")`, "not.is.null"}
	if !reflect.DeepEqual(emails, want) {
		t.Errorf("email = %v, want %v", emails, want)
	}
}

func TestValuesDefaults(t *testing.T) {
	v := From("learners_dashboard").OrderAsc("total_events").Values()
	if v.Get("select") != "*" || v.Get("order") != "total_events.asc" {
		t.Fatalf("unexpected values %v", v)
	}
	if v.Has("limit") || v.Has("offset") {
		t.Fatalf("unexpected paging %v", v)
	}
}

func TestBuildersDoNotShareState(t *testing.T) {
	base := From("analytics_events").Eq("email", "a@x.io")
	a := base.Eq("event_name", "page_view")
	b := base.Eq("event_name", "page_close")
	if len(base.Where) != 1 || a.Where[1].Value != "page_view" || b.Where[1].Value != "page_close" {
		t.Fatalf("builders leaked predicates: base=%v a=%v b=%v", base.Where, a.Where, b.Where)
	}
}

func TestToSQL(t *testing.T) {
	ts := time.Date(2025, 8, 1, 10, 30, 0, 0, time.UTC)
	sql, args, err := From("analytics_events").
		In("email", "a@x.io", "b@x.io").
		Lt("occurred_at", ts).
		NotNull("email").
		OrderDesc("occurred_at").
		Limit(30).
		ToSQL()
	if err != nil {
		t.Fatalf("ToSQL: %v", err)
	}
	wantSQL := "SELECT * FROM analytics_events WHERE email IN (?,?) AND occurred_at < ? AND email IS NOT NULL ORDER BY occurred_at DESC LIMIT 30"
	if sql != wantSQL {
		t.Fatalf("sql = %q\nwant  %q", sql, wantSQL)
	}
	wantArgs := []any{"a@x.io", "b@x.io", "2025-08-01T10:30:00.000000000Z"}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Fatalf("args = %v, want %v", args, wantArgs)
	}
}

func TestToSQLOffsetWithoutLimit(t *testing.T) {
	sql, _, err := From("analytics_events").Range(10, 9).ToSQL()
	if err != nil {
		t.Fatalf("ToSQL: %v", err)
	}
	want := "SELECT * FROM analytics_events LIMIT 9223372036854775807 OFFSET 10"
	if sql != want {
		t.Fatalf("sql = %q, want %q", sql, want)
	}
}
