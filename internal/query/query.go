// Package query describes a read against the managed data store: a named
// collection, predicates, one ordering and a page window.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// TimeLayout is a fixed-width UTC layout, so stored timestamps sort as text.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

type Op string

const (
	OpEq      Op = "eq"
	OpNeq     Op = "neq"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpIn      Op = "in"
	OpNotNull Op = "not.is"
)

type Predicate struct {
	Field string
	Op    Op
	Value any
}

// Query is immutable; every builder method returns a copy.
type Query struct {
	Table     string
	Columns   []string
	Where     []Predicate
	OrderBy   string
	Ascending bool
	LimitN    int
	OffsetN   int
}

func From(table string) Query { return Query{Table: table} }

func (q Query) Select(cols ...string) Query {
	q.Columns = append([]string(nil), cols...)
	return q
}

func (q Query) with(p Predicate) Query {
	where := make([]Predicate, len(q.Where), len(q.Where)+1)
	copy(where, q.Where)
	q.Where = append(where, p)
	return q
}

func (q Query) Eq(field string, v any) Query  { return q.with(Predicate{field, OpEq, v}) }
func (q Query) Neq(field string, v any) Query { return q.with(Predicate{field, OpNeq, v}) }
func (q Query) Lt(field string, v any) Query  { return q.with(Predicate{field, OpLt, v}) }
func (q Query) Lte(field string, v any) Query { return q.with(Predicate{field, OpLte, v}) }
func (q Query) Gt(field string, v any) Query  { return q.with(Predicate{field, OpGt, v}) }
func (q Query) Gte(field string, v any) Query { return q.with(Predicate{field, OpGte, v}) }
func (q Query) NotNull(field string) Query    { return q.with(Predicate{field, OpNotNull, nil}) }

func (q Query) In(field string, values ...string) Query {
	return q.with(Predicate{field, OpIn, append([]string(nil), values...)})
}

func (q Query) OrderDesc(field string) Query {
	q.OrderBy, q.Ascending = field, false
	return q
}

func (q Query) OrderAsc(field string) Query {
	q.OrderBy, q.Ascending = field, true
	return q
}

func (q Query) Limit(n int) Query {
	q.LimitN = n
	return q
}

// Range selects rows from..to inclusive, the way page ranges are requested.
func (q Query) Range(from, to int) Query {
	q.OffsetN = from
	q.LimitN = to - from + 1
	return q
}

// Values renders the query as PostgREST parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	if len(q.Columns) > 0 {
		v.Set("select", strings.Join(q.Columns, ","))
	} else {
		v.Set("select", "*")
	}
	for _, p := range q.Where {
		v.Add(p.Field, p.restValue())
	}
	if q.OrderBy != "" {
		dir := "desc"
		if q.Ascending {
			dir = "asc"
		}
		v.Set("order", q.OrderBy+"."+dir)
	}
	if q.LimitN > 0 {
		v.Set("limit", strconv.Itoa(q.LimitN))
	}
	if q.OffsetN > 0 {
		v.Set("offset", strconv.Itoa(q.OffsetN))
	}
	return v
}

func (p Predicate) restValue() string {
	switch p.Op {
	case OpNotNull:
		return "not.is.null"
	case OpIn:
		vals, _ := p.Value.([]string)
		quoted := make([]string, len(vals))
		for i, s := range vals {
			quoted[i] = quoteList(s)
		}
		return "in.(" + strings.Join(quoted, ",") + ")"
	default:
		return string(p.Op) + "." + formatValue(p.Value)
	}
}

// quoteList wraps values that would break PostgREST list syntax.
func quoteList(s string) string {
	if strings.ContainsAny(s, `,()". `) {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}

func formatValue(v any) string {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// ToSQL renders the query for the SQLite mirror. Times are bound as
// TimeLayout strings, matching how the mirror stores them.
func (q Query) ToSQL() (string, []any, error) {
	cols := q.Columns
	if len(cols) == 0 {
		cols = []string{"*"}
	}
	b := sq.Select(cols...).From(q.Table)
	for _, p := range q.Where {
		val := sqlValue(p.Value)
		switch p.Op {
		case OpEq:
			b = b.Where(sq.Eq{p.Field: val})
		case OpNeq:
			b = b.Where(sq.NotEq{p.Field: val})
		case OpLt:
			b = b.Where(sq.Lt{p.Field: val})
		case OpLte:
			b = b.Where(sq.LtOrEq{p.Field: val})
		case OpGt:
			b = b.Where(sq.Gt{p.Field: val})
		case OpGte:
			b = b.Where(sq.GtOrEq{p.Field: val})
		case OpIn:
			b = b.Where(sq.Eq{p.Field: val})
		case OpNotNull:
			b = b.Where(sq.NotEq{p.Field: nil})
		default:
			return "", nil, fmt.Errorf("unsupported operator %q", p.Op)
		}
	}
	if q.OrderBy != "" {
		dir := " DESC"
		if q.Ascending {
			dir = " ASC"
		}
		b = b.OrderBy(q.OrderBy + dir)
	}
	if q.LimitN > 0 {
		b = b.Limit(uint64(q.LimitN))
	}
	if q.OffsetN > 0 {
		if q.LimitN <= 0 {
			b = b.Limit(uint64(1<<63 - 1))
		}
		b = b.Offset(uint64(q.OffsetN))
	}
	return b.ToSql()
}

func sqlValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(TimeLayout)
	}
	return v
}
