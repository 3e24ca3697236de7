package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // CGO-free SQLite

	"github.com/AngelCh415/coursepulse/internal/models"
	"github.com/AngelCh415/coursepulse/internal/query"
)

const eventColumns = "id, email, event_name, page_url, occurred_at, session_id, engaged_ms, utm_source, cta_pos"

// SQLiteStore is the local mirror of analytics_events.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	// WAL + busy timeout to avoid "database is locked"
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS analytics_events(
	  id          INTEGER PRIMARY KEY,
	  email       TEXT,
	  event_name  TEXT NOT NULL,
	  page_url    TEXT,
	  occurred_at TEXT NOT NULL,
	  session_id  TEXT,
	  engaged_ms  INTEGER NOT NULL DEFAULT 0,
	  utm_source  TEXT,
	  cta_pos     TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_events_email_time ON analytics_events(email, occurred_at);
	CREATE INDEX IF NOT EXISTS idx_events_name       ON analytics_events(event_name);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertEvents writes events in one transaction, ignoring ids already stored.
func (s *SQLiteStore) InsertEvents(ctx context.Context, events []models.RawEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO analytics_events(`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range events {
		res, err := stmt.ExecContext(ctx,
			e.ID, nullable(e.Email), e.EventName, nullable(e.PageURL),
			e.OccurredAt.UTC().Format(query.TimeLayout),
			nullable(e.SessionID), e.EngagedMs, nullable(e.UTMSource), nullable(e.CTAPos))
		if err != nil {
			return 0, fmt.Errorf("insert event %d: %w", e.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// Events runs q against the mirror. The column list is fixed; q.Columns is
// ignored so rows always scan into RawEvent.
func (s *SQLiteStore) Events(ctx context.Context, q query.Query) ([]models.RawEvent, error) {
	q.Table = "analytics_events"
	q.Columns = []string{eventColumns}
	sqlStr, args, err := q.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []models.RawEvent
	for rows.Next() {
		var (
			e                                             models.RawEvent
			email, pageURL, session, utm, cta, occurredAt sql.NullString
		)
		if err := rows.Scan(&e.ID, &email, &e.EventName, &pageURL, &occurredAt,
			&session, &e.EngagedMs, &utm, &cta); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Email, e.PageURL, e.SessionID = email.String, pageURL.String, session.String
		e.UTMSource, e.CTAPos = utm.String, cta.String
		if e.OccurredAt, err = time.Parse(query.TimeLayout, occurredAt.String); err != nil {
			return nil, fmt.Errorf("event %d: bad occurred_at %q: %w", e.ID, occurredAt.String, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analytics_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
