// Package journal keeps a SQLite log of intercepted requests, so fixture
// usage can be inspected after a test run.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/httpvcr/packages/vcr"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	request_id  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	mode        TEXT NOT NULL,
	method      TEXT NOT NULL,
	url         TEXT NOT NULL,
	fixture     TEXT NOT NULL DEFAULT '',
	status_code INTEGER NOT NULL DEFAULT 0,
	duration_ms REAL NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS events_fixture ON events (fixture);
`

// Journal records vcr events. It implements vcr.Observer.
type Journal struct {
	db           *sql.DB
	logger       *logrus.Entry
	queryTimeout time.Duration
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	return &Journal{
		db:           db,
		logger:       logrus.StandardLogger().WithField("component", "journal"),
		queryTimeout: 30 * time.Second,
	}, nil
}

// Close closes the database connection
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Observe records e, logging instead of failing the request on error.
func (j *Journal) Observe(e vcr.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), j.queryTimeout)
	defer cancel()
	if err := j.Record(ctx, e); err != nil {
		j.logger.WithError(err).WithField("request_id", e.RequestID).Warn("failed to journal event")
	}
}

// Record inserts one event.
func (j *Journal) Record(ctx context.Context, e vcr.Event) error {
	errMsg := ""
	if e.Err != nil {
		errMsg = e.Err.Error()
	}
	created := e.Time
	if created.IsZero() {
		created = time.Now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO events (id, request_id, kind, mode, method, url, fixture, status_code, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), e.RequestID, string(e.Kind), e.Mode.String(), e.Method, e.URL, e.Fixture,
		e.StatusCode, float64(e.Duration)/float64(time.Millisecond), errMsg, created.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert failed: %w", err)
	}
	return nil
}

// FixtureUsage summarizes the events of one fixture.
type FixtureUsage struct {
	Fixture  string
	Hits     int64
	Misses   int64
	Records  int64
	Errors   int64
	LastUsed time.Time
}

// Summary returns per-fixture usage ordered by fixture path.
func (j *Journal) Summary(ctx context.Context) ([]FixtureUsage, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT fixture,
			SUM(kind = 'hit'),
			SUM(kind = 'miss'),
			SUM(kind = 'record'),
			SUM(error != ''),
			MAX(created_at)
		FROM events
		WHERE fixture != ''
		GROUP BY fixture
		ORDER BY fixture`)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var usage []FixtureUsage
	for rows.Next() {
		var u FixtureUsage
		var lastUsed int64
		if err := rows.Scan(&u.Fixture, &u.Hits, &u.Misses, &u.Records, &u.Errors, &lastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		u.LastUsed = time.UnixMilli(lastUsed)
		usage = append(usage, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return usage, nil
}

// Counts returns the number of events per kind.
func (j *Journal) Counts(ctx context.Context) (map[vcr.Kind]int64, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM events GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	counts := make(map[vcr.Kind]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		counts[vcr.Kind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return counts, nil
}
