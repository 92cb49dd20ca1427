package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"glamour/internal/adapters/http/perf"
)

// SQLDB is the database interface used by the session persister.
// Both *sql.DB and *TimedDB satisfy this interface.
type SQLDB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ SQLDB = (*sql.DB)(nil)

// DefaultSlowQuery is the threshold above which a query is logged at WARN.
const DefaultSlowQuery = 50 * time.Millisecond

// TimedDB wraps a *sql.DB to log slow queries and record them to a collector.
type TimedDB struct {
	db        *sql.DB
	collector *perf.Collector
	threshold time.Duration
}

var _ SQLDB = (*TimedDB)(nil)

// NewTimedDB wraps a *sql.DB with timing instrumentation.
// PRE: db is a valid database connection
// POST: Returns a TimedDB; a non-positive threshold falls back to DefaultSlowQuery
func NewTimedDB(db *sql.DB, collector *perf.Collector, threshold time.Duration) *TimedDB {
	if threshold <= 0 {
		threshold = DefaultSlowQuery
	}
	return &TimedDB{
		db:        db,
		collector: collector,
		threshold: threshold,
	}
}

// RawDB returns the underlying *sql.DB (needed for migrations and pool config).
func (t *TimedDB) RawDB() *sql.DB {
	return t.db
}

// queryLabel turns "SELECT ... FROM client_session WHERE ..." into "QueryRowContext SELECT client_session".
func queryLabel(op, query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return op
	}
	verb := strings.ToUpper(fields[0])
	table := ""
	for i, f := range fields {
		upper := strings.ToUpper(f)
		if (upper == "FROM" || upper == "INTO" || upper == "UPDATE") && i+1 < len(fields) {
			table = strings.Trim(fields[i+1], "(`\"")
			break
		}
	}
	if verb == "UPDATE" && len(fields) > 1 {
		table = fields[1]
	}
	if table == "" {
		return op + " " + verb
	}
	return op + " " + verb + " " + table
}

func (t *TimedDB) logQuery(op, query string, start time.Time) {
	elapsed := time.Since(start)
	durationMs := float64(elapsed.Microseconds()) / 1000.0
	label := queryLabel(op, query)

	if elapsed >= t.threshold {
		slog.Warn("slow_query", "op", label, "duration_ms", durationMs)
	} else {
		slog.Debug("query", "op", label, "duration_ms", durationMs)
	}

	t.collector.Record(perf.Entry{
		Kind:       perf.KindQuery,
		Path:       label,
		DurationMs: durationMs,
		Timestamp:  start,
	})
}

// ExecContext wraps sql.DB.ExecContext with timing.
func (t *TimedDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	result, err := t.db.ExecContext(ctx, query, args...)
	t.logQuery("ExecContext", query, start)
	return result, err
}

// QueryContext wraps sql.DB.QueryContext with timing.
func (t *TimedDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := t.db.QueryContext(ctx, query, args...)
	t.logQuery("QueryContext", query, start)
	return rows, err
}

// QueryRowContext wraps sql.DB.QueryRowContext with timing.
func (t *TimedDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := t.db.QueryRowContext(ctx, query, args...)
	t.logQuery("QueryRowContext", query, start)
	return row
}

// Close closes the underlying database connection.
func (t *TimedDB) Close() error {
	return t.db.Close()
}
