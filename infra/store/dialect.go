package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type dialect struct {
	name   string
	driver string
	schema []string
	// ts converts a time to the column representation.
	ts func(time.Time) any
	// bind rewrites ? placeholders for the driver.
	bind func(string) string
}

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS sites (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL
    );`,
		`CREATE TABLE IF NOT EXISTS telemetry (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        site_id TEXT NOT NULL,
        asset_id TEXT,
        ts INTEGER NOT NULL,
        metric_type TEXT NOT NULL,
        metric_value REAL NOT NULL CHECK (metric_value >= 0),
        unit TEXT NOT NULL
    );`,
		`CREATE INDEX IF NOT EXISTS telemetry_site_ts ON telemetry (site_id, ts);`,
		`CREATE INDEX IF NOT EXISTS telemetry_ts ON telemetry (ts);`,
		`CREATE TABLE IF NOT EXISTS suggestions (
        id TEXT PRIMARY KEY,
        site_id TEXT NOT NULL,
        status TEXT NOT NULL,
        payload TEXT,
        created_at INTEGER NOT NULL,
        actioned_at INTEGER
    );`,
		`CREATE TABLE IF NOT EXISTS alerts (
        id TEXT PRIMARY KEY,
        site_id TEXT NOT NULL,
        metric_type TEXT NOT NULL,
        severity TEXT NOT NULL,
        message TEXT NOT NULL,
        value REAL NOT NULL,
        status TEXT NOT NULL,
        created_at INTEGER NOT NULL
    );`,
	},
	ts:   func(t time.Time) any { return t.UnixNano() },
	bind: func(q string) string { return q },
}

var postgresDialect = dialect{
	name:   "postgres",
	driver: "postgres",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS sites (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL
    );`,
		`CREATE TABLE IF NOT EXISTS telemetry (
        id BIGSERIAL PRIMARY KEY,
        site_id TEXT NOT NULL,
        asset_id TEXT,
        ts TIMESTAMPTZ NOT NULL,
        metric_type TEXT NOT NULL,
        metric_value DOUBLE PRECISION NOT NULL CHECK (metric_value >= 0),
        unit TEXT NOT NULL
    );`,
		`CREATE INDEX IF NOT EXISTS telemetry_site_ts ON telemetry (site_id, ts);`,
		`CREATE INDEX IF NOT EXISTS telemetry_ts ON telemetry (ts);`,
		`CREATE TABLE IF NOT EXISTS suggestions (
        id TEXT PRIMARY KEY,
        site_id TEXT NOT NULL,
        status TEXT NOT NULL,
        payload TEXT,
        created_at TIMESTAMPTZ NOT NULL,
        actioned_at TIMESTAMPTZ
    );`,
		`CREATE TABLE IF NOT EXISTS alerts (
        id TEXT PRIMARY KEY,
        site_id TEXT NOT NULL,
        metric_type TEXT NOT NULL,
        severity TEXT NOT NULL,
        message TEXT NOT NULL,
        value DOUBLE PRECISION NOT NULL,
        status TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL
    );`,
	},
	// TIMESTAMPTZ keeps microseconds and rounds anything finer, so values
	// are floored here to keep "ts < cutoff" exact at that resolution.
	ts:   func(t time.Time) any { return t.UTC().Truncate(time.Microsecond) },
	bind: dollarPlaceholders,
}

func dollarPlaceholders(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// timestamp scans either representation back into UTC time.
type timestamp struct {
	t     time.Time
	valid bool
}

func (ts *timestamp) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		ts.t, ts.valid = time.Time{}, false
	case int64:
		ts.t, ts.valid = time.Unix(0, x).UTC(), true
	case time.Time:
		ts.t, ts.valid = x.UTC(), true
	default:
		return fmt.Errorf("unsupported timestamp type %T", v)
	}
	return nil
}

func (ts timestamp) ptr() *time.Time {
	if !ts.valid {
		return nil
	}
	t := ts.t
	return &t
}
