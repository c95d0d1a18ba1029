// Package store persists telemetry, sites, suggestions and alerts in SQLite
// or Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/kilianp07/sitepulse/core/alerting"
	"github.com/kilianp07/sitepulse/core/model"
	"github.com/kilianp07/sitepulse/core/suggestion"
)

// Store implements the persistence sink, the site registry and the
// suggestion and alert stores over one database.
type Store struct {
	db *sql.DB
	d  dialect
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*Store, error) {
	db, err := sql.Open(sqliteDialect.driver, path)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; one connection keeps batches from
	// failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return open(db, sqliteDialect)
}

// NewPostgresStore connects to dsn and ensures schema.
func NewPostgresStore(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open(postgresDialect.driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return open(db, postgresDialect)
}

func open(db *sql.DB, d dialect) (*Store, error) {
	for _, stmt := range d.schema {
		if _, err := db.Exec(stmt); err != nil {
			if cerr := db.Close(); cerr != nil {
				return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
			}
			return nil, fmt.Errorf("%s schema: %w", d.name, err)
		}
	}
	return &Store{db: db, d: d}, nil
}

// Backend returns the dialect name.
func (s *Store) Backend() string { return s.d.name }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) q(query string) string { return s.d.bind(query) }

// WriteBatch inserts all samples in one transaction.
func (s *Store) WriteBatch(ctx context.Context, samples []model.TelemetrySample) (n int, err error) {
	if len(samples) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, s.q(`INSERT INTO telemetry (site_id, asset_id, ts, metric_type, metric_value, unit)
        VALUES (?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return 0, err
	}
	defer func() { _ = stmt.Close() }()
	for _, smp := range samples {
		var asset any
		if smp.AssetID != nil {
			asset = *smp.AssetID
		}
		if _, err = stmt.ExecContext(ctx, smp.SiteID, asset, s.d.ts(smp.Timestamp), smp.Metric.String(), smp.Value, smp.Unit); err != nil {
			return 0, fmt.Errorf("insert %s/%s: %w", smp.SiteID, smp.Metric, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(samples), nil
}

// PruneOlderThan deletes samples with ts strictly before cutoff.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM telemetry WHERE ts < ?`), s.d.ts(cutoff))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// QuerySamples returns the newest samples of a site at or after since.
// A non-positive limit returns every match.
func (s *Store) QuerySamples(ctx context.Context, siteID string, since time.Time, limit int) ([]model.TelemetrySample, error) {
	query := `SELECT site_id, asset_id, ts, metric_type, metric_value, unit
        FROM telemetry WHERE site_id = ? AND ts >= ? ORDER BY ts DESC, metric_type`
	args := []any{siteID, s.d.ts(since)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	res := []model.TelemetrySample{}
	for rows.Next() {
		var (
			smp    model.TelemetrySample
			asset  sql.NullString
			ts     timestamp
			metric string
		)
		if err := rows.Scan(&smp.SiteID, &asset, &ts, &metric, &smp.Value, &smp.Unit); err != nil {
			return nil, err
		}
		if smp.Metric, err = model.ParseMetricType(metric); err != nil {
			return nil, err
		}
		if asset.Valid {
			a := asset.String
			smp.AssetID = &a
		}
		smp.Timestamp = ts.t
		res = append(res, smp)
	}
	return res, rows.Err()
}

// ListEligibleSites returns online site ids in ascending order.
func (s *Store) ListEligibleSites(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id FROM sites WHERE status = ? ORDER BY id`), string(model.SiteOnline))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertSite inserts the site or updates its name and status.
func (s *Store) UpsertSite(ctx context.Context, site model.Site) error {
	if site.ID == "" {
		return errors.New("site id required")
	}
	if !site.Status.Valid() {
		return fmt.Errorf("site %s: invalid status %q", site.ID, site.Status)
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO sites (id, name, status) VALUES (?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET name = excluded.name, status = excluded.status`),
		site.ID, site.Name, string(site.Status))
	return err
}

// InsertSuggestion stores a new suggestion.
func (s *Store) InsertSuggestion(ctx context.Context, sg model.Suggestion) error {
	var payload any
	if len(sg.Payload) > 0 {
		payload = string(sg.Payload)
	}
	var actioned any
	if sg.ActionedAt != nil {
		actioned = s.d.ts(*sg.ActionedAt)
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO suggestions (id, site_id, status, payload, created_at, actioned_at)
        VALUES (?, ?, ?, ?, ?, ?)`),
		sg.ID, sg.SiteID, string(sg.Status), payload, s.d.ts(sg.CreatedAt), actioned)
	return err
}

const suggestionColumns = `id, site_id, status, payload, created_at, actioned_at`

func scanSuggestion(sc interface{ Scan(...any) error }) (model.Suggestion, error) {
	var (
		sg       model.Suggestion
		status   string
		payload  sql.NullString
		created  timestamp
		actioned timestamp
	)
	if err := sc.Scan(&sg.ID, &sg.SiteID, &status, &payload, &created, &actioned); err != nil {
		return sg, err
	}
	sg.Status = model.SuggestionStatus(status)
	if payload.Valid {
		sg.Payload = json.RawMessage(payload.String)
	}
	sg.CreatedAt = created.t
	sg.ActionedAt = actioned.ptr()
	return sg, nil
}

// GetSuggestion returns suggestion.ErrNotFound when the id is unknown for the site.
func (s *Store) GetSuggestion(ctx context.Context, siteID, id string) (model.Suggestion, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+suggestionColumns+` FROM suggestions WHERE id = ? AND site_id = ?`), id, siteID)
	sg, err := scanSuggestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return sg, fmt.Errorf("suggestion %s: %w", id, suggestion.ErrNotFound)
	}
	return sg, err
}

// TransitionSuggestion moves a pending suggestion to status to.
func (s *Store) TransitionSuggestion(ctx context.Context, siteID, id string, to model.SuggestionStatus, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE suggestions SET status = ?, actioned_at = ?
        WHERE id = ? AND site_id = ? AND status = ?`),
		string(to), s.d.ts(at), id, siteID, string(model.SuggestionPending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ListSuggestions returns a site's suggestions with the given status, oldest first.
func (s *Store) ListSuggestions(ctx context.Context, siteID string, status model.SuggestionStatus) ([]model.Suggestion, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+suggestionColumns+` FROM suggestions
        WHERE site_id = ? AND status = ? ORDER BY created_at, id`), siteID, string(status))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	res := []model.Suggestion{}
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, sg)
	}
	return res, rows.Err()
}

// InsertAlerts stores alerts in one transaction.
func (s *Store) InsertAlerts(ctx context.Context, alerts []model.Alert) (err error) {
	if len(alerts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, a := range alerts {
		if _, err = tx.ExecContext(ctx, s.q(`INSERT INTO alerts (id, site_id, metric_type, severity, message, value, status, created_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			a.ID, a.SiteID, a.Metric.String(), string(a.Severity), a.Message, a.Value, string(a.Status), s.d.ts(a.CreatedAt)); err != nil {
			return fmt.Errorf("insert alert %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

// AcknowledgeAlert marks an alert acknowledged. Acknowledging twice is a no-op.
func (s *Store) AcknowledgeAlert(ctx context.Context, siteID, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE alerts SET status = ? WHERE id = ? AND site_id = ?`),
		string(model.AlertAcknowledged), id, siteID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("alert %s: %w", id, alerting.ErrNotFound)
	}
	return nil
}

// ListAlerts returns a site's alerts with the given status, newest first.
func (s *Store) ListAlerts(ctx context.Context, siteID string, status model.AlertStatus) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, site_id, metric_type, severity, message, value, status, created_at
        FROM alerts WHERE site_id = ? AND status = ? ORDER BY created_at DESC, id`), siteID, string(status))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	res := []model.Alert{}
	for rows.Next() {
		var (
			a        model.Alert
			metric   string
			severity string
			st       string
			created  timestamp
		)
		if err := rows.Scan(&a.ID, &a.SiteID, &metric, &severity, &a.Message, &a.Value, &st, &created); err != nil {
			return nil, err
		}
		if a.Metric, err = model.ParseMetricType(metric); err != nil {
			return nil, err
		}
		a.Severity = model.AlertSeverity(severity)
		a.Status = model.AlertStatus(st)
		a.CreatedAt = created.t
		res = append(res, a)
	}
	return res, rows.Err()
}
