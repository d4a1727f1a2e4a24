// Package archive persists raw upstream payloads and normalized records in
// SQLite, giving the service a fetch history that survives restarts.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/huanchen1107/TawinCWA/internal/models"
)

// Archive wraps the SQLite database.
type Archive struct {
	db     *sql.DB
	clock  clockwork.Clock
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path and applies pending
// migrations. Use ":memory:" for an ephemeral archive.
func Open(path string, clock clockwork.Clock, logger *zap.Logger) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %q: %w", path, err)
	}
	// modernc.org/sqlite serializes writes itself; one connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	a := &Archive{db: db, clock: clock, logger: logger}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// InsertRecords stores a normalized batch tied to its payload row. Best-effort
// callers treat a failure here as non-fatal.
func (a *Archive) InsertRecords(ctx context.Context, payloadID int64, records []models.WeatherRecord) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin records tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (payload_id, location, latitude, longitude, observed_at, metric, value, unit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare records insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			payloadID, rec.Location, rec.Latitude, rec.Longitude,
			rec.ObservedAt.UTC().Format(time.RFC3339), string(rec.Metric), rec.Value, rec.Unit,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert record: %w", err)
		}
	}
	return tx.Commit()
}

// InsertAlerts stores the alert events evaluated from a payload's batch.
func (a *Archive) InsertAlerts(ctx context.Context, payloadID int64, events []models.AlertEvent) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin alerts tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO alerts (payload_id, location, severity, metric, threshold_breached, observed_value, message, emitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare alerts insert: %w", err)
	}
	defer stmt.Close()

	emittedAt := a.clock.Now().UTC().Format(time.RFC3339)
	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			payloadID, ev.Location, string(ev.Severity), string(ev.Metric),
			ev.ThresholdBreached, ev.ObservedValue, ev.Message, emittedAt,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert alert: %w", err)
		}
	}
	return tx.Commit()
}

// HistoryEntry is one archived fetch of a dataset.
type HistoryEntry struct {
	PayloadID   int64     `json:"payloadId"`
	FetchedAt   time.Time `json:"fetchedAt"`
	RecordCount int       `json:"recordCount"`
	AlertCount  int       `json:"alertCount"`
	SizeBytes   int       `json:"sizeBytes"`
}

// History lists the most recent archived fetches for a dataset, newest first.
func (a *Archive) History(ctx context.Context, provider models.Provider, dataset string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT p.id, p.fetched_at, LENGTH(p.payload_compressed),
		       (SELECT COUNT(*) FROM records r WHERE r.payload_id = p.id),
		       (SELECT COUNT(*) FROM alerts al WHERE al.payload_id = p.id)
		FROM raw_payloads p
		WHERE p.provider = ? AND p.dataset = ?
		ORDER BY p.fetched_at DESC
		LIMIT ?
	`, string(provider), dataset, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var (
			e  HistoryEntry
			at string
		)
		if err := rows.Scan(&e.PayloadID, &at, &e.SizeBytes, &e.RecordCount, &e.AlertCount); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, at); err == nil {
			e.FetchedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecentAlerts lists archived alert events, newest first, optionally filtered
// by location.
func (a *Archive) RecentAlerts(ctx context.Context, location string, limit int) ([]models.AlertEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT location, severity, metric, threshold_breached, observed_value, message
		FROM alerts
	`
	args := []interface{}{}
	if location != "" {
		query += ` WHERE location = ?`
		args = append(args, location)
	}
	query += ` ORDER BY emitted_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var events []models.AlertEvent
	for rows.Next() {
		var (
			ev       models.AlertEvent
			severity string
			metric   string
		)
		if err := rows.Scan(&ev.Location, &severity, &metric, &ev.ThresholdBreached, &ev.ObservedValue, &ev.Message); err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		ev.Severity = models.Severity(severity)
		ev.Metric = models.Metric(metric)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Cleanup deletes payloads (and their records and alerts, via cascade) older
// than retention. Returns the number of payload rows removed.
func (a *Archive) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := a.clock.Now().UTC().Add(-retention).Format(time.RFC3339)
	res, err := a.db.ExecContext(ctx, `DELETE FROM raw_payloads WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup payloads: %w", err)
	}
	return res.RowsAffected()
}
