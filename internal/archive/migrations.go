package archive

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS raw_payloads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    provider TEXT NOT NULL,
    dataset TEXT NOT NULL,
    fetched_at DATETIME NOT NULL,
    payload_compressed BLOB NOT NULL,
    payload_hash TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    payload_id INTEGER NOT NULL REFERENCES raw_payloads(id) ON DELETE CASCADE,
    location TEXT NOT NULL,
    latitude REAL,
    longitude REAL,
    observed_at DATETIME NOT NULL,
    metric TEXT NOT NULL,
    value REAL NOT NULL,
    unit TEXT
);

CREATE TABLE IF NOT EXISTS alerts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    payload_id INTEGER NOT NULL REFERENCES raw_payloads(id) ON DELETE CASCADE,
    location TEXT NOT NULL,
    severity TEXT NOT NULL,
    metric TEXT NOT NULL,
    threshold_breached REAL NOT NULL,
    observed_value REAL NOT NULL,
    message TEXT,
    emitted_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_payloads_dataset ON raw_payloads(provider, dataset, fetched_at);
CREATE INDEX IF NOT EXISTS idx_records_payload ON records(payload_id);
CREATE INDEX IF NOT EXISTS idx_alerts_emitted ON alerts(emitted_at);
CREATE INDEX IF NOT EXISTS idx_alerts_location ON alerts(location);
`,
	},
}

func (a *Archive) migrate() error {
	if _, err := a.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := a.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if a.logger != nil {
			a.logger.Info("applying archive migration",
				zap.Int("version", m.Version),
				zap.String("description", m.Description))
		}

		tx, err := a.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)`,
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
