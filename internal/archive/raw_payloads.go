package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/huanchen1107/TawinCWA/internal/models"
	"github.com/huanchen1107/TawinCWA/internal/observability"
)

// StorePayload archives a raw upstream payload, gzip-compressed and
// deduplicated by content hash. When an identical payload was already stored
// the existing row's id is returned with inserted=false.
func (a *Archive) StorePayload(ctx context.Context, provider models.Provider, dataset string, payload []byte) (id int64, inserted bool, err error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return 0, false, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, false, fmt.Errorf("close gzip: %w", err)
	}

	hash := sha256.Sum256(payload)
	hashHex := hex.EncodeToString(hash[:])
	fetchedAt := a.clock.Now().UTC().Format(time.RFC3339)

	res, err := a.db.ExecContext(ctx, `
		INSERT INTO raw_payloads (provider, dataset, fetched_at, payload_compressed, payload_hash)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(payload_hash) DO NOTHING
	`, string(provider), dataset, fetchedAt, buf.Bytes(), hashHex)
	if err != nil {
		observability.ArchiveWritesTotal.WithLabelValues("payload", "error").Inc()
		return 0, false, fmt.Errorf("insert raw payload: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Duplicate content: resolve the existing row.
		var existing int64
		if err := a.db.QueryRowContext(ctx,
			`SELECT id FROM raw_payloads WHERE payload_hash = ?`, hashHex,
		).Scan(&existing); err != nil {
			return 0, false, fmt.Errorf("lookup duplicate payload: %w", err)
		}
		observability.ArchiveWritesTotal.WithLabelValues("payload", "duplicate").Inc()
		return existing, false, nil
	}

	id, err = res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	observability.ArchiveWritesTotal.WithLabelValues("payload", "ok").Inc()
	return id, true, nil
}

// Payload retrieves and decompresses a stored payload by id.
func (a *Archive) Payload(ctx context.Context, id int64) ([]byte, error) {
	var compressed []byte
	err := a.db.QueryRowContext(ctx,
		`SELECT payload_compressed FROM raw_payloads WHERE id = ?`, id,
	).Scan(&compressed)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payload %d not found", id)
	}
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("open gzip reader: %w", err)
	}
	defer gz.Close()
	return io.ReadAll(gz)
}
