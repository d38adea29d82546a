package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/slam.viewer/internal/exporter"
)

// InsertExport records a completed export. It implements exporter.Journal.
func (db *DB) InsertExport(ctx context.Context, rec exporter.ExportRecord) error {
	var objectURL interface{}
	if rec.ObjectURL != "" {
		objectURL = rec.ObjectURL
	}
	return retryOnBusy(func() error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO exports (
				export_id, path, reason, keyframes, points, bytes,
				started_at, duration_ns, object_url
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Path, rec.Reason, rec.KeyFrames, rec.Points, rec.Bytes,
			rec.StartedAt.UnixNano(), int64(rec.Duration), objectURL,
		)
		if err != nil {
			return fmt.Errorf("insert export %s: %w", rec.ID, err)
		}
		return nil
	})
}

// ListExports returns up to limit exports, newest first.
func (db *DB) ListExports(ctx context.Context, limit int) ([]exporter.ExportRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT export_id, path, reason, keyframes, points, bytes,
		       started_at, duration_ns, object_url
		FROM exports
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query exports: %w", err)
	}
	defer rows.Close()

	var out []exporter.ExportRecord
	for rows.Next() {
		var (
			rec        exporter.ExportRecord
			startedAt  int64
			durationNS int64
			objectURL  sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Path, &rec.Reason, &rec.KeyFrames, &rec.Points, &rec.Bytes,
			&startedAt, &durationNS, &objectURL); err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		rec.StartedAt = time.Unix(0, startedAt).UTC()
		rec.Duration = time.Duration(durationNS)
		rec.ObjectURL = objectURL.String
		out = append(out, rec)
	}
	return out, rows.Err()
}
