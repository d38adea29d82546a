package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/slam.viewer/internal/graph"
)

// InsertStatsSample stores one stats sample.
func (db *DB) InsertStatsSample(ctx context.Context, s graph.StatsSample) error {
	return retryOnBusy(func() error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO stats_samples (
				sampled_at, total_points, visible_points, keyframes,
				constraints, resolved_constraints
			) VALUES (?, ?, ?, ?, ?, ?)`,
			s.Time.UnixNano(), s.TotalPoints, s.VisiblePoints, s.KeyFrames,
			s.Constraints, s.ResolvedConstraints,
		)
		if err != nil {
			return fmt.Errorf("insert stats sample: %w", err)
		}
		return nil
	})
}

// RecentStatsSamples returns the newest limit samples in chronological
// order.
func (db *DB) RecentStatsSamples(ctx context.Context, limit int) ([]graph.StatsSample, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.QueryContext(ctx, `
		SELECT sampled_at, total_points, visible_points, keyframes,
		       constraints, resolved_constraints
		FROM (
			SELECT * FROM stats_samples
			ORDER BY sampled_at DESC, sample_id DESC
			LIMIT ?
		)
		ORDER BY sampled_at ASC, sample_id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("query stats samples: %w", err)
	}
	defer rows.Close()

	var out []graph.StatsSample
	for rows.Next() {
		var (
			s  graph.StatsSample
			ts int64
		)
		if err := rows.Scan(&ts, &s.TotalPoints, &s.VisiblePoints, &s.KeyFrames,
			&s.Constraints, &s.ResolvedConstraints); err != nil {
			return nil, fmt.Errorf("scan stats sample: %w", err)
		}
		s.Time = time.Unix(0, ts).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// PruneStatsSamples deletes samples older than cutoff and returns how many
// were removed.
func (db *DB) PruneStatsSamples(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM stats_samples WHERE sampled_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune stats samples: %w", err)
	}
	return res.RowsAffected()
}
