package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/osmfj/MapComplete/internal/core/domain"
)

// FetchLogRepo implements ports.FetchLogRepository.
type FetchLogRepo struct {
	db *DB
}

func NewFetchLogRepo(db *DB) *FetchLogRepo {
	return &FetchLogRepo{db: db}
}

func (r *FetchLogRepo) Insert(ctx context.Context, rec *domain.FetchRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO fetch_log (id, started_at, duration_ms, zoom_bucket, north, south, east, west,
			filter, layers, outcome, error, feature_count, retry_count, data_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.StartedAt, rec.Duration.Milliseconds(), rec.ZoomBucket,
		rec.Bounds.North, rec.Bounds.South, rec.Bounds.East, rec.Bounds.West,
		rec.Filter, rec.Layers, string(rec.Outcome), nilIfEmpty(rec.Error),
		rec.FeatureCount, rec.RetryCount, rec.DataTime)
	if err != nil {
		return fmt.Errorf("insert fetch record: %w", err)
	}
	return nil
}

func (r *FetchLogRepo) ListRecent(ctx context.Context, limit int) ([]domain.FetchRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id::text, started_at, duration_ms, zoom_bucket, north, south, east, west,
			filter, layers, outcome, COALESCE(error, ''), feature_count, retry_count, data_time
		FROM fetch_log
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.FetchRecord, error) {
		var rec domain.FetchRecord
		var durationMs int64
		var outcome string
		var dataTime *time.Time
		err := row.Scan(
			&rec.ID, &rec.StartedAt, &durationMs, &rec.ZoomBucket,
			&rec.Bounds.North, &rec.Bounds.South, &rec.Bounds.East, &rec.Bounds.West,
			&rec.Filter, &rec.Layers, &outcome, &rec.Error,
			&rec.FeatureCount, &rec.RetryCount, &dataTime,
		)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		rec.Outcome = domain.FetchOutcome(outcome)
		rec.DataTime = dataTime
		return rec, err
	})
}

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
