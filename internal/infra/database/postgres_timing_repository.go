// internal/infra/database/postgres_timing_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"linear_reminder_bot/internal/domain/tracking"
)

type PostgresTimingRepository struct {
	db *sql.DB
}

func NewPostgresTimingRepository(db *sql.DB) *PostgresTimingRepository {
	return &PostgresTimingRepository{db: db}
}

const pgItemColumns = `item_id, entered_watch_at, reminded_at, last_event_at`

func (r *PostgresTimingRepository) UpsertEntered(ctx context.Context, itemID string, at time.Time) (bool, error) {
	query := `INSERT INTO tracked_items (item_id, entered_watch_at, reminded_at, last_event_at)
               VALUES ($1, $2, NULL, $2)
               ON CONFLICT (item_id) DO UPDATE
               SET entered_watch_at = EXCLUDED.entered_watch_at,
                   reminded_at = NULL,
                   last_event_at = EXCLUDED.last_event_at
               WHERE tracked_items.last_event_at < EXCLUDED.last_event_at`
	res, err := r.db.ExecContext(ctx, query, itemID, tracking.Normalize(at))
	if err != nil {
		return false, fmt.Errorf("error upserting entered item %s: %w", itemID, err)
	}
	return affectedOne(res)
}

func (r *PostgresTimingRepository) Clear(ctx context.Context, itemID string, at time.Time) (bool, error) {
	query := `INSERT INTO tracked_items (item_id, entered_watch_at, reminded_at, last_event_at)
               VALUES ($1, NULL, NULL, $2)
               ON CONFLICT (item_id) DO UPDATE
               SET entered_watch_at = NULL,
                   reminded_at = NULL,
                   last_event_at = EXCLUDED.last_event_at
               WHERE tracked_items.last_event_at < EXCLUDED.last_event_at`
	res, err := r.db.ExecContext(ctx, query, itemID, tracking.Normalize(at))
	if err != nil {
		return false, fmt.Errorf("error clearing item %s: %w", itemID, err)
	}
	return affectedOne(res)
}

func (r *PostgresTimingRepository) FindDue(ctx context.Context, threshold time.Duration, now time.Time, limit int) ([]*tracking.Item, error) {
	query := `SELECT ` + pgItemColumns + `
               FROM tracked_items
               WHERE entered_watch_at IS NOT NULL
                 AND reminded_at IS NULL
                 AND entered_watch_at <= $1
               ORDER BY entered_watch_at ASC
               LIMIT $2` // LIMIT NULL means no limit
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}
	cutoff := tracking.Normalize(now.Add(-threshold))
	rows, err := r.db.QueryContext(ctx, query, cutoff, lim)
	if err != nil {
		return nil, fmt.Errorf("error querying due items: %w", err)
	}
	defer rows.Close()
	return scanPostgresItems(rows)
}

func (r *PostgresTimingRepository) ClaimAndMark(ctx context.Context, itemID string, enteredAt, now time.Time) (bool, error) {
	query := `UPDATE tracked_items
               SET reminded_at = $3
               WHERE item_id = $1
                 AND reminded_at IS NULL
                 AND entered_watch_at = $2
                 AND entered_watch_at <= $3`
	res, err := r.db.ExecContext(ctx, query, itemID, tracking.Normalize(enteredAt), tracking.Normalize(now))
	if err != nil {
		return false, fmt.Errorf("error claiming item %s: %w", itemID, err)
	}
	return affectedOne(res)
}

func (r *PostgresTimingRepository) Get(ctx context.Context, itemID string) (*tracking.Item, error) {
	query := `SELECT ` + pgItemColumns + ` FROM tracked_items WHERE item_id = $1`
	item := tracking.Item{}
	err := r.db.QueryRowContext(ctx, query, itemID).Scan(&item.ItemID, &item.EnteredWatchAt, &item.RemindedAt, &item.LastEventAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tracking.ErrItemNotFound
		}
		return nil, fmt.Errorf("error getting item %s: %w", itemID, err)
	}
	normalizeItem(&item)
	return &item, nil
}

func (r *PostgresTimingRepository) ListWatching(ctx context.Context) ([]*tracking.Item, error) {
	query := `SELECT ` + pgItemColumns + `
               FROM tracked_items
               WHERE entered_watch_at IS NOT NULL
               ORDER BY entered_watch_at ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying watching items: %w", err)
	}
	defer rows.Close()
	return scanPostgresItems(rows)
}

func (r *PostgresTimingRepository) PruneIdle(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM tracked_items WHERE entered_watch_at IS NULL AND last_event_at < $1`,
		tracking.Normalize(before))
	if err != nil {
		return 0, fmt.Errorf("error pruning idle items: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresTimingRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func scanPostgresItems(rows *sql.Rows) ([]*tracking.Item, error) {
	items := make([]*tracking.Item, 0)
	for rows.Next() {
		item := tracking.Item{}
		if err := rows.Scan(&item.ItemID, &item.EnteredWatchAt, &item.RemindedAt, &item.LastEventAt); err != nil {
			return nil, fmt.Errorf("error scanning item row: %w", err)
		}
		normalizeItem(&item)
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}
	return items, nil
}

// normalizeItem drops the session time zone lib/pq attaches to timestamps.
func normalizeItem(item *tracking.Item) {
	item.LastEventAt = tracking.Normalize(item.LastEventAt)
	if item.EnteredWatchAt.Valid {
		item.EnteredWatchAt.Time = tracking.Normalize(item.EnteredWatchAt.Time)
	}
	if item.RemindedAt.Valid {
		item.RemindedAt.Time = tracking.Normalize(item.RemindedAt.Time)
	}
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading affected rows: %w", err)
	}
	return n == 1, nil
}
