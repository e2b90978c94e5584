// internal/infra/database/sqlite_timing_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"linear_reminder_bot/internal/domain/tracking"
)

// SQLiteTimingRepository stores timestamps as unix microseconds so that
// ordering and equality in SQL match tracking.Normalize exactly.
type SQLiteTimingRepository struct {
	db *sql.DB
}

func NewSQLiteTimingRepository(db *sql.DB) *SQLiteTimingRepository {
	return &SQLiteTimingRepository{db: db}
}

const sqliteItemColumns = `item_id, entered_watch_at, reminded_at, last_event_at`

func micros(t time.Time) int64 {
	return tracking.Normalize(t).UnixMicro()
}

func (r *SQLiteTimingRepository) UpsertEntered(ctx context.Context, itemID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO tracked_items (item_id, entered_watch_at, reminded_at, last_event_at)
		 VALUES (?1, ?2, NULL, ?2)
		 ON CONFLICT (item_id) DO UPDATE
		 SET entered_watch_at = excluded.entered_watch_at,
		     reminded_at = NULL,
		     last_event_at = excluded.last_event_at
		 WHERE tracked_items.last_event_at < excluded.last_event_at`,
		itemID, micros(at))
	if err != nil {
		return false, fmt.Errorf("error upserting entered item %s: %w", itemID, err)
	}
	return affectedOne(res)
}

func (r *SQLiteTimingRepository) Clear(ctx context.Context, itemID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO tracked_items (item_id, entered_watch_at, reminded_at, last_event_at)
		 VALUES (?1, NULL, NULL, ?2)
		 ON CONFLICT (item_id) DO UPDATE
		 SET entered_watch_at = NULL,
		     reminded_at = NULL,
		     last_event_at = excluded.last_event_at
		 WHERE tracked_items.last_event_at < excluded.last_event_at`,
		itemID, micros(at))
	if err != nil {
		return false, fmt.Errorf("error clearing item %s: %w", itemID, err)
	}
	return affectedOne(res)
}

func (r *SQLiteTimingRepository) FindDue(ctx context.Context, threshold time.Duration, now time.Time, limit int) ([]*tracking.Item, error) {
	if limit <= 0 {
		limit = -1 // no limit in SQLite
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sqliteItemColumns+`
		 FROM tracked_items
		 WHERE entered_watch_at IS NOT NULL
		   AND reminded_at IS NULL
		   AND entered_watch_at <= ?
		 ORDER BY entered_watch_at ASC
		 LIMIT ?`,
		micros(now.Add(-threshold)), limit)
	if err != nil {
		return nil, fmt.Errorf("error querying due items: %w", err)
	}
	defer rows.Close()
	return scanSQLiteItems(rows)
}

func (r *SQLiteTimingRepository) ClaimAndMark(ctx context.Context, itemID string, enteredAt, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tracked_items
		 SET reminded_at = ?3
		 WHERE item_id = ?1
		   AND reminded_at IS NULL
		   AND entered_watch_at = ?2
		   AND entered_watch_at <= ?3`,
		itemID, micros(enteredAt), micros(now))
	if err != nil {
		return false, fmt.Errorf("error claiming item %s: %w", itemID, err)
	}
	return affectedOne(res)
}

func (r *SQLiteTimingRepository) Get(ctx context.Context, itemID string) (*tracking.Item, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteItemColumns+` FROM tracked_items WHERE item_id = ?`, itemID)
	item, err := scanSQLiteItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tracking.ErrItemNotFound
		}
		return nil, fmt.Errorf("error getting item %s: %w", itemID, err)
	}
	return item, nil
}

func (r *SQLiteTimingRepository) ListWatching(ctx context.Context) ([]*tracking.Item, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sqliteItemColumns+`
		 FROM tracked_items
		 WHERE entered_watch_at IS NOT NULL
		 ORDER BY entered_watch_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("error querying watching items: %w", err)
	}
	defer rows.Close()
	return scanSQLiteItems(rows)
}

func (r *SQLiteTimingRepository) PruneIdle(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM tracked_items WHERE entered_watch_at IS NULL AND last_event_at < ?`,
		micros(before))
	if err != nil {
		return 0, fmt.Errorf("error pruning idle items: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteTimingRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteItem(row rowScanner) (*tracking.Item, error) {
	var (
		item              tracking.Item
		entered, reminded sql.NullInt64
		lastEvent         int64
	)
	if err := row.Scan(&item.ItemID, &entered, &reminded, &lastEvent); err != nil {
		return nil, err
	}
	item.LastEventAt = time.UnixMicro(lastEvent).UTC()
	if entered.Valid {
		item.EnteredWatchAt = sql.NullTime{Time: time.UnixMicro(entered.Int64).UTC(), Valid: true}
	}
	if reminded.Valid {
		item.RemindedAt = sql.NullTime{Time: time.UnixMicro(reminded.Int64).UTC(), Valid: true}
	}
	return &item, nil
}

func scanSQLiteItems(rows *sql.Rows) ([]*tracking.Item, error) {
	items := make([]*tracking.Item, 0)
	for rows.Next() {
		item, err := scanSQLiteItem(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}
	return items, nil
}
