// internal/domain/tracking/repository.go
package tracking

import (
	"context"
	"time"
)

// Repository is the durable timing store. Every mutation is a single-row
// conditional write; callers never hold locks across calls.
type Repository interface {
	// UpsertEntered starts a dwell period at `at` and clears any reminder mark,
	// only if `at` is strictly newer than the stored last event.
	UpsertEntered(ctx context.Context, itemID string, at time.Time) (bool, error)
	// Clear ends the dwell period under the same recency guard. Unknown items
	// get a tombstone row so older entries delivered later stay ignored.
	Clear(ctx context.Context, itemID string, at time.Time) (bool, error)
	// FindDue lists items watching for at least threshold at now with no reminder yet,
	// oldest first, at most limit rows (limit <= 0 means no limit).
	FindDue(ctx context.Context, threshold time.Duration, now time.Time, limit int) ([]*Item, error)
	// ClaimAndMark sets reminded_at = now only if it is NULL and the dwell period
	// is still the one that started at enteredAt.
	ClaimAndMark(ctx context.Context, itemID string, enteredAt, now time.Time) (bool, error)

	Get(ctx context.Context, itemID string) (*Item, error)
	ListWatching(ctx context.Context) ([]*Item, error)
	// PruneIdle deletes non-watching rows whose last event is older than before.
	PruneIdle(ctx context.Context, before time.Time) (int64, error)
	Ping(ctx context.Context) error
}
