// internal/domain/tracking/item.go
package tracking

import (
	"database/sql"
	"errors"
	"time"
)

var ErrItemNotFound = errors.New("tracked item not found")

// Item is the timing record kept for one external work item.
// Corresponds to the 'tracked_items' table.
type Item struct {
	ItemID         string       // External identifier, e.g. a Linear issue UUID
	EnteredWatchAt sql.NullTime // Most recent entry into the watched status; NULL when not watching
	RemindedAt     sql.NullTime // Reminder sent for the current dwell period; NULL until claimed
	LastEventAt    time.Time    // Timestamp of the newest applied status-change event
}

// Watching reports whether the item is currently in the watched status.
func (i *Item) Watching() bool {
	return i.EnteredWatchAt.Valid
}

// Reminded reports whether the current dwell period was already claimed.
func (i *Item) Reminded() bool {
	return i.RemindedAt.Valid
}

// DwellAge is how long the item has been in the watched status at now.
// Zero when the item is not watching.
func (i *Item) DwellAge(now time.Time) time.Duration {
	if !i.EnteredWatchAt.Valid {
		return 0
	}
	return now.Sub(i.EnteredWatchAt.Time)
}

// Normalize truncates t to the precision every store keeps (microseconds, UTC),
// so guard comparisons behave the same regardless of backend.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
