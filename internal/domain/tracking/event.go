// internal/domain/tracking/event.go
package tracking

import "time"

// StatusChange is a validated status-change notification for a single item.
type StatusChange struct {
	ItemID string
	// PreviousStatus is the status the item left. nil when the sender did not
	// say; PreviousChanged then tells whether the status moved in this event.
	PreviousStatus  *string
	PreviousChanged bool
	NewStatus       string
	// Removed marks the item as deleted upstream; it leaves any status.
	Removed    bool
	OccurredAt time.Time
}

// Outcome describes what an event did to the timing state.
type Outcome string

const (
	OutcomeEntered   Outcome = "ENTERED"   // dwell timer (re)started
	OutcomeCleared   Outcome = "CLEARED"   // item left the watched status
	OutcomeStale     Outcome = "STALE"     // older than or equal to stored state; ignored
	OutcomeUnchanged Outcome = "UNCHANGED" // still in watched status, timer keeps running
	OutcomeIgnored   Outcome = "IGNORED"   // unrelated to the watched status
)
