package app

import "errors"

var (
	// ErrBadPayload marks an event missing its item id, status or timestamp.
	ErrBadPayload = errors.New("bad payload")

	// Custom application-level errors for admin service
	ErrAdminNotAuthorized = errors.New("performing user is not authorized as an admin")
	ErrNotReminded        = errors.New("item has no reminder in its current dwell period")
)
