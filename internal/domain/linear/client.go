package linear

import "context"

// Client posts comments on Linear issues.
// Kept as an interface so the dispatcher does not depend on the HTTP transport.
type Client interface {
	CreateComment(ctx context.Context, issueID, body string) error
}
