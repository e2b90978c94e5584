package operator

import "context"

// Notifier delivers plain-text alerts to whoever operates the service.
// Delivery is best effort; callers log the returned error and move on.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Nop discards every alert. Used when no operator channel is configured.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }
