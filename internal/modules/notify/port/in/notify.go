package in

import "context"

// Notifier is the surface other modules use to raise user-visible,
// non-blocking notifications.
type Notifier interface {
	Info(ctx context.Context, title, body string)
	Success(ctx context.Context, title, body string)
	Error(ctx context.Context, title, body string)
}
