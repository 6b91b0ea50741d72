// Package logging is the logger every fieldline component receives at
// construction. The client and the devserver build one with New from their
// log level and format settings, and tests pass Nop.
package logging

import "context"

// Logger writes leveled records with key/value attributes. Components tag
// their records once with With("module", name) and pass the request or run
// context on every call:
//
//	q.logger.Info(ctx, "action queued", "id", a.ID, "kind", kind)
type Logger interface {
	// Debug is for per-attempt detail such as sync retries and poll ticks.
	Debug(ctx context.Context, msg string, args ...any)

	Info(ctx context.Context, msg string, args ...any)

	// Warn marks a degraded path the component recovers from by itself.
	Warn(ctx context.Context, msg string, args ...any)

	Error(ctx context.Context, msg string, args ...any)

	With(args ...any) Logger
}
