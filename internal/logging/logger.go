// Package logging defines the structured-logging interface used across
// VaultSweep. Every component receives a Logger explicitly; there is no
// package-level logger.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are key–value pairs, e.g.:
//
//	log.Info(ctx, "archiving", "cleartext", dir, "remote", remote)
type Logger interface {
	// Debug logs fine-grained diagnostics (state transitions, retries).
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs unusual but non-fatal conditions (advisory check
	// failures, tolerated cleanup errors).
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given
	// key–value pairs.
	With(args ...any) Logger
}
