// Package cleanup provides the process-wide registry of cleanup
// callbacks and the signal controller that routes termination signals
// into it. The registry is the single exit door of the process: normal
// completion, error escalation, and trapped signals all leave through
// Run.
//
// Callbacks receive a Reporter, a log-only capability. The exiting
// reporting path (Failer) is a different type that callbacks never see,
// so a cleanup step cannot recurse into Run while Run is executing it.
package cleanup

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/dsmolkov/vaultsweep/internal/common"
	"github.com/dsmolkov/vaultsweep/internal/logging"
)

// Reporter is the only error-reporting capability available inside
// cleanup callbacks. It logs; it can never trigger cleanup or exit.
type Reporter interface {
	Report(ctx context.Context, step string, err error)
}

type logReporter struct {
	log logging.Logger
}

func (r *logReporter) Report(ctx context.Context, step string, err error) {
	r.log.Error(ctx, "cleanup step failed", "step", step, "error", err)
}

// Callback releases one resource class. It must be idempotent and safe
// to call even if the resource was never acquired.
type Callback func(ctx context.Context, rep Reporter)

// Registry is an ordered list of named cleanup callbacks, consumed
// exactly once per process exit.
type Registry struct {
	log  logging.Logger
	exit func(int)

	mu      sync.Mutex
	once    sync.Once
	entries []entry
}

type entry struct {
	name string
	fn   Callback
}

// NewRegistry builds a Registry. exit is called with the final code
// after all callbacks ran; pass nil for os.Exit.
func NewRegistry(log logging.Logger, exit func(int)) *Registry {
	if exit == nil {
		exit = os.Exit
	}
	return &Registry{log: log, exit: exit}
}

// Register appends a named cleanup callback. Callbacks run in
// registration order.
func (r *Registry) Register(name string, fn Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{name: name, fn: fn})
}

// Run invokes every registered callback in order, logging but never
// aborting on individual failure, then terminates the process with
// code. The callback sequence runs at most once even if Run is reached
// from several paths; every caller still exits.
func (r *Registry) Run(ctx context.Context, code common.ExitCode) {
	r.once.Do(func() {
		r.mu.Lock()
		entries := make([]entry, len(r.entries))
		copy(entries, r.entries)
		r.mu.Unlock()

		rep := &logReporter{log: r.log}
		for _, e := range entries {
			r.log.Debug(ctx, "running cleanup", "step", e.name)
			r.invoke(ctx, e, rep)
		}
		r.log.Info(ctx, "exiting", "code", int(code))
	})
	r.exit(int(code))
}

func (r *Registry) invoke(ctx context.Context, e entry, rep Reporter) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error(ctx, "cleanup step panicked", "step", e.name, "panic", fmt.Sprint(p))
		}
	}()
	e.fn(ctx, rep)
}
