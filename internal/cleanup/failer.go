package cleanup

import (
	"context"

	"github.com/dsmolkov/vaultsweep/internal/common"
	"github.com/dsmolkov/vaultsweep/internal/logging"
)

// Failer is the escalating reporting path used outside cleanup
// callbacks: it logs the failure and leaves the process through the
// registry with the error's exit code.
type Failer struct {
	log      logging.Logger
	registry *Registry
}

func NewFailer(log logging.Logger, registry *Registry) *Failer {
	return &Failer{log: log, registry: registry}
}

// Fail reports err and terminates via the cleanup registry. It does
// not return.
func (f *Failer) Fail(ctx context.Context, step string, err error) {
	code := common.CodeFor(err)
	f.log.Error(ctx, "escalating failure", "step", step, "error", err, "code", int(code))
	f.registry.Run(ctx, code)
}
