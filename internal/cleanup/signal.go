package cleanup

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dsmolkov/vaultsweep/internal/common"
	"github.com/dsmolkov/vaultsweep/internal/logging"
)

// SignalController traps the terminating and interactive-interrupt
// signals and routes them into the cleanup registry with the dedicated
// trapped-signal exit code, so post-mortems can tell "operation failed"
// from "we were interrupted".
type SignalController struct {
	registry *Registry
	cancel   context.CancelFunc
	log      logging.Logger
}

func NewSignalController(registry *Registry, cancel context.CancelFunc, log logging.Logger) *SignalController {
	return &SignalController{registry: registry, cancel: cancel, log: log}
}

// Install registers the handler set. On the first trapped signal the
// pipeline context is cancelled (stopping in-flight transfers this
// process started, and only those) and the registry runs with the
// trapped-signal code.
func (s *SignalController) Install(ctx context.Context) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGABRT,
		syscall.SIGTERM,
	)

	go func() {
		sig := <-sigs
		s.log.Warn(ctx, "trapped signal", "signal", sig.String())
		if s.cancel != nil {
			s.cancel()
		}
		s.registry.Run(ctx, common.ExitTrappedSignal)
	}()
}
