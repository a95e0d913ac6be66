// Package app wires the maintenance run together: configuration,
// logging, the single-instance lock, signal handling, volume lifecycle,
// the archive pipeline, and the cleanup registry every exit path goes
// through.
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/dsmolkov/vaultsweep/internal/archive"
	"github.com/dsmolkov/vaultsweep/internal/cleanup"
	"github.com/dsmolkov/vaultsweep/internal/common"
	"github.com/dsmolkov/vaultsweep/internal/config"
	"github.com/dsmolkov/vaultsweep/internal/execx"
	"github.com/dsmolkov/vaultsweep/internal/journal"
	"github.com/dsmolkov/vaultsweep/internal/keyfile"
	"github.com/dsmolkov/vaultsweep/internal/lockfile"
	"github.com/dsmolkov/vaultsweep/internal/logging"
	"github.com/dsmolkov/vaultsweep/internal/pathsafe"
	"github.com/dsmolkov/vaultsweep/internal/scrub"
	"github.com/dsmolkov/vaultsweep/internal/volume"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	registry *cleanup.Registry
	failer   *cleanup.Failer
}

func NewApp(c *config.Config) *App {
	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	registry := cleanup.NewRegistry(logger, nil)
	failer := cleanup.NewFailer(logger, registry)

	return &App{config: c, logger: logger, registry: registry, failer: failer}
}

// Run executes one full maintenance invocation. It does not return:
// every path leaves through the cleanup registry.
func (app *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := app.logger
	log.Info(ctx, "starting maintenance run")

	cleanup.NewSignalController(app.registry, cancel, log).Install(ctx)

	lock, err := lockfile.Acquire(app.config.LockFile())
	if err != nil {
		app.failer.Fail(ctx, "single-instance lock", err)
	}
	app.registry.Register("release lock", func(ctx context.Context, rep cleanup.Reporter) {
		if err := lock.Release(); err != nil {
			rep.Report(ctx, "release lock", err)
		}
	})

	runner := execx.ExecRunner{}
	mounts := volume.NewMountTable()
	guard := volume.NewGuard(runner, mounts, app.config.MountRoot,
		keyfile.TerminalPrompt("volume key passphrase"), log)

	for _, spec := range app.config.Volumes {
		h, err := guard.Open(ctx, spec.Device, spec.KeyFile, spec.Name)
		if err != nil {
			app.failer.Fail(ctx, "open volume "+spec.Name, err)
		}
		app.registry.Register("close volume "+spec.Name, func(ctx context.Context, rep cleanup.Reporter) {
			if err := guard.Close(ctx, h); err != nil {
				rep.Report(ctx, "close volume "+h.Name, err)
			}
		})
	}

	jrnl, err := journal.Open(ctx, app.config.JournalDSN())
	if err != nil {
		// The journal is history, not safety; run without it.
		log.Warn(ctx, "run journal unavailable", "error", err)
		jrnl = nil
	} else {
		app.registry.Register("close journal", func(ctx context.Context, rep cleanup.Reporter) {
			if err := jrnl.Close(); err != nil {
				rep.Report(ctx, "close journal", err)
			}
		})
	}

	classifier := pathsafe.New(app.config.ProtectedRoots(), app.config.AllowedRoots())
	scrubber := scrub.New(scrub.Patterns{
		SecretFolders:    app.config.SecretFolderNames,
		SensitiveFolders: app.config.SensitiveFolderNames,
		SecretFileGlobs:  app.config.SecretFileGlobs,
	}, classifier, log)

	deps := archive.Deps{
		Scrubber: scrubber,
		Mounts:   mounts,
		Unmount:  guard,
		Transfer: archive.NewS3Transferrer(app.config, log),
		Log:      log,
	}
	if jrnl != nil {
		deps.Journal = jrnl
	}
	pipeline := archive.New(app.config, deps)

	for _, set := range app.config.ArchiveSets {
		if err := pipeline.Run(ctx, set.CleartextDir, set.EncryptedDir, set.Remote); err != nil {
			if errors.Is(err, common.ErrNetwork) {
				// The archive itself is intact locally; move on.
				log.Error(ctx, "transfer failed, continuing", "remote", set.Remote, "error", err)
				continue
			}
			app.failer.Fail(ctx, "archive "+set.CleartextDir, err)
		}
	}

	for _, set := range app.config.MonthlySets {
		if err := pipeline.RunMonthly(ctx, set.CleartextDir, set.EncryptedDir, set.Remote); err != nil {
			if errors.Is(err, common.ErrNetwork) {
				log.Error(ctx, "transfer failed, continuing", "remote", set.Remote, "error", err)
				continue
			}
			app.failer.Fail(ctx, "monthly archive "+set.CleartextDir, err)
		}
	}

	log.Info(ctx, "maintenance run complete")
	app.registry.Run(ctx, common.ExitSuccess)
}
