// Package volume owns the lifecycle of encrypted block containers: the
// unlock → integrity-check → mount sequence on the way up, and the
// strictly ordered unmount → lock sequence on the way down. Close is
// idempotent and tolerates every partially-completed Open, because it
// is always invoked during cleanup regardless of how far setup got.
package volume

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dsmolkov/vaultsweep/internal/common"
	"github.com/dsmolkov/vaultsweep/internal/execx"
	"github.com/dsmolkov/vaultsweep/internal/keyfile"
	"github.com/dsmolkov/vaultsweep/internal/logging"
)

// Handle represents one crypto-container mapping: an encrypted block
// device unlocked under Name and mounted at MountPoint. A Handle is
// owned exclusively by the invocation that created it and must be
// closed exactly once, on the success path or via the cleanup registry.
type Handle struct {
	Name       string
	Device     string // the encrypted block device
	Mapper     string // the cleartext mapping, /dev/mapper/<name>
	MountPoint string
}

// Guard opens and closes encrypted volumes.
type Guard struct {
	runner    execx.Runner
	mounts    MountTable
	mountRoot string
	prompt    keyfile.PassphraseFunc
	log       logging.Logger
}

func NewGuard(runner execx.Runner, mounts MountTable, mountRoot string, prompt keyfile.PassphraseFunc, log logging.Logger) *Guard {
	return &Guard{runner: runner, mounts: mounts, mountRoot: mountRoot, prompt: prompt, log: log}
}

// Open unlocks device under name and mounts the mapping at a
// deterministic path derived from name. The integrity check is
// advisory: a failing fsck is reported and the sequence continues. A
// mount failure is terminal: the container is locked again and an
// error returned, so no handle can exist whose mapping is open but
// unusable.
func (g *Guard) Open(ctx context.Context, device, keyFile, name string) (*Handle, error) {
	if device == "" || keyFile == "" || name == "" {
		return nil, fmt.Errorf("open volume: %w: device, key file and name are all required", common.ErrMissingInput)
	}

	key, err := keyfile.Load(keyFile, g.prompt)
	if err != nil {
		return nil, fmt.Errorf("open volume %s: %w", name, err)
	}
	defer keyfile.Wipe(key)

	if err := g.runner.RunInput(ctx, key, "cryptsetup", "open", "--key-file=-", device, name); err != nil {
		return nil, fmt.Errorf("open volume %s: %w", name, err)
	}

	h := &Handle{
		Name:       name,
		Device:     device,
		Mapper:     filepath.Join("/dev/mapper", name),
		MountPoint: filepath.Join(g.mountRoot, name),
	}

	if err := g.runner.Run(ctx, "fsck", "-a", h.Mapper); err != nil {
		g.log.Warn(ctx, "integrity check reported problems", "volume", name, "error", err)
	}

	if err := os.MkdirAll(h.MountPoint, 0o700); err != nil {
		_ = g.Close(ctx, h)
		return nil, fmt.Errorf("open volume %s: %w", name, err)
	}
	if err := g.runner.Run(ctx, "mount", h.Mapper, h.MountPoint); err != nil {
		_ = g.Close(ctx, h)
		return nil, fmt.Errorf("open volume %s: %w", name, err)
	}

	g.log.Info(ctx, "volume opened", "volume", name, "mountpoint", h.MountPoint)
	return h, nil
}

// Close releases whatever part of the handle is still held: unmount if
// currently mounted, then lock the container if the mapping is still
// open. The unmount-then-lock order is mandatory; locking a mapping
// that is still mounted is never attempted. "Was not mounted" and "was
// not open" conditions are swallowed after confirming absence.
func (g *Guard) Close(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}

	var errs []error

	mounted, err := g.mounts.Mounted(h.MountPoint)
	if err != nil {
		// Mount point may not exist at all; treat as unmounted.
		mounted = false
	}
	if mounted {
		if err := g.runner.Run(ctx, "umount", h.MountPoint); err != nil {
			errs = append(errs, fmt.Errorf("unmount %s: %w", h.MountPoint, err))
			// An unmounted mapping is a precondition for locking;
			// do not try to close while possibly still mounted.
			return errors.Join(errs...)
		}
	}

	// Probe the mapping first so closing an already-locked container
	// stays silent.
	if err := g.runner.Run(ctx, "cryptsetup", "status", h.Name); err == nil {
		if err := g.runner.Run(ctx, "cryptsetup", "close", h.Name); err != nil {
			errs = append(errs, fmt.Errorf("lock %s: %w", h.Name, err))
		}
	}

	if len(errs) == 0 {
		g.log.Info(ctx, "volume closed", "volume", h.Name)
	}
	return errors.Join(errs...)
}

// Unmount detaches the mapping mounted at mountPoint without locking
// any container. The archive pipeline uses it for mappings it does not
// own end to end.
func (g *Guard) Unmount(ctx context.Context, mountPoint string) error {
	return g.runner.Run(ctx, "umount", mountPoint)
}
