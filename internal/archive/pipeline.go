// Package archive orchestrates one encrypted-archive run: verify the
// remote and the mount, scrub the cleartext view, record a manifest,
// unmount, wait for the mapping to drain, then sync the ciphertext to
// object storage. Stages form a strict total order; no stage starts
// before the previous one reported success.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/dsmolkov/vaultsweep/internal/common"
	"github.com/dsmolkov/vaultsweep/internal/config"
	"github.com/dsmolkov/vaultsweep/internal/logging"
	"github.com/dsmolkov/vaultsweep/internal/volume"
)

// State is the pipeline's position in one archive run.
type State int

const (
	StateIdle State = iota
	StateVerifying
	StateScrubbing
	StateUnmounting
	StateWaitingDrain
	StateTransferring
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateVerifying:
		return "verifying"
	case StateScrubbing:
		return "scrubbing"
	case StateUnmounting:
		return "unmounting"
	case StateWaitingDrain:
		return "waiting-drain"
	case StateTransferring:
		return "transferring"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Scrubber removes secret and sensitive entries from a staging tree.
type Scrubber interface {
	Scrub(ctx context.Context, root string) error
}

// Unmounter detaches a mounted mapping.
type Unmounter interface {
	Unmount(ctx context.Context, mountPoint string) error
}

// RunJournal persists the history of archive runs. The pipeline
// tolerates a nil journal.
type RunJournal interface {
	StartRun(ctx context.Context, cleartextDir, remote string) (string, error)
	FinishRun(ctx context.Context, id string, code common.ExitCode, manifestPath string) error
}

// Deps are the pipeline's collaborators.
type Deps struct {
	Scrubber Scrubber
	Mounts   volume.MountTable
	Unmount  Unmounter
	Transfer Transferrer
	Journal  RunJournal
	Clock    clock.Clock
	Log      logging.Logger
}

// Pipeline runs archive sets. One Pipeline serves many sequential
// runs; runs are never concurrent.
type Pipeline struct {
	cfg  *config.Config
	deps Deps
}

func New(cfg *config.Config, deps Deps) *Pipeline {
	if deps.Clock == nil {
		deps.Clock = clock.WallClock
	}
	return &Pipeline{cfg: cfg, deps: deps}
}

// Run archives the mapping whose cleartext view is mounted at
// cleartextDir and whose ciphertext lives in encryptedDir, to the named
// remote. Escalating-class errors abort the run before any destructive
// stage; a transfer failure is returned but never undoes the unmount.
func (p *Pipeline) Run(ctx context.Context, cleartextDir, encryptedDir, remoteName string) error {
	return p.run(ctx, cleartextDir, encryptedDir, remoteName, remoteName)
}

// RunMonthly is the periodic variant: the same pipeline parameterized
// by the current year-month subdirectory, a no-op when that
// subdirectory does not exist yet.
func (p *Pipeline) RunMonthly(ctx context.Context, cleartextBase, encryptedBase, remoteName string) error {
	sub := p.deps.Clock.Now().Format("2006-01")
	encryptedDir := filepath.Join(encryptedBase, sub)
	cleartextDir := filepath.Join(cleartextBase, sub)

	if _, err := os.Stat(encryptedDir); os.IsNotExist(err) {
		p.deps.Log.Info(ctx, "no archive for this month yet", "dir", encryptedDir)
		return nil
	}
	return p.run(ctx, cleartextDir, encryptedDir, remoteName, path.Join(remoteName, sub))
}

func (p *Pipeline) run(ctx context.Context, cleartextDir, encryptedDir, remoteName, prefix string) (err error) {
	log := p.deps.Log.With("cleartext", cleartextDir, "remote", remoteName)

	var runID string
	if p.deps.Journal != nil {
		id, jerr := p.deps.Journal.StartRun(ctx, cleartextDir, remoteName)
		if jerr != nil {
			log.Warn(ctx, "journal unavailable for this run", "error", jerr)
		} else {
			runID = id
		}
	}

	manifestPath := ""
	state := StateIdle
	defer func() {
		if err != nil {
			state = StateAborted
			log.Error(ctx, "archive run aborted", "state", state.String(), "error", err)
		}
		if runID != "" {
			if jerr := p.deps.Journal.FinishRun(ctx, runID, common.CodeFor(err), manifestPath); jerr != nil {
				log.Warn(ctx, "could not journal run outcome", "error", jerr)
			}
		}
	}()

	transition := func(next State) {
		state = next
		log.Debug(ctx, "pipeline state", "state", state.String())
	}

	transition(StateVerifying)
	if err = p.verify(cleartextDir, encryptedDir, remoteName); err != nil {
		return err
	}

	transition(StateScrubbing)
	if err = p.deps.Scrubber.Scrub(ctx, cleartextDir); err != nil {
		// Do not unmount, do not transfer: the cleartext view still
		// holds content that must not leave the machine.
		return err
	}

	// The manifest must exist before the cleartext view disappears.
	mapping := filepath.Base(encryptedDir)
	manifestPath, err = WriteManifest(p.cfg.ManifestDir, p.deps.Clock.Now(), mapping, encryptedDir, cleartextDir)
	if err != nil {
		return err
	}
	log.Info(ctx, "manifest written", "manifest", manifestPath)

	transition(StateUnmounting)
	if err = p.deps.Unmount.Unmount(ctx, cleartextDir); err != nil {
		return fmt.Errorf("unmount %s: %w", cleartextDir, err)
	}

	transition(StateWaitingDrain)
	if err = p.waitDrain(ctx, cleartextDir); err != nil {
		return err
	}

	transition(StateTransferring)
	if err = p.deps.Transfer.Transfer(ctx, encryptedDir, prefix); err != nil {
		return err
	}

	transition(StateDone)
	log.Info(ctx, "archive run complete", "manifest", manifestPath)
	return nil
}

// verify checks the run's preconditions: the remote is configured, both
// directories exist, and the mapping is mounted. Archiving an unmounted
// mapping would sync ciphertext whose cleartext was never inspected.
func (p *Pipeline) verify(cleartextDir, encryptedDir, remoteName string) error {
	if cleartextDir == "" || encryptedDir == "" || remoteName == "" {
		return fmt.Errorf("archive run: %w: cleartext dir, encrypted dir and remote are all required", common.ErrMissingInput)
	}

	data, err := os.ReadFile(p.cfg.RemotesFile)
	if err != nil {
		return fmt.Errorf("remotes file %s: %w: %v", p.cfg.RemotesFile, common.ErrMissingFile, err)
	}
	if !strings.Contains(string(data), remoteName) {
		return fmt.Errorf("remote %q not present in %s: %w", remoteName, p.cfg.RemotesFile, common.ErrBadConfiguration)
	}

	for _, dir := range []string{cleartextDir, encryptedDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("%s: %w", dir, common.ErrMissingFolder)
		}
	}

	mounted, err := p.deps.Mounts.Mounted(cleartextDir)
	if err != nil {
		return fmt.Errorf("mount check %s: %w", cleartextDir, err)
	}
	if !mounted {
		return fmt.Errorf("%s: %w", cleartextDir, common.ErrMissingMount)
	}
	return nil
}

// waitDrain polls until the mapping no longer reports as mounted, then
// until the cleartext directory is empty. Both polls are needed:
// unmount completion and the filesystem releasing cached handles are
// observably asynchronous. The retry budget is bounded; exhausting it
// is a DrainTimeout.
func (p *Pipeline) waitDrain(ctx context.Context, dir string) error {
	if err := p.pollUntil(ctx, "unmounted", func() (bool, error) {
		mounted, err := p.deps.Mounts.Mounted(dir)
		return !mounted, err
	}); err != nil {
		return fmt.Errorf("waiting for %s to unmount: %w", dir, err)
	}

	if err := p.pollUntil(ctx, "empty", func() (bool, error) {
		return dirEmpty(dir)
	}); err != nil {
		return fmt.Errorf("waiting for %s to drain: %w", dir, err)
	}
	return nil
}

var errNotYet = errors.New("condition not met yet")

func (p *Pipeline) pollUntil(ctx context.Context, desc string, cond func() (bool, error)) error {
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			ok, err := cond()
			if err != nil {
				return err
			}
			if !ok {
				return errNotYet
			}
			return nil
		},
		IsFatalError: func(err error) bool { return !errors.Is(err, errNotYet) },
		NotifyFunc: func(err error, attempt int) {
			p.deps.Log.Debug(ctx, "still waiting", "condition", desc, "attempt", attempt)
		},
		Attempts: p.cfg.MaxAttempts,
		Delay:    p.cfg.RetryWait,
		Clock:    p.deps.Clock,
		Stop:     ctx.Done(),
	})
	if err == nil {
		return nil
	}
	if retry.IsAttemptsExceeded(err) || retry.IsRetryStopped(err) {
		return common.ErrDrainTimeout
	}
	return err
}

func dirEmpty(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		// Gone entirely counts as drained.
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}
