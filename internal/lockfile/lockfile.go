// Package lockfile serializes whole-program runs with an advisory file
// lock. Two concurrent runs could race on the same mappings, so the
// second instance must fail fast instead of queueing.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/dsmolkov/vaultsweep/internal/common"
)

// Lock is a held advisory lock. The zero value is not usable; obtain
// one with Acquire.
type Lock struct {
	f    *os.File
	path string
}

// Acquire takes an exclusive non-blocking flock on path, creating the
// file if needed, and records the holder's pid in it. A lock already
// held by another process is a configuration-class failure.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("lock dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("another instance holds %s: %w", path, common.ErrBadConfiguration)
	}

	// Best effort; the flock is the lock, the pid is for operators.
	_ = f.Truncate(0)
	_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)

	return &Lock{f: f, path: path}, nil
}

// Release drops the lock and removes the file. Safe to call on a nil
// receiver and safe to call twice.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	_ = os.Remove(l.path)
	return err
}
