// Package scrub removes filesystem entries matching the configured
// secret and sensitive name patterns from a staging tree. Removal is
// destructive and unrecoverable, so every call re-validates its target
// through the path-safety classifier first.
package scrub

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dsmolkov/vaultsweep/internal/common"
	"github.com/dsmolkov/vaultsweep/internal/logging"
	"github.com/dsmolkov/vaultsweep/internal/pathsafe"
)

// Patterns holds the three ordered pattern categories. Secret folders
// and files are always removed from any eligible staging path;
// sensitive folders are merely unsuitable for publication (VCS
// metadata, sync-tool state).
type Patterns struct {
	SecretFolders    []string
	SensitiveFolders []string
	SecretFileGlobs  []string
}

// PartialError reports that some removal passes did not exit cleanly.
// A tree that produced one must NOT be treated as safe to publish.
type PartialError struct {
	Failed int
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("scrub: %d removal passes failed", e.Failed)
}

func (e *PartialError) Unwrap() error { return common.ErrSecurity }

// Scrubber walks staging trees and removes pattern matches.
type Scrubber struct {
	patterns   Patterns
	classifier *pathsafe.Classifier
	log        logging.Logger
}

func New(patterns Patterns, classifier *pathsafe.Classifier, log logging.Logger) *Scrubber {
	return &Scrubber{patterns: patterns, classifier: classifier, log: log}
}

// Scrub removes every entry under root whose base name matches one of
// the configured patterns. Directories are removed recursively,
// symbolic links are removed as links (their targets are never
// touched), regular files are removed directly.
//
// Each pattern runs as its own full tree walk; a failing pass is logged
// and counted but never aborts the remaining passes, because a
// partially scrubbed tree is strictly worse than a slower, fuller one.
// The result is nil only when every pass exited cleanly.
func (s *Scrubber) Scrub(ctx context.Context, root string) error {
	verdict, err := s.classifier.Classify(root)
	if err != nil {
		return err
	}
	if verdict != pathsafe.Allowed {
		return fmt.Errorf("scrub %s: %w: %s", root, common.ErrUnsafe, verdict)
	}

	failed := 0

	for _, name := range s.patterns.SecretFolders {
		if err := s.pass(ctx, root, matchExact(name)); err != nil {
			if ctx.Err() != nil {
				return err
			}
			s.log.Error(ctx, "scrub pass failed", "root", root, "pattern", name, "error", err)
			failed++
		}
	}
	for _, name := range s.patterns.SensitiveFolders {
		if err := s.pass(ctx, root, matchExact(name)); err != nil {
			if ctx.Err() != nil {
				return err
			}
			s.log.Error(ctx, "scrub pass failed", "root", root, "pattern", name, "error", err)
			failed++
		}
	}
	for _, glob := range s.patterns.SecretFileGlobs {
		match, err := matchGlob(glob)
		if err != nil {
			s.log.Error(ctx, "bad scrub glob", "pattern", glob, "error", err)
			failed++
			continue
		}
		if err := s.pass(ctx, root, match); err != nil {
			if ctx.Err() != nil {
				return err
			}
			s.log.Error(ctx, "scrub pass failed", "root", root, "pattern", glob, "error", err)
			failed++
		}
	}

	if failed > 0 {
		return &PartialError{Failed: failed}
	}
	return nil
}

// pass walks root once and removes every match. Removal errors are
// logged and folded into a single pass failure; only cancellation stops
// the walk early.
func (s *Scrubber) pass(ctx context.Context, root string, match func(string) bool) error {
	var passErr error

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			// Unreadable entry: remember, keep walking the rest.
			passErr = err
			return nil
		}
		if path == root {
			return nil
		}
		if !match(d.Name()) {
			return nil
		}

		if d.IsDir() {
			if rmErr := os.RemoveAll(path); rmErr != nil {
				passErr = rmErr
			}
			// Never descend into a removed (or half-removed) subtree.
			return fs.SkipDir
		}

		// Files and symlinks alike: os.Remove unlinks without ever
		// following, so a link pointing outside the staging tree can
		// not cause deletion of its target.
		if rmErr := os.Remove(path); rmErr != nil {
			passErr = rmErr
		}
		return nil
	})

	if walkErr != nil {
		return walkErr
	}
	return passErr
}

func matchExact(name string) func(string) bool {
	return func(base string) bool { return base == name }
}

func matchGlob(pattern string) (func(string) bool, error) {
	// filepath.Match reports bad patterns lazily; probe once so a bad
	// glob fails its pass up front instead of silently matching nothing.
	if _, err := filepath.Match(pattern, "probe"); err != nil {
		return nil, err
	}
	return func(base string) bool {
		ok, _ := filepath.Match(pattern, base)
		return ok
	}, nil
}
