// Package pathsafe decides whether a directory may be the target of
// destructive recursive removal. Every destructive operation re-checks
// its target through a Classifier immediately before acting; verdicts
// are never cached because the filesystem can change between the check
// and the use.
package pathsafe

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dsmolkov/vaultsweep/internal/common"
)

// Verdict is the classification of a candidate path.
type Verdict int

const (
	// Allowed: the path resolved under an allowed root and is not a
	// protected root itself.
	Allowed Verdict = iota

	// ForbiddenExact: the path resolved to a protected root exactly
	// (the home directory or the bulk-data root).
	ForbiddenExact

	// ForbiddenOutsideJail: the path resolved outside every allowed
	// root.
	ForbiddenOutsideJail
)

func (v Verdict) String() string {
	switch v {
	case Allowed:
		return "allowed"
	case ForbiddenExact:
		return "forbidden-exact"
	case ForbiddenOutsideJail:
		return "forbidden-outside-jail"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Classifier evaluates candidates against a protected set (exact match,
// checked first) and an allowed set (prefix match). The two predicates
// are deliberately asymmetric: protecting a root exactly still permits
// scrubbing its subtrees when an allowed root covers them.
type Classifier struct {
	protected []string
	allowed   []string
}

// New builds a Classifier. Roots are normalized, and resolved through
// symlinks when they exist, so comparisons happen in canonical form.
func New(protectedRoots, allowedRoots []string) *Classifier {
	return &Classifier{
		protected: canonicalize(protectedRoots),
		allowed:   canonicalize(allowedRoots),
	}
}

// Classify resolves candidate to an absolute, symlink-free path and
// returns its verdict. The candidate must exist; a path that cannot be
// resolved reports ErrMissingFolder.
func (c *Classifier) Classify(candidate string) (Verdict, error) {
	if candidate == "" {
		return ForbiddenOutsideJail, fmt.Errorf("classify: %w: empty path", common.ErrMissingInput)
	}

	resolved, err := resolve(candidate)
	if err != nil {
		return ForbiddenOutsideJail, fmt.Errorf("classify %s: %w: %v", candidate, common.ErrMissingFolder, err)
	}

	for _, p := range c.protected {
		if resolved == p {
			return ForbiddenExact, nil
		}
	}

	for _, a := range c.allowed {
		if isUnder(resolved, a) {
			return Allowed, nil
		}
	}

	return ForbiddenOutsideJail, nil
}

func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

func canonicalize(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		if r == "" {
			continue
		}
		if resolved, err := resolve(r); err == nil {
			out = append(out, resolved)
		} else {
			out = append(out, filepath.Clean(r))
		}
	}
	return out
}

// isUnder reports whether path is root or a path-component descendant
// of root ("/data/jailx" is not under "/data/jail").
func isUnder(path, root string) bool {
	if path == root {
		return true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
