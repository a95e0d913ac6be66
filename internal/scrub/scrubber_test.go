package scrub

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dsmolkov/vaultsweep/internal/common"
	"github.com/dsmolkov/vaultsweep/internal/logging"
	"github.com/dsmolkov/vaultsweep/internal/pathsafe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPatterns() Patterns {
	return Patterns{
		SecretFolders:    []string{".ssh", ".gnupg"},
		SensitiveFolders: []string{".git"},
		SecretFileGlobs:  []string{"*.key", "id_rsa*"},
	}
}

// newFixture builds a jail under a temp dir and returns the staging
// root plus a scrubber whose classifier allows that jail only.
func newFixture(t *testing.T) (string, *Scrubber) {
	t.Helper()
	tmp := t.TempDir()

	jail := filepath.Join(tmp, "jail")
	staging := filepath.Join(jail, "share")
	require.NoError(t, os.MkdirAll(staging, 0o755))

	classifier := pathsafe.New([]string{tmp}, []string{jail})
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	return staging, New(testPatterns(), classifier, log)
}

func mkTree(t *testing.T, root string, dirs []string, files []string) {
	t.Helper()
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
	}
	for _, f := range files {
		p := filepath.Join(root, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
}

func TestScrub_EndToEnd(t *testing.T) {
	staging, s := newFixture(t)
	mkTree(t, staging,
		[]string{"docs", ".ssh", ".git"},
		[]string{"docs/report.pdf", ".ssh/id_rsa", ".git/config", "server.key"},
	)

	require.NoError(t, s.Scrub(context.Background(), staging))

	assert.FileExists(t, filepath.Join(staging, "docs", "report.pdf"))
	assert.NoDirExists(t, filepath.Join(staging, ".ssh"))
	assert.NoDirExists(t, filepath.Join(staging, ".git"))
	assert.NoFileExists(t, filepath.Join(staging, "server.key"))
}

func TestScrub_Idempotent(t *testing.T) {
	staging, s := newFixture(t)
	mkTree(t, staging,
		[]string{".ssh", "keep"},
		[]string{"keep/data.txt", "host.key"},
	)

	ctx := context.Background()
	require.NoError(t, s.Scrub(ctx, staging))
	// Second run over the already-clean tree must also succeed.
	require.NoError(t, s.Scrub(ctx, staging))

	assert.FileExists(t, filepath.Join(staging, "keep", "data.txt"))
}

func TestScrub_SymlinkRemovedTargetKept(t *testing.T) {
	staging, s := newFixture(t)

	// Sentinel outside the staging tree.
	outside := filepath.Join(t.TempDir(), "sentinel.key")
	require.NoError(t, os.WriteFile(outside, []byte("precious"), 0o644))

	link := filepath.Join(staging, "stolen.key")
	require.NoError(t, os.Symlink(outside, link))

	require.NoError(t, s.Scrub(context.Background(), staging))

	_, err := os.Lstat(link)
	assert.True(t, os.IsNotExist(err), "link must be removed")
	assert.FileExists(t, outside, "link target must never be deleted")
}

func TestScrub_SymlinkNamedLikeSecretFolder(t *testing.T) {
	staging, s := newFixture(t)

	target := filepath.Join(t.TempDir(), "real-ssh")
	require.NoError(t, os.MkdirAll(target, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "id_ed25519"), []byte("k"), 0o600))

	link := filepath.Join(staging, ".ssh")
	require.NoError(t, os.Symlink(target, link))

	require.NoError(t, s.Scrub(context.Background(), staging))

	_, err := os.Lstat(link)
	assert.True(t, os.IsNotExist(err))
	assert.FileExists(t, filepath.Join(target, "id_ed25519"))
}

func TestScrub_NestedMatches(t *testing.T) {
	staging, s := newFixture(t)
	mkTree(t, staging,
		[]string{"project/.git", "project/vendor/lib/.git"},
		[]string{"project/main.go", "project/.git/config", "project/deploy/prod.key"},
	)

	require.NoError(t, s.Scrub(context.Background(), staging))

	assert.FileExists(t, filepath.Join(staging, "project", "main.go"))
	assert.NoDirExists(t, filepath.Join(staging, "project", ".git"))
	assert.NoDirExists(t, filepath.Join(staging, "project", "vendor", "lib", ".git"))
	assert.NoFileExists(t, filepath.Join(staging, "project", "deploy", "prod.key"))
}

func TestScrub_UnsafeRoots(t *testing.T) {
	tmp := t.TempDir()
	home := filepath.Join(tmp, "home", "alice")
	jail := filepath.Join(tmp, "jail")
	require.NoError(t, os.MkdirAll(home, 0o755))
	require.NoError(t, os.MkdirAll(jail, 0o755))
	mkTree(t, home, []string{".ssh"}, []string{".ssh/id_rsa"})

	classifier := pathsafe.New([]string{home}, []string{jail})
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	s := New(testPatterns(), classifier, log)

	ctx := context.Background()

	t.Run("home exactly", func(t *testing.T) {
		err := s.Scrub(ctx, home)
		assert.ErrorIs(t, err, common.ErrUnsafe)
		// Untouched.
		assert.FileExists(t, filepath.Join(home, ".ssh", "id_rsa"))
	})

	t.Run("outside jail", func(t *testing.T) {
		other := filepath.Join(tmp, "elsewhere")
		require.NoError(t, os.MkdirAll(other, 0o755))
		err := s.Scrub(ctx, other)
		assert.ErrorIs(t, err, common.ErrUnsafe)
	})

	t.Run("missing target", func(t *testing.T) {
		err := s.Scrub(ctx, filepath.Join(jail, "nope"))
		assert.ErrorIs(t, err, common.ErrMissingFolder)
	})
}

func TestScrub_BadGlobCountsAsFailedPass(t *testing.T) {
	staging, _ := newFixture(t)

	tmpRoot := filepath.Dir(staging) // the jail
	classifier := pathsafe.New(nil, []string{tmpRoot})
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	s := New(Patterns{SecretFileGlobs: []string{"[bad"}}, classifier, log)

	err := s.Scrub(context.Background(), staging)
	var partial *PartialError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 1, partial.Failed)
	assert.ErrorIs(t, err, common.ErrSecurity)
}

func TestWriteCountMarker(t *testing.T) {
	staging, _ := newFixture(t)
	mkTree(t, staging, []string{"a/b"}, []string{"a/x.txt", "a/b/y.txt", "z.txt"})

	n, err := WriteCountMarker(staging)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	data, err := os.ReadFile(filepath.Join(staging, MarkerName))
	require.NoError(t, err)
	assert.Equal(t, "3\n", string(data))

	// Re-running does not count the marker itself.
	n, err = WriteCountMarker(staging)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
