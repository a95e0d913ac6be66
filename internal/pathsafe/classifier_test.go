package pathsafe

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dsmolkov/vaultsweep/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRoots builds a layout mirroring the operator's machine:
//
//	<tmp>/home/alice            protected exactly
//	<tmp>/data                  protected exactly, allowed as prefix
//	<tmp>/data/jail             allowed as prefix
func testRoots(t *testing.T) (home, data, jail string, c *Classifier) {
	t.Helper()
	tmp := t.TempDir()

	home = filepath.Join(tmp, "home", "alice")
	data = filepath.Join(tmp, "data")
	jail = filepath.Join(tmp, "data", "jail")
	for _, d := range []string{home, jail} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}

	c = New([]string{home, data}, []string{jail, data})
	return home, data, jail, c
}

func TestClassify(t *testing.T) {
	home, data, jail, c := testRoots(t)

	share := filepath.Join(jail, "share")
	bulk := filepath.Join(data, "photos")
	outside := filepath.Join(home, "documents")
	for _, d := range []string{share, bulk, outside} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}

	tests := []struct {
		name      string
		candidate string
		want      Verdict
	}{
		{"home exactly", home, ForbiddenExact},
		{"data root exactly", data, ForbiddenExact},
		{"jail subtree", share, Allowed},
		{"jail root itself", jail, Allowed},
		{"bulk-data subtree", bulk, Allowed},
		{"under home, outside jail", outside, ForbiddenOutsideJail},
		{"root", "/", ForbiddenOutsideJail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Classify(tt.candidate)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_EmptyPath(t *testing.T) {
	_, _, _, c := testRoots(t)

	_, err := c.Classify("")
	assert.ErrorIs(t, err, common.ErrMissingInput)
}

func TestClassify_MissingPath(t *testing.T) {
	_, _, jail, c := testRoots(t)

	_, err := c.Classify(filepath.Join(jail, "does-not-exist"))
	assert.ErrorIs(t, err, common.ErrMissingFolder)
}

func TestClassify_SymlinkCannotEscapeVerdict(t *testing.T) {
	home, _, jail, c := testRoots(t)

	// A symlink inside the jail pointing at the home directory must be
	// judged by its target, not its location.
	link := filepath.Join(jail, "innocent-looking")
	require.NoError(t, os.Symlink(home, link))

	got, err := c.Classify(link)
	require.NoError(t, err)
	assert.Equal(t, ForbiddenExact, got)
}

func TestClassify_RelativePathResolved(t *testing.T) {
	_, _, jail, c := testRoots(t)

	sub := filepath.Join(jail, "stage")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(jail))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	got, err := c.Classify("stage")
	require.NoError(t, err)
	assert.Equal(t, Allowed, got)
}

func TestClassify_SiblingPrefixNotUnderRoot(t *testing.T) {
	tmp := t.TempDir()
	jail := filepath.Join(tmp, "jail")
	sibling := filepath.Join(tmp, "jailx")
	require.NoError(t, os.MkdirAll(jail, 0o755))
	require.NoError(t, os.MkdirAll(sibling, 0o755))

	c := New(nil, []string{jail})

	got, err := c.Classify(sibling)
	require.NoError(t, err)
	assert.Equal(t, ForbiddenOutsideJail, got)
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "allowed", Allowed.String())
	assert.Equal(t, "forbidden-exact", ForbiddenExact.String())
	assert.Equal(t, "forbidden-outside-jail", ForbiddenOutsideJail.String())
}

func TestClassify_ErrorKindIsStable(t *testing.T) {
	_, _, _, c := testRoots(t)
	_, err := c.Classify("")
	require.Error(t, err)
	assert.False(t, errors.Is(err, common.ErrUnsafe), "classification itself is not an unsafe-operation error")
}
