package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	assert.NotEmpty(t, cfg.HomeDir)
	assert.Equal(t, "/data", cfg.DataRoot)
	assert.Equal(t, "/data/jail", cfg.JailRoot)
	assert.Equal(t, 3*time.Second, cfg.RetryWait)
	assert.Equal(t, 20, cfg.MaxAttempts)
	assert.Equal(t, 4, cfg.MaxParallelTransfers)
	assert.Contains(t, cfg.SecretFolderNames, ".ssh")
	assert.Contains(t, cfg.SensitiveFolderNames, ".git")
	assert.Contains(t, cfg.TransferExcludes, "gocryptfs.conf")
}

func TestProtectedAndAllowedRoots(t *testing.T) {
	cfg := &Config{HomeDir: "/home/alice", DataRoot: "/data", JailRoot: "/data/jail"}

	assert.Equal(t, []string{"/home/alice", "/data"}, cfg.ProtectedRoots())
	assert.Equal(t, []string{"/data/jail", "/data"}, cfg.AllowedRoots())
}

func TestStatePaths(t *testing.T) {
	cfg := &Config{StateDir: "/var/state"}

	assert.Equal(t, "/var/state/vaultsweep.lock", cfg.LockFile())
	assert.Equal(t, "/var/state/journal.db", cfg.JournalDSN())
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"jail_root": "/srv/jail",
		"retry_wait": "10s",
		"max_attempts": 5,
		"secret_folder_names": [".keys"],
		"archive_sets": [
			{"cleartext_dir": "/data/docs", "encrypted_dir": "/data/.docs.enc", "remote": "offsite"}
		],
		"volumes": [
			{"device": "/dev/sdb1", "key_file": "/root/keys/vault.key", "name": "vault"}
		]
	}`), 0o600))

	t.Run("loads from flags", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", path}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "/srv/jail", cfg.JailRoot)
		assert.Equal(t, 10*time.Second, cfg.RetryWait)
		assert.Equal(t, 5, cfg.MaxAttempts)
		assert.Equal(t, []string{".keys"}, cfg.SecretFolderNames)
		require.Len(t, cfg.ArchiveSets, 1)
		assert.Equal(t, ArchiveSet{
			CleartextDir: "/data/docs",
			EncryptedDir: "/data/.docs.enc",
			Remote:       "offsite",
		}, cfg.ArchiveSets[0])
		require.Len(t, cfg.Volumes, 1)
		assert.Equal(t, "vault", cfg.Volumes[0].Name)

		// fields absent from the JSON keep their defaults
		assert.Equal(t, "/data", cfg.DataRoot)
		assert.Equal(t, 4, cfg.MaxParallelTransfers)
	})

	t.Run("no config flag → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{JailRoot: "/keep", RetryWait: 42 * time.Second}
		parseJson(cfg)

		assert.Equal(t, "/keep", cfg.JailRoot)
		assert.Equal(t, 42*time.Second, cfg.RetryWait)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ not json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	os.Args = []string{"cmd", "-j", "/srv/jail", "-w", "7", "-t", "2", "-b", "backups"}

	cfg := &Config{}
	cfg.LoadDefaults()
	require.NotPanics(t, func() { parseFlags(cfg) })

	assert.Equal(t, "/srv/jail", cfg.JailRoot)
	assert.Equal(t, 7*time.Second, cfg.RetryWait)
	assert.Equal(t, 2, cfg.MaxParallelTransfers)
	assert.Equal(t, "backups", cfg.S3Bucket)
	// untouched flag keeps its default
	assert.Equal(t, "/data", cfg.DataRoot)
}
