// Package config handles configuration for VaultSweep, including
// defaults, JSON overlay, and command-line flags.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// ArchiveSet names one encrypted archive: the mounted cleartext view,
// the ciphertext directory backing it, and the remote target name that
// must appear in the remotes file.
type ArchiveSet struct {
	CleartextDir string
	EncryptedDir string
	Remote       string
}

// VolumeSpec describes one encrypted block container the tool unlocks
// and mounts before running the archive sets.
type VolumeSpec struct {
	Device  string
	KeyFile string
	Name    string
}

// Config holds runtime settings for VaultSweep.
//
// Path semantics:
//   - HomeDir and DataRoot are protected roots: destructive scrub
//     operations never run against either of them exactly.
//   - JailRoot and DataRoot are allowed roots: scrub targets must
//     resolve to a descendant of one of them.
type Config struct {
	HomeDir   string
	DataRoot  string
	JailRoot  string
	MountRoot string
	StateDir  string

	// ManifestDir receives one listing file per archive run.
	ManifestDir string

	// RemotesFile is the operator's remote-transfer configuration; a
	// remote name must appear in its text before anything is sent to it.
	RemotesFile string

	SecretFolderNames    []string
	SecretFileGlobs      []string
	SensitiveFolderNames []string

	// TransferExcludes are base names never uploaded and deleted from
	// the remote if present (the crypto container's own config file).
	TransferExcludes []string

	RetryWait            time.Duration
	MaxAttempts          int
	MaxParallelTransfers int

	S3RootUser     string
	S3RootPassword string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string

	ArchiveSets []ArchiveSet
	MonthlySets []ArchiveSet
	Volumes     []VolumeSpec
}

// LoadDefaults populates c with the operator's usual layout. Paths
// derive from the home directory where possible.
func (c *Config) LoadDefaults() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/root"
	}

	c.HomeDir = home
	c.DataRoot = "/data"
	c.JailRoot = "/data/jail"
	c.MountRoot = "/mnt/vaults"
	c.StateDir = filepath.Join(home, ".local", "state", "vaultsweep")
	c.ManifestDir = home
	c.RemotesFile = filepath.Join(home, ".config", "vaultsweep", "remotes.conf")

	c.SecretFolderNames = []string{".ssh", ".gnupg", ".password-store", ".pki"}
	c.SecretFileGlobs = []string{"*.key", "*.pem", "*.p12", "*.kdbx", "id_rsa*", "id_ed25519*"}
	c.SensitiveFolderNames = []string{".git", ".svn", ".hg", ".stfolder", ".stversions"}
	c.TransferExcludes = []string{"gocryptfs.conf"}

	c.RetryWait = 3 * time.Second
	c.MaxAttempts = 20
	c.MaxParallelTransfers = 4

	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "archives"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
}

// ProtectedRoots are the paths that must never be targets of recursive
// destructive removal, checked by exact match.
func (c *Config) ProtectedRoots() []string {
	return []string{c.HomeDir, c.DataRoot}
}

// AllowedRoots are the prefixes under which destructive removal is
// permitted.
func (c *Config) AllowedRoots() []string {
	return []string{c.JailRoot, c.DataRoot}
}

// LockFile is the single-instance lock path.
func (c *Config) LockFile() string {
	return filepath.Join(c.StateDir, "vaultsweep.lock")
}

// JournalDSN is the sqlite DSN of the run journal.
func (c *Config) JournalDSN() string {
	return filepath.Join(c.StateDir, "journal.db")
}

// LoadConfig builds a Config by applying defaults, then overlaying
// values from an optional JSON file and finally from command-line
// flags. Later sources take precedence.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
