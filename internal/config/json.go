package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dsmolkov/vaultsweep/internal/flagx"
	"github.com/dsmolkov/vaultsweep/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations
// rely on timex.Duration so the file can say "3s" instead of integer
// nanoseconds. Nil slices/empty strings mean "keep the current value".
type JsonConfig struct {
	HomeDir     string `json:"home_dir"`
	DataRoot    string `json:"data_root"`
	JailRoot    string `json:"jail_root"`
	MountRoot   string `json:"mount_root"`
	StateDir    string `json:"state_dir"`
	ManifestDir string `json:"manifest_dir"`
	RemotesFile string `json:"remotes_file"`

	SecretFolderNames    []string `json:"secret_folder_names"`
	SecretFileGlobs      []string `json:"secret_file_globs"`
	SensitiveFolderNames []string `json:"sensitive_folder_names"`
	TransferExcludes     []string `json:"transfer_excludes"`

	RetryWait            timex.Duration `json:"retry_wait"`
	MaxAttempts          int            `json:"max_attempts"`
	MaxParallelTransfers int            `json:"max_parallel_transfers"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	ArchiveSets []jsonArchiveSet `json:"archive_sets"`
	MonthlySets []jsonArchiveSet `json:"monthly_sets"`
	Volumes     []jsonVolumeSpec `json:"volumes"`
}

type jsonArchiveSet struct {
	CleartextDir string `json:"cleartext_dir"`
	EncryptedDir string `json:"encrypted_dir"`
	Remote       string `json:"remote"`
}

type jsonVolumeSpec struct {
	Device  string `json:"device"`
	KeyFile string `json:"key_file"`
	Name    string `json:"name"`
}

// parseJson overlays cfg with values loaded from the JSON file named by
// the -c/-config flags. Nothing happens when no file is given. Read or
// unmarshal errors panic, matching the other config layers.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	overlayString(&cfg.HomeDir, jc.HomeDir)
	overlayString(&cfg.DataRoot, jc.DataRoot)
	overlayString(&cfg.JailRoot, jc.JailRoot)
	overlayString(&cfg.MountRoot, jc.MountRoot)
	overlayString(&cfg.StateDir, jc.StateDir)
	overlayString(&cfg.ManifestDir, jc.ManifestDir)
	overlayString(&cfg.RemotesFile, jc.RemotesFile)

	overlaySlice(&cfg.SecretFolderNames, jc.SecretFolderNames)
	overlaySlice(&cfg.SecretFileGlobs, jc.SecretFileGlobs)
	overlaySlice(&cfg.SensitiveFolderNames, jc.SensitiveFolderNames)
	overlaySlice(&cfg.TransferExcludes, jc.TransferExcludes)

	if jc.RetryWait.Duration != 0 {
		cfg.RetryWait = time.Duration(jc.RetryWait.Duration)
	}
	if jc.MaxAttempts != 0 {
		cfg.MaxAttempts = jc.MaxAttempts
	}
	if jc.MaxParallelTransfers != 0 {
		cfg.MaxParallelTransfers = jc.MaxParallelTransfers
	}

	overlayString(&cfg.S3RootUser, jc.S3RootUser)
	overlayString(&cfg.S3RootPassword, jc.S3RootPassword)
	overlayString(&cfg.S3Bucket, jc.S3Bucket)
	overlayString(&cfg.S3Region, jc.S3Region)
	overlayString(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)

	for _, s := range jc.ArchiveSets {
		cfg.ArchiveSets = append(cfg.ArchiveSets, ArchiveSet(s))
	}
	for _, s := range jc.MonthlySets {
		cfg.MonthlySets = append(cfg.MonthlySets, ArchiveSet(s))
	}
	for _, v := range jc.Volumes {
		cfg.Volumes = append(cfg.Volumes, VolumeSpec(v))
	}
}

func overlayString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overlaySlice(dst *[]string, v []string) {
	if v != nil {
		*dst = v
	}
}
