package config

import (
	"flag"
	"os"
	"time"

	"github.com/dsmolkov/vaultsweep/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-j string   jail root (destructive operations allowed under it)
//	-d string   bulk-data root
//	-m string   mount root for unlocked volumes
//	-r string   remotes configuration file
//	-w int      retry wait between drain polls, seconds
//	-n int      max drain poll attempts
//	-t int      max parallel transfers
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint
//
// The function filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-j", "-d", "-m", "-r", "-w", "-n", "-t", "-u", "-p", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.JailRoot, "j", cfg.JailRoot, "jail root for destructive operations")
	fs.StringVar(&cfg.DataRoot, "d", cfg.DataRoot, "bulk-data root")
	fs.StringVar(&cfg.MountRoot, "m", cfg.MountRoot, "mount root for unlocked volumes")
	fs.StringVar(&cfg.RemotesFile, "r", cfg.RemotesFile, "remotes configuration file")

	retryWait := fs.Int("w", int(cfg.RetryWait.Seconds()), "retry wait (in seconds)")
	fs.IntVar(&cfg.MaxAttempts, "n", cfg.MaxAttempts, "max drain poll attempts")
	fs.IntVar(&cfg.MaxParallelTransfers, "t", cfg.MaxParallelTransfers, "max parallel transfers")

	fs.StringVar(&cfg.S3RootUser, "u", cfg.S3RootUser, "S3 root user")
	fs.StringVar(&cfg.S3RootPassword, "p", cfg.S3RootPassword, "S3 root password")
	fs.StringVar(&cfg.S3Bucket, "b", cfg.S3Bucket, "S3 bucket")
	fs.StringVar(&cfg.S3Region, "g", cfg.S3Region, "S3 region")
	fs.StringVar(&cfg.S3BaseEndpoint, "e", cfg.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RetryWait = time.Duration(*retryWait) * time.Second
}
