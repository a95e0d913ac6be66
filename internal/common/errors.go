// Package common defines the sentinel errors and the fixed exit-code
// taxonomy shared by every VaultSweep component. Callers should use
// errors.Is to match the sentinels.
package common

import "errors"

var (
	// Required-input and filesystem precondition errors.
	ErrMissingInput  = errors.New("missing required input")
	ErrMissingFile   = errors.New("required file is missing")
	ErrMissingFolder = errors.New("required folder is missing")
	ErrMissingMount  = errors.New("required mount is missing")

	// Configuration errors (file present but content unusable).
	ErrBadConfiguration = errors.New("bad configuration")

	// Destructive-operation safety errors.
	ErrUnsafe = errors.New("unsafe destructive target")

	// Failures surfaced by collaborators but routed through the same
	// reporting and cleanup path.
	ErrSystemUnit = errors.New("system unit failure")
	ErrSecurity   = errors.New("security failure")
	ErrNetwork    = errors.New("network error")

	// A mount point or its backing directory refused to drain within
	// the configured retry budget.
	ErrDrainTimeout = errors.New("drain timeout")
)
