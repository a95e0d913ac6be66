package common

import "errors"

// ExitCode is the process exit status reported to the invoking shell.
// The values are fixed: log post-mortems and the operator's driver
// script both key off them.
type ExitCode int

const (
	ExitSuccess          ExitCode = 0
	ExitMissingInput     ExitCode = 1
	ExitMissingFile      ExitCode = 2
	ExitMissingFolder    ExitCode = 3
	ExitMissingMount     ExitCode = 4
	ExitBadConfiguration ExitCode = 5
	ExitUnsafe           ExitCode = 6
	ExitSystemUnit       ExitCode = 7
	ExitSecurity         ExitCode = 8
	ExitNetwork          ExitCode = 9
	ExitDrainTimeout     ExitCode = 10

	// ExitTrappedSignal marks termination initiated by a signal rather
	// than by normal completion or an operational failure.
	ExitTrappedSignal ExitCode = 20

	// ExitFailure is the catch-all for errors outside the taxonomy.
	ExitFailure ExitCode = 70
)

// CodeFor maps an error to its exit code. A nil error maps to ExitSuccess.
func CodeFor(err error) ExitCode {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrMissingInput):
		return ExitMissingInput
	case errors.Is(err, ErrMissingFile):
		return ExitMissingFile
	case errors.Is(err, ErrMissingFolder):
		return ExitMissingFolder
	case errors.Is(err, ErrMissingMount):
		return ExitMissingMount
	case errors.Is(err, ErrBadConfiguration):
		return ExitBadConfiguration
	case errors.Is(err, ErrUnsafe):
		return ExitUnsafe
	case errors.Is(err, ErrSystemUnit):
		return ExitSystemUnit
	case errors.Is(err, ErrSecurity):
		return ExitSecurity
	case errors.Is(err, ErrNetwork):
		return ExitNetwork
	case errors.Is(err, ErrDrainTimeout):
		return ExitDrainTimeout
	default:
		return ExitFailure
	}
}
