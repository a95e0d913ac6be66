package keyfile

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"
)

// TerminalPrompt reads a passphrase from the controlling terminal with
// echo disabled. It fails when stdin is not a terminal, so unattended
// runs fail fast instead of hanging on a prompt.
func TerminalPrompt(label string) PassphraseFunc {
	return func() ([]byte, error) {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return nil, errors.New("sealed key file requires a terminal to prompt for the passphrase")
		}
		fmt.Fprintf(os.Stderr, "%s: ", label)
		defer fmt.Fprintln(os.Stderr)
		return term.ReadPassword(fd)
	}
}
