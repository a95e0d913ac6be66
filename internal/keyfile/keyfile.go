// Package keyfile handles volume key files. A key file may be stored
// sealed at rest: the key material is encrypted with AES-GCM under an
// argon2id-derived key from an operator passphrase, so a stolen disk
// image does not hand over the volume keys.
package keyfile

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"
)

var magic = []byte("VSWK1")

const (
	saltSize  = 16
	nonceSize = 12
)

var ErrBadPassphrase = errors.New("wrong passphrase or corrupted key file")

// PassphraseFunc supplies the passphrase for unsealing, typically by
// prompting the operator's terminal.
type PassphraseFunc func() ([]byte, error)

func deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}

// Seal encrypts plain key material under the passphrase. Layout:
// magic | salt | nonce | ciphertext.
func Seal(plain, passphrase []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	key := deriveKey(passphrase, salt)
	defer Wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(magic)+saltSize+nonceSize+len(plain)+gcm.Overhead())
	out = append(out, magic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plain, nil)
	return out, nil
}

// IsSealed reports whether data carries the sealed-key magic header.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, magic)
}

// Unseal decrypts sealed key material.
func Unseal(data, passphrase []byte) ([]byte, error) {
	if !IsSealed(data) {
		return nil, errors.New("not a sealed key file")
	}
	rest := data[len(magic):]
	if len(rest) < saltSize+nonceSize {
		return nil, errors.New("sealed key file truncated")
	}
	salt := rest[:saltSize]
	nonce := rest[saltSize : saltSize+nonceSize]
	ciphertext := rest[saltSize+nonceSize:]

	key := deriveKey(passphrase, salt)
	defer Wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrBadPassphrase
	}
	return plain, nil
}

// Load reads a key file and returns the plain key material. Sealed
// files are unsealed with a passphrase from prompt; plain files are
// returned as-is.
func Load(path string, prompt PassphraseFunc) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	if !IsSealed(data) {
		return data, nil
	}
	if prompt == nil {
		return nil, errors.New("sealed key file but no passphrase source")
	}
	passphrase, err := prompt()
	if err != nil {
		return nil, err
	}
	defer Wipe(passphrase)
	return Unseal(data, passphrase)
}

// Wipe overwrites b with zeros. Key material should not outlive its use
// in memory longer than necessary.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
