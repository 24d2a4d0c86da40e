package bm

import "io"

// Encryptor protects payloads before they reach the vault. Encryption needs
// only the public key; decryption needs the private key unlocked with a
// passphrase.
type Encryptor interface {
	// Setup generates a key pair once. It refuses to replace existing keys.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key and returns a session for reading
	// payloads back. A wrong passphrase is an error.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether both key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
