package store

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

// Argon2id parameters for deriving the sealing key from the configured
// secret. Interactive-strength settings: the secret is entered once per
// machine, not per request.
const (
	keyMemory      = 64 * 1024
	keyIterations  = 3
	keyParallelism = 2
	saltLength     = 16
	nonceLength    = 24
)

var errSealedTooShort = errors.New("store: sealed payload too short")

func newSalt() ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("store: failed to generate salt: %w", err)
	}
	return salt, nil
}

func deriveKey(secret string, salt []byte) [32]byte {
	var key [32]byte
	copy(key[:], argon2.IDKey([]byte(secret), salt, keyIterations, keyMemory, keyParallelism, 32))
	return key
}

// seal encrypts payload with a random nonce prepended to the box.
func seal(key [32]byte, payload []byte) ([]byte, error) {
	var nonce [nonceLength]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("store: failed to generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], payload, &nonce, &key), nil
}

// open decrypts a payload produced by seal.
func open(key [32]byte, sealed []byte) ([]byte, error) {
	if len(sealed) < nonceLength {
		return nil, errSealedTooShort
	}
	var nonce [nonceLength]byte
	copy(nonce[:], sealed[:nonceLength])
	payload, ok := secretbox.Open(nil, sealed[nonceLength:], &nonce, &key)
	if !ok {
		return nil, errors.New("store: failed to unseal payload")
	}
	return payload, nil
}
