// Package cryptox holds the hashing primitives used for credentials:
// argon2id password hashes, SHA-256 digests of one-time tokens and
// constant-time secret comparison.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/dmitrijs2005/clearhuma/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	saltSize   = 16
	keySize    = 32
	hashScheme = "argon2id"
)

var ErrMalformedHash = errors.New("malformed password hash")

// DeriveKey stretches password with salt using argon2id.
func DeriveKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, keySize)
}

// HashPassword returns "argon2id$<salt hex>$<key hex>" for a fresh random salt.
func HashPassword(password string) string {
	salt := common.GenerateRandByteArray(saltSize)
	key := DeriveKey([]byte(password), salt)
	return hashScheme + "$" + hex.EncodeToString(salt) + "$" + hex.EncodeToString(key)
}

// VerifyPassword checks password against a value produced by HashPassword.
func VerifyPassword(encoded, password string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != hashScheme {
		return false, ErrMalformedHash
	}
	salt, err := hex.DecodeString(parts[1])
	if err != nil {
		return false, ErrMalformedHash
	}
	want, err := hex.DecodeString(parts[2])
	if err != nil {
		return false, ErrMalformedHash
	}

	got := DeriveKey([]byte(password), salt)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// HashToken is the stored form of a one-time token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// SecretEqual compares a presented secret with the configured one in
// constant time. An empty configured secret never matches.
func SecretEqual(configured, presented string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}
