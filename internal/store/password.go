package store

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	argonMemory      = 64 * 1024
	argonIterations  = 2
	argonParallelism = 1
	argonKeyLength   = 32
	saltLength       = 16
)

// GenerateSalt returns a fresh random per-user salt.
func GenerateSalt() (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return base64.RawStdEncoding.EncodeToString(salt), nil
}

// HashPassword derives the stored password hash from the plaintext and
// the user's salt.
func HashPassword(password, salt string) string {
	hash := argon2.IDKey([]byte(password), []byte(salt),
		argonIterations, argonMemory, argonParallelism, argonKeyLength)
	return base64.RawStdEncoding.EncodeToString(hash)
}

// VerifyPassword reports whether the plaintext matches the stored hash.
func VerifyPassword(hash, password, salt string) bool {
	computed := HashPassword(password, salt)
	return subtle.ConstantTimeCompare([]byte(hash), []byte(computed)) == 1
}
