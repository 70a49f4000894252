// Package security holds token helpers shared by the server and the CLI.
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// TokenPrefix marks gmshgen API keys so they are recognisable in configs and logs.
const TokenPrefix = "gmk_"

// HashToken hashes token with SHA-256 and returns hex string.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateToken creates a random prefixed token from size random bytes.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return TokenPrefix + hex.EncodeToString(buf), nil
}
