// Package auth guards the API with static bearer keys.
package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/Sannainmf/GmshApp-Hexera/internal/security"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const (
	sha256Prefix = "sha256:"
	// BcryptCost is used when hashing new keys.
	BcryptCost = 12

	ContextKeyAuthMethod = "auth_method"
	AuthMethodAPIKey     = "api_key"
)

// KeySet holds the accepted API keys. Entries may be plaintext, "sha256:<hex>"
// or bcrypt hashes; only hashes are kept in memory.
type KeySet struct {
	sha    []string
	bcrypt [][]byte

	// verified caches SHA-256 digests of tokens that matched a bcrypt entry.
	verified sync.Map
}

// ParseKeys builds a KeySet from configured entries. Blank entries are skipped.
func ParseKeys(entries []string) (*KeySet, error) {
	ks := &KeySet{}
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		switch {
		case entry == "":
			continue
		case strings.HasPrefix(entry, sha256Prefix):
			digest := strings.ToLower(strings.TrimPrefix(entry, sha256Prefix))
			if len(digest) != 64 {
				return nil, fmt.Errorf("invalid sha256 api key entry: want 64 hex characters")
			}
			ks.sha = append(ks.sha, digest)
		case strings.HasPrefix(entry, "$2a$") || strings.HasPrefix(entry, "$2b$") || strings.HasPrefix(entry, "$2y$"):
			if _, err := bcrypt.Cost([]byte(entry)); err != nil {
				return nil, fmt.Errorf("invalid bcrypt api key entry: %w", err)
			}
			ks.bcrypt = append(ks.bcrypt, []byte(entry))
		default:
			ks.sha = append(ks.sha, security.HashToken(entry))
		}
	}
	return ks, nil
}

// Empty reports whether no key is configured, meaning auth is disabled.
func (k *KeySet) Empty() bool {
	return k == nil || (len(k.sha) == 0 && len(k.bcrypt) == 0)
}

// Verify reports whether token matches one of the configured keys.
func (k *KeySet) Verify(token string) bool {
	if k.Empty() || token == "" {
		return false
	}
	digest := security.HashToken(token)
	match := 0
	for _, h := range k.sha {
		match |= subtle.ConstantTimeCompare([]byte(h), []byte(digest))
	}
	if match == 1 {
		return true
	}
	if _, ok := k.verified.Load(digest); ok {
		return true
	}
	for _, h := range k.bcrypt {
		if bcrypt.CompareHashAndPassword(h, []byte(token)) == nil {
			k.verified.Store(digest, struct{}{})
			return true
		}
	}
	return false
}

// HashKey returns the bcrypt form of token for use in server configuration.
func HashKey(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash api key: %w", err)
	}
	return string(hash), nil
}

// Middleware rejects requests without a valid key. The key is read from a
// Bearer Authorization header or, for websocket clients that cannot set
// headers, a token query parameter. An empty KeySet lets everything through.
func Middleware(keys *KeySet) gin.HandlerFunc {
	if keys.Empty() {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		token := ""
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		} else if q := c.Query("token"); q != "" {
			token = q
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !keys.Verify(token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}
		c.Set(ContextKeyAuthMethod, AuthMethodAPIKey)
		c.Next()
	}
}
