package platform

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// TokenPrefix marks platform-invitation bearer tokens, distinct from the
	// tenant-invitation prefix.
	TokenPrefix = "ppi_"

	// TokenBytes is the entropy of a token.
	TokenBytes = 32
)

// GenerateToken returns a new bearer token and its stored SHA-256 hash.
func GenerateToken() (token string, hash []byte, err error) {
	randomBytes := make([]byte, TokenBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	token = TokenPrefix + base64.RawURLEncoding.EncodeToString(randomBytes)
	hash = HashToken(token)
	return token, hash, nil
}

// HashToken hashes a bearer token for lookup.
func HashToken(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return h[:]
}

// ValidateTokenFormat reports whether a string has the shape of a token.
func ValidateTokenFormat(token string) bool {
	if len(token) < len(TokenPrefix) || token[:len(TokenPrefix)] != TokenPrefix {
		return false
	}

	decoded, err := base64.RawURLEncoding.DecodeString(token[len(TokenPrefix):])
	if err != nil {
		return false
	}
	return len(decoded) == TokenBytes
}
