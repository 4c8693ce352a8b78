package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MagicCodeDigits is the length of the one-time login code.
	MagicCodeDigits = 6

	// BcryptCost 10 keeps verify-code latency reasonable; codes are short-lived
	// and single-use, so the work factor of a password store is not needed.
	BcryptCost = 10
)

// GenerateMagicCode returns a random zero-padded 6-digit code.
func GenerateMagicCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < MagicCodeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate magic code: %w", err)
	}

	return fmt.Sprintf("%0*d", MagicCodeDigits, n), nil
}

// HashMagicCode hashes a magic code for storage.
func HashMagicCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyMagicCode compares a submitted code against a stored hash.
// Returns nil on match.
func VerifyMagicCode(hash, code string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code))
}
