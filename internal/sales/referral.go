package sales

import (
	"crypto/rand"
	"fmt"
)

const (
	referralCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// ReferralCodeLength is the fixed length of a referral code.
	ReferralCodeLength = 6
)

// GenerateReferralCode returns a random 6-character A-Z0-9 code. Uniqueness
// is enforced by the database; callers retry on collision.
func GenerateReferralCode() (string, error) {
	b := make([]byte, ReferralCodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate referral code: %w", err)
	}
	for i := range b {
		b[i] = referralCodeAlphabet[int(b[i])%len(referralCodeAlphabet)]
	}
	return string(b), nil
}
