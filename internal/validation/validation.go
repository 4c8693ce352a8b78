// Package validation normalizes and validates the user-supplied identity
// fields shared across handlers.
package validation

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
)

var (
	// ErrEmailRequired is returned when an email is empty.
	ErrEmailRequired = errors.New("email is required")

	// ErrEmailTooLong is returned when an email exceeds 320 characters.
	ErrEmailTooLong = errors.New("email is too long")

	// ErrEmailInvalid is returned when an email fails RFC 5322 parsing.
	ErrEmailInvalid = errors.New("invalid email address")

	// ErrPhoneInvalid is returned when a phone number is not valid E.164.
	ErrPhoneInvalid = errors.New("phone must be a valid E.164 number (e.g., +254712345678)")

	// ErrCountryInvalid is returned when a country is not a 2-letter ISO code.
	ErrCountryInvalid = errors.New("country must be a 2-letter ISO code (e.g., KE)")
)

var (
	e164Regex     = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	countryRegex  = regexp.MustCompile(`^[A-Z]{2}$`)
	referralRegex = regexp.MustCompile(`^[A-Z0-9]{6}$`)
	phoneStrip    = regexp.MustCompile(`[^\d+]`)
)

// NormalizeEmail trims, lowercases, and validates an email address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrEmailRequired
	}
	if len(email) > 320 {
		return "", ErrEmailTooLong
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", ErrEmailInvalid
	}
	return email, nil
}

// NormalizeFullName collapses runs of whitespace. Returns "" for blank input.
func NormalizeFullName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// NormalizePhoneE164 strips formatting characters and validates the result
// against E.164. Returns "" for blank input.
func NormalizePhoneE164(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", nil
	}
	phone = phoneStrip.ReplaceAllString(phone, "")
	if !e164Regex.MatchString(phone) {
		return "", ErrPhoneInvalid
	}
	return phone, nil
}

// NormalizeCountry uppercases and validates a 2-letter ISO-3166-1 code.
// Returns "" for blank input.
func NormalizeCountry(country string) (string, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		return "", nil
	}
	if !countryRegex.MatchString(country) {
		return "", ErrCountryInvalid
	}
	return country, nil
}

// NormalizeReferralCode uppercases a referral code and checks the 6-character
// A-Z0-9 format. Returns "" when the input does not look like a code.
func NormalizeReferralCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !referralRegex.MatchString(code) {
		return ""
	}
	return code
}
