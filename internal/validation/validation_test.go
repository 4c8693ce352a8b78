package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	got, err := NormalizeEmail("  Alice@Example.COM ")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", got)

	_, err = NormalizeEmail("")
	require.ErrorIs(t, err, ErrEmailRequired)

	_, err = NormalizeEmail("   ")
	require.ErrorIs(t, err, ErrEmailRequired)

	_, err = NormalizeEmail("not-an-email")
	require.ErrorIs(t, err, ErrEmailInvalid)

	_, err = NormalizeEmail(strings.Repeat("a", 320) + "@example.com")
	require.ErrorIs(t, err, ErrEmailTooLong)
}

func TestNormalizeFullName(t *testing.T) {
	require.Equal(t, "Jane Doe", NormalizeFullName("  Jane   Doe  "))
	require.Equal(t, "", NormalizeFullName("   "))
	require.Equal(t, "Jane", NormalizeFullName("Jane"))
}

func TestNormalizePhoneE164(t *testing.T) {
	got, err := NormalizePhoneE164("+254 712 345-678")
	require.NoError(t, err)
	require.Equal(t, "+254712345678", got)

	got, err = NormalizePhoneE164("")
	require.NoError(t, err)
	require.Equal(t, "", got)

	_, err = NormalizePhoneE164("0712345678")
	require.ErrorIs(t, err, ErrPhoneInvalid)

	_, err = NormalizePhoneE164("+0712345678")
	require.ErrorIs(t, err, ErrPhoneInvalid)
}

func TestNormalizeCountry(t *testing.T) {
	got, err := NormalizeCountry(" ke ")
	require.NoError(t, err)
	require.Equal(t, "KE", got)

	got, err = NormalizeCountry("")
	require.NoError(t, err)
	require.Equal(t, "", got)

	_, err = NormalizeCountry("KEN")
	require.ErrorIs(t, err, ErrCountryInvalid)

	_, err = NormalizeCountry("K1")
	require.ErrorIs(t, err, ErrCountryInvalid)
}

func TestNormalizeReferralCode(t *testing.T) {
	require.Equal(t, "AB12CD", NormalizeReferralCode(" ab12cd "))
	require.Equal(t, "", NormalizeReferralCode("short"))
	require.Equal(t, "", NormalizeReferralCode("toolong1"))
	require.Equal(t, "", NormalizeReferralCode("ab-12c"))
	require.Equal(t, "", NormalizeReferralCode(""))
}
