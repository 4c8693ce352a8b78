package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateMagicCode_Format(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		code, err := GenerateMagicCode()
		require.NoError(t, err)
		require.Len(t, code, MagicCodeDigits)
		for _, r := range code {
			require.True(t, r >= '0' && r <= '9', "code %q contains non-digit %q", code, r)
		}
		seen[code] = true
	}
	// 20 draws from a million-code space should not all collide.
	require.Greater(t, len(seen), 1)
}

func TestHashMagicCode_AndVerify(t *testing.T) {
	code, err := GenerateMagicCode()
	require.NoError(t, err)

	hash, err := HashMagicCode(code)
	require.NoError(t, err)
	require.NotEqual(t, code, hash)

	require.NoError(t, VerifyMagicCode(hash, code))
	require.Error(t, VerifyMagicCode(hash, "000000"+code))
}

func TestVerifyMagicCode_WrongCode(t *testing.T) {
	hash, err := HashMagicCode("123456")
	require.NoError(t, err)

	require.Error(t, VerifyMagicCode(hash, "654321"))
}
