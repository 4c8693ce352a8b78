package platform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	token, hash, err := GenerateToken()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(token, TokenPrefix))
	require.Len(t, hash, 32)
	require.Equal(t, HashToken(token), hash)
}

func TestValidateTokenFormat(t *testing.T) {
	token, _, err := GenerateToken()
	require.NoError(t, err)
	require.True(t, ValidateTokenFormat(token))

	require.False(t, ValidateTokenFormat(""))
	require.False(t, ValidateTokenFormat("ppi_"))
	// Tenant-invitation tokens must not pass as platform tokens.
	require.False(t, ValidateTokenFormat("pti_"+token[len(TokenPrefix):]))
}
