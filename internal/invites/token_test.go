package invites

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

	token2, hash2, err := GenerateToken()
	require.NoError(t, err)
	require.NotEqual(t, token, token2)
	require.NotEqual(t, hash, hash2)
}

func TestValidateTokenFormat(t *testing.T) {
	token, _, err := GenerateToken()
	require.NoError(t, err)
	require.True(t, ValidateTokenFormat(token))

	require.False(t, ValidateTokenFormat(""))
	require.False(t, ValidateTokenFormat("pti_"))
	require.False(t, ValidateTokenFormat("pti_!!!not-base64!!!"))
	require.False(t, ValidateTokenFormat("ppi_"+token[len(TokenPrefix):]))
	require.False(t, ValidateTokenFormat(token[len(TokenPrefix):]))
	// Right prefix, wrong entropy length.
	require.False(t, ValidateTokenFormat(TokenPrefix+"c2hvcnQ"))
}
