package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	InitJWT("test-secret")

	token, err := GenerateToken(42)
	require.NoError(t, err)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
}

func TestParseTokenWrongSecret(t *testing.T) {
	InitJWT("secret-a")
	token, err := GenerateToken(1)
	require.NoError(t, err)

	InitJWT("secret-b")
	_, err = ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenGarbage(t *testing.T) {
	InitJWT("test-secret")
	_, err := ParseToken("not-a-token")
	assert.Error(t, err)
}
