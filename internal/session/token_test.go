package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestUserIDFromToken(t *testing.T) {
	tok := signToken(t, "secret", jwt.MapClaims{
		"sub": "user_01abc",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	userID, err := UserIDFromToken(tok, "secret")
	require.NoError(t, err)
	require.Equal(t, "user_01abc", userID)
}

func TestEmptyTokenIsUnauthenticated(t *testing.T) {
	userID, err := UserIDFromToken("", "secret")
	require.NoError(t, err)
	require.Empty(t, userID)
}

func TestBadSignatureRejected(t *testing.T) {
	tok := signToken(t, "other-secret", jwt.MapClaims{"sub": "user_01abc"})
	_, err := UserIDFromToken(tok, "secret")
	require.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	tok := signToken(t, "secret", jwt.MapClaims{
		"sub": "user_01abc",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	_, err := UserIDFromToken(tok, "secret")
	require.Error(t, err)
}

func TestMissingSubjectRejected(t *testing.T) {
	tok := signToken(t, "secret", jwt.MapClaims{"iat": time.Now().Unix()})
	_, err := UserIDFromToken(tok, "secret")
	require.ErrorIs(t, err, ErrInvalidToken)
}
