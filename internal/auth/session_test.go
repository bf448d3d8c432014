package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	s := NewSessions("secret", time.Hour)
	token, err := s.Issue("u1", "crawler")
	require.NoError(t, err)

	claims, err := s.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "crawler", claims.Username)
}

func TestValidateRejectsForeignAndExpiredTokens(t *testing.T) {
	s := NewSessions("secret", time.Hour)

	other := NewSessions("other", time.Hour)
	foreign, err := other.Issue("u1", "crawler")
	require.NoError(t, err)
	_, err = s.Validate(foreign)
	assert.ErrorIs(t, err, ErrInvalidSession)

	expired := NewSessions("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue("u1", "crawler")
	require.NoError(t, err)
	_, err = s.Validate(old)
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = s.Validate("")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestValidateRejectsNoneAlgorithm(t *testing.T) {
	s := NewSessions("secret", time.Hour)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = s.Validate(unsigned)
	assert.ErrorIs(t, err, ErrInvalidSession)
}
