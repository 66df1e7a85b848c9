package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_SignAndVerify(t *testing.T) {
	s := NewJWTService("secret", 0)

	token, err := s.SignToken("a@x.com")
	require.NoError(t, err)

	claims, err := s.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.NotNil(t, claims.IssuedAt)
	assert.Nil(t, claims.ExpiresAt)

	id, err := s.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{Email: "a@x.com"}, id)
}

func TestJWTService_TTL(t *testing.T) {
	s := NewJWTService("secret", time.Hour)
	issued := time.Now()
	s.now = func() time.Time { return issued }

	token, err := s.SignToken("a@x.com")
	require.NoError(t, err)

	claims, err := s.VerifyToken(token)
	require.NoError(t, err)
	require.NotNil(t, claims.ExpiresAt)

	s.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = s.VerifyToken(token)
	assert.Error(t, err)
}

func TestJWTService_rejects(t *testing.T) {
	s := NewJWTService("secret", 0)

	other, err := NewJWTService("other-secret", 0).SignToken("a@x.com")
	require.NoError(t, err)
	_, err = s.VerifyToken(other)
	assert.Error(t, err, "foreign signature")

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, &JWTClaims{Email: "a@x.com"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = s.VerifyToken(hs512)
	assert.Error(t, err, "unexpected algorithm")

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &JWTClaims{Email: "a@x.com"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.VerifyToken(none)
	assert.Error(t, err, "alg none")

	noEmail, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = s.VerifyToken(noEmail)
	assert.Error(t, err, "missing email")

	for _, garbage := range []string{"", "abc", "a.b.c"} {
		_, err = s.VerifyToken(garbage)
		assert.Error(t, err, garbage)
	}
}
