package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret, sub string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTVerifier_ValidToken(t *testing.T) {
	v, err := NewJWTVerifier("s3cret")
	require.NoError(t, err)

	uid, err := v.Verify(context.Background(), signToken(t, "s3cret", "u1", time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)
}

func TestJWTVerifier_FailsClosed(t *testing.T) {
	v, err := NewJWTVerifier("s3cret")
	require.NoError(t, err)

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"wrong secret": signToken(t, "other", "u1", time.Now().Add(time.Hour)),
		"expired":      signToken(t, "s3cret", "u1", time.Now().Add(-time.Hour)),
	}
	for name, tok := range cases {
		if _, err := v.Verify(context.Background(), tok); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestJWTVerifier_MissingSubject(t *testing.T) {
	v, _ := NewJWTVerifier("s3cret")
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	s, err := tok.SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), s)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
