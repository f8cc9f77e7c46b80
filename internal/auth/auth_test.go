package auth_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houra-app/houra/internal/auth"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newManager(t *testing.T) *auth.JWTManager {
	t.Helper()
	m, err := auth.NewJWTManager(testSecret, "houra-test", time.Hour)
	require.NoError(t, err)
	return m
}

func TestJWTIssueAndValidate(t *testing.T) {
	m := newManager(t)
	id := auth.Identity{ActorID: "user-42", StudentID: uuid.New(), Role: auth.RoleStudent, Approved: true}

	token, exp, err := m.IssueToken(id)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.Identity())
}

func TestNewJWTManager_RejectsShortSecret(t *testing.T) {
	_, err := auth.NewJWTManager("short", "", time.Hour)
	require.Error(t, err)
}

func TestNewJWTManager_EphemeralSecret(t *testing.T) {
	a, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	b, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	token, _, err := a.IssueToken(auth.Identity{ActorID: "x", Role: auth.RoleStudent})
	require.NoError(t, err)
	_, err = a.ValidateToken(token)
	require.NoError(t, err)
	_, err = b.ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken, "ephemeral secrets differ per manager")
}

func TestValidateToken_Rejections(t *testing.T) {
	m := newManager(t)
	other, err := auth.NewJWTManager(strings.Repeat("z", 32), "houra-test", time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := auth.NewJWTManager(testSecret, "someone-else", time.Hour)
	require.NoError(t, err)
	expired, err := auth.NewJWTManager(testSecret, "houra-test", -time.Minute)
	require.NoError(t, err)

	id := auth.Identity{ActorID: "user-1", StudentID: uuid.New(), Role: auth.RoleStudent, Approved: true}
	issue := func(mgr *auth.JWTManager) string {
		tok, _, err := mgr.IssueToken(id)
		require.NoError(t, err)
		return tok
	}

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Issuer: "houra-test"},
	})
	noExpStr, err := noExp.SignedString([]byte(testSecret))
	require.NoError(t, err)

	noneAlg := jwt.NewWithClaims(jwt.SigningMethodNone, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user-1", Issuer: "houra-test", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	noneStr, err := noneAlg.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"wrong secret":     issue(other),
		"wrong issuer":     issue(wrongIssuer),
		"expired":          issue(expired),
		"no expiry":        noExpStr,
		"alg none":         noneStr,
		"garbage":          "not.a.jwt",
		"tampered payload": tamper(issue(m)),
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := m.ValidateToken(tok)
			require.Error(t, err)
			assert.True(t, errors.Is(err, auth.ErrInvalidToken))
		})
	}
}

func TestValidateToken_RequiresSubject(t *testing.T) {
	m := newManager(t)
	tok, _, err := m.IssueToken(auth.Identity{StudentID: uuid.New(), Role: auth.RoleStudent})
	require.NoError(t, err)
	_, err = m.ValidateToken(tok)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

// tamper flips a character in the payload segment so the signature no
// longer matches.
func tamper(tok string) string {
	parts := strings.Split(tok, ".")
	b := []byte(parts[1])
	if b[0] == 'A' {
		b[0] = 'B'
	} else {
		b[0] = 'A'
	}
	parts[1] = string(b)
	return strings.Join(parts, ".")
}
