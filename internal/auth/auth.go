// Package auth verifies the bearer tokens that carry a student's identity.
//
// Tokens are HS256 JWTs minted by the identity provider with a shared secret.
// houra never stores credentials; it only checks signature, issuer, expiry
// and the student claims.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role is the caller's role as asserted by the identity provider.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// minSecretLen is the shortest HMAC secret accepted.
const minSecretLen = 32

// Claims extends jwt.RegisteredClaims with the student identity.
type Claims struct {
	jwt.RegisteredClaims
	StudentID uuid.UUID `json:"student_id"`
	Role      Role      `json:"role"`
	Approved  bool      `json:"approved"`
}

// Identity is what handlers need from a verified token.
type Identity struct {
	// ActorID is the token subject, recorded on audit events.
	ActorID   string
	StudentID uuid.UUID
	Role      Role
	Approved  bool
}

// Identity returns the handler-facing view of c.
func (c *Claims) Identity() Identity {
	return Identity{ActorID: c.Subject, StudentID: c.StudentID, Role: c.Role, Approved: c.Approved}
}

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("auth: invalid token")

// JWTManager issues and validates HS256 tokens.
type JWTManager struct {
	secret     []byte
	issuer     string
	expiration time.Duration
}

// NewJWTManager creates a JWTManager. An empty secret generates an ephemeral
// one, which is only useful for development since no other party can mint
// tokens for it.
func NewJWTManager(secret, issuer string, expiration time.Duration) (*JWTManager, error) {
	if issuer == "" {
		issuer = "houra"
	}
	if secret == "" {
		slog.Warn("auth: no JWT secret configured, generating ephemeral secret (not for production)")
		buf := make([]byte, minSecretLen)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("auth: generate secret: %w", err)
		}
		return &JWTManager{secret: buf, issuer: issuer, expiration: expiration}, nil
	}
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("auth: secret must be at least %d bytes", minSecretLen)
	}
	return &JWTManager{secret: []byte(secret), issuer: issuer, expiration: expiration}, nil
}

// IssueToken creates a signed token for id. It backs the dev CLI and tests;
// production tokens come from the identity provider.
func (m *JWTManager) IssueToken(id Identity) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(m.expiration)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ActorID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
		StudentID: id.StudentID,
		Role:      id.Role,
		Approved:  id.Approved,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}

// ValidateToken parses and validates a token, returning its claims.
func (m *JWTManager) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return m.secret, nil
		},
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: bad claims", ErrInvalidToken)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
