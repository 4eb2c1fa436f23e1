// Package auth issues and verifies the bearer tokens that carry a caller's
// identity and role. Tokens are HS256 JWTs with the subject in "sub" and the
// role (brand or user) in a private "role" claim.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/go-discount-backend/internal/domain"
)

var (
	// ErrInvalidToken is returned for malformed, expired or badly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidRole is returned when a role is neither brand nor user.
	ErrInvalidRole = errors.New("role must be brand or user")
	// ErrInvalidSubject is returned when the subject is empty or too long.
	ErrInvalidSubject = errors.New("subject must be 1-64 characters")
)

// Identity is the authenticated caller.
type Identity struct {
	Subject string
	Role    string
}

// Claims is the JWT payload.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies tokens with a shared secret.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an Issuer. The secret must be at least 16 bytes.
func NewIssuer(secret, issuer string, ttl time.Duration) (*Issuer, error) {
	if len(secret) < 16 {
		return nil, errors.New("JWT secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	return role == domain.RoleBrand || role == domain.RoleUser
}

// Issue signs a token for subject with the given role and returns it with its
// expiry.
func (i *Issuer) Issue(subject, role string) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" || len(subject) > 64 {
		return "", time.Time{}, ErrInvalidSubject
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if !ValidRole(role) {
		return "", time.Time{}, ErrInvalidRole
	}

	now := i.now().UTC()
	exp := now.Add(i.ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses and validates a token and returns the identity it carries.
func (i *Issuer) Verify(token string) (Identity, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || !ValidRole(claims.Role) {
		return Identity{}, ErrInvalidToken
	}
	return Identity{Subject: claims.Subject, Role: claims.Role}, nil
}
