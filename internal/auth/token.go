package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"galleria/internal/models"
)

const minSecretLength = 32

var (
	// ErrNoCredential indicates the request carried no bearer token at all.
	ErrNoCredential = errors.New("no token provided")
	// ErrInvalidCredential covers malformed, forged, and expired tokens.
	ErrInvalidCredential = errors.New("invalid or expired token")
)

// TokenManager issues and verifies the stateless bearer credential. Tokens
// are HS256-signed JWTs carrying the user id as subject; role claims are
// informational only and are never trusted for authorization, which re-reads
// roles from storage on every request.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenManager validates the signing secret and returns a manager. The
// secret must be at least 32 bytes for HS256.
func NewTokenManager(secret, issuer string, ttl time.Duration) (*TokenManager, error) {
	trimmed := strings.TrimSpace(secret)
	if len(trimmed) < minSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d characters", minSecretLength)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{secret: []byte(trimmed), issuer: strings.TrimSpace(issuer), ttl: ttl}, nil
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// Issue signs a credential for the user and reports its expiry.
func (m *TokenManager) Issue(user models.User) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(m.ttl)
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username: user.Username,
		Email:    user.Email,
		Roles:    append([]string(nil), user.Roles...),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate checks signature, expiry, and issuer and returns the subject id.
// All verification failures collapse into ErrInvalidCredential so callers
// cannot leak why a credential was rejected.
func (m *TokenManager) Validate(credential string) (string, error) {
	if strings.TrimSpace(credential) == "" {
		return "", ErrNoCredential
	}
	parsed, err := jwt.ParseWithClaims(credential, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return "", ErrInvalidCredential
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidCredential
	}
	if m.issuer != "" && claims.Issuer != m.issuer {
		return "", ErrInvalidCredential
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidCredential
	}
	return claims.Subject, nil
}
