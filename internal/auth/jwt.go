package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gosuda/fiscalflow/internal/domain"
)

// Claims holds the JWT token payload. The principal travels inside the token
// so requests need no user lookup.
type Claims struct {
	jwt.RegisteredClaims
	Username      string `json:"usr"`
	DisplayName   string `json:"name"`
	Role          string `json:"role"`
	ResponseStyle string `json:"style"`
	TokenType     string `json:"typ"` // "access" or "refresh"
}

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	issuer = "fiscalflow"
)

// ErrInvalidToken is returned when a JWT cannot be parsed or has expired.
var ErrInvalidToken = errors.New("auth: invalid or expired token")

// IssueAccessToken creates a signed JWT access token.
func IssueAccessToken(secret string, p *domain.Principal, ttl time.Duration) (string, error) {
	return issueToken(secret, p, tokenTypeAccess, ttl)
}

// IssueRefreshToken creates a signed JWT refresh token.
func IssueRefreshToken(secret string, p *domain.Principal, ttl time.Duration) (string, error) {
	return issueToken(secret, p, tokenTypeRefresh, ttl)
}

func issueToken(secret string, p *domain.Principal, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
		Username:      p.Username,
		DisplayName:   p.DisplayName,
		Role:          p.Role,
		ResponseStyle: p.ResponseStyle,
		TokenType:     tokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth.issueToken: %w", err)
	}

	return signed, nil
}

// ValidateToken parses and validates a JWT token string. Returns the embedded claims.
func ValidateToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("auth.ValidateToken: %w", ErrInvalidToken)
	}

	if !token.Valid || claims.ID == "" {
		return nil, fmt.Errorf("auth.ValidateToken: %w", ErrInvalidToken)
	}

	return claims, nil
}

// Principal rebuilds the caller carried by the token.
func (c *Claims) Principal() (*domain.Principal, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil || c.Username == "" {
		return nil, fmt.Errorf("auth.Claims.Principal: %w", ErrInvalidToken)
	}
	return &domain.Principal{
		UserID:        id,
		Username:      c.Username,
		DisplayName:   c.DisplayName,
		Role:          c.Role,
		ResponseStyle: c.ResponseStyle,
	}, nil
}

// remaining is how long the token stays valid, used as the revocation TTL.
func (c *Claims) remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Sub(now)
}
