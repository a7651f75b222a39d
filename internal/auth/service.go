package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"

	"github.com/gosuda/fiscalflow/internal/domain"
)

// Sentinel errors for the auth package.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUserAlreadyExists  = errors.New("auth: user already exists")
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrInvalidUsername    = errors.New("auth: username must be 1-64 letters, digits, '.' or '-'")
	ErrWeakPassword       = errors.New("auth: password must be at least 8 characters")
	ErrTokenRevoked       = errors.New("auth: token revoked")
)

// argon2id parameters following OWASP recommendations.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // 64 MiB
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16

	minPasswordLen = 8
	maxUsernameLen = 64
)

// Revoker remembers logged-out token ids until they expire.
type Revoker interface {
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Tokens is the pair handed out at login.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Service provides authentication and authorization operations.
type Service struct {
	userRepo   domain.UserRepository
	revoker    Revoker
	jwtSecret  string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewService creates a new auth service. A nil revoker disables logout
// revocation; tokens then live until expiry.
func NewService(userRepo domain.UserRepository, revoker Revoker, jwtSecret string, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		userRepo:   userRepo,
		revoker:    revoker,
		jwtSecret:  jwtSecret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// CreateUser stores a new operator. Display name, role and response style
// come from the role profile when role is empty.
func (s *Service) CreateUser(ctx context.Context, username, password, role string) (*domain.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if err := ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("auth.CreateUser: %w", err)
	}
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("auth.CreateUser: %w", ErrWeakPassword)
	}

	existing, err := s.userRepo.GetByUsername(ctx, username)
	if err == nil && existing != nil {
		return nil, fmt.Errorf("auth.CreateUser: %w", ErrUserAlreadyExists)
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("auth.CreateUser: %w", err)
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("auth.CreateUser: %w", err)
	}

	profile := DefaultProfile(username)
	if role != "" {
		profile.Role = role
	}

	now := s.now()
	user := &domain.User{
		ID:            uuid.New(),
		Username:      username,
		PasswordHash:  hash,
		DisplayName:   profile.DisplayName,
		Role:          profile.Role,
		ResponseStyle: profile.ResponseStyle,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("auth.CreateUser: %w", err)
	}

	return user, nil
}

// Login validates username/password and returns access + refresh JWT tokens.
func (s *Service) Login(ctx context.Context, username, password string) (*Tokens, *domain.Principal, error) {
	user, err := s.userRepo.GetByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		return nil, nil, fmt.Errorf("auth.Login: %w", ErrInvalidCredentials)
	}

	if !verifyPassword(password, user.PasswordHash) {
		return nil, nil, fmt.Errorf("auth.Login: %w", ErrInvalidCredentials)
	}

	p := user.Principal()
	tokens, err := s.issuePair(p)
	if err != nil {
		return nil, nil, fmt.Errorf("auth.Login: %w", err)
	}

	return tokens, p, nil
}

// Refresh validates a refresh token, re-reads the user and issues a new pair.
// The used refresh token is revoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	claims, err := s.validate(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("auth.Refresh: %w", err)
	}
	if claims.TokenType != tokenTypeRefresh {
		return nil, fmt.Errorf("auth.Refresh: %w", ErrInvalidToken)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("auth.Refresh: %w", ErrInvalidToken)
	}

	// Verify the user still exists and pick up profile changes.
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("auth.Refresh: %w", ErrUserNotFound)
	}

	if err := s.revoke(ctx, claims); err != nil {
		return nil, fmt.Errorf("auth.Refresh: %w", err)
	}

	tokens, err := s.issuePair(user.Principal())
	if err != nil {
		return nil, fmt.Errorf("auth.Refresh: %w", err)
	}

	return tokens, nil
}

// Logout revokes every token passed. Invalid tokens are ignored so a
// client can always log out.
func (s *Service) Logout(ctx context.Context, tokens ...string) error {
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		claims, err := ValidateToken(s.jwtSecret, tok)
		if err != nil {
			continue
		}
		if err := s.revoke(ctx, claims); err != nil {
			return fmt.Errorf("auth.Logout: %w", err)
		}
	}
	return nil
}

// Authenticate turns an access token into the caller principal.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*domain.Principal, error) {
	claims, err := s.validate(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("auth.Authenticate: %w", err)
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, fmt.Errorf("auth.Authenticate: %w", ErrInvalidToken)
	}

	p, err := claims.Principal()
	if err != nil {
		return nil, fmt.Errorf("auth.Authenticate: %w", err)
	}

	return p, nil
}

func (s *Service) validate(ctx context.Context, token string) (*Claims, error) {
	claims, err := ValidateToken(s.jwtSecret, token)
	if err != nil {
		return nil, err
	}
	if s.revoker == nil {
		return claims, nil
	}

	revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

func (s *Service) revoke(ctx context.Context, claims *Claims) error {
	if s.revoker == nil {
		return nil
	}
	return s.revoker.RevokeToken(ctx, claims.ID, claims.remaining(s.now()))
}

func (s *Service) issuePair(p *domain.Principal) (*Tokens, error) {
	access, err := IssueAccessToken(s.jwtSecret, p, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := IssueRefreshToken(s.jwtSecret, p, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &Tokens{AccessToken: access, RefreshToken: refresh, ExpiresIn: s.accessTTL}, nil
}

// ValidateUsername rejects names that could not be told apart inside a
// session key. The underscore is the key separator.
func ValidateUsername(username string) error {
	if username == "" || len(username) > maxUsernameLen {
		return ErrInvalidUsername
	}
	for _, r := range username {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' {
			continue
		}
		return ErrInvalidUsername
	}
	return nil
}

// hashPassword generates an argon2id hash with a random salt.
// Format: hex(salt) + "$" + hex(hash)
func hashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(hash), nil
}

// verifyPassword checks a password against an argon2id hash.
func verifyPassword(password, encoded string) bool {
	saltHex, hashHex, ok := strings.Cut(encoded, "$")
	if !ok || saltHex == "" || hashHex == "" {
		return false
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}

	expectedHash, err := hex.DecodeString(hashHex)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return subtle.ConstantTimeCompare(computed, expectedHash) == 1
}
