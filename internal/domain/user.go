package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is an operator allowed to talk to the remote agent.
type User struct {
	ID            uuid.UUID
	Username      string
	PasswordHash  string // argon2id
	DisplayName   string
	Role          string // "Administrador", "Contable", "Usuario"
	ResponseStyle string // tone hint forwarded to the agent
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Principal is the authenticated caller carried through a request context.
// It is created at login, travels inside the access token and dies with it
// (expiry or logout).
type Principal struct {
	UserID        uuid.UUID `json:"user_id"`
	Username      string    `json:"username"`
	DisplayName   string    `json:"display_name"`
	Role          string    `json:"role"`
	ResponseStyle string    `json:"response_style"`
}

// Principal returns the request-scoped view of the user.
func (u *User) Principal() *Principal {
	return &Principal{
		UserID:        u.ID,
		Username:      u.Username,
		DisplayName:   u.DisplayName,
		Role:          u.Role,
		ResponseStyle: u.ResponseStyle,
	}
}

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Create(ctx context.Context, u *User) error
	List(ctx context.Context) ([]*User, error)
}
