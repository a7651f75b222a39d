package relay

import (
	"fmt"
	"strings"

	"github.com/gosuda/fiscalflow/internal/domain"
)

const actionSendMessage = "sendMessage"

// UserMetadata tells the agent who is asking and how to answer.
type UserMetadata struct {
	UserID        string `json:"userId"`
	UserName      string `json:"userName"`
	UserRole      string `json:"userRole"`
	ResponseStyle string `json:"responseStyle"`
}

// MetadataFor builds the metadata block from an authenticated principal.
func MetadataFor(p *domain.Principal) UserMetadata {
	if p == nil {
		return UserMetadata{}
	}
	return UserMetadata{
		UserID:        p.UserID.String(),
		UserName:      p.DisplayName,
		UserRole:      p.Role,
		ResponseStyle: p.ResponseStyle,
	}
}

// File is an attachment forwarded with the turn. Data is base64.
type File struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data string `json:"data"`
}

// Request is one user turn bound for the remote agent.
type Request struct {
	Text      string
	SessionID string // scoped key
	User      UserMetadata
	File      *File
}

// Validate rejects turns with neither text nor attachment.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Text) == "" && (r.File == nil || r.File.Data == "") {
		return fmt.Errorf("relay: empty turn without attachment: %w", domain.ErrInvalidRequest)
	}
	if r.SessionID == "" {
		return fmt.Errorf("relay: missing session id: %w", domain.ErrInvalidRequest)
	}
	return nil
}

type webhookPayload struct {
	Action       string       `json:"action"`
	ChatInput    string       `json:"chatInput"`
	SessionID    string       `json:"sessionId"`
	UserMetadata UserMetadata `json:"userMetadata"`
	File         *File        `json:"file,omitempty"`
}

func (r *Request) payload() webhookPayload {
	return webhookPayload{
		Action:       actionSendMessage,
		ChatInput:    r.Text,
		SessionID:    r.SessionID,
		UserMetadata: r.User,
		File:         r.File,
	}
}
