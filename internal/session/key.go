// Package session derives the user-scoped correlation keys that tie a browser
// conversation to its records in the shared chat log.
package session

import (
	"strings"

	"github.com/google/uuid"
)

// Separator joins the username and the per-conversation token.
const Separator = "_"

// BuildKey scopes a conversation token to a user. Without a username the token
// is returned unchanged.
func BuildKey(token, username string) string {
	if username == "" {
		return token
	}
	return username + Separator + token
}

// UserPrefix is the prefix every scoped key of username starts with.
func UserPrefix(username string) string {
	return username + Separator
}

// Owns reports whether key belongs to username. An empty username owns nothing.
func Owns(key, username string) bool {
	if username == "" {
		return false
	}
	prefix := UserPrefix(username)
	return len(key) > len(prefix) && strings.HasPrefix(key, prefix)
}

// NewToken returns a fresh conversation token.
func NewToken() string {
	return uuid.NewString()
}

// Resolve turns whatever the client sent into a scoped key. An empty token
// starts a new conversation; a token that already carries the caller's prefix
// resumes a listed conversation as is; anything else is scoped.
func Resolve(token, username string) (key string, created bool) {
	if token == "" {
		return BuildKey(NewToken(), username), true
	}
	if Owns(token, username) {
		return token, false
	}
	return BuildKey(token, username), false
}
