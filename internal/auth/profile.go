package auth

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Profile is what the agent is told about a user.
type Profile struct {
	DisplayName   string
	Role          string
	ResponseStyle string
}

//nolint:gochecknoglobals // fixed operator roster
var knownProfiles = map[string]Profile{
	"admin":    {DisplayName: "Andrés", Role: "Administrador", ResponseStyle: "estratégico"},
	"contable": {DisplayName: "Allan", Role: "Contable", ResponseStyle: "técnico-detallado"},
	"usuario":  {DisplayName: "Carlos", Role: "Usuario", ResponseStyle: "normativo"},
}

// DefaultProfile maps a username to its profile. Unknown users get their own
// name capitalised, role "Usuario" and a general response style.
func DefaultProfile(username string) Profile {
	key := strings.ToLower(username)
	if p, ok := knownProfiles[key]; ok {
		return p
	}

	r, size := utf8.DecodeRuneInString(username)
	name := username
	if size > 0 {
		name = string(unicode.ToUpper(r)) + username[size:]
	}
	return Profile{DisplayName: name, Role: "Usuario", ResponseStyle: "general"}
}
