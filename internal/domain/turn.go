package domain

// Role of a turn in a transcript.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// RoleFromTag maps a log role tag to a transcript role: "human" is the user,
// everything else is the assistant.
func RoleFromTag(tag string) Role {
	if tag == RoleTagHuman {
		return RoleUser
	}
	return RoleAssistant
}

// Turn is one role-tagged message of a conversation.
type Turn struct {
	ID       string `json:"id"`
	Role     Role   `json:"role"`
	Text     string `json:"content"`
	ReportID string `json:"report_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// HasError reports whether the turn carries an error marker.
func (t *Turn) HasError() bool {
	return t.Error != ""
}
