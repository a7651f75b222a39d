package chat

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/gosuda/fiscalflow/internal/domain"
)

// Error markers carried by failed assistant turns.
const (
	MarkerTimeout  = "timeout"
	MarkerUpstream = "upstream"
	MarkerInvalid  = "invalid_request"
	MarkerBusy     = "busy"
	MarkerNetwork  = "network"
)

// ErrNoOpenTurn is returned when appending to or closing a turn that is not open.
var ErrNoOpenTurn = errors.New("chat: no assistant turn is open")

// Conversation is a client-side transcript. At most one assistant turn is
// open at a time; closed turns are never modified.
type Conversation struct {
	mu        sync.Mutex
	sessionID string
	turns     []domain.Turn
	open      *domain.Turn
	seq       int
}

func NewConversation(sessionID string) *Conversation {
	return &Conversation{sessionID: sessionID}
}

func (c *Conversation) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SetSessionID records the scoped key assigned by the server on the first turn.
func (c *Conversation) SetSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// Load replaces the transcript with turns read from history.
func (c *Conversation) Load(sessionID string, turns []*domain.Turn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open != nil {
		return fmt.Errorf("chat.Conversation.Load: %w", domain.ErrBusy)
	}
	c.sessionID = sessionID
	c.turns = c.turns[:0]
	for _, t := range turns {
		c.turns = append(c.turns, *t)
	}
	c.seq = len(c.turns)
	return nil
}

// Begin records the user turn and opens an empty assistant turn.
func (c *Conversation) Begin(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open != nil {
		return fmt.Errorf("chat.Conversation.Begin: %w", domain.ErrBusy)
	}
	c.turns = append(c.turns, domain.Turn{ID: c.nextID(), Role: domain.RoleUser, Text: text})
	c.open = &domain.Turn{ID: c.nextID(), Role: domain.RoleAssistant}
	return nil
}

// Append adds a streamed fragment to the open assistant turn.
func (c *Conversation) Append(fragment string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open == nil {
		return ErrNoOpenTurn
	}
	c.open.Text += fragment
	return nil
}

// Complete closes the open turn, attaching the report id when there is one.
func (c *Conversation) Complete(reportID string) (domain.Turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open == nil {
		return domain.Turn{}, ErrNoOpenTurn
	}
	c.open.ReportID = reportID
	return c.closeOpen(), nil
}

// Fail closes the open turn with an error marker. text is shown to the
// user, after any partial answer.
func (c *Conversation) Fail(marker, text string) (domain.Turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open == nil {
		return domain.Turn{}, ErrNoOpenTurn
	}
	switch {
	case text == "":
	case c.open.Text == "":
		c.open.Text = text
	default:
		c.open.Text += "\n\n" + text
	}
	c.open.Error = marker
	return c.closeOpen(), nil
}

// Open reports whether an assistant turn is filling.
func (c *Conversation) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open != nil
}

// Turns returns a copy of the transcript, the open turn last.
func (c *Conversation) Turns() []domain.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Turn, 0, len(c.turns)+1)
	out = append(out, c.turns...)
	if c.open != nil {
		out = append(out, *c.open)
	}
	return out
}

func (c *Conversation) closeOpen() domain.Turn {
	t := *c.open
	c.turns = append(c.turns, t)
	c.open = nil
	return t
}

func (c *Conversation) nextID() string {
	c.seq++
	return "local-" + strconv.Itoa(c.seq)
}
