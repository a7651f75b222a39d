package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/gosuda/fiscalflow/internal/chat"
	"github.com/gosuda/fiscalflow/internal/domain"
	"github.com/gosuda/fiscalflow/internal/history"
)

var (
	colorAccent  = lipgloss.Color("#20B9B4") //nolint:gochecknoglobals // palette
	colorMuted   = lipgloss.Color("#6C7A89") //nolint:gochecknoglobals // palette
	colorWarning = lipgloss.Color("#F4D03F") //nolint:gochecknoglobals // palette
	colorError   = lipgloss.Color("#E74C3C") //nolint:gochecknoglobals // palette
)

//nolint:gochecknoglobals // terminal styles
var styles = struct {
	Band    lipgloss.Style
	Title   lipgloss.Style
	Muted   lipgloss.Style
	User    lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Report  lipgloss.Style
}{
	Band:    lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
	Title:   lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(colorMuted),
	User:    lipgloss.NewStyle().Foreground(colorAccent),
	Warning: lipgloss.NewStyle().Foreground(colorWarning),
	Error:   lipgloss.NewStyle().Foreground(colorError),
	Report:  lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
}

// renderBands prints grouped conversations, one band header per group.
func renderBands(w io.Writer, bands []history.Band, loc *time.Location) {
	if len(bands) == 0 {
		fmt.Fprintln(w, styles.Muted.Render("No hay conversaciones."))
		return
	}
	for i, b := range bands {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, styles.Band.Render(b.Label))
		for _, c := range b.Conversations {
			fmt.Fprintf(w, "  %s %s\n", styles.Title.Render(c.Title), styles.Muted.Render(conversationMeta(c, loc)))
			if c.LastMessage != "" {
				fmt.Fprintf(w, "    %s\n", c.LastMessage)
			}
			fmt.Fprintf(w, "    %s\n", styles.Muted.Render(c.SessionID))
		}
	}
}

func conversationMeta(c *domain.ConversationSummary, loc *time.Location) string {
	meta := fmt.Sprintf("(%d mensajes", c.MessageCount)
	if !c.UpdatedAt.IsZero() {
		meta += ", " + c.UpdatedAt.In(loc).Format("02/01/2006 15:04")
	}
	return meta + ")"
}

// renderTranscript prints a stored conversation.
func renderTranscript(w io.Writer, turns []*domain.Turn) {
	for _, t := range turns {
		if t.Role == domain.RoleUser {
			fmt.Fprintf(w, "%s %s\n\n", styles.User.Render("tú>"), t.Text)
			continue
		}
		fmt.Fprintf(w, "%s\n", t.Text)
		if t.ReportID != "" {
			renderReport(w, t.ReportID)
		}
		fmt.Fprintln(w)
	}
}

// renderOutcome finishes a live turn. streamed is what was already echoed;
// the rest of the turn text is the failure notice.
func renderOutcome(w io.Writer, turn domain.Turn, streamed string) {
	if streamed != "" && !strings.HasSuffix(streamed, "\n") {
		fmt.Fprintln(w)
	}
	if !turn.HasError() {
		if turn.ReportID != "" {
			renderReport(w, turn.ReportID)
		}
		return
	}

	notice := strings.TrimSpace(strings.TrimPrefix(turn.Text, streamed))
	if notice == "" {
		return
	}
	style := styles.Error
	if turn.Error == chat.MarkerTimeout || turn.Error == chat.MarkerBusy {
		style = styles.Warning
	}
	fmt.Fprintln(w, style.Render(notice))
}

func renderReport(w io.Writer, id string) {
	fmt.Fprintf(w, "%s %s\n", styles.Report.Render("Informe:"), id)
}
