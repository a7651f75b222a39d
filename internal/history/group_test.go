package history_test

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/fiscalflow/internal/domain"
	"github.com/gosuda/fiscalflow/internal/history"
)

func summary(id string, at time.Time) *domain.ConversationSummary {
	return &domain.ConversationSummary{SessionID: id, UpdatedAt: at}
}

func TestGroup_Bands(t *testing.T) {
	t.Parallel()

	madrid, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)
	now := time.Date(2026, 10, 15, 9, 30, 0, 0, madrid)

	in := []*domain.ConversationSummary{
		summary("future", now.Add(3*time.Hour)),
		summary("today", time.Date(2026, 10, 15, 0, 5, 0, 0, madrid)),
		summary("yesterday-late", time.Date(2026, 10, 14, 23, 59, 0, 0, madrid)),
		summary("yesterday-early", time.Date(2026, 10, 14, 0, 0, 0, 0, madrid)),
		summary("week", time.Date(2026, 10, 8, 12, 0, 0, 0, madrid)),
		summary("month", time.Date(2026, 9, 20, 12, 0, 0, 0, madrid)),
		summary("older", time.Date(2026, 9, 1, 12, 0, 0, 0, madrid)),
		summary("never", time.Time{}),
	}

	bands := history.Group(in, now)

	got := map[history.BandKey][]string{}
	var order []history.BandKey
	for _, b := range bands {
		order = append(order, b.Key)
		for _, c := range b.Conversations {
			got[b.Key] = append(got[b.Key], c.SessionID)
		}
	}

	assert.Equal(t, []history.BandKey{
		history.BandToday, history.BandYesterday, history.BandThisWeek, history.BandThisMonth, history.BandOlder,
	}, order)
	assert.Equal(t, []string{"future", "today"}, got[history.BandToday])
	assert.Equal(t, []string{"yesterday-late", "yesterday-early"}, got[history.BandYesterday])
	assert.Equal(t, []string{"week"}, got[history.BandThisWeek])
	assert.Equal(t, []string{"month"}, got[history.BandThisMonth])
	assert.Equal(t, []string{"older", "never"}, got[history.BandOlder])
	assert.Equal(t, "Hoy", bands[0].Label)
}

func TestGroup_IsPartition(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	var in []*domain.ConversationSummary
	for h := 0; h < 24*45; h += 7 {
		in = append(in, summary(now.Add(-time.Duration(h)*time.Hour).Format(time.RFC3339), now.Add(-time.Duration(h)*time.Hour)))
	}

	seen := map[string]int{}
	for _, b := range history.Group(in, now) {
		assert.NotEmpty(t, b.Conversations, "empty bands are omitted")
		for _, c := range b.Conversations {
			seen[c.SessionID]++
		}
	}
	require.Len(t, seen, len(in))
	for id, n := range seen {
		assert.Equal(t, 1, n, "%s placed in %d bands", id, n)
	}
}

func TestGroup_UsesViewerCalendar(t *testing.T) {
	t.Parallel()

	// 23:30 UTC on the 14th is already the 15th in Madrid.
	at := time.Date(2026, 10, 14, 23, 30, 0, 0, time.UTC)
	in := []*domain.ConversationSummary{summary("x", at)}

	utcNow := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	madrid, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)

	assert.Equal(t, history.BandYesterday, history.Group(in, utcNow)[0].Key)
	assert.Equal(t, history.BandToday, history.Group(in, utcNow.In(madrid))[0].Key)
}

func TestGroup_Empty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, history.Group(nil, time.Now()))
}
