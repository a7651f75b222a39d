package history

import (
	"time"

	"github.com/gosuda/fiscalflow/internal/domain"
)

// BandKey identifies a recency band.
type BandKey string

const (
	BandToday     BandKey = "today"
	BandYesterday BandKey = "yesterday"
	BandThisWeek  BandKey = "this_week"
	BandThisMonth BandKey = "this_month"
	BandOlder     BandKey = "older"
)

var bandLabels = map[BandKey]string{ //nolint:gochecknoglobals // display labels
	BandToday:     "Hoy",
	BandYesterday: "Ayer",
	BandThisWeek:  "Esta semana",
	BandThisMonth: "Este mes",
	BandOlder:     "Anteriores",
}

var bandOrder = []BandKey{BandToday, BandYesterday, BandThisWeek, BandThisMonth, BandOlder} //nolint:gochecknoglobals // fixed output order

// Band is one non-empty recency group.
type Band struct {
	Key           BandKey                       `json:"key"`
	Label         string                        `json:"label"`
	Conversations []*domain.ConversationSummary `json:"conversations"`
}

// Group partitions summaries into recency bands using calendar days in
// now's location. Bands come out in fixed order, empty ones omitted; within a
// band the input order is kept.
func Group(summaries []*domain.ConversationSummary, now time.Time) []Band {
	loc := now.Location()
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)

	bounds := []struct {
		key   BandKey
		start time.Time
	}{
		{BandToday, today},
		{BandYesterday, today.AddDate(0, 0, -1)},
		{BandThisWeek, today.AddDate(0, 0, -7)},
		{BandThisMonth, today.AddDate(0, 0, -30)},
	}

	buckets := make(map[BandKey][]*domain.ConversationSummary, len(bandOrder))
	for _, s := range summaries {
		key := BandOlder
		if !s.UpdatedAt.IsZero() {
			t := s.UpdatedAt.In(loc)
			for _, b := range bounds {
				if !t.Before(b.start) {
					key = b.key
					break
				}
			}
		}
		buckets[key] = append(buckets[key], s)
	}

	bands := make([]Band, 0, len(bandOrder))
	for _, key := range bandOrder {
		if len(buckets[key]) == 0 {
			continue
		}
		bands = append(bands, Band{Key: key, Label: bandLabels[key], Conversations: buckets[key]})
	}
	return bands
}
