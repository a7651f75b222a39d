package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseActivity(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	got := parseActivity(map[string]string{
		"admin_a": "1792054800000",
		"admin_b": "not-a-number",
	})

	assert.Len(t, got, 1)
	assert.True(t, got["admin_a"].Equal(at), "got %s", got["admin_a"])
}
