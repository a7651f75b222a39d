package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gosuda/fiscalflow/internal/domain"
)

// releaseScript deletes the flag only if it still carries our token, so a
// flag that expired and was taken by a newer turn is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`) //nolint:gochecknoglobals // compiled once

// AcquireTurn sets the busy flag of a conversation for ttl. It returns
// domain.ErrBusy while another turn holds it, and a token for ReleaseTurn.
func (c *Client) AcquireTurn(ctx context.Context, sessionID string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, BusyKey(sessionID), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis.Client.AcquireTurn: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("redis.Client.AcquireTurn: %w", domain.ErrBusy)
	}
	return token, nil
}

// ReleaseTurn clears the busy flag if token still owns it.
func (c *Client) ReleaseTurn(ctx context.Context, sessionID, token string) error {
	if err := releaseScript.Run(ctx, c.client, []string{BusyKey(sessionID)}, token).Err(); err != nil {
		return fmt.Errorf("redis.Client.ReleaseTurn: %w", err)
	}
	return nil
}

// RecordActivity stores when a turn of sessionID last completed.
func (c *Client) RecordActivity(ctx context.Context, username, sessionID string, at time.Time) error {
	if err := c.client.HSet(ctx, ActivityKey(username), sessionID, at.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("redis.Client.RecordActivity: %w", err)
	}
	return nil
}

// LastActivity returns the recorded completion time per conversation.
func (c *Client) LastActivity(ctx context.Context, username string) (map[string]time.Time, error) {
	raw, err := c.client.HGetAll(ctx, ActivityKey(username)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis.Client.LastActivity: %w", err)
	}
	return parseActivity(raw), nil
}

func parseActivity(raw map[string]string) map[string]time.Time {
	out := make(map[string]time.Time, len(raw))
	for key, v := range raw {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[key] = time.UnixMilli(ms)
	}
	return out
}

// RevokeToken blocks a token id until its own expiry.
func (c *Client) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, RevokedKey(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis.Client.RevokeToken: %w", err)
	}
	return nil
}

// IsRevoked reports whether a token id was logged out.
func (c *Client) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	err := c.client.Get(ctx, RevokedKey(tokenID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis.Client.IsRevoked: %w", err)
	}
	return true, nil
}
