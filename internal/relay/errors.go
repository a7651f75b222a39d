package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrTimeout is returned when the bounded wait for the remote agent elapsed.
// The agent may still finish server-side, so callers should say so instead of
// reporting a failed turn.
var ErrTimeout = errors.New("relay: timed out waiting for the remote agent")

// maxErrorBody caps how much of an upstream error body is kept.
const maxErrorBody = 64 << 10

// UpstreamError is a non-success answer from the remote agent. Body keeps the
// upstream text for diagnosis.
type UpstreamError struct {
	Status      int
	ContentType string
	Body        string
}

func (e *UpstreamError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("relay: upstream returned %d (%s): %s", e.Status, e.ContentType, body)
}

// IsUpstreamError reports whether err carries an *UpstreamError.
func IsUpstreamError(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// isTimeout reports whether err was caused by the relay deadline rather than
// by the caller going away.
func isTimeout(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
