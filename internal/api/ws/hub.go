// Package ws mirrors live conversation events to websocket clients.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/fiscalflow/internal/server/middleware"
	"github.com/gosuda/fiscalflow/internal/session"
	redisstore "github.com/gosuda/fiscalflow/internal/store/redis"
)

// Subscriber delivers the payloads published on a channel until cleanup is
// called. *redis.Client satisfies this interface.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Hub manages WebSocket connections backed by Redis pub/sub.
type Hub struct {
	pubsub         Subscriber
	originPatterns []string
}

// NewHub creates a new WebSocket hub. originPatterns are the cross-origin
// hosts allowed to open a socket.
func NewHub(pubsub Subscriber, originPatterns ...string) *Hub {
	return &Hub{pubsub: pubsub, originPatterns: originPatterns}
}

// ServeChat streams the events of one conversation: the user turn, answer
// fragments and the final done, timeout or error event. Only the owner of
// the conversation may listen.
func (h *Hub) ServeChat(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "missing principal", http.StatusUnauthorized)
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if !session.Owns(sessionID, p.Username) {
		http.Error(w, "conversation belongs to another user", http.StatusForbidden)
		return
	}

	// Sockets outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow() //nolint:errcheck // best effort

	// Clients never send; CloseRead handles control frames and cancels ctx
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	messages, cleanup, err := h.pubsub.Subscribe(ctx, redisstore.TurnChannel(sessionID))
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("websocket subscribe")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case msg, msgOK := <-messages:
			if !msgOK {
				_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			if writeErr := conn.Write(ctx, websocket.MessageText, msg); writeErr != nil {
				log.Debug().Err(writeErr).Str("session_id", sessionID).Msg("websocket write")
				return
			}
		}
	}
}
