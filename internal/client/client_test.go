package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/fiscalflow/internal/chat"
	"github.com/gosuda/fiscalflow/internal/relay"
)

const testKey = "k1_allan"

// fakeAPI serves the routes the client uses. chat handles POST /chat after
// the bearer check.
type fakeAPI struct {
	mu      sync.Mutex
	access  string
	refresh string
	chat    func(w http.ResponseWriter, r *http.Request)

	refreshed atomic.Int32
}

func (f *fakeAPI) accessToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.access
}

func (f *fakeAPI) rotate(access string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = access
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if in["password"] != "secret-pass" {
			writeProblem(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeJSON(w, map[string]any{
			"access_token":  f.accessToken(),
			"refresh_token": f.refresh,
			"expires_in":    1800,
			"user":          map[string]string{"username": in["username"], "role": "Contable"},
		})
	})
	mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if in["refresh_token"] != f.refresh {
			writeProblem(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		f.refreshed.Add(1)
		f.rotate("access-2")
		writeJSON(w, map[string]any{"access_token": "access-2", "refresh_token": f.refresh})
	})
	mux.HandleFunc("POST /api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		writeJSON(w, map[string]string{"status": "logged_out"})
	})
	mux.HandleFunc("GET /api/v1/conversations/grouped", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		assert.Equal(t, "Europe/Madrid", r.URL.Query().Get("tz"))
		writeJSON(w, []map[string]any{{
			"key":   "today",
			"label": "Hoy",
			"conversations": []map[string]any{
				{"session_id": testKey, "title": "IVA", "last_message": "Listo", "message_count": 2},
			},
		}})
	})
	mux.HandleFunc("GET /api/v1/conversations/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"session_id": r.PathValue("id"),
			"messages": []map[string]string{
				{"id": "1", "role": "user", "content": "hola"},
				{"id": "2", "role": "assistant", "content": "buenas"},
			},
		})
	})
	mux.HandleFunc("POST /api/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		f.chat(w, r)
	})
	return mux
}

func (f *fakeAPI) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer "+f.accessToken() {
		writeProblem(w, http.StatusUnauthorized, "invalid token")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "detail": detail})
}

// streamAnswer writes text in two chunks and the report trailer when set.
func streamAnswer(text, reportID string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Trailer", "X-Report-Id")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Session-Id", testKey)
		w.WriteHeader(http.StatusOK)
		half := len(text) / 2
		_, _ = io.WriteString(w, text[:half])
		w.(http.Flusher).Flush()
		_, _ = io.WriteString(w, text[half:])
		if reportID != "" {
			w.Header().Set("X-Report-Id", reportID)
		}
	}
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	return New(srv.URL + "/")
}

func loggedIn(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	c := newTestClient(t, api)
	_, err := c.Login(context.Background(), "allan", "secret-pass")
	require.NoError(t, err)
	return c
}

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

func TestLogin(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{access: "access-1", refresh: "refresh-1"}
	c := newTestClient(t, api)

	p, err := c.Login(context.Background(), "allan", "secret-pass")
	require.NoError(t, err)
	assert.Equal(t, "allan", p.Username)
	assert.Equal(t, "Contable", p.Role)
}

func TestLogin_BadPassword(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, &fakeAPI{access: "a", refresh: "r"})

	_, err := c.Login(context.Background(), "allan", "wrong")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Contains(t, err.Error(), "invalid credentials")
}

func TestCallsBeforeLogin(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, &fakeAPI{access: "a", refresh: "r"})

	_, err := c.Grouped(context.Background(), "UTC")
	require.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestRefreshOnUnauthorized(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{access: "access-1", refresh: "refresh-1"}
	c := loggedIn(t, api)
	// The server rotates the access token; the client only holds the old one.
	api.rotate("access-rotated")

	_, err := c.Grouped(context.Background(), "Europe/Madrid")
	require.NoError(t, err)
	assert.Equal(t, int32(1), api.refreshed.Load())
}

func TestLogout(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{access: "access-1", refresh: "refresh-1"}
	c := loggedIn(t, api)

	require.NoError(t, c.Logout(context.Background()))

	_, err := c.Grouped(context.Background(), "UTC")
	require.ErrorIs(t, err, ErrNotLoggedIn)
}

// ---------------------------------------------------------------------------
// History
// ---------------------------------------------------------------------------

func TestGrouped(t *testing.T) {
	t.Parallel()

	c := loggedIn(t, &fakeAPI{access: "a", refresh: "r"})

	bands, err := c.Grouped(context.Background(), "Europe/Madrid")
	require.NoError(t, err)
	require.Len(t, bands, 1)
	assert.Equal(t, "Hoy", bands[0].Label)
	require.Len(t, bands[0].Conversations, 1)
	assert.Equal(t, "IVA", bands[0].Conversations[0].Title)
}

func TestTranscript(t *testing.T) {
	t.Parallel()

	c := loggedIn(t, &fakeAPI{access: "a", refresh: "r"})

	turns, err := c.Transcript(context.Background(), testKey)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "hola", turns[0].Text)
	assert.Equal(t, "buenas", turns[1].Text)
}

// ---------------------------------------------------------------------------
// Chat
// ---------------------------------------------------------------------------

func TestChat_StreamsAndReadsTrailer(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{access: "a", refresh: "r", chat: streamAnswer("Tu informe está listo.", "RPT-2024-001")}
	c := loggedIn(t, api)

	var out strings.Builder
	res, err := c.Chat(context.Background(), "", "informe del trimestre", &out)
	require.NoError(t, err)
	assert.Equal(t, "Tu informe está listo.", out.String())
	assert.Equal(t, testKey, res.SessionID)
	assert.Equal(t, "RPT-2024-001", res.ReportID)
}

func TestSend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		chat       func(http.ResponseWriter, *http.Request)
		wantMarker string
		wantText   string
		wantReport string
	}{
		{
			name:       "completed with report",
			chat:       streamAnswer("Informe generado.", "RPT-7"),
			wantText:   "Informe generado.",
			wantReport: "RPT-7",
		},
		{
			name:     "completed without report",
			chat:     streamAnswer("Hola, ¿en qué te ayudo?", ""),
			wantText: "Hola, ¿en qué te ayudo?",
		},
		{
			name:       "timeout before answer",
			chat:       func(w http.ResponseWriter, _ *http.Request) { writeProblem(w, http.StatusRequestTimeout, relay.TimeoutText) },
			wantMarker: chat.MarkerTimeout,
			wantText:   relay.TimeoutText,
		},
		{
			name:       "timeout mid stream",
			chat:       streamAnswer("Buscando...\n\n"+relay.TimeoutText, ""),
			wantMarker: chat.MarkerTimeout,
			wantText:   "Buscando...\n\n" + relay.TimeoutText,
		},
		{
			name:       "upstream failure",
			chat:       func(w http.ResponseWriter, _ *http.Request) { writeProblem(w, http.StatusBadGateway, relay.UpstreamFailureText) },
			wantMarker: chat.MarkerUpstream,
			wantText:   relay.UpstreamFailureText,
		},
		{
			name:       "busy",
			chat:       func(w http.ResponseWriter, _ *http.Request) { writeProblem(w, http.StatusConflict, "busy") },
			wantMarker: chat.MarkerBusy,
			wantText:   BusyText,
		},
		{
			name:       "invalid request",
			chat:       func(w http.ResponseWriter, _ *http.Request) { writeProblem(w, http.StatusBadRequest, "message or file is required") },
			wantMarker: chat.MarkerInvalid,
			wantText:   "message or file is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := loggedIn(t, &fakeAPI{access: "a", refresh: "r", chat: tt.chat})
			conv := chat.NewConversation("")

			turn, err := c.Send(context.Background(), conv, "¿cómo va el IVA?", io.Discard)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMarker, turn.Error)
			assert.Equal(t, tt.wantText, turn.Text)
			assert.Equal(t, tt.wantReport, turn.ReportID)
			assert.False(t, conv.Open())
			assert.Len(t, conv.Turns(), 2)
		})
	}
}

func TestSend_KeepsSessionID(t *testing.T) {
	t.Parallel()

	c := loggedIn(t, &fakeAPI{access: "a", refresh: "r", chat: streamAnswer("ok", "")})
	conv := chat.NewConversation("")

	_, err := c.Send(context.Background(), conv, "hola", nil)
	require.NoError(t, err)
	assert.Equal(t, testKey, conv.SessionID())
}

func TestSend_NetworkFailure(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{access: "a", refresh: "r"}
	srv := httptest.NewServer(api.handler(t))
	c := New(srv.URL)
	_, err := c.Login(context.Background(), "allan", "secret-pass")
	require.NoError(t, err)
	srv.Close()

	conv := chat.NewConversation("")
	turn, err := c.Send(context.Background(), conv, "hola", io.Discard)
	require.NoError(t, err)
	assert.Equal(t, chat.MarkerNetwork, turn.Error)
	assert.Equal(t, NetworkFailureText, turn.Text)
}

func TestSend_WhileOpen(t *testing.T) {
	t.Parallel()

	c := New("http://127.0.0.1:0")
	conv := chat.NewConversation("")
	require.NoError(t, conv.Begin("primera"))

	_, err := c.Send(context.Background(), conv, "segunda", io.Discard)
	require.Error(t, err)
}
