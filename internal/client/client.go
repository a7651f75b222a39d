// Package client talks to the relay API on behalf of the terminal commands.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	v1 "github.com/gosuda/fiscalflow/internal/api/v1"
	"github.com/gosuda/fiscalflow/internal/domain"
	"github.com/gosuda/fiscalflow/internal/history"
)

// ErrNotLoggedIn is returned by calls made before Login.
var ErrNotLoggedIn = errors.New("client: not logged in") //nolint:gochecknoglobals // sentinel error

// StatusError is a non-2xx answer. Detail is the problem detail when the
// server sent one.
type StatusError struct {
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("client: server answered %d", e.Status)
	}
	return fmt.Sprintf("client: server answered %d: %s", e.Status, e.Detail)
}

// IsStatus reports whether err is a StatusError with the given status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}

type tokens struct {
	AccessToken  string `json:"access_token"`  //nolint:gosec // G117: auth response DTO
	RefreshToken string `json:"refresh_token"` //nolint:gosec // G117: auth response DTO
}

// Client is safe for concurrent use. It refreshes the access token once when
// a call is rejected with 401.
type Client struct {
	baseURL string
	http    *http.Client

	mu     sync.Mutex
	tokens tokens
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. Streaming calls need a
// client without an overall timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1",
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login exchanges credentials for a token pair and returns the caller.
func (c *Client) Login(ctx context.Context, username, password string) (*domain.Principal, error) {
	var out struct {
		tokens
		User *domain.Principal `json:"user"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", body, &out, false); err != nil {
		return nil, fmt.Errorf("client.Client.Login: %w", err)
	}

	c.mu.Lock()
	c.tokens = out.tokens
	c.mu.Unlock()
	return out.User, nil
}

// Logout revokes both tokens. The client is unusable afterwards.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.tokens.RefreshToken
	c.mu.Unlock()

	body := map[string]string{"refresh_token": refresh}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/logout", body, nil, true); err != nil {
		return fmt.Errorf("client.Client.Logout: %w", err)
	}

	c.mu.Lock()
	c.tokens = tokens{}
	c.mu.Unlock()
	return nil
}

// ChatResult describes a finished streamed answer.
type ChatResult struct {
	SessionID string
	ReportID  string
}

// Chat sends one turn and copies the streamed answer to w as it arrives.
// An empty sessionID starts a new conversation; the key the server assigned
// is returned. Failures before the first byte are StatusErrors.
func (c *Client) Chat(ctx context.Context, sessionID, message string, w io.Writer) (*ChatResult, error) {
	payload, err := json.Marshal(map[string]string{"message": message, "session_id": sessionID})
	if err != nil {
		return nil, fmt.Errorf("client.Client.Chat: %w", err)
	}

	resp, err := c.send(ctx, http.MethodPost, "/chat", payload, true)
	if err != nil {
		return nil, fmt.Errorf("client.Client.Chat: %w", err)
	}
	defer resp.Body.Close()

	res := &ChatResult{SessionID: resp.Header.Get(v1.HeaderSessionID)}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return res, fmt.Errorf("client.Client.Chat: reading stream: %w", err)
	}
	// Trailers are populated once the body is drained.
	res.ReportID = resp.Trailer.Get(v1.HeaderReportID)
	return res, nil
}

// Grouped lists the caller's conversations in recency bands of zone tz.
func (c *Client) Grouped(ctx context.Context, tz string) ([]history.Band, error) {
	var bands []history.Band
	path := "/conversations/grouped?tz=" + url.QueryEscape(tz)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &bands, true); err != nil {
		return nil, fmt.Errorf("client.Client.Grouped: %w", err)
	}
	return bands, nil
}

// Transcript returns the turns of one of the caller's conversations.
func (c *Client) Transcript(ctx context.Context, sessionID string) ([]*domain.Turn, error) {
	var out struct {
		Messages []*domain.Turn `json:"messages"`
	}
	path := "/conversations/" + url.PathEscape(sessionID) + "/messages"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out, true); err != nil {
		return nil, fmt.Errorf("client.Client.Transcript: %w", err)
	}
	return out.Messages, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, authed bool) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return err
		}
	}

	resp, err := c.send(ctx, method, path, payload, authed)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// send performs the request and returns a 2xx response. A 401 on an
// authenticated call triggers one refresh and a retry.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, authed bool) (*http.Response, error) {
	resp, err := c.sendOnce(ctx, method, path, payload, authed)
	if err == nil || !authed || !IsStatus(err, http.StatusUnauthorized) {
		return resp, err
	}
	if rerr := c.refresh(ctx); rerr != nil {
		return nil, err
	}
	return c.sendOnce(ctx, method, path, payload, authed)
}

func (c *Client) sendOnce(ctx context.Context, method, path string, payload []byte, authed bool) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		c.mu.Lock()
		access := c.tokens.AccessToken
		c.mu.Unlock()
		if access == "" {
			return nil, ErrNotLoggedIn
		}
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, statusError(resp)
}

func (c *Client) refresh(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.tokens.RefreshToken
	c.mu.Unlock()
	if refresh == "" {
		return ErrNotLoggedIn
	}

	var out tokens
	body := map[string]string{"refresh_token": refresh}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/refresh", body, &out, false); err != nil {
		return err
	}

	c.mu.Lock()
	c.tokens = out
	c.mu.Unlock()
	return nil
}

func statusError(resp *http.Response) error {
	var problem struct {
		Detail string `json:"detail"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &problem) != nil || problem.Detail == "" {
		problem.Detail = strings.TrimSpace(string(raw))
	}
	return &StatusError{Status: resp.StatusCode, Detail: problem.Detail}
}
