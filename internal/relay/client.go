// Package relay forwards user turns to the remote workflow agent and turns
// whatever it answers with into a single text stream.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/fiscalflow/internal/metrics"
)

// DefaultTimeout bounds a whole relay call, body included.
const DefaultTimeout = 5 * time.Minute

// Client performs the outbound webhook call. It never retries.
type Client struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics enables instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a Client for the webhook at endpoint. A non-positive
// timeout falls back to DefaultTimeout.
func NewClient(endpoint string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		endpoint: endpoint,
		timeout:  timeout,
		// The deadline lives on the request context so it also covers the
		// streamed body; the transport keeps its own dial/TLS limits.
		httpClient: &http.Client{Transport: http.DefaultTransport},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the bounded wait applied to each call.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Relay sends one turn and classifies the answer. The returned Response must
// be closed; its body stays readable until the relay deadline.
func (c *Client) Relay(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	if err := req.Validate(); err != nil {
		c.metrics.ObserveRelay(metrics.OutcomeInvalidRequest, 0)
		return nil, err
	}

	body, err := json.Marshal(req.payload())
	if err != nil {
		return nil, fmt.Errorf("relay.Client.Relay: marshal: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("relay.Client.Relay: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/plain, application/json;q=0.9, */*;q=0.1")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		if isTimeout(reqCtx, err) {
			c.metrics.ObserveRelay(metrics.OutcomeTimeout, time.Since(start))
			log.Warn().Str("session_id", req.SessionID).Dur("timeout", c.timeout).Msg("relay: deadline exceeded before response")
			return nil, fmt.Errorf("relay.Client.Relay: %w", ErrTimeout)
		}
		c.metrics.ObserveRelay(metrics.OutcomeTransportError, time.Since(start))
		return nil, fmt.Errorf("relay.Client.Relay: %w", err)
	}

	resp, err := classify(reqCtx, cancel, httpResp)
	if err != nil {
		outcome := metrics.OutcomeUpstreamError
		if errors.Is(err, ErrTimeout) {
			outcome = metrics.OutcomeTimeout
		}
		c.metrics.ObserveRelay(outcome, time.Since(start))
		log.Warn().Err(err).Str("session_id", req.SessionID).Int("status", httpResp.StatusCode).Msg("relay: upstream failure")
		return nil, fmt.Errorf("relay.Client.Relay: %w", err)
	}
	resp.metrics = c.metrics

	c.metrics.ObserveRelay(resp.Kind.outcome(), time.Since(start))
	log.Debug().
		Str("session_id", req.SessionID).
		Str("kind", resp.Kind.String()).
		Int("status", resp.Status).
		Dur("elapsed", time.Since(start)).
		Msg("relay: response classified")

	return resp, nil
}

// Response is a classified answer from the remote agent.
type Response struct {
	Kind        Kind
	Status      int
	ContentType string

	body    io.Reader
	closer  io.Closer
	ctx     context.Context
	cancel  context.CancelFunc
	metrics *metrics.Metrics
}

// Close releases the body and the relay deadline.
func (r *Response) Close() error {
	defer r.cancel()
	if r.closer == nil {
		return nil
	}
	if err := r.closer.Close(); err != nil {
		return fmt.Errorf("relay.Response.Close: %w", err)
	}
	return nil
}

// Read reads the raw body. Deadline errors surface as ErrTimeout.
func (r *Response) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && isTimeout(r.ctx, err) {
		return n, ErrTimeout
	}
	return n, err
}

// NewResponse wraps an already classified body; used by tests and by callers
// that replay stored answers.
func NewResponse(kind Kind, status int, contentType string, body io.Reader) *Response {
	ctx, cancel := context.WithCancel(context.Background())
	resp := &Response{
		Kind:        kind,
		Status:      status,
		ContentType: contentType,
		body:        body,
		ctx:         ctx,
		cancel:      cancel,
	}
	if c, ok := body.(io.Closer); ok {
		resp.closer = c
	}
	return resp
}
