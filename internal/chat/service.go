// Package chat runs one user turn end to end: busy flag, relay, live
// forwarding, identifier extraction and activity bookkeeping.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/fiscalflow/internal/domain"
	"github.com/gosuda/fiscalflow/internal/metrics"
	"github.com/gosuda/fiscalflow/internal/relay"
	"github.com/gosuda/fiscalflow/internal/session"
	redisstore "github.com/gosuda/fiscalflow/internal/store/redis"
)

// guardGrace is added to the relay timeout for the busy flag TTL.
const guardGrace = 30 * time.Second

// extractTimeout bounds extraction once the stream has drained.
const extractTimeout = 20 * time.Second

// Relayer sends a turn to the remote agent.
type Relayer interface {
	Relay(ctx context.Context, req *relay.Request) (*relay.Response, error)
	Timeout() time.Duration
}

// Extractor finds a report identifier in a finished answer.
type Extractor interface {
	Extract(ctx context.Context, text string) (string, bool)
}

// Guard holds the per-conversation busy flag.
type Guard interface {
	AcquireTurn(ctx context.Context, sessionID string, ttl time.Duration) (string, error)
	ReleaseTurn(ctx context.Context, sessionID, token string) error
}

// Publisher fans live events out to websocket subscribers.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// ActivityRecorder remembers when a conversation last completed a turn.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, username, sessionID string, at time.Time) error
}

// Input is a user turn as received from a client.
type Input struct {
	Text         string
	SessionToken string // empty starts a new conversation
	File         *relay.File
}

// Service orchestrates turns. Guard, Publisher and ActivityRecorder are
// optional.
type Service struct {
	relay     Relayer
	extractor Extractor
	guard     Guard
	publisher Publisher
	activity  ActivityRecorder
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithGuard(g Guard) Option {
	return func(s *Service) { s.guard = g }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithActivity(a ActivityRecorder) Option {
	return func(s *Service) { s.activity = a }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now for event timestamps and activity.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(r Relayer, e Extractor, opts ...Option) *Service {
	s := &Service{relay: r, extractor: e, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens a turn: it scopes the conversation key, takes the busy flag
// and relays the input. Errors returned here happen before any answer text
// exists (invalid input, busy, timeout before headers, upstream failure). On
// success the caller must call Turn.Stream or Turn.Close.
func (s *Service) Start(ctx context.Context, p *domain.Principal, in *Input) (*Turn, error) {
	if p == nil {
		return nil, fmt.Errorf("chat.Service.Start: %w", domain.ErrUnauthorized)
	}

	key, created := session.Resolve(in.SessionToken, p.Username)
	req := &relay.Request{
		Text:      in.Text,
		SessionID: key,
		User:      relay.MetadataFor(p),
		File:      in.File,
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("chat.Service.Start: %w", err)
	}

	t := &Turn{
		service:   s,
		username:  p.Username,
		SessionID: key,
		Created:   created,
	}

	if s.guard != nil {
		token, err := s.guard.AcquireTurn(ctx, key, s.relay.Timeout()+guardGrace)
		if err != nil {
			return nil, fmt.Errorf("chat.Service.Start: %w", err)
		}
		t.guardToken = token
	}
	s.metrics.TurnStarted()

	s.publish(ctx, key, Event{Type: EventUserTurn, Text: in.Text})

	resp, err := s.relay.Relay(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, relay.ErrTimeout):
			s.publish(ctx, key, Event{Type: EventTimeout, Text: relay.TimeoutText})
		default:
			s.publish(ctx, key, Event{Type: EventError, Error: err.Error()})
		}
		t.release()
		return nil, fmt.Errorf("chat.Service.Start: %w", err)
	}
	t.resp = resp

	log.Info().Str("session_id", key).Bool("created", created).Str("kind", resp.Kind.String()).Msg("chat: turn opened")
	return t, nil
}

func (s *Service) publish(ctx context.Context, sessionID string, ev Event) {
	if s.publisher == nil {
		return
	}
	ev.SessionID = sessionID
	ev.Timestamp = s.now()
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), redisstore.TurnChannel(sessionID), payload); err != nil {
		log.Debug().Err(err).Str("session_id", sessionID).Msg("chat: publish event")
	}
}

// Result summarises a finished turn.
type Result struct {
	SessionID string
	Text      string
	ReportID  string
	TimedOut  bool
}

// Turn is an open assistant answer.
type Turn struct {
	SessionID string
	Created   bool

	service    *Service
	username   string
	resp       *relay.Response
	guardToken string
	once       sync.Once
}

// Stream forwards the answer to w as it arrives, flushing after every
// fragment when w supports it, then extracts the report id once. A deadline
// hit mid-stream appends the timeout text and still returns a Result.
func (t *Turn) Stream(ctx context.Context, w io.Writer) (*Result, error) {
	defer t.release()
	defer t.resp.Close() //nolint:errcheck // best effort

	s := t.service
	flusher, _ := w.(http.Flusher)
	var acc strings.Builder

	emit := func(fragment string) error {
		acc.WriteString(fragment)
		if _, err := io.WriteString(w, fragment); err != nil {
			return fmt.Errorf("chat.Turn.Stream: write: %w", err)
		}
		if flusher != nil {
			flusher.Flush()
		}
		s.publish(ctx, t.SessionID, Event{Type: EventDelta, Text: fragment})
		return nil
	}

	res := &Result{SessionID: t.SessionID}

	err := relay.Normalize(t.resp, emit)
	switch {
	case err == nil:
	case errors.Is(err, relay.ErrTimeout):
		res.TimedOut = true
		if emitErr := emit("\n\n" + relay.TimeoutText); emitErr != nil {
			log.Debug().Err(emitErr).Str("session_id", t.SessionID).Msg("chat: client gone before timeout notice")
		}
	default:
		s.publish(ctx, t.SessionID, Event{Type: EventError, Error: err.Error()})
		return nil, err
	}

	res.Text = acc.String()

	// The caller may already be gone; the bookkeeping still has to happen.
	bg := context.WithoutCancel(ctx)
	if !res.TimedOut && s.extractor != nil {
		ectx, cancel := context.WithTimeout(bg, extractTimeout)
		if id, ok := s.extractor.Extract(ectx, res.Text); ok {
			res.ReportID = id
		}
		cancel()
	}

	if s.activity != nil {
		if err := s.activity.RecordActivity(bg, t.username, t.SessionID, s.now()); err != nil {
			log.Warn().Err(err).Str("session_id", t.SessionID).Msg("chat: record activity")
		}
	}

	if res.TimedOut {
		s.publish(ctx, t.SessionID, Event{Type: EventTimeout, Text: relay.TimeoutText})
	} else {
		s.publish(ctx, t.SessionID, Event{Type: EventDone, ReportID: res.ReportID})
	}

	log.Info().
		Str("session_id", t.SessionID).
		Bool("timed_out", res.TimedOut).
		Str("report_id", res.ReportID).
		Int("bytes", len(res.Text)).
		Msg("chat: turn finished")

	return res, nil
}

// Close abandons the turn without reading the answer.
func (t *Turn) Close() error {
	defer t.release()
	if t.resp == nil {
		return nil
	}
	if err := t.resp.Close(); err != nil {
		return fmt.Errorf("chat.Turn.Close: %w", err)
	}
	return nil
}

func (t *Turn) release() {
	t.once.Do(func() {
		s := t.service
		s.metrics.TurnFinished()
		if s.guard == nil || t.guardToken == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.guard.ReleaseTurn(ctx, t.SessionID, t.guardToken); err != nil {
			log.Warn().Err(err).Str("session_id", t.SessionID).Msg("chat: release busy flag")
		}
	})
}
