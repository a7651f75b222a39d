package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/fiscalflow/internal/chat"
	"github.com/gosuda/fiscalflow/internal/domain"
	"github.com/gosuda/fiscalflow/internal/relay"
	"github.com/gosuda/fiscalflow/internal/session"
)

// Response headers of the chat stream.
const (
	HeaderSessionID = "X-Session-Id"
	HeaderReportID  = "X-Report-Id"
)

type NewSessionOutput struct {
	Body struct {
		SessionID string `json:"session_id" doc:"Scoped conversation key"`
	}
}

type ChatInput struct {
	Body struct {
		Message   string      `json:"message,omitempty" maxLength:"32000" doc:"User text"`
		SessionID string      `json:"session_id,omitempty" maxLength:"200" doc:"Conversation key or token; empty starts a new conversation"`
		File      *relay.File `json:"file,omitempty" doc:"Attachment, base64 encoded"`
	}
}

type ExtractInput struct {
	Body struct {
		Text string `json:"text" maxLength:"200000" doc:"Answer text to scan"`
	}
}

type ExtractOutput struct {
	Body struct {
		ReportID string `json:"report_id,omitempty"`
		Found    bool   `json:"found"`
	}
}

// RegisterChatRoutes registers conversation creation, the streamed relay and
// the standalone extractor.
func RegisterChatRoutes(api huma.API, chatSvc ChatService, extractor Extractor) {
	huma.Register(api, huma.Operation{
		OperationID: "create-session",
		Method:      http.MethodPost,
		Path:        "/sessions",
		Summary:     "Start a new conversation",
		Tags:        []string{"Chat"},
	}, func(ctx context.Context, _ *struct{}) (*NewSessionOutput, error) {
		p, err := principalFrom(ctx)
		if err != nil {
			return nil, err
		}

		out := &NewSessionOutput{}
		out.Body.SessionID = session.BuildKey(session.NewToken(), p.Username)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "chat",
		Method:      http.MethodPost,
		Path:        "/chat",
		Summary:     "Relay a turn to the agent and stream the answer",
		Description: "The answer is streamed as text/plain. The conversation key is returned in " +
			HeaderSessionID + " and the report id, when one is found, in the " + HeaderReportID + " trailer.",
		Tags: []string{"Chat"},
	}, func(ctx context.Context, input *ChatInput) (*huma.StreamResponse, error) {
		p, err := principalFrom(ctx)
		if err != nil {
			return nil, err
		}

		turn, err := chatSvc.Start(ctx, p, &chat.Input{
			Text:         input.Body.Message,
			SessionToken: input.Body.SessionID,
			File:         input.Body.File,
		})
		if err != nil {
			return nil, chatError(err)
		}

		return &huma.StreamResponse{
			Body: func(hctx huma.Context) {
				hctx.SetHeader("Content-Type", "text/plain; charset=utf-8")
				hctx.SetHeader("Cache-Control", "no-cache")
				hctx.SetHeader("X-Accel-Buffering", "no")
				hctx.SetHeader(HeaderSessionID, turn.SessionID)
				hctx.SetHeader("Trailer", HeaderReportID)
				hctx.SetStatus(http.StatusOK)

				res, err := turn.Stream(hctx.Context(), hctx.BodyWriter())
				if err != nil {
					log.Warn().Err(err).Str("session_id", turn.SessionID).Msg("chat: stream aborted")
					return
				}
				if res.ReportID != "" {
					hctx.SetHeader(HeaderReportID, res.ReportID)
				}
			},
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "extract-report-id",
		Method:      http.MethodPost,
		Path:        "/extract",
		Summary:     "Find a report id in a text",
		Tags:        []string{"Chat"},
	}, func(ctx context.Context, input *ExtractInput) (*ExtractOutput, error) {
		out := &ExtractOutput{}
		out.Body.ReportID, out.Body.Found = extractor.Extract(ctx, input.Body.Text)
		return out, nil
	})
}

// chatError maps turn failures that happen before any answer text to
// problem responses.
func chatError(err error) error {
	if ue, ok := relay.IsUpstreamError(err); ok {
		return huma.Error502BadGateway(relay.UpstreamFailureText, errors.New(ue.Body))
	}

	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return huma.Error400BadRequest("message or file is required")
	case errors.Is(err, domain.ErrBusy):
		return huma.Error409Conflict("a turn is already in progress for this conversation")
	case errors.Is(err, relay.ErrTimeout):
		return huma.NewError(http.StatusRequestTimeout, relay.TimeoutText)
	case errors.Is(err, domain.ErrUnauthorized):
		return huma.Error401Unauthorized("missing principal")
	default:
		return huma.Error500InternalServerError("failed to relay the turn", err)
	}
}
