package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/fiscalflow/internal/domain"
	"github.com/gosuda/fiscalflow/internal/history"
)

type ListConversationsInput struct {
	Limit  int `query:"limit" minimum:"0" maximum:"500" default:"0" doc:"Max results; 0 uses the server page size"`
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Offset for pagination"`
}

type ListConversationsOutput struct {
	Body struct {
		Conversations []*domain.ConversationSummary `json:"conversations"`
		Total         int                           `json:"total"`
		Offset        int                           `json:"offset"`
	}
}

type GroupedConversationsInput struct {
	TZ string `query:"tz" default:"UTC" maxLength:"64" doc:"IANA time zone the calendar days are counted in"`
}

type GroupedConversationsOutput struct {
	Body []history.Band
}

type TranscriptInput struct {
	SessionID string `path:"sessionID" minLength:"1" maxLength:"200" doc:"Conversation key"`
}

type TranscriptOutput struct {
	Body struct {
		SessionID string         `json:"session_id"`
		Messages  []*domain.Turn `json:"messages"`
	}
}

// RegisterConversationRoutes registers the history endpoints. now is the
// clock grouping is computed against.
func RegisterConversationRoutes(api huma.API, hist HistoryService, now func() time.Time) {
	huma.Register(api, huma.Operation{
		OperationID: "list-conversations",
		Method:      http.MethodGet,
		Path:        "/conversations",
		Summary:     "List the caller's conversations, most recent first",
		Tags:        []string{"Conversations"},
	}, func(ctx context.Context, input *ListConversationsInput) (*ListConversationsOutput, error) {
		p, err := principalFrom(ctx)
		if err != nil {
			return nil, err
		}

		list, total, err := hist.ListConversations(ctx, p.Username, input.Limit, input.Offset)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list conversations", err)
		}

		out := &ListConversationsOutput{}
		out.Body.Conversations = list
		out.Body.Total = total
		out.Body.Offset = input.Offset
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-conversations-grouped",
		Method:      http.MethodGet,
		Path:        "/conversations/grouped",
		Summary:     "List the caller's conversations banded by recency",
		Tags:        []string{"Conversations"},
	}, func(ctx context.Context, input *GroupedConversationsInput) (*GroupedConversationsOutput, error) {
		p, err := principalFrom(ctx)
		if err != nil {
			return nil, err
		}

		loc, err := time.LoadLocation(input.TZ)
		if err != nil {
			return nil, huma.Error400BadRequest("unknown time zone: " + input.TZ)
		}

		bands, err := hist.ListGrouped(ctx, p.Username, now().In(loc))
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list conversations", err)
		}
		if bands == nil {
			bands = []history.Band{}
		}

		return &GroupedConversationsOutput{Body: bands}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-transcript",
		Method:      http.MethodGet,
		Path:        "/conversations/{sessionID}/messages",
		Summary:     "Get the turns of one conversation",
		Tags:        []string{"Conversations"},
	}, func(ctx context.Context, input *TranscriptInput) (*TranscriptOutput, error) {
		p, err := principalFrom(ctx)
		if err != nil {
			return nil, err
		}

		turns, err := hist.GetTranscript(ctx, input.SessionID, p.Username)
		if err != nil {
			if errors.Is(err, domain.ErrUnauthorized) {
				return nil, huma.Error403Forbidden("conversation belongs to another user")
			}
			return nil, huma.Error500InternalServerError("failed to load conversation", err)
		}

		out := &TranscriptOutput{}
		out.Body.SessionID = input.SessionID
		out.Body.Messages = turns
		return out, nil
	})
}
