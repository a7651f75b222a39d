package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gosuda/fiscalflow/internal/chat"
	"github.com/gosuda/fiscalflow/internal/domain"
	"github.com/gosuda/fiscalflow/internal/relay"
)

// NetworkFailureText is shown when the server could not be reached or the
// stream broke.
const NetworkFailureText = "⚠️ No se pudo contactar con el servidor. Comprueba tu conexión e inténtalo de nuevo."

// BusyText is shown when another turn of the same conversation is running.
const BusyText = "⏳ Ya hay una consulta en curso en esta conversación. Espera a que termine."

// Send runs one turn of conv: the user text is recorded, the answer is
// appended to the open assistant turn as it streams (and echoed to w), and
// the turn is closed either completed or with an error marker. The returned
// error is only for misuse of conv; relay failures end up in the turn.
func (c *Client) Send(ctx context.Context, conv *chat.Conversation, text string, w io.Writer) (domain.Turn, error) {
	if err := conv.Begin(text); err != nil {
		return domain.Turn{}, err
	}

	sink := &turnWriter{conv: conv, out: w}
	res, err := c.Chat(ctx, conv.SessionID(), text, sink)
	if res != nil && res.SessionID != "" {
		conv.SetSessionID(res.SessionID)
	}

	if err != nil {
		marker, msg := failure(err)
		return conv.Fail(marker, msg)
	}
	// A deadline hit mid-stream ends the answer with the timeout notice.
	if strings.HasSuffix(strings.TrimSpace(sink.text.String()), relay.TimeoutText) {
		return conv.Fail(chat.MarkerTimeout, "")
	}
	return conv.Complete(res.ReportID)
}

// failure maps a Chat error to a turn marker and the text shown to the user.
func failure(err error) (string, string) {
	var se *StatusError
	if !errors.As(err, &se) {
		return chat.MarkerNetwork, NetworkFailureText
	}

	switch se.Status {
	case http.StatusRequestTimeout:
		return chat.MarkerTimeout, relay.TimeoutText
	case http.StatusConflict:
		return chat.MarkerBusy, BusyText
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return chat.MarkerInvalid, se.Detail
	default:
		return chat.MarkerUpstream, relay.UpstreamFailureText
	}
}

type turnWriter struct {
	conv *chat.Conversation
	out  io.Writer
	text strings.Builder
}

func (t *turnWriter) Write(p []byte) (int, error) {
	if err := t.conv.Append(string(p)); err != nil {
		return 0, err
	}
	t.text.Write(p)
	if t.out == nil {
		return len(p), nil
	}
	return t.out.Write(p)
}
