package relay

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gosuda/fiscalflow/internal/metrics"
)

// Kind is the closed set of answer shapes the remote agent produces.
type Kind int

const (
	KindStreamingText Kind = iota + 1
	KindJSONEnvelope
	KindHTMLError
)

func (k Kind) String() string {
	switch k {
	case KindStreamingText:
		return "streaming_text"
	case KindJSONEnvelope:
		return "json_envelope"
	case KindHTMLError:
		return "html_error"
	default:
		return "unknown"
	}
}

func (k Kind) outcome() string {
	switch k {
	case KindStreamingText:
		return metrics.OutcomeStreamingText
	case KindJSONEnvelope:
		return metrics.OutcomeJSONEnvelope
	case KindHTMLError:
		return metrics.OutcomeHTMLError
	default:
		return metrics.OutcomeUpstreamError
	}
}

const sniffLen = 512

// classify decides the answer shape from the declared content type, sniffing
// whatever the first read returned when nothing is declared. HTML is checked before the status
// code: gateways answer 502/504/524 with an HTML page.
func classify(ctx context.Context, cancel context.CancelFunc, resp *http.Response) (*Response, error) {
	body := bufio.NewReaderSize(resp.Body, sniffLen)

	mediaType := mediaTypeOf(resp.Header.Get("Content-Type"))
	if mediaType == "" {
		// Wait for the first read only; a slow stream must not stall until
		// sniffLen bytes arrive.
		_, _ = body.Peek(1)
		peek, _ := body.Peek(body.Buffered()) //nolint:errcheck // empty bodies sniff as text
		mediaType = sniff(peek)
	}

	out := &Response{
		Status:      resp.StatusCode,
		ContentType: mediaType,
		body:        body,
		closer:      resp.Body,
		ctx:         ctx,
		cancel:      cancel,
	}

	switch {
	case isHTML(mediaType):
		out.Kind = KindHTMLError
		return out, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, out.upstreamError()
	case mediaType == "text/plain" || mediaType == "text/event-stream":
		out.Kind = KindStreamingText
		return out, nil
	case isJSON(mediaType):
		out.Kind = KindJSONEnvelope
		return out, nil
	default:
		return nil, out.upstreamError()
	}
}

// upstreamError drains the body into an UpstreamError and releases the call.
func (r *Response) upstreamError() error {
	defer r.Close() //nolint:errcheck // body already consumed

	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if errors.Is(err, ErrTimeout) {
		return ErrTimeout
	}
	return &UpstreamError{
		Status:      r.Status,
		ContentType: r.ContentType,
		Body:        string(raw),
	}
}

func mediaTypeOf(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		mt, _, _ = strings.Cut(header, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

func sniff(peek []byte) string {
	trimmed := bytes.TrimSpace(peek)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return "application/json"
	}
	return mediaTypeOf(http.DetectContentType(peek))
}

func isHTML(mt string) bool {
	return mt == "text/html" || mt == "application/xhtml+xml"
}

func isJSON(mt string) bool {
	return mt == "application/json" || strings.HasSuffix(mt, "+json") || mt == "application/x-ndjson"
}
