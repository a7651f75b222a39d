package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// outputFields is the priority order used to unwrap a JSON envelope.
var outputFields = []string{"output", "text", "response", "message", "content", "answer"} //nolint:gochecknoglobals // fixed lookup order

// gatewayTimeoutMarkers identify an HTML page served by a gateway that gave up
// waiting for the agent.
var gatewayTimeoutMarkers = []string{"524", "504", "gateway timeout", "a timeout occurred", "timed out"} //nolint:gochecknoglobals // fixed marker list

const (
	readChunk   = 4 << 10
	maxBodySize = 4 << 20
)

// Normalize turns a classified response into text fragments delivered to emit
// in arrival order. It always emits some non-empty text. It returns ErrTimeout
// when the relay deadline hit mid-stream (after the partial text) and any
// error returned by emit.
func Normalize(resp *Response, emit func(string) error) error {
	switch resp.Kind {
	case KindStreamingText:
		return normalizeStream(resp, emit)
	case KindJSONEnvelope:
		raw, err := readBody(resp)
		if err != nil {
			return degrade(err, emit)
		}
		return emit(textFromJSON(raw))
	case KindHTMLError:
		raw, err := readBody(resp)
		if err != nil && !errors.Is(err, ErrTimeout) {
			log.Warn().Err(err).Msg("relay: reading html error page")
		}
		return emit(htmlMessage(resp.Status, raw))
	default:
		return fmt.Errorf("relay.Normalize: unknown response kind %d", resp.Kind)
	}
}

func normalizeStream(resp *Response, emit func(string) error) error {
	buf := make([]byte, readChunk)
	var pending []byte
	hasContent := false

	send := func(b []byte) error {
		if len(b) == 0 {
			return nil
		}
		s := strings.ToValidUTF8(string(b), "�")
		if strings.TrimSpace(s) != "" {
			hasContent = true
		}
		resp.metrics.AddStreamBytes(len(b))
		return emit(s)
	}

	for {
		n, err := resp.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			cut := completeUTF8(pending)
			if emitErr := send(pending[:cut]); emitErr != nil {
				return emitErr
			}
			pending = append(pending[:0], pending[cut:]...)
		}
		if err == nil {
			continue
		}

		if emitErr := send(pending); emitErr != nil {
			return emitErr
		}
		switch {
		case errors.Is(err, io.EOF):
			if !hasContent {
				return emit(EmptyResponseText)
			}
			return nil
		case errors.Is(err, ErrTimeout):
			return ErrTimeout
		default:
			log.Warn().Err(err).Msg("relay: stream interrupted")
			if !hasContent {
				return emit(UpstreamFailureText)
			}
			return emit("\n\n" + UpstreamCutText)
		}
	}
}

// completeUTF8 returns the length of the longest prefix of b that does not end
// in the middle of a multi-byte rune.
func completeUTF8(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}

func readBody(resp *Response) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(resp, maxBodySize))
	if err != nil {
		return raw, fmt.Errorf("relay: read body: %w", err)
	}
	return raw, nil
}

func degrade(err error, emit func(string) error) error {
	if errors.Is(err, ErrTimeout) {
		return ErrTimeout
	}
	log.Warn().Err(err).Msg("relay: reading json envelope")
	return emit(UpstreamFailureText)
}

// textFromJSON unwraps an agent envelope. Bodies that are not JSON are
// returned verbatim; several concatenated values (n8n item streams) are joined.
func textFromJSON(raw []byte) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return EmptyResponseText
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var values []any
	for {
		var v any
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return string(raw)
		}
		values = append(values, v)
	}

	if len(values) == 1 {
		return nonEmpty(textFromValue(values[0], string(trimmed)))
	}

	var sb strings.Builder
	for _, v := range values {
		sb.WriteString(textFromChunk(v))
	}
	return nonEmpty(sb.String())
}

func textFromValue(v any, raw string) string {
	switch val := v.(type) {
	case map[string]any:
		for _, f := range outputFields {
			if s, ok := val[f].(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
		encoded, err := json.Marshal(val)
		if err != nil {
			return raw
		}
		return string(encoded)
	case []any:
		if len(val) == 0 {
			return raw
		}
		first, err := json.Marshal(val[0])
		if err != nil {
			return raw
		}
		return textFromValue(val[0], string(first))
	case string:
		return val
	default:
		return raw
	}
}

// textFromChunk handles one value of an item stream:
// {"type":"begin"} {"type":"item","content":"..."} {"type":"end"}.
func textFromChunk(v any) string {
	obj, ok := v.(map[string]any)
	if !ok {
		encoded, _ := json.Marshal(v) //nolint:errcheck // decoded values always re-encode
		return string(encoded)
	}
	if typ, ok := obj["type"].(string); ok {
		if typ != "item" {
			return ""
		}
		s, _ := obj["content"].(string)
		return s
	}
	encoded, _ := json.Marshal(obj) //nolint:errcheck // decoded values always re-encode
	return textFromValue(obj, string(encoded))
}

func htmlMessage(status int, raw []byte) string {
	if status == 504 || status == 524 {
		return SlowSearchText
	}
	lower := strings.ToLower(string(raw))
	for _, m := range gatewayTimeoutMarkers {
		if strings.Contains(lower, m) {
			return SlowSearchText
		}
	}
	return UpstreamHTMLText
}

func nonEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return EmptyResponseText
	}
	return s
}
