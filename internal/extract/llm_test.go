package extract_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/fiscalflow/internal/extract"
)

type mockCompleter struct {
	lastReq openai.ChatCompletionRequest
	answer  func(req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

func (m *mockCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.lastReq = req
	return m.answer(req)
}

func answering(content string) *mockCompleter {
	return &mockCompleter{answer: func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
			},
		}, nil
	}}
}

func TestLLMRecognizer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		text    string
		wantID  string
		wantOK  bool
		wantErr bool
	}{
		{name: "string id", content: `{"reportId":"777"}`, text: "ReportId: 777", wantID: "777", wantOK: true},
		{name: "numeric id", content: `{"reportId":12345}`, text: "Here is your report. ReportId: 12345", wantID: "12345", wantOK: true},
		{name: "empty object", content: `{}`, text: "Here is your report.", wantOK: false},
		{name: "null id", content: `{"reportId":null}`, text: "nada", wantOK: false},
		{name: "blank id", content: `{"reportId":"  "}`, text: "nada", wantOK: false},
		{name: "non digits", content: `{"reportId":"abc"}`, text: "ReportId: abc", wantErr: true},
		{name: "not json", content: `ReportId is 777`, text: "ReportId: 777", wantErr: true},
		{name: "hallucinated id", content: `{"reportId":"999"}`, text: "ReportId: 777", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := extract.NewLLMRecognizer(answering(tt.content), "gpt-4o-mini", time.Second)
			id, ok, err := r.Recognize(context.Background(), tt.text)
			if tt.wantErr {
				require.ErrorIs(t, err, extract.ErrInvalidAnswer)
				assert.False(t, ok)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestLLMRecognizer_RequestShape(t *testing.T) {
	t.Parallel()

	client := answering(`{}`)
	r := extract.NewLLMRecognizer(client, "gpt-4o-mini", 0)

	_, _, err := r.Recognize(context.Background(), "hola")
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", client.lastReq.Model)
	require.NotNil(t, client.lastReq.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, client.lastReq.ResponseFormat.Type)
	require.Len(t, client.lastReq.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, client.lastReq.Messages[0].Role)
	assert.Equal(t, "hola", client.lastReq.Messages[1].Content)
}

func TestLLMRecognizer_TruncatesLongText(t *testing.T) {
	t.Parallel()

	client := answering(`{"reportId":"42"}`)
	r := extract.NewLLMRecognizer(client, "m", 0)

	text := strings.Repeat("relleno ", 5000) + "ReportId: 42"
	id, ok, err := r.Recognize(context.Background(), text)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", id)

	sent := client.lastReq.Messages[1].Content
	assert.Less(t, len(sent), len(text))
	assert.True(t, strings.HasSuffix(sent, "ReportId: 42"))
}

func TestLLMRecognizer_ClientError(t *testing.T) {
	t.Parallel()

	boom := errors.New("429 too many requests")
	client := &mockCompleter{answer: func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, boom
	}}

	_, ok, err := extract.NewLLMRecognizer(client, "m", time.Second).Recognize(context.Background(), "ReportId: 1")
	require.ErrorIs(t, err, boom)
	assert.False(t, ok)
}

func TestLLMRecognizer_NoChoices(t *testing.T) {
	t.Parallel()

	client := &mockCompleter{answer: func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, nil
	}}

	_, _, err := extract.NewLLMRecognizer(client, "m", 0).Recognize(context.Background(), "x")
	require.ErrorIs(t, err, extract.ErrInvalidAnswer)
}

func TestNewOpenAIRecognizer_WithoutKey(t *testing.T) {
	t.Parallel()

	assert.Nil(t, extract.NewOpenAIRecognizer("", "", "", 0))
	assert.NotNil(t, extract.NewOpenAIRecognizer("sk-test", "", "http://localhost:1/v1", time.Second))
}
