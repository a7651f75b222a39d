package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrInvalidAnswer is returned when the model answers with something that is
// not a digit run present in the text.
var ErrInvalidAnswer = errors.New("extract: model returned an invalid report id")

const (
	// maxPromptText keeps the tail of long answers, where the id usually is.
	maxPromptText = 16 << 10

	systemPrompt = `Extract the ReportId from the chat response given by the user. ` +
		`The ReportId is a number that follows a label such as "ReportId:", "ID del reporte" or "Nº de informe". ` +
		`Answer with a JSON object {"reportId": "<digits>"}. If there is no ReportId, answer {}.`
)

// ChatCompleter is the part of *openai.Client the recognizer uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// LLMRecognizer asks a chat model for the identifier in JSON mode.
type LLMRecognizer struct {
	client  ChatCompleter
	model   string
	timeout time.Duration
}

// NewLLMRecognizer wraps an existing chat client.
func NewLLMRecognizer(client ChatCompleter, model string, timeout time.Duration) *LLMRecognizer {
	return &LLMRecognizer{client: client, model: model, timeout: timeout}
}

// NewOpenAIRecognizer builds a recognizer backed by the OpenAI API or any
// compatible endpoint when baseURL is set. It returns nil without an API key,
// which New treats as "no primary".
func NewOpenAIRecognizer(apiKey, model, baseURL string, timeout time.Duration) *LLMRecognizer {
	if apiKey == "" {
		return nil
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return NewLLMRecognizer(openai.NewClientWithConfig(cfg), model, timeout)
}

func (r *LLMRecognizer) Name() string { return "llm" }

func (r *LLMRecognizer) Recognize(ctx context.Context, text string) (string, bool, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	prompt := text
	if len(prompt) > maxPromptText {
		prompt = strings.ToValidUTF8(prompt[len(prompt)-maxPromptText:], "")
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
	})
	if err != nil {
		return "", false, fmt.Errorf("extract.LLMRecognizer.Recognize: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", false, fmt.Errorf("extract.LLMRecognizer.Recognize: no choices: %w", ErrInvalidAnswer)
	}

	id, err := parseAnswer(resp.Choices[0].Message.Content)
	if err != nil {
		return "", false, fmt.Errorf("extract.LLMRecognizer.Recognize: %w", err)
	}
	if id == "" {
		return "", false, nil
	}
	if !strings.Contains(text, id) {
		return "", false, fmt.Errorf("extract.LLMRecognizer.Recognize: %q not in text: %w", id, ErrInvalidAnswer)
	}
	return id, true, nil
}

// parseAnswer accepts {"reportId":"123"}, {"reportId":123} and {}.
func parseAnswer(content string) (string, error) {
	var answer struct {
		ReportID json.RawMessage `json:"reportId"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &answer); err != nil {
		return "", fmt.Errorf("decode answer: %w", ErrInvalidAnswer)
	}
	if len(answer.ReportID) == 0 || string(answer.ReportID) == "null" {
		return "", nil
	}

	var id string
	if err := json.Unmarshal(answer.ReportID, &id); err != nil {
		id = string(answer.ReportID)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", nil
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("non-digit answer %q: %w", id, ErrInvalidAnswer)
		}
	}
	return id, nil
}
