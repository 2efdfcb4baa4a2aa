package editor

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/gistnote/gistnote/internal/middleware"
)

// promptTail bounds how much document is sent to the model
const promptTail = 2000

// OpenAICompleter proposes continuations using OpenAI. Without an API key
// it declines every trigger, leaving completion to the static fallback.
type OpenAICompleter struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	logger      *zap.Logger
}

// NewOpenAICompleter creates an AI-backed completer. An empty API key
// produces a completer that always declines.
func NewOpenAICompleter(apiKey, model string, temperature float32, maxTokens int, timeout time.Duration, logger *zap.Logger) *OpenAICompleter {
	var client *openai.Client
	if apiKey != "" {
		client = openai.NewClient(apiKey)
	}
	if model == "" {
		model = openai.GPT4
	}
	if maxTokens <= 0 {
		maxTokens = 64
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OpenAICompleter{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     timeout,
		logger:      logger,
	}
}

// Bindings returns the channel bindings for bus registration
func (c *OpenAICompleter) Bindings() middleware.Bindings {
	return middleware.Bindings{
		ChannelComplete: c.handleComplete,
	}
}

func (c *OpenAICompleter) handleComplete(ctx context.Context, payload interface{}) middleware.Outcome {
	comp, ok := payload.(*Completion)
	if !ok {
		return middleware.Fail(fmt.Errorf("unexpected payload type %T", payload))
	}

	if c.client == nil || strings.TrimSpace(comp.Text) == "" {
		return middleware.Next()
	}

	limit := comp.Limit
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}

	text := comp.Text
	if len(text) > promptTail {
		text = text[len(text)-promptTail:]
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf("You are a markdown autocompletion engine. Given the end of a document, propose up to %d short continuations of the final words. Respond with one suggestion per line, no numbering, no commentary.", limit),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(callCtx, req)
	if err != nil {
		c.logger.Error("OpenAI API call failed", zap.Error(err))
		return middleware.NextErr(fmt.Errorf("OpenAI API call failed: %w", err))
	}

	if len(resp.Choices) == 0 {
		return middleware.NextErr(fmt.Errorf("no response from OpenAI"))
	}

	var suggestions []string
	for _, line := range strings.Split(resp.Choices[0].Message.Content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		suggestions = append(suggestions, line)
		if len(suggestions) == limit {
			break
		}
	}

	if len(suggestions) == 0 {
		return middleware.NextErr(fmt.Errorf("model returned no suggestions"))
	}

	comp.Suggestions = suggestions

	c.logger.Debug("Completion served by model",
		zap.String("model", c.model),
		zap.Int("suggestions", len(suggestions)))

	return middleware.Done(comp)
}
