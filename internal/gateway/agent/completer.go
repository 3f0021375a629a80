package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// Completer runs one chat completion. *openai.Client satisfies it.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAICompleter calls the OpenAI API and logs latency and token counts
type OpenAICompleter struct {
	client *openai.Client
	log    logrus.FieldLogger
}

// NewOpenAICompleter creates a completer for the given API key
func NewOpenAICompleter(apiKey string, logger logrus.FieldLogger) *OpenAICompleter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &OpenAICompleter{
		client: openai.NewClient(apiKey),
		log:    logger,
	}
}

// CreateChatCompletion makes a chat completion request to OpenAI
func (c *OpenAICompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	startTime := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return openai.ChatCompletionResponse{}, fmt.Errorf("OpenAI API error: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"model":         resp.Model,
		"latency_ms":    time.Since(startTime).Milliseconds(),
		"input_tokens":  resp.Usage.PromptTokens,
		"output_tokens": resp.Usage.CompletionTokens,
	}).Debug("[OPENAI] completion")

	return resp, nil
}
