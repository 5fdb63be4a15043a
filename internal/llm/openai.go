package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ChatClient is the part of the go-openai client the adapter uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIModel sends the composed prompt as a single chat message.
type OpenAIModel struct {
	client   ChatClient
	defaults Options
	logger   *zap.Logger
}

// NewOpenAIModel creates a model backed by the OpenAI chat completions API.
// Zero fields in a call's Options fall back to defaults.
func NewOpenAIModel(apiKey string, defaults Options, logger *zap.Logger) *OpenAIModel {
	return NewOpenAIModelWithClient(openai.NewClient(apiKey), defaults, logger)
}

func NewOpenAIModelWithClient(client ChatClient, defaults Options, logger *zap.Logger) *OpenAIModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.Model == "" {
		defaults.Model = openai.GPT4oMini
	}
	return &OpenAIModel{
		client:   client,
		defaults: defaults,
		logger:   logger,
	}
}

func (m *OpenAIModel) Generate(ctx context.Context, prompt string, opts Options) (*Generation, error) {
	if opts.Model == "" {
		opts.Model = m.defaults.Model
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = m.defaults.MaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = m.defaults.Temperature
	}

	resp, err := m.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: opts.Model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   opts.MaxTokens,
			Temperature: float32(opts.Temperature),
		},
	)
	if err != nil {
		m.logger.Error("Failed to get model response",
			zap.String("model", opts.Model),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	if len(resp.Choices) == 0 {
		m.logger.Warn("Model returned no choices", zap.String("model", opts.Model))
		return nil, ErrEmptyResponse
	}

	return &Generation{
		Content:     strings.TrimSpace(resp.Choices[0].Message.Content),
		UsageTokens: resp.Usage.TotalTokens,
	}, nil
}
