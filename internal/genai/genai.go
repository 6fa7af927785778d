// Package genai wraps the language-model provider behind a one-method
// interface so workers can be tested without network access.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	defaultModel       = openai.ChatModelGPT4oMini
	defaultTimeout     = 60 * time.Second
	defaultTemperature = 0.7
	defaultMaxTokens   = 1500
)

// Generator produces a completion for a system and user prompt pair.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Client implements Generator on the OpenAI chat completions API.
type Client struct {
	client      openai.Client
	model       string
	timeout     time.Duration
	temperature float64
	maxTokens   int64
}

// Opts holds optional generator configuration.
type Opts struct {
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int64
}

// Option configures a Client.
type Option func(*Opts)

// WithModel overrides the completion model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimeout bounds a single generation call.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// NewClient creates a generator authenticated with apiKey.
func NewClient(apiKey string, options ...Option) *Client {
	opts := Opts{
		Model:       defaultModel,
		Timeout:     defaultTimeout,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}
	for _, opt := range options {
		opt(&opts)
	}
	return &Client{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       opts.Model,
		timeout:     opts.Timeout,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}
}

// Generate runs one chat completion. The call is bounded by the configured
// timeout regardless of the caller's context.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(c.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	slog.Debug("completion finished", "model", c.model, "duration", time.Since(start))
	return completion.Choices[0].Message.Content, nil
}
