// Package llm wraps an OpenAI-compatible completion API behind the small
// Completer interface the engine consumes.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Completer is the completion service the planner, generator and grading
// engine call. Implementations may fail or return malformed text; callers
// own retry and recovery.
type Completer interface {
	Complete(ctx context.Context, prompt, system string) (string, error)
}

// CompleterFunc adapts a plain function to the Completer interface.
type CompleterFunc func(ctx context.Context, prompt, system string) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, prompt, system string) (string, error) {
	return f(ctx, prompt, system)
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTemperature sets the sampling temperature for completion calls.
func WithTemperature(t float32) Option {
	return func(c *Client) { c.temperature = t }
}

// WithTimeout bounds each completion call. Zero means no per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New creates a new LLM client. An empty baseURL keeps the library default
// endpoint; any OpenAI-compatible server (Ollama, vLLM, ...) works.
func New(baseURL, apiKey, modelName string, opts ...Option) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	c := &Client{
		api:         openai.NewClientWithConfig(config),
		model:       modelName,
		temperature: 0.3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends one prompt with an optional system instruction and
// returns the raw response text. The response format is pinned to JSON
// because every engine prompt demands a JSON body.
func (c *Client) Complete(ctx context.Context, prompt, system string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "model", c.model, "raw_len", len(raw))
	return raw, nil
}

// Ping verifies the endpoint is reachable and the configured model exists.
func (c *Client) Ping(ctx context.Context) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	models, err := c.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	for _, m := range models.Models {
		if m.ID == c.model {
			return nil
		}
	}
	slog.Warn("configured model not in endpoint model list", "model", c.model)
	return nil
}
