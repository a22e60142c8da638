// Package llm wraps a DeepSeek-compatible chat-completion API behind the
// small Completer surface the enrich stage needs. The client is created once
// at worker init and threaded through; it carries its own circuit breaker
// and, when Options.RequestsPerSecond is set, a rate limiter.
package llm

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/ragproc/ragproc/pkg/fn"
	"github.com/ragproc/ragproc/pkg/resilience"
)

// Environment variable names for the provider credentials.
const (
	EnvAPIKey = "DeepSeek_API_Key"
	EnvModel  = "DeepSeek_Model_Name"
)

// DefaultBaseURL is the DeepSeek OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.deepseek.com/v1"

// Completer produces one completion for one prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Options configure a Client.
type Options struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	// RequestsPerSecond caps outbound call rate; 0 disables limiting.
	RequestsPerSecond float64
}

// OptionsFromEnv reads credentials from the environment.
func OptionsFromEnv() Options {
	return Options{
		APIKey: os.Getenv(EnvAPIKey),
		Model:  os.Getenv(EnvModel),
	}
}

// Client is a circuit-broken chat completion client, optionally rate-limited.
type Client struct {
	api     *openai.Client
	model   string
	temp    float32
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// New creates a Client. APIKey and Model are required.
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("llm: %s is not set", EnvAPIKey)
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("llm: %s is not set", EnvModel)
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = opts.BaseURL
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return &Client{
		api:     openai.NewClientWithConfig(cfg),
		model:   opts.Model,
		temp:    opts.Temperature,
		limiter: limiter,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}, nil
}

// Complete implements Completer.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	result := resilience.Do(ctx, c.breaker, func(ctx context.Context) fn.Result[string] {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Temperature: c.temp,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			return fn.Err[string](fmt.Errorf("llm: completion: %w", err))
		}
		if len(resp.Choices) == 0 {
			return fn.Err[string](fmt.Errorf("llm: empty response"))
		}
		return fn.Ok(resp.Choices[0].Message.Content)
	})
	return result.Unwrap()
}
