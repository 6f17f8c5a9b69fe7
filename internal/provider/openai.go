package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI Models
// Full list: https://platform.openai.com/docs/models
//
//   - gpt-5.2, gpt-5, gpt-5-mini  : frontier reasoning models
//   - gpt-4.1, gpt-4.1-mini       : non-reasoning models
//   - gpt-4o, gpt-4o-mini         : previous generation
//
// OpenRouter speaks the same Chat Completions contract and routes by slugs such
// as "anthropic/claude-sonnet-4.5" or "google/gemini-2.5-pro".

const (
	openAIBaseURL     = "https://api.openai.com/v1/"
	openRouterBaseURL = "https://openrouter.ai/api/v1/"
)

// ChatCompletionsClient captures the subset of the openai-go client used by the
// adapter. It is satisfied by *openai.ChatCompletionService.
type ChatCompletionsClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAI implements Provider for OpenAI-compatible Chat Completions APIs.
type OpenAI struct {
	chat   ChatCompletionsClient
	family string
}

type openAIConfig struct {
	baseURL    string
	httpClient *http.Client
}

// OpenAIOption configures an OpenAI-compatible provider.
type OpenAIOption func(*openAIConfig)

// WithOpenAIBaseURL sets a custom base URL (useful for proxies or compatible APIs).
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithOpenAIHTTPClient sets a custom HTTP client.
func WithOpenAIHTTPClient(hc *http.Client) OpenAIOption {
	return func(c *openAIConfig) { c.httpClient = hc }
}

// NewOpenAI creates an OpenAI provider authenticated with apiKey.
func NewOpenAI(apiKey string, opts ...OpenAIOption) (*OpenAI, error) {
	return newOpenAICompatible(FamilyOpenAI, openAIBaseURL, apiKey, opts)
}

// NewOpenRouter creates an OpenRouter provider authenticated with apiKey.
func NewOpenRouter(apiKey string, opts ...OpenAIOption) (*OpenAI, error) {
	return newOpenAICompatible(FamilyOpenRouter, openRouterBaseURL, apiKey, opts)
}

// NewOpenAIFromClient wraps an existing chat client, mainly for tests.
func NewOpenAIFromClient(family string, chat ChatCompletionsClient) (*OpenAI, error) {
	if chat == nil {
		return nil, errors.New("chat completions client is required")
	}
	return &OpenAI{chat: chat, family: family}, nil
}

func newOpenAICompatible(family, baseURL, apiKey string, opts []OpenAIOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s api key is required", family)
	}
	cfg := openAIConfig{baseURL: baseURL}
	for _, opt := range opts {
		opt(&cfg)
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(cfg.baseURL),
		// One outbound call per query: the dispatcher owns the deadline.
		option.WithMaxRetries(0),
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}
	client := openai.NewClient(reqOpts...)
	return &OpenAI{chat: &client.Chat.Completions, family: family}, nil
}

// Query sends a prompt to a chat model and returns the response.
func (o *OpenAI) Query(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := o.chat.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return Response{}, NewAPIError(o.family, apiErr.StatusCode, apiErr.Error())
		}
		return Response{}, fmt.Errorf("%s chat completion: %w", o.family, err)
	}

	if len(completion.Choices) == 0 {
		return Response{}, fmt.Errorf("%s: no choices in response: %w", o.family, ErrEmptyResponse)
	}
	content := completion.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return Response{}, fmt.Errorf("%s: %w", o.family, ErrEmptyResponse)
	}

	return Response{
		Model:    req.Model,
		Content:  content,
		Provider: o.family,
		Latency:  time.Since(start),
	}, nil
}
