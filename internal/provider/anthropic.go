package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic Claude Models
// Full list: https://platform.claude.com/docs/en/about-claude/models/overview
//
//   - claude-sonnet-4-5  : Smart model for complex agents and coding
//   - claude-haiku-4-5   : Fastest with near-frontier intelligence
//   - claude-opus-4-5    : Maximum intelligence, premium performance

// MessagesClient captures the subset of the Anthropic SDK client used by the
// adapter. It is satisfied by *sdk.MessageService.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Anthropic implements Provider for Anthropic's Claude Messages API.
type Anthropic struct {
	msg MessagesClient
}

type anthropicConfig struct {
	baseURL    string
	httpClient *http.Client
}

// AnthropicOption configures an Anthropic provider.
type AnthropicOption func(*anthropicConfig)

// WithAnthropicBaseURL sets a custom base URL.
func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(c *anthropicConfig) { c.baseURL = url }
}

// WithAnthropicHTTPClient sets a custom HTTP client.
func WithAnthropicHTTPClient(hc *http.Client) AnthropicOption {
	return func(c *anthropicConfig) { c.httpClient = hc }
}

// NewAnthropic creates an Anthropic provider authenticated with apiKey.
func NewAnthropic(apiKey string, opts ...AnthropicOption) (*Anthropic, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	var cfg anthropicConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}
	client := sdk.NewClient(reqOpts...)
	return &Anthropic{msg: &client.Messages}, nil
}

// NewAnthropicFromClient wraps an existing messages client, mainly for tests.
func NewAnthropicFromClient(msg MessagesClient) (*Anthropic, error) {
	if msg == nil {
		return nil, errors.New("anthropic client is required")
	}
	return &Anthropic{msg: msg}, nil
}

// Query sends a prompt to a Claude model and returns the response.
func (a *Anthropic) Query(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := a.msg.New(ctx, params)
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			return Response{}, NewAPIError(FamilyAnthropic, apiErr.StatusCode, apiErr.Error())
		}
		return Response{}, fmt.Errorf("anthropic messages.new: %w", err)
	}
	if msg == nil {
		return Response{}, fmt.Errorf("anthropic: nil message: %w", ErrEmptyResponse)
	}

	var content strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(content.String()) == "" {
		return Response{}, fmt.Errorf("anthropic: %w", ErrEmptyResponse)
	}

	return Response{
		Model:    req.Model,
		Content:  content.String(),
		Provider: FamilyAnthropic,
		Latency:  time.Since(start),
	}, nil
}
