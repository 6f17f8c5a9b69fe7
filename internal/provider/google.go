package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Google Gemini Models
// Full list: https://ai.google.dev/gemini-api/docs/models
//
//   - gemini-3-pro               : Most intelligent, multimodal understanding, agentic
//   - gemini-2.5-pro             : Advanced thinking model, complex reasoning
//   - gemini-2.5-flash           : Best price-performance, large scale processing

// Google implements Provider for Google's Gemini API.
type Google struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// GoogleOption configures a Google provider.
type GoogleOption func(*Google)

// WithGoogleBaseURL sets a custom base URL.
func WithGoogleBaseURL(url string) GoogleOption {
	return func(g *Google) { g.baseURL = strings.TrimRight(url, "/") }
}

// WithGoogleHTTPClient sets a custom HTTP client.
func WithGoogleHTTPClient(c *http.Client) GoogleOption {
	return func(g *Google) { g.httpClient = c }
}

// NewGoogle creates a Google/Gemini provider authenticated with apiKey.
func NewGoogle(apiKey string, opts ...GoogleOption) (*Google, error) {
	if apiKey == "" {
		return nil, errors.New("google api key is required")
	}

	g := &Google{
		apiKey:  apiKey,
		baseURL: "https://generativelanguage.googleapis.com/v1beta",
		// No client timeout: the caller's context bounds every call.
		httpClient: &http.Client{},
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Query sends a prompt to a Gemini model and returns the response.
func (g *Google) Query(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	payload := geminiRequest{
		Contents: []geminiContent{
			{
				Role:  "user",
				Parts: []geminiPart{{Text: req.Prompt}},
			},
		},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	// Gemini uses model name in URL path
	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, req.Model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	// Header rather than query parameter so the key never shows up in URL errors.
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Response{}, NewAPIError(FamilyGoogle, resp.StatusCode, string(respBody))
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return Response{}, NewAPIError(FamilyGoogle, resp.StatusCode, "parsing response: "+err.Error())
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return Response{}, fmt.Errorf("google: no content in response: %w", ErrEmptyResponse)
	}

	var content strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		content.WriteString(part.Text)
	}

	return Response{
		Model:    req.Model,
		Content:  content.String(),
		Provider: FamilyGoogle,
		Latency:  time.Since(start),
	}, nil
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}
