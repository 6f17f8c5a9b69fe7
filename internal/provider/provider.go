package provider

import (
	"context"
	"fmt"
	"time"
)

// Provider family identifiers accepted in ModelSpec.Provider.
const (
	FamilyOpenAI     = "openai"
	FamilyOpenRouter = "openrouter"
	FamilyAnthropic  = "anthropic"
	FamilyGoogle     = "google"
	FamilyBedrock    = "bedrock"
)

// Families lists every supported provider family.
var Families = []string{FamilyOpenAI, FamilyOpenRouter, FamilyAnthropic, FamilyGoogle, FamilyBedrock}

// Generation defaults applied when a ModelSpec leaves them unset.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4000
)

// Provider abstracts LLM API interactions for one provider family.
type Provider interface {
	// Query sends a prompt and returns the complete response.
	Query(ctx context.Context, req Request) (Response, error)
}

// Request contains all inputs for an LLM query.
type Request struct {
	Model       string
	Prompt      string
	Temperature *float64
	MaxTokens   int
}

// Response contains the result of an LLM query.
type Response struct {
	Model    string        `json:"model"`
	Content  string        `json:"content"`
	Provider string        `json:"provider"`
	Latency  time.Duration `json:"latency_ms"`
}

// ProviderFunc allows functions to implement Provider (adapter pattern).
// Useful for testing and simple inline implementations.
type ProviderFunc func(ctx context.Context, req Request) (Response, error)

func (f ProviderFunc) Query(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// ModelSpec identifies one configured backend. It is supplied by the caller
// and treated as immutable for the lifetime of a request.
type ModelSpec struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	ModelID  string `json:"model_id"`
	CodeName string `json:"code_name"`
	Enabled  bool   `json:"enabled"`

	BaseURL string `json:"-"`
	Region  string `json:"-"`
	// Temperature is nil when unset; zero is a valid setting.
	Temperature *float64 `json:"-"`
	MaxTokens   int      `json:"-"`

	// Credentials are resolved by the caller and never serialized.
	APIKey    string `json:"-"`
	APISecret string `json:"-"`
}

// String identifies the spec in logs without exposing credentials.
func (s ModelSpec) String() string {
	return fmt.Sprintf("%s (%s/%s)", s.CodeName, s.Provider, s.ModelID)
}

// request builds the provider request for prompt, applying defaults.
func (s ModelSpec) request(prompt string) Request {
	req := Request{
		Model:       s.ModelID,
		Prompt:      prompt,
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
	}
	if req.Temperature == nil {
		t := DefaultTemperature
		req.Temperature = &t
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = DefaultMaxTokens
	}
	return req
}

// FailureKind classifies a per-model failure. None of the kinds is fatal to a
// consultation round.
type FailureKind string

const (
	NetworkFailure FailureKind = "network_failure"
	Timeout        FailureKind = "timeout"
	ProviderError  FailureKind = "provider_error"
)

// Failure describes why a single model call did not produce text.
type Failure struct {
	Kind   FailureKind `json:"kind"`
	Detail string      `json:"detail"`
}

// ModelResult is the outcome of one dispatched call. Exactly one of Text or
// Failure is meaningful: Failure is nil on success.
type ModelResult struct {
	Spec    ModelSpec
	Text    string
	Failure *Failure
	Latency time.Duration
}

// OK reports whether the call succeeded.
func (r ModelResult) OK() bool {
	return r.Failure == nil
}

// Succeeded builds a successful result.
func Succeeded(spec ModelSpec, text string, latency time.Duration) ModelResult {
	return ModelResult{Spec: spec, Text: text, Latency: latency}
}

// Failed builds a failed result.
func Failed(spec ModelSpec, kind FailureKind, detail string, latency time.Duration) ModelResult {
	return ModelResult{Spec: spec, Failure: &Failure{Kind: kind, Detail: detail}, Latency: latency}
}
