// Package catalog checks configured model ids against the model catalogs
// published by OpenAI-compatible providers.
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/johnayoung/ai-council/internal/provider"
)

type (
	// Record is one catalog entry.
	Record struct {
		Source        string `json:"source"`
		ID            string `json:"id"`
		Name          string `json:"name,omitempty"`
		ContextLength int    `json:"context_length,omitempty"`
		Pricing       *Price `json:"pricing,omitempty"`
	}

	// Price is OpenRouter's per-token pricing, as published.
	Price struct {
		Prompt     string `json:"prompt"`
		Completion string `json:"completion"`
	}

	// Lister fetches a provider catalog.
	Lister interface {
		List(ctx context.Context) ([]Record, error)
	}

	// Missing is a configured model absent from its provider's catalog.
	Missing struct {
		CodeName string `json:"code_name"`
		Name     string `json:"name"`
		Provider string `json:"provider"`
		ModelID  string `json:"model_id"`
	}

	// Report is the result of Check.
	Report struct {
		Checked int               `json:"checked"`
		Missing []Missing         `json:"missing"`
		Skipped []string          `json:"skipped,omitempty"`
		Errors  map[string]string `json:"errors,omitempty"`
	}

	openAILister struct {
		client openai.Client
	}

	openRouterLister struct {
		client openai.Client
	}

	openRouterModels struct {
		Data []struct {
			ID            string `json:"id"`
			Name          string `json:"name"`
			ContextLength int    `json:"context_length"`
			Pricing       Price  `json:"pricing"`
		} `json:"data"`
	}
)

func clientOptions(apiKey, baseURL string, hc *http.Client) []option.RequestOption {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithBaseURL(baseURL)}
	if hc != nil {
		opts = append(opts, option.WithHTTPClient(hc))
	}
	return opts
}

// NewOpenAILister lists models with the OpenAI models endpoint. An empty
// baseURL targets api.openai.com.
func NewOpenAILister(apiKey, baseURL string, hc *http.Client) Lister {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1/"
	}
	return &openAILister{client: openai.NewClient(clientOptions(apiKey, baseURL, hc)...)}
}

// NewOpenRouterLister lists models with the OpenRouter models endpoint, which
// also reports names, context lengths and pricing. The endpoint accepts
// unauthenticated requests, so apiKey may be empty.
func NewOpenRouterLister(apiKey, baseURL string, hc *http.Client) Lister {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1/"
	}
	return &openRouterLister{client: openai.NewClient(clientOptions(apiKey, baseURL, hc)...)}
}

func (l *openAILister) List(ctx context.Context) ([]Record, error) {
	page, err := l.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing openai models: %w", err)
	}
	out := make([]Record, 0, len(page.Data))
	for _, m := range page.Data {
		out = append(out, Record{Source: provider.FamilyOpenAI, ID: m.ID})
	}
	return out, nil
}

func (l *openRouterLister) List(ctx context.Context) ([]Record, error) {
	var parsed openRouterModels
	if err := l.client.Get(ctx, "models", nil, &parsed); err != nil {
		return nil, fmt.Errorf("listing openrouter models: %w", err)
	}
	out := make([]Record, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		price := m.Pricing
		out = append(out, Record{
			Source:        provider.FamilyOpenRouter,
			ID:            m.ID,
			Name:          m.Name,
			ContextLength: m.ContextLength,
			Pricing:       &price,
		})
	}
	return out, nil
}

// Check reports the specs whose model id is missing from their provider's
// catalog. Specs of providers without a lister are skipped. A lister failure
// is recorded in Errors and its specs are not reported missing.
func Check(ctx context.Context, specs []provider.ModelSpec, listers map[string]Lister) Report {
	report := Report{Missing: []Missing{}}
	catalogs := make(map[string]map[string]bool)
	skipped := make(map[string]bool)

	for _, spec := range specs {
		lister, ok := listers[spec.Provider]
		if !ok {
			skipped[spec.Provider] = true
			continue
		}
		ids, fetched := catalogs[spec.Provider]
		if !fetched {
			records, err := lister.List(ctx)
			if err != nil {
				if report.Errors == nil {
					report.Errors = make(map[string]string)
				}
				report.Errors[spec.Provider] = err.Error()
			} else {
				ids = make(map[string]bool, len(records))
				for _, r := range records {
					ids[r.ID] = true
				}
			}
			catalogs[spec.Provider] = ids
		}
		if ids == nil {
			continue
		}
		report.Checked++
		if !ids[spec.ModelID] {
			report.Missing = append(report.Missing, Missing{
				CodeName: spec.CodeName,
				Name:     spec.Name,
				Provider: spec.Provider,
				ModelID:  spec.ModelID,
			})
		}
	}

	for p := range skipped {
		report.Skipped = append(report.Skipped, p)
	}
	sort.Strings(report.Skipped)
	return report
}
