package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/johnayoung/ai-council/internal/provider"
)

type listerFunc func(ctx context.Context) ([]Record, error)

func (f listerFunc) List(ctx context.Context) ([]Record, error) { return f(ctx) }

func TestOpenAILister(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/models"), r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[` +
			`{"id":"gpt-4o","object":"model","created":1,"owned_by":"openai"},` +
			`{"id":"o3","object":"model","created":2,"owned_by":"openai"}]}`))
	}))
	defer srv.Close()

	records, err := NewOpenAILister("sk-test", srv.URL+"/v1/", nil).List(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Record{{Source: "openai", ID: "gpt-4o"}, {Source: "openai", ID: "o3"}}, records)
}

func TestOpenRouterLister(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/models"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"meta-llama/llama-3.3-70b-instruct","name":"Llama 3.3 70B",` +
			`"context_length":131072,"pricing":{"prompt":"0.0000001","completion":"0.0000003"}}]}`))
	}))
	defer srv.Close()

	records, err := NewOpenRouterLister("", srv.URL+"/api/v1/", nil).List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "Llama 3.3 70B", records[0].Name)
	require.Equal(t, 131072, records[0].ContextLength)
	require.Equal(t, "0.0000001", records[0].Pricing.Prompt)
}

func TestCheck(t *testing.T) {
	calls := 0
	listers := map[string]Lister{
		provider.FamilyOpenAI: listerFunc(func(ctx context.Context) ([]Record, error) {
			calls++
			return []Record{{ID: "gpt-4o"}}, nil
		}),
		provider.FamilyOpenRouter: listerFunc(func(ctx context.Context) ([]Record, error) {
			return nil, errors.New("unavailable")
		}),
	}
	specs := []provider.ModelSpec{
		{CodeName: "Alpha", Provider: provider.FamilyOpenAI, ModelID: "gpt-4o"},
		{CodeName: "Beta", Provider: provider.FamilyOpenAI, ModelID: "gpt-9"},
		{CodeName: "Gamma", Provider: provider.FamilyOpenRouter, ModelID: "x/y"},
		{CodeName: "Delta", Provider: provider.FamilyGoogle, ModelID: "gemini-2.5-pro"},
	}

	report := Check(context.Background(), specs, listers)

	require.Equal(t, 1, calls, "catalog is fetched once per provider")
	require.Equal(t, 2, report.Checked)
	require.Equal(t, []Missing{{CodeName: "Beta", Provider: "openai", ModelID: "gpt-9"}}, report.Missing)
	require.Equal(t, []string{"google"}, report.Skipped)
	require.Contains(t, report.Errors["openrouter"], "unavailable")
}
