package consensus

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/johnayoung/ai-council/internal/councilerr"
	"github.com/johnayoung/ai-council/internal/provider"
)

func member(code, modelID string) provider.ModelSpec {
	return provider.ModelSpec{
		Name:     "Model " + code,
		Provider: provider.FamilyOpenRouter,
		ModelID:  modelID,
		CodeName: code,
		Enabled:  true,
	}
}

func endpoint(spec provider.ModelSpec, fn provider.ProviderFunc) *provider.Endpoint {
	return provider.NewEndpoint(spec, fn)
}

func TestAnonymize(t *testing.T) {
	results := []provider.ModelResult{
		provider.Succeeded(member("Alpha", "openai/gpt-4o"), "A", time.Millisecond),
		provider.Failed(member("Beta", "google/gemini"), provider.Timeout, "deadline", time.Second),
		provider.Succeeded(member("Gamma", "anthropic/claude"), "C", time.Millisecond),
	}

	responses, contributors, err := Anonymize(results)
	require.NoError(t, err)
	require.Equal(t, []AnonymizedResponse{{CodeName: "Alpha", Text: "A"}, {CodeName: "Gamma", Text: "C"}}, responses)
	require.Equal(t, []string{"Alpha", "Gamma"}, CodeNames(responses))
	require.Len(t, contributors, 2)
	require.Equal(t, "anthropic/claude", contributors[1].ModelID)
}

func TestAnonymize_AllFailed(t *testing.T) {
	results := []provider.ModelResult{
		provider.Failed(member("Alpha", "a"), provider.NetworkFailure, "refused", 0),
		provider.Failed(member("Beta", "b"), provider.ProviderError, "HTTP 500", 0),
	}

	_, _, err := Anonymize(results)
	var allFailed *councilerr.AllModelsFailedError
	require.ErrorAs(t, err, &allFailed)
	require.Equal(t, results, allFailed.Results)
}

func TestSelector_UnknownStrategy(t *testing.T) {
	_, err := NewSelector("best", nil, nil)
	var cfgErr *councilerr.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestSelector_First(t *testing.T) {
	s, err := NewSelector(StrategyFirst, nil, nil)
	require.NoError(t, err)

	contributors := []provider.ModelSpec{member("Beta", "b"), member("Alpha", "a"), member("Gamma", "c")}
	for range 20 {
		got, err := s.Select(contributors)
		require.NoError(t, err)
		require.Equal(t, "Beta", got.CodeName)
	}
}

func TestSelector_RandomSeeded(t *testing.T) {
	contributors := []provider.ModelSpec{member("Alpha", "a"), member("Beta", "b"), member("Gamma", "c"), member("Delta", "d")}

	pick := func() []string {
		s, err := NewSelector(StrategyRandom, rand.NewPCG(42, 7), nil)
		require.NoError(t, err)
		var picks []string
		for range 10 {
			got, err := s.Select(contributors)
			require.NoError(t, err)
			picks = append(picks, got.CodeName)
		}
		return picks
	}

	require.Equal(t, pick(), pick())
}

func TestSelector_RandomIsRoughlyUniform(t *testing.T) {
	contributors := []provider.ModelSpec{member("Alpha", "a"), member("Beta", "b"), member("Gamma", "c")}
	s, err := NewSelector(StrategyRandom, nil, nil)
	require.NoError(t, err)

	const trials = 3000
	counts := map[string]int{}
	for range trials {
		got, err := s.Select(contributors)
		require.NoError(t, err)
		counts[got.CodeName]++
	}
	for _, c := range contributors {
		require.InDelta(t, trials/3, counts[c.CodeName], 200, "%s chosen %d times", c.CodeName, counts[c.CodeName])
	}
}

func TestSelector_Dedicated(t *testing.T) {
	dedicated := member("Omega", "o")
	s, err := NewSelector(StrategyRandom, nil, &dedicated)
	require.NoError(t, err)

	got, err := s.Select([]provider.ModelSpec{member("Alpha", "a")})
	require.NoError(t, err)
	require.Equal(t, "Omega", got.CodeName)

	got, err = s.Select(nil)
	require.NoError(t, err)
	require.Equal(t, "Omega", got.CodeName)
}

func TestSelector_NoContributors(t *testing.T) {
	s, err := NewSelector(StrategyFirst, nil, nil)
	require.NoError(t, err)
	_, err = s.Select(nil)
	require.Error(t, err)
}

func TestBuildPrompt(t *testing.T) {
	prompt, err := BuildPrompt("a microservice", "Which database?", []AnonymizedResponse{
		{CodeName: "Alpha", Text: "Use Postgres."},
		{CodeName: "Beta", Text: "Use SQLite."},
	})
	require.NoError(t, err)

	for _, want := range []string{"a microservice", "Which database?", "Alpha", "Use Postgres.", "Beta", "Use SQLite.", "reconcile"} {
		require.Contains(t, prompt, want)
	}
}

func TestQuestionPrompt(t *testing.T) {
	require.Equal(t,
		"Context: ctx\n\nQuestion: q?\n\nPlease provide a detailed, well-reasoned answer.",
		QuestionPrompt("ctx", "q?"))
}

func TestJudge_Synthesize(t *testing.T) {
	responses := []AnonymizedResponse{{CodeName: "Alpha", Text: "answer a"}, {CodeName: "Beta", Text: "answer b"}}

	tests := []struct {
		name      string
		responses []AnonymizedResponse
		judge     provider.ProviderFunc
		wantErr   bool
		check     func(t *testing.T, result provider.ModelResult, err error)
	}{
		{
			name:      "empty responses returns error",
			responses: []AnonymizedResponse{},
			wantErr:   true,
		},
		{
			name:      "single response is still synthesized",
			responses: responses[:1],
			judge: func(ctx context.Context, req provider.Request) (provider.Response, error) {
				return provider.Response{Content: "synthesized single"}, nil
			},
			check: func(t *testing.T, result provider.ModelResult, err error) {
				require.Equal(t, "synthesized single", result.Text)
			},
		},
		{
			name:      "prompt carries code names only",
			responses: responses,
			judge: func(ctx context.Context, req provider.Request) (provider.Response, error) {
				for _, leaked := range []string{"openai/gpt-4o", "google/gemini", "Model Alpha", "openrouter"} {
					if strings.Contains(req.Prompt, leaked) {
						return provider.Response{}, errors.New("prompt leaks " + leaked)
					}
				}
				if !strings.Contains(req.Prompt, "answer a") || !strings.Contains(req.Prompt, "answer b") {
					return provider.Response{}, errors.New("prompt missing responses")
				}
				return provider.Response{Content: "synthesized consensus"}, nil
			},
			check: func(t *testing.T, result provider.ModelResult, err error) {
				require.Equal(t, "synthesized consensus", result.Text)
			},
		},
		{
			name:      "judge failure is a synthesis error",
			responses: responses,
			judge: func(ctx context.Context, req provider.Request) (provider.Response, error) {
				return provider.Response{}, provider.NewAPIError("openrouter", 500, "internal")
			},
			wantErr: true,
			check: func(t *testing.T, result provider.ModelResult, err error) {
				var synthErr *councilerr.SynthesisFailedError
				require.ErrorAs(t, err, &synthErr)
				require.Equal(t, "Alpha", synthErr.CodeName)
				require.Equal(t, provider.ProviderError, synthErr.Kind)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synth := endpoint(member("Alpha", "openai/gpt-4o"), tt.judge)
			result, err := NewJudge(time.Second).Synthesize(context.Background(), synth, "ctx", "question", tt.responses)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			if tt.check != nil {
				tt.check(t, result, err)
			}
		})
	}
}

func TestJudge_SynthesizeTimeout(t *testing.T) {
	synth := endpoint(member("Alpha", "a"), func(ctx context.Context, req provider.Request) (provider.Response, error) {
		<-ctx.Done()
		return provider.Response{}, ctx.Err()
	})

	_, err := NewJudge(20*time.Millisecond).Synthesize(context.Background(), synth, "", "q", []AnonymizedResponse{{CodeName: "Alpha", Text: "a"}})
	var synthErr *councilerr.SynthesisFailedError
	require.ErrorAs(t, err, &synthErr)
	require.Equal(t, provider.Timeout, synthErr.Kind)
}
