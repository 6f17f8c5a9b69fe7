package council

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/johnayoung/ai-council/internal/consensus"
	"github.com/johnayoung/ai-council/internal/councilerr"
	"github.com/johnayoung/ai-council/internal/provider"
)

func member(code string) provider.ModelSpec {
	return provider.ModelSpec{
		Name:     "Model " + code,
		Provider: provider.FamilyOpenRouter,
		ModelID:  "vendor/model-" + strings.ToLower(code),
		CodeName: code,
		Enabled:  true,
	}
}

// fakeCouncil serves canned consultation answers and records
// synthesis prompts.
type fakeCouncil struct {
	mu         sync.Mutex
	synthesis  map[string]string
	calls      atomic.Int32
	synthCalls atomic.Int32
}

func (f *fakeCouncil) backend(code, answer string, err error) provider.ProviderFunc {
	return func(ctx context.Context, req provider.Request) (provider.Response, error) {
		if strings.Contains(req.Prompt, "Advisor responses:") {
			f.synthCalls.Add(1)
			f.mu.Lock()
			f.synthesis[code] = req.Prompt
			f.mu.Unlock()
			return provider.Response{Content: "consensus by " + code}, nil
		}
		f.calls.Add(1)
		if err != nil {
			return provider.Response{}, err
		}
		return provider.Response{Content: answer}, nil
	}
}

func newFake() *fakeCouncil {
	return &fakeCouncil{synthesis: map[string]string{}}
}

func baseConfig(models ...provider.ModelSpec) Config {
	return Config{
		Models:          models,
		MaxModels:       3,
		ParallelTimeout: 5 * time.Second,
		Strategy:        consensus.StrategyFirst,
	}
}

func TestConsult_EndToEnd(t *testing.T) {
	fake := newFake()
	reg := provider.NewRegistry()
	alpha, beta, gamma := member("Alpha"), member("Beta"), member("Gamma")
	reg.Register(alpha, fake.backend("Alpha", "A", nil))
	reg.Register(beta, fake.backend("Beta", "B", nil))
	reg.Register(gamma, fake.backend("Gamma", "C", nil))

	c, err := New(baseConfig(alpha, beta, gamma), WithRegistry(reg))
	require.NoError(t, err)

	outcome, err := c.Consult(context.Background(), Request{Context: "ctx", Question: "What now?"})
	require.NoError(t, err)

	require.Equal(t, "Alpha", outcome.SynthesizerCodeName)
	require.Equal(t, []string{"Alpha", "Beta", "Gamma"}, outcome.ContributingCodeNames)
	require.Equal(t, "consensus by Alpha", outcome.FinalAnswer)
	require.False(t, outcome.Degraded)
	require.NotEmpty(t, outcome.RequestID)
	require.Len(t, outcome.Results, 3)
	require.GreaterOrEqual(t, outcome.Timing.Total, outcome.Timing.Parallel)

	prompt := fake.synthesis["Alpha"]
	for _, want := range []string{"Alpha", "A", "Beta", "B", "Gamma", "C", "What now?"} {
		require.Contains(t, prompt, want)
	}
	for _, leaked := range []string{"vendor/model-alpha", "Model Beta", provider.FamilyOpenRouter} {
		require.NotContains(t, prompt, leaked)
	}
}

func TestConsult_ContributorsExcludeFailures(t *testing.T) {
	fake := newFake()
	reg := provider.NewRegistry()
	alpha, beta, gamma := member("Alpha"), member("Beta"), member("Gamma")
	reg.Register(alpha, fake.backend("Alpha", "", errors.New("connection reset")))
	reg.Register(beta, fake.backend("Beta", "B", nil))
	reg.Register(gamma, fake.backend("Gamma", "C", nil))

	c, err := New(baseConfig(alpha, beta, gamma), WithRegistry(reg))
	require.NoError(t, err)

	outcome, err := c.Consult(context.Background(), Request{Question: "q"})
	require.NoError(t, err)
	require.Equal(t, []string{"Beta", "Gamma"}, outcome.ContributingCodeNames)
	require.Equal(t, "Beta", outcome.SynthesizerCodeName)
	require.False(t, outcome.Results[0].OK())
}

func TestConsult_AllModelsFailed(t *testing.T) {
	fake := newFake()
	reg := provider.NewRegistry()
	alpha, beta := member("Alpha"), member("Beta")
	reg.Register(alpha, fake.backend("Alpha", "", errors.New("down")))
	reg.Register(beta, fake.backend("Beta", "", provider.NewAPIError("openrouter", 503, "overloaded")))

	c, err := New(baseConfig(alpha, beta), WithRegistry(reg))
	require.NoError(t, err)

	_, err = c.Consult(context.Background(), Request{Question: "q"})
	var allFailed *councilerr.AllModelsFailedError
	require.ErrorAs(t, err, &allFailed)
	require.Len(t, allFailed.Results, 2)
	require.Equal(t, int32(0), fake.synthCalls.Load())
}

func TestConsult_NoEnabledModels(t *testing.T) {
	disabled := member("Alpha")
	disabled.Enabled = false
	c, err := New(baseConfig(disabled), WithRegistry(provider.NewRegistry()))
	require.NoError(t, err)

	_, err = c.Consult(context.Background(), Request{Question: "q"})
	var cfgErr *councilerr.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestConsult_EmptyQuestion(t *testing.T) {
	c, err := New(baseConfig(member("Alpha")), WithRegistry(provider.NewRegistry()))
	require.NoError(t, err)

	_, err = c.Consult(context.Background(), Request{Context: "ctx", Question: "  "})
	require.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestConsult_EmptyContextAccepted(t *testing.T) {
	fake := newFake()
	reg := provider.NewRegistry()
	alpha := member("Alpha")
	reg.Register(alpha, fake.backend("Alpha", "A", nil))

	c, err := New(baseConfig(alpha), WithRegistry(reg))
	require.NoError(t, err)

	outcome, err := c.Consult(context.Background(), Request{Question: "What now?"})
	require.NoError(t, err)
	require.Equal(t, "consensus by Alpha", outcome.FinalAnswer)
}

func TestConsult_SynthesisFailure(t *testing.T) {
	alpha, beta := member("Alpha"), member("Beta")
	failingSynth := func(answer string) provider.ProviderFunc {
		return func(ctx context.Context, req provider.Request) (provider.Response, error) {
			if strings.Contains(req.Prompt, "Advisor responses:") {
				return provider.Response{}, provider.NewAPIError("openrouter", 500, "internal")
			}
			return provider.Response{Content: answer}, nil
		}
	}

	tests := []struct {
		name   string
		policy string
	}{
		{name: "fail policy aborts", policy: OnSynthesisFailureFail},
		{name: "raw policy degrades", policy: OnSynthesisFailureRaw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := provider.NewRegistry()
			reg.Register(alpha, failingSynth("A"))
			reg.Register(beta, failingSynth("B"))

			cfg := baseConfig(alpha, beta)
			cfg.OnSynthesisFailure = tt.policy
			c, err := New(cfg, WithRegistry(reg))
			require.NoError(t, err)

			outcome, err := c.Consult(context.Background(), Request{Question: "q"})
			if tt.policy == OnSynthesisFailureFail {
				var synthErr *councilerr.SynthesisFailedError
				require.ErrorAs(t, err, &synthErr)
				require.Equal(t, "Alpha", synthErr.CodeName)
				require.Len(t, synthErr.Results, 2)
				return
			}
			require.NoError(t, err)
			require.True(t, outcome.Degraded)
			require.NotEmpty(t, outcome.SynthesisError)
			require.Contains(t, outcome.FinalAnswer, "--- Alpha ---\nA")
			require.Contains(t, outcome.FinalAnswer, "--- Beta ---\nB")
		})
	}
}

func TestConsult_DedicatedSynthesisModel(t *testing.T) {
	fake := newFake()
	reg := provider.NewRegistry()
	alpha, beta, omega := member("Alpha"), member("Beta"), member("Omega")
	reg.Register(alpha, fake.backend("Alpha", "A", nil))
	reg.Register(beta, fake.backend("Beta", "B", nil))
	reg.Register(omega, fake.backend("Omega", "never consulted", nil))

	cfg := baseConfig(alpha, beta)
	cfg.SynthesisModel = &omega
	c, err := New(cfg, WithRegistry(reg))
	require.NoError(t, err)

	outcome, err := c.Consult(context.Background(), Request{Question: "q"})
	require.NoError(t, err)
	require.Equal(t, "Omega", outcome.SynthesizerCodeName)
	require.Equal(t, []string{"Alpha", "Beta"}, outcome.ContributingCodeNames)
	require.Equal(t, int32(2), fake.calls.Load())
}

func TestConsult_SeededRandomSelection(t *testing.T) {
	specs := []provider.ModelSpec{member("Alpha"), member("Beta"), member("Gamma")}
	pick := func() []string {
		fake := newFake()
		reg := provider.NewRegistry()
		for _, s := range specs {
			reg.Register(s, fake.backend(s.CodeName, s.CodeName, nil))
		}
		cfg := baseConfig(specs...)
		cfg.Strategy = consensus.StrategyRandom
		c, err := New(cfg, WithRegistry(reg), WithRandSource(rand.NewPCG(1, 2)))
		require.NoError(t, err)

		var picks []string
		for range 5 {
			outcome, err := c.Consult(context.Background(), Request{Question: "q"})
			require.NoError(t, err)
			picks = append(picks, outcome.SynthesizerCodeName)
		}
		return picks
	}
	require.Equal(t, pick(), pick())
}

func TestConsult_CallerCancellation(t *testing.T) {
	reg := provider.NewRegistry()
	alpha := member("Alpha")
	reg.Register(alpha, provider.ProviderFunc(func(ctx context.Context, req provider.Request) (provider.Response, error) {
		<-ctx.Done()
		return provider.Response{}, ctx.Err()
	}))

	c, err := New(baseConfig(alpha), WithRegistry(reg))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err = c.Consult(ctx, Request{Question: "q"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestNew_InvalidConfig(t *testing.T) {
	dup := baseConfig(member("Alpha"), member("Alpha"))

	badStrategy := baseConfig(member("Alpha"))
	badStrategy.Strategy = "loudest"

	badPolicy := baseConfig(member("Alpha"))
	badPolicy.OnSynthesisFailure = "retry"

	noTimeout := baseConfig(member("Alpha"))
	noTimeout.ParallelTimeout = 0

	dedicatedDup := baseConfig(member("Alpha"))
	alpha := member("Alpha")
	dedicatedDup.SynthesisModel = &alpha

	unknownProvider := baseConfig(provider.ModelSpec{Name: "x", Provider: "acme", ModelID: "x", CodeName: "X", Enabled: true})

	for name, cfg := range map[string]Config{
		"duplicate code names":       dup,
		"unknown strategy":           badStrategy,
		"unknown policy":             badPolicy,
		"zero timeout":               noTimeout,
		"synthesis model duplicates": dedicatedDup,
		"unknown provider":           unknownProvider,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := New(cfg)
			var cfgErr *councilerr.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	cfg := baseConfig(member("Alpha"))
	cfg.Strategy = ""
	c, err := New(cfg, WithRegistry(provider.NewRegistry()))
	require.NoError(t, err)

	got := c.Config()
	require.Equal(t, consensus.StrategyRandom, got.Strategy)
	require.Equal(t, OnSynthesisFailureFail, got.OnSynthesisFailure)
	require.Equal(t, got.ParallelTimeout, got.SynthesisTimeout)
}

func TestRawAnswer(t *testing.T) {
	got := RawAnswer([]consensus.AnonymizedResponse{{CodeName: "Alpha", Text: "A"}})
	require.Equal(t, "Synthesis was unavailable. The council's individual responses follow.\n\n--- Alpha ---\nA", got)
}
