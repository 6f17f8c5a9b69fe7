package consensus

import (
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/johnayoung/ai-council/internal/councilerr"
	"github.com/johnayoung/ai-council/internal/provider"
)

// Synthesizer selection strategies.
const (
	StrategyRandom = "random"
	StrategyFirst  = "first"
)

// Selector picks the model that synthesizes the final answer.
type Selector struct {
	strategy  string
	dedicated *provider.ModelSpec

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector returns a selector for strategy. src drives the random strategy;
// a nil src seeds one from the runtime. When dedicated is non-nil it is always
// chosen, whatever the strategy.
func NewSelector(strategy string, src rand.Source, dedicated *provider.ModelSpec) (*Selector, error) {
	switch strategy {
	case StrategyRandom, StrategyFirst:
	default:
		return nil, councilerr.Configf("unknown synthesis model selection strategy %q", strategy)
	}
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Selector{strategy: strategy, dedicated: dedicated, rng: rand.New(src)}, nil
}

// Select returns one of contributors, which must be in configured order.
// Safe for concurrent use.
func (s *Selector) Select(contributors []provider.ModelSpec) (provider.ModelSpec, error) {
	if s.dedicated != nil {
		return *s.dedicated, nil
	}
	if len(contributors) == 0 {
		return provider.ModelSpec{}, errors.New("no contributors to select a synthesizer from")
	}
	if s.strategy == StrategyFirst {
		return contributors[0], nil
	}
	s.mu.Lock()
	i := s.rng.IntN(len(contributors))
	s.mu.Unlock()
	return contributors[i], nil
}
