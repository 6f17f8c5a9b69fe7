// Package config loads the council configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/johnayoung/ai-council/internal/consensus"
	"github.com/johnayoung/ai-council/internal/council"
	"github.com/johnayoung/ai-council/internal/councilerr"
	"github.com/johnayoung/ai-council/internal/provider"
	"github.com/johnayoung/ai-council/internal/provider/middleware"
	"github.com/johnayoung/ai-council/internal/telemetry"
)

// DefaultPath is the configuration file read when none is given.
const DefaultPath = "config.yaml"

// Defaults applied to settings absent from the file.
const (
	DefaultMaxModels       = 3
	DefaultParallelTimeout = 120
	DefaultCooldown        = 30
	DefaultLogLevel        = "INFO"
)

type (
	// File is a parsed configuration file.
	File struct {
		Models   []Model           `yaml:"models"`
		Settings Settings          `yaml:"settings"`
		APIKeys  map[string]string `yaml:"api_keys"`
	}

	// Model is one entry of the models section.
	Model struct {
		Name        string   `yaml:"name"`
		Provider    string   `yaml:"provider"`
		ModelID     string   `yaml:"model_id"`
		CodeName    string   `yaml:"code_name"`
		Enabled     *bool    `yaml:"enabled"`
		BaseURL     string   `yaml:"base_url,omitempty"`
		Region      string   `yaml:"region,omitempty"`
		Temperature *float64 `yaml:"temperature,omitempty"`
		MaxTokens   int      `yaml:"max_tokens,omitempty"`
	}

	// Settings is the settings section. Durations are in seconds.
	Settings struct {
		MaxModels          int            `yaml:"max_models"`
		ParallelTimeout    int            `yaml:"parallel_timeout"`
		SynthesisTimeout   int            `yaml:"synthesis_timeout"`
		Selection          string         `yaml:"synthesis_model_selection"`
		SynthesisModel     string         `yaml:"synthesis_model"`
		OnSynthesisFailure string         `yaml:"on_synthesis_failure"`
		RandomSeed         *uint64        `yaml:"random_seed"`
		Temperature        *float64       `yaml:"temperature"`
		MaxTokens          int            `yaml:"max_tokens"`
		RateLimitRPM       int            `yaml:"rate_limit_rpm"`
		CircuitBreaker     CircuitBreaker `yaml:"circuit_breaker"`
		LogLevel           string         `yaml:"log_level"`
	}

	// CircuitBreaker configures the per-model breaker. Failures of zero
	// disables it.
	CircuitBreaker struct {
		Failures int `yaml:"failures"`
		Cooldown int `yaml:"cooldown"`
	}

	// raw mirrors File with pointers so missing sections can be detected.
	raw struct {
		Models   *[]Model          `yaml:"models"`
		Settings *Settings         `yaml:"settings"`
		APIKeys  map[string]string `yaml:"api_keys"`
	}
)

// Default returns the configuration used when no file exists: no models and
// default settings.
func Default() *File {
	f := &File{APIKeys: map[string]string{}}
	f.applyDefaults()
	return f
}

// Load reads and validates the file at path. A missing file yields Default.
// API key values of the form ${VAR} are replaced by the environment variable.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*File, error) {
	var r raw
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, councilerr.Configf("invalid YAML configuration: %v", err)
	}
	switch {
	case r.Models == nil:
		return nil, councilerr.Configf("missing required config section: models")
	case r.Settings == nil:
		return nil, councilerr.Configf("missing required config section: settings")
	case r.APIKeys == nil:
		return nil, councilerr.Configf("missing required config section: api_keys")
	}

	f := &File{Models: *r.Models, Settings: *r.Settings, APIKeys: r.APIKeys}
	for k, v := range f.APIKeys {
		f.APIKeys[k] = expand(v)
	}
	f.applyDefaults()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func expand(v string) string {
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		return os.Getenv(v[2 : len(v)-1])
	}
	if v == "empty" {
		return ""
	}
	return v
}

func (f *File) applyDefaults() {
	s := &f.Settings
	if s.MaxModels == 0 {
		s.MaxModels = DefaultMaxModels
	}
	if s.ParallelTimeout == 0 {
		s.ParallelTimeout = DefaultParallelTimeout
	}
	if s.Selection == "" {
		s.Selection = consensus.StrategyRandom
	}
	if s.OnSynthesisFailure == "" {
		s.OnSynthesisFailure = council.OnSynthesisFailureFail
	}
	if s.Temperature == nil {
		t := provider.DefaultTemperature
		s.Temperature = &t
	}
	if s.MaxTokens == 0 {
		s.MaxTokens = provider.DefaultMaxTokens
	}
	if s.CircuitBreaker.Cooldown == 0 {
		s.CircuitBreaker.Cooldown = DefaultCooldown
	}
	if s.LogLevel == "" {
		s.LogLevel = DefaultLogLevel
	}
}

// Validate checks models and settings.
func (f *File) Validate() error {
	codeNames := make(map[string]bool, len(f.Models))
	for i, m := range f.Models {
		for _, field := range [][2]string{
			{"name", m.Name},
			{"provider", m.Provider},
			{"model_id", m.ModelID},
			{"code_name", m.CodeName},
		} {
			if strings.TrimSpace(field[1]) == "" {
				return councilerr.Configf("model %d missing required field: %s", i, field[0])
			}
		}
		if m.Enabled == nil {
			return councilerr.Configf("model %d missing required field: enabled", i)
		}
		if codeNames[m.CodeName] {
			return councilerr.Configf("duplicate code name: %s", m.CodeName)
		}
		codeNames[m.CodeName] = true
		if !knownProvider(m.Provider) {
			return councilerr.Configf("unknown provider: %s", m.Provider)
		}
		if m.MaxTokens < 0 {
			return councilerr.Configf("model %s: max_tokens must not be negative", m.CodeName)
		}
	}

	s := f.Settings
	switch {
	case s.MaxModels < 1:
		return councilerr.Configf("max_models must be a positive integer")
	case s.ParallelTimeout < 1:
		return councilerr.Configf("parallel_timeout must be a positive integer")
	case s.SynthesisTimeout < 0:
		return councilerr.Configf("synthesis_timeout must not be negative")
	case s.RateLimitRPM < 0:
		return councilerr.Configf("rate_limit_rpm must not be negative")
	case s.CircuitBreaker.Failures < 0 || s.CircuitBreaker.Cooldown < 0:
		return councilerr.Configf("circuit_breaker values must not be negative")
	}
	switch s.Selection {
	case consensus.StrategyRandom, consensus.StrategyFirst:
	default:
		return councilerr.Configf("unknown synthesis_model_selection: %s", s.Selection)
	}
	switch s.OnSynthesisFailure {
	case council.OnSynthesisFailureFail, council.OnSynthesisFailureRaw:
	default:
		return councilerr.Configf("unknown on_synthesis_failure: %s", s.OnSynthesisFailure)
	}
	if s.SynthesisModel != "" {
		if _, ok := f.model(s.SynthesisModel); !ok {
			return councilerr.Configf("synthesis_model %q is not a configured model", s.SynthesisModel)
		}
	}
	return nil
}

func knownProvider(name string) bool {
	for _, p := range provider.Families {
		if p == name {
			return true
		}
	}
	return false
}

// model finds a model by name or code name.
func (f *File) model(name string) (Model, bool) {
	for _, m := range f.Models {
		if m.Name == name || m.CodeName == name {
			return m, true
		}
	}
	return Model{}, false
}

// Council returns the resolved council configuration with credentials
// attached to each model. The synthesis model, when set, is removed from the
// consulted models.
func (f *File) Council() council.Config {
	s := f.Settings
	cfg := council.Config{
		MaxModels:          s.MaxModels,
		ParallelTimeout:    time.Duration(s.ParallelTimeout) * time.Second,
		SynthesisTimeout:   time.Duration(s.SynthesisTimeout) * time.Second,
		Strategy:           s.Selection,
		OnSynthesisFailure: s.OnSynthesisFailure,
		Seed:               s.RandomSeed,
	}
	var synthesis string
	if s.SynthesisModel != "" {
		if m, ok := f.model(s.SynthesisModel); ok {
			synthesis = m.CodeName
			spec := f.spec(m)
			spec.Enabled = true
			cfg.SynthesisModel = &spec
		}
	}
	for _, m := range f.Models {
		if m.CodeName == synthesis {
			continue
		}
		cfg.Models = append(cfg.Models, f.spec(m))
	}
	return cfg
}

func (f *File) spec(m Model) provider.ModelSpec {
	spec := provider.ModelSpec{
		Name:        m.Name,
		Provider:    m.Provider,
		ModelID:     m.ModelID,
		CodeName:    m.CodeName,
		Enabled:     m.Enabled != nil && *m.Enabled,
		BaseURL:     m.BaseURL,
		Region:      m.Region,
		MaxTokens:   f.Settings.MaxTokens,
	}
	temperature := *f.Settings.Temperature
	if m.Temperature != nil {
		temperature = *m.Temperature
	}
	spec.Temperature = &temperature
	if m.MaxTokens > 0 {
		spec.MaxTokens = m.MaxTokens
	}
	switch m.Provider {
	case provider.FamilyBedrock:
		spec.APIKey = f.APIKeys["aws_access_key_id"]
		spec.APISecret = f.APIKeys["aws_secret_access_key"]
		if spec.Region == "" {
			spec.Region = f.APIKeys["aws_region"]
		}
	default:
		spec.APIKey = f.APIKeys[m.Provider+"_api_key"]
	}
	return spec
}

// Middleware returns the provider middleware enabled by the settings, in
// application order.
func (f *File) Middleware(logger telemetry.Logger) []provider.Middleware {
	var mws []provider.Middleware
	if f.Settings.RateLimitRPM > 0 {
		mws = append(mws, middleware.RateLimit(f.Settings.RateLimitRPM))
	}
	if f.Settings.CircuitBreaker.Failures > 0 {
		mws = append(mws, middleware.CircuitBreaker(middleware.BreakerSettings{
			Failures: f.Settings.CircuitBreaker.Failures,
			Cooldown: time.Duration(f.Settings.CircuitBreaker.Cooldown) * time.Second,
			Logger:   logger,
		}))
	}
	return mws
}

// Debug reports whether log_level enables debug logging.
func (f *File) Debug() bool {
	return strings.EqualFold(f.Settings.LogLevel, "DEBUG")
}
