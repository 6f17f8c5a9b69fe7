package provider

import (
	"context"
	"fmt"
)

// New builds the Provider for spec.Provider. The family is resolved once, at
// construction. A spec whose credentials are missing yields a provider that
// fails every call with an auth error, so one unconfigured backend does not
// prevent the others from being consulted.
func New(spec ModelSpec) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch spec.Provider {
	case FamilyOpenAI:
		if spec.APIKey == "" {
			return unavailable(spec), nil
		}
		var opts []OpenAIOption
		if spec.BaseURL != "" {
			opts = append(opts, WithOpenAIBaseURL(spec.BaseURL))
		}
		p, err = NewOpenAI(spec.APIKey, opts...)
	case FamilyOpenRouter:
		if spec.APIKey == "" {
			return unavailable(spec), nil
		}
		var opts []OpenAIOption
		if spec.BaseURL != "" {
			opts = append(opts, WithOpenAIBaseURL(spec.BaseURL))
		}
		p, err = NewOpenRouter(spec.APIKey, opts...)
	case FamilyAnthropic:
		if spec.APIKey == "" {
			return unavailable(spec), nil
		}
		var opts []AnthropicOption
		if spec.BaseURL != "" {
			opts = append(opts, WithAnthropicBaseURL(spec.BaseURL))
		}
		p, err = NewAnthropic(spec.APIKey, opts...)
	case FamilyGoogle:
		if spec.APIKey == "" {
			return unavailable(spec), nil
		}
		var opts []GoogleOption
		if spec.BaseURL != "" {
			opts = append(opts, WithGoogleBaseURL(spec.BaseURL))
		}
		p, err = NewGoogle(spec.APIKey, opts...)
	case FamilyBedrock:
		if spec.APIKey == "" || spec.APISecret == "" {
			return unavailable(spec), nil
		}
		p, err = NewBedrock(spec.Region, spec.APIKey, spec.APISecret, spec.BaseURL)
	default:
		return nil, fmt.Errorf("unknown provider %q", spec.Provider)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// unavailable returns a provider that reports missing credentials.
func unavailable(spec ModelSpec) Provider {
	return ProviderFunc(func(context.Context, Request) (Response, error) {
		return Response{}, &APIError{
			Provider: spec.Provider,
			Reason:   "auth_error",
			Message:  "no API key configured for provider " + spec.Provider,
		}
	})
}
