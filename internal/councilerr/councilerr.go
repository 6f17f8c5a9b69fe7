// Package councilerr defines the errors that abort a consultation. Per-model
// failures never surface here; they are recorded on provider.ModelResult.
package councilerr

import (
	"fmt"
	"strings"

	"github.com/johnayoung/ai-council/internal/provider"
)

// ConfigurationError reports an unusable configuration: no enabled models, an
// unknown selection strategy, or an invalid setting.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// Configf returns a ConfigurationError with a formatted reason.
func Configf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// AllModelsFailedError reports that no dispatched model produced a response.
// Results holds every dispatched call in configured order.
type AllModelsFailedError struct {
	Results []provider.ModelResult
}

func (e *AllModelsFailedError) Error() string {
	parts := make([]string, 0, len(e.Results))
	for _, r := range e.Results {
		if r.Failure == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s (%s)", r.Spec.CodeName, r.Failure.Kind, r.Failure.Detail))
	}
	return fmt.Sprintf("all %d models failed: %s", len(e.Results), strings.Join(parts, "; "))
}

// SynthesisFailedError reports that the synthesizer's own call failed.
// Results, when set, holds the consultation round that preceded it.
type SynthesisFailedError struct {
	CodeName string
	Kind     provider.FailureKind
	Detail   string
	Results  []provider.ModelResult
}

func (e *SynthesisFailedError) Error() string {
	return fmt.Sprintf("synthesis by %s failed: %s (%s)", e.CodeName, e.Kind, e.Detail)
}
