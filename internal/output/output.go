// Package output renders consultation outcomes as JSON reports.
package output

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/johnayoung/ai-council/internal/council"
	"github.com/johnayoung/ai-council/internal/councilerr"
	"github.com/johnayoung/ai-council/internal/provider"
)

// Report statuses.
const (
	StatusSuccess  = "success"
	StatusDegraded = "degraded"
	StatusFailed   = "failed"
)

// Error types reported for a failed consultation.
const (
	ErrorConfiguration   = "configuration_error"
	ErrorAllModelsFailed = "all_models_failed"
	ErrorSynthesisFailed = "synthesis_failed"
	ErrorValidation      = "validation_error"
	ErrorCancelled       = "cancelled"
	ErrorInternal        = "internal_error"
)

type (
	// Report is the JSON document produced for one consultation.
	Report struct {
		RequestID             string          `json:"request_id,omitempty"`
		Status                string          `json:"status"`
		Context               string          `json:"context,omitempty"`
		Question              string          `json:"question"`
		ModelsUsed            []ModelRef      `json:"models_used,omitempty"`
		SynthesizerCodeName   string          `json:"synthesizer_code_name,omitempty"`
		SynthesizerModel      string          `json:"synthesizer_model,omitempty"`
		ContributingCodeNames []string        `json:"contributing_code_names,omitempty"`
		FinalSynthesis        string          `json:"final_synthesis,omitempty"`
		Responses             []ModelResponse `json:"responses,omitempty"`
		Timing                *Timing         `json:"timing,omitempty"`
		SynthesisError        string          `json:"synthesis_error,omitempty"`
		ErrorType             string          `json:"error_type,omitempty"`
		Error                 string          `json:"error,omitempty"`
	}

	// ModelRef identifies a consulted model.
	ModelRef struct {
		Name     string `json:"name"`
		CodeName string `json:"code_name"`
	}

	// ModelResponse is the per-model breakdown of a consultation round.
	ModelResponse struct {
		CodeName      string `json:"code_name"`
		Name          string `json:"name"`
		Provider      string `json:"provider"`
		ModelID       string `json:"model_id"`
		Status        string `json:"status"`
		Response      string `json:"response,omitempty"`
		FailureKind   string `json:"failure_kind,omitempty"`
		FailureDetail string `json:"failure_detail,omitempty"`
		LatencyMS     int64  `json:"latency_ms"`
	}

	// Timing is the duration breakdown in milliseconds.
	Timing struct {
		ParallelMS  int64 `json:"parallel_duration_ms"`
		SynthesisMS int64 `json:"synthesis_duration_ms"`
		TotalMS     int64 `json:"total_duration_ms"`
	}
)

// FromOutcome builds the report of a completed consultation.
func FromOutcome(req council.Request, o *council.Outcome) Report {
	status := StatusSuccess
	if o.Degraded {
		status = StatusDegraded
	}
	return Report{
		RequestID:             o.RequestID,
		Status:                status,
		Context:               req.Context,
		Question:              req.Question,
		ModelsUsed:            modelsUsed(o.Results),
		SynthesizerCodeName:   o.SynthesizerCodeName,
		SynthesizerModel:      o.Synthesizer.Name,
		ContributingCodeNames: o.ContributingCodeNames,
		FinalSynthesis:        o.FinalAnswer,
		Responses:             Responses(o.Results),
		Timing: &Timing{
			ParallelMS:  o.Timing.Parallel.Milliseconds(),
			SynthesisMS: o.Timing.Synthesis.Milliseconds(),
			TotalMS:     o.Timing.Total.Milliseconds(),
		},
		SynthesisError: o.SynthesisError,
	}
}

// FromError builds the report of an aborted consultation. The per-model
// breakdown is included when err carries one.
func FromError(req council.Request, err error) Report {
	r := Report{
		Status:    StatusFailed,
		Context:   req.Context,
		Question:  req.Question,
		ErrorType: ErrorType(err),
		Error:     err.Error(),
	}

	var (
		allFailed *councilerr.AllModelsFailedError
		synthErr  *councilerr.SynthesisFailedError
		results   []provider.ModelResult
	)
	switch {
	case errors.As(err, &allFailed):
		results = allFailed.Results
	case errors.As(err, &synthErr):
		results = synthErr.Results
		r.SynthesizerCodeName = synthErr.CodeName
	}
	r.ModelsUsed = modelsUsed(results)
	r.Responses = Responses(results)
	return r
}

// ErrorType maps a consultation error to its report error type.
func ErrorType(err error) string {
	var (
		cfgErr    *councilerr.ConfigurationError
		allFailed *councilerr.AllModelsFailedError
		synthErr  *councilerr.SynthesisFailedError
	)
	switch {
	case errors.As(err, &cfgErr):
		return ErrorConfiguration
	case errors.As(err, &allFailed):
		return ErrorAllModelsFailed
	case errors.As(err, &synthErr):
		return ErrorSynthesisFailed
	case errors.Is(err, council.ErrEmptyQuestion):
		return ErrorValidation
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorCancelled
	default:
		return ErrorInternal
	}
}

// Responses converts results to their report form, preserving order.
func Responses(results []provider.ModelResult) []ModelResponse {
	if len(results) == 0 {
		return nil
	}
	out := make([]ModelResponse, len(results))
	for i, r := range results {
		m := ModelResponse{
			CodeName:  r.Spec.CodeName,
			Name:      r.Spec.Name,
			Provider:  r.Spec.Provider,
			ModelID:   r.Spec.ModelID,
			Status:    StatusSuccess,
			Response:  r.Text,
			LatencyMS: r.Latency.Milliseconds(),
		}
		if !r.OK() {
			m.Status = StatusFailed
			m.FailureKind = string(r.Failure.Kind)
			m.FailureDetail = r.Failure.Detail
		}
		out[i] = m
	}
	return out
}

func modelsUsed(results []provider.ModelResult) []ModelRef {
	if len(results) == 0 {
		return nil
	}
	refs := make([]ModelRef, len(results))
	for i, r := range results {
		refs[i] = ModelRef{Name: r.Spec.Name, CodeName: r.Spec.CodeName}
	}
	return refs
}

// Write encodes r as indented JSON.
func Write(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Save writes r under dataDir/<run-id>/ as result.json, along with the
// question in prompt.txt and the final answer in consensus.md. It returns the
// run directory.
func Save(dataDir string, r Report) (string, error) {
	runDir := filepath.Join(dataDir, RunID(time.Now(), r.RequestID))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run directory: %w", err)
	}

	f, err := os.Create(filepath.Join(runDir, "result.json"))
	if err != nil {
		return "", fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()
	if err := Write(f, r); err != nil {
		return "", fmt.Errorf("writing result: %w", err)
	}

	prompt := r.Question
	if r.Context != "" {
		prompt = "Context: " + r.Context + "\n\nQuestion: " + r.Question
	}
	if err := os.WriteFile(filepath.Join(runDir, "prompt.txt"), []byte(prompt), 0o644); err != nil {
		return runDir, fmt.Errorf("saving prompt: %w", err)
	}
	if r.FinalSynthesis != "" {
		if err := os.WriteFile(filepath.Join(runDir, "consensus.md"), []byte(r.FinalSynthesis), 0o644); err != nil {
			return runDir, fmt.Errorf("saving consensus: %w", err)
		}
	}
	return runDir, nil
}

// RunID names a run directory: timestamp plus the first six characters of
// the request id, e.g. 20260112-143052-a1b2c3.
func RunID(t time.Time, requestID string) string {
	suffix := requestID
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	if suffix == "" {
		suffix = "failed"
	}
	return fmt.Sprintf("%s-%s", t.Format("20060102-150405"), suffix)
}
