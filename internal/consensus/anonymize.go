package consensus

import (
	"github.com/johnayoung/ai-council/internal/councilerr"
	"github.com/johnayoung/ai-council/internal/provider"
)

// AnonymizedResponse is a successful answer labelled only by its code name.
type AnonymizedResponse struct {
	CodeName string `json:"code_name"`
	Text     string `json:"text"`
}

// Anonymize keeps the successful results, in order, under their configured
// code names. It returns the specs of the contributors alongside, so callers
// can map code names back to models without exposing that mapping to the
// synthesis prompt. With no successes it returns an AllModelsFailedError.
func Anonymize(results []provider.ModelResult) ([]AnonymizedResponse, []provider.ModelSpec, error) {
	var (
		responses    []AnonymizedResponse
		contributors []provider.ModelSpec
	)
	for _, r := range results {
		if !r.OK() {
			continue
		}
		responses = append(responses, AnonymizedResponse{CodeName: r.Spec.CodeName, Text: r.Text})
		contributors = append(contributors, r.Spec)
	}
	if len(responses) == 0 {
		return nil, nil, &councilerr.AllModelsFailedError{Results: results}
	}
	return responses, contributors, nil
}

// CodeNames returns the code names of responses in order.
func CodeNames(responses []AnonymizedResponse) []string {
	names := make([]string, len(responses))
	for i, r := range responses {
		names[i] = r.CodeName
	}
	return names
}
