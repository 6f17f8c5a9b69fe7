package consensus

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	"github.com/johnayoung/ai-council/internal/councilerr"
	"github.com/johnayoung/ai-council/internal/provider"
)

const questionPromptFormat = "Context: %s\n\nQuestion: %s\n\nPlease provide a detailed, well-reasoned answer."

// QuestionPrompt is the prompt sent to every council member.
func QuestionPrompt(contextText, question string) string {
	return fmt.Sprintf(questionPromptFormat, contextText, question)
}

const judgePromptTemplate = `
Role
You are the synthesizer of an expert council. Several advisors answered the same question independently. They are identified only by code names. Your job is to combine their answers into one best-possible answer.

Context
{{.Context}}

Question
{{.Question}}

Advisor responses:
{{range .Responses}}
--- Advisor: {{.CodeName}} ---
{{.Text}}

{{end}}
Task
Produce ONE final answer to the question that synthesizes the advisor responses. Do not pick a single response and repeat it verbatim.

Method
1) Identify the points the advisors agree on and treat them as the backbone of the answer.
2) Where advisors disagree, weigh their reasoning and reconcile the disagreement:
   - Prefer statements that are more logically sound, more specific, and better justified.
   - Prefer safer, broadly valid guidance over speculative or brittle claims.
   - If the disagreement cannot be resolved, say so briefly and give the most defensible position.
3) Keep insights that only one advisor raised when they are correct and relevant.
4) Do not invent facts that no advisor supports unless they are needed to make the answer complete.

Output Requirements
- Output ONLY the final synthesized answer, with no preamble or meta-commentary.
- Keep the answer coherent, non-redundant, and well-structured (use bullets/steps/headings if helpful).
- Match formatting appropriate to the task (e.g., code blocks for code).
`

var tmpl = template.Must(template.New("judge").Parse(judgePromptTemplate))

// BuildPrompt renders the synthesis prompt. Only code names and response text
// reach the prompt.
func BuildPrompt(contextText, question string, responses []AnonymizedResponse) (string, error) {
	data := struct {
		Context   string
		Question  string
		Responses []AnonymizedResponse
	}{
		Context:   contextText,
		Question:  question,
		Responses: responses,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}
	return buf.String(), nil
}

// Sender issues one prompt to one model. *provider.Endpoint implements it.
type Sender interface {
	Spec() provider.ModelSpec
	Send(ctx context.Context, prompt string, timeout time.Duration) provider.ModelResult
}

// Judge synthesizes the council's final answer.
type Judge struct {
	timeout time.Duration
}

// NewJudge creates a judge whose synthesis call is bounded by timeout.
func NewJudge(timeout time.Duration) *Judge {
	return &Judge{timeout: timeout}
}

// Synthesize asks synthesizer to reconcile responses into one answer. A
// single response is still synthesized. A failed call is reported as a
// SynthesisFailedError.
func (j *Judge) Synthesize(ctx context.Context, synthesizer Sender, contextText, question string, responses []AnonymizedResponse) (provider.ModelResult, error) {
	if len(responses) == 0 {
		return provider.ModelResult{}, fmt.Errorf("no responses to synthesize")
	}

	prompt, err := BuildPrompt(contextText, question, responses)
	if err != nil {
		return provider.ModelResult{}, err
	}

	result := synthesizer.Send(ctx, prompt, j.timeout)
	if !result.OK() {
		return result, &councilerr.SynthesisFailedError{
			CodeName: synthesizer.Spec().CodeName,
			Kind:     result.Failure.Kind,
			Detail:   result.Failure.Detail,
		}
	}
	return result, nil
}
