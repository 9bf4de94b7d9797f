package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kris-hansen/metagent/utils/config"
	"github.com/kris-hansen/metagent/utils/models"
	"github.com/kris-hansen/metagent/utils/parser"
)

// DefaultPromptVersion tags the prompt template in use.
const DefaultPromptVersion = "2.0.0"

// systemPrompt instructs the model to emit a single JSON object matching
// the IR schema. Kept deliberately strict: the validator supplies the
// nuance through feedback on retry.
const systemPrompt = `You are a workflow parser. Convert specifications into JSON with ZERO tolerance for errors.

OUTPUT STRUCTURE:
{
  "name": "workflow_name_from_spec",
  "description": "copy from spec Description field",
  "version": "1.0.0",
  "inputs": [
    {"name": "input_name", "type": "string", "description": "from spec"}
  ],
  "outputs": [
    {"name": "output_name", "type": "string", "description": "from spec"}
  ],
  "workflow": {
    "type": "sequential",
    "steps": [
      {
        "type": "tool_call",
        "tool_name": "action_verb_noun",
        "parameters": {"key": "{{variable_name}}"},
        "assigns_to": "output_variable"
      }
    ]
  }
}

NODE TYPES: tool_call, sequential, conditional (condition/if_branch/else_branch), parallel (branches/wait_for_all), orchestrator (sub_workflows/routing_rules/default_workflow).

MANDATORY RULES:
1. Count the numbered steps in the specification.
2. Create one node per numbered step - no exceptions.
3. Reference variables only as {{variable_name}}; no dotted access.
4. Conditions use only comparisons (>, <, ==, !=, >=, <=), and/or/not, in/is.
5. Never use the tool names conditional_route, parallel_execute, orchestrator_route.

Return ONLY valid JSON. No explanations. No markdown. No code fences.`

// reasonerResult is one reasoning attempt's outcome before validation.
type reasonerResult struct {
	candidateJSON string
	trace         string
}

// reason builds the prompts, calls the provider, and returns the raw
// candidate JSON. Transport failures come back as ProviderError; a
// response that does not contain JSON even after repair is a ParsingError.
func reason(ctx context.Context, client models.Provider, state *State) (*reasonerResult, *Error) {
	userPrompt := buildReasoningPrompt(state.ParsedSections, state.FeedbackMessages)

	config.DebugLog("[Reasoner] Calling %s model %s (attempt %d)",
		state.Provider, state.ModelVersion, state.RetryCount+1)

	started := time.Now()
	output, err := client.Complete(ctx, systemPrompt, userPrompt, state.ModelVersion, models.DefaultModelConfig)
	if err != nil {
		return nil, NewProviderError("LLM call failed: %v", err)
	}
	if strings.TrimSpace(output) == "" {
		return nil, NewProviderError("LLM returned an empty response")
	}

	cleaned := repairJSON(output)
	if !json.Valid([]byte(cleaned)) {
		return nil, NewParsingError("LLM output is not valid JSON").
			WithDetail("response_prefix", truncate(output, 200))
	}

	trace := fmt.Sprintf("%s/%s responded in %s (%d chars)",
		state.Provider, state.ModelVersion, time.Since(started).Round(time.Millisecond), len(output))

	return &reasonerResult{candidateJSON: cleaned, trace: trace}, nil
}

// buildReasoningPrompt renders the parsed sections plus accumulated
// feedback into the user message.
func buildReasoningPrompt(sections *parser.Sections, feedback []string) string {
	var lines []string
	lines = append(lines, "Convert this workflow specification to JSON:", "")
	lines = append(lines, fmt.Sprintf("Workflow: %s", orNA(sections.Name)))
	lines = append(lines, fmt.Sprintf("Description: %s", orNA(sections.Description)))
	lines = append(lines, "", "Inputs:")
	for _, input := range sections.Inputs {
		lines = append(lines, fmt.Sprintf("  - %s", input))
	}
	lines = append(lines, "", "Steps:")
	for i, step := range sections.Steps {
		lines = append(lines, fmt.Sprintf("  %d. %s", i+1, step))
	}
	lines = append(lines, "", "Outputs:")
	for _, output := range sections.Outputs {
		lines = append(lines, fmt.Sprintf("  - %s", output))
	}

	if len(feedback) > 0 {
		lines = append(lines, "", "Previous attempt had these issues:")
		for _, msg := range feedback {
			lines = append(lines, fmt.Sprintf("  - %s", msg))
		}
	}

	return strings.Join(lines, "\n")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

var (
	codeFenceOpenRe  = regexp.MustCompile("^```(?:json)?\\s*")
	codeFenceCloseRe = regexp.MustCompile("\\s*```$")
	missingCommaRes  = []*regexp.Regexp{
		regexp.MustCompile(`\}(\s*\n\s*)\{`),
		regexp.MustCompile(`\](\s*\n\s*)\[`),
		regexp.MustCompile(`("\s*:\s*"[^"]*")(\s*\n\s*)(")`),
		regexp.MustCompile(`("\s*:\s*(?:true|false|null|\d+(?:\.\d+)?))(\s*\n\s*)(")`),
		regexp.MustCompile(`([}\]])(\s*\n\s*)(")`),
	}
)

// repairJSON applies a bounded repair pass to raw LLM output: strip code
// fences, cut to the outermost JSON object, and insert commas the model
// commonly drops between adjacent lines. Output that still does not parse
// is left for the caller to reject.
func repairJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = codeFenceOpenRe.ReplaceAllString(s, "")
	s = codeFenceCloseRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	// Cut to the outermost object when the model wrapped it in prose.
	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}

	if json.Valid([]byte(s)) {
		return s
	}

	repaired := s
	repaired = missingCommaRes[0].ReplaceAllString(repaired, "},${1}{")
	repaired = missingCommaRes[1].ReplaceAllString(repaired, "],${1}[")
	repaired = missingCommaRes[2].ReplaceAllString(repaired, "${1},${2}${3}")
	repaired = missingCommaRes[3].ReplaceAllString(repaired, "${1},${2}${3}")
	repaired = missingCommaRes[4].ReplaceAllString(repaired, "${1},${2}${3}")

	if json.Valid([]byte(repaired)) {
		config.DebugLog("[Reasoner] JSON repair pass recovered a parseable object")
		return repaired
	}
	return s
}

// computeConfidence applies the confidence policy: start at 1.0, subtract
// 0.1 per prior retry and up to 0.3 for parse diagnostics.
func computeConfidence(retryCount, diagnosticCount int) float64 {
	score := 1.0
	score -= 0.1 * float64(retryCount)

	diagPenalty := 0.1 * float64(diagnosticCount)
	if diagPenalty > 0.3 {
		diagPenalty = 0.3
	}
	score -= diagPenalty

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
