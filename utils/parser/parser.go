// Package parser extracts labeled sections from raw natural-language
// workflow specifications. Extraction is deterministic and line-oriented;
// problems are reported as soft diagnostics that never fail the run.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kris-hansen/metagent/utils/config"
)

// Sections holds the labeled blocks extracted from a raw specification.
type Sections struct {
	Name        string
	Description string
	Inputs      []string
	Steps       []string
	Outputs     []string
}

// Diagnostic is a soft parsing issue. The reasoner still receives whichever
// sections were found; diagnostics only lower confidence.
type Diagnostic struct {
	Code    string
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s", d.Code, d.Message)
}

// Diagnostic codes.
const (
	CodeMissingSection   = "MISSING_SECTION"
	CodeEmptySteps       = "EMPTY_STEPS"
	CodeDuplicateSection = "DUPLICATE_SECTION"
)

var (
	sectionHeaderRe = regexp.MustCompile(`(?i)^(workflow|description|inputs|steps|outputs):\s*(.*)$`)
	numberedStepRe  = regexp.MustCompile(`^\d+\.\s+(.+)$`)
	listItemRe      = regexp.MustCompile(`^[-*]\s*(.+)$`)
)

// Parse extracts the labeled sections from a raw specification.
func Parse(rawSpec string) (*Sections, []Diagnostic) {
	sections := &Sections{}
	var diags []Diagnostic
	seen := map[string]bool{}

	lines := strings.Split(rawSpec, "\n")
	current := ""
	var inputLines, stepLines, outputLines []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if m := sectionHeaderRe.FindStringSubmatch(trimmed); m != nil {
			label := strings.ToLower(m[1])
			rest := strings.TrimSpace(m[2])

			if seen[label] {
				diags = append(diags, Diagnostic{
					Code:    CodeDuplicateSection,
					Message: fmt.Sprintf("duplicate '%s:' section; later content is appended", titleCase(label)),
				})
			}
			seen[label] = true
			current = label

			switch label {
			case "workflow":
				if rest != "" {
					sections.Name = normalizeName(rest)
				}
			case "description":
				if rest != "" {
					sections.Description = rest
				}
			}
			continue
		}

		switch current {
		case "description":
			if trimmed != "" {
				if sections.Description != "" {
					sections.Description += " " + trimmed
				} else {
					sections.Description = trimmed
				}
			}
		case "inputs":
			if trimmed != "" {
				inputLines = append(inputLines, trimmed)
			}
		case "steps":
			if trimmed != "" {
				stepLines = append(stepLines, trimmed)
			}
		case "outputs":
			if trimmed != "" {
				outputLines = append(outputLines, trimmed)
			}
		}
	}

	sections.Inputs = parseListItems(inputLines)
	sections.Steps = parseNumberedSteps(stepLines)
	sections.Outputs = parseListItems(outputLines)

	for _, required := range []struct{ label string }{
		{"workflow"}, {"description"}, {"steps"},
	} {
		if !seen[required.label] {
			diags = append(diags, Diagnostic{
				Code:    CodeMissingSection,
				Message: fmt.Sprintf("missing '%s:' section", titleCase(required.label)),
			})
		}
	}
	if seen["steps"] && len(sections.Steps) == 0 {
		diags = append(diags, Diagnostic{
			Code:    CodeEmptySteps,
			Message: "'Steps:' section contains no numbered steps",
		})
	}

	config.DebugLog("[Parser] Extracted %d inputs, %d steps, %d outputs (%d diagnostics)",
		len(sections.Inputs), len(sections.Steps), len(sections.Outputs), len(diags))

	return sections, diags
}

// parseListItems collects `- name (type): description` style entries.
// Continuation lines without a leading dash extend the previous entry.
func parseListItems(lines []string) []string {
	var items []string
	for _, line := range lines {
		if m := listItemRe.FindStringSubmatch(line); m != nil {
			item := strings.TrimSpace(m[1])
			if item != "" {
				items = append(items, item)
			}
		} else if len(items) > 0 {
			items[len(items)-1] += " " + line
		}
	}
	return items
}

// parseNumberedSteps collects numbered step lines. Lines between numbered
// steps are treated as continuations of the previous step.
func parseNumberedSteps(lines []string) []string {
	var steps []string
	for _, line := range lines {
		if m := numberedStepRe.FindStringSubmatch(line); m != nil {
			step := strings.TrimSpace(m[1])
			if step != "" {
				steps = append(steps, step)
			}
		} else if len(steps) > 0 {
			steps[len(steps)-1] += " " + line
		}
	}
	return steps
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// normalizeName lowercases a workflow title and joins words with
// underscores so it can serve as a snake_case identifier hint.
func normalizeName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.Join(strings.Fields(name), "_")
	return name
}
