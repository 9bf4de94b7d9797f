package parser

import (
	"strings"
	"testing"
)

func TestParse_AllSections(t *testing.T) {
	raw := `Workflow: Expense Approval
Description: Route expenses for approval

Inputs:
- expense_id (string): ID of the expense
- amount (number): Expense amount

Steps:
1. Fetch the expense record
2. If amount > 10000, require manager approval
   otherwise auto-approve
3. Notify the submitter

Outputs:
- approval_result (object): Decision details
`

	sections, diags := Parse(raw)
	if len(diags) != 0 {
		t.Errorf("expected no diagnostics, got %v", diags)
	}

	if sections.Name != "expense_approval" {
		t.Errorf("expected normalized name expense_approval, got %q", sections.Name)
	}
	if sections.Description != "Route expenses for approval" {
		t.Errorf("unexpected description: %q", sections.Description)
	}
	if len(sections.Inputs) != 2 {
		t.Fatalf("expected 2 inputs, got %d: %v", len(sections.Inputs), sections.Inputs)
	}
	if len(sections.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d: %v", len(sections.Steps), sections.Steps)
	}
	// Continuation lines attach to the preceding numbered step.
	if !strings.Contains(sections.Steps[1], "otherwise auto-approve") {
		t.Errorf("continuation line not appended: %q", sections.Steps[1])
	}
	if len(sections.Outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(sections.Outputs))
	}
}

func TestParse_CaseInsensitiveLabels(t *testing.T) {
	raw := `WORKFLOW: nightly_sync
description: Sync data nightly
STEPS:
1. Sync the data
`
	sections, _ := Parse(raw)
	if sections.Name != "nightly_sync" {
		t.Errorf("expected nightly_sync, got %q", sections.Name)
	}
	if len(sections.Steps) != 1 {
		t.Errorf("expected 1 step, got %d", len(sections.Steps))
	}
}

func TestParse_MissingSectionsAreSoft(t *testing.T) {
	sections, diags := Parse("just some free text with no labels")

	if sections == nil {
		t.Fatal("parser must always return sections")
	}
	codes := map[string]int{}
	for _, d := range diags {
		codes[d.Code]++
	}
	if codes[CodeMissingSection] != 3 {
		t.Errorf("expected 3 missing-section diagnostics, got %v", diags)
	}
}

func TestParse_EmptySteps(t *testing.T) {
	raw := `Workflow: empty_flow
Description: Has a steps label but no steps
Steps:
`
	_, diags := Parse(raw)
	found := false
	for _, d := range diags {
		if d.Code == CodeEmptySteps {
			found = true
		}
	}
	if !found {
		t.Errorf("expected EMPTY_STEPS diagnostic, got %v", diags)
	}
}

func TestParse_DuplicateSection(t *testing.T) {
	raw := `Workflow: dup_flow
Description: First
Description: Second
Steps:
1. Do the thing
`
	_, diags := Parse(raw)
	found := false
	for _, d := range diags {
		if d.Code == CodeDuplicateSection {
			found = true
		}
	}
	if !found {
		t.Errorf("expected DUPLICATE_SECTION diagnostic, got %v", diags)
	}
}

func TestParse_StarBullets(t *testing.T) {
	raw := `Workflow: star_flow
Description: Star bullets work too
Inputs:
* token (string): API token
Steps:
1. Use the token
`
	sections, _ := Parse(raw)
	if len(sections.Inputs) != 1 || !strings.HasPrefix(sections.Inputs[0], "token") {
		t.Errorf("star bullet not parsed: %v", sections.Inputs)
	}
}
