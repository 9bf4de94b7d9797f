package ast

import (
	"strings"
	"testing"
)

func TestParseWorkflowSpec_SequentialDefaults(t *testing.T) {
	data := `{
		"name": "data_processing_pipeline",
		"description": "Process customer data",
		"inputs": [
			{"name": "customer_id", "type": "string", "description": "Customer ID"}
		],
		"outputs": [
			{"name": "result", "type": "string"}
		],
		"workflow": {
			"type": "sequential",
			"steps": [
				{"type": "tool_call", "tool_name": "fetch_customer_data",
				 "parameters": {"customer_id": "{{customer_id}}"}, "assigns_to": "customer_data"},
				{"type": "tool_call", "tool_name": "calculate_lifetime_value",
				 "parameters": {"data": "{{customer_data}}"}, "assigns_to": "result"}
			]
		}
	}`

	spec, err := ParseWorkflowSpec([]byte(data))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	if spec.Version != "1.0.0" {
		t.Errorf("expected default version 1.0.0, got %q", spec.Version)
	}
	if !spec.Inputs[0].Required {
		t.Error("expected required to default to true")
	}

	seq, ok := spec.Workflow.(*Sequential)
	if !ok {
		t.Fatalf("expected sequential root, got %T", spec.Workflow)
	}
	if len(seq.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(seq.Steps))
	}
	first, ok := seq.Steps[0].(*ToolCall)
	if !ok {
		t.Fatalf("expected tool_call step, got %T", seq.Steps[0])
	}
	if first.ToolName != "fetch_customer_data" || first.AssignsTo != "customer_data" {
		t.Errorf("unexpected first step: %+v", first)
	}
}

func TestParseWorkflowSpec_CredentialAutoDetect(t *testing.T) {
	data := `{
		"name": "db_sync",
		"description": "Sync",
		"inputs": [
			{"name": "database_url", "type": "string", "description": "Postgres DSN"},
			{"name": "customer_id", "type": "string"}
		],
		"outputs": [],
		"workflow": {"type": "tool_call", "tool_name": "sync_records", "parameters": {}}
	}`

	spec, err := ParseWorkflowSpec([]byte(data))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if !spec.Inputs[0].IsCredential {
		t.Error("expected database_url to be auto-detected as credential")
	}
	if spec.Inputs[1].IsCredential {
		t.Error("customer_id should not be a credential")
	}
}

func TestIsCredentialName(t *testing.T) {
	credentials := []string{
		"api_key", "my_apikey", "access_token", "db_password", "client_secret",
		"database_url", "db_url", "connection_string", "auth_header", "bearer_value", "private_key",
	}
	for _, name := range credentials {
		if !IsCredentialName(name) {
			t.Errorf("expected %q to be detected as credential", name)
		}
	}

	plain := []string{"customer_id", "amount", "order_data", "priority"}
	for _, name := range plain {
		if IsCredentialName(name) {
			t.Errorf("did not expect %q to be detected as credential", name)
		}
	}
}

func TestDecodeNode_ParallelDefaults(t *testing.T) {
	data := `{
		"type": "parallel",
		"branches": [
			{"type": "tool_call", "tool_name": "check_inventory", "parameters": {}},
			{"type": "tool_call", "tool_name": "check_pricing", "parameters": {}}
		]
	}`
	node, err := DecodeNode([]byte(data))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	par, ok := node.(*Parallel)
	if !ok {
		t.Fatalf("expected parallel node, got %T", node)
	}
	if !par.WaitForAll {
		t.Error("wait_for_all should default to true")
	}
}

func TestDecodeNode_UnknownType(t *testing.T) {
	_, err := DecodeNode([]byte(`{"type": "mystery"}`))
	if err == nil || !strings.Contains(err.Error(), "unknown node type") {
		t.Errorf("expected unknown node type error, got %v", err)
	}

	_, err = DecodeNode([]byte(`{"tool_name": "missing_tag"}`))
	if err == nil || !strings.Contains(err.Error(), "missing type tag") {
		t.Errorf("expected missing type tag error, got %v", err)
	}
}

func TestDecodeNode_Orchestrator(t *testing.T) {
	data := `{
		"type": "orchestrator",
		"sub_workflows": {
			"high_priority": {"type": "tool_call", "tool_name": "expedite_order", "parameters": {}},
			"standard": {"type": "tool_call", "tool_name": "process_order", "parameters": {}}
		},
		"routing_rules": [
			{"condition": "{{priority}} == 'high'", "workflow_name": "high_priority"}
		],
		"default_workflow": "standard"
	}`
	node, err := DecodeNode([]byte(data))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	orch := node.(*Orchestrator)
	if len(orch.SubWorkflows) != 2 {
		t.Errorf("expected 2 sub-workflows, got %d", len(orch.SubWorkflows))
	}
	if orch.DefaultWorkflow != "standard" {
		t.Errorf("expected default workflow standard, got %q", orch.DefaultWorkflow)
	}
	if orch.RoutingRules[0].WorkflowName != "high_priority" {
		t.Errorf("unexpected routing rule: %+v", orch.RoutingRules[0])
	}
}

func TestVariableRefs(t *testing.T) {
	refs := VariableRefs("{{amount}} > 500 and {{ status }} == 'open'")
	if len(refs) != 2 || refs[0] != "amount" || refs[1] != "status" {
		t.Errorf("unexpected refs: %v", refs)
	}

	if !HasDottedRef("{{order.total}}") {
		t.Error("expected dotted ref to be detected")
	}
	if HasDottedRef("{{order_total}}") {
		t.Error("plain ref misdetected as dotted")
	}
}

func TestWalkToolCalls_FirstSeenOrder(t *testing.T) {
	data := `{
		"type": "sequential",
		"steps": [
			{"type": "tool_call", "tool_name": "fetch_order", "parameters": {}},
			{"type": "conditional", "condition": "{{x}} > 1",
			 "if_branch": {"type": "tool_call", "tool_name": "fraud_check", "parameters": {}},
			 "else_branch": {"type": "tool_call", "tool_name": "standard_payment", "parameters": {}}},
			{"type": "tool_call", "tool_name": "fetch_order", "parameters": {}}
		]
	}`
	node, err := DecodeNode([]byte(data))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}

	var order []string
	seen := map[string]bool{}
	WalkToolCalls(node, func(tc *ToolCall) {
		if !seen[tc.ToolName] {
			seen[tc.ToolName] = true
			order = append(order, tc.ToolName)
		}
	})

	want := []string{"fetch_order", "fraud_check", "standard_payment"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], order[i])
		}
	}
}
