package generator

import (
	"strings"
	"testing"

	"github.com/kris-hansen/metagent/utils/ast"
)

func parseSpec(t *testing.T, data string) *ast.WorkflowSpec {
	t.Helper()
	spec, err := ast.ParseWorkflowSpec([]byte(data))
	if err != nil {
		t.Fatalf("fixture parse failed: %v", err)
	}
	return spec
}

const sequentialFixture = `{
	"name": "data_processing_pipeline",
	"description": "Fetch, validate and score customer data",
	"inputs": [{"name": "customer_id", "type": "string", "description": "Customer ID"}],
	"outputs": [{"name": "result", "type": "string"}],
	"workflow": {
		"type": "sequential",
		"steps": [
			{"type": "tool_call", "tool_name": "fetch_customer_data",
			 "parameters": {"customer_id": "{{customer_id}}"}, "assigns_to": "customer_data",
			 "description": "Fetch customer data from database"},
			{"type": "tool_call", "tool_name": "validate_customer_data",
			 "parameters": {"data": "{{customer_data}}"}, "assigns_to": "validated"},
			{"type": "tool_call", "tool_name": "calculate_lifetime_value",
			 "parameters": {"data": "{{validated}}"}, "assigns_to": "result"}
		]
	}
}`

func TestGenerate_SequentialToolOrder(t *testing.T) {
	spec := parseSpec(t, sequentialFixture)
	code, meta, err := New(spec).Generate(0.95)
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}

	if meta.WorkflowName != "data_processing_pipeline" {
		t.Errorf("unexpected workflow name in metadata: %s", meta.WorkflowName)
	}
	if meta.CodeSize != len(code) {
		t.Errorf("metadata code size %d does not match code length %d", meta.CodeSize, len(code))
	}

	// Tool methods appear in first-seen IR order.
	fetch := strings.Index(code, "def fetch_customer_data(")
	validate := strings.Index(code, "def validate_customer_data(")
	calc := strings.Index(code, "def calculate_lifetime_value(")
	if fetch < 0 || validate < 0 || calc < 0 {
		t.Fatalf("missing tool methods in generated code")
	}
	if !(fetch < validate && validate < calc) {
		t.Error("tool methods are not in first-seen order")
	}

	if !strings.Contains(code, "class DataProcessingPipelineAgent:") {
		t.Error("missing agent class definition")
	}
	if !strings.Contains(code, `self.context["customer_data"] = self.fetch_customer_data(customer_id=self.context["customer_id"])`) {
		t.Error("tool call emission with assignment missing or malformed")
	}
	if !strings.Contains(code, `return {"result": self.context.get("result")}`) {
		t.Error("output mapping missing")
	}
	if !strings.Contains(code, `"status": "not_implemented"`) {
		t.Error("tool stub placeholder missing")
	}
	if !strings.Contains(code, "# Fetch customer data from database") {
		t.Error("tool description comment missing")
	}
}

func TestGenerate_Idempotent(t *testing.T) {
	spec := parseSpec(t, sequentialFixture)

	first, firstMeta, err := New(spec).Generate(0.95)
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}
	second, secondMeta, err := New(spec).Generate(0.95)
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}

	if first != second {
		t.Error("generated code is not byte-identical across runs")
	}
	if firstMeta.Fingerprint != secondMeta.Fingerprint {
		t.Error("fingerprints differ for identical code")
	}
}

func TestGenerate_Conditional(t *testing.T) {
	spec := parseSpec(t, `{
		"name": "payment_flow",
		"description": "Conditional payment",
		"inputs": [{"name": "amount", "type": "number"}],
		"outputs": [],
		"workflow": {
			"type": "conditional",
			"condition": "{{amount}} > 500",
			"if_branch": {"type": "sequential", "steps": [
				{"type": "tool_call", "tool_name": "run_fraud_check", "parameters": {"amount": "{{amount}}"}},
				{"type": "tool_call", "tool_name": "process_payment", "parameters": {}}
			]},
			"else_branch": {"type": "tool_call", "tool_name": "process_standard_payment", "parameters": {}}
		}
	}`)

	code, _, err := New(spec).Generate(1.0)
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}

	if !strings.Contains(code, `if self._eval_condition("{{amount}} > 500"):`) {
		t.Error("conditional guard missing")
	}
	if !strings.Contains(code, "else:") {
		t.Error("else branch missing")
	}
	if strings.Contains(code, "conditional_route") {
		t.Error("generated code must not contain reserved scaffolding names")
	}
	if !strings.Contains(code, "def _eval_condition(") {
		t.Error("condition evaluator missing")
	}
}

func TestGenerate_ParallelJoin(t *testing.T) {
	spec := parseSpec(t, `{
		"name": "parallel_checks",
		"description": "Two independent checks",
		"inputs": [{"name": "product_id", "type": "string"}],
		"outputs": [],
		"workflow": {
			"type": "sequential",
			"steps": [
				{"type": "parallel", "wait_for_all": true, "branches": [
					{"type": "tool_call", "tool_name": "check_inventory",
					 "parameters": {"product_id": "{{product_id}}"}, "assigns_to": "inventory"},
					{"type": "tool_call", "tool_name": "check_pricing",
					 "parameters": {"product_id": "{{product_id}}"}, "assigns_to": "pricing"}
				]},
				{"type": "tool_call", "tool_name": "combine_results",
				 "parameters": {"inventory": "{{inventory}}", "pricing": "{{pricing}}"}}
			]
		}
	}`)

	code, _, err := New(spec).Generate(1.0)
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}

	if !strings.Contains(code, "import asyncio") {
		t.Error("asyncio import missing for parallel workflow")
	}
	if !strings.Contains(code, "await asyncio.gather(branch_1(), branch_2())") {
		t.Error("join over all branches missing")
	}
}

func TestGenerate_ParallelFireAndForget(t *testing.T) {
	spec := parseSpec(t, `{
		"name": "notify_all",
		"description": "Fire and forget notifications",
		"inputs": [],
		"outputs": [],
		"workflow": {
			"type": "parallel",
			"wait_for_all": false,
			"branches": [
				{"type": "tool_call", "tool_name": "notify_email", "parameters": {}},
				{"type": "tool_call", "tool_name": "notify_slack", "parameters": {}}
			]
		}
	}`)

	code, _, err := New(spec).Generate(1.0)
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}

	if strings.Contains(code, "asyncio.gather") {
		t.Error("fire-and-forget must not join branches")
	}
	if !strings.Contains(code, "Fire-and-forget") {
		t.Error("fire-and-forget marker missing")
	}
}

func TestGenerate_OrchestratorRouting(t *testing.T) {
	spec := parseSpec(t, `{
		"name": "priority_router",
		"description": "Route by priority",
		"inputs": [{"name": "priority", "type": "string"}],
		"outputs": [],
		"workflow": {
			"type": "orchestrator",
			"sub_workflows": {
				"high_priority": {"type": "tool_call", "tool_name": "expedite_order", "parameters": {}},
				"standard": {"type": "tool_call", "tool_name": "process_order", "parameters": {}}
			},
			"routing_rules": [
				{"condition": "{{priority}} == 'high'", "workflow_name": "high_priority"}
			],
			"default_workflow": "standard"
		}
	}`)

	code, _, err := New(spec).Generate(1.0)
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}

	ruleIdx := strings.Index(code, `if self._eval_condition("{{priority}} == 'high'"):`)
	elseIdx := strings.Index(code, "else:")
	if ruleIdx < 0 {
		t.Fatal("routing rule guard missing")
	}
	if elseIdx < ruleIdx {
		t.Error("default fallthrough must come after the routing rules")
	}
	if !strings.Contains(code, "self.expedite_order(") || !strings.Contains(code, "self.process_order(") {
		t.Error("sub-workflow compilation missing")
	}
}

func TestGenerate_OrchestratorNoDefaultRaises(t *testing.T) {
	spec := parseSpec(t, `{
		"name": "strict_router",
		"description": "No default route",
		"inputs": [{"name": "priority", "type": "string"}],
		"outputs": [],
		"workflow": {
			"type": "orchestrator",
			"sub_workflows": {
				"high_priority": {"type": "tool_call", "tool_name": "expedite_order", "parameters": {}}
			},
			"routing_rules": [
				{"condition": "{{priority}} == 'high'", "workflow_name": "high_priority"}
			]
		}
	}`)

	code, _, err := New(spec).Generate(1.0)
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}
	if !strings.Contains(code, `raise RuntimeError("No routing rule matched`) {
		t.Error("missing runtime routing error for unmatched rules")
	}
}

func TestGenerate_CredentialHygiene(t *testing.T) {
	spec := parseSpec(t, `{
		"name": "db_export",
		"description": "Export records",
		"inputs": [
			{"name": "database_url", "type": "string", "description": "Postgres DSN"},
			{"name": "table_name", "type": "string"}
		],
		"outputs": [],
		"workflow": {"type": "tool_call", "tool_name": "export_records",
		             "parameters": {"dsn": "{{database_url}}", "table": "{{table_name}}"}}
	}`)

	code, _, err := New(spec).Generate(1.0)
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}

	if !strings.Contains(code, "class CredentialStore:") {
		t.Error("credential store missing")
	}
	if !strings.Contains(code, `self._require("DATABASE_URL")`) {
		t.Error("credential must be loaded from environment by uppercased name")
	}
	if !strings.Contains(code, `self.context["database_url"] = self.credentials.database_url`) {
		t.Error("credential must be bound from the store, not from plain inputs")
	}
	if strings.Contains(code, `raise ValueError("Missing required input: database_url")`) {
		t.Error("credential inputs must not be required caller inputs")
	}
	if !strings.Contains(code, `if "table_name" not in inputs:`) {
		t.Error("non-credential required input check missing")
	}
	// The example main block must not fabricate credential values.
	if strings.Contains(code, `"database_url": "example_database_url"`) {
		t.Error("main block must not inline credential values")
	}
}

func TestGenerate_InterpolatedParameters(t *testing.T) {
	spec := parseSpec(t, `{
		"name": "greeting_flow",
		"description": "String interpolation",
		"inputs": [{"name": "customer_name", "type": "string"}],
		"outputs": [],
		"workflow": {"type": "tool_call", "tool_name": "send_greeting",
		             "parameters": {"message": "Hello {{customer_name}}, welcome!", "channel": "email", "retries": 3}}
	}`)

	code, _, err := New(spec).Generate(1.0)
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}

	if !strings.Contains(code, `message=self._interpolate("Hello {{customer_name}}, welcome!")`) {
		t.Error("interpolated parameter emission missing")
	}
	if !strings.Contains(code, `channel="email"`) {
		t.Error("plain string literal parameter missing")
	}
	if !strings.Contains(code, "retries=3") {
		t.Error("numeric literal parameter missing")
	}
	if !strings.Contains(code, "def _interpolate(") {
		t.Error("interpolation helper missing")
	}
}
