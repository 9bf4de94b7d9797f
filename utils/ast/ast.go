// Package ast defines the typed intermediate representation for compiled
// workflows: a WorkflowSpec envelope around a tagged, recursive node tree.
// Instances are treated as immutable once validated.
package ast

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Node type tags. These discriminate the Node union in serialized form.
const (
	TypeToolCall     = "tool_call"
	TypeSequential   = "sequential"
	TypeConditional  = "conditional"
	TypeParallel     = "parallel"
	TypeOrchestrator = "orchestrator"
)

// IdentifierPattern matches valid workflow identifiers (snake_case).
var IdentifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// VariableRefPattern extracts {{identifier}} references from parameter
// values and condition strings.
var VariableRefPattern = regexp.MustCompile(`\{\{\s*([a-z_][a-z0-9_]*)\s*\}\}`)

// dottedRefPattern catches forbidden nested access like {{x.y}}.
var dottedRefPattern = regexp.MustCompile(`\{\{\s*[a-z_][a-z0-9_]*\.[^}]*\}\}`)

// ParameterTypes lists the allowed parameter type names.
var ParameterTypes = []string{
	"string", "number", "integer", "float", "boolean", "date", "text", "email", "object",
}

// credentialSubstrings trigger automatic is_credential detection on input names.
var credentialSubstrings = []string{
	"api_key", "apikey", "token", "password", "secret",
	"database_url", "db_url", "connection_string",
	"auth", "bearer", "private_key",
}

// Parameter describes a workflow input or output.
type Parameter struct {
	Name         string      `json:"name"`
	Type         string      `json:"type"`
	Description  string      `json:"description,omitempty"`
	IsCredential bool        `json:"is_credential,omitempty"`
	Required     bool        `json:"required"`
	Default      interface{} `json:"default,omitempty"`
}

// UnmarshalJSON applies the required=true default when the field is absent.
func (p *Parameter) UnmarshalJSON(data []byte) error {
	type alias struct {
		Name         string      `json:"name"`
		Type         string      `json:"type"`
		Description  string      `json:"description"`
		IsCredential bool        `json:"is_credential"`
		Required     *bool       `json:"required"`
		Default      interface{} `json:"default"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	p.Name = a.Name
	p.Type = a.Type
	p.Description = a.Description
	p.IsCredential = a.IsCredential
	p.Default = a.Default
	if a.Required != nil {
		p.Required = *a.Required
	} else {
		p.Required = true
	}
	return nil
}

// IsCredentialName reports whether a parameter name matches any of the
// credential substrings (case-insensitive).
func IsCredentialName(name string) bool {
	lower := strings.ToLower(name)
	for _, sub := range credentialSubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// DetectCredential sets is_credential when the parameter name matches a
// credential substring. Already-set flags are never cleared.
func (p *Parameter) DetectCredential() {
	if !p.IsCredential && IsCredentialName(p.Name) {
		p.IsCredential = true
	}
}

// Node is the tagged union forming the body of a workflow.
type Node interface {
	// NodeType returns the discriminator tag for this node kind.
	NodeType() string
}

// ToolCall is the atomic unit of workflow execution: one tool invocation
// with bound parameters that may reference scope variables.
type ToolCall struct {
	ToolName    string                 `json:"tool_name"`
	Parameters  map[string]interface{} `json:"parameters"`
	Description string                 `json:"description,omitempty"`
	AssignsTo   string                 `json:"assigns_to,omitempty"`
}

func (t *ToolCall) NodeType() string { return TypeToolCall }

// Sequential executes its steps in order, each step extending the variable
// scope for the steps after it.
type Sequential struct {
	Steps       []Node `json:"steps"`
	Description string `json:"description,omitempty"`
}

func (s *Sequential) NodeType() string { return TypeSequential }

// Conditional branches on a guarded condition expression.
type Conditional struct {
	Condition   string `json:"condition"`
	IfBranch    Node   `json:"if_branch"`
	ElseBranch  Node   `json:"else_branch,omitempty"`
	Description string `json:"description,omitempty"`
}

func (c *Conditional) NodeType() string { return TypeConditional }

// Parallel runs its branches concurrently. Branch scopes are isolated from
// each other; bindings join the outer scope only when WaitForAll is true.
type Parallel struct {
	Branches    []Node `json:"branches"`
	WaitForAll  bool   `json:"wait_for_all"`
	Description string `json:"description,omitempty"`
}

func (p *Parallel) NodeType() string { return TypeParallel }

// RoutingRule selects a sub-workflow when its condition holds.
type RoutingRule struct {
	Condition    string `json:"condition"`
	WorkflowName string `json:"workflow_name"`
}

// Orchestrator routes dynamically to one of its sub-workflows, evaluating
// routing rules top to bottom.
type Orchestrator struct {
	SubWorkflows    map[string]Node `json:"sub_workflows"`
	RoutingRules    []RoutingRule   `json:"routing_rules"`
	DefaultWorkflow string          `json:"default_workflow,omitempty"`
	Description     string          `json:"description,omitempty"`
}

func (o *Orchestrator) NodeType() string { return TypeOrchestrator }

// WorkflowSpec is the top-level container for a complete workflow: metadata,
// parameter schema, and exactly one root node.
type WorkflowSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Version     string                 `json:"version"`
	Inputs      []Parameter            `json:"inputs"`
	Outputs     []Parameter            `json:"outputs"`
	Workflow    Node                   `json:"workflow"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// DecodeNode builds the concrete node for a raw JSON value, dispatching on
// the type tag. Unknown or missing tags are decode errors.
func DecodeNode(data []byte) (Node, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("node is not a JSON object: %w", err)
	}

	switch tag.Type {
	case TypeToolCall:
		var raw struct {
			ToolName    string                 `json:"tool_name"`
			Parameters  map[string]interface{} `json:"parameters"`
			Description string                 `json:"description"`
			AssignsTo   string                 `json:"assigns_to"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		if raw.Parameters == nil {
			raw.Parameters = map[string]interface{}{}
		}
		return &ToolCall{
			ToolName:    raw.ToolName,
			Parameters:  raw.Parameters,
			Description: raw.Description,
			AssignsTo:   raw.AssignsTo,
		}, nil

	case TypeSequential:
		var raw struct {
			Steps       []json.RawMessage `json:"steps"`
			Description string            `json:"description"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		node := &Sequential{Description: raw.Description}
		for i, stepData := range raw.Steps {
			step, err := DecodeNode(stepData)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i+1, err)
			}
			node.Steps = append(node.Steps, step)
		}
		return node, nil

	case TypeConditional:
		var raw struct {
			Condition   string          `json:"condition"`
			IfBranch    json.RawMessage `json:"if_branch"`
			ElseBranch  json.RawMessage `json:"else_branch"`
			Description string          `json:"description"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		node := &Conditional{Condition: raw.Condition, Description: raw.Description}
		if len(raw.IfBranch) == 0 || string(raw.IfBranch) == "null" {
			return nil, fmt.Errorf("conditional node missing if_branch")
		}
		ifBranch, err := DecodeNode(raw.IfBranch)
		if err != nil {
			return nil, fmt.Errorf("if_branch: %w", err)
		}
		node.IfBranch = ifBranch
		if len(raw.ElseBranch) > 0 && string(raw.ElseBranch) != "null" {
			elseBranch, err := DecodeNode(raw.ElseBranch)
			if err != nil {
				return nil, fmt.Errorf("else_branch: %w", err)
			}
			node.ElseBranch = elseBranch
		}
		return node, nil

	case TypeParallel:
		var raw struct {
			Branches    []json.RawMessage `json:"branches"`
			WaitForAll  *bool             `json:"wait_for_all"`
			Description string            `json:"description"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		node := &Parallel{WaitForAll: true, Description: raw.Description}
		if raw.WaitForAll != nil {
			node.WaitForAll = *raw.WaitForAll
		}
		for i, branchData := range raw.Branches {
			branch, err := DecodeNode(branchData)
			if err != nil {
				return nil, fmt.Errorf("branch %d: %w", i+1, err)
			}
			node.Branches = append(node.Branches, branch)
		}
		return node, nil

	case TypeOrchestrator:
		var raw struct {
			SubWorkflows    map[string]json.RawMessage `json:"sub_workflows"`
			RoutingRules    []RoutingRule              `json:"routing_rules"`
			DefaultWorkflow string                     `json:"default_workflow"`
			Description     string                     `json:"description"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		node := &Orchestrator{
			SubWorkflows:    make(map[string]Node, len(raw.SubWorkflows)),
			RoutingRules:    raw.RoutingRules,
			DefaultWorkflow: raw.DefaultWorkflow,
			Description:     raw.Description,
		}
		for name, wfData := range raw.SubWorkflows {
			sub, err := DecodeNode(wfData)
			if err != nil {
				return nil, fmt.Errorf("sub-workflow %q: %w", name, err)
			}
			node.SubWorkflows[name] = sub
		}
		return node, nil

	case "":
		return nil, fmt.Errorf("node missing type tag")
	default:
		return nil, fmt.Errorf("unknown node type: %q", tag.Type)
	}
}

// ParseWorkflowSpec decodes a WorkflowSpec from JSON, applying defaults
// (version, required) and credential auto-detection on inputs.
func ParseWorkflowSpec(data []byte) (*WorkflowSpec, error) {
	var raw struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description"`
		Version     string                 `json:"version"`
		Inputs      []Parameter            `json:"inputs"`
		Outputs     []Parameter            `json:"outputs"`
		Workflow    json.RawMessage        `json:"workflow"`
		Metadata    map[string]interface{} `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid workflow spec JSON: %w", err)
	}

	spec := &WorkflowSpec{
		Name:        raw.Name,
		Description: raw.Description,
		Version:     raw.Version,
		Inputs:      raw.Inputs,
		Outputs:     raw.Outputs,
		Metadata:    raw.Metadata,
	}
	if spec.Version == "" {
		spec.Version = "1.0.0"
	}
	for i := range spec.Inputs {
		spec.Inputs[i].DetectCredential()
	}
	// Outputs never carry the credential bit.
	for i := range spec.Outputs {
		spec.Outputs[i].IsCredential = false
	}

	if len(raw.Workflow) == 0 || string(raw.Workflow) == "null" {
		return nil, fmt.Errorf("workflow spec missing workflow node")
	}
	workflow, err := DecodeNode(raw.Workflow)
	if err != nil {
		return nil, fmt.Errorf("workflow: %w", err)
	}
	spec.Workflow = workflow

	return spec, nil
}

// HasDottedRef reports whether a string contains a forbidden nested
// variable reference like {{x.y}}.
func HasDottedRef(s string) bool {
	return dottedRefPattern.MatchString(s)
}

// VariableRefs returns the identifiers referenced as {{name}} in a string,
// in order of appearance.
func VariableRefs(s string) []string {
	matches := VariableRefPattern.FindAllStringSubmatch(s, -1)
	refs := make([]string, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, m[1])
	}
	return refs
}

// WalkToolCalls visits every ToolCall in the tree in depth-first, IR order.
func WalkToolCalls(node Node, visit func(*ToolCall)) {
	switch n := node.(type) {
	case *ToolCall:
		visit(n)
	case *Sequential:
		for _, step := range n.Steps {
			WalkToolCalls(step, visit)
		}
	case *Conditional:
		WalkToolCalls(n.IfBranch, visit)
		if n.ElseBranch != nil {
			WalkToolCalls(n.ElseBranch, visit)
		}
	case *Parallel:
		for _, branch := range n.Branches {
			WalkToolCalls(branch, visit)
		}
	case *Orchestrator:
		for _, name := range sortedKeys(n.SubWorkflows) {
			WalkToolCalls(n.SubWorkflows[name], visit)
		}
	}
}
