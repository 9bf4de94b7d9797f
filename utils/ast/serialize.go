package ast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// CanonicalJSON serializes a WorkflowSpec to its stable canonical form:
// object keys sorted lexically at every level, arrays in insertion order,
// lowercase booleans, shortest round-tripping numbers, no trailing
// whitespace. Two structurally equal specs always produce identical bytes.
func CanonicalJSON(spec *WorkflowSpec) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, specToMap(spec)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RoundTripCheck parses canonical output back into a WorkflowSpec and
// re-serializes it, verifying structural equality byte-for-byte. A failure
// here is an implementer bug, not a model bug.
func RoundTripCheck(spec *WorkflowSpec, serialized []byte) error {
	parsed, err := ParseWorkflowSpec(serialized)
	if err != nil {
		return fmt.Errorf("serialized IR does not parse: %w", err)
	}
	reserialized, err := CanonicalJSON(parsed)
	if err != nil {
		return fmt.Errorf("re-serialization failed: %w", err)
	}
	if !bytes.Equal(serialized, reserialized) {
		return fmt.Errorf("round-trip mismatch: serialized IR is not stable")
	}
	return nil
}

func specToMap(spec *WorkflowSpec) map[string]interface{} {
	inputs := make([]interface{}, 0, len(spec.Inputs))
	for _, p := range spec.Inputs {
		inputs = append(inputs, paramToMap(p, true))
	}
	outputs := make([]interface{}, 0, len(spec.Outputs))
	for _, p := range spec.Outputs {
		outputs = append(outputs, paramToMap(p, false))
	}

	m := map[string]interface{}{
		"name":        spec.Name,
		"description": spec.Description,
		"version":     spec.Version,
		"inputs":      inputs,
		"outputs":     outputs,
		"workflow":    NodeToMap(spec.Workflow),
	}
	if len(spec.Metadata) > 0 {
		m["metadata"] = spec.Metadata
	}
	return m
}

func paramToMap(p Parameter, withCredential bool) map[string]interface{} {
	m := map[string]interface{}{
		"name":     p.Name,
		"type":     p.Type,
		"required": p.Required,
	}
	if p.Description != "" {
		m["description"] = p.Description
	}
	if withCredential && p.IsCredential {
		m["is_credential"] = true
	}
	if p.Default != nil {
		m["default"] = p.Default
	}
	return m
}

// NodeToMap converts a node tree to its serialized map form with the type
// tag present on every node.
func NodeToMap(node Node) map[string]interface{} {
	switch n := node.(type) {
	case *ToolCall:
		m := map[string]interface{}{
			"type":       TypeToolCall,
			"tool_name":  n.ToolName,
			"parameters": n.Parameters,
		}
		if n.Description != "" {
			m["description"] = n.Description
		}
		if n.AssignsTo != "" {
			m["assigns_to"] = n.AssignsTo
		}
		return m

	case *Sequential:
		steps := make([]interface{}, 0, len(n.Steps))
		for _, step := range n.Steps {
			steps = append(steps, NodeToMap(step))
		}
		m := map[string]interface{}{
			"type":  TypeSequential,
			"steps": steps,
		}
		if n.Description != "" {
			m["description"] = n.Description
		}
		return m

	case *Conditional:
		m := map[string]interface{}{
			"type":      TypeConditional,
			"condition": n.Condition,
			"if_branch": NodeToMap(n.IfBranch),
		}
		if n.ElseBranch != nil {
			m["else_branch"] = NodeToMap(n.ElseBranch)
		}
		if n.Description != "" {
			m["description"] = n.Description
		}
		return m

	case *Parallel:
		branches := make([]interface{}, 0, len(n.Branches))
		for _, branch := range n.Branches {
			branches = append(branches, NodeToMap(branch))
		}
		m := map[string]interface{}{
			"type":         TypeParallel,
			"branches":     branches,
			"wait_for_all": n.WaitForAll,
		}
		if n.Description != "" {
			m["description"] = n.Description
		}
		return m

	case *Orchestrator:
		subs := make(map[string]interface{}, len(n.SubWorkflows))
		for name, sub := range n.SubWorkflows {
			subs[name] = NodeToMap(sub)
		}
		rules := make([]interface{}, 0, len(n.RoutingRules))
		for _, rule := range n.RoutingRules {
			rules = append(rules, map[string]interface{}{
				"condition":     rule.Condition,
				"workflow_name": rule.WorkflowName,
			})
		}
		m := map[string]interface{}{
			"type":          TypeOrchestrator,
			"sub_workflows": subs,
			"routing_rules": rules,
		}
		if n.DefaultWorkflow != "" {
			m["default_workflow"] = n.DefaultWorkflow
		}
		if n.Description != "" {
			m["description"] = n.Description
		}
		return m
	}
	return nil
}

// writeCanonical emits a value as canonical JSON: maps with sorted keys,
// scalars via encoding/json (which yields the shortest round-tripping
// representation for float64).
func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case map[string]interface{}:
		buf.WriteByte('{')
		keys := sortedKeysAny(val)
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyData, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(keyData)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case []interface{}:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("cannot serialize value of type %T: %w", v, err)
		}
		buf.Write(data)
		return nil
	}
}

func sortedKeys(m map[string]Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeysAny(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
