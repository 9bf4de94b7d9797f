// Package generator walks a validated workflow IR and emits a
// self-contained Python agent program: credential plumbing, one stub
// method per tool, control-flow scaffolding per node kind, and a
// restricted condition evaluator. Emission is deterministic: the same IR
// and generator version always produce byte-identical output.
package generator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/kris-hansen/metagent/utils/ast"
	"github.com/kris-hansen/metagent/utils/config"
)

// Version identifies the code generator. Bump when emission changes.
const Version = "1.0.0"

// Metadata describes one generation run.
type Metadata struct {
	WorkflowName     string    `json:"workflow_name"`
	GeneratorVersion string    `json:"generator_version"`
	CodeSize         int       `json:"code_size"`
	GeneratedAt      time.Time `json:"generated_at"`
	Confidence       float64   `json:"confidence"`
	Fingerprint      uint64    `json:"fingerprint"`
}

// Generator emits Python agent code from a validated WorkflowSpec.
type Generator struct {
	spec        *ast.WorkflowSpec
	toolOrder   []string
	toolParams  map[string]map[string]bool
	toolDescs   map[string]string
	credentials []ast.Parameter
}

// New prepares a generator for a validated spec, collecting tool names in
// first-seen IR order and the superset of parameter names per tool.
func New(spec *ast.WorkflowSpec) *Generator {
	g := &Generator{
		spec:       spec,
		toolParams: make(map[string]map[string]bool),
		toolDescs:  make(map[string]string),
	}

	ast.WalkToolCalls(spec.Workflow, func(tc *ast.ToolCall) {
		if _, seen := g.toolParams[tc.ToolName]; !seen {
			g.toolOrder = append(g.toolOrder, tc.ToolName)
			g.toolParams[tc.ToolName] = make(map[string]bool)
		}
		for key := range tc.Parameters {
			g.toolParams[tc.ToolName][key] = true
		}
		if tc.Description != "" && g.toolDescs[tc.ToolName] == "" {
			g.toolDescs[tc.ToolName] = tc.Description
		}
	})

	for _, input := range spec.Inputs {
		if input.IsCredential {
			g.credentials = append(g.credentials, input)
		}
	}

	return g
}

// Generate produces the agent source and its metadata record. The
// confidence score is carried through from the pipeline for the metadata
// record only; it does not influence emission.
func (g *Generator) Generate(confidence float64) (string, *Metadata, error) {
	var b strings.Builder

	g.writeModuleDocstring(&b)
	g.writeImports(&b)
	if len(g.credentials) > 0 {
		g.writeCredentialStore(&b)
	}
	if err := g.writeAgentClass(&b); err != nil {
		return "", nil, err
	}
	g.writeMainBlock(&b)

	code := b.String()
	meta := &Metadata{
		WorkflowName:     g.spec.Name,
		GeneratorVersion: Version,
		CodeSize:         len(code),
		GeneratedAt:      time.Now().UTC(),
		Confidence:       confidence,
		Fingerprint:      xxhash.Sum64String(code),
	}

	config.DebugLog("[Generator] Emitted %d bytes for workflow %q (fingerprint %x)",
		meta.CodeSize, meta.WorkflowName, meta.Fingerprint)

	return code, meta, nil
}

func (g *Generator) className() string {
	parts := strings.Split(g.spec.Name, "_")
	var b strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	b.WriteString("Agent")
	return b.String()
}

func (g *Generator) writeModuleDocstring(b *strings.Builder) {
	fmt.Fprintf(b, "\"\"\"\nAuto-generated agent: %s\n\n", g.spec.Name)
	fmt.Fprintf(b, "Description: %s\n", g.spec.Description)

	if len(g.credentials) > 0 {
		b.WriteString("\nSETUP INSTRUCTIONS:\n")
		b.WriteString(strings.Repeat("=", 50) + "\n")
		b.WriteString("This agent requires the following environment variables:\n\n")
		for _, cred := range g.credentials {
			desc := cred.Description
			if desc == "" {
				desc = "Authentication credential"
			}
			envVar := strings.ToUpper(cred.Name)
			fmt.Fprintf(b, "- %s: %s\n", envVar, desc)
			fmt.Fprintf(b, "  Setup: export %s=<your-value-here>\n\n", envVar)
		}
	}

	fmt.Fprintf(b, "\nVersion: %s\n\"\"\"\n\n", g.spec.Version)
}

func (g *Generator) writeImports(b *strings.Builder) {
	b.WriteString("import os\n")
	b.WriteString("import re\n")
	if g.usesParallel(g.spec.Workflow) {
		b.WriteString("import asyncio\n")
	}
	b.WriteString("from typing import Any, Dict\n\n\n")
}

func (g *Generator) usesParallel(node ast.Node) bool {
	found := false
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		if found {
			return
		}
		switch x := n.(type) {
		case *ast.Parallel:
			found = true
		case *ast.Sequential:
			for _, s := range x.Steps {
				walk(s)
			}
		case *ast.Conditional:
			walk(x.IfBranch)
			if x.ElseBranch != nil {
				walk(x.ElseBranch)
			}
		case *ast.Orchestrator:
			for _, name := range sortedNodeKeys(x.SubWorkflows) {
				walk(x.SubWorkflows[name])
			}
		}
	}
	walk(node)
	return found
}

func (g *Generator) writeCredentialStore(b *strings.Builder) {
	b.WriteString("class CredentialStore:\n")
	b.WriteString("    \"\"\"Loads credential inputs from the environment; values never appear inline.\"\"\"\n\n")
	b.WriteString("    def __init__(self):\n")
	for _, cred := range g.credentials {
		fmt.Fprintf(b, "        self.%s = self._require(%q)\n", cred.Name, strings.ToUpper(cred.Name))
	}
	b.WriteString("\n")
	b.WriteString("    @staticmethod\n")
	b.WriteString("    def _require(env_var: str) -> str:\n")
	b.WriteString("        value = os.getenv(env_var)\n")
	b.WriteString("        if not value:\n")
	b.WriteString("            raise ValueError(\n")
	b.WriteString("                f\"Missing {env_var} environment variable\\n\"\n")
	b.WriteString("                f\"Setup: export {env_var}=<your-value-here>\"\n")
	b.WriteString("            )\n")
	b.WriteString("        return value\n\n\n")
}

func (g *Generator) writeAgentClass(b *strings.Builder) error {
	fmt.Fprintf(b, "class %s:\n", g.className())
	fmt.Fprintf(b, "    \"\"\"Executable agent for the %s workflow.\"\"\"\n\n", g.spec.Name)

	// __init__
	b.WriteString("    def __init__(self):\n")
	b.WriteString("        self.context: Dict[str, Any] = {}\n")
	if len(g.credentials) > 0 {
		b.WriteString("        self.credentials = CredentialStore()\n")
	}
	b.WriteString("\n")

	if err := g.writeExecuteMethod(b); err != nil {
		return err
	}
	g.writeConditionEvaluator(b)
	g.writeInterpolateHelper(b)
	g.writeToolMethods(b)
	return nil
}

func (g *Generator) writeExecuteMethod(b *strings.Builder) error {
	b.WriteString("    def execute(self, **inputs) -> Dict[str, Any]:\n")
	fmt.Fprintf(b, "        \"\"\"Execute the %s workflow.\n\n        Args:\n", g.spec.Name)
	for _, input := range g.spec.Inputs {
		desc := input.Description
		if desc == "" {
			desc = input.Type
		}
		if input.IsCredential {
			fmt.Fprintf(b, "            %s: %s (loaded from the environment)\n", input.Name, desc)
		} else {
			fmt.Fprintf(b, "            %s: %s\n", input.Name, desc)
		}
	}
	b.WriteString("\n        Returns:\n            Dictionary containing workflow outputs\n        \"\"\"\n")

	// Required, non-credential inputs must be supplied by the caller.
	for _, input := range g.spec.Inputs {
		if input.IsCredential || !input.Required {
			continue
		}
		fmt.Fprintf(b, "        if %q not in inputs:\n", input.Name)
		fmt.Fprintf(b, "            raise ValueError(\"Missing required input: %s\")\n", input.Name)
	}

	b.WriteString("        for key, value in inputs.items():\n")
	b.WriteString("            self.context[key] = value\n")

	for _, input := range g.spec.Inputs {
		if input.Default != nil && !input.IsCredential {
			fmt.Fprintf(b, "        self.context.setdefault(%q, %s)\n",
				input.Name, pythonLiteral(input.Default))
		}
	}

	// Credential inputs are bound by name from the store, never passed in.
	for _, cred := range g.credentials {
		fmt.Fprintf(b, "        self.context[%q] = self.credentials.%s\n", cred.Name, cred.Name)
	}
	b.WriteString("\n")

	if err := g.writeNode(b, g.spec.Workflow, 2); err != nil {
		return err
	}

	b.WriteString("\n")
	if len(g.spec.Outputs) > 0 {
		var pairs []string
		for _, out := range g.spec.Outputs {
			pairs = append(pairs, fmt.Sprintf("%q: self.context.get(%q)", out.Name, out.Name))
		}
		fmt.Fprintf(b, "        return {%s}\n\n", strings.Join(pairs, ", "))
	} else {
		b.WriteString("        return dict(self.context)\n\n")
	}
	return nil
}

// writeNode emits the code for one node at the given indentation level
// (levels of four spaces). Children are emitted in IR order.
func (g *Generator) writeNode(b *strings.Builder, node ast.Node, indent int) error {
	pad := strings.Repeat("    ", indent)

	switch n := node.(type) {
	case *ast.ToolCall:
		if n.Description != "" {
			fmt.Fprintf(b, "%s# %s\n", pad, n.Description)
		}
		call := fmt.Sprintf("self.%s(%s)", n.ToolName, g.callArguments(n))
		if n.AssignsTo != "" {
			fmt.Fprintf(b, "%sself.context[%q] = %s\n", pad, n.AssignsTo, call)
		} else {
			fmt.Fprintf(b, "%s%s\n", pad, call)
		}
		return nil

	case *ast.Sequential:
		if n.Description != "" {
			fmt.Fprintf(b, "%s# %s\n", pad, n.Description)
		}
		for _, step := range n.Steps {
			if err := g.writeNode(b, step, indent); err != nil {
				return err
			}
		}
		return nil

	case *ast.Conditional:
		if n.Description != "" {
			fmt.Fprintf(b, "%s# %s\n", pad, n.Description)
		}
		fmt.Fprintf(b, "%sif self._eval_condition(%s):\n", pad, pythonString(n.Condition))
		if err := g.writeNode(b, n.IfBranch, indent+1); err != nil {
			return err
		}
		if n.ElseBranch != nil {
			fmt.Fprintf(b, "%selse:\n", pad)
			if err := g.writeNode(b, n.ElseBranch, indent+1); err != nil {
				return err
			}
		}
		return nil

	case *ast.Parallel:
		return g.writeParallel(b, n, indent)

	case *ast.Orchestrator:
		return g.writeOrchestrator(b, n, indent)
	}

	return fmt.Errorf("unknown node kind %T", node)
}

func (g *Generator) writeParallel(b *strings.Builder, n *ast.Parallel, indent int) error {
	pad := strings.Repeat("    ", indent)

	if n.Description != "" {
		fmt.Fprintf(b, "%s# %s\n", pad, n.Description)
	}
	fmt.Fprintf(b, "%sasync def _parallel_executor():\n", pad)

	for i, branch := range n.Branches {
		fmt.Fprintf(b, "%s    async def branch_%d():\n", pad, i+1)
		if err := g.writeNode(b, branch, indent+2); err != nil {
			return err
		}
		b.WriteString("\n")
	}

	var calls []string
	for i := range n.Branches {
		calls = append(calls, fmt.Sprintf("branch_%d()", i+1))
	}

	if n.WaitForAll {
		fmt.Fprintf(b, "%s    # Join: all branch results are visible below\n", pad)
		fmt.Fprintf(b, "%s    await asyncio.gather(%s)\n", pad, strings.Join(calls, ", "))
	} else {
		fmt.Fprintf(b, "%s    # Fire-and-forget: branch results are not joined\n", pad)
		fmt.Fprintf(b, "%s    tasks = [asyncio.ensure_future(c) for c in (%s)]\n", pad, strings.Join(calls, ", "))
		fmt.Fprintf(b, "%s    await asyncio.sleep(0)\n", pad)
	}

	fmt.Fprintf(b, "%sasyncio.run(_parallel_executor())\n", pad)
	return nil
}

func (g *Generator) writeOrchestrator(b *strings.Builder, n *ast.Orchestrator, indent int) error {
	pad := strings.Repeat("    ", indent)

	if n.Description != "" {
		fmt.Fprintf(b, "%s# %s\n", pad, n.Description)
	}

	for i, rule := range n.RoutingRules {
		keyword := "if"
		if i > 0 {
			keyword = "elif"
		}
		fmt.Fprintf(b, "%s%s self._eval_condition(%s):\n", pad, keyword, pythonString(rule.Condition))
		if err := g.writeNode(b, n.SubWorkflows[rule.WorkflowName], indent+1); err != nil {
			return err
		}
	}

	if len(n.RoutingRules) == 0 {
		if n.DefaultWorkflow != "" {
			return g.writeNode(b, n.SubWorkflows[n.DefaultWorkflow], indent)
		}
		fmt.Fprintf(b, "%sraise RuntimeError(\"No routing rule matched and no default workflow is defined\")\n", pad)
		return nil
	}

	fmt.Fprintf(b, "%selse:\n", pad)
	if n.DefaultWorkflow != "" {
		return g.writeNode(b, n.SubWorkflows[n.DefaultWorkflow], indent+1)
	}
	fmt.Fprintf(b, "%s    raise RuntimeError(\"No routing rule matched and no default workflow is defined\")\n", pad)
	return nil
}

// callArguments renders the keyword arguments for a tool call, resolving
// parameter expressions against the runtime context. Keys are emitted in
// sorted order for deterministic output.
func (g *Generator) callArguments(n *ast.ToolCall) string {
	keys := make([]string, 0, len(n.Parameters))
	for k := range n.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var args []string
	for _, key := range keys {
		args = append(args, fmt.Sprintf("%s=%s", key, g.resolveExpression(n.Parameters[key])))
	}
	return strings.Join(args, ", ")
}

// resolveExpression turns a parameter expression into Python source: a
// bare {{x}} becomes a context lookup, a string with embedded references
// is interpolated at runtime, everything else is a literal.
func (g *Generator) resolveExpression(value interface{}) string {
	s, ok := value.(string)
	if !ok {
		return pythonLiteral(value)
	}

	refs := ast.VariableRefs(s)
	if len(refs) == 1 && strings.TrimSpace(s) == "{{"+refs[0]+"}}" {
		return fmt.Sprintf("self.context[%q]", refs[0])
	}
	if len(refs) > 0 {
		return fmt.Sprintf("self._interpolate(%s)", pythonString(s))
	}
	return pythonString(s)
}

func (g *Generator) writeToolMethods(b *strings.Builder) {
	for _, toolName := range g.toolOrder {
		params := sortedBoolKeys(g.toolParams[toolName])

		if desc := g.toolDescs[toolName]; desc != "" {
			fmt.Fprintf(b, "    # %s\n", desc)
		}
		fmt.Fprintf(b, "    def %s(self, **kwargs) -> Any:\n", toolName)
		if len(params) > 0 {
			fmt.Fprintf(b, "        \"\"\"Tool: %s. Parameters: %s.\"\"\"\n", toolName, strings.Join(params, ", "))
		} else {
			fmt.Fprintf(b, "        \"\"\"Tool: %s.\"\"\"\n", toolName)
		}

		var credParams []string
		for _, p := range params {
			if ast.IsCredentialName(p) {
				credParams = append(credParams, p)
			}
		}
		for _, p := range credParams {
			envVar := strings.ToUpper(p)
			fmt.Fprintf(b, "        %s = os.getenv(%q)\n", p, envVar)
			fmt.Fprintf(b, "        if not %s:\n", p)
			fmt.Fprintf(b, "            raise ValueError(\"Missing %s environment variable\")\n", envVar)
		}

		b.WriteString("        # TODO: implement actual tool logic\n")
		b.WriteString("        return {\"status\": \"not_implemented\", \"data\": kwargs}\n\n")
	}
}

func (g *Generator) writeMainBlock(b *strings.Builder) {
	b.WriteString("\nif __name__ == \"__main__\":\n")
	fmt.Fprintf(b, "    agent = %s()\n", g.className())
	b.WriteString("    inputs = {\n")
	for _, input := range g.spec.Inputs {
		if input.IsCredential {
			continue
		}
		fmt.Fprintf(b, "        %q: \"example_%s\",\n", input.Name, input.Name)
	}
	b.WriteString("    }\n")
	b.WriteString("    result = agent.execute(**inputs)\n")
	b.WriteString("    print(f\"Result: {result}\")\n")
}

func sortedBoolKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedNodeKeys(m map[string]ast.Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
