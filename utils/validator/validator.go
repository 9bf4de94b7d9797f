// Package validator enforces the workflow IR invariants: schema shape,
// identifier syntax, referential integrity of variables under the scope
// rules, routing integrity, and condition-expression safety.
package validator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kris-hansen/metagent/utils/ast"
	"github.com/kris-hansen/metagent/utils/config"
)

// Error is a single validation error with a stable code and the IR path
// where it occurred.
type Error struct {
	Path    string
	Code    string
	Message string
}

func (e Error) String() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: [%s] %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Validation error codes.
const (
	CodeInvalidIdentifier = "INVALID_IDENTIFIER"
	CodeDuplicateName     = "DUPLICATE_NAME"
	CodeInvalidType       = "INVALID_TYPE"
	CodeInvalidVersion    = "INVALID_VERSION"
	CodeMissingField      = "MISSING_FIELD"
	CodeEmptySteps        = "EMPTY_STEPS"
	CodeBadBranchCount    = "BAD_BRANCH_COUNT"
	CodeUndefinedVariable = "UNDEFINED_VARIABLE"
	CodeNestedAccess      = "NESTED_ACCESS"
	CodeUnsafeCondition   = "UNSAFE_CONDITION"
	CodeReservedToolName  = "RESERVED_TOOL_NAME"
	CodeUnknownRoute      = "UNKNOWN_ROUTE"
	CodeBranchConflict    = "BRANCH_CONFLICT"
)

// reservedToolNames may not be used as tool_name values; they collide with
// the generated control-flow scaffolding.
var reservedToolNames = map[string]bool{
	"conditional_route":  true,
	"parallel_execute":   true,
	"orchestrator_route": true,
}

var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Result collects errors and non-fatal warnings from one validation pass.
type Result struct {
	Valid    bool
	Errors   []Error
	Warnings []Error
}

// ErrorSummary returns a formatted string of all errors for LLM feedback.
func (r Result) ErrorSummary() string {
	if r.Valid || len(r.Errors) == 0 {
		return ""
	}

	var lines []string
	lines = append(lines, "Validation errors found:")
	for i, err := range r.Errors {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, err.String()))
	}
	return strings.Join(lines, "\n")
}

// Messages returns the error strings in order, one per error.
func (r Result) Messages() []string {
	msgs := make([]string, 0, len(r.Errors))
	for _, err := range r.Errors {
		msgs = append(msgs, err.String())
	}
	return msgs
}

// scope is the set of variable names visible at a program point.
type scope map[string]bool

func (s scope) clone() scope {
	c := make(scope, len(s))
	for k := range s {
		c[k] = true
	}
	return c
}

// newNames returns the names in s that are not in base, sorted.
func (s scope) newNames(base scope) []string {
	var names []string
	for k := range s {
		if !base[k] {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

type validator struct {
	errors   []Error
	warnings []Error
	// unjoined tracks names assigned inside wait_for_all=false parallel
	// branches; downstream references to them get an explanatory warning
	// alongside the undefined-variable error.
	unjoined map[string]bool
}

func (v *validator) errorf(path, code, format string, args ...interface{}) {
	v.errors = append(v.errors, Error{Path: path, Code: code, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) warnf(path, code, format string, args ...interface{}) {
	v.warnings = append(v.warnings, Error{Path: path, Code: code, Message: fmt.Sprintf(format, args...)})
}

// Validate checks every IR invariant on a workflow spec. On success the
// spec may be serialized and handed to the generator; it must not be
// mutated afterwards.
func Validate(spec *ast.WorkflowSpec) Result {
	v := &validator{unjoined: make(map[string]bool)}

	v.validateEnvelope(spec)

	if spec.Workflow != nil {
		env := make(scope)
		for _, input := range spec.Inputs {
			env[input.Name] = true
		}
		v.walk(spec.Workflow, "workflow", env)
	}

	result := Result{
		Valid:    len(v.errors) == 0,
		Errors:   v.errors,
		Warnings: v.warnings,
	}
	if result.Valid {
		config.DebugLog("[Validator] Workflow %q passed validation", spec.Name)
	} else {
		config.DebugLog("[Validator] Workflow %q failed with %d error(s)", spec.Name, len(result.Errors))
	}
	return result
}

func (v *validator) validateEnvelope(spec *ast.WorkflowSpec) {
	if spec.Name == "" {
		v.errorf("name", CodeMissingField, "workflow name is required")
	} else if len(spec.Name) > 64 || !ast.IdentifierPattern.MatchString(spec.Name) {
		v.errorf("name", CodeInvalidIdentifier,
			"invalid workflow name %q: must be snake_case, 1-64 characters", spec.Name)
	}

	if strings.TrimSpace(spec.Description) == "" {
		v.errorf("description", CodeMissingField, "workflow description is required")
	}

	if spec.Version != "" && !versionPattern.MatchString(spec.Version) {
		v.errorf("version", CodeInvalidVersion,
			"invalid version %q: must be a semantic version like 1.0.0", spec.Version)
	}

	v.validateParameters(spec.Inputs, "inputs", true)
	v.validateParameters(spec.Outputs, "outputs", false)

	if spec.Workflow == nil {
		v.errorf("workflow", CodeMissingField, "workflow spec must have exactly one workflow node")
	}
}

func (v *validator) validateParameters(params []ast.Parameter, section string, detectCredentials bool) {
	seen := map[string]bool{}
	for i := range params {
		p := &params[i]
		path := fmt.Sprintf("%s[%d]", section, i)

		if p.Name == "" {
			v.errorf(path+".name", CodeMissingField, "parameter name is required")
			continue
		}
		if !ast.IdentifierPattern.MatchString(p.Name) {
			v.errorf(path+".name", CodeInvalidIdentifier,
				"invalid parameter name %q: must be snake_case starting with a letter or underscore", p.Name)
		}
		if seen[p.Name] {
			v.errorf(path+".name", CodeDuplicateName,
				"duplicate parameter name %q in %s", p.Name, section)
		}
		seen[p.Name] = true

		if !validParameterType(p.Type) {
			v.errorf(path+".type", CodeInvalidType,
				"invalid parameter type %q: must be one of %s", p.Type, strings.Join(ast.ParameterTypes, ", "))
		}

		if detectCredentials {
			p.DetectCredential()
		}
	}
}

func validParameterType(t string) bool {
	for _, allowed := range ast.ParameterTypes {
		if t == allowed {
			return true
		}
	}
	return false
}

// walk validates a node and returns the scope visible after it executes.
func (v *validator) walk(node ast.Node, path string, env scope) scope {
	switch n := node.(type) {
	case *ast.ToolCall:
		return v.walkToolCall(n, path, env)
	case *ast.Sequential:
		return v.walkSequential(n, path, env)
	case *ast.Conditional:
		return v.walkConditional(n, path, env)
	case *ast.Parallel:
		return v.walkParallel(n, path, env)
	case *ast.Orchestrator:
		return v.walkOrchestrator(n, path, env)
	default:
		v.errorf(path, CodeInvalidType, "unknown node kind %T", node)
		return env
	}
}

func (v *validator) walkToolCall(n *ast.ToolCall, path string, env scope) scope {
	if n.ToolName == "" {
		v.errorf(path+".tool_name", CodeMissingField, "tool_call must have a tool_name")
	} else {
		if !ast.IdentifierPattern.MatchString(n.ToolName) {
			v.errorf(path+".tool_name", CodeInvalidIdentifier,
				"invalid tool name %q: must be snake_case", n.ToolName)
		}
		if reservedToolNames[n.ToolName] {
			v.errorf(path+".tool_name", CodeReservedToolName,
				"tool name %q is reserved for control-flow scaffolding", n.ToolName)
		}
	}

	for _, key := range sortedParamKeys(n.Parameters) {
		value := n.Parameters[key]
		paramPath := fmt.Sprintf("%s.parameters.%s", path, key)
		if !ast.IdentifierPattern.MatchString(key) {
			v.errorf(paramPath, CodeInvalidIdentifier,
				"invalid parameter key %q: must be snake_case", key)
		}
		if s, ok := value.(string); ok {
			v.checkVariableRefs(s, paramPath, env)
		}
	}

	result := env
	if n.AssignsTo != "" {
		if !ast.IdentifierPattern.MatchString(n.AssignsTo) {
			v.errorf(path+".assigns_to", CodeInvalidIdentifier,
				"invalid variable name %q: must be snake_case", n.AssignsTo)
		}
		result = env.clone()
		result[n.AssignsTo] = true
	}
	return result
}

func (v *validator) walkSequential(n *ast.Sequential, path string, env scope) scope {
	if len(n.Steps) == 0 {
		v.errorf(path+".steps", CodeEmptySteps, "sequential node must have at least one step")
		return env
	}

	current := env
	for i, step := range n.Steps {
		current = v.walk(step, fmt.Sprintf("%s.steps[%d]", path, i), current)
	}
	return current
}

func (v *validator) walkConditional(n *ast.Conditional, path string, env scope) scope {
	v.checkCondition(n.Condition, path+".condition", env)

	if n.IfBranch == nil {
		v.errorf(path+".if_branch", CodeMissingField, "conditional must have an if_branch")
		return env
	}

	ifEnv := v.walk(n.IfBranch, path+".if_branch", env.clone())

	if n.ElseBranch == nil {
		// Bindings from a lone if-branch are not visible downstream.
		return env
	}

	elseEnv := v.walk(n.ElseBranch, path+".else_branch", env.clone())

	// Names assigned in BOTH branches merge into the outer scope.
	merged := env.clone()
	elseNew := make(scope)
	for _, name := range elseEnv.newNames(env) {
		elseNew[name] = true
	}
	for _, name := range ifEnv.newNames(env) {
		if elseNew[name] {
			merged[name] = true
		}
	}
	return merged
}

func (v *validator) walkParallel(n *ast.Parallel, path string, env scope) scope {
	if len(n.Branches) < 2 || len(n.Branches) > 10 {
		v.errorf(path+".branches", CodeBadBranchCount,
			"parallel node must have between 2 and 10 branches, got %d", len(n.Branches))
	}

	// Each branch sees an isolated copy of the pre-split environment;
	// sibling bindings are invisible to each other.
	branchNews := make([][]string, len(n.Branches))
	for i, branch := range n.Branches {
		branchEnv := v.walk(branch, fmt.Sprintf("%s.branches[%d]", path, i), env.clone())
		branchNews[i] = branchEnv.newNames(env)
	}

	if !n.WaitForAll {
		// No post-join bindings without a join.
		for _, names := range branchNews {
			for _, name := range names {
				v.unjoined[name] = true
			}
		}
		return env
	}

	joined := env.clone()
	owner := map[string]int{}
	for i, names := range branchNews {
		for _, name := range names {
			if prev, dup := owner[name]; dup {
				v.errorf(fmt.Sprintf("%s.branches[%d]", path, i), CodeBranchConflict,
					"variable %q is assigned in branches %d and %d; parallel branch bindings must not conflict", name, prev, i)
				continue
			}
			owner[name] = i
			joined[name] = true
		}
	}
	return joined
}

func (v *validator) walkOrchestrator(n *ast.Orchestrator, path string, env scope) scope {
	if len(n.SubWorkflows) == 0 {
		v.errorf(path+".sub_workflows", CodeMissingField, "orchestrator must have at least one sub-workflow")
		return env
	}

	subNames := make([]string, 0, len(n.SubWorkflows))
	for name := range n.SubWorkflows {
		subNames = append(subNames, name)
	}
	sort.Strings(subNames)

	for _, name := range subNames {
		if !ast.IdentifierPattern.MatchString(name) {
			v.errorf(fmt.Sprintf("%s.sub_workflows.%s", path, name), CodeInvalidIdentifier,
				"invalid sub-workflow name %q: must be snake_case", name)
		}
		// Sub-workflows run in the pre-call environment; their bindings
		// leak neither to siblings nor to the caller.
		v.walk(n.SubWorkflows[name], fmt.Sprintf("%s.sub_workflows.%s", path, name), env.clone())
	}

	for i, rule := range n.RoutingRules {
		rulePath := fmt.Sprintf("%s.routing_rules[%d]", path, i)
		v.checkCondition(rule.Condition, rulePath+".condition", env)
		if rule.WorkflowName == "" {
			v.errorf(rulePath+".workflow_name", CodeMissingField, "routing rule must name a workflow")
		} else if _, ok := n.SubWorkflows[rule.WorkflowName]; !ok {
			v.errorf(rulePath+".workflow_name", CodeUnknownRoute,
				"routing rule references unknown workflow %q", rule.WorkflowName)
		}
	}

	if n.DefaultWorkflow != "" {
		if _, ok := n.SubWorkflows[n.DefaultWorkflow]; !ok {
			v.errorf(path+".default_workflow", CodeUnknownRoute,
				"default workflow %q not found in sub_workflows", n.DefaultWorkflow)
		}
	}

	return env
}

// checkVariableRefs validates every {{name}} reference in a string against
// the current scope and rejects nested access.
func (v *validator) checkVariableRefs(s, path string, env scope) {
	if ast.HasDottedRef(s) {
		v.errorf(path, CodeNestedAccess,
			"nested variable access is not allowed; reference whole variables like {{name}}")
	}
	for _, name := range ast.VariableRefs(s) {
		if !env[name] {
			v.errorf(path, CodeUndefinedVariable,
				"variable {{%s}} is not in scope at this point", name)
			if v.unjoined[name] {
				v.warnf(path, CodeUndefinedVariable,
					"{{%s}} was assigned inside a wait_for_all=false parallel branch; such bindings are not visible after the split", name)
			}
		}
	}
}

func sortedParamKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
