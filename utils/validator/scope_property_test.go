package validator

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/kris-hansen/metagent/utils/ast"
)

// treeBuilder generates random workflow trees whose variable references
// are always drawn from the scope the validator should compute. Every
// generated tree must validate; injecting a single out-of-scope reference
// afterwards must make it fail.
type treeBuilder struct {
	rng     *rand.Rand
	counter int
}

func (b *treeBuilder) freshName(prefix string) string {
	b.counter++
	return fmt.Sprintf("%s_%d", prefix, b.counter)
}

func (b *treeBuilder) pick(scope []string) string {
	return scope[b.rng.Intn(len(scope))]
}

// toolCall builds a call referencing only in-scope names, optionally
// binding a fresh one.
func (b *treeBuilder) toolCall(scope []string) (ast.Node, []string) {
	params := map[string]interface{}{}
	if len(scope) > 0 && b.rng.Intn(2) == 0 {
		params["input"] = fmt.Sprintf("{{%s}}", b.pick(scope))
	}

	tc := &ast.ToolCall{
		ToolName:   b.freshName("tool"),
		Parameters: params,
	}
	var bound []string
	if b.rng.Intn(2) == 0 {
		tc.AssignsTo = b.freshName("var")
		bound = []string{tc.AssignsTo}
	}
	return tc, bound
}

// node builds a random node and returns the names it makes visible to
// whatever follows it, mirroring the validator's scope rules.
func (b *treeBuilder) node(scope []string, depth int) (ast.Node, []string) {
	if depth <= 0 {
		return b.toolCall(scope)
	}

	switch b.rng.Intn(4) {
	case 0:
		return b.toolCall(scope)

	case 1: // sequential: each step sees its predecessors' bindings
		count := 2 + b.rng.Intn(2)
		var steps []ast.Node
		current := append([]string(nil), scope...)
		var bound []string
		for i := 0; i < count; i++ {
			step, names := b.node(current, depth-1)
			steps = append(steps, step)
			current = append(current, names...)
			bound = append(bound, names...)
		}
		return &ast.Sequential{Steps: steps}, bound

	case 2: // conditional: only names bound in BOTH branches survive
		shared := b.freshName("var")
		ifBranch := &ast.ToolCall{
			ToolName:   b.freshName("tool"),
			Parameters: map[string]interface{}{},
			AssignsTo:  shared,
		}
		elseBranch := &ast.ToolCall{
			ToolName:   b.freshName("tool"),
			Parameters: map[string]interface{}{},
			AssignsTo:  shared,
		}
		cond := "1 < 2"
		if len(scope) > 0 {
			cond = fmt.Sprintf("{{%s}} != 'done'", b.pick(scope))
		}
		return &ast.Conditional{
			Condition:  cond,
			IfBranch:   ifBranch,
			ElseBranch: elseBranch,
		}, []string{shared}

	default: // parallel with join: disjoint branch bindings all survive
		count := 2 + b.rng.Intn(2)
		var branches []ast.Node
		var bound []string
		for i := 0; i < count; i++ {
			branch, names := b.node(scope, depth-1)
			branches = append(branches, branch)
			bound = append(bound, names...)
		}
		return &ast.Parallel{Branches: branches, WaitForAll: true}, bound
	}
}

func (b *treeBuilder) spec() *ast.WorkflowSpec {
	inputs := []ast.Parameter{
		{Name: "seed_input", Type: "string", Required: true},
	}
	root, _ := b.node([]string{"seed_input"}, 3)
	return &ast.WorkflowSpec{
		Name:        "random_workflow",
		Description: "randomly generated scope fixture",
		Version:     "1.0.0",
		Inputs:      inputs,
		Workflow:    root,
	}
}

// injectBadRef adds an out-of-scope reference to the first tool call it
// finds and reports whether it found one.
func injectBadRef(node ast.Node) bool {
	injected := false
	ast.WalkToolCalls(node, func(tc *ast.ToolCall) {
		if !injected {
			tc.Parameters["poison"] = "{{never_in_scope_zzz}}"
			injected = true
		}
	})
	return injected
}

func TestScopeSoundness_RandomTrees(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 100; i++ {
		b := &treeBuilder{rng: rng}
		spec := b.spec()

		result := Validate(spec)
		if !result.Valid {
			t.Fatalf("iteration %d: in-scope tree rejected: %s", i, result.ErrorSummary())
		}

		if !injectBadRef(spec.Workflow) {
			continue
		}
		result = Validate(spec)
		if result.Valid {
			t.Fatalf("iteration %d: out-of-scope reference accepted", i)
		}
		if !hasCode(result.Errors, CodeUndefinedVariable) {
			t.Fatalf("iteration %d: expected UNDEFINED_VARIABLE, got: %s", i, result.ErrorSummary())
		}
	}
}
