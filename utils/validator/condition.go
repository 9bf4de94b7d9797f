package validator

import (
	"strings"
	"unicode"

	"github.com/kris-hansen/metagent/utils/ast"
)

// forbiddenSubstrings are rejected anywhere in a condition, before
// tokenization, to keep condition strings inert in any evaluator.
var forbiddenSubstrings = []string{
	"import", "exec", "eval", "__", "lambda", "open", "file", "`", ";",
}

// conditionKeywords are the logical/membership operators plus the literal
// words allowed as bare tokens.
var conditionKeywords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "is": true,
	"true": true, "false": true, "none": true, "null": true,
}

// checkCondition runs the condition-safety check: the forbidden-substring
// filter first, then a tokenizer accepting only in-scope identifiers,
// numeric and string literals, comparison and logical operators, and
// balanced parentheses.
func (v *validator) checkCondition(condition, path string, env scope) {
	if strings.TrimSpace(condition) == "" {
		v.errorf(path, CodeMissingField, "condition cannot be empty")
		return
	}

	lower := strings.ToLower(condition)
	for _, pattern := range forbiddenSubstrings {
		if strings.Contains(lower, pattern) {
			v.errorf(path, CodeUnsafeCondition,
				"unsafe pattern %q detected in condition; only simple comparisons are allowed", pattern)
			return
		}
	}

	if ast.HasDottedRef(condition) {
		v.errorf(path, CodeNestedAccess,
			"nested variable access is not allowed in conditions")
		return
	}

	// Variable references become plain identifiers for tokenization; each
	// referenced name must be in scope.
	normalized := ast.VariableRefPattern.ReplaceAllString(condition, "$1")
	refs := make(map[string]bool)
	for _, name := range ast.VariableRefs(condition) {
		refs[name] = true
		if !env[name] {
			v.errorf(path, CodeUndefinedVariable,
				"variable {{%s}} is not in scope at this point", name)
			if v.unjoined[name] {
				v.warnf(path, CodeUndefinedVariable,
					"{{%s}} was assigned inside a wait_for_all=false parallel branch; such bindings are not visible after the split", name)
			}
		}
	}

	v.tokenizeCondition(normalized, path, env, refs)
}

// tokenizeCondition scans the normalized condition and rejects any token
// outside the allowed set. Names in refs were already scope-checked as
// variable references and are accepted as identifiers.
func (v *validator) tokenizeCondition(s, path string, env scope, refs map[string]bool) {
	runes := []rune(s)
	depth := 0

	for i := 0; i < len(runes); {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++

		case r == '(':
			depth++
			i++

		case r == ')':
			depth--
			if depth < 0 {
				v.errorf(path, CodeUnsafeCondition, "unbalanced parentheses in condition")
				return
			}
			i++

		case r == '\'' || r == '"':
			quote := r
			j := i + 1
			for j < len(runes) && runes[j] != quote {
				j++
			}
			if j >= len(runes) {
				v.errorf(path, CodeUnsafeCondition, "unterminated string literal in condition")
				return
			}
			i = j + 1

		case unicode.IsDigit(r):
			j := i
			seenDot := false
			for j < len(runes) && (unicode.IsDigit(runes[j]) || (runes[j] == '.' && !seenDot)) {
				if runes[j] == '.' {
					seenDot = true
				}
				j++
			}
			i = j

		case r == '_' || unicode.IsLetter(r):
			j := i
			for j < len(runes) && (runes[j] == '_' || unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j])) {
				j++
			}
			word := strings.ToLower(string(runes[i:j]))
			if !conditionKeywords[word] && !env[word] && !refs[word] {
				v.errorf(path, CodeUnsafeCondition,
					"identifier %q in condition is neither an operator keyword nor an in-scope variable", word)
			}
			i = j

		case r == '>' || r == '<':
			if i+1 < len(runes) && runes[i+1] == '=' {
				i += 2
			} else {
				i++
			}

		case r == '=' || r == '!':
			if i+1 < len(runes) && runes[i+1] == '=' {
				i += 2
			} else {
				v.errorf(path, CodeUnsafeCondition,
					"invalid operator %q in condition", string(r))
				return
			}

		default:
			v.errorf(path, CodeUnsafeCondition,
				"invalid character %q in condition", string(r))
			return
		}
	}

	if depth != 0 {
		v.errorf(path, CodeUnsafeCondition, "unbalanced parentheses in condition")
	}
}
