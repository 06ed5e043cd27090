package vectorstore

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// compiledFilter caches the compiled expr program for a Filter AST so a
// search over many files only pays the compile cost once.
type compiledFilter struct {
	program *vm.Program
}

// CompileFilter lowers the structured Filter AST into an expr-lang boolean
// expression over an "attrs" variable, then compiles it once. An empty
// Filter (Op == "") compiles to a program that matches everything.
func CompileFilter(f models.Filter) (*compiledFilter, error) {
	source := filterToExpr(f)
	program, err := expr.Compile(source, expr.Env(map[string]any{"attrs": map[string]any{}}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("vectorstore: invalid filter: %w", err)
	}
	return &compiledFilter{program: program}, nil
}

// Matches evaluates the compiled filter against a file's attributes.
func (c *compiledFilter) Matches(attrs map[string]any) (bool, error) {
	if c == nil {
		return true, nil
	}
	out, err := expr.Run(c.program, map[string]any{"attrs": attrs})
	if err != nil {
		return false, fmt.Errorf("vectorstore: filter evaluation failed: %w", err)
	}
	matched, _ := out.(bool)
	return matched, nil
}

// filterToExpr renders the Filter AST as expr-lang source. Values are
// quoted/rendered through %#v so filter values containing quotes or
// backslashes round-trip as literal strings rather than breaking out of the
// generated expression.
func filterToExpr(f models.Filter) string {
	switch f.Op {
	case "":
		return "true"
	case "eq":
		return fmt.Sprintf("attrs[%#v] == %#v", f.Key, f.Value)
	case "and", "or":
		if len(f.Children) == 0 {
			return "true"
		}
		parts := make([]string, len(f.Children))
		for i, child := range f.Children {
			parts[i] = "(" + filterToExpr(child) + ")"
		}
		joiner := " && "
		if f.Op == "or" {
			joiner = " || "
		}
		return strings.Join(parts, joiner)
	default:
		return "true"
	}
}
