package z3

import (
	"github.com/eatikrh/kleis-sub001/internal/ast"
	"github.com/eatikrh/kleis-sub001/internal/solver/smtlib"
)

const (
	sortInt    = "Int"
	sortReal   = "Real"
	sortBool   = "Bool"
	sortString = "String"
)

// annotationSorts maps type annotations to SMT sorts
var annotationSorts = map[string]string{
	"Bool":     sortBool,
	"Boolean":  sortBool,
	"𝔹":        sortBool,
	"ℝ":        sortReal,
	"Real":     sortReal,
	"ℚ":        sortReal,
	"Rational": sortReal,
	"Q":        sortReal,
	"ℤ":        sortInt,
	"Int":      sortInt,
	"Integer":  sortInt,
	"Z":        sortInt,
	"ℕ":        sortInt,
	"Nat":      sortInt,
	"Natural":  sortInt,
	"String":   sortString,
}

func isNumeric(sort string) bool {
	return sort == sortInt || sort == sortReal
}

// sortOf maps an annotation to a sort. Declared data types map to their own
// sort. An empty annotation is Int; an unknown one is Int and reported via
// known=false so the caller can warn.
func (t *translator) sortOf(annotation string) (sort string, known bool) {
	if annotation == "" {
		return sortInt, true
	}
	if s, ok := annotationSorts[annotation]; ok {
		return s, true
	}
	if dt, ok := t.datatypes[annotation]; ok {
		return dt.sort, true
	}
	if annotation == "List" || len(annotation) > 5 && annotation[:5] == "List(" {
		elem := sortInt
		if te, err := ast.ParseType(annotation); err == nil {
			if pt, ok := te.(*ast.ParametricType); ok && len(pt.Args) == 1 {
				elem, _ = t.sortOfType(pt.Args[0])
			}
		}
		return listSort(elem), true
	}
	return sortInt, false
}

// sortOfType maps a parsed type expression to a sort
func (t *translator) sortOfType(te ast.TypeExpr) (string, bool) {
	if te == nil {
		return sortInt, true
	}
	switch tt := te.(type) {
	case *ast.NamedType:
		return t.sortOf(tt.Name)
	case *ast.TypeVar:
		return sortInt, true
	case *ast.ParametricType:
		return t.sortOf(tt.String())
	}
	return sortInt, false
}

func listSort(elem string) string {
	return "(KList " + elem + ")"
}

// coerce converts a numeric term to want, which only ever widens Int to Real
func coerce(tm term, want string) (term, bool) {
	if tm.sort == want {
		return tm, true
	}
	if tm.sort == sortInt && want == sortReal {
		return term{text: "(to_real " + tm.text + ")", sort: sortReal}, true
	}
	return tm, false
}

// unifyNumeric widens all numeric terms to Real when any of them is Real
func unifyNumeric(args []term) ([]term, string, bool) {
	target := sortInt
	for _, a := range args {
		if !isNumeric(a.sort) {
			return args, "", false
		}
		if a.sort == sortReal {
			target = sortReal
		}
	}
	out := make([]term, len(args))
	for i, a := range args {
		out[i], _ = coerce(a, target)
	}
	return out, target, true
}

func sym(name string) string { return smtlib.Symbol(name) }

// arithmeticOps yield a Real whenever one of their operands is Real
var arithmeticOps = map[string]bool{
	"plus": true, "add": true, "+": true,
	"minus": true, "subtract": true, "-": true,
	"times": true, "multiply": true, "*": true, "×": true, "·": true,
	"divide": true, "/": true, "negate": true, "abs": true,
}

// inferFreeSorts guesses a sort for each name in free from how exprs use
// it. Operands of a native connective are Bool; operands of native
// arithmetic or a comparison that also involves a Real are Real; an
// ascription gives its own sort. Names with no evidence are absent from
// the result.
func (t *translator) inferFreeSorts(free map[string]bool, exprs ...ast.Expression) map[string]string {
	sorts := make(map[string]string)
	native := func(name string) (nativeOp, bool) {
		op, ok := nativeOps[name]
		return op, ok && t.caps.IsNative(name)
	}

	var isReal func(e ast.Expression) bool
	isReal = func(e ast.Expression) bool {
		switch e := e.(type) {
		case *ast.Const:
			tm, err := constant(e.Value)
			return err == nil && tm.sort == sortReal
		case *ast.Object:
			if sorts[e.Name] == sortReal {
				return true
			}
			tm, ok := t.identities[e.Name]
			return ok && tm.sort == sortReal
		case *ast.Ascription:
			s, _ := t.sortOf(e.Type)
			return s == sortReal
		case *ast.Operation:
			if _, ok := native(e.Name); !ok || !arithmeticOps[e.Name] {
				return false
			}
			for _, a := range e.Args {
				if isReal(a) {
					return true
				}
			}
		}
		return false
	}

	for changed := true; changed; {
		changed = false
		mark := func(e ast.Expression, sort string) {
			if o, ok := e.(*ast.Object); ok && free[o.Name] && sorts[o.Name] == "" {
				sorts[o.Name] = sort
				changed = true
			}
		}
		for _, e := range exprs {
			ast.Walk(e, func(n ast.Expression) bool {
				switch n := n.(type) {
				case *ast.Ascription:
					if s, known := t.sortOf(n.Type); known {
						mark(n.Expr, s)
					}
				case *ast.Operation:
					op, ok := native(n.Name)
					if !ok {
						return true
					}
					if op.boolArgs {
						for _, a := range n.Args {
							mark(a, sortBool)
						}
						return true
					}
					for _, a := range n.Args {
						if isReal(a) {
							for _, b := range n.Args {
								mark(b, sortReal)
							}
							break
						}
					}
				}
				return true
			})
		}
	}
	return sorts
}
