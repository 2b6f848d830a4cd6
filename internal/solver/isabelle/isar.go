package isabelle

import (
	"fmt"
	"strings"

	"github.com/eatikrh/kleis-sub001/internal/ast"
	"github.com/eatikrh/kleis-sub001/internal/solver"
)

type isarOp struct {
	arity int // -1: any
	build func(args []string) string
}

func infix(op string) isarOp {
	return isarOp{arity: 2, build: func(a []string) string { return "(" + a[0] + " " + op + " " + a[1] + ")" }}
}

func fn(name string, arity int) isarOp {
	return isarOp{arity: arity, build: func(a []string) string { return "(" + name + " " + strings.Join(a, " ") + ")" }}
}

func constant(text string) isarOp {
	return isarOp{arity: 0, build: func([]string) string { return text }}
}

// isarOps maps operation names to HOL syntax. Anything else is applied as
// a plain function.
var isarOps = map[string]isarOp{}

func init() {
	register := func(op isarOp, names ...string) {
		for _, n := range names {
			isarOps[n] = op
		}
	}
	register(infix("+"), "plus", "add", "+")
	register(infix("-"), "minus", "subtract")
	register(infix("*"), "times", "multiply", "*", "×", "·")
	register(infix("/"), "divide", "/")
	register(infix("div"), "div")
	register(infix("mod"), "mod", "modulo", "%")
	register(infix("^"), "power", "pow", "^")
	register(isarOp{arity: 1, build: func(a []string) string { return "(- " + a[0] + ")" }}, "negate")
	register(isarOp{arity: 1, build: func(a []string) string { return "(inverse " + a[0] + ")" }}, "inv", "reciprocal")
	register(fn("abs", 1), "abs")
	register(fn("sqrt", 1), "sqrt")
	register(fn("floor", 1), "floor")
	register(fn("ceiling", 1), "ceiling")
	register(fn("max", 2), "max")
	register(fn("min", 2), "min")

	register(infix("="), "equals", "eq", "=")
	register(infix("≠"), "neq", "not_equals", "≠")
	register(infix("<"), "less_than", "lt", "<")
	register(infix(">"), "greater_than", "gt", ">")
	register(infix("≤"), "leq", "le", "<=", "≤")
	register(infix("≥"), "geq", "ge", ">=", "≥")

	register(infix("∧"), "and", "logical_and", "∧")
	register(infix("∨"), "or", "logical_or", "∨")
	register(isarOp{arity: 1, build: func(a []string) string { return "(¬ " + a[0] + ")" }}, "not", "logical_not", "¬")
	register(infix("⟶"), "implies", "→", "⟶", "⟹")
	register(infix("⟷"), "iff", "biconditional", "↔", "⟷", "⟺")

	register(infix("#"), "cons", "Cons")
	register(constant("[]"), "nil", "Nil")
	register(infix("@"), "append", "++")
	register(fn("length", 1), "length", "len")
	register(fn("hd", 1), "hd", "head")
	register(fn("tl", 1), "tl", "tail")
	register(infix("!"), "nth")
	register(fn("rev", 1), "rev", "reverse")
	register(fn("map", 2), "map")
	register(fn("filter", 2), "filter")
	register(fn("foldl", 3), "fold", "foldl")
	register(fn("foldr", 3), "foldr")

	register(fn("Some", 1), "Some")
	register(constant("None"), "None")
	register(fn("the", 1), "the", "fromJust")

	register(infix("∈"), "member", "∈", "elem")
	register(infix("∉"), "not_member", "∉")
	register(infix("∪"), "union", "∪")
	register(infix("∩"), "inter", "intersection", "∩")
	register(infix("⊆"), "subset", "⊆")
	register(constant("{}"), "empty_set", "∅")

	register(isarOp{arity: 2, build: func(a []string) string { return "(" + a[0] + ", " + a[1] + ")" }}, "pair", "Pair")
	register(fn("fst", 1), "fst")
	register(fn("snd", 1), "snd")
}

// isarTypes maps type names to HOL types
var isarTypes = map[string]string{
	"ℕ": "nat", "Nat": "nat", "Natural": "nat",
	"ℤ": "int", "Int": "int", "Integer": "int",
	"ℝ": "real", "Real": "real",
	"ℂ": "complex", "Complex": "complex",
	"ℚ": "rat", "Rational": "rat",
	"Bool": "bool", "Boolean": "bool", "bool": "bool", "𝔹": "bool",
	"String": "string",
	"Unit": "unit", "()": "unit",
}

// holType renders a type annotation in HOL syntax
func holType(annotation string) string {
	te, err := ast.ParseType(annotation)
	if err != nil {
		return annotation
	}
	return holTypeExpr(te)
}

func holTypeExpr(te ast.TypeExpr) string {
	switch t := te.(type) {
	case *ast.NamedType:
		if h, ok := isarTypes[t.Name]; ok {
			return h
		}
		return t.Name
	case *ast.TypeVar:
		return "'" + strings.ToLower(t.Name)
	case *ast.FunctionType:
		return "(" + holTypeExpr(t.From) + " ⇒ " + holTypeExpr(t.To) + ")"
	case *ast.ProductType:
		parts := make([]string, len(t.Elements))
		for i, e := range t.Elements {
			parts[i] = holTypeExpr(e)
		}
		return "(" + strings.Join(parts, " × ") + ")"
	case *ast.ParametricType:
		args := make([]string, len(t.Args))
		for i, a := range t.Args {
			args[i] = holTypeExpr(a)
		}
		switch t.Name {
		case "List":
			return "(" + strings.Join(args, " ") + " list)"
		case "Option":
			return "(" + strings.Join(args, " ") + " option)"
		case "Set":
			return "(" + strings.Join(args, " ") + " set)"
		}
		return "((" + strings.Join(args, ", ") + ") " + t.Name + ")"
	}
	return te.String()
}

// ToIsar renders an expression as an Isabelle/HOL term
func ToIsar(e ast.Expression) (string, error) {
	switch ex := e.(type) {
	case nil:
		return "", fmt.Errorf("missing expression")
	case *ast.Const:
		switch ex.Value {
		case "true":
			return "True", nil
		case "false":
			return "False", nil
		}
		if strings.HasPrefix(ex.Value, "-") && len(ex.Value) > 1 {
			return "(- " + ex.Value[1:] + ")", nil
		}
		return ex.Value, nil
	case *ast.String:
		return "''" + strings.ReplaceAll(ex.Value, "'", "\\<acute>") + "''", nil
	case *ast.Object:
		switch ex.Name {
		case "true", "True", "⊤":
			return "True", nil
		case "false", "False", "⊥":
			return "False", nil
		}
		return ex.Name, nil
	case *ast.Operation:
		return operationToIsar(ex)
	case *ast.Quantifier:
		return quantifierToIsar(ex)
	case *ast.Lambda:
		params := make([]string, len(ex.Params))
		for i, p := range ex.Params {
			params[i] = typedName(p.Name, p.Type)
		}
		body, err := ToIsar(ex.Body)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(λ%s. %s)", strings.Join(params, " "), body), nil
	case *ast.Conditional:
		c, err := ToIsar(ex.Cond)
		if err != nil {
			return "", err
		}
		t, err := ToIsar(ex.Then)
		if err != nil {
			return "", err
		}
		f, err := ToIsar(ex.Else)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(if %s then %s else %s)", c, t, f), nil
	case *ast.Let:
		p, err := patternToIsar(ex.Pattern)
		if err != nil {
			return "", err
		}
		v, err := ToIsar(ex.Value)
		if err != nil {
			return "", err
		}
		if ex.Type != "" {
			v = fmt.Sprintf("(%s :: %s)", v, holType(ex.Type))
		}
		b, err := ToIsar(ex.Body)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(let %s = %s in %s)", p, v, b), nil
	case *ast.Match:
		s, err := ToIsar(ex.Scrutinee)
		if err != nil {
			return "", err
		}
		cases := make([]string, len(ex.Cases))
		for i, c := range ex.Cases {
			if c.Guard != nil {
				return "", &solver.UnsupportedError{Backend: "isabelle", Feature: "match guards"}
			}
			p, err := patternToIsar(c.Pattern)
			if err != nil {
				return "", err
			}
			b, err := ToIsar(c.Body)
			if err != nil {
				return "", err
			}
			cases[i] = p + " ⇒ " + b
		}
		return fmt.Sprintf("(case %s of %s)", s, strings.Join(cases, " | ")), nil
	case *ast.List:
		parts := make([]string, len(ex.Elements))
		for i, el := range ex.Elements {
			p, err := ToIsar(el)
			if err != nil {
				return "", err
			}
			parts[i] = p
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case *ast.Ascription:
		inner, err := ToIsar(ex.Expr)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s :: %s)", inner, holType(ex.Type)), nil
	case *ast.Placeholder:
		return "", &solver.UnsupportedError{Backend: "isabelle", Feature: "unfilled placeholder " + ast.Format(ex)}
	}
	return "", &solver.UnsupportedError{Backend: "isabelle", Feature: fmt.Sprintf("expression %T", e)}
}

func typedName(name, typ string) string {
	if typ == "" {
		return name
	}
	return fmt.Sprintf("(%s :: %s)", name, holType(typ))
}

func operationToIsar(op *ast.Operation) (string, error) {
	args := make([]string, len(op.Args))
	for i, a := range op.Args {
		s, err := ToIsar(a)
		if err != nil {
			return "", err
		}
		args[i] = s
	}
	if op.Name == "-" && len(args) == 1 {
		return "(- " + args[0] + ")", nil
	}
	if op.Name == "-" && len(args) == 2 {
		return "(" + args[0] + " - " + args[1] + ")", nil
	}
	if spec, ok := isarOps[op.Name]; ok {
		if spec.arity >= 0 && spec.arity != len(args) {
			return "", fmt.Errorf("%s expects %d arguments, got %d", op.Name, spec.arity, len(args))
		}
		return spec.build(args), nil
	}
	if len(args) == 0 {
		return op.Name, nil
	}
	return "(" + op.Name + " " + strings.Join(args, " ") + ")", nil
}

func quantifierToIsar(q *ast.Quantifier) (string, error) {
	vars := make([]string, len(q.Vars))
	for i, v := range q.Vars {
		vars[i] = typedName(v.Name, v.Type)
	}
	body, err := ToIsar(q.Body)
	if err != nil {
		return "", err
	}
	sym := "∀"
	if q.Kind == ast.Exists {
		sym = "∃"
	}
	if q.Where != nil {
		cond, err := ToIsar(q.Where)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s%s. %s ⟶ %s)", sym, strings.Join(vars, " "), cond, body), nil
	}
	return fmt.Sprintf("(%s%s. %s)", sym, strings.Join(vars, " "), body), nil
}

func patternToIsar(p ast.Pattern) (string, error) {
	switch pt := p.(type) {
	case *ast.PatternWildcard:
		return "_", nil
	case *ast.PatternVar:
		return pt.Name, nil
	case *ast.PatternConst:
		return pt.Value, nil
	case *ast.PatternConstructor:
		if len(pt.Args) == 0 {
			return pt.Name, nil
		}
		args := make([]string, len(pt.Args))
		for i, a := range pt.Args {
			s, err := patternToIsar(a)
			if err != nil {
				return "", err
			}
			args[i] = s
		}
		return "(" + pt.Name + " " + strings.Join(args, " ") + ")", nil
	}
	return "", &solver.UnsupportedError{Backend: "isabelle", Feature: fmt.Sprintf("pattern %T", p)}
}
