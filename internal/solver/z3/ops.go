package z3

import (
	"fmt"
	"strings"
)

type nativeOp struct {
	boolArgs bool
	build    func(args []term) (term, error)
}

// nativeOps maps operation names the manifest may mark native to built-in
// SMT-LIB functions. Several spellings share one builder.
var nativeOps = map[string]nativeOp{}

func init() {
	register := func(op nativeOp, names ...string) {
		for _, n := range names {
			nativeOps[n] = op
		}
	}

	register(nativeOp{build: equality(false)}, "equals", "eq", "=")
	register(nativeOp{build: equality(true)}, "neq", "not_equals", "≠")
	register(nativeOp{build: comparison("<")}, "less_than", "lt", "<")
	register(nativeOp{build: comparison(">")}, "greater_than", "gt", ">")
	register(nativeOp{build: comparison("<=")}, "leq", "≤", "<=")
	register(nativeOp{build: comparison(">=")}, "geq", "≥", ">=")

	register(nativeOp{boolArgs: true, build: connective("and", "true")}, "and", "logical_and", "∧")
	register(nativeOp{boolArgs: true, build: connective("or", "false")}, "or", "logical_or", "∨")
	register(nativeOp{boolArgs: true, build: negation}, "not", "logical_not", "¬")
	register(nativeOp{boolArgs: true, build: binaryBool("=>")}, "implies", "⟹", "→")
	register(nativeOp{boolArgs: true, build: binaryBool("=")}, "iff", "biconditional", "⟺")

	register(nativeOp{build: arithmetic("+")}, "plus", "add", "+")
	register(nativeOp{build: arithmetic("-")}, "minus", "subtract", "-")
	register(nativeOp{build: arithmetic("*")}, "times", "multiply", "*", "×", "·")
	register(nativeOp{build: division}, "divide", "/")
	register(nativeOp{build: negate}, "negate")
	register(nativeOp{build: integerOp("mod")}, "mod")
	register(nativeOp{build: integerOp("div")}, "div")
	register(nativeOp{build: absolute}, "abs")
	register(nativeOp{build: reciprocal}, "inv", "reciprocal")
}

func arity(args []term, n int) error {
	if len(args) != n {
		return fmt.Errorf("expected %d arguments, got %d", n, len(args))
	}
	return nil
}

func app(fn string, args []term) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.text
	}
	return "(" + fn + " " + strings.Join(parts, " ") + ")"
}

func numericArgs(args []term) ([]term, string, error) {
	out, sort, ok := unifyNumeric(args)
	if !ok {
		for _, a := range args {
			if !isNumeric(a.sort) {
				return nil, "", fmt.Errorf("expected numeric argument, got %s", a.sort)
			}
		}
	}
	return out, sort, nil
}

func equality(negated bool) func([]term) (term, error) {
	return func(args []term) (term, error) {
		if len(args) < 2 {
			return term{}, fmt.Errorf("expected at least 2 arguments, got %d", len(args))
		}
		if out, _, ok := unifyNumeric(args); ok {
			args = out
		} else {
			for _, a := range args[1:] {
				if a.sort != args[0].sort {
					return term{}, fmt.Errorf("cannot compare %s with %s", args[0].sort, a.sort)
				}
			}
		}
		if negated {
			return term{text: app("distinct", args), sort: sortBool}, nil
		}
		return term{text: app("=", args), sort: sortBool}, nil
	}
}

func comparison(fn string) func([]term) (term, error) {
	return func(args []term) (term, error) {
		if err := arity(args, 2); err != nil {
			return term{}, err
		}
		out, _, err := numericArgs(args)
		if err != nil {
			return term{}, err
		}
		return term{text: app(fn, out), sort: sortBool}, nil
	}
}

func requireBool(args []term) error {
	for _, a := range args {
		if a.sort != sortBool {
			return fmt.Errorf("expected Bool argument, got %s", a.sort)
		}
	}
	return nil
}

func connective(fn, unit string) func([]term) (term, error) {
	return func(args []term) (term, error) {
		if err := requireBool(args); err != nil {
			return term{}, err
		}
		switch len(args) {
		case 0:
			return term{text: unit, sort: sortBool}, nil
		case 1:
			return args[0], nil
		}
		return term{text: app(fn, args), sort: sortBool}, nil
	}
}

func negation(args []term) (term, error) {
	if err := arity(args, 1); err != nil {
		return term{}, err
	}
	if err := requireBool(args); err != nil {
		return term{}, err
	}
	return term{text: app("not", args), sort: sortBool}, nil
}

func binaryBool(fn string) func([]term) (term, error) {
	return func(args []term) (term, error) {
		if err := arity(args, 2); err != nil {
			return term{}, err
		}
		if err := requireBool(args); err != nil {
			return term{}, err
		}
		return term{text: app(fn, args), sort: sortBool}, nil
	}
}

func arithmetic(fn string) func([]term) (term, error) {
	return func(args []term) (term, error) {
		if len(args) == 0 {
			return term{}, fmt.Errorf("expected at least 1 argument")
		}
		out, sort, err := numericArgs(args)
		if err != nil {
			return term{}, err
		}
		if len(out) == 1 && fn != "-" {
			return out[0], nil
		}
		return term{text: app(fn, out), sort: sort}, nil
	}
}

func division(args []term) (term, error) {
	if err := arity(args, 2); err != nil {
		return term{}, err
	}
	if _, _, err := numericArgs(args); err != nil {
		return term{}, err
	}
	a, _ := coerce(args[0], sortReal)
	b, _ := coerce(args[1], sortReal)
	return term{text: app("/", []term{a, b}), sort: sortReal}, nil
}

func negate(args []term) (term, error) {
	if err := arity(args, 1); err != nil {
		return term{}, err
	}
	if !isNumeric(args[0].sort) {
		return term{}, fmt.Errorf("expected numeric argument, got %s", args[0].sort)
	}
	return term{text: app("-", args), sort: args[0].sort}, nil
}

func integerOp(fn string) func([]term) (term, error) {
	return func(args []term) (term, error) {
		if err := arity(args, 2); err != nil {
			return term{}, err
		}
		for _, a := range args {
			if a.sort != sortInt {
				return term{}, fmt.Errorf("expected Int argument, got %s", a.sort)
			}
		}
		return term{text: app(fn, args), sort: sortInt}, nil
	}
}

func absolute(args []term) (term, error) {
	if err := arity(args, 1); err != nil {
		return term{}, err
	}
	a := args[0]
	switch a.sort {
	case sortInt:
		return term{text: app("abs", args), sort: sortInt}, nil
	case sortReal:
		return term{text: fmt.Sprintf("(ite (>= %s 0.0) %s (- %s))", a.text, a.text, a.text), sort: sortReal}, nil
	}
	return term{}, fmt.Errorf("expected numeric argument, got %s", a.sort)
}

func reciprocal(args []term) (term, error) {
	if err := arity(args, 1); err != nil {
		return term{}, err
	}
	if !isNumeric(args[0].sort) {
		return term{}, fmt.Errorf("expected numeric argument, got %s", args[0].sort)
	}
	a, _ := coerce(args[0], sortReal)
	return term{text: "(/ 1.0 " + a.text + ")", sort: sortReal}, nil
}
