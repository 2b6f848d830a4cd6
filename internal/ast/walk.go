package ast

import "sort"

// Walk visits expr and every sub-expression in pre-order. Returning false
// from fn skips the children of the current node.
func Walk(expr Expression, fn func(Expression) bool) {
	if expr == nil || !fn(expr) {
		return
	}
	switch e := expr.(type) {
	case *Operation:
		for _, a := range e.Args {
			Walk(a, fn)
		}
	case *Quantifier:
		Walk(e.Where, fn)
		Walk(e.Body, fn)
	case *Conditional:
		Walk(e.Cond, fn)
		Walk(e.Then, fn)
		Walk(e.Else, fn)
	case *Let:
		Walk(e.Value, fn)
		Walk(e.Body, fn)
	case *Match:
		Walk(e.Scrutinee, fn)
		for _, c := range e.Cases {
			Walk(c.Guard, fn)
			Walk(c.Body, fn)
		}
	case *Lambda:
		Walk(e.Body, fn)
	case *List:
		for _, el := range e.Elements {
			Walk(el, fn)
		}
	case *Ascription:
		Walk(e.Expr, fn)
	}
}

// OperationNames returns the sorted set of operation names applied in expr
func OperationNames(expr Expression) []string {
	seen := make(map[string]bool)
	Walk(expr, func(e Expression) bool {
		if op, ok := e.(*Operation); ok {
			seen[op.Name] = true
		}
		return true
	})
	return sortedKeys(seen)
}

// FreeObjects returns the sorted names referenced by expr that are not
// bound by an enclosing quantifier, lambda, let or match pattern.
func FreeObjects(expr Expression) []string {
	free := make(map[string]bool)
	collectFree(expr, map[string]int{}, free)
	return sortedKeys(free)
}

func collectFree(expr Expression, bound map[string]int, free map[string]bool) {
	switch e := expr.(type) {
	case nil:
	case *Object:
		if bound[e.Name] == 0 {
			free[e.Name] = true
		}
	case *Operation:
		for _, a := range e.Args {
			collectFree(a, bound, free)
		}
	case *Quantifier:
		names := make([]string, len(e.Vars))
		for i, v := range e.Vars {
			names[i] = v.Name
		}
		withBound(bound, names, func() {
			collectFree(e.Where, bound, free)
			collectFree(e.Body, bound, free)
		})
	case *Conditional:
		collectFree(e.Cond, bound, free)
		collectFree(e.Then, bound, free)
		collectFree(e.Else, bound, free)
	case *Let:
		collectFree(e.Value, bound, free)
		withBound(bound, PatternBindings(e.Pattern), func() {
			collectFree(e.Body, bound, free)
		})
	case *Match:
		collectFree(e.Scrutinee, bound, free)
		for _, c := range e.Cases {
			withBound(bound, PatternBindings(c.Pattern), func() {
				collectFree(c.Guard, bound, free)
				collectFree(c.Body, bound, free)
			})
		}
	case *Lambda:
		names := make([]string, len(e.Params))
		for i, p := range e.Params {
			names[i] = p.Name
		}
		withBound(bound, names, func() {
			collectFree(e.Body, bound, free)
		})
	case *List:
		for _, el := range e.Elements {
			collectFree(el, bound, free)
		}
	case *Ascription:
		collectFree(e.Expr, bound, free)
	}
}

func withBound(bound map[string]int, names []string, fn func()) {
	for _, n := range names {
		bound[n]++
	}
	fn()
	for _, n := range names {
		bound[n]--
	}
}

// PatternBindings returns the variable names a pattern binds
func PatternBindings(p Pattern) []string {
	var out []string
	var visit func(Pattern)
	visit = func(p Pattern) {
		switch pt := p.(type) {
		case *PatternVar:
			out = append(out, pt.Name)
		case *PatternConstructor:
			for _, a := range pt.Args {
				visit(a)
			}
		}
	}
	visit(p)
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
