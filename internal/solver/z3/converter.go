package z3

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/eatikrh/kleis-sub001/internal/ast"
	"github.com/eatikrh/kleis-sub001/internal/solver"
	"github.com/eatikrh/kleis-sub001/internal/solver/smtlib"
)

// valueConverter reads model values printed by z3
type valueConverter struct{}

var _ solver.Converter[*smtlib.SExpr] = valueConverter{}

// unknownValue stands in for a binding whose value could not be read
const unknownValue = "<unknown: see raw model>"

// rational parses integer, decimal, (- x) and (/ a b) values
func rational(v *smtlib.SExpr) (*big.Rat, bool) {
	if v == nil {
		return nil, false
	}
	if !v.IsList {
		if v.IsString {
			return nil, false
		}
		r, ok := new(big.Rat).SetString(v.Atom)
		return r, ok && v.Atom != "" && (v.Atom[0] >= '0' && v.Atom[0] <= '9')
	}
	switch {
	case v.Head() == "-" && len(v.List) == 2:
		r, ok := rational(v.List[1])
		if !ok {
			return nil, false
		}
		return r.Neg(r), true
	case v.Head() == "/" && len(v.List) == 3:
		a, ok := rational(v.List[1])
		if !ok {
			return nil, false
		}
		b, ok := rational(v.List[2])
		if !ok || b.Sign() == 0 {
			return nil, false
		}
		return a.Quo(a, b), true
	}
	return nil, false
}

func ratText(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	text := r.FloatString(12)
	text = strings.TrimRight(text, "0")
	return strings.TrimSuffix(text, ".")
}

// ToExpression returns Const for numbers, booleans and anything without a
// structured reading, and String for string literals.
func (valueConverter) ToExpression(v *smtlib.SExpr) (ast.Expression, error) {
	if v == nil {
		return nil, fmt.Errorf("missing value")
	}
	if v.IsString {
		return ast.NewString(v.Atom), nil
	}
	if r, ok := rational(v); ok {
		return ast.NewConst(ratText(r)), nil
	}
	if v.IsAtom("true") || v.IsAtom("false") {
		return ast.NewConst(v.Atom), nil
	}
	return ast.NewConst(v.String()), nil
}

func (valueConverter) ToInt64(v *smtlib.SExpr) (int64, error) {
	r, ok := rational(v)
	if !ok || !r.IsInt() || !r.Num().IsInt64() {
		return 0, fmt.Errorf("expected integer value, got %s", v)
	}
	return r.Num().Int64(), nil
}

func (valueConverter) ToBool(v *smtlib.SExpr) (bool, error) {
	if v == nil || v.IsList || v.IsString {
		return false, fmt.Errorf("expected boolean value, got %s", v)
	}
	return solver.ParseBool(v.Atom)
}

func (valueConverter) ToFloat64(v *smtlib.SExpr) (float64, error) {
	r, ok := rational(v)
	if !ok {
		return 0, fmt.Errorf("expected numeric value, got %s", v)
	}
	f, _ := r.Float64()
	return f, nil
}

func (valueConverter) ToString(v *smtlib.SExpr) (string, error) {
	if v == nil {
		return "", fmt.Errorf("missing value")
	}
	if v.IsString {
		return v.Atom, nil
	}
	return v.String(), nil
}

// smtHeads maps built-in SMT-LIB functions back to operation names
var smtHeads = map[string]string{
	"+":        "plus",
	"-":        "minus",
	"*":        "times",
	"/":        "divide",
	"=":        "equals",
	"distinct": "neq",
	"<":        "less_than",
	">":        "greater_than",
	"<=":       "leq",
	">=":       "geq",
	"and":      "and",
	"or":       "or",
	"not":      "not",
	"=>":       "implies",
	"div":      "div",
	"mod":      "mod",
	"abs":      "abs",
}

// toExpression maps a simplified or evaluated term back to an expression,
// renaming declared symbols to their source names.
func (t *translator) toExpression(s *smtlib.SExpr, lets map[string]*smtlib.SExpr) ast.Expression {
	conv := valueConverter{}
	if s == nil {
		return ast.NewConst(unknownValue)
	}
	if r, ok := rational(s); ok {
		return ast.NewConst(ratText(r))
	}
	if !s.IsList {
		if s.IsString {
			return ast.NewString(s.Atom)
		}
		if bound, ok := lets[s.Atom]; ok {
			return t.toExpression(bound, lets)
		}
		if s.Atom == "true" || s.Atom == "false" {
			return ast.NewConst(s.Atom)
		}
		return ast.NewObject(t.sourceName(s.Atom))
	}

	head := s.Head()
	args := s.List[1:]
	switch head {
	case "let":
		if len(s.List) != 3 || !s.List[1].IsList {
			break
		}
		inner := make(map[string]*smtlib.SExpr, len(lets)+len(s.List[1].List))
		for k, v := range lets {
			inner[k] = v
		}
		for _, b := range s.List[1].List {
			if b.IsList && len(b.List) == 2 {
				inner[b.List[0].Atom] = b.List[1]
			}
		}
		return t.toExpression(s.List[2], inner)
	case "to_real", "to_int":
		if len(args) == 1 {
			return t.toExpression(args[0], lets)
		}
	case "ite":
		if len(args) == 3 {
			return &ast.Conditional{
				Cond: t.toExpression(args[0], lets),
				Then: t.toExpression(args[1], lets),
				Else: t.toExpression(args[2], lets),
			}
		}
	case "-":
		if len(args) == 1 {
			return ast.NewOp("negate", t.toExpression(args[0], lets))
		}
	case "", "forall", "exists", "as", "_":
		e, _ := conv.ToExpression(s)
		return e
	}

	name, ok := smtHeads[head]
	if !ok {
		name = t.sourceName(head)
	}
	out := make([]ast.Expression, len(args))
	for i, a := range args {
		out[i] = t.toExpression(a, lets)
	}
	return ast.NewOp(name, out...)
}

// sourceName returns the name a symbol was declared for
func (t *translator) sourceName(symbol string) string {
	if name, ok := t.reverse[symbol]; ok {
		return name
	}
	name := smtlib.Unquote(symbol)
	// skolem and lambda constants carry a !suffix
	if i := strings.Index(name, "!"); i > 0 {
		if _, err := strconv.Atoi(name[i+1:]); err != nil {
			return name[:i]
		}
	}
	return name
}
