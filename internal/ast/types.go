package ast

import (
	"fmt"
	"strings"
	"unicode"
)

// TypeExpr is a type expression as written in structure signatures
type TypeExpr interface {
	typeNode()
	String() string
}

// NamedType is a bare type name such as ℝ, Int or a carrier M
type NamedType struct {
	Name string
}

// ParametricType is an applied type constructor such as List(Int)
type ParametricType struct {
	Name string
	Args []TypeExpr
}

// FunctionType is From → To
type FunctionType struct {
	From TypeExpr
	To   TypeExpr
}

// ProductType is A × B × ...
type ProductType struct {
	Elements []TypeExpr
}

// TypeVar is a type variable introduced by a structure's parameters
type TypeVar struct {
	Name string
}

func (*NamedType) typeNode()      {}
func (*ParametricType) typeNode() {}
func (*FunctionType) typeNode()   {}
func (*ProductType) typeNode()    {}
func (*TypeVar) typeNode()        {}

func (t *NamedType) String() string { return t.Name }
func (t *TypeVar) String() string   { return t.Name }

func (t *ParametricType) String() string {
	args := make([]string, len(t.Args))
	for i, a := range t.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", t.Name, strings.Join(args, ", "))
}

func (t *FunctionType) String() string {
	from := t.From.String()
	if _, ok := t.From.(*FunctionType); ok {
		from = "(" + from + ")"
	}
	return from + " → " + t.To.String()
}

func (t *ProductType) String() string {
	parts := make([]string, len(t.Elements))
	for i, e := range t.Elements {
		parts[i] = e.String()
	}
	return strings.Join(parts, " × ")
}

// IsFunctionType reports whether t is an arrow type
func IsFunctionType(t TypeExpr) bool {
	_, ok := t.(*FunctionType)
	return ok
}

// Arity returns the number of arguments a signature takes: the element
// count of a product domain, 1 for any other domain, 0 for non-functions.
func Arity(t TypeExpr) int {
	fn, ok := t.(*FunctionType)
	if !ok {
		return 0
	}
	if p, ok := fn.From.(*ProductType); ok {
		return len(p.Elements)
	}
	return 1
}

// ParseType parses a type expression string. Accepted forms:
//
//	ℝ   M   List(Int)   M × M → M   (M → M) → M   M -> M   M * M
func ParseType(src string) (TypeExpr, error) {
	p := &typeParser{toks: tokenizeType(src)}
	if len(p.toks) == 0 {
		return nil, fmt.Errorf("empty type expression")
	}
	t, err := p.parseArrow()
	if err != nil {
		return nil, fmt.Errorf("type %q: %w", src, err)
	}
	if p.pos < len(p.toks) {
		return nil, fmt.Errorf("type %q: unexpected %q", src, p.toks[p.pos])
	}
	return t, nil
}

// MustParseType is ParseType for literals known to be valid
func MustParseType(src string) TypeExpr {
	t, err := ParseType(src)
	if err != nil {
		panic(err)
	}
	return t
}

type typeParser struct {
	toks []string
	pos  int
}

func (p *typeParser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *typeParser) parseArrow() (TypeExpr, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok == "→" || tok == "->" {
		p.pos++
		right, err := p.parseArrow()
		if err != nil {
			return nil, err
		}
		return &FunctionType{From: left, To: right}, nil
	}
	return left, nil
}

func (p *typeParser) parseProduct() (TypeExpr, error) {
	first, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	elems := []TypeExpr{first}
	for p.peek() == "×" || p.peek() == "*" {
		p.pos++
		next, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		elems = append(elems, next)
	}
	if len(elems) == 1 {
		return first, nil
	}
	return &ProductType{Elements: elems}, nil
}

func (p *typeParser) parseAtom() (TypeExpr, error) {
	tok := p.peek()
	switch tok {
	case "":
		return nil, fmt.Errorf("unexpected end of type")
	case "(":
		p.pos++
		inner, err := p.parseArrow()
		if err != nil {
			return nil, err
		}
		if p.peek() != ")" {
			return nil, fmt.Errorf("expected ')'")
		}
		p.pos++
		return inner, nil
	case ")", ",", "→", "->", "×", "*":
		return nil, fmt.Errorf("unexpected %q", tok)
	}
	p.pos++
	if p.peek() != "(" {
		return &NamedType{Name: tok}, nil
	}
	p.pos++
	var args []TypeExpr
	for {
		arg, err := p.parseArrow()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.peek() == "," {
			p.pos++
			continue
		}
		if p.peek() != ")" {
			return nil, fmt.Errorf("expected ')' after arguments of %s", tok)
		}
		p.pos++
		return &ParametricType{Name: tok, Args: args}, nil
	}
}

func tokenizeType(src string) []string {
	var toks []string
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '-' && i+1 < len(rs) && rs[i+1] == '>':
			toks = append(toks, "->")
			i += 2
		case strings.ContainsRune("()→×*,", r):
			toks = append(toks, string(r))
			i++
		default:
			start := i
			for i < len(rs) && !unicode.IsSpace(rs[i]) && !strings.ContainsRune("()→×*,", rs[i]) &&
				!(rs[i] == '-' && i+1 < len(rs) && rs[i+1] == '>') {
				i++
			}
			toks = append(toks, string(rs[start:i]))
		}
	}
	return toks
}
