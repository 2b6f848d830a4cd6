package ast

// Node is the base interface for all AST nodes
type Node interface {
	Pos() (line, col int)
}

// Expression nodes
type Expression interface {
	Node
	exprNode()
}

// Pattern nodes used by let and match
type Pattern interface {
	Node
	patternNode()
}

// QuantifierKind distinguishes universal from existential quantification
type QuantifierKind int

const (
	ForAll QuantifierKind = iota
	Exists
)

func (k QuantifierKind) String() string {
	if k == Exists {
		return "∃"
	}
	return "∀"
}

// Const represents a numeric literal, kept as its source text
type Const struct {
	Value  string
	Line   int
	Column int
}

func (c *Const) Pos() (int, int) { return c.Line, c.Column }
func (c *Const) exprNode()       {}

// String represents a string literal
type String struct {
	Value  string
	Line   int
	Column int
}

func (s *String) Pos() (int, int) { return s.Line, s.Column }
func (s *String) exprNode()       {}

// Object represents a named reference (variable, constant, constructor)
type Object struct {
	Name   string
	Line   int
	Column int
}

func (o *Object) Pos() (int, int) { return o.Line, o.Column }
func (o *Object) exprNode()       {}

// Operation represents an n-ary application of a named operation
type Operation struct {
	Name   string
	Args   []Expression
	Line   int
	Column int
}

func (o *Operation) Pos() (int, int) { return o.Line, o.Column }
func (o *Operation) exprNode()       {}

// QuantifiedVar is a variable bound by a quantifier. Type is empty when
// no annotation was given.
type QuantifiedVar struct {
	Name string
	Type string
}

// Quantifier represents ∀/∃ with an optional where restriction
type Quantifier struct {
	Kind   QuantifierKind
	Vars   []QuantifiedVar
	Where  Expression // may be nil
	Body   Expression
	Line   int
	Column int
}

func (q *Quantifier) Pos() (int, int) { return q.Line, q.Column }
func (q *Quantifier) exprNode()       {}

// Conditional represents if/then/else
type Conditional struct {
	Cond   Expression
	Then   Expression
	Else   Expression
	Line   int
	Column int
}

func (c *Conditional) Pos() (int, int) { return c.Line, c.Column }
func (c *Conditional) exprNode()       {}

// Let binds a pattern to a value within a body
type Let struct {
	Pattern Pattern
	Type    string // optional annotation
	Value   Expression
	Body    Expression
	Line    int
	Column  int
}

func (l *Let) Pos() (int, int) { return l.Line, l.Column }
func (l *Let) exprNode()       {}

// MatchCase is a single arm of a match expression
type MatchCase struct {
	Pattern Pattern
	Guard   Expression // may be nil
	Body    Expression
}

// Match represents pattern matching over a scrutinee
type Match struct {
	Scrutinee Expression
	Cases     []MatchCase
	Line      int
	Column    int
}

func (m *Match) Pos() (int, int) { return m.Line, m.Column }
func (m *Match) exprNode()       {}

// LambdaParam is a lambda parameter with an optional type annotation
type LambdaParam struct {
	Name string
	Type string
}

// Lambda represents an anonymous function
type Lambda struct {
	Params []LambdaParam
	Body   Expression
	Line   int
	Column int
}

func (l *Lambda) Pos() (int, int) { return l.Line, l.Column }
func (l *Lambda) exprNode()       {}

// List represents a list literal
type List struct {
	Elements []Expression
	Line     int
	Column   int
}

func (l *List) Pos() (int, int) { return l.Line, l.Column }
func (l *List) exprNode()       {}

// Ascription represents `expr : Type`
type Ascription struct {
	Expr   Expression
	Type   string
	Line   int
	Column int
}

func (a *Ascription) Pos() (int, int) { return a.Line, a.Column }
func (a *Ascription) exprNode()       {}

// Placeholder is an unfilled hole left by an editor
type Placeholder struct {
	ID     int
	Hint   string
	Line   int
	Column int
}

func (p *Placeholder) Pos() (int, int) { return p.Line, p.Column }
func (p *Placeholder) exprNode()       {}

// PatternVar binds the matched value to Name
type PatternVar struct {
	Name   string
	Line   int
	Column int
}

func (p *PatternVar) Pos() (int, int) { return p.Line, p.Column }
func (p *PatternVar) patternNode()    {}

// PatternWildcard matches anything without binding
type PatternWildcard struct {
	Line   int
	Column int
}

func (p *PatternWildcard) Pos() (int, int) { return p.Line, p.Column }
func (p *PatternWildcard) patternNode()    {}

// PatternConstructor matches a data constructor and its fields
type PatternConstructor struct {
	Name   string
	Args   []Pattern
	Line   int
	Column int
}

func (p *PatternConstructor) Pos() (int, int) { return p.Line, p.Column }
func (p *PatternConstructor) patternNode()    {}

// PatternConst matches a literal value
type PatternConst struct {
	Value  string
	Line   int
	Column int
}

func (p *PatternConst) Pos() (int, int) { return p.Line, p.Column }
func (p *PatternConst) patternNode()    {}

// Convenience constructors used by loaders, converters and tests.

func NewConst(v string) *Const   { return &Const{Value: v} }
func NewObject(n string) *Object { return &Object{Name: n} }
func NewString(s string) *String { return &String{Value: s} }
func NewOp(name string, args ...Expression) *Operation {
	return &Operation{Name: name, Args: args}
}

// NewForAll builds a universal quantifier over untyped variables
func NewForAll(vars []QuantifiedVar, body Expression) *Quantifier {
	return &Quantifier{Kind: ForAll, Vars: vars, Body: body}
}

// Vars builds untyped quantified variables from names
func Vars(names ...string) []QuantifiedVar {
	out := make([]QuantifiedVar, len(names))
	for i, n := range names {
		out[i] = QuantifiedVar{Name: n}
	}
	return out
}

// TypedVars builds quantified variables that all share one annotation
func TypedVars(typ string, names ...string) []QuantifiedVar {
	out := Vars(names...)
	for i := range out {
		out[i].Type = typ
	}
	return out
}
