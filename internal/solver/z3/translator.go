package z3

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/eatikrh/kleis-sub001/internal/ast"
	"github.com/eatikrh/kleis-sub001/internal/solver"
	"github.com/eatikrh/kleis-sub001/internal/solver/smtlib"
)

// term is a translated SMT-LIB term and its sort
type term struct {
	text string
	sort string
}

type funcDecl struct {
	name   string
	symbol string
	params []string
	ret    string
}

type dtField struct {
	accessor string
	sort     string
}

type dtVariant struct {
	name   string
	symbol string
	fields []dtField
	owner  *datatype
}

type datatype struct {
	name     string
	sort     string
	variants []*dtVariant
}

// txn collects declarations made while translating one expression. They
// are sent to the solver on commit and forgotten on rollback, so a failed
// translation leaves no half-declared state behind.
type txn struct {
	cmds   []string
	funcs  map[string]*funcDecl
	consts map[string]term
	list   bool
}

func newTxn() *txn {
	return &txn{funcs: make(map[string]*funcDecl), consts: make(map[string]term)}
}

// translator turns expressions into SMT-LIB terms. Operation names are
// never interpreted here beyond the native table, and only when the
// capability manifest marks the name native.
type translator struct {
	caps   *solver.Capabilities
	logger *slog.Logger

	funcs        map[string]*funcDecl
	consts       map[string]term // declared constants by key
	identities   map[string]term
	datatypes    map[string]*datatype
	constructors map[string]*dtVariant
	reverse      map[string]string // SMT symbol -> source name
	listDeclared bool

	tx    *txn
	depth int
}

func newTranslator(caps *solver.Capabilities, logger *slog.Logger) *translator {
	return &translator{
		caps:         caps,
		logger:       logger,
		funcs:        make(map[string]*funcDecl),
		consts:       make(map[string]term),
		identities:   make(map[string]term),
		datatypes:    make(map[string]*datatype),
		constructors: make(map[string]*dtVariant),
		reverse:      make(map[string]string),
		tx:           newTxn(),
	}
}

// commit returns the pending declaration commands and makes them permanent
func (t *translator) commit() []string {
	for k, f := range t.tx.funcs {
		t.funcs[k] = f
		t.reverse[f.symbol] = f.name
	}
	for k, c := range t.tx.consts {
		t.consts[k] = c
	}
	if t.tx.list {
		t.listDeclared = true
	}
	cmds := t.tx.cmds
	t.tx = newTxn()
	return cmds
}

func (t *translator) rollback() {
	t.tx = newTxn()
	t.depth = 0
}

// reservedSymbols are SMT-LIB names a declared function must not shadow
var reservedSymbols = map[string]bool{
	"and": true, "or": true, "not": true, "=>": true, "xor": true, "ite": true,
	"=": true, "distinct": true, "+": true, "-": true, "*": true, "/": true,
	"div": true, "mod": true, "abs": true, "to_real": true, "to_int": true,
	"is_int": true, "true": true, "false": true, "<": true, "<=": true,
	">": true, ">=": true, "let": true, "forall": true, "exists": true,
	"as": true, "_": true, "!": true, "match": true, "select": true, "store": true,
}

func declSymbol(name string) string {
	if reservedSymbols[name] {
		return sym("kleis_" + name)
	}
	return sym(name)
}

// goal translates a top-level proposition, which must be boolean
func (t *translator) goal(e ast.Expression, env map[string]term) (term, error) {
	tm, err := t.translate(e, env, sortBool)
	if err != nil {
		return term{}, err
	}
	if tm.sort != sortBool {
		return term{}, &solver.TypeMismatchError{Context: "proposition " + ast.Format(e), Expected: sortBool, Got: tm.sort}
	}
	return tm, nil
}

func (t *translator) translate(e ast.Expression, env map[string]term, want string) (term, error) {
	switch ex := e.(type) {
	case nil:
		return term{}, fmt.Errorf("missing expression")
	case *ast.Const:
		return constant(ex.Value)
	case *ast.String:
		return term{text: smtlib.StringLit(ex.Value), sort: sortString}, nil
	case *ast.Object:
		return t.object(ex.Name, env)
	case *ast.Operation:
		return t.operation(ex, env, want)
	case *ast.Quantifier:
		return t.quantifier(ex, env)
	case *ast.Conditional:
		return t.conditional(ex, env, want)
	case *ast.Let:
		return t.let(ex, env, want)
	case *ast.Match:
		return t.match(ex, env, want)
	case *ast.Lambda:
		return t.lambda(ex, env, want)
	case *ast.List:
		return t.list(ex, env)
	case *ast.Ascription:
		return t.ascription(ex, env)
	case *ast.Placeholder:
		return term{}, &solver.UnsupportedError{Backend: "z3", Feature: "unfilled placeholder " + ast.Format(ex)}
	}
	return term{}, &solver.UnsupportedError{Backend: "z3", Feature: fmt.Sprintf("expression %T", e)}
}

func constant(v string) (term, error) {
	switch v {
	case "true", "false":
		return term{text: v, sort: sortBool}, nil
	}
	text, isReal, err := smtlib.Numeral(v)
	if err != nil {
		return term{}, err
	}
	if isReal {
		return term{text: text, sort: sortReal}, nil
	}
	return term{text: text, sort: sortInt}, nil
}

// object resolves a name: bound variables, then identity elements, then
// nullary constructors and declared constants.
func (t *translator) object(name string, env map[string]term) (term, error) {
	if tm, ok := env[name]; ok {
		return tm, nil
	}
	if tm, ok := t.identities[name]; ok {
		return tm, nil
	}
	if v, ok := t.constructors[name]; ok {
		if len(v.fields) > 0 {
			return term{}, fmt.Errorf("constructor %s expects %d arguments", name, len(v.fields))
		}
		return term{text: v.symbol, sort: v.owner.sort}, nil
	}
	if f := t.lookupFunc(name); f != nil && len(f.params) == 0 {
		return term{text: f.symbol, sort: f.ret}, nil
	}
	switch name {
	case "true", "false", "⊤", "⊥":
		if name == "⊤" {
			name = "true"
		} else if name == "⊥" {
			name = "false"
		}
		return term{text: name, sort: sortBool}, nil
	}
	return term{}, &solver.UndefinedSymbolError{Name: name}
}

func (t *translator) lookupFunc(name string) *funcDecl {
	if f, ok := t.tx.funcs[name]; ok {
		return f
	}
	return t.funcs[name]
}

func (t *translator) operation(op *ast.Operation, env map[string]term, want string) (term, error) {
	native, isNative := nativeOps[op.Name]
	isNative = isNative && t.caps.IsNative(op.Name)

	argWant := ""
	if isNative && native.boolArgs {
		argWant = sortBool
	}
	args := make([]term, len(op.Args))
	for i, a := range op.Args {
		tm, err := t.translate(a, env, argWant)
		if err != nil {
			return term{}, err
		}
		args[i] = tm
	}

	if v, ok := t.constructors[op.Name]; ok {
		return constructorApp(v, args)
	}
	if isNative {
		tm, err := native.build(args)
		if err != nil {
			return term{}, fmt.Errorf("%s: %w", op.Name, err)
		}
		return tm, nil
	}
	return t.apply(op.Name, args, want)
}

func constructorApp(v *dtVariant, args []term) (term, error) {
	if len(args) != len(v.fields) {
		return term{}, fmt.Errorf("constructor %s expects %d arguments, got %d", v.name, len(v.fields), len(args))
	}
	if len(args) == 0 {
		return term{text: v.symbol, sort: v.owner.sort}, nil
	}
	parts := []string{v.symbol}
	for i, a := range args {
		c, ok := coerce(a, v.fields[i].sort)
		if !ok {
			return term{}, &solver.TypeMismatchError{Context: "argument " + v.fields[i].accessor + " of " + v.name, Expected: v.fields[i].sort, Got: a.sort}
		}
		parts = append(parts, c.text)
	}
	return term{text: "(" + strings.Join(parts, " ") + ")", sort: v.owner.sort}, nil
}

// apply declares name as an uninterpreted function on first use, with the
// observed arity and argument sorts, and applies it.
func (t *translator) apply(name string, args []term, want string) (term, error) {
	f := t.lookupFunc(name)
	if f == nil {
		params := make([]string, len(args))
		for i, a := range args {
			params[i] = a.sort
		}
		f = &funcDecl{name: name, symbol: declSymbol(name), params: params, ret: inferReturn(params, want)}
		t.tx.funcs[name] = f
		t.tx.cmds = append(t.tx.cmds, fmt.Sprintf("(declare-fun %s (%s) %s)", f.symbol, strings.Join(params, " "), f.ret))
		if t.logger != nil {
			t.logger.Debug("declared uninterpreted function", slog.String("name", name), slog.Int("arity", len(params)), slog.String("sort", f.ret))
		}
	}
	if len(args) != len(f.params) {
		return term{}, fmt.Errorf("operation %s used with %d arguments but declared with %d", name, len(args), len(f.params))
	}
	if len(args) == 0 {
		return term{text: f.symbol, sort: f.ret}, nil
	}
	parts := []string{f.symbol}
	for i, a := range args {
		c, ok := coerce(a, f.params[i])
		if !ok {
			return term{}, &solver.TypeMismatchError{Context: fmt.Sprintf("argument %d of %s", i+1, name), Expected: f.params[i], Got: a.sort}
		}
		parts = append(parts, c.text)
	}
	return term{text: "(" + strings.Join(parts, " ") + ")", sort: f.ret}, nil
}

// inferReturn picks the result sort of a new uninterpreted function: the
// sort the context demands, else the common argument sort (operations on a
// carrier stay on that carrier), else Int.
func inferReturn(params []string, want string) string {
	if want != "" {
		return want
	}
	if len(params) == 0 {
		return sortInt
	}
	first := params[0]
	for _, p := range params[1:] {
		if p != first {
			return sortInt
		}
	}
	if first == sortBool {
		return sortInt
	}
	return first
}

func (t *translator) quantifier(q *ast.Quantifier, env map[string]term) (term, error) {
	t.depth++
	defer func() { t.depth-- }()

	inner := copyEnv(env)
	decls := make([]string, len(q.Vars))
	for i, v := range q.Vars {
		sort, known := t.sortOf(v.Type)
		if !known && t.logger != nil {
			t.logger.Warn("unknown type annotation, using Int", slog.String("var", v.Name), slog.String("type", v.Type))
		}
		bound := sym(fmt.Sprintf("%s!%d", v.Name, t.depth))
		inner[v.Name] = term{text: bound, sort: sort}
		decls[i] = fmt.Sprintf("(%s %s)", bound, sort)
	}

	body, err := t.translate(q.Body, inner, sortBool)
	if err != nil {
		return term{}, err
	}
	if body.sort != sortBool {
		return term{}, &solver.TypeMismatchError{Context: "quantifier body", Expected: sortBool, Got: body.sort}
	}
	if q.Where != nil {
		cond, err := t.translate(q.Where, inner, sortBool)
		if err != nil {
			return term{}, err
		}
		if cond.sort != sortBool {
			return term{}, &solver.TypeMismatchError{Context: "where clause", Expected: sortBool, Got: cond.sort}
		}
		// a where clause guards the body for both quantifiers
		body.text = fmt.Sprintf("(=> %s %s)", cond.text, body.text)
	}

	kw := "forall"
	if q.Kind == ast.Exists {
		kw = "exists"
	}
	return term{text: fmt.Sprintf("(%s (%s) %s)", kw, strings.Join(decls, " "), body.text), sort: sortBool}, nil
}

func (t *translator) conditional(c *ast.Conditional, env map[string]term, want string) (term, error) {
	cond, err := t.translate(c.Cond, env, sortBool)
	if err != nil {
		return term{}, err
	}
	if cond.sort != sortBool {
		return term{}, &solver.TypeMismatchError{Context: "if condition", Expected: sortBool, Got: cond.sort}
	}
	then, err := t.translate(c.Then, env, want)
	if err != nil {
		return term{}, err
	}
	els, err := t.translate(c.Else, env, want)
	if err != nil {
		return term{}, err
	}
	branches, err := unifyBranches([]term{then, els}, "if branches")
	if err != nil {
		return term{}, err
	}
	return term{text: fmt.Sprintf("(ite %s %s %s)", cond.text, branches[0].text, branches[1].text), sort: branches[0].sort}, nil
}

func unifyBranches(ts []term, context string) ([]term, error) {
	same := true
	for _, x := range ts[1:] {
		if x.sort != ts[0].sort {
			same = false
		}
	}
	if same {
		return ts, nil
	}
	out, _, ok := unifyNumeric(ts)
	if !ok {
		return nil, &solver.TypeMismatchError{Context: context, Expected: ts[0].sort, Got: ts[len(ts)-1].sort}
	}
	return out, nil
}

func (t *translator) let(l *ast.Let, env map[string]term, want string) (term, error) {
	value, err := t.translate(l.Value, env, "")
	if err != nil {
		return term{}, err
	}
	if l.Type != "" {
		if target, known := t.sortOf(l.Type); known {
			c, ok := coerce(value, target)
			if !ok {
				return term{}, &solver.TypeMismatchError{Context: "let " + ast.Format(l.Value), Expected: target, Got: value.sort}
			}
			value = c
		}
	}
	inner, _, err := t.bindPattern(l.Pattern, value, env)
	if err != nil {
		return term{}, err
	}
	return t.translate(l.Body, inner, want)
}

// bindPattern extends env with the pattern's variables and returns the
// conditions under which the pattern matches.
func (t *translator) bindPattern(p ast.Pattern, scrut term, env map[string]term) (map[string]term, []string, error) {
	out := copyEnv(env)
	var conds []string
	var bind func(p ast.Pattern, s term) error
	bind = func(p ast.Pattern, s term) error {
		switch pt := p.(type) {
		case *ast.PatternWildcard:
		case *ast.PatternVar:
			out[pt.Name] = s
		case *ast.PatternConst:
			c, err := constant(pt.Value)
			if err != nil {
				return err
			}
			pair, _, ok := unifyNumeric([]term{s, c})
			if !ok {
				if s.sort != c.sort {
					return &solver.TypeMismatchError{Context: "pattern " + pt.Value, Expected: s.sort, Got: c.sort}
				}
				pair = []term{s, c}
			}
			conds = append(conds, fmt.Sprintf("(= %s %s)", pair[0].text, pair[1].text))
		case *ast.PatternConstructor:
			v, ok := t.constructors[pt.Name]
			if !ok {
				if len(pt.Args) == 0 {
					out[pt.Name] = s
					return nil
				}
				return &solver.UndefinedSymbolError{Name: pt.Name}
			}
			if v.owner.sort != s.sort {
				return &solver.TypeMismatchError{Context: "pattern " + pt.Name, Expected: s.sort, Got: v.owner.sort}
			}
			if len(pt.Args) != len(v.fields) {
				return fmt.Errorf("pattern %s has %d fields, constructor has %d", pt.Name, len(pt.Args), len(v.fields))
			}
			conds = append(conds, fmt.Sprintf("((_ is %s) %s)", v.symbol, s.text))
			for i, a := range pt.Args {
				f := v.fields[i]
				if err := bind(a, term{text: fmt.Sprintf("(%s %s)", f.accessor, s.text), sort: f.sort}); err != nil {
					return err
				}
			}
		default:
			return &solver.UnsupportedError{Backend: "z3", Feature: fmt.Sprintf("pattern %T", p)}
		}
		return nil
	}
	if err := bind(p, scrut); err != nil {
		return nil, nil, err
	}
	return out, conds, nil
}

// match becomes nested ite over the case conditions; the last case is the
// fallback.
func (t *translator) match(m *ast.Match, env map[string]term, want string) (term, error) {
	if len(m.Cases) == 0 {
		return term{}, fmt.Errorf("match without cases")
	}
	scrut, err := t.translate(m.Scrutinee, env, "")
	if err != nil {
		return term{}, err
	}
	bodies := make([]term, len(m.Cases))
	conds := make([]string, len(m.Cases))
	for i, c := range m.Cases {
		inner, cs, err := t.bindPattern(c.Pattern, scrut, env)
		if err != nil {
			return term{}, err
		}
		if c.Guard != nil {
			g, err := t.translate(c.Guard, inner, sortBool)
			if err != nil {
				return term{}, err
			}
			if g.sort != sortBool {
				return term{}, &solver.TypeMismatchError{Context: "match guard", Expected: sortBool, Got: g.sort}
			}
			cs = append(cs, g.text)
		}
		body, err := t.translate(c.Body, inner, want)
		if err != nil {
			return term{}, err
		}
		bodies[i] = body
		conds[i] = conjunction(cs)
	}
	bodies, err = unifyBranches(bodies, "match arms")
	if err != nil {
		return term{}, err
	}
	result := bodies[len(bodies)-1].text
	for i := len(bodies) - 2; i >= 0; i-- {
		result = fmt.Sprintf("(ite %s %s %s)", conds[i], bodies[i].text, result)
	}
	return term{text: result, sort: bodies[0].sort}, nil
}

func conjunction(cs []string) string {
	switch len(cs) {
	case 0:
		return "true"
	case 1:
		return cs[0]
	}
	return "(and " + strings.Join(cs, " ") + ")"
}

// lambda parameters become declared constants and the body is returned
// over them.
func (t *translator) lambda(l *ast.Lambda, env map[string]term, want string) (term, error) {
	inner := copyEnv(env)
	for _, p := range l.Params {
		sort, _ := t.sortOf(p.Type)
		inner[p.Name] = t.declareConst(p.Name+"!lambda", sort)
	}
	return t.translate(l.Body, inner, want)
}

// declareConst declares a global constant once per name and sort
func (t *translator) declareConst(base, sort string) term {
	key := base + "|" + sort
	if c, ok := t.consts[key]; ok {
		return c
	}
	if c, ok := t.tx.consts[key]; ok {
		return c
	}
	name := base
	if sort != sortInt && sort != sortReal && sort != sortBool {
		name = base + "!" + strings.Trim(strings.NewReplacer(" ", "_", "(", "", ")", "").Replace(sort), "_")
	} else if sort != sortInt {
		name = base + "!" + sort
	}
	c := term{text: sym(name), sort: sort}
	t.tx.consts[key] = c
	t.tx.cmds = append(t.tx.cmds, fmt.Sprintf("(declare-const %s %s)", c.text, sort))
	return c
}

const listDatatype = "(declare-datatypes ((KList 1)) ((par (T) ((knil) (kcons (khead T) (ktail (KList T)))))))"

func (t *translator) list(l *ast.List, env map[string]term) (term, error) {
	elems := make([]term, len(l.Elements))
	for i, e := range l.Elements {
		tm, err := t.translate(e, env, "")
		if err != nil {
			return term{}, err
		}
		elems[i] = tm
	}
	elemSort := sortInt
	if len(elems) > 0 {
		unified, err := unifyBranches(elems, "list elements")
		if err != nil {
			return term{}, err
		}
		elems = unified
		elemSort = elems[0].sort
	}
	if !t.listDeclared && !t.tx.list {
		t.tx.list = true
		t.tx.cmds = append(t.tx.cmds, listDatatype)
	}
	ls := listSort(elemSort)
	acc := fmt.Sprintf("(as knil %s)", ls)
	for i := len(elems) - 1; i >= 0; i-- {
		acc = fmt.Sprintf("(kcons %s %s)", elems[i].text, acc)
	}
	return term{text: acc, sort: ls}, nil
}

func (t *translator) ascription(a *ast.Ascription, env map[string]term) (term, error) {
	inner, err := t.translate(a.Expr, env, "")
	if err != nil {
		return term{}, err
	}
	target, known := t.sortOf(a.Type)
	if !known || target == inner.sort {
		return inner, nil
	}
	c, ok := coerce(inner, target)
	if !ok {
		return term{}, &solver.TypeMismatchError{Context: "ascription " + ast.Format(a), Expected: target, Got: inner.sort}
	}
	return c, nil
}

func copyEnv(env map[string]term) map[string]term {
	out := make(map[string]term, len(env)+2)
	for k, v := range env {
		out[k] = v
	}
	return out
}
