// Package z3 implements solver.Backend on a z3 process speaking SMT-LIB 2
// over stdin/stdout.
package z3

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eatikrh/kleis-sub001/internal/ast"
	"github.com/eatikrh/kleis-sub001/internal/solver"
	"github.com/eatikrh/kleis-sub001/internal/structure"
)

//go:embed capabilities.yaml
var manifest []byte

var (
	capsOnce sync.Once
	caps     *solver.Capabilities
)

// Capabilities returns the embedded z3 manifest
func Capabilities() *solver.Capabilities {
	capsOnce.Do(func() { caps = solver.MustParseCapabilities(manifest) })
	return caps
}

// Options configures a z3 backend
type Options struct {
	Path    string        // binary; "z3" on PATH when empty
	Timeout time.Duration // per check; 0 uses the manifest default
	Logger  *slog.Logger
	// MinVersion replaces the manifest's min_version constraint
	MinVersion string
	// SkipVersionCheck starts even when the binary fails min_version
	SkipVersionCheck bool
}

// frame is the bookkeeping of one push level
type frame struct {
	structures []string
	identities []string
	functions  []string
	assertions int
}

// Backend is a solver.Backend on one z3 process
type Backend struct {
	id      string
	opts    Options
	path    string
	version string
	caps    *solver.Capabilities
	logger  *slog.Logger

	sess   *session
	tr     *translator
	loaded map[string]bool
	// functions whose defining equation is currently asserted
	defined map[string]bool
	frames  []*frame
	total  int

	verifyCache map[string]solver.VerificationResult
	satCache    map[string]solver.SatisfiabilityResult
}

var _ solver.Backend = (*Backend)(nil)

// New finds z3, checks its version against the manifest and starts a
// session.
func New(ctx context.Context, opts Options) (*Backend, error) {
	path, err := FindZ3(opts.Path)
	if err != nil {
		return nil, err
	}
	c := Capabilities()
	if opts.Timeout <= 0 {
		opts.Timeout = time.Duration(c.Performance.TimeoutMS) * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{
		id:   uuid.NewString(),
		opts: opts,
		path: path,
		caps: c,
	}
	b.logger = logger.With(slog.String("component", "z3"), slog.String("session", b.id[:8]))

	version, err := Version(ctx, path)
	switch {
	case err != nil:
		b.logger.Warn("could not determine z3 version", slog.String("error", err.Error()))
	default:
		b.version = version
		check := *c
		if opts.MinVersion != "" {
			check.Solver.MinVersion = opts.MinVersion
		}
		if verr := check.CheckVersion(version); verr != nil && !opts.SkipVersionCheck {
			return nil, verr
		}
	}

	if err := b.start(ctx); err != nil {
		return nil, err
	}
	b.logger.Info("z3 session started", slog.String("path", path), slog.String("version", b.version))
	return b, nil
}

func (b *Backend) start(ctx context.Context) error {
	sess, err := startSession(ctx, b.path, b.opts.Timeout, b.logger)
	if err != nil {
		return err
	}
	b.sess = sess
	b.tr = newTranslator(b.caps, b.logger)
	b.loaded = make(map[string]bool)
	b.defined = make(map[string]bool)
	b.frames = []*frame{{}}
	b.total = 0
	b.clearCache()
	return nil
}

func (b *Backend) clearCache() {
	b.verifyCache = make(map[string]solver.VerificationResult)
	b.satCache = make(map[string]solver.SatisfiabilityResult)
}

// scratch runs fn in a scope that is popped afterwards. The assertion set is
// then what it was before, so cached results survive.
func (b *Backend) scratch(ctx context.Context, fn func() error) error {
	verify, sat := b.verifyCache, b.satCache
	if err := solver.WithScope(ctx, b, fn); err != nil {
		return err
	}
	b.verifyCache, b.satCache = verify, sat
	return nil
}

func (b *Backend) top() *frame { return b.frames[len(b.frames)-1] }

func (b *Backend) Name() string { return "z3" }

// Version is the version reported by the binary, if known
func (b *Backend) Version() string { return b.version }

func (b *Backend) Capabilities() *solver.Capabilities { return b.caps }

func (b *Backend) SupportsOperation(op string) bool {
	return b.caps.HasOperation(op) || b.caps.Features.UninterpretedFunctions
}

func (b *Backend) assert(ctx context.Context, text string) error {
	if err := b.sess.exec(ctx, "(assert "+text+")"); err != nil {
		return err
	}
	b.top().assertions++
	b.total++
	b.clearCache()
	return nil
}

// declare sends declarations collected by the translator
func (b *Backend) declare(ctx context.Context) error {
	for _, c := range b.tr.commit() {
		if err := b.sess.exec(ctx, c); err != nil {
			return fmt.Errorf("declaring: %w", err)
		}
	}
	return nil
}

// peel strips leading quantifiers of one kind, collecting their variables
// and where clauses.
func peel(e ast.Expression, kind ast.QuantifierKind) ([]ast.QuantifiedVar, []ast.Expression, ast.Expression) {
	var vars []ast.QuantifiedVar
	var wheres []ast.Expression
	for {
		q, ok := e.(*ast.Quantifier)
		if !ok || q.Kind != kind {
			return vars, wheres, e
		}
		vars = append(vars, q.Vars...)
		if q.Where != nil {
			wheres = append(wheres, q.Where)
		}
		e = q.Body
	}
}

// skolemize declares a constant per peeled variable so a model can name
// its value. A later variable of the same name replaces an earlier one.
func (b *Backend) skolemize(vars []ast.QuantifiedVar) (map[string]term, []tracked) {
	env := make(map[string]term, len(vars))
	var out []tracked
	for _, v := range vars {
		sort, known := b.tr.sortOf(v.Type)
		if !known {
			b.logger.Warn("unknown type annotation, using Int", slog.String("var", v.Name), slog.String("type", v.Type))
		}
		c := b.tr.declareConst(v.Name+"!sk", sort)
		b.tr.reverse[c.text] = v.Name
		env[v.Name] = c
		replaced := false
		for i := range out {
			if out[i].name == v.Name {
				out[i].term = c
				replaced = true
			}
		}
		if !replaced {
			out = append(out, tracked{name: v.Name, term: c})
		}
	}
	return env, out
}

// translateGoal translates body under env and guards it with the where
// clauses of the peeled quantifiers.
func (b *Backend) translateGoal(ctx context.Context, body ast.Expression, wheres []ast.Expression, env map[string]term) (string, error) {
	goal, err := b.tr.goal(body, env)
	if err != nil {
		b.tr.rollback()
		return "", err
	}
	conds := make([]string, 0, len(wheres))
	for _, w := range wheres {
		c, err := b.tr.goal(w, env)
		if err != nil {
			b.tr.rollback()
			return "", err
		}
		conds = append(conds, c.text)
	}
	if err := b.declare(ctx); err != nil {
		return "", err
	}
	if len(conds) == 0 {
		return goal.text, nil
	}
	return fmt.Sprintf("(=> %s %s)", conjunction(conds), goal.text), nil
}

func (b *Backend) VerifyAxiom(ctx context.Context, expr ast.Expression) (solver.VerificationResult, error) {
	key := "verify:" + ast.Format(expr)
	if r, ok := b.verifyCache[key]; ok {
		return r, nil
	}

	vars, wheres, body := peel(expr, ast.ForAll)
	env, vs := b.skolemize(vars)
	goal, err := b.translateGoal(ctx, body, wheres, env)
	if err != nil {
		return solver.VerificationResult{}, err
	}

	var res solver.VerificationResult
	err = b.scratch(ctx, func() error {
		if err := b.assert(ctx, "(not "+goal+")"); err != nil {
			return err
		}
		status, err := b.sess.checkSat(ctx)
		if err != nil {
			return err
		}
		switch status {
		case "unsat":
			res = solver.ValidResult()
		case "sat":
			res = solver.InvalidResult(b.witness(ctx, vs))
		default:
			res = solver.UnknownResult(b.sess.reasonUnknown(ctx))
		}
		return nil
	})
	if err != nil {
		return solver.VerificationResult{}, err
	}
	if res.Status != solver.Unknown {
		b.verifyCache[key] = res
	}
	b.logger.Debug("verified", slog.String("expr", ast.Format(expr)), slog.String("status", res.Status.String()))
	return res, nil
}

func (b *Backend) CheckSatisfiability(ctx context.Context, expr ast.Expression) (solver.SatisfiabilityResult, error) {
	key := "sat:" + ast.Format(expr)
	if r, ok := b.satCache[key]; ok {
		return r, nil
	}

	vars, wheres, body := peel(expr, ast.Exists)
	env, vs := b.skolemize(vars)
	goal, err := b.translateGoal(ctx, body, wheres, env)
	if err != nil {
		return solver.SatisfiabilityResult{}, err
	}

	var res solver.SatisfiabilityResult
	err = b.scratch(ctx, func() error {
		if err := b.assert(ctx, goal); err != nil {
			return err
		}
		status, err := b.sess.checkSat(ctx)
		if err != nil {
			return err
		}
		switch status {
		case "sat":
			res = solver.SatisfiableResult(b.witness(ctx, vs))
		case "unsat":
			res = solver.SatisfiabilityResult{Status: solver.Unsatisfiable}
		default:
			res = solver.SatisfiabilityResult{Status: solver.SatUnknown, Reason: b.sess.reasonUnknown(ctx)}
		}
		return nil
	})
	if err != nil {
		return solver.SatisfiabilityResult{}, err
	}
	if res.Status != solver.SatUnknown {
		b.satCache[key] = res
	}
	return res, nil
}

// freeEnv binds every free object of exprs that names nothing in the
// session to a fresh constant, so the check ranges over all its values.
// The sort is inferred from use and defaults to Int.
func (b *Backend) freeEnv(exprs ...ast.Expression) map[string]term {
	free := make(map[string]bool)
	for _, e := range exprs {
		for _, name := range ast.FreeObjects(e) {
			if _, err := b.tr.object(name, nil); err == nil {
				continue
			}
			free[name] = true
		}
	}
	sorts := b.tr.inferFreeSorts(free, exprs...)
	env := make(map[string]term, len(free))
	for name := range free {
		sort, ok := sorts[name]
		if !ok {
			sort = sortInt
		}
		env[name] = b.tr.declareConst(name+"!free", sort)
	}
	return env
}

// AreEquivalent reports whether a = b holds for all values of their free
// variables. An unknown answer is an error rather than false.
func (b *Backend) AreEquivalent(ctx context.Context, x, y ast.Expression) (bool, error) {
	env := b.freeEnv(x, y)
	left, err := b.tr.translate(x, env, "")
	if err != nil {
		b.tr.rollback()
		return false, err
	}
	right, err := b.tr.translate(y, env, "")
	if err != nil {
		b.tr.rollback()
		return false, err
	}
	pair, err := unifyBranches([]term{left, right}, "equivalence")
	if err != nil {
		b.tr.rollback()
		return false, err
	}
	if err := b.declare(ctx); err != nil {
		return false, err
	}

	var equal bool
	err = b.scratch(ctx, func() error {
		if err := b.assert(ctx, fmt.Sprintf("(not (= %s %s))", pair[0].text, pair[1].text)); err != nil {
			return err
		}
		status, err := b.sess.checkSat(ctx)
		if err != nil {
			return err
		}
		switch status {
		case "unsat":
			equal = true
		case "sat":
			equal = false
		default:
			return fmt.Errorf("equivalence of %s and %s is unknown: %s", ast.Format(x), ast.Format(y), b.sess.reasonUnknown(ctx))
		}
		return nil
	})
	return equal, err
}

// Evaluate returns the value of a ground expression under the loaded
// axioms.
func (b *Backend) Evaluate(ctx context.Context, expr ast.Expression) (ast.Expression, error) {
	tm, err := b.tr.translate(expr, map[string]term{}, "")
	if err != nil {
		b.tr.rollback()
		return nil, err
	}
	if err := b.declare(ctx); err != nil {
		return nil, err
	}
	var out ast.Expression
	err = b.scratch(ctx, func() error {
		status, err := b.sess.checkSat(ctx)
		if err != nil {
			return err
		}
		if status != "sat" {
			return fmt.Errorf("cannot evaluate %s: context is %s", ast.Format(expr), status)
		}
		if b.datatypeForSort(tm.sort) != nil || strings.HasPrefix(tm.sort, "(KList ") {
			out, err = b.decode(ctx, tm.text, tm.sort, 0)
			return err
		}
		vals, err := b.sess.values(ctx, []string{tm.text})
		if err != nil {
			return err
		}
		out = b.tr.toExpression(vals[0], nil)
		return nil
	})
	return out, err
}

func (b *Backend) Simplify(ctx context.Context, expr ast.Expression) (ast.Expression, error) {
	env := b.freeEnv(expr)
	tm, err := b.tr.translate(expr, env, "")
	if err != nil {
		b.tr.rollback()
		return nil, err
	}
	if err := b.declare(ctx); err != nil {
		return nil, err
	}
	r, err := b.sess.send(ctx, "(simplify "+tm.text+")")
	if err != nil {
		return nil, err
	}
	return b.tr.toExpression(r, nil), nil
}

// LoadStructureAxioms asserts axioms for name once. All axioms are
// translated first and then asserted in a trial scope; only when every
// assertion is accepted are they asserted for real.
func (b *Backend) LoadStructureAxioms(ctx context.Context, name string, axioms []ast.Expression) error {
	if b.loaded[name] {
		return nil
	}
	if len(axioms) > b.caps.Performance.MaxAxioms {
		return fmt.Errorf("structure %s has %d axioms, limit is %d", name, len(axioms), b.caps.Performance.MaxAxioms)
	}
	texts := make([]string, len(axioms))
	for i, ax := range axioms {
		tm, err := b.tr.goal(ax, map[string]term{})
		if err != nil {
			b.tr.rollback()
			return fmt.Errorf("structure %s: axiom %s: %w", name, ast.Format(ax), err)
		}
		texts[i] = tm.text
	}
	if err := b.declare(ctx); err != nil {
		return err
	}

	err := solver.WithScope(ctx, b, func() error {
		for _, t := range texts {
			if err := b.assert(ctx, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("structure %s: %w", name, err)
	}
	for _, t := range texts {
		if err := b.assert(ctx, t); err != nil {
			return fmt.Errorf("structure %s: %w", name, err)
		}
	}

	b.loaded[name] = true
	b.top().structures = append(b.top().structures, name)
	b.logger.Debug("loaded structure", slog.String("structure", name), slog.Int("axioms", len(axioms)))
	return nil
}

func (b *Backend) IsStructureLoaded(name string) bool { return b.loaded[name] }

// LoadIdentityElement declares a nullary operation as a constant and
// asserts it distinct from the other identity elements of its sort.
func (b *Backend) LoadIdentityElement(ctx context.Context, name string, typ ast.TypeExpr) error {
	if _, ok := b.tr.identities[name]; ok {
		return nil
	}
	if ast.IsFunctionType(typ) {
		return fmt.Errorf("identity element %s has function type %s", name, typ)
	}
	sort, known := b.tr.sortOfType(typ)
	if !known {
		b.logger.Debug("identity element of unmapped type, using Int", slog.String("name", name))
	}

	key := name + "|" + sort
	c, declared := b.tr.consts[key]
	if !declared {
		c = term{text: declSymbol(name), sort: sort}
		if err := b.sess.exec(ctx, fmt.Sprintf("(declare-const %s %s)", c.text, sort)); err != nil {
			return fmt.Errorf("identity element %s: %w", name, err)
		}
		b.tr.consts[key] = c
		b.tr.reverse[c.text] = name
	}

	for _, other := range b.identitiesOfSort(sort) {
		if err := b.assert(ctx, fmt.Sprintf("(not (= %s %s))", c.text, other.text)); err != nil {
			return err
		}
	}
	b.tr.identities[name] = c
	b.top().identities = append(b.top().identities, name)
	return nil
}

func (b *Backend) identitiesOfSort(sort string) []term {
	var out []term
	for _, tm := range b.tr.identities {
		if tm.sort == sort {
			out = append(out, tm)
		}
	}
	return out
}

// LoadDataType declares an algebraic data type. Type parameters are
// instantiated at Int.
func (b *Backend) LoadDataType(ctx context.Context, def *structure.DataDef) error {
	if _, ok := b.tr.datatypes[def.Name]; ok {
		return nil
	}
	if len(def.TypeParams) > 0 {
		b.logger.Warn("parametric data type declared monomorphically", slog.String("type", def.Name))
	}
	dt := &datatype{name: def.Name, sort: sym(def.Name)}
	// register first so recursive fields resolve to the new sort
	b.tr.datatypes[def.Name] = dt

	var ctors []string
	for _, v := range def.Variants {
		if _, taken := b.tr.constructors[v.Name]; taken {
			delete(b.tr.datatypes, def.Name)
			return fmt.Errorf("data type %s: constructor %s is already declared", def.Name, v.Name)
		}
		dv := &dtVariant{name: v.Name, symbol: sym(v.Name), owner: dt}
		parts := []string{dv.symbol}
		for i, f := range v.Fields {
			sort, _ := b.tr.sortOfType(f.Type)
			accessor := sym(v.AccessorName(i))
			if f.Name != "" {
				accessor = sym(v.Name + "." + f.Name)
			}
			dv.fields = append(dv.fields, dtField{accessor: accessor, sort: sort})
			parts = append(parts, fmt.Sprintf("(%s %s)", accessor, sort))
		}
		dt.variants = append(dt.variants, dv)
		ctors = append(ctors, "("+strings.Join(parts, " ")+")")
	}

	cmd := fmt.Sprintf("(declare-datatypes ((%s 0)) ((%s)))", dt.sort, strings.Join(ctors, " "))
	if err := b.sess.exec(ctx, cmd); err != nil {
		delete(b.tr.datatypes, def.Name)
		return fmt.Errorf("data type %s: %w", def.Name, err)
	}
	for _, v := range dt.variants {
		b.tr.constructors[v.name] = v
		b.tr.reverse[v.symbol] = v.name
	}
	return nil
}

func (b *Backend) IsDeclaredConstructor(name string) bool {
	_, ok := b.tr.constructors[name]
	return ok
}

func (b *Backend) AssertExpression(ctx context.Context, expr ast.Expression) error {
	tm, err := b.tr.goal(expr, map[string]term{})
	if err != nil {
		b.tr.rollback()
		return err
	}
	if err := b.declare(ctx); err != nil {
		return err
	}
	return b.assert(ctx, tm.text)
}

// DefineFunction asserts the defining equation of f for all arguments.
// Parameters are Int unless f is already declared, for instance by an
// earlier use or by a definition whose scope has been popped; the
// declaration is then reused as it is.
func (b *Backend) DefineFunction(ctx context.Context, name string, params []string, body ast.Expression) error {
	if b.defined[name] {
		return fmt.Errorf("function %s is already defined", name)
	}
	declared := b.tr.lookupFunc(name)
	if declared != nil && len(declared.params) != len(params) {
		return fmt.Errorf("function %s is declared with %d parameters, defined with %d", name, len(declared.params), len(params))
	}
	env := make(map[string]term, len(params))
	decls := make([]string, len(params))
	args := make([]string, len(params))
	sorts := make([]string, len(params))
	for i, p := range params {
		sorts[i] = sortInt
		if declared != nil {
			sorts[i] = declared.params[i]
		}
		bound := sym(p + "!def")
		env[p] = term{text: bound, sort: sorts[i]}
		decls[i] = fmt.Sprintf("(%s %s)", bound, sorts[i])
		args[i] = bound
	}
	tm, err := b.tr.translate(body, env, "")
	if err != nil {
		b.tr.rollback()
		return fmt.Errorf("function %s: %w", name, err)
	}
	// a recursive body has already declared name through its own calls
	f := b.tr.lookupFunc(name)
	if f == nil {
		f = &funcDecl{name: name, symbol: declSymbol(name), params: sorts, ret: tm.sort}
		b.tr.tx.funcs[name] = f
		b.tr.tx.cmds = append(b.tr.tx.cmds, fmt.Sprintf("(declare-fun %s (%s) %s)", f.symbol, strings.Join(sorts, " "), f.ret))
	} else if len(f.params) != len(params) {
		b.tr.rollback()
		return fmt.Errorf("function %s is applied to %d arguments in its own body", name, len(f.params))
	}
	body2, ok := coerce(tm, f.ret)
	if !ok {
		b.tr.rollback()
		return &solver.TypeMismatchError{Context: "body of " + name, Expected: f.ret, Got: tm.sort}
	}
	tm = body2
	if err := b.declare(ctx); err != nil {
		return err
	}

	eq := fmt.Sprintf("(= %s %s)", f.symbol, tm.text)
	if len(params) > 0 {
		eq = fmt.Sprintf("(forall (%s) (= (%s %s) %s))",
			strings.Join(decls, " "), f.symbol, strings.Join(args, " "), tm.text)
	}
	if err := b.assert(ctx, eq); err != nil {
		return err
	}
	b.defined[name] = true
	b.top().functions = append(b.top().functions, name)
	return nil
}

// IsFunctionDefined reports whether the defining equation of name is
// asserted in the current scope.
func (b *Backend) IsFunctionDefined(name string) bool { return b.defined[name] }

func (b *Backend) Push(ctx context.Context) error {
	if err := b.sess.exec(ctx, "(push 1)"); err != nil {
		return err
	}
	b.frames = append(b.frames, &frame{})
	return nil
}

// Pop undoes levels scopes, forgetting the structures, identity elements,
// function definitions and assertions recorded in them. Declarations are
// global and survive.
func (b *Backend) Pop(ctx context.Context, levels int) error {
	if levels <= 0 {
		return nil
	}
	if levels > len(b.frames)-1 {
		return fmt.Errorf("cannot pop %d scopes at depth %d", levels, len(b.frames)-1)
	}
	if err := b.sess.exec(ctx, fmt.Sprintf("(pop %d)", levels)); err != nil {
		return err
	}
	for i := 0; i < levels; i++ {
		f := b.top()
		for _, s := range f.structures {
			delete(b.loaded, s)
		}
		for _, id := range f.identities {
			delete(b.tr.identities, id)
		}
		for _, fn := range f.functions {
			delete(b.defined, fn)
		}
		b.total -= f.assertions
		b.frames = b.frames[:len(b.frames)-1]
	}
	b.clearCache()
	return nil
}

// Reset restarts the z3 process, dropping every declaration.
func (b *Backend) Reset(ctx context.Context) error {
	if b.sess != nil {
		if err := b.sess.close(); err != nil {
			b.logger.Debug("closing z3 before reset", slog.String("error", err.Error()))
		}
	}
	return b.start(ctx)
}

func (b *Backend) Stats() solver.Stats {
	return solver.Stats{
		LoadedStructures:   len(b.loaded),
		DeclaredOperations: len(b.tr.funcs),
		AssertionCount:     b.total,
		IdentityElements:   len(b.tr.identities),
		ScopeDepth:         len(b.frames) - 1,
	}
}

func (b *Backend) Close() error {
	if b.sess == nil {
		return nil
	}
	err := b.sess.close()
	b.logger.Debug("z3 session closed")
	return err
}

// IsTimeout reports whether err came from an abandoned call. The session
// is unusable afterwards until Reset.
func IsTimeout(err error) bool {
	var te *solver.TimeoutError
	return errors.As(err, &te)
}
