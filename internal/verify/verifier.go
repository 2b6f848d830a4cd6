// Package verify ties the structure registry to a solver backend: it works
// out which structures a proposition depends on, loads their axiom closure
// into the backend and runs the check.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/eatikrh/kleis-sub001/internal/ast"
	"github.com/eatikrh/kleis-sub001/internal/solver"
	"github.com/eatikrh/kleis-sub001/internal/structure"
)

// Options tune a Verifier
type Options struct {
	// Isolate resets the backend before every goal so that no goal sees
	// structures loaded for an earlier one.
	Isolate bool
	Logger  *slog.Logger
}

// Verifier drives one backend session. Like the backend it wraps, it is not
// safe for concurrent use.
type Verifier struct {
	reg     *structure.Registry
	ops     *structure.OperationRegistry
	backend solver.Backend
	opts    Options
	logger  *slog.Logger
}

// New creates a Verifier over a fully populated registry. The operation
// index is built once here, so structures registered later are not seen.
func New(reg *structure.Registry, b solver.Backend, opts Options) *Verifier {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		reg:     reg,
		ops:     structure.BuildOperations(reg),
		backend: b,
		opts:    opts,
		logger:  logger.With(slog.String("component", "verify"), slog.String("backend", b.Name())),
	}
}

// Backend returns the wrapped backend
func (v *Verifier) Backend() solver.Backend { return v.backend }

// Analysis is what a set of expressions refers to
type Analysis struct {
	// Structures owning an operation or constant used by the expressions,
	// sorted.
	Structures []string
	Operations []string
	// Objects are free names that no structure owns: variables of the
	// goal, constructors and the like.
	Objects []string
}

// Analyze maps the operations and free constants of exprs to the
// structures that declare them.
func (v *Verifier) Analyze(exprs ...ast.Expression) Analysis {
	return Analyze(v.ops, exprs...)
}

// Analyze is Verifier.Analyze against an explicit operation index
func Analyze(index *structure.OperationRegistry, exprs ...ast.Expression) Analysis {
	structs := make(map[string]bool)
	ops := make(map[string]bool)
	objs := make(map[string]bool)
	for _, e := range exprs {
		if e == nil {
			continue
		}
		for _, op := range ast.OperationNames(e) {
			ops[op] = true
			for _, s := range index.Owners(op) {
				structs[s] = true
			}
		}
		for _, name := range ast.FreeObjects(e) {
			owners := index.Owners(name)
			if len(owners) == 0 {
				objs[name] = true
			}
			for _, s := range owners {
				structs[s] = true
			}
		}
	}
	return Analysis{
		Structures: keys(structs),
		Operations: keys(ops),
		Objects:    keys(objs),
	}
}

// Prepare loads everything exprs depend on: the closure of the structures
// they mention plus extra, and the data types whose constructors or type
// names occur in the expressions or the loaded axioms.
func (v *Verifier) Prepare(ctx context.Context, extra []string, exprs ...ast.Expression) (*structure.Closure, error) {
	an := v.Analyze(exprs...)
	roots := mergeNames(an.Structures, extra)

	closure := &structure.Closure{}
	if len(roots) > 0 {
		var err error
		closure, err = v.reg.ClosureOf(roots)
		if err != nil {
			return nil, err
		}
		if len(closure.Missing) > 0 {
			return nil, fmt.Errorf("structures %s are referenced but not registered", strings.Join(closure.Missing, ", "))
		}
	}

	used := append([]ast.Expression(nil), exprs...)
	for _, ax := range closure.Axioms {
		used = append(used, ax.Prop)
	}
	for _, s := range closure.Order {
		for _, fn := range v.reg.FunctionDefs(s) {
			used = append(used, fn.Body)
		}
	}
	if err := v.loadDataTypes(ctx, used); err != nil {
		return nil, err
	}

	for _, s := range closure.Order {
		if err := v.loadStructure(ctx, s); err != nil {
			return closure, err
		}
	}
	v.logger.Debug("context prepared",
		slog.String("roots", strings.Join(roots, ",")),
		slog.Int("structures", len(closure.Order)),
		slog.Int("loaded", v.backend.Stats().LoadedStructures))
	return closure, nil
}

// loadStructure declares the constants and derived operations of one
// structure and asserts its axioms. The closure has already ordered where,
// extends and over dependencies ahead of name.
//
// A failed load leaves nothing of the structure behind. Axioms are loaded
// atomically by the backend; a structure that also declares identity
// elements or functions is first loaded in a scope that is popped again.
func (v *Verifier) loadStructure(ctx context.Context, name string) error {
	if v.backend.IsStructureLoaded(name) {
		return nil
	}
	c, err := v.reg.Closure(name)
	if err != nil {
		return err
	}
	// axioms of inline nested members are qualified with name as well
	var axioms []ast.Expression
	for _, ax := range c.Axioms {
		if ax.Structure == name {
			axioms = append(axioms, ax.Prop)
		}
	}
	ids := v.reg.IdentityElements(name)
	fns := v.reg.FunctionDefs(name)

	if len(ids) > 0 || len(fns) > 0 {
		err := solver.WithScope(ctx, v.backend, func() error {
			return v.assertStructure(ctx, name, ids, fns, axioms)
		})
		if err != nil {
			return err
		}
	}
	if err := v.assertStructure(ctx, name, ids, fns, axioms); err != nil {
		return err
	}
	v.logger.Debug("structure loaded", slog.String("structure", name), slog.Int("axioms", len(axioms)))
	return nil
}

func (v *Verifier) assertStructure(ctx context.Context, name string, ids []structure.IdentityElement, fns []*structure.FunctionDef, axioms []ast.Expression) error {
	for _, id := range ids {
		if err := v.backend.LoadIdentityElement(ctx, id.Name, id.Type); err != nil {
			return fmt.Errorf("structure %s: %w", name, err)
		}
	}
	for _, fn := range fns {
		// another structure in the closure may define the same operation
		if v.backend.IsFunctionDefined(fn.Name) {
			continue
		}
		if err := v.backend.DefineFunction(ctx, fn.Name, fn.Params, fn.Body); err != nil {
			return fmt.Errorf("structure %s: %w", name, err)
		}
	}
	if err := v.backend.LoadStructureAxioms(ctx, name, axioms); err != nil {
		return fmt.Errorf("loading structure %s: %w", name, err)
	}
	return nil
}

// loadDataTypes declares every registered data type referenced by exprs.
// Nullary constructors the backend could not declare natively become
// mutually distinct identity elements of the data type.
func (v *Verifier) loadDataTypes(ctx context.Context, exprs []ast.Expression) error {
	for _, name := range v.referencedDataTypes(exprs) {
		def, _ := v.reg.DataType(name)
		if len(def.Variants) > 0 && v.backend.IsDeclaredConstructor(def.Variants[0].Name) {
			continue
		}
		err := v.backend.LoadDataType(ctx, def)
		var ue *solver.UnsupportedError
		switch {
		case errors.As(err, &ue):
			v.logger.Debug("data type not native, using identity elements", slog.String("type", name))
		case err != nil:
			return fmt.Errorf("data type %s: %w", name, err)
		}
		for _, variant := range def.Variants {
			if len(variant.Fields) > 0 || v.backend.IsDeclaredConstructor(variant.Name) {
				continue
			}
			if err := v.backend.LoadIdentityElement(ctx, variant.Name, &ast.NamedType{Name: def.Name}); err != nil {
				return fmt.Errorf("constructor %s: %w", variant.Name, err)
			}
		}
	}
	return nil
}

func (v *Verifier) referencedDataTypes(exprs []ast.Expression) []string {
	found := make(map[string]bool)
	note := func(name string) {
		if owner, ok := v.reg.ConstructorOwner(name); ok {
			found[owner] = true
		}
	}
	noteType := func(src string) {
		if src == "" {
			return
		}
		t, err := ast.ParseType(src)
		if err != nil {
			return
		}
		for _, n := range typeNames(t) {
			if _, ok := v.reg.DataType(n); ok {
				found[n] = true
			}
		}
	}
	for _, e := range exprs {
		if e == nil {
			continue
		}
		for _, name := range ast.FreeObjects(e) {
			note(name)
		}
		ast.Walk(e, func(n ast.Expression) bool {
			switch n := n.(type) {
			case *ast.Operation:
				note(n.Name)
			case *ast.Quantifier:
				for _, qv := range n.Vars {
					noteType(qv.Type)
				}
			case *ast.Lambda:
				for _, p := range n.Params {
					noteType(p.Type)
				}
			case *ast.Ascription:
				noteType(n.Type)
			case *ast.Match:
				for _, c := range n.Cases {
					for _, ctor := range patternConstructors(c.Pattern) {
						note(ctor)
					}
				}
			}
			return true
		})
	}

	// a data type's fields can name other data types
	var out []string
	seen := make(map[string]bool)
	var add func(name string)
	add = func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		def, _ := v.reg.DataType(name)
		for _, variant := range def.Variants {
			for _, f := range variant.Fields {
				for _, n := range typeNames(f.Type) {
					if _, ok := v.reg.DataType(n); ok && n != name {
						add(n)
					}
				}
			}
		}
		out = append(out, name)
	}
	for _, d := range v.reg.DataTypes() {
		if found[d.Name] {
			add(d.Name)
		}
	}
	return out
}

// Verify checks that expr is valid in the context of the structures it
// uses plus any named explicitly.
func (v *Verifier) Verify(ctx context.Context, expr ast.Expression, structures ...string) (solver.VerificationResult, error) {
	if _, err := v.Prepare(ctx, structures, expr); err != nil {
		return solver.VerificationResult{}, err
	}
	return v.backend.VerifyAxiom(ctx, expr)
}

// CheckSatisfiability looks for a model of expr in the same context Verify
// would use.
func (v *Verifier) CheckSatisfiability(ctx context.Context, expr ast.Expression, structures ...string) (solver.SatisfiabilityResult, error) {
	if _, err := v.Prepare(ctx, structures, expr); err != nil {
		return solver.SatisfiabilityResult{}, err
	}
	return v.backend.CheckSatisfiability(ctx, expr)
}

// AreEquivalent reports whether a = b holds for every interpretation
// allowed by the loaded axioms.
func (v *Verifier) AreEquivalent(ctx context.Context, a, b ast.Expression, structures ...string) (bool, error) {
	if _, err := v.Prepare(ctx, structures, a, b); err != nil {
		return false, err
	}
	return v.backend.AreEquivalent(ctx, a, b)
}

// Reset drops everything loaded into the backend
func (v *Verifier) Reset(ctx context.Context) error {
	return v.backend.Reset(ctx)
}

func typeNames(t ast.TypeExpr) []string {
	switch t := t.(type) {
	case *ast.NamedType:
		return []string{t.Name}
	case *ast.ParametricType:
		out := []string{t.Name}
		for _, a := range t.Args {
			out = append(out, typeNames(a)...)
		}
		return out
	case *ast.FunctionType:
		return append(typeNames(t.From), typeNames(t.To)...)
	case *ast.ProductType:
		var out []string
		for _, e := range t.Elements {
			out = append(out, typeNames(e)...)
		}
		return out
	}
	return nil
}

func patternConstructors(p ast.Pattern) []string {
	pc, ok := p.(*ast.PatternConstructor)
	if !ok {
		return nil
	}
	out := []string{pc.Name}
	for _, a := range pc.Args {
		out = append(out, patternConstructors(a)...)
	}
	return out
}

func mergeNames(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for _, n := range a {
		seen[n] = true
	}
	for _, n := range b {
		seen[n] = true
	}
	return keys(seen)
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
