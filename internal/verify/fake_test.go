package verify

import (
	"context"
	"fmt"

	"github.com/eatikrh/kleis-sub001/internal/ast"
	"github.com/eatikrh/kleis-sub001/internal/solver"
	"github.com/eatikrh/kleis-sub001/internal/structure"
)

// fakeBackend records what the verifier loads and answers checks from
// canned results.
type fakeBackend struct {
	loaded     map[string]bool
	loadOrder  []string
	loadCalls  map[string]int
	identities []string
	functions  []string
	scopes     []*fakeScope
	datatypes  []string
	ctors      map[string]bool
	depth      int
	resets     int
	closed     bool

	nativeData bool            // declare data type constructors natively
	failLoad   map[string]bool // structures whose axioms fail to load
	verify     func(ast.Expression) (solver.VerificationResult, error)
	sat        solver.SatisfiabilityResult
	equivalent bool
	proven     map[string]bool
}

// fakeScope remembers what a push level added, so Pop can drop it
type fakeScope struct {
	order, identities, functions int
	loaded                       []string
	defined                      map[string]bool
}

func newFake() *fakeBackend {
	return &fakeBackend{
		loaded:    make(map[string]bool),
		loadCalls: make(map[string]int),
		scopes:    []*fakeScope{{defined: map[string]bool{}}},
		ctors:     make(map[string]bool),
		failLoad:  make(map[string]bool),
		verify: func(ast.Expression) (solver.VerificationResult, error) {
			return solver.ValidResult(), nil
		},
		sat:        solver.SatisfiableResult(&solver.Witness{}),
		equivalent: true,
	}
}

func (f *fakeBackend) Name() string                       { return "fake" }
func (f *fakeBackend) Capabilities() *solver.Capabilities { return &solver.Capabilities{} }
func (f *fakeBackend) SupportsOperation(string) bool      { return true }

func (f *fakeBackend) VerifyAxiom(_ context.Context, e ast.Expression) (solver.VerificationResult, error) {
	return f.verify(e)
}

func (f *fakeBackend) CheckSatisfiability(context.Context, ast.Expression) (solver.SatisfiabilityResult, error) {
	return f.sat, nil
}

func (f *fakeBackend) AreEquivalent(context.Context, ast.Expression, ast.Expression) (bool, error) {
	return f.equivalent, nil
}

func (f *fakeBackend) Evaluate(_ context.Context, e ast.Expression) (ast.Expression, error) {
	return e, nil
}

func (f *fakeBackend) Simplify(_ context.Context, e ast.Expression) (ast.Expression, error) {
	return e, nil
}

func (f *fakeBackend) LoadStructureAxioms(_ context.Context, name string, _ []ast.Expression) error {
	f.loadCalls[name]++
	if f.failLoad[name] {
		return fmt.Errorf("cannot translate axioms of %s", name)
	}
	f.loaded[name] = true
	f.loadOrder = append(f.loadOrder, name)
	top := f.scopes[len(f.scopes)-1]
	top.loaded = append(top.loaded, name)
	return nil
}

func (f *fakeBackend) IsStructureLoaded(name string) bool { return f.loaded[name] }

func (f *fakeBackend) LoadIdentityElement(_ context.Context, name string, _ ast.TypeExpr) error {
	for _, id := range f.identities {
		if id == name {
			return nil
		}
	}
	f.identities = append(f.identities, name)
	return nil
}

func (f *fakeBackend) LoadDataType(_ context.Context, def *structure.DataDef) error {
	if !f.nativeData {
		return &solver.UnsupportedError{Backend: "fake", Feature: "data types"}
	}
	f.datatypes = append(f.datatypes, def.Name)
	for _, v := range def.Variants {
		f.ctors[v.Name] = true
	}
	return nil
}

func (f *fakeBackend) IsDeclaredConstructor(name string) bool { return f.ctors[name] }

func (f *fakeBackend) AssertExpression(context.Context, ast.Expression) error { return nil }

func (f *fakeBackend) DefineFunction(_ context.Context, name string, _ []string, _ ast.Expression) error {
	if f.IsFunctionDefined(name) {
		return fmt.Errorf("function %s is already defined", name)
	}
	f.functions = append(f.functions, name)
	f.scopes[len(f.scopes)-1].defined[name] = true
	return nil
}

func (f *fakeBackend) IsFunctionDefined(name string) bool {
	for _, s := range f.scopes {
		if s.defined[name] {
			return true
		}
	}
	return false
}

func (f *fakeBackend) Push(context.Context) error {
	f.depth++
	f.scopes = append(f.scopes, &fakeScope{
		order:      len(f.loadOrder),
		identities: len(f.identities),
		functions:  len(f.functions),
		defined:    map[string]bool{},
	})
	return nil
}

func (f *fakeBackend) Pop(_ context.Context, levels int) error {
	if levels > f.depth {
		return fmt.Errorf("cannot pop %d scopes at depth %d", levels, f.depth)
	}
	for i := 0; i < levels; i++ {
		s := f.scopes[len(f.scopes)-1]
		for _, name := range s.loaded {
			delete(f.loaded, name)
		}
		f.loadOrder = f.loadOrder[:s.order]
		f.identities = f.identities[:s.identities]
		f.functions = f.functions[:s.functions]
		f.scopes = f.scopes[:len(f.scopes)-1]
	}
	f.depth -= levels
	return nil
}

func (f *fakeBackend) Reset(context.Context) error {
	f.resets++
	f.loaded = make(map[string]bool)
	f.loadOrder = nil
	f.functions = nil
	f.scopes = []*fakeScope{{defined: map[string]bool{}}}
	f.identities = nil
	return nil
}

func (f *fakeBackend) Stats() solver.Stats {
	return solver.Stats{LoadedStructures: len(f.loaded), IdentityElements: len(f.identities), ScopeDepth: f.depth}
}

func (f *fakeBackend) Close() error { f.closed = true; return nil }

func (f *fakeBackend) ProvenByCompanion(name string) bool { return f.proven[name] }
