// Package solver defines the contract every proof engine implements and
// the engine-neutral values that cross it. Callers only ever see
// ast.Expression, results and witnesses; engine terms stay inside the
// backend packages.
package solver

import (
	"context"

	"github.com/eatikrh/kleis-sub001/internal/ast"
	"github.com/eatikrh/kleis-sub001/internal/structure"
)

// Backend is one proof session on one engine. Implementations are not safe
// for concurrent use; parallel work needs independent instances.
type Backend interface {
	Name() string
	Capabilities() *Capabilities
	SupportsOperation(op string) bool

	// VerifyAxiom checks validity: the negation is asserted inside a
	// scope and the goal is Valid iff that is unsatisfiable.
	VerifyAxiom(ctx context.Context, expr ast.Expression) (VerificationResult, error)
	// CheckSatisfiability asserts expr directly inside a scope.
	CheckSatisfiability(ctx context.Context, expr ast.Expression) (SatisfiabilityResult, error)
	AreEquivalent(ctx context.Context, a, b ast.Expression) (bool, error)
	Evaluate(ctx context.Context, expr ast.Expression) (ast.Expression, error)
	Simplify(ctx context.Context, expr ast.Expression) (ast.Expression, error)

	// LoadStructureAxioms asserts a structure's axioms once per session.
	// On error nothing from the batch stays asserted.
	LoadStructureAxioms(ctx context.Context, name string, axioms []ast.Expression) error
	IsStructureLoaded(name string) bool
	LoadIdentityElement(ctx context.Context, name string, typ ast.TypeExpr) error
	LoadDataType(ctx context.Context, def *structure.DataDef) error
	IsDeclaredConstructor(name string) bool
	AssertExpression(ctx context.Context, expr ast.Expression) error
	// DefineFunction asserts a derived operation's defining equation. The
	// definition belongs to the current scope and is dropped by Pop.
	DefineFunction(ctx context.Context, name string, params []string, body ast.Expression) error
	IsFunctionDefined(name string) bool

	Push(ctx context.Context) error
	Pop(ctx context.Context, levels int) error
	Reset(ctx context.Context) error

	Stats() Stats
	Close() error
}

// Scoped is the push/pop part of a Backend
type Scoped interface {
	Push(ctx context.Context) error
	Pop(ctx context.Context, levels int) error
}

// WithScope runs fn between Push and Pop so the scope is released on every
// return path.
func WithScope(ctx context.Context, b Scoped, fn func() error) (err error) {
	if err := b.Push(ctx); err != nil {
		return err
	}
	defer func() {
		if perr := b.Pop(context.WithoutCancel(ctx), 1); perr != nil && err == nil {
			err = perr
		}
	}()
	return fn()
}
