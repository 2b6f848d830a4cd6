package verify

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/eatikrh/kleis-sub001/internal/ast"
	"github.com/eatikrh/kleis-sub001/internal/solver"
	"github.com/eatikrh/kleis-sub001/internal/solver/z3"
)

func newZ3Verifier(t *testing.T) (*Verifier, context.Context) {
	t.Helper()
	if _, err := exec.LookPath("z3"); err != nil {
		t.Skip("z3 not installed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)
	b, err := z3.New(ctx, z3.Options{Timeout: 5 * time.Second, SkipVersionCheck: true})
	if err != nil {
		t.Fatalf("starting z3: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	reg, _ := loadAlgebra(t)
	return New(reg, b, Options{}), ctx
}

func TestZ3InheritedAxioms(t *testing.T) {
	v, ctx := newZ3Verifier(t)
	_, goals := loadAlgebra(t)

	out := v.RunGoal(ctx, goals["shifted_identity"])
	if out.Status != Proved {
		t.Fatalf("shifted_identity: %s %s", out.Status, out.Message)
	}
	if out.Loaded < 2 {
		t.Errorf("expected Semigroup and Monoid loaded, got %d", out.Loaded)
	}

	// Ordered comes in through Lattice's where clause
	if out := v.RunGoal(ctx, goals["meet_self"]); out.Status != Proved {
		t.Errorf("meet_self: %s %s", out.Status, out.Message)
	}
}

func TestZ3Counterexample(t *testing.T) {
	v, ctx := newZ3Verifier(t)
	x := ast.NewObject("x")
	goal := &ast.Quantifier{
		Kind: ast.ForAll,
		Vars: ast.TypedVars("ℝ", "x"),
		Body: ast.NewOp("equals", ast.NewOp("plus", x, ast.NewConst("1")), x),
	}
	res, err := v.Verify(ctx, goal)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != solver.Invalid {
		t.Fatalf("expected Invalid, got %s", res)
	}
	if _, ok := res.Witness.Lookup("x"); !ok {
		t.Errorf("witness should bind x: %s", res.Counterexample)
	}
}

func TestZ3IdentityElementsDistinct(t *testing.T) {
	v, ctx := newZ3Verifier(t)
	res, err := v.CheckSatisfiability(ctx, ast.NewOp("equals", ast.NewObject("zero"), ast.NewObject("one")))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != solver.Unsatisfiable {
		t.Errorf("zero = one should be unsatisfiable, got %s", res)
	}
}

func TestZ3ConstructorWitness(t *testing.T) {
	v, ctx := newZ3Verifier(t)
	_, goals := loadAlgebra(t)
	out := v.RunGoal(ctx, goals["red_exists"])
	if out.Status != Proved {
		t.Fatalf("red_exists: %s %s", out.Status, out.Message)
	}
	if out.Witness == nil {
		t.Fatal("satisfiable goal returned no witness")
	}
	val, ok := out.Witness.Lookup("c")
	if !ok {
		t.Fatalf("witness does not bind c: %s", out.Witness)
	}
	if obj, isObj := val.(*ast.Object); !isObj || obj.Name != "Red" {
		t.Errorf("c should map back to Red, got %s", ast.Format(val))
	}
}
