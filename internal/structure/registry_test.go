package structure

import (
	"reflect"
	"strings"
	"testing"

	"github.com/eatikrh/kleis-sub001/internal/ast"
)

func ref(name string, args ...string) *StructureRef {
	r := &StructureRef{Name: name}
	for _, a := range args {
		r.Args = append(r.Args, &ast.NamedType{Name: a})
	}
	return r
}

func axiom(name string, prop ast.Expression) *Axiom {
	return &Axiom{Name: name, Prop: prop}
}

func binop(sig string, name string) *Operation {
	return &Operation{Name: name, Signature: ast.MustParseType(sig)}
}

// eq(a, b) shorthand used by the fixtures below
func eq(a, b ast.Expression) ast.Expression { return ast.NewOp("equals", a, b) }

func semigroupAndMonoid(t *testing.T) *Registry {
	t.Helper()
	x, y, z := ast.NewObject("x"), ast.NewObject("y"), ast.NewObject("z")
	plus := func(a, b ast.Expression) ast.Expression { return ast.NewOp("plus", a, b) }

	r := NewRegistry()
	semigroup := &StructureDef{
		Name:       "Semigroup",
		TypeParams: []string{"M"},
		Members: []Member{
			binop("M × M → M", "plus"),
			axiom("associativity", ast.NewForAll(ast.Vars("x", "y", "z"),
				eq(plus(plus(x, y), z), plus(x, plus(y, z))))),
		},
	}
	monoid := &StructureDef{
		Name:       "Monoid",
		TypeParams: []string{"M"},
		Extends:    ref("Semigroup", "M"),
		Members: []Member{
			binop("M", "e"),
			axiom("left_identity", ast.NewForAll(ast.Vars("x"), eq(plus(ast.NewObject("e"), x), x))),
		},
	}
	if err := r.Register(semigroup); err != nil {
		t.Fatalf("Register(Semigroup): %v", err)
	}
	if err := r.Register(monoid); err != nil {
		t.Fatalf("Register(Monoid): %v", err)
	}
	return r
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := semigroupAndMonoid(t)
	err := r.Register(&StructureDef{Name: "Monoid"})
	if err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if !strings.Contains(err.Error(), "already registered") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRegisterRejectsExtendsCycle(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&StructureDef{Name: "Loop", Extends: ref("Loop")}); err == nil {
		t.Fatal("expected self-extends to be rejected")
	}

	if err := r.Register(&StructureDef{Name: "A", Extends: ref("B")}); err != nil {
		t.Fatalf("A should register while B is unknown: %v", err)
	}
	err := r.Register(&StructureDef{Name: "B", Extends: ref("A")})
	if err == nil {
		t.Fatal("expected B -> A -> B cycle to be rejected")
	}
	if !strings.Contains(err.Error(), "B -> A -> B") {
		t.Errorf("expected cycle path in error, got: %v", err)
	}
	if _, ok := r.Get("B"); ok {
		t.Error("rejected structure must not be registered")
	}
}

func TestRegisterRejectsSelfOverAndNested(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&StructureDef{Name: "F", Over: ref("F")}); err == nil {
		t.Error("expected self-over to be rejected")
	}
	nested := &Nested{Name: "inner", Structure: ref("G")}
	if err := r.Register(&StructureDef{Name: "G", Members: []Member{nested}}); err == nil {
		t.Error("expected self-nesting to be rejected")
	}
}

func TestAxiomsAreDirectOnly(t *testing.T) {
	r := semigroupAndMonoid(t)
	axioms := r.Axioms("Monoid")
	if len(axioms) != 1 {
		t.Fatalf("expected 1 direct axiom, got %d", len(axioms))
	}
	if axioms[0].QualifiedName() != "Monoid.left_identity" {
		t.Errorf("expected Monoid.left_identity, got %s", axioms[0].QualifiedName())
	}
	if got := r.Axioms("Nope"); got != nil {
		t.Errorf("expected nil for unknown structure, got %v", got)
	}
}

func TestClosureFollowsExtends(t *testing.T) {
	r := semigroupAndMonoid(t)
	c, err := r.Closure("Monoid")
	if err != nil {
		t.Fatalf("Closure: %v", err)
	}
	if !reflect.DeepEqual(c.Order, []string{"Semigroup", "Monoid"}) {
		t.Errorf("expected [Semigroup Monoid], got %v", c.Order)
	}
	var names []string
	for _, ax := range c.Axioms {
		names = append(names, ax.QualifiedName())
	}
	want := []string{"Semigroup.associativity", "Monoid.left_identity"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("expected %v, got %v", want, names)
	}
}

func TestClosureFollowsOverWhereAndNested(t *testing.T) {
	r := NewRegistry()
	must := func(s *StructureDef) {
		t.Helper()
		if err := r.Register(s); err != nil {
			t.Fatalf("Register(%s): %v", s.Name, err)
		}
	}
	must(&StructureDef{Name: "Field", Members: []Member{
		binop("F", "zero"),
		axiom("zero_add", ast.NewForAll(ast.Vars("a"), eq(ast.NewOp("plus", ast.NewObject("zero"), ast.NewObject("a")), ast.NewObject("a")))),
	}})
	must(&StructureDef{Name: "Commutative", Members: []Member{
		axiom("comm", ast.NewForAll(ast.Vars("a", "b"), eq(ast.NewOp("mul", ast.NewObject("a"), ast.NewObject("b")), ast.NewOp("mul", ast.NewObject("b"), ast.NewObject("a"))))),
	}})
	must(&StructureDef{Name: "AbelianGroup", Members: []Member{
		axiom("inv", ast.NewForAll(ast.Vars("a"), eq(ast.NewOp("add", ast.NewObject("a"), ast.NewOp("neg", ast.NewObject("a"))), ast.NewObject("zero")))),
	}})
	must(&StructureDef{
		Name: "VectorSpace",
		Over: ref("Field", "F"),
		Members: []Member{
			&Nested{Name: "additive", Structure: ref("AbelianGroup", "V"), Members: []Member{
				axiom("closed", ast.NewConst("true")),
			}},
		},
	})
	must(&StructureDef{Name: "Algebra", Extends: ref("VectorSpace")})
	if err := r.RegisterImplements(&ImplementsDef{
		Structure: "Algebra",
		TypeArgs:  []ast.TypeExpr{&ast.NamedType{Name: "ℝ"}},
		Where:     []StructureRef{*ref("Commutative", "ℝ")},
	}); err != nil {
		t.Fatalf("RegisterImplements: %v", err)
	}

	c, err := r.Closure("Algebra")
	if err != nil {
		t.Fatalf("Closure: %v", err)
	}
	want := []string{"Commutative", "Field", "AbelianGroup", "VectorSpace", "Algebra"}
	if !reflect.DeepEqual(c.Order, want) {
		t.Errorf("expected order %v, got %v", want, c.Order)
	}

	found := map[string]bool{}
	for _, ax := range c.Axioms {
		found[ax.QualifiedName()] = true
	}
	for _, name := range []string{"Field.zero_add", "Commutative.comm", "AbelianGroup.inv", "VectorSpace.additive.closed"} {
		if !found[name] {
			t.Errorf("closure is missing axiom %s (have %v)", name, found)
		}
	}

	where := r.WhereConstraints("Algebra")
	if len(where) != 1 || where[0].String() != "Commutative(ℝ)" {
		t.Errorf("expected [Commutative(ℝ)], got %v", where)
	}
}

func TestClosureGuardsAgainstCycles(t *testing.T) {
	r := NewRegistry()
	// over/where cycles cannot be rejected at registration since either
	// side may be registered first; the traversal must still terminate.
	if err := r.Register(&StructureDef{Name: "P", Over: ref("Q")}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&StructureDef{Name: "Q", Where: []StructureRef{*ref("P")}}); err != nil {
		t.Fatal(err)
	}
	c, err := r.Closure("P")
	if err != nil {
		t.Fatalf("Closure: %v", err)
	}
	if !reflect.DeepEqual(c.Order, []string{"Q", "P"}) {
		t.Errorf("expected [Q P], got %v", c.Order)
	}
}

func TestClosureReportsMissing(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&StructureDef{Name: "Ring", Extends: ref("AbelianGroup")}); err != nil {
		t.Fatal(err)
	}
	c, err := r.Closure("Ring")
	if err != nil {
		t.Fatalf("Closure: %v", err)
	}
	if !reflect.DeepEqual(c.Missing, []string{"AbelianGroup"}) {
		t.Errorf("expected missing [AbelianGroup], got %v", c.Missing)
	}
	if _, err := r.Closure("Nope"); err == nil {
		t.Error("expected error for unknown root")
	}
}

func TestIdentityElementsIncludeNested(t *testing.T) {
	r := NewRegistry()
	s := &StructureDef{Name: "Ring", Members: []Member{
		binop("R × R → R", "times"),
		binop("R", "one"),
		&Nested{Name: "additive", Members: []Member{binop("R", "zero")}},
	}}
	if err := r.Register(s); err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, id := range r.IdentityElements("Ring") {
		names = append(names, id.Name)
	}
	if !reflect.DeepEqual(names, []string{"one", "zero"}) {
		t.Errorf("expected [one zero], got %v", names)
	}
}

func TestRegisterDataRejectsDuplicateConstructor(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterData(&DataDef{Name: "Color", Variants: []Variant{{Name: "Red"}, {Name: "Green"}}}); err != nil {
		t.Fatal(err)
	}
	err := r.RegisterData(&DataDef{Name: "Light", Variants: []Variant{{Name: "Red"}}})
	if err == nil || !strings.Contains(err.Error(), `"Red"`) {
		t.Errorf("expected duplicate constructor error, got %v", err)
	}
	if owner, ok := r.ConstructorOwner("Green"); !ok || owner != "Color" {
		t.Errorf("expected Green owned by Color, got %q", owner)
	}
}

func TestOperationRegistry(t *testing.T) {
	r := semigroupAndMonoid(t)
	if err := r.RegisterImplements(&ImplementsDef{
		Structure: "Monoid",
		TypeArgs:  []ast.TypeExpr{&ast.NamedType{Name: "ℤ"}},
	}); err != nil {
		t.Fatal(err)
	}
	ops := BuildOperations(r)

	if got := ops.Owners("plus"); !reflect.DeepEqual(got, []string{"Semigroup"}) {
		t.Errorf("expected plus owned by [Semigroup], got %v", got)
	}
	if got := ops.Structures("ℤ"); !reflect.DeepEqual(got, []string{"Monoid", "Semigroup"}) {
		t.Errorf("expected ℤ to implement [Monoid Semigroup], got %v", got)
	}
	if err := ops.ValidateApplication("plus", "ℤ"); err != nil {
		t.Errorf("plus on ℤ should be backed by Monoid: %v", err)
	}
	if err := ops.ValidateApplication("plus", "String"); err == nil {
		t.Error("expected plus on String to be rejected")
	}
	if err := ops.ValidateApplication("frobnicate", "ℤ"); err == nil {
		t.Error("expected undeclared operation to be rejected")
	}
}
