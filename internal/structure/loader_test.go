package structure

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eatikrh/kleis-sub001/internal/ast"
)

// writeDocument creates a structure document in dir and returns its path.
func writeDocument(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func TestLoadAlgebraDocument(t *testing.T) {
	r := NewRegistry()
	goals, diags, err := LoadInto(r, filepath.Join("testdata", "algebra.yaml"))
	if err != nil {
		t.Fatalf("LoadInto: %v", err)
	}
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics:\n%s", diags.Format(""))
	}

	if r.Len() != 3 {
		t.Errorf("expected 3 structures, got %d", r.Len())
	}
	monoid, ok := r.Get("Monoid")
	if !ok {
		t.Fatal("Monoid not registered")
	}
	if monoid.Extends == nil || monoid.Extends.String() != "Semigroup(M)" {
		t.Errorf("expected Monoid extends Semigroup(M), got %v", monoid.Extends)
	}

	assoc := r.Axioms("Semigroup")[0]
	want := "∀(x, y, z). ((x + y) + z) = (x + (y + z))"
	if got := ast.Format(assoc.Prop); got != want {
		t.Errorf("associativity decoded as %q, want %q", got, want)
	}

	inverse := r.Axioms("Field")[0].Prop.(*ast.Quantifier)
	if inverse.Vars[0].Type != "ℝ" {
		t.Errorf("expected a : ℝ, got %+v", inverse.Vars[0])
	}
	if inverse.Where == nil {
		t.Error("expected where clause on inverse axiom")
	}

	ids := r.IdentityElements("Field")
	if len(ids) != 2 || ids[0].Name != "zero" || ids[1].Name != "one" {
		t.Errorf("expected identity elements [zero one], got %+v", ids)
	}
	if fns := r.FunctionDefs("Field"); len(fns) != 1 || fns[0].Name != "double" {
		t.Errorf("expected function double, got %+v", fns)
	}

	color, ok := r.DataType("Color")
	if !ok {
		t.Fatal("Color not registered")
	}
	if len(color.Variants) != 3 || len(color.Variants[2].Fields) != 3 {
		t.Errorf("unexpected Color variants: %+v", color.Variants)
	}
	if color.Variants[2].AccessorName(1) != "Rgb_1" {
		t.Errorf("expected generated accessor Rgb_1, got %s", color.Variants[2].AccessorName(1))
	}

	if len(goals) != 3 {
		t.Fatalf("expected 3 goals, got %d", len(goals))
	}
	if goals[1].Kind != GoalSatisfiable || goals[2].Kind != GoalEquivalent {
		t.Errorf("unexpected goal kinds: %s, %s", goals[1].Kind, goals[2].Kind)
	}
	if !strings.HasSuffix(goals[0].File, "algebra.yaml") {
		t.Errorf("expected goal file to be recorded, got %q", goals[0].File)
	}
}

func TestLoadReportsPositions(t *testing.T) {
	dir := t.TempDir()
	path := writeDocument(t, dir, "bad.yaml", `structures:
  - name: Broken
    axioms:
      - name: no_prop
      - prop: {equals: [a, a]}
    colour: red
`)

	_, diags, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if diags.ErrorCount() != 3 {
		t.Fatalf("expected 3 errors, got %d:\n%s", diags.ErrorCount(), diags.Format(""))
	}
	out := diags.Format("")
	for _, want := range []string{
		"bad.yaml:4:9]: axiom \"no_prop\" has no prop",
		"bad.yaml:5:9]: axiom is missing a name",
		"bad.yaml:6:5]: unknown key \"colour\" in structure",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}

func TestRegisterDuplicateAcrossDocuments(t *testing.T) {
	dir := t.TempDir()
	a := writeDocument(t, dir, "a.yaml", "structures:\n  - name: Group\n")
	b := writeDocument(t, dir, "b.yaml", "structures:\n  - name: Group\n")

	r := NewRegistry()
	_, diags, err := LoadInto(r, a, b)
	if err != nil {
		t.Fatalf("LoadInto: %v", err)
	}
	if !diags.HasErrors() {
		t.Fatal("expected duplicate structure error")
	}
	if !strings.Contains(diags.Format(""), "b.yaml:2:5") {
		t.Errorf("expected error located in b.yaml, got:\n%s", diags.Format(""))
	}
}

func TestDecodeExpressionForms(t *testing.T) {
	doc, diags := Parse([]byte(`goals:
  - name: forms
    prop:
      and:
        - if: {less_than: [a, b]}
          then: true
          else: {string: "no"}
        - let: y
          value: 2
          in: {equals: [y, 2]}
        - match: c
          cases:
            - pattern: Red
              body: true
            - pattern: {Rgb: [r, _, _]}
              body: {greater_than: [r, 0]}
        - list: [1, 2, 3]
        - ascribe: x
          type: ℝ
`))
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics:\n%s", diags.Format("inline"))
	}
	got := ast.Format(doc.Goals[0].Prop)
	for _, want := range []string{
		"if a < b then true else \"no\"",
		"let y = 2 in y = 2",
		"match c { Red => true | Rgb(r, _, _) => r > 0 }",
		"[1, 2, 3]",
		"x : ℝ",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in %q", want, got)
		}
	}
}

func TestDecodeRejectsMultiKeyApplication(t *testing.T) {
	_, diags := Parse([]byte(`goals:
  - name: bad
    prop: {plus: [a, b], minus: [a, b]}
`))
	if !diags.HasErrors() {
		t.Fatal("expected error for ambiguous application")
	}
}
