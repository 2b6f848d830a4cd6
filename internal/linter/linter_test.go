package linter

import (
	"strings"
	"testing"

	"github.com/eatikrh/kleis-sub001/internal/structure"
)

func parseAndLint(t *testing.T, source string) []string {
	t.Helper()
	doc, diags := structure.Parse([]byte(source))
	if diags.HasErrors() {
		t.Fatalf("Parse errors: %s", diags.Format("test"))
	}
	doc.Path = "test.yaml"
	reg := structure.NewRegistry()
	if d := doc.Register(reg); d.HasErrors() {
		t.Fatalf("Register errors: %s", d.Format("test"))
	}

	diag := Lint(doc, reg)
	var warnings []string
	for _, d := range diag.All() {
		if d.File != "test.yaml" {
			t.Errorf("warning not attributed to the document: %+v", d)
		}
		warnings = append(warnings, d.Message)
	}
	return warnings
}

func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

const monoid = `
structures:
  - name: Semigroup
    params: [M]
    operations:
      - name: plus
        type: M × M → M
    axioms:
      - name: associativity
        prop:
          forall: [x, y, z]
          body:
            equals:
              - plus: [{plus: [x, y]}, z]
              - plus: [x, {plus: [y, z]}]
  - name: Monoid
    params: [M]
    extends: Semigroup(M)
    operations:
      - name: e
        type: M
    axioms:
      - name: left_identity
        prop:
          forall: x
          body:
            equals: [{plus: [e, x]}, x]
goals:
  - name: shifted
    prop:
      forall: [x, y]
      body:
        equals: [{plus: [{plus: [e, x]}, y]}, {plus: [e, {plus: [x, y]}]}]
`

func TestCleanDocumentNoWarnings(t *testing.T) {
	warnings := parseAndLint(t, monoid)
	if len(warnings) != 0 {
		t.Errorf("Expected no warnings, got: %v", warnings)
	}
}

// --- Naming ---

func TestStructureNaming(t *testing.T) {
	source := `
structures:
  - name: my_group
    params: [G]
    operations:
      - name: op
        type: G × G → G
    axioms:
      - name: idem
        prop:
          forall: x
          body: {equals: [{op: [x, x]}, x]}
`
	warnings := parseAndLint(t, source)
	if !containsWarning(warnings, "structure 'my_group' should use PascalCase") {
		t.Errorf("Expected naming warning, got: %v", warnings)
	}
}

func TestOperationReadsLikeConstructor(t *testing.T) {
	source := `
data:
  - name: Color
    variants: [Red, green]
structures:
  - name: Palette
    params: [C]
    operations:
      - name: Mix
        type: C × C → C
      - name: Red
        type: C
    axioms:
      - name: mix_red
        prop:
          forall: x
          body: {equals: [{Mix: [Red, x]}, Red]}
`
	warnings := parseAndLint(t, source)
	if !containsWarning(warnings, "'Palette.Mix' starts with an uppercase letter") {
		t.Errorf("Expected uppercase operation warning, got: %v", warnings)
	}
	if !containsWarning(warnings, "'Palette.Red' has the same name as a data constructor") {
		t.Errorf("Expected constructor clash warning, got: %v", warnings)
	}
	if !containsWarning(warnings, "constructor 'Color.green' should use PascalCase") {
		t.Errorf("Expected constructor naming warning, got: %v", warnings)
	}
}

// --- Axioms ---

func TestStructureWithoutAxioms(t *testing.T) {
	source := `
structures:
  - name: Magma
    params: [M]
    operations:
      - name: op
        type: M × M → M
`
	warnings := parseAndLint(t, source)
	if !containsWarning(warnings, "structure 'Magma' has operations but no axioms") {
		t.Errorf("Expected no-axioms warning, got: %v", warnings)
	}
	if !containsWarning(warnings, "'Magma.op' is not constrained") {
		t.Errorf("Expected unused operation warning, got: %v", warnings)
	}
}

func TestOperationUsedByExtendingStructure(t *testing.T) {
	source := `
structures:
  - name: Pointed
    params: [M]
    operations:
      - name: unit
        type: M
  - name: Unital
    params: [M]
    extends: Pointed(M)
    operations:
      - name: mul
        type: M × M → M
    axioms:
      - name: left_unit
        prop:
          forall: x
          body: {equals: [{mul: [unit, x]}, x]}
`
	warnings := parseAndLint(t, source)
	if containsWarning(warnings, "'Pointed.unit' is not constrained") {
		t.Errorf("unit is constrained by Unital, got: %v", warnings)
	}
}

func TestUnboundNameInAxiom(t *testing.T) {
	source := `
structures:
  - name: Shift
    params: [S]
    operations:
      - name: succ
        type: S → S
    axioms:
      - name: moves
        prop:
          forall: x
          body: {neq: [{succ: x}, k]}
`
	warnings := parseAndLint(t, source)
	if !containsWarning(warnings, "axiom 'Shift.moves' uses 'k'") {
		t.Errorf("Expected unbound name warning, got: %v", warnings)
	}
}

// --- Functions ---

func TestUnusedFunctionParam(t *testing.T) {
	source := `
structures:
  - name: Ring
    params: [R]
    operations:
      - name: plus
        type: R × R → R
    axioms:
      - name: comm
        prop:
          forall: [x, y]
          body: {equals: [{plus: [x, y]}, {plus: [y, x]}]}
    functions:
      - name: twice
        params: [a, b, _c]
        body: {plus: [a, a]}
`
	warnings := parseAndLint(t, source)
	if !containsWarning(warnings, "parameter 'b' of 'Ring.twice' is never used") {
		t.Errorf("Expected unused parameter warning, got: %v", warnings)
	}
	if containsWarning(warnings, "parameter '_c'") {
		t.Errorf("underscore parameters are exempt, got: %v", warnings)
	}
}

// --- Goals ---

func TestGoalWithoutStructure(t *testing.T) {
	source := monoid + `  - name: arith
    prop:
      forall: "x : ℤ"
      body: {equals: [{times: [x, 1]}, x]}
  - name: shifted
    prop: {equals: [e, e]}
`
	warnings := parseAndLint(t, source)
	if !containsWarning(warnings, "goal 'arith' uses no structure") {
		t.Errorf("Expected free-standing goal warning, got: %v", warnings)
	}
	if !containsWarning(warnings, "goal 'shifted' is declared more than once") {
		t.Errorf("Expected duplicate goal warning, got: %v", warnings)
	}
}
