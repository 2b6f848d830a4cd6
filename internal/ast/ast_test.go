package ast

import (
	"reflect"
	"testing"
)

func TestFormatInfixAndPrefix(t *testing.T) {
	tests := []struct {
		name string
		expr Expression
		want string
	}{
		{
			name: "simple equation",
			expr: NewOp("equals", NewOp("plus", NewObject("x"), NewConst("1")), NewObject("x")),
			want: "(x + 1) = x",
		},
		{
			name: "function application",
			expr: NewOp("inverse", NewObject("g")),
			want: "inverse(g)",
		},
		{
			name: "negative constant operand",
			expr: NewOp("times", NewConst("-2"), NewObject("y")),
			want: "(-2) × y",
		},
		{
			name: "logical not",
			expr: NewOp("not", NewOp("equals", NewObject("a"), NewObject("b"))),
			want: "¬(a = b)",
		},
		{
			name: "constructor value",
			expr: NewOp("Rgb", NewConst("1"), NewConst("2"), NewConst("3")),
			want: "Rgb(1, 2, 3)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.expr); got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatQuantifierWithWhere(t *testing.T) {
	q := &Quantifier{
		Kind:  ForAll,
		Vars:  TypedVars("ℝ", "x"),
		Where: NewOp("neq", NewObject("x"), NewConst("0")),
		Body:  NewOp("equals", NewOp("times", NewObject("x"), NewOp("inv", NewObject("x"))), NewConst("1")),
	}
	want := "∀(x : ℝ where x ≠ 0). (x × inv(x)) = 1"
	if got := Format(q); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestFreeObjects(t *testing.T) {
	// ∀x. e + x = x  with e free
	expr := NewForAll(Vars("x"), NewOp("equals", NewOp("plus", NewObject("e"), NewObject("x")), NewObject("x")))
	got := FreeObjects(expr)
	if !reflect.DeepEqual(got, []string{"e"}) {
		t.Errorf("expected [e], got %v", got)
	}

	let := &Let{
		Pattern: &PatternVar{Name: "y"},
		Value:   NewObject("z"),
		Body:    NewOp("plus", NewObject("y"), NewObject("w")),
	}
	got = FreeObjects(let)
	if !reflect.DeepEqual(got, []string{"w", "z"}) {
		t.Errorf("expected [w z], got %v", got)
	}
}

func TestFreeObjectsShadowing(t *testing.T) {
	// x is bound inside the inner quantifier only
	expr := NewOp("and",
		NewForAll(Vars("x"), NewOp("p", NewObject("x"))),
		NewOp("p", NewObject("x")),
	)
	got := FreeObjects(expr)
	if !reflect.DeepEqual(got, []string{"x"}) {
		t.Errorf("expected [x], got %v", got)
	}
}

func TestOperationNames(t *testing.T) {
	expr := &Conditional{
		Cond: NewOp("less_than", NewObject("a"), NewObject("b")),
		Then: NewOp("plus", NewObject("a"), NewObject("b")),
		Else: NewOp("plus", NewObject("b"), NewObject("a")),
	}
	got := OperationNames(expr)
	want := []string{"less_than", "plus"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		src   string
		want  string
		arity int
	}{
		{"ℝ", "ℝ", 0},
		{"M × M → M", "M × M → M", 2},
		{"M -> M", "M → M", 1},
		{"List(Int)", "List(Int)", 0},
		{"(M → M) → M", "(M → M) → M", 1},
		{"Matrix(m, n, ℝ) × Matrix(m, n, ℝ) → Matrix(m, n, ℝ)", "Matrix(m, n, ℝ) × Matrix(m, n, ℝ) → Matrix(m, n, ℝ)", 2},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			typ, err := ParseType(tt.src)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if typ.String() != tt.want {
				t.Errorf("String() = %q, want %q", typ.String(), tt.want)
			}
			if Arity(typ) != tt.arity {
				t.Errorf("Arity() = %d, want %d", Arity(typ), tt.arity)
			}
		})
	}
}

func TestParseTypeErrors(t *testing.T) {
	for _, src := range []string{"", "M →", "List(Int", "× M"} {
		if _, err := ParseType(src); err == nil {
			t.Errorf("expected error for %q", src)
		}
	}
}
