package smtlib

import (
	"io"
	"strings"
	"testing"
)

func TestReadModel(t *testing.T) {
	src := `sat
(
  (define-fun x () Real
    0.0)
  (define-fun |weird name| () Int
    (- 3))
)
(error "line 1 column 5: unknown constant ""q""")
`
	rd := NewReader(strings.NewReader(src))

	first, err := rd.Read()
	if err != nil || !first.IsAtom("sat") {
		t.Fatalf("expected sat, got %v (%v)", first, err)
	}

	model, err := rd.Read()
	if err != nil {
		t.Fatalf("reading model: %v", err)
	}
	if len(model.List) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(model.List))
	}
	if model.List[0].Head() != "define-fun" || model.List[0].List[1].Atom != "x" {
		t.Errorf("unexpected first definition: %s", model.List[0])
	}
	if got := model.List[1].List[1].Atom; got != "|weird name|" {
		t.Errorf("expected quoted symbol, got %q", got)
	}
	if got := model.List[1].List[4].String(); got != "(- 3)" {
		t.Errorf("expected (- 3), got %q", got)
	}

	errExpr, err := rd.Read()
	if err != nil {
		t.Fatalf("reading error: %v", err)
	}
	if errExpr.Head() != "error" || !errExpr.List[1].IsString {
		t.Fatalf("expected (error \"...\"), got %s", errExpr)
	}
	if want := `line 1 column 5: unknown constant "q"`; errExpr.List[1].Atom != want {
		t.Errorf("expected %q, got %q", want, errExpr.List[1].Atom)
	}

	if _, err := rd.Read(); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestReadUnbalanced(t *testing.T) {
	_, err := Parse("(assert (= x 1)")
	if err == nil {
		t.Fatal("expected error for unbalanced input")
	}
	if _, err := Parse(")"); err == nil {
		t.Fatal("expected error for stray paren")
	}
}

func TestRoundTripPrinting(t *testing.T) {
	src := `(assert (forall ((x Int)) (=> (> x 0) (= (f x) "a""b"))))`
	s, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.String() != src {
		t.Errorf("expected %s, got %s", src, s.String())
	}
}

func TestComments(t *testing.T) {
	all, err := ParseAll("; leading comment\n(check-sat) ; trailing\n(get-model)")
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	if len(all) != 2 || all[0].Head() != "check-sat" || all[1].Head() != "get-model" {
		t.Errorf("unexpected parse: %v", all)
	}
}

func TestSymbol(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plus", "plus"},
		{"x1", "x1"},
		{"1x", "|1x|"},
		{"ℝ", "|ℝ|"},
		{"has space", "|has space|"},
		{"a|b", "|a_b|"},
		{"inv!0", "inv!0"},
	}
	for _, tt := range tests {
		if got := Symbol(tt.in); got != tt.want {
			t.Errorf("Symbol(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if Unquote("|ℝ|") != "ℝ" || Unquote("x") != "x" {
		t.Error("Unquote did not strip bars")
	}
}

func TestNumeral(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		isReal bool
		err    bool
	}{
		{"42", "42", false, false},
		{"-3", "(- 3)", false, false},
		{"1.5", "1.5", true, false},
		{"-0.25", "(- 0.25)", true, false},
		{"1.", "", false, true},
		{"abc", "", false, true},
		{"-", "", false, true},
	}
	for _, tt := range tests {
		got, isReal, err := Numeral(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("Numeral(%q) error = %v, wantErr %v", tt.in, err, tt.err)
			continue
		}
		if got != tt.want || isReal != tt.isReal {
			t.Errorf("Numeral(%q) = %q, %v; want %q, %v", tt.in, got, isReal, tt.want, tt.isReal)
		}
	}
}
