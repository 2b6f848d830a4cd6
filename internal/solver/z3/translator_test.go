package z3

import (
	"errors"
	"strings"
	"testing"

	"github.com/eatikrh/kleis-sub001/internal/ast"
	"github.com/eatikrh/kleis-sub001/internal/solver"
)

func newTestTranslator() *translator {
	return newTranslator(Capabilities(), nil)
}

func TestTranslateNativeArithmetic(t *testing.T) {
	tr := newTestTranslator()
	env := map[string]term{
		"x": {text: "x", sort: sortInt},
		"r": {text: "r", sort: sortReal},
	}
	tests := []struct {
		expr ast.Expression
		want string
		sort string
	}{
		{ast.NewOp("plus", ast.NewObject("x"), ast.NewConst("1")), "(+ x 1)", sortInt},
		{ast.NewOp("plus", ast.NewObject("x"), ast.NewObject("r")), "(+ (to_real x) r)", sortReal},
		{ast.NewOp("divide", ast.NewObject("x"), ast.NewConst("2")), "(/ (to_real x) (to_real 2))", sortReal},
		{ast.NewOp("negate", ast.NewConst("-3")), "(- (- 3))", sortInt},
		{ast.NewOp("equals", ast.NewObject("x"), ast.NewConst("0")), "(= x 0)", sortBool},
		{ast.NewOp("neq", ast.NewObject("r"), ast.NewConst("0")), "(distinct r (to_real 0))", sortBool},
		{ast.NewOp("≤", ast.NewObject("x"), ast.NewConst("2")), "(<= x 2)", sortBool},
		{ast.NewOp("implies", ast.NewObject("true"), ast.NewObject("false")), "(=> true false)", sortBool},
	}
	for _, tt := range tests {
		got, err := tr.translate(tt.expr, env, "")
		if err != nil {
			t.Errorf("%s: %v", ast.Format(tt.expr), err)
			continue
		}
		if got.text != tt.want || got.sort != tt.sort {
			t.Errorf("%s: got %s : %s, want %s : %s", ast.Format(tt.expr), got.text, got.sort, tt.want, tt.sort)
		}
	}
	if cmds := tr.commit(); len(cmds) != 0 {
		t.Errorf("native operations must not declare anything, got %v", cmds)
	}
}

func TestUninterpretedFunctionDeclaredOnce(t *testing.T) {
	tr := newTestTranslator()
	env := map[string]term{"x": {text: "x", sort: sortReal}}

	// compose(x, x) = x, then compose again
	e := ast.NewOp("equals", ast.NewOp("compose", ast.NewObject("x"), ast.NewObject("x")), ast.NewObject("x"))
	got, err := tr.goal(e, env)
	if err != nil {
		t.Fatalf("goal: %v", err)
	}
	if got.text != "(= (compose x x) x)" {
		t.Errorf("unexpected term %s", got.text)
	}
	cmds := tr.commit()
	if len(cmds) != 1 || cmds[0] != "(declare-fun compose (Real Real) Real)" {
		t.Fatalf("expected one declaration, got %v", cmds)
	}

	if _, err := tr.goal(e, env); err != nil {
		t.Fatalf("second goal: %v", err)
	}
	if cmds := tr.commit(); len(cmds) != 0 {
		t.Errorf("compose must not be declared twice, got %v", cmds)
	}

	_, err = tr.translate(ast.NewOp("compose", ast.NewObject("x")), env, "")
	if err == nil || !strings.Contains(err.Error(), "declared with 2") {
		t.Errorf("expected arity error, got %v", err)
	}
}

func TestUninterpretedPredicateInBooleanContext(t *testing.T) {
	tr := newTestTranslator()
	env := map[string]term{"x": {text: "x", sort: sortInt}}
	e := ast.NewOp("and", ast.NewOp("is_prime", ast.NewObject("x")), ast.NewObject("true"))
	got, err := tr.goal(e, env)
	if err != nil {
		t.Fatalf("goal: %v", err)
	}
	if got.text != "(and (is_prime x) true)" {
		t.Errorf("unexpected term %s", got.text)
	}
	if cmds := tr.commit(); len(cmds) != 1 || !strings.HasSuffix(cmds[0], "(Int) Bool)") {
		t.Errorf("expected a predicate declaration, got %v", cmds)
	}
}

func TestRollbackForgetsDeclarations(t *testing.T) {
	tr := newTestTranslator()
	// f(x) = q where q is undefined
	e := ast.NewOp("equals", ast.NewOp("f", ast.NewConst("1")), ast.NewObject("q"))
	_, err := tr.goal(e, nil)
	var undef *solver.UndefinedSymbolError
	if !errors.As(err, &undef) || undef.Name != "q" {
		t.Fatalf("expected undefined symbol q, got %v", err)
	}
	tr.rollback()
	if tr.lookupFunc("f") != nil {
		t.Error("f must not survive a rollback")
	}
	if cmds := tr.commit(); len(cmds) != 0 {
		t.Errorf("expected no pending declarations, got %v", cmds)
	}
}

func TestQuantifierWhereClause(t *testing.T) {
	tr := newTestTranslator()
	forall := &ast.Quantifier{
		Kind:  ast.ForAll,
		Vars:  ast.TypedVars("ℝ", "a"),
		Where: ast.NewOp("neq", ast.NewObject("a"), ast.NewConst("0")),
		Body:  ast.NewOp("greater_than", ast.NewOp("times", ast.NewObject("a"), ast.NewObject("a")), ast.NewConst("0")),
	}
	got, err := tr.goal(forall, nil)
	if err != nil {
		t.Fatalf("goal: %v", err)
	}
	want := "(forall ((a!1 Real)) (=> (distinct a!1 (to_real 0)) (> (* a!1 a!1) (to_real 0))))"
	if got.text != want {
		t.Errorf("got  %s\nwant %s", got.text, want)
	}

	exists := *forall
	exists.Kind = ast.Exists
	got, err = tr.goal(&exists, nil)
	if err != nil {
		t.Fatalf("goal: %v", err)
	}
	want = "(exists ((a!1 Real)) (=> (distinct a!1 (to_real 0)) (> (* a!1 a!1) (to_real 0))))"
	if got.text != want {
		t.Errorf("got  %s\nwant %s", got.text, want)
	}
}

func TestTranslationErrors(t *testing.T) {
	tr := newTestTranslator()
	env := map[string]term{"x": {text: "x", sort: sortInt}}
	tests := []struct {
		name string
		expr ast.Expression
		want interface{}
	}{
		{"placeholder", &ast.Placeholder{ID: 1}, &solver.UnsupportedError{}},
		{"non-boolean condition", &ast.Conditional{Cond: ast.NewObject("x"), Then: ast.NewConst("1"), Else: ast.NewConst("2")}, &solver.TypeMismatchError{}},
		{"non-boolean goal", ast.NewOp("plus", ast.NewObject("x"), ast.NewConst("1")), &solver.TypeMismatchError{}},
		{"undefined", ast.NewOp("equals", ast.NewObject("y"), ast.NewConst("1")), &solver.UndefinedSymbolError{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tr.goal(tt.expr, env)
			tr.rollback()
			switch tt.want.(type) {
			case *solver.UnsupportedError:
				var e *solver.UnsupportedError
				if !errors.As(err, &e) {
					t.Errorf("expected UnsupportedError, got %v", err)
				}
			case *solver.TypeMismatchError:
				var e *solver.TypeMismatchError
				if !errors.As(err, &e) {
					t.Errorf("expected TypeMismatchError, got %v", err)
				}
			case *solver.UndefinedSymbolError:
				var e *solver.UndefinedSymbolError
				if !errors.As(err, &e) {
					t.Errorf("expected UndefinedSymbolError, got %v", err)
				}
			}
		})
	}
}

func TestMatchOverDatatype(t *testing.T) {
	tr := newTestTranslator()
	color := &datatype{name: "Color", sort: "Color"}
	red := &dtVariant{name: "Red", symbol: "Red", owner: color}
	rgb := &dtVariant{name: "Rgb", symbol: "Rgb", owner: color, fields: []dtField{{accessor: "Rgb_0", sort: sortInt}}}
	color.variants = []*dtVariant{red, rgb}
	tr.datatypes["Color"] = color
	tr.constructors["Red"] = red
	tr.constructors["Rgb"] = rgb

	env := map[string]term{"c": {text: "c", sort: "Color"}}
	m := &ast.Match{
		Scrutinee: ast.NewObject("c"),
		Cases: []ast.MatchCase{
			{Pattern: &ast.PatternConstructor{Name: "Red"}, Body: ast.NewConst("0")},
			{Pattern: &ast.PatternConstructor{Name: "Rgb", Args: []ast.Pattern{&ast.PatternVar{Name: "r"}}}, Body: ast.NewObject("r")},
		},
	}
	got, err := tr.translate(m, env, "")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if want := "(ite ((_ is Red) c) 0 (Rgb_0 c))"; got.text != want || got.sort != sortInt {
		t.Errorf("got %s : %s, want %s", got.text, got.sort, want)
	}

	obj, err := tr.translate(ast.NewObject("Red"), nil, "")
	if err != nil || obj.text != "Red" || obj.sort != "Color" {
		t.Errorf("nullary constructor resolved to %v, %v", obj, err)
	}
	if _, err := tr.translate(ast.NewObject("Rgb"), nil, ""); err == nil {
		t.Error("constructor with fields used bare must fail")
	}
}

func TestListTranslation(t *testing.T) {
	tr := newTestTranslator()
	l := &ast.List{Elements: []ast.Expression{ast.NewConst("1"), ast.NewConst("2.5")}}
	got, err := tr.translate(l, nil, "")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	want := "(kcons (to_real 1) (kcons 2.5 (as knil (KList Real))))"
	if got.text != want || got.sort != "(KList Real)" {
		t.Errorf("got %s : %s", got.text, got.sort)
	}
	cmds := tr.commit()
	if len(cmds) != 1 || cmds[0] != listDatatype {
		t.Errorf("expected list datatype declaration, got %v", cmds)
	}
	if _, err := tr.translate(&ast.List{}, nil, ""); err != nil {
		t.Fatal(err)
	}
	if cmds := tr.commit(); len(cmds) != 0 {
		t.Errorf("list datatype declared twice: %v", cmds)
	}
}

func TestLetInlinesValue(t *testing.T) {
	tr := newTestTranslator()
	l := &ast.Let{
		Pattern: &ast.PatternVar{Name: "y"},
		Value:   ast.NewConst("2"),
		Type:    "ℝ",
		Body:    ast.NewOp("equals", ast.NewObject("y"), ast.NewConst("2.0")),
	}
	got, err := tr.goal(l, nil)
	if err != nil {
		t.Fatalf("goal: %v", err)
	}
	if got.text != "(= (to_real 2) 2.0)" {
		t.Errorf("unexpected term %s", got.text)
	}
}

func TestReservedNamesAreRenamed(t *testing.T) {
	if got := declSymbol("div"); got != "kleis_div" {
		t.Errorf("declSymbol(div) = %s", got)
	}
	if got := declSymbol("compose"); got != "compose" {
		t.Errorf("declSymbol(compose) = %s", got)
	}
}

func TestInferFreeSorts(t *testing.T) {
	tr := newTestTranslator()
	x, y, p, n := ast.NewObject("x"), ast.NewObject("y"), ast.NewObject("p"), ast.NewObject("n")
	expr := ast.NewOp("and",
		ast.NewOp("greater_than", ast.NewOp("plus", x, ast.NewConst("0.5")), y),
		p,
		ast.NewOp("less_than", n, ast.NewConst("3")))
	free := map[string]bool{"x": true, "y": true, "p": true, "n": true}

	got := tr.inferFreeSorts(free, expr)
	want := map[string]string{"x": sortReal, "y": sortReal, "p": sortBool}
	for name, sort := range want {
		if got[name] != sort {
			t.Errorf("%s: got %q, want %q", name, got[name], sort)
		}
	}
	if _, ok := got["n"]; ok {
		t.Errorf("n has no evidence and should be left to the default, got %q", got["n"])
	}
}
