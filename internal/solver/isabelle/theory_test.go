package isabelle

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/eatikrh/kleis-sub001/internal/solver"
)

func TestTheoryRender(t *testing.T) {
	th := theory{
		Name:    "Kleis_Verify_7",
		Imports: []string{"Complex_Main", `"/tmp/companions/Group_Proofs"`},
		Decls:   []string{`consts e :: "'a"`},
		Context: []string{"(∀a. (op e a) = a)", "(∀a. (op a e) = a)"},
		Goal:    "(∀x. (op e (op e x)) = x)",
	}
	got := th.Render()
	for _, want := range []string{
		"theory Kleis_Verify_7\n  imports Complex_Main \"/tmp/companions/Group_Proofs\"\nbegin",
		`consts e :: "'a"`,
		"axiomatization where\n  ctx_0: \"(∀a. (op e a) = a)\" and\n  ctx_1: \"(∀a. (op a e) = a)\"\n",
		"lemma kleis_goal: \"(∀x. (op e (op e x)) = x)\"\n  by auto\n\nend\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("theory is missing %q:\n%s", want, got)
		}
	}

	bare := theory{Name: "T", Imports: []string{"Complex_Main"}, Goal: "True"}
	if strings.Contains(bare.Render(), "axiomatization") {
		t.Error("empty context must not render an axiomatization block")
	}
}

func TestImportName(t *testing.T) {
	if got := importName("Group_Proofs.thy"); got != "Group_Proofs" {
		t.Errorf("got %s", got)
	}
	if got := importName("/work/Group_Proofs.thy"); got != `"/work/Group_Proofs"` {
		t.Errorf("got %s", got)
	}
}

func TestInterpret(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status solver.Status
		text   string
	}{
		{"all nodes consolidated", `{"ok":true,"errors":[],"nodes":[{"theory_name":"Draft.T","status":{"ok":true,"finished":true,"consolidated":true},"messages":[]}]}`, solver.Valid, ""},
		{"no nodes", `{"ok":true}`, solver.Valid, ""},
		{"error message in node", `{"ok":false,"nodes":[{"theory_name":"T","status":{"failed":true},"messages":[{"kind":"error","message":"Failed to finish proof⌂:\ngoal (1 subgoal)"}]}]}`, solver.Invalid, "proof method failed"},
		{"failed node without messages", `{"ok":false,"errors":[{"kind":"error","message":"Failed to finish proof"}],"nodes":[{"theory_name":"T","status":{"failed":true}}]}`, solver.Invalid, "proof method failed"},
		{"unfinished node", `{"nodes":[{"theory_name":"T","status":{"finished":false,"consolidated":false}}]}`, solver.Invalid, "proof incomplete"},
		{"cancelled", `{"nodes":[{"theory_name":"T","status":{"canceled":true}}]}`, solver.Unknown, ""},
		{"top-level errors", `{"ok":false,"errors":[{"kind":"error","message":"Timeout after 30s"}]}`, solver.Unknown, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := interpret(json.RawMessage(tt.body), nil)
			if err != nil {
				t.Fatalf("interpret: %v", err)
			}
			if res.Status != tt.status {
				t.Errorf("status %s, want %s (%s)", res.Status, tt.status, res)
			}
			if tt.text != "" && !strings.Contains(res.Counterexample, tt.text) {
				t.Errorf("counterexample %q does not mention %q", res.Counterexample, tt.text)
			}
		})
	}

	if _, err := interpret(json.RawMessage(`[1,2`), nil); err == nil {
		t.Error("malformed body must be a protocol error")
	}
}

func TestClassify(t *testing.T) {
	res, err := classify("Undefined constant: \"foo\"")
	if err != nil || res.Status != solver.Invalid || !strings.Contains(res.Counterexample, "undefined") {
		t.Errorf("undefined: %v %v", res, err)
	}
	_, err = classify("Type unification failed: Clash of types \"real\" and \"bool\"")
	var tm *solver.TypeMismatchError
	if !errors.As(err, &tm) {
		t.Errorf("type error: expected TypeMismatchError, got %v", err)
	}
	_, err = classify("Inner syntax error⌂ at \"⟶ )\"")
	var pf *solver.ProofFailureError
	if !errors.As(err, &pf) {
		t.Errorf("syntax error: expected ProofFailureError, got %v", err)
	}
	res, err = classify("something odd")
	if err != nil || res.Status != solver.Invalid || res.Witness.Raw != "something odd" {
		t.Errorf("fallback: %v %v", res, err)
	}
}

func TestCompanionLemmas(t *testing.T) {
	src := `theory Group_Proofs
  imports Main
begin

lemma left_identity: "e ⊗ a = a"
  by simp

lemma inverse_unique:
  assumes "a ⊗ b = e"
  shows "b = inv a"
proof -
  show ?thesis using assms by auto
qed

theorem hard_one: "P ⟷ Q"
  sorry

lemma abandoned [simp]: "x = x"
  apply simp
  oops

lemma one_liner: "True" by simp

end
`
	proven, unproven, err := companionLemmas(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(proven, ",") != "left_identity,inverse_unique,one_liner" {
		t.Errorf("proven = %v", proven)
	}
	if strings.Join(unproven, ",") != "hard_one,abandoned" {
		t.Errorf("unproven = %v", unproven)
	}
}
