package isabelle

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/eatikrh/kleis-sub001/internal/solver"
)

// theory is the text of one scratch theory
type theory struct {
	Name    string
	Imports []string
	Decls   []string // datatype, consts and fun blocks, in order
	Context []string // Isar propositions asserted as axioms
	Goal    string
}

// Render writes the theory source
func (t theory) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "theory %s\n  imports %s\nbegin\n\n", t.Name, strings.Join(t.Imports, " "))
	for _, d := range t.Decls {
		sb.WriteString(d)
		sb.WriteString("\n\n")
	}
	if len(t.Context) > 0 {
		sb.WriteString("axiomatization where\n")
		for i, c := range t.Context {
			fmt.Fprintf(&sb, "  ctx_%d: %s", i, quote(c))
			if i < len(t.Context)-1 {
				sb.WriteString(" and")
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "lemma kleis_goal: %s\n  by auto\n\nend\n", quote(t.Goal))
	return sb.String()
}

func quote(isar string) string {
	return `"` + strings.ReplaceAll(isar, `"`, `\<quote>`) + `"`
}

// importName is how a companion file is named in an imports line: its
// path without the .thy suffix, quoted when it is not a bare name.
func importName(path string) string {
	base := strings.TrimSuffix(path, ".thy")
	if !strings.ContainsAny(base, `/\ `) {
		return base
	}
	return `"` + filepath.ToSlash(base) + `"`
}

// node status inside a use_theories result
type nodeStatus struct {
	OK           bool `json:"ok"`
	Failed       bool `json:"failed"`
	Finished     bool `json:"finished"`
	Consolidated bool `json:"consolidated"`
	Canceled     bool `json:"canceled"`
}

type proverMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type theoryNode struct {
	TheoryName string          `json:"theory_name"`
	Status     *nodeStatus     `json:"status"`
	Messages   []proverMessage `json:"messages"`
}

// theoriesResult is the FINISHED body of use_theories
type theoriesResult struct {
	OK     *bool           `json:"ok"`
	Errors []proverMessage `json:"errors"`
	Nodes  []theoryNode    `json:"nodes"`
}

// interpret turns a finished use_theories task into a verdict. Notes seen
// while waiting are consulted for error text when the result has none.
func interpret(body json.RawMessage, notes []Message) (solver.VerificationResult, error) {
	var res theoriesResult
	if len(body) > 0 {
		if err := json.Unmarshal(body, &res); err != nil {
			return solver.VerificationResult{}, &solver.ProtocolError{Backend: "isabelle", Detail: "malformed use_theories result: " + err.Error()}
		}
	}

	for _, n := range res.Nodes {
		for _, m := range n.Messages {
			if m.Kind == "error" {
				return classify(m.Message)
			}
		}
		if st := n.Status; st != nil {
			switch {
			case st.Canceled:
				return solver.UnknownResult("theory " + n.TheoryName + " was cancelled"), nil
			case st.Failed:
				return classify(firstError(res.Errors, notes, "proof failed"))
			case !st.Finished && !st.Consolidated:
				return failedProof("proof incomplete"), nil
			}
		}
	}
	if msgs := errorTexts(res.Errors); len(msgs) > 0 {
		return classify(strings.Join(msgs, "; "))
	}
	if res.OK != nil && !*res.OK {
		return classify(firstError(nil, notes, "theory not accepted"))
	}
	return solver.ValidResult(), nil
}

func errorTexts(msgs []proverMessage) []string {
	var out []string
	for _, m := range msgs {
		if m.Message != "" && (m.Kind == "" || m.Kind == "error") {
			out = append(out, m.Message)
		}
	}
	return out
}

func firstError(errs []proverMessage, notes []Message, fallback string) string {
	if msgs := errorTexts(errs); len(msgs) > 0 {
		return msgs[0]
	}
	for _, n := range notes {
		if n.Field("kind") == "error" {
			return n.Text()
		}
	}
	return fallback
}

func failedProof(msg string) solver.VerificationResult {
	return solver.VerificationResult{Status: solver.Invalid, Counterexample: msg, Witness: solver.RawWitness(msg)}
}

// classify maps prover error text onto a verdict or a typed error
func classify(msg string) (solver.VerificationResult, error) {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "Failed to finish proof") || strings.Contains(lower, "proof failed"):
		return failedProof("proof method failed: " + msg), nil
	case strings.Contains(msg, "Type unification failed") || strings.Contains(lower, "type error"):
		return solver.VerificationResult{}, &solver.TypeMismatchError{Context: "isabelle", Expected: "well-typed formula", Got: firstLine(msg)}
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out"):
		return solver.UnknownResult(firstLine(msg)), nil
	case strings.Contains(lower, "syntax error"):
		return solver.VerificationResult{}, &solver.ProofFailureError{Message: "syntax error in translated formula: " + msg}
	case strings.Contains(lower, "undefined"):
		return failedProof("undefined symbol or type: " + msg), nil
	}
	return failedProof(msg), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// companionLemmas lists the lemma and theorem names in a theory source
// that are closed without sorry or oops.
func companionLemmas(r io.Reader) (proven, unproven []string, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	current := ""
	skipped := false
	finish := func() {
		if current == "" {
			return
		}
		if skipped {
			unproven = append(unproven, current)
		} else {
			proven = append(proven, current)
		}
		current, skipped = "", false
	}
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if name, ok := lemmaName(line); ok {
			finish()
			current = name
		}
		if current == "" {
			continue
		}
		fields := strings.Fields(line)
		for _, f := range fields {
			if f == "sorry" || f == "oops" {
				skipped = true
			}
		}
		if len(fields) > 0 {
			switch fields[0] {
			case "qed", "done", "by", "sorry", "oops", "apply", "end":
				if fields[0] != "apply" {
					finish()
				}
			}
		}
	}
	finish()
	return proven, unproven, sc.Err()
}

func lemmaName(line string) (string, bool) {
	for _, kw := range []string{"lemma ", "theorem ", "corollary "} {
		if !strings.HasPrefix(line, kw) {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(line, kw))
		end := strings.IndexAny(rest, " :[")
		if end < 0 {
			end = len(rest)
		}
		name := rest[:end]
		if name == "" || strings.HasPrefix(name, `"`) {
			return "", false
		}
		return name, true
	}
	return "", false
}
