package solver

import (
	"strings"

	"github.com/eatikrh/kleis-sub001/internal/ast"
)

// Status of a validity check
type Status int

const (
	Valid Status = iota
	Invalid
	Unknown
)

func (s Status) String() string {
	switch s {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// VerificationResult is the outcome of VerifyAxiom. Counterexample carries
// the rendered witness for Invalid results.
type VerificationResult struct {
	Status         Status
	Counterexample string
	Witness        *Witness
	Reason         string // why Unknown, when the engine says
}

// ValidResult is the Valid outcome
func ValidResult() VerificationResult { return VerificationResult{Status: Valid} }

// InvalidResult builds an Invalid outcome from a witness
func InvalidResult(w *Witness) VerificationResult {
	return VerificationResult{Status: Invalid, Witness: w, Counterexample: w.String()}
}

// UnknownResult builds an Unknown outcome
func UnknownResult(reason string) VerificationResult {
	return VerificationResult{Status: Unknown, Reason: reason}
}

func (r VerificationResult) String() string {
	switch r.Status {
	case Invalid:
		return "Invalid: " + r.Counterexample
	case Unknown:
		if r.Reason != "" {
			return "Unknown (" + r.Reason + ")"
		}
		return "Unknown"
	}
	return "Valid"
}

// SatStatus of a satisfiability check
type SatStatus int

const (
	Satisfiable SatStatus = iota
	Unsatisfiable
	SatUnknown
)

func (s SatStatus) String() string {
	switch s {
	case Satisfiable:
		return "satisfiable"
	case Unsatisfiable:
		return "unsatisfiable"
	default:
		return "unknown"
	}
}

// SatisfiabilityResult is the outcome of CheckSatisfiability
type SatisfiabilityResult struct {
	Status  SatStatus
	Example string
	Witness *Witness
	Reason  string
}

// SatisfiableResult builds a Satisfiable outcome from a witness
func SatisfiableResult(w *Witness) SatisfiabilityResult {
	return SatisfiabilityResult{Status: Satisfiable, Witness: w, Example: w.String()}
}

func (r SatisfiabilityResult) String() string {
	switch r.Status {
	case Satisfiable:
		return "Satisfiable: " + r.Example
	case Unsatisfiable:
		return "Unsatisfiable"
	}
	if r.Reason != "" {
		return "Unknown (" + r.Reason + ")"
	}
	return "Unknown"
}

// Binding is one variable of a witness
type Binding struct {
	Name  string
	Value ast.Expression
}

// Witness is a counterexample or satisfying assignment. Raw keeps the
// engine's own model text for when no structured bindings are available.
type Witness struct {
	Bindings []Binding
	Raw      string
}

// RawWitness builds a witness that only carries the engine's model text
func RawWitness(raw string) *Witness {
	return &Witness{Raw: raw}
}

// HasBindings reports whether structured bindings were extracted
func (w *Witness) HasBindings() bool {
	return w != nil && len(w.Bindings) > 0
}

// Lookup returns the value bound to name
func (w *Witness) Lookup(name string) (ast.Expression, bool) {
	if w == nil {
		return nil, false
	}
	for _, b := range w.Bindings {
		if b.Name == name {
			return b.Value, true
		}
	}
	return nil, false
}

// String renders `x = 0, y = Red` or the raw model when there are no bindings
func (w *Witness) String() string {
	if w == nil {
		return ""
	}
	if len(w.Bindings) == 0 {
		return w.Raw
	}
	parts := make([]string, len(w.Bindings))
	for i, b := range w.Bindings {
		parts[i] = b.Name + " = " + ast.Format(b.Value)
	}
	return strings.Join(parts, ", ")
}

// Stats is a snapshot of a backend session's bookkeeping
type Stats struct {
	LoadedStructures   int
	DeclaredOperations int
	AssertionCount     int
	IdentityElements   int
	ScopeDepth         int
}
