package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eatikrh/kleis-sub001/internal/solver"
	"github.com/eatikrh/kleis-sub001/internal/structure"
)

// Status is the verdict on one goal
type Status string

const (
	// Proved: valid, satisfiable or equivalent, depending on the goal kind
	Proved Status = "proved"
	// Unknown: the engine gave up; not a failure
	Unknown Status = "unknown"
	// Refuted: a counterexample exists, no model exists, or the sides differ
	Refuted Status = "refuted"
	Error   Status = "error"
)

// Outcome is the result of running one goal
type Outcome struct {
	Goal structure.Goal
	// Roots are the structures the goal refers to directly; Structures is
	// their full closure.
	Roots      []string
	Structures []string
	Status     Status
	Message    string
	Witness    *solver.Witness
	// Loaded is the number of structures the backend held when the check ran
	Loaded    int
	Companion bool
	Duration  time.Duration
	Err       error
}

// QualifiedName is File:Name, or just Name for goals built in code
func (o *Outcome) QualifiedName() string {
	if o.Goal.File == "" {
		return o.Goal.Name
	}
	return fmt.Sprintf("%s:%s", o.Goal.File, o.Goal.Name)
}

// companionProver is implemented by backends that accept hand-written
// proofs of named goals.
type companionProver interface {
	ProvenByCompanion(name string) bool
}

// RunGoal prepares the goal's context and runs the check its kind asks
// for. Errors are reported in the outcome, never returned.
func (v *Verifier) RunGoal(ctx context.Context, g structure.Goal) *Outcome {
	start := time.Now()
	out := &Outcome{Goal: g}
	defer func() { out.Duration = time.Since(start) }()

	if v.opts.Isolate {
		if err := v.Reset(ctx); err != nil {
			return out.fail(fmt.Errorf("resetting backend: %w", err))
		}
	}

	if cp, ok := v.backend.(companionProver); ok && g.Name != "" && cp.ProvenByCompanion(g.Name) {
		out.Status = Proved
		out.Companion = true
		out.Message = "proved by companion theory"
		v.logger.Info("goal proved by companion", slog.String("goal", g.Name))
		return out
	}

	exprs := g.Exprs()
	if len(exprs) == 0 {
		return out.fail(fmt.Errorf("goal %s has nothing to check", g.Name))
	}
	out.Roots = mergeNames(v.Analyze(exprs...).Structures, g.Structures)
	closure, err := v.Prepare(ctx, g.Structures, exprs...)
	if closure != nil {
		out.Structures = closure.Order
	}
	if err != nil {
		return out.fail(err)
	}
	out.Loaded = v.backend.Stats().LoadedStructures

	switch g.Kind {
	case structure.GoalSatisfiable:
		res, err := v.backend.CheckSatisfiability(ctx, g.Prop)
		if err != nil {
			return out.fail(err)
		}
		out.Witness = res.Witness
		switch res.Status {
		case solver.Satisfiable:
			out.Status = Proved
			if res.Example != "" {
				out.Message = "model: " + res.Example
			}
		case solver.Unsatisfiable:
			out.Status = Refuted
			out.Message = "no model exists"
		default:
			out.Status = Unknown
			out.Message = res.Reason
		}
	case structure.GoalEquivalent:
		eq, err := v.backend.AreEquivalent(ctx, g.Left, g.Right)
		if err != nil {
			return out.fail(err)
		}
		if eq {
			out.Status = Proved
		} else {
			out.Status = Refuted
			out.Message = "expressions differ"
		}
	default:
		res, err := v.backend.VerifyAxiom(ctx, g.Prop)
		if err != nil {
			return out.fail(err)
		}
		out.Witness = res.Witness
		switch res.Status {
		case solver.Valid:
			out.Status = Proved
		case solver.Invalid:
			out.Status = Refuted
			out.Message = "counterexample: " + res.Counterexample
		default:
			out.Status = Unknown
			out.Message = res.Reason
		}
	}

	v.logger.Debug("goal checked",
		slog.String("goal", g.Name),
		slog.String("status", string(out.Status)),
		slog.Int("loaded", out.Loaded))
	return out
}

func (o *Outcome) fail(err error) *Outcome {
	o.Err = err
	o.Message = err.Error()
	o.Status = Error
	var te *solver.TimeoutError
	if errors.As(err, &te) {
		o.Status = Unknown
	}
	return o
}
