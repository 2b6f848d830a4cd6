package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/eatikrh/kleis-sub001/internal/ast"
	"github.com/eatikrh/kleis-sub001/internal/solver"
	"github.com/eatikrh/kleis-sub001/internal/structure"
)

func TestBatch(t *testing.T) {
	reg, goals := loadAlgebra(t)
	var all []structure.Goal
	for i := 0; i < 4; i++ {
		for _, name := range []string{"shifted_identity", "red_exists", "double_is_sum", "meet_self", "scale_twice"} {
			g := goals[name]
			g.Name = fmt.Sprintf("%s_%d", name, i)
			all = append(all, g)
		}
	}

	var mu sync.Mutex
	var opened []*fakeBackend
	open := func(context.Context) (solver.Backend, error) {
		fb := newFake()
		fb.verify = func(e ast.Expression) (solver.VerificationResult, error) {
			if strings.Contains(ast.Format(e), "meet") {
				return solver.UnknownResult("incomplete quantifiers"), nil
			}
			return solver.ValidResult(), nil
		}
		mu.Lock()
		opened = append(opened, fb)
		mu.Unlock()
		return fb, nil
	}

	outcomes, err := Batch(context.Background(), reg, open, all, BatchOptions{Workers: 3})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(opened) != 3 {
		t.Errorf("expected one backend per worker, opened %d", len(opened))
	}
	for _, fb := range opened {
		if !fb.closed {
			t.Error("backend left open")
		}
	}
	for i, o := range outcomes {
		if o == nil || o.Goal.Name != all[i].Name {
			t.Fatalf("outcome %d out of order: %+v", i, o)
		}
		want := Proved
		if strings.HasPrefix(o.Goal.Name, "meet_self") {
			want = Unknown
		}
		if o.Status != want {
			t.Errorf("%s: %s, want %s (%s)", o.Goal.Name, o.Status, want, o.Message)
		}
	}
	if s := Summary(outcomes); s[Proved] != 16 || s[Unknown] != 4 {
		t.Errorf("summary %v", s)
	}
}

func TestBatchOpenFailure(t *testing.T) {
	reg, goals := loadAlgebra(t)
	open := func(context.Context) (solver.Backend, error) {
		return nil, errors.New("z3 not found")
	}
	_, err := Batch(context.Background(), reg, open, []structure.Goal{goals["meet_self"], goals["scale_twice"]}, BatchOptions{Workers: 4})
	if err == nil || !strings.Contains(err.Error(), "z3 not found") {
		t.Errorf("expected open error, got %v", err)
	}
}

func TestBatchEmpty(t *testing.T) {
	reg, _ := loadAlgebra(t)
	open := func(context.Context) (solver.Backend, error) {
		t.Error("no backend should be opened for an empty batch")
		return newFake(), nil
	}
	outcomes, err := Batch(context.Background(), reg, open, nil, BatchOptions{Workers: 2})
	if err != nil || len(outcomes) != 0 {
		t.Errorf("empty batch: %v %v", outcomes, err)
	}
}
