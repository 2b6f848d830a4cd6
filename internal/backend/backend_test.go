package backend

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/eatikrh/kleis-sub001/internal/config"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{"z3", "isabelle"} {
		o, err := Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", name, err)
		}
		if o.Name() != name {
			t.Errorf("opener for %s reports %s", name, o.Name())
		}
		if caps := o.Capabilities(); caps == nil || caps.Solver.Name != name {
			t.Errorf("%s manifest: %+v", name, caps)
		}
	}
	if _, err := Lookup("cvc5"); err == nil || !strings.Contains(err.Error(), "available") {
		t.Errorf("expected unknown backend error, got %v", err)
	}
	if got := strings.Join(Names(), ","); got != "isabelle,z3" {
		t.Errorf("Names() = %s", got)
	}
}

func TestFactoryOpensIndependentZ3Sessions(t *testing.T) {
	if _, err := exec.LookPath("z3"); err != nil {
		t.Skip("z3 not installed")
	}
	cfg := config.Default()
	cfg.Z3.SkipVersionCheck = true
	f, err := NewFactory("z3", cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a, err := f(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()
	b, err := f(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()
	if err := a.LoadIdentityElement(ctx, "only_in_a", nil); err != nil {
		t.Fatal(err)
	}
	if b.Stats().IdentityElements != 0 {
		t.Error("sessions share state")
	}
}

func TestFactoryUnknownBackend(t *testing.T) {
	if _, err := NewFactory("vampire", config.Default(), nil); err == nil {
		t.Error("expected an error")
	}
}
