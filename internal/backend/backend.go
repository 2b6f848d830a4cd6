// Package backend builds solver backends by name from configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/eatikrh/kleis-sub001/internal/config"
	"github.com/eatikrh/kleis-sub001/internal/solver"
)

// Opener starts one backend instance from configuration
type Opener interface {
	// Name returns the backend name (e.g., "z3", "isabelle")
	Name() string
	// Open starts a fresh session. Each call returns an independent instance.
	Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (solver.Backend, error)
	// Capabilities returns the backend's manifest without starting it.
	Capabilities() *solver.Capabilities
}

var openers = map[string]Opener{
	"z3":       &Z3Backend{},
	"isabelle": &IsabelleBackend{},
}

// Lookup returns the opener registered under name
func Lookup(name string) (Opener, error) {
	o, ok := openers[name]
	if !ok {
		return nil, fmt.Errorf("unknown solver backend %q (available: %v)", name, Names())
	}
	return o, nil
}

// Names lists the registered backends
func Names() []string {
	out := make([]string, 0, len(openers))
	for n := range openers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Factory opens backends of one kind; batch workers each call it once.
type Factory func(ctx context.Context) (solver.Backend, error)

// NewFactory binds an opener to a configuration
func NewFactory(name string, cfg *config.Config, logger *slog.Logger) (Factory, error) {
	o, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) (solver.Backend, error) {
		return o.Open(ctx, cfg, logger)
	}, nil
}
