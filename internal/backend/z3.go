package backend

import (
	"context"
	"log/slog"

	"github.com/eatikrh/kleis-sub001/internal/config"
	"github.com/eatikrh/kleis-sub001/internal/solver"
	"github.com/eatikrh/kleis-sub001/internal/solver/z3"
)

// Z3Backend opens z3 sessions
type Z3Backend struct{}

// Name returns the backend name.
func (b *Z3Backend) Name() string {
	return "z3"
}

// Open starts a z3 process with the z3 section of cfg.
func (b *Z3Backend) Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (solver.Backend, error) {
	return z3.New(ctx, z3.Options{
		Path:             cfg.Z3.Path,
		Timeout:          cfg.Z3.Timeout,
		MinVersion:       cfg.Z3.MinVersion,
		SkipVersionCheck: cfg.Z3.SkipVersionCheck,
		Logger:           logger,
	})
}

// Capabilities returns the embedded z3 manifest.
func (b *Z3Backend) Capabilities() *solver.Capabilities {
	return z3.Capabilities()
}
