package backend

import (
	"context"
	"log/slog"

	"github.com/eatikrh/kleis-sub001/internal/config"
	"github.com/eatikrh/kleis-sub001/internal/solver"
	"github.com/eatikrh/kleis-sub001/internal/solver/isabelle"
)

// IsabelleBackend opens sessions on an Isabelle server
type IsabelleBackend struct{}

// Name returns the backend name.
func (b *IsabelleBackend) Name() string {
	return "isabelle"
}

// Open starts (or reuses) the named Isabelle server and opens a session.
func (b *IsabelleBackend) Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (solver.Backend, error) {
	ic := cfg.Isabelle
	return isabelle.New(ctx, isabelle.Options{
		Command:        ic.Command,
		ServerName:     ic.ServerName,
		Session:        ic.Session,
		Timeout:        ic.Timeout,
		SessionTimeout: ic.SessionTimeout,
		ScratchDir:     ic.ScratchDir,
		Companions:     ic.Companions,
		Logger:         logger,
	})
}

// Capabilities returns the embedded Isabelle manifest.
func (b *IsabelleBackend) Capabilities() *solver.Capabilities {
	return isabelle.Capabilities()
}
