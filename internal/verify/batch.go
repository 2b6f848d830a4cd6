package verify

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/eatikrh/kleis-sub001/internal/backend"
	"github.com/eatikrh/kleis-sub001/internal/structure"
)

// BatchOptions configure Batch
type BatchOptions struct {
	// Workers is the number of backend instances run in parallel
	Workers int
	Isolate bool
	Logger  *slog.Logger
}

// Batch runs goals in parallel. Every worker opens its own backend from
// open and keeps it for all the goals it takes, so structures loaded for
// one goal stay loaded for the next goal on that worker unless Isolate is
// set. Outcomes are returned in goal order. The error is reserved for
// backends that could not be opened or a cancelled context.
func Batch(ctx context.Context, reg *structure.Registry, open backend.Factory, goals []structure.Goal, opts BatchOptions) ([]*Outcome, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(goals) {
		workers = len(goals)
	}

	outcomes := make([]*Outcome, len(goals))
	next := make(chan int)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(next)
		for i := range goals {
			select {
			case next <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			b, err := open(gctx)
			if err != nil {
				return fmt.Errorf("worker %d: opening backend: %w", w, err)
			}
			defer func() {
				if cerr := b.Close(); cerr != nil {
					logger.Warn("closing backend", slog.Int("worker", w), slog.String("error", cerr.Error()))
				}
			}()
			v := New(reg, b, Options{Isolate: opts.Isolate, Logger: logger.With(slog.Int("worker", w))})
			for i := range next {
				// each index is taken by exactly one worker
				outcomes[i] = v.RunGoal(gctx, goals[i])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}
