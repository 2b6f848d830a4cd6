package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settle is how long watch waits for a burst of file events to end
const settle = 200 * time.Millisecond

func handleWatch(args []string) {
	inv := mustInvocation(args)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := inv.watch(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		stop()
		os.Exit(1)
	}
}

// watch runs every goal, then again each time a document or the config
// file changes, until ctx is cancelled.
func (inv *invocation) watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting file watcher: %w", err)
	}
	defer w.Close()

	// editors replace files on save, so watch directories, not files
	watched := make(map[string]bool)
	dirs := make(map[string]bool)
	targets := inv.paths
	if inv.cfgPath != "" {
		targets = append(append([]string(nil), targets...), inv.cfgPath)
	}
	for _, p := range targets {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		watched[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	inv.runOnce(ctx)
	fmt.Printf("\nWatching %d file(s). Press Ctrl-C to stop.\n", len(watched))

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil || !watched[abs] {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			inv.logger.Debug("document changed", slog.String("file", abs), slog.String("op", ev.Op.String()))
			if timer == nil {
				timer = time.NewTimer(settle)
			} else {
				timer.Reset(settle)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			inv.logger.Warn("file watcher", slog.String("error", err.Error()))
		case <-fire:
			fire = nil
			if err := inv.reload(); err != nil {
				fmt.Fprintf(os.Stderr, "\n%s\n", err)
				continue
			}
			fmt.Printf("\n[%s] change detected, re-running\n", time.Now().Format("15:04:05"))
			inv.runOnce(ctx)
		}
	}
}

// reload re-reads the config (when there is one) and every document
func (inv *invocation) reload() error {
	if inv.cfgPath != "" {
		cfg, _, err := loadConfig(inv.cfgPath)
		if err != nil {
			return err
		}
		cfg.Solver = inv.cfg.Solver
		cfg.Workers = inv.cfg.Workers
		cfg.Log = inv.cfg.Log
		inv.cfg = cfg
		inv.paths = append(append([]string(nil), cfg.Structures...), inv.files...)
	}
	return inv.load()
}

func (inv *invocation) runOnce(ctx context.Context) {
	goals, err := inv.selectGoals(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return
	}
	outcomes, err := inv.check(ctx, goals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return
	}
	printOutcomes(os.Stdout, outcomes, inv.colors)
}
