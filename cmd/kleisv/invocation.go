package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"

	"github.com/eatikrh/kleis-sub001/internal/backend"
	"github.com/eatikrh/kleis-sub001/internal/config"
	"github.com/eatikrh/kleis-sub001/internal/structure"
	"github.com/eatikrh/kleis-sub001/internal/verify"
)

// invocation is the parsed command line plus everything loaded from it
type invocation struct {
	cfg     *config.Config
	cfgPath string
	files   []string // named on the command line
	paths   []string // config structures followed by files
	goalSel []string
	isolate bool

	registry *structure.Registry
	goals    []structure.Goal
	logger   *slog.Logger
	colors   palette
}

type options struct {
	configPath string
	solver     string
	workers    int
	goals      []string
	isolate    bool
	verbose    bool
	files      []string
}

func parseOptions(args []string) (*options, error) {
	opts := &options{}
	value := func(i int, name string) (string, error) {
		if i+1 >= len(args) {
			return "", fmt.Errorf("%s needs a value", name)
		}
		return args[i+1], nil
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "--config", "--solver", "--workers", "--goal":
			v, err := value(i, arg)
			if err != nil {
				return nil, err
			}
			i++
			switch arg {
			case "--config":
				opts.configPath = v
			case "--solver":
				opts.solver = v
			case "--goal":
				opts.goals = append(opts.goals, v)
			case "--workers":
				n, err := strconv.Atoi(v)
				if err != nil || n < 1 {
					return nil, fmt.Errorf("--workers must be a positive number, got %q", v)
				}
				opts.workers = n
			}
		case "--isolate":
			opts.isolate = true
		case "-v", "--verbose":
			opts.verbose = true
		default:
			if strings.HasPrefix(arg, "-") {
				return nil, fmt.Errorf("unknown option: %s", arg)
			}
			opts.files = append(opts.files, arg)
		}
	}
	return opts, nil
}

// loadConfig reads path, or the nearest kleis.yaml, or falls back to
// defaults when there is none.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, "", err
		}
		path, err = config.FindConfig(wd)
		if err != nil {
			return nil, "", err
		}
		if path == "" {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func newInvocation(args []string) (*invocation, error) {
	opts, err := parseOptions(args)
	if err != nil {
		return nil, err
	}
	cfg, cfgPath, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.solver != "" {
		if _, err := backend.Lookup(opts.solver); err != nil {
			return nil, err
		}
		cfg.Solver = opts.solver
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}

	inv := &invocation{
		cfg:     cfg,
		cfgPath: cfgPath,
		files:   opts.files,
		goalSel: opts.goals,
		isolate: opts.isolate,
		logger:  cfg.Logger(os.Stderr),
		colors:  detectPalette(os.Stdout),
	}
	inv.paths = append(append([]string(nil), cfg.Structures...), opts.files...)
	if len(inv.paths) == 0 {
		return nil, fmt.Errorf("no structure documents: name files on the command line or list them under structures in %s", config.FileName)
	}
	if cfgPath != "" {
		inv.logger.Debug("using config", slog.String("path", cfgPath), slog.String("solver", cfg.Solver))
	}
	if err := inv.load(); err != nil {
		return nil, err
	}
	return inv, nil
}

// load (re)builds the registry from the documents
func (inv *invocation) load() error {
	reg := structure.NewRegistry()
	goals, diags, err := structure.LoadInto(reg, inv.paths...)
	if err != nil {
		return err
	}
	diags.Sort()
	if diags.HasErrors() {
		if inv.colors.enabled {
			return errors.New(strings.TrimRight(diags.FormatColor(""), "\n"))
		}
		return errors.New(strings.TrimRight(diags.Format(""), "\n"))
	}
	if diags.Count() > 0 {
		fmt.Fprint(os.Stderr, diags.Format(""))
	}
	inv.registry = reg
	inv.goals = goals
	return nil
}

// mustInvocation is newInvocation for command handlers
func mustInvocation(args []string) *invocation {
	inv, err := newInvocation(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	return inv
}

// selectGoals applies --goal and an optional filter. Naming a goal that
// does not exist is an error.
func (inv *invocation) selectGoals(keep func(structure.Goal) bool) ([]structure.Goal, error) {
	byName := make(map[string]bool, len(inv.goalSel))
	for _, n := range inv.goalSel {
		byName[n] = true
	}
	found := make(map[string]bool)
	var out []structure.Goal
	for _, g := range inv.goals {
		if len(byName) > 0 && !byName[g.Name] {
			continue
		}
		found[g.Name] = true
		if keep == nil || keep(g) {
			out = append(out, g)
		}
	}
	var missing []string
	for n := range byName {
		if !found[n] {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("no goal named %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// check runs goals on fresh backends, one per worker
func (inv *invocation) check(ctx context.Context, goals []structure.Goal) ([]*verify.Outcome, error) {
	open, err := backend.NewFactory(inv.cfg.Solver, inv.cfg, inv.logger)
	if err != nil {
		return nil, err
	}
	return verify.Batch(ctx, inv.registry, open, goals, verify.BatchOptions{
		Workers: inv.cfg.Workers,
		Isolate: inv.isolate,
		Logger:  inv.logger,
	})
}

// mustRun selects goals and checks them, exiting on any setup failure
func (inv *invocation) mustRun(keep func(structure.Goal) bool) []*verify.Outcome {
	goals, err := inv.selectGoals(keep)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	if len(goals) == 0 {
		return nil
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	outcomes, err := inv.check(ctx, goals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		stop()
		os.Exit(1)
	}
	return outcomes
}

// printOutcomes writes one line per goal and returns the exit code
func printOutcomes(w io.Writer, outcomes []*verify.Outcome, colors palette) int {
	for _, o := range outcomes {
		fmt.Fprintf(w, "  %-40s %s\n", o.Goal.Name, colors.status(o.Status))
		if o.Status != verify.Proved && o.Message != "" {
			fmt.Fprintf(w, "    %s\n", o.Message)
		}
	}
	s := verify.Summary(outcomes)
	fmt.Fprintf(w, "\n%d goal(s): %d proved, %d refuted, %d unknown, %d error(s)\n",
		len(outcomes), s[verify.Proved], s[verify.Refuted], s[verify.Unknown], s[verify.Error])
	return exitCode(outcomes)
}

// exitCode is 1 when a goal was refuted or failed. Unknown is not a failure.
func exitCode(outcomes []*verify.Outcome) int {
	for _, o := range outcomes {
		if o.Status == verify.Refuted || o.Status == verify.Error {
			return 1
		}
	}
	return 0
}

func mergeStrings(a, b []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
