package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eatikrh/kleis-sub001/internal/backend"
	"github.com/eatikrh/kleis-sub001/internal/linter"
	"github.com/eatikrh/kleis-sub001/internal/structure"
	"github.com/eatikrh/kleis-sub001/internal/verify"
)

const usage = `kleisv - verify algebraic structures with an SMT solver or Isabelle

Usage:
  kleisv verify [options] [file.yaml...]        Run every goal in the documents
  kleisv check [options] [file.yaml...]         Load, validate and lint documents only
  kleisv equiv [options] [file.yaml...]         Run only the equivalence goals
  kleisv report [options] [file.yaml...]        Run every goal and group results by structure
  kleisv watch [options] [file.yaml...]         Re-run verify whenever a document changes
  kleisv capabilities [--solver name]           Print a backend's capability manifest

Options:
  --config <path>    Use this kleis.yaml instead of searching upwards from the working directory
  --solver <name>    Backend to use: z3 or isabelle (overrides the config file)
  --workers <n>      Number of backend instances run in parallel
  --goal <name>      Run only this goal (may be repeated)
  --isolate          Reset the backend before every goal
  -v, --verbose      Log at debug level

Structure documents listed under "structures" in kleis.yaml are always loaded;
files named on the command line are loaded after them.

Examples:
  kleisv verify algebra.yaml                    Verify all goals with z3
  kleisv verify --solver isabelle algebra.yaml  Verify with Isabelle/HOL
  kleisv report --goal shifted_identity         Report on a single goal
  kleisv capabilities --solver isabelle         Show what Isabelle supports natively
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "verify":
		handleVerify(os.Args[2:])
	case "check":
		handleCheck(os.Args[2:])
	case "equiv":
		handleEquiv(os.Args[2:])
	case "report":
		handleReport(os.Args[2:])
	case "watch":
		handleWatch(os.Args[2:])
	case "capabilities", "caps":
		handleCapabilities(os.Args[2:])
	case "help", "--help", "-h":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func handleVerify(args []string) {
	inv := mustInvocation(args)
	outcomes := inv.mustRun(nil)
	if len(outcomes) == 0 {
		fmt.Println("No goals found.")
		return
	}
	os.Exit(printOutcomes(os.Stdout, outcomes, inv.colors))
}

func handleEquiv(args []string) {
	inv := mustInvocation(args)
	outcomes := inv.mustRun(func(g structure.Goal) bool { return g.Kind == structure.GoalEquivalent })
	if len(outcomes) == 0 {
		fmt.Println("No equivalence goals found.")
		return
	}
	os.Exit(printOutcomes(os.Stdout, outcomes, inv.colors))
}

func handleReport(args []string) {
	inv := mustInvocation(args)
	outcomes := inv.mustRun(nil)
	fmt.Print(verify.FormatReport(verify.BuildReport(outcomes), inv.colors.status))
	os.Exit(exitCode(outcomes))
}

func handleCheck(args []string) {
	inv := mustInvocation(args)

	ops := structure.BuildOperations(inv.registry)
	fmt.Printf("%d structure(s), %d data type(s), %d goal(s) in %d document(s)\n",
		inv.registry.Len(), len(inv.registry.DataTypes()), len(inv.goals), len(inv.paths))
	for _, typ := range ops.Types() {
		fmt.Printf("  %s implements %s\n", typ, strings.Join(ops.Structures(typ), ", "))
	}
	for _, g := range inv.goals {
		an := verify.Analyze(ops, g.Exprs()...)
		closure, err := inv.registry.ClosureOf(mergeStrings(an.Structures, g.Structures))
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s:%d:%d: error: goal %s: %s\n", g.File, g.Line, g.Column, g.Name, err)
			os.Exit(1)
		}
		if len(closure.Missing) > 0 {
			fmt.Fprintf(os.Stderr, "%s:%d:%d: error: goal %s needs unregistered structures %s\n",
				g.File, g.Line, g.Column, g.Name, strings.Join(closure.Missing, ", "))
			os.Exit(1)
		}
		inv.logger.Debug("goal context", slog.String("goal", g.Name), slog.String("structures", strings.Join(closure.Order, ",")))
	}

	warnings := 0
	for _, path := range inv.paths {
		doc, _, err := structure.LoadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading file: %s\n", err)
			os.Exit(1)
		}
		diag := linter.Lint(doc, inv.registry)
		diag.Sort()
		fmt.Print(diag.Format(path))
		warnings += diag.Count()
	}
	if warnings > 0 {
		fmt.Printf("%d warning(s) found.\n", warnings)
	}
	fmt.Println("No errors found.")
}

func handleCapabilities(args []string) {
	name := ""
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--solver":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --solver needs a value")
				os.Exit(1)
			}
			i++
			name = args[i]
		default:
			fmt.Fprintf(os.Stderr, "Unknown option: %s\n", args[i])
			os.Exit(1)
		}
	}
	if name == "" {
		cfg, _, err := loadConfig("")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		name = cfg.Solver
	}

	opener, err := backend.Lookup(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	caps := opener.Capabilities()
	out, err := yaml.Marshal(caps)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	fmt.Printf("# %s (%s): %d native operation(s)\n", caps.Solver.Name, caps.Solver.Type, len(caps.NativeOperations()))
	os.Stdout.Write(out)
}
