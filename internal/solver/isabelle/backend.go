// Package isabelle implements solver.Backend on an Isabelle server. Every
// check is a scratch theory handed to use_theories; the context (data
// types, constants, definitions and axioms) is replayed into each one.
package isabelle

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eatikrh/kleis-sub001/internal/ast"
	"github.com/eatikrh/kleis-sub001/internal/solver"
	"github.com/eatikrh/kleis-sub001/internal/structure"
)

//go:embed capabilities.yaml
var manifest []byte

var (
	capsOnce sync.Once
	caps     *solver.Capabilities
)

// Capabilities returns the embedded Isabelle manifest
func Capabilities() *solver.Capabilities {
	capsOnce.Do(func() { caps = solver.MustParseCapabilities(manifest) })
	return caps
}

// Options configures an Isabelle backend
type Options struct {
	Command        string        // isabelle executable; "isabelle" when empty
	ServerName     string        // name passed to `isabelle server -n`
	Session        string        // logic image, HOL by default
	Timeout        time.Duration // per theory
	SessionTimeout time.Duration // session_start, which may build the image
	ScratchDir     string        // parent of the per-backend theory directory
	Companions     []string      // companion theory files registered at start
	Logger         *slog.Logger
}

func (o *Options) setDefaults() {
	if o.Command == "" {
		o.Command = "isabelle"
	}
	if o.ServerName == "" {
		o.ServerName = "kleis"
	}
	if o.Session == "" {
		o.Session = "HOL"
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Duration(Capabilities().Performance.TimeoutMS) * time.Millisecond
	}
	if o.SessionTimeout <= 0 {
		o.SessionTimeout = 10 * time.Minute
	}
	if o.ScratchDir == "" {
		o.ScratchDir = os.TempDir()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type frame struct {
	structures   []string
	identities   []string // rendered consts lines
	identNames   []string
	datatypes    []string
	constructors []string
	functions    []string
	funcNames    []string
	context      []string
	src          []ast.Expression // behind context and functions
}

func (f *frame) rememberSources(e ...ast.Expression) { f.src = append(f.src, e...) }

type companion struct {
	path   string
	lemmas []string
}

// Backend is a solver.Backend on one Isabelle session
type Backend struct {
	id     string
	opts   Options
	caps   *solver.Capabilities
	logger *slog.Logger

	srv       *server // nil when attached to an external server
	conn      *Conn
	sessionID string
	dir       string

	frames     []*frame
	loaded     map[string]bool
	counter    int
	cache      map[string]solver.VerificationResult
	companions []companion
	proven     map[string]bool
}

var _ solver.Backend = (*Backend)(nil)

// New starts an Isabelle server and opens a session on it
func New(ctx context.Context, opts Options) (*Backend, error) {
	opts.setDefaults()
	logger := opts.Logger.With(slog.String("component", "isabelle"))
	srv, err := startServer(ctx, opts.Command, opts.ServerName, logger)
	if err != nil {
		return nil, err
	}
	b, err := Connect(ctx, srv.info, opts)
	if err != nil {
		srv.stop()
		return nil, err
	}
	b.srv = srv
	return b, nil
}

// Connect attaches to a running server and starts a session on it
func Connect(ctx context.Context, info ServerInfo, opts Options) (*Backend, error) {
	opts.setDefaults()
	b := &Backend{
		id:     uuid.NewString(),
		opts:   opts,
		caps:   Capabilities(),
		loaded: make(map[string]bool),
		frames: []*frame{{}},
		cache:  make(map[string]solver.VerificationResult),
		proven: make(map[string]bool),
	}
	b.logger = opts.Logger.With(slog.String("component", "isabelle"), slog.String("session", b.id[:8]))
	b.dir = filepath.Join(opts.ScratchDir, "kleis-"+b.id)
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}

	conn, err := Dial(ctx, info)
	if err != nil {
		os.RemoveAll(b.dir)
		return nil, err
	}
	b.conn = conn
	if err := b.startSession(ctx); err != nil {
		conn.Close()
		os.RemoveAll(b.dir)
		return nil, err
	}
	for _, path := range opts.Companions {
		if err := b.RegisterCompanion(ctx, path); err != nil {
			b.Close()
			return nil, err
		}
	}
	b.logger.Info("isabelle session started", slog.String("addr", info.Addr()), slog.String("logic", opts.Session))
	return b, nil
}

func (b *Backend) startSession(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.opts.SessionTimeout)
	defer cancel()
	msg, err := b.conn.Request(ctx, "session_start", map[string]any{
		"session":    b.opts.Session,
		"print_mode": []string{"symbols"},
	})
	if err != nil {
		return fmt.Errorf("session_start: %w", err)
	}
	if id := msg.Field("session_id"); id != "" {
		b.sessionID = id
		return nil
	}
	task := msg.Task()
	if task == "" {
		return &solver.ProtocolError{Backend: "isabelle", Detail: "session_start returned neither a task nor a session"}
	}
	done, _, err := b.conn.Await(ctx, task)
	if err != nil {
		return fmt.Errorf("session_start: %w", err)
	}
	b.sessionID = done.Field("session_id")
	if b.sessionID == "" {
		return &solver.ProtocolError{Backend: "isabelle", Detail: "session_start finished without a session_id"}
	}
	return nil
}

func (b *Backend) top() *frame { return b.frames[len(b.frames)-1] }

func (b *Backend) Name() string { return "isabelle" }

func (b *Backend) Capabilities() *solver.Capabilities { return b.caps }

func (b *Backend) SupportsOperation(op string) bool {
	return b.caps.HasOperation(op) || b.caps.Features.UninterpretedFunctions
}

// SessionID is the server-side session this backend runs in
func (b *Backend) SessionID() string { return b.sessionID }

func (b *Backend) declaredNames() map[string]bool {
	names := make(map[string]bool)
	for _, f := range b.frames {
		for _, n := range f.identNames {
			names[n] = true
		}
		for _, n := range f.constructors {
			names[n] = true
		}
		for _, n := range f.funcNames {
			names[n] = true
		}
	}
	return names
}

// uninterpreted collects operations that nothing declares, with the arity
// of their first use.
func (b *Backend) uninterpreted(exprs ...ast.Expression) map[string]int {
	declared := b.declaredNames()
	out := make(map[string]int)
	for _, e := range exprs {
		ast.Walk(e, func(n ast.Expression) bool {
			op, ok := n.(*ast.Operation)
			if !ok || op.Name == "-" || declared[op.Name] {
				return true
			}
			if _, builtin := isarOps[op.Name]; builtin {
				return true
			}
			if _, seen := out[op.Name]; !seen {
				out[op.Name] = len(op.Args)
			}
			return true
		})
	}
	return out
}

// constsFor declares each uninterpreted operation with its own type
// variables so every use instantiates it independently.
func constsFor(ops map[string]int) []string {
	names := make([]string, 0, len(ops))
	for n := range ops {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, n := range names {
		parts := make([]string, 0, ops[n]+1)
		for i := 0; i < ops[n]; i++ {
			parts = append(parts, fmt.Sprintf("'a%d", i+1))
		}
		parts = append(parts, "'r")
		out = append(out, fmt.Sprintf("consts %s :: %s", n, quote(strings.Join(parts, " ⇒ "))))
	}
	return out
}

// theoryFor assembles a scratch theory proving goal in the current context
func (b *Backend) theoryFor(goal ast.Expression, isar string) theory {
	b.counter++
	t := theory{
		Name:    fmt.Sprintf("Kleis_Verify_%d", b.counter),
		Imports: []string{"Complex_Main"},
		Goal:    isar,
	}
	for _, c := range b.companions {
		t.Imports = append(t.Imports, importName(c.path))
	}
	exprs := []ast.Expression{goal}
	for _, f := range b.frames {
		t.Decls = append(t.Decls, f.datatypes...)
	}
	// companion theories carry their own definitions and axioms
	if len(b.companions) == 0 {
		for _, f := range b.frames {
			t.Decls = append(t.Decls, f.identities...)
		}
		for _, f := range b.frames {
			t.Context = append(t.Context, f.context...)
		}
		exprs = append(exprs, b.contextExprs()...)
		t.Decls = append(t.Decls, constsFor(b.uninterpreted(exprs...))...)
	}
	for _, f := range b.frames {
		t.Decls = append(t.Decls, f.functions...)
	}
	return t
}

func (b *Backend) contextExprs() []ast.Expression {
	var out []ast.Expression
	for _, f := range b.frames {
		out = append(out, f.src...)
	}
	return out
}

// VerifyAxiom proves expr as a lemma in a fresh scratch theory
func (b *Backend) VerifyAxiom(ctx context.Context, expr ast.Expression) (solver.VerificationResult, error) {
	isar, err := ToIsar(expr)
	if err != nil {
		return solver.VerificationResult{}, err
	}
	if cached, ok := b.cache[isar]; ok {
		return cached, nil
	}
	res, err := b.prove(ctx, b.theoryFor(expr, isar))
	if err != nil {
		return solver.VerificationResult{}, err
	}
	if res.Status != solver.Unknown {
		b.cache[isar] = res
	}
	b.logger.Debug("verified", slog.String("expr", ast.Format(expr)), slog.String("status", res.Status.String()))
	return res, nil
}

// prove writes the theory, runs use_theories and interprets the outcome
func (b *Backend) prove(ctx context.Context, t theory) (solver.VerificationResult, error) {
	file := filepath.Join(b.dir, t.Name+".thy")
	if err := os.WriteFile(file, []byte(t.Render()), 0o644); err != nil {
		return solver.VerificationResult{}, fmt.Errorf("writing theory: %w", err)
	}
	defer os.Remove(file)
	return b.useTheories(ctx, b.dir, t.Name)
}

func (b *Backend) useTheories(ctx context.Context, dir, name string) (solver.VerificationResult, error) {
	tctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()
	args := map[string]any{
		"session_id": b.sessionID,
		"theories":   []string{name},
		"master_dir": dir,
	}
	msg, err := b.conn.Request(tctx, "use_theories", args)
	if err != nil {
		return b.failure(ctx, err)
	}
	task := msg.Task()
	if task == "" {
		return interpret(msg.Body, nil)
	}
	done, notes, err := b.conn.Await(tctx, task)
	if err != nil {
		return b.failure(ctx, err)
	}
	res, err := interpret(done.Body, notes)
	b.purge(ctx, dir, name)
	return res, err
}

// failure maps transport and command errors onto results. Running out of
// the per-theory budget is Unknown; the caller's own cancellation is not.
func (b *Backend) failure(ctx context.Context, err error) (solver.VerificationResult, error) {
	if ctx.Err() != nil {
		return solver.VerificationResult{}, ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return solver.UnknownResult(fmt.Sprintf("timed out after %s", b.opts.Timeout)), nil
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		return classify(ce.Message)
	}
	return solver.VerificationResult{}, err
}

// purge drops a finished scratch theory from the session
func (b *Backend) purge(ctx context.Context, dir, name string) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	_, err := b.conn.Request(pctx, "purge_theories", map[string]any{
		"session_id": b.sessionID,
		"theories":   []string{name},
		"master_dir": dir,
	})
	if err != nil {
		b.logger.Debug("purge_theories failed", slog.String("theory", name), slog.String("error", err.Error()))
	}
}

// CheckSatisfiability proves the negation: a proof means unsatisfiable, a
// failed proof means a model may exist.
func (b *Backend) CheckSatisfiability(ctx context.Context, expr ast.Expression) (solver.SatisfiabilityResult, error) {
	res, err := b.VerifyAxiom(ctx, ast.NewOp("not", expr))
	if err != nil {
		return solver.SatisfiabilityResult{}, err
	}
	switch res.Status {
	case solver.Valid:
		return solver.SatisfiabilityResult{Status: solver.Unsatisfiable}, nil
	case solver.Invalid:
		return solver.SatisfiabilityResult{Status: solver.Satisfiable, Witness: res.Witness, Example: res.Counterexample}, nil
	}
	return solver.SatisfiabilityResult{Status: solver.SatUnknown, Reason: res.Reason}, nil
}

func (b *Backend) AreEquivalent(ctx context.Context, x, y ast.Expression) (bool, error) {
	res, err := b.VerifyAxiom(ctx, ast.NewOp("equals", x, y))
	if err != nil {
		return false, err
	}
	if res.Status == solver.Unknown {
		return false, fmt.Errorf("equivalence undecided: %s", res.Reason)
	}
	return res.Status == solver.Valid, nil
}

func (b *Backend) Evaluate(context.Context, ast.Expression) (ast.Expression, error) {
	return nil, &solver.UnsupportedError{Backend: "isabelle", Feature: "concrete evaluation"}
}

func (b *Backend) Simplify(context.Context, ast.Expression) (ast.Expression, error) {
	return nil, &solver.UnsupportedError{Backend: "isabelle", Feature: "simplification"}
}

// LoadStructureAxioms adds the axioms to the context of later theories.
// Nothing is added unless every axiom translates.
func (b *Backend) LoadStructureAxioms(_ context.Context, name string, axioms []ast.Expression) error {
	if b.loaded[name] {
		return nil
	}
	if n := b.Stats().AssertionCount + len(axioms); n > b.caps.Performance.MaxAxioms {
		return fmt.Errorf("loading %s would exceed %d axioms", name, b.caps.Performance.MaxAxioms)
	}
	isar := make([]string, len(axioms))
	for i, ax := range axioms {
		s, err := ToIsar(ax)
		if err != nil {
			return fmt.Errorf("structure %s axiom %d: %w", name, i+1, err)
		}
		isar[i] = s
	}
	f := b.top()
	f.context = append(f.context, isar...)
	f.rememberSources(axioms...)
	f.structures = append(f.structures, name)
	b.loaded[name] = true
	b.clearCache()
	b.logger.Debug("loaded structure", slog.String("structure", name), slog.Int("axioms", len(axioms)))
	return nil
}

func (b *Backend) IsStructureLoaded(name string) bool { return b.loaded[name] }

// LoadIdentityElement declares a constant. Without a type it is
// polymorphic.
func (b *Backend) LoadIdentityElement(_ context.Context, name string, typ ast.TypeExpr) error {
	if typ != nil && ast.IsFunctionType(typ) {
		return &solver.TypeMismatchError{Context: "identity element " + name, Expected: "a value type", Got: typ.String()}
	}
	if b.declaredNames()[name] {
		return nil
	}
	hol := "'a"
	if typ != nil {
		hol = holTypeExpr(typ)
	}
	f := b.top()
	f.identities = append(f.identities, fmt.Sprintf("consts %s :: %s", name, quote(hol)))
	f.identNames = append(f.identNames, name)
	b.clearCache()
	return nil
}

// LoadDataType emits a datatype declaration into later theories
func (b *Backend) LoadDataType(_ context.Context, def *structure.DataDef) error {
	params := make(map[string]bool, len(def.TypeParams))
	head := def.Name
	if len(def.TypeParams) > 0 {
		vars := make([]string, len(def.TypeParams))
		for i, p := range def.TypeParams {
			params[p] = true
			vars[i] = "'" + strings.ToLower(p)
		}
		if len(vars) == 1 {
			head = vars[0] + " " + def.Name
		} else {
			head = "(" + strings.Join(vars, ", ") + ") " + def.Name
		}
	}
	variants := make([]string, len(def.Variants))
	for i, v := range def.Variants {
		parts := []string{v.Name}
		for _, fld := range v.Fields {
			t := holTypeExpr(fld.Type)
			if nt, ok := fld.Type.(*ast.NamedType); ok && params[nt.Name] {
				t = "'" + strings.ToLower(nt.Name)
			}
			if strings.Contains(t, " ") && !strings.HasPrefix(t, "(") {
				t = "(" + t + ")"
			}
			parts = append(parts, quote(t))
		}
		variants[i] = strings.Join(parts, " ")
	}
	f := b.top()
	f.datatypes = append(f.datatypes, fmt.Sprintf("datatype %s = %s", head, strings.Join(variants, " | ")))
	for _, v := range def.Variants {
		f.constructors = append(f.constructors, v.Name)
	}
	b.clearCache()
	return nil
}

func (b *Backend) IsDeclaredConstructor(name string) bool {
	for _, f := range b.frames {
		for _, c := range f.constructors {
			if c == name {
				return true
			}
		}
	}
	return false
}

func (b *Backend) AssertExpression(_ context.Context, expr ast.Expression) error {
	isar, err := ToIsar(expr)
	if err != nil {
		return err
	}
	f := b.top()
	f.context = append(f.context, isar)
	f.rememberSources(expr)
	b.clearCache()
	return nil
}

// DefineFunction emits a fun definition; recursion is allowed
func (b *Backend) DefineFunction(_ context.Context, name string, params []string, body ast.Expression) error {
	if b.IsFunctionDefined(name) {
		return fmt.Errorf("function %s is already defined", name)
	}
	isar, err := ToIsar(body)
	if err != nil {
		return fmt.Errorf("function %s: %w", name, err)
	}
	lhs := name
	if len(params) > 0 {
		lhs = name + " " + strings.Join(params, " ")
	}
	kw := "fun"
	if len(params) == 0 {
		kw = "definition"
	}
	f := b.top()
	f.functions = append(f.functions, fmt.Sprintf("%s %s where\n  %s", kw, name, quote(lhs+" = "+isar)))
	f.funcNames = append(f.funcNames, name)
	f.rememberSources(body)
	b.clearCache()
	return nil
}

func (b *Backend) IsFunctionDefined(name string) bool {
	for _, f := range b.frames {
		for _, fn := range f.funcNames {
			if fn == name {
				return true
			}
		}
	}
	return false
}

// RegisterCompanion checks a companion theory with the prover and, when it
// is accepted, imports it into every later scratch theory. Lemmas closed
// with sorry or oops are never counted as proven.
func (b *Backend) RegisterCompanion(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	fh, err := os.Open(abs)
	if err != nil {
		return fmt.Errorf("opening companion theory: %w", err)
	}
	proven, unproven, err := companionLemmas(fh)
	fh.Close()
	if err != nil {
		return fmt.Errorf("reading companion theory %s: %w", abs, err)
	}
	if len(unproven) > 0 {
		b.logger.Warn("companion has unproven lemmas", slog.String("file", abs), slog.String("lemmas", strings.Join(unproven, ", ")))
	}

	name := strings.TrimSuffix(filepath.Base(abs), ".thy")
	res, err := b.useTheories(ctx, filepath.Dir(abs), name)
	if err != nil {
		return fmt.Errorf("checking companion %s: %w", abs, err)
	}
	if res.Status != solver.Valid {
		return fmt.Errorf("companion %s rejected: %s", abs, res)
	}
	b.companions = append(b.companions, companion{path: abs, lemmas: proven})
	for _, l := range proven {
		b.proven[l] = true
	}
	b.clearCache()
	b.logger.Info("companion theory loaded", slog.String("file", abs), slog.Int("lemmas", len(proven)))
	return nil
}

// ProvenByCompanion reports whether a registered companion proves the
// named lemma.
func (b *Backend) ProvenByCompanion(name string) bool { return b.proven[name] }

func (b *Backend) Push(context.Context) error {
	b.frames = append(b.frames, &frame{})
	return nil
}

func (b *Backend) Pop(_ context.Context, levels int) error {
	if levels <= 0 {
		return nil
	}
	if levels >= len(b.frames) {
		return fmt.Errorf("cannot pop %d scopes at depth %d", levels, len(b.frames)-1)
	}
	for i := 0; i < levels; i++ {
		f := b.top()
		for _, s := range f.structures {
			delete(b.loaded, s)
		}
		b.frames = b.frames[:len(b.frames)-1]
	}
	b.clearCache()
	return nil
}

// Reset forgets the context; the session and companions stay
func (b *Backend) Reset(context.Context) error {
	b.frames = []*frame{{}}
	b.loaded = make(map[string]bool)
	b.clearCache()
	return nil
}

func (b *Backend) clearCache() {
	b.cache = make(map[string]solver.VerificationResult)
}

func (b *Backend) Stats() solver.Stats {
	var st solver.Stats
	for _, f := range b.frames {
		st.AssertionCount += len(f.context)
		st.IdentityElements += len(f.identNames)
		st.DeclaredOperations += len(f.funcNames)
	}
	st.LoadedStructures = len(b.loaded)
	st.ScopeDepth = len(b.frames) - 1
	return st
}

// Close stops the session and, if this backend started it, the server
func (b *Backend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var firstErr error
	if b.conn != nil {
		if b.sessionID != "" {
			msg, err := b.conn.Request(ctx, "session_stop", map[string]string{"session_id": b.sessionID})
			if err == nil && msg.Task() != "" {
				_, _, err = b.conn.Await(ctx, msg.Task())
			}
			if err != nil {
				b.logger.Debug("session_stop failed", slog.String("error", err.Error()))
			}
		}
		if b.srv != nil {
			_, _ = b.conn.Request(ctx, "shutdown", nil)
		}
		firstErr = b.conn.Close()
		b.conn = nil
	}
	b.srv.stop()
	b.srv = nil
	if err := os.RemoveAll(b.dir); err != nil && firstErr == nil {
		firstErr = err
	}
	b.logger.Debug("isabelle session closed")
	return firstErr
}
