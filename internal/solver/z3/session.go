package z3

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/eatikrh/kleis-sub001/internal/solver"
	"github.com/eatikrh/kleis-sub001/internal/solver/smtlib"
)

// session is one running z3 process in interactive SMT-LIB mode. Every
// command produces exactly one reply because :print-success is on.
type session struct {
	path    string
	timeout time.Duration
	logger  *slog.Logger

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	replies chan reply
	done    chan struct{}
	mu      sync.Mutex
	stderr  *lockedBuffer
}

type reply struct {
	expr *smtlib.SExpr
	err  error
}

// FindZ3 locates the z3 binary, preferring an explicit path
func FindZ3(path string) (string, error) {
	if path == "" {
		path = "z3"
	}
	p, err := exec.LookPath(path)
	if err != nil {
		return "", fmt.Errorf("z3 not found: %w", err)
	}
	return p, nil
}

var versionRe = regexp.MustCompile(`(\d+\.\d+(?:\.\d+)?)`)

// Version runs `z3 --version` and returns the version number
func Version(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("running %s --version: %w", path, err)
	}
	m := versionRe.FindString(string(out))
	if m == "" {
		return "", fmt.Errorf("unrecognised z3 version output %q", strings.TrimSpace(string(out)))
	}
	return m, nil
}

func startSession(ctx context.Context, path string, timeout time.Duration, logger *slog.Logger) (*session, error) {
	// The process outlives ctx; only startup is bounded by it.
	cmd := exec.Command(path, "-smt2", "-in")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting z3: %w", err)
	}

	s := &session{
		path:    path,
		timeout: timeout,
		logger:  logger,
		cmd:     cmd,
		stdin:   stdin,
		replies: make(chan reply, 16),
		done:    make(chan struct{}),
		stderr:  stderr,
	}
	go s.readLoop(bufio.NewReader(stdout))

	init := []string{
		"(set-option :print-success true)",
		"(set-option :global-declarations true)",
		"(set-option :produce-models true)",
		"(set-option :model.completion true)",
	}
	if timeout > 0 {
		init = append(init, fmt.Sprintf("(set-option :timeout %d)", timeout.Milliseconds()))
	}
	for _, c := range init {
		if err := s.exec(ctx, c); err != nil {
			s.kill()
			return nil, fmt.Errorf("initialising z3: %w", err)
		}
	}
	return s, nil
}

type lockedBuffer struct {
	mu sync.Mutex
	sb strings.Builder
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sb.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.TrimSpace(l.sb.String())
}

func (s *session) readLoop(r io.Reader) {
	defer close(s.done)
	defer close(s.replies)
	rd := smtlib.NewReader(r)
	for {
		e, err := rd.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = s.exited()
			}
			s.replies <- reply{err: err}
			return
		}
		s.replies <- reply{expr: e}
	}
}

func (s *session) exited() error {
	detail := "process exited"
	if msg := s.stderr.String(); msg != "" {
		detail += ": " + msg
	}
	return &solver.ProtocolError{Backend: "z3", Detail: detail}
}

// send writes one command and waits for its reply. A deadline kills the
// process since z3 cannot be interrupted over stdin.
func (s *session) send(ctx context.Context, command string) (*smtlib.SExpr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil {
		return nil, &solver.ProtocolError{Backend: "z3", Detail: "session closed"}
	}
	if s.logger != nil {
		s.logger.Debug("smt", slog.String("cmd", command))
	}
	if _, err := io.WriteString(s.stdin, command+"\n"); err != nil {
		return nil, fmt.Errorf("writing to z3: %w", err)
	}

	deadline := s.timeout
	if deadline > 0 {
		// solver :timeout yields "unknown"; this margin only catches a hung process
		deadline += 2 * time.Second
	} else {
		deadline = time.Hour
	}
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case r, ok := <-s.replies:
		if !ok {
			return nil, s.exited()
		}
		if r.err != nil {
			return nil, r.err
		}
		if r.expr.Head() == "error" {
			msg := r.expr.String()
			if len(r.expr.List) > 1 {
				msg = r.expr.List[1].Atom
			}
			return nil, &solver.ProtocolError{Backend: "z3", Detail: msg}
		}
		return r.expr, nil
	case <-ctx.Done():
		s.killLocked()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &solver.TimeoutError{Op: firstWord(command), After: s.timeout}
		}
		return nil, ctx.Err()
	case <-timer.C:
		s.killLocked()
		return nil, &solver.TimeoutError{Op: firstWord(command), After: deadline}
	}
}

// exec sends a command that must answer success
func (s *session) exec(ctx context.Context, command string) error {
	r, err := s.send(ctx, command)
	if err != nil {
		return err
	}
	if !r.IsAtom("success") {
		return &solver.ProtocolError{Backend: "z3", Detail: fmt.Sprintf("expected success for %s, got %s", firstWord(command), r)}
	}
	return nil
}

// checkSat returns sat, unsat or unknown
func (s *session) checkSat(ctx context.Context) (string, error) {
	r, err := s.send(ctx, "(check-sat)")
	if err != nil {
		return "", err
	}
	switch {
	case r.IsAtom("sat"), r.IsAtom("unsat"), r.IsAtom("unknown"):
		return r.Atom, nil
	}
	return "", &solver.ProtocolError{Backend: "z3", Detail: "unexpected check-sat reply " + r.String()}
}

func (s *session) reasonUnknown(ctx context.Context) string {
	r, err := s.send(ctx, "(get-info :reason-unknown)")
	if err != nil || !r.IsList || len(r.List) < 2 {
		return ""
	}
	return r.List[1].Atom
}

// values runs get-value on terms and returns the value per term, in order
func (s *session) values(ctx context.Context, terms []string) ([]*smtlib.SExpr, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	r, err := s.send(ctx, "(get-value ("+strings.Join(terms, " ")+"))")
	if err != nil {
		return nil, err
	}
	if !r.IsList || len(r.List) != len(terms) {
		return nil, &solver.ProtocolError{Backend: "z3", Detail: "malformed get-value reply " + r.String()}
	}
	out := make([]*smtlib.SExpr, len(terms))
	for i, pair := range r.List {
		if !pair.IsList || len(pair.List) != 2 {
			return nil, &solver.ProtocolError{Backend: "z3", Detail: "malformed get-value pair " + pair.String()}
		}
		out[i] = pair.List[1]
	}
	return out, nil
}

func (s *session) model(ctx context.Context) string {
	r, err := s.send(ctx, "(get-model)")
	if err != nil {
		return ""
	}
	return r.String()
}

func (s *session) kill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killLocked()
}

func (s *session) killLocked() {
	if s.cmd == nil {
		return
	}
	_ = s.stdin.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	s.cmd = nil
	s.reap()
}

// reap drains pending replies until the reader goroutine has exited
func (s *session) reap() {
	for range s.replies {
	}
	<-s.done
}

func (s *session) alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil
}

// close asks z3 to exit and falls back to killing it
func (s *session) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return nil
	}
	_, _ = io.WriteString(s.stdin, "(exit)\n")
	_ = s.stdin.Close()
	waitErr := make(chan error, 1)
	go func() { waitErr <- s.cmd.Wait() }()
	select {
	case err := <-waitErr:
		s.cmd = nil
		s.reap()
		if err != nil && !strings.Contains(err.Error(), "signal") {
			return err
		}
		return nil
	case <-time.After(2 * time.Second):
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		<-waitErr
		s.cmd = nil
		s.reap()
		return nil
	}
}

func firstWord(command string) string {
	f := strings.Fields(strings.TrimPrefix(command, "("))
	if len(f) == 0 {
		return command
	}
	return strings.TrimSuffix(f[0], ")")
}
