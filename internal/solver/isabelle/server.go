package isabelle

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"
)

// server is an `isabelle server` process started by this package
type server struct {
	cmd  *exec.Cmd
	info ServerInfo
}

const startupTimeout = 60 * time.Second

// startServer runs `<command> server -n <name>` and waits for the line
// announcing its address. A server already running under the same name is
// reused by isabelle itself and reports the same line.
func startServer(ctx context.Context, command, name string, logger *slog.Logger) (*server, error) {
	path, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("isabelle not found: %w", err)
	}
	cmd := exec.Command(path, "server", "-n", name)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting isabelle server: %w", err)
	}

	lines := make(chan string, 1)
	go func() {
		r := bufio.NewReader(stdout)
		first, _ := r.ReadString('\n')
		lines <- first
		_, _ = io.Copy(io.Discard, r)
	}()

	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()
	select {
	case line := <-lines:
		info, err := ParseServerLine(line)
		if err != nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return nil, err
		}
		logger.Debug("isabelle server up", slog.String("addr", info.Addr()), slog.String("name", info.Name))
		return &server{cmd: cmd, info: info}, nil
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("waiting for isabelle server: %w", ctx.Err())
	}
}

func (s *server) stop() {
	if s == nil || s.cmd.Process == nil {
		return
	}
	_ = s.cmd.Process.Kill()
	_ = s.cmd.Wait()
}

