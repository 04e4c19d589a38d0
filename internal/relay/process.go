package relay

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// ProcessDialer starts the native host as a child process and talks to it
// over its stdin and stdout, the way a browser launches a native
// messaging host.
type ProcessDialer struct {
	Path   string
	Args   []string
	Env    []string
	Logger *slog.Logger
}

// Dial starts a new host process. ctx only bounds the start; the process
// lives until the Conn is closed or it exits.
func (d ProcessDialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(d.Path, d.Args...)
	if len(d.Env) > 0 {
		cmd.Env = append(os.Environ(), d.Env...)
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", d.Path, err)
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("pid", cmd.Process.Pid)

	closer := func() error {
		stdin.Close()
		if err := cmd.Process.Kill(); err != nil {
			logger.Debug("kill host process", "error", err)
		}
		_ = cmd.Wait()
		return nil
	}
	return NewStreamConn(stdout, stdin, closer, logger), nil
}
