package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Runner lets converters and recognizers be stubbed in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ErrTimeout is returned when a subprocess exceeds its wall-clock budget.
var ErrTimeout = errors.New("subprocess timed out")

type ExecRunner struct {
	timeout time.Duration
	env     []string
}

// NewExecRunner bounds every call by timeout. extraEnv entries are appended to the process env.
func NewExecRunner(timeout time.Duration, extraEnv ...string) *ExecRunner {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &ExecRunner{timeout: timeout, env: extraEnv}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.WaitDelay = 5 * time.Second
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%s after %s: %w", name, r.timeout, ErrTimeout)
	}

	if err != nil {
		slog.Error("exec_failed",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", dur.Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 8<<10),
		)
	} else {
		slog.Debug("exec_ok",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", dur.Milliseconds(),
			"stdout_bytes", out.Len(),
		)
	}

	return out.Bytes(), errb.Bytes(), err
}

// Available reports whether a binary resolves on PATH or as an explicit path.
func Available(bin string) bool {
	if strings.TrimSpace(bin) == "" {
		return false
	}
	_, err := exec.LookPath(bin)
	return err == nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
