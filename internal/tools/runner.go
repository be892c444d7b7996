package tools

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	logpkg "github.com/protomerlab/protomer/internal/logger"
)

// Command describes one external tool invocation.
type Command struct {
	Path string
	Args []string
	// Env entries are appended to the inherited process environment.
	Env []string
	Dir string
}

// Runner executes external commands. Tests substitute a fake; the
// pipeline uses ExecRunner.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands via os/exec and logs their lifecycle.
type ExecRunner struct {
	logger *zap.Logger
}

// NewExecRunner creates a runner logging through logger.
func NewExecRunner(logger *zap.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run executes the command, waiting for completion. On failure the
// returned ToolError carries the tail of stderr; search tools stream
// megabytes of progress there, so only the end is kept.
func (r *ExecRunner) Run(ctx context.Context, spec Command) error {
	tool := filepath.Base(spec.Path)
	stderr := newTailBuffer(4 * 1024)

	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stderr = stderr
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	r.logger.Debug("tool starting",
		logpkg.Tool(tool),
		zap.Strings("args", spec.Args),
	)
	start := time.Now()

	err := cmd.Run()

	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		r.logger.Warn("tool failed",
			logpkg.Tool(tool),
			zap.Duration("took", time.Since(start)),
			zap.Error(err),
		)
		return &ToolError{Tool: tool, Stderr: stderr.String(), Err: err}
	}

	r.logger.Debug("tool finished",
		logpkg.Tool(tool),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }
