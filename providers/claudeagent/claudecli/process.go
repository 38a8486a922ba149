package claudecli

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/haowjy/meridian-agent-go/providers/claudeagent"
)

const (
	defaultCLIPath     = "claude"
	defaultStopTimeout = 500 * time.Millisecond

	// maxOutputTokensEnv is read by the CLI to cap output tokens per response.
	maxOutputTokensEnv = "CLAUDE_CODE_MAX_OUTPUT_TOKENS"

	maxStderrBytes = 64 * 1024
)

// Config configures the claude CLI transport.
type Config struct {
	// CLIPath is the claude binary (default "claude", resolved via PATH)
	CLIPath string

	// WorkDir is the working directory of the worker (default: current)
	WorkDir string

	// Env adds environment variables on top of the current environment
	Env map[string]string

	// ExtraArgs are appended to the generated arguments (escape hatch)
	ExtraArgs []string

	// StopTimeout is how long a cancelled worker gets between SIGTERM and SIGKILL
	StopTimeout time.Duration

	Logger zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.CLIPath == "" {
		c.CLIPath = defaultCLIPath
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = defaultStopTimeout
	}
	return c
}

// BuildCLIArgs builds the CLI arguments for one query.
//
// The CLI is run as: claude --print --output-format stream-json --verbose [options]
// with the prompt on stdin.
func BuildCLIArgs(req *claudeagent.Request, sessionID string, extraArgs []string) []string {
	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
	}

	if sessionID != "" {
		args = append(args, "--session-id", sessionID)
	}

	opts := req.Options
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}

	if opts.PermissionMode != "" {
		args = append(args, "--permission-mode", string(opts.PermissionMode))
	}

	if opts.SystemPrompt != nil && *opts.SystemPrompt != "" {
		args = append(args, "--system-prompt", *opts.SystemPrompt)
	}

	// Add extra args (escape hatch)
	args = append(args, extraArgs...)

	return args
}

// Loader returns a loader that resolves the CLI binary on first use.
// A missing binary yields a *CLINotFoundError.
func Loader(cfg Config) claudeagent.Loader {
	return func() (claudeagent.QueryFunc, error) {
		cfg = cfg.withDefaults()
		path, err := exec.LookPath(cfg.CLIPath)
		if err != nil {
			return nil, &CLINotFoundError{Path: cfg.CLIPath, Cause: err}
		}
		cfg.CLIPath = path
		return Query(cfg), nil
	}
}

// Query returns a QueryFunc that runs one CLI process per query.
func Query(cfg Config) claudeagent.QueryFunc {
	cfg = cfg.withDefaults()
	return func(ctx context.Context, req *claudeagent.Request) (<-chan claudeagent.Envelope, error) {
		return run(ctx, cfg, req)
	}
}

func run(ctx context.Context, cfg Config, req *claudeagent.Request) (<-chan claudeagent.Envelope, error) {
	if len(req.PriorTurns) > 0 {
		return nil, ErrPriorTurnsUnsupported
	}

	sessionID := uuid.NewString()
	logger := cfg.Logger.With().Str("session_id", sessionID).Logger()

	if req.Options.Temperature != nil {
		logger.Debug().Float64("temperature", *req.Options.Temperature).Msg("claude CLI has no temperature setting; ignoring")
	}

	procCtx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(procCtx, cfg.CLIPath, BuildCLIArgs(req, sessionID, cfg.ExtraArgs)...)

	// Set environment variables
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if req.Options.MaxTokens != nil {
		cmd.Env = append(cmd.Env, maxOutputTokensEnv+"="+strconv.Itoa(*req.Options.MaxTokens))
	}

	if cfg.WorkDir != "" {
		cmd.Dir = cfg.WorkDir
	}

	// Graceful shutdown on cancel: SIGTERM, then SIGKILL after StopTimeout.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = cfg.StopTimeout

	cmd.Stdin = strings.NewReader(req.Prompt)
	stderr := &limitedBuffer{limit: maxStderrBytes}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, &ProcessError{Message: "failed to create stdout pipe", Cause: err}
	}

	if err := cmd.Start(); err != nil {
		cancel()
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, &CLINotFoundError{Path: cfg.CLIPath, Cause: err}
		}
		return nil, &ProcessError{Message: "failed to start CLI process", Cause: err}
	}

	logger.Debug().Str("model", req.Options.Model).Int("pid", cmd.Process.Pid).Msg("claude CLI started")

	out := make(chan claudeagent.Envelope, 16)
	go func() {
		defer close(out)
		defer cancel()

		send := func(env claudeagent.Envelope) bool {
			select {
			case <-ctx.Done():
				return false
			case out <- env:
				return true
			}
		}

		failed := false
		for env := range claudeagent.Decode(procCtx, stdout) {
			if env.Err != nil {
				failed = true
				send(env)
				// Stop the worker; its remaining output is unusable.
				cancel()
				break
			}
			if !send(env) {
				cancel()
				break
			}
		}

		waitErr := cmd.Wait()
		logger.Debug().Err(waitErr).Msg("claude CLI exited")

		if waitErr == nil || failed || ctx.Err() != nil {
			return
		}

		procErr := &ProcessError{
			Message: "claude CLI failed",
			Stderr:  strings.TrimSpace(stderr.String()),
			Cause:   waitErr,
		}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			procErr.ExitCode = exitErr.ExitCode()
		}
		send(claudeagent.Envelope{Err: procErr})
	}()

	return out, nil
}

// limitedBuffer keeps the first limit bytes written to it.
type limitedBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - len(b.buf); room > 0 {
		if len(p) > room {
			b.buf = append(b.buf, p[:room]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
