// Package external launches the numerical tool that does the per-ensemble
// number crunching.
//
// Every invocation runs in an explicit working directory under a timeout,
// and may name output files that must exist once the tool exits. A missing
// output is reported as an error for that ensemble instead of being left for
// later steps to trip over.
package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/artimmus/simbatch/internal/config"
	"github.com/artimmus/simbatch/internal/logging"
	"github.com/cenkalti/backoff/v4"
)

var (
	// ErrTimeout is returned when an invocation exceeds its time limit.
	ErrTimeout = errors.New("external step timed out")

	// ErrToolFailed is returned when the tool exits abnormally.
	ErrToolFailed = errors.New("external tool failed")

	// ErrMissingOutput is returned when the tool exits cleanly but an
	// expected output file is absent.
	ErrMissingOutput = errors.New("expected output missing")
)

// stderrTail bounds how much of the tool's stderr is quoted in errors.
const stderrTail = 2048

// Invocation is one call of an analysis function inside a directory.
type Invocation struct {
	// Dir is the working directory. Relative outputs land here.
	Dir string

	// Function is the analysis entry point, e.g. "drawSimOutputGraph".
	Function string

	// Args is passed to Function as a single quoted string argument.
	Args string

	// Bare calls Function with no argument list at all, ignoring Args.
	Bare bool

	// Literal passes Args unquoted, for numeric arguments.
	Literal bool

	// Expect names files, relative to Dir, that must exist afterwards.
	Expect []string
}

// Call renders the statement handed to the tool: fn('args');quit, or
// fn;quit for a bare call, or fn(args);quit for a literal one.
func (inv Invocation) Call() string {
	if inv.Bare {
		return inv.Function + ";quit"
	}
	if inv.Literal {
		return fmt.Sprintf("%s(%s);quit", inv.Function, inv.Args)
	}
	return fmt.Sprintf("%s(%s);quit", inv.Function, Quote(inv.Args))
}

// Quote renders s as a single-quoted string literal for the tool, doubling
// embedded quotes.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Runner executes invocations.
type Runner interface {
	Run(ctx context.Context, inv Invocation) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, inv Invocation) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, inv Invocation) error { return f(ctx, inv) }

// ExecRunner runs the tool as a subprocess.
type ExecRunner struct {
	Binary     string
	Args       []string
	ScriptsDir string
	Timeout    time.Duration
	Retries    int

	Logger *slog.Logger
	Events *logging.EventLog

	newBackOff func() backoff.BackOff
}

// NewExecRunner builds an ExecRunner from the external section of the config.
func NewExecRunner(cfg config.ExternalConfig, logger *slog.Logger, events *logging.EventLog) *ExecRunner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &ExecRunner{
		Binary:     cfg.Binary,
		Args:       append([]string(nil), cfg.Args...),
		ScriptsDir: cfg.ScriptsDir,
		Timeout:    cfg.Timeout,
		Retries:    cfg.Retries,
		Logger:     logger,
		Events:     events,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// Run executes inv, retrying failed attempts up to Retries times. Timeouts
// and missing outputs are not retried.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) error {
	if inv.Dir == "" {
		return fmt.Errorf("invocation of %s has no working directory", inv.Function)
	}
	if r.ScriptsDir != "" {
		if err := linkScript(r.ScriptsDir, inv.Dir, inv.Function); err != nil {
			return err
		}
	}

	bo := backoff.WithMaxRetries(r.newBackOff(), uint64(max(r.Retries, 0)))

	attempt := 0
	start := time.Now()
	err := backoff.Retry(func() error {
		attempt++
		err := r.runOnce(ctx, inv)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrTimeout) || errors.Is(err, ErrMissingOutput) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		r.Logger.Warn("external step failed", "dir", inv.Dir, "function", inv.Function, "attempt", attempt, "error", err)
		return err
	}, backoff.WithContext(bo, ctx))

	status := "ok"
	if err != nil {
		status = err.Error()
	}
	r.Events.Record("external_run", map[string]any{
		"dir":         inv.Dir,
		"function":    inv.Function,
		"args":        inv.Args,
		"attempts":    attempt,
		"status":      status,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return err
}

func (r *ExecRunner) runOnce(ctx context.Context, inv Invocation) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	args := append(append([]string(nil), r.Args...), inv.Call())
	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Dir = inv.Dir
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.Logger.Log(ctx, logging.LevelTrace, "invoking external tool", "dir", inv.Dir, "binary", r.Binary, "call", inv.Call())

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s in %s after %v: %w", inv.Function, inv.Dir, r.Timeout, ErrTimeout)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s in %s: %w: %v (stderr: %s)", inv.Function, inv.Dir, ErrToolFailed, err, tail(stderr.String()))
	}
	r.Logger.Log(ctx, logging.LevelTrace, "external tool output", "dir", inv.Dir, "stdout", tail(stdout.String()))

	return CheckOutputs(inv)
}

// CheckOutputs returns ErrMissingOutput naming the first expected file of
// inv that is not a regular file in inv.Dir.
func CheckOutputs(inv Invocation) error {
	for _, name := range inv.Expect {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(inv.Dir, name)
		}
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			return fmt.Errorf("%s in %s: %w: %s", inv.Function, inv.Dir, ErrMissingOutput, name)
		}
	}
	return nil
}

// linkScript symlinks <scriptsDir>/<fn>.m into dir, replacing whatever is
// already there under that name.
func linkScript(scriptsDir, dir, fn string) error {
	src, err := filepath.Abs(filepath.Join(scriptsDir, fn+".m"))
	if err != nil {
		return err
	}
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("script for %s: %w", fn, err)
	}
	dst := filepath.Join(dir, fn+".m")
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("replacing %s: %w", dst, err)
	}
	if err := os.Symlink(src, dst); err != nil {
		return fmt.Errorf("linking %s: %w", fn, err)
	}
	return nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		return "..." + s[len(s)-stderrTail:]
	}
	return s
}
