// Package launcher starts the child process with the resolved
// environment, scrubbing secret values from its output and optionally
// restarting it when configuration files change.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/envault/envault/pkg/eval"
)

// killGrace is how long a child gets after SIGTERM before SIGKILL.
const killGrace = 5 * time.Second

// Options describe one child invocation.
type Options struct {
	// Command is the argv to run; Command[0] is the executable.
	Command []string

	// Env is the complete child environment.
	Env map[string]string

	// Redact lists secret values to scrub from the child's output.
	Redact []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Launcher runs child processes. It is stateless apart from its logger.
type Launcher struct {
	logger zerolog.Logger
}

// New creates a Launcher.
func New(logger zerolog.Logger) *Launcher {
	return &Launcher{
		logger: logger.With().Str("component", "launcher").Logger(),
	}
}

// Run starts the command and waits for it, forwarding SIGINT and
// SIGTERM. It returns the child's exit code.
func (l *Launcher) Run(ctx context.Context, opts Options) (int, error) {
	if len(opts.Command) == 0 {
		return -1, fmt.Errorf("no command to run")
	}

	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	cmd.Env = flattenEnv(opts.Env)
	cmd.Stdin = opts.Stdin

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	var redactors []*Redactor
	if len(opts.Redact) > 0 {
		ro := NewRedactor(stdout, opts.Redact)
		re := NewRedactor(stderr, opts.Redact)
		redactors = append(redactors, ro, re)
		cmd.Stdout = ro
		cmd.Stderr = re
	} else {
		cmd.Stdout = stdout
		cmd.Stderr = stderr
	}

	l.logger.Debug().Str("command", opts.Command[0]).Int("env_size", len(opts.Env)).Msg("starting child process")
	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("failed to start %s: %w", opts.Command[0], err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	for {
		select {
		case sig := <-sigs:
			_ = cmd.Process.Signal(sig)
		case <-ctx.Done():
			_ = cmd.Process.Signal(syscall.SIGTERM)
			timer := time.AfterFunc(killGrace, func() { _ = cmd.Process.Kill() })
			err := <-done
			timer.Stop()
			flushAll(redactors)
			return exitCode(err), ctx.Err()
		case err := <-done:
			flushAll(redactors)
			code := exitCode(err)
			if err != nil && code < 0 {
				return code, fmt.Errorf("child process failed: %w", err)
			}
			return code, nil
		}
	}
}

func flushAll(redactors []*Redactor) {
	for _, r := range redactors {
		_ = r.Flush()
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		return exit.ExitCode()
	}
	return -1
}

// flattenEnv converts the environment map to the sorted KEY=VALUE form
// the exec package expects.
func flattenEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// SecretValues extracts the values worth redacting from a result:
// provider-derived and protected keys. Very short values are skipped,
// masking those would mangle ordinary output.
func SecretValues(res *eval.Result) []string {
	var values []string
	for _, meta := range res.Metadata {
		if meta.Provider == "" && !meta.Protected {
			continue
		}
		if len(meta.Value) < 4 {
			continue
		}
		values = append(values, meta.Value)
	}
	sort.Strings(values)
	return values
}
