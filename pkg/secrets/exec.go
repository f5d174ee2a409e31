package secrets

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Exec resolves references by running a command and capturing its
// stdout, for CLIs like `op read` or `pass show`. References look like
// exec://vault kv get -field=pw secret/db or exec(cmd=...). A single
// trailing newline is stripped from the output.
type Exec struct{}

// Name implements Provider.
func (Exec) Name() string { return "exec" }

// Resolve implements Provider.
func (Exec) Resolve(ctx context.Context, ref Ref, rc ResolveContext) (string, error) {
	cmdline := ref.Arg("cmd", "command")
	if cmdline == "" {
		cmdline = ref.Opaque()
	}
	if cmdline == "" {
		return "", &NotFoundError{Provider: "exec", Ref: ref.URI}
	}

	if rc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rc.Timeout)
		defer cancel()
	}

	return withRetries(ctx, rc.RetryBudget, func() (string, error) {
		cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdline)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg != "" {
				return "", fmt.Errorf("command failed: %s: %w", msg, err)
			}
			return "", fmt.Errorf("command failed: %w", err)
		}
		return strings.TrimSuffix(stdout.String(), "\n"), nil
	})
}
