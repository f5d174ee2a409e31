package launcher

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/envault/envault/pkg/eval"
)

func TestRunPassesEnvironment(t *testing.T) {
	var out bytes.Buffer
	l := New(zerolog.Nop())
	code, err := l.Run(context.Background(), Options{
		Command: []string{"/bin/sh", "-c", "printf '%s' \"$GREETING\""},
		Env:     map[string]string{"GREETING": "hello", "PATH": "/usr/bin:/bin"},
		Stdout:  &out,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d", code)
	}
	if out.String() != "hello" {
		t.Errorf("stdout = %q", out.String())
	}
}

func TestRunExitCode(t *testing.T) {
	l := New(zerolog.Nop())
	code, err := l.Run(context.Background(), Options{
		Command: []string{"/bin/sh", "-c", "exit 3"},
		Env:     map[string]string{"PATH": "/usr/bin:/bin"},
	})
	if err != nil {
		t.Fatalf("run returned error for nonzero exit: %v", err)
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

func TestRunMissingExecutable(t *testing.T) {
	l := New(zerolog.Nop())
	if _, err := l.Run(context.Background(), Options{
		Command: []string{"/nonexistent/binary"},
	}); err == nil {
		t.Fatal("missing executable did not fail")
	}
}

func TestRunRedactsOutput(t *testing.T) {
	var out bytes.Buffer
	l := New(zerolog.Nop())
	_, err := l.Run(context.Background(), Options{
		Command: []string{"/bin/sh", "-c", "echo leaked hunter2 here"},
		Env:     map[string]string{"PATH": "/usr/bin:/bin"},
		Redact:  []string{"hunter2"},
		Stdout:  &out,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	got := out.String()
	if strings.Contains(got, "hunter2") {
		t.Errorf("secret leaked: %q", got)
	}
	if !strings.Contains(got, "[REDACTED]") {
		t.Errorf("placeholder missing: %q", got)
	}
}

func TestRedactorSplitWrites(t *testing.T) {
	var out bytes.Buffer
	r := NewRedactor(&out, []string{"hunter2"})

	// The secret arrives split across two writes on one line.
	if _, err := r.Write([]byte("value is hun")); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Write([]byte("ter2 end\n")); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "value is [REDACTED] end\n" {
		t.Errorf("output = %q", got)
	}
}

func TestRedactorFlushPartialLine(t *testing.T) {
	var out bytes.Buffer
	r := NewRedactor(&out, []string{"hunter2"})
	if _, err := r.Write([]byte("no newline hunter2")); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Error("partial line flushed early")
	}
	if err := r.Flush(); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "no newline [REDACTED]" {
		t.Errorf("output = %q", got)
	}
}

func TestSecretValues(t *testing.T) {
	res := &eval.Result{
		Metadata: map[string]eval.KeyMetadata{
			"DB_PASSWORD": {Value: "hunter2", Provider: "vault"},
			"API_KEY":     {Value: "abcd1234", Protected: true},
			"PLAIN":       {Value: "not-secret"},
			"TINY":        {Value: "ab", Provider: "vault"},
		},
	}
	values := SecretValues(res)
	if len(values) != 2 {
		t.Fatalf("values = %v, want the two real secrets", values)
	}
	if values[0] != "abcd1234" || values[1] != "hunter2" {
		t.Errorf("values = %v", values)
	}
}

func TestWatchReturnsWhenChildExits(t *testing.T) {
	l := New(zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	code, err := l.Watch(ctx, nil, func(context.Context) (Options, error) {
		return Options{
			Command: []string{"/bin/sh", "-c", "exit 7"},
			Env:     map[string]string{"PATH": "/usr/bin:/bin"},
		}, nil
	})
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	if code != 7 {
		t.Errorf("exit code = %d, want 7", code)
	}
}
