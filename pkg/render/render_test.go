package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/envault/envault/pkg/eval"
)

func sampleResult() *eval.Result {
	return &eval.Result{
		Env: map[string]string{
			"DB_HOST":     "localhost",
			"DB_PASSWORD": "hunter2",
			"API_KEY":     "abc123",
			"SHELL":       "/bin/bash",
			"MESSAGE":     "hello world",
		},
		Metadata: map[string]eval.KeyMetadata{
			"DB_HOST":     {Value: "localhost", SourceFile: ".secret"},
			"DB_PASSWORD": {Value: "hunter2", SourceFile: ".secret", Provider: "vault"},
			"API_KEY":     {Value: "abc123", SourceFile: ".secret", Protected: true},
			"MESSAGE":     {Value: "hello world", SourceFile: ".secret"},
		},
	}
}

func TestRenderDotenv(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleResult(), Options{Format: FormatDotenv, ManagedOnly: true}); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	out := buf.String()

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), out)
	}
	// Sorted keys.
	if !strings.HasPrefix(lines[0], "API_KEY=") {
		t.Errorf("first line = %q, want sorted order", lines[0])
	}
	if !strings.Contains(out, "DB_HOST=localhost\n") {
		t.Errorf("plain value quoted unnecessarily:\n%s", out)
	}
	if !strings.Contains(out, `MESSAGE="hello world"`) {
		t.Errorf("value with spaces not quoted:\n%s", out)
	}
	if strings.Contains(out, "SHELL=") {
		t.Error("unmanaged parent variable rendered with ManagedOnly")
	}
}

func TestRenderShell(t *testing.T) {
	res := &eval.Result{
		Env:      map[string]string{"A": "it's"},
		Metadata: map[string]eval.KeyMetadata{"A": {Value: "it's"}},
	}
	var buf bytes.Buffer
	if err := Render(&buf, res, Options{Format: FormatShell}); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if got := buf.String(); got != `export A='it'\''s'`+"\n" {
		t.Errorf("shell output = %q", got)
	}
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleResult(), Options{Format: FormatJSON, ManagedOnly: true}); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	var m map[string]string
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if m["DB_PASSWORD"] != "hunter2" {
		t.Errorf("DB_PASSWORD = %q", m["DB_PASSWORD"])
	}
}

func TestRenderYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleResult(), Options{Format: FormatYAML, ManagedOnly: true}); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	var m map[string]string
	if err := yaml.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if m["DB_HOST"] != "localhost" {
		t.Errorf("DB_HOST = %q", m["DB_HOST"])
	}
}

func TestMasking(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleResult(), Options{Format: FormatJSON, Mask: MaskSecrets, ManagedOnly: true}); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	var m map[string]string
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatal(err)
	}
	// Provider-derived and protected values are masked.
	if m["DB_PASSWORD"] != "********" || m["API_KEY"] != "********" {
		t.Errorf("secrets not masked: %v", m)
	}
	// Plain literals are not.
	if m["DB_HOST"] != "localhost" {
		t.Errorf("literal masked: %v", m)
	}

	buf.Reset()
	if err := Render(&buf, sampleResult(), Options{Format: FormatJSON, Mask: MaskAll, ManagedOnly: true}); err != nil {
		t.Fatal(err)
	}
	m = nil
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatal(err)
	}
	for k, v := range m {
		if v != "********" {
			t.Errorf("key %s not masked under MaskAll", k)
		}
	}
}

func TestUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleResult(), Options{Format: "toml"}); err == nil {
		t.Fatal("unknown format accepted")
	}
}
