package parser

import (
	"errors"
	"strings"
	"testing"
)

// parseOne parses content expecting exactly one node.
func parseOne(t *testing.T, content string) Node {
	t.Helper()
	pf, err := Parse(content, "test.secret")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(pf.Nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(pf.Nodes))
	}
	return pf.Nodes[0]
}

func TestParseAssignmentOperators(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		key     string
		op      Operator
		literal string
	}{
		{"set", `PORT = 3000`, "PORT", OpSet, "3000"},
		{"set default", `HOST ?= "localhost"`, "HOST", OpSetDefault, "localhost"},
		{"append", `PATH += "/usr/bin"`, "PATH", OpAppend, "/usr/bin"},
		{"bare literal keeps spaces", `GREETING = hello world`, "GREETING", OpSet, "hello world"},
		{"single quoted", `NAME = 'a b'`, "NAME", OpSet, "a b"},
		{"boolean-looking stays string", `DEBUG = true`, "DEBUG", OpSet, "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ok := parseOne(t, tt.line).(*Assignment)
			if !ok {
				t.Fatalf("expected *Assignment, got %T", parseOne(t, tt.line))
			}
			if a.Key != tt.key {
				t.Errorf("key = %q, want %q", a.Key, tt.key)
			}
			if a.Op != tt.op {
				t.Errorf("op = %q, want %q", a.Op, tt.op)
			}
			if a.Expr.Literal != tt.literal {
				t.Errorf("literal = %q, want %q", a.Expr.Literal, tt.literal)
			}
		})
	}
}

func TestParseUnset(t *testing.T) {
	a := parseOne(t, `SECRET = @unset`).(*Assignment)
	if a.Op != OpUnset {
		t.Fatalf("op = %q, want %q", a.Op, OpUnset)
	}
	if a.Expr != nil {
		t.Fatalf("expected nil expression for @unset")
	}
}

func TestParseProtectedPrefix(t *testing.T) {
	a := parseOne(t, `!protected API_KEY = "abc"`).(*Assignment)
	if !a.Protected {
		t.Fatal("expected protected flag")
	}
	if a.Key != "API_KEY" {
		t.Errorf("key = %q, want API_KEY", a.Key)
	}
}

func TestParseAppendSeparator(t *testing.T) {
	a := parseOne(t, `PATH += (";") "/opt/bin"`).(*Assignment)
	if a.Separator != ";" {
		t.Errorf("separator = %q, want ;", a.Separator)
	}
	if a.Expr.Literal != "/opt/bin" {
		t.Errorf("literal = %q, want /opt/bin", a.Expr.Literal)
	}
}

func TestParseSections(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		typ     SectionType
		secName string
		extends []string
	}{
		{"profile", `[production]`, SectionProfile, "production", nil},
		{"scope", `[scope:node]`, SectionScope, "node", nil},
		{"scope extends", `[scope:python extends node ruby]`, SectionScope, "python", []string{"node", "ruby"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := parseOne(t, tt.line).(*Section)
			if !ok {
				t.Fatalf("expected *Section")
			}
			if s.Type != tt.typ || s.Name != tt.secName {
				t.Errorf("got %s %q, want %s %q", s.Type, s.Name, tt.typ, tt.secName)
			}
			if len(s.Extends) != len(tt.extends) {
				t.Fatalf("extends = %v, want %v", s.Extends, tt.extends)
			}
			for i := range tt.extends {
				if s.Extends[i] != tt.extends[i] {
					t.Errorf("extends[%d] = %q, want %q", i, s.Extends[i], tt.extends[i])
				}
			}
		})
	}
}

func TestParseIncludeDirective(t *testing.T) {
	d := parseOne(t, `@include common/*.secret`).(*IncludeDirective)
	if d.Path != "common/*.secret" {
		t.Errorf("path = %q", d.Path)
	}
}

func TestParseImportDirective(t *testing.T) {
	d := parseOne(t, `@import dotenv://.env.vendor prefix=VENDOR_ case=upper`).(*ImportDirective)
	if d.URI != "dotenv://.env.vendor" {
		t.Errorf("uri = %q", d.URI)
	}
	if d.Prefix != "VENDOR_" {
		t.Errorf("prefix = %q", d.Prefix)
	}
	if d.Case != CaseUpper {
		t.Errorf("case = %q", d.Case)
	}
}

func TestParseImportDefaultsToKeepCase(t *testing.T) {
	d := parseOne(t, `@import env://`).(*ImportDirective)
	if d.Case != CaseKeep {
		t.Errorf("case = %q, want keep", d.Case)
	}
}

func TestParseFromBlock(t *testing.T) {
	src := `@from vault://kv/app {
  DB_PASS = "db/password#2"
  API_KEY = "api/key"
}`
	d := parseOne(t, src).(*FromDirective)
	if d.BaseURI != "vault://kv/app" {
		t.Errorf("base = %q", d.BaseURI)
	}
	if len(d.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(d.Entries))
	}
	if d.Entries[0].Key != "DB_PASS" || d.Entries[0].Ref != "db/password#2" {
		t.Errorf("entry 0 = %+v", d.Entries[0])
	}
}

func TestParseIfDirective(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind ConditionKind
		env  string
		val  string
	}{
		{"profile", "@if profile == \"production\" {\nA = 1\n}", CondProfile, "", "production"},
		{"env", "@if env(\"CI\") == \"true\" {\nA = 1\n}", CondEnv, "CI", "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := parseOne(t, tt.src).(*IfDirective)
			if d.Cond.Kind != tt.kind || d.Cond.Name != tt.env || d.Cond.Value != tt.val {
				t.Errorf("cond = %+v", d.Cond)
			}
			if len(d.Body) != 1 {
				t.Errorf("body = %d nodes, want 1", len(d.Body))
			}
		})
	}
}

func TestParseIfRejectsComposedConditions(t *testing.T) {
	src := "@if profile == \"a\" && env(\"X\") == \"y\" {\nA = 1\n}"
	_, err := Parse(src, "test.secret")
	if err == nil {
		t.Fatal("expected error for composed condition")
	}
}

func TestParseWithDirective(t *testing.T) {
	src := `with vault(addr="https://vault.local", mount=kv) {
  A = !vault(secret=a)
}`
	d := parseOne(t, src).(*WithDirective)
	if d.Provider != "vault" {
		t.Errorf("provider = %q", d.Provider)
	}
	if d.Args["addr"] != "https://vault.local" || d.Args["mount"] != "kv" {
		t.Errorf("args = %v", d.Args)
	}
	if len(d.Body) != 1 {
		t.Fatalf("body = %d nodes, want 1", len(d.Body))
	}
}

func TestParseNestedDirectiveBodies(t *testing.T) {
	src := `@if profile == "dev" {
with vault(mount=dev) {
  A = !vault(secret=a)
}
}`
	d := parseOne(t, src).(*IfDirective)
	w, ok := d.Body[0].(*WithDirective)
	if !ok {
		t.Fatalf("expected nested *WithDirective, got %T", d.Body[0])
	}
	if w.Args["mount"] != "dev" {
		t.Errorf("nested args = %v", w.Args)
	}
}

func TestParseTripleQuotedMultiline(t *testing.T) {
	src := "CERT = \"\"\"-----BEGIN-----\nline \\n kept raw\n-----END-----\"\"\""
	a := parseOne(t, src).(*Assignment)
	want := "-----BEGIN-----\nline \\n kept raw\n-----END-----"
	if a.Expr.Literal != want {
		t.Errorf("literal = %q, want %q", a.Expr.Literal, want)
	}
}

func TestParseCommentsAndBlanks(t *testing.T) {
	pf, err := Parse("# header\n\nA = 1\n", "test.secret")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(pf.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2 (comment dropped blank)", len(pf.Nodes))
	}
	if _, ok := pf.Nodes[0].(*Comment); !ok {
		t.Errorf("node 0 = %T, want *Comment", pf.Nodes[0])
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"garbage line", "!!! not a statement"},
		{"missing operator", "KEY \"value\""},
		{"unterminated if block", "@if profile == \"x\" {\nA = 1"},
		{"unterminated from block", "@from vault://kv {\nA = \"x\""},
		{"unterminated triple quote", "A = \"\"\"abc"},
		{"unknown directive", "@frobnicate x"},
		{"stray close brace", "}"},
		{"bad section", "[scope:]"},
		{"bad import option", "@import env:// style=bold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src, "bad.secret")
			if err == nil {
				t.Fatal("expected parse error")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if pe.Location.File != "bad.secret" {
				t.Errorf("error location file = %q", pe.Location.File)
			}
		})
	}
}

func TestParseLocations(t *testing.T) {
	pf, err := Parse("A = 1\nB = 2\n", "loc.secret")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	b := pf.Nodes[1].(*Assignment)
	if b.Location.Line != 2 {
		t.Errorf("line = %d, want 2", b.Location.Line)
	}
	if got := b.Location.String(); !strings.HasPrefix(got, "loc.secret:2:") {
		t.Errorf("location string = %q", got)
	}
}
