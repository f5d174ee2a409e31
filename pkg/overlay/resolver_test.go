package overlay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/envault/envault/pkg/parser"
)

// writeFile creates a config file inside dir, making parent directories.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func newTestResolver() *Resolver {
	return NewResolver(zerolog.New(nil).Level(zerolog.Disabled))
}

func TestResolveFilesPrecedence(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".secret", "A = 1\n")
	writeFile(t, dir, ".secret.local", "A = 2\n")
	writeFile(t, dir, ".secret.production", "A = 3\n")
	writeFile(t, dir, ".secret.production.local", "A = 4\n")
	writeFile(t, dir, "overlays/ci.secret", "A = 5\n")

	files, err := newTestResolver().ResolveFiles(Options{
		Dir:      dir,
		Profile:  "production",
		Overlays: []string{"ci"},
	})
	if err != nil {
		t.Fatalf("ResolveFiles failed: %v", err)
	}

	want := []string{
		filepath.Join(dir, ".secret"),
		filepath.Join(dir, ".secret.local"),
		filepath.Join(dir, ".secret.production"),
		filepath.Join(dir, ".secret.production.local"),
		filepath.Join(dir, "overlays", "ci.secret"),
	}
	if len(files) != len(want) {
		t.Fatalf("files = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %s, want %s", i, files[i], want[i])
		}
	}
}

func TestResolveFilesSkipsMissingSteps(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".secret", "A = 1\n")

	files, err := newTestResolver().ResolveFiles(Options{Dir: dir, Profile: "staging"})
	if err != nil {
		t.Fatalf("ResolveFiles failed: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("files = %v, want just the base file", files)
	}
}

func TestResolveFilesExplicitMissingBase(t *testing.T) {
	dir := t.TempDir()
	_, err := newTestResolver().ResolveFiles(Options{File: filepath.Join(dir, "nope.secret")})
	if err == nil {
		t.Fatal("expected error for missing explicit base file")
	}
}

func TestParseAllExpandsIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".secret", "@include common/db.secret\nTOP = 1\n")
	writeFile(t, dir, "common/db.secret", "DB = x\n")

	files, err := newTestResolver().ParseAll(Options{Dir: dir})
	if err != nil {
		t.Fatalf("ParseAll failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %d, want 2", len(files))
	}
	if files[0].Included {
		t.Error("base file must not be tagged included")
	}
	if !files[1].Included {
		t.Error("included file must be tagged included")
	}
	if filepath.Base(files[1].Path) != "db.secret" {
		t.Errorf("included path = %s", files[1].Path)
	}
}

func TestParseAllIncludeGlob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".secret", "@include parts/*.secret\n")
	writeFile(t, dir, "parts/a.secret", "A = 1\n")
	writeFile(t, dir, "parts/b.secret", "B = 2\n")

	files, err := newTestResolver().ParseAll(Options{Dir: dir})
	if err != nil {
		t.Fatalf("ParseAll failed: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("files = %d, want base plus two glob matches", len(files))
	}
	// filepath.Glob returns sorted matches.
	if filepath.Base(files[1].Path) != "a.secret" || filepath.Base(files[2].Path) != "b.secret" {
		t.Errorf("glob order: %s, %s", files[1].Path, files[2].Path)
	}
}

func TestParseAllCircularIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".secret", "@include a.secret\n")
	writeFile(t, dir, "a.secret", "@include b.secret\nA = 1\n")
	writeFile(t, dir, "b.secret", "@include a.secret\nB = 2\n")

	files, err := newTestResolver().ParseAll(Options{Dir: dir})
	if err != nil {
		t.Fatalf("ParseAll failed on circular includes: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("files = %d, want 3 (each file processed once)", len(files))
	}
}

func TestParseAllMissingLiteralInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".secret", "@include missing.secret\n")

	if _, err := newTestResolver().ParseAll(Options{Dir: dir}); err == nil {
		t.Fatal("expected error for missing literal include")
	}
}

func TestParseAllEmptyGlobIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".secret", "@include nothing/*.secret\nA = 1\n")

	files, err := newTestResolver().ParseAll(Options{Dir: dir})
	if err != nil {
		t.Fatalf("ParseAll failed: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("files = %d, want 1", len(files))
	}
}

func parseFixture(t *testing.T, path, content string) parser.ParsedFile {
	t.Helper()
	pf, err := parser.Parse(content, path)
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return *pf
}

func TestDetectConflictsThreeDivergentFiles(t *testing.T) {
	files := []parser.ParsedFile{
		parseFixture(t, "a.secret", "KEY = 1\n"),
		parseFixture(t, "b.secret", "KEY = 2\n"),
		parseFixture(t, "c.secret", "KEY = 3\n"),
	}
	conflicts := DetectConflicts(files)
	paths, ok := conflicts["KEY"]
	if !ok {
		t.Fatal("expected KEY conflict")
	}
	if len(paths) != 3 {
		t.Fatalf("paths = %v, want all three files", paths)
	}
}

func TestDetectConflictsIdenticalAssignmentsAreFine(t *testing.T) {
	files := []parser.ParsedFile{
		parseFixture(t, "a.secret", "KEY = same\n"),
		parseFixture(t, "b.secret", "KEY = same\n"),
		parseFixture(t, "c.secret", "KEY = same\n"),
	}
	if conflicts := DetectConflicts(files); len(conflicts) != 0 {
		t.Fatalf("conflicts = %v, want none for identical assignments", conflicts)
	}
}

func TestDetectConflictsTwoFileDivergenceIsOverride(t *testing.T) {
	files := []parser.ParsedFile{
		parseFixture(t, "a.secret", "KEY = 1\n"),
		parseFixture(t, "b.secret", "KEY = 2\n"),
	}
	if conflicts := DetectConflicts(files); len(conflicts) != 0 {
		t.Fatalf("conflicts = %v, want none for two-file override", conflicts)
	}
}
