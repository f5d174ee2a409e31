// Package overlay determines which configuration files apply to a run,
// expands @include directives recursively, and concatenates per-file ASTs in
// precedence order. Later files override earlier ones during evaluation.
package overlay

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/envault/envault/pkg/parser"
)

// DefaultBaseFile is the base configuration file looked up in the working
// directory when no explicit file is given.
const DefaultBaseFile = ".secret"

// Options selects the file set for one run.
type Options struct {
	// File is an explicit base file path. Empty means DefaultBaseFile in Dir.
	File string

	// Dir is the working directory. Empty means ".".
	Dir string

	// Profile selects the .secret.<profile> variants.
	Profile string

	// Overlays are named overlay files, layered in request order.
	Overlays []string
}

// Resolver resolves and parses overlay file sets.
type Resolver struct {
	logger zerolog.Logger

	// seen holds canonicalized paths already processed, which both
	// de-duplicates repeated includes and breaks include cycles.
	seen map[string]bool
}

// NewResolver creates a resolver. A Resolver is single-use per ParseAll call
// chain; create a fresh one per run.
func NewResolver(logger zerolog.Logger) *Resolver {
	return &Resolver{
		logger: logger.With().Str("component", "overlay").Logger(),
		seen:   make(map[string]bool),
	}
}

// ResolveFiles returns the ordered list of existing files for the options:
// base, base.local, base.<profile>, base.<profile>.local, then
// overlays/<name>.secret for each requested overlay, in request order.
// Every step except an explicitly named base file is conditional on
// existence.
func (r *Resolver) ResolveFiles(opts Options) ([]string, error) {
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	base := opts.File
	explicit := base != ""
	if !explicit {
		base = filepath.Join(dir, DefaultBaseFile)
	}

	if explicit {
		if _, err := os.Stat(base); err != nil {
			return nil, fmt.Errorf("configuration file %s: %w", base, err)
		}
	}

	candidates := []string{base, base + ".local"}
	if opts.Profile != "" {
		candidates = append(candidates,
			base+"."+opts.Profile,
			base+"."+opts.Profile+".local",
		)
	}
	for _, name := range opts.Overlays {
		candidates = append(candidates, filepath.Join(dir, "overlays", name+".secret"))
	}

	var files []string
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			files = append(files, c)
		}
	}

	r.logger.Debug().Strs("files", files).Str("profile", opts.Profile).Msg("Resolved overlay files")
	return files, nil
}

// ParseAll resolves the file set, parses every file, and expands includes
// depth-first. Included files appear immediately after their parent, tagged
// Included for diagnostics.
func (r *Resolver) ParseAll(opts Options) ([]parser.ParsedFile, error) {
	paths, err := r.ResolveFiles(opts)
	if err != nil {
		return nil, err
	}

	var files []parser.ParsedFile
	for _, p := range paths {
		expanded, err := r.expand(p, false)
		if err != nil {
			return nil, err
		}
		files = append(files, expanded...)
	}
	return files, nil
}

// expand parses one file and recurses into its top-level includes. Already
// processed files are skipped, which also terminates circular includes.
func (r *Resolver) expand(path string, included bool) ([]parser.ParsedFile, error) {
	canonical, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing %s: %w", path, err)
	}
	if r.seen[canonical] {
		r.logger.Debug().Str("file", path).Msg("Skipping already-processed file")
		return nil, nil
	}
	r.seen[canonical] = true

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	pf, err := parser.Parse(string(content), path)
	if err != nil {
		return nil, err
	}
	pf.Included = included

	files := []parser.ParsedFile{*pf}
	for _, node := range pf.Nodes {
		inc, ok := node.(*parser.IncludeDirective)
		if !ok {
			continue
		}
		targets, err := r.includeTargets(path, inc)
		if err != nil {
			return nil, err
		}
		for _, target := range targets {
			sub, err := r.expand(target, true)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
		}
	}
	return files, nil
}

// includeTargets resolves an include path relative to the including file's
// directory, expanding globs non-recursively. A glob matching nothing is not
// an error; a literal path that does not exist is.
func (r *Resolver) includeTargets(from string, inc *parser.IncludeDirective) ([]string, error) {
	target := inc.Path
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(from), target)
	}

	if strings.Contains(inc.Path, "*") {
		matches, err := filepath.Glob(target)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid include glob %q: %w", inc.Loc(), inc.Path, err)
		}
		return matches, nil
	}

	if _, err := os.Stat(target); err != nil {
		return nil, fmt.Errorf("%s: included file %s: %w", inc.Loc(), inc.Path, err)
	}
	return []string{target}, nil
}
