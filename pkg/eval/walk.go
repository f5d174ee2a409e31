package eval

import (
	"context"
	"fmt"
	"os"

	"github.com/envault/envault/pkg/parser"
)

// historyEntry is one recorded assignment, together with the scoped
// provider defaults that were active when it was encountered.
type historyEntry struct {
	a    *parser.Assignment
	file string
	with map[string]map[string]string
}

// run is the single-use accumulator for one Evaluate call. It is never
// shared across calls.
type run struct {
	e *Evaluator

	env  map[string]string
	meta map[string]KeyMetadata

	histories map[string][]historyEntry
	order     []string

	// present tracks keys with a pending assignment or a directive
	// write, for the early ?= existence check. @unset clears it.
	present map[string]bool

	// protected tracks keys locked by a !protected assignment.
	protected map[string]bool

	warnings []string
	errors   []error

	// with maps provider name to the currently scoped default args.
	with map[string]map[string]string

	// scopeSet is the transitive closure of the requested scopes over
	// every extends declaration in the file set.
	scopeSet map[string]bool

	file    string
	section *parser.Section
}

func newRun(e *Evaluator, files []parser.ParsedFile) *run {
	r := &run{
		e:         e,
		env:       make(map[string]string),
		meta:      make(map[string]KeyMetadata),
		histories: make(map[string][]historyEntry),
		present:   make(map[string]bool),
		protected: make(map[string]bool),
		with:      make(map[string]map[string]string),
	}
	r.scopeSet = expandScopes(e.opts.Scopes, files)
	return r
}

// expandScopes closes the requested scope set over extends chains:
// requesting "python" where [scope:python extends node] exists also
// activates "node", transitively.
func expandScopes(requested []string, files []parser.ParsedFile) map[string]bool {
	extends := make(map[string][]string)
	var collect func(nodes []parser.Node)
	collect = func(nodes []parser.Node) {
		for _, n := range nodes {
			switch node := n.(type) {
			case *parser.Section:
				if node.Type == parser.SectionScope && len(node.Extends) > 0 {
					extends[node.Name] = append(extends[node.Name], node.Extends...)
				}
			case *parser.IfDirective:
				collect(node.Body)
			case *parser.WithDirective:
				collect(node.Body)
			}
		}
	}
	for i := range files {
		collect(files[i].Nodes)
	}

	set := make(map[string]bool)
	queue := append([]string(nil), requested...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if set[name] {
			continue
		}
		set[name] = true
		queue = append(queue, extends[name]...)
	}
	return set
}

func (r *run) warn(msg string) {
	r.warnings = append(r.warnings, msg)
	r.e.logger.Warn().Str("file", r.file).Msg(msg)
}

func (r *run) fail(err error) {
	r.errors = append(r.errors, err)
	r.e.logger.Error().Str("file", r.file).Err(err).Msg("resolution error")
}

// sectionPermits reports whether the current section context lets a
// node through.
func (r *run) sectionPermits() bool {
	s := r.section
	if s == nil {
		return true
	}
	switch s.Type {
	case parser.SectionProfile:
		return r.e.opts.Profile == "" || s.Name == "default" || s.Name == r.e.opts.Profile
	case parser.SectionScope:
		return r.scopeSet[s.Name]
	}
	return false
}

// walk visits nodes in order, recording assignments and executing
// directives. Sections gate every following node until the next
// section.
func (r *run) walk(ctx context.Context, nodes []parser.Node) {
	for _, n := range nodes {
		if s, ok := n.(*parser.Section); ok {
			r.section = s
			continue
		}
		if !r.sectionPermits() {
			continue
		}

		switch node := n.(type) {
		case *parser.Comment, *parser.IncludeDirective:
			// Includes were expanded by the overlay resolver.
		case *parser.Assignment:
			r.record(node)
		case *parser.ImportDirective:
			r.runImport(ctx, node)
		case *parser.FromDirective:
			r.runFrom(ctx, node)
		case *parser.IfDirective:
			if r.condition(node.Cond) {
				r.walk(ctx, node.Body)
			}
		case *parser.WithDirective:
			r.runWith(ctx, node)
		}
	}
}

// record appends an assignment to its key's history. Nothing is
// resolved here; the replay pass folds histories later.
func (r *run) record(a *parser.Assignment) {
	if a.Op != parser.OpUnset && r.protected[a.Key] && !r.e.opts.Force {
		r.warn(fmt.Sprintf("Cannot override protected key: %s", a.Key))
		return
	}
	if a.Op == parser.OpSetDefault && r.present[a.Key] {
		return
	}

	if _, seen := r.histories[a.Key]; !seen && !r.present[a.Key] {
		r.order = append(r.order, a.Key)
	}
	r.histories[a.Key] = append(r.histories[a.Key], historyEntry{
		a:    a,
		file: r.file,
		with: snapshotWith(r.with),
	})

	if a.Op == parser.OpUnset {
		delete(r.present, a.Key)
	} else {
		r.present[a.Key] = true
		if a.Protected {
			r.protected[a.Key] = true
		}
	}
}

// condition evaluates the restricted @if grammar against the run's
// profile or the process environment.
func (r *run) condition(c parser.Condition) bool {
	switch c.Kind {
	case parser.CondProfile:
		return r.e.opts.Profile == c.Value
	case parser.CondEnv:
		return os.Getenv(c.Name) == c.Value
	}
	return false
}

// runWith pushes scoped defaults for one provider around its body,
// merging with and restoring any enclosing scope.
func (r *run) runWith(ctx context.Context, d *parser.WithDirective) {
	prev, had := r.with[d.Provider]

	merged := make(map[string]string, len(prev)+len(d.Args))
	for k, v := range prev {
		merged[k] = v
	}
	for k, v := range d.Args {
		merged[k] = v
	}
	r.with[d.Provider] = merged

	r.walk(ctx, d.Body)

	if had {
		r.with[d.Provider] = prev
	} else {
		delete(r.with, d.Provider)
	}
}

// snapshotWith copies the scoped-defaults state so each history entry
// resolves under the defaults active when it was recorded.
func snapshotWith(with map[string]map[string]string) map[string]map[string]string {
	if len(with) == 0 {
		return nil
	}
	snap := make(map[string]map[string]string, len(with))
	for provider, args := range with {
		copied := make(map[string]string, len(args))
		for k, v := range args {
			copied[k] = v
		}
		snap[provider] = copied
	}
	return snap
}

// markDirect registers a key written directly by a directive, outside
// the history mechanism.
func (r *run) markDirect(key, value, provider string) {
	if _, ok := r.env[key]; !ok && !r.present[key] {
		if _, seen := r.histories[key]; !seen {
			r.order = append(r.order, key)
		}
	}
	r.env[key] = value
	r.present[key] = true
	r.meta[key] = KeyMetadata{
		Value:      value,
		SourceFile: r.file,
		Provider:   provider,
	}
}
