package parser

import "fmt"

// SourceLocation identifies a span of configuration source text. It is
// attached to every node for diagnostics and is immutable once produced.
type SourceLocation struct {
	// File is the path or identity of the source file.
	File string `json:"file"`

	// Line and Column are 1-based and mark the start of the span.
	Line   int `json:"line"`
	Column int `json:"column"`

	// EndLine and EndColumn mark the end of the span (inclusive).
	EndLine   int `json:"end_line"`
	EndColumn int `json:"end_column"`
}

// String renders the location as file:line:column.
func (l SourceLocation) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Node is implemented by every AST element. Node order within a file is
// semantically significant: later nodes can override earlier ones, and a
// section node gates every following node until the next section node.
type Node interface {
	// Loc returns the node's source location.
	Loc() SourceLocation
}

// Comment is a #-prefixed line. Comments are retained so diagnostics and
// future rewriting tools can round-trip a file.
type Comment struct {
	Text     string
	Location SourceLocation
}

// Loc implements Node.
func (c *Comment) Loc() SourceLocation { return c.Location }

// SectionType distinguishes profile sections from scope sections.
type SectionType string

const (
	// SectionProfile is a mutually-exclusive configuration variant.
	SectionProfile SectionType = "profile"

	// SectionScope is an additively-selectable configuration fragment.
	SectionScope SectionType = "scope"
)

// Section gates the nodes that follow it (until the next Section) on the
// active profile or requested scopes. Sections do not nest; a section node
// always resets the gating context.
type Section struct {
	Type     SectionType
	Name     string
	Extends  []string
	Location SourceLocation
}

// Loc implements Node.
func (s *Section) Loc() SourceLocation { return s.Location }

// Operator is the assignment operator of a statement.
type Operator string

const (
	// OpSet replaces the running value.
	OpSet Operator = "="

	// OpSetDefault sets the running value only if nothing is set yet.
	OpSetDefault Operator = "?="

	// OpAppend appends to the running value using the assignment's separator.
	OpAppend Operator = "+="

	// OpUnset clears the running value.
	OpUnset Operator = "@unset"
)

// Assignment is a single KEY <op> <expr> statement. Keys are case-sensitive
// strings; the grammar only requires a leading identifier shape.
type Assignment struct {
	Key string
	Op  Operator

	// Expr is nil for OpUnset.
	Expr *Expression

	// Protected marks a key that later plain assignments may not override.
	Protected bool

	// Separator is the explicit +=(sep) separator; empty means the default.
	Separator string

	// Raw is the trimmed source text of the whole statement, used for
	// structural-identity comparison and diagnostics.
	Raw string

	Location SourceLocation
}

// Loc implements Node.
func (a *Assignment) Loc() SourceLocation { return a.Location }

// Expression is the right-hand side of an assignment: a provider reference
// or a literal (mutually exclusive), an ordered pipe chain, and an optional
// fallback literal applied when the resolved value is empty.
type Expression struct {
	// Provider is non-nil for provider-triggered ("!") expressions.
	Provider *ProviderRef

	// Literal is the unquoted literal text for literal expressions.
	Literal string

	Pipes []PipeCall

	// Fallback, when non-nil, replaces an empty resolved value. It is not
	// passed back through the pipe chain.
	Fallback *string
}

// IsProvider reports whether the expression resolves through a provider.
func (e *Expression) IsProvider() bool { return e.Provider != nil }

// ProviderRef names an external secret provider, either by URI
// (gcp://projects/x/secrets/y) or by call form (gcp(secret=y)).
type ProviderRef struct {
	// Scheme and URI are set for the URI form.
	Scheme string
	URI    string

	// Fn and Args are set for the call form.
	Fn   string
	Args map[string]string
}

// IsURI reports whether the reference uses the scheme://rest form.
func (r *ProviderRef) IsURI() bool { return r.URI != "" }

// Name returns the provider name regardless of form.
func (r *ProviderRef) Name() string {
	if r.IsURI() {
		return r.Scheme
	}
	return r.Fn
}

// PipeCall is one step of a transformation chain. Soft marks the ?| form:
// a failure of that single pipe is tolerated and leaves the value unchanged.
type PipeCall struct {
	Name string
	Args map[string]string
	Soft bool
}

// IncludeDirective pulls another file (or glob of files) into the overlay
// set. Expansion happens in the overlay resolver, not the evaluator.
type IncludeDirective struct {
	Path     string
	Location SourceLocation
}

// Loc implements Node.
func (d *IncludeDirective) Loc() SourceLocation { return d.Location }

// CaseMode controls key case normalization for @import.
type CaseMode string

const (
	CaseUpper CaseMode = "upper"
	CaseLower CaseMode = "lower"
	CaseKeep  CaseMode = "keep"
)

// ImportDirective batch-fetches every key under a provider URI and writes
// the results directly into the environment, bypassing assignment history.
type ImportDirective struct {
	URI      string
	Prefix   string
	Case     CaseMode
	Location SourceLocation
}

// Loc implements Node.
func (d *ImportDirective) Loc() SourceLocation { return d.Location }

// FromEntry maps one key to a provider-relative reference ("path#version").
type FromEntry struct {
	Key      string
	Ref      string
	Location SourceLocation
}

// FromDirective resolves each mapped key individually against a base URI.
type FromDirective struct {
	BaseURI  string
	Entries  []FromEntry
	Location SourceLocation
}

// Loc implements Node.
func (d *FromDirective) Loc() SourceLocation { return d.Location }

// ConditionKind is the restricted @if condition form.
type ConditionKind string

const (
	// CondProfile compares the active profile to a literal.
	CondProfile ConditionKind = "profile"

	// CondEnv compares a process environment variable to a literal.
	CondEnv ConditionKind = "env"
)

// Condition is an @if condition. Only two fixed forms exist, with no
// boolean composition: profile == "x" and env("X") == "y".
type Condition struct {
	Kind  ConditionKind
	Name  string // environment variable name for CondEnv
	Value string
}

// IfDirective gates its body on a Condition.
type IfDirective struct {
	Cond     Condition
	Body     []Node
	Location SourceLocation
}

// Loc implements Node.
func (d *IfDirective) Loc() SourceLocation { return d.Location }

// WithDirective pushes scoped default arguments for one provider around its
// body. Scopes merge with, and restore, any enclosing scope for the same
// provider.
type WithDirective struct {
	Provider string
	Args     map[string]string
	Body     []Node
	Location SourceLocation
}

// Loc implements Node.
func (d *WithDirective) Loc() SourceLocation { return d.Location }

// ParsedFile is the unit the overlay resolver produces and the evaluator
// consumes: one file's ordered node list.
type ParsedFile struct {
	Path  string
	Nodes []Node

	// Included marks files pulled in through @include, for diagnostics.
	Included bool
}
