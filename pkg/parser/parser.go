package parser

import (
	"fmt"
	"strings"
)

// ParseError reports a line that matches none of the recognized forms, a
// malformed directive header, or an unterminated block. Parsing a file stops
// at the first error; there is no partial AST recovery.
type ParseError struct {
	Location SourceLocation
	Msg      string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Location, e.Msg)
}

// Parse converts one configuration file's text into its ordered AST.
func Parse(content, file string) (*ParsedFile, error) {
	p := &parser{
		lines: strings.Split(content, "\n"),
		file:  file,
	}
	nodes, err := p.parseNodes(false)
	if err != nil {
		return nil, err
	}
	return &ParsedFile{Path: file, Nodes: nodes}, nil
}

// parser walks the shared line slice with a cursor. Nested directive bodies
// recurse into parseNodes with the same cursor instead of re-slicing text.
type parser struct {
	lines []string
	file  string
	i     int
}

// parseNodes dispatches lines until end of input, or until a line consisting
// solely of "}" when inBlock is set.
func (p *parser) parseNodes(inBlock bool) ([]Node, error) {
	var nodes []Node

	for p.i < len(p.lines) {
		line := p.lines[p.i]
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			p.i++

		case trimmed == "}":
			if !inBlock {
				return nil, p.errorf(p.i+1, line, "unexpected '}' outside a directive block")
			}
			p.i++
			return nodes, nil

		case strings.HasPrefix(trimmed, "#"):
			nodes = append(nodes, &Comment{
				Text:     trimmed,
				Location: p.lineLoc(p.i+1, line),
			})
			p.i++

		case strings.HasPrefix(trimmed, "["):
			sec, err := p.parseSection(trimmed, p.i+1, line)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, sec)
			p.i++

		case strings.HasPrefix(trimmed, "@"):
			d, err := p.parseDirective(trimmed)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, d)

		case strings.HasPrefix(trimmed, "with ") && strings.HasSuffix(trimmed, "{"):
			d, err := p.parseWith(trimmed)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, d)

		default:
			a, err := p.parseAssignment(trimmed, line)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, a)
		}
	}

	if inBlock {
		return nil, p.errorf(len(p.lines), "", "unterminated block: expected '}' before end of input")
	}
	return nodes, nil
}

// parseSection handles [name], [scope:name] and [scope:name extends a b].
func (p *parser) parseSection(trimmed string, lineNo int, raw string) (*Section, error) {
	if !strings.HasSuffix(trimmed, "]") {
		return nil, p.errorf(lineNo, raw, "malformed section header: missing ']'")
	}
	inner := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
	if inner == "" {
		return nil, p.errorf(lineNo, raw, "malformed section header: empty name")
	}

	loc := p.lineLoc(lineNo, raw)
	fields := strings.Fields(inner)

	if rest, ok := strings.CutPrefix(fields[0], "scope:"); ok {
		if rest == "" {
			return nil, p.errorf(lineNo, raw, "malformed scope section: empty scope name")
		}
		sec := &Section{Type: SectionScope, Name: rest, Location: loc}
		if len(fields) > 1 {
			if fields[1] != "extends" || len(fields) < 3 {
				return nil, p.errorf(lineNo, raw, "malformed scope section: expected 'extends <name>...'")
			}
			sec.Extends = fields[2:]
		}
		return sec, nil
	}

	if len(fields) != 1 {
		return nil, p.errorf(lineNo, raw, "malformed profile section: unexpected trailing tokens")
	}
	return &Section{Type: SectionProfile, Name: fields[0], Location: loc}, nil
}

// parseDirective dispatches on the word following "@". It advances the
// cursor past everything the directive consumed, block bodies included.
func (p *parser) parseDirective(trimmed string) (Node, error) {
	lineNo := p.i + 1
	raw := trimmed
	body := trimmed[1:]

	name, rest, _ := strings.Cut(body, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "include":
		if rest == "" {
			return nil, p.errorf(lineNo, raw, "@include requires a path or glob")
		}
		p.i++
		return &IncludeDirective{Path: unquote(rest), Location: p.lineLoc(lineNo, raw)}, nil

	case "import":
		return p.parseImport(rest, lineNo, raw)

	case "from":
		return p.parseFrom(rest, lineNo, raw)

	case "if":
		return p.parseIf(rest, lineNo, raw)

	default:
		return nil, p.errorf(lineNo, raw, fmt.Sprintf("unknown directive: @%s", name))
	}
}

// parseImport handles "@import <uri> [prefix=X] [case=upper|lower|keep]".
func (p *parser) parseImport(rest string, lineNo int, raw string) (Node, error) {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return nil, p.errorf(lineNo, raw, "@import requires a provider URI")
	}

	d := &ImportDirective{
		URI:      fields[0],
		Case:     CaseKeep,
		Location: p.lineLoc(lineNo, raw),
	}
	for _, f := range fields[1:] {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			return nil, p.errorf(lineNo, raw, fmt.Sprintf("malformed @import option %q: expected key=value", f))
		}
		switch k {
		case "prefix":
			d.Prefix = unquote(v)
		case "case":
			switch CaseMode(v) {
			case CaseUpper, CaseLower, CaseKeep:
				d.Case = CaseMode(v)
			default:
				return nil, p.errorf(lineNo, raw, fmt.Sprintf("invalid @import case mode %q: expected upper, lower, or keep", v))
			}
		default:
			return nil, p.errorf(lineNo, raw, fmt.Sprintf("unknown @import option %q", k))
		}
	}
	p.i++
	return d, nil
}

// parseFrom handles the "@from <baseUri> {" block of KEY = "path#version"
// entries, terminated by a line consisting solely of "}".
func (p *parser) parseFrom(rest string, lineNo int, raw string) (Node, error) {
	base, ok := strings.CutSuffix(rest, "{")
	if !ok {
		return nil, p.errorf(lineNo, raw, "@from requires a block: expected '{' at end of line")
	}
	base = strings.TrimSpace(base)
	if base == "" {
		return nil, p.errorf(lineNo, raw, "@from requires a base URI")
	}

	d := &FromDirective{BaseURI: base, Location: p.lineLoc(lineNo, raw)}
	p.i++
	for p.i < len(p.lines) {
		entryLine := p.lines[p.i]
		entry := strings.TrimSpace(entryLine)
		entryNo := p.i + 1

		switch {
		case entry == "" || strings.HasPrefix(entry, "#"):
			p.i++
		case entry == "}":
			p.i++
			d.Location.EndLine = entryNo
			d.Location.EndColumn = 1
			return d, nil
		default:
			key, ref, found := strings.Cut(entry, "=")
			key = strings.TrimSpace(key)
			if !found || !isIdentifier(key) {
				return nil, p.errorf(entryNo, entryLine, "malformed @from entry: expected KEY = \"path\"")
			}
			d.Entries = append(d.Entries, FromEntry{
				Key:      key,
				Ref:      unquote(strings.TrimSpace(ref)),
				Location: p.lineLoc(entryNo, entryLine),
			})
			p.i++
		}
	}
	return nil, p.errorf(len(p.lines), "", "unterminated @from block: expected '}' before end of input")
}

// parseIf handles "@if <cond> {" with a recursively parsed body.
func (p *parser) parseIf(rest string, lineNo int, raw string) (Node, error) {
	condText, ok := strings.CutSuffix(rest, "{")
	if !ok {
		return nil, p.errorf(lineNo, raw, "@if requires a block: expected '{' at end of line")
	}
	cond, err := p.parseCondition(strings.TrimSpace(condText), lineNo, raw)
	if err != nil {
		return nil, err
	}

	loc := p.lineLoc(lineNo, raw)
	p.i++
	body, err := p.parseNodes(true)
	if err != nil {
		return nil, err
	}
	loc.EndLine = p.i
	return &IfDirective{Cond: cond, Body: body, Location: loc}, nil
}

// parseCondition accepts exactly two forms and nothing else:
//
//	profile == "<literal>"
//	env("<NAME>") == "<literal>"
func (p *parser) parseCondition(text string, lineNo int, raw string) (Condition, error) {
	left, right, ok := strings.Cut(text, "==")
	if !ok {
		return Condition{}, p.errorf(lineNo, raw, "malformed @if condition: expected '=='")
	}
	left = strings.TrimSpace(left)
	right = strings.TrimSpace(right)
	if right == "" {
		return Condition{}, p.errorf(lineNo, raw, "malformed @if condition: missing comparison literal")
	}
	value := unquote(right)

	if left == "profile" {
		return Condition{Kind: CondProfile, Value: value}, nil
	}
	if inner, found := strings.CutPrefix(left, "env("); found {
		nameText, closed := strings.CutSuffix(inner, ")")
		if !closed {
			return Condition{}, p.errorf(lineNo, raw, "malformed @if condition: expected env(\"NAME\")")
		}
		name := unquote(strings.TrimSpace(nameText))
		if name == "" {
			return Condition{}, p.errorf(lineNo, raw, "malformed @if condition: empty env variable name")
		}
		return Condition{Kind: CondEnv, Name: name, Value: value}, nil
	}
	return Condition{}, p.errorf(lineNo, raw, fmt.Sprintf("unsupported @if condition %q: only profile == \"x\" and env(\"X\") == \"y\" are recognized", text))
}

// parseWith handles `with fn(args) {` with a recursively parsed body.
func (p *parser) parseWith(trimmed string) (Node, error) {
	lineNo := p.i + 1
	raw := trimmed

	header := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(trimmed, "with "), "{"))
	open := strings.Index(header, "(")
	if open <= 0 || !strings.HasSuffix(header, ")") {
		return nil, p.errorf(lineNo, raw, "malformed with directive: expected with <fn>(args) {")
	}
	fn := strings.TrimSpace(header[:open])
	if !isIdentifier(fn) {
		return nil, p.errorf(lineNo, raw, fmt.Sprintf("malformed with directive: invalid provider name %q", fn))
	}
	args, err := parseArgs(header[open+1 : len(header)-1])
	if err != nil {
		return nil, p.errorf(lineNo, raw, err.Error())
	}

	loc := p.lineLoc(lineNo, raw)
	p.i++
	body, err := p.parseNodes(true)
	if err != nil {
		return nil, err
	}
	loc.EndLine = p.i
	return &WithDirective{Provider: fn, Args: args, Body: body, Location: loc}, nil
}

// parseAssignment handles the KEY <op> <expr> forms, including the
// !protected prefix, +=(sep), @unset, and triple-quoted continuation lines.
func (p *parser) parseAssignment(trimmed, raw string) (*Assignment, error) {
	lineNo := p.i + 1
	text := trimmed

	protected := false
	if rest, ok := strings.CutPrefix(text, "!protected "); ok {
		protected = true
		text = strings.TrimSpace(rest)
	}

	key := leadingIdentifier(text)
	if key == "" {
		return nil, p.errorf(lineNo, raw, fmt.Sprintf("unrecognized statement: %q", trimmed))
	}
	rest := strings.TrimSpace(text[len(key):])

	var op Operator
	switch {
	case strings.HasPrefix(rest, "?="):
		op = OpSetDefault
		rest = rest[2:]
	case strings.HasPrefix(rest, "+="):
		op = OpAppend
		rest = rest[2:]
	case strings.HasPrefix(rest, "="):
		op = OpSet
		rest = rest[1:]
	default:
		return nil, p.errorf(lineNo, raw, fmt.Sprintf("malformed assignment: expected '=', '?=' or '+=' after key %s", key))
	}
	rest = strings.TrimSpace(rest)

	a := &Assignment{
		Key:       key,
		Op:        op,
		Protected: protected,
		Location:  p.lineLoc(lineNo, raw),
	}

	// +=(sep) carries a per-assignment separator.
	if op == OpAppend && strings.HasPrefix(rest, "(") {
		close := indexTopLevel(rest, ')')
		if close < 0 {
			return nil, p.errorf(lineNo, raw, "malformed append separator: missing ')'")
		}
		a.Separator = unquote(strings.TrimSpace(rest[1:close]))
		rest = strings.TrimSpace(rest[close+1:])
	}

	if op == OpSet && rest == "@unset" {
		a.Op = OpUnset
		a.Raw = trimmed
		p.i++
		return a, nil
	}

	// Triple-quoted literals consume lines until their terminator.
	exprText := rest
	for hasOpenTriple(exprText) {
		if p.i+1 >= len(p.lines) {
			return nil, p.errorf(lineNo, raw, "unterminated triple-quoted string")
		}
		p.i++
		exprText += "\n" + p.lines[p.i]
	}

	expr, err := parseExpression(exprText)
	if err != nil {
		return nil, p.errorf(lineNo, raw, err.Error())
	}
	a.Expr = expr
	a.Location.EndLine = p.i + 1
	a.Raw = trimmed
	if p.i+1-lineNo > 0 {
		// Multi-line statement: keep the full logical text.
		a.Raw = trimmed + "\n" + strings.Join(p.lines[lineNo:p.i+1], "\n")
	}
	p.i++
	return a, nil
}

// hasOpenTriple reports whether text ends inside an unterminated """ literal.
func hasOpenTriple(text string) bool {
	return strings.Count(text, `"""`)%2 == 1
}

// lineLoc builds a single-line location from a raw line.
func (p *parser) lineLoc(lineNo int, raw string) SourceLocation {
	col := len(raw) - len(strings.TrimLeft(raw, " \t")) + 1
	return SourceLocation{
		File:      p.file,
		Line:      lineNo,
		Column:    col,
		EndLine:   lineNo,
		EndColumn: col + len(strings.TrimSpace(raw)),
	}
}

func (p *parser) errorf(lineNo int, raw, msg string) *ParseError {
	return &ParseError{Location: p.lineLoc(lineNo, raw), Msg: msg}
}

// leadingIdentifier returns the identifier prefix of text, or "".
func leadingIdentifier(text string) string {
	for i, r := range text {
		if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r == '_' {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return text[:i]
	}
	return text
}

// isIdentifier reports whether s is a non-empty identifier.
func isIdentifier(s string) bool {
	return s != "" && leadingIdentifier(s) == s
}
