package parser

import (
	"fmt"
	"strings"
)

// parseExpression splits expression text into its provider/literal head, pipe
// chain, and fallback. All splitting respects quote and paren depth, so
// literal pipes, commas, and parens inside quoted values survive intact.
func parseExpression(text string) (*Expression, error) {
	main, fallback, hasFallback := splitFallback(text)

	segs := splitPipes(main)
	expr := &Expression{}

	head := strings.TrimSpace(segs[0].text)
	if rest, ok := strings.CutPrefix(head, "!"); ok {
		ref, err := parseProviderRef(strings.TrimSpace(rest))
		if err != nil {
			return nil, err
		}
		expr.Provider = ref
	} else {
		expr.Literal = unquote(head)
	}

	for _, seg := range segs[1:] {
		pc, err := parsePipeCall(seg)
		if err != nil {
			return nil, err
		}
		expr.Pipes = append(expr.Pipes, pc)
	}

	if hasFallback {
		f := unquote(strings.TrimSpace(fallback))
		expr.Fallback = &f
	}
	return expr, nil
}

// parseProviderRef accepts scheme://rest and name(args) forms.
func parseProviderRef(s string) (*ProviderRef, error) {
	if s == "" {
		return nil, fmt.Errorf("empty provider reference")
	}

	if scheme, _, ok := strings.Cut(s, "://"); ok {
		if scheme == "" {
			return nil, fmt.Errorf("malformed provider URI %q: empty scheme", s)
		}
		return &ProviderRef{Scheme: scheme, URI: s}, nil
	}

	open := strings.Index(s, "(")
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("malformed provider reference %q: expected scheme://path or name(args)", s)
	}
	name := strings.TrimSpace(s[:open])
	if !isIdentifier(name) {
		return nil, fmt.Errorf("malformed provider reference: invalid name %q", name)
	}
	args, err := parseArgs(s[open+1 : len(s)-1])
	if err != nil {
		return nil, err
	}
	return &ProviderRef{Fn: name, Args: args}, nil
}

// parsePipeCall accepts a bare pipe name or name(args).
func parsePipeCall(seg pipeSegment) (PipeCall, error) {
	text := strings.TrimSpace(seg.text)
	if text == "" {
		return PipeCall{}, fmt.Errorf("empty pipe segment")
	}

	open := strings.Index(text, "(")
	if open < 0 {
		if !isIdentifier(text) {
			return PipeCall{}, fmt.Errorf("malformed pipe name %q", text)
		}
		return PipeCall{Name: text, Args: map[string]string{}, Soft: seg.soft}, nil
	}

	if !strings.HasSuffix(text, ")") {
		return PipeCall{}, fmt.Errorf("malformed pipe call %q: missing ')'", text)
	}
	name := strings.TrimSpace(text[:open])
	if !isIdentifier(name) {
		return PipeCall{}, fmt.Errorf("malformed pipe call: invalid name %q", name)
	}
	args, err := parseArgs(text[open+1 : len(text)-1])
	if err != nil {
		return PipeCall{}, err
	}
	return PipeCall{Name: name, Args: args, Soft: seg.soft}, nil
}

// parseArgs parses "k=v, k2=v2" argument lists. A bare token without '='
// becomes a boolean-style flag set to "true". Values are unquoted.
func parseArgs(inner string) (map[string]string, error) {
	args := make(map[string]string)
	if strings.TrimSpace(inner) == "" {
		return args, nil
	}
	for _, item := range splitTopLevel(inner, ',') {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, fmt.Errorf("malformed argument list %q: empty argument", inner)
		}
		k, v, ok := strings.Cut(item, "=")
		k = strings.TrimSpace(k)
		if !isIdentifier(k) {
			return nil, fmt.Errorf("malformed argument %q: expected identifier key", item)
		}
		if !ok {
			args[k] = "true"
			continue
		}
		args[k] = unquote(strings.TrimSpace(v))
	}
	return args, nil
}

// pipeSegment is one chunk of a pipe chain; soft marks segments introduced
// by the ?| operator.
type pipeSegment struct {
	text string
	soft bool
}

// scanState tracks quote and paren depth during top-level splitting.
type scanState struct {
	inSingle bool
	inDouble bool
	inTriple bool
	depth    int
}

// step consumes the character at s[i] and returns the next index. Backslash
// escapes apply inside single/double quotes and in bare text, never inside
// triple quotes.
func (st *scanState) step(s string, i int) int {
	c := s[i]

	if st.inTriple {
		if c == '"' && strings.HasPrefix(s[i:], `"""`) {
			st.inTriple = false
			return i + 3
		}
		return i + 1
	}
	if st.inSingle {
		if c == '\\' && i+1 < len(s) {
			return i + 2
		}
		if c == '\'' {
			st.inSingle = false
		}
		return i + 1
	}
	if st.inDouble {
		if c == '\\' && i+1 < len(s) {
			return i + 2
		}
		if c == '"' {
			st.inDouble = false
		}
		return i + 1
	}

	switch c {
	case '\\':
		if i+1 < len(s) {
			return i + 2
		}
	case '"':
		if strings.HasPrefix(s[i:], `"""`) {
			st.inTriple = true
			return i + 3
		}
		st.inDouble = true
	case '\'':
		st.inSingle = true
	case '(':
		st.depth++
	case ')':
		if st.depth > 0 {
			st.depth--
		}
	}
	return i + 1
}

// top reports whether the scanner is at quote and paren depth zero.
func (st *scanState) top() bool {
	return !st.inSingle && !st.inDouble && !st.inTriple && st.depth == 0
}

// splitFallback splits text at the first top-level "||".
func splitFallback(text string) (main, fallback string, ok bool) {
	var st scanState
	for i := 0; i < len(text); {
		if st.top() && text[i] == '|' && i+1 < len(text) && text[i+1] == '|' {
			return text[:i], text[i+2:], true
		}
		i = st.step(text, i)
	}
	return text, "", false
}

// splitPipes splits on top-level "|" and "?|"; the soft marker attaches to
// the segment that follows it.
func splitPipes(s string) []pipeSegment {
	var segs []pipeSegment
	var st scanState
	start := 0
	soft := false

	for i := 0; i < len(s); {
		if st.top() && s[i] == '|' {
			end := i
			nextSoft := false
			if end > start && s[end-1] == '?' {
				end--
				nextSoft = true
			}
			segs = append(segs, pipeSegment{text: s[start:end], soft: soft})
			soft = nextSoft
			i++
			start = i
			continue
		}
		i = st.step(s, i)
	}
	segs = append(segs, pipeSegment{text: s[start:], soft: soft})
	return segs
}

// splitTopLevel splits s on sep at quote and paren depth zero.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	var st scanState
	start := 0
	for i := 0; i < len(s); {
		if st.top() && s[i] == sep {
			parts = append(parts, s[start:i])
			i++
			start = i
			continue
		}
		i = st.step(s, i)
	}
	return append(parts, s[start:])
}

// indexTopLevel returns the index of the first top-level occurrence of c,
// or -1. The character at index 0 is not considered "inside" anything, so a
// leading paren still counts as its own top-level occurrence's opener.
func indexTopLevel(s string, c byte) int {
	var st scanState
	for i := 0; i < len(s); {
		if s[i] == c && (c != ')' || st.depth == 1) && !st.inSingle && !st.inDouble && !st.inTriple {
			if c != ')' && !st.top() {
				i = st.step(s, i)
				continue
			}
			return i
		}
		i = st.step(s, i)
	}
	return -1
}

// unquote strips one layer of quoting. Triple-quoted text is raw with no
// escape processing; single- and double-quoted text is unescaped and
// quote-stripped; bare text is unescaped without stripping.
func unquote(s string) string {
	if len(s) >= 6 && strings.HasPrefix(s, `"""`) && strings.HasSuffix(s, `"""`) {
		return s[3 : len(s)-3]
	}
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return unescape(s[1 : len(s)-1])
		}
	}
	return unescape(s)
}

// unescape collapses every backslash escape: \x becomes x.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
