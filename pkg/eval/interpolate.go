package eval

import (
	"os"
	"strings"
)

// interpolate substitutes ${NAME} tokens in every resolved value:
// from the resolved environment first, then the parent process
// environment, else the token stays literal. Single pass — substituted
// text is never re-scanned and nested tokens are never expanded.
func (r *run) interpolate() {
	// Expand against a snapshot so the result does not depend on map
	// iteration order.
	snapshot := make(map[string]string, len(r.env))
	for k, v := range r.env {
		snapshot[k] = v
	}
	for key, value := range snapshot {
		expanded := expand(value, snapshot)
		if expanded == value {
			continue
		}
		r.env[key] = expanded
		if meta, ok := r.meta[key]; ok {
			meta.Value = expanded
			r.meta[key] = meta
		}
	}
}

func expand(s string, env map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '$' || i+1 >= len(s) || s[i+1] != '{' {
			b.WriteByte(s[i])
			i++
			continue
		}
		end := strings.IndexByte(s[i+2:], '}')
		if end < 0 {
			b.WriteString(s[i:])
			break
		}
		name := s[i+2 : i+2+end]
		token := s[i : i+3+end]
		i += 3 + end

		// A nested ${${X}} token or an undefined name stays literal.
		if !plainName(name) {
			b.WriteString(token)
			continue
		}
		if v, ok := env[name]; ok {
			b.WriteString(v)
			continue
		}
		if v, ok := os.LookupEnv(name); ok {
			b.WriteString(v)
			continue
		}
		b.WriteString(token)
	}
	return b.String()
}

// plainName reports whether the token body is a simple variable name
// with no nested syntax.
func plainName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			return false
		}
	}
	return true
}
