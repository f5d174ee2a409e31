// Package render serializes an evaluation result for consumption
// outside a child process: dotenv files, shell export lines, JSON, or
// YAML, with optional masking of sensitive values.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/envault/envault/pkg/eval"
)

// Format selects the output serialization.
type Format string

const (
	FormatDotenv Format = "dotenv"
	FormatShell  Format = "shell"
	FormatJSON   Format = "json"
	FormatYAML   Format = "yaml"
)

// MaskMode controls which values are replaced with a placeholder.
type MaskMode string

const (
	// MaskNone renders every value in the clear.
	MaskNone MaskMode = "none"

	// MaskSecrets masks provider-derived and protected values.
	MaskSecrets MaskMode = "secrets"

	// MaskAll masks every value.
	MaskAll MaskMode = "all"
)

const masked = "********"

// Options configure one Render call.
type Options struct {
	Format Format
	Mask   MaskMode

	// ManagedOnly restricts output to keys the configuration produced,
	// excluding variables merged from the parent environment.
	ManagedOnly bool
}

// Render writes the result's environment to w in the requested format.
// Keys are sorted for deterministic output.
func Render(w io.Writer, res *eval.Result, opts Options) error {
	entries := collect(res, opts)

	switch opts.Format {
	case FormatDotenv, "":
		return renderDotenv(w, entries)
	case FormatShell:
		return renderShell(w, entries)
	case FormatJSON:
		return renderJSON(w, entries)
	case FormatYAML:
		return renderYAML(w, entries)
	default:
		return fmt.Errorf("unknown render format %q", opts.Format)
	}
}

type entry struct {
	key   string
	value string
}

func collect(res *eval.Result, opts Options) []entry {
	entries := make([]entry, 0, len(res.Env))
	for k, v := range res.Env {
		meta, managed := res.Metadata[k]
		if opts.ManagedOnly && !managed {
			continue
		}
		if shouldMask(opts.Mask, meta, managed) {
			v = masked
		}
		entries = append(entries, entry{key: k, value: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	return entries
}

func shouldMask(mode MaskMode, meta eval.KeyMetadata, managed bool) bool {
	switch mode {
	case MaskAll:
		return true
	case MaskSecrets:
		return managed && (meta.Provider != "" || meta.Protected)
	}
	return false
}

func renderDotenv(w io.Writer, entries []entry) error {
	for _, e := range entries {
		v := e.value
		if needsQuoting(v) {
			v = strconv.Quote(v)
		}
		if _, err := fmt.Fprintf(w, "%s=%s\n", e.key, v); err != nil {
			return err
		}
	}
	return nil
}

func renderShell(w io.Writer, entries []entry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "export %s=%s\n", e.key, shellQuote(e.value)); err != nil {
			return err
		}
	}
	return nil
}

func renderJSON(w io.Writer, entries []entry) error {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.key] = e.value
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

func renderYAML(w io.Writer, entries []entry) error {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.key] = e.value
	}
	return yaml.NewEncoder(w).Encode(m)
}

// needsQuoting reports whether a dotenv value must be quoted to survive
// a round trip.
func needsQuoting(v string) bool {
	if v == "" {
		return false
	}
	return strings.ContainsAny(v, " \t\n\"'#\\$")
}

// shellQuote single-quotes a value for POSIX shells.
func shellQuote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}
