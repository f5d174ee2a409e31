package launcher

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

const placeholder = "[REDACTED]"

// Redactor is a line-buffered writer that replaces secret values in the
// stream with a placeholder. Buffering by line keeps values that a
// child writes in separate chunks within one line from slipping
// through.
type Redactor struct {
	mu       sync.Mutex
	dst      io.Writer
	secrets  []string
	replacer *strings.Replacer
	buf      bytes.Buffer
}

// NewRedactor wraps dst, scrubbing every occurrence of the given
// values.
func NewRedactor(dst io.Writer, secrets []string) *Redactor {
	pairs := make([]string, 0, len(secrets)*2)
	for _, s := range secrets {
		if s == "" {
			continue
		}
		pairs = append(pairs, s, placeholder)
	}
	return &Redactor{
		dst:      dst,
		secrets:  secrets,
		replacer: strings.NewReplacer(pairs...),
	}
}

// Write implements io.Writer. Complete lines are scrubbed and flushed;
// a trailing partial line stays buffered until the next write or Flush.
func (r *Redactor) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf.Write(p)
	for {
		line, err := r.buf.ReadString('\n')
		if err != nil {
			// Partial line: keep it buffered.
			r.buf.Reset()
			r.buf.WriteString(line)
			break
		}
		if _, werr := io.WriteString(r.dst, r.replacer.Replace(line)); werr != nil {
			return len(p), werr
		}
	}
	return len(p), nil
}

// Flush scrubs and writes any buffered partial line.
func (r *Redactor) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.buf.Len() == 0 {
		return nil
	}
	line := r.buf.String()
	r.buf.Reset()
	_, err := io.WriteString(r.dst, r.replacer.Replace(line))
	return err
}
