package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// File resolves references to file contents. References look like
// file:///run/secrets/db_password or file(path=...). A single trailing
// newline is stripped, matching how secret files are usually written.
type File struct{}

// Name implements Provider.
func (File) Name() string { return "file" }

// Resolve implements Provider.
func (File) Resolve(_ context.Context, ref Ref, _ ResolveContext) (string, error) {
	path := ref.Arg("path", "file")
	if path == "" {
		path = ref.Opaque()
	}
	if path == "" {
		return "", &NotFoundError{Provider: "file", Ref: ref.URI}
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", &NotFoundError{Provider: "file", Ref: path}
	}
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", path, err)
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}
