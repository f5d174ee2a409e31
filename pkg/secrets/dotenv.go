package secrets

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/joho/godotenv"
)

// Dotenv resolves references against dotenv-format files. A single key
// is addressed as dotenv:///path/to/.env#KEY or dotenv(file=..., key=...);
// batch imports read the whole file.
type Dotenv struct{}

// Name implements Provider.
func (Dotenv) Name() string { return "dotenv" }

// Resolve implements Provider.
func (Dotenv) Resolve(_ context.Context, ref Ref, _ ResolveContext) (string, error) {
	file := ref.Arg("file", "path")
	key := ref.Arg("key")
	if file == "" {
		file, key, _ = strings.Cut(ref.Opaque(), "#")
	}
	if file == "" || key == "" {
		return "", &NotFoundError{Provider: "dotenv", Ref: ref.URI}
	}

	vars, err := readDotenv(file)
	if err != nil {
		return "", err
	}
	v, ok := vars[key]
	if !ok {
		return "", &NotFoundError{Provider: "dotenv", Ref: file + "#" + key}
	}
	return v, nil
}

// ResolveBatch implements BatchProvider. Filter is a glob matched
// against key names; an empty filter keeps everything.
func (Dotenv) ResolveBatch(_ context.Context, query BatchQuery, _ ResolveContext) (map[string]string, error) {
	file := query.BaseURI
	if _, rest, ok := strings.Cut(file, "://"); ok {
		file = rest
	}
	vars, err := readDotenv(file)
	if err != nil {
		return nil, err
	}
	if query.Filter == "" {
		return vars, nil
	}

	filtered := make(map[string]string)
	for k, v := range vars {
		if ok, _ := path.Match(query.Filter, k); ok {
			filtered[k] = v
		}
	}
	return filtered, nil
}

func readDotenv(file string) (map[string]string, error) {
	vars, err := godotenv.Read(file)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{Provider: "dotenv", Ref: file}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dotenv file %s: %w", file, err)
	}
	return vars, nil
}
