package secrets

import (
	"context"
	"os"
)

// Env resolves references against the environment: the run's resolved
// snapshot first, then the parent process environment. References look
// like env://NAME or env(name=NAME).
type Env struct{}

// Name implements Provider.
func (Env) Name() string { return "env" }

// Resolve implements Provider.
func (Env) Resolve(_ context.Context, ref Ref, rc ResolveContext) (string, error) {
	name := ref.Arg("name", "var")
	if name == "" {
		name = ref.Opaque()
	}
	if name == "" {
		return "", &NotFoundError{Provider: "env", Ref: ref.URI}
	}
	if v, ok := rc.Env[name]; ok {
		return v, nil
	}
	if v, ok := os.LookupEnv(name); ok {
		return v, nil
	}
	return "", &NotFoundError{Provider: "env", Ref: name}
}
