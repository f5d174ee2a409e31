// Package secrets defines the provider contract the evaluator resolves
// references through, plus the built-in backends. Providers are looked
// up by name in a registry populated once at startup.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/envault/envault/pkg/audit"
	"github.com/envault/envault/pkg/cache"
)

// Ref identifies a single secret to fetch. URI form carries the raw
// reference text; call form carries parsed arguments.
type Ref struct {
	// Provider is the registry name the reference dispatches to.
	Provider string
	// URI is the full reference for scheme://... form, empty otherwise.
	URI string
	// Args holds call-form arguments, merged with any scoped defaults.
	Args map[string]string
}

// Opaque returns the part of a URI reference after "://", or the empty
// string for call-form references.
func (r Ref) Opaque() string {
	if _, rest, ok := strings.Cut(r.URI, "://"); ok {
		return rest
	}
	return ""
}

// Arg returns the first non-empty argument among the given names.
func (r Ref) Arg(names ...string) string {
	for _, n := range names {
		if v := r.Args[n]; v != "" {
			return v
		}
	}
	return ""
}

// BatchQuery describes a bulk fetch issued by an import directive.
type BatchQuery struct {
	BaseURI string
	Prefix  string
	Filter  string
}

// ResolveContext carries the collaborators a provider may use during a
// fetch. Env is a read-only snapshot of the environment resolved so
// far; providers must not mutate it.
type ResolveContext struct {
	Cache       cache.Cache
	Audit       audit.Sink
	Timeout     time.Duration
	RetryBudget int
	Env         map[string]string
}

// Provider fetches individual secrets.
type Provider interface {
	// Name is the registry key the provider is dispatched under.
	Name() string
	// Resolve fetches the secret the ref points at. The returned value
	// must never appear in the error on failure.
	Resolve(ctx context.Context, ref Ref, rc ResolveContext) (string, error)
}

// BatchProvider is implemented by providers that can fetch many keys
// in one operation.
type BatchProvider interface {
	Provider
	ResolveBatch(ctx context.Context, query BatchQuery, rc ResolveContext) (map[string]string, error)
}

// NotFoundError reports a reference the provider could not locate.
type NotFoundError struct {
	Provider string
	Ref      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("provider %s: reference %q not found", e.Provider, e.Ref)
}

// Registry maps provider names to implementations. Register everything
// before evaluation starts; lookups are not synchronized.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// DefaultRegistry returns a registry with all built-in backends.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Env{})
	r.Register(File{})
	r.Register(Exec{})
	r.Register(Dotenv{})
	return r
}

// Register adds a provider under its own name, replacing any previous
// registration.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Lookup returns the provider registered under name.
func (r *Registry) Lookup(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered provider names, unordered.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	return names
}

// withRetries runs fn up to budget+1 times, backing off briefly between
// attempts. NotFoundError is terminal and never retried.
func withRetries(ctx context.Context, budget int, fn func() (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= budget; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}
		value, err := fn()
		if err == nil {
			return value, nil
		}
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}
