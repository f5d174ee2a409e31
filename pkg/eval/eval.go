// Package eval walks parsed configuration files and produces the final
// environment map. Evaluation is strictly sequential: files in overlay
// order, nodes in file order, key histories folded in encounter order,
// so override precedence and audit ordering stay deterministic.
package eval

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/envault/envault/pkg/audit"
	"github.com/envault/envault/pkg/cache"
	"github.com/envault/envault/pkg/parser"
	"github.com/envault/envault/pkg/pipes"
	"github.com/envault/envault/pkg/policy"
	"github.com/envault/envault/pkg/secrets"
)

// DefaultSeparator joins += appends when the assignment does not carry
// its own separator.
const DefaultSeparator = ":"

// Options are the per-run settings. Mask mode is consumed by renderers,
// not here.
type Options struct {
	Profile  string
	Scopes   []string
	Overlays []string
	Pure     bool
	Force    bool
	Strict   bool

	// Timeout and RetryBudget are handed to providers through the
	// resolve context.
	Timeout     time.Duration
	RetryBudget int
}

// KeyMetadata is per-key provenance, finalized during the resolution
// pass. It backs explain-style tooling and render masking.
type KeyMetadata struct {
	Value      string   `json:"value"`
	SourceFile string   `json:"source_file"`
	Provider   string   `json:"provider,omitempty"`
	Pipes      []string `json:"pipes,omitempty"`
	Protected  bool     `json:"protected"`
}

// Result is the outcome of one Evaluate call. Errors holds per-key
// resolution failures; a policy denial aborts instead and never
// produces a Result.
type Result struct {
	Env      map[string]string
	Metadata map[string]KeyMetadata
	Warnings []string
	Errors   []error
}

// ResolutionError wraps a failure to resolve one assignment. The key
// stays absent from the result; evaluation continues for other keys.
type ResolutionError struct {
	Key      string
	Location parser.SourceLocation
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve %s at %s: %v", e.Key, e.Location, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Metrics receives evaluation counters. All methods must be cheap; a
// nil Metrics disables instrumentation.
type Metrics interface {
	EvaluationCompleted(keys, errors int)
	ProviderCall(provider string, d time.Duration, err error)
	PipeFailure(pipe string)
	CacheHit(provider string)
	CacheMiss(provider string)
}

// Config assembles an Evaluator. Zero-value collaborators fall back to
// the built-in registries, a no-op cache/audit sink, and an allow-all
// policy.
type Config struct {
	Providers *secrets.Registry
	Pipes     *pipes.Registry
	Cache     cache.Cache
	Audit     audit.Sink
	Policy    policy.Engine
	Metrics   Metrics
	Logger    zerolog.Logger
	Options   Options
}

// Evaluator resolves parsed files into an environment. A single
// Evaluator may run many evaluations, but never concurrently: each
// Evaluate call owns its accumulators exclusively.
type Evaluator struct {
	providers *secrets.Registry
	pipes     *pipes.Registry
	cache     cache.Cache
	audit     audit.Sink
	policy    policy.Engine
	metrics   Metrics
	logger    zerolog.Logger
	opts      Options
}

// New creates an Evaluator from cfg, applying defaults for absent
// collaborators.
func New(cfg Config) *Evaluator {
	e := &Evaluator{
		providers: cfg.Providers,
		pipes:     cfg.Pipes,
		cache:     cfg.Cache,
		audit:     cfg.Audit,
		policy:    cfg.Policy,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.With().Str("component", "eval").Logger(),
		opts:      cfg.Options,
	}
	if e.providers == nil {
		e.providers = secrets.DefaultRegistry()
	}
	if e.pipes == nil {
		e.pipes = pipes.DefaultRegistry()
	}
	if e.cache == nil {
		e.cache = cache.Nop{}
	}
	if e.audit == nil {
		e.audit = audit.Nop{}
	}
	if e.policy == nil {
		e.policy = policy.AllowAll{}
	}
	return e
}

// Evaluate runs the full pipeline over files, in order. The returned
// error is non-nil only for run-aborting conditions (policy denial,
// strict-mode warning promotion); per-key failures land in
// Result.Errors.
func (e *Evaluator) Evaluate(ctx context.Context, files []parser.ParsedFile) (*Result, error) {
	r := newRun(e, files)

	paths := make([]string, len(files))
	for i := range files {
		paths[i] = files[i].Path
	}
	if err := e.checkRun(e.policy.OnStart(ctx, &policy.StartInput{
		Profile:  e.opts.Profile,
		Scopes:   e.opts.Scopes,
		Overlays: e.opts.Overlays,
		Files:    paths,
		Pure:     e.opts.Pure,
	}), policy.HookStart, r); err != nil {
		return nil, err
	}

	for i := range files {
		r.file = files[i].Path
		r.section = nil
		r.walk(ctx, files[i].Nodes)
	}

	r.replay(ctx)
	r.interpolate()

	for _, key := range r.order {
		meta, ok := r.meta[key]
		if !ok {
			continue
		}
		d := e.policy.OnKeyInject(ctx, &policy.KeyInjectInput{
			Key:       key,
			Provider:  meta.Provider,
			Protected: meta.Protected,
			Pipes:     meta.Pipes,
			Source:    meta.SourceFile,
		})
		if err := e.checkRun(d, policy.HookKeyInject, r); err != nil {
			return nil, err
		}
	}

	if !e.opts.Pure {
		for _, kv := range os.Environ() {
			k, v, _ := strings.Cut(kv, "=")
			if _, ok := r.env[k]; !ok {
				r.env[k] = v
			}
		}
	}

	keys := make([]string, 0, len(r.env))
	for k := range r.env {
		keys = append(keys, k)
	}
	if err := e.checkRun(e.policy.OnFinish(ctx, &policy.FinishInput{
		Keys:     keys,
		Warnings: len(r.warnings),
		Errors:   len(r.errors),
	}), policy.HookFinish, r); err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.EvaluationCompleted(len(r.env), len(r.errors))
	}
	e.audit.Flush()

	result := &Result{
		Env:      r.env,
		Metadata: r.meta,
		Warnings: r.warnings,
		Errors:   r.errors,
	}
	if e.opts.Strict && len(r.warnings) > 0 {
		return result, fmt.Errorf("strict mode: %d warning(s) treated as failure", len(r.warnings))
	}
	return result, nil
}

// checkRun handles a decision from a run-level hook: deny aborts, warn
// records.
func (e *Evaluator) checkRun(d policy.Decision, hook policy.Hook, r *run) error {
	switch d.Effect {
	case policy.EffectDeny:
		return &policy.Denial{Hook: hook, Reason: d.Reason}
	case policy.EffectWarn:
		r.warn(fmt.Sprintf("policy warning at %s: %s", hook, d.Reason))
	}
	return nil
}
