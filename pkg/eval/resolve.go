package eval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/envault/envault/pkg/audit"
	"github.com/envault/envault/pkg/parser"
	"github.com/envault/envault/pkg/policy"
	"github.com/envault/envault/pkg/secrets"
)

// replay folds every key's assignment history, in key encounter order,
// into final values. A failed entry contributes nothing; later entries
// and later keys still run.
func (r *run) replay(ctx context.Context) {
	for _, key := range r.order {
		entries := r.histories[key]
		if len(entries) == 0 {
			continue
		}

		var value string
		var set, unset bool
		var last *historyEntry
		var lastApplied []string
		var lastProvider string

		for i := range entries {
			he := &entries[i]
			if he.a.Op == parser.OpUnset {
				value, set, unset = "", false, true
				last = nil
				continue
			}
			if he.a.Op == parser.OpSetDefault && set {
				continue
			}

			v, applied, provider, err := r.resolveEntry(ctx, key, he)
			if err != nil {
				r.fail(&ResolutionError{Key: key, Location: he.a.Location, Err: err})
				continue
			}

			switch he.a.Op {
			case parser.OpSet, parser.OpSetDefault:
				value = v
			case parser.OpAppend:
				if set {
					sep := he.a.Separator
					if sep == "" {
						sep = DefaultSeparator
					}
					value = value + sep + v
				} else {
					value = v
				}
			}
			set, unset = true, false
			last, lastApplied, lastProvider = he, applied, provider
		}

		switch {
		case set:
			r.env[key] = value
			r.meta[key] = KeyMetadata{
				Value:      value,
				SourceFile: last.file,
				Provider:   lastProvider,
				Pipes:      lastApplied,
				Protected:  r.protected[key],
			}
		case unset:
			delete(r.env, key)
			delete(r.meta, key)
		}
	}
}

// resolveEntry resolves one assignment's expression: provider or
// literal, then the pipe chain, then the fallback. It returns the
// value, the pipe names actually applied, and the provider name if
// any. The value never appears in the returned error.
func (r *run) resolveEntry(ctx context.Context, key string, he *historyEntry) (string, []string, string, error) {
	expr := he.a.Expr

	var value, providerName string
	if expr.IsProvider() {
		providerName = expr.Provider.Name()
		args := mergeArgs(he.with[providerName], expr.Provider.Args)

		decision := r.e.policy.OnProvider(ctx, &policy.ProviderInput{
			Key:      key,
			Provider: providerName,
			URI:      expr.Provider.URI,
			Args:     args,
			Source:   he.file,
			Profile:  r.e.opts.Profile,
		})
		switch decision.Effect {
		case policy.EffectDeny:
			return "", nil, "", &policy.Denial{Hook: policy.HookProvider, Reason: decision.Reason}
		case policy.EffectWarn:
			r.warn(fmt.Sprintf("policy warning for key %s: %s", key, decision.Reason))
		}

		p, ok := r.e.providers.Lookup(providerName)
		if !ok {
			return "", nil, "", fmt.Errorf("unknown provider %q", providerName)
		}

		ref := secrets.Ref{Provider: providerName, URI: expr.Provider.URI, Args: args}
		v, err := r.fetch(ctx, key, he.file, p, ref)
		if err != nil {
			return "", nil, "", err
		}
		value = v
	} else {
		value = expr.Literal
	}

	var applied []string
	for _, pc := range expr.Pipes {
		decision := r.e.policy.OnPipe(ctx, &policy.PipeInput{
			Key:      key,
			Pipe:     pc.Name,
			Soft:     pc.Soft,
			Args:     pc.Args,
			Provider: providerName,
			Source:   he.file,
		})
		switch decision.Effect {
		case policy.EffectDeny:
			return "", nil, "", &policy.Denial{Hook: policy.HookPipe, Reason: decision.Reason}
		case policy.EffectWarn:
			r.warn(fmt.Sprintf("policy warning for pipe %s on key %s: %s", pc.Name, key, decision.Reason))
		}

		p, ok := r.e.pipes.Lookup(pc.Name)
		if !ok {
			if pc.Soft {
				if r.e.metrics != nil {
					r.e.metrics.PipeFailure(pc.Name)
				}
				continue
			}
			return "", nil, "", fmt.Errorf("unknown pipe %q", pc.Name)
		}

		out, err := p.Apply(ctx, value, pc.Args)
		if err != nil {
			if r.e.metrics != nil {
				r.e.metrics.PipeFailure(pc.Name)
			}
			if pc.Soft {
				continue
			}
			return "", nil, "", fmt.Errorf("pipe %q failed: %w", pc.Name, err)
		}
		value = out
		applied = append(applied, pc.Name)
	}

	// The fallback replaces an empty result without re-running pipes.
	if value == "" && expr.Fallback != nil {
		value = *expr.Fallback
	}
	return value, applied, providerName, nil
}

// fetch resolves a single provider reference, consulting the cache
// first and auditing the access.
func (r *run) fetch(ctx context.Context, key, source string, p secrets.Provider, ref secrets.Ref) (string, error) {
	ck := cacheKey(ref)
	if v, ok, err := r.e.cache.Get(ctx, ck); err == nil && ok {
		if r.e.metrics != nil {
			r.e.metrics.CacheHit(ref.Provider)
		}
		ev := audit.NewEvent(audit.ActionCacheHit)
		ev.Key = key
		ev.Provider = ref.Provider
		ev.Source = source
		ev.Success = true
		r.e.audit.Log(ev)
		return v, nil
	}
	if r.e.metrics != nil {
		r.e.metrics.CacheMiss(ref.Provider)
	}

	start := time.Now()
	v, err := p.Resolve(ctx, ref, r.resolveContext())
	elapsed := time.Since(start)
	if r.e.metrics != nil {
		r.e.metrics.ProviderCall(ref.Provider, elapsed, err)
	}

	ev := audit.NewEvent(audit.ActionResolve)
	ev.Key = key
	ev.Provider = ref.Provider
	ev.Source = source
	ev.Duration = elapsed
	ev.Success = err == nil
	if err != nil {
		ev.Error = err.Error()
	}
	r.e.audit.Log(ev)

	if err != nil {
		return "", err
	}
	_ = r.e.cache.Set(ctx, ck, v, 0)
	return v, nil
}

// cacheKey derives a deterministic cache key from a reference. Call
// form arguments are sorted so equivalent references share entries.
func cacheKey(ref secrets.Ref) string {
	if ref.URI != "" {
		return ref.URI
	}
	keys := make([]string, 0, len(ref.Args))
	for k := range ref.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(ref.Provider)
	b.WriteByte('(')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(ref.Args[k])
	}
	b.WriteByte(')')
	return b.String()
}

// mergeArgs layers explicit call arguments over scoped defaults.
func mergeArgs(defaults, explicit map[string]string) map[string]string {
	if len(defaults) == 0 {
		return explicit
	}
	merged := make(map[string]string, len(defaults)+len(explicit))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range explicit {
		merged[k] = v
	}
	return merged
}
