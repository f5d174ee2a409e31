package eval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/envault/envault/pkg/audit"
	"github.com/envault/envault/pkg/parser"
	"github.com/envault/envault/pkg/policy"
	"github.com/envault/envault/pkg/secrets"
)

// fromConcurrency bounds the fan-out of a single @from directive.
const fromConcurrency = 4

// runImport batch-fetches every key under a provider URI and writes
// the results directly into the environment, bypassing histories.
func (r *run) runImport(ctx context.Context, d *parser.ImportDirective) {
	scheme, _, ok := strings.Cut(d.URI, "://")
	if !ok {
		r.fail(&ResolutionError{Key: "@import", Location: d.Location,
			Err: fmt.Errorf("malformed import uri %q", d.URI)})
		return
	}

	decision := r.e.policy.OnProvider(ctx, &policy.ProviderInput{
		Provider: scheme,
		URI:      d.URI,
		Source:   r.file,
		Profile:  r.e.opts.Profile,
	})
	switch decision.Effect {
	case policy.EffectDeny:
		r.fail(&ResolutionError{Key: "@import", Location: d.Location,
			Err: &policy.Denial{Hook: policy.HookProvider, Reason: decision.Reason}})
		return
	case policy.EffectWarn:
		r.warn(fmt.Sprintf("policy warning for import %s: %s", d.URI, decision.Reason))
	}

	p, ok := r.e.providers.Lookup(scheme)
	if !ok {
		r.fail(&ResolutionError{Key: "@import", Location: d.Location,
			Err: fmt.Errorf("unknown provider %q", scheme)})
		return
	}
	bp, ok := p.(secrets.BatchProvider)
	if !ok {
		r.fail(&ResolutionError{Key: "@import", Location: d.Location,
			Err: fmt.Errorf("provider %q does not support batch import", scheme)})
		return
	}

	start := time.Now()
	values, err := bp.ResolveBatch(ctx, secrets.BatchQuery{BaseURI: d.URI, Prefix: d.Prefix}, r.resolveContext())

	ev := audit.NewEvent(audit.ActionBatchImport)
	ev.Provider = scheme
	ev.Source = r.file
	ev.Duration = time.Since(start)
	ev.Success = err == nil
	if err != nil {
		ev.Error = err.Error()
	}
	r.e.audit.Log(ev)

	if err != nil {
		r.fail(&ResolutionError{Key: "@import", Location: d.Location, Err: err})
		return
	}

	// Deterministic write order regardless of the provider's map order.
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.markDirect(importKey(k, d), values[k], scheme)
	}
}

// importKey applies the directive's prefix and case mode to a fetched
// key name.
func importKey(key string, d *parser.ImportDirective) string {
	switch d.Case {
	case parser.CaseUpper:
		key = strings.ToUpper(key)
	case parser.CaseLower:
		key = strings.ToLower(key)
	}
	return d.Prefix + key
}

// runFrom resolves each mapped key individually against a base URI.
// Policy is consulted sequentially per entry; allowed fetches then fan
// out bounded, and results are written in entry order so the directive
// output is deterministic. Individual failures are isolated.
func (r *run) runFrom(ctx context.Context, d *parser.FromDirective) {
	scheme, _, ok := strings.Cut(d.BaseURI, "://")
	if !ok {
		r.fail(&ResolutionError{Key: "@from", Location: d.Location,
			Err: fmt.Errorf("malformed from uri %q", d.BaseURI)})
		return
	}
	p, ok := r.e.providers.Lookup(scheme)
	if !ok {
		r.fail(&ResolutionError{Key: "@from", Location: d.Location,
			Err: fmt.Errorf("unknown provider %q", scheme)})
		return
	}

	type fetch struct {
		entry parser.FromEntry
		ref   secrets.Ref
		value string
		err   error
		skip  bool
	}
	fetches := make([]fetch, len(d.Entries))
	base := strings.TrimSuffix(d.BaseURI, "/")

	for i, entry := range d.Entries {
		uri := base + "/" + entry.Ref
		fetches[i] = fetch{entry: entry, ref: secrets.Ref{Provider: scheme, URI: uri}}

		decision := r.e.policy.OnProvider(ctx, &policy.ProviderInput{
			Key:      entry.Key,
			Provider: scheme,
			URI:      uri,
			Source:   r.file,
			Profile:  r.e.opts.Profile,
		})
		switch decision.Effect {
		case policy.EffectDeny:
			fetches[i].skip = true
			fetches[i].err = &policy.Denial{Hook: policy.HookProvider, Reason: decision.Reason}
		case policy.EffectWarn:
			r.warn(fmt.Sprintf("policy warning for key %s: %s", entry.Key, decision.Reason))
		}
	}

	rc := r.resolveContext()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fromConcurrency)
	for i := range fetches {
		if fetches[i].skip {
			continue
		}
		f := &fetches[i]
		g.Go(func() error {
			start := time.Now()
			f.value, f.err = p.Resolve(gctx, f.ref, rc)
			if r.e.metrics != nil {
				r.e.metrics.ProviderCall(scheme, time.Since(start), f.err)
			}
			return nil
		})
	}
	_ = g.Wait()

	for i := range fetches {
		f := &fetches[i]

		ev := audit.NewEvent(audit.ActionResolve)
		ev.Key = f.entry.Key
		ev.Provider = scheme
		ev.Source = r.file
		ev.Success = f.err == nil
		if f.err != nil {
			ev.Error = f.err.Error()
		}
		r.e.audit.Log(ev)

		if f.err != nil {
			r.fail(&ResolutionError{Key: f.entry.Key, Location: f.entry.Location, Err: f.err})
			continue
		}
		r.markDirect(f.entry.Key, f.value, scheme)
	}
}

// resolveContext builds the collaborator bundle handed to providers.
// The environment snapshot is read-only by contract.
func (r *run) resolveContext() secrets.ResolveContext {
	return secrets.ResolveContext{
		Cache:       r.e.cache,
		Audit:       r.e.audit,
		Timeout:     r.e.opts.Timeout,
		RetryBudget: r.e.opts.RetryBudget,
		Env:         r.env,
	}
}
