package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// regoQuery is the document every policy module must produce: an object with
// "effect" and optional "reason" fields, e.g.
//
//	package envault.policy
//
//	import rego.v1
//
//	default decision := {"effect": "allow"}
//
//	decision := {"effect": "deny", "reason": "gcp is not approved"} if {
//	    input.hook == "provider"
//	    input.provider == "gcp"
//	}
const regoQuery = "data.envault.policy.decision"

// RegoEngine evaluates the five hooks against a compiled Rego module. The
// hook name is injected as input.hook alongside the hook input's fields.
type RegoEngine struct {
	query  rego.PreparedEvalQuery
	logger zerolog.Logger
}

// NewRegoEngine compiles module and prepares its decision query for reuse
// across hook evaluations.
func NewRegoEngine(ctx context.Context, name, module string, logger zerolog.Logger) (*RegoEngine, error) {
	query, err := rego.New(
		rego.Module(name, module),
		rego.Query(regoQuery),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("preparing policy query: %w", err)
	}

	return &RegoEngine{
		query:  query,
		logger: logger.With().Str("component", "rego-policy").Logger(),
	}, nil
}

func (e *RegoEngine) OnStart(ctx context.Context, in *StartInput) Decision {
	return e.decide(ctx, HookStart, in)
}

func (e *RegoEngine) OnProvider(ctx context.Context, in *ProviderInput) Decision {
	return e.decide(ctx, HookProvider, in)
}

func (e *RegoEngine) OnPipe(ctx context.Context, in *PipeInput) Decision {
	return e.decide(ctx, HookPipe, in)
}

func (e *RegoEngine) OnKeyInject(ctx context.Context, in *KeyInjectInput) Decision {
	return e.decide(ctx, HookKeyInject, in)
}

func (e *RegoEngine) OnFinish(ctx context.Context, in *FinishInput) Decision {
	return e.decide(ctx, HookFinish, in)
}

// decide evaluates the prepared query. A missing decision document allows;
// an evaluation error degrades to a warning rather than blocking resolution.
func (e *RegoEngine) decide(ctx context.Context, hook Hook, in any) Decision {
	input := toMap(in)
	input["hook"] = string(hook)

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		e.logger.Error().Err(err).Str("hook", string(hook)).Msg("Policy evaluation failed")
		return Warn(fmt.Sprintf("policy evaluation failed for %s hook: %v", hook, err))
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Allow()
	}

	doc, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		e.logger.Warn().Str("hook", string(hook)).Msg("Policy decision is not an object, allowing")
		return Allow()
	}

	d := Decision{Effect: EffectAllow}
	if effect, ok := doc["effect"].(string); ok {
		switch Effect(effect) {
		case EffectAllow, EffectDeny, EffectWarn:
			d.Effect = Effect(effect)
		default:
			return Warn(fmt.Sprintf("policy returned unknown effect %q for %s hook", effect, hook))
		}
	}
	if reason, ok := doc["reason"].(string); ok {
		d.Reason = reason
	}
	return d
}
