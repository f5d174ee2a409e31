package policy

import (
	"context"
	"encoding/json"
	"fmt"
)

// Effect is a policy hook outcome.
type Effect string

const (
	// EffectAllow lets the step proceed.
	EffectAllow Effect = "allow"

	// EffectDeny blocks the step.
	EffectDeny Effect = "deny"

	// EffectWarn lets the step proceed but records a warning.
	EffectWarn Effect = "warn"
)

// Hook names one of the five decision points.
type Hook string

const (
	HookStart     Hook = "start"
	HookProvider  Hook = "provider"
	HookPipe      Hook = "pipe"
	HookKeyInject Hook = "key_inject"
	HookFinish    Hook = "finish"
)

// Decision is the result of one hook evaluation.
type Decision struct {
	Effect Effect
	Reason string
}

// Allow is the permissive decision.
func Allow() Decision { return Decision{Effect: EffectAllow} }

// Deny blocks with a reason.
func Deny(reason string) Decision { return Decision{Effect: EffectDeny, Reason: reason} }

// Warn permits with a recorded reason.
func Warn(reason string) Decision { return Decision{Effect: EffectWarn, Reason: reason} }

// Denial is the error produced when a hook denies a step. Secret values
// never appear in the reason; only key, provider, and pipe names do.
type Denial struct {
	Hook   Hook
	Reason string
}

// Error implements the error interface.
func (d *Denial) Error() string {
	if d.Reason == "" {
		return fmt.Sprintf("policy denied %s", d.Hook)
	}
	return fmt.Sprintf("policy denied %s: %s", d.Hook, d.Reason)
}

// StartInput is the context for the run-start hook.
type StartInput struct {
	Profile  string   `json:"profile,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
	Overlays []string `json:"overlays,omitempty"`
	Files    []string `json:"files,omitempty"`
	Pure     bool     `json:"pure"`
}

// ProviderInput is the context for the provider-resolution hook.
type ProviderInput struct {
	Key      string            `json:"key"`
	Provider string            `json:"provider"`
	URI      string            `json:"uri,omitempty"`
	Args     map[string]string `json:"args,omitempty"`
	Source   string            `json:"source,omitempty"`
	Profile  string            `json:"profile,omitempty"`
}

// PipeInput is the context for the pipe-application hook.
type PipeInput struct {
	Key      string            `json:"key"`
	Pipe     string            `json:"pipe"`
	Soft     bool              `json:"soft"`
	Args     map[string]string `json:"args,omitempty"`
	Provider string            `json:"provider,omitempty"`
	Source   string            `json:"source,omitempty"`
}

// KeyInjectInput is the context for the per-key injection hook.
type KeyInjectInput struct {
	Key       string   `json:"key"`
	Provider  string   `json:"provider,omitempty"`
	Protected bool     `json:"protected"`
	Pipes     []string `json:"pipes,omitempty"`
	Source    string   `json:"source,omitempty"`
}

// FinishInput is the context for the run-finish hook.
type FinishInput struct {
	Keys     []string `json:"keys"`
	Warnings int      `json:"warnings"`
	Errors   int      `json:"errors"`
}

// Engine exposes the five decision points. Implementations must be safe for
// sequential use by a single evaluation; the evaluator never calls hooks
// concurrently.
type Engine interface {
	OnStart(ctx context.Context, in *StartInput) Decision
	OnProvider(ctx context.Context, in *ProviderInput) Decision
	OnPipe(ctx context.Context, in *PipeInput) Decision
	OnKeyInject(ctx context.Context, in *KeyInjectInput) Decision
	OnFinish(ctx context.Context, in *FinishInput) Decision
}

// AllowAll is the default engine: every hook allows.
type AllowAll struct{}

func (AllowAll) OnStart(context.Context, *StartInput) Decision         { return Allow() }
func (AllowAll) OnProvider(context.Context, *ProviderInput) Decision   { return Allow() }
func (AllowAll) OnPipe(context.Context, *PipeInput) Decision           { return Allow() }
func (AllowAll) OnKeyInject(context.Context, *KeyInjectInput) Decision { return Allow() }
func (AllowAll) OnFinish(context.Context, *FinishInput) Decision       { return Allow() }

// Hooks is a code-defined engine. Nil hook functions behave as allow.
type Hooks struct {
	Start     func(ctx context.Context, in *StartInput) Decision
	Provider  func(ctx context.Context, in *ProviderInput) Decision
	Pipe      func(ctx context.Context, in *PipeInput) Decision
	KeyInject func(ctx context.Context, in *KeyInjectInput) Decision
	Finish    func(ctx context.Context, in *FinishInput) Decision
}

func (h *Hooks) OnStart(ctx context.Context, in *StartInput) Decision {
	if h.Start == nil {
		return Allow()
	}
	return h.Start(ctx, in)
}

func (h *Hooks) OnProvider(ctx context.Context, in *ProviderInput) Decision {
	if h.Provider == nil {
		return Allow()
	}
	return h.Provider(ctx, in)
}

func (h *Hooks) OnPipe(ctx context.Context, in *PipeInput) Decision {
	if h.Pipe == nil {
		return Allow()
	}
	return h.Pipe(ctx, in)
}

func (h *Hooks) OnKeyInject(ctx context.Context, in *KeyInjectInput) Decision {
	if h.KeyInject == nil {
		return Allow()
	}
	return h.KeyInject(ctx, in)
}

func (h *Hooks) OnFinish(ctx context.Context, in *FinishInput) Decision {
	if h.Finish == nil {
		return Allow()
	}
	return h.Finish(ctx, in)
}

// toMap flattens a hook input struct into a generic map for dot-path field
// lookup and Rego input. The JSON round trip keeps field naming consistent
// between rule files and Rego policies.
func toMap(in any) map[string]any {
	raw, err := json.Marshal(in)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{}
	}
	return m
}
