package policy

import (
	"context"
	"testing"

	"gopkg.in/yaml.v3"
)

func ruleSetFromYAML(t *testing.T, src string) RuleSet {
	t.Helper()
	var set RuleSet
	if err := yaml.Unmarshal([]byte(src), &set); err != nil {
		t.Fatalf("unmarshal rule set: %v", err)
	}
	return set
}

func TestAllowAllEveryHook(t *testing.T) {
	ctx := context.Background()
	var e AllowAll

	decisions := []Decision{
		e.OnStart(ctx, &StartInput{}),
		e.OnProvider(ctx, &ProviderInput{}),
		e.OnPipe(ctx, &PipeInput{}),
		e.OnKeyInject(ctx, &KeyInjectInput{}),
		e.OnFinish(ctx, &FinishInput{}),
	}
	for i, d := range decisions {
		if d.Effect != EffectAllow {
			t.Errorf("hook %d effect = %q, want allow", i, d.Effect)
		}
	}
}

func TestHooksNilFunctionsAllow(t *testing.T) {
	h := &Hooks{
		Provider: func(_ context.Context, in *ProviderInput) Decision {
			if in.Provider == "gcp" {
				return Deny("gcp is not approved")
			}
			return Allow()
		},
	}
	ctx := context.Background()

	if d := h.OnStart(ctx, &StartInput{}); d.Effect != EffectAllow {
		t.Errorf("nil start hook effect = %q, want allow", d.Effect)
	}
	if d := h.OnProvider(ctx, &ProviderInput{Provider: "gcp"}); d.Effect != EffectDeny {
		t.Errorf("provider hook effect = %q, want deny", d.Effect)
	}
}

func TestRuleEngineFirstMatchWins(t *testing.T) {
	set := ruleSetFromYAML(t, `
rules:
  - hook: provider
    match:
      provider: vault
    effect: allow
  - hook: provider
    effect: deny
    reason: only vault is approved
`)
	e := NewRuleEngine(set)
	ctx := context.Background()

	if d := e.OnProvider(ctx, &ProviderInput{Provider: "vault", Key: "A"}); d.Effect != EffectAllow {
		t.Errorf("vault effect = %q, want allow", d.Effect)
	}
	d := e.OnProvider(ctx, &ProviderInput{Provider: "gcp", Key: "A"})
	if d.Effect != EffectDeny {
		t.Errorf("gcp effect = %q, want deny", d.Effect)
	}
	if d.Reason != "only vault is approved" {
		t.Errorf("reason = %q", d.Reason)
	}
}

func TestRuleEngineMatchKinds(t *testing.T) {
	set := ruleSetFromYAML(t, `
default: allow
rules:
  - hook: key_inject
    match:
      key: ["AWS_SECRET_ACCESS_KEY", "AWS_SESSION_TOKEN"]
    effect: deny
    reason: aws credentials may not be injected
  - hook: provider
    match:
      key: "DB_*"
      provider: exec
    effect: warn
    reason: database keys from exec output
`)
	e := NewRuleEngine(set)
	ctx := context.Background()

	tests := []struct {
		name   string
		got    Decision
		effect Effect
	}{
		{
			"one-of list match",
			e.OnKeyInject(ctx, &KeyInjectInput{Key: "AWS_SESSION_TOKEN"}),
			EffectDeny,
		},
		{
			"one-of list miss",
			e.OnKeyInject(ctx, &KeyInjectInput{Key: "AWS_REGION"}),
			EffectAllow,
		},
		{
			"glob pattern with all fields matching",
			e.OnProvider(ctx, &ProviderInput{Key: "DB_PASSWORD", Provider: "exec"}),
			EffectWarn,
		},
		{
			"glob match but second field differs",
			e.OnProvider(ctx, &ProviderInput{Key: "DB_PASSWORD", Provider: "env"}),
			EffectAllow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got.Effect != tt.effect {
				t.Errorf("effect = %q, want %q", tt.got.Effect, tt.effect)
			}
		})
	}
}

func TestRuleEngineDefaultEffect(t *testing.T) {
	set := ruleSetFromYAML(t, `
default: deny
rules:
  - hook: provider
    match:
      provider: env
    effect: allow
`)
	e := NewRuleEngine(set)
	ctx := context.Background()

	if d := e.OnProvider(ctx, &ProviderInput{Provider: "env"}); d.Effect != EffectAllow {
		t.Errorf("env effect = %q, want allow", d.Effect)
	}
	if d := e.OnProvider(ctx, &ProviderInput{Provider: "file"}); d.Effect != EffectDeny {
		t.Errorf("file effect = %q, want default deny", d.Effect)
	}
	// Hooks without rules fall back to the default too.
	if d := e.OnStart(ctx, &StartInput{}); d.Effect != EffectDeny {
		t.Errorf("start effect = %q, want default deny", d.Effect)
	}
}

func TestRuleEngineListFieldMatchesAnyElement(t *testing.T) {
	set := ruleSetFromYAML(t, `
rules:
  - hook: start
    match:
      scopes: production
    effect: warn
    reason: production scope active
`)
	e := NewRuleEngine(set)
	ctx := context.Background()

	if d := e.OnStart(ctx, &StartInput{Scopes: []string{"node", "production"}}); d.Effect != EffectWarn {
		t.Errorf("effect = %q, want warn", d.Effect)
	}
	if d := e.OnStart(ctx, &StartInput{Scopes: []string{"node"}}); d.Effect != EffectAllow {
		t.Errorf("effect = %q, want allow", d.Effect)
	}
}

func TestRuleEngineDotPathLookup(t *testing.T) {
	set := ruleSetFromYAML(t, `
rules:
  - hook: provider
    match:
      args.mount: kv-prod
    effect: deny
    reason: production mount is restricted
`)
	e := NewRuleEngine(set)
	ctx := context.Background()

	in := &ProviderInput{Provider: "vault", Args: map[string]string{"mount": "kv-prod"}}
	if d := e.OnProvider(ctx, in); d.Effect != EffectDeny {
		t.Errorf("effect = %q, want deny", d.Effect)
	}

	in = &ProviderInput{Provider: "vault", Args: map[string]string{"mount": "kv-dev"}}
	if d := e.OnProvider(ctx, in); d.Effect != EffectAllow {
		t.Errorf("effect = %q, want allow", d.Effect)
	}
}

func TestDenialError(t *testing.T) {
	err := &Denial{Hook: HookProvider, Reason: "no remote providers"}
	want := "policy denied provider: no remote providers"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
