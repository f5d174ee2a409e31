package policy

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

const testModule = `package envault.policy

import rego.v1

default decision := {"effect": "allow"}

decision := {"effect": "deny", "reason": "exec provider is not allowed"} if {
	input.hook == "provider"
	input.provider == "exec"
}

decision := {"effect": "warn", "reason": "injecting a cloud credential"} if {
	input.hook == "key_inject"
	startswith(input.key, "AWS_")
}
`

func newTestRegoEngine(t *testing.T) *RegoEngine {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewRegoEngine(context.Background(), "test.rego", testModule, logger)
	if err != nil {
		t.Fatalf("failed to create rego engine: %v", err)
	}
	return eng
}

func TestRegoEngineDeny(t *testing.T) {
	eng := newTestRegoEngine(t)
	d := eng.OnProvider(context.Background(), &ProviderInput{Provider: "exec", Key: "X"})
	if d.Effect != EffectDeny {
		t.Errorf("effect = %q, want deny", d.Effect)
	}
	if d.Reason != "exec provider is not allowed" {
		t.Errorf("reason = %q", d.Reason)
	}
}

func TestRegoEngineWarn(t *testing.T) {
	eng := newTestRegoEngine(t)
	d := eng.OnKeyInject(context.Background(), &KeyInjectInput{Key: "AWS_SECRET_ACCESS_KEY"})
	if d.Effect != EffectWarn {
		t.Errorf("effect = %q, want warn", d.Effect)
	}
}

func TestRegoEngineDefaultAllow(t *testing.T) {
	eng := newTestRegoEngine(t)
	d := eng.OnProvider(context.Background(), &ProviderInput{Provider: "env", Key: "X"})
	if d.Effect != EffectAllow {
		t.Errorf("effect = %q, want allow", d.Effect)
	}
	if d := eng.OnStart(context.Background(), &StartInput{Profile: "dev"}); d.Effect != EffectAllow {
		t.Errorf("start effect = %q, want allow", d.Effect)
	}
}

func TestRegoEngineRejectsBadModule(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	_, err := NewRegoEngine(context.Background(), "bad.rego", "package broken\nthis is not rego", logger)
	if err == nil {
		t.Fatal("expected compile error")
	}
}
