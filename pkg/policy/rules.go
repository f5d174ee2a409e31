package policy

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// MatchValue is the right-hand side of a rule match entry: an exact value,
// a one-of list, or a glob pattern (path.Match syntax). In YAML it is either
// a scalar or a sequence.
type MatchValue struct {
	values []string
}

// UnmarshalYAML accepts a scalar or a sequence of scalars.
func (v *MatchValue) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		v.values = []string{node.Value}
		return nil
	case yaml.SequenceNode:
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("match value list may only contain scalars")
			}
			v.values = append(v.values, item.Value)
		}
		return nil
	default:
		return fmt.Errorf("match value must be a scalar or a list of scalars")
	}
}

// Values returns the candidate match values.
func (v *MatchValue) Values() []string { return v.values }

// matches reports whether actual satisfies any candidate, by equality or by
// glob pattern.
func (v *MatchValue) matches(actual string) bool {
	for _, candidate := range v.values {
		if candidate == actual {
			return true
		}
		if ok, err := path.Match(candidate, actual); err == nil && ok {
			return true
		}
	}
	return false
}

// Rule is one declarative policy rule. Every entry of Match must hold for
// the rule to fire.
type Rule struct {
	Hook   Hook                  `yaml:"hook" validate:"required,oneof=start provider pipe key_inject finish"`
	Match  map[string]MatchValue `yaml:"match"`
	Effect Effect                `yaml:"effect" validate:"required,oneof=allow deny warn"`
	Reason string                `yaml:"reason"`
}

// RuleSet is the on-disk shape of a declarative policy.
type RuleSet struct {
	// Default is the effect for inputs no rule matches. Empty means allow.
	Default Effect `yaml:"default" validate:"omitempty,oneof=allow deny warn"`

	Rules []Rule `yaml:"rules" validate:"dive"`
}

// RuleEngine evaluates a declarative rule list. Rules are checked in list
// order per hook and the first match wins.
type RuleEngine struct {
	byHook   map[Hook][]Rule
	fallback Effect
}

// NewRuleEngine builds an engine from a rule set.
func NewRuleEngine(set RuleSet) *RuleEngine {
	e := &RuleEngine{
		byHook:   make(map[Hook][]Rule),
		fallback: set.Default,
	}
	if e.fallback == "" {
		e.fallback = EffectAllow
	}
	for _, r := range set.Rules {
		e.byHook[r.Hook] = append(e.byHook[r.Hook], r)
	}
	return e
}

func (e *RuleEngine) OnStart(_ context.Context, in *StartInput) Decision {
	return e.decide(HookStart, in)
}

func (e *RuleEngine) OnProvider(_ context.Context, in *ProviderInput) Decision {
	return e.decide(HookProvider, in)
}

func (e *RuleEngine) OnPipe(_ context.Context, in *PipeInput) Decision {
	return e.decide(HookPipe, in)
}

func (e *RuleEngine) OnKeyInject(_ context.Context, in *KeyInjectInput) Decision {
	return e.decide(HookKeyInject, in)
}

func (e *RuleEngine) OnFinish(_ context.Context, in *FinishInput) Decision {
	return e.decide(HookFinish, in)
}

func (e *RuleEngine) decide(hook Hook, in any) Decision {
	fields := toMap(in)
	for _, rule := range e.byHook[hook] {
		if ruleMatches(rule, fields) {
			return Decision{Effect: rule.Effect, Reason: rule.Reason}
		}
	}
	return Decision{Effect: e.fallback, Reason: fmt.Sprintf("no %s rule matched", hook)}
}

func ruleMatches(rule Rule, fields map[string]any) bool {
	for fieldPath, want := range rule.Match {
		actual, ok := lookupPath(fields, fieldPath)
		if !ok || !valueMatches(want, actual) {
			return false
		}
	}
	return true
}

// lookupPath walks a dot path ("args.mount") through nested maps.
func lookupPath(fields map[string]any, fieldPath string) (any, bool) {
	parts := strings.Split(fieldPath, ".")
	var current any = fields
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// valueMatches compares the looked-up field against the match value. A list
// field (e.g. scopes) matches when any element matches.
func valueMatches(want MatchValue, actual any) bool {
	if list, ok := actual.([]any); ok {
		for _, item := range list {
			if want.matches(scalarString(item)) {
				return true
			}
		}
		return false
	}
	return want.matches(scalarString(actual))
}

// scalarString renders a JSON-decoded scalar for matching. Numbers format
// without a trailing ".0" so "2" matches an integer field.
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
