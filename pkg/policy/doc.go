// Package policy decides whether sensitive evaluator steps may proceed.
//
// The evaluator consults a policy engine at five decision points: run start,
// provider resolution, pipe application, key injection, and run finish. Each
// hook returns an effect of allow, deny (with reason), or warn (with
// reason); an absent hook behaves as allow.
//
// Four implementations are provided:
//
//  1. AllowAll - the default, every hook allows.
//  2. Hooks - code-defined hook functions supplied by the embedding
//     application; nil functions allow.
//  3. RuleEngine - a declarative rule list per hook, loaded from YAML.
//     Each rule carries an optional field-match map (dot-path lookup into
//     the hook input, matched against an exact value, a one-of list, or a
//     glob pattern) and an effect. Rules are evaluated in order, first
//     match wins, and an unmatched input falls back to the configured
//     default effect.
//  4. RegoEngine - hooks evaluated by an OPA/Rego module, for installations
//     whose governance already lives in Rego.
//
// Deny decisions surface as *Denial errors; how fatal a denial is depends
// on the hook (a provider denial fails one key, a start denial aborts the
// whole evaluation).
package policy
