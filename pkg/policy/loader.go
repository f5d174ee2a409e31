package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Loader reads policy files from disk: YAML rule sets (.yaml/.yml) for the
// declarative engine and Rego modules (.rego) for the Rego engine.
type Loader struct {
	logger   zerolog.Logger
	validate *validator.Validate
}

// NewLoader creates a policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger:   logger.With().Str("component", "policy-loader").Logger(),
		validate: validator.New(),
	}
}

// Load builds an engine from a policy file, dispatching on its extension.
func (l *Loader) Load(ctx context.Context, path string) (Engine, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return l.loadRules(path)
	case ".rego":
		return l.loadRego(ctx, path)
	default:
		return nil, fmt.Errorf("unsupported policy file type %q: expected .yaml, .yml, or .rego", ext)
	}
}

func (l *Loader) loadRules(path string) (*RuleEngine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	var set RuleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parsing policy file %s: %w", path, err)
	}
	if err := l.validate.Struct(&set); err != nil {
		return nil, fmt.Errorf("invalid policy file %s: %w", path, err)
	}

	l.logger.Info().
		Str("path", path).
		Int("rules", len(set.Rules)).
		Str("default", string(set.Default)).
		Msg("Policy rules loaded")

	return NewRuleEngine(set), nil
}

func (l *Loader) loadRego(ctx context.Context, path string) (*RegoEngine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	eng, err := NewRegoEngine(ctx, filepath.Base(path), string(data), l.logger)
	if err != nil {
		return nil, fmt.Errorf("compiling policy file %s: %w", path, err)
	}

	l.logger.Info().Str("path", path).Msg("Rego policy loaded")
	return eng, nil
}

// Watch reloads the policy file on every write event and hands the fresh
// engine to onReload. It blocks until the context is cancelled.
func (l *Loader) Watch(ctx context.Context, path string, onReload func(Engine)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating policy watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file, which drops a
	// watch registered on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching policy directory: %w", err)
	}

	target, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			eventPath, err := filepath.Abs(event.Name)
			if err != nil || eventPath != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			engine, err := l.Load(ctx, path)
			if err != nil {
				l.logger.Warn().Err(err).Str("path", path).Msg("Policy reload failed, keeping previous policy")
				continue
			}
			l.logger.Info().Str("path", path).Msg("Policy reloaded")
			onReload(engine)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn().Err(err).Msg("Policy watcher error")
		}
	}
}
