package sentiment

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"horse.fit/pulse/internal/config"
)

// DefaultEngineName is used when no engine is configured.
const DefaultEngineName = LexiconEngineName

// Registry resolves sentiment engines by name.
type Registry struct {
	engines       map[string]Engine
	defaultEngine string
}

// NewRegistry creates an empty registry. defaultEngine selects the engine
// returned for empty lookups; when blank, the lexicon engine is the default.
func NewRegistry(defaultEngine string) *Registry {
	normalized := normalizeEngineName(defaultEngine)
	if normalized == "" {
		normalized = DefaultEngineName
	}
	return &Registry{
		engines:       make(map[string]Engine),
		defaultEngine: normalized,
	}
}

// NewRegistryFromConfig builds the standard registry: the lexicon engine is
// always present, and the remote engine is added when an inference endpoint
// is configured.
func NewRegistryFromConfig(cfg *config.Config) (*Registry, error) {
	defaultEngine := ""
	minProbability := DefaultMinProbability
	if cfg != nil {
		defaultEngine = cfg.SentimentEngine
		minProbability = cfg.MinProbability
	}

	registry := NewRegistry(defaultEngine)
	if err := registry.Register(NewLexiconEngine(minProbability)); err != nil {
		return nil, err
	}
	if cfg != nil && strings.TrimSpace(cfg.SentimentEndpoint) != "" {
		remote, err := NewRemoteEngine(cfg.SentimentEndpoint, cfg.SentimentModel)
		if err != nil {
			return nil, fmt.Errorf("configure remote sentiment engine: %w", err)
		}
		if err := registry.Register(remote); err != nil {
			return nil, err
		}
	}
	if _, ok := registry.engines[registry.defaultEngine]; !ok {
		return nil, fmt.Errorf("default sentiment engine %q is not registered (available: %s)",
			registry.defaultEngine, strings.Join(registry.EngineNames(), ", "))
	}
	return registry, nil
}

// Register adds an engine to the registry, replacing any engine that was
// registered under the same name.
func (r *Registry) Register(engine Engine) error {
	if engine == nil {
		return errors.New("cannot register nil sentiment engine")
	}
	name := normalizeEngineName(engine.Name())
	if name == "" {
		return errors.New("cannot register sentiment engine with empty name")
	}
	r.engines[name] = engine
	return nil
}

// Engine returns the engine registered under name. Empty and "default"
// resolve to the configured default; "fast" is an alias for the lexicon
// engine.
func (r *Registry) Engine(name string) (Engine, error) {
	normalized := normalizeEngineName(name)
	if normalized == "" {
		normalized = r.defaultEngine
	}
	engine, ok := r.engines[normalized]
	if !ok {
		return nil, fmt.Errorf("sentiment engine %q is not registered (available: %s)",
			name, strings.Join(r.EngineNames(), ", "))
	}
	return engine, nil
}

// DefaultEngine returns the name of the configured default engine.
func (r *Registry) DefaultEngine() string {
	return r.defaultEngine
}

// EngineNames returns the sorted names of all registered engines.
func (r *Registry) EngineNames() []string {
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeEngineName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "default":
		return ""
	case "fast":
		return LexiconEngineName
	}
	return name
}
