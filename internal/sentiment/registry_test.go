package sentiment

import (
	"strings"
	"testing"

	"horse.fit/pulse/internal/config"
)

func TestRegistryDefaultAndAliases(t *testing.T) {
	t.Parallel()

	registry := NewRegistry("")
	if err := registry.Register(NewLexiconEngine(DefaultMinProbability)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, name := range []string{"", "default", "fast", "LEXICON", " lexicon "} {
		engine, err := registry.Engine(name)
		if err != nil {
			t.Fatalf("lookup %q: unexpected error: %v", name, err)
		}
		if engine.Name() != LexiconEngineName {
			t.Fatalf("lookup %q: expected lexicon engine, got %q", name, engine.Name())
		}
	}
}

func TestRegistryUnknownEngine(t *testing.T) {
	t.Parallel()

	registry := NewRegistry("")
	if err := registry.Register(NewLexiconEngine(DefaultMinProbability)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := registry.Engine("oracle")
	if err == nil {
		t.Fatalf("expected error for unknown engine")
	}
	if !strings.Contains(err.Error(), "available: lexicon") {
		t.Fatalf("expected available engines in error, got: %v", err)
	}
}

func TestRegistryRejectsNilEngine(t *testing.T) {
	t.Parallel()

	registry := NewRegistry("")
	if err := registry.Register(nil); err == nil {
		t.Fatalf("expected error when registering nil engine")
	}
}

func TestNewRegistryFromConfigLexiconOnly(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		SentimentEngine: "lexicon",
		MinProbability:  DefaultMinProbability,
	}

	registry, err := NewRegistryFromConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := registry.EngineNames(); len(got) != 1 || got[0] != LexiconEngineName {
		t.Fatalf("expected only the lexicon engine, got %v", got)
	}
	if registry.DefaultEngine() != LexiconEngineName {
		t.Fatalf("expected lexicon default, got %q", registry.DefaultEngine())
	}
}

func TestNewRegistryFromConfigWithEndpoint(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		SentimentEngine:   "remote",
		SentimentEndpoint: "127.0.0.1:9000",
		MinProbability:    DefaultMinProbability,
	}

	registry, err := NewRegistryFromConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := registry.EngineNames(); len(got) != 2 {
		t.Fatalf("expected lexicon and remote engines, got %v", got)
	}
	if registry.DefaultEngine() != RemoteEngineName {
		t.Fatalf("expected remote default, got %q", registry.DefaultEngine())
	}
}

func TestNewRegistryFromConfigRemoteDefaultNeedsEndpoint(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		SentimentEngine: "remote",
		MinProbability:  DefaultMinProbability,
	}

	if _, err := NewRegistryFromConfig(cfg); err == nil {
		t.Fatalf("expected error when the default engine has no endpoint configured")
	}
}
