package main

import (
	"path/filepath"
	"testing"

	"github.com/example/go-tts-registry/internal/config"
)

func TestNewRootCmd_HasExpectedSubcommands(t *testing.T) {
	root := NewRootCmd()

	want := []string{"serve", "model", "health", "doctor"}
	for _, name := range want {
		found := false

		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}

		if !found {
			t.Errorf("expected subcommand %q not found in root", name)
		}
	}
}

func TestNewRootCmd_HasPersistentConfigFlag(t *testing.T) {
	root := NewRootCmd()
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("expected --config persistent flag to be registered")
	}
}

func TestModelCmd_HasExpectedSubcommands(t *testing.T) {
	model := newModelCmd()

	want := []string{"list", "add", "delete", "set-active", "update", "download"}
	for _, name := range want {
		found := false

		for _, sub := range model.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}

		if !found {
			t.Errorf("expected model subcommand %q not found", name)
		}
	}
}

func TestSetupLogger_DoesNotPanic(_ *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		setupLogger(level)
	}
}

func TestSetupLogger_InvalidLevelFallsBackToInfo(_ *testing.T) {
	// Should not panic on invalid level.
	setupLogger("not-a-level")
}

func TestRequireConfig_FailsWhenNotInitialized(t *testing.T) {
	origCfg, origLoaded := activeCfg, cfgLoaded

	t.Cleanup(func() { activeCfg, cfgLoaded = origCfg, origLoaded })

	activeCfg = config.Config{}
	cfgLoaded = false

	_, err := requireConfig()
	if err == nil {
		t.Fatal("expected error when config is not loaded")
	}
}

func TestRequireConfig_SucceedsWhenLoaded(t *testing.T) {
	origCfg, origLoaded := activeCfg, cfgLoaded

	t.Cleanup(func() { activeCfg, cfgLoaded = origCfg, origLoaded })

	activeCfg = config.Config{
		Paths: config.PathsConfig{RegistryPath: "/some/registry.json"},
	}
	cfgLoaded = true

	got, err := requireConfig()
	if err != nil {
		t.Fatalf("requireConfig returned unexpected error: %v", err)
	}

	if got.Paths.RegistryPath != "/some/registry.json" {
		t.Errorf("unexpected RegistryPath: %q", got.Paths.RegistryPath)
	}
}

func TestBuildComponents_WiresCacheOnlyWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Paths.RegistryPath = filepath.Join(dir, "registry.json")
	cfg.Paths.ModelsDir = filepath.Join(dir, "models")

	c := buildComponents(cfg)
	if c.cache != nil {
		t.Error("cache should be nil when no cache dir is configured")
	}
	if c.store == nil || c.models == nil || c.tracker == nil || c.coord == nil || c.executor == nil {
		t.Fatal("all core components must be wired")
	}

	cfg.Hub.CacheDir = filepath.Join(dir, "hub")
	c = buildComponents(cfg)
	if c.cache == nil {
		t.Error("cache should be wired when a cache dir is configured")
	}
}
