package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Version != CurrentVersion {
		t.Fatalf("expected version %d, got %d", CurrentVersion, cfg.Version)
	}
	if cfg.Session.TTLSeconds == 0 {
		t.Fatal("expected a nonzero default session TTL")
	}
	if cfg.LLM.Model == "" {
		t.Fatal("expected a default model")
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := &Config{
		Session: SessionConfig{TTLSeconds: 900, CacheCapacity: 10, WindowCacheCapacity: 20},
		LLM: LLMConfig{
			BaseURL:         "https://api.example.com",
			Model:           "claude-sonnet-4-5",
			Temperature:     0.5,
			MaxOutputTokens: 2048,
			MaxSteps:        4,
			SystemPrompt:    "be terse",
		},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Session.TTLSeconds != 900 {
		t.Fatalf("expected TTLSeconds 900, got %d", loaded.Session.TTLSeconds)
	}
	if loaded.LLM.Model != "claude-sonnet-4-5" || loaded.LLM.SystemPrompt != "be terse" {
		t.Fatalf("unexpected LLM config after round trip: %+v", loaded.LLM)
	}
	if loaded.Version != CurrentVersion {
		t.Fatalf("expected version %d, got %d", CurrentVersion, loaded.Version)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"version": 1, "session": {"ttl_seconds": 60}, "bogus_field": true}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unknown top-level field")
	}
}

func TestLoadRejectsNewerVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"version": 999}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected an error for a version newer than this build supports")
	}
}

func TestLoadRejectsMissingVersionWithNoMigrationPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"session": {"ttl_seconds": 60}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a config with no version field")
	}
}

func TestMigrateToCurrentAppliesRegisteredMigration(t *testing.T) {
	orig, hadOrig := migrations[0]
	migrations[0] = func(raw map[string]any) map[string]any {
		raw["version"] = 1
		return raw
	}
	defer func() {
		if hadOrig {
			migrations[0] = orig
		} else {
			delete(migrations, 0)
		}
	}()

	out, err := migrateToCurrent(map[string]any{"version": float64(0)})
	if err != nil {
		t.Fatalf("migrateToCurrent: %v", err)
	}
	if out["version"] != CurrentVersion {
		t.Fatalf("expected migrated version %d, got %v", CurrentVersion, out["version"])
	}
}

func TestVersionErrorMessages(t *testing.T) {
	newer := &VersionError{Version: 5, Current: 1}
	if got := newer.Error(); got == "" {
		t.Fatal("expected a non-empty message")
	}
	outdated := &VersionError{Version: 0, Current: 1}
	if got := outdated.Error(); got == "" {
		t.Fatal("expected a non-empty message")
	}
}
