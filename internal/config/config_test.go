package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testdataPath(t *testing.T, name string) string {
	t.Helper()
	path, err := filepath.Abs(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to resolve testdata path: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-api-key")
	cfg, err := LoadConfig(testdataPath(t, "valid.yaml"))
	if err != nil {
		t.Fatalf("expected valid config to load, got error: %v", err)
	}

	if cfg.Project.Name != "shop-app" {
		t.Errorf("project.name = %q, want %q", cfg.Project.Name, "shop-app")
	}
	wantRoot := filepath.Join(filepath.Dir(testdataPath(t, "valid.yaml")), "app")
	if cfg.Project.Root != wantRoot {
		t.Errorf("project.root = %q, want %q", cfg.Project.Root, wantRoot)
	}
	if cfg.AI.APIKey != "test-api-key" {
		t.Errorf("ai.api_key = %q, want env substitution", cfg.AI.APIKey)
	}
	if cfg.AI.Timeout != 45*time.Second {
		t.Errorf("ai.timeout = %v, want 45s", cfg.AI.Timeout)
	}
	if got := cfg.Pipeline.Retries(); got != 2 {
		t.Errorf("pipeline.max_retries = %d, want 2", got)
	}
	if cfg.Pipeline.MaxContextFiles != 12 {
		t.Errorf("pipeline.max_context_files = %d, want 12", cfg.Pipeline.MaxContextFiles)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Project.EntryFile != "lib/main.dart" {
		t.Errorf("project.entry_file default = %q", cfg.Project.EntryFile)
	}
}

func TestLoadConfig_LocalDefaults(t *testing.T) {
	cfg, err := LoadConfig(testdataPath(t, "local.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AI.BackendKind != "local" || cfg.AI.Provider != "ollama" {
		t.Errorf("backend = %s/%s, want local/ollama", cfg.AI.BackendKind, cfg.AI.Provider)
	}
	if got := cfg.Pipeline.Retries(); got != 0 {
		t.Errorf("explicit max_retries 0 must be kept, got %d", got)
	}
	if cfg.Pipeline.Classifier != "rules" {
		t.Errorf("classifier default = %q, want rules", cfg.Pipeline.Classifier)
	}
	if cfg.AI.Timeout != DefaultTimeout {
		t.Errorf("timeout default = %v", cfg.AI.Timeout)
	}
}

func TestLoadConfig_InvalidBackend(t *testing.T) {
	_, err := LoadConfig(testdataPath(t, "invalid_backend.yaml"))
	if err == nil {
		t.Fatal("expected error for invalid backend_kind")
	}
	if !strings.Contains(err.Error(), "ai.backend_kind") {
		t.Errorf("error should mention ai.backend_kind, got: %v", err)
	}
}

func TestLoadConfig_UnresolvedVariable(t *testing.T) {
	_, err := LoadConfig(testdataPath(t, "unresolved.yaml"))
	if err == nil {
		t.Fatal("expected unresolved variable error")
	}
	if !strings.Contains(err.Error(), "${APPRIG_TEST_UNSET_KEY}") {
		t.Errorf("error should list the variable, got: %v", err)
	}
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	data, err := os.ReadFile(testdataPath(t, "dotenv.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "apprig.yaml"), data, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("APPRIG_DOTENV_KEY=from-dotenv\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("APPRIG_DOTENV_KEY") })

	cfg, err := LoadConfig(filepath.Join(dir, "apprig.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AI.APIKey != "from-dotenv" {
		t.Errorf("api_key = %q, want value from .env", cfg.AI.APIKey)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read file") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Setenv("APPRIG_MODEL", "llama3")
	got := ResolveEnvVars("model: ${APPRIG_MODEL} key: ${APPRIG_NOT_SET}")
	want := "model: llama3 key: ${APPRIG_NOT_SET}"
	if got != want {
		t.Errorf("ResolveEnvVars = %q, want %q", got, want)
	}
}

func TestStoragePath_RelativeToRoot(t *testing.T) {
	cfg := &Config{Project: ProjectConfig{Root: "/srv/app"}}
	ApplyDefaults(cfg)
	if got := cfg.StoragePath(); got != "/srv/app/.apprig/apprig.db" {
		t.Errorf("StoragePath = %q", got)
	}
	cfg.Storage.Path = "/var/lib/apprig.db"
	if got := cfg.StoragePath(); got != "/var/lib/apprig.db" {
		t.Errorf("absolute StoragePath = %q", got)
	}
}
