package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docqa.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != ProviderCohere || cfg.Processing.ChunkSize != 1000 || cfg.Processing.TopK != 5 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Processing.ImageRateLimit != 40 || cfg.Processing.ImageWindow() != time.Minute {
		t.Errorf("unexpected image limit %+v", cfg.Processing)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
provider: ollama
processing:
  chunk_size: 500
qdrant:
  url: localhost:6334
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != ProviderOllama || cfg.Processing.ChunkSize != 500 || cfg.Qdrant.URL != "localhost:6334" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Processing.TopK != 5 || cfg.Qdrant.Collection != "docqa" {
		t.Errorf("unset values should keep defaults: %+v", cfg)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "processing:\n  top_k: 3\n")
	t.Setenv("DOCQA_TOP_K", "9")
	t.Setenv("PORT", "9090")
	t.Setenv("DOCQA_CHUNK_SIZE", "not-a-number")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Processing.TopK != 9 || cfg.HTTP.Port != "9090" {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.Processing.ChunkSize != 1000 {
		t.Errorf("invalid int should fall back, got %d", cfg.Processing.ChunkSize)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	if _, err := Load(writeFile(t, "provider: [")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Provider = "openai"
	if err := cfg.Validate(); err == nil {
		t.Error("expected unknown provider error")
	}

	cfg = Default()
	cfg.Processing.ImageRateLimit = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected rate limit error")
	}
}

func TestCohereAPIKeyFromEnv(t *testing.T) {
	t.Setenv("COHERE_API_KEY", "secret")
	if got := Default().Cohere.APIKey(); got != "secret" {
		t.Errorf("APIKey = %q", got)
	}
}
