package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LUMEN_CONFIG", filepath.Join(t.TempDir(), "missing.yml"))
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Listen != ":8080" {
		t.Errorf("expected default listen, got %q", cfg.Listen)
	}

	if cfg.LLM.Provider != "gemini" || cfg.LLM.APIKey != "test-key" {
		t.Errorf("unexpected llm config: %+v", cfg.LLM)
	}
}

func TestLoadMissingAPIKey(t *testing.T) {
	t.Setenv("LUMEN_CONFIG", filepath.Join(t.TempDir(), "missing.yml"))
	t.Setenv("LLM_PROVIDER", "claude")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("LLM_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Error("expected error when provider API key is missing")
	}
}

func TestLoadUnknownProvider(t *testing.T) {
	t.Setenv("LUMEN_CONFIG", filepath.Join(t.TempDir(), "missing.yml"))
	t.Setenv("LLM_PROVIDER", "mystery")
	t.Setenv("LLM_API_KEY", "key")

	// a generic key bypasses provider lookup
	cfg, err := Load()
	if err != nil {
		t.Fatalf("LLM_API_KEY should satisfy any provider: %v", err)
	}
	if cfg.LLM.APIKey != "key" {
		t.Errorf("unexpected api key: %q", cfg.LLM.APIKey)
	}
}

func TestLoadFileOverlayAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lumen.yml")

	content := `
listen: ":9090"
system_prompt: "Be terse."
llm:
  provider: openai
  model: gpt-4o
strings:
  apology: "custom apology"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("LUMEN_CONFIG", path)
	t.Setenv("OPENAI_API_KEY", "okey")
	t.Setenv("LUMEN_LISTEN", ":7070") // env wins over file

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Listen != ":7070" {
		t.Errorf("env should win over file, got %q", cfg.Listen)
	}

	if cfg.LLM.Provider != "openai" || cfg.LLM.Model != "gpt-4o" {
		t.Errorf("file llm config not applied: %+v", cfg.LLM)
	}

	if cfg.SystemPrompt != "Be terse." {
		t.Errorf("system prompt not applied: %q", cfg.SystemPrompt)
	}

	if cfg.Strings.Apology != "custom apology" {
		t.Errorf("strings overlay not applied: %+v", cfg.Strings)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lumen.yml")
	os.WriteFile(path, []byte("listen: [unclosed"), 0o644)

	t.Setenv("LUMEN_CONFIG", path)
	t.Setenv("GEMINI_API_KEY", "key")

	if _, err := Load(); err == nil {
		t.Error("expected error for malformed config file")
	}
}
