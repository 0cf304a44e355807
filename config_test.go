package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindGitRoot(t *testing.T) {
	dir := t.TempDir()
	gitDir := filepath.Join(dir, ".git")
	os.Mkdir(gitDir, 0755)

	subDir := filepath.Join(dir, "sub", "deep")
	os.MkdirAll(subDir, 0755)

	root := findGitRoot(subDir)
	if root != dir {
		t.Errorf("expected '%s', got '%s'", dir, root)
	}
}

func TestFindGitRoot_NoGit(t *testing.T) {
	dir := t.TempDir()

	root := findGitRoot(dir)
	if root != dir {
		t.Errorf("expected '%s', got '%s'", dir, root)
	}
}

func TestLoadConfig_Valid(t *testing.T) {
	dir := t.TempDir()

	configContent := `{
		"llm": {
			"provider": "ollama",
			"baseUrl": "http://llm.internal:11434",
			"model": "mistral",
			"timeout": 120
		},
		"browser": {
			"enabled": true,
			"headless": false
		},
		"performance": {
			"maxWorkers": 3
		}
	}`
	os.WriteFile(filepath.Join(dir, "agentbender.config.json"), []byte(configContent), 0644)

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("expected config, got error: %v", err)
	}
	if cfg.Config.LLM.Model != "mistral" {
		t.Errorf("expected llm.model='mistral', got '%s'", cfg.Config.LLM.Model)
	}
	if cfg.Config.LLM.Timeout != 120 {
		t.Errorf("expected llm.timeout=120, got %d", cfg.Config.LLM.Timeout)
	}
	if cfg.Config.Browser.Headless {
		t.Error("expected browser.headless=false")
	}
	if cfg.Config.Performance.MaxWorkers != 3 {
		t.Errorf("expected performance.maxWorkers=3, got %d", cfg.Config.Performance.MaxWorkers)
	}
	// Unset fields fall back to defaults
	if cfg.Config.LLM.Temperature != 0.3 {
		t.Errorf("expected default temperature 0.3, got %v", cfg.Config.LLM.Temperature)
	}
	if cfg.Config.Output.Dir != "generated" {
		t.Errorf("expected default output dir, got '%s'", cfg.Config.Output.Dir)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	dir := t.TempDir()

	configContent := `llm:
  provider: ollama
  model: qwen2.5
browser:
  enabled: false
performance:
  maxWorkers: 2
`
	os.WriteFile(filepath.Join(dir, "agentbender.config.yaml"), []byte(configContent), 0644)

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("expected config, got error: %v", err)
	}
	if cfg.Config.LLM.Model != "qwen2.5" {
		t.Errorf("expected llm.model='qwen2.5', got '%s'", cfg.Config.LLM.Model)
	}
	if cfg.Config.Browser.Enabled {
		t.Error("expected browser.enabled=false")
	}
	if cfg.Config.Performance.MaxWorkers != 2 {
		t.Errorf("expected maxWorkers=2, got %d", cfg.Config.Performance.MaxWorkers)
	}
}

func TestLoadConfig_JSONTakesPrecedenceOverYAML(t *testing.T) {
	dir := t.TempDir()

	os.WriteFile(filepath.Join(dir, "agentbender.config.json"), []byte(`{"llm":{"model":"from-json"}}`), 0644)
	os.WriteFile(filepath.Join(dir, "agentbender.config.yaml"), []byte("llm:\n  model: from-yaml\n"), 0644)

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Config.LLM.Model != "from-json" {
		t.Errorf("expected json config to win, got model '%s'", cfg.Config.LLM.Model)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ConfigPath != "" {
		t.Errorf("expected empty config path, got '%s'", cfg.ConfigPath)
	}
	if cfg.Config.LLM.Provider != "ollama" {
		t.Errorf("expected default provider 'ollama', got '%s'", cfg.Config.LLM.Provider)
	}
	if cfg.Config.Performance.MaxWorkers != 5 {
		t.Errorf("expected default maxWorkers=5, got %d", cfg.Config.Performance.MaxWorkers)
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "agentbender.config.json"), []byte("not json"), 0644)

	_, err := LoadConfig(dir)
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestLoadConfig_UnknownProvider(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "agentbender.config.json"), []byte(`{"llm":{"provider":"gpt-x"}}`), 0644)

	_, err := LoadConfig(dir)
	if err == nil {
		t.Error("expected error for unknown llm.provider")
	}
}

func TestLoadConfig_TooManyWorkers(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "agentbender.config.json"), []byte(`{"performance":{"maxWorkers":200}}`), 0644)

	_, err := LoadConfig(dir)
	if err == nil {
		t.Error("expected error for maxWorkers over the limit")
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	dir := t.TempDir()

	if err := WriteDefaultConfig(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("failed to load written config: %v", err)
	}
	if cfg.Config.LLM.BaseURL != "http://localhost:11434" {
		t.Errorf("unexpected baseUrl '%s'", cfg.Config.LLM.BaseURL)
	}
	if !cfg.Config.Browser.Enabled || !cfg.Config.Browser.Headless {
		t.Error("expected browser enabled and headless by default")
	}
}
