package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LLMConfig configures the language model provider
type LLMConfig struct {
	Provider    string  `json:"provider" yaml:"provider"` // "ollama" or "none"
	BaseURL     string  `json:"baseUrl" yaml:"baseUrl"`
	Model       string  `json:"model" yaml:"model"`
	Timeout     int     `json:"timeout" yaml:"timeout"` // seconds per generate call
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"maxTokens" yaml:"maxTokens"`
}

// BrowserConfig configures the probing browser
type BrowserConfig struct {
	Enabled           bool   `json:"enabled" yaml:"enabled"`
	ExecutablePath    string `json:"executablePath,omitempty" yaml:"executablePath,omitempty"`
	Headless          bool   `json:"headless" yaml:"headless"`
	NavigationTimeout int    `json:"navigationTimeout,omitempty" yaml:"navigationTimeout,omitempty"` // seconds
}

// PerformanceConfig bounds concurrent work
type PerformanceConfig struct {
	MaxWorkers int `json:"maxWorkers" yaml:"maxWorkers"`
}

// OutputConfig configures where resolved models are written
type OutputConfig struct {
	Dir string `json:"dir" yaml:"dir"`
}

// BenderConfig is the main configuration loaded from agentbender.config.json
// (or its .yaml/.yml equivalent)
type BenderConfig struct {
	LLM         LLMConfig         `json:"llm" yaml:"llm"`
	Browser     BrowserConfig     `json:"browser" yaml:"browser"`
	Performance PerformanceConfig `json:"performance" yaml:"performance"`
	Output      OutputConfig      `json:"output" yaml:"output"`
	Logging     *LoggingConfig    `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// ResolvedConfig is the fully resolved configuration
type ResolvedConfig struct {
	ProjectRoot string
	ConfigPath  string
	Config      BenderConfig
}

// configBasenames are probed in order; the first that exists wins.
var configBasenames = []string{
	"agentbender.config.json",
	"agentbender.config.yaml",
	"agentbender.config.yml",
}

// ConfigPath returns the path to the default JSON config file
func ConfigPath(projectRoot string) string {
	return filepath.Join(projectRoot, configBasenames[0])
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile(projectRoot string) string {
	for _, name := range configBasenames {
		p := filepath.Join(projectRoot, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() BenderConfig {
	return BenderConfig{
		LLM: LLMConfig{
			Provider:    "ollama",
			BaseURL:     "http://localhost:11434",
			Model:       "llama3",
			Timeout:     300,
			Temperature: 0.3,
			MaxTokens:   500,
		},
		Browser: BrowserConfig{
			Enabled:           true,
			Headless:          true,
			NavigationTimeout: 30,
		},
		Performance: PerformanceConfig{
			MaxWorkers: 5,
		},
		Output: OutputConfig{
			Dir: "generated",
		},
		Logging: DefaultLoggingConfig(),
	}
}

// LoadConfig loads and validates the configuration. A missing config file
// is not an error: the defaults are used as-is.
func LoadConfig(projectRoot string) (*ResolvedConfig, error) {
	cfg := DefaultConfig()

	configPath := findConfigFile(projectRoot)
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if filepath.Ext(configPath) == ".json" {
			if err := json.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("invalid %s: %w", filepath.Base(configPath), err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("invalid %s: %w", filepath.Base(configPath), err)
			}
		}
	}

	applyConfigDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &ResolvedConfig{
		ProjectRoot: projectRoot,
		ConfigPath:  configPath,
		Config:      cfg,
	}, nil
}

// applyConfigDefaults fills zero values after a partial config file
func applyConfigDefaults(cfg *BenderConfig) {
	def := DefaultConfig()

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = def.LLM.Provider
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = def.LLM.BaseURL
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = def.LLM.Model
	}
	if cfg.LLM.Timeout <= 0 {
		cfg.LLM.Timeout = def.LLM.Timeout
	}
	if cfg.LLM.Temperature <= 0 {
		cfg.LLM.Temperature = def.LLM.Temperature
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = def.LLM.MaxTokens
	}
	if cfg.Browser.NavigationTimeout <= 0 {
		cfg.Browser.NavigationTimeout = def.Browser.NavigationTimeout
	}
	if cfg.Performance.MaxWorkers <= 0 {
		cfg.Performance.MaxWorkers = def.Performance.MaxWorkers
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = def.Output.Dir
	}
	if cfg.Logging == nil {
		cfg.Logging = DefaultLoggingConfig()
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *BenderConfig) error {
	switch cfg.LLM.Provider {
	case "ollama", "none", "":
		// valid
	default:
		return fmt.Errorf("llm.provider must be \"ollama\" or \"none\", got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Provider == "ollama" && cfg.LLM.BaseURL == "" {
		return fmt.Errorf("llm.baseUrl is required for the ollama provider")
	}
	if cfg.Performance.MaxWorkers > 64 {
		return fmt.Errorf("performance.maxWorkers must be at most 64, got %d", cfg.Performance.MaxWorkers)
	}
	return nil
}

// findGitRoot finds the git root from a starting directory
func findGitRoot(start string) string {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

// GetProjectRoot returns the project root (git root or cwd)
func GetProjectRoot() string {
	cwd, _ := os.Getwd()
	return findGitRoot(cwd)
}

// isCommandAvailable checks if a command is available in PATH
func isCommandAvailable(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}

// WriteDefaultConfig writes a default agentbender.config.json
func WriteDefaultConfig(projectRoot string) error {
	return AtomicWriteJSON(ConfigPath(projectRoot), DefaultConfig())
}
