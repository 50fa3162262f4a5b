package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxRetries       = 3
	DefaultMaxContextFiles  = 20
	DefaultContextFileLimit = 8 * 1024
	DefaultTimeout          = 60 * time.Second
	DefaultMaxTokens        = 2048
	DefaultTemperature      = 0.7
	DefaultHistoryTurns     = 3
)

// envVarPattern matches ${VAR_NAME} patterns in config content.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars substitutes ${VAR_NAME} patterns with os.Getenv(VAR_NAME).
// Unresolved variables (env var not set) are left as-is without error.
func ResolveEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// LoadConfig reads a YAML configuration file, loads a sibling .env file if
// present, substitutes environment variables, applies defaults, and
// validates the result. A relative project.root is resolved against the
// config file's directory.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read file %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := loadDotEnv(filepath.Join(dir, ".env")); err != nil {
		return nil, err
	}

	if err := validateEnvVars(data); err != nil {
		return nil, err
	}

	resolved := envVarPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})

	var cfg Config
	if err := yaml.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse YAML: %w", err)
	}

	ApplyDefaults(&cfg)
	if !filepath.IsAbs(cfg.Project.Root) {
		cfg.Project.Root = filepath.Join(dir, cfg.Project.Root)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDotEnv loads KEY=VALUE pairs from path without overriding variables
// already present in the environment. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}

// validateEnvVars checks that all ${VAR} references in raw data
// correspond to environment variables that are actually set.
func validateEnvVars(data []byte) error {
	matches := envVarPattern.FindAllStringSubmatch(string(data), -1)
	var unresolved []string
	seen := map[string]bool{}
	for _, m := range matches {
		varName := m[1]
		if seen[varName] {
			continue
		}
		seen[varName] = true
		if _, ok := os.LookupEnv(varName); !ok {
			unresolved = append(unresolved, "${"+varName+"}")
		}
	}
	if len(unresolved) > 0 {
		return fmt.Errorf("config: unresolved variables found: %s",
			strings.Join(unresolved, ", "))
	}
	return nil
}

// ApplyDefaults fills zero-valued fields with the conventional layout and
// pipeline defaults.
func ApplyDefaults(cfg *Config) {
	p := &cfg.Project
	if p.Root == "" {
		p.Root = "."
	}
	if p.EntryFile == "" {
		p.EntryFile = "lib/main.dart"
	}
	if p.ScreensDir == "" {
		p.ScreensDir = "lib/screens"
	}
	if p.StateDir == "" {
		p.StateDir = "lib/providers"
	}
	if p.ServicesDir == "" {
		p.ServicesDir = "lib/services"
	}
	if p.ModelsDir == "" {
		p.ModelsDir = "lib/models"
	}
	if len(p.Include) == 0 {
		p.Include = []string{"lib/**/*.dart", "pubspec.yaml"}
	}
	if p.ContextFileLimit == 0 {
		p.ContextFileLimit = DefaultContextFileLimit
	}

	a := &cfg.AI
	if a.BackendKind == "" {
		a.BackendKind = "local"
	}
	if a.Provider == "" && a.BackendKind == "local" {
		a.Provider = "ollama"
	}
	if a.Timeout == 0 {
		a.Timeout = DefaultTimeout
	}
	if a.MaxTokens == 0 {
		a.MaxTokens = DefaultMaxTokens
	}
	if a.Temperature == 0 {
		a.Temperature = DefaultTemperature
	}

	pl := &cfg.Pipeline
	if pl.MaxContextFiles == 0 {
		pl.MaxContextFiles = DefaultMaxContextFiles
	}
	if pl.Classifier == "" {
		pl.Classifier = "rules"
	}
	if pl.HistoryTurns == 0 {
		pl.HistoryTurns = DefaultHistoryTurns
	}

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = ".apprig/apprig.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
}

// StoragePath returns the database path, resolved against the project root
// when relative.
func (c *Config) StoragePath() string {
	if filepath.IsAbs(c.Storage.Path) {
		return c.Storage.Path
	}
	return filepath.Join(c.Project.Root, c.Storage.Path)
}

// LogPath returns the log file path resolved like StoragePath, or "" when
// file logging is disabled.
func (c *Config) LogPath() string {
	if c.Log.File == "" || filepath.IsAbs(c.Log.File) {
		return c.Log.File
	}
	return filepath.Join(c.Project.Root, c.Log.File)
}
