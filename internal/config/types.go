package config

import "time"

// Config is the top-level configuration for apprig.
type Config struct {
	Project  ProjectConfig  `yaml:"project"`
	AI       AIConfig       `yaml:"ai"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Policies []PolicyConfig `yaml:"policies"`
}

// ProjectConfig describes the target application tree and its layout.
type ProjectConfig struct {
	Name        string `yaml:"name"`
	Root        string `yaml:"root"`
	EntryFile   string `yaml:"entry_file"`
	ScreensDir  string `yaml:"screens_dir"`
	StateDir    string `yaml:"state_dir"`
	ServicesDir string `yaml:"services_dir"`
	ModelsDir   string `yaml:"models_dir"`

	// Include lists doublestar patterns (relative to Root) of files tracked
	// in the project snapshot.
	Include []string `yaml:"include"`

	// ContextFileLimit is the size in bytes under which a file's full
	// content is rendered into the context prompt.
	ContextFileLimit int `yaml:"context_file_limit"`
}

// AIConfig holds model backend settings.
type AIConfig struct {
	BackendKind string        `yaml:"backend_kind"` // local|hosted
	Provider    string        `yaml:"provider"`     // ollama|openai|anthropic|gemini
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	Endpoint    string        `yaml:"endpoint"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
}

// PipelineConfig controls the plan/generate/validate loop.
type PipelineConfig struct {
	// MaxRetries is the number of regenerations allowed per operation after
	// the first attempt. Nil means the default.
	MaxRetries      *int   `yaml:"max_retries"`
	MaxContextFiles int    `yaml:"max_context_files"`
	Classifier      string `yaml:"classifier"` // rules|model
	HistoryTurns    int    `yaml:"history_turns"`
}

// Retries returns the effective max_retries value.
func (p PipelineConfig) Retries() int {
	if p.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *p.MaxRetries
}

// StorageConfig locates the turn history database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ServerConfig holds HTTP instruction channel settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// PolicyConfig is one guard applied to every plan before generation.
type PolicyConfig struct {
	Name   string `yaml:"name"`
	Rule   string `yaml:"rule"`   // max_file_changes|blocked_paths|no_delete
	Value  string `yaml:"value"`
	Action string `yaml:"action"` // block|warn
}
