// Package ai adapts model backends to core.ModelClient. The backend is
// chosen once from configuration; callers never see which one is in use.
package ai

import (
	"context"
	"fmt"

	"github.com/rigdev/apprig/internal/config"
)

// Backend is one model provider. Complete returns the raw text of a single
// non-streaming completion.
type Backend interface {
	Name() string
	Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error)

	// Ping checks that the backend is reachable and the model is usable.
	Ping(ctx context.Context) error
}

// NewBackend builds the backend selected by cfg.BackendKind and
// cfg.Provider. On error the returned Backend is a nil interface.
func NewBackend(ctx context.Context, cfg config.AIConfig) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch cfg.BackendKind {
	case "local":
		if cfg.Provider != "" && cfg.Provider != "ollama" {
			return nil, fmt.Errorf("ai: provider %q is not a local backend", cfg.Provider)
		}
		b, err = NewOllama(cfg)
	case "hosted":
		switch cfg.Provider {
		case "openai":
			b, err = NewOpenAI(cfg)
		case "anthropic":
			b, err = NewAnthropic(cfg)
		case "gemini":
			b, err = NewGemini(ctx, cfg)
		default:
			return nil, fmt.Errorf("ai: unsupported hosted provider %q", cfg.Provider)
		}
	default:
		return nil, fmt.Errorf("ai: unsupported backend kind %q", cfg.BackendKind)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}
