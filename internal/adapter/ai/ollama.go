package ai

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/rigdev/apprig/internal/config"
)

const defaultOllamaURL = "http://localhost:11434"

// Ollama is the local backend, talking to an Ollama server's native chat
// API.
type Ollama struct {
	client      *api.Client
	endpoint    string
	model       string
	temperature float64
}

var _ Backend = (*Ollama)(nil)

// NewOllama creates an Ollama backend. The endpoint comes from
// cfg.Endpoint, then OLLAMA_HOST, then the local default.
func NewOllama(cfg config.AIConfig) (*Ollama, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama: model is required")
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = strings.TrimSpace(os.Getenv("OLLAMA_HOST"))
	}
	if endpoint == "" {
		endpoint = defaultOllamaURL
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("ollama: invalid endpoint %q: %w", endpoint, err)
	}

	return &Ollama{
		client:      api.NewClient(base, httpClient(cfg.APIKey)),
		endpoint:    base.String(),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

func (o *Ollama) Name() string { return "ollama" }

// Complete runs a non-streaming chat request.
func (o *Ollama) Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model: o.model,
		Messages: []api.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Stream: &stream,
		Options: map[string]any{
			"temperature": o.temperature,
			"num_predict": maxTokens,
		},
	}

	var parts []string
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		parts = append(parts, resp.Message.Content)
		return nil
	})
	if err != nil {
		if isConnectionRefused(err) {
			return "", fmt.Errorf("cannot connect to ollama at %s (is Ollama running?): %w", o.endpoint, err)
		}
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return joinText(parts), nil
}

// Ping lists local models and checks the configured one is pulled.
func (o *Ollama) Ping(ctx context.Context) error {
	list, err := o.client.List(ctx)
	if err != nil {
		if isConnectionRefused(err) {
			return fmt.Errorf("cannot connect to ollama at %s (is Ollama running?): %w", o.endpoint, err)
		}
		return fmt.Errorf("ollama list: %w", err)
	}
	for _, m := range list.Models {
		if m.Name == o.model || m.Model == o.model || m.Name == o.model+":latest" {
			return nil
		}
	}
	return fmt.Errorf("ollama: model %q is not pulled (run: ollama pull %s)", o.model, o.model)
}
