package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rigdev/apprig/internal/config"
	"github.com/rigdev/apprig/internal/core"
	"github.com/rigdev/apprig/internal/logging"
)

var _ core.ModelClient = (*Client)(nil)

// errEmptyResponse is reported when a backend answers with no text.
var errEmptyResponse = errors.New("empty response from model")

// Client implements core.ModelClient over a single Backend. Every call is
// bounded by the configured timeout and every failure comes back as a
// *core.TransportError inside the response.
type Client struct {
	backend   Backend
	timeout   time.Duration
	maxTokens int
	log       *slog.Logger
}

// New builds the configured backend and wraps it.
func New(ctx context.Context, cfg config.AIConfig) (*Client, error) {
	b, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithBackend(b, cfg.Timeout, cfg.MaxTokens), nil
}

// NewWithBackend wraps b. Non-positive values fall back to the defaults.
func NewWithBackend(b Backend, timeout time.Duration, maxTokens int) *Client {
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}
	if maxTokens <= 0 {
		maxTokens = config.DefaultMaxTokens
	}
	return &Client{
		backend:   b,
		timeout:   timeout,
		maxTokens: maxTokens,
		log:       logging.With("component", "ai", "backend", b.Name()),
	}
}

// Backend returns the backend name.
func (c *Client) Backend() string { return c.backend.Name() }

// Generate sends one request. It never panics past its boundary and never
// returns a bare error: failures are reported in ModelResponse.Err.
func (c *Client) Generate(ctx context.Context, req core.ModelRequest) core.ModelResponse {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	text, err := c.complete(ctx, req.System, req.Prompt, maxTokens)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", c.timeout, err)
		}
		c.log.Warn("generation failed", "elapsed", elapsed.Round(time.Millisecond), "error", err)
		return core.ModelResponse{Err: &core.TransportError{Backend: c.backend.Name(), Err: err}}
	}
	if strings.TrimSpace(text) == "" {
		c.log.Warn("generation returned no text", "elapsed", elapsed.Round(time.Millisecond))
		return core.ModelResponse{Err: &core.TransportError{Backend: c.backend.Name(), Err: errEmptyResponse}}
	}

	c.log.Debug("generation finished", "elapsed", elapsed.Round(time.Millisecond), "chars", len(text))
	return core.ModelResponse{Text: text}
}

// complete calls the backend, turning a panic inside an SDK into an error.
func (c *Client) complete(ctx context.Context, system, prompt string, maxTokens int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend panic: %v", r)
		}
	}()
	return c.backend.Complete(ctx, system, prompt, maxTokens)
}

// Ping checks backend reachability within the client timeout.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.backend.Ping(ctx); err != nil {
		return &core.TransportError{Backend: c.backend.Name(), Err: err}
	}
	return nil
}
