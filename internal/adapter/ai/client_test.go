package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rigdev/apprig/internal/config"
	"github.com/rigdev/apprig/internal/core"
)

// fakeBackend is a Backend driven by a function field.
type fakeBackend struct {
	complete func(ctx context.Context, system, prompt string, maxTokens int) (string, error)
	ping     func(ctx context.Context) error

	calls     int
	maxTokens int
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	f.calls++
	f.maxTokens = maxTokens
	return f.complete(ctx, system, prompt, maxTokens)
}

func (f *fakeBackend) Ping(ctx context.Context) error {
	if f.ping == nil {
		return nil
	}
	return f.ping(ctx)
}

func transportErr(t *testing.T, resp core.ModelResponse) *core.TransportError {
	t.Helper()
	var te *core.TransportError
	if !errors.As(resp.Err, &te) {
		t.Fatalf("Err = %v, want *core.TransportError", resp.Err)
	}
	if te.Backend != "fake" {
		t.Errorf("Backend = %q, want fake", te.Backend)
	}
	return te
}

func TestGenerate_Success(t *testing.T) {
	b := &fakeBackend{complete: func(_ context.Context, system, prompt string, _ int) (string, error) {
		if system != "sys" || prompt != "hello" {
			t.Errorf("system=%q prompt=%q", system, prompt)
		}
		return "class A {}", nil
	}}
	c := NewWithBackend(b, time.Second, 100)

	resp := c.Generate(context.Background(), core.ModelRequest{System: "sys", Prompt: "hello", MaxTokens: 42})
	if resp.Err != nil {
		t.Fatalf("unexpected error: %v", resp.Err)
	}
	if resp.Text != "class A {}" {
		t.Errorf("Text = %q", resp.Text)
	}
	if b.maxTokens != 42 {
		t.Errorf("maxTokens = %d, want request value 42", b.maxTokens)
	}
}

func TestGenerate_DefaultMaxTokens(t *testing.T) {
	b := &fakeBackend{complete: func(context.Context, string, string, int) (string, error) { return "x", nil }}

	NewWithBackend(b, time.Second, 100).Generate(context.Background(), core.ModelRequest{Prompt: "p"})
	if b.maxTokens != 100 {
		t.Errorf("maxTokens = %d, want client default 100", b.maxTokens)
	}

	NewWithBackend(b, 0, 0).Generate(context.Background(), core.ModelRequest{Prompt: "p"})
	if b.maxTokens != config.DefaultMaxTokens {
		t.Errorf("maxTokens = %d, want %d", b.maxTokens, config.DefaultMaxTokens)
	}
}

func TestGenerate_BackendError(t *testing.T) {
	boom := errors.New("connection reset")
	b := &fakeBackend{complete: func(context.Context, string, string, int) (string, error) { return "", boom }}

	resp := NewWithBackend(b, time.Second, 10).Generate(context.Background(), core.ModelRequest{Prompt: "p"})
	te := transportErr(t, resp)
	if !errors.Is(te, boom) {
		t.Errorf("TransportError does not wrap backend error: %v", te)
	}
	if resp.Text != "" {
		t.Errorf("Text = %q, want empty on error", resp.Text)
	}
}

func TestGenerate_Timeout(t *testing.T) {
	b := &fakeBackend{complete: func(ctx context.Context, _, _ string, _ int) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}

	start := time.Now()
	resp := NewWithBackend(b, 20*time.Millisecond, 10).Generate(context.Background(), core.ModelRequest{Prompt: "p"})
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Generate took %s, timeout not enforced", elapsed)
	}

	te := transportErr(t, resp)
	if !strings.Contains(te.Error(), "timed out after 20ms") {
		t.Errorf("error = %v, want timeout message", te)
	}
	if !errors.Is(te, context.DeadlineExceeded) {
		t.Errorf("error does not wrap DeadlineExceeded: %v", te)
	}
}

func TestGenerate_EmptyText(t *testing.T) {
	b := &fakeBackend{complete: func(context.Context, string, string, int) (string, error) { return " \n ", nil }}

	resp := NewWithBackend(b, time.Second, 10).Generate(context.Background(), core.ModelRequest{Prompt: "p"})
	te := transportErr(t, resp)
	if !errors.Is(te, errEmptyResponse) {
		t.Errorf("error = %v, want errEmptyResponse", te)
	}
}

func TestGenerate_BackendPanic(t *testing.T) {
	b := &fakeBackend{complete: func(context.Context, string, string, int) (string, error) {
		panic("sdk bug")
	}}

	resp := NewWithBackend(b, time.Second, 10).Generate(context.Background(), core.ModelRequest{Prompt: "p"})
	te := transportErr(t, resp)
	if !strings.Contains(te.Error(), "backend panic") {
		t.Errorf("error = %v", te)
	}
}

func TestPing(t *testing.T) {
	b := &fakeBackend{ping: func(context.Context) error { return errors.New("down") }}
	err := NewWithBackend(b, time.Second, 10).Ping(context.Background())

	var te *core.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Ping error = %v, want *core.TransportError", err)
	}

	b.ping = nil
	if err := NewWithBackend(b, time.Second, 10).Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestNewBackend(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.AIConfig
		want    string
		wantErr string
	}{
		{"local ollama", config.AIConfig{BackendKind: "local", Provider: "ollama", Model: "llama3.1"}, "ollama", ""},
		{"local default provider", config.AIConfig{BackendKind: "local", Model: "llama3.1"}, "ollama", ""},
		{"hosted openai", config.AIConfig{BackendKind: "hosted", Provider: "openai", Model: "gpt-4o", APIKey: "k"}, "openai", ""},
		{"hosted anthropic", config.AIConfig{BackendKind: "hosted", Provider: "anthropic", Model: "claude-sonnet-4-5", APIKey: "k"}, "anthropic", ""},
		{"hosted gemini", config.AIConfig{BackendKind: "hosted", Provider: "gemini", Model: "gemini-2.0-flash", APIKey: "k"}, "gemini", ""},
		{"local with hosted provider", config.AIConfig{BackendKind: "local", Provider: "openai", Model: "m"}, "", "not a local backend"},
		{"unknown hosted", config.AIConfig{BackendKind: "hosted", Provider: "mistral", Model: "m", APIKey: "k"}, "", "unsupported hosted provider"},
		{"unknown kind", config.AIConfig{BackendKind: "remote", Model: "m"}, "", "unsupported backend kind"},
		{"ollama without model", config.AIConfig{BackendKind: "local"}, "", "model is required"},
		{"openai without key", config.AIConfig{BackendKind: "hosted", Provider: "openai", Model: "m"}, "", "api_key is required"},
		{"anthropic without key", config.AIConfig{BackendKind: "hosted", Provider: "anthropic", Model: "m"}, "", "api_key is required"},
		{"gemini without key", config.AIConfig{BackendKind: "hosted", Provider: "gemini", Model: "m"}, "", "api_key is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBackend(context.Background(), tt.cfg)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want %q", err, tt.wantErr)
				}
				if b != nil {
					t.Fatalf("backend = %#v on error, want nil interface", b)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBackend: %v", err)
			}
			if b.Name() != tt.want {
				t.Errorf("Name = %q, want %q", b.Name(), tt.want)
			}
		})
	}
}
