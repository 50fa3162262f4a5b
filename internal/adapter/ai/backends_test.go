package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/rigdev/apprig/internal/config"
	"github.com/rigdev/apprig/internal/core"
)

// recordingServer serves canned responses per path and records request
// bodies.
type recordingServer struct {
	*httptest.Server
	bodies  map[string]string
	headers map[string]http.Header
}

func newRecordingServer(t *testing.T, routes map[string]func(w http.ResponseWriter)) *recordingServer {
	t.Helper()
	rs := &recordingServer{bodies: map[string]string{}, headers: map[string]http.Header{}}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		rs.bodies[r.URL.Path] = string(data)
		rs.headers[r.URL.Path] = r.Header.Clone()

		handler, ok := routes[r.URL.Path]
		if !ok {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		handler(w)
	}))
	t.Cleanup(rs.Close)
	return rs
}

func jsonReply(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func TestOllamaComplete(t *testing.T) {
	srv := newRecordingServer(t, map[string]func(http.ResponseWriter){
		"/api/chat": jsonReply(http.StatusOK,
			`{"model":"llama3.1","created_at":"2024-01-01T00:00:00Z","message":{"role":"assistant","content":"class A {}"},"done":true}`+"\n"),
	})

	o, err := NewOllama(config.AIConfig{Model: "llama3.1", Endpoint: srv.URL, Temperature: 0.7})
	if err != nil {
		t.Fatalf("NewOllama: %v", err)
	}
	text, err := o.Complete(context.Background(), "be terse", "write a class", 256)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "class A {}" {
		t.Errorf("text = %q", text)
	}

	var req struct {
		Model    string `json:"model"`
		Stream   *bool  `json:"stream"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Options map[string]any `json:"options"`
	}
	if err := json.Unmarshal([]byte(srv.bodies["/api/chat"]), &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if req.Model != "llama3.1" || req.Stream == nil || *req.Stream {
		t.Errorf("model=%q stream=%v", req.Model, req.Stream)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "write a class" {
		t.Errorf("messages = %+v", req.Messages)
	}
	if req.Options["num_predict"] != float64(256) {
		t.Errorf("num_predict = %v", req.Options["num_predict"])
	}
}

func TestOllamaComplete_ServerError(t *testing.T) {
	srv := newRecordingServer(t, map[string]func(http.ResponseWriter){
		"/api/chat": jsonReply(http.StatusNotFound, `{"error":"model \"nope\" not found, try pulling it first"}`+"\n"),
	})
	o, _ := NewOllama(config.AIConfig{Model: "nope", Endpoint: srv.URL})

	_, err := o.Complete(context.Background(), "", "p", 10)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("error = %v, want model not found", err)
	}
}

func TestOllamaComplete_AuthHeader(t *testing.T) {
	srv := newRecordingServer(t, map[string]func(http.ResponseWriter){
		"/api/chat": jsonReply(http.StatusOK, `{"message":{"role":"assistant","content":"x"},"done":true}`+"\n"),
	})

	withKey, _ := NewOllama(config.AIConfig{Model: "m", Endpoint: srv.URL, APIKey: "secret"})
	if _, err := withKey.Complete(context.Background(), "", "p", 10); err != nil {
		t.Fatal(err)
	}
	if got := srv.headers["/api/chat"].Get("Authorization"); got != "Bearer secret" {
		t.Errorf("Authorization = %q", got)
	}

	without, _ := NewOllama(config.AIConfig{Model: "m", Endpoint: srv.URL})
	if _, err := without.Complete(context.Background(), "", "p", 10); err != nil {
		t.Fatal(err)
	}
	if got := srv.headers["/api/chat"].Get("Authorization"); got != "" {
		t.Errorf("Authorization = %q, want none", got)
	}
}

func TestOllamaPing(t *testing.T) {
	srv := newRecordingServer(t, map[string]func(http.ResponseWriter){
		"/api/tags": jsonReply(http.StatusOK, `{"models":[{"name":"llama3.1:latest","model":"llama3.1:latest"}]}`),
	})

	o, _ := NewOllama(config.AIConfig{Model: "llama3.1", Endpoint: srv.URL})
	if err := o.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}

	missing, _ := NewOllama(config.AIConfig{Model: "qwen2.5-coder", Endpoint: srv.URL})
	if err := missing.Ping(context.Background()); err == nil || !strings.Contains(err.Error(), "ollama pull qwen2.5-coder") {
		t.Errorf("Ping error = %v, want pull hint", err)
	}
}

func TestOllamaUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	o, _ := NewOllama(config.AIConfig{Model: "m", Endpoint: url})
	c := NewWithBackend(o, time.Second, 10)

	resp := c.Generate(context.Background(), core.ModelRequest{Prompt: "p"})
	var te *core.TransportError
	if !errors.As(resp.Err, &te) {
		t.Fatalf("Err = %v, want *core.TransportError", resp.Err)
	}
	if te.Backend != "ollama" {
		t.Errorf("Backend = %q", te.Backend)
	}
}

func TestNewOllama_Endpoint(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "gpu-box:11434")
	o, err := NewOllama(config.AIConfig{Model: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if o.endpoint != "http://gpu-box:11434" {
		t.Errorf("endpoint = %q", o.endpoint)
	}

	o, _ = NewOllama(config.AIConfig{Model: "m", Endpoint: "http://10.0.0.2:11434"})
	if o.endpoint != "http://10.0.0.2:11434" {
		t.Errorf("config endpoint not preferred: %q", o.endpoint)
	}
}

func TestOpenAIComplete(t *testing.T) {
	srv := newRecordingServer(t, map[string]func(http.ResponseWriter){
		"/chat/completions": jsonReply(http.StatusOK,
			`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"class B {}"},"finish_reason":"stop"}]}`),
		"/models": jsonReply(http.StatusOK, `{"object":"list","data":[{"id":"gpt-4o","object":"model"}]}`),
	})

	o, err := NewOpenAI(config.AIConfig{Model: "gpt-4o", APIKey: "sk-test", Endpoint: srv.URL, Temperature: 0.7})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	text, err := o.Complete(context.Background(), "sys", "user", 128)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "class B {}" {
		t.Errorf("text = %q", text)
	}
	if got := srv.headers["/chat/completions"].Get("Authorization"); got != "Bearer sk-test" {
		t.Errorf("Authorization = %q", got)
	}

	var req struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	if err := json.Unmarshal([]byte(srv.bodies["/chat/completions"]), &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if req.Model != "gpt-4o" || req.MaxTokens != 128 || len(req.Messages) != 2 || req.Messages[0].Role != "system" {
		t.Errorf("request = %+v", req)
	}

	if err := o.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestOpenAIComplete_APIError(t *testing.T) {
	srv := newRecordingServer(t, map[string]func(http.ResponseWriter){
		"/chat/completions": jsonReply(http.StatusUnauthorized,
			`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`),
	})
	o, _ := NewOpenAI(config.AIConfig{Model: "gpt-4o", APIKey: "bad", Endpoint: srv.URL})

	_, err := o.Complete(context.Background(), "", "p", 10)
	if err == nil || !strings.Contains(err.Error(), "Incorrect API key") {
		t.Fatalf("error = %v", err)
	}
}

func TestOpenAIComplete_NoChoicesIsEmpty(t *testing.T) {
	srv := newRecordingServer(t, map[string]func(http.ResponseWriter){
		"/chat/completions": jsonReply(http.StatusOK, `{"id":"c1","choices":[]}`),
	})
	o, _ := NewOpenAI(config.AIConfig{Model: "gpt-4o", APIKey: "k", Endpoint: srv.URL})

	resp := NewWithBackend(o, time.Second, 10).Generate(context.Background(), core.ModelRequest{Prompt: "p"})
	if !errors.Is(resp.Err, errEmptyResponse) {
		t.Errorf("Err = %v, want errEmptyResponse", resp.Err)
	}
}

func TestAnthropicComplete(t *testing.T) {
	srv := newRecordingServer(t, map[string]func(http.ResponseWriter){
		"/v1/messages": jsonReply(http.StatusOK, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": "class C "}, {"type": "text", "text": "{}"}],
			"stop_reason": "end_turn", "usage": {"input_tokens": 10, "output_tokens": 4}
		}`),
	})

	a, err := NewAnthropic(config.AIConfig{Model: "claude-sonnet-4-5", APIKey: "test-key", Endpoint: srv.URL, Temperature: 1.5})
	if err != nil {
		t.Fatalf("NewAnthropic: %v", err)
	}
	text, err := a.Complete(context.Background(), "sys", "user", 64)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "class C {}" {
		t.Errorf("text = %q", text)
	}

	h := srv.headers["/v1/messages"]
	if got := h.Get("x-api-key"); got != "test-key" {
		t.Errorf("x-api-key = %q", got)
	}
	if h.Get("anthropic-version") == "" {
		t.Error("anthropic-version header missing")
	}

	var req struct {
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
		System      []struct {
			Text string `json:"text"`
		} `json:"system"`
	}
	if err := json.Unmarshal([]byte(srv.bodies["/v1/messages"]), &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if req.Model != "claude-sonnet-4-5" || req.MaxTokens != 64 {
		t.Errorf("request = %+v", req)
	}
	if req.Temperature != 1 {
		t.Errorf("temperature = %v, want clamped to 1", req.Temperature)
	}
	if len(req.System) != 1 || req.System[0].Text != "sys" {
		t.Errorf("system = %+v", req.System)
	}
}

func TestAnthropicComplete_APIError(t *testing.T) {
	srv := newRecordingServer(t, map[string]func(http.ResponseWriter){
		"/v1/messages": jsonReply(http.StatusBadRequest,
			`{"type":"error","error":{"type":"invalid_request_error","message":"model: unknown"}}`),
	})
	a, _ := NewAnthropic(config.AIConfig{Model: "nope", APIKey: "k", Endpoint: srv.URL})

	_, err := a.Complete(context.Background(), "", "p", 10)
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *anthropic.Error", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
}
