// Package web serves the HTTP instruction channel: submit instructions,
// inspect turns, their logs and the tracked project.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rigdev/apprig/internal/config"
	"github.com/rigdev/apprig/internal/core"
	"github.com/rigdev/apprig/internal/logging"
	"github.com/rigdev/apprig/internal/metrics"
	"github.com/rigdev/apprig/internal/storage"
)

const maxBodyBytes = 1 << 20

// Runner executes instructions. *core.Engine satisfies it.
type Runner interface {
	Execute(ctx context.Context, instruction string) (*core.Turn, error)
	Preview(ctx context.Context, instruction string) (*core.Turn, error)
	Plan(ctx context.Context, instruction string) (*core.TaskPlan, error)
}

// Store reads turn history. *storage.DB satisfies it.
type Store interface {
	GetTurn(id string) (*core.Turn, error)
	ListTurns(limit int) ([]core.Turn, error)
	GetLogsSince(turnID string, afterID int64) ([]storage.LogEntry, error)
}

// Snapshotter exposes the tracked project tree.
type Snapshotter interface {
	Snapshot() *core.ProjectState
}

// configResponse is the non-sensitive subset of config returned by the API.
type configResponse struct {
	Project    string `json:"project"`
	Root       string `json:"root"`
	EntryFile  string `json:"entry_file"`
	Backend    string `json:"backend_kind"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	MaxRetries int    `json:"max_retries"`
	Classifier string `json:"classifier"`
}

type instructionRequest struct {
	Instruction string `json:"instruction"`
	DryRun      bool   `json:"dry_run"`
}

type projectFile struct {
	Path     string `json:"path"`
	Revision uint64 `json:"revision"`
	Size     int    `json:"size"`
}

type projectResponse struct {
	Revision uint64        `json:"revision"`
	Files    []projectFile `json:"files"`
}

type handler struct {
	runner  Runner
	store   Store
	project Snapshotter
	cfg     *config.Config
	now     func() time.Time
}

// NewHandler creates the API router.
func NewHandler(cfg *config.Config, runner Runner, store Store, project Snapshotter) http.Handler {
	h := &handler{runner: runner, store: store, project: project, cfg: cfg, now: time.Now}

	r := chi.NewRouter()
	r.Use(bodySizeLimitMiddleware(maxBodyBytes))

	r.Route("/api", func(r chi.Router) {
		r.Post("/turns", h.handleExecute)
		r.Post("/plan", h.handlePlan)
		r.Get("/turns", h.handleListTurns)
		r.Get("/turns/{id}", h.handleGetTurn)
		r.Get("/turns/{id}/logs", h.handleGetLogs)
		r.Get("/project", h.handleProject)
		r.Get("/stats", h.handleStats)
		r.Get("/config", h.handleConfig)
		r.Get("/events", h.handleSSE)
	})
	return r
}

func decodeInstruction(w http.ResponseWriter, r *http.Request) (instructionRequest, bool) {
	var req instructionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return req, false
	}
	req.Instruction = strings.TrimSpace(req.Instruction)
	if req.Instruction == "" {
		writeError(w, http.StatusBadRequest, "instruction is required")
		return req, false
	}
	return req, true
}

func (h *handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeInstruction(w, r)
	if !ok {
		return
	}

	run := h.runner.Execute
	if req.DryRun {
		run = h.runner.Preview
	}
	turn, err := run(r.Context(), req.Instruction)
	switch {
	case errors.Is(err, core.ErrTurnInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case turn == nil && err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	case err != nil:
		// The turn ran and failed; the body carries the reason.
		writeJSON(w, http.StatusUnprocessableEntity, turn)
	default:
		writeJSON(w, http.StatusOK, turn)
	}
}

func (h *handler) handlePlan(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeInstruction(w, r)
	if !ok {
		return
	}

	plan, err := h.runner.Plan(r.Context(), req.Instruction)
	if err != nil {
		var (
			pe *core.PlanningError
			ce *core.ConflictError
			ne *core.NotFoundError
		)
		switch {
		case errors.Is(err, core.ErrTurnInProgress):
			writeError(w, http.StatusConflict, err.Error())
		case errors.As(err, &pe), errors.As(err, &ce), errors.As(err, &ne):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *handler) handleListTurns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	turns, err := h.store.ListTurns(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if turns == nil {
		turns = []core.Turn{}
	}
	writeJSON(w, http.StatusOK, turns)
}

func (h *handler) handleGetTurn(w http.ResponseWriter, r *http.Request) {
	turn, err := h.store.GetTurn(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if turn == nil {
		writeError(w, http.StatusNotFound, "turn not found")
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (h *handler) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	var after int64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after")
			return
		}
		after = n
	}

	logs, err := h.store.GetLogsSince(chi.URLParam(r, "id"), after)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if logs == nil {
		logs = []storage.LogEntry{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *handler) handleProject(w http.ResponseWriter, r *http.Request) {
	state := h.project.Snapshot()
	resp := projectResponse{Files: []projectFile{}}
	if state != nil {
		resp.Revision = state.Revision
		for _, p := range state.Paths() {
			entry := state.Files[p]
			resp.Files = append(resp.Files, projectFile{Path: p, Revision: entry.Revision, Size: len(entry.Content)})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	window := metrics.DefaultWindow
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid window")
			return
		}
		window = d
	}

	turns, err := h.store.ListTurns(0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, metrics.Calculate(turns, h.now(), window))
}

func (h *handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configResponse{
		Project:    h.cfg.Project.Name,
		Root:       h.cfg.Project.Root,
		EntryFile:  h.cfg.Project.EntryFile,
		Backend:    h.cfg.AI.BackendKind,
		Provider:   h.cfg.AI.Provider,
		Model:      h.cfg.AI.Model,
		MaxRetries: h.cfg.Pipeline.Retries(),
		Classifier: h.cfg.Pipeline.Classifier,
	})
}

// handleSSE pushes the recent turn list whenever it changes.
func (h *handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	log := logging.With("component", "web")
	prev := ""
	push := func() {
		turns, err := h.store.ListTurns(20)
		if err != nil {
			log.Warn("sse poll", "error", err)
			return
		}
		payload, err := json.Marshal(turns)
		if err != nil {
			log.Warn("sse marshal", "error", err)
			return
		}
		if string(payload) == prev {
			return
		}
		prev = string(payload)
		// Clients may disconnect between frames; write errors are ignored.
		_, _ = w.Write([]byte("event: turns\ndata: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}

	push()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			push()
		}
	}
}

// bodySizeLimitMiddleware limits the request body size.
func bodySizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("web: JSON encode", "error", err)
	}
}
