// Package project owns the on-disk view of the target application: it
// scans the project root into a ProjectState, renders it into prompt
// context and performs every write to the tree.
package project

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rigdev/apprig/internal/config"
	"github.com/rigdev/apprig/internal/core"
	"github.com/rigdev/apprig/internal/logging"
)

// Compile-time interface check.
var _ core.Workspace = (*Manager)(nil)

// Manager implements core.Workspace over a directory.
type Manager struct {
	root             string
	entryFile        string
	maxContextFiles  int
	contextFileLimit int
	scanner          *scanner
	log              *slog.Logger

	mu    sync.Mutex
	state *core.ProjectState
}

// New creates a Manager for cfg.Root without scanning it.
func New(cfg config.ProjectConfig, maxContextFiles int) (*Manager, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	sc, err := newScanner(root, cfg.Include)
	if err != nil {
		return nil, err
	}
	if maxContextFiles <= 0 {
		maxContextFiles = config.DefaultMaxContextFiles
	}
	limit := cfg.ContextFileLimit
	if limit <= 0 {
		limit = config.DefaultContextFileLimit
	}
	return &Manager{
		root:             root,
		entryFile:        cfg.EntryFile,
		maxContextFiles:  maxContextFiles,
		contextFileLimit: limit,
		scanner:          sc,
		log:              logging.With("component", "project"),
		state:            core.NewProjectState(),
	}, nil
}

// Open creates a Manager and performs the initial scan.
func Open(cfg config.ProjectConfig, maxContextFiles int) (*Manager, error) {
	m, err := New(cfg, maxContextFiles)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(m.root); err != nil {
		return nil, fmt.Errorf("project root: %w", err)
	}
	if err := m.UpdateContext(); err != nil {
		return nil, err
	}
	return m, nil
}

// Root returns the absolute project root.
func (m *Manager) Root() string { return m.root }

// UpdateContext rescans the root and reconciles the snapshot. Files whose
// content is unchanged keep their revision, so rescanning an unchanged
// tree leaves the snapshot untouched.
func (m *Manager) UpdateContext() error {
	files, err := m.scanner.scan()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.state.Revision
	for p, content := range files {
		if cur, ok := m.state.Content(p); ok && cur == content {
			continue
		}
		m.state.Put(p, content)
	}
	for _, p := range m.state.Paths() {
		if _, ok := files[p]; !ok {
			m.state.Remove(p)
		}
	}
	if m.state.Revision != before {
		m.log.Debug("context updated", "files", len(files), "revision", m.state.Revision)
	}
	return nil
}

// Snapshot returns an independent copy of the current state.
func (m *Manager) Snapshot() *core.ProjectState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// GetFileContent returns the tracked content of rel.
func (m *Manager) GetFileContent(rel string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.state.Content(rel)
	if !ok {
		return "", &core.NotFoundError{Path: rel}
	}
	return content, nil
}

// UpdateFile applies one operation to disk and to the snapshot. Create
// refuses existing paths, modify and delete refuse absent ones. Writes are
// atomic per file.
func (m *Manager) UpdateFile(rel, content string, kind core.OperationKind) error {
	full, err := m.resolve(rel)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch kind {
	case core.OpCreate:
		if m.state.Has(rel) {
			return &core.ConflictError{Path: rel}
		}
		if _, err := os.Lstat(full); err == nil {
			return &core.ConflictError{Path: rel, Detail: "exists on disk"}
		}
		if err := writeFileAtomic(full, []byte(content), 0644); err != nil {
			return fmt.Errorf("create %s: %w", rel, err)
		}
	case core.OpModify:
		if !m.state.Has(rel) {
			return &core.NotFoundError{Path: rel}
		}
		if err := writeFileAtomic(full, []byte(content), filePerm(full)); err != nil {
			return fmt.Errorf("modify %s: %w", rel, err)
		}
	case core.OpDelete:
		if !m.state.Has(rel) {
			return &core.NotFoundError{Path: rel}
		}
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete %s: %w", rel, err)
		}
		m.state.Remove(rel)
		m.log.Info("file deleted", "path", rel)
		return nil
	default:
		return fmt.Errorf("unknown operation kind %q", kind)
	}

	// Untracked paths are written but stay out of the snapshot, matching
	// what the next scan would see.
	if m.scanner.tracked(rel, m.scanner.ignoreRules()) {
		m.state.Put(rel, content)
	}
	m.log.Info("file written", "path", rel, "kind", kind, "bytes", len(content))
	return nil
}

// resolve maps a relative slash path to an absolute path inside the root.
func (m *Manager) resolve(rel string) (string, error) {
	if rel == "" || path.IsAbs(rel) || strings.Contains(rel, "\\") || path.Clean(rel) != rel ||
		rel == ".." || strings.HasPrefix(rel, "../") {
		return "", &core.PlanningError{Reason: fmt.Sprintf("invalid project path %q", rel)}
	}
	return filepath.Join(m.root, filepath.FromSlash(rel)), nil
}
