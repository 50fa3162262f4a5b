package core

import (
	"fmt"
	"sort"
)

// FileEntry is one tracked file in a ProjectState.
type FileEntry struct {
	Content  string `json:"content"`
	Revision uint64 `json:"revision"`
}

// ProjectState is the snapshot of the project tree: relative path to
// content, plus a monotonic revision counter bumped on every mutation.
type ProjectState struct {
	Revision uint64               `json:"revision"`
	Files    map[string]FileEntry `json:"files"`
}

// NewProjectState returns an empty snapshot.
func NewProjectState() *ProjectState {
	return &ProjectState{Files: make(map[string]FileEntry)}
}

// Paths returns all tracked paths, sorted.
func (s *ProjectState) Paths() []string {
	if s == nil {
		return nil
	}
	paths := make([]string, 0, len(s.Files))
	for p := range s.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Has reports whether path is tracked.
func (s *ProjectState) Has(path string) bool {
	if s == nil {
		return false
	}
	_, ok := s.Files[path]
	return ok
}

// Content returns the content of path.
func (s *ProjectState) Content(path string) (string, bool) {
	if s == nil {
		return "", false
	}
	f, ok := s.Files[path]
	return f.Content, ok
}

// FileRevision returns the per-file revision of path, or 0 when absent.
func (s *ProjectState) FileRevision(path string) uint64 {
	if s == nil {
		return 0
	}
	return s.Files[path].Revision
}

// Clone returns an independent copy.
func (s *ProjectState) Clone() *ProjectState {
	out := &ProjectState{Files: make(map[string]FileEntry)}
	if s == nil {
		return out
	}
	out.Revision = s.Revision
	for p, f := range s.Files {
		out.Files[p] = f
	}
	return out
}

// Put sets path to content, bumping both revisions.
func (s *ProjectState) Put(path, content string) {
	f := s.Files[path]
	f.Content = content
	f.Revision++
	s.Files[path] = f
	s.Revision++
}

// Remove drops path, bumping the global revision when it was present.
func (s *ProjectState) Remove(path string) {
	if _, ok := s.Files[path]; !ok {
		return
	}
	delete(s.Files, path)
	s.Revision++
}

// Equal reports whether two snapshots hold the same paths and content.
// Revisions are not compared.
func (s *ProjectState) Equal(other *ProjectState) bool {
	if len(s.Files) != len(other.Files) {
		return false
	}
	for p, f := range s.Files {
		o, ok := other.Files[p]
		if !ok || o.Content != f.Content {
			return false
		}
	}
	return true
}

func (s *ProjectState) String() string {
	return fmt.Sprintf("ProjectState{rev=%d files=%d}", s.Revision, len(s.Files))
}
