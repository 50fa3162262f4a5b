package project

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"
)

// skipDirs are never descended into, whatever the include patterns say.
var skipDirs = map[string]bool{
	".git":         true,
	".dart_tool":   true,
	".idea":        true,
	".vscode":      true,
	"build":        true,
	"node_modules": true,
	".pub-cache":   true,
}

// scanner walks the project root and selects tracked files.
type scanner struct {
	root    string
	include []string
}

func newScanner(root string, include []string) (*scanner, error) {
	for _, p := range include {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid include pattern %q", p)
		}
	}
	return &scanner{root: root, include: include}, nil
}

// matches reports whether rel (slash-separated) is selected by an include
// pattern.
func (s *scanner) matches(rel string) bool {
	for _, p := range s.include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// ignoreRules compiles the root .gitignore, or returns nil when there is
// none.
func (s *scanner) ignoreRules() *ignore.GitIgnore {
	lines, err := readLines(filepath.Join(s.root, ".gitignore"))
	if err != nil || len(lines) == 0 {
		return nil
	}
	return ignore.CompileIgnoreLines(lines...)
}

// tracked reports whether rel (slash-separated) belongs in the snapshot:
// selected by an include pattern, not hidden, and not excluded by rules
// either directly or through one of its parent directories.
func (s *scanner) tracked(rel string, rules *ignore.GitIgnore) bool {
	if strings.HasPrefix(path.Base(rel), ".") || !s.matches(rel) {
		return false
	}
	if rules == nil {
		return true
	}
	if rules.MatchesPath(rel) {
		return false
	}
	for dir := path.Dir(rel); dir != "."; dir = path.Dir(dir) {
		if rules.MatchesPath(dir + "/") {
			return false
		}
	}
	return true
}

// scan returns the content of every tracked file keyed by its relative
// slash path.
func (s *scanner) scan() (map[string]string, error) {
	rules := s.ignoreRules()
	files := make(map[string]string)

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root {
				return err
			}
			return nil // skip inaccessible paths
		}
		if path == s.root {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		name := d.Name()

		if d.IsDir() {
			if skippedDir(name) {
				return filepath.SkipDir
			}
			if rules != nil && rules.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || !s.tracked(rel, rules) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		files[rel] = string(data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.root, err)
	}
	return files, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
