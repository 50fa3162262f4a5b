package project

import (
	"fmt"
	"strings"

	"github.com/rigdev/apprig/internal/core"
)

// listingFactor scales maxContextFiles into the number of paths the
// structure listing may name.
const listingFactor = 10

// RenderContextPrompt renders state as a project structure listing followed
// by file contents. The entry file comes first, then paths in sorted order.
// At most maxContextFiles files are rendered in full and at most
// listingFactor times as many paths are listed; files larger than
// contextFileLimit bytes are listed with their size only. The output depends
// on state alone.
func (m *Manager) RenderContextPrompt(state *core.ProjectState) string {
	return renderContext(state, m.entryFile, m.maxContextFiles, m.contextFileLimit)
}

func renderContext(state *core.ProjectState, entryFile string, maxFiles, sizeLimit int) string {
	paths := state.Paths()

	var b strings.Builder
	b.WriteString("Project Structure:\n")
	if len(paths) == 0 {
		b.WriteString("(empty project)\n")
	}
	listed := paths
	if limit := maxFiles * listingFactor; len(listed) > limit {
		listed = listed[:limit]
	}
	for _, p := range listed {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	if n := len(paths) - len(listed); n > 0 {
		fmt.Fprintf(&b, "(%d more files)\n", n)
	}

	ordered := make([]string, 0, len(paths))
	if state.Has(entryFile) {
		ordered = append(ordered, entryFile)
	}
	for _, p := range paths {
		if p != entryFile {
			ordered = append(ordered, p)
		}
	}

	b.WriteString("\nFile Contents:\n")
	shown := 0
	for _, p := range ordered {
		if shown == maxFiles {
			fmt.Fprintf(&b, "\n(%d more files not shown)\n", len(ordered)-shown)
			break
		}
		content, _ := state.Content(p)
		if len(content) > sizeLimit {
			fmt.Fprintf(&b, "\n--- %s (%d bytes, content omitted) ---\n", p, len(content))
			shown++
			continue
		}
		fmt.Fprintf(&b, "\n--- %s ---\n%s", p, content)
		if !strings.HasSuffix(content, "\n") {
			b.WriteByte('\n')
		}
		shown++
	}
	return b.String()
}
