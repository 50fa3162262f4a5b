package core

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// contextLines is how many unchanged lines are kept around each change.
const contextLines = 3

// lineDiff renders a line-oriented diff of before and after with a short
// header. Long unchanged runs are collapsed. It also returns the number of
// added and removed lines.
func lineDiff(path, before, after string) (string, int, int) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var out strings.Builder
	fmt.Fprintf(&out, "--- a/%s\n+++ b/%s\n", path, path)

	added, removed := 0, 0
	for i, d := range diffs {
		text := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			for _, l := range text {
				out.WriteString("+" + l + "\n")
			}
			added += len(text)
		case diffmatchpatch.DiffDelete:
			for _, l := range text {
				out.WriteString("-" + l + "\n")
			}
			removed += len(text)
		case diffmatchpatch.DiffEqual:
			writeContext(&out, text, i == 0, i == len(diffs)-1)
		}
	}
	return out.String(), added, removed
}

// writeContext prints an unchanged run, keeping only the lines adjacent to
// the neighbouring changes.
func writeContext(out *strings.Builder, text []string, first, last bool) {
	head, tail := contextLines, contextLines
	if first {
		head = 0
	}
	if last {
		tail = 0
	}
	if len(text) <= head+tail {
		for _, l := range text {
			out.WriteString(" " + l + "\n")
		}
		return
	}
	for _, l := range text[:head] {
		out.WriteString(" " + l + "\n")
	}
	fmt.Fprintf(out, "@@ %d unchanged lines @@\n", len(text)-head-tail)
	for _, l := range text[len(text)-tail:] {
		out.WriteString(" " + l + "\n")
	}
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
