package validator

import (
	"strings"

	"github.com/rigdev/apprig/internal/dart"
)

// FixCommonDartIssues runs the repair steps in a fixed order. Each step is
// idempotent and none of them creates work for an earlier one: closers go
// first because const regions are only found in balanced code, and
// neither const removal nor import normalization touches brackets.
func FixCommonDartIssues(content string) string {
	out := insertMissingClosers(content)
	out = removeForbiddenConst(out)
	out = normalizeImports(out)
	return out
}

// insertMissingClosers closes brackets left open at end of input. It only
// acts when unclosed brackets are the sole lexical defect. Each closer is
// placed before the first later line indented no deeper than the opener's
// line; if that placement does not produce a balanced file, all closers
// are appended at the end instead.
func insertMissingClosers(content string) string {
	res := dart.Scan(content)
	if len(res.Unclosed) == 0 || res.Stray || res.Unterminated {
		return content
	}

	if placed := placeByIndent(content, res); placed != "" && dart.Scan(placed).Balanced() {
		return placed
	}

	appended := appendClosers(content, res.Unclosed)
	if dart.Scan(appended).Balanced() {
		return appended
	}
	return content
}

// placeByIndent computes one insertion line per unclosed opener, innermost
// first, keeping insertion points monotonic so closers nest correctly.
// Openers on the same line that resolve to the same point share one
// closer line, e.g. "})".
func placeByIndent(content string, res *dart.Result) string {
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	offsets := make([]int, len(lines))
	for i := 1; i < len(lines); i++ {
		offsets[i] = offsets[i-1] + len(lines[i-1])
	}
	codeless := func(i int) bool {
		masked := res.Masked[offsets[i] : offsets[i]+len(lines[i])]
		return strings.TrimSpace(string(masked)) == ""
	}

	type insertion struct {
		line       int // insert before this line index; len(lines) means EOF
		openerLine int
		closers    []byte
		indent     string
	}
	var inserts []insertion

	floor := 0
	for k := len(res.Unclosed) - 1; k >= 0; k-- {
		op := res.Unclosed[k]
		target := len(lines)
		for i := op.Line; i < len(lines); i++ {
			if codeless(i) {
				continue
			}
			if len(leadingWhitespace(lines[i])) <= len(op.Indent) {
				target = i
				break
			}
		}
		// Close right after the last code line, not after trailing blanks.
		for target > op.Line && codeless(target-1) {
			target--
		}
		// Inner closers must come first.
		if target < floor {
			target = floor
		}
		floor = target

		if n := len(inserts); n > 0 && inserts[n-1].line == target && inserts[n-1].openerLine == op.Line {
			inserts[n-1].closers = append(inserts[n-1].closers, op.Closer())
			continue
		}
		inserts = append(inserts, insertion{
			line:       target,
			openerLine: op.Line,
			closers:    []byte{op.Closer()},
			indent:     op.Indent,
		})
	}

	var b strings.Builder
	next := 0
	for i := 0; i <= len(lines); i++ {
		for next < len(inserts) && inserts[next].line == i {
			if i == len(lines) && b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
				b.WriteByte('\n')
			}
			b.WriteString(inserts[next].indent)
			b.Write(inserts[next].closers)
			b.WriteByte('\n')
			next++
		}
		if i < len(lines) {
			b.WriteString(lines[i])
		}
	}
	return b.String()
}

// appendClosers closes every unclosed bracket at end of input, innermost
// first, one per line at its opener's indentation.
func appendClosers(content string, unclosed []dart.Opener) string {
	var b strings.Builder
	b.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		b.WriteByte('\n')
	}
	for k := len(unclosed) - 1; k >= 0; k-- {
		b.WriteString(unclosed[k].Indent)
		b.WriteByte(unclosed[k].Closer())
		b.WriteByte('\n')
	}
	return b.String()
}

func leadingWhitespace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}
