// Package dart provides the lexical layer shared by the code validator and
// the planner's post-processing: a delimiter scanner that understands Dart
// comments, strings and interpolation, and helpers built on its output.
package dart

import (
	"fmt"
	"sort"
)

// Problem codes reported by Scan.
const (
	CodeUnclosedDelimiter   = "unclosed_delimiter"
	CodeUnexpectedCloser    = "unexpected_closer"
	CodeMismatchedCloser    = "mismatched_closer"
	CodeUnterminatedString  = "unterminated_string"
	CodeUnterminatedComment = "unterminated_comment"
)

// Problem is a lexical defect at a source position.
type Problem struct {
	Offset  int
	Line    int
	Column  int
	Code    string
	Message string
}

// Opener is an unclosed bracket left on the stack at end of input.
type Opener struct {
	Char   byte
	Offset int
	Line   int
	Column int
	Indent string
}

// Closer returns the bracket that closes o.
func (o Opener) Closer() byte {
	return closerFor(o.Char)
}

// Result is the output of Scan.
type Result struct {
	// Masked is the source with comment text and string bodies replaced by
	// spaces. Newlines and offsets are preserved, so positions in Masked
	// are positions in the source.
	Masked []byte

	// Depth[i] is the bracket nesting depth before byte i.
	Depth []int

	Problems []Problem

	// Unclosed lists brackets still open at end of input, outermost first.
	Unclosed []Opener

	// Stray is set when any closer was unexpected or mismatched.
	Stray bool

	// Unterminated is set when a string or block comment ran to the end of
	// its line or of the input.
	Unterminated bool

	lineStarts []int
}

// Balanced reports whether the source has no lexical problems.
func (r *Result) Balanced() bool {
	return len(r.Problems) == 0
}

// Position converts an offset into a 1-based line and column.
func (r *Result) Position(offset int) (int, int) {
	line := sort.Search(len(r.lineStarts), func(i int) bool {
		return r.lineStarts[i] > offset
	})
	return line, offset - r.lineStarts[line-1] + 1
}

type stringState struct {
	quote  byte
	triple bool
	raw    bool
	start  int
}

type frame struct {
	ch     byte // '{', '(', '[' or '$' for ${ interpolation
	offset int
	str    *stringState
}

// Scan walks src once, tracking bracket nesting through comments, single,
// double and triple-quoted strings, raw strings and ${} interpolation.
func Scan(src string) *Result {
	r := &Result{
		Masked:     []byte(src),
		Depth:      make([]int, len(src)+1),
		lineStarts: lineStarts(src),
	}

	var stack []frame
	var str *stringState
	n := len(src)

	blank := func(i int) {
		if r.Masked[i] != '\n' {
			r.Masked[i] = ' '
		}
	}

	i := 0
	for i < n {
		r.Depth[i] = len(stack)
		c := src[i]

		if str != nil {
			switch {
			case c == '\n' && !str.triple:
				r.report(str.start, CodeUnterminatedString, "string literal is not closed before end of line")
				r.Unterminated = true
				str = nil
				i++
			case !str.raw && c == '\\':
				blank(i)
				if i+1 < n {
					blank(i + 1)
				}
				i += 2
			case !str.raw && c == '$' && i+1 < n && src[i+1] == '{':
				blank(i)
				blank(i + 1)
				stack = append(stack, frame{ch: '$', offset: i, str: str})
				str = nil
				i += 2
			case c == str.quote && (!str.triple || (i+2 < n && src[i+1] == c && src[i+2] == c)):
				if str.triple {
					i += 3
				} else {
					i++
				}
				str = nil
			default:
				blank(i)
				i++
			}
			continue
		}

		switch {
		case c == '/' && i+1 < n && src[i+1] == '/':
			for i < n && src[i] != '\n' {
				blank(i)
				i++
			}
		case c == '/' && i+1 < n && src[i+1] == '*':
			start := i
			depth := 0
			for i < n {
				if i+1 < n && src[i] == '/' && src[i+1] == '*' {
					depth++
					blank(i)
					blank(i + 1)
					i += 2
					continue
				}
				if i+1 < n && src[i] == '*' && src[i+1] == '/' {
					depth--
					blank(i)
					blank(i + 1)
					i += 2
					if depth == 0 {
						break
					}
					continue
				}
				blank(i)
				i++
			}
			if depth > 0 {
				r.report(start, CodeUnterminatedComment, "block comment is not closed")
				r.Unterminated = true
			}
		case c == '\'' || c == '"':
			raw := i > 0 && (src[i-1] == 'r' || src[i-1] == 'R') && (i < 2 || !isIdent(src[i-2]))
			triple := i+2 < n && src[i+1] == c && src[i+2] == c
			str = &stringState{quote: c, triple: triple, raw: raw, start: i}
			if triple {
				i += 3
			} else {
				i++
			}
		case c == '{' || c == '(' || c == '[':
			stack = append(stack, frame{ch: c, offset: i})
			i++
		case c == '}' || c == ')' || c == ']':
			i++
			if len(stack) == 0 {
				r.report(i-1, CodeUnexpectedCloser, fmt.Sprintf("unexpected '%c' with nothing open", c))
				r.Stray = true
				continue
			}
			top := stack[len(stack)-1]
			if top.ch == '$' {
				if c == '}' {
					blank(i - 1)
					stack = stack[:len(stack)-1]
					str = top.str
					continue
				}
				r.report(i-1, CodeMismatchedCloser, fmt.Sprintf("unexpected '%c' inside string interpolation", c))
				r.Stray = true
				continue
			}
			if closerFor(top.ch) == c {
				stack = stack[:len(stack)-1]
				continue
			}
			line, col := r.Position(top.offset)
			r.report(i-1, CodeMismatchedCloser, fmt.Sprintf("'%c' does not match '%c' opened at %d:%d", c, top.ch, line, col))
			r.Stray = true
			for k := len(stack) - 2; k >= 0 && stack[k].ch != '$'; k-- {
				if closerFor(stack[k].ch) == c {
					stack = stack[:k]
					break
				}
			}
		default:
			i++
		}
	}
	r.Depth[n] = len(stack)

	if str != nil {
		r.report(str.start, CodeUnterminatedString, "string literal is not closed")
		r.Unterminated = true
	}
	for _, f := range stack {
		if f.ch == '$' {
			r.report(f.offset, CodeUnterminatedString, "string interpolation is not closed")
			r.Unterminated = true
			continue
		}
		line, col := r.Position(f.offset)
		r.Unclosed = append(r.Unclosed, Opener{
			Char:   f.ch,
			Offset: f.offset,
			Line:   line,
			Column: col,
			Indent: indentAt(src, r.lineStarts[line-1]),
		})
		r.report(f.offset, CodeUnclosedDelimiter, fmt.Sprintf("'%c' is never closed", f.ch))
	}

	sort.SliceStable(r.Problems, func(a, b int) bool {
		return r.Problems[a].Offset < r.Problems[b].Offset
	})
	return r
}

func (r *Result) report(offset int, code, msg string) {
	line, col := r.Position(offset)
	r.Problems = append(r.Problems, Problem{
		Offset:  offset,
		Line:    line,
		Column:  col,
		Code:    code,
		Message: msg,
	})
}

func closerFor(open byte) byte {
	switch open {
	case '{':
		return '}'
	case '(':
		return ')'
	case '[':
		return ']'
	}
	return 0
}

func isIdent(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func lineStarts(src string) []int {
	starts := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// indentAt returns the leading whitespace of the line starting at start.
func indentAt(src string, start int) string {
	end := start
	for end < len(src) && (src[end] == ' ' || src[end] == '\t') {
		end++
	}
	return src[start:end]
}
