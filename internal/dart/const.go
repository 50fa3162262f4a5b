package dart

import "sort"

// ConstSite is one `const` keyword in code.
type ConstSite struct {
	// Start and End delimit the keyword plus the whitespace after it.
	Start, End int

	// Next is the identifier that follows the keyword, if any.
	Next string

	// RegionStart and RegionEnd are the offsets of the opening and closing
	// bracket of the constant expression (constructor arguments or a
	// collection literal). Both are -1 when the site has no such region.
	RegionStart, RegionEnd int
}

// HasRegion reports whether the site introduces a bracketed expression.
func (s ConstSite) HasRegion() bool {
	return s.RegionStart >= 0 && s.RegionEnd > s.RegionStart
}

// FindConstSites lists every `const` keyword outside strings and comments,
// in source order.
func FindConstSites(src string, res *Result) []ConstSite {
	m := res.Masked
	n := len(m)
	var sites []ConstSite

	for i := 0; i+5 <= n; i++ {
		if string(m[i:i+5]) != "const" {
			continue
		}
		if i > 0 && (isIdent(m[i-1]) || m[i-1] == '.') {
			continue
		}
		if i+5 < n && isIdent(m[i+5]) {
			continue
		}

		end := i + 5
		for end < n && isSpace(m[end]) {
			end++
		}
		site := ConstSite{Start: i, End: end, RegionStart: -1, RegionEnd: -1}

		j := end
		for j < n && isIdent(m[j]) {
			j++
		}
		site.Next = string(m[end:j])

		site.RegionStart, site.RegionEnd = constRegion(m, end)
		sites = append(sites, site)
		i = end - 1
	}
	return sites
}

// constRegion finds the bracketed expression governed by a const keyword
// whose following token starts at j.
func constRegion(m []byte, j int) (int, int) {
	n := len(m)
	skip := func() {
		for j < n && isSpace(m[j]) {
			j++
		}
	}

	if j < n && m[j] == '<' {
		end := matchAngle(m, j)
		if end < 0 {
			return -1, -1
		}
		j = end + 1
		skip()
	}
	if j < n && (m[j] == '[' || m[j] == '{') {
		if end := matchBracket(m, j); end >= 0 {
			return j, end
		}
		return -1, -1
	}

	start := j
	for j < n && (isIdent(m[j]) || m[j] == '.') {
		j++
	}
	if j == start {
		return -1, -1
	}
	skip()
	if j < n && m[j] == '<' {
		end := matchAngle(m, j)
		if end < 0 {
			return -1, -1
		}
		j = end + 1
		skip()
	}
	if j < n && m[j] == '(' {
		if end := matchBracket(m, j); end >= 0 {
			return j, end
		}
	}
	return -1, -1
}

// matchBracket returns the offset of the bracket closing the one at open.
func matchBracket(m []byte, open int) int {
	depth := 0
	for i := open; i < len(m); i++ {
		switch m[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return i
			}
			if depth < 0 {
				return -1
			}
		}
	}
	return -1
}

// matchAngle returns the offset of the '>' closing a type argument list.
func matchAngle(m []byte, open int) int {
	depth := 0
	for i := open; i < len(m); i++ {
		switch m[i] {
		case '<':
			depth++
		case '>':
			depth--
			if depth == 0 {
				return i
			}
		case ';', '{', '(', ')', '=':
			return -1
		}
	}
	return -1
}

// StripNestedConst removes `const` keywords that sit inside another
// constant expression, where they are implied.
func StripNestedConst(src string) string {
	res := Scan(src)
	var cuts [][2]int
	regionEnd := -1
	for _, s := range FindConstSites(src, res) {
		if s.Start < regionEnd {
			cuts = append(cuts, [2]int{s.Start, s.End})
			continue
		}
		if s.HasRegion() {
			regionEnd = s.RegionEnd
		}
	}
	return Cut(src, cuts)
}

// Cut removes the given [start, end) spans from src. Spans must not
// overlap.
func Cut(src string, spans [][2]int) string {
	if len(spans) == 0 {
		return src
	}
	sort.Slice(spans, func(a, b int) bool { return spans[a][0] < spans[b][0] })
	out := make([]byte, 0, len(src))
	prev := 0
	for _, s := range spans {
		if s[0] < prev {
			continue
		}
		out = append(out, src[prev:s[0]]...)
		prev = s[1]
	}
	out = append(out, src[prev:]...)
	return string(out)
}
