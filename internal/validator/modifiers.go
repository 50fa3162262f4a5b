package validator

import (
	"regexp"
	"strings"

	"github.com/rigdev/apprig/internal/dart"
)

// nonConstMarkers flag expressions that can never be compile-time
// constants: closures, state access, and the build context.
var nonConstMarkers = regexp.MustCompile(`=>|\)\s*(?:async\s*)?\{|\bsetState\b|\bwidget\.|\bcontext\b|\bDateTime\.now\b|\bTheme\.of\b|\bMediaQuery\.of\b`)

// removeForbiddenConst drops `const` where the following construct cannot
// be constant: before final/var/late, doubled keywords, and constructor
// calls or literals whose arguments hold closures, state, context or
// string interpolation.
func removeForbiddenConst(content string) string {
	res := dart.Scan(content)
	var cuts [][2]int
	for _, s := range dart.FindConstSites(content, res) {
		if forbiddenConst(content, res, s) {
			cuts = append(cuts, [2]int{s.Start, s.End})
		}
	}
	return dart.Cut(content, cuts)
}

func forbiddenConst(content string, res *dart.Result, s dart.ConstSite) bool {
	switch s.Next {
	case "final", "var", "late", "const":
		return true
	}
	if !s.HasRegion() {
		return false
	}
	region := res.Masked[s.RegionStart : s.RegionEnd+1]
	if nonConstMarkers.Match(region) {
		return true
	}
	return hasInterpolation(content[s.RegionStart : s.RegionEnd+1])
}

// hasInterpolation reports a `$` inside a non-raw string literal. The
// check is textual over the region, which is enough for generated code.
func hasInterpolation(raw string) bool {
	i := strings.IndexByte(raw, '$')
	for i >= 0 {
		if i+1 < len(raw) && (raw[i+1] == '{' || raw[i+1] == '_' || isLetter(raw[i+1])) {
			return true
		}
		next := strings.IndexByte(raw[i+1:], '$')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return false
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
