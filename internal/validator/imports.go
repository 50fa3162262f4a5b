package validator

import (
	"regexp"
	"sort"
	"strings"
)

var (
	// importLine requires matching quotes around the URI and no quotes
	// after it; anything else ends the import block untouched.
	importLine = regexp.MustCompile(`^\s*import\s+(?:'([^'"]+)'|"([^'"]+)")[^;'"]*;\s*$`)
	spaceRun   = regexp.MustCompile(`\s+`)

	// flutterUsage detects source that needs the material library.
	flutterUsage = regexp.MustCompile(`\b(?:StatelessWidget|StatefulWidget|MaterialApp|Scaffold|runApp|BuildContext)\b`)
	flutterLib   = regexp.MustCompile(`['"]package:flutter/(?:material|widgets|cupertino)\.dart['"]`)
)

const materialImport = "import 'package:flutter/material.dart';"

// normalizeImports rewrites the leading import block: duplicates removed,
// grouped dart: then package: then relative, each group sorted, one blank
// line between groups and one after the block. A material import is added
// when Flutter widgets are used without any Flutter library import. Only
// the first contiguous run of import and blank lines is touched.
func normalizeImports(content string) string {
	lines := strings.SplitAfter(content, "\n")

	// Locate the block: skip leading blank lines and line comments.
	start := 0
	for start < len(lines) {
		t := strings.TrimSpace(lines[start])
		if t == "" || strings.HasPrefix(t, "//") || strings.HasPrefix(t, "library ") {
			start++
			continue
		}
		break
	}
	end := start
	var stmts []string
	for end < len(lines) {
		t := strings.TrimSpace(lines[end])
		if t == "" {
			end++
			continue
		}
		if !importLine.MatchString(lines[end]) {
			break
		}
		stmts = append(stmts, spaceRun.ReplaceAllString(t, " "))
		end++
	}

	needsMaterial := flutterUsage.MatchString(content) && !flutterLib.MatchString(content)
	if needsMaterial {
		stmts = append(stmts, materialImport)
	}
	if len(stmts) == 0 {
		return content
	}

	block := renderImports(stmts)

	var b strings.Builder
	for _, l := range lines[:start] {
		b.WriteString(l)
	}
	b.WriteString(block)
	rest := strings.Join(lines[end:], "")
	if rest != "" {
		b.WriteString("\n")
		b.WriteString(rest)
	}
	return b.String()
}

// renderImports dedupes, groups and sorts import statements.
func renderImports(stmts []string) string {
	groups := make([][]string, 3)
	seen := make(map[string]bool, len(stmts))
	for _, s := range stmts {
		s = strings.ReplaceAll(s, `"`, `'`)
		if seen[s] {
			continue
		}
		seen[s] = true
		m := importLine.FindStringSubmatch(s)
		uri := ""
		if m != nil {
			uri = m[1] + m[2]
		}
		switch {
		case strings.HasPrefix(uri, "dart:"):
			groups[0] = append(groups[0], s)
		case strings.HasPrefix(uri, "package:"):
			groups[1] = append(groups[1], s)
		default:
			groups[2] = append(groups[2], s)
		}
	}

	var parts []string
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		sort.Strings(g)
		parts = append(parts, strings.Join(g, "\n")+"\n")
	}
	return strings.Join(parts, "\n")
}
