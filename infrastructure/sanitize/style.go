package sanitize

import "strings"

// stripBlobURLs removes declarations whose value references url(blob:...)
// from an inline style attribute value. It reports whether anything changed.
func stripBlobURLs(style string) (string, bool) {
	decls := splitDeclarations(style)
	kept := decls[:0]
	changed := false
	for _, d := range decls {
		_, value, _ := strings.Cut(d, ":")
		if strings.Contains(strings.ToLower(value), "url(blob:") {
			changed = true
			continue
		}
		kept = append(kept, d)
	}
	if !changed {
		return style, false
	}
	return strings.Join(kept, "; "), true
}

// splitDeclarations splits a declaration list on semicolons that are not
// inside quotes or parentheses. Empty declarations are dropped.
func splitDeclarations(style string) []string {
	var (
		out   []string
		depth int
		quote rune
		start int
	)
	flush := func(end int) {
		if d := strings.TrimSpace(style[start:end]); d != "" {
			out = append(out, d)
		}
	}
	for i, r := range style {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case r == ';' && depth == 0:
			flush(i)
			start = i + 1
		}
	}
	flush(len(style))
	return out
}
