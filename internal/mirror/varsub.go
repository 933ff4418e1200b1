package mirror

import "strings"

// isVarNameByte reports whether b may appear in a $name token:
// alphanumeric or underscore.
func isVarNameByte(b byte) bool {
	return b == '_' ||
		(b >= '0' && b <= '9') ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z')
}

// ExpandVars expands every $name occurrence in url against vars.
// Names are matched greedily (longest run of name-bytes following the
// '$'); a name with no entry in vars is left in the output literally,
// '$' characters not followed by a name byte are left untouched, and a
// nil or empty vars map is a no-op.
func ExpandVars(url string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(url, "$") {
		return url
	}

	var b strings.Builder
	b.Grow(len(url))

	for i := 0; i < len(url); {
		c := url[i]
		if c != '$' {
			b.WriteByte(c)
			i++
			continue
		}

		j := i + 1
		for j < len(url) && isVarNameByte(url[j]) {
			j++
		}
		if j == i+1 {
			// '$' not followed by a name byte: literal.
			b.WriteByte(c)
			i++
			continue
		}

		name := url[i+1 : j]
		if val, ok := vars[name]; ok {
			b.WriteString(val)
		} else {
			// Unmatched $name is left literal, including the '$'.
			b.WriteString(url[i:j])
		}
		i = j
	}

	return b.String()
}
