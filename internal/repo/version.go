package repo

import (
	"path"
	"strings"

	"github.com/knqyf263/go-deb-version"
)

// packageExtensions are the content-file suffixes recognized as
// carrying a "name_version_arch" triple, grounded on the teacher's
// parsePackageNameVersion (apt_parser.go), generalized from ".deb"
// alone to the small set of package archive formats this family of
// repository tools commonly indexes.
var packageExtensions = []string{".deb", ".rpm", ".apk"}

// ExtractNameVersion parses a package-style name/version out of
// relativePath's base name, when present. Only names ending in a
// recognized package extension and containing at least a
// name_version_arch triple are matched; everything else reports
// ok=false, same as the teacher's original matching only ".deb".
func ExtractNameVersion(relativePath string) (name, ver string, ok bool) {
	base := path.Base(relativePath)

	var nameVersionArch string
	matched := false
	for _, ext := range packageExtensions {
		if strings.HasSuffix(base, ext) {
			nameVersionArch = strings.TrimSuffix(base, ext)
			matched = true
			break
		}
	}
	if !matched {
		return "", "", false
	}

	parts := strings.Split(nameVersionArch, "_")
	if len(parts) < 3 {
		return "", "", false
	}

	name = parts[0]
	ver = strings.Join(parts[1:len(parts)-1], "_")
	if name == "" || ver == "" {
		return "", "", false
	}
	return name, ver, true
}

// NewerVersion reports whether candidate is a strictly newer version
// than existing, using Debian version-comparison semantics. It is
// best-effort: an unparseable version string reports ok=false, and
// callers should fall back to a checksum comparison in that case.
func NewerVersion(existing, candidate string) (newer bool, ok bool) {
	v1, err1 := version.NewVersion(existing)
	v2, err2 := version.NewVersion(candidate)
	if err1 != nil || err2 != nil {
		return false, false
	}
	return v2.GreaterThan(v1), true
}
