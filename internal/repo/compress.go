package repo

import (
	"compress/bzip2"
	"compress/gzip"
	"io"
	"path"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ulikunitz/xz"
)

// DecompressByExtension wraps r in a decompressing reader chosen by
// name's extension (".gz", ".bz2", ".xz"), returning the inner name
// with that extension stripped. A name with none of those extensions
// is returned unwrapped. Grounded on the teacher's meta.go extension
// switch, generalized from Debian's Release/Packages/Sources naming
// to any manifest-referenced content file.
func DecompressByExtension(name string, r io.Reader) (io.Reader, string, error) {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".gz":
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, "", errors.Wrap(err, "gzip")
		}
		return gr, strings.TrimSuffix(name, ext), nil
	case ".bz2":
		return bzip2.NewReader(r), strings.TrimSuffix(name, ext), nil
	case ".xz":
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, "", errors.Wrap(err, "xz")
		}
		return xr, strings.TrimSuffix(name, ext), nil
	default:
		return r, name, nil
	}
}
