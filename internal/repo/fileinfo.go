// Package repo holds the repository data model: file metadata, the
// mirror-list and metalink formats, and the repository manifest.
package repo

import (
	"crypto/md5"  // #nosec G501 - MD5 required for legacy repository compatibility
	"crypto/sha1" // #nosec G505 - SHA1 required for legacy repository compatibility
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"hash"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// Algo identifies a checksum algorithm recognized by the verifier.
type Algo string

// Supported checksum algorithms.
const (
	MD5    Algo = "md5"
	SHA1   Algo = "sha1"
	SHA256 Algo = "sha256"
	SHA512 Algo = "sha512"
)

// NormalizeAlgo lowercases and maps common aliases ("sha-256", "SHA256")
// onto the canonical Algo values used throughout the package.
func NormalizeAlgo(s string) (Algo, bool) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "")) {
	case "md5":
		return MD5, true
	case "sha1", "sha":
		return SHA1, true
	case "sha256":
		return SHA256, true
	case "sha512":
		return SHA512, true
	default:
		return "", false
	}
}

func newHasher(algo Algo) (hash.Hash, bool) {
	switch algo {
	case MD5:
		return md5.New(), true // #nosec G401
	case SHA1:
		return sha1.New(), true // #nosec G401
	case SHA256:
		return sha256.New(), true
	case SHA512:
		return sha512.New(), true
	default:
		return nil, false
	}
}

// Checksum is a single (algorithm, lowercase-hex) pair.
type Checksum struct {
	Algo Algo
	Hex  string
}

// Equal reports whether two checksums name the same algorithm and
// (case-insensitively) the same hex digest.
func (c Checksum) Equal(o Checksum) bool {
	return c.Algo == o.Algo && strings.EqualFold(c.Hex, o.Hex)
}

// FileInfo is the metadata recorded for one content file: its logical
// path, size, and the set of checksums known for it. The checksum set
// may contain more than one algorithm (a metalink entry commonly lists
// several); callers that need a single value should use Best.
type FileInfo struct {
	path      string
	size      uint64
	checksums []Checksum
}

// NewFileInfo constructs a FileInfo from already-known metadata.
func NewFileInfo(path string, size uint64, checksums []Checksum) *FileInfo {
	return &FileInfo{path: path, size: size, checksums: checksums}
}

// Path returns the logical, repository-relative path of the file.
func (fi *FileInfo) Path() string { return fi.path }

// Size returns the expected size in bytes, or 0 if unknown.
func (fi *FileInfo) Size() uint64 { return fi.size }

// Checksums returns the full checksum set.
func (fi *FileInfo) Checksums() []Checksum { return fi.checksums }

// MarshalJSON encodes fi's path, size and checksums.
func (fi *FileInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Path      string
		Size      uint64
		Checksums []Checksum
	}{fi.path, fi.size, fi.checksums})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (fi *FileInfo) UnmarshalJSON(data []byte) error {
	var v struct {
		Path      string
		Size      uint64
		Checksums []Checksum
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	fi.path, fi.size, fi.checksums = v.Path, v.Size, v.Checksums
	return nil
}

// Checksum returns the checksum for algo, if present.
func (fi *FileInfo) Checksum(algo Algo) (Checksum, bool) {
	for _, c := range fi.checksums {
		if c.Algo == algo {
			return c, true
		}
	}
	return Checksum{}, false
}

// Best returns the strongest available checksum, preferring SHA-512
// over SHA-256 over SHA-1 over MD5, matching the by-hash preference
// order repository formats in this family use.
func (fi *FileInfo) Best() (Checksum, bool) {
	for _, algo := range []Algo{SHA512, SHA256, SHA1, MD5} {
		if c, ok := fi.Checksum(algo); ok {
			return c, true
		}
	}
	return Checksum{}, false
}

// Same reports whether fi and t describe the same content: equal path,
// equal size, and no checksum present on both that disagrees.
func (fi *FileInfo) Same(t *FileInfo) bool {
	if fi == t {
		return true
	}
	if t == nil || fi.path != t.path || fi.size != t.size {
		return false
	}
	for _, c := range fi.checksums {
		if o, ok := t.Checksum(c.Algo); ok && !c.Equal(o) {
			return false
		}
	}
	return true
}

// CopyWithChecksums copies from src to dst, computing every supported
// checksum algorithm simultaneously, and returns the resulting
// FileInfo. Used when the algorithm the manifest will ask for isn't
// known until after the transfer completes.
func CopyWithChecksums(dst io.Writer, src io.Reader, p string) (*FileInfo, error) {
	md5h := md5.New()   // #nosec G401
	sha1h := sha1.New() // #nosec G401
	sha256h := sha256.New()
	sha512h := sha512.New()

	w := io.MultiWriter(md5h, sha1h, sha256h, sha512h, dst)
	n, err := io.Copy(w, src)
	if err != nil {
		return nil, errors.Wrap(err, "CopyWithChecksums")
	}

	return &FileInfo{
		path: p,
		size: uint64(n), // #nosec G115 - io.Copy guarantees n >= 0
		checksums: []Checksum{
			{Algo: MD5, Hex: hex.EncodeToString(md5h.Sum(nil))},
			{Algo: SHA1, Hex: hex.EncodeToString(sha1h.Sum(nil))},
			{Algo: SHA256, Hex: hex.EncodeToString(sha256h.Sum(nil))},
			{Algo: SHA512, Hex: hex.EncodeToString(sha512h.Sum(nil))},
		},
	}, nil
}

// VerifyReader streams r through algo and reports whether the
// resulting digest matches expectedHex (case-insensitive). It returns
// an error only for unsupported algorithms or read failures, never for
// a mismatch.
func VerifyReader(r io.Reader, algo Algo, expectedHex string) (matched bool, gotHex string, err error) {
	h, ok := newHasher(algo)
	if !ok {
		return false, "", errors.Newf("unsupported checksum algorithm: %s", algo)
	}
	if _, err := io.Copy(h, r); err != nil {
		return false, "", errors.Wrap(err, "VerifyReader")
	}
	gotHex = hex.EncodeToString(h.Sum(nil))
	return strings.EqualFold(gotHex, expectedHex), gotHex, nil
}
