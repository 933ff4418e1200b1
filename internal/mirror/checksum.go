package mirror

import (
	"os"

	"github.com/mirrorctl/repoget/internal/repo"
)

// VerifyFile opens path and verifies it against expected, returning a
// KindChecksumMismatch error on mismatch and KindUnknownChecksum when
// expected names an algorithm this core does not support (spec.md §4.H).
func VerifyFile(path string, expected *repo.Checksum) error {
	if expected == nil {
		return nil
	}
	algo, ok := repo.NormalizeAlgo(string(expected.Algo))
	if !ok {
		return New(KindUnknownChecksum, "unsupported checksum algorithm: "+string(expected.Algo))
	}

	f, err := os.Open(path)
	if err != nil {
		return Wrap(KindIO, err, "opening file for verification")
	}
	defer func() { _ = f.Close() }()

	matched, _, err := repo.VerifyReader(f, algo, expected.Hex)
	if err != nil {
		return Wrap(KindIO, err, "reading file for verification")
	}
	if !matched {
		return New(KindChecksumMismatch, "checksum mismatch for "+path)
	}
	return nil
}
