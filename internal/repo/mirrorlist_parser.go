package repo

import (
	"bufio"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// maxMirrorListLineLen bounds a single mirror-list line. Lines longer
// than this are rejected rather than silently truncated: a truncated
// URL that happens to still contain "://" would otherwise be accepted
// and later fail downloads in a confusing way far from the parse step.
const maxMirrorListLineLen = 4096

// ParseMirrorList reads a newline-delimited mirror-list file and
// returns the URLs it names, in file order.
//
// For each line: leading/trailing whitespace is stripped, blank lines
// and lines beginning with '#' are skipped, and a line is kept only if
// it contains "://" or begins with '/'. Unknown schemes are passed
// through unchanged; scheme validation happens when the URL is later
// appended to a mirror list. Reads are streaming, so the whole file
// need not fit in memory.
func ParseMirrorList(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, maxMirrorListLineLen), maxMirrorListLineLen)

	var urls []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, "://") || strings.HasPrefix(line, "/") {
			urls = append(urls, line)
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, errors.Wrap(err, "mirror-list line exceeds 4KiB limit")
		}
		return nil, errors.Wrap(err, "ParseMirrorList")
	}
	return urls, nil
}
