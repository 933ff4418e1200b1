package repo

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// MetalinkURL is one <url> entry of a metalink <file>.
type MetalinkURL struct {
	Protocol   string
	Type       string
	Location   string
	Preference int
	URL        string
}

// Metalink is the parsed record described in spec §3: the single
// <file> element selected out of the document (matching the expected
// filename, or the first present), its size/timestamp, its checksum
// set, and its candidate URLs.
type Metalink struct {
	Filename  string
	Timestamp int64
	Size      int64
	Hashes    []Checksum
	URLs      []MetalinkURL
}

// xmlFile mirrors the on-wire metalink v3/v4 <file> shape closely
// enough to decode both dialects with one struct: v3 nests
// <resources><url>, v4 uses a flat <url> list; ParseMetalink appends
// the Resources entries after the URLs entries.
type xmlFile struct {
	Name      string      `xml:"name,attr"`
	Size      int64       `xml:"size"`
	Timestamp int64       `xml:"timestamp"`
	Hashes    []xmlHash   `xml:"hash"`
	URLs      []xmlURL    `xml:"url"`
	Resources []xmlURLRes `xml:"resources>url"`
}

type xmlHash struct {
	Type string `xml:"type,attr"`
	Text string `xml:",chardata"`
}

type xmlURL struct {
	Protocol   string `xml:"protocol,attr"`
	Type       string `xml:"type,attr"`
	Location   string `xml:"location,attr"`
	Preference int    `xml:"preference,attr"`
	Text       string `xml:",chardata"`
}

type xmlURLRes struct {
	Protocol   string `xml:"protocol,attr"`
	Type       string `xml:"type,attr"`
	Location   string `xml:"location,attr"`
	Preference int    `xml:"preference,attr"`
	Text       string `xml:",chardata"`
}

type xmlMetalink struct {
	XMLName xml.Name  `xml:"metalink"`
	Files   []xmlFile `xml:"files>file"`
	FilesV4 []xmlFile `xml:"file"`
}

// ParseMetalink parses a metalink XML document and extracts the
// <file> whose name attribute equals expectedFilename, or the first
// <file> present when expectedFilename is empty. Entries with an
// empty or missing <url> body are dropped at ingestion, never
// surfacing as a mirror with an empty URL.
func ParseMetalink(r io.Reader, expectedFilename string) (*Metalink, error) {
	var doc xmlMetalink
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "parse-error: malformed metalink XML")
	}

	files := doc.Files
	if len(files) == 0 {
		files = doc.FilesV4
	}
	if len(files) == 0 {
		return nil, errors.New("parse-error: metalink has no <file> elements")
	}

	var selected *xmlFile
	if expectedFilename != "" {
		for i := range files {
			if files[i].Name == expectedFilename {
				selected = &files[i]
				break
			}
		}
		if selected == nil {
			return nil, errors.Newf("parse-error: metalink has no <file name=%q>", expectedFilename)
		}
	} else {
		selected = &files[0]
	}

	ml := &Metalink{
		Filename:  selected.Name,
		Timestamp: selected.Timestamp,
		Size:      selected.Size,
	}

	for _, h := range selected.Hashes {
		hex := strings.ToLower(strings.TrimSpace(h.Text))
		if hex == "" {
			continue
		}
		algo, ok := NormalizeAlgo(h.Type)
		if !ok {
			// Unknown hash types are retained; the verifier filters
			// unsupported algorithms at verification time.
			algo = Algo(strings.ToLower(h.Type))
		}
		ml.Hashes = append(ml.Hashes, Checksum{Algo: algo, Hex: hex})
	}

	urls := selected.URLs
	for _, u := range selected.Resources {
		urls = append(urls, xmlURL(u))
	}
	for _, u := range urls {
		text := strings.TrimSpace(u.Text)
		if text == "" {
			continue
		}
		pref := u.Preference
		if pref == 0 {
			pref = 100
		}
		ml.URLs = append(ml.URLs, MetalinkURL{
			Protocol:   u.Protocol,
			Type:       u.Type,
			Location:   u.Location,
			Preference: pref,
			URL:        text,
		})
	}

	return ml, nil
}

// Sniff reports whether data looks like a metalink document rather
// than a plain mirror-list: true when the data, compared
// case-insensitively, contains both "<?xml" and "<metalink" anywhere
// (which also matches <metalink4). Used to resolve the deprecated dual-purpose
// mirrorlist-or-metalink option (see SPEC_FULL.md §4).
func Sniff(head []byte) bool {
	s := strings.ToLower(string(head))
	return strings.Contains(s, "<?xml") && strings.Contains(s, "<metalink")
}
