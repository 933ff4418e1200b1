package repo

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// ManifestEntry describes one content file named by the repository
// manifest: its logical name, its path relative to the repository
// root, and (when the manifest provides them) its size and checksum.
type ManifestEntry struct {
	Name         string
	RelativePath string
	Size         int64
	Checksum     *Checksum
}

// Manifest is the parsed form of the signed repository manifest (e.g.
// repomd.xml): the list of content files it indexes.
type Manifest struct {
	Entries []ManifestEntry
}

// xmlManifest models the minimal manifest schema this core depends
// on: a sequence of <data type="..."> elements, each naming a
// <location href="..."/>, an optional <checksum type="...">hex</checksum>,
// and an optional <size>bytes</size>. Concrete repository formats carry
// considerably more structure (signatures, multiple checksum kinds,
// per-entry timestamps); only the fields this core's orchestrator
// consumes are modeled here, per spec.md's scoping of manifest parsing
// to "output schema, not parser".
type xmlManifest struct {
	XMLName xml.Name    `xml:"repomd"`
	Entries []xmlEntry  `xml:"data"`
}

type xmlEntry struct {
	Name     string       `xml:"type,attr"`
	Location xmlLocation  `xml:"location"`
	Checksum xmlChecksum  `xml:"checksum"`
	Size     int64        `xml:"size"`
}

type xmlLocation struct {
	Href string `xml:"href,attr"`
}

type xmlChecksum struct {
	Type string `xml:"type,attr"`
	Text string `xml:",chardata"`
}

// ParseManifest parses the repository manifest and returns the
// content-file entries it names. Malformed XML or a manifest with no
// <data> entries is a parse-error.
func ParseManifest(r io.Reader) (*Manifest, error) {
	var doc xmlManifest
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "parse-error: malformed manifest XML")
	}
	if len(doc.Entries) == 0 {
		return nil, errors.New("parse-error: manifest has no entries")
	}

	m := &Manifest{}
	for _, e := range doc.Entries {
		href := strings.TrimSpace(e.Location.Href)
		if href == "" {
			continue
		}
		entry := ManifestEntry{
			Name:         e.Name,
			RelativePath: href,
			Size:         e.Size,
		}
		hex := strings.ToLower(strings.TrimSpace(e.Checksum.Text))
		if hex != "" {
			algo, ok := NormalizeAlgo(e.Checksum.Type)
			if !ok {
				algo = Algo(strings.ToLower(e.Checksum.Type))
			}
			entry.Checksum = &Checksum{Algo: algo, Hex: hex}
		}
		m.Entries = append(m.Entries, entry)
	}
	if len(m.Entries) == 0 {
		return nil, errors.New("parse-error: manifest has no entries with a location")
	}
	return m, nil
}

// Filter returns the subset of entries whose Name passes the
// allow-list / deny-list rule from spec.md §4.I step 7: included iff
// (allow is empty or contains Name) and (deny does not contain Name).
func (m *Manifest) Filter(allow, deny []string) []ManifestEntry {
	allowSet := toSet(allow)
	denySet := toSet(deny)

	var out []ManifestEntry
	for _, e := range m.Entries {
		if len(allowSet) > 0 {
			if _, ok := allowSet[e.Name]; !ok {
				continue
			}
		}
		if _, ok := denySet[e.Name]; ok {
			continue
		}
		out = append(out, e)
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	s := make(map[string]struct{}, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}
