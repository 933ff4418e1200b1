package repo

import (
	"strings"
	"testing"
)

const manifestXML = `<?xml version="1.0"?>
<repomd>
  <data type="primary">
    <checksum type="sha256">cafef00d</checksum>
    <location href="repodata/primary.xml.gz"/>
    <size>4096</size>
  </data>
  <data type="filelists">
    <checksum type="sha256">f00dcafe</checksum>
    <location href="repodata/filelists.xml.gz"/>
    <size>2048</size>
  </data>
  <data type="other">
    <location href=""/>
  </data>
</repomd>
`

func TestParseManifest(t *testing.T) {
	t.Parallel()

	m, err := ParseManifest(strings.NewReader(manifestXML))
	if err != nil {
		t.Fatal(err)
	}
	// The entry with an empty href is dropped.
	if len(m.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(m.Entries))
	}
	e := m.Entries[0]
	if e.Name != "primary" || e.RelativePath != "repodata/primary.xml.gz" || e.Size != 4096 {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.Checksum == nil || e.Checksum.Algo != SHA256 || e.Checksum.Hex != "cafef00d" {
		t.Errorf("unexpected checksum: %+v", e.Checksum)
	}
}

func TestParseManifestMalformed(t *testing.T) {
	t.Parallel()

	if _, err := ParseManifest(strings.NewReader("not xml")); err == nil {
		t.Error("expected parse error for malformed XML")
	}
	if _, err := ParseManifest(strings.NewReader(`<repomd></repomd>`)); err == nil {
		t.Error("expected parse error for a manifest with no entries")
	}
}

func TestManifestFilter(t *testing.T) {
	t.Parallel()

	m, err := ParseManifest(strings.NewReader(manifestXML))
	if err != nil {
		t.Fatal(err)
	}

	all := m.Filter(nil, nil)
	if len(all) != 2 {
		t.Fatalf("Filter(nil, nil) = %d entries, want 2", len(all))
	}

	allowed := m.Filter([]string{"primary"}, nil)
	if len(allowed) != 1 || allowed[0].Name != "primary" {
		t.Errorf("Filter(allow) = %+v", allowed)
	}

	denied := m.Filter(nil, []string{"primary"})
	if len(denied) != 1 || denied[0].Name != "filelists" {
		t.Errorf("Filter(deny) = %+v", denied)
	}

	none := m.Filter([]string{"primary"}, []string{"primary"})
	if len(none) != 0 {
		t.Errorf("Filter(allow+deny same name) = %+v, want empty", none)
	}
}
