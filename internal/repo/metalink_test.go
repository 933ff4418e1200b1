package repo

import (
	"strings"
	"testing"
)

const metalinkV4 = `<?xml version="1.0"?>
<metalink version="4.0">
  <file name="repodata/repomd.xml">
    <size>1234</size>
    <hash type="sha-256">deadbeef</hash>
    <url preference="90">http://mirror1.example/repo/repodata/repomd.xml</url>
    <url preference="100">http://mirror2.example/repo/repodata/repomd.xml</url>
  </file>
</metalink>
`

const metalinkV3 = `<?xml version="1.0"?>
<metalink version="3.0">
  <files>
    <file name="repodata/repomd.xml">
      <size>1234</size>
      <resources>
        <url type="http">http://mirror3.example/repo/repodata/repomd.xml</url>
      </resources>
    </file>
  </files>
</metalink>
`

func TestParseMetalinkV4(t *testing.T) {
	t.Parallel()

	ml, err := ParseMetalink(strings.NewReader(metalinkV4), "")
	if err != nil {
		t.Fatal(err)
	}
	if ml.Filename != "repodata/repomd.xml" {
		t.Errorf("Filename = %q", ml.Filename)
	}
	if ml.Size != 1234 {
		t.Errorf("Size = %d", ml.Size)
	}
	if len(ml.Hashes) != 1 || ml.Hashes[0].Algo != SHA256 || ml.Hashes[0].Hex != "deadbeef" {
		t.Errorf("Hashes = %v", ml.Hashes)
	}
	if len(ml.URLs) != 2 {
		t.Fatalf("got %d urls, want 2", len(ml.URLs))
	}
	if ml.URLs[0].Preference != 90 || ml.URLs[1].Preference != 100 {
		t.Errorf("unexpected preferences: %+v", ml.URLs)
	}
}

func TestParseMetalinkV3(t *testing.T) {
	t.Parallel()

	ml, err := ParseMetalink(strings.NewReader(metalinkV3), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(ml.URLs) != 1 || ml.URLs[0].URL != "http://mirror3.example/repo/repodata/repomd.xml" {
		t.Errorf("unexpected v3 urls: %+v", ml.URLs)
	}
	// Unset preference defaults to 100.
	if ml.URLs[0].Preference != 100 {
		t.Errorf("Preference = %d, want 100", ml.URLs[0].Preference)
	}
}

func TestParseMetalinkSelectByName(t *testing.T) {
	t.Parallel()

	if _, err := ParseMetalink(strings.NewReader(metalinkV4), "does-not-exist"); err == nil {
		t.Error("expected error selecting a missing file name")
	}
	ml, err := ParseMetalink(strings.NewReader(metalinkV4), "repodata/repomd.xml")
	if err != nil {
		t.Fatal(err)
	}
	if ml.Filename != "repodata/repomd.xml" {
		t.Errorf("Filename = %q", ml.Filename)
	}
}

func TestParseMetalinkMalformed(t *testing.T) {
	t.Parallel()

	if _, err := ParseMetalink(strings.NewReader("not xml"), ""); err == nil {
		t.Error("expected parse error for malformed XML")
	}
	if _, err := ParseMetalink(strings.NewReader(`<metalink version="4.0"></metalink>`), ""); err == nil {
		t.Error("expected parse error for a metalink with no files")
	}
}

func TestSniff(t *testing.T) {
	t.Parallel()

	if !Sniff([]byte(metalinkV4)) {
		t.Error("Sniff should recognize a metalink document")
	}
	if Sniff([]byte("http://example/repo\n#comment\n")) {
		t.Error("Sniff should not mistake a mirror-list for a metalink")
	}
}
