package repo

import (
	"strings"
	"testing"
)

func TestParseMirrorList(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"# comment",
		"",
		"  http://mirror1.example/repo  ",
		"https://mirror2.example/repo",
		"not-a-url",
		"/local/path",
		"# http://commented.example/repo",
	}, "\n")

	urls, err := ParseMirrorList(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"http://mirror1.example/repo",
		"https://mirror2.example/repo",
		"/local/path",
	}
	if len(urls) != len(want) {
		t.Fatalf("got %d urls, want %d: %v", len(urls), len(want), urls)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Errorf("urls[%d] = %q, want %q", i, urls[i], want[i])
		}
	}
}

func TestParseMirrorListTooLong(t *testing.T) {
	t.Parallel()

	long := "http://example/" + strings.Repeat("a", maxMirrorListLineLen)
	if _, err := ParseMirrorList(strings.NewReader(long)); err == nil {
		t.Error("expected error for an over-long line")
	}
}

func TestParseMirrorListEmpty(t *testing.T) {
	t.Parallel()

	urls, err := ParseMirrorList(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if len(urls) != 0 {
		t.Errorf("expected no urls, got %v", urls)
	}
}
