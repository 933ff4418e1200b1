package main

import (
	"bytes"
	"testing"
)

func TestNewVersionCmd(t *testing.T) {
	t.Parallel()

	cmd := newVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	if err := cmd.RunE(cmd, nil); err != nil {
		t.Fatal(err)
	}
}

func TestLoadHandleFromFlagsAndArgs(t *testing.T) {
	flagURLs = []string{"http://a.example/repo"}
	flagMetalinkURL = "http://a.example/metalink"
	flagFastestMirror = true
	flagDestDir = "/tmp/repoget-test"
	flagRepoType = "generic"
	flagConfig = ""
	defer func() {
		flagURLs = nil
		flagMetalinkURL = ""
		flagFastestMirror = false
		flagDestDir = ""
		flagRepoType = ""
	}()

	h, err := loadHandle([]string{"http://b.example/repo"})
	if err != nil {
		t.Fatal(err)
	}
	if len(h.URLs) != 2 {
		t.Errorf("URLs = %v, want 2 entries", h.URLs)
	}
	if h.MetalinkURL != "http://a.example/metalink" {
		t.Errorf("MetalinkURL = %q", h.MetalinkURL)
	}
	if !h.FastestMirror {
		t.Error("FastestMirror should be true")
	}
	if h.DestDir != "/tmp/repoget-test" {
		t.Errorf("DestDir = %q", h.DestDir)
	}
}
