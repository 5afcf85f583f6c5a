package main

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/text/unicode/norm"
)

func TestNormalizeName(t *testing.T) {
	nfd := norm.NFD.String("über.jpg")
	nfc := norm.NFC.String("über.jpg")
	if nfd == nfc {
		t.Skip("test string has no composition difference on this platform")
	}
	if got := normalizeName(nfd); got != nfc {
		t.Errorf("normalizeName(%q) = %q, want NFC form %q", nfd, got, nfc)
	}
}

func TestAlbumName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/takeout/Vacation 2021/photo.jpg", "Vacation 2021"},
		{"/takeout/a/b/c.jpg", "b"},
		{"photo.jpg", "."},
	}
	for _, tt := range tests {
		if got := albumName(tt.path); got != tt.want {
			t.Errorf("albumName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "photo.jpg")

	if got := uniquePath(target); got != target {
		t.Errorf("free path must come back unchanged, got %q", got)
	}

	writeFile(t, target, "a")
	got := uniquePath(target)
	if got != filepath.Join(dir, "photo(1).jpg") {
		t.Errorf("got %q, want photo(1).jpg", got)
	}

	writeFile(t, got, "b")
	got = uniquePath(target)
	if got != filepath.Join(dir, "photo(2).jpg") {
		t.Errorf("got %q, want photo(2).jpg", got)
	}
}

func TestUniqueDir(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out")

	if got := uniqueDir(target); got != target {
		t.Errorf("free dir must come back unchanged, got %q", got)
	}

	if err := os.Mkdir(target, 0755); err != nil {
		t.Fatal(err)
	}
	if got := uniqueDir(target); got != target+"(1)" {
		t.Errorf("got %q, want %q", got, target+"(1)")
	}
}

func TestCheckoutDir(t *testing.T) {
	dir := t.TempDir()

	created, err := checkoutDir(filepath.Join(dir, "out"), false)
	if err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(created); err != nil || !info.IsDir() {
		t.Fatal("directory not created")
	}

	// existing dir without onlyNew is reused
	again, err := checkoutDir(created, false)
	if err != nil {
		t.Fatal(err)
	}
	if again != created {
		t.Errorf("reuse returned %q, want %q", again, created)
	}

	// onlyNew disambiguates
	fresh, err := checkoutDir(created, true)
	if err != nil {
		t.Fatal(err)
	}
	if fresh != created+"(1)" {
		t.Errorf("got %q, want %q", fresh, created+"(1)")
	}
}

func TestCheckoutDirFileCollision(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out")
	writeFile(t, target, "not a dir")

	if _, err := checkoutDir(target, false); err == nil {
		t.Error("expected error when a file occupies the directory path")
	}
}

func TestNormalizePath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	tests := []struct {
		in   string
		want string
	}{
		{"  /a/b/  ", "/a/b"},
		{"/a/./b/../c", "/a/c"},
		{"~/takeout", filepath.Join(home, "takeout")},
		{"~", home},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.in); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPathExists(t *testing.T) {
	dir := t.TempDir()
	if !pathExists(dir) {
		t.Error("existing dir reported missing")
	}
	if pathExists(filepath.Join(dir, "nope")) {
		t.Error("missing path reported present")
	}
	if pathExists("") {
		t.Error("empty path must not exist")
	}
}
