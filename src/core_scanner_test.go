package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestScanTreeClassifiesEntries(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Vacation", "photo.jpg"), "jpeg")
	writeFile(t, filepath.Join(root, "Vacation", "photo.jpg.json"), "{}")
	writeFile(t, filepath.Join(root, "Vacation", "clip.mp4"), "mp4")
	writeFile(t, filepath.Join(root, "Pets", "dog.png"), "png")
	writeFile(t, filepath.Join(root, "Pets", "dog.png.json"), "{}")

	result, err := ScanTree(root, nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Sidecars) != 2 {
		t.Errorf("got %d sidecars, want 2", len(result.Sidecars))
	}
	if len(result.Media) != 3 {
		t.Errorf("got %d media, want 3", len(result.Media))
	}
	if result.AlbumCount() != 2 {
		t.Errorf("got %d albums, want 2", result.AlbumCount())
	}
	if result.SkippedDirs != 0 {
		t.Errorf("got %d skipped dirs, want 0", result.SkippedDirs)
	}
}

func TestScanTreeIndexesByAlbumAndName(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Vacation", "photo.jpg"), "a")
	writeFile(t, filepath.Join(root, "Pets", "photo.jpg"), "b")

	result, err := ScanTree(root, nil)
	if err != nil {
		t.Fatal(err)
	}

	vac := result.Index.Lookup("Vacation", "photo.jpg")
	if len(vac) != 1 || vac[0].AlbumName != "Vacation" {
		t.Error("same filename in different albums must index separately")
	}
	pets := result.Index.Lookup("Pets", "photo.jpg")
	if len(pets) != 1 || pets[0].AlbumName != "Pets" {
		t.Error("expected Pets entry under its own key")
	}
}

func TestScanTreeKeepsDuplicateRecords(t *testing.T) {
	// same (album, filename) key from two directories named alike
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Vacation", "photo.jpg"), "a")
	writeFile(t, filepath.Join(root, "sub", "Vacation", "photo.jpg"), "b")

	result, err := ScanTree(root, nil)
	if err != nil {
		t.Fatal(err)
	}

	recs := result.Index.Lookup("Vacation", "photo.jpg")
	if len(recs) != 2 {
		t.Fatalf("got %d records under one key, want both duplicates kept", len(recs))
	}
	if recs[0].Path == recs[1].Path {
		t.Error("duplicate records must point at distinct paths")
	}
}

func TestScanTreeUnreadableRoot(t *testing.T) {
	if _, err := ScanTree(filepath.Join(t.TempDir(), "missing"), nil); err == nil {
		t.Error("expected error for unreadable root")
	}
}

func TestScanTreeSkipsUnreadableSubdir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits do not restrict root")
	}

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Readable", "photo.jpg"), "x")
	writeFile(t, filepath.Join(root, "Locked", "hidden.jpg"), "x")
	if err := os.Chmod(filepath.Join(root, "Locked"), 0000); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(filepath.Join(root, "Locked"), 0755)

	result, err := ScanTree(root, nil)
	if err != nil {
		t.Fatalf("unreadable subdir must not fail the walk: %v", err)
	}
	if result.SkippedDirs != 1 {
		t.Errorf("SkippedDirs = %d, want 1", result.SkippedDirs)
	}
	if len(result.Index.Lookup("Readable", "photo.jpg")) != 1 {
		t.Error("readable sibling missing from the index")
	}
	if len(result.Media) != 1 {
		t.Errorf("got %d media, want only the readable file", len(result.Media))
	}
}

func TestScanTreeEmptyRoot(t *testing.T) {
	result, err := ScanTree(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Sidecars) != 0 || len(result.Media) != 0 {
		t.Error("empty tree must yield empty result")
	}
}

func TestScanTreeReportsProgress(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 250; i++ {
		writeFile(t, filepath.Join(root, "Album", fmt.Sprintf("photo%03d.jpg", i)), "x")
	}

	calls := 0
	_, err := ScanTree(root, func(current, total int, message string) {
		calls++
		if total != 0 {
			t.Errorf("total = %d, want 0 while the walk is incomplete", total)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls == 0 {
		t.Error("expected at least one progress callback")
	}
}
