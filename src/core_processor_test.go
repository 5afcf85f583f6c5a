package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestProcessFileCopiesAndStamps(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	srcPath := filepath.Join(src, "Vacation", "photo.jpg")
	writeFile(t, srcPath, "jpeg bytes")

	p := NewProcessor(dest, nil, nil, false)
	rec := &MediaRecord{Filename: "photo.jpg", Path: srcPath, AlbumName: "Vacation"}
	taken := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	meta := &SidecarMeta{Path: srcPath + ".json", Title: "photo.jpg", Taken: taken}

	got, err := p.ProcessFile(context.Background(), rec, meta)
	if err != nil {
		t.Fatal(err)
	}

	want := filepath.Join(dest, "Vacation", "photo.jpg")
	if got != want {
		t.Errorf("dest = %q, want %q", got, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "jpeg bytes" {
		t.Error("content mismatch after copy")
	}

	info, err := os.Stat(want)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(taken) {
		t.Errorf("mtime = %v, want capture time %v", info.ModTime(), taken)
	}

	if p.Stats.Processed != 1 {
		t.Errorf("Processed = %d, want 1", p.Stats.Processed)
	}
	if p.Stats.BytesCopied != int64(len("jpeg bytes")) {
		t.Errorf("BytesCopied = %d", p.Stats.BytesCopied)
	}
	if rec.DestPath != want || rec.SidecarPath != meta.Path {
		t.Error("record not annotated with processing outcome")
	}
}

func TestProcessFileDisambiguatesCollisions(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	writeFile(t, filepath.Join(src, "a", "photo.jpg"), "first")
	writeFile(t, filepath.Join(src, "b", "photo.jpg"), "second")

	p := NewProcessor(dest, nil, nil, false)
	meta := &SidecarMeta{Title: "photo.jpg", Taken: time.Now()}

	// same album name, two physical files
	first, err := p.ProcessFile(context.Background(),
		&MediaRecord{Filename: "photo.jpg", Path: filepath.Join(src, "a", "photo.jpg"), AlbumName: "Vacation"}, meta)
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.ProcessFile(context.Background(),
		&MediaRecord{Filename: "photo.jpg", Path: filepath.Join(src, "b", "photo.jpg"), AlbumName: "Vacation"}, meta)
	if err != nil {
		t.Fatal(err)
	}

	if first == second {
		t.Fatal("second copy must not overwrite the first")
	}
	if second != filepath.Join(dest, "Vacation", "photo(1).jpg") {
		t.Errorf("second dest = %q, want photo(1).jpg", second)
	}
}

func TestProcessFileMissingSource(t *testing.T) {
	p := NewProcessor(t.TempDir(), nil, nil, false)
	rec := &MediaRecord{Filename: "gone.jpg", Path: "/nonexistent/gone.jpg", AlbumName: "A"}
	meta := &SidecarMeta{Title: "gone.jpg", Taken: time.Now()}

	if _, err := p.ProcessFile(context.Background(), rec, meta); err == nil {
		t.Fatal("expected copy error")
	}
	if p.Stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", p.Stats.Errors)
	}
	if p.Stats.Processed != 0 {
		t.Error("failed copies must not count as processed")
	}
}

func TestCopyUnmatchedPreservesAlbum(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	srcPath := filepath.Join(src, "Vacation", "orphan.jpg")
	writeFile(t, srcPath, "orphan")

	p := NewProcessor(dest, nil, nil, false)
	rec := &MediaRecord{Filename: "orphan.jpg", Path: srcPath, AlbumName: "Vacation"}

	got, reason, err := p.CopyUnmatched(rec)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dest, unmatchedDirName, "Vacation", "orphan.jpg")
	if got != want {
		t.Errorf("dest = %q, want %q", got, want)
	}
	if reason != "no matching sidecar found" {
		t.Errorf("reason = %q", reason)
	}
	if p.Stats.UnmatchedMedia != 1 {
		t.Errorf("UnmatchedMedia = %d, want 1", p.Stats.UnmatchedMedia)
	}
}

func TestCopyUnmatchedMotionPhoto(t *testing.T) {
	src := t.TempDir()
	srcPath := filepath.Join(src, "Vacation", "clip.jpg.MP")
	writeFile(t, srcPath, "motion")

	tests := []struct {
		name     string
		rename   bool
		wantName string
	}{
		{"kept as-is", false, "clip.jpg.MP"},
		{"renamed to mp4", true, "clip.jpg.MP4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProcessor(t.TempDir(), nil, nil, tt.rename)
			rec := &MediaRecord{Filename: "clip.jpg.MP", Path: srcPath, AlbumName: "Vacation"}

			got, reason, err := p.CopyUnmatched(rec)
			if err != nil {
				t.Fatal(err)
			}
			if filepath.Base(got) != tt.wantName {
				t.Errorf("dest name = %q, want %q", filepath.Base(got), tt.wantName)
			}
			if reason == "no matching sidecar found" {
				t.Error("motion photos must be reported with their own reason")
			}
		})
	}
}

func TestExtendMetadataWithoutWriter(t *testing.T) {
	p := NewProcessor(t.TempDir(), nil, nil, false)
	meta := &SidecarMeta{Title: "p.jpg", People: []string{"Alice"}}

	if _, err := p.ExtendMetadata(context.Background(), "/x/p.jpg", meta); err == nil {
		t.Error("extend without exiftool must fail")
	}
}

func TestCopyFilePreservesContentAndMode(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	if err := os.WriteFile(src, []byte("payload"), 0600); err != nil {
		t.Fatal(err)
	}

	n, err := copyFile(src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len("payload")) {
		t.Errorf("copied %d bytes", n)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}
