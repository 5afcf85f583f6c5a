package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// sidecarExt marks metadata files accompanying media.
const sidecarExt = ".json"

// ScanResult is everything one tree walk produces.
type ScanResult struct {
	Sidecars    []string
	Media       []*MediaRecord
	Index       FileIndex
	SkippedDirs int
}

// AlbumCount returns the number of distinct albums seen.
func (r *ScanResult) AlbumCount() int {
	albums := make(map[string]struct{})
	for _, m := range r.Media {
		albums[m.AlbumName] = struct{}{}
	}
	return len(albums)
}

// ScanTree walks root once, splitting entries into sidecar paths and
// media records, then builds the (album, filename) index. Sidecars stay
// unparsed here so scanning is cheap and side-effect free.
//
// Unreadable subdirectories are skipped and counted; an unreadable root
// is a configuration error. Progress totals are always 0 because the
// file count is unknown until the walk completes.
func ScanTree(root string, onProgress ProgressFunc) (*ScanResult, error) {
	if _, err := os.ReadDir(root); err != nil {
		return nil, fmt.Errorf("source not readable: %w", err)
	}

	result := &ScanResult{Index: make(FileIndex)}
	found := 0
	interval := 100
	lastDir := ""

	err := walkDir(root, func(dirpath string, entries []os.DirEntry, dirErr error) {
		if dirErr != nil {
			result.SkippedDirs++
			return
		}

		album := normalizeName(filepath.Base(dirpath))
		if onProgress != nil && dirpath != lastDir && found > 0 {
			lastDir = dirpath
			onProgress(found, 0, fmt.Sprintf("Scanning: %s...", album))
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			path := filepath.Join(dirpath, name)

			if strings.HasSuffix(name, sidecarExt) {
				result.Sidecars = append(result.Sidecars, path)
			} else {
				rec := &MediaRecord{
					Filename:  normalizeName(name),
					Path:      path,
					AlbumName: album,
				}
				result.Media = append(result.Media, rec)
			}

			found++
			if onProgress != nil && found%interval == 0 {
				onProgress(found, 0, fmt.Sprintf("Found %d files...", found))
				if found >= 1000 && interval < 500 {
					interval = 500
				}
			}
		}
	})
	if err != nil {
		return nil, err
	}

	for _, rec := range result.Media {
		key := IndexKey{Album: rec.AlbumName, Filename: rec.Filename}
		result.Index[key] = append(result.Index[key], rec)
	}

	if onProgress != nil {
		onProgress(found, 0, "Scan complete")
	}
	return result, nil
}

// walkDir recursively visits directories. The callback receives each
// directory's entries, or the read error for directories that could not
// be listed. The root read error is surfaced by the caller before the
// walk starts, so errors here are always partial.
func walkDir(dir string, visit func(dirpath string, entries []os.DirEntry, err error)) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		visit(dir, nil, err)
		return nil
	}
	visit(dir, entries, nil)

	for _, entry := range entries {
		if entry.IsDir() {
			if err := walkDir(filepath.Join(dir, entry.Name()), visit); err != nil {
				return err
			}
		}
	}
	return nil
}
