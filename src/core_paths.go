package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalizeName normalizes a filename to NFC so lookups behave the same
// across platforms (macOS stores NFD, everything else NFC).
func normalizeName(name string) string {
	return norm.NFC.String(name)
}

// normalizePath expands ~, trims whitespace and cleans the path.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return filepath.Clean(path)
}

// albumName returns the name of a file's parent directory.
func albumName(path string) string {
	return filepath.Base(filepath.Dir(path))
}

// uniquePath returns path unchanged if no file exists there, otherwise
// the first "base(n).ext" that is free.
func uniquePath(path string) string {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s(%d)%s", base, n, ext)
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// uniqueDir returns path unchanged if no directory exists there,
// otherwise the first "path(n)" that is free.
func uniqueDir(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s(%d)", path, n)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// checkoutDir ensures a directory exists. With onlyNew it always
// creates a fresh directory, disambiguating with a (n) suffix when
// needed, and returns the path actually created.
func checkoutDir(path string, onlyNew bool) (string, error) {
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return "", fmt.Errorf("cannot create directory: %s exists as a file", path)
	}

	if onlyNew {
		path = uniqueDir(path)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", path, err)
	}
	return path, nil
}

// pathExists reports whether anything exists at path.
func pathExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
